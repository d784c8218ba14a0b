// Package main is the entry point for the skepadb scripted command driver.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skepadb/skepadb/internal/audit"
	"github.com/skepadb/skepadb/internal/command"
	"github.com/skepadb/skepadb/internal/config"
	"github.com/skepadb/skepadb/internal/db"
	"github.com/skepadb/skepadb/internal/metrics"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	dataDir    string
	configPath string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "skepadb-run",
		Short: "Scripted command driver for the skepadb engine",
		Long: `skepadb-run feeds a file of pre-formatted Command values, one JSON
object per line, to the database engine in order and prints each statement's
formatted result. It is not an interactive shell: the engine takes a
pre-parsed Command tree, not SQL text.`,
	}
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "database root directory")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "optional YAML config file")

	runCmd := &cobra.Command{
		Use:   "run <script.jsonl>",
		Short: "Execute a JSON-lines script of Command values",
		Args:  cobra.ExactArgs(1),
		RunE:  runScript,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("skepadb-run %s (commit: %s)\n", version, commit)
		},
	}

	rootCmd.AddCommand(runCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScript(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configPath != "" {
		loaded, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if dataDir != "" {
		cfg.Engine.DataDir = dataDir
	}

	log := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(cfg.Logging.Level)}))

	var auditLogger *audit.Logger
	if cfg.Logging.AuditFile != "" || cfg.Logging.AuditSyslogAddr != "" {
		built, err := audit.New(audit.Config{
			Path:       cfg.Logging.AuditFile,
			SyslogAddr: cfg.Logging.AuditSyslogAddr,
		})
		if err != nil {
			return fmt.Errorf("build audit logger: %w", err)
		}
		auditLogger = built
	} else {
		auditLogger = audit.NewNop()
	}

	database, err := db.Open(cfg.Engine.DataDir,
		db.WithLogger(log),
		db.WithMetrics(metrics.New()),
		db.WithAudit(auditLogger),
	)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var c command.Command
		if err := json.Unmarshal([]byte(line), &c); err != nil {
			return fmt.Errorf("line %d: invalid command: %w", lineNo, err)
		}

		result, err := database.Execute(c)
		if err != nil {
			fmt.Printf("line %d: error: %s\n", lineNo, err.Error())
			continue
		}
		if result != "" {
			fmt.Println(result)
		}
	}
	return scanner.Err()
}

func logLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
