// Package config provides configuration management for the database engine.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config represents the engine's configuration.
type Config struct {
	Engine  EngineConfig  `yaml:"engine"`
	WAL     WALConfig     `yaml:"wal"`
	Logging LoggingConfig `yaml:"logging"`
}

// EngineConfig represents storage engine configuration.
type EngineConfig struct {
	// DataDir is the database root directory: catalog.json, tables/, indexes/, wal.log.
	DataDir string `yaml:"data_dir"`
	// IndexSelfHealVerbose is loaded from the file and from
	// SKEPADB_INDEX_SELF_HEAL_VERBOSE, but no other package reads it: storage
	// logs every index snapshot disagreement at Warn level whatever its value.
	IndexSelfHealVerbose bool `yaml:"index_self_heal_verbose"`
}

// WALConfig represents write-ahead log policy.
type WALConfig struct {
	// CheckpointOnCommit is loaded from the file and from
	// SKEPADB_WAL_CHECKPOINT_ON_COMMIT, but no other package reads it: the
	// transaction manager checkpoints and truncates the WAL after every
	// auto-commit write and every non-empty COMMIT whatever its value.
	CheckpointOnCommit bool `yaml:"checkpoint_on_commit"`
}

// LoggingConfig represents logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, text

	// AuditFile, if set, is the rotating audit log path (see internal/audit).
	AuditFile string `yaml:"audit_file"`
	// AuditSyslogAddr, if set, also forwards audit entries to this syslog
	// address.
	AuditSyslogAddr string `yaml:"audit_syslog_addr"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DataDir: "./data",
		},
		WAL: WALConfig{
			CheckpointOnCommit: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load loads configuration from a YAML file and environment variables.
// Environment variables override file configuration.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		// #nosec G304 -- path is from command-line argument, user-controlled input is expected
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		expanded := os.ExpandEnv(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SKEPADB_DATA_DIR"); v != "" {
		c.Engine.DataDir = v
	}
	if v := os.Getenv("SKEPADB_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("SKEPADB_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("SKEPADB_AUDIT_FILE"); v != "" {
		c.Logging.AuditFile = v
	}
	if v := os.Getenv("SKEPADB_AUDIT_SYSLOG_ADDR"); v != "" {
		c.Logging.AuditSyslogAddr = v
	}
	if v := os.Getenv("SKEPADB_WAL_CHECKPOINT_ON_COMMIT"); v != "" {
		c.WAL.CheckpointOnCommit = strings.ToLower(v) == "true" || v == "1"
	}
	if v := os.Getenv("SKEPADB_INDEX_SELF_HEAL_VERBOSE"); v != "" {
		c.Engine.IndexSelfHealVerbose = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Engine.DataDir) == "" {
		return fmt.Errorf("engine.data_dir must not be empty")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		return fmt.Errorf("invalid log format: %s", c.Logging.Format)
	}

	return nil
}
