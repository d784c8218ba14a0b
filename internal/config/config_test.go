package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Engine.DataDir != "./data" {
		t.Errorf("expected data dir ./data, got %s", cfg.Engine.DataDir)
	}
	if !cfg.WAL.CheckpointOnCommit {
		t.Error("expected checkpoint-on-commit to default true")
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Logging.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *Config
		wantErr bool
	}{
		{
			name:    "valid default",
			cfg:     DefaultConfig(),
			wantErr: false,
		},
		{
			name: "empty data dir",
			cfg: &Config{
				Engine:  EngineConfig{DataDir: "  "},
				Logging: LoggingConfig{Level: "info", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "invalid log level",
			cfg: &Config{
				Engine:  EngineConfig{DataDir: "./data"},
				Logging: LoggingConfig{Level: "verbose", Format: "json"},
			},
			wantErr: true,
		},
		{
			name: "invalid log format",
			cfg: &Config{
				Engine:  EngineConfig{DataDir: "./data"},
				Logging: LoggingConfig{Level: "info", Format: "xml"},
			},
			wantErr: true,
		},
		{
			name: "text format is valid",
			cfg: &Config{
				Engine:  EngineConfig{DataDir: "./data"},
				Logging: LoggingConfig{Level: "debug", Format: "text"},
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_EnvOverrides(t *testing.T) {
	os.Setenv("SKEPADB_DATA_DIR", "/tmp/skepadb-test")
	os.Setenv("SKEPADB_LOG_LEVEL", "debug")
	os.Setenv("SKEPADB_WAL_CHECKPOINT_ON_COMMIT", "false")
	os.Setenv("SKEPADB_INDEX_SELF_HEAL_VERBOSE", "true")
	defer func() {
		os.Unsetenv("SKEPADB_DATA_DIR")
		os.Unsetenv("SKEPADB_LOG_LEVEL")
		os.Unsetenv("SKEPADB_WAL_CHECKPOINT_ON_COMMIT")
		os.Unsetenv("SKEPADB_INDEX_SELF_HEAL_VERBOSE")
	}()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Engine.DataDir != "/tmp/skepadb-test" {
		t.Errorf("expected data dir override, got %s", cfg.Engine.DataDir)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level override, got %s", cfg.Logging.Level)
	}
	if cfg.WAL.CheckpointOnCommit {
		t.Error("expected checkpoint-on-commit override to false")
	}
	if !cfg.Engine.IndexSelfHealVerbose {
		t.Error("expected index-self-heal-verbose override to true")
	}
}
