package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable holding an explicit config
// file path. When set it takes priority over workspace discovery.
const EnvConfigPath = "AIDDFLOW_CONFIG_PATH"

// configFileName is the workspace-local config file searched by [Loader.Load].
const configFileName = "aiddflow.yaml"

// Loader loads configuration using Viper.
//
// Use [NewLoader] to create one, then [Loader.Load] for the standard
// discovery chain or [Loader.LoadFromFile] for an explicit path.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a [Loader] with defaults and environment binding applied.
func NewLoader() *Loader {
	v := viper.New()
	v.SetEnvPrefix("AIDDFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Load resolves and loads configuration from the discovery chain: the
// AIDDFLOW_CONFIG_PATH file when set, otherwise ./aiddflow.yaml when present,
// otherwise defaults alone. Environment variables override file values.
func (l *Loader) Load() (*Config, error) {
	if path := os.Getenv(EnvConfigPath); path != "" {
		return l.LoadFromFile(path)
	}
	if _, err := os.Stat(configFileName); err == nil {
		return l.LoadFromFile(configFileName)
	}
	return l.unmarshal()
}

// LoadFromFile loads configuration from an explicit file path, layered over
// defaults and under environment overrides.
func (l *Loader) LoadFromFile(path string) (*Config, error) {
	l.v.SetConfigFile(path)
	if ext := strings.TrimPrefix(filepath.Ext(path), "."); ext != "" {
		l.v.SetConfigType(ext)
	}
	if err := l.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	return l.unmarshal()
}

func (l *Loader) unmarshal() (*Config, error) {
	cfg := DefaultConfig()
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults backfills zero values a partial config file may have left.
func applyDefaults(cfg *Config) {
	def := DefaultConfig()
	if cfg.Workspace.DocsDir == "" {
		cfg.Workspace.DocsDir = def.Workspace.DocsDir
	}
	if cfg.Workspace.ReportsDir == "" {
		cfg.Workspace.ReportsDir = def.Workspace.ReportsDir
	}
	if cfg.Workspace.LedgerPath == "" {
		cfg.Workspace.LedgerPath = def.Workspace.LedgerPath
	}
	if cfg.Output.TruncateLines == 0 {
		cfg.Output.TruncateLines = def.Output.TruncateLines
	}
	if cfg.Output.TruncateLength == 0 {
		cfg.Output.TruncateLength = def.Output.TruncateLength
	}
	if len(cfg.Operations) == 0 {
		cfg.Operations = def.Operations
	}
}
