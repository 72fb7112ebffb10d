package app

import (
	"errors"
	"fmt"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPath string   // project file, .hcl or .yaml
	Root       string   // overrides the project root
	Entries    []string // override the entries of every environment
	// Environments selects environments by name. Empty means all.
	Environments []string

	LogFormat       string
	LogLevel        string
	Watch           bool
	HealthcheckPort int
}

func NewConfig(cfg Config) (*Config, error) {
	if cfg.ConfigPath == "" && len(cfg.Entries) == 0 {
		return nil, errors.New("either a config file or at least one entry is required")
	}
	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("invalid healthcheck port %d", cfg.HealthcheckPort)
	}
	if _, ok := parseLevel(cfg.LogLevel); !ok && cfg.LogLevel != "" {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	return &cfg, nil
}
