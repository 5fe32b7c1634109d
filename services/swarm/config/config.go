// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config loads swarm service configuration from an optional
// YAML file with environment-variable overrides. Environment wins over
// file, file wins over defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML files can use human-readable
// forms like "15m" or "90s". Plain integers are taken as nanoseconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("duration must be a string like \"15m\" or an integer: %w", err)
	}
	*d = Duration(n)
	return nil
}

// Config is the swarm service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string `yaml:"port"`

	// DataDir is the BadgerDB directory. Empty means an in-memory
	// store.
	DataDir string `yaml:"data_dir"`

	// RepoPath is the mainline git repository. Empty disables vcs
	// integration.
	RepoPath string `yaml:"repo_path"`

	// WorkspaceRoot is the directory task worktrees are created under.
	WorkspaceRoot string `yaml:"workspace_root"`

	// Mainline is the mainline branch name.
	Mainline string `yaml:"mainline"`

	// Remote is the git remote name.
	Remote string `yaml:"remote"`

	// MaxAttempts caps execution attempts before a task is blocked.
	MaxAttempts uint `yaml:"max_attempts"`

	// RetryCooldown is the blocked-backoff window after exhausting
	// attempts.
	RetryCooldown Duration `yaml:"retry_cooldown"`

	// SweepInterval is the reconciliation sweep period.
	SweepInterval Duration `yaml:"sweep_interval"`

	// InvocationTimeout bounds each backend invocation.
	InvocationTimeout Duration `yaml:"invocation_timeout"`

	// MinScoreChange is the priority rebalance materiality threshold.
	MinScoreChange float64 `yaml:"min_score_change"`

	// CancelledCountsComplete treats cancelled subtasks as complete in
	// the epic completion cascade.
	CancelledCountsComplete bool `yaml:"cancelled_counts_complete"`

	// LogLevel is debug, info, warn, or error.
	LogLevel string `yaml:"log_level"`

	// LogDir enables file logging when set.
	LogDir string `yaml:"log_dir"`

	// OTLPEndpoint is the OTLP gRPC collector address. Empty disables
	// trace export.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Port:              "12300",
		WorkspaceRoot:     "/var/lib/swarm/workspaces",
		Mainline:          "main",
		Remote:            "origin",
		MaxAttempts:       5,
		RetryCooldown:     Duration(15 * time.Minute),
		SweepInterval:     Duration(5 * time.Minute),
		InvocationTimeout: Duration(10 * time.Minute),
		MinScoreChange:    15,
		LogLevel:          "info",
	}
}

// Load builds the configuration: defaults, then the YAML file at path
// (skipped when path is empty or missing), then environment overrides.
//
// # Outputs
//
//   - Config: the effective configuration.
//   - error: Non-nil on unreadable or malformed YAML.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// Optional file; defaults and env still apply.
		case err != nil:
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(raw, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// applyEnv overrides config fields from SWARM_* environment variables.
func applyEnv(cfg *Config) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("SWARM_PORT", &cfg.Port)
	setString("SWARM_DATA_DIR", &cfg.DataDir)
	setString("SWARM_REPO_PATH", &cfg.RepoPath)
	setString("SWARM_WORKSPACE_ROOT", &cfg.WorkspaceRoot)
	setString("SWARM_MAINLINE", &cfg.Mainline)
	setString("SWARM_REMOTE", &cfg.Remote)
	setString("SWARM_LOG_LEVEL", &cfg.LogLevel)
	setString("SWARM_LOG_DIR", &cfg.LogDir)
	setString("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.OTLPEndpoint)

	if v := os.Getenv("SWARM_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil && n > 0 {
			cfg.MaxAttempts = uint(n)
		}
	}
	if v := os.Getenv("SWARM_MIN_SCORE_CHANGE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.MinScoreChange = f
		}
	}
	if v := os.Getenv("SWARM_CANCELLED_COUNTS_COMPLETE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.CancelledCountsComplete = b
		}
	}
	setDuration := func(key string, dst *Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				*dst = Duration(d)
			}
		}
	}
	setDuration("SWARM_RETRY_COOLDOWN", &cfg.RetryCooldown)
	setDuration("SWARM_SWEEP_INTERVAL", &cfg.SweepInterval)
	setDuration("SWARM_INVOCATION_TIMEOUT", &cfg.InvocationTimeout)
}
