// Package config loads runtime configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/parapet-labs/parapet/pkg/contracts"
	"github.com/parapet-labs/parapet/pkg/diff"
	"github.com/parapet-labs/parapet/pkg/guardian"
)

// Config holds the governance runtime configuration.
type Config struct {
	// DataRoot is the directory the record store operates under.
	DataRoot string `yaml:"data_root"`

	// TrustStorePath and RuleSetPath are resolved relative to the
	// process working directory, not DataRoot.
	TrustStorePath string `yaml:"trust_store_path"`
	RuleSetPath    string `yaml:"rule_set_path"`

	// TrustedVerifiers lists agent key ids allowed to cosign leases.
	TrustedVerifiers []string `yaml:"trusted_verifiers"`

	Proposal      ProposalConfig        `yaml:"proposal"`
	DefaultLimits contracts.LeaseLimits `yaml:"default_limits"`
	Halt          guardian.Thresholds   `yaml:"halt"`

	LogLevel string `yaml:"log_level"`
}

// ProposalConfig caps proposal size before scanning.
type ProposalConfig struct {
	MaxLines int `yaml:"max_lines"`
	MaxBytes int `yaml:"max_bytes"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		DataRoot:       "data",
		TrustStorePath: "trust_store.json",
		RuleSetPath:    "",
		Proposal:       ProposalConfig{MaxLines: 500, MaxBytes: 256 * 1024},
		DefaultLimits: contracts.LeaseLimits{
			WallclockTimeoutS: 600,
			CPUPctMax:         80,
			MemMBMax:          1024,
		},
		Halt:     guardian.DefaultThresholds(),
		LogLevel: "INFO",
	}
}

// Load reads the YAML file at path when it exists, then applies
// environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		raw, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return nil, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(raw, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("PARAPET_DATA_ROOT"); v != "" {
		cfg.DataRoot = v
	}
	if v := os.Getenv("PARAPET_TRUST_STORE"); v != "" {
		cfg.TrustStorePath = v
	}
	if v := os.Getenv("PARAPET_RULE_SET"); v != "" {
		cfg.RuleSetPath = v
	}
	if v := os.Getenv("PARAPET_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("PARAPET_MAX_PROPOSAL_LINES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Proposal.MaxLines = n
		}
	}
	if v := os.Getenv("PARAPET_MAX_PROPOSAL_BYTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Proposal.MaxBytes = n
		}
	}
	if v := os.Getenv("PARAPET_LEASE_TIMEOUT_S"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.DefaultLimits.WallclockTimeoutS = n
		}
	}
}

// DiffLimits adapts the proposal ceilings to the diff builder's form.
func (c *Config) DiffLimits() diff.Limits {
	return diff.Limits{MaxLines: c.Proposal.MaxLines, MaxBytes: c.Proposal.MaxBytes}
}
