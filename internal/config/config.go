// Package config provides configuration loading for lintfix.
package config

import (
	"fmt"

	"github.com/tosin2013/aider-lint-fixer/internal/force"
	"github.com/tosin2013/aider-lint-fixer/internal/logging"
	"github.com/tosin2013/aider-lint-fixer/internal/loop"
	"github.com/tosin2013/aider-lint-fixer/internal/telemetry"
)

// Config is the full lintfix configuration tree.
type Config struct {
	// StateDir holds session history and the adaptive threshold, relative
	// to the project root unless absolute.
	StateDir string `koanf:"state_dir"`

	Budget    BudgetConfig      `koanf:"budget"`
	Force     *force.Config     `koanf:"force"`
	Loop      *loop.Config      `koanf:"loop"`
	Logging   *logging.Config   `koanf:"logging"`
	Telemetry *telemetry.Config `koanf:"telemetry"`
}

// BudgetConfig bounds the spend of one session. A zero total disables
// budget enforcement.
type BudgetConfig struct {
	Total float64 `koanf:"total"`
}

// DefaultConfig returns the full default tree.
func DefaultConfig() *Config {
	return &Config{
		StateDir:  ".lintfix",
		Force:     force.DefaultConfig(),
		Loop:      loop.DefaultConfig(),
		Logging:   logging.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	if c.StateDir == "" {
		return fmt.Errorf("state_dir cannot be empty")
	}
	if c.Budget.Total < 0 {
		return fmt.Errorf("budget.total cannot be negative, got %v", c.Budget.Total)
	}
	if err := c.Force.Validate(); err != nil {
		return fmt.Errorf("force: %w", err)
	}
	if err := c.Loop.Validate(); err != nil {
		return fmt.Errorf("loop: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Telemetry.Validate(); err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	return nil
}
