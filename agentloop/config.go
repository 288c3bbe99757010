package agentloop

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override of SessionConfig.
const EnvPrefix = "NANOCODE_"

// DefaultContextWindow is used when the model is not in the catalog.
const DefaultContextWindow = 200000

// SessionConfig holds configuration for a session.
type SessionConfig struct {
	// MaxToolRoundsPerInput bounds tool round-trips per user input; 0 = unlimited.
	MaxToolRoundsPerInput int            `yaml:"max_tool_rounds_per_input" env:"MAX_TOOL_ROUNDS"`
	CommandTimeout        time.Duration  `yaml:"command_timeout" env:"COMMAND_TIMEOUT"`
	ToolOutputLimits      map[string]int `yaml:"tool_output_limits,omitempty" env:"TOOL_OUTPUT_LIMITS"`
	ToolLineLimits        map[string]int `yaml:"tool_line_limits,omitempty" env:"TOOL_LINE_LIMITS"`
	EnableLoopDetection   bool           `yaml:"enable_loop_detection" env:"ENABLE_LOOP_DETECTION"`
	LoopDetectionWindow   int            `yaml:"loop_detection_window" env:"LOOP_DETECTION_WINDOW"`
	// ContextWindow in tokens; 0 means the caller derives it from the model.
	ContextWindow int `yaml:"context_window" env:"CONTEXT_WINDOW"`
}

// DefaultSessionConfig returns the default configuration.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxToolRoundsPerInput: 50,
		CommandTimeout:        DefaultCommandTimeout,
		EnableLoopDetection:   true,
		LoopDetectionWindow:   10,
	}
}

// LoadSessionConfig starts from DefaultSessionConfig, applies the YAML file at
// path (skipped when path is empty), then applies NANOCODE_* variables from
// environ.
func LoadSessionConfig(path string, environ map[string]string) (SessionConfig, error) {
	cfg := DefaultSessionConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read session config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse session config %s: %w", path, err)
		}
	}

	if err := env.ParseWithOptions(&cfg, env.Options{
		Environment: environ,
		Prefix:      EnvPrefix,
	}); err != nil {
		return cfg, fmt.Errorf("session config environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate rejects values the session cannot run with.
func (c SessionConfig) Validate() error {
	var errs []error
	if c.MaxToolRoundsPerInput < 0 {
		errs = append(errs, fmt.Errorf("max_tool_rounds_per_input must be >= 0, got %d", c.MaxToolRoundsPerInput))
	}
	if c.CommandTimeout < 0 {
		errs = append(errs, fmt.Errorf("command_timeout must be >= 0, got %s", c.CommandTimeout))
	}
	if c.EnableLoopDetection && c.LoopDetectionWindow < 2 {
		errs = append(errs, fmt.Errorf("loop_detection_window must be >= 2, got %d", c.LoopDetectionWindow))
	}
	if c.ContextWindow < 0 {
		errs = append(errs, fmt.Errorf("context_window must be >= 0, got %d", c.ContextWindow))
	}
	return errors.Join(errs...)
}
