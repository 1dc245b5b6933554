// Package workflow runs an ordered sequence of analysis steps over a
// shared per-run context.
//
// Steps are registered with a declarative config (enabled flag, optional
// gate condition, retry budget) and executed in registration order. The
// engine owns the run context; steps communicate by reading and mutating
// it. A step that exhausts its retry budget aborts the run.
package workflow

import (
	"context"
)

// Step is one unit of work in an analysis run.
type Step interface {
	// Execute runs the step, reading and mutating wctx.
	Execute(ctx context.Context, wctx *Context) error

	// Name returns the step's registration name.
	Name() string
}

// RetryConfig bounds per-step retries. MaxAttempts below 1 means one
// attempt; DelayMS is the pause between attempts.
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts"`
	DelayMS     int `yaml:"delay_ms" json:"delay_ms"`
}

// StepConfig declares how one registered step runs.
type StepConfig struct {
	Name    string `yaml:"name" json:"name"`
	Enabled bool   `yaml:"enabled" json:"enabled"`

	// Condition optionally gates the step with an expression evaluated
	// against the run snapshot. Empty means always run.
	Condition string `yaml:"condition,omitempty" json:"condition,omitempty"`

	Retry RetryConfig `yaml:"retry" json:"retry"`
}

// Config is a workflow declaration, one entry per step in run order.
type Config struct {
	Steps []StepConfig `yaml:"steps" json:"steps"`
}
