package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
)

type registeredStep struct {
	cfg  StepConfig
	step Step
}

// Engine executes registered steps in order over a fresh Context.
type Engine struct {
	models llm.ModelsConfig
	steps  []registeredStep
	eval   *conditionEvaluator
	logger *slog.Logger
}

// NewEngine creates an engine that stamps models into every run context.
func NewEngine(models llm.ModelsConfig) *Engine {
	return &Engine{
		models: models,
		eval:   newConditionEvaluator(),
		logger: slog.Default(),
	}
}

// RegisterStep appends a step in run order. The config must name the step
// it configures; conditions are compiled here so a broken expression fails
// registration instead of the run.
func (e *Engine) RegisterStep(cfg StepConfig, step Step) error {
	if cfg.Name == "" {
		return &errors.ConfigError{Key: "steps.name", Reason: "step name is required"}
	}
	if cfg.Name != step.Name() {
		return &errors.ConfigError{
			Key:    "steps." + cfg.Name,
			Reason: fmt.Sprintf("config names step %q but implementation is %q", cfg.Name, step.Name()),
		}
	}
	if cfg.Condition != "" {
		if err := e.eval.check(cfg.Condition); err != nil {
			return &errors.ConfigError{
				Key:    "steps." + cfg.Name + ".condition",
				Reason: err.Error(),
			}
		}
	}

	e.steps = append(e.steps, registeredStep{cfg: cfg, step: step})
	return nil
}

// Execute runs the registered steps in order and returns the final context.
// Disabled steps and steps whose condition evaluates false are skipped. A
// step that fails all its attempts aborts the run.
func (e *Engine) Execute(ctx context.Context, sentence string, provider llm.Provider) (*Context, error) {
	wctx := &Context{
		Sentence: sentence,
		Provider: provider,
		Models:   e.models,
	}

	for _, entry := range e.steps {
		if !entry.cfg.Enabled {
			e.logger.Debug("step disabled, skipping", "step", entry.cfg.Name)
			continue
		}

		if entry.cfg.Condition != "" {
			run, err := e.eval.evaluate(entry.cfg.Condition, wctx.snapshot())
			if err != nil {
				return nil, fmt.Errorf("evaluate condition for step %s: %w", entry.cfg.Name, err)
			}
			if !run {
				e.logger.Debug("step condition false, skipping",
					"step", entry.cfg.Name,
					"condition", entry.cfg.Condition,
				)
				continue
			}
		}

		if err := e.runStep(ctx, entry, wctx); err != nil {
			return nil, err
		}
	}

	return wctx, nil
}

// runStep executes one step within its retry budget.
func (e *Engine) runStep(ctx context.Context, entry registeredStep, wctx *Context) error {
	ctx, span := otel.Tracer("semroute/workflow").Start(ctx, "workflow."+entry.cfg.Name)
	defer span.End()

	attempts := entry.cfg.Retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	delay := time.Duration(entry.cfg.Retry.DelayMS) * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		start := time.Now()

		err := entry.step.Execute(ctx, wctx)
		if err == nil {
			e.logger.Debug("step completed",
				"step", entry.cfg.Name,
				"attempt", attempt,
				"duration_ms", time.Since(start).Milliseconds(),
			)
			return nil
		}

		lastErr = err
		e.logger.Warn("step failed",
			"step", entry.cfg.Name,
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err,
		)

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	span.SetStatus(codes.Error, lastErr.Error())
	return fmt.Errorf("step %s failed after %d attempts: %w", entry.cfg.Name, attempts, lastErr)
}
