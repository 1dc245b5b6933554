// Copyright 2025 Tom Barlow
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package steps implements the sentence-analysis pipeline: loading the
// caller's endpoint catalog, selecting the endpoint that serves the
// sentence, discovering URL path parameters, extracting parameter values
// as JSON, and reconciling those values against the endpoint's parameter
// list.
//
// The steps run on a workflow.Engine in a fixed order:
//
//	enhanced_configuration_loading
//	endpoint_matching
//	path_parameter_extraction
//	json_generation
//	field_matching
//
// Each step reads and mutates the shared workflow.Context; the engine
// owns retry budgets and gate conditions.
package steps

import (
	"context"
	"log/slog"
	"time"

	"github.com/tombee/semroute/internal/metrics"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm/tokens"
	"github.com/tombee/semroute/pkg/prompts"
	"github.com/tombee/semroute/pkg/workflow"
)

// Step registration names, in run order.
const (
	NameConfigLoading    = "enhanced_configuration_loading"
	NameEndpointMatching = "endpoint_matching"
	NamePathParams       = "path_parameter_extraction"
	NameJSONGeneration   = "json_generation"
	NameFieldMatching    = "field_matching"
)

// CatalogClient is the slice of the catalog client the loading step uses.
type CatalogClient interface {
	// Health reports whether the endpoint service answers.
	Health(ctx context.Context) bool

	// Fetch returns the flattened endpoint catalog for one caller.
	Fetch(ctx context.Context, email string) ([]catalog.Endpoint, error)
}

// Deps carries the collaborators shared by the steps of one run.
type Deps struct {
	// Catalog fetches the caller's endpoints. Nil means no catalog
	// address was configured.
	Catalog CatalogClient

	// Email identifies the caller.
	Email string

	// Prompts resolves prompt templates by family and version.
	Prompts *prompts.Registry

	// Estimator approximates per-step token usage. Defaults to
	// tokens.NewEstimator().
	Estimator *tokens.Estimator

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (d *Deps) fill() {
	if d.Estimator == nil {
		d.Estimator = tokens.NewEstimator()
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
}

// DefaultConfigs returns the step order with its standard retry budgets.
func DefaultConfigs() []workflow.StepConfig {
	return []workflow.StepConfig{
		{Name: NameConfigLoading, Enabled: true, Retry: workflow.RetryConfig{MaxAttempts: 3, DelayMS: 1000}},
		{Name: NameEndpointMatching, Enabled: true, Retry: workflow.RetryConfig{MaxAttempts: 2, DelayMS: 500}},
		{Name: NamePathParams, Enabled: true, Retry: workflow.RetryConfig{MaxAttempts: 1}},
		{Name: NameJSONGeneration, Enabled: true, Retry: workflow.RetryConfig{MaxAttempts: 3, DelayMS: 1000}},
		{Name: NameFieldMatching, Enabled: true, Retry: workflow.RetryConfig{MaxAttempts: 2, DelayMS: 500}},
	}
}

// Register wires the five steps onto the engine in run order, each wrapped
// with duration and retry metrics.
func Register(engine *workflow.Engine, deps Deps) error {
	deps.fill()

	byName := map[string]workflow.Step{
		NameConfigLoading:    &ConfigLoading{Catalog: deps.Catalog, Email: deps.Email, Logger: deps.Logger},
		NameEndpointMatching: &EndpointMatching{Prompts: deps.Prompts, Estimator: deps.Estimator, Logger: deps.Logger},
		NamePathParams:       &PathParams{Logger: deps.Logger},
		NameJSONGeneration:   &JSONGeneration{Prompts: deps.Prompts, Estimator: deps.Estimator, Logger: deps.Logger},
		NameFieldMatching:    &FieldMatching{Prompts: deps.Prompts, Estimator: deps.Estimator, Logger: deps.Logger},
	}

	for _, cfg := range DefaultConfigs() {
		step, ok := byName[cfg.Name]
		if !ok {
			return &errors.ConfigError{Key: "steps." + cfg.Name, Reason: "unknown step"}
		}
		if err := engine.RegisterStep(cfg, instrumented{step}); err != nil {
			return err
		}
	}
	return nil
}

// instrumented records step duration and failed attempts.
type instrumented struct {
	inner workflow.Step
}

func (s instrumented) Name() string { return s.inner.Name() }

func (s instrumented) Execute(ctx context.Context, wctx *workflow.Context) error {
	start := time.Now()
	err := s.inner.Execute(ctx, wctx)
	metrics.ObserveStepDuration(s.inner.Name(), time.Since(start).Seconds())
	if err != nil {
		metrics.RecordStepRetry(s.inner.Name())
	}
	return err
}
