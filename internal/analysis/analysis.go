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

// Package analysis orchestrates sentence analysis: a progressive
// follow-up gate, intent classification, and one handler per intent.
//
// A sentence arriving with a conversation id is first checked against the
// progressive store; an incomplete match there turns the sentence into a
// follow-up that only fills parameters. Otherwise the sentence is
// classified and routed: actionable requests run the steps pipeline with
// a retry loop around endpoint matching, help requests get a capabilities
// listing, and general questions get a conversational answer. Actionable
// results that still miss required parameters are saved so the next turn
// can resume them.
package analysis

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/internal/metrics"
	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/internal/steps"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/llm/tokens"
	"github.com/tombee/semroute/pkg/prompts"
)

// Analyzer resolves sentences against the caller's endpoint catalog. The
// zero value is not usable; Provider, Catalog and Prompts are required.
type Analyzer struct {
	// Provider executes all model calls.
	Provider llm.Provider

	// Catalog fetches the caller's endpoints. Nil means no catalog
	// address was configured and every analysis fails fast.
	Catalog steps.CatalogClient

	// Prompts resolves prompt templates by family and version.
	Prompts *prompts.Registry

	// Models selects the per-task model configuration.
	Models llm.ModelsConfig

	// Store persists partial matches across turns. Nil disables
	// progressive matching.
	Store *progressive.Store

	// Analysis carries the retry budget and fallback switch.
	Analysis config.AnalysisConfig

	// Estimator approximates token usage. Defaults to tokens.NewEstimator().
	Estimator *tokens.Estimator

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

func (a *Analyzer) fill() {
	if a.Estimator == nil {
		a.Estimator = tokens.NewEstimator()
	}
	if a.Logger == nil {
		a.Logger = slog.Default()
	}
}

// Analyze resolves one sentence. conversationID may be empty; when set it
// keys the progressive store for follow-up handling and partial saves.
func (a *Analyzer) Analyze(ctx context.Context, sentence, email, conversationID string) (*Result, error) {
	ctx, span := otel.Tracer("semroute/analysis").Start(ctx, "analyze")
	defer span.End()

	result, err := a.analyze(ctx, sentence, email, conversationID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("analysis.intent", result.Intent.String()),
		attribute.String("analysis.endpoint_id", result.EndpointID),
	)
	return result, nil
}

func (a *Analyzer) analyze(ctx context.Context, sentence, email, conversationID string) (*Result, error) {
	a.fill()

	if email == "" {
		return nil, fmt.Errorf("Email is required")
	}
	if err := catalog.ValidateEmail(email); err != nil {
		return nil, err
	}
	if a.Catalog == nil {
		return nil, fmt.Errorf("No API URL provided")
	}

	a.Logger.Info("starting sentence analysis",
		"retry_attempts", a.Analysis.RetryAttempts,
		"conversation_id", conversationID,
	)

	// An incomplete match for this conversation outranks everything
	// else: the sentence is treated as the answer to our last prompt. A
	// follow-up that cannot be applied falls through to the normal flow.
	if conversationID != "" && a.Store != nil {
		ongoing, err := a.Store.GetIncomplete(ctx, conversationID)
		switch {
		case err != nil:
			a.Logger.Warn("progressive match lookup failed, continuing with normal flow", "error", err)
		case ongoing != nil:
			a.Logger.Info("found ongoing progressive match", "endpoint_id", ongoing.EndpointID)
			result, err := a.runFollowup(ctx, sentence, conversationID, email, ongoing)
			if err == nil {
				metrics.RecordAnalysis(result.Intent.String(), "success")
				return result, nil
			}
			a.Logger.Warn("progressive follow-up failed, continuing with normal flow", "error", err)
		default:
			a.Logger.Debug("no ongoing progressive match", "conversation_id", conversationID)
		}
	}

	endpoints, err := a.Catalog.Fetch(ctx, email)
	if err != nil {
		metrics.RecordAnalysis("unknown", "error")
		return nil, err
	}

	intent, err := a.classifyIntent(ctx, sentence, endpoints)
	if err != nil {
		metrics.RecordAnalysis("unknown", "error")
		return nil, err
	}

	var result *Result
	switch intent {
	case api.IntentActionableRequest:
		a.Logger.Info("processing as actionable request")
		result, err = a.runActionableWithRetry(ctx, sentence, email)
		if err != nil && a.Analysis.FallbackToGeneral {
			a.Logger.Warn("actionable analysis failed, falling back to conversational answer", "error", err)
			result, err = a.runFallback(ctx, sentence)
		}
	case api.IntentHelpRequest:
		a.Logger.Info("processing as help request")
		result, err = a.runHelp(ctx, sentence, endpoints)
	default:
		a.Logger.Info("processing as general question")
		result, err = a.runGeneral(ctx, sentence)
	}
	if err != nil {
		metrics.RecordAnalysis(intent.String(), "error")
		return nil, err
	}

	a.savePartial(ctx, conversationID, result)

	metrics.RecordAnalysis(result.Intent.String(), "success")
	return result, nil
}

// savePartial persists the filled parameters of an incomplete actionable
// result so the next turn can resume it. Persistence failures are logged
// and swallowed so a storage hiccup never fails a finished analysis.
func (a *Analyzer) savePartial(ctx context.Context, conversationID string, result *Result) {
	if a.Store == nil || conversationID == "" {
		return
	}
	if result.Intent != api.IntentActionableRequest {
		return
	}
	if result.MatchingInfo.CompletionPercentage >= 100 {
		return
	}

	filled := make([]progressive.ParameterValue, 0, len(result.Parameters))
	for _, m := range result.Parameters {
		if !m.Filled() {
			continue
		}
		filled = append(filled, progressive.ParameterValue{
			Name:        m.Name,
			Value:       *m.Value,
			Description: m.Description,
		})
	}

	if err := a.Store.Update(ctx, conversationID, result.EndpointID, filled); err != nil {
		a.Logger.Warn("failed to save partial match",
			"conversation_id", conversationID,
			"endpoint_id", result.EndpointID,
			"error", err,
		)
		return
	}

	a.Logger.Debug("saved partial match",
		"conversation_id", conversationID,
		"endpoint_id", result.EndpointID,
		"parameter_count", len(filled),
	)
}
