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

package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/tombee/semroute/internal/steps"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/llm/tokens"
	"github.com/tombee/semroute/pkg/matching"
	"github.com/tombee/semroute/pkg/workflow"
)

// retryDelay separates actionable attempts after a no-match failure.
const retryDelay = 100 * time.Millisecond

// runActionableWithRetry retries the whole pipeline when endpoint matching
// found nothing, since a second model pass often lands on an endpoint. Any
// other failure aborts immediately.
func (a *Analyzer) runActionableWithRetry(ctx context.Context, sentence, email string) (*Result, error) {
	attempts := a.Analysis.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		a.Logger.Info("actionable analysis attempt",
			"attempt", attempt,
			"max_attempts", attempts,
		)

		result, err := a.runActionable(ctx, sentence, email)
		if err == nil {
			return result, nil
		}
		if !errors.IsNoMatch(err) {
			return nil, err
		}

		a.Logger.Warn("endpoint matching found nothing",
			"attempt", attempt,
			"error", err,
		)
		lastErr = err

		if attempt < attempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
		}
	}

	return nil, lastErr
}

// runActionable executes the five-step pipeline once and assembles the
// result from the final workflow context.
func (a *Analyzer) runActionable(ctx context.Context, sentence, email string) (*Result, error) {
	engine := workflow.NewEngine(a.Models)
	err := steps.Register(engine, steps.Deps{
		Catalog:   a.Catalog,
		Email:     email,
		Prompts:   a.Prompts,
		Estimator: a.Estimator,
		Logger:    a.Logger,
	})
	if err != nil {
		return nil, err
	}

	wctx, err := engine.Execute(ctx, sentence, a.Provider)
	if err != nil {
		return nil, err
	}

	ep := wctx.FindEndpoint(wctx.EndpointID)
	if ep == nil {
		return nil, fmt.Errorf("Enhanced endpoint data not found")
	}
	if wctx.JSONOutput == nil {
		return nil, fmt.Errorf("JSON output not available")
	}

	matches := make([]matching.ParameterMatch, 0, len(wctx.Parameters))
	for _, p := range wctx.Parameters {
		m := matching.ParameterMatch{Name: p.Name, Description: p.Description}
		if p.SemanticValue != "" {
			value := p.SemanticValue
			m.Value = &value
		}
		matches = append(matches, m)
	}

	info := matching.Compute(matches, wctx.Parameters)
	input, output := a.finalTokens(sentence, wctx, matches)

	r := &Result{
		Parameters:   matches,
		MatchingInfo: info,
		UserPrompt:   info.UserPrompt(ep.Name),
		RawJSON:      wctx.JSONOutput,
		Usage: llm.UsageInfo{
			InputTokens:  input,
			OutputTokens: output,
			TotalTokens:  input + output,
			Model:        a.Provider.ModelName(),
			// The run aggregates several model calls, so the total is
			// always an estimate.
			Estimated: true,
		},
		Intent: api.IntentActionableRequest,
	}
	endpointIdentity(r, ep)
	return r, nil
}

// finalTokens returns the run's token counts. When the steps tracked no
// output usage the counts are reconstructed: the sentence is charged once
// per model call on the input side, and the output side combines the
// generated content with a reasoning overhead of twice the sentence.
func (a *Analyzer) finalTokens(sentence string, wctx *workflow.Context, matches []matching.ParameterMatch) (uint32, uint32) {
	if wctx.OutputTokens != 0 {
		return wctx.InputTokens, wctx.OutputTokens
	}

	tag := a.Provider.ModelName()
	sentenceTokens := a.Estimator.Estimate(sentence, tag, tokens.DetectLanguage(sentence))

	input := wctx.InputTokens
	if input == 0 {
		// The pipeline makes roughly three model calls over the sentence.
		input = sentenceTokens * 3
	}

	var content strings.Builder
	if encoded, err := json.Marshal(wctx.JSONOutput); err == nil {
		content.Write(encoded)
		content.WriteByte(' ')
	}
	if wctx.EndpointID != "" {
		content.WriteString(wctx.EndpointID)
		content.WriteByte(' ')
	}
	if wctx.EndpointDescription != "" {
		content.WriteString(wctx.EndpointDescription)
		content.WriteByte(' ')
	}
	for _, m := range matches {
		content.WriteString(m.Name)
		content.WriteByte(' ')
		if m.Value != nil {
			content.WriteString(*m.Value)
			content.WriteByte(' ')
		}
	}

	generated := content.String()
	contentTokens := a.Estimator.Estimate(generated, tag, tokens.DetectLanguage(generated))
	output := contentTokens + sentenceTokens*2

	a.Logger.Debug("reconstructed workflow token usage",
		"input_tokens", input,
		"content_tokens", contentTokens,
		"output_tokens", output,
	)
	return input, output
}
