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

package llm

import (
	"context"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TrackedProvider wraps a Provider and accumulates token totals for the
// lifetime of the process. Per-request accounting lives on the workflow
// context; these totals feed the OnUsage metrics hook and the daemon's
// shutdown usage summary.
type TrackedProvider struct {
	inner Provider

	mu           sync.Mutex
	totalInput   uint32
	totalOutput  uint32
	requestCount uint64

	// OnUsage, when set, observes every successful call. Used to feed
	// request metrics without coupling this package to the collector.
	OnUsage func(provider string, usage UsageInfo)
}

// NewTrackedProvider wraps inner with usage accounting.
func NewTrackedProvider(inner Provider) *TrackedProvider {
	return &TrackedProvider{inner: inner}
}

// ModelName delegates to the wrapped provider.
func (t *TrackedProvider) ModelName() string {
	return t.inner.ModelName()
}

// Generate delegates to the wrapped provider and adds the reported usage
// to the running totals. Failed calls contribute nothing.
func (t *TrackedProvider) Generate(ctx context.Context, prompt string, cfg *ModelConfig) (*GenerationResult, error) {
	ctx, span := otel.Tracer("semroute/llm").Start(ctx, "provider.generate")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.provider", t.inner.ModelName()),
		attribute.Int("llm.prompt_length", len(prompt)),
	)

	slog.Debug("tracked provider call", "provider", t.inner.ModelName(), "prompt_len", len(prompt))

	result, err := t.inner.Generate(ctx, prompt, cfg)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.Int("llm.input_tokens", int(result.Usage.InputTokens)),
		attribute.Int("llm.output_tokens", int(result.Usage.OutputTokens)),
	)

	t.mu.Lock()
	t.totalInput += result.Usage.InputTokens
	t.totalOutput += result.Usage.OutputTokens
	t.requestCount++
	input, output := t.totalInput, t.totalOutput
	t.mu.Unlock()

	slog.Debug("tracked provider usage",
		"provider", t.inner.ModelName(),
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
		"total_input", input,
		"total_output", output,
	)

	if t.OnUsage != nil {
		t.OnUsage(t.inner.ModelName(), result.Usage)
	}

	return result, nil
}

// TotalUsage returns the accumulated input and output token counts.
func (t *TrackedProvider) TotalUsage() (input, output uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totalInput, t.totalOutput
}

// RequestCount returns how many successful calls have been recorded.
func (t *TrackedProvider) RequestCount() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.requestCount
}

var _ Provider = (*TrackedProvider)(nil)
