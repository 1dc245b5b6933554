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

package steps

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tombee/semroute/internal/log"
	"github.com/tombee/semroute/pkg/llm/tokens"
	"github.com/tombee/semroute/pkg/prompts"
	"github.com/tombee/semroute/pkg/workflow"
)

// JSONGeneration extracts parameter values from the sentence as a JSON
// object. With a matched endpoint it requests a flat value object
// constrained to the effective parameter list; without one it falls back
// to the general endpoints-and-fields envelope.
type JSONGeneration struct {
	Prompts   *prompts.Registry
	Estimator *tokens.Estimator
	Logger    *slog.Logger
}

func (s *JSONGeneration) Name() string { return NameJSONGeneration }

func (s *JSONGeneration) Execute(ctx context.Context, wctx *workflow.Context) error {
	var (
		out map[string]any
		err error
	)
	if wctx.MatchedEndpoint != nil {
		out, err = s.generateForEndpoint(ctx, wctx)
	} else {
		out, err = s.generateGeneral(ctx, wctx)
	}
	if err != nil {
		return err
	}

	wctx.JSONOutput = out
	wctx.AddUsage(s.Estimator.EstimateUsage(wctx.Sentence, "", wctx.Provider.ModelName()))
	return nil
}

// generateForEndpoint runs the v2 prompt constrained to the effective
// parameter list and keeps only known, filled values.
func (s *JSONGeneration) generateForEndpoint(ctx context.Context, wctx *workflow.Context) (map[string]any, error) {
	params := wctx.Parameters
	if len(params) == 0 {
		params = wctx.MatchedEndpoint.Parameters
	}

	var required, optional []string
	for _, p := range params {
		line := fmt.Sprintf("- %s: %s", p.Name, p.Description)
		if p.Required {
			required = append(required, line)
		} else {
			optional = append(optional, line)
		}
	}

	prompt, err := s.Prompts.Format("sentence_to_json", "v2", map[string]string{
		"sentence":             wctx.Sentence,
		"endpoint_description": wctx.MatchedEndpoint.Description,
		"required_params":      parameterBlock(required),
		"optional_params":      parameterBlock(optional),
	})
	if err != nil {
		return nil, err
	}

	cfg := wctx.Models.For("sentence_to_json")
	result, err := wctx.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return nil, err
	}

	log.Trace(s.Logger, "parameter extraction exchange",
		slog.String("prompt", prompt),
		slog.String("reply", result.Content))

	doc, err := DecodeModelJSON(result.Content)
	if err != nil {
		return nil, err
	}

	known := make(map[string]bool, len(params))
	for _, p := range params {
		known[p.Name] = true
	}

	out := make(map[string]any, len(doc))
	for key, value := range doc {
		if !known[key] {
			s.Logger.Debug("dropping extracted field not in parameter list", "field", key)
			continue
		}
		if _, ok := stringValue(value); !ok {
			continue
		}
		out[key] = value
	}
	return out, nil
}

// generateGeneral runs the v1 prompt and validates the enveloped shape.
func (s *JSONGeneration) generateGeneral(ctx context.Context, wctx *workflow.Context) (map[string]any, error) {
	prompt, err := s.Prompts.Format("sentence_to_json", "v1", map[string]string{
		"sentence": wctx.Sentence,
	})
	if err != nil {
		return nil, err
	}

	cfg := wctx.Models.For("sentence_to_json")
	result, err := wctx.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return nil, err
	}

	doc, err := DecodeModelJSON(result.Content)
	if err != nil {
		return nil, err
	}

	raw, ok := doc["endpoints"]
	if !ok {
		return nil, fmt.Errorf("Invalid JSON structure: missing 'endpoints' array")
	}
	arr, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("Invalid JSON structure: 'endpoints' is not an array")
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("Invalid JSON structure: 'endpoints' array is empty")
	}
	return doc, nil
}

func parameterBlock(lines []string) string {
	if len(lines) == 0 {
		return "(none)"
	}
	return strings.Join(lines, "\n")
}
