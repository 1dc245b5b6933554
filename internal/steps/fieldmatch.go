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
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/itchyny/gojq"

	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm/tokens"
	"github.com/tombee/semroute/pkg/prompts"
	"github.com/tombee/semroute/pkg/workflow"
)

// FieldMatching reconciles the extracted JSON with the effective parameter
// list, writing resolved values into the context parameters. Direct name
// and alias matches are tried first; the model is only consulted when a
// required parameter is still unfilled.
type FieldMatching struct {
	Prompts   *prompts.Registry
	Estimator *tokens.Estimator
	Logger    *slog.Logger
}

func (s *FieldMatching) Name() string { return NameFieldMatching }

func (s *FieldMatching) Execute(ctx context.Context, wctx *workflow.Context) error {
	if wctx.JSONOutput == nil {
		return fmt.Errorf("JSON output not available")
	}
	if wctx.MatchedEndpoint == nil {
		return fmt.Errorf("Matched endpoint not available")
	}
	if wctx.Parameters == nil {
		wctx.Parameters = append([]catalog.Parameter(nil), wctx.MatchedEndpoint.Parameters...)
	}

	resolved, err := s.resolve(ctx, wctx)
	if err != nil {
		return err
	}

	for i := range wctx.Parameters {
		if value, ok := resolved[wctx.Parameters[i].Name]; ok {
			wctx.Parameters[i].SemanticValue = value
		}
	}

	wctx.AddUsage(s.Estimator.EstimateUsage(wctx.Sentence, "", wctx.Provider.ModelName()))
	return nil
}

// resolve maps parameter names to values, trying direct name and alias
// matches before asking the model.
func (s *FieldMatching) resolve(ctx context.Context, wctx *workflow.Context) (map[string]string, error) {
	fields := extractFields(wctx.JSONOutput)
	if len(fields) == 0 {
		s.Logger.Debug("generated JSON carries no fields to match")
		return map[string]string{}, nil
	}

	direct := directMatches(wctx.Parameters, fields)

	unfilled := 0
	for _, p := range wctx.Parameters {
		if p.Required && strings.TrimSpace(direct[p.Name]) == "" {
			unfilled++
		}
	}
	if unfilled == 0 {
		s.Logger.Debug("all required parameters matched directly", "matched", len(direct))
		return direct, nil
	}

	return s.semanticMatches(ctx, wctx, fields, direct)
}

// directMatches fills parameters whose exact name, or one of their
// aliases, appears as a field key with a usable value.
func directMatches(params []catalog.Parameter, fields map[string]any) map[string]string {
	matches := make(map[string]string, len(params))
	for _, p := range params {
		if raw, ok := fields[p.Name]; ok {
			if v, ok := stringValue(raw); ok {
				matches[p.Name] = v
				continue
			}
		}
		for _, alt := range p.Alternatives {
			if raw, ok := fields[alt]; ok {
				if v, ok := stringValue(raw); ok {
					matches[p.Name] = v
					break
				}
			}
		}
	}
	return matches
}

// semanticMatches asks the model to map leftover fields onto parameter
// names. Direct matches win over the model's answers, and names outside
// the parameter list are ignored.
func (s *FieldMatching) semanticMatches(ctx context.Context, wctx *workflow.Context, fields map[string]any, direct map[string]string) (map[string]string, error) {
	pretty, err := json.MarshalIndent(fields, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode extracted fields: %w", err)
	}

	prompt, err := s.Prompts.Format("match_fields", "", map[string]string{
		"input_fields": string(pretty),
		"parameters":   parameterLines(wctx.Parameters),
	})
	if err != nil {
		return nil, err
	}

	cfg := wctx.Models.For("semantic_match")
	result, err := wctx.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return nil, err
	}

	semantic, err := DecodeModelJSON(result.Content)
	if err != nil {
		return nil, err
	}

	final := make(map[string]string, len(wctx.Parameters))
	for _, p := range wctx.Parameters {
		if v, ok := direct[p.Name]; ok && strings.TrimSpace(v) != "" {
			final[p.Name] = v
			continue
		}
		if raw, ok := semantic[p.Name]; ok {
			if v, ok := stringValue(raw); ok {
				final[p.Name] = v
			}
		}
	}
	return final, nil
}

// parameterLines renders the parameter list for the matching prompt.
func parameterLines(params []catalog.Parameter) string {
	var b strings.Builder
	for i, p := range params {
		if i > 0 {
			b.WriteByte('\n')
		}
		requirement := "optional"
		if p.Required {
			requirement = "REQUIRED"
		}
		fmt.Fprintf(&b, "- %s (%s): %s", p.Name, requirement, p.Description)
		if len(p.Alternatives) > 0 {
			fmt.Fprintf(&b, " [alternatives: %s]", strings.Join(p.Alternatives, ", "))
		}
	}
	return b.String()
}

// fieldsQuery pulls the field map out of either generated shape: the
// {endpoints:[{fields:{...}}]} envelope or a flat object. Malformed
// envelopes resolve to an empty object rather than a query error.
var fieldsQuery = mustCompile(`if (type == "object" and has("endpoints")) then ((try .endpoints[0].fields catch null) // {}) else . end`)

func mustCompile(src string) *gojq.Code {
	query, err := gojq.Parse(src)
	if err != nil {
		panic(err)
	}
	code, err := gojq.Compile(query)
	if err != nil {
		panic(err)
	}
	return code
}

// extractFields returns the field map carried by the generated document,
// or an empty map when it carries none.
func extractFields(doc map[string]any) map[string]any {
	iter := fieldsQuery.Run(doc)
	v, ok := iter.Next()
	if !ok {
		return map[string]any{}
	}
	if _, isErr := v.(error); isErr {
		return map[string]any{}
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return map[string]any{}
}

// stringValue renders an extracted JSON value for parameter filling.
// Strings pass through when non-blank, objects and arrays serialize to
// JSON, and null or blank renderings count as no value.
func stringValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if strings.TrimSpace(v) == "" {
			return "", false
		}
		return v, true
	case map[string]any, []any:
		b, err := json.Marshal(v)
		if err != nil {
			return "", false
		}
		return string(b), true
	default:
		s := strings.Trim(fmt.Sprintf("%v", v), `"`)
		if strings.TrimSpace(s) == "" || s == "null" {
			return "", false
		}
		return s, true
	}
}
