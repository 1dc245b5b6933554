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
	"fmt"
	"sort"
	"strings"

	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/internal/steps"
	"github.com/tombee/semroute/pkg/catalog"
)

// runFollowup treats the sentence as a follow-up to an ongoing partial
// match: it extracts parameter values from the reply, folds them into the
// stored match, and reports whether the endpoint is now ready to call.
func (a *Analyzer) runFollowup(ctx context.Context, sentence, conversationID, email string, ongoing *progressive.OngoingMatch) (*Result, error) {
	endpoints, err := a.Catalog.Fetch(ctx, email)
	if err != nil {
		return nil, err
	}

	ep := catalog.FindByID(endpoints, ongoing.EndpointID)
	if ep == nil {
		return nil, fmt.Errorf("Endpoint %s not found", ongoing.EndpointID)
	}
	a.Logger.Info("processing progressive follow-up",
		"endpoint_id", ep.ID,
		"parameter_count", len(ep.Parameters),
	)

	extracted, err := a.extractFollowupParameters(ctx, sentence, ep.Parameters)
	if err != nil {
		return nil, err
	}
	if len(extracted) == 0 {
		return nil, fmt.Errorf("No parameters could be extracted from the follow-up message")
	}
	a.Logger.Info("extracted follow-up parameters", "count", len(extracted))

	if err := a.Store.Update(ctx, conversationID, ongoing.EndpointID, extracted); err != nil {
		return nil, err
	}

	var requiredNames []string
	for _, p := range ep.Parameters {
		if p.Required {
			requiredNames = append(requiredNames, p.Name)
		}
	}

	res, err := a.Store.CheckCompletion(ctx, conversationID, ongoing.EndpointID, requiredNames, ep.Parameters)
	if err != nil {
		return nil, err
	}
	a.Logger.Info("progressive completion checked",
		"completion_percentage", res.CompletionPercentage,
		"is_complete", res.IsComplete,
	)

	if res.IsComplete {
		if err := a.Store.Complete(ctx, conversationID, ongoing.EndpointID); err != nil {
			return nil, err
		}
		return progressiveCompleteResult(ep, res), nil
	}

	return progressivePartialResult(ep, res), nil
}

// extractFollowupParameters pulls parameter values out of a follow-up
// reply. Only string values for declared parameter names survive; the
// model may echo parameters the reply never mentioned, so everything else
// is dropped.
func (a *Analyzer) extractFollowupParameters(ctx context.Context, sentence string, params []catalog.Parameter) ([]progressive.ParameterValue, error) {
	lines := make([]string, 0, len(params))
	for _, p := range params {
		lines = append(lines, fmt.Sprintf("%s: %s", p.Name, p.Description))
	}

	prompt, err := a.Prompts.Format("extract_followup_parameters_mapping", "", map[string]string{
		"sentence":             sentence,
		"available_parameters": strings.Join(lines, "\n"),
	})
	if err != nil {
		return nil, err
	}

	cfg := a.Models.For("extract_followup_parameters_mapping")
	res, err := a.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return nil, err
	}

	decoded, err := steps.DecodeModelJSON(res.Content)
	if err != nil {
		return nil, err
	}

	declared := make(map[string]bool, len(params))
	for _, p := range params {
		declared[p.Name] = true
	}

	keys := make([]string, 0, len(decoded))
	for key := range decoded {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	var extracted []progressive.ParameterValue
	for _, key := range keys {
		value, ok := decoded[key].(string)
		if !ok || strings.TrimSpace(value) == "" || !declared[key] {
			continue
		}
		extracted = append(extracted, progressive.ParameterValue{
			Name:        key,
			Value:       strings.TrimSpace(value),
			Description: fmt.Sprintf("User provided value for %s", key),
		})
	}

	return extracted, nil
}
