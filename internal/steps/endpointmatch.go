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
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm/tokens"
	"github.com/tombee/semroute/pkg/prompts"
	"github.com/tombee/semroute/pkg/workflow"
)

// EndpointMatching asks the model which catalog endpoint serves the
// sentence and records the selection on the context.
type EndpointMatching struct {
	Prompts   *prompts.Registry
	Estimator *tokens.Estimator
	Logger    *slog.Logger
}

func (s *EndpointMatching) Name() string { return NameEndpointMatching }

func (s *EndpointMatching) Execute(ctx context.Context, wctx *workflow.Context) error {
	if len(wctx.Endpoints) == 0 {
		return fmt.Errorf("Endpoints config not loaded")
	}

	match, err := s.selectEndpoint(ctx, wctx)
	if err != nil {
		return err
	}

	wctx.EndpointID = match.ID
	wctx.EndpointDescription = match.Description
	wctx.MatchedEndpoint = match

	wctx.AddUsage(s.Estimator.EstimateUsage(wctx.Sentence, "", wctx.Provider.ModelName()))
	return nil
}

// selectEndpoint resolves the model's reply to a catalog entry. The reply
// must be a bare endpoint id or the literal NO_MATCH; an id that matches
// no entry exactly falls back to a case-insensitive substring comparison
// in both directions before the run is declared unmatchable.
func (s *EndpointMatching) selectEndpoint(ctx context.Context, wctx *workflow.Context) (*catalog.Endpoint, error) {
	var list strings.Builder
	for i := range wctx.Endpoints {
		fmt.Fprintf(&list, "- %s (%s)\n", wctx.Endpoints[i].ID, wctx.Endpoints[i].Description)
	}

	prompt, err := s.Prompts.Format("find_endpoint", "", map[string]string{
		"input_sentence": wctx.Sentence,
		"endpoints_list": list.String(),
	})
	if err != nil {
		return nil, err
	}

	cfg := wctx.Models.For("find_endpoint")
	result, err := wctx.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return nil, err
	}
	log.Trace(s.Logger, "endpoint selection exchange",
		slog.String("prompt", prompt),
		slog.String("reply", result.Content))

	id := strings.TrimSpace(result.Content)
	if id == "" || id == "NO_MATCH" {
		return nil, &errors.NoMatchError{Input: wctx.Sentence}
	}

	if ep := catalog.FindByID(wctx.Endpoints, id); ep != nil {
		s.Logger.Info("endpoint matched", "endpoint_id", ep.ID)
		return ep, nil
	}

	lower := strings.ToLower(id)
	for i := range wctx.Endpoints {
		epLower := strings.ToLower(wctx.Endpoints[i].ID)
		if strings.Contains(epLower, lower) || strings.Contains(lower, epLower) {
			s.Logger.Warn("endpoint id resolved by substring fallback",
				"returned", id,
				"endpoint_id", wctx.Endpoints[i].ID,
			)
			return &wctx.Endpoints[i], nil
		}
	}

	return nil, &errors.NoMatchError{
		Input: wctx.Sentence,
		Message: fmt.Sprintf("Endpoint ID '%s' not found in available endpoints. Available IDs: [%s]",
			id, strings.Join(catalog.IDs(wctx.Endpoints), ", ")),
	}
}
