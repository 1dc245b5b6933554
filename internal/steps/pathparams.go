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

	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/workflow"
)

// PathParams builds the effective parameter list for the matched endpoint:
// the declared parameters plus a synthetic required parameter for every
// {placeholder} in the URL path the catalog did not declare.
type PathParams struct {
	Logger *slog.Logger
}

func (s *PathParams) Name() string { return NamePathParams }

func (s *PathParams) Execute(ctx context.Context, wctx *workflow.Context) error {
	if wctx.EndpointID == "" {
		return fmt.Errorf("Endpoint ID not available")
	}
	if len(wctx.Endpoints) == 0 {
		return fmt.Errorf("Enhanced endpoints not available")
	}
	ep := wctx.FindEndpoint(wctx.EndpointID)
	if ep == nil {
		return fmt.Errorf("Enhanced endpoint not found")
	}

	params := make([]catalog.Parameter, len(ep.Parameters))
	copy(params, ep.Parameters)

	for _, name := range catalog.PathParams(ep.Path) {
		if hasParameter(params, name) {
			continue
		}
		s.Logger.Debug("adding path parameter", "endpoint_id", ep.ID, "name", name)
		params = append(params, catalog.Parameter{
			Name:        name,
			Description: catalog.PathParamDescription(name),
			Required:    true,
		})
	}

	wctx.Parameters = params
	return nil
}

func hasParameter(params []catalog.Parameter, name string) bool {
	for i := range params {
		if params[i].Name == name {
			return true
		}
	}
	return false
}
