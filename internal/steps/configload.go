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
	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/workflow"
)

// ConfigLoading validates the caller's identity, checks that the endpoint
// service answers, and loads the caller's catalog into the run context.
type ConfigLoading struct {
	Catalog CatalogClient
	Email   string
	Logger  *slog.Logger
}

func (s *ConfigLoading) Name() string { return NameConfigLoading }

func (s *ConfigLoading) Execute(ctx context.Context, wctx *workflow.Context) error {
	if s.Email == "" {
		return fmt.Errorf("Email is required and cannot be empty")
	}
	if err := catalog.ValidateEmail(s.Email); err != nil {
		return err
	}
	wctx.Email = s.Email

	if s.Catalog == nil {
		return fmt.Errorf("No API URL provided")
	}
	if !s.Catalog.Health(ctx) {
		return fmt.Errorf("Remote endpoint service is unavailable")
	}

	endpoints, err := s.Catalog.Fetch(ctx, s.Email)
	if err != nil {
		if errors.IsNotFound(err) {
			return noEndpointsError(s.Email)
		}
		return fmt.Errorf("Failed to fetch enhanced endpoints: %v", err)
	}
	if len(endpoints) == 0 {
		return noEndpointsError(s.Email)
	}

	wctx.Endpoints = endpoints
	s.Logger.Info("endpoint catalog loaded", "email", s.Email, "endpoints", len(endpoints))
	return nil
}

// noEndpointsError is the canonical empty-catalog failure. The RPC layer
// maps its message onto a NotFound status, so the wording is load-bearing.
func noEndpointsError(email string) error {
	return &errors.NotFoundError{
		Resource: "endpoints",
		ID:       email,
		Message:  fmt.Sprintf("No endpoints found for user '%s'. Contact administrator.", email),
	}
}
