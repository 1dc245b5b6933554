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
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/matching"
)

// Result is the outcome of analyzing one sentence. Every intent produces
// the same shape: conversational answers carry a synthetic endpoint so
// callers render all results the same way.
type Result struct {
	// Endpoint identity and routing data for the selected endpoint.
	EndpointID          string
	EndpointName        string
	EndpointDescription string
	Verb                string
	Base                string
	Path                string
	EssentialPath       string
	APIGroupID          string
	APIGroupName        string

	// Parameters holds the resolved parameter values, including URL path
	// placeholders that still need values.
	Parameters []matching.ParameterMatch

	// MatchingInfo summarizes required and optional parameter coverage.
	MatchingInfo matching.Info

	// UserPrompt asks for the missing required values. Nil when the match
	// is complete or the intent is conversational.
	UserPrompt *string

	// RawJSON is the structured payload handed back to the caller.
	RawJSON map[string]any

	// Usage totals the tokens spent producing this result.
	Usage llm.UsageInfo

	// Intent is the classification the result answers.
	Intent api.Intent
}
