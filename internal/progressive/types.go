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

package progressive

import (
	"encoding/json"
	"fmt"

	"github.com/tombee/semroute/pkg/catalog"
)

// ParameterValue is one matched parameter persisted across turns.
type ParameterValue struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Description string `json:"description"`
}

// OngoingMatch is the stored partial match for one conversation and
// endpoint pair. Parameters holds the JSON-encoded []ParameterValue.
type OngoingMatch struct {
	ConversationID string `json:"conversation_id"`
	EndpointID     string `json:"endpoint_id"`
	Parameters     string `json:"parameters"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

// MatchedParameters decodes the parameters column.
func (m *OngoingMatch) MatchedParameters() ([]ParameterValue, error) {
	var params []ParameterValue
	if err := json.Unmarshal([]byte(m.Parameters), &params); err != nil {
		return nil, fmt.Errorf("failed to decode stored parameters: %w", err)
	}
	return params, nil
}

// MatchResult reports completion state for an ongoing match.
type MatchResult struct {
	ConversationID       string           `json:"conversation_id"`
	EndpointID           string           `json:"endpoint_id"`
	EndpointDescription  string           `json:"endpoint_description"`
	MatchedParameters    []ParameterValue `json:"matched_parameters"`
	MissingParameters    []string         `json:"missing_parameters"`
	IsComplete           bool             `json:"is_complete"`
	CompletionPercentage float64          `json:"completion_percentage"`
	ReadyForExecution    bool             `json:"ready_for_execution"`
}

// satisfied reports whether a required name is covered by the matched
// set: an exact name match, a matched name listed among the required
// parameter's alternatives, or the required name listed among a matched
// parameter's alternatives.
func satisfied(required string, matched []ParameterValue, params []catalog.Parameter) bool {
	alternatives := make(map[string][]string, len(params))
	for _, p := range params {
		alternatives[p.Name] = p.Alternatives
	}

	for _, m := range matched {
		if m.Name == required {
			return true
		}
		for _, alt := range alternatives[required] {
			if m.Name == alt {
				return true
			}
		}
		for _, alt := range alternatives[m.Name] {
			if alt == required {
				return true
			}
		}
	}

	return false
}
