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
	"fmt"
	"strings"

	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/matching"
)

// conversationalInfo is the coverage summary for intents that carry no
// endpoint parameters.
func conversationalInfo() matching.Info {
	return matching.Info{
		Status:               matching.StatusComplete,
		CompletionPercentage: 100,
		MissingRequired:      []matching.MissingField{},
		MissingOptional:      []matching.MissingField{},
	}
}

// withPathParameters appends URL path placeholders the match set does not
// cover yet, both as unfilled matches and as required parameters. The
// progressive store only tracks declared parameters, so placeholders have
// to be folded back in before coverage is computed.
func withPathParameters(ep *catalog.Endpoint, matches []matching.ParameterMatch) ([]matching.ParameterMatch, []catalog.Parameter) {
	allMatches := append([]matching.ParameterMatch(nil), matches...)
	allParams := append([]catalog.Parameter(nil), ep.Parameters...)

	for _, name := range catalog.PathParams(ep.Path) {
		if !hasMatch(allMatches, name) {
			allMatches = append(allMatches, matching.ParameterMatch{
				Name:        name,
				Description: catalog.PathParamDescription(name),
			})
		}
		if !hasParameter(allParams, name) {
			allParams = append(allParams, catalog.Parameter{
				Name:        name,
				Description: catalog.PathParamDescription(name),
				Required:    true,
			})
		}
	}

	return allMatches, allParams
}

func hasMatch(matches []matching.ParameterMatch, name string) bool {
	for _, m := range matches {
		if m.Name == name {
			return true
		}
	}
	return false
}

func hasParameter(params []catalog.Parameter, name string) bool {
	for _, p := range params {
		if p.Name == name {
			return true
		}
	}
	return false
}

// storedMatches converts persisted parameter values into filled matches.
func storedMatches(matched []progressive.ParameterValue) []matching.ParameterMatch {
	matches := make([]matching.ParameterMatch, 0, len(matched))
	for _, p := range matched {
		value := p.Value
		matches = append(matches, matching.ParameterMatch{
			Name:        p.Name,
			Description: p.Description,
			Value:       &value,
		})
	}
	return matches
}

// missingFieldsPrompt phrases the follow-up question for missing required
// parameters. Underscores become spaces so stored names read naturally.
func missingFieldsPrompt(missing []string) string {
	readable := make([]string, len(missing))
	for i, name := range missing {
		readable[i] = strings.ReplaceAll(name, "_", " ")
	}

	switch len(readable) {
	case 0:
		return "All required information has been provided."
	case 1:
		return fmt.Sprintf("I need one more piece of information: %s. Could you please provide it?", readable[0])
	case 2:
		return fmt.Sprintf("I need two more pieces of information: %s and %s. Could you provide them?", readable[0], readable[1])
	default:
		last := readable[len(readable)-1]
		rest := strings.Join(readable[:len(readable)-1], ", ")
		return fmt.Sprintf("I need a few more details: %s, and %s. Could you provide this information?", rest, last)
	}
}

// endpointIdentity copies the endpoint's routing data into a result.
func endpointIdentity(r *Result, ep *catalog.Endpoint) {
	r.EndpointID = ep.ID
	r.EndpointName = ep.Name
	r.EndpointDescription = ep.Description
	r.Verb = ep.Verb
	r.Base = ep.Base
	r.Path = ep.Path
	r.EssentialPath = ep.EssentialPath
	r.APIGroupID = ep.APIGroupID
	r.APIGroupName = ep.APIGroupName
}

// progressiveCompleteResult builds the result for a follow-up turn that
// filled the last missing required parameter.
func progressiveCompleteResult(ep *catalog.Endpoint, res *progressive.MatchResult) *Result {
	allMatches, allParams := withPathParameters(ep, storedMatches(res.MatchedParameters))

	r := &Result{
		Parameters:   allMatches,
		MatchingInfo: matching.Compute(allMatches, allParams),
		RawJSON: map[string]any{
			"type":                  "progressive_complete",
			"endpoint_id":           ep.ID,
			"status":                "complete",
			"completion_percentage": 100.0,
		},
		Usage: llm.UsageInfo{
			InputTokens:  50,
			OutputTokens: 20,
			TotalTokens:  70,
			Model:        "progressive_matching",
			Estimated:    true,
		},
		Intent: api.IntentActionableRequest,
	}
	endpointIdentity(r, ep)
	return r
}

// progressivePartialResult builds the result for a follow-up turn that
// still has required parameters outstanding.
func progressivePartialResult(ep *catalog.Endpoint, res *progressive.MatchResult) *Result {
	allMatches, allParams := withPathParameters(ep, storedMatches(res.MatchedParameters))

	mapped := 0
	for _, m := range allMatches {
		if m.Value != nil {
			mapped++
		}
	}

	missing := make([]matching.MissingField, 0, len(res.MissingParameters))
	for _, name := range res.MissingParameters {
		missing = append(missing, matching.MissingField{
			Name:        name,
			Description: fmt.Sprintf("Missing required parameter: %s", name),
		})
	}

	prompt := missingFieldsPrompt(res.MissingParameters)

	r := &Result{
		Parameters: allMatches,
		MatchingInfo: matching.Info{
			Status:               matching.StatusPartial,
			TotalRequired:        len(allParams),
			MappedRequired:       mapped,
			CompletionPercentage: res.CompletionPercentage,
			MissingRequired:      missing,
			MissingOptional:      []matching.MissingField{},
		},
		UserPrompt: &prompt,
		RawJSON: map[string]any{
			"type":                  "progressive_partial",
			"endpoint_id":           ep.ID,
			"status":                "incomplete",
			"completion_percentage": res.CompletionPercentage,
			"missing_parameters":    res.MissingParameters,
		},
		Usage: llm.UsageInfo{
			InputTokens:  30,
			OutputTokens: 15,
			TotalTokens:  45,
			Model:        "progressive_matching",
			Estimated:    true,
		},
		Intent: api.IntentActionableRequest,
	}
	endpointIdentity(r, ep)
	return r
}

// generalResult wraps a conversational answer in a synthetic endpoint.
func generalResult(content string, usage llm.UsageInfo) *Result {
	return &Result{
		EndpointID:          "general_conversation",
		EndpointName:        "General Conversation",
		EndpointDescription: "Conversational response to general question",
		Verb:                "GET",
		Base:                "conversation",
		Path:                "/general",
		EssentialPath:       "/general",
		APIGroupID:          "conversation",
		APIGroupName:        "Conversation API",
		Parameters:          []matching.ParameterMatch{},
		MatchingInfo:        conversationalInfo(),
		RawJSON: map[string]any{
			"type":     "general_conversation",
			"response": content,
			"intent":   "general_question",
		},
		Usage:  usage,
		Intent: api.IntentGeneralQuestion,
	}
}

// fallbackResult wraps a conversational answer produced after the
// actionable pipeline exhausted its retries without a matching endpoint.
func fallbackResult(content string, usage llm.UsageInfo) *Result {
	return &Result{
		EndpointID:          "general_conversation_fallback",
		EndpointName:        "General Conversation (Fallback)",
		EndpointDescription: "Fallback conversational response after endpoint matching failed",
		Verb:                "GET",
		Base:                "conversation",
		Path:                "/general",
		EssentialPath:       "/general",
		APIGroupID:          "conversation",
		APIGroupName:        "Conversation API",
		Parameters:          []matching.ParameterMatch{},
		MatchingInfo:        conversationalInfo(),
		RawJSON: map[string]any{
			"type":            "general_conversation_fallback",
			"response":        content,
			"intent":          "actionable_request_failed",
			"fallback_reason": "endpoint_matching_failed_after_retries",
		},
		Usage:  usage,
		Intent: api.IntentGeneralQuestion,
	}
}

// helpResult wraps a capabilities answer in the synthetic help endpoint.
func helpResult(content string, usage llm.UsageInfo, capabilities int, language string) *Result {
	return &Result{
		EndpointID:          "help_capabilities",
		EndpointName:        "Help - Available Capabilities",
		EndpointDescription: "List of available system capabilities and how to use them",
		Verb:                "GET",
		Base:                "help",
		Path:                "/capabilities",
		EssentialPath:       "/capabilities",
		APIGroupID:          "help",
		APIGroupName:        "Help System",
		Parameters:          []matching.ParameterMatch{},
		MatchingInfo:        conversationalInfo(),
		RawJSON: map[string]any{
			"type":               "help_request",
			"response":           content,
			"intent":             "help_request",
			"capabilities_count": capabilities,
			"detected_language":  language,
		},
		Usage:  usage,
		Intent: api.IntentHelpRequest,
	}
}
