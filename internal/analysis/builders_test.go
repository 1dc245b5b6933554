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
	"reflect"
	"testing"

	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/matching"
)

func sampleUsage() llm.UsageInfo {
	return llm.UsageInfo{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Model: "cohere"}
}

func TestMissingFieldsPrompt(t *testing.T) {
	tests := []struct {
		name    string
		missing []string
		want    string
	}{
		{
			name:    "none",
			missing: nil,
			want:    "All required information has been provided.",
		},
		{
			name:    "one",
			missing: []string{"user_id"},
			want:    "I need one more piece of information: user id. Could you please provide it?",
		},
		{
			name:    "two",
			missing: []string{"to", "subject"},
			want:    "I need two more pieces of information: to and subject. Could you provide them?",
		},
		{
			name:    "three",
			missing: []string{"to", "subject", "body"},
			want:    "I need a few more details: to, subject, and body. Could you provide this information?",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := missingFieldsPrompt(tt.missing); got != tt.want {
				t.Errorf("missingFieldsPrompt(%v) = %q, want %q", tt.missing, got, tt.want)
			}
		})
	}
}

func TestWithPathParameters(t *testing.T) {
	endpoints := sampleEndpoints()
	getUser := &endpoints[1]

	matches := []matching.ParameterMatch{
		{Name: "include_inactive", Description: "include deactivated accounts"},
	}

	allMatches, allParams := withPathParameters(getUser, matches)

	if len(allMatches) != 2 || len(allParams) != 2 {
		t.Fatalf("got %d matches, %d params; want 2 and 2", len(allMatches), len(allParams))
	}

	added := allMatches[1]
	if added.Name != "user_id" || added.Value != nil {
		t.Errorf("added match = %+v", added)
	}
	if added.Description != "URL path parameter: user_id" {
		t.Errorf("added description = %q", added.Description)
	}

	param := allParams[1]
	if param.Name != "user_id" || !param.Required {
		t.Errorf("added parameter = %+v", param)
	}

	// The inputs stay untouched.
	if len(matches) != 1 {
		t.Errorf("input matches mutated: %+v", matches)
	}
	if len(getUser.Parameters) != 1 {
		t.Errorf("endpoint parameters mutated: %+v", getUser.Parameters)
	}
}

func TestWithPathParametersSkipsKnownNames(t *testing.T) {
	endpoints := sampleEndpoints()
	getUser := &endpoints[1]

	value := "42"
	matches := []matching.ParameterMatch{
		{Name: "user_id", Description: "URL path parameter: user_id", Value: &value},
	}

	allMatches, allParams := withPathParameters(getUser, matches)

	if len(allMatches) != 1 {
		t.Fatalf("got %d matches, want 1", len(allMatches))
	}
	// Declared parameters never mention user_id, so it still joins the list.
	if len(allParams) != 2 || allParams[1].Name != "user_id" {
		t.Fatalf("params = %+v", allParams)
	}
}

func TestProgressiveCompleteResult(t *testing.T) {
	endpoints := sampleEndpoints()
	sendEmail := &endpoints[0]

	res := &progressive.MatchResult{
		ConversationID: "conv-9",
		EndpointID:     "send_email",
		MatchedParameters: []progressive.ParameterValue{
			{Name: "subject", Value: "budget", Description: "subject line"},
			{Name: "to", Value: "to@example.com", Description: "User provided value for to"},
		},
		IsComplete:           true,
		CompletionPercentage: 100,
		ReadyForExecution:    true,
	}

	result := progressiveCompleteResult(sendEmail, res)

	if result.EndpointID != "send_email" || result.EndpointName != "Send Email" {
		t.Errorf("endpoint identity = %q / %q", result.EndpointID, result.EndpointName)
	}
	if result.MatchingInfo.Status != matching.StatusComplete {
		t.Errorf("Status = %v, want complete", result.MatchingInfo.Status)
	}
	if result.MatchingInfo.CompletionPercentage != 100 {
		t.Errorf("CompletionPercentage = %v", result.MatchingInfo.CompletionPercentage)
	}
	if result.UserPrompt != nil {
		t.Errorf("UserPrompt = %q, want nil", *result.UserPrompt)
	}

	if result.Usage.InputTokens != 50 || result.Usage.OutputTokens != 20 || result.Usage.TotalTokens != 70 {
		t.Errorf("usage = %+v", result.Usage)
	}
	if result.Usage.Model != "progressive_matching" || !result.Usage.Estimated {
		t.Errorf("usage = %+v", result.Usage)
	}

	if result.RawJSON["type"] != "progressive_complete" {
		t.Errorf("raw type = %v", result.RawJSON["type"])
	}
	if result.RawJSON["status"] != "complete" {
		t.Errorf("raw status = %v", result.RawJSON["status"])
	}
	if result.RawJSON["endpoint_id"] != "send_email" {
		t.Errorf("raw endpoint_id = %v", result.RawJSON["endpoint_id"])
	}
	if result.RawJSON["completion_percentage"] != 100.0 {
		t.Errorf("raw completion_percentage = %v", result.RawJSON["completion_percentage"])
	}
}

func TestProgressivePartialResult(t *testing.T) {
	endpoints := sampleEndpoints()
	sendEmail := &endpoints[0]

	res := &progressive.MatchResult{
		ConversationID:       "conv-9",
		EndpointID:           "send_email",
		MatchedParameters:    []progressive.ParameterValue{{Name: "subject", Value: "budget", Description: "subject line"}},
		MissingParameters:    []string{"to"},
		CompletionPercentage: 50,
	}

	result := progressivePartialResult(sendEmail, res)

	info := result.MatchingInfo
	if info.Status != matching.StatusPartial {
		t.Errorf("Status = %v, want partial", info.Status)
	}
	// Partial summaries count every parameter as required.
	if info.TotalRequired != 3 || info.MappedRequired != 1 {
		t.Errorf("required = %d/%d, want 1/3", info.MappedRequired, info.TotalRequired)
	}
	if info.TotalOptional != 0 || info.MappedOptional != 0 {
		t.Errorf("optional = %d/%d, want 0/0", info.MappedOptional, info.TotalOptional)
	}
	if info.CompletionPercentage != 50 {
		t.Errorf("CompletionPercentage = %v, want 50", info.CompletionPercentage)
	}
	if len(info.MissingRequired) != 1 || info.MissingRequired[0].Name != "to" {
		t.Fatalf("MissingRequired = %+v", info.MissingRequired)
	}
	if info.MissingRequired[0].Description != "Missing required parameter: to" {
		t.Errorf("missing description = %q", info.MissingRequired[0].Description)
	}

	if result.UserPrompt == nil {
		t.Fatal("UserPrompt = nil")
	}
	want := "I need one more piece of information: to. Could you please provide it?"
	if *result.UserPrompt != want {
		t.Errorf("UserPrompt = %q, want %q", *result.UserPrompt, want)
	}

	if result.Usage.InputTokens != 30 || result.Usage.OutputTokens != 15 || result.Usage.TotalTokens != 45 {
		t.Errorf("usage = %+v", result.Usage)
	}

	if result.RawJSON["type"] != "progressive_partial" {
		t.Errorf("raw type = %v", result.RawJSON["type"])
	}
	if result.RawJSON["status"] != "incomplete" {
		t.Errorf("raw status = %v", result.RawJSON["status"])
	}
	if !reflect.DeepEqual(result.RawJSON["missing_parameters"], []string{"to"}) {
		t.Errorf("raw missing_parameters = %v", result.RawJSON["missing_parameters"])
	}
}

func TestConversationalResults(t *testing.T) {
	result := generalResult("hello there", sampleUsage())

	if result.EndpointID != "general_conversation" || result.Verb != "GET" || result.Path != "/general" {
		t.Errorf("identity = %+v", result)
	}
	if result.MatchingInfo.Status != matching.StatusComplete || result.MatchingInfo.CompletionPercentage != 100 {
		t.Errorf("info = %+v", result.MatchingInfo)
	}
	if result.MatchingInfo.MissingRequired == nil || result.MatchingInfo.MissingOptional == nil {
		t.Error("missing field slices must be empty, not nil")
	}
	if len(result.Parameters) != 0 || result.Parameters == nil {
		t.Errorf("Parameters = %+v", result.Parameters)
	}

	fallback := fallbackResult("hello there", sampleUsage())
	if fallback.EndpointID != "general_conversation_fallback" {
		t.Errorf("fallback EndpointID = %q", fallback.EndpointID)
	}
	if fallback.RawJSON["fallback_reason"] != "endpoint_matching_failed_after_retries" {
		t.Errorf("fallback_reason = %v", fallback.RawJSON["fallback_reason"])
	}

	help := helpResult("the list", sampleUsage(), 4, "de")
	if help.EndpointID != "help_capabilities" || help.Path != "/capabilities" {
		t.Errorf("help identity = %+v", help)
	}
	if help.RawJSON["capabilities_count"] != 4 || help.RawJSON["detected_language"] != "de" {
		t.Errorf("help raw = %v", help.RawJSON)
	}
}

func TestStoredMatchesCopiesValues(t *testing.T) {
	stored := []progressive.ParameterValue{
		{Name: "to", Value: "a@example.com", Description: "recipient"},
		{Name: "subject", Value: "hi", Description: "subject line"},
	}

	matches := storedMatches(stored)

	if len(matches) != 2 {
		t.Fatalf("got %d matches", len(matches))
	}
	for i, m := range matches {
		if m.Value == nil || *m.Value != stored[i].Value {
			t.Errorf("match %d = %+v", i, m)
		}
	}
	// Each match must hold its own value, not share the loop variable.
	if matches[0].Value == matches[1].Value {
		t.Error("matches share a value pointer")
	}
	if *matches[0].Value == *matches[1].Value {
		t.Error("values collapsed to the last element")
	}
}
