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
	"reflect"
	"strings"
	"testing"

	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/pkg/matching"
)

func TestExtractFollowupParameters(t *testing.T) {
	params := sampleEndpoints()[0].Parameters

	tests := []struct {
		name  string
		reply string
		want  []progressive.ParameterValue
	}{
		{
			name:  "keeps declared string values",
			reply: `{"to": "bob@example.com"}`,
			want: []progressive.ParameterValue{
				{Name: "to", Value: "bob@example.com", Description: "User provided value for to"},
			},
		},
		{
			name:  "drops undeclared and non-string values",
			reply: `{"to": "bob@example.com", "priority": "high", "subject": 42, "body": "   "}`,
			want: []progressive.ParameterValue{
				{Name: "to", Value: "bob@example.com", Description: "User provided value for to"},
			},
		},
		{
			name:  "trims values and sorts by name",
			reply: `{"to": "  bob@example.com  ", "subject": "budget"}`,
			want: []progressive.ParameterValue{
				{Name: "subject", Value: "budget", Description: "User provided value for subject"},
				{Name: "to", Value: "bob@example.com", Description: "User provided value for to"},
			},
		},
		{
			name:  "nothing usable",
			reply: `{"priority": "high"}`,
			want:  nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &fakeProvider{replies: []string{tt.reply}}
			a := &Analyzer{
				Provider: provider,
				Prompts:  testRegistry(t),
				Logger:   quietLogger(),
			}

			got, err := a.extractFollowupParameters(context.Background(), "the follow-up", params)
			if err != nil {
				t.Fatalf("extractFollowupParameters: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("extracted = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestExtractFollowupParametersPrompt(t *testing.T) {
	provider := &fakeProvider{replies: []string{`{}`}}
	a := &Analyzer{
		Provider: provider,
		Prompts:  testRegistry(t),
		Logger:   quietLogger(),
	}

	_, err := a.extractFollowupParameters(context.Background(), "send it to carol", sampleEndpoints()[0].Parameters)
	if err != nil {
		t.Fatalf("extractFollowupParameters: %v", err)
	}

	prompt := provider.prompts[0]
	for _, want := range []string{"to: recipient address", "subject: subject line", "send it to carol"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRunFollowupUnknownEndpoint(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	err := store.Update(ctx, "conv-x", "ghost", []progressive.ParameterValue{
		{Name: "subject", Value: "budget", Description: "subject line"},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	ongoing, err := store.GetIncomplete(ctx, "conv-x")
	if err != nil || ongoing == nil {
		t.Fatalf("GetIncomplete: %v %v", ongoing, err)
	}

	provider := &fakeProvider{}
	cat := &fakeCatalog{healthy: true, endpoints: sampleEndpoints()}
	a := testAnalyzer(t, provider, cat)
	a.Store = store

	_, err = a.runFollowup(ctx, "the follow-up", "conv-x", "user@example.com", ongoing)
	if err == nil || err.Error() != "Endpoint ghost not found" {
		t.Fatalf("err = %v, want Endpoint ghost not found", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times", provider.calls)
	}
}

func TestRunFollowupNoExtractedParameters(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	err := store.Update(ctx, "conv-y", "send_email", []progressive.ParameterValue{
		{Name: "subject", Value: "budget", Description: "subject line"},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	ongoing, err := store.GetIncomplete(ctx, "conv-y")
	if err != nil || ongoing == nil {
		t.Fatalf("GetIncomplete: %v %v", ongoing, err)
	}

	provider := &fakeProvider{replies: []string{`{}`}}
	cat := &fakeCatalog{healthy: true, endpoints: sampleEndpoints()}
	a := testAnalyzer(t, provider, cat)
	a.Store = store

	_, err = a.runFollowup(ctx, "nothing useful here", "conv-y", "user@example.com", ongoing)
	if err == nil || err.Error() != "No parameters could be extracted from the follow-up message" {
		t.Fatalf("err = %v", err)
	}
}

func TestRunFollowupPartialProgress(t *testing.T) {
	store := memStore(t)
	ctx := context.Background()
	err := store.Update(ctx, "conv-z", "send_email", []progressive.ParameterValue{
		{Name: "subject", Value: "budget", Description: "subject line"},
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
	ongoing, err := store.GetIncomplete(ctx, "conv-z")
	if err != nil || ongoing == nil {
		t.Fatalf("GetIncomplete: %v %v", ongoing, err)
	}

	// The follow-up supplies the optional body but still no recipient.
	provider := &fakeProvider{replies: []string{`{"body": "see attached"}`}}
	cat := &fakeCatalog{healthy: true, endpoints: sampleEndpoints()}
	a := testAnalyzer(t, provider, cat)
	a.Store = store

	result, err := a.runFollowup(ctx, "the body is: see attached", "conv-z", "user@example.com", ongoing)
	if err != nil {
		t.Fatalf("runFollowup: %v", err)
	}

	if result.RawJSON["type"] != "progressive_partial" {
		t.Errorf("raw type = %v", result.RawJSON["type"])
	}
	if !reflect.DeepEqual(result.RawJSON["missing_parameters"], []string{"to"}) {
		t.Errorf("missing_parameters = %v", result.RawJSON["missing_parameters"])
	}
	if result.MatchingInfo.Status != matching.StatusPartial {
		t.Errorf("Status = %v, want partial", result.MatchingInfo.Status)
	}
	if result.UserPrompt == nil || !strings.Contains(*result.UserPrompt, "one more piece of information: to") {
		t.Errorf("UserPrompt = %v", result.UserPrompt)
	}

	// The merged parameters stay stored for the next turn.
	row, err := store.Get(ctx, "conv-z", "send_email")
	if err != nil || row == nil {
		t.Fatalf("Get: %v %v", row, err)
	}
	saved, err := row.MatchedParameters()
	if err != nil {
		t.Fatalf("MatchedParameters: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("saved = %+v", saved)
	}
}
