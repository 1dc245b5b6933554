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
	"errors"
	"strings"
	"testing"

	"github.com/tombee/semroute/pkg/api"
)

func TestClassifyIntent(t *testing.T) {
	tests := []struct {
		name     string
		sentence string
		reply    string
		want     api.Intent
	}{
		{
			name:     "actionable",
			sentence: "send an email to bob",
			reply:    "ACTIONABLE",
			want:     api.IntentActionableRequest,
		},
		{
			name:     "actionable wins over help",
			sentence: "send an email to bob",
			reply:    "This could be HELP but it is ACTIONABLE",
			want:     api.IntentActionableRequest,
		},
		{
			name:     "help",
			sentence: "what can you do",
			reply:    "HELP",
			want:     api.IntentHelpRequest,
		},
		{
			name:     "help wins over general",
			sentence: "what can you do",
			reply:    "HELP, possibly GENERAL",
			want:     api.IntentHelpRequest,
		},
		{
			name:     "general lowercase reply",
			sentence: "what is the weather",
			reply:    "general",
			want:     api.IntentGeneralQuestion,
		},
		{
			name:     "keyword fallback to help",
			sentence: "What can I do with this app?",
			reply:    "no idea",
			want:     api.IntentHelpRequest,
		},
		{
			name:     "french keyword fallback",
			sentence: "Aidez-moi avec cette application",
			reply:    "no idea",
			want:     api.IntentHelpRequest,
		},
		{
			name:     "keyword fallback to general",
			sentence: "tell me a story about dragons",
			reply:    "no idea",
			want:     api.IntentGeneralQuestion,
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

			got, err := a.classifyIntent(context.Background(), tt.sentence, sampleEndpoints())
			if err != nil {
				t.Fatalf("classifyIntent: %v", err)
			}
			if got != tt.want {
				t.Errorf("classifyIntent(%q -> %q) = %v, want %v", tt.sentence, tt.reply, got, tt.want)
			}
		})
	}
}

func TestClassifyIntentPromptListsEndpoints(t *testing.T) {
	provider := &fakeProvider{replies: []string{"GENERAL"}}
	a := &Analyzer{
		Provider: provider,
		Prompts:  testRegistry(t),
		Logger:   quietLogger(),
	}

	if _, err := a.classifyIntent(context.Background(), "hello", sampleEndpoints()); err != nil {
		t.Fatalf("classifyIntent: %v", err)
	}

	prompt := provider.prompts[0]
	for _, want := range []string{"Send an email to a recipient", "Fetch a user profile", "hello"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestClassifyIntentPropagatesError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model offline")}
	a := &Analyzer{
		Provider: provider,
		Prompts:  testRegistry(t),
		Logger:   quietLogger(),
	}

	_, err := a.classifyIntent(context.Background(), "hello", sampleEndpoints())
	if err == nil {
		t.Fatal("expected error")
	}
}
