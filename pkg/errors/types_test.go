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

package errors

import (
	"errors"
	"fmt"
	"testing"
)

func TestValidationErrorMessage(t *testing.T) {
	t.Run("with field", func(t *testing.T) {
		err := &ValidationError{Field: "email", Message: "invalid format"}
		want := "validation failed on email: invalid format"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})

	t.Run("without field", func(t *testing.T) {
		err := &ValidationError{Message: "empty input"}
		want := "validation failed: empty input"
		if err.Error() != want {
			t.Errorf("Error() = %q, want %q", err.Error(), want)
		}
	})
}

func TestNotFoundErrorMessage(t *testing.T) {
	err := &NotFoundError{Resource: "endpoint", ID: "send_email"}
	if err.Error() != "endpoint not found: send_email" {
		t.Errorf("Error() = %q", err.Error())
	}

	custom := &NotFoundError{Resource: "endpoints", ID: "a@b.co", Message: "No endpoints available for user 'a@b.co'"}
	if custom.Error() != "No endpoints available for user 'a@b.co'" {
		t.Errorf("Error() = %q", custom.Error())
	}
}

func TestProviderErrorTransient(t *testing.T) {
	tests := []struct {
		name string
		err  *ProviderError
		want bool
	}{
		{"rate limited", &ProviderError{StatusCode: 429}, true},
		{"server error", &ProviderError{StatusCode: 503}, true},
		{"unauthorized", &ProviderError{StatusCode: 401}, false},
		{"bad request", &ProviderError{StatusCode: 400}, false},
		{"network failure", &ProviderError{Cause: errors.New("connection refused")}, true},
		{"no status no cause", &ProviderError{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Transient(); got != tt.want {
				t.Errorf("Transient() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestProviderErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := &ProviderError{Provider: "cohere", Message: "request failed", Cause: cause}
	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
}

func TestIsNoMatch(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"typed", &NoMatchError{Input: "do something"}, true},
		{"wrapped typed", fmt.Errorf("attempt 2: %w", &NoMatchError{}), true},
		{"literal no suitable", errors.New("No suitable endpoint found for the given input"), true},
		{"literal unknown id", errors.New("Endpoint ID 'x' not found in available endpoints. Available IDs: [a]"), true},
		{"other", errors.New("catalog unreachable"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNoMatch(tt.err); got != tt.want {
				t.Errorf("IsNoMatch() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsTransient(t *testing.T) {
	if !IsTransient(&ProviderError{StatusCode: 500}) {
		t.Error("5xx provider error should be transient")
	}
	if !IsTransient(fmt.Errorf("generate: %w", &TimeoutError{Operation: "provider request"})) {
		t.Error("timeout should be transient")
	}
	if IsTransient(&ConfigError{Key: "models", Reason: "missing"}) {
		t.Error("config error should not be transient")
	}
}
