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
	"strings"
)

// Wrap creates a new error that wraps the given error with additional context.
// If err is nil, returns nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf creates a new error that wraps the given error with formatted context.
// If err is nil, returns nil.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	message := fmt.Sprintf(format, args...)
	return fmt.Errorf("%s: %w", message, err)
}

// IsTransient reports whether the error is worth retrying at its call site:
// provider rate limits and 5xx responses, timeouts, and transport hiccups.
func IsTransient(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Transient()
	}
	var timeoutErr *TimeoutError
	return errors.As(err, &timeoutErr)
}

// IsNoMatch reports whether the error belongs to the "no suitable endpoint"
// class that the orchestrator's whole-run retry targets. Besides the typed
// NoMatchError, the literal substrings are recognized so that errors carried
// through LLM response text keep triggering the retry path.
func IsNoMatch(err error) bool {
	if err == nil {
		return false
	}
	var noMatch *NoMatchError
	if errors.As(err, &noMatch) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "No suitable endpoint found") ||
		strings.Contains(msg, "not found in available endpoints")
}

// IsNotFound reports whether the error is a NotFoundError.
func IsNotFound(err error) bool {
	var notFound *NotFoundError
	return errors.As(err, &notFound)
}
