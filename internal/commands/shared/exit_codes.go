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

package shared

import (
	"errors"
	"fmt"
	"os"

	pkgerrors "github.com/tombee/semroute/pkg/errors"
)

// Exit codes for semroute commands
const (
	ExitSuccess            = 0
	ExitAnalysisFailed     = 1
	ExitInvalidConfig      = 2
	ExitMissingInput       = 3
	ExitProviderError      = 4
	ExitCatalogUnavailable = 5
)

// ExitError is an error that carries an exit code
type ExitError struct {
	Code    int
	Message string
	Cause   error
}

func (e *ExitError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Cause
}

// NewAnalysisError creates an error for sentence analysis failures
func NewAnalysisError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitAnalysisFailed,
		Message: msg,
		Cause:   cause,
	}
}

// NewInvalidConfigError creates an error for configuration problems
func NewInvalidConfigError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitInvalidConfig,
		Message: msg,
		Cause:   cause,
	}
}

// NewMissingInputError creates an error for missing required arguments
func NewMissingInputError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitMissingInput,
		Message: msg,
		Cause:   cause,
	}
}

// NewProviderError creates an error for LLM provider failures
func NewProviderError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitProviderError,
		Message: msg,
		Cause:   cause,
	}
}

// NewCatalogUnavailableError creates an error for unreachable endpoint catalogs
func NewCatalogUnavailableError(msg string, cause error) *ExitError {
	return &ExitError{
		Code:    ExitCatalogUnavailable,
		Message: msg,
		Cause:   cause,
	}
}

// HandleExitError checks if an error is an ExitError and exits with the appropriate code
func HandleExitError(err error) {
	if err == nil {
		return
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		msg := exitErr.Error()
		if len(msg) > 0 {
			fmt.Fprintln(os.Stderr, "Error:", msg)
		}

		printSuggestion(err)

		os.Exit(exitErr.Code)
	}

	// Default to analysis failed
	fmt.Fprintln(os.Stderr, "Error:", err.Error())

	printSuggestion(err)

	os.Exit(ExitAnalysisFailed)
}

// printSuggestion walks the error chain and prints the first actionable
// suggestion carried by a validation or provider error.
func printSuggestion(err error) {
	var valErr *pkgerrors.ValidationError
	if errors.As(err, &valErr) && valErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", valErr.Suggestion)
		return
	}

	var provErr *pkgerrors.ProviderError
	if errors.As(err, &provErr) && provErr.Suggestion != "" {
		fmt.Fprintf(os.Stderr, "\nSuggestion: %s\n", provErr.Suggestion)
	}
}
