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

package catalog

import (
	"regexp"

	"github.com/tombee/semroute/pkg/errors"
)

// The email only keys catalog lookups, it is never used for delivery.
var emailPattern = regexp.MustCompile(`^[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)

// ValidateEmail checks the caller identity used for catalog lookups.
func ValidateEmail(email string) error {
	if email == "" {
		return &errors.ValidationError{
			Field:      "email",
			Message:    "email is required",
			Suggestion: "supply the caller's email address",
		}
	}
	if !emailPattern.MatchString(email) {
		return &errors.ValidationError{
			Field:      "email",
			Message:    "invalid email format: " + email,
			Suggestion: "use an address of the form user@example.com",
		}
	}
	return nil
}
