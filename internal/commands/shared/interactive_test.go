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
	"testing"
)

// ciVars are the environment variables the detector inspects.
var ciVars = []string{"CI", "GITHUB_ACTIONS", "GITLAB_CI", "CIRCLECI", "JENKINS_HOME"}

func clearCIEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SEMROUTE_NON_INTERACTIVE", "")
	for _, key := range ciVars {
		t.Setenv(key, "")
	}
}

func TestIsCIEnvironment(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		expected bool
	}{
		{
			name:     "no indicators",
			envVars:  map[string]string{},
			expected: false,
		},
		{
			name:     "CI=true",
			envVars:  map[string]string{"CI": "true"},
			expected: true,
		},
		{
			name:     "CI=1",
			envVars:  map[string]string{"CI": "1"},
			expected: true,
		},
		{
			name:     "CI set to other value",
			envVars:  map[string]string{"CI": "yes"},
			expected: false,
		},
		{
			name:     "GITHUB_ACTIONS=true",
			envVars:  map[string]string{"GITHUB_ACTIONS": "true"},
			expected: true,
		},
		{
			name:     "GITLAB_CI=true",
			envVars:  map[string]string{"GITLAB_CI": "true"},
			expected: true,
		},
		{
			name:     "CIRCLECI=true",
			envVars:  map[string]string{"CIRCLECI": "true"},
			expected: true,
		},
		{
			name:     "JENKINS_HOME set to path",
			envVars:  map[string]string{"JENKINS_HOME": "/var/jenkins"},
			expected: true,
		},
		{
			name:     "multiple CI vars set",
			envVars:  map[string]string{"CI": "true", "GITHUB_ACTIONS": "true"},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearCIEnv(t)
			for key, value := range tt.envVars {
				t.Setenv(key, value)
			}

			if got := isCIEnvironment(); got != tt.expected {
				t.Errorf("isCIEnvironment() = %v, expected %v", got, tt.expected)
			}
		})
	}
}

func TestIsNonInteractiveExplicitEnv(t *testing.T) {
	clearCIEnv(t)
	t.Setenv("SEMROUTE_NON_INTERACTIVE", "true")

	if !IsNonInteractive() {
		t.Error("IsNonInteractive() = false with SEMROUTE_NON_INTERACTIVE=true")
	}
}

func TestIsTTYRespectsNoColor(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	t.Setenv("TERM", "xterm-256color")

	if IsTTY() {
		t.Error("IsTTY() = true with NO_COLOR set")
	}
}

func TestIsTTYRespectsDumbTerm(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	t.Setenv("TERM", "dumb")

	if IsTTY() {
		t.Error("IsTTY() = true with TERM=dumb")
	}
}
