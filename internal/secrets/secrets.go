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

// Package secrets resolves provider API keys.
//
// Resolution order is the provider's environment variable first
// (COHERE_API_KEY, CLAUDE_API_KEY, DEEPSEEK_API_KEY), then the OS
// keyring under the "semroute" service. The keyring is optional, so
// environments without one (CI, containers) work with variables alone.
package secrets

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// Service is the keyring service name for stored keys.
const Service = "semroute"

var (
	// ErrSecretNotFound is returned when no key exists in the
	// environment or the keyring.
	ErrSecretNotFound = errors.New("secret not found")

	// ErrKeyringUnavailable is returned when the OS keyring cannot be
	// used (locked, no secret service, headless session).
	ErrKeyringUnavailable = errors.New("keyring unavailable")
)

// EnvVar returns the environment variable carrying the API key for a
// provider tag ("cohere" becomes COHERE_API_KEY).
func EnvVar(provider string) string {
	return strings.ToUpper(provider) + "_API_KEY"
}

// APIKey resolves the key for provider. The environment wins; the
// keyring is consulted only when the variable is unset or blank.
func APIKey(provider string) (string, error) {
	if key := strings.TrimSpace(os.Getenv(EnvVar(provider))); key != "" {
		return key, nil
	}

	key, err := keyring.Get(Service, provider)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", fmt.Errorf("%w: set %s or run 'semroute secrets set %s'",
				ErrSecretNotFound, EnvVar(provider), provider)
		}
		if isKeyringUnavailable(err) {
			return "", fmt.Errorf("%w: %v (set %s instead)",
				ErrKeyringUnavailable, err, EnvVar(provider))
		}
		return "", fmt.Errorf("keyring error: %w", err)
	}

	return key, nil
}

// Store saves the provider key in the OS keyring.
func Store(provider, key string) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("api key must not be empty")
	}

	if err := keyring.Set(Service, provider, key); err != nil {
		if isKeyringUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
		}
		return fmt.Errorf("keyring error: %w", err)
	}

	return nil
}

// Remove deletes the provider key from the OS keyring.
func Remove(provider string) error {
	if err := keyring.Delete(Service, provider); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSecretNotFound, provider)
		}
		if isKeyringUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
		}
		return fmt.Errorf("keyring error: %w", err)
	}

	return nil
}

// isKeyringUnavailable reports whether an error indicates the keyring
// is locked or inaccessible rather than merely missing the key.
func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())

	indicators := []string{
		"locked",
		"cannot access",
		"permission denied",
		"failed to unlock",
		"user interaction required",
		"secret service",
		"dbus",
		"user canceled",
	}

	for _, indicator := range indicators {
		if strings.Contains(errStr, indicator) {
			return true
		}
	}

	return false
}
