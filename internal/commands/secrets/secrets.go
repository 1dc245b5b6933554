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

package secrets

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/secrets"
)

// knownProviders are the provider tags the analysis pipeline accepts.
var knownProviders = []string{"cohere", "claude", "deepseek"}

// NewSecretsCommand creates the secrets command for API key management.
func NewSecretsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage provider API keys",
		Long: `Manage LLM provider API keys in the OS keyring.

Keys are resolved in priority order:
  1. Environment variables (COHERE_API_KEY, CLAUDE_API_KEY, DEEPSEEK_API_KEY)
  2. OS keyring (macOS Keychain, Linux Secret Service, Windows Credential Manager)

Commands:
  set       Store an API key in the keyring
  rm        Remove an API key from the keyring

Examples:
  semroute secrets set cohere
  semroute secrets rm cohere`,
	}

	cmd.AddCommand(newSecretsSetCommand())
	cmd.AddCommand(newSecretsRemoveCommand())

	return cmd
}

func newSecretsSetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "set <provider>",
		Short: "Store an API key in the OS keyring",
		Long: `Store an API key for a provider in the OS keyring.

The key can be provided via:
  - Interactive prompt (hidden input, default)
  - Standard input: echo "key" | semroute secrets set cohere

Providers: cohere, claude, deepseek

Examples:
  semroute secrets set cohere
  echo "co-..." | semroute secrets set cohere`,
		Args: cobra.ExactArgs(1),
		RunE: runSecretsSet,
	}
}

func newSecretsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <provider>",
		Short: "Remove an API key from the OS keyring",
		Long: `Remove a provider's API key from the OS keyring.

Keys set via environment variables are unaffected.

Examples:
  semroute secrets rm cohere`,
		Args: cobra.ExactArgs(1),
		RunE: runSecretsRemove,
	}
}

// runSecretsSet handles the 'secrets set' command.
func runSecretsSet(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])
	if err := validateProvider(provider); err != nil {
		return err
	}

	value, err := readKeyValue()
	if err != nil {
		return fmt.Errorf("failed to read API key: %w", err)
	}

	if value == "" {
		return errors.New("API key cannot be empty")
	}

	if err := secrets.Store(provider, value); err != nil {
		if errors.Is(err, secrets.ErrKeyringUnavailable) {
			return fmt.Errorf("%w\nSet %s in the environment instead", err, secrets.EnvVar(provider))
		}
		return err
	}

	cmd.Println(shared.RenderOK(fmt.Sprintf("Stored API key for %s", provider)))
	return nil
}

// runSecretsRemove handles the 'secrets rm' command.
func runSecretsRemove(cmd *cobra.Command, args []string) error {
	provider := strings.ToLower(args[0])
	if err := validateProvider(provider); err != nil {
		return err
	}

	if err := secrets.Remove(provider); err != nil {
		return err
	}

	cmd.Println(shared.RenderOK(fmt.Sprintf("Removed API key for %s", provider)))
	return nil
}

// validateProvider checks the provider tag against the supported set.
func validateProvider(provider string) error {
	for _, known := range knownProviders {
		if provider == known {
			return nil
		}
	}
	return fmt.Errorf("unknown provider %q (supported: %s)", provider, strings.Join(knownProviders, ", "))
}

// readKeyValue reads the API key from a pipe when stdin is redirected,
// otherwise prompts with hidden input.
func readKeyValue() (string, error) {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}

	if (stat.Mode() & os.ModeCharDevice) == 0 {
		// Reading from pipe
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(data)), nil
	}

	// Interactive prompt with hidden input
	fmt.Print("Enter API key (hidden): ")
	byteKey, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println() // New line after hidden input
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(byteKey)), nil
}
