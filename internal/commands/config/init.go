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

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/config"
)

var (
	initDefaults bool
	initForce    bool
)

// newConfigInitCommand creates the 'config init' subcommand
func newConfigInitCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a configuration file interactively",
		Long: `Create a configuration file through an interactive form.

Prompts for the default LLM provider, the endpoint catalog address,
and the gRPC listen port, then writes the file to the resolved config
path (--config flag, CONFIG_PATH, or ./config.yaml).

In non-interactive environments (CI, piped stdin) pass --defaults to
write the built-in defaults without prompting.

Examples:
  semroute config init
  semroute config init --defaults
  semroute config init --config /etc/semroute/config.yaml --defaults`,
		Args: cobra.NoArgs,
		RunE: runConfigInit,
	}

	cmd.Flags().BoolVar(&initDefaults, "defaults", false, "Write built-in defaults without prompting")
	cmd.Flags().BoolVar(&initForce, "force", false, "Overwrite an existing configuration file")

	return cmd
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()

	if _, err := os.Stat(cfgPath); err == nil && !initForce {
		return shared.NewInvalidConfigError(
			fmt.Sprintf("configuration already exists at %s (use --force to overwrite)", cfgPath), nil)
	}

	cfg := config.Default()

	if !initDefaults {
		if shared.IsNonInteractive() {
			return shared.NewInvalidConfigError(
				"config init needs an interactive terminal; pass --defaults to write the built-in defaults", nil)
		}
		if err := runInitForm(cfg); err != nil {
			return err
		}
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.WriteFile(cfgPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", cfgPath, err)
	}

	cmd.Println(shared.RenderOK(fmt.Sprintf("Wrote configuration to %s", cfgPath)))
	if !initDefaults {
		cmd.Println(shared.RenderLabel(fmt.Sprintf("Store an API key with 'semroute secrets set %s'", cfg.Providers.Default)))
	}
	return nil
}

// runInitForm collects the settings that differ between installations.
// Everything else keeps its default and can be edited in the file later.
func runInitForm(cfg *config.Config) error {
	provider := cfg.Providers.Default
	catalogAddr := cfg.EndpointClient.DefaultAddress
	portStr := strconv.Itoa(cfg.Server.Port)
	confirmed := true

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Default LLM provider").
				Description("Used when no --provider flag is given").
				Options(
					huh.NewOption("Cohere", "cohere"),
					huh.NewOption("Claude", "claude"),
					huh.NewOption("DeepSeek", "deepseek"),
				).
				Value(&provider),
			huh.NewInput().
				Title("Endpoint catalog address").
				Description("gRPC address of the endpoint catalog service").
				Value(&catalogAddr).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("address is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("gRPC listen port").
				Description("Port the analysis server binds to").
				Value(&portStr).
				Validate(validatePort),
			huh.NewConfirm().
				Title("Write configuration?").
				Value(&confirmed),
		),
	)

	if err := form.Run(); err != nil {
		return err
	}

	if !confirmed {
		return errors.New("aborted")
	}

	port, err := strconv.Atoi(strings.TrimSpace(portStr))
	if err != nil {
		return fmt.Errorf("invalid port %q: %w", portStr, err)
	}

	cfg.Providers.Default = provider
	cfg.EndpointClient.DefaultAddress = strings.TrimSpace(catalogAddr)
	cfg.Server.Port = port
	return nil
}

// validatePort checks a form value parses as a TCP port.
func validatePort(s string) error {
	port, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return errors.New("port must be a number")
	}
	if port < 1 || port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}
	return nil
}
