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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/config"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and manage configuration",
		Long: `View and manage semroute configuration.

Subcommands:
  init - Create a configuration file interactively
  show - Display current configuration
  path - Show config file location`,
	}

	cmd.AddCommand(newConfigInitCommand())
	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigPathCommand())

	// If no subcommand provided, default to 'show'
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		return newConfigShowCommand().RunE(cmd, args)
	}

	return cmd
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current configuration",
		Long: `Display the current effective configuration.

Values not present in the file show their built-in defaults.
Use --json for machine-readable output.`,
		RunE: runConfigShow,
	}

	return cmd
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "path",
		Short: "Show config file location",
		Long:  `Display the path to the configuration file.`,
		RunE:  runConfigPath,
	}

	return cmd
}

// resolveConfigPath returns the --config flag value when set, otherwise
// the CONFIG_PATH / default resolution.
func resolveConfigPath() string {
	if p := shared.GetConfigPath(); p != "" {
		return p
	}
	return config.Path()
}

// runConfigShow displays the current configuration
func runConfigShow(cmd *cobra.Command, args []string) error {
	cfgPath := resolveConfigPath()

	// Check if config exists
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if shared.GetJSON() {
			// Output empty config in JSON
			fmt.Println("{}")
			return nil
		}
		return fmt.Errorf("no configuration file found at %s\nRun 'semroute config init' to create one", cfgPath)
	}

	// Load config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Output based on format
	if shared.GetJSON() {
		return outputConfigJSON(cfg)
	}
	return outputConfigYAML(cfgPath, cfg)
}

// runConfigPath displays the config file path
func runConfigPath(cmd *cobra.Command, args []string) error {
	fmt.Println(resolveConfigPath())
	return nil
}

// outputConfigJSON outputs config in JSON format. The struct carries only
// YAML tags, so it is round-tripped through a generic map to keep the
// snake_case key names.
func outputConfigJSON(cfg *config.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	var generic map[string]any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to decode config: %w", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(generic)
}

// outputConfigYAML outputs config in YAML format
func outputConfigYAML(path string, cfg *config.Config) error {
	fmt.Printf("Configuration: %s\n", path)
	fmt.Println(strings.Repeat("=", 50))
	fmt.Println()

	encoder := yaml.NewEncoder(os.Stdout)
	encoder.SetIndent(2)

	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	return encoder.Close()
}
