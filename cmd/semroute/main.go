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

package main

import (
	"github.com/tombee/semroute/internal/cli"
	"github.com/tombee/semroute/internal/commands/analyze"
	configcmd "github.com/tombee/semroute/internal/commands/config"
	"github.com/tombee/semroute/internal/commands/endpoints"
	secretscmd "github.com/tombee/semroute/internal/commands/secrets"
	"github.com/tombee/semroute/internal/commands/serve"
	versioncmd "github.com/tombee/semroute/internal/commands/version"
)

// Version information (injected via ldflags at build time)
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// Set version information from build-time ldflags
	cli.SetVersion(version, commit, buildDate)

	// Create root command and add subcommands
	rootCmd := cli.NewRootCommand()

	// Core analysis commands
	rootCmd.AddCommand(analyze.NewAnalyzeCommand())
	rootCmd.AddCommand(endpoints.NewEndpointsCommand())

	// Server command
	rootCmd.AddCommand(serve.NewServeCommand())

	// Configuration and secrets
	rootCmd.AddCommand(configcmd.NewConfigCommand())
	rootCmd.AddCommand(secretscmd.NewSecretsCommand())

	// Version command
	rootCmd.AddCommand(versioncmd.NewVersionCommand())

	// Replace cobra's built-in help with the JSON-capable one
	rootCmd.SetHelpCommand(cli.NewHelpCommand(rootCmd))

	// Execute root command
	if err := rootCmd.Execute(); err != nil {
		cli.HandleExitError(err)
	}
}
