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

package endpoints

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/pkg/catalog"
	semrouteerrors "github.com/tombee/semroute/pkg/errors"
)

var (
	endpointsEmail string
	endpointsAPI   string
)

// NewEndpointsCommand creates the endpoints command
func NewEndpointsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "endpoints",
		Short: "List the endpoints available to a user",
		Long: `List the API endpoints the catalog exposes for a user.

Checks that the endpoint catalog is reachable, fetches the user's
endpoints, and prints them grouped by API group with their required
and optional parameters.

Examples:
  semroute endpoints --email you@example.com
  semroute endpoints --email you@example.com --api localhost:50053
  semroute endpoints --email you@example.com --json`,
		Args: cobra.NoArgs,
		RunE: runEndpoints,
	}

	cmd.Flags().StringVar(&endpointsEmail, "email", "", "Email identifying the user (required)")
	cmd.Flags().StringVar(&endpointsAPI, "api", "", "Endpoint catalog address (default from config)")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runEndpoints(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadOrDefault(shared.GetConfigPath())
	if err != nil {
		return shared.NewInvalidConfigError("failed to load configuration", err)
	}

	logger := shared.CommandLogger()
	address := shared.ResolveCatalogAddress(endpointsAPI, cfg)
	client := shared.BuildCatalog(address, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if !client.Health(ctx) {
		return shared.NewCatalogUnavailableError(
			fmt.Sprintf("endpoint catalog at %s is not reachable", client.Address()), nil)
	}

	eps, err := client.Fetch(ctx, endpointsEmail)
	if err != nil {
		var notFound *semrouteerrors.NotFoundError
		if errors.As(err, &notFound) {
			return printNoEndpoints(cmd, endpointsEmail)
		}
		return shared.NewCatalogUnavailableError("failed to fetch endpoints", err)
	}

	if shared.GetJSON() {
		return outputEndpointsJSON(cmd, eps)
	}

	printEndpoints(cmd, endpointsEmail, client.Address(), eps)
	return nil
}

// printNoEndpoints explains an empty catalog instead of printing a bare
// empty list.
func printNoEndpoints(cmd *cobra.Command, email string) error {
	if shared.GetJSON() {
		cmd.Println("[]")
		return nil
	}

	cmd.Println(shared.RenderWarn(fmt.Sprintf("No endpoints configured for %s", email)))
	cmd.Println()
	cmd.Println("Possible causes:")
	cmd.Println("  " + shared.SymbolInfo + " The email address is not registered with the catalog")
	cmd.Println("  " + shared.SymbolInfo + " No API groups have been assigned to this user")
	cmd.Println()
	cmd.Println("Verify the email address or contact your administrator.")
	return nil
}

// printEndpoints renders the catalog listing grouped by API group.
func printEndpoints(cmd *cobra.Command, email, address string, eps []catalog.Endpoint) {
	cmd.Println(shared.RenderOK(fmt.Sprintf("Catalog at %s is healthy", address)))
	cmd.Println()
	cmd.Println(shared.Header.Render(fmt.Sprintf("Endpoints for %s (%d)", email, len(eps))))

	grouped := make(map[string][]catalog.Endpoint)
	var groupNames []string
	for _, ep := range eps {
		name := ep.APIGroupName
		if name == "" {
			name = "(ungrouped)"
		}
		if _, seen := grouped[name]; !seen {
			groupNames = append(groupNames, name)
		}
		grouped[name] = append(grouped[name], ep)
	}
	sort.Strings(groupNames)

	for _, group := range groupNames {
		cmd.Println()
		cmd.Println(shared.Bold.Render(group))
		for _, ep := range grouped[group] {
			cmd.Printf("  %s %s %s\n", shared.StatusInfo.Render(ep.Verb), ep.Path, shared.RenderLabel(ep.ID))
			if ep.Description != "" {
				cmd.Printf("      %s\n", ep.Description)
			}
			printParameters(cmd, ep.Parameters)
		}
	}
}

// printParameters lists required parameters before optional ones.
func printParameters(cmd *cobra.Command, params []catalog.Parameter) {
	var required, optional []catalog.Parameter
	for _, p := range params {
		if p.Required {
			required = append(required, p)
		} else {
			optional = append(optional, p)
		}
	}

	for _, p := range required {
		cmd.Printf("      %s %s\n", shared.StatusError.Render("required"), describeParameter(p))
	}
	for _, p := range optional {
		cmd.Printf("      %s %s\n", shared.RenderLabel("optional"), describeParameter(p))
	}
}

// describeParameter renders one parameter with its aliases.
func describeParameter(p catalog.Parameter) string {
	out := p.Name
	if p.Description != "" {
		out += " - " + p.Description
	}
	if len(p.Alternatives) > 0 {
		out += fmt.Sprintf(" (aka %s)", strings.Join(p.Alternatives, ", "))
	}
	return out
}

// outputEndpointsJSON prints the raw endpoint records.
func outputEndpointsJSON(cmd *cobra.Command, eps []catalog.Endpoint) error {
	data, err := json.MarshalIndent(eps, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal endpoints: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
