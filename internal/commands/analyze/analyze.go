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

package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tombee/semroute/internal/analysis"
	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/pkg/api"
	semrouteerrors "github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/matching"
	"github.com/tombee/semroute/pkg/prompts"
)

var (
	analyzeEmail        string
	analyzeProvider     string
	analyzeAPI          string
	analyzeConversation string
)

// NewAnalyzeCommand creates the analyze command
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <sentence>",
		Short: "Analyze a sentence against the endpoint catalog",
		Long: `Analyze a natural language sentence and resolve it into an API request.

The sentence is classified by intent. Actionable requests are matched
against the user's endpoint catalog and their parameter values are
extracted; general and help questions get a conversational answer.

One-shot analyses do not persist partial matches; supplying missing
values across turns needs the server (semroute serve).

Examples:
  semroute analyze "send an email to alice about the budget" --email you@example.com
  semroute analyze "what can you do?" --email you@example.com
  semroute analyze "list my invoices" --email you@example.com --provider claude
  semroute analyze "list my invoices" --email you@example.com --json`,
		Args: cobra.ExactArgs(1),
		RunE: runAnalyze,
	}

	cmd.Flags().StringVar(&analyzeEmail, "email", "", "Email identifying the user (required)")
	cmd.Flags().StringVar(&analyzeProvider, "provider", "", "LLM provider: cohere, claude, deepseek (default from config)")
	cmd.Flags().StringVar(&analyzeAPI, "api", "", "Endpoint catalog address (default from config)")
	cmd.Flags().StringVar(&analyzeConversation, "conversation", "", "Conversation ID to tag the analysis with")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	sentence := strings.TrimSpace(args[0])
	if sentence == "" {
		return shared.NewMissingInputError("sentence cannot be empty", nil)
	}

	cfg, err := config.LoadOrDefault(shared.GetConfigPath())
	if err != nil {
		return shared.NewInvalidConfigError("failed to load configuration", err)
	}

	logger := shared.CommandLogger()

	tag := shared.ResolveProviderTag(analyzeProvider, cfg)
	provider, err := shared.BuildProvider(tag, cfg)
	if err != nil {
		return err
	}

	registry, err := prompts.Load("")
	if err != nil {
		return shared.NewInvalidConfigError("failed to load prompt library", err)
	}

	client := shared.BuildCatalog(shared.ResolveCatalogAddress(analyzeAPI, cfg), logger)

	analyzer := &analysis.Analyzer{
		Provider: provider,
		Catalog:  client,
		Prompts:  registry,
		Models:   cfg.Models,
		Analysis: cfg.Analysis,
		Logger:   logger,
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	result, err := analyzer.Analyze(ctx, sentence, analyzeEmail, analyzeConversation)
	if err != nil {
		return mapAnalysisError(err)
	}

	if shared.GetJSON() {
		return outputResultJSON(cmd, result)
	}

	printResult(cmd, result)
	return nil
}

// mapAnalysisError attaches the right exit code to a pipeline failure.
func mapAnalysisError(err error) error {
	var notFound *semrouteerrors.NotFoundError
	if errors.As(err, &notFound) {
		return shared.NewAnalysisError(notFound.Error(), nil)
	}

	var precondition *semrouteerrors.PreconditionError
	if errors.As(err, &precondition) {
		return shared.NewCatalogUnavailableError(precondition.Error(), nil)
	}

	var timeout *semrouteerrors.TimeoutError
	if errors.As(err, &timeout) {
		return shared.NewCatalogUnavailableError("endpoint catalog is not responding", err)
	}

	var transport *semrouteerrors.TransportError
	if errors.As(err, &transport) {
		return shared.NewCatalogUnavailableError("endpoint catalog request failed", err)
	}

	var provider *semrouteerrors.ProviderError
	if errors.As(err, &provider) {
		return shared.NewProviderError("provider request failed", err)
	}

	return shared.NewAnalysisError("sentence analysis failed", err)
}

// printResult renders one analysis result for a terminal.
func printResult(cmd *cobra.Command, r *analysis.Result) {
	switch r.Intent {
	case api.IntentGeneralQuestion, api.IntentHelpRequest:
		printConversational(cmd, r)
	default:
		printActionable(cmd, r)
	}

	cmd.Println()
	printUsage(cmd, r.Usage)
}

// printConversational prints the answer text for general and help intents.
func printConversational(cmd *cobra.Command, r *analysis.Result) {
	cmd.Println(shared.RenderLabel("intent: " + r.Intent.String()))
	cmd.Println()

	if response, ok := r.RawJSON["response"].(string); ok && response != "" {
		cmd.Println(response)
		return
	}
	cmd.Println(shared.RenderWarn("no response text produced"))
}

// printActionable prints the endpoint identity, parameter table, and
// matching summary for an actionable request.
func printActionable(cmd *cobra.Command, r *analysis.Result) {
	cmd.Println(shared.RenderLabel("intent: " + r.Intent.String()))
	cmd.Println()

	cmd.Println(shared.Header.Render(r.EndpointID))
	cmd.Printf("  %s %s%s\n", shared.StatusInfo.Render(r.Verb), r.Base, r.Path)
	if r.APIGroupName != "" {
		cmd.Printf("  %s %s\n", shared.RenderLabel("group:"), r.APIGroupName)
	}

	if len(r.Parameters) > 0 {
		cmd.Println()
		cmd.Println(shared.Bold.Render("Parameters"))
		printParameterTable(cmd, r.Parameters)
	}

	cmd.Println()
	printMatching(cmd, r.MatchingInfo)

	if r.UserPrompt != nil && *r.UserPrompt != "" {
		cmd.Println()
		cmd.Println(shared.StatusInfo.Render(*r.UserPrompt))
	}
}

// printParameterTable aligns parameter names and marks unfilled ones.
func printParameterTable(cmd *cobra.Command, params []matching.ParameterMatch) {
	width := 0
	for _, p := range params {
		if len(p.Name) > width {
			width = len(p.Name)
		}
	}

	for _, p := range params {
		if p.Filled() {
			cmd.Printf("  %-*s = %s\n", width, p.Name, *p.Value)
		} else {
			cmd.Printf("  %-*s   %s\n", width, p.Name, shared.RenderLabel("(missing)"))
		}
	}
}

// printMatching renders the matching summary line and any missing fields.
func printMatching(cmd *cobra.Command, info matching.Info) {
	summary := fmt.Sprintf("%s (%d/%d required, %.0f%%)",
		info.Status, info.MappedRequired, info.TotalRequired, info.CompletionPercentage)

	switch info.Status {
	case matching.StatusComplete:
		cmd.Println(shared.RenderOK(summary))
	case matching.StatusPartial:
		cmd.Println(shared.RenderWarn(summary))
	default:
		cmd.Println(shared.RenderError(summary))
	}

	for _, f := range info.MissingRequired {
		cmd.Printf("  %s %s\n", shared.StatusWarn.Render("missing:"), describeMissing(f))
	}
}

// describeMissing renders one missing field.
func describeMissing(f matching.MissingField) string {
	if f.Description != "" {
		return f.Name + " - " + f.Description
	}
	return f.Name
}

// printUsage renders the token accounting line.
func printUsage(cmd *cobra.Command, usage llm.UsageInfo) {
	line := fmt.Sprintf("usage: %d in / %d out / %d total tokens (%s)",
		usage.InputTokens, usage.OutputTokens, usage.TotalTokens, usage.Model)
	if usage.Estimated {
		line += " estimated"
	}
	cmd.Println(shared.RenderLabel(line))
}

// outputResultJSON prints the structured analysis payload.
func outputResultJSON(cmd *cobra.Command, r *analysis.Result) error {
	data, err := json.MarshalIndent(r.RawJSON, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
