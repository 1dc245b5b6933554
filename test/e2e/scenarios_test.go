// Package e2e drives complete analysis flows through a real client
// connection: scripted model, gRPC-served catalog, sentence service, and
// (where a scenario needs it) the progressive store, all wired the way the
// daemon wires them.
package e2e

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/test/e2e/harness"
)

// rawJSON decodes a response's json_output payload.
func rawJSON(t *testing.T, resp *api.SentenceResponse) map[string]any {
	t.Helper()
	var raw map[string]any
	if err := json.Unmarshal([]byte(resp.JSONOutput), &raw); err != nil {
		t.Fatalf("json_output is not valid JSON: %v\n%s", err, resp.JSONOutput)
	}
	return raw
}

// parameterValues flattens response parameters into a name→value map.
func parameterValues(resp *api.SentenceResponse) map[string]string {
	values := make(map[string]string, len(resp.Parameters))
	for _, p := range resp.Parameters {
		values[p.Name] = p.SemanticValue
	}
	return values
}

func TestActionableRequestWithFullParameters(t *testing.T) {
	h := harness.New(t, harness.WithReplies(
		"ACTIONABLE",
		"send_email",
		`{"to": "john@example.com", "subject": "Meeting Tomorrow", "body": "we need to reschedule"}`,
	))

	ctx := h.CallerContext("user@example.com")
	resp := h.Analyze(ctx, "Send email to john@example.com with subject 'Meeting Tomorrow' and tell him we need to reschedule", "")

	if resp.Intent != api.IntentActionableRequest {
		t.Errorf("Intent = %v, want actionable", resp.Intent)
	}
	if resp.EndpointID != "send_email" || resp.EndpointName != "Send Email" {
		t.Errorf("endpoint = %q / %q", resp.EndpointID, resp.EndpointName)
	}
	if resp.Verb != "POST" || resp.Base != "https://api.example.com" || resp.Path != "/email/send" {
		t.Errorf("routing = %s %s%s", resp.Verb, resp.Base, resp.Path)
	}
	if resp.EssentialPath != "/email/send" {
		t.Errorf("EssentialPath = %q", resp.EssentialPath)
	}
	if resp.APIGroupID != "comm" || resp.APIGroupName != "Communication" {
		t.Errorf("group = %q / %q", resp.APIGroupID, resp.APIGroupName)
	}

	values := parameterValues(resp)
	if values["to"] != "john@example.com" || values["subject"] != "Meeting Tomorrow" || values["body"] != "we need to reschedule" {
		t.Errorf("parameters = %v", values)
	}

	info := resp.MatchingInfo
	if info == nil {
		t.Fatal("MatchingInfo missing")
	}
	if info.Status != api.MatchingStatusComplete {
		t.Errorf("Status = %v, want complete", info.Status)
	}
	if info.TotalRequiredFields != 2 || info.MappedRequiredFields != 2 {
		t.Errorf("required coverage = %d/%d", info.MappedRequiredFields, info.TotalRequiredFields)
	}
	if info.CompletionPercentage != 100 {
		t.Errorf("CompletionPercentage = %v", info.CompletionPercentage)
	}
	if len(info.MissingRequiredFields) != 0 {
		t.Errorf("MissingRequiredFields = %+v", info.MissingRequiredFields)
	}
	if resp.UserPrompt != "" {
		t.Errorf("UserPrompt = %q, want empty", resp.UserPrompt)
	}

	if resp.Usage == nil || !resp.Usage.Estimated || resp.Usage.Model != "cohere" {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.Usage.TotalTokens != resp.Usage.InputTokens+resp.Usage.OutputTokens {
		t.Errorf("TotalTokens = %d", resp.Usage.TotalTokens)
	}

	// Direct matches fill both required parameters, so no semantic pass.
	if h.Provider().Calls() != 3 {
		t.Errorf("provider calls = %d, want 3", h.Provider().Calls())
	}

	// The caller's email reached the catalog unchanged, once for intent
	// classification and once from the pipeline's loading step.
	emails := h.CatalogStub().Emails()
	if len(emails) != 2 || emails[0] != "user@example.com" || emails[1] != "user@example.com" {
		t.Errorf("catalog requests = %v", emails)
	}

	history := h.Conversations().History(resp.ConversationID)
	if len(history) != 1 || history[0].EndpointID != "send_email" {
		t.Errorf("history = %+v", history)
	}
}

func TestActionableRequestWithMissingRequired(t *testing.T) {
	h := harness.New(t, harness.WithReplies(
		"ACTIONABLE",
		"send_email",
		`{"subject": "budget"}`,
		`{}`,
	))

	ctx := h.CallerContext("user@example.com")
	resp := h.Analyze(ctx, "Send an email about the budget", "")

	info := resp.MatchingInfo
	if info == nil || info.Status != api.MatchingStatusPartial {
		t.Fatalf("MatchingInfo = %+v, want partial", info)
	}
	if info.MappedRequiredFields != 1 || info.TotalRequiredFields != 2 {
		t.Errorf("required coverage = %d/%d", info.MappedRequiredFields, info.TotalRequiredFields)
	}
	if info.CompletionPercentage != 50 {
		t.Errorf("CompletionPercentage = %v, want 50", info.CompletionPercentage)
	}
	if len(info.MissingRequiredFields) != 1 || info.MissingRequiredFields[0].Name != "to" {
		t.Errorf("MissingRequiredFields = %+v", info.MissingRequiredFields)
	}

	if resp.UserPrompt == "" {
		t.Fatal("UserPrompt empty for a partial match")
	}
	if !strings.Contains(resp.UserPrompt, "recipient address") {
		t.Errorf("UserPrompt = %q, want it to name the missing field", resp.UserPrompt)
	}

	values := parameterValues(resp)
	if values["subject"] != "budget" {
		t.Errorf("subject = %q", values["subject"])
	}
	if values["to"] != "" {
		t.Errorf("unfilled parameter carries %q", values["to"])
	}
}

func TestProgressiveResumeAcrossTurns(t *testing.T) {
	h := harness.New(t,
		harness.WithProgressiveStore(),
		harness.WithReplies(
			"ACTIONABLE",
			"send_email",
			`{"subject": "budget"}`,
			`{}`,
			`{"to": "to@example.com"}`,
		),
	)
	ctx := h.CallerContext("user@example.com")

	first := h.Analyze(ctx, "Send an email about the budget", "conv-42")
	if first.MatchingInfo.Status != api.MatchingStatusPartial {
		t.Fatalf("first turn status = %v, want partial", first.MatchingInfo.Status)
	}
	if first.ConversationID != "conv-42" {
		t.Fatalf("first turn conversation = %q", first.ConversationID)
	}

	row, err := h.Store().Get(context.Background(), "conv-42", "send_email")
	if err != nil {
		t.Fatalf("Get after first turn: %v", err)
	}
	if row == nil {
		t.Fatal("partial match not persisted")
	}

	second := h.Analyze(ctx, "to@example.com", "conv-42")

	if second.Intent != api.IntentActionableRequest {
		t.Errorf("Intent = %v, want actionable", second.Intent)
	}
	if second.EndpointID != "send_email" {
		t.Errorf("EndpointID = %q", second.EndpointID)
	}
	if second.MatchingInfo.Status != api.MatchingStatusComplete {
		t.Errorf("Status = %v, want complete", second.MatchingInfo.Status)
	}
	if second.MatchingInfo.CompletionPercentage != 100 {
		t.Errorf("CompletionPercentage = %v", second.MatchingInfo.CompletionPercentage)
	}

	values := parameterValues(second)
	if values["to"] != "to@example.com" || values["subject"] != "budget" {
		t.Errorf("merged parameters = %v", values)
	}

	raw := rawJSON(t, second)
	if raw["type"] != "progressive_complete" {
		t.Errorf("json_output type = %v", raw["type"])
	}
	// The wire reports the active provider's model even though the
	// resumed turn never left the progressive store's token accounting.
	if second.Usage == nil || second.Usage.Model != "cohere" || second.Usage.TotalTokens != 70 {
		t.Errorf("Usage = %+v", second.Usage)
	}

	// Completion clears the stored match.
	row, err = h.Store().Get(context.Background(), "conv-42", "send_email")
	if err != nil {
		t.Fatalf("Get after completion: %v", err)
	}
	if row != nil {
		t.Errorf("stored match survived completion: %+v", row)
	}

	if h.Provider().Calls() != 5 {
		t.Errorf("provider calls = %d, want 5", h.Provider().Calls())
	}
}

func TestHelpRequest(t *testing.T) {
	h := harness.New(t, harness.WithReplies(
		"HELP",
		"en",
	))

	ctx := h.CallerContext("user@example.com")
	resp := h.Analyze(ctx, "what can i do with this app?", "")

	if resp.Intent != api.IntentHelpRequest {
		t.Errorf("Intent = %v, want help", resp.Intent)
	}
	if resp.EndpointID != "help_capabilities" {
		t.Errorf("EndpointID = %q", resp.EndpointID)
	}
	if resp.MatchingInfo == nil || resp.MatchingInfo.Status != api.MatchingStatusComplete {
		t.Errorf("MatchingInfo = %+v", resp.MatchingInfo)
	}

	raw := rawJSON(t, resp)
	if raw["type"] != "help_request" {
		t.Errorf("type = %v", raw["type"])
	}
	if raw["capabilities_count"] != float64(2) {
		t.Errorf("capabilities_count = %v, want the catalog size", raw["capabilities_count"])
	}
	if raw["detected_language"] != "en" {
		t.Errorf("detected_language = %v", raw["detected_language"])
	}

	response, _ := raw["response"].(string)
	for _, want := range []string{
		"• Send emails (Send an email to a recipient)",
		"• Get User (Fetch a user profile)",
	} {
		if !strings.Contains(response, want) {
			t.Errorf("capabilities list missing %q:\n%s", want, response)
		}
	}

	// English help reuses the capabilities list without a generation call.
	if h.Provider().Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", h.Provider().Calls())
	}
}

func TestGeneralFallbackAfterNoMatch(t *testing.T) {
	h := harness.New(t,
		harness.WithGeneralFallback(),
		harness.WithReplies(
			"ACTIONABLE",
			"NO_MATCH",
			"NO_MATCH",
			"I could not find a matching action, but happy to help in chat.",
		),
	)

	ctx := h.CallerContext("user@example.com")
	resp := h.Analyze(ctx, "please do the thing with the stuff", "")

	if resp.Intent != api.IntentGeneralQuestion {
		t.Errorf("Intent = %v, want general question", resp.Intent)
	}
	if resp.EndpointID != "general_conversation_fallback" {
		t.Errorf("EndpointID = %q", resp.EndpointID)
	}
	if resp.MatchingInfo == nil || resp.MatchingInfo.Status != api.MatchingStatusComplete {
		t.Errorf("MatchingInfo = %+v", resp.MatchingInfo)
	}
	if resp.MatchingInfo.TotalRequiredFields != 0 {
		t.Errorf("TotalRequiredFields = %d, want 0", resp.MatchingInfo.TotalRequiredFields)
	}

	raw := rawJSON(t, resp)
	if raw["intent"] != "actionable_request_failed" {
		t.Errorf("intent = %v", raw["intent"])
	}
	if raw["fallback_reason"] != "endpoint_matching_failed_after_retries" {
		t.Errorf("fallback_reason = %v", raw["fallback_reason"])
	}
	if raw["response"] != "I could not find a matching action, but happy to help in chat." {
		t.Errorf("response = %v", raw["response"])
	}

	if h.Provider().Calls() != 4 {
		t.Errorf("provider calls = %d, want 4", h.Provider().Calls())
	}
}

func TestMissingEmailMetadataRejected(t *testing.T) {
	h := harness.New(t)

	err := h.AnalyzeExpectError(context.Background(), "hello", "")

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("not a status error: %v", err)
	}
	if st.Code() != codes.InvalidArgument {
		t.Errorf("code = %v, want InvalidArgument", st.Code())
	}
	if st.Message() != "Email is required in request metadata. Add 'email' header to your request." {
		t.Errorf("message = %q", st.Message())
	}

	// Rejection happens before any downstream work.
	if h.Provider().Calls() != 0 {
		t.Errorf("provider ran %d times", h.Provider().Calls())
	}
	if h.CatalogStub().Fetches() != 0 {
		t.Errorf("catalog fetched %d times", h.CatalogStub().Fetches())
	}
}
