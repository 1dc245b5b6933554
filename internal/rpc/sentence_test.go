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

package rpc

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"strings"
	"testing"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/tombee/semroute/internal/analysis"
	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/internal/conversation"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/matching"
	"github.com/tombee/semroute/pkg/prompts"
)

type fakeProvider struct {
	replies []string
	err     error

	calls int
}

func (f *fakeProvider) ModelName() string { return "cohere" }

func (f *fakeProvider) Generate(_ context.Context, _ string, _ *llm.ModelConfig) (*llm.GenerationResult, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}

	reply := ""
	switch {
	case f.calls-1 < len(f.replies):
		reply = f.replies[f.calls-1]
	case len(f.replies) > 0:
		reply = f.replies[len(f.replies)-1]
	}
	return &llm.GenerationResult{
		Content: reply,
		Usage:   llm.UsageInfo{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Model: "cohere"},
	}, nil
}

type fakeCatalog struct {
	endpoints []catalog.Endpoint
	err       error
}

func (f *fakeCatalog) Health(context.Context) bool { return f.err == nil }

func (f *fakeCatalog) Fetch(context.Context, string) ([]catalog.Endpoint, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.endpoints, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRegistry(t *testing.T) *prompts.Registry {
	t.Helper()
	t.Setenv(prompts.EnvPath, "")
	reg, err := prompts.Load("")
	if err != nil {
		t.Fatalf("load prompt registry: %v", err)
	}
	return reg
}

func sampleEndpoints() []catalog.Endpoint {
	return []catalog.Endpoint{
		{
			ID:          "send_email",
			Name:        "Send Email",
			Description: "Send an email to a recipient",
			Verb:        "POST",
			Base:        "https://api.example.com",
			Path:        "/email/send",
			Parameters: []catalog.Parameter{
				{Name: "to", Description: "recipient address", Required: true},
				{Name: "subject", Description: "subject line", Required: true},
			},
		},
	}
}

// testService assembles a service over scripted fakes and returns it with
// the conversation manager so tests can inspect history.
func testService(t *testing.T, provider *fakeProvider, cat *fakeCatalog) (*SentenceService, *conversation.Manager) {
	t.Helper()

	manager := conversation.NewManager(quietLogger())
	svc := NewSentenceService(SentenceServiceConfig{
		Analyzer: &analysis.Analyzer{
			Provider: provider,
			Catalog:  cat,
			Prompts:  testRegistry(t),
			Analysis: config.AnalysisConfig{RetryAttempts: 1},
			Logger:   quietLogger(),
		},
		Conversations: manager,
		Provider:      provider,
		APIURL:        "http://localhost:50053",
		Logger:        quietLogger(),
	})
	return svc, manager
}

func startServer(t *testing.T, svc api.SentenceServiceServer) api.SentenceServiceClient {
	t.Helper()

	lis := bufconn.Listen(1024 * 1024)
	srv := NewServer(ServerConfig{Logger: quietLogger()}, svc)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	conn, err := grpc.NewClient("passthrough:///semroute",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return api.NewSentenceServiceClient(conn)
}

func callerContext(email string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(),
		api.EmailMetadataKey, email,
		api.ClientIDMetadataKey, "test-client",
	)
}

func TestAnalyzeSentenceStreamsOneFrame(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"GENERAL",
		"Paris is the capital of France.",
	}}
	svc, manager := testService(t, provider, &fakeCatalog{endpoints: sampleEndpoints()})
	client := startServer(t, svc)

	stream, err := client.AnalyzeSentence(callerContext("user@example.com"),
		&api.SentenceRequest{Sentence: "what is the capital of France?"})
	if err != nil {
		t.Fatalf("AnalyzeSentence: %v", err)
	}

	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if resp.ConversationID == "" {
		t.Error("ConversationID empty")
	}
	if resp.EndpointID != "general_conversation" {
		t.Errorf("EndpointID = %q", resp.EndpointID)
	}
	if resp.Intent != api.IntentGeneralQuestion {
		t.Errorf("Intent = %v", resp.Intent)
	}
	if resp.Usage == nil || resp.Usage.Model != "cohere" || resp.Usage.TotalTokens != 15 {
		t.Errorf("Usage = %+v", resp.Usage)
	}
	if resp.MatchingInfo == nil || resp.MatchingInfo.Status != api.MatchingStatusComplete {
		t.Errorf("MatchingInfo = %+v", resp.MatchingInfo)
	}
	if resp.UserPrompt != "" {
		t.Errorf("UserPrompt = %q", resp.UserPrompt)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(resp.JSONOutput), &raw); err != nil {
		t.Fatalf("JSONOutput not valid JSON: %v", err)
	}
	if raw["response"] != "Paris is the capital of France." {
		t.Errorf("json_output response = %v", raw["response"])
	}

	if _, err := stream.Recv(); !stderrors.Is(err, io.EOF) {
		t.Errorf("expected EOF after single frame, got %v", err)
	}

	history := manager.History(resp.ConversationID)
	if len(history) != 1 {
		t.Fatalf("history = %d messages, want 1", len(history))
	}
	if history[0].Input != "what is the capital of France?" {
		t.Errorf("history input = %q", history[0].Input)
	}
	if history[0].EndpointID != "general_conversation" {
		t.Errorf("history endpoint = %q", history[0].EndpointID)
	}
}

func TestAnalyzeSentencePartialMatchOnTheWire(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"ACTIONABLE",
		"send_email",
		`{"subject": "budget"}`,
		`{}`,
	}}
	svc, _ := testService(t, provider, &fakeCatalog{endpoints: sampleEndpoints()})
	client := startServer(t, svc)

	stream, err := client.AnalyzeSentence(callerContext("user@example.com"),
		&api.SentenceRequest{Sentence: "send an email about the budget"})
	if err != nil {
		t.Fatalf("AnalyzeSentence: %v", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if resp.EndpointID != "send_email" || resp.Verb != "POST" {
		t.Errorf("endpoint = %q %q", resp.EndpointID, resp.Verb)
	}
	if resp.Intent != api.IntentActionableRequest {
		t.Errorf("Intent = %v", resp.Intent)
	}
	if resp.MatchingInfo.Status != api.MatchingStatusPartial {
		t.Errorf("Status = %v", resp.MatchingInfo.Status)
	}
	if len(resp.MatchingInfo.MissingRequiredFields) != 1 ||
		resp.MatchingInfo.MissingRequiredFields[0].Name != "to" {
		t.Errorf("MissingRequiredFields = %+v", resp.MatchingInfo.MissingRequiredFields)
	}
	if resp.UserPrompt == "" {
		t.Error("UserPrompt empty for partial match")
	}

	values := map[string]string{}
	for _, p := range resp.Parameters {
		values[p.Name] = p.SemanticValue
	}
	if values["subject"] != "budget" {
		t.Errorf("parameters = %v", values)
	}
	if values["to"] != "" {
		t.Errorf("unmatched parameter carries value %q", values["to"])
	}
}

func TestAnalyzeSentenceReusesConversationID(t *testing.T) {
	provider := &fakeProvider{replies: []string{
		"GENERAL",
		"Sure.",
	}}
	svc, manager := testService(t, provider, &fakeCatalog{endpoints: sampleEndpoints()})
	client := startServer(t, svc)

	stream, err := client.AnalyzeSentence(callerContext("user@example.com"),
		&api.SentenceRequest{Sentence: "hello", ConversationID: "client-chosen-id"})
	if err != nil {
		t.Fatalf("AnalyzeSentence: %v", err)
	}
	resp, err := stream.Recv()
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}

	if resp.ConversationID != "client-chosen-id" {
		t.Errorf("ConversationID = %q, want client-chosen-id", resp.ConversationID)
	}
	if _, ok := manager.Get("client-chosen-id"); !ok {
		t.Error("client conversation id not registered")
	}
}

func TestAnalyzeSentenceMetadataValidation(t *testing.T) {
	provider := &fakeProvider{}
	svc, _ := testService(t, provider, &fakeCatalog{endpoints: sampleEndpoints()})
	client := startServer(t, svc)

	t.Run("missing email", func(t *testing.T) {
		stream, err := client.AnalyzeSentence(context.Background(), &api.SentenceRequest{Sentence: "hello"})
		if err == nil {
			_, err = stream.Recv()
		}
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.InvalidArgument {
			t.Fatalf("status = %v", err)
		}
		if st.Message() != "Email is required in request metadata. Add 'email' header to your request." {
			t.Errorf("message = %q", st.Message())
		}
	})

	t.Run("invalid email", func(t *testing.T) {
		stream, err := client.AnalyzeSentence(callerContext("not-an-email"), &api.SentenceRequest{Sentence: "hello"})
		if err == nil {
			_, err = stream.Recv()
		}
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.InvalidArgument {
			t.Fatalf("status = %v", err)
		}
		if !strings.HasPrefix(st.Message(), "Email validation failed:") {
			t.Errorf("message = %q", st.Message())
		}
	})

	if provider.calls != 0 {
		t.Errorf("provider called %d times for rejected requests", provider.calls)
	}
}

func TestAnalyzeSentenceMapsNoEndpointsToNotFound(t *testing.T) {
	cat := &fakeCatalog{err: &errors.NotFoundError{
		Resource: "endpoints",
		ID:       "user@example.com",
		Message:  "No endpoints found for user 'user@example.com'. Contact administrator.",
	}}
	svc, _ := testService(t, &fakeProvider{}, cat)
	client := startServer(t, svc)

	stream, err := client.AnalyzeSentence(callerContext("user@example.com"),
		&api.SentenceRequest{Sentence: "send an email"})
	if err == nil {
		_, err = stream.Recv()
	}

	st, ok := status.FromError(err)
	if !ok {
		t.Fatalf("not a status error: %v", err)
	}
	if st.Code() != codes.NotFound {
		t.Errorf("code = %v, want NotFound", st.Code())
	}
	want := "No endpoints configured for your account (user@example.com). Please contact your administrator."
	if st.Message() != want {
		t.Errorf("message = %q, want %q", st.Message(), want)
	}
}

func TestAnalysisStatusMapping(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode codes.Code
	}{
		{
			name:     "missing endpoints",
			err:      stderrors.New("step enhanced_configuration_loading failed: No endpoints found for user 'a@b.co'. Contact administrator."),
			wantCode: codes.NotFound,
		},
		{
			name:     "missing configuration",
			err:      stderrors.New("No endpoint configuration available"),
			wantCode: codes.FailedPrecondition,
		},
		{
			name:     "anything else",
			err:      stderrors.New("model exploded"),
			wantCode: codes.Internal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st, ok := status.FromError(analysisStatus(tt.err, "a@b.co"))
			if !ok {
				t.Fatalf("not a status error")
			}
			if st.Code() != tt.wantCode {
				t.Errorf("code = %v, want %v", st.Code(), tt.wantCode)
			}
		})
	}
}

func TestSendMessage(t *testing.T) {
	provider := &fakeProvider{replies: []string{"A friendly reply."}}
	svc, _ := testService(t, provider, &fakeCatalog{endpoints: sampleEndpoints()})
	client := startServer(t, svc)

	t.Run("empty message", func(t *testing.T) {
		_, err := client.SendMessage(context.Background(), &api.MessageRequest{Message: "   "})
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.InvalidArgument {
			t.Fatalf("status = %v", err)
		}
		if st.Message() != "Message cannot be empty" {
			t.Errorf("message = %q", st.Message())
		}
	})

	t.Run("generates reply", func(t *testing.T) {
		resp, err := client.SendMessage(context.Background(), &api.MessageRequest{Message: "hello there"})
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		if !resp.Success {
			t.Error("Success = false")
		}
		if resp.Response != "A friendly reply." {
			t.Errorf("Response = %q", resp.Response)
		}
		if resp.ConversationID == "" {
			t.Error("ConversationID not minted")
		}
	})

	t.Run("keeps conversation id", func(t *testing.T) {
		resp, err := client.SendMessage(context.Background(),
			&api.MessageRequest{Message: "hello again", ConversationID: "conv-77"})
		if err != nil {
			t.Fatalf("SendMessage: %v", err)
		}
		if resp.ConversationID != "conv-77" {
			t.Errorf("ConversationID = %q", resp.ConversationID)
		}
	})

	t.Run("generation failure", func(t *testing.T) {
		failing := &fakeProvider{err: stderrors.New("model offline")}
		svc, _ := testService(t, failing, &fakeCatalog{endpoints: sampleEndpoints()})
		client := startServer(t, svc)

		_, err := client.SendMessage(context.Background(), &api.MessageRequest{Message: "hello"})
		st, ok := status.FromError(err)
		if !ok || st.Code() != codes.Internal {
			t.Fatalf("status = %v", err)
		}
		if st.Message() != "Failed to generate response" {
			t.Errorf("message = %q", st.Message())
		}
	})
}

func TestDedupeMissing(t *testing.T) {
	svc := NewSentenceService(SentenceServiceConfig{Logger: quietLogger()})

	out := svc.dedupeMissing([]matching.MissingField{
		{Name: "to", Description: "recipient"},
		{Name: "to", Description: "recipient again"},
		{Name: "subject", Description: "subject line"},
	}, "required")

	if len(out) != 2 {
		t.Fatalf("got %d fields, want 2", len(out))
	}
	if out[0].Name != "to" || out[0].Description != "recipient" {
		t.Errorf("first kept field = %+v", out[0])
	}
	if out[1].Name != "subject" {
		t.Errorf("second kept field = %+v", out[1])
	}
}
