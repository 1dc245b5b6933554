// Package harness assembles a complete sentence-analysis stack for
// end-to-end tests: a scripted model provider, an in-memory endpoint
// catalog served over gRPC and consumed through the real catalog client,
// an optional progressive-matching store, and the sentence service
// reached through a real client connection.
package harness

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/test/bufconn"

	"github.com/tombee/semroute/internal/analysis"
	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/internal/conversation"
	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/internal/rpc"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/prompts"
)

// defaultTimeout bounds one analysis round trip. Scripted providers answer
// immediately, so anything near this limit is a hang.
const defaultTimeout = 30 * time.Second

// Harness wires the full analysis stack behind in-memory listeners.
// Construction registers cleanup through t.Cleanup, so tests only consume.
type Harness struct {
	t *testing.T

	provider *MockProvider
	groups   []*api.APIGroup
	analysis config.AnalysisConfig
	store    bool

	catalogStub   *CatalogStub
	catalogClient *catalog.Client
	progressive   *progressive.Store
	conversations *conversation.Manager
	client        api.SentenceServiceClient
}

// New builds the stack. Options configure the provider script, the served
// catalog, retry behavior, and progressive matching; the defaults are a
// two-endpoint catalog, a single analysis attempt, and no store.
func New(t *testing.T, opts ...Option) *Harness {
	t.Helper()

	h := &Harness{
		t:        t,
		groups:   DefaultAPIGroups(),
		analysis: config.AnalysisConfig{RetryAttempts: 1},
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.provider == nil {
		h.provider = NewMockProvider()
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	h.catalogStub = &CatalogStub{groups: h.groups}
	h.catalogClient = startCatalog(t, h.catalogStub, logger)

	if h.store {
		store, err := progressive.Open(progressive.Config{Path: ":memory:", Logger: logger})
		if err != nil {
			t.Fatalf("open progressive store: %v", err)
		}
		t.Cleanup(func() { _ = store.Close() })
		h.progressive = store
	}

	t.Setenv(prompts.EnvPath, "")
	registry, err := prompts.Load("")
	if err != nil {
		t.Fatalf("load prompt registry: %v", err)
	}

	h.conversations = conversation.NewManager(logger)

	svc := rpc.NewSentenceService(rpc.SentenceServiceConfig{
		Analyzer: &analysis.Analyzer{
			Provider: h.provider,
			Catalog:  h.catalogClient,
			Prompts:  registry,
			Store:    h.progressive,
			Analysis: h.analysis,
			Logger:   logger,
		},
		Conversations: h.conversations,
		Provider:      h.provider,
		APIURL:        h.catalogClient.Address(),
		Logger:        logger,
	})
	h.client = startSentenceService(t, svc, logger)

	return h
}

// startCatalog serves the stub over an in-memory listener and returns a
// real catalog client dialing it.
func startCatalog(t *testing.T, stub *CatalogStub, logger *slog.Logger) *catalog.Client {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	api.RegisterEndpointServiceServer(srv, stub)
	go func() {
		_ = srv.Serve(lis)
	}()
	t.Cleanup(srv.Stop)

	return catalog.NewClient(catalog.ClientConfig{
		Address: "passthrough:///catalog",
		DialOptions: []grpc.DialOption{
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
		},
	}, logger)
}

// startSentenceService runs the sentence server on an in-memory listener
// and returns a connected client.
func startSentenceService(t *testing.T, svc api.SentenceServiceServer, logger *slog.Logger) api.SentenceServiceClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := rpc.NewServer(rpc.ServerConfig{Logger: logger}, svc)
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
		t.Fatalf("dial sentence service: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	return api.NewSentenceServiceClient(conn)
}

// CallerContext returns a context carrying the metadata a well-behaved
// client sends: the caller's email and a client identifier.
func (h *Harness) CallerContext(email string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(),
		api.EmailMetadataKey, email,
		api.ClientIDMetadataKey, "e2e-harness",
	)
}

// Analyze runs one sentence through the service and returns the single
// response frame, failing the test on any error. It also verifies the
// stream closes cleanly after that frame.
func (h *Harness) Analyze(ctx context.Context, sentence, conversationID string) *api.SentenceResponse {
	h.t.Helper()

	resp, err := h.analyze(ctx, sentence, conversationID)
	if err != nil {
		h.t.Fatalf("analyze %q: %v", sentence, err)
	}
	return resp
}

// AnalyzeExpectError runs one sentence expecting the call to fail, and
// returns the error. The test fails if the analysis succeeds.
func (h *Harness) AnalyzeExpectError(ctx context.Context, sentence, conversationID string) error {
	h.t.Helper()

	resp, err := h.analyze(ctx, sentence, conversationID)
	if err == nil {
		h.t.Fatalf("analyze %q succeeded with endpoint %q, want error", sentence, resp.EndpointID)
	}
	return err
}

func (h *Harness) analyze(ctx context.Context, sentence, conversationID string) (*api.SentenceResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stream, err := h.client.AnalyzeSentence(ctx, &api.SentenceRequest{
		Sentence:       sentence,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}

	resp, err := stream.Recv()
	if err != nil {
		return nil, err
	}

	if _, err := stream.Recv(); !stderrors.Is(err, io.EOF) {
		h.t.Fatalf("stream did not close after the response frame: %v", err)
	}
	return resp, nil
}

// SendMessage calls the unary conversational endpoint.
func (h *Harness) SendMessage(ctx context.Context, message, conversationID string) (*api.MessageResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	return h.client.SendMessage(ctx, &api.MessageRequest{
		Message:        message,
		ConversationID: conversationID,
	})
}

// Provider returns the scripted provider for call and prompt assertions.
func (h *Harness) Provider() *MockProvider {
	return h.provider
}

// Catalog returns the real catalog client wired to the stub backend.
func (h *Harness) Catalog() *catalog.Client {
	return h.catalogClient
}

// CatalogStub returns the served backend for request assertions.
func (h *Harness) CatalogStub() *CatalogStub {
	return h.catalogStub
}

// Store returns the progressive store, or nil when the harness runs
// without one.
func (h *Harness) Store() *progressive.Store {
	return h.progressive
}

// Conversations returns the conversation manager backing the service.
func (h *Harness) Conversations() *conversation.Manager {
	return h.conversations
}
