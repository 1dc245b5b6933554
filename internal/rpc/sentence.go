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
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"github.com/tombee/semroute/internal/analysis"
	"github.com/tombee/semroute/internal/conversation"
	"github.com/tombee/semroute/internal/log"
	"github.com/tombee/semroute/internal/metrics"
	"github.com/tombee/semroute/internal/tracing"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/matching"
)

// responseBufferSize bounds the per-call response channel. One frame per
// call leaves plenty of slack; the bound exists so an abandoned stream
// never blocks the producer forever.
const responseBufferSize = 10

// defaultClientID stands in when the caller sends no client-id metadata.
const defaultClientID = "unknown-client"

// SentenceServiceConfig wires a SentenceService.
type SentenceServiceConfig struct {
	// Analyzer runs the analysis pipeline. Required.
	Analyzer *analysis.Analyzer

	// Conversations tracks conversation ids and history. Required.
	Conversations *conversation.Manager

	// Provider answers SendMessage calls and names the model reported in
	// response usage. Required.
	Provider llm.Provider

	// Models supplies the generation config for SendMessage.
	Models llm.ModelsConfig

	// APIURL is recorded on new conversations for diagnostics.
	APIURL string

	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// SentenceService implements api.SentenceServiceServer.
type SentenceService struct {
	analyzer      *analysis.Analyzer
	conversations *conversation.Manager
	provider      llm.Provider
	models        llm.ModelsConfig
	apiURL        string
	logger        *slog.Logger
	middleware    *log.RPCMiddleware
}

// NewSentenceService creates the service.
func NewSentenceService(cfg SentenceServiceConfig) *SentenceService {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &SentenceService{
		analyzer:      cfg.Analyzer,
		conversations: cfg.Conversations,
		provider:      cfg.Provider,
		models:        cfg.Models,
		apiURL:        cfg.APIURL,
		logger:        cfg.Logger,
		middleware:    log.NewRPCMiddleware(cfg.Logger),
	}
}

// frame is one producer-to-stream hand-off: a response or a terminal
// status, never both.
type frame struct {
	resp *api.SentenceResponse
	err  error
}

// AnalyzeSentence resolves one sentence against the caller's catalog and
// streams the single response frame. The analysis runs in a producer
// goroutine feeding a bounded channel; if the caller goes away the send
// fails and the call is abandoned with a log line.
func (s *SentenceService) AnalyzeSentence(req *api.SentenceRequest, stream api.SentenceAnalyzeServerStream) error {
	// The correlation id rides the context from here through the catalog
	// and provider calls, so one sentence can be followed across services.
	ctx, corrID := tracing.FromIncomingGRPC(stream.Context())

	metrics.StreamOpened()
	defer metrics.StreamClosed()

	md, _ := metadata.FromIncomingContext(ctx)
	clientID := clientIDFromMetadata(md)

	email, err := emailFromMetadata(md)
	if err != nil {
		s.logger.Error("email validation failed", "client_id", clientID, "error", err)
		return err
	}

	conversationID := s.conversations.Ensure(req.ConversationID, email, s.apiURL)
	callLogger := log.WithClientID(log.WithConversationID(s.logger, conversationID), clientID)

	mreq := &log.RPCRequest{
		Method:         "AnalyzeSentence",
		ConversationID: conversationID,
		ClientID:       clientID,
		RemoteAddr:     remoteAddr(ctx),
		Metadata: map[string]interface{}{
			"email":          email,
			"sentence":       req.Sentence,
			"correlation_id": corrID.String(),
		},
	}

	_, err = s.middleware.HandlerWithMetadata(mreq, func() (map[string]interface{}, error) {
		frames := make(chan frame, responseBufferSize)
		go s.produce(ctx, callLogger, req.Sentence, email, conversationID, frames)

		var meta map[string]interface{}
		for f := range frames {
			if f.err != nil {
				return nil, f.err
			}
			if err := stream.Send(f.resp); err != nil {
				callLogger.Error("failed to send response, stream closed",
					"email", email,
					"error", err,
				)
				return nil, err
			}
			if f.resp.Usage != nil {
				meta = map[string]interface{}{
					"intent":       f.resp.Intent.String(),
					"total_tokens": f.resp.Usage.TotalTokens,
				}
			}
		}
		return meta, nil
	})
	return err
}

func (s *SentenceService) produce(ctx context.Context, logger *slog.Logger, sentence, email, conversationID string, out chan<- frame) {
	defer close(out)

	result, err := s.analyzer.Analyze(ctx, sentence, email, conversationID)
	if err != nil {
		logger.Error("analysis failed",
			"sentence", sentence,
			"email", email,
			"error", err,
		)
		out <- frame{err: analysisStatus(err, email)}
		return
	}

	logger.Info("analysis completed",
		"email", email,
		"input_tokens", result.Usage.InputTokens,
		"output_tokens", result.Usage.OutputTokens,
	)

	s.recordHistory(logger, conversationID, sentence, result)

	out <- frame{resp: s.buildResponse(conversationID, result)}
}

// recordHistory appends the turn to the conversation. History is
// best-effort: failures are logged and the response still goes out.
func (s *SentenceService) recordHistory(logger *slog.Logger, conversationID, sentence string, result *analysis.Result) {
	params, err := json.Marshal(result.Parameters)
	if err != nil {
		params = nil
	}
	if err := s.conversations.AddMessage(conversationID, sentence, result.EndpointID, params); err != nil {
		logger.Warn("failed to save message to conversation history", "error", err)
	}
}

func (s *SentenceService) buildResponse(conversationID string, result *analysis.Result) *api.SentenceResponse {
	jsonOutput, err := json.Marshal(result.RawJSON)
	if err != nil {
		s.logger.Error("json serialization failed", "error", err)
		jsonOutput = []byte(fmt.Sprintf(`{"error": "JSON serialization failed: %s"}`, err))
	}

	params := make([]*api.Parameter, 0, len(result.Parameters))
	for _, p := range result.Parameters {
		wire := &api.Parameter{Name: p.Name, Description: p.Description}
		if p.Value != nil {
			wire.SemanticValue = *p.Value
		}
		params = append(params, wire)
	}

	userPrompt := ""
	if result.UserPrompt != nil {
		userPrompt = *result.UserPrompt
	}

	return &api.SentenceResponse{
		ConversationID:      conversationID,
		EndpointID:          result.EndpointID,
		EndpointName:        result.EndpointName,
		EndpointDescription: result.EndpointDescription,
		Verb:                result.Verb,
		Base:                result.Base,
		Path:                result.Path,
		EssentialPath:       result.EssentialPath,
		APIGroupID:          result.APIGroupID,
		APIGroupName:        result.APIGroupName,
		UserPrompt:          userPrompt,
		Usage: &api.Usage{
			InputTokens:  int32(result.Usage.InputTokens),
			OutputTokens: int32(result.Usage.OutputTokens),
			TotalTokens:  int32(result.Usage.TotalTokens),
			// The wire always reports the active provider's model,
			// whatever internal tag the orchestrator used.
			Model:     s.provider.ModelName(),
			Estimated: result.Usage.Estimated,
		},
		Intent:       result.Intent,
		Parameters:   params,
		JSONOutput:   string(jsonOutput),
		MatchingInfo: s.wireMatchingInfo(result.MatchingInfo),
	}
}

func (s *SentenceService) wireMatchingInfo(info matching.Info) *api.MatchingInfo {
	return &api.MatchingInfo{
		Status:                wireStatus(info.Status),
		TotalRequiredFields:   int32(info.TotalRequired),
		MappedRequiredFields:  int32(info.MappedRequired),
		TotalOptionalFields:   int32(info.TotalOptional),
		MappedOptionalFields:  int32(info.MappedOptional),
		CompletionPercentage:  float32(info.CompletionPercentage),
		MissingRequiredFields: s.dedupeMissing(info.MissingRequired, "required"),
		MissingOptionalFields: s.dedupeMissing(info.MissingOptional, "optional"),
	}
}

func wireStatus(st matching.Status) api.MatchingStatus {
	switch st {
	case matching.StatusPartial:
		return api.MatchingStatusPartial
	case matching.StatusIncomplete:
		return api.MatchingStatusIncomplete
	default:
		return api.MatchingStatusComplete
	}
}

// dedupeMissing keeps the first field per name. Duplicates indicate a
// catalog with repeated parameter definitions; they are filtered here so
// clients never render the same question twice.
func (s *SentenceService) dedupeMissing(fields []matching.MissingField, kind string) []*api.MissingField {
	out := make([]*api.MissingField, 0, len(fields))
	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if seen[f.Name] {
			s.logger.Warn("duplicate missing field filtered", "kind", kind, "name", f.Name)
			continue
		}
		seen[f.Name] = true
		out = append(out, &api.MissingField{Name: f.Name, Description: f.Description})
	}
	return out
}

// analysisStatus maps an analysis error onto the gRPC status the caller
// sees. The two message probes are load-bearing: the pipeline phrases
// those failures consistently so they can be classified here.
func analysisStatus(err error, email string) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "No endpoints found for user"):
		return status.Errorf(codes.NotFound,
			"No endpoints configured for your account (%s). Please contact your administrator.", email)
	case strings.Contains(msg, "No endpoint configuration available"):
		return status.Error(codes.FailedPrecondition, "Endpoint configuration is not available.")
	default:
		return status.Errorf(codes.Internal, "Analysis failed: %v", err)
	}
}

func emailFromMetadata(md metadata.MD) (string, error) {
	values := md.Get(api.EmailMetadataKey)
	if len(values) == 0 {
		return "", status.Error(codes.InvalidArgument,
			"Email is required in request metadata. Add 'email' header to your request.")
	}
	email := values[0]
	if err := catalog.ValidateEmail(email); err != nil {
		return "", status.Errorf(codes.InvalidArgument, "Email validation failed: %v", err)
	}
	return email, nil
}

func clientIDFromMetadata(md metadata.MD) string {
	if values := md.Get(api.ClientIDMetadataKey); len(values) > 0 {
		return values[0]
	}
	return defaultClientID
}

// remoteAddr extracts the caller's transport address for request logging.
func remoteAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}

// SendMessage generates a conversational reply outside the analysis
// pipeline.
func (s *SentenceService) SendMessage(ctx context.Context, req *api.MessageRequest) (*api.MessageResponse, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, status.Error(codes.InvalidArgument, "Message cannot be empty")
	}

	conversationID := req.ConversationID
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	ctx, corrID := tracing.FromIncomingGRPC(ctx)

	mreq := &log.RPCRequest{
		Method:         "SendMessage",
		ConversationID: conversationID,
		RemoteAddr:     remoteAddr(ctx),
		Metadata: map[string]interface{}{
			"correlation_id": corrID.String(),
		},
	}

	var resp *api.MessageResponse
	err := s.middleware.Handler(mreq, func() error {
		cfg := s.models.For("sentence_to_json")
		result, err := s.provider.Generate(ctx, req.Message, &cfg)
		if err != nil {
			s.logger.Error("failed to generate response", "conversation_id", conversationID, "error", err)
			return status.Error(codes.Internal, "Failed to generate response")
		}
		resp = &api.MessageResponse{
			Response:       result.Content,
			Success:        true,
			ConversationID: conversationID,
		}
		return nil
	})
	return resp, err
}
