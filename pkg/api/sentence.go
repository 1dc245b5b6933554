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

package api

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
)

const (
	// SentenceServiceName is the fully-qualified gRPC service name.
	SentenceServiceName = "sentence.SentenceService"

	// SentenceServiceAnalyzeSentenceMethod is the full method path for AnalyzeSentence.
	SentenceServiceAnalyzeSentenceMethod = "/sentence.SentenceService/AnalyzeSentence"

	// SentenceServiceSendMessageMethod is the full method path for SendMessage.
	SentenceServiceSendMessageMethod = "/sentence.SentenceService/SendMessage"
)

// Metadata keys callers attach to sentence-service requests.
const (
	// EmailMetadataKey carries the caller's email. Required on every call.
	EmailMetadataKey = "email"

	// ClientIDMetadataKey carries an optional caller identifier used for
	// logging. Servers substitute a fixed default when absent.
	ClientIDMetadataKey = "client-id"
)

// Intent labels the classified intent of an analyzed sentence.
type Intent int32

const (
	// IntentActionableRequest marks input that maps to an API call.
	IntentActionableRequest Intent = 0

	// IntentGeneralQuestion marks conversational input with no API action.
	IntentGeneralQuestion Intent = 1

	// IntentHelpRequest marks a question about available capabilities.
	IntentHelpRequest Intent = 2
)

func (i Intent) String() string {
	switch i {
	case IntentActionableRequest:
		return "actionable_request"
	case IntentGeneralQuestion:
		return "general_question"
	case IntentHelpRequest:
		return "help_request"
	default:
		return fmt.Sprintf("intent(%d)", int32(i))
	}
}

// MatchingStatus reports how much of an endpoint's required parameter set
// was resolved.
type MatchingStatus int32

const (
	// MatchingStatusComplete means every required parameter has a value.
	MatchingStatusComplete MatchingStatus = 0

	// MatchingStatusPartial means some but not all required parameters
	// have values.
	MatchingStatusPartial MatchingStatus = 1

	// MatchingStatusIncomplete means no required parameter has a value.
	MatchingStatusIncomplete MatchingStatus = 2
)

func (s MatchingStatus) String() string {
	switch s {
	case MatchingStatusComplete:
		return "complete"
	case MatchingStatusPartial:
		return "partial"
	case MatchingStatusIncomplete:
		return "incomplete"
	default:
		return fmt.Sprintf("matching_status(%d)", int32(s))
	}
}

// SentenceRequest is the input to AnalyzeSentence.
type SentenceRequest struct {
	// Sentence is the natural-language input to analyze.
	Sentence string `json:"sentence"`

	// ConversationID ties the request to an existing conversation.
	// When empty the server mints a fresh id.
	ConversationID string `json:"conversation_id,omitempty"`
}

// Usage reports token consumption for one analysis.
type Usage struct {
	InputTokens  int32  `json:"input_tokens"`
	OutputTokens int32  `json:"output_tokens"`
	TotalTokens  int32  `json:"total_tokens"`
	Model        string `json:"model"`
	Estimated    bool   `json:"estimated"`
}

// Parameter is a matched endpoint parameter in a response.
type Parameter struct {
	Name        string `json:"name"`
	Description string `json:"description"`

	// SemanticValue is the resolved value, empty when unmatched.
	SemanticValue string `json:"semantic_value,omitempty"`
}

// MissingField names a parameter the caller still has to provide.
type MissingField struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// MatchingInfo summarizes parameter coverage for a matched endpoint.
type MatchingInfo struct {
	Status                MatchingStatus  `json:"status"`
	TotalRequiredFields   int32           `json:"total_required_fields"`
	MappedRequiredFields  int32           `json:"mapped_required_fields"`
	TotalOptionalFields   int32           `json:"total_optional_fields"`
	MappedOptionalFields  int32           `json:"mapped_optional_fields"`
	CompletionPercentage  float32         `json:"completion_percentage"`
	MissingRequiredFields []*MissingField `json:"missing_required_fields,omitempty"`
	MissingOptionalFields []*MissingField `json:"missing_optional_fields,omitempty"`
}

// SentenceResponse is the single frame emitted per successful analysis.
type SentenceResponse struct {
	ConversationID      string        `json:"conversation_id,omitempty"`
	EndpointID          string        `json:"endpoint_id"`
	EndpointName        string        `json:"endpoint_name,omitempty"`
	EndpointDescription string        `json:"endpoint_description"`
	Verb                string        `json:"verb,omitempty"`
	Base                string        `json:"base,omitempty"`
	Path                string        `json:"path,omitempty"`
	EssentialPath       string        `json:"essential_path,omitempty"`
	APIGroupID          string        `json:"api_group_id,omitempty"`
	APIGroupName        string        `json:"api_group_name,omitempty"`
	UserPrompt          string        `json:"user_prompt,omitempty"`
	Usage               *Usage        `json:"usage,omitempty"`
	Intent              Intent        `json:"intent"`
	Parameters          []*Parameter  `json:"parameters,omitempty"`
	JSONOutput          string        `json:"json_output"`
	MatchingInfo        *MatchingInfo `json:"matching_info,omitempty"`
}

// MessageRequest is the input to SendMessage.
type MessageRequest struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// MessageResponse is the reply to SendMessage.
type MessageResponse struct {
	Response       string `json:"response"`
	Success        bool   `json:"success"`
	ConversationID string `json:"conversation_id,omitempty"`
}

// SentenceServiceServer is the server contract for sentence analysis.
type SentenceServiceServer interface {
	// AnalyzeSentence resolves a natural-language sentence against the
	// caller's endpoint catalog, streaming exactly one response frame on
	// success.
	AnalyzeSentence(*SentenceRequest, SentenceAnalyzeServerStream) error

	// SendMessage generates a free-form conversational reply.
	SendMessage(context.Context, *MessageRequest) (*MessageResponse, error)
}

// SentenceAnalyzeServerStream is the server-side send stream for
// AnalyzeSentence.
type SentenceAnalyzeServerStream interface {
	Send(*SentenceResponse) error
	grpc.ServerStream
}

type sentenceAnalyzeServerStream struct {
	grpc.ServerStream
}

func (x *sentenceAnalyzeServerStream) Send(resp *SentenceResponse) error {
	return x.ServerStream.SendMsg(resp)
}

// RegisterSentenceServiceServer registers srv on the given gRPC registrar.
func RegisterSentenceServiceServer(s grpc.ServiceRegistrar, srv SentenceServiceServer) {
	s.RegisterService(&SentenceServiceDesc, srv)
}

func analyzeSentenceHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(SentenceRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SentenceServiceServer).AnalyzeSentence(in, &sentenceAnalyzeServerStream{stream})
}

func sendMessageHandler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(MessageRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SentenceServiceServer).SendMessage(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SentenceServiceSendMessageMethod,
	}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(SentenceServiceServer).SendMessage(ctx, req.(*MessageRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// SentenceServiceDesc is the gRPC service descriptor for SentenceService.
var SentenceServiceDesc = grpc.ServiceDesc{
	ServiceName: SentenceServiceName,
	HandlerType: (*SentenceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendMessage",
			Handler:    sendMessageHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "AnalyzeSentence",
			Handler:       analyzeSentenceHandler,
			ServerStreams: true,
		},
	},
	Metadata: "sentence_service.proto",
}

// SentenceServiceClient is the client contract for sentence analysis.
type SentenceServiceClient interface {
	AnalyzeSentence(ctx context.Context, in *SentenceRequest, opts ...grpc.CallOption) (SentenceAnalyzeClientStream, error)
	SendMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*MessageResponse, error)
}

// SentenceAnalyzeClientStream is the client-side receive stream for
// AnalyzeSentence.
type SentenceAnalyzeClientStream interface {
	Recv() (*SentenceResponse, error)
	grpc.ClientStream
}

type sentenceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewSentenceServiceClient creates a SentenceService client on cc.
// Every call is pinned to the JSON codec.
func NewSentenceServiceClient(cc grpc.ClientConnInterface) SentenceServiceClient {
	return &sentenceServiceClient{cc: cc}
}

func (c *sentenceServiceClient) AnalyzeSentence(ctx context.Context, in *SentenceRequest, opts ...grpc.CallOption) (SentenceAnalyzeClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &SentenceServiceDesc.Streams[0], SentenceServiceAnalyzeSentenceMethod, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &sentenceAnalyzeClientStream{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type sentenceAnalyzeClientStream struct {
	grpc.ClientStream
}

func (x *sentenceAnalyzeClientStream) Recv() (*SentenceResponse, error) {
	m := new(SentenceResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (c *sentenceServiceClient) SendMessage(ctx context.Context, in *MessageRequest, opts ...grpc.CallOption) (*MessageResponse, error) {
	out := new(MessageResponse)
	if err := c.cc.Invoke(ctx, SentenceServiceSendMessageMethod, in, out, callOptions(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
