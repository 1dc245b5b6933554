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

	"google.golang.org/grpc"
)

const (
	// EndpointServiceName is the fully-qualified gRPC service name of the
	// remote endpoint catalog.
	EndpointServiceName = "endpoint.EndpointService"

	// EndpointServiceGetApiGroupsMethod is the full method path for GetApiGroups.
	EndpointServiceGetApiGroupsMethod = "/endpoint.EndpointService/GetApiGroups"
)

// APIGroupsRequest asks the catalog for the API groups visible to a user.
type APIGroupsRequest struct {
	Email string `json:"email"`
}

// APIGroupsResponse is one streamed batch of API groups.
type APIGroupsResponse struct {
	APIGroups []*APIGroup `json:"api_groups"`
}

// APIGroup is a named collection of remote endpoints.
type APIGroup struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Endpoints []*RemoteEndpoint `json:"endpoints"`
}

// RemoteEndpoint is the catalog's wire form of an endpoint.
type RemoteEndpoint struct {
	ID          string             `json:"id"`
	Text        string             `json:"text"`
	Description string             `json:"description"`
	Verb        string             `json:"verb"`
	Base        string             `json:"base"`
	Path        string             `json:"path"`
	Parameters  []*RemoteParameter `json:"parameters"`
}

// RemoteParameter is the catalog's wire form of a parameter.
// Required arrives as the string "true" or "false".
type RemoteParameter struct {
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Required     string   `json:"required"`
	Alternatives []string `json:"alternatives,omitempty"`
}

// EndpointServiceServer is the server contract for the endpoint catalog.
// semroute only consumes this service; the interface exists so tests can
// stand in for a remote catalog.
type EndpointServiceServer interface {
	GetAPIGroups(*APIGroupsRequest, APIGroupsServerStream) error
}

// APIGroupsServerStream is the server-side send stream for GetApiGroups.
type APIGroupsServerStream interface {
	Send(*APIGroupsResponse) error
	grpc.ServerStream
}

type apiGroupsServerStream struct {
	grpc.ServerStream
}

func (x *apiGroupsServerStream) Send(resp *APIGroupsResponse) error {
	return x.ServerStream.SendMsg(resp)
}

// RegisterEndpointServiceServer registers srv on the given gRPC registrar.
func RegisterEndpointServiceServer(s grpc.ServiceRegistrar, srv EndpointServiceServer) {
	s.RegisterService(&EndpointServiceDesc, srv)
}

func getAPIGroupsHandler(srv interface{}, stream grpc.ServerStream) error {
	in := new(APIGroupsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(EndpointServiceServer).GetAPIGroups(in, &apiGroupsServerStream{stream})
}

// EndpointServiceDesc is the gRPC service descriptor for EndpointService.
var EndpointServiceDesc = grpc.ServiceDesc{
	ServiceName: EndpointServiceName,
	HandlerType: (*EndpointServiceServer)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "GetApiGroups",
			Handler:       getAPIGroupsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "endpoint_service.proto",
}

// EndpointServiceClient is the client contract for the endpoint catalog.
type EndpointServiceClient interface {
	GetAPIGroups(ctx context.Context, in *APIGroupsRequest, opts ...grpc.CallOption) (APIGroupsClientStream, error)
}

// APIGroupsClientStream is the client-side receive stream for GetApiGroups.
type APIGroupsClientStream interface {
	Recv() (*APIGroupsResponse, error)
	grpc.ClientStream
}

type endpointServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewEndpointServiceClient creates an EndpointService client on cc.
// Every call is pinned to the JSON codec.
func NewEndpointServiceClient(cc grpc.ClientConnInterface) EndpointServiceClient {
	return &endpointServiceClient{cc: cc}
}

func (c *endpointServiceClient) GetAPIGroups(ctx context.Context, in *APIGroupsRequest, opts ...grpc.CallOption) (APIGroupsClientStream, error) {
	stream, err := c.cc.NewStream(ctx, &EndpointServiceDesc.Streams[0], EndpointServiceGetApiGroupsMethod, callOptions(opts)...)
	if err != nil {
		return nil, err
	}
	x := &apiGroupsClientStream{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

type apiGroupsClientStream struct {
	grpc.ClientStream
}

func (x *apiGroupsClientStream) Recv() (*APIGroupsResponse, error) {
	m := new(APIGroupsResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}
