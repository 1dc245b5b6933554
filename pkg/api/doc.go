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

/*
Package api defines the gRPC wire contract for semroute.

Two services share this package:

  - sentence.SentenceService: the analysis façade semroute serves.
    AnalyzeSentence is server-streaming and emits exactly one response
    frame per successful call; SendMessage is a unary conversational
    fallback.
  - endpoint.EndpointService: the remote endpoint catalog semroute
    consumes. GetApiGroups streams batches of API groups for a user.

Messages are plain Go structs marshaled by a JSON codec registered under
the "json" content-subtype. Clients constructed here pin every call to
that codec, so peers negotiate it without extra dial options.

# Client Usage

	conn, err := grpc.NewClient(addr,
	    grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
	    return err
	}
	defer conn.Close()

	client := api.NewSentenceServiceClient(conn)
	stream, err := client.AnalyzeSentence(ctx, &api.SentenceRequest{
	    Sentence: "turn on the lights",
	})

# Server Usage

	srv := grpc.NewServer()
	api.RegisterSentenceServiceServer(srv, impl)

Callers of AnalyzeSentence and SendMessage supply identity through
request metadata: an "email" header (required, validated server-side)
and an optional "client-id" header used for logging.
*/
package api
