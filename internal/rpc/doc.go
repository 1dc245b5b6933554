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

// Package rpc serves the sentence-analysis gRPC API.
//
// SentenceService implements the wire contract from pkg/api on top of the
// analysis orchestrator: AnalyzeSentence authenticates the caller through
// request metadata, resolves the conversation id, runs the analysis in a
// producer goroutine, and streams exactly one response frame per call.
// SendMessage generates a plain conversational reply.
//
// Server wraps grpc.Server with the transport limits the daemon runs
// under (stream cap, keepalive) and a bounded graceful shutdown.
package rpc
