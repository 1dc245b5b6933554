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

// Package tracing carries correlation IDs across the process boundaries the
// resolver touches: inbound gRPC analysis requests and outbound provider
// HTTP calls share one ID so a single sentence can be followed through logs
// on both sides.
package tracing

import (
	"context"
	"regexp"

	"github.com/google/uuid"
	"google.golang.org/grpc/metadata"
)

// CorrelationID identifies one logical request across services.
// RFC 4122 UUID format, 36 characters.
type CorrelationID string

type correlationKeyType struct{}

var correlationKey = correlationKeyType{}

const (
	// HeaderCorrelationID is the HTTP header set on outbound provider calls.
	HeaderCorrelationID = "X-Correlation-ID"
	// MetadataCorrelationID is the gRPC metadata key carrying the ID.
	MetadataCorrelationID = "x-correlation-id"
)

var uuidPattern = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// NewCorrelationID mints a fresh correlation ID.
func NewCorrelationID() CorrelationID {
	return CorrelationID(uuid.New().String())
}

func (c CorrelationID) String() string {
	return string(c)
}

// IsValid reports whether the ID is well-formed UUID text.
func (c CorrelationID) IsValid() bool {
	return uuidPattern.MatchString(string(c))
}

// ToContext stores the correlation ID on the context.
func ToContext(ctx context.Context, id CorrelationID) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// FromContextOrEmpty returns the correlation ID on the context, or "" when
// none is present. Use this when absence must not allocate a new ID.
func FromContextOrEmpty(ctx context.Context) CorrelationID {
	if id, ok := ctx.Value(correlationKey).(CorrelationID); ok {
		return id
	}
	return ""
}

// FromIncomingGRPC resolves the correlation ID for an inbound RPC. A valid
// ID supplied by the client in metadata is reused; anything else (missing,
// malformed) gets a freshly minted one. The returned context carries the ID.
func FromIncomingGRPC(ctx context.Context) (context.Context, CorrelationID) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if vals := md.Get(MetadataCorrelationID); len(vals) > 0 {
			if id := CorrelationID(vals[0]); id.IsValid() {
				return ToContext(ctx, id), id
			}
		}
	}
	id := NewCorrelationID()
	return ToContext(ctx, id), id
}

// AppendToOutgoingGRPC copies the context correlation ID into outgoing gRPC
// metadata. No-op when the context carries none.
func AppendToOutgoingGRPC(ctx context.Context) context.Context {
	id := FromContextOrEmpty(ctx)
	if id == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, MetadataCorrelationID, id.String())
}
