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

package catalog

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/tombee/semroute/internal/tracing"
	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/errors"
)

const (
	// DefaultConnectTimeout bounds connection establishment to the catalog.
	DefaultConnectTimeout = 5 * time.Second

	// DefaultRequestTimeout bounds the full GetApiGroups stream.
	DefaultRequestTimeout = 10 * time.Second
)

// ClientConfig controls catalog connections.
type ClientConfig struct {
	// Address is the catalog's gRPC address.
	Address string

	// ConnectTimeout bounds connection establishment.
	// Default: DefaultConnectTimeout.
	ConnectTimeout time.Duration

	// RequestTimeout bounds a full fetch, including stream drain.
	// Default: DefaultRequestTimeout.
	RequestTimeout time.Duration

	// DialOptions are appended to the defaults. Tests use this to dial
	// in-memory listeners.
	DialOptions []grpc.DialOption
}

// Client fetches a user's endpoints from the remote catalog. Connections
// are established per call; the catalog is consulted once per analysis.
type Client struct {
	cfg    ClientConfig
	logger *slog.Logger
}

// NewClient creates a catalog client. A nil logger falls back to
// slog.Default. Addresses may carry an http:// or https:// scheme
// (configs written for URL-based clients do); grpc targets must not, so
// the prefix is stripped here.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	cfg.Address = strings.TrimPrefix(cfg.Address, "https://")
	cfg.Address = strings.TrimPrefix(cfg.Address, "http://")
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:    cfg,
		logger: logger,
	}
}

// Address returns the configured catalog address.
func (c *Client) Address() string {
	return c.cfg.Address
}

// Fetch opens a streaming call to the catalog, drains every batch, and
// returns the user's endpoints flattened across groups. It fails with a
// TimeoutError when the catalog cannot be reached within the connect
// deadline, a NotFoundError when the user has zero endpoints, and a
// TransportError on any other RPC failure.
func (c *Client) Fetch(ctx context.Context, email string) ([]Endpoint, error) {
	ctx, span := otel.Tracer("semroute/catalog").Start(ctx, "catalog.fetch")
	defer span.End()
	span.SetAttributes(attribute.String("catalog.address", c.cfg.Address))

	conn, err := c.connect(ctx)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer conn.Close()

	reqCtx, cancel := context.WithTimeout(ctx, c.cfg.RequestTimeout)
	defer cancel()
	reqCtx = tracing.AppendToOutgoingGRPC(reqCtx)

	c.logger.Info("fetching api groups", "address", c.cfg.Address, "email", email)

	client := api.NewEndpointServiceClient(conn)
	stream, err := client.GetAPIGroups(reqCtx, &api.APIGroupsRequest{Email: email})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &errors.TransportError{
			Operation: "get api groups",
			Address:   c.cfg.Address,
			Cause:     err,
		}
	}

	var groups []*api.APIGroup
	for {
		batch, err := stream.Recv()
		if stderrors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
			return nil, &errors.TransportError{
				Operation: "get api groups",
				Address:   c.cfg.Address,
				Cause:     err,
			}
		}
		c.logger.Debug("received api group batch", "groups", len(batch.APIGroups))
		groups = append(groups, batch.APIGroups...)
	}

	endpoints := FlattenGroups(groups)
	if len(endpoints) == 0 {
		return nil, &errors.NotFoundError{
			Resource: "endpoints",
			ID:       email,
			Message:  fmt.Sprintf("No endpoints available for user '%s'. Please verify your email address or contact your administrator.", email),
		}
	}

	span.SetAttributes(attribute.Int("catalog.endpoints", len(endpoints)))
	c.logger.Info("fetched endpoints",
		"endpoints", len(endpoints),
		"groups", len(groups),
	)

	return endpoints, nil
}

// Health establishes a connection to the catalog and reports reachability
// without listing anything.
func (c *Client) Health(ctx context.Context) bool {
	conn, err := c.connect(ctx)
	if err != nil {
		c.logger.Warn("endpoint catalog is not reachable",
			"address", c.cfg.Address,
			"error", err,
		)
		return false
	}
	_ = conn.Close()

	c.logger.Info("endpoint catalog is reachable", "address", c.cfg.Address)
	return true
}

// connect dials the catalog and waits for the connection to become ready
// within the connect deadline.
func (c *Client) connect(ctx context.Context) (*grpc.ClientConn, error) {
	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, c.cfg.DialOptions...)

	conn, err := grpc.NewClient(c.cfg.Address, opts...)
	if err != nil {
		return nil, &errors.TransportError{
			Operation: "dial catalog",
			Address:   c.cfg.Address,
			Cause:     err,
		}
	}

	connectCtx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()

	conn.Connect()
	for {
		state := conn.GetState()
		if state == connectivity.Ready {
			return conn, nil
		}
		if !conn.WaitForStateChange(connectCtx, state) {
			_ = conn.Close()
			return nil, &errors.TimeoutError{
				Operation: "connect to endpoint catalog",
				Duration:  c.cfg.ConnectTimeout,
				Cause:     connectCtx.Err(),
			}
		}
	}
}
