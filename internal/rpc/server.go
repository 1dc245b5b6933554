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
	"errors"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/tombee/semroute/pkg/api"
)

// ErrServerClosed is returned when Serve is called on a stopped server.
var ErrServerClosed = errors.New("rpc: server closed")

// ServerConfig configures the gRPC server.
type ServerConfig struct {
	// MaxConcurrentStreams caps in-flight streams per connection.
	// Default: 128.
	MaxConcurrentStreams uint32

	// KeepaliveInterval is how often idle connections are pinged.
	// Default: 60 seconds.
	KeepaliveInterval time.Duration

	// ShutdownTimeout bounds graceful stop; in-flight calls still running
	// when it expires are cut off.
	// Default: 10 seconds.
	ShutdownTimeout time.Duration

	// Logger is the structured logger for server events.
	// If nil, slog.Default is used.
	Logger *slog.Logger
}

// Server hosts the sentence service.
type Server struct {
	grpc            *grpc.Server
	logger          *slog.Logger
	shutdownTimeout time.Duration

	mu     sync.Mutex
	closed bool

	shutdownOnce sync.Once
}

// NewServer builds a gRPC server with the configured transport limits and
// registers the sentence service on it.
func NewServer(cfg ServerConfig, svc api.SentenceServiceServer) *Server {
	if cfg.MaxConcurrentStreams == 0 {
		cfg.MaxConcurrentStreams = 128
	}
	if cfg.KeepaliveInterval == 0 {
		cfg.KeepaliveInterval = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	grpcServer := grpc.NewServer(
		grpc.MaxConcurrentStreams(cfg.MaxConcurrentStreams),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveInterval,
			Timeout: 20 * time.Second,
		}),
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             30 * time.Second,
			PermitWithoutStream: true,
		}),
	)
	api.RegisterSentenceServiceServer(grpcServer, svc)

	return &Server{
		grpc:            grpcServer,
		logger:          cfg.Logger,
		shutdownTimeout: cfg.ShutdownTimeout,
	}
}

// Serve accepts connections on lis until Shutdown. A port collision gets
// a dedicated hint because it is by far the most common startup failure.
func (s *Server) Serve(lis net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.mu.Unlock()

	s.logger.Info("sentence analysis server listening", "address", lis.Addr().String())

	err := s.grpc.Serve(lis)
	if err != nil && strings.Contains(err.Error(), "address already in use") {
		s.logger.Error("port already in use, stop other instances first", "address", lis.Addr().String())
	}
	return err
}

// Shutdown stops the server, letting in-flight calls finish until the
// configured timeout, then cutting off whatever remains.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down sentence analysis server")

		done := make(chan struct{})
		go func() {
			s.grpc.GracefulStop()
			close(done)
		}()

		timer := time.NewTimer(s.shutdownTimeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-ctx.Done():
			s.grpc.Stop()
			<-done
		case <-timer.C:
			s.logger.Warn("graceful stop timed out, forcing close")
			s.grpc.Stop()
			<-done
		}

		s.logger.Info("sentence analysis server stopped")
	})
	return nil
}
