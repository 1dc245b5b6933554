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

// Package serve hosts the sentence analysis daemon. The cobra serve
// command and the semrouted binary both run the same Run function.
package serve

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tombee/semroute/internal/analysis"
	"github.com/tombee/semroute/internal/commands/shared"
	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/internal/conversation"
	"github.com/tombee/semroute/internal/log"
	"github.com/tombee/semroute/internal/metrics"
	"github.com/tombee/semroute/internal/progressive"
	"github.com/tombee/semroute/internal/rpc"
	"github.com/tombee/semroute/internal/tracing"
	"github.com/tombee/semroute/pkg/prompts"
)

const (
	// catalogHealthTimeout bounds the startup reachability probe.
	catalogHealthTimeout = 10 * time.Second

	// shutdownGrace bounds the whole teardown, not just the gRPC stop.
	shutdownGrace = 15 * time.Second
)

// Serve command flags
var (
	servePort        int
	serveMetricsAddr string
)

// NewServeCommand creates the serve command
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sentence analysis gRPC server",
		Long: `Start the gRPC server that analyzes sentences over a streaming API.

The server verifies the endpoint catalog is reachable before accepting
traffic. Progressive matching across conversation turns activates when
DATABASE_URL or DB_PATH configures a conversation store; without one
the server still runs, it just resolves every sentence from scratch.`,
		Example: `  # Start server with settings from config.yaml
  semroute serve

  # Start server on a specific port without a metrics listener
  semroute serve --port 50055 --metrics-addr ""`,
		Args: cobra.NoArgs,
		RunE: runServe,
	}

	cmd.Flags().IntVar(&servePort, "port", 0, "Port to bind to (default: 50052)")
	cmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address (empty disables)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v, _, _ := shared.GetVersion()
	return Run(ctx, Options{
		ConfigPath:  shared.GetConfigPath(),
		Port:        servePort,
		MetricsAddr: serveMetricsAddr,
		Version:     v,
	})
}

// Options configures one daemon run.
type Options struct {
	// ConfigPath overrides CONFIG_PATH resolution when set.
	ConfigPath string

	// Port overrides the configured listen port when non-zero.
	Port int

	// MetricsAddr is the Prometheus scrape address. Empty disables the
	// metrics listener.
	MetricsAddr string

	// Version is reported in startup logs and trace resources.
	Version string
}

// Run starts the analysis server and blocks until ctx is cancelled or the
// listener fails. Cancellation triggers a graceful shutdown.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.LoadOrDefault(opts.ConfigPath)
	if err != nil {
		return shared.NewInvalidConfigError("failed to load configuration", err)
	}
	if opts.Port != 0 {
		cfg.Server.Port = opts.Port
	}

	logger := log.New(log.FromEnv())
	slog.SetDefault(logger)

	logger.Info("semroute starting",
		"version", opts.Version,
		"provider", cfg.Providers.Default,
		"catalog", cfg.EndpointClient.DefaultAddress)

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:        cfg.Tracing.Enabled,
		Exporter:       cfg.Tracing.Exporter,
		Endpoint:       cfg.Tracing.Endpoint,
		SampleRate:     cfg.Tracing.SampleRate,
		ServiceName:    cfg.Tracing.ServiceName,
		ServiceVersion: serviceVersion(cfg.Tracing.ServiceVersion, opts.Version),
	})
	if err != nil {
		return shared.NewInvalidConfigError("failed to initialize tracing", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.ForceFlush(flushCtx); err != nil {
			logger.Warn("failed to flush pending spans", "error", err)
		}
		if err := tp.Shutdown(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	provider, err := shared.BuildProvider(shared.ResolveProviderTag("", cfg), cfg)
	if err != nil {
		return err
	}

	catalogClient := shared.BuildCatalog(cfg.EndpointClient.DefaultAddress, log.WithComponent(logger, "catalog"))

	// The catalog is a hard dependency: a server that cannot resolve
	// endpoints would fail every actionable request, so refuse to start.
	healthCtx, cancelHealth := context.WithTimeout(ctx, catalogHealthTimeout)
	healthy := catalogClient.Health(healthCtx)
	cancelHealth()
	if !healthy {
		logger.Error("endpoint catalog is not reachable", "address", catalogClient.Address())
		return shared.NewCatalogUnavailableError(
			"No endpoint configuration available - cannot reach endpoint catalog at "+catalogClient.Address(), nil)
	}

	store := openStore(logger)
	if store != nil {
		defer store.Close()
	}

	registry, err := prompts.Load("")
	if err != nil {
		return shared.NewInvalidConfigError("failed to load prompt library", err)
	}
	go func() {
		if err := registry.Watch(ctx); err != nil {
			logger.Warn("prompt hot reload disabled", "error", err)
		}
	}()

	conversations := conversation.NewManager(log.WithComponent(logger, "conversation"))

	analyzer := &analysis.Analyzer{
		Provider: provider,
		Catalog:  catalogClient,
		Prompts:  registry,
		Models:   cfg.Models,
		Store:    store,
		Analysis: cfg.Analysis,
		Logger:   log.WithComponent(logger, "analysis"),
	}

	svc := rpc.NewSentenceService(rpc.SentenceServiceConfig{
		Analyzer:      analyzer,
		Conversations: conversations,
		Provider:      provider,
		Models:        cfg.Models,
		APIURL:        catalogClient.Address(),
		Logger:        log.WithComponent(logger, "rpc"),
	})

	server := rpc.NewServer(rpc.ServerConfig{Logger: logger}, svc)

	lis, err := net.Listen("tcp", cfg.Server.ListenAddr())
	if err != nil {
		if strings.Contains(err.Error(), "address already in use") {
			logger.Error("port already in use, stop other instances first", "address", cfg.Server.ListenAddr())
		}
		return shared.NewAnalysisError("failed to listen on "+cfg.Server.ListenAddr(), err)
	}

	metricsSrv := startMetrics(opts.MetricsAddr, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(lis)
	}()

	logger.Info("semroute ready",
		"address", cfg.Server.ListenAddr(),
		"model", provider.ModelName(),
		"progressive_matching", store != nil)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case serveErr = <-errCh:
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	_ = server.Shutdown(stopCtx)

	if metricsSrv != nil {
		if err := metricsSrv.Shutdown(stopCtx); err != nil {
			logger.Warn("metrics listener shutdown failed", "error", err)
		}
	}

	inTokens, outTokens := provider.TotalUsage()
	logger.Info("provider usage totals",
		"provider", provider.ModelName(),
		"requests", provider.RequestCount(),
		"input_tokens", inTokens,
		"output_tokens", outTokens)

	if serveErr != nil {
		logger.Error("server failed", "error", serveErr)
		return shared.NewAnalysisError("server terminated", serveErr)
	}

	logger.Info("shutdown complete")
	return nil
}

// serviceVersion prefers the configured trace resource version and falls
// back to the build version.
func serviceVersion(configured, build string) string {
	if configured != "" {
		return configured
	}
	return build
}

// openStore opens the conversation store named by the environment, or
// returns nil when none is configured. The daemon runs either way;
// progressive matching is simply disabled.
func openStore(logger *slog.Logger) *progressive.Store {
	url, err := progressive.DatabaseURL()
	if err != nil {
		logger.Warn("falling back to service without progressive matching", "reason", err)
		return nil
	}

	store, err := progressive.Open(progressive.Config{Path: url, Logger: logger})
	if err != nil {
		logger.Warn("falling back to service without progressive matching", "path", url, "error", err)
		return nil
	}

	logger.Info("progressive matching enabled", "path", url)
	return store
}

// startMetrics serves the Prometheus scrape endpoint when addr is set.
func startMetrics(addr string, logger *slog.Logger) *http.Server {
	if addr == "" {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics listener started", "address", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics listener failed", "error", err)
		}
	}()

	return srv
}
