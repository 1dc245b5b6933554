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

package shared

import (
	"io"
	"log/slog"
	"os"

	"github.com/tombee/semroute/internal/config"
	"github.com/tombee/semroute/internal/log"
	"github.com/tombee/semroute/internal/metrics"
	"github.com/tombee/semroute/internal/secrets"
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/llm/providers"
)

// ResolveProviderTag picks the LLM provider for a command. The --provider
// flag wins; otherwise the configured default applies, which itself honours
// the SEMROUTE_PROVIDER environment variable.
func ResolveProviderTag(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.Providers.Default
}

// BuildProvider constructs the LLM provider for tag, resolving its API key
// from the environment or the OS keyring and wrapping it with usage tracking
// so every call feeds the request and token metrics.
func BuildProvider(tag string, cfg *config.Config) (*llm.TrackedProvider, error) {
	key, err := secrets.APIKey(tag)
	if err != nil {
		return nil, NewProviderError("no API key for provider "+tag, err)
	}
	slog.Debug("resolved provider credentials", "provider", tag, "api_key", log.SanitizeAPIKey(key))

	inner, err := providers.New(tag, key, providers.WithRateLimit(cfg.Providers.RateLimitRPS))
	if err != nil {
		return nil, NewProviderError("failed to create provider "+tag, err)
	}

	tracked := llm.NewTrackedProvider(inner)
	tracked.OnUsage = func(provider string, usage llm.UsageInfo) {
		metrics.RecordProviderRequest(provider, "ok")
		metrics.AddProviderTokens(provider, usage.InputTokens, usage.OutputTokens)
	}

	return tracked, nil
}

// ResolveCatalogAddress picks the endpoint catalog address. The --api flag
// wins; otherwise the configured default applies.
func ResolveCatalogAddress(flagValue string, cfg *config.Config) string {
	if flagValue != "" {
		return flagValue
	}
	return cfg.EndpointClient.DefaultAddress
}

// BuildCatalog constructs a client for the endpoint catalog at address.
func BuildCatalog(address string, logger *slog.Logger) *catalog.Client {
	return catalog.NewClient(catalog.ClientConfig{Address: address}, logger)
}

// CommandLogger keeps pipeline logs out of command output unless
// --verbose is set.
func CommandLogger() *slog.Logger {
	if GetVerbose() {
		return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
