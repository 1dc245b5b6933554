// Package providers contains the concrete model vendors the gateway can
// drive: Cohere, Claude (Anthropic) and DeepSeek.
//
// Construct a provider through New with a provider tag:
//
//	provider, err := providers.New("cohere", apiKey)
//
// All providers share the same HTTP plumbing: a pooled client with a 120
// second timeout and no transport-level retries (a failed model call
// surfaces immediately; the analysis orchestrator decides whether the run
// is retried), capped response bodies, per-call request IDs, and an
// optional client-side rate limit.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/httpclient"
	"github.com/tombee/semroute/pkg/llm"
)

const (
	// requestTimeout accommodates slow model completions.
	requestTimeout = 120 * time.Second

	// maxResponseBytes caps how much of a provider response is read.
	maxResponseBytes = 10 * 1024 * 1024

	userAgent = "semroute-llm/1.0"
)

// Option adjusts provider construction.
type Option func(*options)

type options struct {
	httpClient *http.Client
	baseURL    string
	rateLimit  float64
}

// WithHTTPClient substitutes the HTTP client. Intended for tests.
func WithHTTPClient(client *http.Client) Option {
	return func(o *options) { o.httpClient = client }
}

// WithBaseURL overrides the vendor API base URL. Intended for tests and
// proxy deployments.
func WithBaseURL(baseURL string) Option {
	return func(o *options) { o.baseURL = baseURL }
}

// WithRateLimit applies a client-side requests-per-second ceiling.
// Zero or negative disables limiting.
func WithRateLimit(rps float64) Option {
	return func(o *options) { o.rateLimit = rps }
}

// New constructs the provider registered under tag. Tags are "cohere",
// "claude" and "deepseek"; anything else is a configuration error.
func New(tag, apiKey string, opts ...Option) (llm.Provider, error) {
	switch tag {
	case "cohere":
		return NewCohereProvider(apiKey, opts...)
	case "claude":
		return NewClaudeProvider(apiKey, opts...)
	case "deepseek":
		return NewDeepSeekProvider(apiKey, opts...)
	default:
		return nil, &errors.ConfigError{
			Key:    "provider",
			Reason: fmt.Sprintf("unknown provider %q (expected cohere, claude or deepseek)", tag),
		}
	}
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// resolveHTTPClient returns the injected client or builds the standard one.
func resolveHTTPClient(o options) (*http.Client, error) {
	if o.httpClient != nil {
		return o.httpClient, nil
	}

	cfg := httpclient.DefaultConfig()
	cfg.Timeout = requestTimeout
	cfg.UserAgent = userAgent
	// Whole-run retries belong to the analysis orchestrator.
	cfg.RetryAttempts = 0

	client, err := httpclient.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP client: %w", err)
	}
	return client, nil
}

// resolveLimiter builds the rate limiter for the configured RPS, or nil
// when limiting is disabled.
func resolveLimiter(o options) *rate.Limiter {
	if o.rateLimit <= 0 {
		return nil
	}
	burst := int(o.rateLimit)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(o.rateLimit), burst)
}

// waitForSlot blocks until the limiter admits the call. Nil limiters admit
// immediately.
func waitForSlot(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	return limiter.Wait(ctx)
}

// suggestionFor maps an HTTP status to operator guidance attached to
// provider errors.
func suggestionFor(statusCode int) string {
	switch statusCode {
	case http.StatusUnauthorized:
		return "Check that your API key is valid and correctly configured"
	case http.StatusForbidden:
		return "Your API key may not have access to this model or feature"
	case http.StatusTooManyRequests:
		return "Rate limit exceeded. Lower providers.rate_limit_rps or reduce request frequency"
	case http.StatusBadRequest:
		return "Review the request format and parameters"
	case http.StatusInternalServerError, http.StatusBadGateway, http.StatusServiceUnavailable:
		return "The provider API is experiencing issues. Retry after a short delay"
	default:
		return "Check the provider API documentation for more details"
	}
}
