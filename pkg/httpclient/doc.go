// Package httpclient builds the HTTP clients used for outbound calls to
// model provider APIs.
//
// Every client composes the same transport stack:
//   - request logging with sanitized URLs (sensitive query params redacted)
//   - User-Agent injection
//   - correlation ID propagation from the request context
//   - optional retry with exponential backoff and jitter
//   - TLS 1.2 minimum, pooled connections
//
// Usage:
//
//	cfg := httpclient.DefaultConfig()
//	cfg.Timeout = 120 * time.Second
//	cfg.RetryAttempts = 0 // retries handled by the analysis orchestrator
//	client, err := httpclient.New(cfg)
//
// Retries, when enabled, cover HTTP 5xx, 408 and 429 (honouring Retry-After)
// plus transient network failures, and apply only to idempotent methods
// unless AllowNonIdempotentRetry is set. Provider clients keep retries off
// so a failed model call surfaces immediately and the orchestrator decides
// whether the whole analysis run is worth repeating.
package httpclient
