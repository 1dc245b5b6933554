package harness

import "github.com/tombee/semroute/pkg/api"

// Option configures a Harness before the stack starts.
type Option func(*Harness)

// WithReplies scripts the provider with plain text answers carrying
// default token usage.
func WithReplies(contents ...string) Option {
	return func(h *Harness) {
		h.provider = NewMockProvider(Script(contents...)...)
	}
}

// WithScript scripts the provider with full control over errors and usage.
func WithScript(replies ...Reply) Option {
	return func(h *Harness) {
		h.provider = NewMockProvider(replies...)
	}
}

// WithAPIGroups replaces the catalog the stub serves.
func WithAPIGroups(groups ...*api.APIGroup) Option {
	return func(h *Harness) {
		h.groups = groups
	}
}

// WithProgressiveStore backs the analyzer with an in-memory store so
// partial matches survive across turns.
func WithProgressiveStore() Option {
	return func(h *Harness) {
		h.store = true
	}
}

// WithRetries sets the actionable pipeline's attempt budget.
func WithRetries(attempts int) Option {
	return func(h *Harness) {
		h.analysis.RetryAttempts = attempts
	}
}

// WithGeneralFallback routes exhausted actionable runs to a conversational
// answer instead of an error.
func WithGeneralFallback() Option {
	return func(h *Harness) {
		h.analysis.FallbackToGeneral = true
	}
}
