package workflow

import (
	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm"
)

// Context carries the state shared by the steps of one analysis run. The
// engine creates it at Execute and discards it when the run ends; it is
// never shared across runs.
type Context struct {
	// Sentence is the user input driving the run.
	Sentence string

	// Email identifies the caller for catalog lookups. Set by the
	// configuration-loading step.
	Email string

	// Provider executes model calls for the steps.
	Provider llm.Provider

	// Models selects the per-task model configurations.
	Models llm.ModelsConfig

	// Endpoints is the caller's flattened catalog.
	Endpoints []catalog.Endpoint

	// EndpointID and EndpointDescription identify the matched endpoint.
	EndpointID          string
	EndpointDescription string

	// MatchedEndpoint is the full catalog record for EndpointID.
	MatchedEndpoint *catalog.Endpoint

	// JSONOutput is the parsed generation result.
	JSONOutput map[string]any

	// Parameters carries the endpoint's parameters with resolved values
	// in SemanticValue.
	Parameters []catalog.Parameter

	// InputTokens and OutputTokens accumulate model usage across steps.
	InputTokens  uint32
	OutputTokens uint32
}

// AddUsage folds one model call's token counts into the run totals.
func (c *Context) AddUsage(usage llm.UsageInfo) {
	c.InputTokens += usage.InputTokens
	c.OutputTokens += usage.OutputTokens
}

// FindEndpoint returns the catalog entry with the given id, or nil.
func (c *Context) FindEndpoint(id string) *catalog.Endpoint {
	for i := range c.Endpoints {
		if c.Endpoints[i].ID == id {
			return &c.Endpoints[i]
		}
	}
	return nil
}

// snapshot projects the fields gate conditions may reference.
func (c *Context) snapshot() map[string]any {
	return map[string]any{
		"sentence":        c.Sentence,
		"email":           c.Email,
		"endpoint_id":     c.EndpointID,
		"parameter_count": len(c.Parameters),
	}
}
