/*
Package llm is the provider gateway: every model call the resolver makes
goes through a Provider from this package.

# Providers

A Provider turns a prompt into text using one upstream vendor. Concrete
implementations live in pkg/llm/providers (Cohere, Claude, DeepSeek) and
are constructed through providers.New with a provider tag and an API key:

	provider, err := providers.New("cohere", apiKey)
	if err != nil {
	    return err
	}
	result, err := provider.Generate(ctx, prompt, &cfg.Models.FindEndpoint)

# Model configuration

ModelConfig names one model per vendor so a single config block works no
matter which provider is active; each provider reads only its own field.
ModelsConfig groups the per-task blocks the pipeline uses (endpoint
discovery, JSON generation, semantic field matching).

# Usage accounting

Every GenerationResult carries a UsageInfo. Providers report exact counts
when the vendor API returns them and fall back to the pkg/llm/tokens
estimator (Estimated=true) when it does not. TrackedProvider wraps any
Provider and accumulates process-lifetime totals that feed the provider
metrics hook and the daemon's shutdown usage summary; per-response
accounting is kept by the analysis pipeline itself.
*/
package llm
