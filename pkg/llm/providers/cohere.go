package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/llm/tokens"
)

// cohereAPIBaseURL is the base URL for the Cohere chat API.
const cohereAPIBaseURL = "https://api.cohere.ai/v1"

// CohereProvider drives Cohere's chat API.
type CohereProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	estimator  *tokens.Estimator
}

type cohereRequest struct {
	Model       string  `json:"model"`
	Message     string  `json:"message"`
	Temperature float64 `json:"temperature"`
	MaxTokens   uint32  `json:"max_tokens"`

	// ChatHistory is always sent, empty: each analysis step is a
	// self-contained prompt.
	ChatHistory []cohereChatTurn `json:"chat_history"`

	// ResponseFormat stays null; structured output is enforced by the
	// prompt templates, not the API.
	ResponseFormat *cohereResponseFormat `json:"response_format"`
}

type cohereChatTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type cohereResponseFormat struct {
	Type string `json:"type"`
}

type cohereResponse struct {
	Text *string `json:"text"`
	Meta struct {
		Tokens struct {
			InputTokens  *uint32 `json:"input_tokens"`
			OutputTokens *uint32 `json:"output_tokens"`
		} `json:"tokens"`
	} `json:"meta"`
}

type cohereErrorResponse struct {
	Message string `json:"message"`
}

// NewCohereProvider creates a Cohere provider. The API key must come from
// secret storage, never from config files.
func NewCohereProvider(apiKey string, opts ...Option) (*CohereProvider, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Key:    "cohere.api_key",
			Reason: "API key is required for Cohere provider",
		}
	}

	o := buildOptions(opts)

	httpClient, err := resolveHTTPClient(o)
	if err != nil {
		return nil, err
	}

	baseURL := cohereAPIBaseURL
	if o.baseURL != "" {
		baseURL = o.baseURL
	}

	return &CohereProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    resolveLimiter(o),
		estimator:  tokens.NewEstimator(),
	}, nil
}

// ModelName returns the provider tag recorded in usage summaries.
func (p *CohereProvider) ModelName() string {
	return "cohere"
}

// Generate sends prompt as a single chat message and returns the reply
// text. Usage comes from the response meta block when Cohere reports it,
// otherwise from the estimator.
func (p *CohereProvider) Generate(ctx context.Context, prompt string, cfg *llm.ModelConfig) (*llm.GenerationResult, error) {
	requestID := uuid.New().String()

	if err := waitForSlot(ctx, p.limiter); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "cohere",
			Message:   fmt.Sprintf("rate limiter wait aborted: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	body, err := json.Marshal(cohereRequest{
		Model:       cfg.Cohere,
		Message:     prompt,
		Temperature: float64(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
		ChatHistory: []cohereChatTurn{},
	})
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "cohere",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "cohere",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "cohere",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "cohere",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp cohereErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "cohere",
				StatusCode: resp.StatusCode,
				Message:    errResp.Message,
				Suggestion: suggestionFor(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "cohere",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			Suggestion: suggestionFor(resp.StatusCode),
			RequestID:  requestID,
		}
	}

	var apiResp cohereResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "cohere",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	if apiResp.Text == nil {
		return nil, &errors.ProviderError{
			Provider:  "cohere",
			Message:   "no text in response",
			RequestID: requestID,
		}
	}
	content := *apiResp.Text

	usage := p.extractUsage(apiResp, prompt, content)

	return &llm.GenerationResult{Content: content, Usage: usage}, nil
}

// extractUsage prefers the exact counts from the response meta block.
func (p *CohereProvider) extractUsage(resp cohereResponse, prompt, content string) llm.UsageInfo {
	in := resp.Meta.Tokens.InputTokens
	out := resp.Meta.Tokens.OutputTokens
	if in != nil && out != nil {
		return llm.UsageInfo{
			InputTokens:  *in,
			OutputTokens: *out,
			TotalTokens:  *in + *out,
			Model:        "cohere",
			Estimated:    false,
		}
	}
	return p.estimator.EstimateUsage(prompt, content, "cohere")
}

var _ llm.Provider = (*CohereProvider)(nil)
