package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/tombee/semroute/pkg/errors"
	"github.com/tombee/semroute/pkg/llm"
	"github.com/tombee/semroute/pkg/llm/tokens"
)

const (
	// claudeAPIBaseURL is the base URL for the Anthropic API.
	claudeAPIBaseURL = "https://api.anthropic.com/v1"

	// claudeAPIVersion is the API version header value.
	claudeAPIVersion = "2023-06-01"
)

// ClaudeProvider drives Anthropic's Messages API.
type ClaudeProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	estimator  *tokens.Estimator
}

type claudeRequest struct {
	Model       string          `json:"model"`
	MaxTokens   uint32          `json:"max_tokens"`
	Temperature float64         `json:"temperature"`
	Messages    []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []struct {
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens  *uint32 `json:"input_tokens"`
		OutputTokens *uint32 `json:"output_tokens"`
	} `json:"usage"`
}

type claudeErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewClaudeProvider creates a Claude provider. The API key must come from
// secret storage, never from config files.
func NewClaudeProvider(apiKey string, opts ...Option) (*ClaudeProvider, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Key:    "claude.api_key",
			Reason: "API key is required for Claude provider",
		}
	}

	o := buildOptions(opts)

	httpClient, err := resolveHTTPClient(o)
	if err != nil {
		return nil, err
	}

	baseURL := claudeAPIBaseURL
	if o.baseURL != "" {
		baseURL = o.baseURL
	}

	return &ClaudeProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    resolveLimiter(o),
		estimator:  tokens.NewEstimator(),
	}, nil
}

// ModelName returns the provider tag recorded in usage summaries.
func (p *ClaudeProvider) ModelName() string {
	return "claude"
}

// Generate sends prompt as a single user message. A missing or blank
// completion is an error; a reply the pipeline cannot see is never useful.
func (p *ClaudeProvider) Generate(ctx context.Context, prompt string, cfg *llm.ModelConfig) (*llm.GenerationResult, error) {
	requestID := uuid.New().String()

	if err := waitForSlot(ctx, p.limiter); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   fmt.Sprintf("rate limiter wait aborted: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	body, err := json.Marshal(claudeRequest{
		Model:       cfg.Claude,
		MaxTokens:   cfg.MaxTokens,
		Temperature: float64(cfg.Temperature),
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	})
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", claudeAPIVersion)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "claude",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp claudeErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "claude",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: suggestionFor(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "claude",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			Suggestion: suggestionFor(resp.StatusCode),
			RequestID:  requestID,
		}
	}

	var apiResp claudeResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	if len(apiResp.Content) == 0 {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   "no content in response",
			RequestID: requestID,
		}
	}
	content := apiResp.Content[0].Text

	if strings.TrimSpace(content) == "" {
		return nil, &errors.ProviderError{
			Provider:  "claude",
			Message:   "empty response",
			RequestID: requestID,
		}
	}

	usage := p.extractUsage(apiResp, prompt, content)

	return &llm.GenerationResult{Content: content, Usage: usage}, nil
}

// extractUsage prefers the exact counts from the response usage block.
func (p *ClaudeProvider) extractUsage(resp claudeResponse, prompt, content string) llm.UsageInfo {
	in := resp.Usage.InputTokens
	out := resp.Usage.OutputTokens
	if in != nil && out != nil {
		return llm.UsageInfo{
			InputTokens:  *in,
			OutputTokens: *out,
			TotalTokens:  *in + *out,
			Model:        "claude",
			Estimated:    false,
		}
	}
	return p.estimator.EstimateUsage(prompt, content, "claude")
}

var _ llm.Provider = (*ClaudeProvider)(nil)
