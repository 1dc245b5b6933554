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

// deepSeekAPIBaseURL is the base URL for the DeepSeek API, which speaks
// the OpenAI chat completions dialect.
const deepSeekAPIBaseURL = "https://api.deepseek.com/v1"

// DeepSeekProvider drives DeepSeek's chat completions API.
type DeepSeekProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	estimator  *tokens.Estimator
}

type deepSeekRequest struct {
	Model       string            `json:"model"`
	Messages    []deepSeekMessage `json:"messages"`
	Temperature float64           `json:"temperature"`
	MaxTokens   uint32            `json:"max_tokens"`
}

type deepSeekMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type deepSeekResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     uint32 `json:"prompt_tokens"`
		CompletionTokens uint32 `json:"completion_tokens"`
		TotalTokens      uint32 `json:"total_tokens"`
	} `json:"usage"`
}

type deepSeekErrorResponse struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewDeepSeekProvider creates a DeepSeek provider. The API key must come
// from secret storage, never from config files.
func NewDeepSeekProvider(apiKey string, opts ...Option) (*DeepSeekProvider, error) {
	if apiKey == "" {
		return nil, &errors.ConfigError{
			Key:    "deepseek.api_key",
			Reason: "API key is required for DeepSeek provider",
		}
	}

	o := buildOptions(opts)

	httpClient, err := resolveHTTPClient(o)
	if err != nil {
		return nil, err
	}

	baseURL := deepSeekAPIBaseURL
	if o.baseURL != "" {
		baseURL = o.baseURL
	}

	return &DeepSeekProvider{
		apiKey:     apiKey,
		baseURL:    baseURL,
		httpClient: httpClient,
		limiter:    resolveLimiter(o),
		estimator:  tokens.NewEstimator(),
	}, nil
}

// ModelName returns the provider tag recorded in usage summaries.
func (p *DeepSeekProvider) ModelName() string {
	return "deepseek"
}

// Generate sends prompt as a single user message. OpenAI-shape usage is
// reported exactly when present, estimated otherwise. Blank completions
// are errors.
func (p *DeepSeekProvider) Generate(ctx context.Context, prompt string, cfg *llm.ModelConfig) (*llm.GenerationResult, error) {
	requestID := uuid.New().String()

	if err := waitForSlot(ctx, p.limiter); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   fmt.Sprintf("rate limiter wait aborted: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}

	body, err := json.Marshal(deepSeekRequest{
		Model: cfg.Deepseek,
		Messages: []deepSeekMessage{
			{Role: "user", Content: prompt},
		},
		Temperature: float64(cfg.Temperature),
		MaxTokens:   cfg.MaxTokens,
	})
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   fmt.Sprintf("failed to marshal request: %v", err),
			RequestID: requestID,
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   fmt.Sprintf("failed to create request: %v", err),
			RequestID: requestID,
		}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   fmt.Sprintf("request failed: %v", err),
			RequestID: requestID,
			Cause:     err,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &errors.ProviderError{
			Provider:   "deepseek",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("failed to read response: %v", err),
			RequestID:  requestID,
		}
	}

	if resp.StatusCode != http.StatusOK {
		var errResp deepSeekErrorResponse
		if err := json.Unmarshal(respBody, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &errors.ProviderError{
				Provider:   "deepseek",
				StatusCode: resp.StatusCode,
				Message:    errResp.Error.Message,
				Suggestion: suggestionFor(resp.StatusCode),
				RequestID:  requestID,
			}
		}
		return nil, &errors.ProviderError{
			Provider:   "deepseek",
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, string(respBody)),
			Suggestion: suggestionFor(resp.StatusCode),
			RequestID:  requestID,
		}
	}

	var apiResp deepSeekResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   fmt.Sprintf("failed to parse response: %v", err),
			RequestID: requestID,
		}
	}

	if len(apiResp.Choices) == 0 {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   "no choices in response",
			RequestID: requestID,
		}
	}
	content := apiResp.Choices[0].Message.Content

	if strings.TrimSpace(content) == "" {
		return nil, &errors.ProviderError{
			Provider:  "deepseek",
			Message:   "empty response",
			RequestID: requestID,
		}
	}

	usage := p.extractUsage(apiResp, prompt, content)

	return &llm.GenerationResult{Content: content, Usage: usage}, nil
}

// extractUsage prefers the exact counts from the response usage block.
func (p *DeepSeekProvider) extractUsage(resp deepSeekResponse, prompt, content string) llm.UsageInfo {
	if resp.Usage != nil {
		return llm.UsageInfo{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
			TotalTokens:  resp.Usage.TotalTokens,
			Model:        "deepseek",
			Estimated:    false,
		}
	}
	return p.estimator.EstimateUsage(prompt, content, "deepseek")
}

var _ llm.Provider = (*DeepSeekProvider)(nil)
