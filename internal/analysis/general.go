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

package analysis

import (
	"context"
	"fmt"

	"github.com/tombee/semroute/pkg/llm"
)

// generateConversational answers a question with no endpoint behind it.
func (a *Analyzer) generateConversational(ctx context.Context, question string) (*llm.GenerationResult, error) {
	prompt := fmt.Sprintf(
		"You are a helpful assistant. Answer this question naturally and conversationally: %s",
		question,
	)

	cfg := a.Models.For("sentence_to_json")
	return a.Provider.Generate(ctx, prompt, &cfg)
}

// runGeneral handles a general question.
func (a *Analyzer) runGeneral(ctx context.Context, sentence string) (*Result, error) {
	res, err := a.generateConversational(ctx, sentence)
	if err != nil {
		return nil, err
	}

	usage := res.Usage
	if usage.Model == "" {
		usage.Model = a.Provider.ModelName()
	}
	return generalResult(res.Content, usage), nil
}

// runFallback answers conversationally after the actionable pipeline gave
// up, so the caller still gets a useful reply instead of an error.
func (a *Analyzer) runFallback(ctx context.Context, sentence string) (*Result, error) {
	res, err := a.generateConversational(ctx, sentence)
	if err != nil {
		return nil, err
	}

	usage := res.Usage
	if usage.Model == "" {
		usage.Model = a.Provider.ModelName()
	}
	return fallbackResult(res.Content, usage), nil
}
