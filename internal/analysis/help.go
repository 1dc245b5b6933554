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
	"slices"
	"sort"
	"strings"

	"github.com/tombee/semroute/pkg/catalog"
	"github.com/tombee/semroute/pkg/llm"
)

// validLanguages are the ISO codes the language detector may return.
var validLanguages = map[string]bool{
	"en": true, "fr": true, "es": true, "de": true, "it": true, "pt": true,
	"nl": true, "ru": true, "ja": true, "zh": true, "ko": true, "ar": true,
}

// runHelp answers a help request with the catalog rendered as a
// capabilities list. English sentences get the list directly; other
// languages get a model-written answer in the detected language.
func (a *Analyzer) runHelp(ctx context.Context, sentence string, endpoints []catalog.Endpoint) (*Result, error) {
	language, usage, err := a.detectLanguage(ctx, sentence)
	if err != nil {
		return nil, err
	}
	a.Logger.Debug("detected help request language", "language", language)

	list := capabilitiesList(endpoints)

	if language == "en" {
		if usage.Model == "" {
			usage.Model = a.Provider.ModelName()
		}
		return helpResult(list, usage, len(endpoints), language), nil
	}

	prompt, err := a.Prompts.Format("help_response", "", map[string]string{
		"sentence":          sentence,
		"endpoints_list":    list,
		"detected_language": language,
	})
	if err != nil {
		return nil, err
	}

	cfg := a.Models.For("help_response")
	res, err := a.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return nil, err
	}

	usage = res.Usage
	if usage.Model == "" {
		usage.Model = a.Provider.ModelName()
	}
	return helpResult(res.Content, usage, len(endpoints), language), nil
}

// detectLanguage asks the model for the sentence's two-letter language
// code. Replies outside the supported set default to English.
func (a *Analyzer) detectLanguage(ctx context.Context, sentence string) (string, llm.UsageInfo, error) {
	prompt, err := a.Prompts.Format("language_detection", "", map[string]string{
		"sentence": sentence,
	})
	if err != nil {
		return "", llm.UsageInfo{}, err
	}

	cfg := a.Models.For("language_detection")
	res, err := a.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return "", llm.UsageInfo{}, err
	}

	code := strings.ToLower(strings.TrimSpace(res.Content))
	if !validLanguages[code] {
		a.Logger.Debug("unsupported language code, defaulting to English", "code", code)
		code = "en"
	}
	return code, res.Usage, nil
}

// capabilitiesList renders the catalog as a sorted, deduplicated bullet
// list. Well-known endpoint id fragments map onto friendly phrasings;
// everything else falls back to the endpoint's own name.
func capabilitiesList(endpoints []catalog.Endpoint) string {
	if len(endpoints) == 0 {
		return "No capabilities currently available."
	}

	capabilities := make([]string, 0, len(endpoints))
	for i := range endpoints {
		capabilities = append(capabilities, capabilityLine(&endpoints[i]))
	}

	sort.Strings(capabilities)
	return strings.Join(slices.Compact(capabilities), "\n")
}

func capabilityLine(ep *catalog.Endpoint) string {
	id := ep.ID
	switch {
	case strings.Contains(id, "email"):
		return fmt.Sprintf("• Send emails (%s)", ep.Description)
	case strings.Contains(id, "meeting"), strings.Contains(id, "schedule"):
		return fmt.Sprintf("• Schedule meetings and appointments (%s)", ep.Description)
	case strings.Contains(id, "ticket"), strings.Contains(id, "support"):
		return fmt.Sprintf("• Create support tickets (%s)", ep.Description)
	case strings.Contains(id, "report"), strings.Contains(id, "generate"):
		return fmt.Sprintf("• Generate reports and documents (%s)", ep.Description)
	case strings.Contains(id, "deploy"):
		return fmt.Sprintf("• Deploy applications (%s)", ep.Description)
	case strings.Contains(id, "payment"), strings.Contains(id, "pay"):
		return fmt.Sprintf("• Process payments (%s)", ep.Description)
	case strings.Contains(id, "backup"):
		return fmt.Sprintf("• Backup databases (%s)", ep.Description)
	case strings.Contains(id, "log"):
		return fmt.Sprintf("• Analyze application logs (%s)", ep.Description)
	default:
		return fmt.Sprintf("• %s (%s)", ep.Name, ep.Description)
	}
}
