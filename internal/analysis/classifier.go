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
	"strings"

	"github.com/tombee/semroute/pkg/api"
	"github.com/tombee/semroute/pkg/catalog"
)

// helpKeywords mark a sentence as a help request when the model's
// classification is inconclusive. They cover the help phrasings seen in
// English, French, German and Spanish traffic.
var helpKeywords = []string{
	"what can i do",
	"que puis-je faire",
	"qu'est-ce que je peux faire avec cette application",
	"what can i do with this app",
	"help",
	"aide",
	"aidez-moi",
	"available",
	"disponible",
	"options",
	"capabilities",
	"capacités",
	"features",
	"fonctionnalités",
	"how to use",
	"comment utiliser",
	"show me",
	"montre-moi",
	"list",
	"lister",
	"was kann ich",
	"hilfe",
	"wie kann",
	"fähigkeiten",
	"qué puedo",
	"ayuda",
	"ayúdame",
	"cómo",
	"capacidades",
}

// classifyIntent labels the sentence as actionable, help or general. The
// model reply is scanned for its classification keyword in priority
// order. An inconclusive reply falls back to help-keyword detection over
// the sentence itself, and anything still unclear counts as a general
// question.
func (a *Analyzer) classifyIntent(ctx context.Context, sentence string, endpoints []catalog.Endpoint) (api.Intent, error) {
	descriptions := make([]string, 0, len(endpoints))
	for i := range endpoints {
		descriptions = append(descriptions, endpoints[i].Description)
	}

	prompt, err := a.Prompts.Format("intent_classification", "", map[string]string{
		"sentence":       sentence,
		"endpoints_list": strings.Join(descriptions, "\n- "),
	})
	if err != nil {
		return api.IntentGeneralQuestion, err
	}

	cfg := a.Models.For("intent_classification")
	res, err := a.Provider.Generate(ctx, prompt, &cfg)
	if err != nil {
		return api.IntentGeneralQuestion, err
	}

	reply := strings.ToUpper(res.Content)
	switch {
	case strings.Contains(reply, "ACTIONABLE"):
		return api.IntentActionableRequest, nil
	case strings.Contains(reply, "HELP"):
		return api.IntentHelpRequest, nil
	case strings.Contains(reply, "GENERAL"):
		return api.IntentGeneralQuestion, nil
	}

	lower := strings.ToLower(sentence)
	for _, keyword := range helpKeywords {
		if strings.Contains(lower, keyword) {
			a.Logger.Info("classification inconclusive, sentence matched help keyword", "keyword", keyword)
			return api.IntentHelpRequest, nil
		}
	}

	a.Logger.Info("classification inconclusive, defaulting to general question")
	return api.IntentGeneralQuestion, nil
}
