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

package steps

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeModelJSON parses the JSON object embedded in a model reply.
// Providers wrap output in markdown fences or prose often enough that the
// raw content rarely parses as-is, so everything outside the outermost
// braces is discarded first.
func DecodeModelJSON(content string) (map[string]any, error) {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object in model response")
	}

	var doc map[string]any
	if err := json.Unmarshal([]byte(content[start:end+1]), &doc); err != nil {
		return nil, fmt.Errorf("model response is not valid JSON: %w", err)
	}
	return doc, nil
}
