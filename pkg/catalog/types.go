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

// Package catalog models the user's endpoint catalog and fetches it from
// the remote endpoint service.
package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tombee/semroute/pkg/api"
)

// Parameter is one endpoint parameter.
type Parameter struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	// Required defaults to false when the catalog omits it.
	Required bool `json:"required,omitempty" yaml:"required,omitempty"`

	// Alternatives lists accepted aliases for this parameter's name.
	Alternatives []string `json:"alternatives,omitempty" yaml:"alternatives,omitempty"`

	// SemanticValue holds the resolved value once matching fills it.
	SemanticValue string `json:"semantic_value,omitempty" yaml:"semantic_value,omitempty"`
}

// Endpoint is a catalog record enriched with group identity. It is
// immutable for the duration of one analysis.
type Endpoint struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Text        string `json:"text" yaml:"text"`
	Description string `json:"description" yaml:"description"`
	Verb        string `json:"verb" yaml:"verb"`
	Base        string `json:"base" yaml:"base"`
	Path        string `json:"path" yaml:"path"`

	// EssentialPath is Path with every templated segment removed,
	// "/" when nothing remains.
	EssentialPath string `json:"essential_path" yaml:"essential_path"`

	APIGroupID   string      `json:"api_group_id" yaml:"api_group_id"`
	APIGroupName string      `json:"api_group_name" yaml:"api_group_name"`
	Parameters   []Parameter `json:"parameters" yaml:"parameters"`
}

// EssentialPath strips templated segments from an endpoint path. A segment
// is dropped when it is wrapped in braces; a path with nothing left
// collapses to "/".
func EssentialPath(path string) string {
	var kept []string
	for _, segment := range strings.Split(path, "/") {
		if strings.HasPrefix(segment, "{") && strings.HasSuffix(segment, "}") {
			continue
		}
		kept = append(kept, segment)
	}

	essential := strings.Join(kept, "/")
	if essential == "" {
		return "/"
	}
	return essential
}

var pathParamPattern = regexp.MustCompile(`\{([^}]+)\}`)

// PathParams returns the placeholder names in a path, in order of first
// appearance, without duplicates.
func PathParams(path string) []string {
	var names []string
	seen := make(map[string]struct{})

	for _, match := range pathParamPattern.FindAllStringSubmatch(path, -1) {
		name := match[1]
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	return names
}

// PathParamDescription synthesizes the description used for parameters
// discovered in a URL path rather than declared by the catalog.
func PathParamDescription(name string) string {
	return fmt.Sprintf("URL path parameter: %s", name)
}

// DedupeParameters collapses duplicate parameter names, keeping the first
// occurrence and preserving order. The second return lists the dropped
// names so callers can log them.
func DedupeParameters(params []Parameter) ([]Parameter, []string) {
	var unique []Parameter
	var dropped []string
	seen := make(map[string]struct{}, len(params))

	for _, p := range params {
		if _, ok := seen[p.Name]; ok {
			dropped = append(dropped, p.Name)
			continue
		}
		seen[p.Name] = struct{}{}
		unique = append(unique, p)
	}

	return unique, dropped
}

// FlattenGroups converts streamed API groups into the flat endpoint list
// the pipeline works with, deriving each endpoint's essential path and
// stamping group identity onto every record.
func FlattenGroups(groups []*api.APIGroup) []Endpoint {
	var endpoints []Endpoint

	for _, group := range groups {
		for _, re := range group.Endpoints {
			params := make([]Parameter, 0, len(re.Parameters))
			for _, rp := range re.Parameters {
				params = append(params, Parameter{
					Name:         rp.Name,
					Description:  rp.Description,
					Required:     rp.Required == "true",
					Alternatives: rp.Alternatives,
				})
			}

			endpoints = append(endpoints, Endpoint{
				ID:            re.ID,
				Name:          re.Text,
				Text:          re.Text,
				Description:   re.Description,
				Verb:          re.Verb,
				Base:          re.Base,
				Path:          re.Path,
				EssentialPath: EssentialPath(re.Path),
				APIGroupID:    group.ID,
				APIGroupName:  group.Name,
				Parameters:    params,
			})
		}
	}

	return endpoints
}

// FindByID returns the endpoint with the given id, or nil when absent.
func FindByID(endpoints []Endpoint, id string) *Endpoint {
	for i := range endpoints {
		if endpoints[i].ID == id {
			return &endpoints[i]
		}
	}
	return nil
}

// IDs returns the ids of all endpoints, in catalog order.
func IDs(endpoints []Endpoint) []string {
	ids := make([]string, 0, len(endpoints))
	for i := range endpoints {
		ids = append(ids, endpoints[i].ID)
	}
	return ids
}
