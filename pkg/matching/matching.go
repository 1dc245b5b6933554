// Package matching computes parameter coverage for a matched endpoint.
//
// Given the values field matching resolved and the endpoint's declared
// parameters, Compute reports how many required and optional parameters
// are filled, which are still missing, and whether the match is complete
// enough to act on. UserPrompt turns the missing-required set into the
// follow-up question sent back to the user.
package matching

import (
	"log/slog"
	"strings"

	"github.com/tombee/semroute/pkg/catalog"
)

// Status classifies required-parameter coverage.
type Status string

const (
	// StatusComplete means every required parameter has a value (or the
	// endpoint requires none).
	StatusComplete Status = "complete"

	// StatusPartial means some but not all required parameters have values.
	StatusPartial Status = "partial"

	// StatusIncomplete means no required parameter has a value.
	StatusIncomplete Status = "incomplete"
)

// ParameterMatch is one resolved parameter value out of field matching.
// A nil Value means the parameter was recognized but nothing filled it.
type ParameterMatch struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Value       *string `json:"value,omitempty"`
}

// Filled reports whether the match carries a non-empty value after trimming.
func (m ParameterMatch) Filled() bool {
	return m.Value != nil && strings.TrimSpace(*m.Value) != ""
}

// MissingField identifies a parameter that still needs a value.
type MissingField struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Info summarizes parameter coverage for a matched endpoint. Counts run
// over the endpoint's deduplicated parameter set; the completion percentage
// and status consider required parameters only.
type Info struct {
	Status               Status         `json:"status"`
	TotalRequired        int            `json:"total_required"`
	MappedRequired       int            `json:"mapped_required"`
	TotalOptional        int            `json:"total_optional"`
	MappedOptional       int            `json:"mapped_optional"`
	CompletionPercentage float64        `json:"completion_percentage"`
	MissingRequired      []MissingField `json:"missing_required"`
	MissingOptional      []MissingField `json:"missing_optional"`
}

// Compute summarizes how well matches cover the endpoint's parameters.
// Duplicate parameter names keep their first occurrence; a match fills a
// parameter when it has the same name and a non-empty trimmed value.
func Compute(matches []ParameterMatch, params []catalog.Parameter) Info {
	deduped, dropped := catalog.DedupeParameters(params)
	if len(dropped) > 0 {
		slog.Warn("duplicate endpoint parameters ignored", "names", dropped)
	}

	filled := make(map[string]bool, len(matches))
	for _, m := range matches {
		if _, ok := filled[m.Name]; !ok {
			filled[m.Name] = m.Filled()
		}
	}

	info := Info{
		MissingRequired: []MissingField{},
		MissingOptional: []MissingField{},
	}

	for _, p := range deduped {
		if p.Required {
			info.TotalRequired++
			if filled[p.Name] {
				info.MappedRequired++
			} else {
				info.MissingRequired = append(info.MissingRequired, MissingField{Name: p.Name, Description: p.Description})
			}
			continue
		}

		info.TotalOptional++
		if filled[p.Name] {
			info.MappedOptional++
		} else {
			info.MissingOptional = append(info.MissingOptional, MissingField{Name: p.Name, Description: p.Description})
		}
	}

	if info.TotalRequired == 0 {
		info.CompletionPercentage = 100
	} else {
		info.CompletionPercentage = 100 * float64(info.MappedRequired) / float64(info.TotalRequired)
	}

	switch {
	case info.TotalRequired == 0 || info.MappedRequired == info.TotalRequired:
		info.Status = StatusComplete
	case info.MappedRequired > 0:
		info.Status = StatusPartial
	default:
		info.Status = StatusIncomplete
	}

	return info
}
