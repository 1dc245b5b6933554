package matching

import (
	"fmt"
	"strings"
)

// UserPrompt builds the follow-up question asking for the missing required
// fields, phrased for the named endpoint. It returns nil when no required
// field is missing.
func (i Info) UserPrompt(endpointName string) *string {
	if len(i.MissingRequired) == 0 {
		return nil
	}

	name := strings.ToLower(endpointName)
	refs := make([]string, len(i.MissingRequired))
	for n, f := range i.MissingRequired {
		refs[n] = fieldReference(f)
	}

	var prompt string
	switch len(refs) {
	case 1:
		prompt = fmt.Sprintf(
			"To proceed with %s, I need one more piece of information: %s. Could you please provide that?",
			name, refs[0],
		)
	case 2:
		prompt = fmt.Sprintf(
			"To complete your %s request, I need %s and %s. Could you provide these details?",
			name, refs[0], refs[1],
		)
	default:
		prompt = fmt.Sprintf(
			"To process your %s request, I need a few more details: %s, and %s. Could you provide this information?",
			name, strings.Join(refs[:len(refs)-1], ", "), refs[len(refs)-1],
		)
	}
	return &prompt
}

// fieldReference renders a human reference for a missing field. The
// description is used only when it says strictly more than the name itself
// (more than 5 characters longer than the space-normalized name) and is not
// a generated "missing parameter" placeholder.
func fieldReference(f MissingField) string {
	normalized := strings.NewReplacer("_", " ", "-", " ").Replace(f.Name)
	desc := strings.TrimSpace(f.Description)
	if len(desc) > len(normalized)+5 && !strings.HasPrefix(desc, "missing parameter") {
		return desc
	}
	return "the " + normalized
}
