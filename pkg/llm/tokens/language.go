package tokens

import (
	"strings"

	"golang.org/x/text/language"
)

// stopwordSets pairs a language with marker words that are cheap to scan
// for. Checked in order; French before Spanish because " la " appears in
// both sets.
var stopwordSets = []struct {
	tag     language.Tag
	markers []string
}{
	{language.English, []string{"the ", " and ", " is "}},
	{language.French, []string{" le ", " la ", " et ", " pour ", " avec "}},
	{language.Spanish, []string{" el ", " la ", " y "}},
	{language.German, []string{" der ", " die ", " und "}},
}

// DetectLanguage guesses the language of text from common stopwords.
// Unknown input defaults to English, which keeps the multiplier neutral.
func DetectLanguage(text string) language.Tag {
	lower := strings.ToLower(text)

	for _, set := range stopwordSets {
		for _, marker := range set.markers {
			if strings.Contains(lower, marker) {
				return set.tag
			}
		}
	}
	return language.English
}
