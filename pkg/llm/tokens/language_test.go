package tokens

import (
	"testing"

	"golang.org/x/text/language"
)

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		name string
		text string
		want language.Tag
	}{
		{"english article", "turn on the living room lights", language.English},
		{"english conjunction", "lights and heating please", language.English},
		{"english copula", "what is the temperature", language.English},
		{"french", "allume le chauffage et la lumière pour moi", language.French},
		{"spanish", "enciende el calentador y el ventilador", language.Spanish},
		{"german", "schalte der heizung und die lampe ein", language.German},
		{"empty defaults to english", "", language.English},
		{"no markers defaults to english", "turn_on_lights", language.English},
		{"uppercase handled", "TURN ON THE LIGHTS", language.English},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectLanguage(tt.text); got != tt.want {
				t.Errorf("DetectLanguage(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestDetectLanguageFrenchWinsSharedMarkers(t *testing.T) {
	// " la " belongs to both the French and Spanish marker sets; the
	// French set is checked first.
	if got := DetectLanguage("mira la tele"); got != language.French {
		t.Errorf("DetectLanguage = %v, want French for the shared marker", got)
	}
}
