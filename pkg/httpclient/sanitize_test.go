package httpclient

import (
	"net/url"
	"strings"
	"testing"
)

func TestSanitizeURL(t *testing.T) {
	tests := []struct {
		name     string
		rawURL   string
		redacted []string
		kept     []string
	}{
		{
			name:     "api key redacted",
			rawURL:   "https://api.example.com/v1/chat?api_key=sk-abc123&model=command-r",
			redacted: []string{"api_key=%5BREDACTED%5D"},
			kept:     []string{"model=command-r"},
		},
		{
			name:     "token variants redacted",
			rawURL:   "https://example.com/?access_token=xyz&TOKEN=abc",
			redacted: []string{"access_token=%5BREDACTED%5D", "TOKEN=%5BREDACTED%5D"},
		},
		{
			name:   "plain url untouched",
			rawURL: "https://example.com/path?page=2&limit=10",
			kept:   []string{"page=2", "limit=10"},
		},
		{
			name:     "substring match catches apikey",
			rawURL:   "https://example.com/?my_apikey_field=secretvalue",
			redacted: []string{"my_apikey_field=%5BREDACTED%5D"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := url.Parse(tt.rawURL)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}

			got := sanitizeURL(u)

			for _, want := range tt.redacted {
				if !strings.Contains(got, want) {
					t.Errorf("sanitizeURL(%q) = %q, missing %q", tt.rawURL, got, want)
				}
			}
			for _, want := range tt.kept {
				if !strings.Contains(got, want) {
					t.Errorf("sanitizeURL(%q) = %q, lost benign param %q", tt.rawURL, got, want)
				}
			}
			if strings.Contains(got, "sk-abc123") || strings.Contains(got, "secretvalue") {
				t.Errorf("sanitizeURL(%q) leaked a secret: %q", tt.rawURL, got)
			}
		})
	}
}

func TestSanitizeURLNil(t *testing.T) {
	if got := sanitizeURL(nil); got != "" {
		t.Errorf("sanitizeURL(nil) = %q, want empty", got)
	}
}

func TestIsSensitiveParam(t *testing.T) {
	sensitive := []string{"api_key", "API_KEY", "Authorization", "x-auth-token", "client_secret", "credentials"}
	for _, p := range sensitive {
		if !isSensitiveParam(p) {
			t.Errorf("isSensitiveParam(%q) = false, want true", p)
		}
	}

	benign := []string{"page", "limit", "model", "q"}
	for _, p := range benign {
		if isSensitiveParam(p) {
			t.Errorf("isSensitiveParam(%q) = true, want false", p)
		}
	}
}
