package llm

import (
	"context"
	"errors"
	"testing"
)

// fakeProvider returns scripted results in order, then errors.
type fakeProvider struct {
	name    string
	results []*GenerationResult
	errs    []error
	calls   int
}

func (f *fakeProvider) ModelName() string {
	return f.name
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, cfg *ModelConfig) (*GenerationResult, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.results) {
		return f.results[i], nil
	}
	return nil, errors.New("no scripted result")
}

func TestTrackedProviderAccumulates(t *testing.T) {
	fake := &fakeProvider{
		name: "cohere",
		results: []*GenerationResult{
			{Content: "first", Usage: UsageInfo{InputTokens: 10, OutputTokens: 5, TotalTokens: 15, Model: "cohere"}},
			{Content: "second", Usage: UsageInfo{InputTokens: 20, OutputTokens: 7, TotalTokens: 27, Model: "cohere"}},
		},
	}
	tracked := NewTrackedProvider(fake)

	for i := 0; i < 2; i++ {
		if _, err := tracked.Generate(context.Background(), "prompt", &ModelConfig{}); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}

	input, output := tracked.TotalUsage()
	if input != 30 || output != 12 {
		t.Errorf("TotalUsage = %d/%d, want 30/12", input, output)
	}
	if tracked.RequestCount() != 2 {
		t.Errorf("RequestCount = %d, want 2", tracked.RequestCount())
	}
}

func TestTrackedProviderFailureContributesNothing(t *testing.T) {
	fake := &fakeProvider{
		name: "claude",
		results: []*GenerationResult{
			{Content: "ok", Usage: UsageInfo{InputTokens: 8, OutputTokens: 4, TotalTokens: 12, Model: "claude"}},
			nil,
		},
		errs: []error{nil, errors.New("upstream broke")},
	}
	tracked := NewTrackedProvider(fake)

	if _, err := tracked.Generate(context.Background(), "prompt", &ModelConfig{}); err != nil {
		t.Fatalf("first call: %v", err)
	}
	if _, err := tracked.Generate(context.Background(), "prompt", &ModelConfig{}); err == nil {
		t.Fatal("second call should fail")
	}

	input, output := tracked.TotalUsage()
	if input != 8 || output != 4 {
		t.Errorf("TotalUsage = %d/%d, want 8/4", input, output)
	}
	if tracked.RequestCount() != 1 {
		t.Errorf("RequestCount = %d, want 1", tracked.RequestCount())
	}
}

func TestTrackedProviderOnUsage(t *testing.T) {
	fake := &fakeProvider{
		name: "cohere",
		results: []*GenerationResult{
			{Content: "ok", Usage: UsageInfo{InputTokens: 3, OutputTokens: 2, TotalTokens: 5, Model: "cohere"}},
		},
	}
	tracked := NewTrackedProvider(fake)

	var gotProvider string
	var gotUsage UsageInfo
	tracked.OnUsage = func(provider string, usage UsageInfo) {
		gotProvider = provider
		gotUsage = usage
	}

	if _, err := tracked.Generate(context.Background(), "prompt", &ModelConfig{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if gotProvider != "cohere" {
		t.Errorf("OnUsage provider = %q, want cohere", gotProvider)
	}
	if gotUsage.TotalTokens != 5 {
		t.Errorf("OnUsage usage = %+v", gotUsage)
	}
}

func TestTrackedProviderModelName(t *testing.T) {
	tracked := NewTrackedProvider(&fakeProvider{name: "claude"})
	if tracked.ModelName() != "claude" {
		t.Errorf("ModelName = %q, want claude", tracked.ModelName())
	}
}
