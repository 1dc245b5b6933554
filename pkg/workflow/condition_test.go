package workflow

import (
	"strings"
	"testing"
)

func TestEvaluateEmptyCondition(t *testing.T) {
	eval := newConditionEvaluator()

	ok, err := eval.evaluate("", map[string]any{})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !ok {
		t.Error("empty condition should evaluate to true")
	}
}

func TestEvaluateSnapshot(t *testing.T) {
	tests := []struct {
		name string
		expr string
		env  map[string]any
		want bool
	}{
		{
			name: "parameters present",
			expr: "parameter_count > 0",
			env:  map[string]any{"parameter_count": 3},
			want: true,
		},
		{
			name: "parameters absent",
			expr: "parameter_count > 0",
			env:  map[string]any{"parameter_count": 0},
			want: false,
		},
		{
			name: "compound expression",
			expr: `sentence != "" && endpoint_id == "send_email"`,
			env:  map[string]any{"sentence": "mail bob", "endpoint_id": "send_email"},
			want: true,
		},
		{
			name: "undefined variable is nil",
			expr: `mystery == "x"`,
			env:  map[string]any{"sentence": "hello"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eval := newConditionEvaluator()
			got, err := eval.evaluate(tt.expr, tt.env)
			if err != nil {
				t.Fatalf("evaluate: %v", err)
			}
			if got != tt.want {
				t.Errorf("evaluate(%q) = %v, want %v", tt.expr, got, tt.want)
			}
		})
	}
}

func TestCheckRejectsInvalidExpression(t *testing.T) {
	eval := newConditionEvaluator()

	if err := eval.check("(("); err == nil {
		t.Error("check should reject an unparseable expression")
	}
}

func TestEvaluateRuntimeTypeError(t *testing.T) {
	eval := newConditionEvaluator()

	_, err := eval.evaluate("sentence > 3", map[string]any{"sentence": "abc"})
	if err == nil {
		t.Fatal("comparing string to int should fail")
	}
}

func TestEvaluateCachesPrograms(t *testing.T) {
	eval := newConditionEvaluator()
	expr := "parameter_count > 1"

	if _, err := eval.evaluate(expr, map[string]any{"parameter_count": 2}); err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if _, ok := eval.cache[expr]; !ok {
		t.Error("compiled program should be cached")
	}

	// Second run hits the cache and still evaluates against the new env.
	got, err := eval.evaluate(expr, map[string]any{"parameter_count": 0})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if got {
		t.Error("cached program evaluated against stale environment")
	}
}

func TestEvaluateNonBoolLiteral(t *testing.T) {
	eval := newConditionEvaluator()

	_, err := eval.evaluate("1 + 1", map[string]any{})
	if err == nil {
		t.Fatal("non-bool condition should fail")
	}
	if !strings.Contains(err.Error(), "bool") {
		t.Errorf("error = %v, want mention of bool", err)
	}
}
