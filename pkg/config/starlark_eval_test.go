package config

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestStarlarkEvaluator_Evaluate(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)
	ctx := context.Background()

	tests := []struct {
		name      string
		script    string
		input     map[string]interface{}
		checkFunc func(*testing.T, *StarlarkResult)
		wantErr   bool
	}{
		{
			name:   "use input variables",
			script: "doubled = count * 2\n",
			input:  map[string]interface{}{"count": 5},
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if sr.Output["doubled"] != int64(10) {
					t.Errorf("expected doubled=10, got %v", sr.Output["doubled"])
				}
			},
		},
		{
			name: "helper functions are not exported",
			script: `
def method(c):
    return {"c": c}

methods = [method("unit_" + n) for n in ["save", "name"]]
`,
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["method"]; ok {
					t.Error("expected function globals to be skipped")
				}
				methods, ok := sr.Output["methods"].([]interface{})
				if !ok || len(methods) != 2 {
					t.Fatalf("expected 2 methods, got %v", sr.Output["methods"])
				}
				first := methods[0].(map[string]interface{})
				if first["c"] != "unit_save" {
					t.Errorf("expected unit_save, got %v", first["c"])
				}
			},
		},
		{
			name:   "private globals are skipped",
			script: "_hidden = 1\nshown = 2\n",
			checkFunc: func(t *testing.T, sr *StarlarkResult) {
				if _, ok := sr.Output["_hidden"]; ok {
					t.Error("expected _hidden to be skipped")
				}
			},
		},
		{
			name:    "syntax error",
			script:  "invalid syntax here\n",
			wantErr: true,
		},
		{
			name:    "runtime error",
			script:  "result = undefined_variable\n",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := evaluator.Evaluate(ctx, "test.star", tt.script, tt.input)

			if tt.wantErr {
				if err == nil && result.Error == "" {
					t.Errorf("expected error, got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.checkFunc != nil {
				tt.checkFunc(t, result)
			}
		})
	}
}

func TestStarlarkEvaluator_Timeout(t *testing.T) {
	evaluator := NewStarlarkEvaluator(100 * time.Millisecond)

	script := `
def slow_function():
    result = 0
    for i in range(100000):
        for j in range(100000):
            result = result + j
    return result

output = slow_function()
`

	result, err := evaluator.Evaluate(context.Background(), "slow.star", script, nil)
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if !strings.Contains(err.Error(), "timeout") {
		t.Errorf("expected timeout error, got %v", err)
	}
	if result == nil || result.Error == "" {
		t.Error("expected timeout error in result")
	}
}

func TestStarlarkEvaluator_Security(t *testing.T) {
	evaluator := NewStarlarkEvaluator(5 * time.Second)

	script := `
print("this should not appear")
result = "done"
`

	result, err := evaluator.Evaluate(context.Background(), "print.star", script, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Output["result"] != "done" {
		t.Errorf("expected result='done', got %v", result.Output["result"])
	}
}

const namingScript = `
def derive_name(function, resource, prefix):
    if function == "unit_save":
        return "persist"
    if function == "unit_broken":
        return 42
    return None
`

func TestStarlarkNamer_DeriveName(t *testing.T) {
	namer, err := NewStarlarkNamer("naming.star", namingScript, time.Second)
	if err != nil {
		t.Fatalf("failed to compile hook: %v", err)
	}
	ctx := context.Background()

	name, err := namer.DeriveName(ctx, "unit_save", "Unit", "unit_")
	if err != nil || name != "persist" {
		t.Errorf("expected persist, got %q (%v)", name, err)
	}

	name, err = namer.DeriveName(ctx, "unit_name", "Unit", "unit_")
	if err != nil || name != "" {
		t.Errorf("expected empty name for None, got %q (%v)", name, err)
	}

	if _, err := namer.DeriveName(ctx, "unit_broken", "Unit", "unit_"); err == nil {
		t.Error("expected error for a non-string result")
	}
}

func TestStarlarkNamer_Timeout(t *testing.T) {
	script := `
def derive_name(function, resource, prefix):
    n = 0
    for i in range(100000):
        for j in range(100000):
            n = n + 1
    return "never"
`
	namer, err := NewStarlarkNamer("slow.star", script, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to compile hook: %v", err)
	}

	_, err = namer.DeriveName(context.Background(), "f", "R", "")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("expected timeout, got %v", err)
	}
}

func TestNewStarlarkNamer_MissingFunction(t *testing.T) {
	if _, err := NewStarlarkNamer("empty.star", "x = 1\n", time.Second); err == nil {
		t.Error("expected error when derive_name is missing")
	}
	if _, err := NewStarlarkNamer("bad.star", "def (:\n", time.Second); err == nil {
		t.Error("expected error for a syntax error")
	}
}
