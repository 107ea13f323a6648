package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu     sync.Mutex
	stages map[string]bool
	kinds  []string
}

func (o *recordingObserver) StageCompleted(stage string, _ time.Duration, failed bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.stages == nil {
		o.stages = make(map[string]bool)
	}
	o.stages[stage] = failed
}

func (o *recordingObserver) DiagnosticReported(kind, _ string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.kinds = append(o.kinds, kind)
}

type linterFunc func(context.Context, *BindingModel) (Diagnostics, error)

func (f linterFunc) Lint(ctx context.Context, m *BindingModel) (Diagnostics, error) { return f(ctx, m) }

func TestGenerate_IndexOwnsUnit(t *testing.T) {
	res, err := Generate(t.Context(), indexUnitPlan(), testTable(t), testOptions())
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(res.Diagnostics) != 0 {
		t.Errorf("Expected zero diagnostics, got %v", res.Diagnostics)
	}

	model := res.Model
	if got := model.Graph.DisposalNames(); !reflect.DeepEqual(got, []string{"Unit", "Index"}) {
		t.Errorf("Expected disposal order [Unit Index], got %v", got)
	}
	index, ok := model.Resource("Index")
	if !ok {
		t.Fatal("Expected Index binding")
	}
	if index.Disposer == nil || !reflect.DeepEqual(index.Disposer.DisposeAfter, []string{"Unit"}) {
		t.Errorf("Expected Index disposer to release Unit first, got %+v", index.Disposer)
	}
}

func TestGenerate_FullModel(t *testing.T) {
	obs := &recordingObserver{}
	opts := testOptions()
	opts.Observer = obs

	res, err := Generate(t.Context(), fullPlan(), testTable(t), opts)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	model := res.Model
	if len(model.Resources) != 3 || len(model.Callbacks) != 1 || len(model.Enums) != 1 {
		t.Fatalf("Unexpected model shape: %d resources, %d callbacks, %d enums",
			len(model.Resources), len(model.Callbacks), len(model.Enums))
	}
	unit, _ := model.Resource("Unit")
	if len(unit.Views) != 3 {
		t.Errorf("Expected 3 views on Unit, got %d", len(unit.Views))
	}
	if len(model.ErrorRules) != 1 || model.ErrorRules[0].Function != "unit_save" {
		t.Errorf("Expected unit_save rule, got %+v", model.ErrorRules)
	}
	if len(model.Enums[0].Values) != 3 {
		t.Errorf("Expected 3 ErrorCode values, got %v", model.Enums[0].Values)
	}
	if cb, ok := model.Callback("Visitor"); !ok || cb.Resource != "Unit" {
		t.Errorf("Expected Visitor tied to Unit, got %+v", cb)
	}

	for _, stage := range []string{StageValidate, StageGraph, StageResources, StageRules, StageViews, StageCallbacks} {
		failed, ok := obs.stages[stage]
		if !ok || failed {
			t.Errorf("Expected stage %s to complete, got ok=%v failed=%v", stage, ok, failed)
		}
	}
	if _, ok := obs.stages[StageLint]; ok {
		t.Error("Expected no lint stage without a linter")
	}
}

func TestGenerate_RejectedCarriesAllDiagnostics(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources[0].Destroy = "missing_free"
	plan.Resources[1].Methods = []MethodPlan{{C: "missing_method"}}

	obs := &recordingObserver{}
	opts := testOptions()
	opts.Observer = obs

	res, err := Generate(t.Context(), plan, testTable(t), opts)
	if res != nil {
		t.Fatal("Expected no result for a rejected plan")
	}
	if !IsRejected(err) {
		t.Fatalf("Expected rejected error, got %v", err)
	}

	diags, ok := DiagnosticsOf(err)
	if !ok {
		t.Fatal("Expected diagnostics on the error")
	}
	if got := len(diags.ByKind(KindUnknownSymbol)); got != 2 {
		t.Errorf("Expected 2 UnknownSymbol diagnostics, got %d: %v", got, diags)
	}
	if !obs.stages[StageValidate] {
		t.Error("Expected validate stage to be reported as failed")
	}
	if _, ok := obs.stages[StageGraph]; ok {
		t.Error("Expected pipeline to stop after validation")
	}
	if len(obs.kinds) != len(diags) {
		t.Errorf("Expected %d reported diagnostics, got %d", len(diags), len(obs.kinds))
	}
}

func TestGenerate_RejectsCycles(t *testing.T) {
	plan := indexUnitPlan()
	plan.Ownership = append(plan.Ownership, OwnershipEntry{Owner: "Unit", Child: "Index"})

	_, err := Generate(t.Context(), plan, testTable(t), testOptions())
	diags, ok := DiagnosticsOf(err)
	if !ok {
		t.Fatalf("Expected rejected error, got %v", err)
	}
	if len(diags.ByKind(KindCycleError)) != 1 {
		t.Errorf("Expected 1 CycleError, got %v", diags)
	}
}

func TestGenerate_AllowWarnings(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources[1].Create = "open_unit"

	if _, err := Generate(t.Context(), plan, testTable(t), testOptions()); !IsRejected(err) {
		t.Fatalf("Expected warnings to be fatal by default, got %v", err)
	}

	opts := testOptions()
	opts.AllowWarnings = true
	res, err := Generate(t.Context(), plan, testTable(t), opts)
	if err != nil {
		t.Fatalf("Expected warnings to be tolerated, got %v", err)
	}
	if len(res.Diagnostics.ByKind(KindMissingErrorRule)) != 1 {
		t.Errorf("Expected MissingErrorRule kept on the result, got %v", res.Diagnostics)
	}
}

func TestGenerate_Linter(t *testing.T) {
	var seen *BindingModel
	opts := testOptions()
	opts.Linter = linterFunc(func(_ context.Context, m *BindingModel) (Diagnostics, error) {
		seen = m
		var ds Diagnostics
		ds.add(KindPolicyViolation, resourceEntry("Unit"), "no-unit", "Unit is not allowed")
		return ds, nil
	})

	_, err := Generate(t.Context(), indexUnitPlan(), testTable(t), opts)
	if seen == nil {
		t.Fatal("Expected linter to receive the model")
	}
	diags, ok := DiagnosticsOf(err)
	if !ok || len(diags.ByKind(KindPolicyViolation)) != 1 {
		t.Errorf("Expected PolicyViolation rejection, got %v", err)
	}

	boom := errors.New("boom")
	opts.Linter = linterFunc(func(context.Context, *BindingModel) (Diagnostics, error) { return nil, boom })
	_, err = Generate(t.Context(), indexUnitPlan(), testTable(t), opts)
	if !IsHook(err) || !errors.Is(err, boom) {
		t.Errorf("Expected hook error wrapping boom, got %v", err)
	}
}

func TestGenerate_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	_, err := Generate(ctx, fullPlan(), testTable(t), testOptions())
	if err == nil {
		t.Fatal("Expected an error for a canceled context")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
