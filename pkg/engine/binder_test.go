package engine

import (
	"reflect"
	"strings"
	"testing"
)

func bindFull(t *testing.T, plan *StrategyPlan) (*ValidatedPlan, *OwnershipGraph) {
	t.Helper()
	vp := mustValidate(t, plan, testTable(t))
	return vp, mustGraph(t, vp)
}

func findMethod(t *testing.T, rb ResourceBinding, name string) MethodBinding {
	t.Helper()
	for _, m := range rb.Methods {
		if m.Name == name {
			return m
		}
	}
	t.Fatalf("Expected method %s on %s", name, rb.Name)
	return MethodBinding{}
}

func TestBindResource_OutputPromotion(t *testing.T) {
	vp, graph := bindFull(t, fullPlan())
	unit := BindResource(vp, graph, 1)

	// f(handle, int *) -> void returns the dereferenced int
	size := findMethod(t, unit, "getSize")
	if size.Shape != ShapeSingle {
		t.Fatalf("Expected single result, got %s", size.Shape)
	}
	if len(size.Results) != 1 || size.Results[0].Type != "int" || size.Results[0].Param != 1 {
		t.Errorf("Expected int result from param 1, got %+v", size.Results)
	}
	if size.Params[0].Marshal != MarshalReceiver || size.Params[1].Marshal != MarshalOutPromoted {
		t.Errorf("Unexpected marshaling: %+v", size.Params)
	}
	if size.Receiver != 0 || size.Static {
		t.Errorf("Expected receiver 0, got %d static=%v", size.Receiver, size.Static)
	}

	// two outputs plus a meaningful int return
	rng := findMethod(t, unit, "getRange")
	if rng.Shape != ShapeComposite {
		t.Fatalf("Expected composite result, got %s", rng.Shape)
	}
	var names []string
	for _, r := range rng.Results {
		names = append(names, r.Name)
	}
	if !reflect.DeepEqual(names, []string{"start", "end", "result"}) {
		t.Errorf("Expected [start end result], got %v", names)
	}
}

func TestBindResource_NonZeroRuleConsumesReturn(t *testing.T) {
	vp, graph := bindFull(t, fullPlan())
	unit := BindResource(vp, graph, 1)

	save := findMethod(t, unit, "save")
	if save.Meaningful {
		t.Error("Expected nonZeroIsError to consume the return value")
	}
	if save.Shape != ShapeNone || save.Policy != ErrorPolicyThrow {
		t.Errorf("Expected no result and throw policy, got %s/%s", save.Shape, save.Policy)
	}
	if save.ErrorRule == nil || save.ErrorRule.Rule != RuleNonZeroIsError {
		t.Errorf("Expected resolved nonZeroIsError rule, got %+v", save.ErrorRule)
	}

	count := findMethod(t, unit, "diagCount")
	if count.ErrorRule != nil || count.Policy != ErrorPolicyNone {
		t.Errorf("Expected no rule on diagCount, got %+v", count.ErrorRule)
	}
	if count.Shape != ShapeSingle || count.Results[0].Param != -1 {
		t.Errorf("Expected native return passed through, got %+v", count.Results)
	}
}

func TestBindResource_NegativeRuleKeepsReturn(t *testing.T) {
	plan := fullPlan()
	plan.Resources[1].Methods = append(plan.Resources[1].Methods, MethodPlan{C: "unit_count_tokens"})
	plan.Errors = append(plan.Errors, ErrorRule{Function: "unit_count_tokens", Rule: RuleNegativeIsError, Throw: boolPtr(false)})

	vp, graph := bindFull(t, plan)
	m := findMethod(t, BindResource(vp, graph, 1), "countTokens")
	if !m.Meaningful || m.Shape != ShapeSingle {
		t.Errorf("Expected meaningful single return, got meaningful=%v shape=%s", m.Meaningful, m.Shape)
	}
	if !m.ReturnsTagged || m.Policy != ErrorPolicyReturnTagged {
		t.Errorf("Expected tagged return, got %s", m.Policy)
	}
}

func TestBindResource_HandleMarshaling(t *testing.T) {
	vp, graph := bindFull(t, fullPlan())

	unit := BindResource(vp, graph, 1)
	cursor := findMethod(t, unit, "rootCursor")
	if cursor.Results[0].Resource != "Cursor" {
		t.Errorf("Expected Cursor result to be wrapped, got %+v", cursor.Results[0])
	}
	if unit.Constructor == nil || unit.Constructor.Params[0].Marshal != MarshalWrapHandle ||
		unit.Constructor.Params[0].Resource != "Index" {
		t.Errorf("Expected constructor to unwrap Index, got %+v", unit.Constructor)
	}
	if unit.Constructor.HandleSource != HandleFromReturn || unit.Constructor.HandleParam != -1 {
		t.Errorf("Expected handle from return, got %+v", unit.Constructor)
	}

	index := BindResource(vp, graph, 0)
	version := findMethod(t, index, "version")
	if !version.Static || version.Receiver != -1 {
		t.Errorf("Expected static method, got receiver %d", version.Receiver)
	}

	visit := findMethod(t, BindResource(vp, graph, 2), "visit")
	want := []MarshalKind{MarshalReceiver, MarshalCallback, MarshalUserData}
	for i, k := range want {
		if visit.Params[i].Marshal != k {
			t.Errorf("Expected param %d marshaled as %s, got %s", i, k, visit.Params[i].Marshal)
		}
	}
	if visit.Params[1].Callback != "Visitor" {
		t.Errorf("Expected Visitor adapter, got %q", visit.Params[1].Callback)
	}
}

func TestBindResource_Lifecycle(t *testing.T) {
	vp, graph := bindFull(t, fullPlan())

	index := BindResource(vp, graph, 0)
	if index.Lifetime != LifetimeOwned || !index.Root {
		t.Errorf("Expected owned root, got %s root=%v", index.Lifetime, index.Root)
	}
	if index.Disposer == nil || !index.Disposer.Idempotent {
		t.Fatal("Expected idempotent disposer")
	}
	if !reflect.DeepEqual(index.Disposer.DisposeAfter, []string{"Unit"}) {
		t.Errorf("Expected Index to dispose Unit first, got %v", index.Disposer.DisposeAfter)
	}

	unit := BindResource(vp, graph, 1)
	if !reflect.DeepEqual(unit.Disposer.InvalidatesAdapters, []string{"Visitor"}) {
		t.Errorf("Expected Unit dispose to invalidate Visitor, got %v", unit.Disposer.InvalidatesAdapters)
	}
	if !reflect.DeepEqual(unit.Owners, []string{"Index"}) || unit.Root {
		t.Errorf("Expected Unit owned by Index, got %v", unit.Owners)
	}

	cursor := BindResource(vp, graph, 2)
	if cursor.Lifetime != LifetimeBorrowed || cursor.Constructor != nil || cursor.Disposer != nil {
		t.Errorf("Expected borrowed resource without lifecycle, got %+v", cursor)
	}
	if cursor.DisposalRank >= unit.DisposalRank || unit.DisposalRank >= index.DisposalRank {
		t.Errorf("Expected ranks Cursor < Unit < Index, got %d %d %d",
			cursor.DisposalRank, unit.DisposalRank, index.DisposalRank)
	}
	if !strings.Contains(cursor.Concurrency, "undefined") {
		t.Errorf("Expected concurrency note, got %q", cursor.Concurrency)
	}
}

func TestBindResource_OutParamConstructor(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources[1].Create = "open_unit"
	plan.Errors = []ErrorRule{{Function: "open_unit", Rule: RuleNonZeroIsError}}

	vp, graph := bindFull(t, plan)
	ctor := BindResource(vp, graph, 1).Constructor
	if ctor.HandleSource != HandleFromOutParam || ctor.HandleParam != 2 {
		t.Fatalf("Expected handle from out-param 2, got %s/%d", ctor.HandleSource, ctor.HandleParam)
	}
	if ctor.Params[2].Marshal != MarshalOutPromoted || ctor.Params[2].Resource != "Unit" {
		t.Errorf("Expected promoted handle param, got %+v", ctor.Params[2])
	}
	if ctor.Policy != ErrorPolicyThrow || ctor.ErrorRule == nil {
		t.Errorf("Expected throwing constructor, got %+v", ctor)
	}
}

func TestBindView(t *testing.T) {
	vp, _ := bindFull(t, fullPlan())

	spelling := BindView(vp, 1, 0)
	if !spelling.Copy || spelling.UnsafeBorrow || spelling.Hazard != "" {
		t.Errorf("Expected copying view without hazard, got %+v", spelling)
	}
	if spelling.Length != LengthOutParam || spelling.ElementType != "const char" || spelling.ElementSize != 1 {
		t.Errorf("Unexpected spelling view: %+v", spelling)
	}

	name := BindView(vp, 1, 1)
	if name.Length != LengthTerminator || name.Terminator != 0 {
		t.Errorf("Expected zero-terminated view, got %+v", name)
	}

	bytes := BindView(vp, 1, 2)
	if bytes.Copy || !bytes.UnsafeBorrow {
		t.Fatalf("Expected borrowed view, got %+v", bytes)
	}
	if !strings.Contains(bytes.Hazard, "must not outlive the Unit instance") ||
		!strings.Contains(bytes.Hazard, "must not be retained across a call") {
		t.Errorf("Expected lifetime hazard note, got %q", bytes.Hazard)
	}
	if bytes.ElementType != "unsigned char" || bytes.LengthFunction != "unit_diag_count" {
		t.Errorf("Unexpected bytes view: %+v", bytes)
	}
}

func TestBindCallback(t *testing.T) {
	vp, _ := bindFull(t, fullPlan())

	cb := BindCallback(vp, 0)
	if cb.Lifetime != AdapterResource || cb.Resource != "Unit" || !cb.AutoCleanup {
		t.Errorf("Expected resource lifetime tied to Unit, got %+v", cb)
	}
	if cb.Returns != "int" || cb.Signature != "int (*)(Cursor, Cursor, ClientData)" {
		t.Errorf("Unexpected signature %q returning %q", cb.Signature, cb.Returns)
	}
	want := []MarshalKind{MarshalWrapBorrowed, MarshalWrapBorrowed, MarshalUserData}
	for i, k := range want {
		if cb.Params[i].Marshal != k {
			t.Errorf("Expected param %d marshaled as %s, got %s", i, k, cb.Params[i].Marshal)
		}
	}

	plan := fullPlan()
	plan.Callbacks = append(plan.Callbacks, CallbackPlan{Name: "Log", CType: "void (*)(void *, const char *msg)"})
	plan.Resources[0].Methods = append(plan.Resources[0].Methods, MethodPlan{C: "index_set_logger"})
	vp, _ = bindFull(t, plan)

	log := BindCallback(vp, 1)
	if log.Lifetime != AdapterProcess || log.AutoCleanup || log.Resource != "" {
		t.Errorf("Expected process lifetime without cleanup, got %+v", log)
	}
	if log.Params[0].Marshal != MarshalUserData || log.Params[0].Name != "arg0" {
		t.Errorf("Unexpected first param: %+v", log.Params[0])
	}
	if log.Params[1].Marshal != MarshalPassThrough || log.Params[1].Name != "msg" {
		t.Errorf("Unexpected second param: %+v", log.Params[1])
	}
}
