package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
)

// fullPlan exercises every plan section and resolves cleanly against testTable.
func fullPlan() *StrategyPlan {
	return &StrategyPlan{
		Resources: []ResourcePlan{
			{
				Name:    "Index",
				Create:  "make_index",
				Destroy: "free_index",
				Prefix:  "index_",
				Methods: []MethodPlan{{C: "index_version"}},
			},
			{
				Name:    "Unit",
				Create:  "parse_unit",
				Destroy: "free_unit",
				Prefix:  "unit_",
				Methods: []MethodPlan{
					{C: "unit_diag_count"},
					{C: "unit_get_size"},
					{C: "unit_get_range"},
					{C: "unit_save"},
					{C: "unit_cursor", Name: "rootCursor"},
				},
				Views: []ViewPlan{
					{Name: "spelling", Ptr: "unit_spelling", Length: "len"},
					{Name: "name", Ptr: "unit_name"},
					{Name: "bytes", Ptr: "unit_bytes", Length: "unit_diag_count", Copy: boolPtr(false)},
				},
			},
			{
				Name:    "Cursor",
				CType:   "Cursor",
				Prefix:  "cursor_",
				Methods: []MethodPlan{{C: "cursor_kind"}, {C: "cursor_visit"}},
			},
		},
		Enums:     []EnumPlan{{Name: "ErrorCode", ExposeAs: ExposeConst}},
		Callbacks: []CallbackPlan{{Name: "Visitor", CType: "Visitor", Lifetime: "resource:Unit"}},
		Errors:    []ErrorRule{{Function: "unit_save", Rule: RuleNonZeroIsError}},
		Ownership: []OwnershipEntry{
			{Owner: "Index", Child: "Unit"},
			{Owner: "Unit", Child: "Cursor"},
		},
	}
}

func TestValidate_ResolvesCompletePlan(t *testing.T) {
	vp, diags := Validate(t.Context(), fullPlan(), testTable(t), testOptions())
	if len(diags) != 0 {
		t.Fatalf("Expected no diagnostics, got: %v", diags)
	}
	if vp == nil {
		t.Fatal("Expected validated plan")
	}

	unit := vp.Resources[1]
	if unit.CType != "Unit" {
		t.Errorf("Expected inferred ctype Unit, got %q", unit.CType)
	}
	if unit.HandleSource != HandleFromReturn {
		t.Errorf("Expected handle from return, got %s", unit.HandleSource)
	}
	wantNames := []string{"diagCount", "getSize", "getRange", "save", "rootCursor"}
	for i, want := range wantNames {
		if unit.MethodNames[i] != want {
			t.Errorf("Expected method %d named %q, got %q", i, want, unit.MethodNames[i])
		}
	}
	if unit.Views[0].Length != LengthOutParam || unit.Views[0].LengthParam != 1 {
		t.Errorf("Expected outParam length at 1, got %+v", unit.Views[0])
	}
	if unit.Views[1].Length != LengthTerminator {
		t.Errorf("Expected terminator length, got %s", unit.Views[1].Length)
	}
	if unit.Views[2].Length != LengthFunction || unit.Views[2].LengthFunction != "unit_diag_count" {
		t.Errorf("Expected function length, got %+v", unit.Views[2])
	}
	if vp.Callbacks[0].Resource != "Unit" {
		t.Errorf("Expected callback tied to Unit, got %q", vp.Callbacks[0].Resource)
	}
}

func TestValidate_UnknownSymbolNamesReference(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(p *StrategyPlan)
		ref    string
	}{
		{"ctype", func(p *StrategyPlan) { p.Resources[2].CType = "NoSuchType" }, "NoSuchType"},
		{"create", func(p *StrategyPlan) { p.Resources[0].Create = "make_nothing" }, "make_nothing"},
		{"destroy", func(p *StrategyPlan) { p.Resources[1].Destroy = "free_nothing" }, "free_nothing"},
		{"method", func(p *StrategyPlan) { p.Resources[1].Methods[0].C = "unit_missing" }, "unit_missing"},
		{"view ptr", func(p *StrategyPlan) { p.Resources[1].Views[1].Ptr = "unit_missing_ptr" }, "unit_missing_ptr"},
		{"view length", func(p *StrategyPlan) { p.Resources[1].Views[1].Length = "unit_len" }, "unit_len"},
		{"callback ctype", func(p *StrategyPlan) { p.Callbacks[0].CType = "Walker" }, "Walker"},
		{"error rule", func(p *StrategyPlan) { p.Errors[0].Function = "unit_gone" }, "unit_gone"},
		{"owner", func(p *StrategyPlan) { p.Ownership[0].Owner = "Context" }, "Context"},
		{"child", func(p *StrategyPlan) { p.Ownership[1].Child = "Token" }, "Token"},
		{"enum", func(p *StrategyPlan) { p.Enums[0].CType = "CXErrorCode" }, "CXErrorCode"},
		{"lifetime", func(p *StrategyPlan) { p.Callbacks[0].Lifetime = "resource:Session" }, "Session"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := fullPlan()
			tt.mutate(plan)

			vp, diags := Validate(t.Context(), plan, testTable(t), testOptions())
			if vp != nil {
				t.Fatal("Expected no plan alongside fatal diagnostics")
			}
			found := false
			for _, d := range diags.ByKind(KindUnknownSymbol) {
				if d.Reference == tt.ref {
					found = true
				}
			}
			if !found {
				t.Errorf("Expected UnknownSymbol naming %q, got: %v", tt.ref, diags)
			}
		})
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	plan := fullPlan()
	plan.Resources[0].Create = "make_nothing"
	plan.Resources[1].Methods[0].C = "unit_missing"
	plan.Ownership[0].Owner = "Context"

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if got := len(diags.ByKind(KindUnknownSymbol)); got != 3 {
		t.Errorf("Expected 3 UnknownSymbol diagnostics, got %d: %v", got, diags)
	}
}

func TestValidate_DuplicateResourceName(t *testing.T) {
	plan := fullPlan()
	plan.Resources = append(plan.Resources, ResourcePlan{Name: "Unit", CType: "Token"})
	plan.Enums = append(plan.Enums, EnumPlan{Name: "Index", ExposeAs: ExposeType, CType: "ErrorCode"})

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	dups := diags.ByKind(KindDuplicateBinding)
	if len(dups) != 2 {
		t.Fatalf("Expected 2 DuplicateBinding diagnostics, got %d: %v", len(dups), diags)
	}
	if dups[0].Reference != "Unit" || dups[1].Reference != "Index" {
		t.Errorf("Unexpected duplicate references: %v", dups)
	}
}

func TestValidate_MethodNameCollision(t *testing.T) {
	plan := fullPlan()
	plan.Resources[1].Methods = append(plan.Resources[1].Methods, MethodPlan{C: "unit_name", Name: "save"})

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	dups := diags.ByKind(KindDuplicateBinding)
	if len(dups) != 1 {
		t.Fatalf("Expected 1 DuplicateBinding, got %d: %v", len(dups), diags)
	}
	if dups[0].Reference != "save" {
		t.Errorf("Expected collision on save, got %q", dups[0].Reference)
	}
}

func TestValidate_MethodCollidesWithView(t *testing.T) {
	plan := fullPlan()
	plan.Resources[1].Methods = append(plan.Resources[1].Methods, MethodPlan{C: "unit_name"})

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	dups := diags.ByKind(KindDuplicateBinding)
	if len(dups) != 1 || dups[0].Reference != "name" {
		t.Errorf("Expected DuplicateBinding on name, got: %v", diags)
	}
}

func TestValidate_AmbiguousErrorRule(t *testing.T) {
	plan := indexUnitPlan()
	plan.Errors = []ErrorRule{
		{Function: "parse_unit", Rule: RuleNonZeroIsError},
		{Function: "parse_unit", Rule: RuleNegativeIsError},
		{Function: "parse_unit", Rule: RuleNegativeIsError, Throw: boolPtr(false)},
	}

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	amb := diags.ByKind(KindAmbiguousErrorRule)
	if len(amb) != 1 {
		t.Fatalf("Expected exactly 1 AmbiguousErrorRule, got %d: %v", len(amb), diags)
	}
	if amb[0].Reference != "parse_unit" {
		t.Errorf("Expected reference parse_unit, got %q", amb[0].Reference)
	}
}

func TestValidate_IdenticalRulesMerge(t *testing.T) {
	plan := fullPlan()
	plan.Errors = append(plan.Errors,
		ErrorRule{Function: "unit_save", Rule: RuleNonZeroIsError, Throw: boolPtr(true)})

	vp, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if len(diags) != 0 {
		t.Fatalf("Expected identical rules to merge, got: %v", diags)
	}
	if rule, ok := vp.Rule("unit_save"); !ok || rule.Policy != ErrorPolicyThrow {
		t.Errorf("Expected throw rule for unit_save, got %+v", rule)
	}
}

func TestValidate_RuleOnNonIntegerReturn(t *testing.T) {
	plan := fullPlan()
	plan.Errors = append(plan.Errors, ErrorRule{Function: "unit_weight", Rule: RuleNegativeIsError})

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	mismatch := diags.ByKind(KindTypeMismatch)
	if len(mismatch) != 1 || mismatch[0].Reference != "unit_weight" {
		t.Errorf("Expected TypeMismatch on unit_weight, got: %v", diags)
	}
}

func TestValidate_MissingErrorRule(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources[1].Create = "open_unit"

	vp, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if vp != nil {
		t.Fatal("Expected MissingErrorRule to be fatal by default")
	}
	missing := diags.ByKind(KindMissingErrorRule)
	if len(missing) != 1 {
		t.Fatalf("Expected 1 MissingErrorRule, got: %v", diags)
	}
	if missing[0].Severity != SeverityWarning {
		t.Errorf("Expected warning severity, got %s", missing[0].Severity)
	}

	opts := testOptions()
	opts.AllowWarnings = true
	vp, diags = Validate(t.Context(), plan, testTable(t), opts)
	if vp == nil {
		t.Fatalf("Expected plan with AllowWarnings, got: %v", diags)
	}
	if vp.Resources[1].HandleSource != HandleFromOutParam || vp.Resources[1].HandleParam != 2 {
		t.Errorf("Expected handle from out-param 2, got %s/%d", vp.Resources[1].HandleSource, vp.Resources[1].HandleParam)
	}

	plan.Errors = []ErrorRule{{Function: "open_unit", Rule: RuleNonZeroIsError}}
	if _, diags := Validate(t.Context(), plan, testTable(t), testOptions()); len(diags) != 0 {
		t.Errorf("Expected no diagnostics once a rule exists, got: %v", diags)
	}
}

func TestValidate_CreateShapeMismatch(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources[1].CType = "Unit"
	plan.Resources[1].Create = "unit_count_tokens"

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if len(diags.ByKind(KindTypeMismatch)) != 1 {
		t.Errorf("Expected TypeMismatch for incompatible create, got: %v", diags)
	}
}

func TestValidate_UnrepresentableFailure(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources[1].Create = "open_unit"
	plan.Errors = []ErrorRule{{Function: "open_unit", Rule: RuleNonZeroIsError, Throw: boolPtr(false)}}

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if got := diags.ByKind(KindUnrepresentableFailure); len(got) != 1 || got[0].Reference != "open_unit" {
		t.Errorf("Expected UnrepresentableFailure on open_unit, got: %v", diags)
	}
}

func TestValidate_CallbackLifetimes(t *testing.T) {
	tests := []struct {
		lifetime string
		kind     DiagnosticKind
	}{
		{"resource:Cursor", KindUnresolvableLifetime},
		{"unit", KindInvalidPlan},
		{"resource:", KindInvalidPlan},
		{"resource:Nope", KindUnknownSymbol},
	}
	for _, tt := range tests {
		t.Run(tt.lifetime, func(t *testing.T) {
			plan := fullPlan()
			plan.Callbacks[0].Lifetime = tt.lifetime
			_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
			if len(diags.ByKind(tt.kind)) != 1 {
				t.Errorf("Expected one %s, got: %v", tt.kind, diags)
			}
		})
	}
}

func TestValidate_StructuralProblems(t *testing.T) {
	plan := fullPlan()
	plan.Enums[0].ExposeAs = "runtime"
	plan.Errors[0].Rule = "zeroIsError"
	plan.Resources[1].Views[0].Ptr = ""

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if got := len(diags.ByKind(KindInvalidPlan)); got != 3 {
		t.Errorf("Expected 3 InvalidPlan diagnostics, got %d: %v", got, diags)
	}
}

func TestValidate_UnplannedCallbackParameter(t *testing.T) {
	plan := fullPlan()
	plan.Callbacks = nil

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	found := false
	for _, d := range diags.ByKind(KindUnknownSymbol) {
		if d.Reference == "Visitor" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected UnknownSymbol for unplanned Visitor parameter, got: %v", diags)
	}
}

func TestValidate_ViewShapes(t *testing.T) {
	plan := fullPlan()
	plan.Resources[1].Views = []ViewPlan{
		{Name: "count", Ptr: "unit_diag_count"},
		{Name: "weighted", Ptr: "unit_name", Length: "unit_weight"},
	}

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	mismatch := diags.ByKind(KindTypeMismatch)
	if len(mismatch) != 2 {
		t.Fatalf("Expected 2 TypeMismatch diagnostics, got %d: %v", len(mismatch), diags)
	}
	if mismatch[0].Reference != "unit_diag_count" || mismatch[1].Reference != "unit_weight" {
		t.Errorf("Unexpected references: %v", mismatch)
	}
}

type stubNamer struct {
	names map[string]string
	err   error
}

func (s stubNamer) DeriveName(_ context.Context, function, _, _ string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.names[function], nil
}

func TestValidate_NamingHook(t *testing.T) {
	opts := testOptions()
	opts.Namer = stubNamer{names: map[string]string{"unit_diag_count": "diagnosticCount"}}

	vp, diags := Validate(t.Context(), fullPlan(), testTable(t), opts)
	if vp == nil {
		t.Fatalf("Expected plan, got: %v", diags)
	}
	if got := vp.Resources[1].MethodNames[0]; got != "diagnosticCount" {
		t.Errorf("Expected hook name diagnosticCount, got %q", got)
	}
	if got := vp.Resources[1].MethodNames[1]; got != "getSize" {
		t.Errorf("Expected fallback name getSize, got %q", got)
	}

	opts.Namer = stubNamer{err: errors.New("script exploded")}
	_, diags = Validate(t.Context(), fullPlan(), testTable(t), opts)
	invalid := diags.ByKind(KindInvalidPlan)
	if len(invalid) == 0 || !strings.Contains(invalid[0].Message, "script exploded") {
		t.Errorf("Expected naming hook failure diagnostic, got: %v", diags)
	}
}

func TestValidate_CTypeCannotBeInferred(t *testing.T) {
	plan := &StrategyPlan{Resources: []ResourcePlan{{Name: "Loose"}}}

	_, diags := Validate(t.Context(), plan, testTable(t), testOptions())
	if len(diags.ByKind(KindInvalidPlan)) != 1 {
		t.Errorf("Expected InvalidPlan for missing ctype, got: %v", diags)
	}
}
