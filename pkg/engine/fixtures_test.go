package engine

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/bindforge/bindforge/pkg/symbols"
)

func testOptions() Options {
	return Options{Logger: zerolog.New(nil).Level(zerolog.Disabled)}
}

func boolPtr(b bool) *bool { return &b }

// testTable is a small libclang-shaped API surface.
func testTable(t *testing.T) *symbols.Table {
	t.Helper()

	types := []symbols.NativeType{
		{Name: "Index", Kind: symbols.KindHandle},
		{Name: "Unit", Kind: symbols.KindHandle},
		{Name: "Cursor", Kind: symbols.KindStruct},
		{Name: "Token", Kind: symbols.KindHandle},
		{Name: "ClientData", Kind: symbols.KindPrimitive, Underlying: "void *"},
		{Name: "ErrorCode", Kind: symbols.KindEnum, Values: []symbols.EnumValue{
			{Name: "Success", Value: 0},
			{Name: "Failure", Value: 1},
			{Name: "Crashed", Value: 2},
		}},
		{Name: "Visitor", Kind: symbols.KindCallback, Signature: "int (*)(Cursor cursor, Cursor parent, ClientData data)"},
		{Name: "Logger", Kind: symbols.KindCallback, Signature: "void (*)(void *ctx, const char *msg)"},
	}

	in := func(name, typ string) symbols.Param { return symbols.Param{Name: name, Type: typ} }
	out := func(name, typ string) symbols.Param {
		return symbols.Param{Name: name, Type: typ, Direction: symbols.DirectionOut}
	}

	functions := []symbols.NativeFunction{
		{Name: "make_index", Params: []symbols.Param{in("exclude", "int")}, Returns: "Index"},
		{Name: "free_index", Params: []symbols.Param{in("idx", "Index")}},
		{Name: "index_version", Returns: "int"},
		{Name: "index_set_logger", Params: []symbols.Param{in("idx", "Index"), in("cb", "Logger"), in("ctx", "void *")}},
		{Name: "parse_unit", Params: []symbols.Param{in("idx", "Index"), in("path", "const char *")}, Returns: "Unit"},
		{Name: "open_unit", Params: []symbols.Param{in("idx", "Index"), in("path", "const char *"), out("out", "Unit *")}, Returns: "ErrorCode"},
		{Name: "free_unit", Params: []symbols.Param{in("u", "Unit")}},
		{Name: "unit_cursor", Params: []symbols.Param{in("u", "Unit")}, Returns: "Cursor"},
		{Name: "unit_diag_count", Params: []symbols.Param{in("u", "Unit")}, Returns: "unsigned"},
		{Name: "unit_spelling", Params: []symbols.Param{in("u", "Unit"), out("len", "size_t *")}, Returns: "const char *"},
		{Name: "unit_name", Params: []symbols.Param{in("u", "Unit")}, Returns: "const char *"},
		{Name: "unit_get_size", Params: []symbols.Param{in("u", "Unit"), out("size", "int *")}},
		{Name: "unit_get_range", Params: []symbols.Param{in("u", "Unit"), out("start", "unsigned *"), out("end", "unsigned *")}, Returns: "int"},
		{Name: "unit_save", Params: []symbols.Param{in("u", "Unit"), in("path", "const char *")}, Returns: "int"},
		{Name: "unit_count_tokens", Params: []symbols.Param{in("u", "Unit")}, Returns: "int"},
		{Name: "unit_weight", Params: []symbols.Param{in("u", "Unit")}, Returns: "double"},
		{Name: "unit_bytes", Params: []symbols.Param{in("u", "Unit")}, Returns: "void *"},
		{Name: "cursor_visit", Params: []symbols.Param{in("c", "Cursor"), in("visitor", "Visitor"), in("data", "ClientData")}, Returns: "unsigned"},
		{Name: "cursor_kind", Params: []symbols.Param{in("c", "Cursor")}, Returns: "int"},
		{Name: "cursor_unit", Params: []symbols.Param{in("c", "Cursor")}, Returns: "Unit"},
		{Name: "make_token", Params: []symbols.Param{in("u", "Unit")}, Returns: "Token"},
		{Name: "free_token", Params: []symbols.Param{in("tok", "Token")}},
	}

	table, err := symbols.NewTable(types, functions)
	if err != nil {
		t.Fatalf("Failed to build symbol table: %v", err)
	}
	return table
}

// indexUnitPlan is the two-resource plan where Index owns Unit.
func indexUnitPlan() *StrategyPlan {
	return &StrategyPlan{
		Resources: []ResourcePlan{
			{Name: "Index", Create: "make_index", Destroy: "free_index"},
			{Name: "Unit", Create: "parse_unit", Destroy: "free_unit"},
		},
		Ownership: []OwnershipEntry{{Owner: "Index", Child: "Unit"}},
	}
}

func mustValidate(t *testing.T, plan *StrategyPlan, table *symbols.Table) *ValidatedPlan {
	t.Helper()
	vp, diags := Validate(t.Context(), plan, table, testOptions())
	if vp == nil {
		t.Fatalf("Expected plan to validate, got diagnostics: %v", diags)
	}
	return vp
}

func mustGraph(t *testing.T, vp *ValidatedPlan) *OwnershipGraph {
	t.Helper()
	graph, diags := BuildOwnershipGraph(vp)
	if graph == nil {
		t.Fatalf("Expected graph, got diagnostics: %v", diags)
	}
	return graph
}
