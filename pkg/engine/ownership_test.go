package engine

import (
	"reflect"
	"strings"
	"testing"
)

func threeResourcePlan(ownership ...OwnershipEntry) *StrategyPlan {
	return &StrategyPlan{
		Resources: []ResourcePlan{
			{Name: "Index", Create: "make_index", Destroy: "free_index"},
			{Name: "Unit", Create: "parse_unit", Destroy: "free_unit"},
			{Name: "Token", Create: "make_token", Destroy: "free_token"},
		},
		Ownership: ownership,
	}
}

func TestBuildOwnershipGraph_IndexOwnsUnit(t *testing.T) {
	vp, diags := Validate(t.Context(), indexUnitPlan(), testTable(t), testOptions())
	if len(diags) != 0 {
		t.Fatalf("Expected zero diagnostics, got: %v", diags)
	}

	graph := mustGraph(t, vp)
	if len(graph.Edges) != 1 {
		t.Fatalf("Expected 1 edge, got %d", len(graph.Edges))
	}
	edge := graph.Edges[0]
	if graph.Nodes[edge.Owner].Name != "Index" || graph.Nodes[edge.Child].Name != "Unit" {
		t.Errorf("Expected edge Index->Unit, got %s->%s", graph.Nodes[edge.Owner].Name, graph.Nodes[edge.Child].Name)
	}

	if got := graph.DisposalNames(); !reflect.DeepEqual(got, []string{"Unit", "Index"}) {
		t.Errorf("Expected disposal order [Unit Index], got %v", got)
	}
	if got := graph.RootNames(); !reflect.DeepEqual(got, []string{"Index"}) {
		t.Errorf("Expected roots [Index], got %v", got)
	}
	unit, _ := graph.Node("Unit")
	if unit.Rank != 0 || unit.Root {
		t.Errorf("Expected Unit rank 0 and not a root, got rank %d root %v", unit.Rank, unit.Root)
	}
}

func TestBuildOwnershipGraph_Cycles(t *testing.T) {
	tests := []struct {
		name      string
		ownership []OwnershipEntry
		want      []string
	}{
		{
			name:      "two",
			ownership: []OwnershipEntry{{Owner: "Index", Child: "Unit"}, {Owner: "Unit", Child: "Index"}},
			want:      []string{"Index -> Unit -> Index"},
		},
		{
			name: "three",
			ownership: []OwnershipEntry{
				{Owner: "Index", Child: "Unit"},
				{Owner: "Unit", Child: "Token"},
				{Owner: "Token", Child: "Index"},
			},
			want: []string{"Index -> Unit -> Token -> Index"},
		},
		{
			name:      "self",
			ownership: []OwnershipEntry{{Owner: "Unit", Child: "Unit"}},
			want:      []string{"Unit -> Unit"},
		},
		{
			name: "disjoint",
			ownership: []OwnershipEntry{
				{Owner: "Index", Child: "Unit"},
				{Owner: "Unit", Child: "Index"},
				{Owner: "Token", Child: "Token"},
			},
			want: []string{"Index -> Unit -> Index", "Token -> Token"},
		},
		{
			name: "closed through cross edge",
			ownership: []OwnershipEntry{
				{Owner: "Index", Child: "Unit"},
				{Owner: "Index", Child: "Token"},
				{Owner: "Unit", Child: "Index"},
				{Owner: "Token", Child: "Unit"},
			},
			want: []string{"Index -> Token -> Unit -> Index"},
		},
		{
			name: "no single cycle covers all",
			ownership: []OwnershipEntry{
				{Owner: "Index", Child: "Unit"},
				{Owner: "Unit", Child: "Index"},
				{Owner: "Index", Child: "Token"},
				{Owner: "Token", Child: "Index"},
			},
			want: []string{"Index -> Unit -> Index -> Token -> Index"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vp := mustValidate(t, threeResourcePlan(tt.ownership...), testTable(t))
			graph, diags := BuildOwnershipGraph(vp)
			if graph != nil {
				t.Fatal("Expected no graph for a cyclic plan")
			}
			cycles := diags.ByKind(KindCycleError)
			if len(cycles) != len(tt.want) {
				t.Fatalf("Expected %d CycleError, got %d: %v", len(tt.want), len(cycles), diags)
			}
			for i, want := range tt.want {
				if cycles[i].Reference != want {
					t.Errorf("Expected cycle %q, got %q", want, cycles[i].Reference)
				}
				if !strings.Contains(cycles[i].Message, want) {
					t.Errorf("Expected message to name %q, got %q", want, cycles[i].Message)
				}
			}
		})
	}
}

func TestBuildOwnershipGraph_ChildrenPrecedeOwners(t *testing.T) {
	lists := [][]OwnershipEntry{
		nil,
		{{Owner: "Index", Child: "Unit"}, {Owner: "Unit", Child: "Token"}},
		{{Owner: "Token", Child: "Unit"}, {Owner: "Index", Child: "Unit"}},
		{{Owner: "Index", Child: "Unit"}, {Owner: "Index", Child: "Token"}, {Owner: "Token", Child: "Unit"}},
		{{Owner: "Unit", Child: "Index"}, {Owner: "Unit", Child: "Index"}},
	}

	for i, ownership := range lists {
		vp := mustValidate(t, threeResourcePlan(ownership...), testTable(t))
		graph := mustGraph(t, vp)

		if len(graph.DisposalOrder) != 3 {
			t.Fatalf("case %d: Expected 3 nodes in disposal order, got %v", i, graph.DisposalOrder)
		}
		for _, e := range graph.Edges {
			if graph.Nodes[e.Child].Rank >= graph.Nodes[e.Owner].Rank {
				t.Errorf("case %d: Expected %s disposed before %s, order %v",
					i, graph.Nodes[e.Child].Name, graph.Nodes[e.Owner].Name, graph.DisposalNames())
			}
		}
	}
}

func TestBuildOwnershipGraph_StableOrder(t *testing.T) {
	vp := mustValidate(t, threeResourcePlan(), testTable(t))
	graph := mustGraph(t, vp)
	if got := graph.DisposalNames(); !reflect.DeepEqual(got, []string{"Index", "Unit", "Token"}) {
		t.Errorf("Expected plan order without edges, got %v", got)
	}

	vp = mustValidate(t, threeResourcePlan(
		OwnershipEntry{Owner: "Index", Child: "Token"},
		OwnershipEntry{Owner: "Index", Child: "Unit"},
	), testTable(t))
	graph = mustGraph(t, vp)
	if got := graph.DisposalNames(); !reflect.DeepEqual(got, []string{"Unit", "Token", "Index"}) {
		t.Errorf("Expected [Unit Token Index], got %v", got)
	}
}

func TestBuildOwnershipGraph_DuplicateEntryIsOneEdge(t *testing.T) {
	plan := indexUnitPlan()
	plan.Ownership = append(plan.Ownership, OwnershipEntry{Owner: "Index", Child: "Unit"})

	graph := mustGraph(t, mustValidate(t, plan, testTable(t)))
	if len(graph.Edges) != 1 {
		t.Errorf("Expected 1 edge, got %d", len(graph.Edges))
	}
}

func TestBuildOwnershipGraph_BorrowedRules(t *testing.T) {
	plan := threeResourcePlan(
		OwnershipEntry{Owner: "Index", Child: "Cursor"},
		OwnershipEntry{Owner: "Unit", Child: "Cursor"},
		OwnershipEntry{Owner: "Cursor", Child: "Token"},
	)
	plan.Resources = append(plan.Resources, ResourcePlan{Name: "Cursor", CType: "Cursor"})

	graph, diags := BuildOwnershipGraph(mustValidate(t, plan, testTable(t)))
	if graph != nil {
		t.Fatal("Expected no graph")
	}
	borrowed := diags.ByKind(KindBorrowedOwnership)
	if len(borrowed) != 2 {
		t.Fatalf("Expected 2 BorrowedOwnership diagnostics, got %d: %v", len(borrowed), diags)
	}
	if borrowed[0].Reference != "Cursor" || borrowed[1].Reference != "Token" {
		t.Errorf("Unexpected references: %v", borrowed)
	}
}

func TestBuildOwnershipGraph_BorrowedChild(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources = append(plan.Resources, ResourcePlan{Name: "Cursor", CType: "Cursor"})
	plan.Ownership = append(plan.Ownership, OwnershipEntry{Owner: "Unit", Child: "Cursor"})

	graph := mustGraph(t, mustValidate(t, plan, testTable(t)))
	if got := graph.DisposalNames(); !reflect.DeepEqual(got, []string{"Cursor", "Unit", "Index"}) {
		t.Errorf("Expected [Cursor Unit Index], got %v", got)
	}
	cursor, _ := graph.Node("Cursor")
	if !cursor.Borrowed || cursor.Disposable {
		t.Errorf("Expected Cursor borrowed and not disposable, got %+v", cursor)
	}
}

func TestBuildOwnershipGraph_BorrowedIsNeverRoot(t *testing.T) {
	plan := indexUnitPlan()
	plan.Resources = append(plan.Resources, ResourcePlan{Name: "Cursor", CType: "Cursor"})

	graph := mustGraph(t, mustValidate(t, plan, testTable(t)))
	if got := graph.RootNames(); !reflect.DeepEqual(got, []string{"Index"}) {
		t.Errorf("Expected roots [Index], got %v", got)
	}
	cursor, _ := graph.Node("Cursor")
	if !cursor.Borrowed || cursor.Root {
		t.Errorf("Expected unowned Cursor borrowed and not a root, got %+v", cursor)
	}
	if len(graph.DisposalOrder) != 3 {
		t.Errorf("Expected Cursor to stay in the disposal order, got %v", graph.DisposalNames())
	}
}

func TestOwnershipGraph_ToDOT(t *testing.T) {
	vp := mustValidate(t, fullPlan(), testTable(t))
	dot := mustGraph(t, vp).ToDOT()

	for _, want := range []string{
		"digraph Ownership {",
		`"Index" -> "Unit" [style=solid, color=black];`,
		`"Unit" -> "Cursor" [style=solid, color=black];`,
		`"cb:Visitor" -> "Unit" [style=dashed, color=blue];`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("Expected DOT to contain %q, got:\n%s", want, dot)
		}
	}
}
