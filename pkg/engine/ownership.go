package engine

import (
	"fmt"
	"sort"
	"strings"
)

// GraphNode is one resource in the ownership arena.
type GraphNode struct {
	Index      int    `json:"index" yaml:"index"`
	Name       string `json:"name" yaml:"name"`
	Borrowed   bool   `json:"borrowed" yaml:"borrowed"`
	Disposable bool   `json:"disposable" yaml:"disposable"`

	// Owners and Children are node indices.
	Owners   []int `json:"owners,omitempty" yaml:"owners,omitempty"`
	Children []int `json:"children,omitempty" yaml:"children,omitempty"`

	// Rank is the position in DisposalOrder.
	Rank int  `json:"rank" yaml:"rank"`
	Root bool `json:"root" yaml:"root"`
}

// GraphEdge is a disposal edge: Owner's instances own Child's instances.
type GraphEdge struct {
	Owner int `json:"owner" yaml:"owner"`
	Child int `json:"child" yaml:"child"`
}

// AdapterEdge ties a callback adapter to a resource. It never affects disposal order.
type AdapterEdge struct {
	Adapter  string `json:"adapter" yaml:"adapter"`
	Resource int    `json:"resource" yaml:"resource"`
}

// OwnershipGraph is an acyclic arena of resources with a disposal order attached.
type OwnershipGraph struct {
	Nodes        []GraphNode   `json:"nodes" yaml:"nodes"`
	Edges        []GraphEdge   `json:"edges" yaml:"edges"`
	AdapterEdges []AdapterEdge `json:"adapterEdges,omitempty" yaml:"adapterEdges,omitempty"`

	// DisposalOrder lists node indices, children before owners.
	DisposalOrder []int `json:"disposalOrder" yaml:"disposalOrder"`

	// Roots lists owned or unmanaged nodes with no owner, in plan order. Borrowed
	// resources are never roots.
	Roots []int `json:"roots" yaml:"roots"`
}

// Node returns the node for a resource name.
func (g *OwnershipGraph) Node(name string) (*GraphNode, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].Name == name {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// DisposalNames returns the disposal order as resource names.
func (g *OwnershipGraph) DisposalNames() []string {
	return g.names(g.DisposalOrder)
}

// RootNames returns the root resource names.
func (g *OwnershipGraph) RootNames() []string {
	return g.names(g.Roots)
}

func (g *OwnershipGraph) names(idx []int) []string {
	out := make([]string, len(idx))
	for i, n := range idx {
		out[i] = g.Nodes[n].Name
	}
	return out
}

// BuildOwnershipGraph builds the ownership arena for a validated plan. Cycles and borrowed
// ownership violations are returned as diagnostics, in which case the graph is nil.
func BuildOwnershipGraph(vp *ValidatedPlan) (*OwnershipGraph, Diagnostics) {
	b := &graphBuilder{vp: vp}
	b.initialize()
	b.detectCycles()
	b.checkBorrowed()
	if len(b.diags) > 0 {
		return nil, b.diags
	}
	b.computeOrder()
	b.linkAdapters()

	return &OwnershipGraph{
		Nodes:         b.nodes,
		Edges:         b.edges,
		AdapterEdges:  b.adapters,
		DisposalOrder: b.order,
		Roots:         b.roots,
	}, nil
}

type graphBuilder struct {
	vp       *ValidatedPlan
	nodes    []GraphNode
	edges    []GraphEdge
	adapters []AdapterEdge
	order    []int
	roots    []int
	diags    Diagnostics
}

// initialize creates one node per resource and one edge per distinct ownership entry.
func (b *graphBuilder) initialize() {
	plan := b.vp.Plan
	b.nodes = make([]GraphNode, len(plan.Resources))
	for i := range plan.Resources {
		r := &plan.Resources[i]
		b.nodes[i] = GraphNode{
			Index:      i,
			Name:       r.Name,
			Borrowed:   r.Borrowed(),
			Disposable: r.Disposable(),
		}
	}

	seen := make(map[GraphEdge]bool)
	for _, e := range plan.Ownership {
		owner, ok1 := b.vp.ResourceIndex(e.Owner)
		child, ok2 := b.vp.ResourceIndex(e.Child)
		if !ok1 || !ok2 {
			continue
		}
		edge := GraphEdge{Owner: owner, Child: child}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		b.edges = append(b.edges, edge)
		b.nodes[owner].Children = append(b.nodes[owner].Children, child)
		b.nodes[child].Owners = append(b.nodes[child].Owners, owner)
	}
}

// detectCycles finds the strongly connected components of the ownership graph (Tarjan) and
// reports one CycleError per component that contains a cycle, ordered by the component's first
// resource in plan order.
func (b *graphBuilder) detectCycles() {
	components := b.stronglyConnected()
	for _, comp := range components {
		if len(comp) == 1 && !b.ownsItself(comp[0]) {
			continue
		}
		b.reportCycle(b.cycleThrough(comp))
	}
}

// stronglyConnected returns the components of the graph, each sorted by node index, and
// ordered by their smallest index.
func (b *graphBuilder) stronglyConnected() [][]int {
	var (
		next       int
		index      = make([]int, len(b.nodes))
		low        = make([]int, len(b.nodes))
		onStack    = make([]bool, len(b.nodes))
		stack      []int
		components [][]int
	)
	for i := range index {
		index[i] = -1
	}

	var connect func(n int)
	connect = func(n int) {
		index[n], low[n] = next, next
		next++
		stack = append(stack, n)
		onStack[n] = true

		for _, c := range b.nodes[n].Children {
			switch {
			case index[c] < 0:
				connect(c)
				low[n] = min(low[n], low[c])
			case onStack[c]:
				low[n] = min(low[n], index[c])
			}
		}

		if low[n] != index[n] {
			return
		}
		var comp []int
		for {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			onStack[top] = false
			comp = append(comp, top)
			if top == n {
				break
			}
		}
		sort.Ints(comp)
		components = append(components, comp)
	}

	for i := range b.nodes {
		if index[i] < 0 {
			connect(i)
		}
	}
	sort.Slice(components, func(i, j int) bool { return components[i][0] < components[j][0] })
	return components
}

func (b *graphBuilder) ownsItself(n int) bool {
	for _, c := range b.nodes[n].Children {
		if c == n {
			return true
		}
	}
	return false
}

// maxCycleSearch bounds the search for a simple cycle through every member of a component.
const maxCycleSearch = 10000

// cycleThrough returns a closed walk inside comp that starts at its first member and visits
// every member. A simple cycle is preferred. When none exists, or the search budget runs
// out, shortest paths join the members into one walk. The start node is not repeated at the
// end.
func (b *graphBuilder) cycleThrough(comp []int) []int {
	if len(comp) == 1 {
		return comp
	}
	member := make(map[int]bool, len(comp))
	for _, n := range comp {
		member[n] = true
	}
	start := comp[0]

	if cycle, ok := b.simpleCycle(start, member); ok {
		return cycle
	}

	walk := []int{start}
	visited := map[int]bool{start: true}
	at := start
	for len(visited) < len(comp) {
		path := b.shortestPath(at, member, func(n int) bool { return !visited[n] })
		for _, n := range path[1:] {
			walk = append(walk, n)
			visited[n] = true
		}
		at = path[len(path)-1]
	}
	back := b.shortestPath(at, member, func(n int) bool { return n == start })
	return append(walk, back[1:len(back)-1]...)
}

// simpleCycle searches for a cycle from start through every member, trying children in
// edge order.
func (b *graphBuilder) simpleCycle(start int, member map[int]bool) ([]int, bool) {
	path := []int{start}
	onPath := map[int]bool{start: true}
	steps := 0

	var extend func(n int) bool
	extend = func(n int) bool {
		for _, c := range b.nodes[n].Children {
			if steps++; steps > maxCycleSearch {
				return false
			}
			if !member[c] {
				continue
			}
			if c == start && len(path) == len(member) {
				return true
			}
			if onPath[c] {
				continue
			}
			path = append(path, c)
			onPath[c] = true
			if extend(c) {
				return true
			}
			path = path[:len(path)-1]
			onPath[c] = false
		}
		return false
	}

	if extend(start) {
		return path, true
	}
	return nil, false
}

// shortestPath runs a breadth-first search inside member from the node at, returning the
// path to the first node accepted by goal other than from itself.
func (b *graphBuilder) shortestPath(from int, member map[int]bool, goal func(int) bool) []int {
	prev := map[int]int{from: -1}
	queue := []int{from}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		for _, c := range b.nodes[n].Children {
			if !member[c] {
				continue
			}
			if _, seen := prev[c]; seen {
				continue
			}
			prev[c] = n
			if goal(c) {
				path := []int{c}
				for p := n; p != -1; p = prev[p] {
					path = append(path, p)
				}
				for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
					path[i], path[j] = path[j], path[i]
				}
				return path
			}
			queue = append(queue, c)
		}
	}
	return []int{from}
}

func (b *graphBuilder) reportCycle(cycle []int) {
	names := make([]string, 0, len(cycle)+1)
	for _, n := range cycle {
		names = append(names, b.nodes[n].Name)
	}
	names = append(names, b.nodes[cycle[0]].Name)
	path := formatCycle(names)
	b.diags.add(KindCycleError, resourceEntry(b.nodes[cycle[0]].Name), path,
		"ownership cycle makes disposal order undefined: %s", path)
}

// checkBorrowed enforces that borrowed resources have at most one owner and own nothing
// that needs disposal.
func (b *graphBuilder) checkBorrowed() {
	for i := range b.nodes {
		n := &b.nodes[i]
		if !n.Borrowed {
			continue
		}
		if len(n.Owners) > 1 {
			owners := make([]string, len(n.Owners))
			for j, o := range n.Owners {
				owners[j] = b.nodes[o].Name
			}
			b.diags.add(KindBorrowedOwnership, resourceEntry(n.Name), n.Name,
				"borrowed resource %s has %d owners (%s), at most one is allowed",
				n.Name, len(n.Owners), strings.Join(owners, ", "))
		}
		for _, c := range n.Children {
			if b.nodes[c].Disposable {
				b.diags.add(KindBorrowedOwnership, resourceEntry(n.Name), b.nodes[c].Name,
					"borrowed resource %s cannot own %s, which requires disposal", n.Name, b.nodes[c].Name)
			}
		}
	}
}

// computeOrder is a Kahn sort over reversed edges: a node becomes ready once all of its
// children are disposed. Ties break by plan order.
func (b *graphBuilder) computeOrder() {
	remaining := make([]int, len(b.nodes))
	ready := make([]int, 0)
	for i := range b.nodes {
		remaining[i] = len(b.nodes[i].Children)
		if remaining[i] == 0 {
			ready = append(ready, i)
		}
		if len(b.nodes[i].Owners) == 0 && !b.nodes[i].Borrowed {
			b.nodes[i].Root = true
			b.roots = append(b.roots, i)
		}
	}

	b.order = make([]int, 0, len(b.nodes))
	for len(ready) > 0 {
		n := ready[0]
		ready = ready[1:]
		b.nodes[n].Rank = len(b.order)
		b.order = append(b.order, n)

		for _, o := range b.nodes[n].Owners {
			remaining[o]--
			if remaining[o] == 0 {
				at := sort.SearchInts(ready, o)
				ready = append(ready, 0)
				copy(ready[at+1:], ready[at:])
				ready[at] = o
			}
		}
	}
}

func (b *graphBuilder) linkAdapters() {
	for _, cb := range b.vp.Callbacks {
		if cb.Resource == "" {
			continue
		}
		if idx, ok := b.vp.ResourceIndex(cb.Resource); ok {
			b.adapters = append(b.adapters, AdapterEdge{Adapter: cb.Plan.Name, Resource: idx})
		}
	}
}

// ToDOT generates a DOT representation of the ownership graph for visualization. Disposal
// edges are solid, adapter edges dashed.
func (g *OwnershipGraph) ToDOT() string {
	var sb strings.Builder

	sb.WriteString("digraph Ownership {\n")
	sb.WriteString("  rankdir=TB;\n")
	sb.WriteString("  node [shape=box, style=rounded];\n\n")

	for _, n := range g.Nodes {
		sb.WriteString(fmt.Sprintf("  \"%s\" [label=\"%s\\nrank %d\", fillcolor=\"%s\", style=\"%s\"];\n",
			n.Name, n.Name, n.Rank, nodeColor(n), nodeStyle(n)))
	}
	if len(g.AdapterEdges) > 0 {
		sb.WriteString("\n")
	}
	for _, a := range g.AdapterEdges {
		sb.WriteString(fmt.Sprintf("  \"cb:%s\" [label=\"%s\", shape=ellipse];\n", a.Adapter, a.Adapter))
	}

	sb.WriteString("\n")
	for _, e := range g.Edges {
		sb.WriteString(fmt.Sprintf("  \"%s\" -> \"%s\" [style=solid, color=black];\n",
			g.Nodes[e.Owner].Name, g.Nodes[e.Child].Name))
	}
	for _, a := range g.AdapterEdges {
		sb.WriteString(fmt.Sprintf("  \"cb:%s\" -> \"%s\" [style=dashed, color=blue];\n",
			a.Adapter, g.Nodes[a.Resource].Name))
	}

	sb.WriteString("}\n")
	return sb.String()
}

// formatCycle formats a cycle path for error messages.
func formatCycle(cycle []string) string {
	return strings.Join(cycle, " -> ")
}

func nodeColor(n GraphNode) string {
	switch {
	case n.Borrowed:
		return "lightgray"
	case n.Disposable:
		return "lightgreen"
	default:
		return "lightcoral"
	}
}

func nodeStyle(n GraphNode) string {
	if n.Borrowed {
		return "filled,dashed"
	}
	return "filled,rounded"
}
