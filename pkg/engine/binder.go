package engine

import (
	"sort"

	"github.com/bindforge/bindforge/pkg/symbols"
)

// BindResource resolves the lifecycle contract and methods of the i-th resource. Views are
// bound separately by BindView.
func BindResource(vp *ValidatedPlan, graph *OwnershipGraph, i int) ResourceBinding {
	res := &vp.Resources[i]
	r := res.Plan
	node := graph.Nodes[i]

	rb := ResourceBinding{
		Name:         r.Name,
		CType:        res.CType,
		Lifetime:     resourceLifetime(r),
		Node:         i,
		DisposalRank: node.Rank,
		Owners:       nodeNames(graph, node.Owners),
		Children:     nodeNames(graph, node.Children),
		Root:         node.Root,
		Adapters:     tiedAdapters(vp, r.Name),
		Concurrency:  concurrencyNote,
	}

	if r.Create != "" {
		rb.Constructor = bindConstructor(vp, res)
	}
	if r.Destroy != "" {
		rb.Disposer = bindDisposer(graph, node, r.Destroy, rb.Adapters)
	}

	rb.Methods = make([]MethodBinding, 0, len(r.Methods))
	for j := range r.Methods {
		fn, _ := vp.Table.Function(r.Methods[j].C)
		rb.Methods = append(rb.Methods, bindMethod(vp, res, fn, res.MethodNames[j]))
	}
	return rb
}

func resourceLifetime(r *ResourcePlan) ResourceLifetime {
	switch {
	case r.Disposable():
		return LifetimeOwned
	case r.Borrowed():
		return LifetimeBorrowed
	default:
		return LifetimeUnmanaged
	}
}

func nodeNames(graph *OwnershipGraph, idx []int) []string {
	if len(idx) == 0 {
		return nil
	}
	return graph.names(idx)
}

func tiedAdapters(vp *ValidatedPlan, resource string) []string {
	var out []string
	for _, cb := range vp.Callbacks {
		if cb.Resource == resource {
			out = append(out, cb.Plan.Name)
		}
	}
	return out
}

func bindConstructor(vp *ValidatedPlan, res *ResolvedResource) *Constructor {
	fn, _ := vp.Table.Function(res.Plan.Create)
	rule, policy := ruleFor(vp, fn.Name)
	params, _ := bindParams(vp, res, fn, false)
	return &Constructor{
		Function:     fn.Name,
		Params:       params,
		HandleSource: res.HandleSource,
		HandleParam:  res.HandleParam,
		ErrorRule:    rule,
		Policy:       policy,
	}
}

// bindDisposer lists children in disposal order so generated code releases them first.
func bindDisposer(graph *OwnershipGraph, node GraphNode, destroy string, adapters []string) *Disposer {
	children := append([]int(nil), node.Children...)
	sort.Slice(children, func(a, b int) bool {
		return graph.Nodes[children[a]].Rank < graph.Nodes[children[b]].Rank
	})
	return &Disposer{
		Function:            destroy,
		Idempotent:          true,
		DisposeAfter:        nodeNames(graph, children),
		InvalidatesAdapters: adapters,
	}
}

// bindParams builds the marshaling plan for a native parameter list. With withReceiver set
// the first in-parameter of the resource's ctype becomes the receiver.
func bindParams(vp *ValidatedPlan, res *ResolvedResource, fn *symbols.NativeFunction, withReceiver bool) ([]ParamBinding, int) {
	receiver := -1
	self := symbols.TypeRef{Base: res.CType}

	hasCallback := false
	for _, p := range fn.Params {
		if _, ok := vp.CallbackForType(p.Type); ok {
			hasCallback = true
			break
		}
	}

	params := make([]ParamBinding, 0, len(fn.Params))
	for j, p := range fn.Params {
		ref := symbols.ParseTypeRef(p.Type)
		pb := ParamBinding{Index: j, Name: p.Name, Type: ref.String()}

		switch {
		case !withReceiver && j == res.HandleParam && res.HandleSource == HandleFromOutParam:
			pb.Marshal = MarshalOutPromoted
			pb.Resource = res.Plan.Name
		case withReceiver && receiver < 0 && p.Dir() == symbols.DirectionIn && ref.Same(self):
			pb.Marshal = MarshalReceiver
			pb.Resource = res.Plan.Name
			receiver = j
		case p.Dir() == symbols.DirectionOut:
			pb.Marshal = MarshalOutPromoted
			pb.Resource = boundResource(vp, ref.Elem())
		case p.Dir() == symbols.DirectionInOut:
			pb.Marshal = MarshalInOutPromoted
			pb.Resource = boundResource(vp, ref.Elem())
		default:
			if cb, ok := vp.CallbackForType(p.Type); ok {
				pb.Marshal = MarshalCallback
				pb.Callback = cb.Plan.Name
			} else if name := boundResource(vp, ref); name != "" {
				pb.Marshal = MarshalWrapHandle
				pb.Resource = name
			} else if hasCallback && vp.Table.Canonical(ref).IsVoidPointer() {
				pb.Marshal = MarshalUserData
			} else {
				pb.Marshal = MarshalPassThrough
			}
		}
		params = append(params, pb)
	}
	return params, receiver
}

func boundResource(vp *ValidatedPlan, ref symbols.TypeRef) string {
	if r, ok := vp.ResourceForType(ref); ok {
		return r.Plan.Name
	}
	return ""
}

// bindMethod resolves marshaling, output promotion and error handling for one method.
func bindMethod(vp *ValidatedPlan, res *ResolvedResource, fn *symbols.NativeFunction, name string) MethodBinding {
	params, receiver := bindParams(vp, res, fn, true)
	rule, policy := ruleFor(vp, fn.Name)
	ret := fn.ReturnType()

	mb := MethodBinding{
		Name:          name,
		Function:      fn.Name,
		Receiver:      receiver,
		Static:        receiver < 0,
		Params:        params,
		NativeReturn:  ret.String(),
		Meaningful:    meaningfulReturn(ret, rule),
		ErrorRule:     rule,
		Policy:        policy,
		ReturnsTagged: policy == ErrorPolicyReturnTagged,
	}
	mb.Results, mb.Shape = promoteOutputs(vp, params, ret, mb.Meaningful)
	return mb
}

// meaningfulReturn reports whether the native return reaches the caller: it is not void and
// not consumed by a nonZeroIsError rule.
func meaningfulReturn(ret symbols.TypeRef, rule *ErrorRuleBinding) bool {
	if ret.IsVoid() {
		return false
	}
	return rule == nil || !rule.Rule.ConsumesReturn()
}

// promoteOutputs applies output promotion. A single output with no meaningful return becomes
// the return value; otherwise outputs and any meaningful return form a composite.
func promoteOutputs(vp *ValidatedPlan, params []ParamBinding, ret symbols.TypeRef, meaningful bool) ([]ResultBinding, ReturnShape) {
	outputs := make([]ResultBinding, 0)
	for _, p := range params {
		if !p.Marshal.Promoted() {
			continue
		}
		elem := symbols.ParseTypeRef(p.Type).Elem()
		outputs = append(outputs, ResultBinding{
			Name:     p.Name,
			Type:     elem.String(),
			Param:    p.Index,
			Resource: p.Resource,
		})
	}

	returned := ResultBinding{
		Name:     "result",
		Type:     ret.String(),
		Param:    -1,
		Resource: boundResource(vp, ret),
	}

	switch {
	case len(outputs) == 0 && !meaningful:
		return nil, ShapeNone
	case len(outputs) == 0:
		return []ResultBinding{returned}, ShapeSingle
	case len(outputs) == 1 && !meaningful:
		return outputs, ShapeSingle
	case meaningful:
		return append(outputs, returned), ShapeComposite
	default:
		return outputs, ShapeComposite
	}
}
