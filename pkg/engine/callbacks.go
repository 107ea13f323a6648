package engine

import "fmt"

// BindCallback resolves the adapter for the i-th callback plan.
func BindCallback(vp *ValidatedPlan, i int) CallbackAdapterBinding {
	cb := &vp.Callbacks[i]
	sig := cb.Signature

	ab := CallbackAdapterBinding{
		Name:      cb.Plan.Name,
		CType:     cb.Plan.CType,
		Signature: canonicalSignature(sig),
		Params:    make([]CallbackParamBinding, 0, len(sig.Params)),
		Returns:   sig.Returns.String(),
		Lifetime:  AdapterProcess,
	}

	for j, p := range sig.Params {
		name := p.Name
		if name == "" {
			name = fmt.Sprintf("arg%d", j)
		}
		pb := CallbackParamBinding{Index: j, Name: name, Type: p.Type.String()}
		switch {
		case vp.Table.Canonical(p.Type).IsVoidPointer():
			pb.Marshal = MarshalUserData
		case boundResource(vp, p.Type) != "":
			// handles passed into a callback belong to the native caller
			pb.Marshal = MarshalWrapBorrowed
			pb.Resource = boundResource(vp, p.Type)
		default:
			pb.Marshal = MarshalPassThrough
		}
		ab.Params = append(ab.Params, pb)
	}

	if cb.Resource != "" {
		ab.Lifetime = AdapterResource
		ab.Resource = cb.Resource
		ab.AutoCleanup = true
	}
	return ab
}
