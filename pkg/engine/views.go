package engine

import (
	"fmt"

	"github.com/bindforge/bindforge/pkg/symbols"
)

// BindView resolves the j-th view of the i-th resource.
func BindView(vp *ValidatedPlan, i, j int) ViewBinding {
	res := &vp.Resources[i]
	view := &res.Plan.Views[j]
	rv := res.Views[j]

	ptr, _ := vp.Table.Function(view.Ptr)
	elem := ptr.ReturnType().Elem()
	size := vp.Table.SizeOf(elem)
	if elem.IsVoid() {
		// void * buffers are byte buffers
		elem = symbols.TypeRef{Base: "unsigned char", Const: elem.Const}
		size = 1
	}

	vb := ViewBinding{
		Name:           view.Name,
		Ptr:            view.Ptr,
		Length:         rv.Length,
		LengthFunction: rv.LengthFunction,
		LengthParam:    rv.LengthParam,
		ElementType:    elem.String(),
		ElementSize:    size,
		Copy:           view.Copies(),
	}
	if rv.Length == LengthTerminator {
		vb.Terminator = view.Terminator
	}

	if !vb.Copy {
		vb.UnsafeBorrow = true
		vb.Hazard = borrowHazard(res.Plan.Name, view.Name)
	}
	return vb
}

func borrowHazard(resource, view string) string {
	return fmt.Sprintf("%s.%s borrows native memory: it must not outlive the %s instance it was read from "+
		"and must not be retained across a call that could invalidate it", resource, view, resource)
}
