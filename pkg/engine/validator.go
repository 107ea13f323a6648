package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/bindforge/bindforge/pkg/symbols"
)

// ValidatedPlan is a strategy plan whose every reference resolved against a symbol table.
// It is immutable once returned by Validate.
type ValidatedPlan struct {
	Plan  *StrategyPlan
	Table *symbols.Table

	// Resources parallels Plan.Resources.
	Resources []ResolvedResource

	// Callbacks parallels Plan.Callbacks.
	Callbacks []ResolvedCallback

	rules         map[string]ErrorRuleBinding
	ruleOrder     []string
	resourceIndex map[string]int
	resourceTypes map[string]int
	callbackTypes map[string]int
}

// ResolvedResource carries what validation learned about one resource.
type ResolvedResource struct {
	Plan *ResourcePlan

	// CType is the declared or inferred handle type.
	CType string

	HandleSource HandleSource
	HandleParam  int

	// MethodNames parallels Plan.Methods with the final target names.
	MethodNames []string

	// Views parallels Plan.Views.
	Views []ResolvedView
}

// ResolvedView is where a view's length comes from.
type ResolvedView struct {
	Length         LengthSource
	LengthParam    int
	LengthFunction string
}

// ResolvedCallback is a callback plan with its parsed signature.
type ResolvedCallback struct {
	Plan      *CallbackPlan
	Signature *symbols.Signature

	// Resource is the lifetime owner, empty for process lifetime.
	Resource string
}

// Rule returns the resolved error rule for a native function.
func (vp *ValidatedPlan) Rule(function string) (ErrorRuleBinding, bool) {
	r, ok := vp.rules[function]
	return r, ok
}

// ResourceIndex returns the plan position of a resource.
func (vp *ValidatedPlan) ResourceIndex(name string) (int, bool) {
	i, ok := vp.resourceIndex[name]
	return i, ok
}

// ResourceForType returns the resource bound to a native handle type.
func (vp *ValidatedPlan) ResourceForType(ref symbols.TypeRef) (*ResolvedResource, bool) {
	if ref.Pointers != 0 {
		return nil, false
	}
	i, ok := vp.resourceTypes[ref.Base]
	if !ok {
		return nil, false
	}
	return &vp.Resources[i], true
}

// CallbackForType returns the callback plan whose ctype matches a parameter type.
func (vp *ValidatedPlan) CallbackForType(typ string) (*ResolvedCallback, bool) {
	i, ok := vp.callbackTypes[callbackKey(vp.Table, typ)]
	if !ok {
		return nil, false
	}
	return &vp.Callbacks[i], true
}

// callbackKey normalises a callback parameter type to its canonical signature, so a typedef
// name and the matching inline signature compare equal.
func callbackKey(table *symbols.Table, typ string) string {
	if symbols.IsSignature(typ) {
		sig, err := symbols.ParseSignature(typ)
		if err != nil {
			return typ
		}
		return canonicalSignature(sig)
	}
	ref := symbols.ParseTypeRef(typ)
	if ref.Pointers == 0 {
		if nt, ok := table.Type(ref.Base); ok && nt.Kind == symbols.KindCallback {
			if sig, err := symbols.ParseSignature(nt.Signature); err == nil {
				return canonicalSignature(sig)
			}
		}
	}
	return ref.String()
}

func canonicalSignature(sig *symbols.Signature) string {
	params := make([]string, len(sig.Params))
	for i, p := range sig.Params {
		params[i] = p.Type.String()
	}
	return fmt.Sprintf("%s (*)(%s)", sig.Returns, strings.Join(params, ", "))
}

// Validate checks a strategy plan against a symbol table. Every pass runs to completion and
// all problems are returned together. The plan is returned only when no diagnostic is fatal
// under opts; non-fatal diagnostics accompany it.
func Validate(ctx context.Context, plan *StrategyPlan, table *symbols.Table, opts Options) (*ValidatedPlan, Diagnostics) {
	v := &planValidator{
		plan:     plan,
		table:    table,
		opts:     opts,
		logger:   opts.Logger.With().Str("component", "validator").Logger(),
		validate: validator.New(),
		vp: &ValidatedPlan{
			Plan:          plan,
			Table:         table,
			Resources:     make([]ResolvedResource, len(plan.Resources)),
			Callbacks:     make([]ResolvedCallback, len(plan.Callbacks)),
			rules:         make(map[string]ErrorRuleBinding),
			resourceIndex: make(map[string]int),
			resourceTypes: make(map[string]int),
			callbackTypes: make(map[string]int),
		},
		skipResource: make(map[int]bool),
		ambiguous:    make(map[string]bool),
	}

	v.structural()
	v.uniqueness()
	v.errorRules()
	v.callbacks()
	v.resources()
	v.enums()
	v.representability()
	v.lifetimes()
	v.ownership()
	v.naming(ctx)
	v.views()

	v.logger.Debug().
		Int("resources", len(plan.Resources)).
		Int("callbacks", len(plan.Callbacks)).
		Int("rules", len(v.vp.rules)).
		Int("diagnostics", len(v.diags)).
		Msg("Plan validation finished")

	if v.diags.HasFatal(opts.AllowWarnings) {
		return nil, v.diags
	}
	return v.vp, v.diags
}

type planValidator struct {
	plan     *StrategyPlan
	table    *symbols.Table
	opts     Options
	logger   zerolog.Logger
	validate *validator.Validate
	vp       *ValidatedPlan
	diags    Diagnostics

	skipResource map[int]bool
	ambiguous    map[string]bool
}

func (v *planValidator) structErr(entry string, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			v.diags.add(KindInvalidPlan, entry, fe.Field(),
				"field %s failed %q validation", fe.Namespace(), fe.Tag())
		}
		return
	}
	v.diags.add(KindInvalidPlan, entry, "", "invalid entry: %v", err)
}

func indexedEntry(kind string, i int, name string) string {
	if name == "" {
		return fmt.Sprintf("%s[%d]", kind, i)
	}
	return kind + " " + name
}

// structural applies struct-tag validation to every entry.
func (v *planValidator) structural() {
	for i := range v.plan.Resources {
		r := &v.plan.Resources[i]
		if err := v.validate.Struct(r); err != nil {
			v.structErr(indexedEntry("resource", i, r.Name), err)
			if r.Name == "" {
				v.skipResource[i] = true
			}
		}
	}
	for i := range v.plan.Enums {
		e := &v.plan.Enums[i]
		if err := v.validate.Struct(e); err != nil {
			v.structErr(indexedEntry("enum", i, e.Name), err)
		}
	}
	for i := range v.plan.Callbacks {
		c := &v.plan.Callbacks[i]
		if err := v.validate.Struct(c); err != nil {
			v.structErr(indexedEntry("callback", i, c.Name), err)
		}
	}
	for i := range v.plan.Errors {
		r := &v.plan.Errors[i]
		if err := v.validate.Struct(r); err != nil {
			v.structErr(indexedEntry("error rule", i, r.Function), err)
		}
	}
	for i := range v.plan.Ownership {
		o := &v.plan.Ownership[i]
		if err := v.validate.Struct(o); err != nil {
			v.structErr(ownershipEntry(i, *o), err)
		}
	}
}

// uniqueness checks target names across resources, enums and callbacks.
func (v *planValidator) uniqueness() {
	seen := make(map[string]string)
	claim := func(name, kind, entry string) bool {
		if name == "" {
			return false
		}
		if prev, ok := seen[name]; ok {
			v.diags.add(KindDuplicateBinding, entry, name,
				"target name %s is already used by %s", name, prev)
			return false
		}
		seen[name] = kind + " " + name
		return true
	}

	for i := range v.plan.Resources {
		r := &v.plan.Resources[i]
		if claim(r.Name, "resource", resourceEntry(r.Name)) {
			v.vp.resourceIndex[r.Name] = i
		} else if r.Name != "" {
			v.skipResource[i] = true
		}
	}
	for i := range v.plan.Enums {
		claim(v.plan.Enums[i].Name, "enum", enumEntry(v.plan.Enums[i].Name))
	}
	for i := range v.plan.Callbacks {
		claim(v.plan.Callbacks[i].Name, "callback", callbackEntry(v.plan.Callbacks[i].Name))
	}
}

// errorRules merges identical duplicates and rejects conflicting ones.
func (v *planValidator) errorRules() {
	byFunction := make(map[string][]ErrorRuleBinding)
	var order []string
	for i := range v.plan.Errors {
		r := &v.plan.Errors[i]
		if r.Function == "" || !r.Rule.Valid() {
			continue
		}
		if _, ok := byFunction[r.Function]; !ok {
			order = append(order, r.Function)
		}
		byFunction[r.Function] = append(byFunction[r.Function], ErrorRuleBinding{
			Function: r.Function,
			Rule:     r.Rule,
			Policy:   r.Policy(),
		})
	}

	for _, fn := range order {
		candidates := byFunction[fn]
		first := candidates[0]
		conflict := false
		for _, c := range candidates[1:] {
			if c != first {
				conflict = true
				break
			}
		}

		if conflict {
			v.ambiguous[fn] = true
			v.diags.add(KindAmbiguousErrorRule, ruleEntry(fn), fn,
				"%d error rules with different semantics target %s", len(candidates), fn)
		} else {
			v.vp.rules[fn] = first
			v.vp.ruleOrder = append(v.vp.ruleOrder, fn)
		}

		nf, ok := v.table.Function(fn)
		if !ok {
			v.diags.add(KindUnknownSymbol, ruleEntry(fn), fn, "unknown native function %s", fn)
			continue
		}
		if ret := nf.ReturnType(); !v.table.IsIntegerLike(ret) {
			v.diags.add(KindTypeMismatch, ruleEntry(fn), fn,
				"%s returns %s, which is not integer-like", fn, ret)
		}
	}
}

// callbacks resolves callback ctypes to parsed signatures.
func (v *planValidator) callbacks() {
	for i := range v.plan.Callbacks {
		c := &v.plan.Callbacks[i]
		v.vp.Callbacks[i].Plan = c
		if c.Name == "" || c.CType == "" {
			continue
		}
		entry := callbackEntry(c.Name)

		var raw string
		if symbols.IsSignature(c.CType) {
			raw = c.CType
		} else {
			nt, ok := v.table.Type(c.CType)
			if !ok {
				v.diags.add(KindUnknownSymbol, entry, c.CType, "unknown callback type %s", c.CType)
				continue
			}
			if nt.Kind != symbols.KindCallback {
				v.diags.add(KindTypeMismatch, entry, c.CType,
					"%s is a %s, not a function-pointer type", c.CType, nt.Kind)
				continue
			}
			raw = nt.Signature
		}

		sig, err := symbols.ParseSignature(raw)
		if err != nil {
			v.diags.add(KindInvalidPlan, entry, c.CType, "%v", err)
			continue
		}
		v.vp.Callbacks[i].Signature = sig

		if _, ok := v.table.Resolve(sig.Returns); !ok {
			v.diags.add(KindUnknownSymbol, entry, sig.Returns.Base,
				"callback return type %s is unknown", sig.Returns.Base)
		}
		for j, p := range sig.Params {
			if _, ok := v.table.Resolve(p.Type); !ok {
				v.diags.add(KindUnknownSymbol, entry, p.Type.Base,
					"callback parameter %d type %s is unknown", j, p.Type.Base)
			}
		}

		key := canonicalSignature(sig)
		if !symbols.IsSignature(c.CType) {
			v.vp.callbackTypes[c.CType] = i
		}
		if _, taken := v.vp.callbackTypes[key]; !taken {
			v.vp.callbackTypes[key] = i
		}
	}
}

// resources resolves ctype, create, destroy and method references and checks the constructor
// and destructor shapes.
func (v *planValidator) resources() {
	for i := range v.plan.Resources {
		r := &v.plan.Resources[i]
		res := &v.vp.Resources[i]
		res.Plan = r
		res.HandleParam = -1
		res.MethodNames = make([]string, len(r.Methods))
		res.Views = make([]ResolvedView, len(r.Views))
		if v.skipResource[i] {
			continue
		}
		entry := resourceEntry(r.Name)

		var create, destroy *symbols.NativeFunction
		if r.Create != "" {
			fn, ok := v.table.Function(r.Create)
			if !ok {
				v.diags.add(KindUnknownSymbol, entry, r.Create, "unknown create function %s", r.Create)
			}
			create = fn
		}
		if r.Destroy != "" {
			fn, ok := v.table.Function(r.Destroy)
			if !ok {
				v.diags.add(KindUnknownSymbol, entry, r.Destroy, "unknown destroy function %s", r.Destroy)
			}
			destroy = fn
		}

		res.CType = v.resolveCType(entry, r, create, destroy)
		if res.CType != "" {
			if prev, taken := v.vp.resourceTypes[res.CType]; taken {
				v.diags.add(KindDuplicateBinding, entry, res.CType,
					"native type %s is already bound by resource %s", res.CType, v.plan.Resources[prev].Name)
			} else {
				v.vp.resourceTypes[res.CType] = i
			}
		}

		if create != nil && res.CType != "" {
			v.checkCreate(entry, res, create)
		}
		if destroy != nil && res.CType != "" {
			v.checkDestroy(entry, res.CType, destroy)
		}

		for j := range r.Methods {
			m := &r.Methods[j]
			if m.C == "" {
				continue
			}
			fn, ok := v.table.Function(m.C)
			if !ok {
				v.diags.add(KindUnknownSymbol, methodEntry(r.Name, m.C), m.C, "unknown native function %s", m.C)
				continue
			}
			v.checkParams(methodEntry(r.Name, m.C), fn)
		}
	}
}

func (v *planValidator) resolveCType(entry string, r *ResourcePlan, create, destroy *symbols.NativeFunction) string {
	if r.CType != "" {
		ref := symbols.ParseTypeRef(r.CType)
		nt, ok := v.table.Resolve(ref)
		if !ok {
			v.diags.add(KindUnknownSymbol, entry, r.CType, "unknown native type %s", r.CType)
			return ""
		}
		if ref.Pointers != 0 || (nt.Kind != symbols.KindHandle && nt.Kind != symbols.KindStruct) {
			v.diags.add(KindTypeMismatch, entry, r.CType,
				"%s is not an opaque handle or value struct", r.CType)
			return ""
		}
		return nt.Name
	}

	bindable := func(ref symbols.TypeRef) bool {
		nt, ok := v.table.Resolve(ref)
		return ok && ref.Pointers == 0 && (nt.Kind == symbols.KindHandle || nt.Kind == symbols.KindStruct)
	}
	if create != nil {
		if ret := create.ReturnType(); bindable(ret) {
			return ret.Base
		}
		for _, p := range create.Params {
			if p.Dir() == symbols.DirectionIn {
				continue
			}
			if ref := symbols.ParseTypeRef(p.Type); ref.Pointers == 1 && bindable(ref.Elem()) {
				return ref.Base
			}
		}
	}
	if destroy != nil && len(destroy.Params) > 0 {
		if ref := symbols.ParseTypeRef(destroy.Params[0].Type); bindable(ref) {
			return ref.Base
		}
	}

	if (r.Create == "" || create != nil) && (r.Destroy == "" || destroy != nil) {
		v.diags.add(KindInvalidPlan, entry, r.Name,
			"resource %s declares no ctype and none can be inferred from create or destroy", r.Name)
	}
	return ""
}

func (v *planValidator) checkCreate(entry string, res *ResolvedResource, fn *symbols.NativeFunction) {
	handle := symbols.TypeRef{Base: res.CType}
	handlePtr := symbols.TypeRef{Base: res.CType, Pointers: 1}
	ret := fn.ReturnType()

	outs := make([]int, 0)
	handleOuts := make([]int, 0)
	for j, p := range fn.Params {
		if p.Dir() == symbols.DirectionIn {
			continue
		}
		outs = append(outs, j)
		if symbols.ParseTypeRef(p.Type).Same(handlePtr) {
			handleOuts = append(handleOuts, j)
		}
	}

	switch {
	case ret.Same(handle):
		res.HandleSource = HandleFromReturn
		if len(outs) > 0 {
			v.diags.add(KindTypeMismatch, entry, fn.Name,
				"create %s has out-parameter %s in addition to the returned handle", fn.Name, fn.Params[outs[0]].Name)
		}
	case len(handleOuts) == 1 && (ret.IsVoid() || v.table.IsIntegerLike(ret)):
		res.HandleSource = HandleFromOutParam
		res.HandleParam = handleOuts[0]
		if len(outs) > 1 {
			v.diags.add(KindTypeMismatch, entry, fn.Name,
				"create %s has out-parameters besides the %s * handle", fn.Name, res.CType)
		}
		if !ret.IsVoid() {
			if _, ok := v.vp.rules[fn.Name]; !ok && !v.ambiguous[fn.Name] {
				v.diags.warn(KindMissingErrorRule, entry, fn.Name,
					"create %s returns an error code of type %s but no error rule is declared", fn.Name, ret)
			}
		}
	case len(handleOuts) > 1:
		v.diags.add(KindTypeMismatch, entry, fn.Name,
			"create %s has %d %s * out-parameters, expected exactly one", fn.Name, len(handleOuts), res.CType)
	default:
		v.diags.add(KindTypeMismatch, entry, fn.Name,
			"create %s returns %s, expected %s or an error code with a %s * out-parameter",
			fn.Name, ret, res.CType, res.CType)
	}
}

func (v *planValidator) checkDestroy(entry, ctype string, fn *symbols.NativeFunction) {
	if len(fn.Params) != 1 || !symbols.ParseTypeRef(fn.Params[0].Type).Same(symbols.TypeRef{Base: ctype}) {
		v.diags.add(KindTypeMismatch, entry, fn.Name,
			"destroy %s must take the %s handle as its only parameter", fn.Name, ctype)
	}
}

// checkParams verifies method parameters can be marshaled.
func (v *planValidator) checkParams(entry string, fn *symbols.NativeFunction) {
	for j, p := range fn.Params {
		ref := symbols.ParseTypeRef(p.Type)
		if p.Dir() != symbols.DirectionIn && ref.Pointers == 0 {
			v.diags.add(KindTypeMismatch, entry, p.Name,
				"%s parameter %d (%s) is %s but not a pointer", fn.Name, j, p.Name, p.Dir())
			continue
		}
		if v.isCallbackType(p.Type) {
			if _, ok := v.vp.CallbackForType(p.Type); !ok {
				v.diags.add(KindUnknownSymbol, entry, p.Type,
					"%s parameter %s has function-pointer type %s with no callback plan", fn.Name, p.Name, p.Type)
			}
		}
	}
}

func (v *planValidator) isCallbackType(typ string) bool {
	if symbols.IsSignature(typ) {
		return true
	}
	ref := symbols.ParseTypeRef(typ)
	nt, ok := v.table.Resolve(ref)
	return ok && ref.Pointers == 0 && nt.Kind == symbols.KindCallback
}

// enums resolves enum ctypes.
func (v *planValidator) enums() {
	for i := range v.plan.Enums {
		e := &v.plan.Enums[i]
		if e.Name == "" {
			continue
		}
		name := e.NativeName()
		nt, ok := v.table.Type(name)
		if !ok {
			v.diags.add(KindUnknownSymbol, enumEntry(e.Name), name, "unknown native enum %s", name)
			continue
		}
		if nt.Kind != symbols.KindEnum {
			v.diags.add(KindTypeMismatch, enumEntry(e.Name), name, "%s is a %s, not an enum", name, nt.Kind)
		}
	}
}

// representability rejects non-throwing rules where no tagged result can be returned.
func (v *planValidator) representability() {
	for i := range v.plan.Resources {
		if v.skipResource[i] {
			continue
		}
		r := &v.plan.Resources[i]
		for _, fn := range []struct{ name, role string }{{r.Create, "constructor"}, {r.Destroy, "disposer"}} {
			if fn.name == "" {
				continue
			}
			if rule, ok := v.vp.rules[fn.name]; ok && rule.Policy == ErrorPolicyReturnTagged {
				v.diags.add(KindUnrepresentableFailure, resourceEntry(r.Name), fn.name,
					"error rule on %s sets throw: false but a %s cannot return a tagged result", fn.name, fn.role)
			}
		}
	}
}

// lifetimes checks callback lifetime references.
func (v *planValidator) lifetimes() {
	for i := range v.plan.Callbacks {
		c := &v.plan.Callbacks[i]
		if c.Name == "" {
			continue
		}
		entry := callbackEntry(c.Name)
		name, ok := c.LifetimeResource()
		if !ok {
			v.diags.add(KindInvalidPlan, entry, c.Lifetime,
				"lifetime %q must be empty or of the form resource:Name", c.Lifetime)
			continue
		}
		if name == "" {
			continue
		}
		idx, ok := v.vp.resourceIndex[name]
		if !ok {
			v.diags.add(KindUnknownSymbol, entry, name, "lifetime references unknown resource %s", name)
			continue
		}
		if !v.plan.Resources[idx].Disposable() {
			v.diags.add(KindUnresolvableLifetime, entry, name,
				"lifetime resource %s declares no destroy, so the adapter could never be invalidated", name)
			continue
		}
		v.vp.Callbacks[i].Resource = name
	}
}

// ownership resolves owner and child references.
func (v *planValidator) ownership() {
	for i, e := range v.plan.Ownership {
		entry := ownershipEntry(i, e)
		for _, name := range []string{e.Owner, e.Child} {
			if name == "" {
				continue
			}
			if _, ok := v.vp.resourceIndex[name]; !ok {
				v.diags.add(KindUnknownSymbol, entry, name, "unknown resource %s", name)
			}
		}
	}
}

// naming derives method names and checks sibling collisions among methods and views.
func (v *planValidator) naming(ctx context.Context) {
	for i := range v.plan.Resources {
		if v.skipResource[i] {
			continue
		}
		r := &v.plan.Resources[i]
		res := &v.vp.Resources[i]
		prefix := r.Prefix
		if prefix == "" {
			prefix = v.plan.Prefix
		}

		owners := make(map[string]string)
		claim := func(name, what string) {
			if prev, ok := owners[name]; ok {
				v.diags.add(KindDuplicateBinding, resourceEntry(r.Name), name,
					"%s and %s both bind the name %s", prev, what, name)
				return
			}
			owners[name] = what
		}

		for j := range r.Methods {
			m := &r.Methods[j]
			if m.C == "" {
				continue
			}
			name := m.Name
			if name == "" {
				derived, ok := v.deriveName(ctx, r, m.C, prefix)
				if !ok {
					continue
				}
				name = derived
			}
			if name == "" {
				v.diags.add(KindInvalidPlan, methodEntry(r.Name, m.C), m.C,
					"cannot derive a method name from %s", m.C)
				continue
			}
			res.MethodNames[j] = name
			claim(name, "method "+m.C)
		}
		for j := range r.Views {
			if name := r.Views[j].Name; name != "" {
				claim(name, "view "+name)
			}
		}
	}
}

func (v *planValidator) deriveName(ctx context.Context, r *ResourcePlan, function, prefix string) (string, bool) {
	if v.opts.Namer != nil {
		name, err := v.opts.Namer.DeriveName(ctx, function, r.Name, prefix)
		if err != nil {
			v.diags.add(KindInvalidPlan, methodEntry(r.Name, function), function,
				"naming hook failed: %v", err)
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return DeriveMethodName(function, r.Prefix, v.plan.Prefix), true
}

// views checks buffer-view pointer and length references.
func (v *planValidator) views() {
	for i := range v.plan.Resources {
		if v.skipResource[i] {
			continue
		}
		r := &v.plan.Resources[i]
		res := &v.vp.Resources[i]
		receiver := symbols.TypeRef{Base: res.CType}

		for j := range r.Views {
			view := &r.Views[j]
			if view.Ptr == "" {
				continue
			}
			entry := viewEntry(r.Name, view.Name)
			rv := &res.Views[j]
			rv.LengthParam = -1

			ptr, ok := v.table.Function(view.Ptr)
			if !ok {
				v.diags.add(KindUnknownSymbol, entry, view.Ptr, "unknown native function %s", view.Ptr)
				continue
			}
			if ret := ptr.ReturnType(); ret.Pointers == 0 {
				v.diags.add(KindTypeMismatch, entry, view.Ptr, "%s returns %s, expected a pointer", view.Ptr, ret)
			}

			switch {
			case view.Length == "":
				rv.Length = LengthTerminator
			case paramIndex(ptr, view.Length) >= 0:
				k := paramIndex(ptr, view.Length)
				p := ptr.Params[k]
				ref := symbols.ParseTypeRef(p.Type)
				if p.Dir() == symbols.DirectionIn || ref.Pointers != 1 || !v.table.IsIntegerLike(ref.Elem()) {
					v.diags.add(KindTypeMismatch, entry, view.Length,
						"length parameter %s of %s must be an out-pointer to an integer", p.Name, view.Ptr)
				}
				rv.Length = LengthOutParam
				rv.LengthParam = k
			default:
				lf, ok := v.table.Function(view.Length)
				if !ok {
					v.diags.add(KindUnknownSymbol, entry, view.Length,
						"length %s is neither a parameter of %s nor a native function", view.Length, view.Ptr)
					continue
				}
				if !v.table.IsIntegerLike(lf.ReturnType()) {
					v.diags.add(KindTypeMismatch, entry, view.Length,
						"length function %s returns %s, expected an integer", lf.Name, lf.ReturnType())
				}
				if len(lf.Params) > 1 || (len(lf.Params) == 1 && !symbols.ParseTypeRef(lf.Params[0].Type).Same(receiver)) {
					v.diags.add(KindTypeMismatch, entry, view.Length,
						"length function %s must take only the %s receiver", lf.Name, res.CType)
				}
				rv.Length = LengthFunction
				rv.LengthFunction = lf.Name
			}

			for k, p := range ptr.Params {
				if k == rv.LengthParam {
					continue
				}
				if p.Dir() == symbols.DirectionIn && symbols.ParseTypeRef(p.Type).Same(receiver) {
					continue
				}
				v.diags.add(KindTypeMismatch, entry, p.Name,
					"view function %s takes parameter %s that is neither the receiver nor the length", view.Ptr, p.Name)
			}
		}
	}
}

func paramIndex(fn *symbols.NativeFunction, name string) int {
	for i, p := range fn.Params {
		if p.Name == name {
			return i
		}
	}
	return -1
}
