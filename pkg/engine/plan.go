package engine

import "strings"

// StrategyPlan is the declarative description of how a native API surface is presented.
// Sequence order is significant: it defines emission order.
type StrategyPlan struct {
	// Prefix is the plan-wide native prefix stripped when deriving method names
	// (e.g., "clang_").
	Prefix string `json:"prefix,omitempty"`

	Resources []ResourcePlan   `json:"resources,omitempty"`
	Enums     []EnumPlan       `json:"enums,omitempty"`
	Callbacks []CallbackPlan   `json:"callbacks,omitempty"`
	Errors    []ErrorRule      `json:"errors,omitempty"`
	Ownership []OwnershipEntry `json:"ownership,omitempty"`
}

// ResourcePlan describes one generated wrapper class around a native handle.
type ResourcePlan struct {
	// Name is the target class identity.
	Name string `json:"name" validate:"required"`

	// CType is the native opaque handle type this resource wraps.
	CType string `json:"ctype,omitempty"`

	// Create is the native constructor function.
	Create string `json:"create,omitempty"`

	// Destroy is the native destructor function.
	Destroy string `json:"destroy,omitempty"`

	// Prefix is the resource's native-API prefix stripped when deriving method names.
	Prefix string `json:"prefix,omitempty"`

	Methods []MethodPlan `json:"methods,omitempty" validate:"dive"`
	Views   []ViewPlan   `json:"views,omitempty" validate:"dive"`
}

// Borrowed reports whether the resource has neither create nor destroy.
func (r *ResourcePlan) Borrowed() bool {
	return r.Create == "" && r.Destroy == ""
}

// Disposable reports whether generated code must dispose instances.
func (r *ResourcePlan) Disposable() bool {
	return r.Destroy != ""
}

// MethodPlan binds one native function as a method.
type MethodPlan struct {
	// C is the native function name.
	C string `json:"c" validate:"required"`

	// Name is the target method name. Derived when empty.
	Name string `json:"name,omitempty"`
}

// ViewPlan binds a pointer+length (or pointer+terminator) pair as a buffer accessor.
type ViewPlan struct {
	Name string `json:"name" validate:"required"`

	// Ptr is the pointer-returning native function.
	Ptr string `json:"ptr" validate:"required"`

	// Length names either an out-parameter of Ptr or a length-returning native function.
	// Empty means the buffer is terminator-delimited.
	Length string `json:"length,omitempty"`

	// Terminator is the sentinel element value for terminator scans (default 0).
	Terminator int64 `json:"terminator,omitempty"`

	// Copy defaults to true.
	Copy *bool `json:"copy,omitempty"`
}

// Copies reports the effective copy mode.
func (v *ViewPlan) Copies() bool {
	return v.Copy == nil || *v.Copy
}

// ExposeAs controls whether an enum is emitted as a runtime mapping or a type only.
type ExposeAs string

const (
	ExposeConst ExposeAs = "const"
	ExposeType  ExposeAs = "type"
)

// Valid reports whether e is a known mode.
func (e ExposeAs) Valid() bool {
	switch e {
	case ExposeConst, ExposeType:
		return true
	default:
		return false
	}
}

// EnumPlan exposes a native enum.
type EnumPlan struct {
	Name     string   `json:"name" validate:"required"`
	ExposeAs ExposeAs `json:"exposeAs" validate:"required,oneof=const type"`

	// CType is the native enum name; defaults to Name.
	CType string `json:"ctype,omitempty"`
}

// NativeName returns the native enum type name.
func (e *EnumPlan) NativeName() string {
	if e.CType != "" {
		return e.CType
	}
	return e.Name
}

// CallbackPlan describes a function-pointer parameter adapter.
type CallbackPlan struct {
	Name string `json:"name" validate:"required"`

	// CType is a callback typedef name or an inline function-pointer signature.
	CType string `json:"ctype" validate:"required"`

	// Lifetime is "resource:Name" or empty for process lifetime.
	Lifetime string `json:"lifetime,omitempty"`
}

const lifetimeResourcePrefix = "resource:"

// LifetimeResource parses the lifetime reference. ok is false when Lifetime is set but
// malformed; name is empty for process lifetime.
func (c *CallbackPlan) LifetimeResource() (name string, ok bool) {
	if c.Lifetime == "" {
		return "", true
	}
	if !strings.HasPrefix(c.Lifetime, lifetimeResourcePrefix) {
		return "", false
	}
	name = strings.TrimPrefix(c.Lifetime, lifetimeResourcePrefix)
	if name == "" || strings.ContainsAny(name, " \t:") {
		return "", false
	}
	return name, true
}

// RuleKind is the native error-signalling convention.
type RuleKind string

const (
	// RuleNonZeroIsError treats every non-zero return as a failure code.
	RuleNonZeroIsError RuleKind = "nonZeroIsError"

	// RuleNegativeIsError treats strictly negative returns as failure codes.
	RuleNegativeIsError RuleKind = "negativeIsError"
)

// Valid reports whether k is a known rule.
func (k RuleKind) Valid() bool {
	switch k {
	case RuleNonZeroIsError, RuleNegativeIsError:
		return true
	default:
		return false
	}
}

// ErrorRule attaches an error convention to a native function.
type ErrorRule struct {
	Function string   `json:"function" validate:"required"`
	Rule     RuleKind `json:"rule" validate:"required,oneof=nonZeroIsError negativeIsError"`

	// Throw defaults to true.
	Throw *bool `json:"throw,omitempty"`
}

// Policy returns the explicit error policy for the rule.
func (r *ErrorRule) Policy() ErrorPolicy {
	if r.Throw == nil || *r.Throw {
		return ErrorPolicyThrow
	}
	return ErrorPolicyReturnTagged
}

// OwnershipEntry declares that owner's instances own child's instances.
type OwnershipEntry struct {
	Owner string `json:"owner" validate:"required"`
	Child string `json:"child" validate:"required"`
}

// ErrorPolicy is how a classified failure reaches the caller.
type ErrorPolicy string

const (
	// ErrorPolicyNone means no rule applies; the native return passes through.
	ErrorPolicyNone ErrorPolicy = "none"

	// ErrorPolicyThrow raises a structured native error.
	ErrorPolicyThrow ErrorPolicy = "throw"

	// ErrorPolicyReturnTagged returns a tagged result carrying either value or code.
	ErrorPolicyReturnTagged ErrorPolicy = "returnTagged"
)
