package engine

import "github.com/bindforge/bindforge/pkg/symbols"

// ResourceLifetime classifies how generated code manages a resource's handle.
type ResourceLifetime string

const (
	// LifetimeOwned resources are disposed by generated code through their destroy function.
	LifetimeOwned ResourceLifetime = "owned"

	// LifetimeBorrowed resources have neither create nor destroy; values are only referenced.
	LifetimeBorrowed ResourceLifetime = "borrowed"

	// LifetimeUnmanaged resources are created by generated code but have no destroy.
	LifetimeUnmanaged ResourceLifetime = "unmanaged"
)

// MarshalKind is how one native parameter is produced from the target-language call.
type MarshalKind string

const (
	// MarshalReceiver passes the instance's own handle.
	MarshalReceiver MarshalKind = "receiver"

	// MarshalPassThrough passes the argument unchanged.
	MarshalPassThrough MarshalKind = "passThrough"

	// MarshalWrapHandle unwraps another bound resource to its native handle.
	MarshalWrapHandle MarshalKind = "wrapHandle"

	// MarshalOutPromoted allocates the out-pointer and returns the pointee.
	MarshalOutPromoted MarshalKind = "outPromoted"

	// MarshalInOutPromoted takes an initial value and returns the updated pointee.
	MarshalInOutPromoted MarshalKind = "inoutPromoted"

	// MarshalCallback passes a registered callback adapter.
	MarshalCallback MarshalKind = "callback"

	// MarshalUserData carries the adapter's context slot.
	MarshalUserData MarshalKind = "userData"

	// MarshalWrapBorrowed wraps a native handle handed to a callback as a borrowed resource.
	MarshalWrapBorrowed MarshalKind = "wrapBorrowed"
)

// Promoted reports whether the parameter contributes to the method's results.
func (m MarshalKind) Promoted() bool {
	switch m {
	case MarshalOutPromoted, MarshalInOutPromoted:
		return true
	case MarshalReceiver, MarshalPassThrough, MarshalWrapHandle, MarshalCallback,
		MarshalUserData, MarshalWrapBorrowed:
		return false
	default:
		return false
	}
}

// Exposed reports whether the parameter appears in the target-language signature.
func (m MarshalKind) Exposed() bool {
	switch m {
	case MarshalPassThrough, MarshalWrapHandle, MarshalInOutPromoted, MarshalCallback:
		return true
	case MarshalReceiver, MarshalOutPromoted, MarshalUserData, MarshalWrapBorrowed:
		return false
	default:
		return false
	}
}

// ReturnShape is the target-language return shape of a method.
type ReturnShape string

const (
	ShapeNone      ReturnShape = "none"
	ShapeSingle    ReturnShape = "single"
	ShapeComposite ReturnShape = "composite"
)

// LengthSource is where a view reads its element count from.
type LengthSource string

const (
	// LengthFunction calls a length-returning native function on the receiver.
	LengthFunction LengthSource = "function"

	// LengthOutParam reads the count from an out-parameter of the ptr function.
	LengthOutParam LengthSource = "outParam"

	// LengthTerminator scans to a sentinel element.
	LengthTerminator LengthSource = "terminator"
)

// AdapterLifetime is how long a callback adapter stays registered.
type AdapterLifetime string

const (
	AdapterProcess  AdapterLifetime = "process"
	AdapterResource AdapterLifetime = "resource"
)

// HandleSource is where a constructor obtains the new native handle.
type HandleSource string

const (
	HandleFromReturn   HandleSource = "return"
	HandleFromOutParam HandleSource = "outParam"
)

// BindingModel is the fully resolved output of one generation run.
type BindingModel struct {
	Prefix     string                   `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Resources  []ResourceBinding        `json:"resources" yaml:"resources"`
	Enums      []EnumBinding            `json:"enums" yaml:"enums"`
	Callbacks  []CallbackAdapterBinding `json:"callbacks" yaml:"callbacks"`
	ErrorRules []ErrorRuleBinding       `json:"errorRules" yaml:"errorRules"`
	Graph      *OwnershipGraph          `json:"graph" yaml:"graph"`
}

// Resource returns the binding with the given name.
func (m *BindingModel) Resource(name string) (*ResourceBinding, bool) {
	for i := range m.Resources {
		if m.Resources[i].Name == name {
			return &m.Resources[i], true
		}
	}
	return nil, false
}

// Callback returns the adapter with the given name.
func (m *BindingModel) Callback(name string) (*CallbackAdapterBinding, bool) {
	for i := range m.Callbacks {
		if m.Callbacks[i].Name == name {
			return &m.Callbacks[i], true
		}
	}
	return nil, false
}

// ResourceBinding is a resolved resource with its lifecycle contract.
type ResourceBinding struct {
	Name     string           `json:"name" yaml:"name"`
	CType    string           `json:"ctype" yaml:"ctype"`
	Lifetime ResourceLifetime `json:"lifetime" yaml:"lifetime"`

	// Node is the index in OwnershipGraph.Nodes.
	Node int `json:"node" yaml:"node"`

	// DisposalRank is the position in the disposal order; lower ranks dispose first.
	DisposalRank int `json:"disposalRank" yaml:"disposalRank"`

	Owners   []string `json:"owners,omitempty" yaml:"owners,omitempty"`
	Children []string `json:"children,omitempty" yaml:"children,omitempty"`
	Root     bool     `json:"root" yaml:"root"`

	Constructor *Constructor `json:"constructor,omitempty" yaml:"constructor,omitempty"`
	Disposer    *Disposer    `json:"disposer,omitempty" yaml:"disposer,omitempty"`

	Methods []MethodBinding `json:"methods,omitempty" yaml:"methods,omitempty"`
	Views   []ViewBinding   `json:"views,omitempty" yaml:"views,omitempty"`

	// Adapters names callback adapters tied to this resource's lifetime.
	Adapters []string `json:"adapters,omitempty" yaml:"adapters,omitempty"`

	// Concurrency is the documentation note the emitter must carry.
	Concurrency string `json:"concurrency" yaml:"concurrency"`
}

// Constructor is the resolved create call shape.
type Constructor struct {
	Function string         `json:"function" yaml:"function"`
	Params   []ParamBinding `json:"params,omitempty" yaml:"params,omitempty"`

	HandleSource HandleSource `json:"handleSource" yaml:"handleSource"`

	// HandleParam is the out-parameter index when HandleSource is outParam, else -1.
	HandleParam int `json:"handleParam" yaml:"handleParam"`

	ErrorRule *ErrorRuleBinding `json:"errorRule,omitempty" yaml:"errorRule,omitempty"`
	Policy    ErrorPolicy       `json:"policy" yaml:"policy"`
}

// Disposer is the resolved destroy call shape.
type Disposer struct {
	Function string `json:"function" yaml:"function"`

	// Idempotent is always true: a second dispose is a no-op.
	Idempotent bool `json:"idempotent" yaml:"idempotent"`

	// DisposeAfter lists child resources that must be disposed before this one.
	DisposeAfter []string `json:"disposeAfter,omitempty" yaml:"disposeAfter,omitempty"`

	// InvalidatesAdapters lists callback adapters deregistered no later than this call.
	InvalidatesAdapters []string `json:"invalidatesAdapters,omitempty" yaml:"invalidatesAdapters,omitempty"`
}

// ParamBinding is the marshaling plan for one native parameter.
type ParamBinding struct {
	Index   int         `json:"index" yaml:"index"`
	Name    string      `json:"name" yaml:"name"`
	Type    string      `json:"type" yaml:"type"`
	Marshal MarshalKind `json:"marshal" yaml:"marshal"`

	// Resource is the bound resource for receiver and wrapHandle parameters.
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`

	// Callback is the adapter name for callback parameters.
	Callback string `json:"callback,omitempty" yaml:"callback,omitempty"`
}

// ResultBinding is one component of a method's target-language return value.
type ResultBinding struct {
	Name string `json:"name" yaml:"name"`

	// Type is the value type (the pointee for promoted parameters).
	Type string `json:"type" yaml:"type"`

	// Param is the native parameter index, or -1 for the native return value.
	Param int `json:"param" yaml:"param"`

	// Resource is set when the value is a bound handle wrapped on return.
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// MethodBinding is a resolved method.
type MethodBinding struct {
	Name     string `json:"name" yaml:"name"`
	Function string `json:"function" yaml:"function"`

	// Receiver is the index of the receiver parameter, or -1 for static methods.
	Receiver int  `json:"receiver" yaml:"receiver"`
	Static   bool `json:"static" yaml:"static"`

	Params  []ParamBinding  `json:"params,omitempty" yaml:"params,omitempty"`
	Results []ResultBinding `json:"results,omitempty" yaml:"results,omitempty"`
	Shape   ReturnShape     `json:"shape" yaml:"shape"`

	// NativeReturn is the native return type; Meaningful reports whether callers see it.
	NativeReturn string `json:"nativeReturn" yaml:"nativeReturn"`
	Meaningful   bool   `json:"meaningful" yaml:"meaningful"`

	ErrorRule     *ErrorRuleBinding `json:"errorRule,omitempty" yaml:"errorRule,omitempty"`
	Policy        ErrorPolicy       `json:"policy" yaml:"policy"`
	ReturnsTagged bool              `json:"returnsTagged" yaml:"returnsTagged"`
}

// ViewBinding is a resolved buffer accessor.
type ViewBinding struct {
	Name string `json:"name" yaml:"name"`
	Ptr  string `json:"ptr" yaml:"ptr"`

	Length LengthSource `json:"length" yaml:"length"`

	// LengthFunction is set for function-sourced lengths.
	LengthFunction string `json:"lengthFunction,omitempty" yaml:"lengthFunction,omitempty"`

	// LengthParam is the ptr out-parameter index for outParam lengths, else -1.
	LengthParam int `json:"lengthParam" yaml:"lengthParam"`

	Terminator int64 `json:"terminator" yaml:"terminator"`

	ElementType string `json:"elementType" yaml:"elementType"`
	ElementSize int    `json:"elementSize" yaml:"elementSize"`

	Copy         bool   `json:"copy" yaml:"copy"`
	UnsafeBorrow bool   `json:"unsafeBorrow" yaml:"unsafeBorrow"`
	Hazard       string `json:"hazard,omitempty" yaml:"hazard,omitempty"`
}

// CallbackParamBinding is the marshaling of one native callback argument into the host callable.
type CallbackParamBinding struct {
	Index    int         `json:"index" yaml:"index"`
	Name     string      `json:"name" yaml:"name"`
	Type     string      `json:"type" yaml:"type"`
	Marshal  MarshalKind `json:"marshal" yaml:"marshal"`
	Resource string      `json:"resource,omitempty" yaml:"resource,omitempty"`
}

// CallbackAdapterBinding is a resolved function-pointer adapter.
type CallbackAdapterBinding struct {
	Name      string                 `json:"name" yaml:"name"`
	CType     string                 `json:"ctype" yaml:"ctype"`
	Signature string                 `json:"signature" yaml:"signature"`
	Params    []CallbackParamBinding `json:"params,omitempty" yaml:"params,omitempty"`
	Returns   string                 `json:"returns" yaml:"returns"`

	Lifetime AdapterLifetime `json:"lifetime" yaml:"lifetime"`

	// Resource is the owning resource for resource lifetimes.
	Resource string `json:"resource,omitempty" yaml:"resource,omitempty"`

	// AutoCleanup is set when the owning resource's disposer invalidates the adapter.
	AutoCleanup bool `json:"autoCleanup" yaml:"autoCleanup"`
}

// EnumBinding is a resolved enum.
type EnumBinding struct {
	Name     string              `json:"name" yaml:"name"`
	CType    string              `json:"ctype" yaml:"ctype"`
	ExposeAs ExposeAs            `json:"exposeAs" yaml:"exposeAs"`
	Values   []symbols.EnumValue `json:"values,omitempty" yaml:"values,omitempty"`
}

// ErrorRuleBinding is the single resolved error rule for a native function.
type ErrorRuleBinding struct {
	Function string      `json:"function" yaml:"function"`
	Rule     RuleKind    `json:"rule" yaml:"rule"`
	Policy   ErrorPolicy `json:"policy" yaml:"policy"`
}

const concurrencyNote = "concurrent use of a single instance is undefined unless the underlying native library states otherwise"
