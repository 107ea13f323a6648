package symbols

import (
	"fmt"
	"sort"
)

// TypeKind classifies a native type entry.
type TypeKind string

const (
	// KindHandle is an opaque handle type (a pointer to an incomplete struct).
	KindHandle TypeKind = "handle"

	// KindStruct is a value struct passed by value.
	KindStruct TypeKind = "struct"

	// KindPrimitive is a primitive type or an alias of one.
	KindPrimitive TypeKind = "primitive"

	// KindEnum is a C enum definition.
	KindEnum TypeKind = "enum"

	// KindCallback is a function-pointer typedef.
	KindCallback TypeKind = "callback"
)

// Direction is the data-flow direction of a native parameter.
type Direction string

const (
	DirectionIn    Direction = "in"
	DirectionOut   Direction = "out"
	DirectionInOut Direction = "inout"
)

// NativeType describes a named native type.
type NativeType struct {
	// Name is the C type name (e.g., "CXIndex").
	Name string `json:"name" yaml:"name"`

	// Kind classifies the type.
	Kind TypeKind `json:"kind" yaml:"kind"`

	// Underlying is the aliased type for primitive aliases (e.g., "unsigned int").
	Underlying string `json:"underlying,omitempty" yaml:"underlying,omitempty"`

	// Signature is the function-pointer signature for callback typedefs.
	Signature string `json:"signature,omitempty" yaml:"signature,omitempty"`

	// Values lists enum members in declaration order.
	Values []EnumValue `json:"values,omitempty" yaml:"values,omitempty"`
}

// EnumValue is a single enum member.
type EnumValue struct {
	Name  string `json:"name" yaml:"name"`
	Value int64  `json:"value" yaml:"value"`
}

// Param is a positional native function parameter.
type Param struct {
	// Name is the declared parameter name.
	Name string `json:"name" yaml:"name"`

	// Type is the C type expression (e.g., "const char *").
	Type string `json:"type" yaml:"type"`

	// Direction defaults to "in" when empty.
	Direction Direction `json:"direction,omitempty" yaml:"direction,omitempty"`
}

// Dir returns the parameter direction, defaulting to in.
func (p Param) Dir() Direction {
	if p.Direction == "" {
		return DirectionIn
	}
	return p.Direction
}

// NativeFunction describes a native function signature.
type NativeFunction struct {
	// Name is the C function name.
	Name string `json:"name" yaml:"name"`

	// Params is the ordered parameter list.
	Params []Param `json:"params,omitempty" yaml:"params,omitempty"`

	// Returns is the C return type expression. Empty means void.
	Returns string `json:"returns,omitempty" yaml:"returns,omitempty"`
}

// ReturnType returns the parsed return type.
func (f *NativeFunction) ReturnType() TypeRef {
	if f.Returns == "" {
		return ParseTypeRef("void")
	}
	return ParseTypeRef(f.Returns)
}

// Table is a read-only lookup over native types and functions.
type Table struct {
	types     map[string]*NativeType
	functions map[string]*NativeFunction
	order     []string
}

// File is the on-disk shape of a symbol table.
type File struct {
	Types     []NativeType     `json:"types" yaml:"types"`
	Functions []NativeFunction `json:"functions" yaml:"functions"`
}

// NewTable builds a table from type and function entries. Standard C primitives are
// predeclared; an entry that redeclares a name is an error.
func NewTable(types []NativeType, functions []NativeFunction) (*Table, error) {
	t := &Table{
		types:     make(map[string]*NativeType),
		functions: make(map[string]*NativeFunction),
	}

	for _, name := range builtinPrimitives {
		t.types[name] = &NativeType{Name: name, Kind: KindPrimitive}
	}

	for i := range types {
		nt := types[i]
		if nt.Name == "" {
			return nil, fmt.Errorf("type entry %d has empty name", i)
		}
		if existing, ok := t.types[nt.Name]; ok && !isBuiltin(existing.Name) {
			return nil, fmt.Errorf("duplicate type %s", nt.Name)
		}
		switch nt.Kind {
		case KindHandle, KindStruct, KindPrimitive, KindEnum, KindCallback:
		default:
			return nil, fmt.Errorf("type %s has unknown kind %q", nt.Name, nt.Kind)
		}
		t.types[nt.Name] = &nt
		t.order = append(t.order, nt.Name)
	}

	for i := range functions {
		fn := functions[i]
		if fn.Name == "" {
			return nil, fmt.Errorf("function entry %d has empty name", i)
		}
		if _, ok := t.functions[fn.Name]; ok {
			return nil, fmt.Errorf("duplicate function %s", fn.Name)
		}
		for j, p := range fn.Params {
			switch p.Dir() {
			case DirectionIn, DirectionOut, DirectionInOut:
			default:
				return nil, fmt.Errorf("function %s param %d has unknown direction %q", fn.Name, j, p.Direction)
			}
		}
		t.functions[fn.Name] = &fn
	}

	return t, nil
}

// Type looks up a native type by name.
func (t *Table) Type(name string) (*NativeType, bool) {
	nt, ok := t.types[name]
	return nt, ok
}

// Function looks up a native function by name.
func (t *Table) Function(name string) (*NativeFunction, bool) {
	fn, ok := t.functions[name]
	return fn, ok
}

// Resolve reports whether every base type named by ref is known.
func (t *Table) Resolve(ref TypeRef) (*NativeType, bool) {
	return t.Type(ref.Base)
}

// Types returns the declared (non-builtin) type names in declaration order.
func (t *Table) Types() []string {
	out := make([]string, len(t.order))
	copy(out, t.order)
	return out
}

// Functions returns all function names sorted.
func (t *Table) Functions() []string {
	names := make([]string, 0, len(t.functions))
	for name := range t.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// IsIntegerLike reports whether ref is an integer primitive, an enum, or an alias of one.
// Pointers are never integer-like.
func (t *Table) IsIntegerLike(ref TypeRef) bool {
	if ref.Pointers > 0 {
		return false
	}
	return t.isIntegerName(ref.Base, 0)
}

func (t *Table) isIntegerName(name string, depth int) bool {
	if depth > 8 {
		return false
	}
	if _, ok := integerPrimitives[name]; ok {
		return true
	}
	nt, ok := t.types[name]
	if !ok {
		return false
	}
	switch nt.Kind {
	case KindEnum:
		return true
	case KindPrimitive:
		if nt.Underlying == "" {
			return false
		}
		u := ParseTypeRef(nt.Underlying)
		return u.Pointers == 0 && t.isIntegerName(u.Base, depth+1)
	default:
		return false
	}
}

// IsHandle reports whether ref names an opaque handle type by value.
func (t *Table) IsHandle(ref TypeRef) bool {
	if ref.Pointers > 0 {
		return false
	}
	nt, ok := t.types[ref.Base]
	return ok && nt.Kind == KindHandle
}

// Canonical resolves primitive aliases, so "CXClientData" aliased to "void *" becomes void *.
func (t *Table) Canonical(ref TypeRef) TypeRef {
	for depth := 0; depth < 8; depth++ {
		nt, ok := t.types[ref.Base]
		if !ok || nt.Kind != KindPrimitive || nt.Underlying == "" {
			return ref
		}
		u := ParseTypeRef(nt.Underlying)
		if u.Base == ref.Base {
			return ref
		}
		ref = TypeRef{Base: u.Base, Pointers: ref.Pointers + u.Pointers, Const: ref.Const || u.Const}
	}
	return ref
}

// SizeOf returns the byte size of a primitive by name, or 0 when unknown.
func (t *Table) SizeOf(ref TypeRef) int {
	if ref.Pointers > 0 {
		return 8
	}
	if n, ok := primitiveSizes[ref.Base]; ok {
		return n
	}
	if nt, ok := t.types[ref.Base]; ok {
		switch nt.Kind {
		case KindEnum:
			return 4
		case KindPrimitive:
			if nt.Underlying != "" {
				u := ParseTypeRef(nt.Underlying)
				if u.Base != ref.Base {
					return t.SizeOf(u)
				}
			}
		case KindHandle, KindStruct, KindCallback:
		}
	}
	return 0
}

func isBuiltin(name string) bool {
	for _, b := range builtinPrimitives {
		if b == name {
			return true
		}
	}
	return false
}

var builtinPrimitives = []string{
	"void", "bool", "_Bool", "char", "signed char", "unsigned char",
	"short", "unsigned short", "int", "unsigned", "unsigned int",
	"long", "unsigned long", "long long", "unsigned long long",
	"float", "double", "size_t", "ssize_t", "ptrdiff_t", "intptr_t", "uintptr_t",
	"int8_t", "int16_t", "int32_t", "int64_t",
	"uint8_t", "uint16_t", "uint32_t", "uint64_t",
}

var integerPrimitives = map[string]struct{}{
	"bool": {}, "_Bool": {}, "char": {}, "signed char": {}, "unsigned char": {},
	"short": {}, "unsigned short": {}, "int": {}, "unsigned": {}, "unsigned int": {},
	"long": {}, "unsigned long": {}, "long long": {}, "unsigned long long": {},
	"size_t": {}, "ssize_t": {}, "ptrdiff_t": {}, "intptr_t": {}, "uintptr_t": {},
	"int8_t": {}, "int16_t": {}, "int32_t": {}, "int64_t": {},
	"uint8_t": {}, "uint16_t": {}, "uint32_t": {}, "uint64_t": {},
}

var primitiveSizes = map[string]int{
	"bool": 1, "_Bool": 1, "char": 1, "signed char": 1, "unsigned char": 1,
	"int8_t": 1, "uint8_t": 1,
	"short": 2, "unsigned short": 2, "int16_t": 2, "uint16_t": 2,
	"int": 4, "unsigned": 4, "unsigned int": 4, "int32_t": 4, "uint32_t": 4, "float": 4,
	"long": 8, "unsigned long": 8, "long long": 8, "unsigned long long": 8,
	"int64_t": 8, "uint64_t": 8, "double": 8,
	"size_t": 8, "ssize_t": 8, "ptrdiff_t": 8, "intptr_t": 8, "uintptr_t": 8,
}
