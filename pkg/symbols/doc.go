// Package symbols holds the pre-extracted description of a native C API surface:
// named types (opaque handles, value structs, primitive aliases, enums, function-pointer
// typedefs) and function signatures with positional, directed parameters.
//
// A Table is built once by an upstream extraction step and consumed read-only. Type
// identities are normalised strings compared by equality; ParseTypeRef and
// ParseSignature turn C type expressions into comparable values.
package symbols
