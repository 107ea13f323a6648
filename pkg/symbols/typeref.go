package symbols

import (
	"fmt"
	"strings"
)

// TypeRef is a parsed C type expression.
type TypeRef struct {
	// Base is the base type name without qualifiers, tags or pointers.
	Base string `json:"base" yaml:"base"`

	// Pointers is the pointer depth.
	Pointers int `json:"pointers,omitempty" yaml:"pointers,omitempty"`

	// Const is set when a const qualifier appears anywhere in the expression.
	Const bool `json:"const,omitempty" yaml:"const,omitempty"`
}

// ParseTypeRef parses a C type expression such as "const char *" or "struct CXString".
func ParseTypeRef(expr string) TypeRef {
	ref := TypeRef{}
	ref.Pointers = strings.Count(expr, "*")
	words := strings.Fields(strings.ReplaceAll(expr, "*", " "))

	base := make([]string, 0, len(words))
	for _, w := range words {
		switch w {
		case "const":
			ref.Const = true
		case "volatile", "restrict", "struct", "enum", "union":
		default:
			base = append(base, w)
		}
	}
	ref.Base = strings.Join(base, " ")
	return ref
}

// String returns the normalised type expression.
func (r TypeRef) String() string {
	var sb strings.Builder
	if r.Const {
		sb.WriteString("const ")
	}
	sb.WriteString(r.Base)
	if r.Pointers > 0 {
		sb.WriteString(" ")
		sb.WriteString(strings.Repeat("*", r.Pointers))
	}
	return sb.String()
}

// Elem returns the pointee type. Elem on a non-pointer returns r unchanged.
func (r TypeRef) Elem() TypeRef {
	if r.Pointers == 0 {
		return r
	}
	return TypeRef{Base: r.Base, Pointers: r.Pointers - 1, Const: r.Const}
}

// IsVoid reports whether r is plain void.
func (r TypeRef) IsVoid() bool {
	return r.Base == "void" && r.Pointers == 0
}

// IsVoidPointer reports whether r is void * (the usual user-data slot).
func (r TypeRef) IsVoidPointer() bool {
	return r.Base == "void" && r.Pointers == 1
}

// Same reports type identity ignoring const qualification.
func (r TypeRef) Same(o TypeRef) bool {
	return r.Base == o.Base && r.Pointers == o.Pointers
}

// SignatureParam is one parameter of a function-pointer signature.
type SignatureParam struct {
	Name string  `json:"name,omitempty" yaml:"name,omitempty"`
	Type TypeRef `json:"type" yaml:"type"`
}

// Signature is a parsed function-pointer signature.
type Signature struct {
	Returns TypeRef          `json:"returns" yaml:"returns"`
	Params  []SignatureParam `json:"params" yaml:"params"`
}

// IsSignature reports whether s looks like an inline function-pointer signature.
func IsSignature(s string) bool {
	return strings.Contains(s, "(*")
}

// ParseSignature parses "R (*)(A, B name, ...)" into its return and parameter types.
func ParseSignature(s string) (*Signature, error) {
	star := strings.Index(s, "(*")
	if star < 0 {
		return nil, fmt.Errorf("signature %q has no function-pointer declarator", s)
	}
	ret := strings.TrimSpace(s[:star])
	if ret == "" {
		return nil, fmt.Errorf("signature %q has no return type", s)
	}

	closeDecl := strings.Index(s[star:], ")")
	if closeDecl < 0 {
		return nil, fmt.Errorf("signature %q has an unterminated declarator", s)
	}
	rest := strings.TrimSpace(s[star+closeDecl+1:])
	if !strings.HasPrefix(rest, "(") || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("signature %q has no parameter list", s)
	}
	inner := strings.TrimSpace(rest[1 : len(rest)-1])

	sig := &Signature{Returns: ParseTypeRef(ret), Params: make([]SignatureParam, 0)}
	if inner == "" || inner == "void" {
		return sig, nil
	}

	for _, raw := range splitTopLevel(inner) {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			return nil, fmt.Errorf("signature %q has an empty parameter", s)
		}
		if raw == "..." {
			return nil, fmt.Errorf("signature %q is variadic", s)
		}
		typ, name := splitParamName(raw)
		sig.Params = append(sig.Params, SignatureParam{Name: name, Type: ParseTypeRef(typ)})
	}
	return sig, nil
}

// splitTopLevel splits on commas that are not nested in parentheses.
func splitTopLevel(s string) []string {
	var parts []string
	depth, start := 0, 0
	for i, r := range s {
		switch r {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	return append(parts, s[start:])
}

// splitParamName separates a trailing declarator name from a parameter type.
func splitParamName(raw string) (string, string) {
	if i := strings.LastIndex(raw, "*"); i >= 0 {
		tail := strings.TrimSpace(raw[i+1:])
		if isIdent(tail) && !typeKeywords[tail] {
			return raw[:i+1], tail
		}
		return raw, ""
	}

	words := strings.Fields(raw)
	significant := 0
	for _, w := range words {
		switch w {
		case "const", "volatile", "restrict", "struct", "enum", "union":
		default:
			significant++
		}
	}
	last := words[len(words)-1]
	if significant >= 2 && !typeKeywords[last] && isIdent(last) {
		return strings.Join(words[:len(words)-1], " "), last
	}
	return raw, ""
}

func isIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}

var typeKeywords = map[string]bool{
	"char": true, "short": true, "int": true, "long": true, "unsigned": true,
	"signed": true, "float": true, "double": true, "void": true, "_Bool": true, "bool": true,
}
