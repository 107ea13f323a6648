package engine

import (
	"context"
	"strings"
	"unicode"
)

// MethodNamer derives target method names. An empty result falls back to DeriveMethodName.
type MethodNamer interface {
	DeriveName(ctx context.Context, function, resource, prefix string) (string, error)
}

// DeriveMethodName strips the resource prefix (or, failing that, the plan prefix) from a
// native function name and lower-camel-cases the remainder.
func DeriveMethodName(function, resourcePrefix, planPrefix string) string {
	rest := function
	switch {
	case resourcePrefix != "" && strings.HasPrefix(function, resourcePrefix) && len(function) > len(resourcePrefix):
		rest = function[len(resourcePrefix):]
	case planPrefix != "" && strings.HasPrefix(function, planPrefix) && len(function) > len(planPrefix):
		rest = function[len(planPrefix):]
	}
	return LowerCamel(rest)
}

// LowerCamel converts snake_case and PascalCase identifiers to lowerCamelCase.
// A leading acronym is lowered as a unit: "CXXMethod_isStatic" becomes "cxxMethodIsStatic".
func LowerCamel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '_' || r == '-' })
	if len(parts) == 0 {
		return ""
	}

	var sb strings.Builder
	sb.WriteString(lowerLeading(parts[0]))
	for _, p := range parts[1:] {
		r := []rune(p)
		r[0] = unicode.ToUpper(r[0])
		sb.WriteString(string(r))
	}
	return sb.String()
}

func lowerLeading(s string) string {
	r := []rune(s)
	run := 0
	for run < len(r) && unicode.IsUpper(r[run]) {
		run++
	}
	switch {
	case run == 0:
		return s
	case run == len(r):
		return strings.ToLower(s)
	case run > 1:
		// keep the capital that starts the next word
		run--
	}
	for i := 0; i < run; i++ {
		r[i] = unicode.ToLower(r[i])
	}
	return string(r)
}

// IsLowerCamel reports whether name is a lowerCamelCase identifier.
func IsLowerCamel(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case i == 0 && !unicode.IsLower(r):
			return false
		case r == '_' || r == '-':
			return false
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			return false
		}
	}
	return true
}
