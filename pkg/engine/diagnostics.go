package engine

import (
	"fmt"
	"sort"
	"strings"
)

// DiagnosticKind classifies a generation-time problem.
type DiagnosticKind string

const (
	// KindUnknownSymbol: a plan reference does not resolve.
	KindUnknownSymbol DiagnosticKind = "UnknownSymbol"

	// KindDuplicateBinding: two plan entries would emit the same target name.
	KindDuplicateBinding DiagnosticKind = "DuplicateBinding"

	// KindCycleError: the ownership graph is not a DAG.
	KindCycleError DiagnosticKind = "CycleError"

	// KindAmbiguousErrorRule: conflicting error rules target one function.
	KindAmbiguousErrorRule DiagnosticKind = "AmbiguousErrorRule"

	// KindUnresolvableLifetime: a callback lifetime names a resource without destroy.
	KindUnresolvableLifetime DiagnosticKind = "UnresolvableLifetime"

	// KindMissingErrorRule: a fallible create function has no error rule.
	KindMissingErrorRule DiagnosticKind = "MissingErrorRule"

	// KindTypeMismatch: a referenced symbol has the wrong native shape.
	KindTypeMismatch DiagnosticKind = "TypeMismatch"

	// KindUnrepresentableFailure: a non-throwing rule on a binding that cannot carry a failure.
	KindUnrepresentableFailure DiagnosticKind = "UnrepresentableFailure"

	// KindBorrowedOwnership: a borrowed resource violates the borrowing rules.
	KindBorrowedOwnership DiagnosticKind = "BorrowedOwnership"

	// KindInvalidPlan: a plan entry is structurally malformed.
	KindInvalidPlan DiagnosticKind = "InvalidPlan"

	// KindPolicyViolation: a lint policy flagged the resolved model.
	KindPolicyViolation DiagnosticKind = "PolicyViolation"
)

// Severity of a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

// Diagnostic is one structured generation problem.
type Diagnostic struct {
	// Entry identifies the offending plan entry (e.g., "resource Index", "callback Visitor").
	Entry string `json:"entry"`

	// Kind is the error kind.
	Kind DiagnosticKind `json:"kind"`

	// Severity is error unless stated otherwise.
	Severity Severity `json:"severity"`

	// Message is the human-readable description.
	Message string `json:"message"`

	// Reference is the exact unresolved or offending name, when there is one.
	Reference string `json:"reference,omitempty"`
}

// String formats a diagnostic for terminal output.
func (d Diagnostic) String() string {
	return fmt.Sprintf("%s: %s [%s] %s", d.Severity, d.Entry, d.Kind, d.Message)
}

// Diagnostics is an ordered, complete list of problems from one run.
type Diagnostics []Diagnostic

func (ds *Diagnostics) add(kind DiagnosticKind, entry, ref, format string, args ...interface{}) {
	*ds = append(*ds, Diagnostic{
		Entry:     entry,
		Kind:      kind,
		Severity:  SeverityError,
		Message:   fmt.Sprintf(format, args...),
		Reference: ref,
	})
}

func (ds *Diagnostics) warn(kind DiagnosticKind, entry, ref, format string, args ...interface{}) {
	*ds = append(*ds, Diagnostic{
		Entry:     entry,
		Kind:      kind,
		Severity:  SeverityWarning,
		Message:   fmt.Sprintf(format, args...),
		Reference: ref,
	})
}

// Append adds diagnostics from another pass.
func (ds *Diagnostics) Append(other Diagnostics) {
	*ds = append(*ds, other...)
}

// HasFatal reports whether any diagnostic blocks generation. Warnings are fatal unless
// allowWarnings is set; info never is.
func (ds Diagnostics) HasFatal(allowWarnings bool) bool {
	for _, d := range ds {
		switch d.Severity {
		case SeverityError:
			return true
		case SeverityWarning:
			if !allowWarnings {
				return true
			}
		case SeverityInfo:
		}
	}
	return false
}

// ByKind returns the diagnostics of one kind.
func (ds Diagnostics) ByKind(kind DiagnosticKind) Diagnostics {
	var out Diagnostics
	for _, d := range ds {
		if d.Kind == kind {
			out = append(out, d)
		}
	}
	return out
}

// Count returns the number of diagnostics per kind.
func (ds Diagnostics) Count() map[DiagnosticKind]int {
	counts := make(map[DiagnosticKind]int)
	for _, d := range ds {
		counts[d.Kind]++
	}
	return counts
}

// Sorted returns a copy ordered by entry, then kind, keeping pass order otherwise.
func (ds Diagnostics) Sorted() Diagnostics {
	out := make(Diagnostics, len(ds))
	copy(out, ds)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Entry != out[j].Entry {
			return out[i].Entry < out[j].Entry
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// DiagnosticsError carries the fatal diagnostics of a failed run as an error.
type DiagnosticsError struct {
	Diagnostics Diagnostics
}

func (e *DiagnosticsError) Error() string {
	if len(e.Diagnostics) == 1 {
		return e.Diagnostics[0].String()
	}
	lines := make([]string, 0, len(e.Diagnostics)+1)
	lines = append(lines, fmt.Sprintf("%d diagnostics:", len(e.Diagnostics)))
	for _, d := range e.Diagnostics {
		lines = append(lines, "  "+d.String())
	}
	return strings.Join(lines, "\n")
}

func resourceEntry(name string) string { return "resource " + name }

func methodEntry(resource, method string) string {
	return fmt.Sprintf("resource %s method %s", resource, method)
}

func viewEntry(resource, view string) string {
	return fmt.Sprintf("resource %s view %s", resource, view)
}

func enumEntry(name string) string     { return "enum " + name }
func callbackEntry(name string) string { return "callback " + name }
func ruleEntry(fn string) string       { return "error rule " + fn }

func ownershipEntry(i int, e OwnershipEntry) string {
	return fmt.Sprintf("ownership[%d] %s->%s", i, e.Owner, e.Child)
}
