package policy

import (
	"time"
)

// Built-in policy names.
const (
	PolicyBorrowedView            = "borrowed-view"
	PolicyUndisposedRoot          = "undisposed-root"
	PolicyMethodNaming            = "method-naming"
	PolicyProcessLifetimeCallback = "process-lifetime-callback"
)

// GetBuiltinPolicies returns all built-in policies.
func GetBuiltinPolicies() []Policy {
	return []Policy{
		borrowedViewPolicy(),
		undisposedRootPolicy(),
		methodNamingPolicy(),
		processLifetimeCallbackPolicy(),
	}
}

// borrowedViewPolicy flags views that hand out native memory without copying.
func borrowedViewPolicy() Policy {
	return Policy{
		Name:        PolicyBorrowedView,
		Description: "Flags views that expose native memory without copying it",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"memory", "views"},
		LoadedAt:    time.Now(),
		Rego: `package bindforge.policies.views

import rego.v1

deny contains violation if {
	input.kind == "resource"
	some view in input.resource.views
	view.unsafeBorrow
	violation := {
		"subject": sprintf("resource %s view %s", [input.resource.name, view.name]),
		"message": sprintf("view %s borrows native memory: %s", [view.name, view.hazard]),
		"remediation": "set copy: true unless the caller controls the owner's lifetime",
	}
}
`,
	}
}

// undisposedRootPolicy flags created resources that nothing ever releases.
func undisposedRootPolicy() Policy {
	return Policy{
		Name:        PolicyUndisposedRoot,
		Description: "Flags root resources that are created but have no destroy function",
		Severity:    SeverityWarning,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"lifecycle"},
		LoadedAt:    time.Now(),
		Rego: `package bindforge.policies.lifecycle

import rego.v1

deny contains violation if {
	input.kind == "resource"
	resource := input.resource
	resource.root
	resource.constructor
	resource.lifetime == "unmanaged"
	violation := {
		"subject": sprintf("resource %s", [resource.name]),
		"message": sprintf("resource %s is created by %s but never disposed", [resource.name, resource.constructor.function]),
		"remediation": "add a destroy function or expose the resource as borrowed",
	}
}
`,
	}
}

// methodNamingPolicy enforces lower camel case target names.
func methodNamingPolicy() Policy {
	return Policy{
		Name:        PolicyMethodNaming,
		Description: "Requires method names to be lower camel case",
		Severity:    SeverityError,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"naming", "conventions"},
		LoadedAt:    time.Now(),
		Rego: `package bindforge.policies.naming

import rego.v1

deny contains violation if {
	input.kind == "resource"
	some method in input.resource.methods
	not regex.match("^[a-z][a-zA-Z0-9]*$", method.name)
	violation := {
		"subject": sprintf("resource %s method %s", [input.resource.name, method.name]),
		"message": sprintf("method name %q for %s is not lower camel case", [method.name, method.function]),
		"remediation": "rename the method in the plan or adjust the naming hook",
	}
}
`,
	}
}

// processLifetimeCallbackPolicy reports adapters that are never released.
func processLifetimeCallbackPolicy() Policy {
	return Policy{
		Name:        PolicyProcessLifetimeCallback,
		Description: "Reports callback adapters that live for the whole process",
		Severity:    SeverityInfo,
		Enabled:     true,
		Builtin:     true,
		Tags:        []string{"callbacks", "lifecycle"},
		LoadedAt:    time.Now(),
		Rego: `package bindforge.policies.callbacks

import rego.v1

deny contains violation if {
	input.kind == "callback"
	input.callback.lifetime == "process"
	violation := {
		"subject": sprintf("callback %s", [input.callback.name]),
		"message": sprintf("adapters for %s are never released", [input.callback.name]),
		"remediation": "tie the callback to a resource lifetime when the native side stores it",
	}
}
`,
	}
}
