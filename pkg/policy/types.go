package policy

import (
	"time"

	"github.com/bindforge/bindforge/pkg/engine"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for findings that block generation in strict mode.
	SeverityError Severity = "error"
)

// Input kinds. Each binding of a model is evaluated on its own.
const (
	InputResource = "resource"
	InputCallback = "callback"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code. Violations are read from data.<package>.deny.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Builtin marks policies shipped with bindforge.
	Builtin bool `json:"builtin,omitempty"`

	// Tags are labels for organizing policies.
	Tags []string `json:"tags,omitempty"`

	// Metadata contains additional policy metadata.
	Metadata map[string]interface{} `json:"metadata,omitempty"`

	// LoadedAt is when the policy was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// PolicyViolation represents a single policy violation.
type PolicyViolation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Subject is the offending binding, e.g. "resource Unit view bytes".
	Subject string `json:"subject"`

	// Resource is the resource or callback the input described.
	Resource string `json:"resource,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`
}

// PolicyResult represents the result of evaluating a model.
type PolicyResult struct {
	// Allowed is false when an error-severity violation was found.
	Allowed bool `json:"allowed"`

	// Violations lists all policy violations.
	Violations []PolicyViolation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// PolicyInput is the input document a policy sees.
type PolicyInput struct {
	// Kind is InputResource or InputCallback.
	Kind string `json:"kind"`

	Resource *engine.ResourceBinding        `json:"resource,omitempty"`
	Callback *engine.CallbackAdapterBinding `json:"callback,omitempty"`

	// Model summarizes the model the binding belongs to.
	Model *ModelSummary `json:"model"`

	Context *PolicyContext `json:"context"`
}

// ModelSummary is the part of a model visible to every evaluation.
type ModelSummary struct {
	Prefix    string   `json:"prefix,omitempty"`
	Resources []string `json:"resources"`
	Callbacks []string `json:"callbacks"`
	Disposal  []string `json:"disposal"`
}

// PolicyContext provides context information for policy evaluation.
type PolicyContext struct {
	// Plan is the plan name, when known.
	Plan string `json:"plan,omitempty"`

	// Strict is set when error violations are fatal.
	Strict bool `json:"strict"`

	// Timestamp is when the evaluation is occurring.
	Timestamp time.Time `json:"timestamp"`
}

// PolicyBundle represents a collection of related policies in one JSON file.
type PolicyBundle struct {
	// Name is the unique name of the bundle.
	Name string `json:"name"`

	// Version is the bundle version.
	Version string `json:"version"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Policies are the policies in this bundle.
	Policies []Policy `json:"policies"`
}
