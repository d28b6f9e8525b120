package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for warnings that should be reviewed.
	SeverityWarning Severity = "warning"

	// SeverityError is for errors that should block operations.
	SeverityError Severity = "error"

	// SeverityCritical is for critical violations that must be addressed immediately.
	SeverityCritical Severity = "critical"
)

// Blocks reports whether the severity stops an operation.
func (s Severity) Blocks() bool {
	return s == SeverityError || s == SeverityCritical
}

// Operation is what the plan is about to be used for.
type Operation string

const (
	OperationPlan      Operation = "plan"
	OperationInstall   Operation = "install"
	OperationUninstall Operation = "uninstall"
)

// Policy represents a policy rule with its Rego code.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Metadata contains additional policy metadata.
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Violation is one member of a policy's deny set.
type Violation struct {
	// Policy is the name of the policy that was violated.
	Policy string `json:"policy"`

	// Action is the tag of the action the violation is about, if any.
	Action string `json:"action,omitempty"`

	// Message is a human-readable violation message.
	Message string `json:"message"`

	// Severity is the violation severity level.
	Severity Severity `json:"severity"`

	// Remediation provides suggested fixes.
	Remediation string `json:"remediation,omitempty"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any violation blocks.
	Allowed bool `json:"allowed"`

	// Violations lists every violation in policy name order.
	Violations []Violation `json:"violations,omitempty"`

	// Errors lists policies that failed to evaluate.
	Errors []string `json:"errors,omitempty"`

	// EvaluatedPolicies lists the names of policies that were evaluated.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// EvaluatedAt is when the policy was evaluated.
	EvaluatedAt time.Time `json:"evaluated_at"`

	// Duration is how long the evaluation took.
	Duration time.Duration `json:"duration"`
}

// Blocking returns the violations that stop the operation.
func (r *Result) Blocking() []Violation {
	var out []Violation
	for _, v := range r.Violations {
		if v.Severity.Blocks() {
			out = append(out, v)
		}
	}
	return out
}

// PlanInput is the document policies see as `input`.
type PlanInput struct {
	// Operation is what the plan is about to be used for.
	Operation Operation `json:"operation"`

	// Planner is the planner tag.
	Planner string `json:"planner"`

	// Version is the plan version.
	Version string `json:"version"`

	// Settings are every planner setting by name.
	Settings map[string]any `json:"settings"`

	// Actions are the plan's actions in execution order.
	Actions []ActionInput `json:"actions"`

	// User is the login running the installer.
	User string `json:"user,omitempty"`

	// Timestamp is when the input was built.
	Timestamp time.Time `json:"timestamp"`
}

// ActionInput describes one plan action.
type ActionInput struct {
	Index    int    `json:"index"`
	Tag      string `json:"tag"`
	State    string `json:"state"`
	Synopsis string `json:"synopsis"`

	// Action is the action's own JSON document.
	Action map[string]any `json:"action"`
}
