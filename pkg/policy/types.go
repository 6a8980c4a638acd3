package policy

import "time"

// Severity classifies how serious a violation is.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is a named Rego module evaluated against launch requests.
type Policy struct {
	// Name identifies the policy in violations and logs.
	Name string `json:"name"`

	// Description explains what the policy enforces.
	Description string `json:"description,omitempty"`

	// Severity is the default severity for violations that do not carry
	// their own.
	Severity Severity `json:"severity"`

	// Enabled controls whether the policy is evaluated.
	Enabled bool `json:"enabled"`

	// Rego is the policy source. Its deny rule is queried.
	Rego string `json:"rego"`
}

// PackageInfo is the resolved identity of one package in a launch.
type PackageInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// LaunchInput is the document policies evaluate.
type LaunchInput struct {
	// Program is the executable about to be started.
	Program string `json:"program"`

	// Args are the program arguments, excluding the program itself.
	Args []string `json:"args"`

	// Cwd is the working directory of the launch.
	Cwd string `json:"cwd,omitempty"`

	// Packages lists every package in the resolved environment.
	Packages []PackageInfo `json:"packages"`

	// Env is the composed environment the program will see.
	Env map[string]string `json:"env"`
}

// Violation is one deny result from a policy.
type Violation struct {
	Policy   string `json:"policy"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Result is the outcome of evaluating all policies for a launch.
type Result struct {
	// Allowed is false when any violation is error severity or above.
	Allowed bool `json:"allowed"`

	// Violations collects deny results across all policies.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}
