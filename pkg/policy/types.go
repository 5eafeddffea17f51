package policy

// Severity classifies how a violation affects admission. Error and critical
// violations deny; warnings surface without blocking.
type Severity string

const (
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Policy is one Rego admission policy. The Rego document's deny rule yields
// the violations.
type Policy struct {
	// Name identifies the policy; also the Rego module name.
	Name string `json:"name"`

	// Description explains what the policy enforces.
	Description string `json:"description"`

	// Severity is the default severity for violations that do not carry
	// their own.
	Severity Severity `json:"severity"`

	// Enabled controls whether the policy participates in evaluation.
	Enabled bool `json:"enabled"`

	// Rego is the policy source.
	Rego string `json:"rego"`
}

// Violation is one admission policy failure.
type Violation struct {
	// Policy is the name of the policy that produced the violation.
	Policy string `json:"policy"`

	// Severity is the violation severity.
	Severity string `json:"severity"`

	// Message describes the violation.
	Message string `json:"message"`
}

// Result is the outcome of evaluating a blueprint against all enabled
// policies.
type Result struct {
	// Allowed is false when any error or critical violation was produced.
	Allowed bool `json:"allowed"`

	// Violations lists every violation from every enabled policy.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate. Evaluation errors
	// never admit by accident, they only warn, because the deny rules that
	// did run still decide.
	Warnings []string `json:"warnings,omitempty"`
}

// Limits parameterize the built-in policies.
type Limits struct {
	// MaxHosts caps the total host count per blueprint. Zero disables the
	// budget check.
	MaxHosts int `json:"max_hosts" yaml:"max_hosts"`

	// AllowedProviders restricts which providers blueprints may target.
	// Empty allows all.
	AllowedProviders []string `json:"allowed_providers" yaml:"allowed_providers"`

	// AllowedRegions restricts which regions deployments may target. Empty
	// allows all.
	AllowedRegions []string `json:"allowed_regions" yaml:"allowed_regions"`
}
