package policy

// BuiltinPolicies returns the admission policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		hostBudgetPolicy(),
		providerAllowlistPolicy(),
		regionAllowlistPolicy(),
	}
}

// hostBudgetPolicy denies blueprints that declare more hosts than the
// configured budget.
func hostBudgetPolicy() Policy {
	return Policy{
		Name:        "host-budget",
		Description: "Denies blueprints whose total host count exceeds the configured budget",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package rangeforge.policies.budget

import rego.v1

deny contains violation if {
	input.limits.max_hosts > 0
	input.blueprint.host_count > input.limits.max_hosts
	violation := {
		"message": sprintf("blueprint %q declares %d hosts, budget is %d", [input.blueprint.name, input.blueprint.host_count, input.limits.max_hosts]),
		"severity": "error",
	}
}
`,
	}
}

// providerAllowlistPolicy denies blueprints targeting providers outside the
// configured allowlist.
func providerAllowlistPolicy() Policy {
	return Policy{
		Name:        "provider-allowlist",
		Description: "Denies blueprints targeting a provider outside the allowlist",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package rangeforge.policies.providers

import rego.v1

deny contains violation if {
	count(input.limits.allowed_providers) > 0
	not input.blueprint.provider in input.limits.allowed_providers
	violation := {
		"message": sprintf("provider %q is not in the allowlist %v", [input.blueprint.provider, input.limits.allowed_providers]),
		"severity": "error",
	}
}
`,
	}
}

// regionAllowlistPolicy denies deployments targeting regions outside the
// configured allowlist. Blueprint-only evaluations pass an empty region and
// are not affected.
func regionAllowlistPolicy() Policy {
	return Policy{
		Name:        "region-allowlist",
		Description: "Denies deployments targeting a region outside the allowlist",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package rangeforge.policies.regions

import rego.v1

deny contains violation if {
	input.region != ""
	count(input.limits.allowed_regions) > 0
	not input.region in input.limits.allowed_regions
	violation := {
		"message": sprintf("region %q is not in the allowlist %v", [input.region, input.limits.allowed_regions]),
		"severity": "error",
	}
}
`,
	}
}
