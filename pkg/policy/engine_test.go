package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/telemetry"
)

func testLogger(t *testing.T) *telemetry.Logger {
	t.Helper()
	logger, err := telemetry.NewLogger(telemetry.LoggingConfig{Level: "error"}, nil)
	if err != nil {
		t.Fatalf("creating logger: %v", err)
	}
	return logger
}

func testEngine(t *testing.T, limits Limits) *Engine {
	t.Helper()
	engine, err := NewEngine(limits, testLogger(t))
	if err != nil {
		t.Fatalf("creating policy engine: %v", err)
	}
	return engine
}

// rangeWithHosts builds a blueprint declaring n hosts on one subnet.
func rangeWithHosts(provider string, n int) *blueprint.Range {
	hosts := make([]blueprint.Host, n)
	for i := range hosts {
		hosts[i] = blueprint.Host{Hostname: "h", OS: "ubuntu-22.04", Size: "small"}
	}
	return &blueprint.Range{
		Name:     "lab",
		Provider: provider,
		VPCs: []blueprint.VPC{
			{
				Name:    "main",
				CIDR:    "10.0.0.0/16",
				Subnets: []blueprint.Subnet{{Name: "a", CIDR: "10.0.1.0/24", Hosts: hosts}},
			},
		},
	}
}

func TestHostBudgetDenies(t *testing.T) {
	engine := testEngine(t, Limits{MaxHosts: 5})

	result, err := engine.Evaluate(context.Background(), rangeWithHosts("aws", 6), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected blueprint over the host budget to be denied")
	}
	if len(result.Violations) != 1 || result.Violations[0].Policy != "host-budget" {
		t.Errorf("unexpected violations: %+v", result.Violations)
	}

	result, err = engine.Evaluate(context.Background(), rangeWithHosts("aws", 5), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("blueprint within budget was denied: %+v", result.Violations)
	}
}

func TestHostBudgetDisabledByZero(t *testing.T) {
	engine := testEngine(t, Limits{})

	result, err := engine.Evaluate(context.Background(), rangeWithHosts("aws", 500), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("zero budget should disable the check: %+v", result.Violations)
	}
}

func TestProviderAllowlist(t *testing.T) {
	engine := testEngine(t, Limits{AllowedProviders: []string{"aws", "azure"}})

	result, err := engine.Evaluate(context.Background(), rangeWithHosts("digitalocean", 1), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected provider outside the allowlist to be denied")
	}

	result, err = engine.Evaluate(context.Background(), rangeWithHosts("azure", 1), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("allowlisted provider was denied: %+v", result.Violations)
	}
}

func TestRegionAllowlist(t *testing.T) {
	engine := testEngine(t, Limits{AllowedRegions: []string{"us-east-1", "eu-west-1"}})

	result, err := engine.Evaluate(context.Background(), rangeWithHosts("aws", 1), "ap-southeast-9")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected region outside the allowlist to be denied")
	}

	// Blueprint-only validation passes no region and is unaffected.
	result, err = engine.Evaluate(context.Background(), rangeWithHosts("aws", 1), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !result.Allowed {
		t.Errorf("empty region should skip the region check: %+v", result.Violations)
	}
}

func TestAdmitListsAllViolations(t *testing.T) {
	engine := testEngine(t, Limits{
		MaxHosts:         1,
		AllowedProviders: []string{"aws"},
	})

	err := engine.Admit(context.Background(), rangeWithHosts("gcp", 3), "")
	if err == nil {
		t.Fatal("expected admission to be denied")
	}
	if !strings.Contains(err.Error(), "host-budget") || !strings.Contains(err.Error(), "provider-allowlist") {
		t.Errorf("deny error does not list all violations: %v", err)
	}
}

func TestLoadDirCustomPolicy(t *testing.T) {
	dir := t.TempDir()
	custom := `package rangeforge.policies.naming

import rego.v1

deny contains violation if {
	not startswith(input.blueprint.name, "lab-")
	violation := {
		"message": sprintf("blueprint name %q must start with lab-", [input.blueprint.name]),
		"severity": "error",
	}
}
`
	if err := os.WriteFile(filepath.Join(dir, "naming.rego"), []byte(custom), 0o644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	engine := testEngine(t, Limits{})
	if err := engine.LoadDir(context.Background(), dir); err != nil {
		t.Fatalf("LoadDir failed: %v", err)
	}

	result, err := engine.Evaluate(context.Background(), rangeWithHosts("aws", 1), "")
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if result.Allowed {
		t.Fatal("expected custom naming policy to deny")
	}
	found := false
	for _, v := range result.Violations {
		if v.Policy == "naming" {
			found = true
		}
	}
	if !found {
		t.Errorf("custom policy violation missing: %+v", result.Violations)
	}
}

func TestMalformedPolicyRejectedAtLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.rego"), []byte("this is not rego"), 0o644); err != nil {
		t.Fatalf("writing policy file: %v", err)
	}

	engine := testEngine(t, Limits{})
	if err := engine.LoadDir(context.Background(), dir); err == nil {
		t.Fatal("expected malformed policy to fail compilation")
	}
}
