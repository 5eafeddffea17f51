// Package policy gates blueprint submissions with OPA Rego policies. An
// engine starts with the built-in policies (host budget, provider and region
// allowlists) and can load custom .rego files; any error- or critical-level
// violation denies admission. Engines are constructed per process, never
// global.
package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/open-policy-agent/opa/rego"

	"github.com/rangeforge/rangeforge/pkg/blueprint"
	"github.com/rangeforge/rangeforge/pkg/telemetry"
)

// Engine evaluates blueprints against a set of compiled Rego policies.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	limits   Limits
	logger   *telemetry.Logger
}

// compiledPolicy pairs a policy with its prepared deny query.
type compiledPolicy struct {
	policy *Policy
	query  rego.PreparedEvalQuery
}

// NewEngine creates a policy engine with the built-in policies compiled.
func NewEngine(limits Limits, logger *telemetry.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		limits:   limits,
		logger:   logger.NewComponentLogger("policy"),
	}

	for _, p := range BuiltinPolicies() {
		if err := e.compile(context.Background(), p); err != nil {
			return nil, fmt.Errorf("compiling built-in policy %s: %w", p.Name, err)
		}
	}

	return e, nil
}

// LoadDir compiles every .rego file in dir as a custom policy. The file
// base name becomes the policy name.
func (e *Engine) LoadDir(ctx context.Context, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("reading policy directory: %w", err)
	}

	loaded := 0
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".rego" {
			continue
		}

		source, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return fmt.Errorf("reading policy file %s: %w", entry.Name(), err)
		}

		p := Policy{
			Name:     strings.TrimSuffix(entry.Name(), ".rego"),
			Severity: SeverityError,
			Enabled:  true,
			Rego:     string(source),
		}
		if err := e.compile(ctx, p); err != nil {
			return fmt.Errorf("compiling policy %s: %w", p.Name, err)
		}
		loaded++
	}

	e.logger.Infof("loaded %d custom policies from %s", loaded, dir)
	return nil
}

// compile prepares the policy's deny query and registers it.
func (e *Engine) compile(ctx context.Context, p Policy) error {
	query := fmt.Sprintf("data.%s.deny", packageName(p.Rego))

	prepared, err := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	policy := p
	e.policies[p.Name] = &compiledPolicy{policy: &policy, query: prepared}
	return nil
}

// Evaluate runs every enabled policy against a blueprint and a target
// region. An empty region skips region checks (blueprint-only validation).
func (e *Engine) Evaluate(ctx context.Context, bp *blueprint.Range, region string) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := buildInput(bp, region, e.limits)

	result := &Result{Allowed: true}
	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluateOne(ctx, cp, input)
		if err != nil {
			e.logger.WithError(err).Warnf("policy %s failed to evaluate", cp.policy.Name)
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("policy %s failed to evaluate: %v", cp.policy.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == string(SeverityError) || v.Severity == string(SeverityCritical) {
			result.Allowed = false
			break
		}
	}

	return result, nil
}

// Admit evaluates a blueprint and returns an error listing all violations
// when admission is denied. It satisfies the worker pool's admission hook.
func (e *Engine) Admit(ctx context.Context, bp *blueprint.Range, region string) error {
	result, err := e.Evaluate(ctx, bp, region)
	if err != nil {
		return err
	}
	if result.Allowed {
		return nil
	}

	messages := make([]string, 0, len(result.Violations))
	for _, v := range result.Violations {
		messages = append(messages, fmt.Sprintf("%s: %s", v.Policy, v.Message))
	}
	return fmt.Errorf("blueprint %q denied by policy: %s", bp.Name, strings.Join(messages, "; "))
}

// ListPolicies returns all registered policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// evaluateOne runs one prepared deny query.
func (e *Engine) evaluateOne(ctx context.Context, cp *compiledPolicy, input map[string]any) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, toViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

// toViolation converts one deny result into a Violation. String results and
// structured {message, severity} objects are both accepted.
func toViolation(p *Policy, result any) Violation {
	v := Violation{Policy: p.Name, Severity: string(p.Severity)}

	switch r := result.(type) {
	case string:
		v.Message = r
	case map[string]any:
		if msg, ok := r["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := r["severity"].(string); ok {
			v.Severity = sev
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

// buildInput assembles the evaluation input document.
func buildInput(bp *blueprint.Range, region string, limits Limits) map[string]any {
	return map[string]any{
		"blueprint": map[string]any{
			"name":       bp.Name,
			"provider":   bp.Provider,
			"vpc_count":  len(bp.VPCs),
			"host_count": bp.HostCount(),
		},
		"region": region,
		"limits": map[string]any{
			"max_hosts":         limits.MaxHosts,
			"allowed_providers": toAnySlice(limits.AllowedProviders),
			"allowed_regions":   toAnySlice(limits.AllowedRegions),
		},
	}
}

// packageName extracts the package declaration from Rego source.
func packageName(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "rangeforge.policies"
}

func toAnySlice(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
