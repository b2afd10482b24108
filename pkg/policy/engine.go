package policy

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"

	"github.com/atriumhq/atrium/pkg/airlock"
)

// Engine evaluates airlock requests against the loaded policies.
type Engine struct {
	mu             sync.RWMutex
	policies       map[string]*compiledPolicy
	logger         zerolog.Logger
	maxExportFiles int
}

// compiledPolicy is a policy with its prepared deny query.
type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates a policy engine with the built-in policies loaded.
func NewEngine(logger zerolog.Logger, maxExportFiles int) (*Engine, error) {
	e := &Engine{
		policies:       make(map[string]*compiledPolicy),
		logger:         logger.With().Str("component", "policy-engine").Logger(),
		maxExportFiles: maxExportFiles,
	}

	for _, p := range BuiltinPolicies() {
		policy := p
		if err := e.compileAndStore(context.Background(), &policy); err != nil {
			return nil, fmt.Errorf("compiling built-in policy %s: %w", policy.Name, err)
		}
	}

	return e, nil
}

// EvaluateRequest evaluates every enabled policy against the request. The
// request is allowed unless a violation with error or critical severity is
// produced. A policy that fails to evaluate yields a warning, not a block.
func (e *Engine) EvaluateRequest(ctx context.Context, request *airlock.AirlockRequest) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	input := &RequestInput{
		Request: request,
		Context: &EvalContext{
			Timestamp:      time.Now(),
			MaxExportFiles: e.maxExportFiles,
		},
	}

	var violations []Violation
	var warnings []string

	for _, cp := range e.policies {
		if !cp.policy.Enabled {
			continue
		}

		found, err := e.evaluatePolicy(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Str("request_id", request.ID).
				Msg("policy evaluation failed")
			warnings = append(warnings, fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		violations = append(violations, found...)
	}

	allowed := true
	for i := range violations {
		if violations[i].Blocking() {
			allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("request_id", request.ID).
		Int("violations", len(violations)).
		Bool("allowed", allowed).
		Msg("request policy evaluation completed")

	return &Result{
		Allowed:     allowed,
		Violations:  violations,
		Warnings:    warnings,
		EvaluatedAt: time.Now(),
	}, nil
}

// evaluatePolicy runs one prepared deny query against the input.
func (e *Engine) evaluatePolicy(ctx context.Context, cp *compiledPolicy, input *RequestInput) ([]Violation, error) {
	results, err := cp.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, result := range results {
		for _, expr := range result.Expressions {
			denySet, ok := expr.Value.([]interface{})
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, makeViolation(cp.policy, d, input))
			}
		}
	}
	return violations, nil
}

// makeViolation builds a Violation from one deny result.
func makeViolation(policy *Policy, result interface{}, input *RequestInput) Violation {
	violation := Violation{
		Policy:   policy.Name,
		Severity: policy.Severity,
	}
	if input.Request != nil {
		violation.RequestID = input.Request.ID
	}

	switch v := result.(type) {
	case string:
		violation.Message = v
	case map[string]interface{}:
		if msg, ok := v["message"].(string); ok {
			violation.Message = msg
		}
		if sev, ok := v["severity"].(string); ok {
			violation.Severity = Severity(sev)
		}
		if req, ok := v["request"].(string); ok {
			violation.RequestID = req
		}
	default:
		violation.Message = fmt.Sprintf("%v", result)
	}

	return violation
}

// LoadPolicies loads and compiles additional policies from a directory of
// .rego files.
func (e *Engine) LoadPolicies(ctx context.Context, dir string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	policies, err := LoadFromDir(dir)
	if err != nil {
		return fmt.Errorf("loading policies: %w", err)
	}

	for i := range policies {
		if err := e.compileAndStore(ctx, &policies[i]); err != nil {
			return fmt.Errorf("compiling policy %s: %w", policies[i].Name, err)
		}
	}

	e.logger.Info().Int("count", len(policies)).Str("dir", dir).Msg("policies loaded")
	return nil
}

// compileAndStore prepares the policy's deny query and registers it.
func (e *Engine) compileAndStore(ctx context.Context, policy *Policy) error {
	query := fmt.Sprintf("data.%s.deny", packageName(policy.Rego))

	prepared, err := rego.New(
		rego.Module(policy.Name, policy.Rego),
		rego.Query(query),
	).PrepareForEval(ctx)
	if err != nil {
		return fmt.Errorf("preparing query: %w", err)
	}

	e.policies[policy.Name] = &compiledPolicy{
		policy:   policy,
		query:    prepared,
		compiled: time.Now(),
	}

	e.logger.Debug().Str("policy", policy.Name).Msg("policy compiled")
	return nil
}

// GetPolicy returns a policy by name.
func (e *Engine) GetPolicy(name string) (*Policy, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	cp, exists := e.policies[name]
	if !exists {
		return nil, fmt.Errorf("policy not found: %s", name)
	}
	return cp.policy, nil
}

// ListPolicies returns all loaded policies.
func (e *Engine) ListPolicies() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()

	policies := make([]Policy, 0, len(e.policies))
	for _, cp := range e.policies {
		policies = append(policies, *cp.policy)
	}
	return policies
}

// SetEnabled enables or disables a policy by name.
func (e *Engine) SetEnabled(name string, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	cp, exists := e.policies[name]
	if !exists {
		return fmt.Errorf("policy not found: %s", name)
	}
	cp.policy.Enabled = enabled
	e.logger.Info().Str("policy", name).Bool("enabled", enabled).Msg("policy toggled")
	return nil
}

// packageName extracts the package name from Rego code.
func packageName(regoSrc string) string {
	for _, line := range strings.Split(regoSrc, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			parts := strings.Fields(trimmed)
			if len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "atrium.policies"
}
