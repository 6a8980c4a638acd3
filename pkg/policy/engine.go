package policy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine compiles launch policies and evaluates them against requests.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*compiledPolicy
	logger   zerolog.Logger
}

type compiledPolicy struct {
	policy   *Policy
	query    rego.PreparedEvalQuery
	compiled time.Time
}

// NewEngine creates an engine preloaded with the built-in policies.
func NewEngine(logger zerolog.Logger) (*Engine, error) {
	e := &Engine{
		policies: make(map[string]*compiledPolicy),
		logger:   logger.With().Str("component", "policy").Logger(),
	}

	builtins := BuiltinPolicies()
	for i := range builtins {
		if err := e.compile(context.Background(), &builtins[i]); err != nil {
			return nil, fmt.Errorf("failed to compile built-in policy %s: %w", builtins[i].Name, err)
		}
	}
	return e, nil
}

// LoadPaths loads .rego files from the given files or directories. Loaded
// policies default to error severity and may override a built-in of the
// same name.
func (e *Engine) LoadPaths(ctx context.Context, paths []string) error {
	for _, path := range paths {
		files, err := collectRegoFiles(path)
		if err != nil {
			return err
		}
		for _, file := range files {
			raw, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("failed to read policy %s: %w", file, err)
			}
			p := &Policy{
				Name:     strings.TrimSuffix(filepath.Base(file), ".rego"),
				Severity: SeverityError,
				Enabled:  true,
				Rego:     string(raw),
			}
			if err := e.compile(ctx, p); err != nil {
				return fmt.Errorf("failed to compile policy %s: %w", file, err)
			}
		}
	}
	return nil
}

// Evaluate runs every enabled policy against input.
func (e *Engine) Evaluate(ctx context.Context, input *LaunchInput) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}

	for _, name := range e.sortedNames() {
		cp := e.policies[name]
		if !cp.policy.Enabled {
			continue
		}

		violations, err := e.evaluateOne(ctx, cp, input)
		if err != nil {
			e.logger.Error().Err(err).
				Str("policy", cp.policy.Name).
				Msg("Policy evaluation failed")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("policy %s evaluation failed: %v", cp.policy.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for i := range result.Violations {
		sev := result.Violations[i].Severity
		if sev == string(SeverityError) || sev == string(SeverityCritical) {
			result.Allowed = false
			break
		}
	}

	e.logger.Debug().
		Str("program", input.Program).
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Msg("Launch policy evaluation completed")

	return result, nil
}

// Policies returns the names of all registered policies, sorted.
func (e *Engine) Policies() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedNames()
}

func (e *Engine) sortedNames() []string {
	names := make([]string, 0, len(e.policies))
	for name := range e.policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (e *Engine) evaluateOne(ctx context.Context, cp *compiledPolicy, input *LaunchInput) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", packageNameOf(cp.policy.Rego))

	r := rego.New(
		rego.Module(cp.policy.Name, cp.policy.Rego),
		rego.Query(query),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation error: %w", err)
	}

	var violations []Violation
	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, makeViolation(cp.policy, d))
			}
		}
	}
	return violations, nil
}

func (e *Engine) compile(ctx context.Context, p *Policy) error {
	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query("data"),
	)
	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.policies[p.Name] = &compiledPolicy{policy: p, query: query, compiled: time.Now()}
	e.mu.Unlock()

	e.logger.Debug().Str("policy", p.Name).Msg("Policy compiled")
	return nil
}

// makeViolation normalizes a deny result into a Violation. Deny rules may
// emit a bare string or an object with message and severity fields.
func makeViolation(p *Policy, result any) Violation {
	v := Violation{Policy: p.Name, Severity: string(p.Severity)}

	switch val := result.(type) {
	case string:
		v.Message = val
	case map[string]any:
		if msg, ok := val["message"].(string); ok {
			v.Message = msg
		}
		if sev, ok := val["severity"].(string); ok {
			v.Severity = sev
		}
	default:
		v.Message = fmt.Sprintf("%v", result)
	}
	return v
}

func packageNameOf(source string) string {
	for _, line := range strings.Split(source, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "package ") {
			if parts := strings.Fields(trimmed); len(parts) >= 2 {
				return parts[1]
			}
		}
	}
	return "stagehand.policies"
}

func collectRegoFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat policy path %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(p, ".rego") {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan policy path %s: %w", path, err)
	}
	sort.Strings(files)
	return files, nil
}
