// Package rules provides the CEL-Go based red-flag engine and the discrete
// score ladders used by the scorecard.
package rules

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/underwriter/internal/domain"
)

// Engine evaluates red-flag expressions against statement rows.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   []*CompiledRule
	maxWorkers int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Config  domain.RedFlagRule
	Program cel.Program
}

// Result is one rule's outcome over a whole statement.
type Result struct {
	Rule    domain.RedFlagRule
	Matches []domain.RuleMatch

	// Points is the capped deduction.
	Points int
}

// NewEngine creates a red-flag engine with no rules loaded.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	env, err := cel.NewEnv(
		cel.Variable("description", cel.StringType),
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("category", cel.StringType),
		cel.Variable("direction", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{env: env, maxWorkers: maxWorkers}, nil
}

// NewDefaultEngine creates an engine loaded with BuiltinRules.
func NewDefaultEngine() (*Engine, error) {
	e, err := NewEngine(0)
	if err != nil {
		return nil, err
	}
	if err := e.LoadRules(BuiltinRules()); err != nil {
		return nil, err
	}
	return e, nil
}

// ValidateRule compiles a rule without touching the loaded set.
func (e *Engine) ValidateRule(rule *domain.RedFlagRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}
	_, err := e.compileRule(*rule)
	return err
}

// LoadRules replaces the loaded rules. Disabled rules are skipped and order
// is preserved. On error the previous set stays loaded.
func (e *Engine) LoadRules(rules []domain.RedFlagRule) error {
	compiled := make([]*CompiledRule, 0, len(rules))
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		c, err := e.compileRule(r)
		if err != nil {
			return err
		}
		compiled = append(compiled, c)
	}

	e.mu.Lock()
	e.compiled = compiled
	e.mu.Unlock()
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Rules returns the loaded rule configurations in evaluation order.
func (e *Engine) Rules() []domain.RedFlagRule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]domain.RedFlagRule, len(e.compiled))
	for i, c := range e.compiled {
		out[i] = c.Config
	}
	return out
}

// Evaluate runs every loaded rule over rows, one worker per rule, and
// returns results in rule order.
func (e *Engine) Evaluate(ctx context.Context, rows []domain.ClassifiedTransaction) ([]Result, error) {
	e.mu.RLock()
	rules := e.compiled
	e.mu.RUnlock()

	if len(rules) == 0 || len(rows) == 0 {
		return nil, nil
	}

	activations := make([]map[string]any, len(rows))
	for i := range rows {
		activations[i] = map[string]any{
			"description": rows[i].Description,
			"amount":      rows[i].Amount,
			"category":    string(rows[i].Classification.Category),
			"direction":   string(rows[i].Direction),
		}
	}

	results := make([]Result, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(ctx, r, rows, activations)
		}(i, rule)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, rows []domain.ClassifiedTransaction, activations []map[string]any) Result {
	res := Result{Rule: rule.Config}
	for i, act := range activations {
		if ctx.Err() != nil {
			return res
		}
		out, _, err := rule.Program.Eval(act)
		if err != nil {
			slog.Debug("red-flag rule evaluation failed", "rule_id", rule.Config.ID, "error", err)
			continue
		}
		if !matched(out) {
			continue
		}
		res.Matches = append(res.Matches, domain.RuleMatch{
			RuleID:      rule.Config.ID,
			Description: rows[i].Description,
			Amount:      rows[i].Amount,
			Date:        rows[i].Day().Format(domain.DateLayout),
		})
	}
	res.Points = min(len(res.Matches)*rule.Config.Points, rule.Config.Cap())
	return res
}

// matched converts a CEL value to a hit.
func matched(val ref.Val) bool {
	v, ok := val.(types.Bool)
	return ok && bool(v)
}

// Close unloads all rules.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = nil
	return nil
}

func (e *Engine) compileRule(rule domain.RedFlagRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Config: rule, Program: program}, nil
}
