// Package rules provides the CEL-Go based rule evaluation engine.
package rules

import (
	"fmt"
	"log/slog"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine evaluates catalog rules against raw transaction records.
// The registry is compiled once and read-only afterwards, so an Engine is safe
// for concurrent use and its results can be memoized.
type Engine struct {
	env      *cel.Env
	registry map[string]*CompiledRule
	order    []string
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Predicate Predicate
	Program   cel.Program
}

// NewEngine creates an engine with the built-in predicates.
func NewEngine() (*Engine, error) {
	return Compile(Builtins())
}

// Compile creates an engine from the given predicates.
func Compile(preds []Predicate) (*Engine, error) {
	env, err := newEnv()
	if err != nil {
		return nil, err
	}

	e := &Engine{
		env:      env,
		registry: make(map[string]*CompiledRule, len(preds)),
	}
	for _, p := range preds {
		compiled, err := e.compileRule(p)
		if err != nil {
			return nil, err
		}
		if _, dup := e.registry[p.RuleID]; !dup {
			e.order = append(e.order, p.RuleID)
		}
		e.registry[p.RuleID] = compiled
	}
	return e, nil
}

func newEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("has_amount", cel.BoolType),
		cel.Variable("transaction_count", cel.IntType),
		cel.Variable("has_transaction_count", cel.BoolType),
		cel.Variable("hour_of_day", cel.IntType),
		cel.Variable("has_hour_of_day", cel.BoolType),
		cel.Variable("transaction_type", cel.StringType),
		cel.Variable("merchant_country", cel.StringType),
		cel.Variable("currency", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// Evaluate evaluates rules against one raw record, in input order.
// Rules without a rule_id are skipped. Rules with no registered predicate are
// reported as not triggered with UnknownCondition.
func (e *Engine) Evaluate(raw map[string]any, rules []domain.RuleDefinition) []domain.RuleEvaluation {
	if len(rules) == 0 {
		return []domain.RuleEvaluation{}
	}

	act := activation(raw)
	results := make([]domain.RuleEvaluation, 0, len(rules))

	for _, rule := range rules {
		if rule.RuleID == "" {
			slog.Warn("skipping rule without rule_id", "name", rule.Name)
			continue
		}

		result := domain.RuleEvaluation{
			RuleID:        rule.RuleID,
			Name:          rule.Name,
			Description:   rule.Description,
			Action:        rule.Action,
			Severity:      rule.Severity,
			Condition:     UnknownCondition,
			FeatureValues: map[string]any{},
		}

		compiled, ok := e.registry[rule.RuleID]
		if ok {
			result.Condition = compiled.Predicate.Condition
			result.Triggered = evaluateRule(compiled, act)
			for _, f := range compiled.Predicate.Features {
				result.FeatureValues[f] = raw[f]
			}
		}

		results = append(results, result)
	}

	return results
}

// evaluateRule runs one program. Evaluation errors count as not triggered.
func evaluateRule(rule *CompiledRule, act map[string]any) bool {
	out, _, err := rule.Program.Eval(act)
	if err != nil {
		slog.Debug("rule evaluation error", "rule_id", rule.Predicate.RuleID, "error", err)
		return false
	}
	b, ok := out.(types.Bool)
	return ok && bool(b)
}

// Condition returns the condition text registered for a rule id.
func (e *Engine) Condition(ruleID string) (string, bool) {
	compiled, ok := e.registry[ruleID]
	if !ok {
		return UnknownCondition, false
	}
	return compiled.Predicate.Condition, true
}

// RuleIDs returns the registered rule ids in registration order.
func (e *Engine) RuleIDs() []string {
	out := make([]string, len(e.order))
	copy(out, e.order)
	return out
}

// RulesCount returns the number of registered predicates.
func (e *Engine) RulesCount() int {
	return len(e.registry)
}

func (e *Engine) compileRule(p Predicate) (*CompiledRule, error) {
	ast, issues := e.env.Compile(p.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", p.RuleID, issues.Err())
	}

	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", p.RuleID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", p.RuleID, err)
	}

	return &CompiledRule{
		Predicate: p,
		Program:   program,
	}, nil
}
