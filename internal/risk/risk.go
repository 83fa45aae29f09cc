// Package risk derives a transaction's risk tier from its triggered rules.
// Risk is always assessed against the full catalog, independent of any rule
// selection, so it stays stable for the lifetime of a dataset.
package risk

import (
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Evaluator is the subset of rules.Engine the assessor needs.
type Evaluator interface {
	Evaluate(raw map[string]any, rules []domain.RuleDefinition) []domain.RuleEvaluation
}

// Assessor classifies transactions against a fixed catalog.
type Assessor struct {
	evaluator Evaluator
	catalog   []domain.RuleDefinition
}

// NewAssessor creates an assessor over the given catalog.
func NewAssessor(evaluator Evaluator, catalog []domain.RuleDefinition) *Assessor {
	return &Assessor{
		evaluator: evaluator,
		catalog:   catalog,
	}
}

// Assess evaluates the full catalog against raw and reduces it to a tier.
func (a *Assessor) Assess(raw map[string]any) domain.RiskTier {
	return FromEvaluations(a.evaluator.Evaluate(raw, a.catalog))
}

// Catalog returns the catalog the assessor evaluates.
func (a *Assessor) Catalog() []domain.RuleDefinition {
	return a.catalog
}

// Summary holds the aggregated view of one evaluation pass.
type Summary struct {
	Tier            domain.RiskTier
	RulesEvaluated  int
	RulesTriggered  int
	HighestSeverity domain.Severity
}

// Summarize aggregates evaluations into a Summary.
// Severity comparison is case-insensitive.
func Summarize(evals []domain.RuleEvaluation) Summary {
	s := Summary{RulesEvaluated: len(evals)}

	best := 0
	for _, e := range evals {
		if !e.Triggered {
			continue
		}
		s.RulesTriggered++

		sev := e.Severity.Normalize()
		if r := severityRank(sev); r > best {
			best = r
			s.HighestSeverity = sev
		}
	}

	switch s.HighestSeverity {
	case domain.SeverityCritical, domain.SeverityHigh:
		s.Tier = domain.RiskHigh
	case domain.SeverityMedium:
		s.Tier = domain.RiskMedium
	default:
		// low severity and no triggered rule both land here
		s.Tier = domain.RiskLow
	}

	return s
}

// FromEvaluations reduces evaluations to a risk tier: any triggered critical or
// high rule gives high, else any medium gives medium, else low.
func FromEvaluations(evals []domain.RuleEvaluation) domain.RiskTier {
	return Summarize(evals).Tier
}

// Reasons returns the names of the triggered rules, in evaluation order.
func Reasons(evals []domain.RuleEvaluation) []string {
	var reasons []string
	for _, e := range evals {
		if !e.Triggered {
			continue
		}
		if e.Name != "" {
			reasons = append(reasons, e.Name)
		} else {
			reasons = append(reasons, e.RuleID)
		}
	}
	return reasons
}

func severityRank(s domain.Severity) int {
	switch s {
	case domain.SeverityCritical:
		return 4
	case domain.SeverityHigh:
		return 3
	case domain.SeverityMedium:
		return 2
	case domain.SeverityLow:
		return 1
	default:
		return 0
	}
}
