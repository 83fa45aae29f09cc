package rules

import (
	"encoding/json"
	"math"
	"sync"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	engine, err := NewEngine()
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

func rule(id string, sev domain.Severity) domain.RuleDefinition {
	return domain.RuleDefinition{RuleID: id, Name: id, Severity: sev}
}

func TestEngineCreation(t *testing.T) {
	engine := newTestEngine(t)

	if engine.RulesCount() != 7 {
		t.Errorf("expected 7 built-in rules, got %d", engine.RulesCount())
	}

	ids := engine.RuleIDs()
	if ids[0] != domain.RuleHighValue || ids[6] != domain.RuleLargeCashWithdrawal {
		t.Errorf("unexpected registration order: %v", ids)
	}
}

func TestCompileInvalidExpression(t *testing.T) {
	_, err := Compile([]Predicate{{RuleID: "bad", Expression: "this is not valid CEL !!!"}})
	if err == nil {
		t.Error("expected error for invalid CEL expression")
	}

	_, err = Compile([]Predicate{{RuleID: "num", Expression: "amount * 2.0"}})
	if err == nil {
		t.Error("expected error for non-bool expression")
	}
}

func TestBuiltinRules(t *testing.T) {
	engine := newTestEngine(t)

	tests := []struct {
		name      string
		ruleID    string
		raw       map[string]any
		triggered bool
	}{
		{"high value", domain.RuleHighValue, map[string]any{"amount": 1500.0}, true},
		{"high value boundary", domain.RuleHighValue, map[string]any{"amount": 1000.0}, false},
		{"high value numeric string", domain.RuleHighValue, map[string]any{"amount": "2500.75"}, true},
		{"high value string prefix", domain.RuleHighValue, map[string]any{"amount": "1200 USD"}, true},
		{"high value json number", domain.RuleHighValue, map[string]any{"amount": json.Number("1000.01")}, true},
		{"high value garbage", domain.RuleHighValue, map[string]any{"amount": "abc"}, false},
		{"high value nil", domain.RuleHighValue, map[string]any{"amount": nil}, false},
		{"high value NaN", domain.RuleHighValue, map[string]any{"amount": math.NaN()}, false},
		{"high value bool", domain.RuleHighValue, map[string]any{"amount": true}, false},
		{"count above", domain.RuleTransactionCount, map[string]any{"transaction_count": 6.0}, true},
		{"count at threshold", domain.RuleTransactionCount, map[string]any{"transaction_count": 5}, false},
		{"count truncates", domain.RuleTransactionCount, map[string]any{"transaction_count": "5.9"}, false},
		{"count missing", domain.RuleTransactionCount, map[string]any{}, false},
		{"count exponent", domain.RuleTransactionCount, map[string]any{"transaction_count": json.Number("1.2e1")}, true},
		{"count exponent fraction", domain.RuleTransactionCount, map[string]any{"transaction_count": json.Number("5.9e0")}, false},
		{"count huge exponent", domain.RuleTransactionCount, map[string]any{"transaction_count": json.Number("1e400")}, true},
		{"refund", domain.RuleUnusualType, map[string]any{"transaction_type": "Refund"}, true},
		{"chargeback", domain.RuleUnusualType, map[string]any{"transaction_type": "CHARGEBACK"}, true},
		{"purchase", domain.RuleUnusualType, map[string]any{"transaction_type": "purchase"}, false},
		{"type not string", domain.RuleUnusualType, map[string]any{"transaction_type": 7}, false},
		{"high risk country", domain.RuleHighRiskCountry, map[string]any{"merchant_country": "VEN"}, true},
		{"country case sensitive", domain.RuleHighRiskCountry, map[string]any{"merchant_country": "ven"}, false},
		{"safe country", domain.RuleHighRiskCountry, map[string]any{"merchant_country": "PAN"}, false},
		{"cross border", domain.RuleCrossBorderAmount, map[string]any{"currency": "USD", "amount": 600.0}, true},
		{"domestic", domain.RuleCrossBorderAmount, map[string]any{"currency": "PAB", "amount": 600.0}, false},
		{"cross border small", domain.RuleCrossBorderAmount, map[string]any{"currency": "USD", "amount": 500.0}, false},
		{"cross border no currency", domain.RuleCrossBorderAmount, map[string]any{"amount": 501.0}, true},
		{"late night", domain.RuleOffHours, map[string]any{"hour_of_day": 23}, true},
		{"early morning", domain.RuleOffHours, map[string]any{"hour_of_day": "5"}, true},
		{"hour 22", domain.RuleOffHours, map[string]any{"hour_of_day": 22.0}, false},
		{"hour 6", domain.RuleOffHours, map[string]any{"hour_of_day": 6}, false},
		{"hour missing", domain.RuleOffHours, map[string]any{}, false},
		{"hour exponent", domain.RuleOffHours, map[string]any{"hour_of_day": json.Number("1.0e1")}, false},
		{"hour exponent late", domain.RuleOffHours, map[string]any{"hour_of_day": json.Number("2.3E1")}, true},
		{"hour json integer", domain.RuleOffHours, map[string]any{"hour_of_day": json.Number("3")}, true},
		{"large withdrawal", domain.RuleLargeCashWithdrawal, map[string]any{"transaction_type": "Withdrawal", "amount": 1001.0}, true},
		{"small withdrawal", domain.RuleLargeCashWithdrawal, map[string]any{"transaction_type": "withdrawal", "amount": 999.0}, false},
		{"large deposit", domain.RuleLargeCashWithdrawal, map[string]any{"transaction_type": "deposit", "amount": 5000.0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			evals := engine.Evaluate(tt.raw, []domain.RuleDefinition{rule(tt.ruleID, domain.SeverityHigh)})
			if len(evals) != 1 {
				t.Fatalf("expected 1 evaluation, got %d", len(evals))
			}
			if evals[0].Triggered != tt.triggered {
				t.Errorf("expected triggered=%v, got %v", tt.triggered, evals[0].Triggered)
			}
		})
	}
}

func TestEvaluateUnknownRule(t *testing.T) {
	engine := newTestEngine(t)

	raw := map[string]any{"amount": 99999.0}
	evals := engine.Evaluate(raw, []domain.RuleDefinition{rule("RULE_999", domain.SeverityCritical)})

	if len(evals) != 1 {
		t.Fatalf("unknown rule must not be dropped, got %d evaluations", len(evals))
	}
	if evals[0].Triggered {
		t.Error("unknown rule must not trigger")
	}
	if evals[0].Condition != UnknownCondition {
		t.Errorf("expected %q, got %q", UnknownCondition, evals[0].Condition)
	}
	if len(evals[0].FeatureValues) != 0 {
		t.Errorf("expected empty feature values, got %v", evals[0].FeatureValues)
	}
}

func TestEvaluateSkipsMissingRuleID(t *testing.T) {
	engine := newTestEngine(t)

	rules := []domain.RuleDefinition{
		rule(domain.RuleHighValue, domain.SeverityHigh),
		{Name: "nameless"},
		rule(domain.RuleOffHours, domain.SeverityLow),
	}
	evals := engine.Evaluate(map[string]any{"amount": 5.0}, rules)

	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}
	if evals[0].RuleID != domain.RuleHighValue || evals[1].RuleID != domain.RuleOffHours {
		t.Errorf("order not preserved: %s, %s", evals[0].RuleID, evals[1].RuleID)
	}
}

func TestEvaluatePreservesOrderAndCatalogFields(t *testing.T) {
	engine := newTestEngine(t)

	rules := []domain.RuleDefinition{
		{RuleID: domain.RuleOffHours, Name: "Off hours", Action: "Review", Severity: domain.SeverityLow},
		{RuleID: domain.RuleHighValue, Name: "High value", Action: "Alert", Severity: domain.SeverityHigh},
	}
	raw := map[string]any{"amount": 2000.0, "hour_of_day": 3, "currency": "USD"}

	evals := engine.Evaluate(raw, rules)
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %d", len(evals))
	}

	first := evals[0]
	if first.RuleID != domain.RuleOffHours || first.Action != "Review" || !first.Triggered {
		t.Errorf("unexpected first evaluation: %+v", first)
	}
	if first.Condition != "hour_of_day > 22 OR hour_of_day < 6" {
		t.Errorf("unexpected condition %q", first.Condition)
	}
	if first.FeatureValues["hour_of_day"] != 3 {
		t.Errorf("expected hour_of_day snapshot, got %v", first.FeatureValues)
	}

	second := evals[1]
	if second.RuleID != domain.RuleHighValue || !second.Triggered {
		t.Errorf("unexpected second evaluation: %+v", second)
	}
	if _, ok := second.FeatureValues["currency"]; ok {
		t.Error("RULE_001 snapshot should only hold the fields it inspects")
	}
}

func TestEvaluateEmptyRules(t *testing.T) {
	engine := newTestEngine(t)

	evals := engine.Evaluate(map[string]any{"amount": 1.0}, nil)
	if evals == nil || len(evals) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", evals)
	}
}

func TestEvaluateDoesNotMutateRaw(t *testing.T) {
	engine := newTestEngine(t)

	raw := map[string]any{"amount": "1500", "transaction_type": "REFUND"}
	engine.Evaluate(raw, []domain.RuleDefinition{rule(domain.RuleHighValue, ""), rule(domain.RuleUnusualType, "")})

	if raw["amount"] != "1500" || raw["transaction_type"] != "REFUND" || len(raw) != 2 {
		t.Errorf("raw record mutated: %v", raw)
	}
}

func TestEvaluateConcurrent(t *testing.T) {
	engine := newTestEngine(t)
	catalog := FallbackCatalog()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			raw := map[string]any{"amount": float64(i * 100), "merchant_country": "COL"}
			evals := engine.Evaluate(raw, catalog)
			if len(evals) != 3 {
				t.Errorf("expected 3 evaluations, got %d", len(evals))
				return
			}
			if evals[0].Triggered != (i*100 > 1000) {
				t.Errorf("amount %d: wrong RULE_001 outcome", i*100)
			}
			if !evals[2].Triggered {
				t.Error("expected RULE_004 to trigger for COL")
			}
		}(i)
	}
	wg.Wait()
}

func TestCondition(t *testing.T) {
	engine := newTestEngine(t)

	cond, ok := engine.Condition(domain.RuleLargeCashWithdrawal)
	if !ok || cond != "large cash withdrawal" {
		t.Errorf("unexpected condition %q (%v)", cond, ok)
	}

	cond, ok = engine.Condition("RULE_404")
	if ok || cond != UnknownCondition {
		t.Errorf("unexpected condition for unknown rule %q (%v)", cond, ok)
	}
}
