package rules

import (
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func TestFallbackCatalog(t *testing.T) {
	catalog := FallbackCatalog()

	if len(catalog) != 3 {
		t.Fatalf("expected 3 fallback rules, got %d", len(catalog))
	}

	want := map[string]domain.Severity{
		domain.RuleHighValue:        domain.SeverityHigh,
		domain.RuleTransactionCount: domain.SeverityMedium,
		domain.RuleHighRiskCountry:  domain.SeverityCritical,
	}
	for _, r := range catalog {
		if want[r.RuleID] != r.Severity {
			t.Errorf("%s: expected severity %s, got %s", r.RuleID, want[r.RuleID], r.Severity)
		}
	}
}

func TestNormalizeCatalog(t *testing.T) {
	in := []domain.RuleDefinition{
		{RuleID: "A", Severity: "Critical"},
		{RuleID: "B", Severity: " HIGH "},
	}

	out := NormalizeCatalog(in)

	if out[0].Severity != domain.SeverityCritical || out[1].Severity != domain.SeverityHigh {
		t.Errorf("severities not normalized: %+v", out)
	}
	if in[0].Severity != "Critical" {
		t.Error("input catalog must not be modified")
	}
}

func TestSelect(t *testing.T) {
	catalog := FallbackCatalog()

	t.Run("keeps requested order", func(t *testing.T) {
		selected, unknown := Select([]string{domain.RuleHighRiskCountry, domain.RuleHighValue}, catalog)
		if len(unknown) != 0 {
			t.Errorf("unexpected unknown ids: %v", unknown)
		}
		if len(selected) != 2 || selected[0].RuleID != domain.RuleHighRiskCountry {
			t.Errorf("unexpected selection: %+v", selected)
		}
		if selected[0].Severity != domain.SeverityCritical {
			t.Error("selection should carry catalog fields")
		}
	})

	t.Run("drops unknown and duplicate ids", func(t *testing.T) {
		selected, unknown := Select([]string{"RULE_404", domain.RuleHighValue, domain.RuleHighValue, ""}, catalog)
		if len(selected) != 1 {
			t.Errorf("expected 1 selected rule, got %d", len(selected))
		}
		if len(unknown) != 1 || unknown[0] != "RULE_404" {
			t.Errorf("expected RULE_404 reported unknown, got %v", unknown)
		}
	})
}

func TestToEvaluate(t *testing.T) {
	catalog := FallbackCatalog()

	if got := ToEvaluate(nil, catalog); len(got) != 3 {
		t.Errorf("empty selection should evaluate the catalog, got %d rules", len(got))
	}

	selected := catalog[:1]
	if got := ToEvaluate(selected, catalog); len(got) != 1 {
		t.Errorf("selection should be evaluated alone, got %d rules", len(got))
	}
}
