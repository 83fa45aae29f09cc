package rules

import (
	"log/slog"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// FallbackCatalog is substituted when the rule catalog cannot be loaded.
func FallbackCatalog() []domain.RuleDefinition {
	return []domain.RuleDefinition{
		{
			RuleID:      domain.RuleHighValue,
			Name:        "High Value Transaction Alert",
			Description: "Flag transactions with an amount greater than a specified threshold.",
			Action:      "Alert",
			Severity:    domain.SeverityHigh,
		},
		{
			RuleID:      domain.RuleTransactionCount,
			Name:        "Multiple Small Transactions in Short Period",
			Description: "Identify users with a high frequency of small transactions within a short time frame.",
			Action:      "Review",
			Severity:    domain.SeverityMedium,
		},
		{
			RuleID:      domain.RuleHighRiskCountry,
			Name:        "Transaction to High-Risk Merchant",
			Description: "Alert on transactions made to merchants identified as high-risk.",
			Action:      "Block",
			Severity:    domain.SeverityCritical,
		},
	}
}

// NormalizeCatalog returns a copy of the catalog with severities lower-cased.
func NormalizeCatalog(catalog []domain.RuleDefinition) []domain.RuleDefinition {
	out := make([]domain.RuleDefinition, len(catalog))
	for i, r := range catalog {
		r.Severity = r.Severity.Normalize()
		out[i] = r
	}
	return out
}

// Select resolves rule ids against the catalog, keeping the order of ids.
// Ids not present in the catalog are dropped with a warning and returned in unknown.
func Select(ids []string, catalog []domain.RuleDefinition) (selected []domain.RuleDefinition, unknown []string) {
	index := make(map[string]domain.RuleDefinition, len(catalog))
	for _, r := range catalog {
		index[r.RuleID] = r
	}

	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true

		r, ok := index[id]
		if !ok {
			slog.Warn("selected rule not in catalog", "rule_id", id)
			unknown = append(unknown, id)
			continue
		}
		selected = append(selected, r)
	}
	return selected, unknown
}

// ToEvaluate returns the selected rules when any are selected, else the catalog.
func ToEvaluate(selected, catalog []domain.RuleDefinition) []domain.RuleDefinition {
	if len(selected) > 0 {
		return selected
	}
	return catalog
}
