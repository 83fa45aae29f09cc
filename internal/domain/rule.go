package domain

import "strings"

// Severity is the declared severity of a catalog rule.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Normalize returns the lower-cased, trimmed form of the severity.
func (s Severity) Normalize() Severity {
	return Severity(strings.ToLower(strings.TrimSpace(string(s))))
}

// RuleDefinition is one entry of the rule catalog.
// Definitions are loaded once per dataset and never mutated afterwards.
type RuleDefinition struct {
	RuleID      string   `json:"rule_id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Action      string   `json:"action"`
	Severity    Severity `json:"severity"`
}

// RuleEvaluation is the outcome of evaluating one rule against one transaction.
// It carries the catalog fields of the rule so consumers can render it directly.
type RuleEvaluation struct {
	RuleID        string         `json:"rule_id"`
	Name          string         `json:"name,omitempty"`
	Description   string         `json:"description,omitempty"`
	Action        string         `json:"action,omitempty"`
	Severity      Severity       `json:"severity,omitempty"`
	Condition     string         `json:"condition"`
	Triggered     bool           `json:"triggered"`
	FeatureValues map[string]any `json:"featureValues"`
}

// Predefined rule identifiers for the built-in conditions.
const (
	RuleHighValue           = "RULE_001"
	RuleTransactionCount    = "RULE_002"
	RuleUnusualType         = "RULE_003"
	RuleHighRiskCountry     = "RULE_004"
	RuleCrossBorderAmount   = "RULE_005"
	RuleOffHours            = "RULE_006"
	RuleLargeCashWithdrawal = "RULE_007"
)
