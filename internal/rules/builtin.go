package rules

import "github.com/opensource-finance/kestrel/internal/domain"

// Predicate is one registered rule condition: a CEL expression over the coerced
// feature activation, plus the raw fields it inspects.
type Predicate struct {
	RuleID     string
	Condition  string
	Expression string
	Features   []string
}

// UnknownCondition is reported for rules with no registered predicate.
const UnknownCondition = "No condition defined"

// Builtins returns the seven built-in rule predicates.
func Builtins() []Predicate {
	return []Predicate{
		{
			RuleID:     domain.RuleHighValue,
			Condition:  "amount > 1000",
			Expression: `has_amount && amount > 1000.0`,
			Features:   []string{"amount"},
		},
		{
			RuleID:     domain.RuleTransactionCount,
			Condition:  "transaction_count > 5",
			Expression: `has_transaction_count && transaction_count > 5`,
			Features:   []string{"transaction_count"},
		},
		{
			RuleID:     domain.RuleUnusualType,
			Condition:  "unusual transaction type",
			Expression: `transaction_type in ["refund", "reversal", "chargeback"]`,
			Features:   []string{"transaction_type"},
		},
		{
			RuleID:     domain.RuleHighRiskCountry,
			Condition:  "high-risk merchant locations",
			Expression: `merchant_country in ["COL", "VEN", "NIC"]`,
			Features:   []string{"merchant_country"},
		},
		{
			RuleID:     domain.RuleCrossBorderAmount,
			Condition:  "cross-border transaction with high amount",
			Expression: `currency != "PAB" && has_amount && amount > 500.0`,
			Features:   []string{"amount", "currency"},
		},
		{
			RuleID:     domain.RuleOffHours,
			Condition:  "hour_of_day > 22 OR hour_of_day < 6",
			Expression: `has_hour_of_day && (hour_of_day > 22 || hour_of_day < 6)`,
			Features:   []string{"hour_of_day"},
		},
		{
			RuleID:     domain.RuleLargeCashWithdrawal,
			Condition:  "large cash withdrawal",
			Expression: `transaction_type == "withdrawal" && has_amount && amount > 1000.0`,
			Features:   []string{"amount", "transaction_type"},
		},
	}
}
