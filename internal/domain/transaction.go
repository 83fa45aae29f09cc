package domain

// Transaction is the canonical record produced by the normalizer.
type Transaction struct {
	ID        string  `json:"id"`
	Amount    float64 `json:"amount"`
	Sender    string  `json:"sender"`
	Receiver  string  `json:"receiver"`
	Timestamp string  `json:"timestamp"`
	Currency  string  `json:"currency"`
	Type      string  `json:"type"`
	City      string  `json:"city"`
	Country   string  `json:"country"`

	// Raw is the untouched source record. Rule predicates read their features from it.
	Raw map[string]any `json:"raw"`
}

// RiskTier is the coarse classification derived from triggered rules.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Rank orders tiers for sorting: high=3, medium=2, low=1, anything else 0.
func (r RiskTier) Rank() int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// AnnotatedTransaction is a Transaction plus the results of rule evaluation.
// It is a projection: recomputed whenever the selection or the dataset changes.
type AnnotatedTransaction struct {
	Transaction

	Risk                RiskTier         `json:"risk"`
	EvaluatedRules      []RuleEvaluation `json:"evaluatedRules"`
	TriggeredRulesCount int              `json:"triggeredRulesCount"`
	HasTriggeredRules   bool             `json:"hasTriggeredRules"`
}
