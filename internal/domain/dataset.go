package domain

import "time"

// Dataset is the base data a session reviews: the normalized transactions and the
// rule catalog they are evaluated against. A fresh load replaces it whole.
type Dataset struct {
	// ID changes on every load. Memoized evaluations are scoped by it.
	ID           string           `json:"id"`
	Transactions []Transaction    `json:"-"`
	Rules        []RuleDefinition `json:"rules"`

	// Loaded is false when the transaction feed could not be fetched or parsed.
	Loaded bool `json:"loaded"`

	// FallbackRules is true when the catalog fetch failed and the built-in
	// fallback catalog was substituted.
	FallbackRules bool `json:"fallbackRules"`

	TransactionsError string    `json:"transactionsError,omitempty"`
	RulesError        string    `json:"rulesError,omitempty"`
	Dropped           int       `json:"dropped"`
	LoadedAt          time.Time `json:"loadedAt"`
}

// Rule returns the catalog entry with the given id.
func (d *Dataset) Rule(ruleID string) (RuleDefinition, bool) {
	for _, r := range d.Rules {
		if r.RuleID == ruleID {
			return r, true
		}
	}
	return RuleDefinition{}, false
}

// LoadState is the readiness of a session's dataset.
type LoadState string

const (
	StateLoading LoadState = "loading"
	StateReady   LoadState = "ready"
	StateFailed  LoadState = "failed"
)
