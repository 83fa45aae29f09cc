package domain

// FilterCriteria is the full set of user-chosen filter dimensions for one pass.
// The core treats it as an immutable snapshot.
type FilterCriteria struct {
	SelectedRules     []RuleDefinition `json:"selectedRules,omitempty"`
	Search            string           `json:"search,omitempty"`
	SelectedDateRange DateRange        `json:"selectedDateRange"`
	Priority          RiskTier         `json:"priority,omitempty"`
	PriceRange        PriceRange       `json:"priceRange"`
	SelectedCurrency  []string         `json:"selectedCurrency,omitempty"`
}

// DateRange holds ISO dates (YYYY-MM-DD). Either bound may be empty.
type DateRange struct {
	Start string `json:"start,omitempty"`
	End   string `json:"end,omitempty"`
}

// PriceRange holds numeric strings. Empty or unparseable bounds are ignored.
type PriceRange struct {
	Min string `json:"min,omitempty"`
	Max string `json:"max,omitempty"`
}

// Page is one slice of an ordered result plus pagination metadata.
type Page struct {
	Items       []AnnotatedTransaction `json:"items"`
	CurrentPage int                    `json:"currentPage"`
	TotalPages  int                    `json:"totalPages"`
	PageSize    int                    `json:"pageSize"`
	Total       int                    `json:"total"`
}
