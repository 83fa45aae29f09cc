// Package filter applies FilterCriteria to annotated transactions.
//
// Stages run in a fixed order, each over the output of the previous one:
// rule-match partition and sort, free-text search, date range, priority,
// price range, currency set. The input slice is never modified.
package filter

import (
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// Option configures a pipeline run.
type Option func(*options)

type options struct {
	loc *time.Location
}

// WithLocation derives calendar dates for the date stage in loc.
// Without it, dates are taken as written in the timestamp.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		o.loc = loc
	}
}

// Apply runs the pipeline and returns a new ordered slice.
// Repeated calls with the same inputs return the same order.
func Apply(items []domain.AnnotatedTransaction, criteria domain.FilterCriteria, showOnlyMatching bool, opts ...Option) []domain.AnnotatedTransaction {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	out := slices.Clone(items)
	if out == nil {
		out = []domain.AnnotatedTransaction{}
	}

	if len(criteria.SelectedRules) > 0 {
		out = PartitionByMatch(out, showOnlyMatching)
	}
	if terms := SearchTerms(criteria.Search); len(terms) > 0 {
		out = keep(out, func(t *domain.AnnotatedTransaction) bool { return matchesAll(t, terms) })
	}
	if start, end, ok := dateBounds(criteria.SelectedDateRange); ok {
		out = keep(out, func(t *domain.AnnotatedTransaction) bool { return inDateRange(t.Timestamp, start, end, o.loc) })
	}
	if criteria.Priority != "" {
		out = keep(out, func(t *domain.AnnotatedTransaction) bool { return t.Risk == criteria.Priority })
	}
	if lo, ok := parseBound(criteria.PriceRange.Min); ok {
		out = keep(out, func(t *domain.AnnotatedTransaction) bool {
			return decimal.NewFromFloat(t.Amount).GreaterThanOrEqual(lo)
		})
	}
	if hi, ok := parseBound(criteria.PriceRange.Max); ok {
		out = keep(out, func(t *domain.AnnotatedTransaction) bool {
			return decimal.NewFromFloat(t.Amount).LessThanOrEqual(hi)
		})
	}
	if len(criteria.SelectedCurrency) > 0 {
		set := make(map[string]struct{}, len(criteria.SelectedCurrency))
		for _, c := range criteria.SelectedCurrency {
			set[c] = struct{}{}
		}
		out = keep(out, func(t *domain.AnnotatedTransaction) bool {
			_, ok := set[t.Currency]
			return ok
		})
	}

	return out
}

// PartitionByMatch puts transactions with triggered rules first. Both partitions
// are stably sorted by triggered count, then risk rank, descending.
// With onlyMatching the unmatched partition is dropped.
func PartitionByMatch(items []domain.AnnotatedTransaction, onlyMatching bool) []domain.AnnotatedTransaction {
	matched := make([]domain.AnnotatedTransaction, 0, len(items))
	var unmatched []domain.AnnotatedTransaction

	for _, t := range items {
		if t.HasTriggeredRules {
			matched = append(matched, t)
		} else if !onlyMatching {
			unmatched = append(unmatched, t)
		}
	}

	slices.SortStableFunc(matched, compareMatch)
	slices.SortStableFunc(unmatched, compareMatch)

	return append(matched, unmatched...)
}

func compareMatch(a, b domain.AnnotatedTransaction) int {
	if a.TriggeredRulesCount != b.TriggeredRulesCount {
		return b.TriggeredRulesCount - a.TriggeredRulesCount
	}
	return b.Risk.Rank() - a.Risk.Rank()
}

// SearchTerms splits a query into lower-cased terms. A blank query has none.
func SearchTerms(search string) []string {
	return strings.Fields(strings.ToLower(search))
}

// SearchBlob is the lower-cased text a transaction is searched by.
func SearchBlob(t *domain.Transaction) string {
	parts := []string{
		t.Sender,
		t.Receiver,
		t.City,
		t.Country,
		t.Type,
		strconv.FormatFloat(t.Amount, 'f', -1, 64),
		t.Currency,
	}

	var b strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(p)
	}
	return strings.ToLower(b.String())
}

func matchesAll(t *domain.AnnotatedTransaction, terms []string) bool {
	blob := SearchBlob(&t.Transaction)
	for _, term := range terms {
		if !strings.Contains(blob, term) {
			return false
		}
	}
	return true
}

// parseBound parses a price bound. Empty and unparseable bounds are absent.
func parseBound(s string) (decimal.Decimal, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func keep(items []domain.AnnotatedTransaction, pred func(*domain.AnnotatedTransaction) bool) []domain.AnnotatedTransaction {
	out := make([]domain.AnnotatedTransaction, 0, len(items))
	for i := range items {
		if pred(&items[i]) {
			out = append(out, items[i])
		}
	}
	return out
}
