package filter

import (
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func annotated(id string, count int, risk domain.RiskTier) domain.AnnotatedTransaction {
	return domain.AnnotatedTransaction{
		Transaction: domain.Transaction{
			ID:        id,
			Amount:    100,
			Sender:    "S-" + id,
			Receiver:  "R-" + id,
			Timestamp: "2024-03-10T12:00:00",
			Currency:  "USD",
			Type:      "purchase",
			City:      "Unknown",
			Country:   "Unknown",
		},
		Risk:                risk,
		TriggeredRulesCount: count,
		HasTriggeredRules:   count > 0,
	}
}

func ids(items []domain.AnnotatedTransaction) []string {
	out := make([]string, len(items))
	for i, t := range items {
		out[i] = t.ID
	}
	return out
}

var selection = domain.FilterCriteria{
	SelectedRules: []domain.RuleDefinition{{RuleID: domain.RuleHighValue}},
}

func TestRuleMatchSort(t *testing.T) {
	items := []domain.AnnotatedTransaction{
		annotated("a", 3, domain.RiskLow),
		annotated("b", 1, domain.RiskHigh),
		annotated("c", 0, domain.RiskLow),
		annotated("d", 2, domain.RiskMedium),
	}

	t.Run("matched first", func(t *testing.T) {
		got := ids(Apply(items, selection, false))
		want := []string{"a", "d", "b", "c"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("only matching", func(t *testing.T) {
		got := ids(Apply(items, selection, true))
		want := []string{"a", "d", "b"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("risk breaks count ties", func(t *testing.T) {
		tied := []domain.AnnotatedTransaction{
			annotated("low", 1, domain.RiskLow),
			annotated("unknown", 1, ""),
			annotated("high", 1, domain.RiskHigh),
			annotated("medium", 1, domain.RiskMedium),
		}
		got := ids(Apply(tied, selection, false))
		want := []string{"high", "medium", "low", "unknown"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("stable for equal keys", func(t *testing.T) {
		same := []domain.AnnotatedTransaction{
			annotated("x1", 0, domain.RiskLow),
			annotated("x2", 0, domain.RiskLow),
			annotated("x3", 0, domain.RiskLow),
		}
		got := ids(Apply(same, selection, false))
		want := []string{"x1", "x2", "x3"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})

	t.Run("no selection keeps input order", func(t *testing.T) {
		got := ids(Apply(items, domain.FilterCriteria{}, true))
		want := []string{"a", "b", "c", "d"}
		if !reflect.DeepEqual(got, want) {
			t.Errorf("expected %v, got %v", want, got)
		}
	})
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	items := []domain.AnnotatedTransaction{
		annotated("a", 0, domain.RiskLow),
		annotated("b", 2, domain.RiskLow),
	}

	Apply(items, selection, false)

	if items[0].ID != "a" || items[1].ID != "b" {
		t.Errorf("input reordered: %v", ids(items))
	}
}

func TestApplyIdempotent(t *testing.T) {
	var items []domain.AnnotatedTransaction
	risks := []domain.RiskTier{domain.RiskLow, domain.RiskMedium, domain.RiskHigh}
	for i := 0; i < 40; i++ {
		items = append(items, annotated(fmt.Sprintf("t%d", i), i%4, risks[i%3]))
	}
	criteria := domain.FilterCriteria{
		SelectedRules: selection.SelectedRules,
		Search:        "usd",
		PriceRange:    domain.PriceRange{Min: "50"},
	}

	first := Apply(items, criteria, false)
	second := Apply(items, criteria, false)

	if !reflect.DeepEqual(first, second) {
		t.Error("repeated runs should produce identical output")
	}
}

func TestSearch(t *testing.T) {
	acme := annotated("acme", 0, domain.RiskLow)
	acme.Sender = "ACME Corp"
	acme.City = "Panama"

	acmeOnly := annotated("acme-only", 0, domain.RiskLow)
	acmeOnly.Sender = "Acme Corp"
	acmeOnly.City = "Bogota"

	items := []domain.AnnotatedTransaction{acme, acmeOnly}

	tests := []struct {
		search string
		want   []string
	}{
		{"acme panama", []string{"acme"}},
		{"  ACME   ", []string{"acme", "acme-only"}},
		{"", []string{"acme", "acme-only"}},
		{"   ", []string{"acme", "acme-only"}},
		{"100 usd", []string{"acme", "acme-only"}},
		{"eur", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.search, func(t *testing.T) {
			got := ids(Apply(items, domain.FilterCriteria{Search: tt.search}, false))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestSearchBlob(t *testing.T) {
	txn := &domain.Transaction{Sender: "A", Receiver: "B", City: "Colón", Type: "Refund", Amount: 1500.25, Currency: "PAB"}
	if got := SearchBlob(txn); got != "a b colón refund 1500.25 pab" {
		t.Errorf("unexpected blob %q", got)
	}
}

func TestDateRange(t *testing.T) {
	mk := func(id, ts string) domain.AnnotatedTransaction {
		a := annotated(id, 0, domain.RiskLow)
		a.Timestamp = ts
		return a
	}
	items := []domain.AnnotatedTransaction{
		mk("before", "2024-01-09T23:59:59"),
		mk("start", "2024-01-10T00:00:00"),
		mk("middle", "2024-01-15 08:30:00"),
		mk("end", "2024-01-20T23:59:59Z"),
		mk("after", "2024-01-21T00:00:00"),
		mk("garbage", "not a date"),
		mk("empty", ""),
	}

	tests := []struct {
		name string
		r    domain.DateRange
		want []string
	}{
		{"inclusive both ends", domain.DateRange{Start: "2024-01-10", End: "2024-01-20"}, []string{"start", "middle", "end"}},
		{"start only", domain.DateRange{Start: "2024-01-20"}, []string{"end", "after"}},
		{"end only", domain.DateRange{End: "2024-01-10"}, []string{"before", "start"}},
		{"no matches stays empty", domain.DateRange{Start: "2030-01-01", End: "2030-01-02"}, []string{}},
		{"unparseable bounds ignored", domain.DateRange{Start: "soon", End: "later"}, []string{"before", "start", "middle", "end", "after", "garbage", "empty"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(items, domain.FilterCriteria{SelectedDateRange: tt.r}, false))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestDateRangeWithLocation(t *testing.T) {
	a := annotated("late-utc", 0, domain.RiskLow)
	a.Timestamp = "2024-01-11T02:00:00Z"

	criteria := domain.FilterCriteria{SelectedDateRange: domain.DateRange{Start: "2024-01-10", End: "2024-01-10"}}

	if got := Apply([]domain.AnnotatedTransaction{a}, criteria, false); len(got) != 0 {
		t.Error("as written the timestamp falls on 2024-01-11")
	}

	panama := time.FixedZone("EST", -5*60*60)
	if got := Apply([]domain.AnnotatedTransaction{a}, criteria, false, WithLocation(panama)); len(got) != 1 {
		t.Error("in UTC-5 the timestamp falls on 2024-01-10")
	}
}

func TestPriority(t *testing.T) {
	items := []domain.AnnotatedTransaction{
		annotated("l", 0, domain.RiskLow),
		annotated("m", 1, domain.RiskMedium),
		annotated("h", 2, domain.RiskHigh),
	}

	got := ids(Apply(items, domain.FilterCriteria{Priority: domain.RiskMedium}, false))
	if !reflect.DeepEqual(got, []string{"m"}) {
		t.Errorf("expected [m], got %v", got)
	}

	got = ids(Apply(items, domain.FilterCriteria{Priority: "High"}, false))
	if len(got) != 0 {
		t.Errorf("priority is an exact match, got %v", got)
	}
}

func TestPriceRange(t *testing.T) {
	mk := func(id string, amount float64) domain.AnnotatedTransaction {
		a := annotated(id, 0, domain.RiskLow)
		a.Amount = amount
		return a
	}
	items := []domain.AnnotatedTransaction{mk("10", 10), mk("99.99", 99.99), mk("100", 100), mk("500.5", 500.5)}

	tests := []struct {
		name string
		r    domain.PriceRange
		want []string
	}{
		{"min inclusive", domain.PriceRange{Min: "100"}, []string{"100", "500.5"}},
		{"max inclusive", domain.PriceRange{Max: "99.99"}, []string{"10", "99.99"}},
		{"both", domain.PriceRange{Min: "50", Max: "100"}, []string{"99.99", "100"}},
		{"unparseable min ignored", domain.PriceRange{Min: "abc", Max: "100"}, []string{"10", "99.99", "100"}},
		{"empty", domain.PriceRange{}, []string{"10", "99.99", "100", "500.5"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Apply(items, domain.FilterCriteria{PriceRange: tt.r}, false))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestCurrency(t *testing.T) {
	mk := func(id, cur string) domain.AnnotatedTransaction {
		a := annotated(id, 0, domain.RiskLow)
		a.Currency = cur
		return a
	}
	items := []domain.AnnotatedTransaction{mk("1", "USD"), mk("2", "PAB"), mk("3", "EUR")}

	got := ids(Apply(items, domain.FilterCriteria{SelectedCurrency: []string{"PAB", "EUR"}}, false))
	if !reflect.DeepEqual(got, []string{"2", "3"}) {
		t.Errorf("expected [2 3], got %v", got)
	}
}

func TestStagesCompose(t *testing.T) {
	a := annotated("a", 2, domain.RiskHigh)
	a.Currency = "PAB"
	a.Amount = 2000
	b := annotated("b", 1, domain.RiskHigh)
	b.Currency = "PAB"
	b.Amount = 50
	c := annotated("c", 3, domain.RiskMedium)
	c.Currency = "PAB"
	c.Amount = 3000
	d := annotated("d", 0, domain.RiskHigh)
	d.Currency = "USD"
	d.Amount = 5000

	criteria := domain.FilterCriteria{
		SelectedRules:    selection.SelectedRules,
		Priority:         domain.RiskHigh,
		PriceRange:       domain.PriceRange{Min: "1000"},
		SelectedCurrency: []string{"PAB"},
	}

	got := ids(Apply([]domain.AnnotatedTransaction{d, c, b, a}, criteria, false))
	if !reflect.DeepEqual(got, []string{"a"}) {
		t.Errorf("expected [a], got %v", got)
	}
}

func TestApplyEmpty(t *testing.T) {
	got := Apply(nil, selection, false)
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %v", got)
	}
}
