package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/schollz/progressbar/v3"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/session"
)

const nanPlaceholder = `"__nan__"`

var (
	currencies = []string{"USD", "EUR", "PAB", "COP", "GBP"}
	txnTypes   = []string{"purchase", "transfer", "withdrawal", "refund", "reversal", "deposit"}
	countries  = []string{"USA", "PAN", "COL", "MEX", "GBR", "ESP", "VEN", "PRK"}
)

// Scenario is one filter pass timed by the benchmark.
type Scenario struct {
	Name         string
	Criteria     domain.FilterCriteria
	OnlyMatching bool
}

// Result holds timings for one scenario.
type Result struct {
	Scenario   string
	Matches    int
	Iterations int
	Cold       time.Duration
	Total      time.Duration
	Min        time.Duration
	Max        time.Duration
}

type staticLoader struct {
	ds *domain.Dataset
}

func (l staticLoader) Load(ctx context.Context) *domain.Dataset {
	return l.ds
}

func main() {
	count := flag.Int("n", 10000, "Number of synthetic transactions to generate")
	invalid := flag.Float64("invalid", 0.02, "Fraction of records with NaN amounts or missing parties")
	iterations := flag.Int("iterations", 20, "Filter passes per scenario")
	workers := flag.Int("workers", 0, "Evaluation workers (0 = GOMAXPROCS)")
	memoSize := flag.Int("memo", 100000, "Evaluation memo capacity (0 disables the memo)")
	seed := flag.Int64("seed", 42, "Random seed for the generated feed")
	verbose := flag.Bool("verbose", false, "Print the ten riskiest transactions")
	flag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn})))

	if *count <= 0 || *iterations <= 0 {
		fmt.Println("Usage: benchmark [-n 10000] [-iterations 20] [-memo 100000]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║           KESTREL BENCHMARK - Review Pipeline                 ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")
	fmt.Printf("\nTransactions: %d\n", *count)
	fmt.Printf("Invalid:      %.2f\n", *invalid)
	fmt.Printf("Iterations:   %d\n", *iterations)
	fmt.Printf("Workers:      %d\n", *workers)
	fmt.Printf("Memo:         %d\n", *memoSize)
	fmt.Printf("Seed:         %d\n", *seed)
	fmt.Println()

	gofakeit.Seed(*seed)

	fmt.Println("Generating feed...")
	feed, err := generateFeed(*count, *invalid)
	if err != nil {
		fmt.Printf("ERROR: Failed to generate feed: %v\n", err)
		os.Exit(1)
	}

	start := time.Now()
	res, err := ingest.Normalize(feed)
	if err != nil {
		fmt.Printf("ERROR: Failed to normalize feed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("✓ Normalized %d transactions in %v (%d dropped)\n",
		len(res.Transactions), time.Since(start).Round(time.Millisecond), res.Dropped)

	engine, err := rules.NewEngine()
	if err != nil {
		fmt.Printf("ERROR: Failed to create rule engine: %v\n", err)
		os.Exit(1)
	}

	ds := &domain.Dataset{
		ID:           "benchmark",
		Transactions: res.Transactions,
		Rules:        catalog(),
		Loaded:       true,
		Dropped:      res.Dropped,
		LoadedAt:     time.Now().UTC(),
	}

	printDistribution(engine, ds)

	opts := session.Options{Workers: *workers, EvaluationTTL: time.Hour}
	if *memoSize > 0 {
		opts.Memo = cache.NewLRUCache(*memoSize)
	}
	sess := session.New(staticLoader{ds: ds}, engine, opts)
	defer sess.Close()

	ctx := context.Background()
	if _, err := sess.Load(ctx); err != nil {
		fmt.Printf("ERROR: Failed to load dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("\nRunning %d scenarios...\n", len(scenarios(ds.Rules)))
	results := make([]Result, 0)
	var top []domain.AnnotatedTransaction
	for _, sc := range scenarios(ds.Rules) {
		r, items, err := runScenario(ctx, sess, ds, sc, *iterations)
		if err != nil {
			fmt.Printf("ERROR: %s: %v\n", sc.Name, err)
			os.Exit(1)
		}
		results = append(results, r)
		if top == nil {
			top = items
		}
	}

	printResults(results, len(ds.Transactions))

	if *verbose {
		printTop(top, 10)
	}
}

// generateFeed builds a JSON array in the upstream export shape. A share of
// records carry bare NaN amounts or empty parties so the normalizer has
// something to drop.
func generateFeed(n int, invalid float64) ([]byte, error) {
	end := time.Date(2024, 12, 31, 23, 59, 59, 0, time.UTC)
	begin := end.AddDate(0, -6, 0)

	records := make([]map[string]any, n)
	for i := range records {
		rec := map[string]any{
			"amount":              gofakeit.Float64Range(1, 5000),
			"sender_account_id":   fmt.Sprintf("ACC-%06d", gofakeit.Number(1, 99999)),
			"receiver_account_id": gofakeit.Company(),
			"txn_date_time":       gofakeit.DateRange(begin, end).Format(time.RFC3339),
			"currency":            gofakeit.RandomString(currencies),
			"transaction_type":    gofakeit.RandomString(txnTypes),
			"merchant_city":       gofakeit.City(),
			"merchant_country":    gofakeit.RandomString(countries),
			"transaction_count":   gofakeit.Number(1, 12),
			"hour_of_day":         gofakeit.Number(0, 23),
		}
		if gofakeit.Float64() < invalid {
			if gofakeit.Bool() {
				rec["amount"] = "__nan__"
			} else {
				rec["sender_account_id"] = ""
			}
		}
		records[i] = rec
	}

	data, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return bytes.ReplaceAll(data, []byte(nanPlaceholder), []byte("NaN")), nil
}

func catalog() []domain.RuleDefinition {
	return rules.NormalizeCatalog([]domain.RuleDefinition{
		{RuleID: domain.RuleHighValue, Name: "High value", Action: "Alert", Severity: "High"},
		{RuleID: domain.RuleTransactionCount, Name: "Burst", Action: "Review", Severity: "Medium"},
		{RuleID: domain.RuleUnusualType, Name: "Unusual type", Action: "Review", Severity: "Low"},
		{RuleID: domain.RuleHighRiskCountry, Name: "High-risk merchant", Action: "Block", Severity: "Critical"},
		{RuleID: domain.RuleCrossBorderAmount, Name: "Cross-border amount", Action: "Review", Severity: "Medium"},
		{RuleID: domain.RuleOffHours, Name: "Off hours", Action: "Review", Severity: "Low"},
		{RuleID: domain.RuleLargeCashWithdrawal, Name: "Large cash withdrawal", Action: "Alert", Severity: "High"},
	})
}

func scenarios(catalog []domain.RuleDefinition) []Scenario {
	return []Scenario{
		{Name: "unfiltered"},
		{Name: "single rule", Criteria: domain.FilterCriteria{SelectedRules: catalog[:1]}},
		{Name: "full catalog", Criteria: domain.FilterCriteria{SelectedRules: catalog}, OnlyMatching: true},
		{Name: "search", Criteria: domain.FilterCriteria{Search: "acc-00"}},
		{Name: "date range", Criteria: domain.FilterCriteria{
			SelectedDateRange: domain.DateRange{Start: "2024-09-01", End: "2024-10-31"},
		}},
		{Name: "composed", Criteria: domain.FilterCriteria{
			SelectedRules:    catalog[:2],
			Priority:         domain.RiskHigh,
			PriceRange:       domain.PriceRange{Min: "1000"},
			SelectedCurrency: []string{"USD", "PAB"},
		}, OnlyMatching: true},
	}
}

func runScenario(ctx context.Context, sess *session.Session, ds *domain.Dataset, sc Scenario, iterations int) (Result, []domain.AnnotatedTransaction, error) {
	r := Result{Scenario: sc.Name, Iterations: iterations}

	bar := progressbar.NewOptions(iterations,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(fmt.Sprintf("[cyan]%-14s[reset]", sc.Name)),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
	)

	var items []domain.AnnotatedTransaction
	for i := 0; i < iterations; i++ {
		start := time.Now()
		out, err := sess.Filter(ctx, ds, sc.Criteria, sc.OnlyMatching)
		elapsed := time.Since(start)
		if err != nil {
			return r, nil, err
		}

		if i == 0 {
			r.Cold = elapsed
			r.Min = elapsed
			items = out
			r.Matches = len(out)
		}
		r.Total += elapsed
		if elapsed < r.Min {
			r.Min = elapsed
		}
		if elapsed > r.Max {
			r.Max = elapsed
		}
		if err := bar.Add(1); err != nil {
			slog.Warn("failed to update progress bar", "error", err)
		}
	}

	return r, items, nil
}

// printDistribution assesses every transaction directly, without the memo,
// as a baseline for the pipeline timings.
func printDistribution(engine *rules.Engine, ds *domain.Dataset) {
	assessor := risk.NewAssessor(engine, ds.Rules)

	start := time.Now()
	tiers := map[domain.RiskTier]int{}
	for _, txn := range ds.Transactions {
		tiers[assessor.Assess(txn.Raw)]++
	}
	elapsed := time.Since(start)

	total := len(ds.Transactions)
	fmt.Printf("\n📊 RISK DISTRIBUTION (%d rules)\n", len(assessor.Catalog()))
	for _, tier := range []domain.RiskTier{domain.RiskHigh, domain.RiskMedium, domain.RiskLow} {
		pct := 0.0
		if total > 0 {
			pct = 100 * float64(tiers[tier]) / float64(total)
		}
		fmt.Printf("   %-8s %8d (%.2f%%)\n", tier, tiers[tier], pct)
	}
	fmt.Printf("   Direct assessment: %v\n", elapsed.Round(time.Millisecond))
}

func printResults(results []Result, total int) {
	fmt.Println("\n╔═══════════════════════════════════════════════════════════════╗")
	fmt.Println("║                      BENCHMARK RESULTS                        ║")
	fmt.Println("╚═══════════════════════════════════════════════════════════════╝")

	fmt.Printf("\n⏱️  PIPELINE (%d transactions)\n", total)
	fmt.Printf("   %-14s %9s %11s %11s %11s %11s\n", "scenario", "matches", "cold", "avg", "min", "max")
	for _, r := range results {
		avg := r.Total / time.Duration(r.Iterations)
		fmt.Printf("   %-14s %9d %11v %11v %11v %11v\n",
			r.Scenario,
			r.Matches,
			r.Cold.Round(time.Microsecond),
			avg.Round(time.Microsecond),
			r.Min.Round(time.Microsecond),
			r.Max.Round(time.Microsecond),
		)
	}

	fmt.Printf("\n💡 INTERPRETATION\n")
	for _, r := range results {
		if r.Iterations < 2 || r.Min == 0 {
			continue
		}
		speedup := float64(r.Cold) / float64(r.Min)
		fmt.Printf("   %-14s warm passes %.1fx faster than cold\n", r.Scenario, speedup)
	}
	fmt.Println()
}

func printTop(items []domain.AnnotatedTransaction, n int) {
	sorted := append([]domain.AnnotatedTransaction(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Risk.Rank() != sorted[j].Risk.Rank() {
			return sorted[i].Risk.Rank() > sorted[j].Risk.Rank()
		}
		return sorted[i].Amount > sorted[j].Amount
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}

	fmt.Printf("🔍 TOP %d BY RISK\n", len(sorted))
	for _, t := range sorted {
		fmt.Printf("   %-10s | Type: %-10s | Amount: %12.2f %s | Risk: %-6s | Country: %s\n",
			t.ID, t.Type, t.Amount, t.Currency, t.Risk, t.Country)
	}
	fmt.Println()
}
