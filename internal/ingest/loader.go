package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// Loader builds datasets from a Source.
type Loader struct {
	source Source
}

// NewLoader creates a loader over the given source.
func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// Load fetches both feeds concurrently and returns once both have finished.
// Failures never abort: a failed transaction feed yields an empty, not-loaded
// dataset and a failed catalog is replaced by the fallback catalog.
func (l *Loader) Load(ctx context.Context) *domain.Dataset {
	start := time.Now()

	var (
		wg       sync.WaitGroup
		feed     *Result
		feedErr  error
		catalog  []domain.RuleDefinition
		rulesErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		data, err := l.source.FetchTransactions(ctx)
		if err != nil {
			feedErr = err
			return
		}
		feed, feedErr = Normalize(data)
	}()
	go func() {
		defer wg.Done()
		catalog, rulesErr = l.source.FetchRules(ctx)
	}()
	wg.Wait()

	ds := &domain.Dataset{
		ID:           uuid.New().String(),
		Transactions: []domain.Transaction{},
		LoadedAt:     time.Now().UTC(),
	}

	if feedErr != nil {
		slog.Error("failed to load transactions", "error", feedErr)
		ds.TransactionsError = feedErr.Error()
	} else {
		ds.Transactions = feed.Transactions
		ds.Dropped = feed.Dropped
		ds.Loaded = true
		metrics.RecordsDropped.Add(float64(feed.Dropped))
	}

	if rulesErr != nil {
		slog.Warn("failed to load rule catalog, using fallback", "error", rulesErr)
		ds.RulesError = rulesErr.Error()
		ds.Rules = rules.FallbackCatalog()
		ds.FallbackRules = true
	} else {
		ds.Rules = rules.NormalizeCatalog(catalog)
	}

	metrics.LoadDuration.Observe(time.Since(start).Seconds())
	slog.Info("dataset loaded",
		"dataset_id", ds.ID,
		"transactions", len(ds.Transactions),
		"rules", len(ds.Rules),
		"dropped", ds.Dropped,
		"loaded", ds.Loaded,
		"fallback_rules", ds.FallbackRules,
	)

	return ds
}
