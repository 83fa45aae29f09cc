// Package annotate turns dataset transactions into annotated transactions:
// the evaluations of the rules to evaluate, the triggered count and the
// catalog-wide risk tier. Evaluations can be memoized in a domain.Cache scoped
// by dataset ID.
package annotate

import (
	"bytes"
	"context"
	"encoding/json"
	"hash/fnv"
	"log/slog"
	"runtime"
	"strconv"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/risk"
	"github.com/opensource-finance/kestrel/internal/rules"
)

// CatalogKey marks memo entries holding full-catalog evaluations.
const CatalogKey = "*"

// Memo lookup results.
const (
	memoHit   = "hit"
	memoMiss  = "miss"
	memoError = "error"
)

// Annotator evaluates rules over a dataset.
type Annotator struct {
	evaluator risk.Evaluator
	memo      domain.Cache
	ttl       time.Duration
	workers   int
}

// Option configures an Annotator.
type Option func(*Annotator)

// WithMemo memoizes evaluations in c for ttl.
func WithMemo(c domain.Cache, ttl time.Duration) Option {
	return func(a *Annotator) {
		a.memo = c
		a.ttl = ttl
	}
}

// WithWorkers bounds the number of transactions annotated concurrently.
func WithWorkers(n int) Option {
	return func(a *Annotator) {
		if n > 0 {
			a.workers = n
		}
	}
}

// New creates an annotator. The evaluator is normally a *rules.Engine.
func New(evaluator risk.Evaluator, opts ...Option) *Annotator {
	a := &Annotator{
		evaluator: evaluator,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Annotate annotates every transaction of ds, keeping dataset order.
// selected is the user's rule selection; when empty the catalog is evaluated.
func (a *Annotator) Annotate(ctx context.Context, ds *domain.Dataset, selected []domain.RuleDefinition) []domain.AnnotatedTransaction {
	out := make([]domain.AnnotatedTransaction, len(ds.Transactions))
	if len(out) == 0 {
		return out
	}

	fp := Fingerprint(selected)

	// Bounded fan-out: each goroutine writes only its own index.
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.workers)
	for i := range ds.Transactions {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int) {
			defer wg.Done()
			defer func() { <-sem }()
			out[i] = a.annotate(ctx, ds, ds.Transactions[i], selected, fp)
		}(i)
	}
	wg.Wait()

	return out
}

// AnnotateOne annotates a single transaction of ds.
func (a *Annotator) AnnotateOne(ctx context.Context, ds *domain.Dataset, txn domain.Transaction, selected []domain.RuleDefinition) domain.AnnotatedTransaction {
	return a.annotate(ctx, ds, txn, selected, Fingerprint(selected))
}

func (a *Annotator) annotate(ctx context.Context, ds *domain.Dataset, txn domain.Transaction, selected []domain.RuleDefinition, fp string) domain.AnnotatedTransaction {
	catalogEvals := a.evaluate(ctx, ds.ID, txn, ds.Rules, CatalogKey)

	// An empty selection fingerprints as the catalog and reuses its evaluations.
	evals := catalogEvals
	if fp != CatalogKey {
		evals = a.evaluate(ctx, ds.ID, txn, rules.ToEvaluate(selected, ds.Rules), fp)
	}

	triggered := 0
	for _, e := range evals {
		if e.Triggered {
			triggered++
		}
	}

	return domain.AnnotatedTransaction{
		Transaction:         txn,
		Risk:                risk.FromEvaluations(catalogEvals),
		EvaluatedRules:      evals,
		TriggeredRulesCount: triggered,
		HasTriggeredRules:   triggered > 0,
	}
}

// evaluate returns the evaluations of ruleSet for txn, from the memo when
// possible. Memo failures fall back to direct evaluation.
func (a *Annotator) evaluate(ctx context.Context, datasetID string, txn domain.Transaction, ruleSet []domain.RuleDefinition, fp string) []domain.RuleEvaluation {
	if a.memo == nil || datasetID == "" {
		return a.evaluator.Evaluate(txn.Raw, ruleSet)
	}

	key := MemoKey(txn.ID, fp)

	data, err := a.memo.Get(ctx, datasetID, key)
	switch {
	case err != nil:
		metrics.MemoLookups.WithLabelValues(memoError).Inc()
		slog.Debug("evaluation memo lookup failed", "dataset_id", datasetID, "key", key, "error", err)
	case data != nil:
		if evals, err := decodeEvaluations(data); err == nil {
			metrics.MemoLookups.WithLabelValues(memoHit).Inc()
			return evals
		}
		metrics.MemoLookups.WithLabelValues(memoError).Inc()
	default:
		metrics.MemoLookups.WithLabelValues(memoMiss).Inc()
	}

	evals := a.evaluator.Evaluate(txn.Raw, ruleSet)

	if data, err := json.Marshal(evals); err == nil {
		if err := a.memo.Set(ctx, datasetID, key, data, a.ttl); err != nil {
			slog.Debug("evaluation memo store failed", "dataset_id", datasetID, "key", key, "error", err)
		}
	}

	return evals
}

// decodeEvaluations keeps feature values as json.Number, as the evaluator
// produced them, so memo hits and misses render identically.
func decodeEvaluations(data []byte) ([]domain.RuleEvaluation, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var evals []domain.RuleEvaluation
	if err := dec.Decode(&evals); err != nil {
		return nil, err
	}
	return evals, nil
}

// MemoKey is the cache key of one transaction's evaluations under a selection.
func MemoKey(txnID, fingerprint string) string {
	return txnID + "|" + fingerprint
}

// Fingerprint identifies a rule selection. Selections with the same rules in
// the same order share memo entries; an empty selection is the catalog.
func Fingerprint(selected []domain.RuleDefinition) string {
	if len(selected) == 0 {
		return CatalogKey
	}

	h := fnv.New64a()
	for _, r := range selected {
		for _, f := range []string{r.RuleID, r.Name, r.Description, r.Action, string(r.Severity)} {
			h.Write([]byte(f))
			h.Write([]byte{0})
		}
		h.Write([]byte{1})
	}
	return strconv.FormatUint(h.Sum64(), 16)
}

var _ risk.Evaluator = (*rules.Engine)(nil)
