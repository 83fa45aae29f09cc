// Package session holds the dataset a reviewer works on and runs the
// annotate, filter and paginate pipeline over it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/kestrel/internal/annotate"
	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/filter"
	"github.com/opensource-finance/kestrel/internal/metrics"
	"github.com/opensource-finance/kestrel/internal/pagination"
	"github.com/opensource-finance/kestrel/internal/rules"
)

var (
	// ErrNotReady is returned while the first dataset is still loading.
	ErrNotReady = errors.New("dataset not ready")

	// ErrStaleLoad is returned when a load finished after a newer load
	// started or after the session was closed. Its result is discarded.
	ErrStaleLoad = errors.New("stale dataset load discarded")

	// ErrTransactionNotFound is returned for unknown transaction ids.
	ErrTransactionNotFound = errors.New("transaction not found")
)

var tracer = otel.Tracer("kestrel-session")

// DatasetLoader builds a fresh dataset. *ingest.Loader implements it.
type DatasetLoader interface {
	Load(ctx context.Context) *domain.Dataset
}

// Options configures a Session.
type Options struct {
	// Memo caches rule evaluations per dataset. Nil disables memoization.
	Memo          domain.Cache
	EvaluationTTL time.Duration

	// Workers bounds concurrent annotation. Zero uses GOMAXPROCS.
	Workers int

	// Location derives calendar dates for the date filter. Nil keeps the
	// date as written in the timestamp.
	Location *time.Location

	DefaultPageSize int
}

// Session serves views over a replace-whole dataset.
type Session struct {
	loader    DatasetLoader
	engine    *rules.Engine
	annotator *annotate.Annotator
	memo      domain.Cache
	loc       *time.Location
	pageSize  int

	current    atomic.Pointer[domain.Dataset]
	state      atomic.Value // domain.LoadState
	generation atomic.Uint64
	closed     atomic.Bool

	// swapMu orders the generation check with the swap.
	swapMu sync.Mutex
}

// New creates a session in the loading state.
func New(loader DatasetLoader, engine *rules.Engine, opts Options) *Session {
	annotateOpts := []annotate.Option{annotate.WithWorkers(opts.Workers)}
	if opts.Memo != nil {
		annotateOpts = append(annotateOpts, annotate.WithMemo(opts.Memo, opts.EvaluationTTL))
	}

	pageSize := opts.DefaultPageSize
	if !pagination.ValidPageSize(pageSize) {
		pageSize = pagination.DefaultPageSize
	}

	s := &Session{
		loader:    loader,
		engine:    engine,
		annotator: annotate.New(engine, annotateOpts...),
		memo:      opts.Memo,
		loc:       opts.Location,
		pageSize:  pageSize,
	}
	s.state.Store(domain.StateLoading)
	return s
}

// Load fetches a new dataset and installs it. The previous dataset keeps
// being served until the swap. A load overtaken by a newer one, or finishing
// after Close, is discarded with ErrStaleLoad.
func (s *Session) Load(ctx context.Context) (*domain.Dataset, error) {
	if s.closed.Load() {
		return nil, ErrStaleLoad
	}

	gen := s.generation.Add(1)

	ctx, span := tracer.Start(ctx, "session.Load",
		trace.WithAttributes(attribute.Int64("session.generation", int64(gen))),
	)
	defer span.End()

	ds := s.loader.Load(ctx)

	s.swapMu.Lock()
	if s.closed.Load() || s.generation.Load() != gen {
		s.swapMu.Unlock()
		metrics.DatasetLoads.WithLabelValues(metrics.OutcomeStale).Inc()
		slog.Info("discarding stale dataset load", "dataset_id", ds.ID, "generation", gen)
		span.SetStatus(codes.Error, ErrStaleLoad.Error())
		return nil, ErrStaleLoad
	}
	old := s.current.Swap(ds)
	if ds.Loaded {
		s.state.Store(domain.StateReady)
	} else {
		s.state.Store(domain.StateFailed)
	}
	s.swapMu.Unlock()

	switch {
	case !ds.Loaded:
		metrics.DatasetLoads.WithLabelValues(metrics.OutcomeFailed).Inc()
	case ds.FallbackRules:
		metrics.DatasetLoads.WithLabelValues(metrics.OutcomeFallback).Inc()
	default:
		metrics.DatasetLoads.WithLabelValues(metrics.OutcomeLoaded).Inc()
	}
	metrics.DatasetTransactions.Set(float64(len(ds.Transactions)))

	span.SetAttributes(
		attribute.String("dataset.id", ds.ID),
		attribute.Int("dataset.transactions", len(ds.Transactions)),
		attribute.Bool("dataset.loaded", ds.Loaded),
	)

	if old != nil {
		s.dropMemo(ctx, old.ID)
	}

	return ds, nil
}

func (s *Session) dropMemo(ctx context.Context, datasetID string) {
	deleter, ok := s.memo.(cache.NamespaceDeleter)
	if !ok {
		return
	}
	n, err := deleter.DeleteNamespace(ctx, datasetID)
	if err != nil {
		slog.Warn("failed to drop evaluation memo", "dataset_id", datasetID, "error", err)
		return
	}
	slog.Debug("evaluation memo dropped", "dataset_id", datasetID, "entries", n)
}

// State reports the readiness of the session.
func (s *Session) State() domain.LoadState {
	return s.state.Load().(domain.LoadState)
}

// Dataset returns the installed dataset, or ErrNotReady before the first load.
func (s *Session) Dataset() (*domain.Dataset, error) {
	ds := s.current.Load()
	if ds == nil {
		return nil, ErrNotReady
	}
	return ds, nil
}

// Engine returns the rule engine evaluations run on.
func (s *Session) Engine() *rules.Engine {
	return s.engine
}

// DefaultPageSize is the page size used when a request does not pick one.
func (s *Session) DefaultPageSize() int {
	return s.pageSize
}

// View is one page of the filtered, ordered result.
type View struct {
	domain.Page
	DatasetID string           `json:"datasetId"`
	State     domain.LoadState `json:"state"`
}

// View annotates the dataset for the criteria's rule selection, runs the
// filter pipeline and returns the requested page. A zero size uses the
// default page size; page is clamped into range.
func (s *Session) View(ctx context.Context, criteria domain.FilterCriteria, showOnlyMatching bool, page, size int) (*View, error) {
	ds, err := s.Dataset()
	if err != nil {
		return nil, err
	}
	if size == 0 {
		size = s.pageSize
	}

	ctx, span := tracer.Start(ctx, "session.View",
		trace.WithAttributes(
			attribute.String("dataset.id", ds.ID),
			attribute.Int("criteria.selected_rules", len(criteria.SelectedRules)),
			attribute.Bool("criteria.only_matching", showOnlyMatching),
		),
	)
	defer span.End()

	start := time.Now()

	items, err := s.Filter(ctx, ds, criteria, showOnlyMatching)
	if err != nil {
		return nil, err
	}

	p, err := pagination.Paginate(items, page, size)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("paginate: %w", err)
	}

	metrics.PipelineDuration.Observe(time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("result.total", p.Total))

	return &View{
		Page:      p,
		DatasetID: ds.ID,
		State:     s.State(),
	}, nil
}

// Filter returns the full ordered result for the criteria over ds.
func (s *Session) Filter(ctx context.Context, ds *domain.Dataset, criteria domain.FilterCriteria, showOnlyMatching bool) ([]domain.AnnotatedTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	annotated := s.annotator.Annotate(ctx, ds, criteria.SelectedRules)
	return filter.Apply(annotated, criteria, showOnlyMatching, filter.WithLocation(s.loc)), nil
}

// Transaction returns one annotated transaction. With no selected rules the
// whole catalog is evaluated.
func (s *Session) Transaction(ctx context.Context, id string, selected []domain.RuleDefinition) (domain.AnnotatedTransaction, error) {
	ds, err := s.Dataset()
	if err != nil {
		return domain.AnnotatedTransaction{}, err
	}
	for _, txn := range ds.Transactions {
		if txn.ID == id {
			return s.annotator.AnnotateOne(ctx, ds, txn, selected), nil
		}
	}
	return domain.AnnotatedTransaction{}, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
}

// Close discards loads still in flight. Views keep serving the last dataset.
func (s *Session) Close() {
	s.swapMu.Lock()
	s.closed.Store(true)
	s.swapMu.Unlock()
}
