package main

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/kestrel/internal/cache"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/ingest"
	"github.com/opensource-finance/kestrel/internal/repository"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/session"
)

// app bundles the components every command builds from configuration.
type app struct {
	repo    domain.Repository
	cache   domain.Cache
	session *session.Session
}

// newApp opens the repository and cache and builds a session over the
// configured data source. withRepo forces the repository open even when the
// data source does not need it.
func newApp(cfg *domain.Config, withRepo bool) (*app, error) {
	a := &app{}

	if withRepo || cfg.Data.Source == domain.SourceRepository {
		repo, err := repository.New(cfg.Repository)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize repository: %w", err)
		}
		a.repo = repo
		slog.Info("repository initialized", "driver", cfg.Repository.Driver)
	}

	memo, err := cache.New(cfg.Cache)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.cache = memo
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	src, err := ingest.NewSource(cfg.Data, a.repo)
	if err != nil {
		a.Close()
		return nil, err
	}

	engine, err := rules.NewEngine()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to initialize rule engine: %w", err)
	}
	slog.Info("rule engine initialized", "rules_count", engine.RulesCount())

	var loc *time.Location
	if cfg.Pipeline.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Pipeline.Timezone)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("invalid pipeline timezone: %w", err)
		}
	}

	a.session = session.New(ingest.NewLoader(src), engine, session.Options{
		Memo:            memo,
		EvaluationTTL:   cfg.Cache.EvaluationTTL,
		Location:        loc,
		DefaultPageSize: cfg.Pipeline.DefaultPageSize,
	})

	return a, nil
}

// Close releases the session, cache and repository.
func (a *app) Close() error {
	if a.session != nil {
		a.session.Close()
	}
	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	return errors.Join(errs...)
}
