package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// ErrEmptyCatalog is returned by sources that hold no rule definitions.
var ErrEmptyCatalog = errors.New("rule catalog is empty")

// Source supplies the raw transaction feed and the rule catalog.
type Source interface {
	FetchTransactions(ctx context.Context) ([]byte, error)
	FetchRules(ctx context.Context) ([]domain.RuleDefinition, error)
}

// NewSource builds the source selected by cfg.Source.
// repo is only used by the repository source and may be nil otherwise.
func NewSource(cfg domain.DataConfig, repo domain.Repository) (Source, error) {
	switch cfg.Source {
	case domain.SourceFile, "":
		return &FileSource{TransactionsPath: cfg.TransactionsPath, RulesPath: cfg.RulesPath}, nil
	case domain.SourceHTTP:
		return NewHTTPSource(cfg.TransactionsURL, cfg.RulesURL, cfg.HTTPTimeout), nil
	case domain.SourceRepository:
		if repo == nil {
			return nil, fmt.Errorf("repository source requires a repository")
		}
		return &RepositorySource{Repo: repo}, nil
	default:
		return nil, fmt.Errorf("unsupported data source: %s", cfg.Source)
	}
}

// FileSource reads both feeds from local JSON files.
type FileSource struct {
	TransactionsPath string
	RulesPath        string
}

// FetchTransactions reads the transaction feed file.
func (s *FileSource) FetchTransactions(ctx context.Context) ([]byte, error) {
	data, err := os.ReadFile(s.TransactionsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read transactions: %w", err)
	}
	return data, nil
}

// FetchRules reads and parses the rule catalog file.
func (s *FileSource) FetchRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	data, err := os.ReadFile(s.RulesPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRules(data)
}

// HTTPSource fetches both feeds over HTTP.
type HTTPSource struct {
	TransactionsURL string
	RulesURL        string
	client          *http.Client
}

// NewHTTPSource creates an HTTP source with the given request timeout.
func NewHTTPSource(transactionsURL, rulesURL string, timeout time.Duration) *HTTPSource {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		TransactionsURL: transactionsURL,
		RulesURL:        rulesURL,
		client:          &http.Client{Timeout: timeout},
	}
}

// FetchTransactions downloads the transaction feed.
func (s *HTTPSource) FetchTransactions(ctx context.Context) ([]byte, error) {
	data, err := s.get(ctx, s.TransactionsURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	return data, nil
}

// FetchRules downloads and parses the rule catalog.
func (s *HTTPSource) FetchRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	data, err := s.get(ctx, s.RulesURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch rules: %w", err)
	}
	return ParseRules(data)
}

func (s *HTTPSource) get(ctx context.Context, url string) ([]byte, error) {
	if url == "" {
		return nil, fmt.Errorf("no URL configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d from %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

// RepositorySource reads feeds previously stored with `kestrel import`.
type RepositorySource struct {
	Repo domain.Repository
}

// FetchTransactions assembles the stored raw records into a JSON array.
func (s *RepositorySource) FetchTransactions(ctx context.Context) ([]byte, error) {
	records, err := s.Repo.ListRawTransactions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}

	var buf bytes.Buffer
	buf.WriteByte('[')
	for i, rec := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(rec)
	}
	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// FetchRules lists the stored catalog.
func (s *RepositorySource) FetchRules(ctx context.Context) ([]domain.RuleDefinition, error) {
	defs, err := s.Repo.ListRules(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	if len(defs) == 0 {
		return nil, ErrEmptyCatalog
	}
	return defs, nil
}
