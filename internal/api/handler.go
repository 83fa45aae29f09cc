package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/pagination"
	"github.com/opensource-finance/kestrel/internal/rules"
	"github.com/opensource-finance/kestrel/internal/session"
	"github.com/opensource-finance/kestrel/internal/worker"
)

// Handler holds dependencies for API handlers.
type Handler struct {
	session *session.Session
	repo    domain.Repository
	cache   domain.Cache
	bus     domain.EventBus
	worker  *worker.ReloadWorker
	source  string
	version string
}

// Deps are the collaborators a Handler reports on or delegates to.
// Repo, Cache and Bus are optional.
type Deps struct {
	Session *session.Session
	Repo    domain.Repository
	Cache   domain.Cache
	Bus     domain.EventBus

	// Worker is the reload worker consuming Bus, reported by /health.
	Worker *worker.ReloadWorker

	// Source names where datasets come from: file, http or repository.
	Source  string
	Version string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	return &Handler{
		session: deps.Session,
		repo:    deps.Repo,
		cache:   deps.Cache,
		bus:     deps.Bus,
		worker:  deps.Worker,
		source:  deps.Source,
		version: deps.Version,
	}
}

// TransactionsResponse is the response for transaction listings.
type TransactionsResponse struct {
	session.View

	// UnknownRules lists requested rule ids missing from the catalog.
	UnknownRules []string `json:"unknownRules,omitempty"`
}

// QueryRequest is the request body for POST /transactions/query.
type QueryRequest struct {
	Criteria         domain.FilterCriteria `json:"criteria"`
	ShowOnlyMatching bool                  `json:"showOnlyMatching"`
	Page             int                   `json:"page"`
	PageSize         int                   `json:"pageSize"`
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			status = "degraded"
			checks[name] = err.Error()
			return
		}
		checks[name] = "ok"
	}

	ctx := r.Context()
	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventbus", func() error { return h.bus.Ping(ctx) })
	}

	stats := map[string]any{}
	if sc, ok := h.cache.(sizedCache); ok {
		size, capacity := sc.Stats()
		stats["cache"] = map[string]int{"entries": size, "capacity": capacity}
	}
	if h.worker != nil {
		ws := h.worker.GetStats()
		if ws.Stopped {
			status = "degraded"
			checks["reload_worker"] = "stopped"
		} else {
			checks["reload_worker"] = "ok"
		}
		stats["reloadWorker"] = ws
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
		"stats":   stats,
	})
}

// sizedCache is implemented by the in-process memo caches.
type sizedCache interface {
	Stats() (size int, capacity int)
}

// Ready reports 200 once a dataset is installed and 503 while loading.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ds, err := h.session.Dataset()
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"state": string(h.session.State()),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"state":     h.session.State(),
		"datasetId": ds.ID,
		"loaded":    ds.Loaded,
	})
}

// RuleView is a catalog entry plus the condition the engine evaluates for it.
type RuleView struct {
	domain.RuleDefinition

	Condition string `json:"condition"`

	// Builtin is false for catalog rules the engine has no predicate for.
	Builtin bool `json:"builtin"`
}

// ListRules returns the active rule catalog.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	ds, err := h.session.Dataset()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	engine := h.session.Engine()
	views := make([]RuleView, len(ds.Rules))
	for i, rule := range ds.Rules {
		cond, ok := engine.Condition(rule.RuleID)
		views[i] = RuleView{RuleDefinition: rule, Condition: cond, Builtin: ok}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"rules":     views,
		"builtins":  engine.RuleIDs(),
		"count":     len(ds.Rules),
		"source":    h.source,
		"fallback":  ds.FallbackRules,
		"datasetId": ds.ID,
	})
}

// ListTransactions handles GET /transactions.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ds, err := h.session.Dataset()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	q := r.URL.Query()

	page, err := intParam(q, "page", 1)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	size, err := intParam(q, "pageSize", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	onlyMatching := false
	if v := q.Get("onlyMatching"); v != "" {
		onlyMatching, err = strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "onlyMatching must be a boolean")
			return
		}
	}

	selected, unknown := rules.Select(listParam(q, "rules"), ds.Rules)

	criteria := domain.FilterCriteria{
		SelectedRules: selected,
		Search:        q.Get("search"),
		SelectedDateRange: domain.DateRange{
			Start: q.Get("start"),
			End:   q.Get("end"),
		},
		Priority: domain.RiskTier(q.Get("priority")),
		PriceRange: domain.PriceRange{
			Min: q.Get("min"),
			Max: q.Get("max"),
		},
		SelectedCurrency: listParam(q, "currency"),
	}

	view, err := h.session.View(r.Context(), criteria, onlyMatching, page, size)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TransactionsResponse{View: *view, UnknownRules: unknown})
}

// QueryTransactions handles POST /transactions/query. Rule objects in the
// criteria are evaluated as given.
func (h *Handler) QueryTransactions(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	view, err := h.session.View(r.Context(), req.Criteria, req.ShowOnlyMatching, req.Page, req.PageSize)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, TransactionsResponse{View: *view})
}

// GetTransaction returns one annotated transaction with its rule evaluations.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	txID := chi.URLParam(r, "id")
	if txID == "" {
		writeError(w, http.StatusBadRequest, "transaction id is required")
		return
	}

	ds, err := h.session.Dataset()
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	selected, _ := rules.Select(listParam(r.URL.Query(), "rules"), ds.Rules)

	txn, err := h.session.Transaction(r.Context(), txID, selected)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// ReloadDataset publishes a reload request, or reloads synchronously when
// no event bus is configured.
func (h *Handler) ReloadDataset(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus != nil {
		req := worker.ReloadRequest{Reason: "api", RequestedBy: r.RemoteAddr}
		if err := worker.RequestReload(ctx, h.bus, req); err != nil {
			slog.Error("failed to publish reload request", "error", err, "trace_id", GetTraceID(ctx))
			writeError(w, http.StatusInternalServerError, "failed to request reload")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"status": "reload requested",
		})
		return
	}

	ds, err := h.session.Load(ctx)
	if err != nil {
		h.writeSessionError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"datasetId":     ds.ID,
		"transactions":  len(ds.Transactions),
		"rules":         len(ds.Rules),
		"dropped":       ds.Dropped,
		"loaded":        ds.Loaded,
		"fallbackRules": ds.FallbackRules,
	})
}

func (h *Handler) writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": err.Error(),
			"state": string(h.session.State()),
		})
	case errors.Is(err, pagination.ErrInvalidPageSize):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrTransactionNotFound):
		writeError(w, http.StatusNotFound, "transaction not found")
	case errors.Is(err, session.ErrStaleLoad):
		writeError(w, http.StatusConflict, err.Error())
	default:
		slog.Error("request failed",
			"path", r.URL.Path,
			"error", err,
			"trace_id", GetTraceID(r.Context()),
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// listParam accepts repeated and comma separated values.
func listParam(q url.Values, key string) []string {
	var out []string
	for _, v := range q[key] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func intParam(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New(key + " must be an integer")
	}
	return n, nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
