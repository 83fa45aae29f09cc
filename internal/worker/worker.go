// Package worker reloads the review dataset in response to bus events.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/session"
)

// Reloader installs a freshly loaded dataset. *session.Session implements it.
type Reloader interface {
	Load(ctx context.Context) (*domain.Dataset, error)
}

// ReloadRequest is the payload of a TopicDatasetReload message.
type ReloadRequest struct {
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requestedBy,omitempty"`
}

// RequestReload publishes a reload request on the bus.
func RequestReload(ctx context.Context, bus domain.EventBus, req ReloadRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return bus.Publish(ctx, domain.TopicDatasetReload, payload)
}

// ReloadWorker reloads the dataset whenever a reload request arrives and
// announces the outcome on TopicDatasetLoaded or TopicDatasetFailed.
type ReloadWorker struct {
	bus      domain.EventBus
	reloader Reloader

	// mu guards subscriptions and stopped, and orders wg.Add before Stop's wg.Wait.
	mu            sync.Mutex
	subscriptions []domain.Subscription
	stopped       bool
	reloads       int64
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewReloadWorker creates a reload worker.
func NewReloadWorker(bus domain.EventBus, reloader Reloader) *ReloadWorker {
	ctx, cancel := context.WithCancel(context.Background())
	return &ReloadWorker{
		bus:      bus,
		reloader: reloader,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to reload requests.
func (w *ReloadWorker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicDatasetReload, w.handleReload)
	if err != nil {
		return err
	}

	w.mu.Lock()
	w.subscriptions = append(w.subscriptions, sub)
	w.mu.Unlock()

	slog.Info("reload worker started", "topic", domain.TopicDatasetReload)
	return nil
}

func (w *ReloadWorker) handleReload(ctx context.Context, msg *domain.Message) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		slog.Debug("reload worker stopped, dropping request", "message_id", msg.ID)
		return nil
	}
	w.wg.Add(1)
	w.reloads++
	w.mu.Unlock()
	defer w.wg.Done()

	start := time.Now()

	var req ReloadRequest
	if len(msg.Payload) > 0 {
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			slog.Warn("ignoring malformed reload request payload",
				"message_id", msg.ID,
				"error", err,
			)
		}
	}

	slog.Info("dataset reload requested",
		"message_id", msg.ID,
		"reason", req.Reason,
		"requested_by", req.RequestedBy,
	)

	ds, err := w.reloader.Load(ctx)
	if errors.Is(err, session.ErrStaleLoad) {
		slog.Info("reload superseded", "message_id", msg.ID)
		return nil
	}

	event := domain.DatasetEvent{}
	topic := domain.TopicDatasetLoaded
	switch {
	case err != nil:
		event.Error = err.Error()
		topic = domain.TopicDatasetFailed
	case !ds.Loaded:
		event = datasetEvent(ds)
		event.Error = ds.TransactionsError
		topic = domain.TopicDatasetFailed
	default:
		event = datasetEvent(ds)
	}

	payload, _ := json.Marshal(event)
	if perr := w.bus.Publish(ctx, topic, payload); perr != nil {
		slog.Error("failed to publish dataset event",
			"topic", topic,
			"error", perr,
		)
	}

	slog.Info("dataset reload finished",
		"dataset_id", event.DatasetID,
		"topic", topic,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return err
}

func datasetEvent(ds *domain.Dataset) domain.DatasetEvent {
	return domain.DatasetEvent{
		DatasetID:     ds.ID,
		Transactions:  len(ds.Transactions),
		Rules:         len(ds.Rules),
		Dropped:       ds.Dropped,
		Loaded:        ds.Loaded,
		FallbackRules: ds.FallbackRules,
	}
}

// Stop unsubscribes and waits for an in-flight reload to finish.
func (w *ReloadWorker) Stop() error {
	w.cancel()

	w.mu.Lock()
	w.stopped = true
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil
	w.mu.Unlock()

	w.wg.Wait()

	slog.Info("reload worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Reloads           int64    `json:"reloads"`
	Stopped           bool     `json:"stopped"`
}

// GetStats returns current worker statistics.
func (w *ReloadWorker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Reloads:           w.reloads,
		Stopped:           w.stopped,
	}
}
