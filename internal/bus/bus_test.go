package bus

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func waitGroup(t *testing.T, wg *sync.WaitGroup, timeout time.Duration) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		t.Fatal("timeout waiting for messages")
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		var mu sync.Mutex
		var receivedMsg *domain.Message

		var wg sync.WaitGroup
		wg.Add(1)

		_, err := bus.Subscribe(ctx, domain.TopicDatasetReload, func(ctx context.Context, msg *domain.Message) error {
			mu.Lock()
			receivedMsg = msg
			mu.Unlock()
			wg.Done()
			return nil
		})
		if err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, domain.TopicDatasetReload, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		waitGroup(t, &wg, time.Second)

		mu.Lock()
		defer mu.Unlock()
		if string(receivedMsg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(receivedMsg.Payload))
		}
		if receivedMsg.Topic != domain.TopicDatasetReload {
			t.Errorf("expected topic %s, got %s", domain.TopicDatasetReload, receivedMsg.Topic)
		}
		if receivedMsg.ID == "" || receivedMsg.Timestamp == 0 {
			t.Error("expected message id and timestamp to be set")
		}
	})

	t.Run("TopicIsolation", func(t *testing.T) {
		var loaded, failed atomic.Int32

		bus.Subscribe(ctx, "isolation.loaded", func(ctx context.Context, msg *domain.Message) error {
			loaded.Add(1)
			return nil
		})
		bus.Subscribe(ctx, "isolation.failed", func(ctx context.Context, msg *domain.Message) error {
			failed.Add(1)
			return nil
		})

		bus.Publish(ctx, "isolation.loaded", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if loaded.Load() != 1 {
			t.Errorf("loaded subscriber should receive 1 message, got %d", loaded.Load())
		}
		if failed.Load() != 0 {
			t.Errorf("failed subscriber should receive 0 messages, got %d", failed.Load())
		}
	})

	t.Run("PublishWithoutSubscribers", func(t *testing.T) {
		if err := bus.Publish(ctx, "nobody.listens", []byte("x")); err != nil {
			t.Errorf("publish without subscribers should succeed: %v", err)
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		var count atomic.Int32

		sub, _ := bus.Subscribe(ctx, "unsub.topic", func(ctx context.Context, msg *domain.Message) error {
			count.Add(1)
			return nil
		})

		bus.Publish(ctx, "unsub.topic", []byte("msg1"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message before unsubscribe, got %d", count.Load())
		}

		sub.Unsubscribe()

		bus.Publish(ctx, "unsub.topic", []byte("msg2"))
		time.Sleep(50 * time.Millisecond)

		if count.Load() != 1 {
			t.Errorf("expected 1 message after unsubscribe, got %d", count.Load())
		}

		bus.mu.RLock()
		remaining := len(bus.subscriptions["unsub.topic"])
		bus.mu.RUnlock()
		if remaining != 0 {
			t.Errorf("expected subscription removed, %d remain", remaining)
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		var wg sync.WaitGroup
		wg.Add(2)

		for range 2 {
			bus.Subscribe(ctx, "multi.topic", func(ctx context.Context, msg *domain.Message) error {
				wg.Done()
				return nil
			})
		}

		bus.Publish(ctx, "multi.topic", []byte("broadcast"))
		waitGroup(t, &wg, time.Second)
	})

	t.Run("HandlerErrorDoesNotStopSubscription", func(t *testing.T) {
		var calls atomic.Int32
		var wg sync.WaitGroup
		wg.Add(2)

		bus.Subscribe(ctx, "error.topic", func(ctx context.Context, msg *domain.Message) error {
			calls.Add(1)
			wg.Done()
			return context.DeadlineExceeded
		})

		bus.Publish(ctx, "error.topic", []byte("a"))
		bus.Publish(ctx, "error.topic", []byte("b"))
		waitGroup(t, &wg, time.Second)

		if calls.Load() != 2 {
			t.Errorf("expected 2 handler calls, got %d", calls.Load())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, domain.TopicDatasetLoaded, func(ctx context.Context, msg *domain.Message) error {
			return nil
		})

		if sub.Topic() != domain.TopicDatasetLoaded {
			t.Errorf("expected topic '%s', got '%s'", domain.TopicDatasetLoaded, sub.Topic())
		}
	})
}

func TestChannelBusOrdering(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()

	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	var wg sync.WaitGroup
	wg.Add(3)

	bus.Subscribe(ctx, "order.topic", func(ctx context.Context, msg *domain.Message) error {
		mu.Lock()
		got = append(got, string(msg.Payload))
		mu.Unlock()
		wg.Done()
		return nil
	})

	for _, p := range []string{"1", "2", "3"} {
		bus.Publish(ctx, "order.topic", []byte(p))
	}
	waitGroup(t, &wg, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if got[0] != "1" || got[1] != "2" || got[2] != "3" {
		t.Errorf("expected messages in publish order, got %v", got)
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)

	ctx := context.Background()

	bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error {
		return nil
	})

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}

	if err := bus.Publish(ctx, "close.topic", []byte("data")); err == nil {
		t.Error("expected publish error after close")
	}

	if _, err := bus.Subscribe(ctx, "close.topic", func(ctx context.Context, msg *domain.Message) error { return nil }); err == nil {
		t.Error("expected subscribe error after close")
	}

	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("DefaultType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		cb, ok := bus.(*ChannelBus)
		if !ok {
			t.Fatal("expected ChannelBus for empty type")
		}
		if cb.bufferSize != 100 {
			t.Errorf("expected default buffer size 100, got %d", cb.bufferSize)
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()

	var received atomic.Int32
	const messageCount = 100

	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for range messageCount {
		bus.Publish(ctx, "load.topic", []byte("msg"))
	}

	waitGroup(t, &wg, 5*time.Second)

	if received.Load() != messageCount {
		t.Errorf("expected %d messages, got %d", messageCount, received.Load())
	}
}
