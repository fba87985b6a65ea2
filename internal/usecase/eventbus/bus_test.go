package eventbus

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"lexroute/internal/domain"
)

func newTestBus() *Bus {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func transition(id string, to domain.State) domain.Transition {
	return domain.Transition{CorrelationID: id, To: to, At: time.Now()}
}

func TestSubscribeByCorrelationID(t *testing.T) {
	bus := newTestBus()

	var got []domain.State
	bus.Subscribe("req-1", func(_ context.Context, tr domain.Transition) {
		got = append(got, tr.To)
	})

	bus.Publish(context.Background(), transition("req-1", domain.StateClassified))
	bus.Publish(context.Background(), transition("req-2", domain.StateClassified))
	bus.Publish(context.Background(), transition("req-1", domain.StateComposed))

	if len(got) != 2 || got[0] != domain.StateClassified || got[1] != domain.StateComposed {
		t.Fatalf("got %v, want [classified composed]", got)
	}
}

func TestSubscribeAll(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Transition) {
		got.Add(1)
	})

	bus.Publish(context.Background(), transition("a", domain.StateClassified))
	bus.Publish(context.Background(), transition("b", domain.StateFailed))
	if got.Load() != 2 {
		t.Fatalf("expected 2, got %d", got.Load())
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	unsub := bus.Subscribe("req", func(_ context.Context, _ domain.Transition) {
		got.Add(1)
	})
	unsubAll := bus.SubscribeAll(func(_ context.Context, _ domain.Transition) {
		got.Add(10)
	})

	bus.Publish(context.Background(), transition("req", domain.StateClassified))
	unsub()
	unsubAll()
	bus.Publish(context.Background(), transition("req", domain.StateComposed))

	if got.Load() != 11 {
		t.Fatalf("expected 11, got %d", got.Load())
	}
	if n := bus.Subscribers(); n != 0 {
		t.Fatalf("expected no subscribers, got %d", n)
	}
}

func TestConcurrentPublish(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Transition) {
		got.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Publish(context.Background(), transition("x", domain.StateClassified))
		}()
	}
	wg.Wait()

	if got.Load() != 50 {
		t.Fatalf("expected 50, got %d", got.Load())
	}
}

func TestPanicRecovery(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.Subscribe("req", func(_ context.Context, _ domain.Transition) {
		panic("boom")
	})
	bus.Subscribe("req", func(_ context.Context, _ domain.Transition) {
		got.Add(1)
	})

	bus.Publish(context.Background(), transition("req", domain.StateClassified))
	if got.Load() != 1 {
		t.Fatal("second handler should still run after a panic")
	}
}

func TestCloseRejectsNew(t *testing.T) {
	bus := newTestBus()

	var got atomic.Int32
	bus.SubscribeAll(func(_ context.Context, _ domain.Transition) {
		got.Add(1)
	})
	bus.Close()
	bus.Close()
	bus.Publish(context.Background(), transition("req", domain.StateClassified))

	if got.Load() != 0 {
		t.Fatalf("expected no delivery after Close, got %d", got.Load())
	}
}
