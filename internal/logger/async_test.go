package logger

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"
)

// captureHandler records everything it handles.
type captureHandler struct {
	mu    sync.Mutex
	recs  []slog.Record
	delay time.Duration
}

func (h *captureHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *captureHandler) Handle(_ context.Context, rec slog.Record) error { //nolint:gocritic // slog.Handler interface requires value receiver
	if h.delay > 0 {
		time.Sleep(h.delay)
	}
	h.mu.Lock()
	h.recs = append(h.recs, rec)
	h.mu.Unlock()
	return nil
}

func (h *captureHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h *captureHandler) WithGroup(string) slog.Handler      { return h }

func (h *captureHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.recs)
}

func TestAsyncHandlerDeliversRecord(t *testing.T) {
	inner := &captureHandler{}
	ah := NewAsyncHandler(inner, 64, 1)

	rec := slog.NewRecord(time.Now(), slog.LevelInfo, "definition created", 0)
	if err := ah.Handle(context.Background(), rec); err != nil {
		t.Fatalf("Handle: %v", err)
	}
	ah.Close()

	if got := inner.count(); got != 1 {
		t.Fatalf("expected 1 record, got %d", got)
	}
}

func TestAsyncHandlerConcurrentProducers(t *testing.T) {
	const producers = 50
	const perProducer = 200
	want := producers * perProducer

	inner := &captureHandler{}
	ah := NewAsyncHandler(inner, want, 4)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				rec := slog.NewRecord(time.Now(), slog.LevelInfo, "concurrent", 0)
				_ = ah.Handle(context.Background(), rec)
			}
		}()
	}
	wg.Wait()
	ah.Close()

	if got := inner.count(); got != want {
		t.Fatalf("expected %d records, got %d", want, got)
	}
}

func TestAsyncHandlerDropsOnFullQueue(t *testing.T) {
	inner := &captureHandler{delay: 10 * time.Millisecond}
	ah := NewAsyncHandler(inner, 1, 1)

	for n := 0; n < 40; n++ {
		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "flood", 0)
		_ = ah.Handle(context.Background(), rec)
	}
	ah.Close()

	if ah.DroppedCount() == 0 {
		t.Fatal("expected drops with a full queue")
	}
	if inner.count()+int(ah.DroppedCount()) != 40 {
		t.Fatalf("delivered %d + dropped %d != 40", inner.count(), ah.DroppedCount())
	}
}

func TestAsyncHandlerCloseFlushesQueue(t *testing.T) {
	inner := &captureHandler{}
	ah := NewAsyncHandler(inner, 500, 2)

	const total = 300
	for n := 0; n < total; n++ {
		rec := slog.NewRecord(time.Now(), slog.LevelInfo, "flush", 0)
		_ = ah.Handle(context.Background(), rec)
	}
	ah.Close()

	if got := inner.count(); got != total {
		t.Fatalf("expected %d records after Close, got %d", total, got)
	}
}
