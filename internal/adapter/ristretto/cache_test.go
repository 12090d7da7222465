package ristretto

import (
	"context"
	"testing"
	"time"

	"github.com/agentlens/feedback-engine/internal/config"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	c, err := New(config.Cache{MaxSizeMB: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCacheSetGet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "def:1", []byte(`{"id":"1"}`), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Wait()

	data, ok, err := c.Get(ctx, "def:1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected cache hit")
	}
	if string(data) != `{"id":"1"}` {
		t.Errorf("got %q", data)
	}
}

func TestCacheMiss(t *testing.T) {
	c := newTestCache(t)

	_, ok, err := c.Get(context.Background(), "def:absent")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Error("expected cache miss")
	}
}

func TestCacheDelete(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "def:1", []byte("x"), time.Minute); err != nil {
		t.Fatalf("Set: %v", err)
	}
	c.Wait()

	if err := c.Delete(ctx, "def:1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	c.Wait()

	if _, ok, _ := c.Get(ctx, "def:1"); ok {
		t.Error("expected miss after delete")
	}
}
