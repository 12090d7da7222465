package natskv

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// testCache binds a throwaway KV bucket or skips if NATS_URL is not set.
func testCache(t *testing.T) *Cache {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("nats.Connect: %v", err)
	}
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	if err != nil {
		t.Fatalf("jetstream.New: %v", err)
	}

	ctx := context.Background()
	bucket := "feedback_defs_test"
	c, err := New(ctx, js, bucket, time.Minute)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() {
		_ = js.DeleteKeyValue(ctx, bucket)
	})
	return c
}

func TestCache_SetGet(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "def-1", []byte(`{"name":"code_quality"}`), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	val, ok, err := c.Get(ctx, "def-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !ok {
		t.Fatal("expected hit after Set")
	}
	if string(val) != `{"name":"code_quality"}` {
		t.Fatalf("unexpected value %s", val)
	}
}

func TestCache_Miss(t *testing.T) {
	c := testCache(t)

	_, ok, err := c.Get(context.Background(), "never-stored")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if ok {
		t.Fatal("expected miss")
	}
}

func TestCache_Delete(t *testing.T) {
	c := testCache(t)
	ctx := context.Background()

	if err := c.Set(ctx, "def-2", []byte("x"), 0); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Delete(ctx, "def-2"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "def-2"); ok {
		t.Fatal("expected miss after Delete")
	}
	if err := c.Delete(ctx, "def-2"); err != nil {
		t.Fatalf("Delete of absent key: %v", err)
	}
}
