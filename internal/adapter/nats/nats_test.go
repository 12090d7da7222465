package nats

import (
	"context"
	"encoding/json"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/agentlens/feedback-engine/internal/port/messagequeue"
)

// testConnect connects to NATS or skips the test if NATS_URL is not set.
func testConnect(t *testing.T) *Queue {
	t.Helper()

	url := os.Getenv("NATS_URL")
	if url == "" {
		t.Skip("requires NATS_URL")
	}

	q, err := Connect(context.Background(), url)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() {
		if err := q.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return q
}

func TestQueue_PublishSubscribe(t *testing.T) {
	q := testConnect(t)
	subject := messagequeue.SubjectDefinitionCreated

	want := messagequeue.DefinitionEventPayload{
		DefinitionID: "def-" + t.Name(),
		WorkspaceID:  "ws-test",
		Name:         "quality_score",
		Type:         "numerical",
		Version:      1,
	}
	data, err := json.Marshal(want)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var (
		mu  sync.Mutex
		got []messagequeue.DefinitionEventPayload
	)
	done := make(chan struct{})

	cancel, err := q.Subscribe(context.Background(), subject, func(_ context.Context, _ string, data []byte) error {
		var p messagequeue.DefinitionEventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		mu.Lock()
		got = append(got, p)
		mu.Unlock()
		if p.DefinitionID == want.DefinitionID {
			close(done)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer cancel()

	if err := q.Publish(context.Background(), subject, data); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
	}
}

func TestQueue_PublishRejectsInvalidPayload(t *testing.T) {
	q := testConnect(t)

	err := q.Publish(context.Background(), messagequeue.SubjectInstanceCreated, []byte("{not json"))
	if err == nil {
		t.Fatal("expected validation error for malformed payload")
	}
}

func TestQueue_IsConnected(t *testing.T) {
	q := testConnect(t)

	if !q.IsConnected() {
		t.Error("expected connected queue")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if q.IsConnected() {
		t.Error("expected disconnected after Close")
	}
}
