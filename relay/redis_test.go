package relay

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/fred1433/CounselAI/model"
	"github.com/redis/go-redis/v9"
)

func newTestBus(t *testing.T, mr *miniredis.Miniredis) *RedisBus {
	t.Helper()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisBus(client, "contract-relay-test")
}

func TestRedisBusPublishSubscribe(t *testing.T) {
	mr := miniredis.RunT(t)
	bus := newTestBus(t, mr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan []byte, 16)
	done := make(chan error, 1)
	go func() {
		done <- bus.Subscribe(ctx, func(frame []byte) { received <- frame })
	}()

	// Publish until the subscription is live.
	deadline := time.After(5 * time.Second)
	for {
		if err := bus.Publish(ctx, []byte("hello")); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
		select {
		case frame := <-received:
			if string(frame) != "hello" {
				t.Fatalf("Expected hello, got %q", frame)
			}
			cancel()
			if err := <-done; err != context.Canceled {
				t.Errorf("Expected context.Canceled, got %v", err)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("Timed out waiting for subscription")
		}
	}
}

func TestHubsShareBroadcastsOverRedis(t *testing.T) {
	mr := miniredis.RunT(t)

	sender := NewHub(newTestBus(t, mr), 64)
	receiver := NewHub(newTestBus(t, mr), 64)

	remote := newTestClient(receiver, 64)
	receiver.register(remote)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sender.Run(ctx)
	go receiver.Run(ctx)

	deadline := time.After(5 * time.Second)
	for {
		if err := sender.Broadcast(ctx, EventContractUpdate, model.EditResult{Contract: "# A", RequestID: "req-redis"}); err != nil {
			t.Fatalf("Broadcast failed: %v", err)
		}
		select {
		case data := <-remote.send:
			var frame Frame
			if err := json.Unmarshal(data, &frame); err != nil {
				t.Fatalf("Invalid frame: %v", err)
			}
			var result model.EditResult
			json.Unmarshal(frame.Data, &result)
			if frame.Event != EventContractUpdate || result.RequestID != "req-redis" {
				t.Errorf("Unexpected frame %s %s", frame.Event, frame.Data)
			}
			return
		case <-time.After(50 * time.Millisecond):
		case <-deadline:
			t.Fatal("Timed out waiting for cross-hub delivery")
		}
	}
}

func TestDialRedisBusUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := DialRedisBus(ctx, "127.0.0.1:1", "", "c"); err == nil {
		t.Error("Expected error for unreachable redis")
	}
}
