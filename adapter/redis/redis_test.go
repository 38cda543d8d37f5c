package redis

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/pithecene-io/tally/adapter"
)

func testEvent() *adapter.VerificationCompletedEvent {
	return &adapter.VerificationCompletedEvent{
		Version:         "0.3.0",
		EventType:       adapter.EventTypeVerificationCompleted,
		RunID:           "run-001",
		Suite:           "wordcount",
		State:           "success",
		Message:         "all 2 producers closed, 5 records verified",
		Parallelism:     2,
		RecordsReceived: 5,
		RecordsExpected: 5,
		Timestamp:       "2026-02-07T12:00:00Z",
		DurationMs:      1500,
	}
}

// asyncReceive starts a goroutine that reads one message from the subscriber
// and sends it to the returned channel. Must be called BEFORE Publish to avoid
// deadlocking miniredis's synchronous pub/sub delivery.
func asyncReceive(sub *miniredis.Subscriber) <-chan miniredis.PubsubMessage {
	ch := make(chan miniredis.PubsubMessage, 1)
	go func() {
		ch <- <-sub.Messages()
	}()
	return ch
}

func waitMessage(t *testing.T, ch <-chan miniredis.PubsubMessage) miniredis.PubsubMessage {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for pub/sub message")
		return miniredis.PubsubMessage{} // unreachable
	}
}

func TestPublish_Success(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{URL: "redis://" + mr.Addr(), Retries: 0})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(DefaultChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != DefaultChannel {
		t.Errorf("expected channel %q, got %q", DefaultChannel, msg.Channel)
	}

	var received adapter.VerificationCompletedEvent
	if err := json.Unmarshal([]byte(msg.Message), &received); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if received.RunID != "run-001" {
		t.Errorf("expected run-001, got %s", received.RunID)
	}
	if received.EventType != "verification_completed" {
		t.Errorf("expected verification_completed, got %s", received.EventType)
	}
	if received.State != "success" {
		t.Errorf("expected success, got %s", received.State)
	}
	if received.RecordsReceived != 5 {
		t.Errorf("expected 5 records, got %d", received.RecordsReceived)
	}

	if keys := mr.Keys(); len(keys) != 0 {
		t.Errorf("storage disabled, but keys were written: %v", keys)
	}
}

func TestPublish_CustomChannel(t *testing.T) {
	mr := miniredis.RunT(t)

	customChannel := "custom:notifications"
	a, err := New(Config{URL: "redis://" + mr.Addr(), Channel: customChannel})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	sub := mr.NewSubscriber()
	sub.Subscribe(customChannel)
	ch := asyncReceive(sub)

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg := waitMessage(t, ch)
	if msg.Channel != customChannel {
		t.Errorf("expected channel %q, got %q", customChannel, msg.Channel)
	}
}

func TestPublish_StoresResult(t *testing.T) {
	mr := miniredis.RunT(t)

	a, err := New(Config{
		URL:             "redis://" + mr.Addr(),
		ResultKeyPrefix: "tally:result:",
		ResultTTL:       time.Hour,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(t.Context(), testEvent()); err != nil {
		t.Fatalf("publish: %v", err)
	}

	key := a.ResultKey("run-001")
	if key != "tally:result:run-001" {
		t.Fatalf("ResultKey = %q", key)
	}
	stored, err := mr.Get(key)
	if err != nil {
		t.Fatalf("stored result missing: %v", err)
	}
	var event adapter.VerificationCompletedEvent
	if err := json.Unmarshal([]byte(stored), &event); err != nil {
		t.Fatalf("unmarshal stored: %v", err)
	}
	if event.State != "success" {
		t.Errorf("stored state = %q", event.State)
	}
	if ttl := mr.TTL(key); ttl != time.Hour {
		t.Errorf("TTL = %v, want 1h", ttl)
	}
}

func TestPublish_ExhaustsRetries(t *testing.T) {
	// Use an address that won't connect
	a, err := New(Config{
		URL:     "redis://127.0.0.1:1",
		Retries: 2,
		Timeout: 100 * time.Millisecond,
		Backoff: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if err := a.Publish(t.Context(), testEvent()); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestPublish_ContextCanceled(t *testing.T) {
	// Use an address that won't connect; context cancellation should fire first
	a, err := New(Config{URL: "redis://127.0.0.1:1", Retries: 5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	if err := a.Publish(ctx, testEvent()); err == nil {
		t.Fatal("expected error on canceled context")
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("expected error for empty URL")
	}
	if _, err := New(Config{URL: "not-a-url"}); err == nil {
		t.Error("expected error for invalid URL")
	}
	if _, err := New(Config{URL: "redis://localhost:6379", Retries: -1}); err == nil {
		t.Error("expected error for negative retries")
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	a, err := New(Config{URL: "redis://localhost:6379"})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	defer func() { _ = a.Close() }()

	if a.config.Channel != DefaultChannel {
		t.Errorf("Channel = %q", a.config.Channel)
	}
	if a.config.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", a.config.Timeout)
	}
	if a.config.ResultTTL != DefaultResultTTL {
		t.Errorf("ResultTTL = %v", a.config.ResultTTL)
	}
	if a.ResultKey("x") != "" {
		t.Error("ResultKey should be empty without a prefix")
	}
}
