package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestChannelEventBus_PublishAndSubscribe(t *testing.T) {
	eb := NewChannelEventBus(
		WithBufferSize(1),
		WithWorkerCount(1),
	)
	defer eb.Close()

	received := make(chan string, 1)
	handler := func(ctx context.Context, event Event) error {
		received <- string(event.Type())
		return nil
	}
	_, err := eb.Subscribe([]EventType{EventRetrievalSuccess}, handler)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	evt := NewEvent(EventRetrievalSuccess, nil, "test", nil)
	err = eb.Publish(context.Background(), evt)
	if err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case typ := <-received:
		if typ != string(EventRetrievalSuccess) {
			t.Errorf("expected event type %v, got %v", EventRetrievalSuccess, typ)
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for event handler")
	}
}

func TestChannelEventBus_TypeFiltering(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))
	defer eb.Close()

	var mu sync.Mutex
	var got []EventType
	_, err := eb.Subscribe([]EventType{EventAnswerAccepted}, func(ctx context.Context, event Event) error {
		mu.Lock()
		got = append(got, event.Type())
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}

	eb.Publish(context.Background(), NewEmptyEvent(EventAnswerRejected))
	eb.Publish(context.Background(), NewEmptyEvent(EventAnswerAccepted))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(got) != 1 || got[0] != EventAnswerAccepted {
		t.Errorf("expected only answer_accepted, got %v", got)
	}
}

func TestChannelEventBus_SubscribeAll(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))
	defer eb.Close()

	var mu sync.Mutex
	count := 0
	_, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	eb.Publish(context.Background(), NewEmptyEvent(EventRetrievalStarted))
	eb.Publish(context.Background(), NewEmptyEvent(EventGraphQueryStarted))

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if count != 2 {
		t.Errorf("expected 2 events, got %d", count)
	}
}

func TestChannelEventBus_Unsubscribe(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))
	defer eb.Close()

	var mu sync.Mutex
	count := 0
	id, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		mu.Lock()
		count++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	eb.Publish(context.Background(), NewEmptyEvent(EventSynthesisStarted))
	time.Sleep(50 * time.Millisecond)

	if err := eb.Unsubscribe(id); err != nil {
		t.Fatalf("Unsubscribe failed: %v", err)
	}
	eb.Publish(context.Background(), NewEmptyEvent(EventSynthesisSuccess))
	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if count != 1 {
		t.Errorf("expected 1 event after unsubscribe, got %d", count)
	}

	if err := eb.Unsubscribe("missing"); err == nil {
		t.Error("expected error for unknown subscription")
	}
}

func TestChannelEventBus_PublishAfterClose(t *testing.T) {
	eb := NewChannelEventBus(WithWorkerCount(1))
	if err := eb.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := eb.Publish(context.Background(), NewEmptyEvent(EventSystemInfo)); err == nil {
		t.Error("expected error publishing on a closed bus")
	}
	if _, err := eb.Subscribe([]EventType{EventSystemInfo}, func(ctx context.Context, e Event) error { return nil }); err == nil {
		t.Error("expected error subscribing on a closed bus")
	}
	// Closing twice is fine.
	if err := eb.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
}

func TestChannelEventBus_BufferFull(t *testing.T) {
	// No workers draining fast enough: buffer of 1, worker blocked by a slow
	// handler, second publish should be dropped with an error rather than
	// blocking the publisher.
	block := make(chan struct{})
	eb := NewChannelEventBus(WithBufferSize(1), WithWorkerCount(1))
	defer eb.Close()

	_, err := eb.SubscribeAll(func(ctx context.Context, event Event) error {
		<-block
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeAll failed: %v", err)
	}

	// First event occupies the worker, second fills the buffer.
	eb.Publish(context.Background(), NewEmptyEvent(EventSystemInfo))
	time.Sleep(10 * time.Millisecond)
	eb.Publish(context.Background(), NewEmptyEvent(EventSystemInfo))

	if err := eb.Publish(context.Background(), NewEmptyEvent(EventSystemInfo)); err == nil {
		t.Error("expected error when buffer is full")
	}
	close(block)
}
