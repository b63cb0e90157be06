package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestBus_PublishDelivers(t *testing.T) {
	b := NewWithConfig(2, 10)
	defer b.Close(context.Background())

	var mu sync.Mutex
	var got []Event
	var wg sync.WaitGroup
	wg.Add(2)

	b.SubscribeAll(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		wg.Done()
	})

	b.Publish(Event{Type: EventAccessoryCreated, Token: "a"})
	b.Publish(Event{Type: EventWriteFailed, Token: "b"})
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
}

func TestBus_UnsubscribedTypeIsDropped(t *testing.T) {
	b := NewWithConfig(1, 1)
	defer b.Close(context.Background())

	called := make(chan struct{}, 1)
	b.Subscribe(EventAccessoryCreated, func(Event) { called <- struct{}{} })
	b.Publish(Event{Type: EventAccessoryPruned})

	select {
	case <-called:
		t.Fatal("handler for another type was called")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestBus_HandlerPanicIsRecovered(t *testing.T) {
	b := NewWithConfig(1, 10)
	defer b.Close(context.Background())

	done := make(chan struct{})
	b.Subscribe(EventAccessoryUpdated, func(e Event) {
		if e.Token == "boom" {
			panic("boom")
		}
		close(done)
	})

	b.Publish(Event{Type: EventAccessoryUpdated, Token: "boom"})
	b.Publish(Event{Type: EventAccessoryUpdated, Token: "ok"})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not survive handler panic")
	}
}

func TestBus_PublishAfterClose(t *testing.T) {
	b := NewWithConfig(1, 1)
	b.Subscribe(EventAccessoryCreated, func(Event) {})
	b.Close(context.Background())
	b.Close(context.Background())

	// Must not panic on a closed queue.
	b.Publish(Event{Type: EventAccessoryCreated})
}
