package livestream

import (
	"fmt"
	"testing"
	"time"
)

func TestHubFanOutOrder(t *testing.T) {
	h := NewHub(16)
	a := h.Subscribe()
	b := h.Subscribe()
	defer a.Close()
	defer b.Close()

	for i := 0; i < 5; i++ {
		h.Publish(Event{AlertID: fmt.Sprintf("A-%d", i)})
	}

	for _, sub := range []*Subscription{a, b} {
		for i := 0; i < 5; i++ {
			select {
			case evt := <-sub.C:
				if want := fmt.Sprintf("A-%d", i); evt.AlertID != want {
					t.Fatalf("out of order: got %s, want %s", evt.AlertID, want)
				}
			case <-time.After(time.Second):
				t.Fatalf("event %d never delivered", i)
			}
		}
	}
}

func TestHubNoReplayForLateSubscriber(t *testing.T) {
	h := NewHub(16)
	h.Publish(Event{AlertID: "before"})

	sub := h.Subscribe()
	defer sub.Close()

	select {
	case evt := <-sub.C:
		t.Fatalf("late subscriber received replayed event %q", evt.AlertID)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestHubDropsForLaggingSubscriber(t *testing.T) {
	h := NewHub(2)
	slow := h.Subscribe()
	defer slow.Close()

	// Publisher must never block, even with a full subscriber buffer.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			h.Publish(Event{AlertID: fmt.Sprintf("A-%d", i)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	// The slow subscriber keeps its oldest buffered events; the rest were dropped.
	evt := <-slow.C
	if evt.AlertID != "A-0" {
		t.Fatalf("first buffered event = %q, want A-0", evt.AlertID)
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub(4)
	sub := h.Subscribe()
	if h.SubscriberCount() != 1 {
		t.Fatalf("subscriber count = %d, want 1", h.SubscriberCount())
	}
	sub.Close()
	sub.Close() // second close is a no-op
	if h.SubscriberCount() != 0 {
		t.Fatalf("subscriber count = %d after close, want 0", h.SubscriberCount())
	}

	// Channel is closed so ranged readers terminate.
	if _, ok := <-sub.C; ok {
		t.Fatal("closed subscription channel still open")
	}

	// Publishing to an empty hub is fine.
	h.Publish(Event{AlertID: "A-1"})
}

func TestHubConcurrentSubscribePublish(t *testing.T) {
	h := NewHub(8)
	stop := make(chan struct{})
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
				h.Publish(Event{AlertID: "x"})
			}
		}
	}()
	for i := 0; i < 50; i++ {
		sub := h.Subscribe()
		sub.Close()
	}
	close(stop)
}
