package events

import (
	"testing"
	"time"
)

func TestPublishReachesSubscriber(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventOrderOpened, 4)
	defer unsub()

	b.Publish(EventOrderOpened, OrderOpened{UserID: "alice", PositionID: "p1"})

	select {
	case msg := <-ch:
		e, ok := msg.(OrderOpened)
		if !ok || e.UserID != "alice" || e.PositionID != "p1" {
			t.Fatalf("unexpected payload: %#v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(EventOrderClosed, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(EventOrderClosed, OrderClosed{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventPositionLiquidated, 1)
	unsub()

	if _, ok := <-ch; ok {
		t.Fatal("channel still open after unsubscribe")
	}

	// Publishing after unsubscribe must not panic.
	b.Publish(EventPositionLiquidated, PositionLiquidated{})
}
