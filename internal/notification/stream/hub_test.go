package stream

import (
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
)

func TestPublishReachesSubscriber(t *testing.T) {
	hub := NewHub()
	recipient := snowflake.ID(42)

	sub, backlog, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()
	if len(backlog) != 0 {
		t.Fatalf("expected empty backlog, got %d", len(backlog))
	}

	hub.Publish(recipient, Event{Kind: EventKindUnreadCount, UnreadCount: 7})

	select {
	case event := <-sub.Events():
		if event.UnreadCount != 7 {
			t.Fatalf("expected count 7, got %d", event.UnreadCount)
		}
	case <-time.After(time.Second):
		t.Fatal("expected event")
	}
}

func TestPublishIsolatedPerRecipient(t *testing.T) {
	hub := NewHub()

	subA, _, err := hub.Subscribe(snowflake.ID(1))
	if err != nil {
		t.Fatalf("subscribe a: %v", err)
	}
	defer subA.Close()
	subB, _, err := hub.Subscribe(snowflake.ID(2))
	if err != nil {
		t.Fatalf("subscribe b: %v", err)
	}
	defer subB.Close()

	hub.Publish(snowflake.ID(1), Event{Kind: EventKindNotification})

	select {
	case <-subA.Events():
	case <-time.After(time.Second):
		t.Fatal("expected event for recipient 1")
	}
	select {
	case <-subB.Events():
		t.Fatal("recipient 2 must not see recipient 1's events")
	default:
	}
}

func TestBacklogReplayedToLateSubscriber(t *testing.T) {
	hub := NewHub()
	recipient := snowflake.ID(9)

	// Keep the stream alive so the buffer survives.
	keeper, _, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe keeper: %v", err)
	}
	defer keeper.Close()

	hub.Publish(recipient, Event{Kind: EventKindUnreadCount, UnreadCount: 1})
	hub.Publish(recipient, Event{Kind: EventKindUnreadCount, UnreadCount: 2})

	_, backlog, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe late: %v", err)
	}
	if len(backlog) != 2 {
		t.Fatalf("expected 2 buffered events, got %d", len(backlog))
	}
	if backlog[1].UnreadCount != 2 {
		t.Fatalf("expected latest count 2, got %d", backlog[1].UnreadCount)
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	hub := NewHub()
	recipient := snowflake.ID(5)

	sub, _, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer sub.Close()

	// Publish must never block, even past the subscriber's channel
	// capacity.
	for i := 0; i < DefaultSubscriberBuffer*3; i++ {
		hub.Publish(recipient, Event{Kind: EventKindUnreadCount, UnreadCount: int64(i)})
	}

	received := 0
	for {
		select {
		case <-sub.Events():
			received++
			continue
		default:
		}
		break
	}
	if received == 0 || received > DefaultSubscriberBuffer {
		t.Fatalf("expected between 1 and %d delivered events, got %d", DefaultSubscriberBuffer, received)
	}
}

func TestCloseRemovesEmptyStream(t *testing.T) {
	hub := NewHub()
	recipient := snowflake.ID(3)

	sub, _, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	sub.Close()
	sub.Close()

	hub.mu.RLock()
	_, exists := hub.streams[recipient]
	hub.mu.RUnlock()
	if exists {
		t.Fatal("expected stream cleanup after last close")
	}
}

func TestBufferBounded(t *testing.T) {
	hub := NewHub()
	recipient := snowflake.ID(8)

	keeper, _, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe keeper: %v", err)
	}
	defer keeper.Close()

	for i := 0; i < DefaultBufferSize*2; i++ {
		hub.Publish(recipient, Event{Kind: EventKindUnreadCount, UnreadCount: int64(i)})
	}

	_, backlog, err := hub.Subscribe(recipient)
	if err != nil {
		t.Fatalf("subscribe late: %v", err)
	}
	if len(backlog) != DefaultBufferSize {
		t.Fatalf("expected backlog capped at %d, got %d", DefaultBufferSize, len(backlog))
	}
	if backlog[len(backlog)-1].UnreadCount != int64(DefaultBufferSize*2-1) {
		t.Fatalf("expected newest event retained, got %d", backlog[len(backlog)-1].UnreadCount)
	}
}
