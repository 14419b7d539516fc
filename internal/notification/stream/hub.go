// Package stream fans notification events out to live subscribers.
// Streams are keyed per recipient; nothing global is shared between
// users.
package stream

import (
	"errors"
	"sync"

	"github.com/bwmarrin/snowflake"
)

const (
	DefaultBufferSize       = 50
	DefaultSubscriberBuffer = 16
)

const (
	EventKindNotification = "notification"
	EventKindUnreadCount  = "unread_count"
)

// Event is one frame pushed to a recipient's open connections.
type Event struct {
	Kind        string         `json:"kind"`
	UnreadCount int64          `json:"unread_count,omitempty"`
	Payload     map[string]any `json:"payload,omitempty"`
}

type Hub struct {
	mu               sync.RWMutex
	streams          map[snowflake.ID]*stream
	bufferSize       int
	subscriberBuffer int
}

type stream struct {
	mu     sync.Mutex
	buffer []Event
	subs   map[uint64]chan Event
	nextID uint64
}

type Subscription struct {
	hub         *Hub
	recipientID snowflake.ID
	id          uint64
	ch          chan Event
	once        sync.Once
}

func NewHub() *Hub {
	return &Hub{
		streams:          make(map[snowflake.ID]*stream),
		bufferSize:       DefaultBufferSize,
		subscriberBuffer: DefaultSubscriberBuffer,
	}
}

// Publish delivers an event to every open subscription of one
// recipient. Slow subscribers are skipped rather than blocked on; the
// ledger stays the source of truth.
func (h *Hub) Publish(recipientID snowflake.ID, event Event) {
	if h == nil || recipientID == 0 {
		return
	}
	h.mu.RLock()
	stream := h.streams[recipientID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	stream.buffer = append(stream.buffer, event)
	if len(stream.buffer) > h.bufferSize {
		stream.buffer = stream.buffer[len(stream.buffer)-h.bufferSize:]
	}
	subs := make([]chan Event, 0, len(stream.subs))
	for _, ch := range stream.subs {
		subs = append(subs, ch)
	}
	stream.mu.Unlock()

	for _, ch := range subs {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe opens a stream for one recipient and returns the buffered
// backlog alongside the live channel.
func (h *Hub) Subscribe(recipientID snowflake.ID) (*Subscription, []Event, error) {
	if h == nil {
		return nil, nil, errors.New("hub_unavailable")
	}
	if recipientID == 0 {
		return nil, nil, errors.New("invalid_recipient")
	}

	stream := h.ensureStream(recipientID)
	stream.mu.Lock()
	if stream.subs == nil {
		stream.subs = make(map[uint64]chan Event)
	}
	id := stream.nextID
	stream.nextID++
	ch := make(chan Event, h.subscriberBuffer)
	stream.subs[id] = ch
	buffer := append([]Event(nil), stream.buffer...)
	stream.mu.Unlock()

	return &Subscription{
		hub:         h,
		recipientID: recipientID,
		id:          id,
		ch:          ch,
	}, buffer, nil
}

func (h *Hub) ensureStream(recipientID snowflake.ID) *stream {
	h.mu.RLock()
	current := h.streams[recipientID]
	h.mu.RUnlock()
	if current != nil {
		return current
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	current = h.streams[recipientID]
	if current == nil {
		current = &stream{subs: make(map[uint64]chan Event)}
		h.streams[recipientID] = current
	}
	return current
}

func (h *Hub) unsubscribe(recipientID snowflake.ID, id uint64) {
	if h == nil || recipientID == 0 {
		return
	}

	h.mu.RLock()
	stream := h.streams[recipientID]
	h.mu.RUnlock()
	if stream == nil {
		return
	}

	stream.mu.Lock()
	delete(stream.subs, id)
	remaining := len(stream.subs)
	stream.mu.Unlock()
	if remaining != 0 {
		return
	}

	h.mu.Lock()
	current := h.streams[recipientID]
	if current != stream {
		h.mu.Unlock()
		return
	}
	stream.mu.Lock()
	empty := len(stream.subs) == 0
	stream.mu.Unlock()
	if empty {
		delete(h.streams, recipientID)
	}
	h.mu.Unlock()
}

func (s *Subscription) Events() <-chan Event {
	if s == nil {
		return nil
	}
	return s.ch
}

func (s *Subscription) Close() {
	if s == nil || s.hub == nil {
		return
	}
	s.once.Do(func() {
		s.hub.unsubscribe(s.recipientID, s.id)
	})
}
