// Package events implements the observer contract between the stateful
// components and the view layer: components publish state transitions,
// subscribers (SSE stream, WebSocket channel) redraw from them. The
// components themselves carry no view vocabulary.
package events

import (
	"log/slog"
	"sync"
	"time"
)

// Type labels what kind of state changed.
type Type string

const (
	// TypeSession is a conversation session transition: a message was
	// appended or the pending flag flipped.
	TypeSession Type = "session"
	// TypeUpload is a document task phase transition.
	TypeUpload Type = "upload"
)

// Event is one published state transition.
type Event struct {
	Type      Type      `json:"type"`
	UserID    string    `json:"user_id"`
	ChatKey   string    `json:"chat_key,omitempty"`
	Payload   any       `json:"payload"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer bounds each subscriber's channel. A slow subscriber
// loses events rather than blocking publishers.
const subscriberBuffer = 64

type subscriber struct {
	id     int64
	userID string
	ch     chan Event
}

// Broker fans state transitions out to per-user subscribers.
type Broker struct {
	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64
	logger *slog.Logger
}

// NewBroker creates an event broker.
func NewBroker(logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broker{
		subs:   make(map[int64]*subscriber),
		logger: logger,
	}
}

// Subscribe registers a listener for one user's events. The returned
// cancel function must be called when the listener goes away.
func (b *Broker) Subscribe(userID string) (<-chan Event, func()) {
	b.mu.Lock()
	b.nextID++
	sub := &subscriber{
		id:     b.nextID,
		userID: userID,
		ch:     make(chan Event, subscriberBuffer),
	}
	b.subs[sub.id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if _, ok := b.subs[sub.id]; ok {
			delete(b.subs, sub.id)
			close(sub.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers an event to every subscriber of its user. Delivery is
// best-effort: a full subscriber channel drops the event.
func (b *Broker) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if sub.userID != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn("dropping event for slow subscriber",
				"user_id", ev.UserID,
				"type", ev.Type,
			)
		}
	}
}
