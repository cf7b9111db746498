package notify

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Subscription receives events for one session, or every session when the
// session ID is empty
type Subscription struct {
	id        string
	sessionID string
	ch        chan Event
	broker    *Broker
	once      sync.Once
}

// C returns the channel events are delivered on. It is closed when the
// subscription ends, including when the subscriber falls behind.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close ends the subscription
func (s *Subscription) Close() {
	s.broker.remove(s)
}

// Broker is an in-process pub/sub for battle events
type Broker struct {
	mu     sync.RWMutex
	subs   map[string]*Subscription
	buffer int
}

// NewBroker creates a broker whose subscribers buffer up to buffer events
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broker{
		subs:   make(map[string]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber
func (b *Broker) Subscribe(sessionID string) *Subscription {
	sub := &Subscription{
		id:        uuid.New().String(),
		sessionID: sessionID,
		ch:        make(chan Event, b.buffer),
		broker:    b,
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

// Publish implements Notifier. Slow subscribers are dropped rather than
// blocking the publisher.
func (b *Broker) Publish(ctx context.Context, event Event) {
	var slow []*Subscription

	b.mu.RLock()
	for _, sub := range b.subs {
		if sub.sessionID != "" && sub.sessionID != event.SessionID {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			slow = append(slow, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range slow {
		b.remove(sub)
	}
}

// Subscribers returns the number of live subscriptions
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close ends every subscription
func (b *Broker) Close() {
	b.mu.RLock()
	subs := make([]*Subscription, 0, len(b.subs))
	for _, sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		b.remove(sub)
	}
}

func (b *Broker) remove(sub *Subscription) {
	sub.once.Do(func() {
		b.mu.Lock()
		delete(b.subs, sub.id)
		close(sub.ch)
		b.mu.Unlock()
	})
}
