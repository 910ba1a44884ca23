// Package relay provides per-session publish/subscribe message delivery.
package relay

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aesp-dev/peer-practice/internal/domain"
)

// Subscription receives messages published to a single topic. C is closed
// when the subscription is cancelled or the topic is closed.
type Subscription struct {
	topic  string
	ch     chan domain.Message
	once   sync.Once
	broker *Broker
}

// C returns the receive channel for the subscription.
func (s *Subscription) C() <-chan domain.Message {
	return s.ch
}

// Close cancels the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.broker.unsubscribe(s)
}

// Broker fans published messages out to all current subscribers of a topic.
// Delivery is at-most-once per subscriber: a subscriber whose buffer is full
// misses the message rather than stalling every other participant. Ordering
// is FIFO per publisher only; no ordering is guaranteed across publishers or
// between chat messages and in-flight AI feedback.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
	closed bool

	dropped atomic.Uint64 // messages dropped due to slow subscribers
}

// NewBroker creates a broker whose subscriptions buffer up to buffer messages.
func NewBroker(buffer int) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	return &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber on a topic.
func (b *Broker) Subscribe(topic string) *Subscription {
	sub := &Subscription{
		topic:  topic,
		ch:     make(chan domain.Message, b.buffer),
		broker: b,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(sub.ch)
		return sub
	}

	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[topic] = subs
	}
	subs[sub] = struct{}{}

	return sub
}

func (b *Broker) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	if subs, ok := b.topics[sub.topic]; ok {
		if _, present := subs[sub]; present {
			delete(subs, sub)
			if len(subs) == 0 {
				delete(b.topics, sub.topic)
			}
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.mu.Unlock()
}

// Publish delivers msg to every current subscriber of the topic. Publishing
// to a topic with no subscribers, or to a closed topic, is a no-op; late AI
// replies arriving after session end land here and are silently dropped.
func (b *Broker) Publish(topic string, msg domain.Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.topics[topic] {
		select {
		case sub.ch <- msg:
		default:
			b.dropped.Add(1)
			slog.Warn("Dropping message for slow subscriber",
				"topic", topic, "session_id", msg.SessionID, "type", msg.Type)
		}
	}
}

// CloseTopic removes all subscribers of a topic and closes their channels.
// Called when a session reaches a terminal state.
func (b *Broker) CloseTopic(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.topics[topic] {
		sub.once.Do(func() { close(sub.ch) })
	}
	delete(b.topics, topic)
}

// Dropped returns the total number of messages dropped on full subscriber
// buffers since the broker started.
func (b *Broker) Dropped() uint64 {
	return b.dropped.Load()
}

// SubscriberCount returns the number of current subscribers of a topic.
func (b *Broker) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close shuts the broker down, closing every topic. Subsequent subscriptions
// receive an already-closed channel.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for topic, subs := range b.topics {
		for sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.topics, topic)
	}
}
