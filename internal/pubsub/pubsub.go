// Package pubsub provides a topic-keyed publish/subscribe register that
// decouples session event producers from their observers.
package pubsub

import (
	"sync"
)

// Topic names an event stream.
type Topic string

// Handler receives the payload of a publication. Topics that carry no payload
// deliver nil.
type Handler func(payload any)

// Subscription identifies one registered handler. It is the only way to
// remove that handler again.
type Subscription struct {
	topic Topic
	id    uint64
}

// Bus is an explicitly constructed event bus. Publishers and subscribers hold
// a reference to the bus only, never to each other.
//
// Publish fans out synchronously on the caller's goroutine. Handlers may
// subscribe or unsubscribe from within a callback; such changes take effect
// from the next publication. There is no queuing and no replay for late
// subscribers.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	topics map[Topic]map[uint64]Handler
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{
		topics: make(map[Topic]map[uint64]Handler),
	}
}

// Subscribe registers fn for topic.
func (b *Bus) Subscribe(topic Topic, fn Handler) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	subs, ok := b.topics[topic]
	if !ok {
		subs = make(map[uint64]Handler)
		b.topics[topic] = subs
	}
	subs[b.nextID] = fn
	return Subscription{topic: topic, id: b.nextID}
}

// Unsubscribe removes a handler. Unknown or already-removed subscriptions are
// ignored.
func (b *Bus) Unsubscribe(sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.topics[sub.topic]
	if !ok {
		return
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(b.topics, sub.topic)
	}
}

// Publish delivers payload to every current subscriber of topic. Delivery
// order among subscribers is unspecified.
func (b *Bus) Publish(topic Topic, payload any) {
	b.mu.RLock()
	subs := b.topics[topic]
	handlers := make([]Handler, 0, len(subs))
	for _, fn := range subs {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(payload)
	}
}

