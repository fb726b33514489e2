package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	logger "github.com/sirupsen/logrus"
)

// Topic identifies an event stream on the in-process bus. Typed constants
// instead of free-form strings so a mistyped topic fails at compile time.
type Topic string

const (
	TopicTradeFilled        Topic = "trade.filled"
	TopicCopyOrderQueued    Topic = "copy_order.queued"
	TopicCopyOrderCancelled Topic = "copy_order.cancelled"
	TopicFollowerAdded      Topic = "follower.added"
	TopicSessionStarted     Topic = "session.started"
)

// EventType is the external name of the topic, used in webhook envelopes and
// the X-Webhook-Event header.
func (t Topic) EventType() string {
	switch t {
	case TopicTradeFilled:
		return "TRADE_FILLED"
	case TopicCopyOrderQueued:
		return "COPY_ORDER_QUEUED"
	case TopicCopyOrderCancelled:
		return "COPY_ORDER_CANCELLED"
	case TopicFollowerAdded:
		return "FOLLOWER_ADDED"
	case TopicSessionStarted:
		return "SESSION_STARTED"
	}
	return string(t)
}

// Event is the unit passed through the bus.
type Event struct {
	ID         string    `json:"id"`
	Topic      Topic     `json:"topic"`
	OccurredAt time.Time `json:"occurred_at"`
	Payload    any       `json:"payload"`
}

// Handler consumes one event. Handlers run on the subscriber's own goroutine;
// a panic is recovered and logged and never reaches the publisher or sibling
// subscribers.
type Handler func(Event)

type subscription struct {
	name    string
	handler Handler
	ch      chan Event
}

// Bus is a process-local publish/subscribe dispatcher. It is not a durable
// queue: events still in flight are lost if the process dies, which is
// acceptable because the trade poller's watermark rule guarantees the
// underlying trade is re-observed on the next tick.
//
// Each subscription drains its own buffered channel, so Publish never blocks
// on handler completion and a slow subscriber cannot stall the others, while
// a single subscriber still observes one topic's events in publish order.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic][]*subscription
	closed bool
	wg     sync.WaitGroup
	buffer int
}

// New creates a bus whose subscriptions buffer up to bufferSize pending
// events each.
func New(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Bus{
		subs:   make(map[Topic][]*subscription),
		buffer: bufferSize,
	}
}

// Subscribe registers a named handler for a topic and starts its consumer
// goroutine. The name only appears in logs.
func (b *Bus) Subscribe(topic Topic, name string, handler Handler) {
	if handler == nil {
		return
	}

	sub := &subscription{
		name:    name,
		handler: handler,
		ch:      make(chan Event, b.buffer),
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		logger.WithFields(map[string]interface{}{
			"topic":      topic,
			"subscriber": name,
		}).Warn("subscribe on closed bus ignored")
		return
	}
	b.subs[topic] = append(b.subs[topic], sub)
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		for event := range sub.ch {
			sub.dispatch(event)
		}
	}()
}

func (s *subscription) dispatch(event Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.WithFields(map[string]interface{}{
				"topic":      event.Topic,
				"subscriber": s.name,
				"event_id":   event.ID,
				"panic":      r,
			}).Error("event handler panicked")
		}
	}()
	s.handler(event)
}

// Publish delivers the payload to every current subscriber of the topic.
// Fire-and-forget: it never blocks on handlers. If a subscriber's buffer is
// full the event is dropped for that subscriber with a warning.
func (b *Bus) Publish(topic Topic, payload any) Event {
	event := Event{
		ID:         uuid.NewString(),
		Topic:      topic,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}

	// The read lock covers the sends. Close closes subscriber channels under
	// the write lock, so a send can never race a channel close.
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return event
	}

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- event:
		default:
			logger.WithFields(map[string]interface{}{
				"topic":      topic,
				"subscriber": sub.name,
				"event_id":   event.ID,
			}).Warn("subscriber buffer full, event dropped")
		}
	}
	return event
}

// Close stops accepting events and waits for subscribers to drain their
// buffers.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			close(sub.ch)
		}
	}
	b.mu.Unlock()

	b.wg.Wait()
}
