package bus

import (
	"sync"

	"github.com/rs/zerolog"
)

// Subscriber is a function that handles messages on a topic.
type Subscriber func(envelope Envelope)

// Bus is an in-process message bus with per-topic subscriptions. Delivery is
// synchronous in publish order from a single dispatching caller, which
// preserves the per-session ordering guarantee as long as each session's
// messages are published from one goroutine at a time.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	logger      zerolog.Logger
}

// NewBus creates an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		logger:      logger.With().Str("component", "bus").Logger(),
	}
}

// Subscribe registers a handler for a topic. Handlers registered for the
// same topic are invoked in registration order.
func (b *Bus) Subscribe(topic string, subscriber Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[topic] = append(b.subscribers[topic], subscriber)
}

// Publish delivers an envelope to every subscriber of its topic. A topic
// with no subscribers is not an error; the message is logged and dropped.
func (b *Bus) Publish(envelope Envelope) {
	b.mu.RLock()
	subscribers := b.subscribers[envelope.Topic]
	b.mu.RUnlock()

	if len(subscribers) == 0 {
		b.logger.Debug().
			Str("topic", envelope.Topic).
			Str("message_id", envelope.ID).
			Msg("no subscribers for topic, message dropped")
		return
	}

	for _, subscriber := range subscribers {
		subscriber(envelope)
	}
}
