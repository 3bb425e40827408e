package events

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/falconlabs/falcon/pkg/log"
	"github.com/falconlabs/falcon/pkg/types"
)

// Subscriber is a channel that receives events for one wiki
type Subscriber chan types.Event

// subscriberBuffer bounds each subscriber channel. A subscriber that falls
// this far behind starts losing events rather than stalling the publisher.
const subscriberBuffer = 50

// Bus distributes generation progress events to subscribers keyed by wiki id.
// Publishing never blocks: full subscriber buffers are skipped. Nothing is
// persisted, so a late subscriber only sees events published after it joined.
type Bus struct {
	mu     sync.RWMutex
	subs   map[string]map[Subscriber]bool
	closed bool
	logger zerolog.Logger
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subs:   make(map[string]map[Subscriber]bool),
		logger: log.WithComponent("events"),
	}
}

// Subscribe registers a new subscriber for the wiki and returns its channel.
// Subscribing to a closed bus returns a closed channel.
func (b *Bus) Subscribe(wikiID string) Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, subscriberBuffer)
	if b.closed {
		close(sub)
		return sub
	}
	bucket, ok := b.subs[wikiID]
	if !ok {
		bucket = make(map[Subscriber]bool)
		b.subs[wikiID] = bucket
	}
	bucket[sub] = true

	b.logger.Debug().Str("wiki_id", wikiID).Msg("New subscriber")
	return sub
}

// Unsubscribe removes a subscriber and closes its channel. When the last
// subscriber for a wiki leaves, the wiki's bucket is reclaimed.
func (b *Bus) Unsubscribe(wikiID string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bucket, ok := b.subs[wikiID]
	if !ok || !bucket[sub] {
		return
	}
	delete(bucket, sub)
	close(sub)
	if len(bucket) == 0 {
		delete(b.subs, wikiID)
	}
}

// Publish delivers an event to every current subscriber of the wiki. Each
// subscriber sees events in publish order; subscribers with full buffers are
// skipped so a stalled consumer cannot hold up the pipeline.
func (b *Bus) Publish(wikiID string, event types.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	bucket := b.subs[wikiID]
	for sub := range bucket {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
	b.logger.Debug().
		Str("wiki_id", wikiID).
		Str("type", string(event.Type)).
		Int("subscribers", len(bucket)).
		Msg("Published event")
}

// SubscriberCount returns the number of active subscribers across all wikis
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	n := 0
	for _, bucket := range b.subs {
		n += len(bucket)
	}
	return n
}

// Close closes every subscriber channel and rejects future subscriptions.
// Called on shutdown so SSE handlers draining channels terminate.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for wikiID, bucket := range b.subs {
		for sub := range bucket {
			close(sub)
		}
		delete(b.subs, wikiID)
	}
}
