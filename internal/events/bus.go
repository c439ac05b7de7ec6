// Package events fans telemetry events out to in-process subscribers.
package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/rxtech-lab/argo-fleet/internal/logger"
	"github.com/rxtech-lab/argo-fleet/internal/types"
	"go.uber.org/zap"
)

// DefaultBuffer is the subscriber channel size used when Subscribe is given zero.
const DefaultBuffer = 64

// Publisher is the narrow side of the bus handed to components that only emit events.
type Publisher interface {
	Publish(event types.Event)
}

type subscriber struct {
	ch      chan types.Event
	dropped atomic.Uint64
}

// Bus broadcasts events to every subscriber. Publish never blocks: a subscriber whose
// buffer is full misses the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	now    func() time.Time
	log    *logger.Logger
}

func NewBus(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.NewNop()
	}

	return &Bus{
		subs: make(map[uint64]*subscriber),
		now:  time.Now,
		log:  log.Component("events"),
	}
}

// Subscribe returns a channel of future events and a cancel func that closes it.
func (b *Bus) Subscribe(buffer int) (<-chan types.Event, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan types.Event, buffer)

	if b.closed {
		close(ch)

		return ch, func() {}
	}

	b.nextID++
	id := b.nextID
	b.subs[id] = &subscriber{ch: ch}

	var once sync.Once

	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub.ch)
			}
		})
	}
}

// Publish delivers event to every subscriber. A zero Time is stamped with the current time.
func (b *Bus) Publish(event types.Event) {
	if event.Time.IsZero() {
		event.Time = b.now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		select {
		case sub.ch <- event:
		default:
			sub.dropped.Add(1)
			b.log.Warn("Dropping event for slow subscriber",
				zap.Uint64("subscriber", id),
				zap.String("kind", string(event.Kind)),
				zap.String("agent_id", event.AgentID),
			)
		}
	}
}

// Dropped returns the number of events missed by slow subscribers still subscribed.
func (b *Bus) Dropped() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var total uint64
	for _, sub := range b.subs {
		total += sub.dropped.Load()
	}

	return total
}

// Subscribers returns the number of live subscriptions.
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.subs)
}

// Close closes every subscriber channel. Later subscriptions receive a closed channel.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.closed = true

	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

var _ Publisher = (*Bus)(nil)
