// Package bus provides the in-process broadcast of lifecycle events to live
// subscribers. Emission never blocks the processor: a subscriber whose
// buffer is full simply misses the overflow, while delivery order for the
// events it does receive is preserved.
package bus

import (
	"sync"
	"sync/atomic"

	"github.com/omnichain/relayer/relaying/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultBufferSize is the per-subscriber channel buffer.
const DefaultBufferSize = 1024

var droppedEventsCount = promauto.NewCounter(prometheus.CounterOpts{
	Name: "relayer_bus_dropped_events_total",
	Help: "Lifecycle events dropped because a subscriber buffer was full",
})

// Bus fans lifecycle events out to any number of subscribers.
type Bus struct {
	mu      sync.Mutex
	subs    map[*Subscription]struct{}
	bufSize int
}

// Subscription is one subscriber's handle on the bus.
type Subscription struct {
	bus     *Bus
	ch      chan *types.Event
	dropped uint64
	once    sync.Once
}

// New returns a bus whose subscribers get DefaultBufferSize buffers.
func New() *Bus {
	return NewWithBuffer(DefaultBufferSize)
}

// NewWithBuffer returns a bus with a custom per-subscriber buffer size.
func NewWithBuffer(size int) *Bus {
	return &Bus{subs: make(map[*Subscription]struct{}), bufSize: size}
}

// Subscribe registers a new subscriber and returns its handle.
func (b *Bus) Subscribe() *Subscription {
	sub := &Subscription{bus: b, ch: make(chan *types.Event, b.bufSize)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Send delivers the event to every subscriber whose buffer has room and
// returns the number of subscribers that received it. Never blocks.
func (b *Bus) Send(ev *types.Event) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	delivered := 0
	for sub := range b.subs {
		select {
		case sub.ch <- ev:
			delivered++
		default:
			atomic.AddUint64(&sub.dropped, 1)
			droppedEventsCount.Inc()
		}
	}
	return delivered
}

// SubscriberCount returns the number of live subscriptions.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Chan is the subscriber's receive channel.
func (s *Subscription) Chan() <-chan *types.Event {
	return s.ch
}

// Dropped reports how many events this subscriber has missed.
func (s *Subscription) Dropped() uint64 {
	return atomic.LoadUint64(&s.dropped)
}

// Unsubscribe removes the subscription and closes its channel. Safe to call
// more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
