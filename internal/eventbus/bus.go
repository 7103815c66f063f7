// Package eventbus provides the in-process publish/subscribe transport that
// fans out lifecycle and metrics events to observers.
//
// Delivery is best-effort and fire-and-forget: a slow or gone subscriber
// never blocks publication to the others. Within one topic, the events a
// given subscriber does receive arrive in publish order.
package eventbus

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mcpmon/mcpmon/internal/logger"
)

// DefaultBuffer is the per-subscription channel capacity.
const DefaultBuffer = 64

// Subscription is a handle to a single subscriber on a single topic.
type Subscription struct {
	topic Topic
	id    uint64
	ch    chan Event
	bus   *Bus
	once  sync.Once
}

// Topic returns the topic this subscription is attached to.
func (s *Subscription) Topic() Topic { return s.topic }

// C returns the channel events are delivered on. It is closed by Close.
func (s *Subscription) C() <-chan Event { return s.ch }

// Close unsubscribes and closes the delivery channel. Safe to call twice.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// Bus fans events out to topic subscribers.
type Bus struct {
	mu     sync.Mutex
	subs   map[Topic]map[uint64]*Subscription
	nextID uint64
	logger logger.Logger

	published *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// New creates a bus. reg may be nil when metrics exposition is not wanted,
// e.g. in tests.
func New(log logger.Logger, reg prometheus.Registerer) *Bus {
	b := &Bus{
		subs:   make(map[Topic]map[uint64]*Subscription),
		logger: log,
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpmon_events_published_total",
			Help: "Events published on the bus, by event type.",
		}, []string{"event"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mcpmon_events_dropped_total",
			Help: "Events dropped because a subscriber buffer was full.",
		}, []string{"event"}),
	}
	if reg != nil {
		reg.MustRegister(b.published, b.dropped)
	}
	return b
}

// Subscribe registers an observer on topic with the default buffer.
func (b *Bus) Subscribe(topic Topic) *Subscription {
	return b.SubscribeBuffered(topic, DefaultBuffer)
}

// SubscribeBuffered registers an observer with an explicit channel capacity.
func (b *Bus) SubscribeBuffered(topic Topic, buffer int) *Subscription {
	if buffer < 1 {
		buffer = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	sub := &Subscription{
		topic: topic,
		id:    b.nextID,
		ch:    make(chan Event, buffer),
		bus:   b,
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]*Subscription)
	}
	b.subs[topic][sub.id] = sub
	return sub
}

func (b *Bus) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.subs[sub.topic]; ok {
		delete(m, sub.id)
		if len(m) == 0 {
			delete(b.subs, sub.topic)
		}
	}
}

// Publish delivers evt to every current subscriber of topic. The send is
// non-blocking: when a subscriber's buffer is full the event is dropped for
// that subscriber and counted, and delivery to the others continues.
//
// The lock is held across the (non-blocking) sends so the per-subscriber
// channel order always matches the bus-side publish order for the topic.
func (b *Bus) Publish(topic Topic, evt Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.published.WithLabelValues(evt.Type).Inc()

	for _, sub := range b.subs[topic] {
		select {
		case sub.ch <- evt:
		default:
			b.dropped.WithLabelValues(evt.Type).Inc()
			if b.logger != nil {
				b.logger.Debug("event dropped for slow subscriber",
					logger.String("topic", string(topic)),
					logger.String("event", evt.Type))
			}
		}
	}
}

// SubscriberCount returns how many observers topic currently has.
func (b *Bus) SubscriberCount(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	return len(b.subs[topic])
}
