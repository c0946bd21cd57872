package event

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/lexlapax/llmspell/pkg/core"
)

// timeNow is indirected so tests can observe deterministic timestamps.
var timeNow = time.Now

// defaultSubscriberQueue bounds each subscriber's channel. The bus is
// best-effort, not a log: a subscriber that falls behind has events dropped
// rather than blocking the publisher, per spec.md §4.3.
const defaultSubscriberQueue = 256

// subscription is one registered pattern/receiver pair.
type subscription struct {
	id      string
	pattern string
	ch      chan UniversalEvent
}

// Bus is the process-singleton, topic-based publish/subscribe event bus.
// Delivery is fan-out within the process: every matching subscriber
// receives its own copy over a bounded channel.
type Bus struct {
	mu      sync.RWMutex
	subs    []*subscription
	tracker *CorrelationTracker
	dropped atomic.Uint64
}

// NewBus constructs an empty bus with its own embedded CorrelationTracker.
func NewBus(opts ...TrackerOption) *Bus {
	return &Bus{tracker: NewCorrelationTracker(opts...)}
}

// Tracker exposes the bus's embedded CorrelationTracker for read-only
// queries (get_events/get_links/get_stats from spec.md §4.3).
func (b *Bus) Tracker() *CorrelationTracker { return b.tracker }

// Publish implements core.EventSink: it builds a UniversalEvent, indexes it
// in the correlation tracker, and fans it out to every matching subscriber.
func (b *Bus) Publish(ec core.ExecutionContext, topic, eventType string, payload map[string]any, corr core.CorrelationContext) {
	evt := UniversalEvent{
		ID:        uuid.NewString(),
		EventType: eventType,
		Payload:   payload,
		Timestamp: timeNow(),
		Metadata: Metadata{
			CorrelationID: corr.CorrelationID,
		},
	}
	b.publishEvent(topic, evt)
}

// PublishEvent publishes a fully-formed UniversalEvent directly, for
// callers (replay, tests) that already hold one.
func (b *Bus) PublishEvent(topic string, evt UniversalEvent) {
	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = timeNow()
	}
	b.publishEvent(topic, evt)
}

func (b *Bus) publishEvent(topic string, evt UniversalEvent) {
	if evt.Metadata.CorrelationID != "" {
		b.tracker.Ingest(evt)
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		if !topicMatches(s.pattern, topic) {
			continue
		}
		select {
		case s.ch <- evt:
		default:
			// Slow consumer: drop rather than block the publisher.
			b.dropped.Add(1)
		}
	}
}

// Subscribe registers a receiver for every topic matching pattern (prefix
// match with "." segment wildcards, e.g. "workflow.*.step"). Returns a
// bounded receive channel and an unsubscribe function.
func (b *Bus) Subscribe(pattern string) (<-chan UniversalEvent, func()) {
	sub := &subscription{
		id:      uuid.NewString(),
		pattern: pattern,
		ch:      make(chan UniversalEvent, defaultSubscriberQueue),
	}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.subs {
			if s.id == sub.id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				close(sub.ch)
				break
			}
		}
	}
	return sub.ch, unsubscribe
}

// DroppedCount returns the number of events dropped because a subscriber's
// queue was full, for observability.
func (b *Bus) DroppedCount() uint64 {
	return b.dropped.Load()
}

// topicMatches implements dotted-segment prefix/wildcard matching: "*"
// matches exactly one segment, and a pattern shorter than the topic matches
// as a prefix (e.g. "workflow" matches "workflow.step.done").
func topicMatches(pattern, topic string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	pSegs := strings.Split(pattern, ".")
	tSegs := strings.Split(topic, ".")
	if len(pSegs) > len(tSegs) {
		return false
	}
	for i, p := range pSegs {
		if p == "*" {
			continue
		}
		if p != tSegs[i] {
			return false
		}
	}
	return true
}
