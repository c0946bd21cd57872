package event

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// concurrentWindow and sequentialWindow implement the two local,
// no-external-call link-inference heuristics from spec.md §4.3.
const (
	concurrentWindow = 100 * time.Millisecond
	sequentialWindow = 5 * time.Second

	// concurrentStrength/responseStrength/partOfStrength/followsStrength are
	// the fixed confidence scores attached to each inferred relationship
	// kind; scenario S5 requires ResponseTo links to score >= 0.8.
	concurrentStrength = 0.6
	responseStrength   = 0.85
	partOfStrength     = 0.8
	followsStrength    = 0.5
)

// TrackerOption configures a CorrelationTracker's retention policy.
type TrackerOption func(*CorrelationTracker)

// WithMaxEventsPerCorrelation bounds the number of events retained per
// correlation id (LRU: oldest dropped first beyond the bound).
func WithMaxEventsPerCorrelation(n int) TrackerOption {
	return func(t *CorrelationTracker) { t.maxEventsPerCorrelation = n }
}

// WithMaxCorrelationAge evicts an entire correlation once its most recent
// event is older than d.
func WithMaxCorrelationAge(d time.Duration) TrackerOption {
	return func(t *CorrelationTracker) { t.maxCorrelationAge = d }
}

// WithMaxTotalCorrelations bounds the number of distinct correlation ids
// tracked at once, dropping the oldest correlation (by last-activity time)
// when the bound is exceeded.
func WithMaxTotalCorrelations(n int) TrackerOption {
	return func(t *CorrelationTracker) { t.maxTotalCorrelations = n }
}

type correlationBucket struct {
	events     []UniversalEvent
	links      map[string][]EventLink
	lastActive time.Time
}

// CorrelationTracker ingests every event published on the bus, indexes it
// by correlation id, and infers EventLinks between temporally-close events
// on the same correlation using the heuristics in spec.md §4.3. All
// operations are purely local; there is no external call.
type CorrelationTracker struct {
	mu sync.RWMutex

	buckets map[string]*correlationBucket
	byID    map[string]UniversalEvent
	tags    map[string][]string // tag -> event ids

	maxEventsPerCorrelation int
	maxCorrelationAge       time.Duration
	maxTotalCorrelations    int
}

// NewCorrelationTracker constructs a tracker with the given retention
// options applied; zero values disable the corresponding bound.
func NewCorrelationTracker(opts ...TrackerOption) *CorrelationTracker {
	t := &CorrelationTracker{
		buckets: make(map[string]*correlationBucket),
		byID:    make(map[string]UniversalEvent),
		tags:    make(map[string][]string),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Ingest records evt under its correlation id and attempts to infer links
// against every other event already recorded on that correlation.
func (t *CorrelationTracker) Ingest(evt UniversalEvent) {
	corr := evt.Metadata.CorrelationID
	if corr == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.evictStale()

	b, ok := t.buckets[corr]
	if !ok {
		if t.maxTotalCorrelations > 0 && len(t.buckets) >= t.maxTotalCorrelations {
			t.evictOldestCorrelationLocked()
		}
		b = &correlationBucket{links: make(map[string][]EventLink)}
		t.buckets[corr] = b
	}

	for _, prior := range b.events {
		if link, ok := inferLink(prior, evt); ok {
			t.addLinkLocked(b, link)
		}
	}

	b.events = append(b.events, evt)
	b.lastActive = evt.Timestamp
	if t.maxEventsPerCorrelation > 0 && len(b.events) > t.maxEventsPerCorrelation {
		dropped := b.events[0]
		b.events = b.events[len(b.events)-t.maxEventsPerCorrelation:]
		delete(t.byID, dropped.ID)
	}

	t.byID[evt.ID] = evt
}

func (t *CorrelationTracker) addLinkLocked(b *correlationBucket, link EventLink) {
	b.links[link.FromEventID] = append(b.links[link.FromEventID], link)
	mirror := link
	mirror.FromEventID, mirror.ToEventID = link.ToEventID, link.FromEventID
	b.links[mirror.FromEventID] = append(b.links[mirror.FromEventID], mirror)
}

// evictStale drops correlations whose most recent activity is older than
// maxCorrelationAge. Caller must hold t.mu.
func (t *CorrelationTracker) evictStale() {
	if t.maxCorrelationAge <= 0 {
		return
	}
	cutoff := timeNow().Add(-t.maxCorrelationAge)
	for corr, b := range t.buckets {
		if b.lastActive.Before(cutoff) {
			t.deleteCorrelationLocked(corr)
		}
	}
}

// evictOldestCorrelationLocked drops the correlation with the oldest
// lastActive timestamp. Caller must hold t.mu.
func (t *CorrelationTracker) evictOldestCorrelationLocked() {
	var oldestCorr string
	var oldestTime time.Time
	for corr, b := range t.buckets {
		if oldestCorr == "" || b.lastActive.Before(oldestTime) {
			oldestCorr, oldestTime = corr, b.lastActive
		}
	}
	if oldestCorr != "" {
		t.deleteCorrelationLocked(oldestCorr)
	}
}

func (t *CorrelationTracker) deleteCorrelationLocked(corr string) {
	b, ok := t.buckets[corr]
	if !ok {
		return
	}
	for _, e := range b.events {
		delete(t.byID, e.ID)
	}
	delete(t.buckets, corr)
}

// GetEvents returns every event recorded under correlation id corr, oldest
// first.
func (t *CorrelationTracker) GetEvents(corr string) []UniversalEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	b, ok := t.buckets[corr]
	if !ok {
		return nil
	}
	out := make([]UniversalEvent, len(b.events))
	copy(out, b.events)
	return out
}

// GetLinks returns every inferred or explicit link touching eventID, in
// insertion order.
func (t *CorrelationTracker) GetLinks(eventID string) []EventLink {
	t.mu.RLock()
	defer t.mu.RUnlock()

	for _, b := range t.buckets {
		if links, ok := b.links[eventID]; ok {
			out := make([]EventLink, len(links))
			copy(out, links)
			return out
		}
	}
	return nil
}

// AddLink records an explicit (non-inferred) link, inserted bidirectionally
// like an inferred one.
func (t *CorrelationTracker) AddLink(corr string, link EventLink) {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = timeNow()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.buckets[corr]
	if !ok {
		b = &correlationBucket{links: make(map[string][]EventLink)}
		t.buckets[corr] = b
	}
	t.addLinkLocked(b, link)
}

// Stats summarizes the tracker's current retained state.
type Stats struct {
	TotalCorrelations int
	TotalEvents       int
	TotalLinks        int
}

// GetStats returns aggregate counters across every tracked correlation.
func (t *CorrelationTracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s Stats
	s.TotalCorrelations = len(t.buckets)
	for _, b := range t.buckets {
		s.TotalEvents += len(b.events)
		for _, links := range b.links {
			s.TotalLinks += len(links)
		}
	}
	s.TotalLinks /= 2 // links are stored bidirectionally
	return s
}

// FindByTag is the supplemented read-only convenience from SPEC_FULL.md §9
// (grounded on original_source/llmspell-events' free-form correlation
// tags): it returns every event whose correlation context recorded tag.
// Tags are attached via TagCorrelation since UniversalEvent itself carries
// no tag slice.
func (t *CorrelationTracker) FindByTag(tag string) []UniversalEvent {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := t.tags[tag]
	out := make([]UniversalEvent, 0, len(ids))
	for _, id := range ids {
		if evt, ok := t.byID[id]; ok {
			out = append(out, evt)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// TagCorrelation records tag against every event currently known for
// eventID's owning correlation id, so a later FindByTag can retrieve it.
func (t *CorrelationTracker) TagCorrelation(eventID string, tags ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ids := []string{eventID}
	if evt, ok := t.byID[eventID]; ok {
		if b, ok := t.buckets[evt.Metadata.CorrelationID]; ok {
			ids = ids[:0]
			for _, e := range b.events {
				ids = append(ids, e.ID)
			}
		}
	}
	for _, tag := range tags {
		t.tags[tag] = append(t.tags[tag], ids...)
	}
}

// inferLink applies spec.md §4.3's heuristics to an ordered pair of events
// on the same correlation: a (the earlier-or-equal event) and b (the later
// event). It returns ok=false if no relationship is inferred.
func inferLink(a, b UniversalEvent) (EventLink, bool) {
	earlier, later := a, b
	if later.Timestamp.Before(earlier.Timestamp) {
		earlier, later = later, earlier
	}
	delta := later.Timestamp.Sub(earlier.Timestamp)
	if delta < 0 {
		delta = -delta
	}

	base := EventLink{
		FromEventID: earlier.ID,
		ToEventID:   later.ID,
		CreatedAt:   timeNow(),
	}

	if delta >= sequentialWindow {
		return EventLink{}, false
	}

	// The typed request/response and start/end patterns take precedence over
	// the <100ms ConcurrentWith rule, which applies only to untyped pairs.
	et, lt := strings.ToLower(earlier.EventType), strings.ToLower(later.EventType)
	switch {
	case strings.Contains(et, "request") && strings.Contains(lt, "response"):
		base.Relationship = RelationResponseTo
		base.Strength = responseStrength
		return base, true
	case strings.Contains(et, "start") && strings.Contains(lt, "end"):
		base.Relationship = RelationPartOf
		base.Strength = partOfStrength
		return base, true
	case delta < concurrentWindow:
		base.Relationship = RelationConcurrentWith
		base.Strength = concurrentStrength
		return base, true
	default:
		base.Relationship = RelationFollowsFrom
		base.Strength = followsStrength
		return base, true
	}
}
