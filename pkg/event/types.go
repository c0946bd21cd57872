// Package event implements the in-process event bus and correlation
// tracker described in spec.md §4.3: topic-based publish/subscribe with
// bounded, best-effort delivery, plus an EventCorrelationTracker that
// indexes every event by correlation id and infers EventLinks between
// them using local, time-windowed heuristics.
package event

import (
	"time"
)

// UniversalEvent is the single event envelope flowing through the bus,
// per spec.md §3.
type UniversalEvent struct {
	ID          string
	EventType   string
	Payload     map[string]any
	Timestamp   time.Time
	LanguageTag string
	Metadata    Metadata
}

// Metadata carries the correlation id and any other string-valued tags
// attached to an event at publish time.
type Metadata struct {
	CorrelationID string
	Extra         map[string]string
}

// RelationshipKind closes the set of relationships an EventLink can denote.
type RelationshipKind string

const (
	RelationCausedBy       RelationshipKind = "caused_by"
	RelationPartOf         RelationshipKind = "part_of"
	RelationRelatedTo      RelationshipKind = "related_to"
	RelationResponseTo     RelationshipKind = "response_to"
	RelationFollowsFrom    RelationshipKind = "follows_from"
	RelationConcurrentWith RelationshipKind = "concurrent_with"
)

// EventLink records an inferred or explicit relationship between two
// events. Links are stored bidirectionally: inserting A→B also inserts a
// mirror B→A with the same relationship, per spec.md §3.
type EventLink struct {
	FromEventID string
	ToEventID   string
	Relationship RelationshipKind
	Strength    float64
	Metadata    map[string]string
	CreatedAt   time.Time
}
