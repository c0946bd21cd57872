package core

import (
	"time"

	"github.com/lexlapax/llmspell/internal/semver"
)

// ComponentMetadata identifies and describes a component. It is created once
// at construction; UpdatedAt advances on any mutating operation performed on
// the owning component (conversation append, lifecycle transition, etc).
type ComponentMetadata struct {
	ID          ComponentId
	Name        string
	Description string
	Version     semver.Version
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewComponentMetadata builds metadata for a freshly constructed component.
func NewComponentMetadata(componentType ComponentType, name, description string, version semver.Version) ComponentMetadata {
	now := timeNow()
	return ComponentMetadata{
		ID:          NewComponentId(componentType, name),
		Name:        name,
		Description: description,
		Version:     version,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch advances UpdatedAt to mark a mutation on the owning component.
func (m *ComponentMetadata) Touch() {
	m.UpdatedAt = timeNow()
}

// timeNow is indirected so tests can observe deterministic timestamps.
var timeNow = time.Now
