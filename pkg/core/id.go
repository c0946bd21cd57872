// Package core defines the identifiers, metadata, invocation payloads, error
// taxonomy, and execution context shared by every component in the runtime:
// agents, tools, and workflows alike.
package core

import (
	"fmt"

	"github.com/google/uuid"
)

// ComponentType closes the set of entities that can own a ComponentId.
type ComponentType string

const (
	ComponentTypeAgent    ComponentType = "agent"
	ComponentTypeTool     ComponentType = "tool"
	ComponentTypeWorkflow ComponentType = "workflow"
)

// componentIDNamespace seeds the deterministic UUIDv5 derivation so that
// ComponentId values never collide with UUIDs minted for unrelated purposes
// (session ids, event ids) even if the same name string is reused.
var componentIDNamespace = uuid.NewSHA1(uuid.Nil, []byte("llmspell.component"))

// ComponentId is a process-wide identifier derived deterministically from
// (ComponentType, name), giving equal ids for equal logical components
// across runs and processes. It wraps a uuid.UUID so it sorts, compares, and
// prints cheaply while remaining reproducible.
type ComponentId struct {
	uuid.UUID
}

// NewComponentId derives a ComponentId from a component type and name.
// Equal (componentType, name) pairs always yield an equal id.
func NewComponentId(componentType ComponentType, name string) ComponentId {
	seed := fmt.Sprintf("%s:%s", componentType, name)
	return ComponentId{UUID: uuid.NewSHA1(componentIDNamespace, []byte(seed))}
}

// ParseComponentId parses a previously-rendered ComponentId string.
func ParseComponentId(s string) (ComponentId, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return ComponentId{}, fmt.Errorf("core: parse component id %q: %w", s, err)
	}
	return ComponentId{UUID: u}, nil
}

// IsZero reports whether the id is the unset value.
func (id ComponentId) IsZero() bool {
	return id.UUID == uuid.Nil
}
