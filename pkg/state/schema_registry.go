package state

import (
	"fmt"
	"sync"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/core"
)

// SchemaRegistry holds EnhancedStateSchema values by version plus named
// aliases, and tracks a "current" version pointer that advances whenever a
// strictly greater version is registered.
type SchemaRegistry struct {
	mu      sync.RWMutex
	schemas map[string]EnhancedStateSchema // keyed by version.String()
	aliases map[string]string              // alias -> version.String()
	current semver.Version
}

// NewSchemaRegistry creates an empty registry.
func NewSchemaRegistry() *SchemaRegistry {
	return &SchemaRegistry{
		schemas: make(map[string]EnhancedStateSchema),
		aliases: make(map[string]string),
	}
}

// Register validates and adds schema, rejecting duplicate versions,
// structurally invalid fields, and self-dependencies. If schema.Version is
// strictly greater than the current pointer, the pointer advances.
func (r *SchemaRegistry) Register(schema EnhancedStateSchema, alias ...string) *core.Error {
	if err := validateSchema(schema); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	key := schema.Version.String()
	if _, exists := r.schemas[key]; exists {
		return core.Validation(fmt.Sprintf("schema version %s already registered", key), "version")
	}

	r.schemas[key] = schema
	for _, a := range alias {
		r.aliases[a] = key
	}
	if r.current.IsZero() || schema.Version.GreaterThan(r.current) {
		r.current = schema.Version
	}
	return nil
}

func validateSchema(schema EnhancedStateSchema) *core.Error {
	if schema.Version.IsZero() {
		return core.Validation("schema version cannot be zero", "version")
	}
	if schema.Version.Major() > 0 && len(schema.Fields) == 0 {
		return core.Validation("schema must declare at least one field for any non-0.x version", "fields")
	}
	for name, field := range schema.Fields {
		if name == "" {
			return core.Validation("field name cannot be empty", "fields")
		}
		if field.FieldType == "" {
			return core.Validation(fmt.Sprintf("field %q must declare a field_type", name), "fields")
		}
	}
	for _, dep := range schema.Dependencies {
		if dep.Equal(schema.Version) {
			return core.Validation("schema cannot depend on its own version", "dependencies")
		}
	}
	return nil
}

// Get resolves a version string or alias to its schema.
func (r *SchemaRegistry) Get(versionOrAlias string) (EnhancedStateSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if key, ok := r.aliases[versionOrAlias]; ok {
		versionOrAlias = key
	}
	s, ok := r.schemas[versionOrAlias]
	return s, ok
}

// Current returns the current version pointer (the greatest version ever
// registered).
func (r *SchemaRegistry) Current() semver.Version {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// FindCompatibleSchemas returns every registered schema sharing v's major
// version.
func (r *SchemaRegistry) FindCompatibleSchemas(v semver.Version) []EnhancedStateSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EnhancedStateSchema
	for _, s := range r.schemas {
		if s.Version.IsCompatibleWith(v) {
			out = append(out, s)
		}
	}
	return out
}

// FindMigrationCandidates returns every registered schema strictly greater
// than v.
func (r *SchemaRegistry) FindMigrationCandidates(v semver.Version) []EnhancedStateSchema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []EnhancedStateSchema
	for _, s := range r.schemas {
		if s.Version.GreaterThan(v) {
			out = append(out, s)
		}
	}
	return out
}

// GetLatestInMajor returns the greatest registered version sharing the
// given major version, if any.
func (r *SchemaRegistry) GetLatestInMajor(major uint64) (EnhancedStateSchema, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var latest EnhancedStateSchema
	found := false
	for _, s := range r.schemas {
		if s.Version.Major() != major {
			continue
		}
		if !found || s.Version.GreaterThan(latest.Version) {
			latest = s
			found = true
		}
	}
	return latest, found
}
