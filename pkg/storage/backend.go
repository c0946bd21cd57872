// Package storage defines the byte-level storage trait that the state
// manager, schema registry, hook replay log, and backup subsystem all sit
// on top of. It never knows about scopes, schemas, or agents — it stores
// tenant-partitioned bytes under a key and nothing else.
package storage

import (
	"context"
)

// Entry is a single stored record: the raw JSON-encoded value plus the
// schema version tag it was written under (empty if the caller never set one).
type Entry struct {
	Value         []byte
	SchemaVersion string
}

// Backend is the byte-level storage trait every driver implements. Every
// method is parameterized by tenant: a Backend implementation MUST filter
// by tenant at query time, since tenant mixing is a caller-visible security
// violation, not something the backend is trusted to prevent on its own.
type Backend interface {
	// Get returns the stored entry for key, or ok=false if absent.
	Get(ctx context.Context, tenant, key string) (entry Entry, ok bool, err error)

	// Set overwrites (or creates) the entry at key.
	Set(ctx context.Context, tenant, key string, entry Entry) error

	// Delete removes the entry at key, returning whether it existed.
	Delete(ctx context.Context, tenant, key string) (existed bool, err error)

	// List returns every key under tenant with the given prefix, in no
	// particular order. An empty prefix lists every key for the tenant.
	List(ctx context.Context, tenant, prefix string) ([]string, error)

	// Close releases any resources held by the backend (connections,
	// file handles). Safe to call multiple times.
	Close() error
}
