package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

// Snapshot is a point-in-time capture of every entry under a scope prefix,
// compressed before it reaches the backend.
type Snapshot struct {
	ScopeTag  string
	Tenant    string
	CreatedAt time.Time
	Entries   map[string]Entry
}

// backupKey renders the "backups/{scope_tag}/{timestamp}" layout.
func backupKey(scopeTag string, ts time.Time) string {
	return fmt.Sprintf("backups/%s/%d", scopeTag, ts.UnixNano())
}

// BackupManager creates and restores compressed scope snapshots against a
// Backend, and prunes them per a count/age retention policy.
type BackupManager struct {
	backend  Backend
	encoder  *zstd.Encoder
	decoder  *zstd.Decoder
	MaxCount int
	MaxAge   time.Duration
}

// NewBackupManager constructs a manager with the given retention policy.
// maxCount <= 0 means unlimited count; maxAge <= 0 means unlimited age.
func NewBackupManager(backend Backend, maxCount int, maxAge time.Duration) (*BackupManager, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: init zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("storage: init zstd decoder: %w", err)
	}
	return &BackupManager{backend: backend, encoder: enc, decoder: dec, MaxCount: maxCount, MaxAge: maxAge}, nil
}

// Create snapshots every entry under scopeTag for tenant, compresses it,
// and writes it under the backups/ key layout. Returns the key it wrote to.
func (m *BackupManager) Create(ctx context.Context, tenant, scopeTag string, entries map[string]Entry) (string, error) {
	snap := Snapshot{ScopeTag: scopeTag, Tenant: tenant, CreatedAt: time.Now(), Entries: entries}

	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("storage: marshal snapshot: %w", err)
	}
	compressed := m.encoder.EncodeAll(raw, nil)

	key := backupKey(scopeTag, snap.CreatedAt)
	if err := m.backend.Set(ctx, tenant, key, Entry{Value: compressed}); err != nil {
		return "", fmt.Errorf("storage: write snapshot: %w", err)
	}

	if err := m.prune(ctx, tenant, scopeTag); err != nil {
		return key, fmt.Errorf("storage: prune after backup: %w", err)
	}
	return key, nil
}

// Restore decompresses and decodes the snapshot at key.
func (m *BackupManager) Restore(ctx context.Context, tenant, key string) (Snapshot, error) {
	entry, ok, err := m.backend.Get(ctx, tenant, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("storage: read snapshot: %w", err)
	}
	if !ok {
		return Snapshot{}, fmt.Errorf("storage: snapshot %q not found", key)
	}

	raw, err := m.decoder.DecodeAll(entry.Value, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("storage: decompress snapshot: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("storage: decode snapshot: %w", err)
	}
	return snap, nil
}

// List returns every backup key under scopeTag for tenant, newest first.
func (m *BackupManager) List(ctx context.Context, tenant, scopeTag string) ([]string, error) {
	keys, err := m.backend.List(ctx, tenant, "backups/"+scopeTag+"/")
	if err != nil {
		return nil, fmt.Errorf("storage: list backups: %w", err)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(keys)))
	return keys, nil
}

// prune enforces MaxCount and MaxAge by deleting the oldest backups that
// exceed either bound.
func (m *BackupManager) prune(ctx context.Context, tenant, scopeTag string) error {
	keys, err := m.List(ctx, tenant, scopeTag)
	if err != nil {
		return err
	}

	now := time.Now()
	for i, key := range keys {
		expired := m.MaxAge > 0 && keyOlderThan(key, now, m.MaxAge)
		overCount := m.MaxCount > 0 && i >= m.MaxCount
		if expired || overCount {
			if _, err := m.backend.Delete(ctx, tenant, key); err != nil {
				return err
			}
		}
	}
	return nil
}

func keyOlderThan(key string, now time.Time, maxAge time.Duration) bool {
	parts := strings.Split(key, "/")
	if len(parts) == 0 {
		return false
	}
	nanos, err := strconv.ParseInt(parts[len(parts)-1], 10, 64)
	if err != nil {
		return false
	}
	createdAt := time.Unix(0, nanos)
	return now.Sub(createdAt) > maxAge
}
