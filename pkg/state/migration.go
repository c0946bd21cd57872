package state

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/storage"
	"golang.org/x/sync/errgroup"
)

// FieldTransformOp is one of the closed set of per-field operations a
// migration hop may apply.
type FieldTransformOp string

const (
	TransformCopy    FieldTransformOp = "copy"
	TransformDefault FieldTransformOp = "default"
	TransformRename  FieldTransformOp = "rename"
	TransformConvert FieldTransformOp = "convert"
	TransformDrop    FieldTransformOp = "drop"
	TransformCompute FieldTransformOp = "compute"
)

// FieldTransform is one ordered operation within a StateTransformation.
// Which fields are meaningful depends on Op:
//   - Copy:    SourceField -> same name, unchanged
//   - Default: TargetField = DefaultValue if absent
//   - Rename:  SourceField -> TargetField
//   - Convert: SourceField coerced to ConvertTo ("string", "number", "bool")
//   - Drop:    SourceField removed
//   - Compute: TargetField = ComputeFn(entry), looked up in the Migrator's
//     registered compute functions by name
type FieldTransform struct {
	Op           FieldTransformOp `json:"op"`
	SourceField  string           `json:"source_field,omitempty"`
	TargetField  string           `json:"target_field,omitempty"`
	DefaultValue any              `json:"default_value,omitempty"`
	ConvertTo    string           `json:"convert_to,omitempty"`
	ComputeFn    string           `json:"compute_fn,omitempty"`
}

// StateTransformation is one migration hop between two adjacent schema
// versions.
type StateTransformation struct {
	FromVersion semver.Version   `json:"from_version"`
	ToVersion   semver.Version   `json:"to_version"`
	Transforms  []FieldTransform `json:"transforms"`
}

// MigrationConfig governs how Migrate executes a path of transformations.
type MigrationConfig struct {
	Timeout                 time.Duration
	MaxConcurrentMigrations int
	BreakOnError            bool
	StrictValidation        bool
	BackupEnabled           bool
	DryRun                  bool // supplemented feature: compute without writing
}

func (c MigrationConfig) withDefaults() MigrationConfig {
	if c.MaxConcurrentMigrations <= 0 {
		c.MaxConcurrentMigrations = 1
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// MigrationResult summarizes one Migrate call.
type MigrationResult struct {
	EntriesMigrated int
	Warnings        []string
	DryRun          bool
}

// ComputeFunc derives a new field value from the full decoded entry.
type ComputeFunc func(entry map[string]any) any

// Migrator applies registered StateTransformation hops to every entry under
// a scope, validating against the target schema and emitting correlated
// migration.* events along the way.
type Migrator struct {
	registry     *SchemaRegistry
	backend      storage.Backend
	backups      *storage.BackupManager
	transforms   map[string]StateTransformation // keyed "from->to"
	computeFuncs map[string]ComputeFunc
}

// NewMigrator constructs a migrator over registry and backend. backups may
// be nil if MigrationConfig.BackupEnabled is never set.
func NewMigrator(registry *SchemaRegistry, backend storage.Backend, backups *storage.BackupManager) *Migrator {
	return &Migrator{
		registry:     registry,
		backend:      backend,
		backups:      backups,
		transforms:   make(map[string]StateTransformation),
		computeFuncs: make(map[string]ComputeFunc),
	}
}

func hopKey(from, to semver.Version) string {
	return from.String() + "->" + to.String()
}

// RegisterTransformation adds a direct hop between two adjacent versions.
func (m *Migrator) RegisterTransformation(t StateTransformation) {
	m.transforms[hopKey(t.FromVersion, t.ToVersion)] = t
}

// RegisterComputeFunc names a function usable by a Compute field transform.
func (m *Migrator) RegisterComputeFunc(name string, fn ComputeFunc) {
	m.computeFuncs[name] = fn
}

// ResolvePath finds a chain of registered hops from -> to, direct or
// breadth-first chained through intermediate registered versions.
func (m *Migrator) ResolvePath(from, to semver.Version) ([]StateTransformation, *core.Error) {
	if direct, ok := m.transforms[hopKey(from, to)]; ok {
		return []StateTransformation{direct}, nil
	}

	type node struct {
		version semver.Version
		path    []StateTransformation
	}
	visited := map[string]bool{from.String(): true}
	queue := []node{{version: from}}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, t := range m.transforms {
			if !t.FromVersion.Equal(cur.version) {
				continue
			}
			if visited[t.ToVersion.String()] {
				continue
			}
			nextPath := append(append([]StateTransformation{}, cur.path...), t)
			if t.ToVersion.Equal(to) {
				return nextPath, nil
			}
			visited[t.ToVersion.String()] = true
			queue = append(queue, node{version: t.ToVersion, path: nextPath})
		}
	}

	return nil, core.Validation(fmt.Sprintf("no migration path from %s to %s", from, to), "to_version")
}

// breakingChange reports whether t changes a required field's type or drops
// a required field with no default — the only changes spec.md restricts to
// major-version boundaries.
func breakingChange(schema EnhancedStateSchema, t FieldTransform) bool {
	field, exists := schema.Fields[t.SourceField]
	if !exists || !field.Required {
		return false
	}
	switch t.Op {
	case TransformConvert:
		return t.ConvertTo != "" && t.ConvertTo != field.FieldType
	case TransformDrop:
		return field.DefaultValue == nil
	default:
		return false
	}
}

// Migrate applies the resolved path of transformations to every entry under
// scope, in order, respecting cfg. It returns a MigrationResult describing
// how many entries were touched (or would be, under DryRun).
func (m *Migrator) Migrate(ec core.ExecutionContext, scope core.StateScope, from, to semver.Version, cfg MigrationConfig) (MigrationResult, *core.Error) {
	cfg = cfg.withDefaults()

	path, perr := m.ResolvePath(from, to)
	if perr != nil {
		return MigrationResult{}, perr
	}

	if from.Major() != to.Major() {
		// breaking changes allowed; no extra check needed
	} else {
		for _, hop := range path {
			fromSchema, ok := m.registry.Get(hop.FromVersion.String())
			if !ok {
				continue
			}
			for _, tr := range hop.Transforms {
				if breakingChange(fromSchema, tr) && hop.FromVersion.Major() == hop.ToVersion.Major() {
					return MigrationResult{}, core.Validation(
						fmt.Sprintf("breaking change on field %q requires a major version bump (%s -> %s)", tr.SourceField, hop.FromVersion, hop.ToVersion),
						"to_version")
				}
			}
		}
	}

	timeoutCtx, cancel := context.WithTimeout(ec.Context, cfg.Timeout)
	defer cancel()
	ec.Context = timeoutCtx

	if ec.Events != nil {
		ec.Events.Publish(ec, "migration."+scope.Tag(), "migration.started", map[string]any{
			"from": from.String(), "to": to.String(), "scope": scope.Tag(), "dry_run": cfg.DryRun,
		}, ec.Correlation)
	}

	if cfg.BackupEnabled && m.backups != nil && !cfg.DryRun {
		entries, err := m.snapshotScope(ec, scope)
		if err != nil {
			return MigrationResult{}, core.Storage("migrate", "failed to snapshot scope before migration", err)
		}
		if _, err := m.backups.Create(ec, ec.TenantOrDefault(), scope.Tag(), entries); err != nil {
			return MigrationResult{}, core.Storage("migrate", "failed to write pre-migration backup", err)
		}
	}

	result := MigrationResult{DryRun: cfg.DryRun}

	keys, err := m.backend.List(ec, ec.TenantOrDefault(), fmt.Sprintf("scope://%s/", scope.Tag()))
	if err != nil {
		return result, core.Storage("migrate", err.Error(), err)
	}

	sem := make(chan struct{}, cfg.MaxConcurrentMigrations)
	g, gctx := errgroup.WithContext(ec.Context)
	var counted int

	for _, key := range keys {
		key := key
		sem <- struct{}{}
		g.Go(func() error {
			defer func() { <-sem }()
			migrated, err := m.migrateEntry(gctx, ec, key, path, cfg)
			if err != nil {
				if cfg.BreakOnError {
					return err
				}
				result.Warnings = append(result.Warnings, err.Error())
				return nil
			}
			if migrated {
				counted++
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ec.Events != nil {
			ec.Events.Publish(ec, "migration."+scope.Tag(), "migration.failed", map[string]any{
				"from": from.String(), "to": to.String(), "error": err.Error(),
			}, ec.Correlation)
		}
		return result, core.Storage("migrate", err.Error(), err)
	}

	result.EntriesMigrated = counted

	if ec.Events != nil {
		ec.Events.Publish(ec, "migration."+scope.Tag(), "migration.completed", map[string]any{
			"from": from.String(), "to": to.String(), "entries_migrated": counted, "dry_run": cfg.DryRun,
		}, ec.Correlation)
	}
	return result, nil
}

func (m *Migrator) snapshotScope(ec core.ExecutionContext, scope core.StateScope) (map[string]storage.Entry, error) {
	prefix := fmt.Sprintf("scope://%s/", scope.Tag())
	keys, err := m.backend.List(ec, ec.TenantOrDefault(), prefix)
	if err != nil {
		return nil, err
	}

	entries := make(map[string]storage.Entry, len(keys))
	for _, k := range keys {
		e, ok, err := m.backend.Get(ec, ec.TenantOrDefault(), k)
		if err != nil {
			return nil, err
		}
		if ok {
			entries[k] = e
		}
	}
	return entries, nil
}

// migrateEntry applies every hop in path to the entry at key, in order. It
// returns migrated=false (and no error) if the entry doesn't parse as a
// JSON object, since only object-shaped entries carry migratable fields.
func (m *Migrator) migrateEntry(ctx context.Context, ec core.ExecutionContext, key string, path []StateTransformation, cfg MigrationConfig) (bool, error) {
	entry, ok, err := m.backend.Get(ctx, ec.TenantOrDefault(), key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	var obj map[string]any
	if err := json.Unmarshal(entry.Value, &obj); err != nil {
		return false, nil
	}

	for _, hop := range path {
		obj = m.applyHop(obj, hop)

		if targetSchema, ok := m.registry.Get(hop.ToVersion.String()); ok {
			if verr := validateAgainstSchema(obj, targetSchema, cfg.StrictValidation); verr != nil {
				if cfg.StrictValidation {
					return false, verr
				}
			}
		}

		if ec.Events != nil {
			ec.Events.Publish(ec, "migration.step", "migration.step", map[string]any{
				"key": key, "from": hop.FromVersion.String(), "to": hop.ToVersion.String(),
			}, ec.Correlation)
		}
	}

	if cfg.DryRun {
		return true, nil
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return false, err
	}

	finalVersion := path[len(path)-1].ToVersion.String()
	return true, m.backend.Set(ctx, ec.TenantOrDefault(), key, storage.Entry{Value: raw, SchemaVersion: finalVersion})
}

func (m *Migrator) applyHop(obj map[string]any, hop StateTransformation) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		out[k] = v
	}

	for _, t := range hop.Transforms {
		switch t.Op {
		case TransformCopy:
			// no-op: field already present under the same name
		case TransformDefault:
			if _, exists := out[t.TargetField]; !exists {
				out[t.TargetField] = t.DefaultValue
			}
		case TransformRename:
			if v, exists := out[t.SourceField]; exists {
				out[t.TargetField] = v
				delete(out, t.SourceField)
			}
		case TransformConvert:
			if v, exists := out[t.SourceField]; exists {
				out[t.SourceField] = convertValue(v, t.ConvertTo)
			}
		case TransformDrop:
			delete(out, t.SourceField)
		case TransformCompute:
			if fn, ok := m.computeFuncs[t.ComputeFn]; ok {
				out[t.TargetField] = fn(out)
			}
		}
	}
	return out
}

func convertValue(v any, target string) any {
	switch target {
	case "string":
		return fmt.Sprintf("%v", v)
	case "number":
		switch n := v.(type) {
		case float64:
			return n
		case string:
			var f float64
			if _, err := fmt.Sscanf(n, "%f", &f); err == nil {
				return f
			}
		}
	case "bool":
		switch b := v.(type) {
		case bool:
			return b
		case string:
			return b == "true"
		}
	}
	return v
}

// validateAgainstSchema checks required fields are present; strict mode
// returns the first violation as an error, lenient mode returns nil and no
// warning is recorded.
func validateAgainstSchema(obj map[string]any, schema EnhancedStateSchema, strict bool) error {
	for name, field := range schema.Fields {
		if !field.Required {
			continue
		}
		if _, exists := obj[name]; !exists {
			if strict {
				return fmt.Errorf("required field %q missing after migration to %s", name, schema.Version)
			}
		}
	}
	return nil
}
