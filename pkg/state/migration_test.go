package state

import (
	"context"
	"testing"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/storage/memdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupMigrationFixture(t *testing.T) (*Migrator, *Manager, core.ExecutionContext, semver.Version, semver.Version) {
	t.Helper()
	backend := memdb.New()
	mgr := NewManager(backend)
	reg := NewSchemaRegistry()

	v1 := mustParse(t, "1.0.0")
	v2 := mustParse(t, "1.1.0")

	require.Nil(t, reg.Register(EnhancedStateSchema{
		Version: v1,
		Fields: map[string]FieldSchema{
			"name": {FieldType: "string", Required: true},
		},
	}))
	require.Nil(t, reg.Register(EnhancedStateSchema{
		Version: v2,
		Fields: map[string]FieldSchema{
			"full_name": {FieldType: "string", Required: true},
		},
	}))

	migrator := NewMigrator(reg, backend, nil)
	migrator.RegisterTransformation(StateTransformation{
		FromVersion: v1,
		ToVersion:   v2,
		Transforms: []FieldTransform{
			{Op: TransformRename, SourceField: "name", TargetField: "full_name"},
		},
	})

	ec := core.NewExecutionContext(context.Background(), core.AgentScope("a1"), nil, nil, "c1")
	require.Nil(t, mgr.Set(ec, ec.Scope, "profile", map[string]any{"name": "Ada"}))

	return migrator, mgr, ec, v1, v2
}

func TestMigrator_DirectHopRenameField(t *testing.T) {
	migrator, mgr, ec, v1, v2 := setupMigrationFixture(t)

	result, err := migrator.Migrate(ec, ec.Scope, v1, v2, MigrationConfig{})
	require.Nil(t, err)
	assert.Equal(t, 1, result.EntriesMigrated)

	v, ok, gerr := mgr.Get(ec, ec.Scope, "profile")
	require.Nil(t, gerr)
	require.True(t, ok)
	obj := v.(map[string]any)
	assert.Equal(t, "Ada", obj["full_name"])
	_, hasOld := obj["name"]
	assert.False(t, hasOld)
}

func TestMigrator_DryRunDoesNotWrite(t *testing.T) {
	migrator, mgr, ec, v1, v2 := setupMigrationFixture(t)

	result, err := migrator.Migrate(ec, ec.Scope, v1, v2, MigrationConfig{DryRun: true})
	require.Nil(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.EntriesMigrated)

	v, ok, gerr := mgr.Get(ec, ec.Scope, "profile")
	require.Nil(t, gerr)
	require.True(t, ok)
	obj := v.(map[string]any)
	assert.Equal(t, "Ada", obj["name"], "dry run must not mutate stored state")
}

func TestMigrator_NoPathReturnsValidationError(t *testing.T) {
	migrator, _, ec, v1, _ := setupMigrationFixture(t)
	unknown := mustParse(t, "9.9.9")

	_, err := migrator.Migrate(ec, ec.Scope, v1, unknown, MigrationConfig{})
	require.NotNil(t, err)
	assert.Equal(t, core.ErrorKindValidation, err.Kind)
}

func TestMigrator_ChainedPathResolution(t *testing.T) {
	backend := memdb.New()
	reg := NewSchemaRegistry()
	v1 := mustParse(t, "1.0.0")
	v2 := mustParse(t, "1.1.0")
	v3 := mustParse(t, "1.2.0")
	for _, v := range []semver.Version{v1, v2, v3} {
		require.Nil(t, reg.Register(EnhancedStateSchema{Version: v, Fields: map[string]FieldSchema{"f": {FieldType: "string"}}}))
	}

	migrator := NewMigrator(reg, backend, nil)
	migrator.RegisterTransformation(StateTransformation{FromVersion: v1, ToVersion: v2})
	migrator.RegisterTransformation(StateTransformation{FromVersion: v2, ToVersion: v3})

	path, err := migrator.ResolvePath(v1, v3)
	require.Nil(t, err)
	require.Len(t, path, 2)
	assert.Equal(t, "1.1.0", path[0].ToVersion.String())
	assert.Equal(t, "1.2.0", path[1].ToVersion.String())
}
