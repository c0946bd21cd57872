package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lexlapax/llmspell/internal/semver"
	"github.com/lexlapax/llmspell/pkg/config"
	"github.com/lexlapax/llmspell/pkg/core"
	"github.com/lexlapax/llmspell/pkg/state"
	"github.com/lexlapax/llmspell/pkg/storage"
)

// MigrateCmd drives pkg/state.Migrator from the command line: load the
// configured backend, register every schema found under
// state.schema_directory plus any extra hop definitions under
// --migrations-dir, then migrate one scope from one version to another.
// Grounded on the teacher's own migrate-style maintenance subcommands
// (cmd/hector's Validate/Serve pair extended with a one-shot operational
// command), narrowed to the single operation spec.md §4.2 names.
type MigrateCmd struct {
	Scope         string `help:"Scope to migrate, as \"kind\" or \"kind/id\" (e.g. \"agent/my-agent\")." required:""`
	From          string `help:"Source schema version (e.g. 1.0.0)." required:""`
	To            string `help:"Target schema version (e.g. 2.0.0)." required:""`
	MigrationsDir string `name:"migrations-dir" help:"Directory of *.migration.json StateTransformation hop files, beyond those in state.schema_directory."`
	Tenant        string `help:"Tenant owning the migrated scope." default:"default"`
	DryRun        bool   `name:"dry-run" help:"Compute the migration without writing."`
	Strict        bool   `help:"Reject any post-migration schema validation failure instead of collecting warnings."`
	Backup        bool   `help:"Snapshot the scope before migrating, independent of state.backup_on_migration."`
}

func (c *MigrateCmd) Run(cli *CLI) error {
	loader, err := config.NewLoader(config.LoaderOptions{FilePath: cli.Config})
	if err != nil {
		return fmt.Errorf("build config loader: %w", err)
	}
	defer loader.Close()

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cli.Config, err)
	}

	ctx := context.Background()
	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}
	defer backend.Close()

	scope, err := parseScope(c.Scope)
	if err != nil {
		return err
	}
	from, err := semver.Parse(c.From)
	if err != nil {
		return fmt.Errorf("parse --from: %w", err)
	}
	to, err := semver.Parse(c.To)
	if err != nil {
		return fmt.Errorf("parse --to: %w", err)
	}

	registry := state.NewSchemaRegistry()
	if cfg.State.SchemaDirectory != "" {
		if err := loadSchemas(registry, cfg.State.SchemaDirectory); err != nil {
			return fmt.Errorf("load schemas from %s: %w", cfg.State.SchemaDirectory, err)
		}
	}

	var backups *storage.BackupManager
	backupEnabled := c.Backup || cfg.State.BackupOnMigration
	if backupEnabled {
		backups, err = storage.NewBackupManager(backend, cfg.State.Backup.MaxBackups, cfg.State.Backup.MaxBackupAge)
		if err != nil {
			return fmt.Errorf("build backup manager: %w", err)
		}
	}

	migrator := state.NewMigrator(registry, backend, backups)
	if cfg.State.SchemaDirectory != "" {
		if err := loadTransformations(migrator, cfg.State.SchemaDirectory); err != nil {
			return fmt.Errorf("load transformations from %s: %w", cfg.State.SchemaDirectory, err)
		}
	}
	if c.MigrationsDir != "" {
		if err := loadTransformations(migrator, c.MigrationsDir); err != nil {
			return fmt.Errorf("load transformations from %s: %w", c.MigrationsDir, err)
		}
	}

	ec := core.NewExecutionContext(ctx, scope, nil, nil, "migrate-cli").WithTenant(c.Tenant)

	result, merr := migrator.Migrate(ec, scope, from, to, state.MigrationConfig{
		BreakOnError:     true,
		StrictValidation: c.Strict,
		BackupEnabled:    backupEnabled,
		DryRun:           c.DryRun,
	})
	if merr != nil {
		return fmt.Errorf("migrate %s %s -> %s: %s", scope.Tag(), from, to, merr.Error())
	}

	fmt.Printf("migrated %s: %s -> %s (%d entries, dry_run=%v)\n", scope.Tag(), from, to, result.EntriesMigrated, result.DryRun)
	for _, w := range result.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
	return nil
}

// parseScope accepts "kind" or "kind/id", mirroring core.StateScope.Tag's
// own rendering so a scope printed by Tag() round-trips as CLI input.
func parseScope(s string) (core.StateScope, error) {
	kind, id, _ := strings.Cut(s, "/")
	switch core.ScopeKind(kind) {
	case core.ScopeGlobal:
		return core.Global(), nil
	case core.ScopeAgent:
		return core.AgentScope(id), nil
	case core.ScopeWorkflow:
		return core.WorkflowScope(id), nil
	case core.ScopeSession:
		return core.SessionScope(id), nil
	case core.ScopeTenant:
		return core.TenantScope(id), nil
	case core.ScopeCustom:
		return core.CustomScope(id), nil
	default:
		return core.StateScope{}, fmt.Errorf("unknown scope kind %q", kind)
	}
}

// loadSchemas registers every *.schema.json file in dir as an
// state.EnhancedStateSchema.
func loadSchemas(registry *state.SchemaRegistry, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".schema.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		var schema state.EnhancedStateSchema
		if err := json.Unmarshal(raw, &schema); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		if rerr := registry.Register(schema); rerr != nil {
			return fmt.Errorf("%s: %s", e.Name(), rerr.Error())
		}
	}
	return nil
}

// loadTransformations registers every *.migration.json file in dir as a
// state.StateTransformation hop.
func loadTransformations(migrator *state.Migrator, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".migration.json") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return err
		}
		var t state.StateTransformation
		if err := json.Unmarshal(raw, &t); err != nil {
			return fmt.Errorf("%s: %w", e.Name(), err)
		}
		migrator.RegisterTransformation(t)
	}
	return nil
}
