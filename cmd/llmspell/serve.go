package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/robfig/cron/v3"

	"github.com/lexlapax/llmspell/pkg/config"
	"github.com/lexlapax/llmspell/pkg/health"
	"github.com/lexlapax/llmspell/pkg/storage"
	"github.com/lexlapax/llmspell/pkg/storage/memdb"
	"github.com/lexlapax/llmspell/pkg/storage/sqlstore"
	"github.com/lexlapax/llmspell/pkg/trace"
	"github.com/lexlapax/llmspell/pkg/workflow"
)

// ServeCmd runs the long-lived process: a health/metrics HTTP endpoint, a
// hot-reloading config watch, and (if backups are enabled) a scheduled
// backup sweep. Grounded on the teacher's ServeCmd, narrowed from an A2A
// agent server down to the operational surface this embeddable core
// actually owns — agent/workflow execution is a library call, not an HTTP
// route the runtime itself exposes.
type ServeCmd struct {
	Addr         string  `help:"Address to serve health/metrics endpoints on." default:":8089"`
	Watch        bool    `help:"Watch the config file and hot-reload on change."`
	BackupTenant string  `name:"backup-tenant" help:"Tenant swept by the scheduled backup job." default:"default"`
	Trace        bool    `help:"Emit OpenTelemetry spans (to stdout) around workflow step execution."`
	TraceSample  float64 `name:"trace-sample" help:"Trace sampling ratio in (0,1]; 0 or 1 samples everything." default:"1"`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	traceShutdown, err := trace.Init(ctx, trace.Config{
		Enabled:      c.Trace,
		ServiceName:  "llmspell",
		SamplingRate: c.TraceSample,
	})
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = traceShutdown(shutdownCtx)
	}()
	if c.Trace {
		workflow.Tracer = trace.Tracer("llmspell.workflow")
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("shutting down")
		cancel()
	}()

	loader, err := config.NewLoader(config.LoaderOptions{
		FilePath: cli.Config,
		Watch:    c.Watch,
		OnChange: func(cfg config.Config) error {
			slog.Info("config reloaded", "backend_type", cfg.State.BackendType)
			return nil
		},
	})
	if err != nil {
		return fmt.Errorf("build config loader: %w", err)
	}
	defer loader.Close()

	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config %s: %w", cli.Config, err)
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open storage backend: %w", err)
	}
	defer backend.Close()

	var backups *storage.BackupManager
	if cfg.State.Backup.BackupDir != "" || cfg.State.MigrationEnabled {
		backups, err = storage.NewBackupManager(backend, cfg.State.Backup.MaxBackups, cfg.State.Backup.MaxBackupAge)
		if err != nil {
			return fmt.Errorf("build backup manager: %w", err)
		}
	}

	monitor := health.NewMonitor(15*time.Second, 5*time.Second)
	metrics := health.NewMetrics("llmspell")
	monitor.WithMetrics(metrics)
	monitor.Register(&backendChecker{backend: backend})
	go monitor.Start(ctx)
	defer monitor.Stop()

	var sched *cron.Cron
	if backups != nil {
		sched = cron.New()
		_, err := sched.AddFunc("@every 1h", func() {
			sweepBackup(ctx, backend, backups, c.BackupTenant)
		})
		if err != nil {
			return fmt.Errorf("schedule backup sweep: %w", err)
		}
		sched.Start()
		defer sched.Stop()
	}

	mux := chi.NewRouter()
	mux.Method(http.MethodGet, "/health", monitor.Handler())
	mux.Method(http.MethodGet, "/live", monitor.LiveHandler())
	mux.Method(http.MethodGet, "/metrics", metrics.Handler())

	srv := &http.Server{Addr: c.Addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("llmspell runtime serving", "addr", c.Addr, "backend", cfg.State.BackendType, "watch", c.Watch)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// openBackend builds the storage.Backend named by cfg.State.BackendType,
// grounded on the teacher's storage-selection switch in its runtime/config
// wiring (sqlite/postgres/mysql pick sqlstore, anything else falls back to
// an in-memory store for zero-config local runs).
func openBackend(ctx context.Context, cfg config.Config) (storage.Backend, error) {
	switch cfg.State.BackendType {
	case "sqlite", "postgres", "mysql":
		dialect := sqlstore.Dialect(cfg.State.BackendType)
		dsn := os.Getenv("LLMSPELL_STATE_DSN")
		if dsn == "" {
			return nil, fmt.Errorf("LLMSPELL_STATE_DSN is required for backend_type=%s", cfg.State.BackendType)
		}
		return sqlstore.Open(ctx, sqlstore.Config{Dialect: dialect, DSN: dsn})
	case "", "memory":
		return memdb.New(), nil
	default:
		return nil, fmt.Errorf("unsupported state.backend_type %q", cfg.State.BackendType)
	}
}

// backendChecker reports the storage backend as unhealthy if a trivial
// List call against it errors, grounded on the teacher's own
// database-ping health checks (pkg/server's readiness probe pattern).
type backendChecker struct {
	backend storage.Backend
}

func (c *backendChecker) Name() string { return "storage_backend" }

func (c *backendChecker) CheckHealth() []health.HealthIndicator {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	now := time.Now()
	if _, err := c.backend.List(ctx, "__healthcheck__", ""); err != nil {
		return []health.HealthIndicator{{
			Name:      "reachable",
			Status:    health.StatusUnhealthy,
			Message:   err.Error(),
			LastCheck: now,
		}}
	}
	return []health.HealthIndicator{{
		Name:      "reachable",
		Status:    health.StatusHealthy,
		LastCheck: now,
	}}
}

// sweepBackup snapshots every entry under tenant into a single backup
// record, skipping any entry whose read fails so one bad entry never blocks
// the scheduled sweep.
func sweepBackup(ctx context.Context, backend storage.Backend, backups *storage.BackupManager, tenant string) {
	keys, err := backend.List(ctx, tenant, "")
	if err != nil {
		slog.Warn("backup sweep: list failed", "error", err)
		return
	}
	if len(keys) == 0 {
		return
	}

	entries := make(map[string]storage.Entry, len(keys))
	for _, key := range keys {
		entry, ok, err := backend.Get(ctx, tenant, key)
		if err != nil || !ok {
			continue
		}
		entries[key] = entry
	}

	if _, err := backups.Create(ctx, tenant, "global", entries); err != nil {
		slog.Warn("backup sweep: create failed", "error", err)
		return
	}
	slog.Info("backup sweep complete", "tenant", tenant, "entries", len(entries))
}
