// Package config loads the core's configuration surface from spec.md §6:
// runtime limits, security sandboxing flags, state-persistence/backup
// settings, and session limits. Grounded on the teacher's pkg/config
// (koanf-backed layered loader over file/env/consul/etcd/zookeeper
// sources), narrowed to the fields the core itself consumes — CLI-only and
// provider-credential configuration stay out of scope per spec.md §1.
package config

import "time"

// RuntimeConfig mirrors spec.md §6's "Runtime" settings group.
type RuntimeConfig struct {
	MaxConcurrentScripts int  `yaml:"max_concurrent_scripts" koanf:"max_concurrent_scripts"`
	ScriptTimeoutSeconds int  `yaml:"script_timeout_seconds" koanf:"script_timeout_seconds"`
	EnableStreaming      bool `yaml:"enable_streaming" koanf:"enable_streaming"`
}

// SecurityConfig mirrors spec.md §6's "Security" settings group.
type SecurityConfig struct {
	AllowFileAccess    bool  `yaml:"allow_file_access" koanf:"allow_file_access"`
	AllowNetworkAccess bool  `yaml:"allow_network_access" koanf:"allow_network_access"`
	AllowProcessSpawn  bool  `yaml:"allow_process_spawn" koanf:"allow_process_spawn"`
	MaxMemoryBytes     int64 `yaml:"max_memory_bytes" koanf:"max_memory_bytes"`
	MaxExecutionTimeMS int64 `yaml:"max_execution_time_ms" koanf:"max_execution_time_ms"`
}

// BackupConfig mirrors spec.md §6's "backup.*" nested group.
type BackupConfig struct {
	BackupDir          string        `yaml:"backup_dir" koanf:"backup_dir"`
	CompressionEnabled bool          `yaml:"compression_enabled" koanf:"compression_enabled"`
	CompressionType    string        `yaml:"compression_type" koanf:"compression_type"`
	CompressionLevel   int           `yaml:"compression_level" koanf:"compression_level"`
	IncrementalEnabled bool          `yaml:"incremental_enabled" koanf:"incremental_enabled"`
	MaxBackups         int           `yaml:"max_backups" koanf:"max_backups"`
	MaxBackupAge       time.Duration `yaml:"max_backup_age" koanf:"max_backup_age"`
}

// StatePersistenceConfig mirrors spec.md §6's "State persistence" group.
type StatePersistenceConfig struct {
	Enabled           bool         `yaml:"enabled" koanf:"enabled"`
	BackendType       string       `yaml:"backend_type" koanf:"backend_type"`
	SchemaDirectory   string       `yaml:"schema_directory" koanf:"schema_directory"`
	MaxStateSizeBytes int64        `yaml:"max_state_size_bytes" koanf:"max_state_size_bytes"`
	Backup            BackupConfig `yaml:"backup" koanf:"backup"`
	MigrationEnabled  bool         `yaml:"migration_enabled" koanf:"migration_enabled"`
	BackupOnMigration bool         `yaml:"backup_on_migration" koanf:"backup_on_migration"`
}

// SessionsConfig mirrors spec.md §6's "Sessions" group.
type SessionsConfig struct {
	Enabled                      bool   `yaml:"enabled" koanf:"enabled"`
	MaxSessions                  int    `yaml:"max_sessions" koanf:"max_sessions"`
	MaxArtifactsPerSession       int    `yaml:"max_artifacts_per_session" koanf:"max_artifacts_per_session"`
	ArtifactCompressionThreshold int64  `yaml:"artifact_compression_threshold" koanf:"artifact_compression_threshold"`
	SessionTimeoutSeconds        int    `yaml:"session_timeout_seconds" koanf:"session_timeout_seconds"`
	StorageBackend               string `yaml:"storage_backend" koanf:"storage_backend"`
}

// Config is the root configuration document the core recognizes.
type Config struct {
	Runtime  RuntimeConfig          `yaml:"runtime" koanf:"runtime"`
	Security SecurityConfig         `yaml:"security" koanf:"security"`
	State    StatePersistenceConfig `yaml:"state" koanf:"state"`
	Sessions SessionsConfig         `yaml:"sessions" koanf:"sessions"`
}

// Default returns a Config populated with the conservative defaults the
// teacher's zero-config CLI path uses: sandboxing closed by default,
// backups/migrations enabled, streaming off until a caller opts in.
func Default() Config {
	return Config{
		Runtime: RuntimeConfig{
			MaxConcurrentScripts: 10,
			ScriptTimeoutSeconds: 30,
			EnableStreaming:      false,
		},
		Security: SecurityConfig{
			AllowFileAccess:    false,
			AllowNetworkAccess: false,
			AllowProcessSpawn:  false,
			MaxMemoryBytes:     512 * 1024 * 1024,
			MaxExecutionTimeMS: 30_000,
		},
		State: StatePersistenceConfig{
			Enabled:           true,
			BackendType:       "memory",
			MaxStateSizeBytes: 10 * 1024 * 1024,
			Backup: BackupConfig{
				CompressionEnabled: true,
				CompressionType:    "zstd",
				CompressionLevel:   3,
				MaxBackups:         10,
				MaxBackupAge:       30 * 24 * time.Hour,
			},
			MigrationEnabled:  true,
			BackupOnMigration: true,
		},
		Sessions: SessionsConfig{
			Enabled:                      true,
			MaxSessions:                  100,
			MaxArtifactsPerSession:       50,
			ArtifactCompressionThreshold: 64 * 1024,
			SessionTimeoutSeconds:        3600,
			StorageBackend:               "memory",
		},
	}
}
