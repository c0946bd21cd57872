package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/consul/api"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/consul"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/etcd"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/mapstructure"
)

// SourceType names where the layered loader reads a Config from. Grounded on
// the teacher's config.ConfigType, narrowed to the remote backends the pack
// exercises plus a local file layer that always runs first.
type SourceType string

const (
	SourceConsul    SourceType = "consul"
	SourceEtcd      SourceType = "etcd"
	SourceZookeeper SourceType = "zookeeper"
)

// LoaderOptions mirrors the teacher's LoaderOptions, replacing its single
// Type/Path pair with an always-present file layer plus an optional remote
// overlay, since spec.md's core config has no CLI-flag or provider-secret
// surface to justify a standalone remote-only mode.
type LoaderOptions struct {
	// FilePath is the local YAML document read first and re-read on Watch.
	// Required.
	FilePath string

	// EnvPrefix, if set, layers environment variables over the file
	// (e.g. "LLMSPELL_RUNTIME_MAX_CONCURRENT_SCRIPTS" -> runtime.max_concurrent_scripts).
	EnvPrefix string

	// Remote, if non-empty, layers a consul or etcd key over file+env.
	Remote SourceType
	// RemoteKey is the key/path read from the remote backend.
	RemoteKey string
	// RemoteEndpoints overrides the backend's default address.
	RemoteEndpoints []string

	// Watch re-reads FilePath on change and invokes OnChange with the
	// freshly validated Config. Remote layers are not re-polled: koanf's
	// consul/etcd providers don't expose a watch hook the way file does.
	Watch bool

	// OnChange receives the reloaded Config after a successful Watch reload.
	OnChange func(Config) error

	// Overrides, if set, is merged in last — above file, env, and any
	// remote layer — via koanf's confmap.Provider. Callers use this for
	// programmatic overrides (tests, CLI flags parsed upstream) that
	// should win over every declarative source.
	Overrides map[string]interface{}
}

// Loader layers a Config from a local file, environment variables, and an
// optional remote key-value backend, re-reading the file on change. Grounded
// on the teacher's pkg/config.Loader (koanf-backed, yaml parser, fsnotify
// reload via provider.FileProvider), narrowed to the single Config struct
// this core recognizes.
type Loader struct {
	k       *koanf.Koanf
	opts    LoaderOptions
	parser  *yaml.YAML
	mu      sync.Mutex
	watcher *fsnotify.Watcher
	stop    chan struct{}
}

// NewLoader validates opts and returns a Loader ready to Load.
func NewLoader(opts LoaderOptions) (*Loader, error) {
	if opts.FilePath == "" {
		return nil, fmt.Errorf("config: FilePath is required")
	}
	if opts.Remote != "" && len(opts.RemoteEndpoints) == 0 {
		switch opts.Remote {
		case SourceConsul:
			opts.RemoteEndpoints = []string{"localhost:8500"}
		case SourceEtcd:
			opts.RemoteEndpoints = []string{"localhost:2379"}
		case SourceZookeeper:
			opts.RemoteEndpoints = []string{"localhost:2181"}
		default:
			return nil, fmt.Errorf("config: unsupported remote source %q", opts.Remote)
		}
	}
	return &Loader{
		k:      koanf.New("."),
		opts:   opts,
		parser: yaml.Parser(),
		stop:   make(chan struct{}),
	}, nil
}

// Load reads the file layer, then env, then the optional remote layer (later
// layers win), unmarshals into a Config seeded with Default(), and starts a
// background file watcher if Watch is set.
func (l *Loader) Load() (Config, error) {
	// .env / .env.local are optional and loaded once, ahead of the file
	// layer, matching the teacher's LoadEnvFiles.
	_ = godotenv.Load(".env.local")
	_ = godotenv.Load(".env")

	if err := l.loadLayers(); err != nil {
		return Config{}, err
	}

	cfg, err := l.unmarshal()
	if err != nil {
		return Config{}, err
	}

	if l.opts.Watch {
		if err := l.startWatch(); err != nil {
			return Config{}, err
		}
	}

	return cfg, nil
}

// Close stops the background watcher, if one is running. Safe to call on a
// Loader that was never watching.
func (l *Loader) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stop:
	default:
		close(l.stop)
	}
	if l.watcher != nil {
		return l.watcher.Close()
	}
	return nil
}

func (l *Loader) loadLayers() error {
	if err := l.k.Load(file.Provider(l.opts.FilePath), l.parser); err != nil {
		return fmt.Errorf("config: load file layer %s: %w", l.opts.FilePath, err)
	}

	if l.opts.EnvPrefix != "" {
		if err := l.k.Load(env.Provider(l.opts.EnvPrefix, ".", envKeyTransform(l.opts.EnvPrefix)), nil); err != nil {
			return fmt.Errorf("config: load env layer: %w", err)
		}
	}

	switch l.opts.Remote {
	case SourceConsul:
		cc := api.DefaultConfig()
		cc.Address = l.opts.RemoteEndpoints[0]
		p := consul.Provider(consul.Config{Cfg: cc, Key: l.opts.RemoteKey})
		if err := l.k.Load(p, nil); err != nil {
			return fmt.Errorf("config: load consul layer: %w", err)
		}
	case SourceEtcd:
		p := etcd.Provider(etcd.Config{
			Endpoints:   l.opts.RemoteEndpoints,
			DialTimeout: 5 * time.Second,
			Key:         l.opts.RemoteKey,
		})
		if err := l.k.Load(p, nil); err != nil {
			return fmt.Errorf("config: load etcd layer: %w", err)
		}
	case SourceZookeeper:
		p, err := newZookeeperProvider(l.opts.RemoteEndpoints, l.opts.RemoteKey)
		if err != nil {
			return err
		}
		defer p.Close()
		if err := l.k.Load(p, l.parser); err != nil {
			return fmt.Errorf("config: load zookeeper layer: %w", err)
		}
	case "":
	default:
		return fmt.Errorf("config: unsupported remote source %q", l.opts.Remote)
	}

	if len(l.opts.Overrides) > 0 {
		if err := l.k.Load(confmap.Provider(l.opts.Overrides, "."), nil); err != nil {
			return fmt.Errorf("config: load overrides layer: %w", err)
		}
	}

	return nil
}

// envKeyTransform turns "LLMSPELL_RUNTIME_MAX_CONCURRENT_SCRIPTS" into
// "runtime.max_concurrent_scripts" for an env.Provider with the given prefix:
// only the first underscore after the prefix becomes a section separator, so
// keys nested more than one level deep (e.g. state.backup.*) cannot be set
// from the environment.
func envKeyTransform(prefix string) func(string) string {
	return func(raw string) string {
		stripped := raw[len(prefix):]
		dotted := ""
		sectionSplit := false
		for _, r := range stripped {
			switch {
			case r == '_' && !sectionSplit:
				dotted += "."
				sectionSplit = true
			case r >= 'A' && r <= 'Z':
				dotted += string(r - 'A' + 'a')
			default:
				dotted += string(r)
			}
		}
		return dotted
	}
}

// unmarshal decodes the merged layers over Default(), using mapstructure's
// duration and comma-separated-slice decode hooks the same way the teacher's
// unmarshalAndProcess does, so "30s"-style YAML/env values land correctly in
// BackupConfig.MaxBackupAge.
func (l *Loader) unmarshal() (Config, error) {
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Metadata:         nil,
		Result:           &cfg,
		WeaklyTypedInput: true,
		TagName:          "koanf",
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return Config{}, fmt.Errorf("config: build decoder: %w", err)
	}
	if err := decoder.Decode(l.k.Raw()); err != nil {
		return Config{}, fmt.Errorf("config: decode merged layers: %w", err)
	}
	return cfg, nil
}

func (l *Loader) startWatch() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config: create watcher: %w", err)
	}
	dir := filepath.Dir(l.opts.FilePath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("config: watch dir %s: %w", dir, err)
	}
	l.mu.Lock()
	l.watcher = watcher
	l.mu.Unlock()

	go l.watchLoop(watcher)
	return nil
}

func (l *Loader) watchLoop(watcher *fsnotify.Watcher) {
	base := filepath.Base(l.opts.FilePath)
	var debounce *time.Timer
	const delay = 150 * time.Millisecond

	reload := func() {
		if err := l.loadLayers(); err != nil {
			slog.Warn("config reload failed", "error", err)
			return
		}
		cfg, err := l.unmarshal()
		if err != nil {
			slog.Warn("config reload failed", "error", err)
			return
		}
		if l.opts.OnChange != nil {
			if err := l.opts.OnChange(cfg); err != nil {
				slog.Warn("config change callback failed", "error", err)
			}
		}
	}

	for {
		select {
		case <-l.stop:
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(delay, reload)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		}
	}
}
