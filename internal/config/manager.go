package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/its-jojoo/otterclipd/internal/logging"
)

const (
	dirPerm   = 0o755
	envPrefix = "OTTERCLIP"
)

// Manager loads the config file, keeps the current snapshot, and reloads it
// when the file changes.
type Manager struct {
	mu        sync.RWMutex
	viper     *viper.Viper
	path      string
	config    Config
	callbacks []func(Config)
	watching  bool
}

// NewManager prepares a manager for path, or for the default config file
// when path is empty.
func NewManager(path string) (*Manager, error) {
	if path == "" {
		p, err := DefaultConfigFile()
		if err != nil {
			return nil, fmt.Errorf("failed to determine config file: %w\nCheck XDG_CONFIG_HOME or HOME", err)
		}
		path = p
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.BindEnv("logging.level", "OTTERCLIP_LOG_LEVEL"); err != nil {
		return nil, fmt.Errorf("failed to bind OTTERCLIP_LOG_LEVEL: %w", err)
	}
	if err := v.BindEnv("logging.format", "OTTERCLIP_LOG_FORMAT"); err != nil {
		return nil, fmt.Errorf("failed to bind OTTERCLIP_LOG_FORMAT: %w", err)
	}

	return &Manager{
		viper:  v,
		path:   path,
		config: Default(),
	}, nil
}

// Path returns the config file location.
func (m *Manager) Path() string { return m.path }

// Load reads the config file, creating it with defaults when missing.
// Invalid TOML or invalid values are returned as errors.
func (m *Manager) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.readConfigFile(ctx); err != nil {
		return err
	}

	cfg, err := m.build()
	if err != nil {
		return err
	}
	m.config = cfg

	logging.FromContext(ctx).Info().Str("path", m.path).Msg("loaded config")
	return nil
}

func (m *Manager) readConfigFile(ctx context.Context) error {
	err := m.viper.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to read config file at %s: %w\nCheck the file format (must be valid TOML) and permissions", m.path, err)
	}

	logging.FromContext(ctx).Warn().Str("path", m.path).Msg("config file not found, creating with defaults")
	if err := writeDefaults(m.path); err != nil {
		return fmt.Errorf("failed to create default config at %s: %w", m.path, err)
	}
	if err := m.viper.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read newly created config file %s: %w", m.path, err)
	}
	return nil
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return err
	}
	w := viper.New()
	w.SetConfigType("toml")
	setAll(w, Default())
	return w.SafeWriteConfigAs(path)
}

// build merges the file over the defaults and validates the result.
// Caller holds m.mu.
func (m *Manager) build() (Config, error) {
	cfg := merge(m.viper, Default())
	if err := resolvePaths(&cfg); err != nil {
		return Config{}, err
	}
	normalize(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func resolvePaths(cfg *Config) error {
	if cfg.Daemon.Database == "" {
		p, err := DefaultDatabaseFile()
		if err != nil {
			return fmt.Errorf("failed to get database path: %w", err)
		}
		cfg.Daemon.Database = p
	}
	if cfg.Daemon.Socket == "" {
		cfg.Daemon.Socket = DefaultSocketPath()
	}
	cfg.Daemon.Database = expandHome(cfg.Daemon.Database)
	cfg.Daemon.Socket = expandHome(cfg.Daemon.Socket)
	return nil
}

func expandHome(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// Get returns the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config.Clone()
}

// OnChange registers fn to run after every successful reload.
func (m *Manager) OnChange(fn func(Config)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callbacks = append(m.callbacks, fn)
}

// Watch reloads the file whenever it changes. A reload that fails keeps the
// previous configuration.
func (m *Manager) Watch(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching {
		return nil
	}

	log := logging.FromContext(ctx)
	m.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Debug().Str("op", e.Op.String()).Str("file", e.Name).Msg("config change detected")

		m.mu.Lock()
		if err := m.reload(); err != nil {
			m.mu.Unlock()
			log.Warn().Err(err).Msg("failed to reload config, keeping previous")
			return
		}
		cfg := m.config.Clone()
		callbacks := make([]func(Config), len(m.callbacks))
		copy(callbacks, m.callbacks)
		m.mu.Unlock()

		log.Info().Str("path", m.path).Msg("config reloaded")
		for _, fn := range callbacks {
			fn(cfg)
		}
	})
	m.viper.WatchConfig()

	m.watching = true
	return nil
}

// reload must be called with m.mu held for write.
func (m *Manager) reload() error {
	if err := m.viper.ReadInConfig(); err != nil {
		return err
	}
	cfg, err := m.build()
	if err != nil {
		return err
	}
	m.config = cfg
	return nil
}

// Reload re-reads the file immediately.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload()
}

// Set overrides key above the file and environment, for command line flags.
// Call it before Load.
func (m *Manager) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.viper.Set(key, value)
}
