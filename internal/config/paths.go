package config

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	appName      = "otterclip"
	configName   = "config.toml"
	databaseName = "otterclip.db"
	socketName   = "otterclip.sock"
)

// ConfigDir returns $XDG_CONFIG_HOME/otterclip (default ~/.config/otterclip).
func ConfigDir() (string, error) {
	return xdgDir("XDG_CONFIG_HOME", ".config")
}

// DataDir returns $XDG_DATA_HOME/otterclip (default ~/.local/share/otterclip).
func DataDir() (string, error) {
	return xdgDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

func xdgDir(env, homeRel string) (string, error) {
	base := os.Getenv(env)
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		base = filepath.Join(home, homeRel)
	}
	return filepath.Join(base, appName), nil
}

func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, configName), nil
}

func DefaultDatabaseFile() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, databaseName), nil
}

// DefaultSocketPath returns $XDG_RUNTIME_DIR/otterclip.sock, falling back to
// /run/user/<uid>/otterclip.sock.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, socketName)
	}
	return filepath.Join("/run/user", fmt.Sprint(os.Getuid()), socketName)
}
