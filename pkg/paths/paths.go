// Package paths provides centralized path resolution for Voyager's config and state files.
//
// Layout (XDG-style):
//
//	Config:  ~/.config/voyager/config.yaml   (override: VOYAGER_CONFIG_DIR)
//	State:   ~/.local/state/voyager/         (override: VOYAGER_STATE_DIR)
//	Runtime: /tmp/voyager-*                  (sockets, pidfiles)
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var (
	configDirOnce   sync.Once
	configDirCached string

	stateDirOnce   sync.Once
	stateDirCached string
)

// ConfigDir resolves the config directory.
// Priority: VOYAGER_CONFIG_DIR env > ~/.config/voyager/
func ConfigDir() string {
	configDirOnce.Do(func() {
		if env := os.Getenv("VOYAGER_CONFIG_DIR"); env != "" {
			configDirCached = env
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				configDirCached = "."
			} else {
				configDirCached = filepath.Join(home, ".config", "voyager")
			}
		}
	})
	return configDirCached
}

// StateDir resolves the state directory.
// Priority: VOYAGER_STATE_DIR env > ~/.local/state/voyager/
func StateDir() string {
	stateDirOnce.Do(func() {
		if env := os.Getenv("VOYAGER_STATE_DIR"); env != "" {
			stateDirCached = env
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				stateDirCached = "."
			} else {
				stateDirCached = filepath.Join(home, ".local", "state", "voyager")
			}
		}
	})
	return stateDirCached
}

// ConfigPath returns the full path to config.yaml.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// StatePath returns the full path to a state file (e.g. "daemon.log").
func StatePath(filename string) string {
	return filepath.Join(StateDir(), filename)
}

// EnsureConfigDir creates the config directory if it doesn't exist and returns its path.
func EnsureConfigDir() (string, error) {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create config dir %s: %w", dir, err)
	}
	return dir, nil
}

// EnsureStateDir creates the state directory if it doesn't exist and returns its path.
func EnsureStateDir() (string, error) {
	dir := StateDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create state dir %s: %w", dir, err)
	}
	return dir, nil
}

// ResetForTest clears cached values so tests can re-run resolution logic.
// Only use in tests.
func ResetForTest() {
	configDirOnce = sync.Once{}
	configDirCached = ""
	stateDirOnce = sync.Once{}
	stateDirCached = ""
}
