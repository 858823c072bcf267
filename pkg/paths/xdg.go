// Package paths provides XDG-compliant path resolution for Sparus.
//
// Resolution order:
// 1. SPARUS_HOME (portable root) → $SPARUS_HOME/{data,state,cache,run}
// 2. XDG env vars → $XDG_*_HOME/sparus
// 3. Platform defaults → ~/.local/share/sparus, ~/.local/state/sparus, etc.
package paths

import (
	"os"
	"path/filepath"
)

// AppName names the per-user directories and the configuration document.
const AppName = "Sparus"

const dirName = "sparus"

func homeJoin(elem ...string) string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(append([]string{homeDir}, elem...)...)
}

// getDataHome returns the base data home directory.
func getDataHome() string {
	if xdgDataHome := os.Getenv("XDG_DATA_HOME"); xdgDataHome != "" {
		return xdgDataHome
	}
	return homeJoin(".local", "share")
}

// getStateHome returns the base state home directory.
func getStateHome() string {
	if xdgStateHome := os.Getenv("XDG_STATE_HOME"); xdgStateHome != "" {
		return xdgStateHome
	}
	return homeJoin(".local", "state")
}

// getCacheHome returns the base cache home directory.
func getCacheHome() string {
	if xdgCacheHome := os.Getenv("XDG_CACHE_HOME"); xdgCacheHome != "" {
		return xdgCacheHome
	}
	return homeJoin(".cache")
}

func resolve(sub string, base func() string) string {
	if home := os.Getenv("SPARUS_HOME"); home != "" {
		return filepath.Join(home, sub)
	}
	b := base()
	if b == "" {
		return ""
	}
	return filepath.Join(b, dirName)
}

// DataDir returns the per-user application data directory.
// Holds the configuration document and the plugins directory.
func DataDir() string {
	return resolve("data", getDataHome)
}

// StateDir returns the Sparus state directory.
// Used for logs and the daemon pid file.
func StateDir() string {
	return resolve("state", getStateHome)
}

// CacheDir returns the Sparus cache directory.
func CacheDir() string {
	return resolve("cache", getCacheHome)
}

// PluginsDir returns <data>/plugins.
func PluginsDir() string {
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, "plugins")
}

// ConfigFile returns the path of the configuration document,
// <data>/Sparus.json, unless SPARUS_CONFIG points elsewhere.
func ConfigFile() string {
	if file := os.Getenv("SPARUS_CONFIG"); file != "" {
		return file
	}
	data := DataDir()
	if data == "" {
		return ""
	}
	return filepath.Join(data, AppName+".json")
}

// LogsDir returns the directory for file log sinks.
func LogsDir() string {
	return filepath.Join(StateDir(), "logs")
}

// RuntimeDir returns the directory for the daemon socket.
// Uses XDG_RUNTIME_DIR when available (Linux), falls back to StateDir (macOS).
func RuntimeDir() string {
	if home := os.Getenv("SPARUS_HOME"); home != "" {
		return filepath.Join(home, "run")
	}
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, dirName)
	}
	return StateDir()
}

// SocketPath returns the path to the shell API unix socket.
func SocketPath() string {
	return filepath.Join(RuntimeDir(), "sparusd.sock")
}

// PidFilePath returns the path to the daemon PID file.
func PidFilePath() string {
	return filepath.Join(StateDir(), "sparusd.pid")
}

// EnsureDirs creates all Sparus directories if they don't exist.
func EnsureDirs() error {
	dirs := []string{
		DataDir(),
		PluginsDir(),
		StateDir(),
		CacheDir(),
		RuntimeDir(),
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
