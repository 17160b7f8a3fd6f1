package config

import (
	"os"
	"path/filepath"
	"time"
)

// Config represents the complete scflocal configuration.
type Config struct {
	LogLevel string        `yaml:"log_level"`
	State    StateConfig   `yaml:"state"`
	Runtime  RuntimeConfig `yaml:"runtime"`
	Invoke   InvokeConfig  `yaml:"invoke"`
	API      APIConfig     `yaml:"api"`

	// SourcePath is the file the config was loaded from, empty for defaults.
	SourcePath string `yaml:"-"`
}

// StateConfig defines invocation history storage settings.
type StateConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention"`
}

// RuntimeConfig locates the bootstrap bridges.
type RuntimeConfig struct {
	// BootstrapDir defaults to the runtime/ directory next to the executable.
	BootstrapDir string `yaml:"bootstrap_dir"`
}

// InvokeConfig defines invocation behaviour.
type InvokeConfig struct {
	// DebugTimeout is "suppress" (default) or "enforce".
	DebugTimeout string `yaml:"debug_timeout"`
}

// APIConfig defines the local HTTP invoke server settings.
type APIConfig struct {
	Listen string `yaml:"listen"`
	// Token, when set, is required as a bearer token on every route except /healthz.
	Token string `yaml:"token,omitempty"`
}

// Defaults returns a Config with the built-in defaults.
func Defaults() *Config {
	return &Config{
		LogLevel: "warn",
		State: StateConfig{
			Path:      filepath.Join(DefaultDir(), "history.db"),
			Retention: 30 * 24 * time.Hour,
		},
		Invoke: InvokeConfig{
			DebugTimeout: "suppress",
		},
		API: APIConfig{
			Listen: "127.0.0.1:3000",
		},
	}
}

// DefaultDir is ~/.config/scflocal, or .scflocal when there is no home directory.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".scflocal"
	}
	return filepath.Join(home, ".config", "scflocal")
}

// LockPath is the serve single-instance lock, kept next to the history database.
func (c *Config) LockPath() string {
	return filepath.Join(filepath.Dir(c.State.Path), "scflocal.lock")
}
