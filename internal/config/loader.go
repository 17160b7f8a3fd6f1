package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath names the environment variable consulted when --config is not given.
const EnvConfigPath = "SCFLOCAL_CONFIG"

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Load reads and parses configuration from a file. Unset keys take their
// defaults and relative paths resolve against the file's directory.
func Load(configPath string) (*Config, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}
	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolateEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", absPath, err)
	}
	cfg.SourcePath = absPath

	applyConfigDefaults(&cfg)
	resolvePaths(&cfg, filepath.Dir(absPath))

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", absPath, err)
	}
	return &cfg, nil
}

// Discover returns the config file to load. Priority order: the explicit
// --config value, $SCFLOCAL_CONFIG, ~/.config/scflocal/config.yaml. An empty
// result with a nil error means no config file exists and defaults apply.
func Discover(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	if path := os.Getenv(EnvConfigPath); path != "" {
		if _, err := os.Stat(path); err != nil {
			return "", fmt.Errorf("$%s points to %s: %w", EnvConfigPath, path, err)
		}
		return path, nil
	}
	userConfig := filepath.Join(DefaultDir(), "config.yaml")
	if _, err := os.Stat(userConfig); err == nil {
		return userConfig, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("check %s: %w", userConfig, err)
	}
	return "", nil
}

// LoadOrDefault discovers and loads the config, falling back to Defaults
// when no file is found.
func LoadOrDefault(explicit string) (*Config, error) {
	path, err := Discover(explicit)
	if err != nil {
		return nil, err
	}
	if path == "" {
		cfg := Defaults()
		if err := validate(cfg); err != nil {
			return nil, fmt.Errorf("invalid default configuration: %w", err)
		}
		return cfg, nil
	}
	return Load(path)
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.LogLevel == "" {
		cfg.LogLevel = defaults.LogLevel
	}
	if cfg.State.Path == "" {
		cfg.State.Path = defaults.State.Path
	}
	if cfg.Invoke.DebugTimeout == "" {
		cfg.Invoke.DebugTimeout = defaults.Invoke.DebugTimeout
	}
	if cfg.API.Listen == "" {
		cfg.API.Listen = defaults.API.Listen
	}
}

func resolvePaths(cfg *Config, baseDir string) {
	if cfg.State.Path != "" && !filepath.IsAbs(cfg.State.Path) {
		cfg.State.Path = filepath.Join(baseDir, cfg.State.Path)
	}
	if cfg.Runtime.BootstrapDir != "" && !filepath.IsAbs(cfg.Runtime.BootstrapDir) {
		cfg.Runtime.BootstrapDir = filepath.Join(baseDir, cfg.Runtime.BootstrapDir)
	}
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		return match
	})
}

// validate performs basic validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("log_level must be one of: debug, info, warn, error (got %q)", cfg.LogLevel)
	}

	if cfg.State.Path == "" {
		return fmt.Errorf("state.path is required")
	}
	if cfg.State.Retention < 0 {
		return fmt.Errorf("state.retention must not be negative")
	}

	switch cfg.Invoke.DebugTimeout {
	case "suppress", "enforce":
	default:
		return fmt.Errorf("invoke.debug_timeout must be suppress or enforce (got %q)", cfg.Invoke.DebugTimeout)
	}

	if cfg.API.Listen == "" {
		return fmt.Errorf("api.listen is required")
	}

	fields := map[string]string{
		"state.path":            cfg.State.Path,
		"runtime.bootstrap_dir": cfg.Runtime.BootstrapDir,
		"api.listen":            cfg.API.Listen,
		"api.token":             cfg.API.Token,
	}
	for field, value := range fields {
		if matches := envVarPattern.FindStringSubmatch(value); len(matches) > 1 {
			return fmt.Errorf("%s: environment variable ${%s} is not set", field, matches[1])
		}
	}
	return nil
}
