// Package poolconfig loads pool-wide tunables — pool size, retry
// count/delay, tag, verbosity — from a TOML file plus environment
// overrides.
package poolconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the content of hottub.toml.
type Config struct {
	// PoolSize is the number of pool slots maintained per distinct
	// fingerprint (spec §4.1 step 5, §6 JVM_POOL_MAX default of 5).
	PoolSize int `toml:"pool_size,omitempty"`

	// RetryCount is how many times the coordinator tries to connect to a
	// slot's server before giving up on that slot (spec §4.4, java.h
	// RETRY_COUNT).
	RetryCount int `toml:"retry_count,omitempty"`

	// RetryDelay is the sleep between connect retries (spec §4.4; java.c
	// hardcodes 200ms).
	RetryDelay time.Duration `toml:"retry_delay,omitempty"`

	// Tag is an operator-assigned label. It is stored and read back by
	// javapool config; the launcher, the server and javapool ps/top do not
	// use it.
	Tag string `toml:"tag,omitempty"`

	// Verbose is stored and read back by javapool config; the launcher
	// and the server do not read it.
	Verbose bool `toml:"verbose,omitempty"`
}

// Defaults returns the configuration used when no file and no environment
// overrides are present, matching the original's hardcoded constants.
func Defaults() Config {
	return Config{
		PoolSize:   5,
		RetryCount: 1024,
		RetryDelay: 200 * time.Millisecond,
	}
}

// dirOverride is set by SetDir, mirroring config.SetConfigDir's pattern of
// a package-level override settable from a CLI flag.
var dirOverride string

// SetDir overrides the directory hottub.toml is read from/written to.
func SetDir(dir string) { dirOverride = dir }

// Dir returns the directory holding hottub.toml. Precedence: SetDir >
// HOTTUB_HOME env > ~/.hottub.
func Dir() string {
	if dirOverride != "" {
		return dirOverride
	}
	if v := os.Getenv("HOTTUB_HOME"); v != "" {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".hottub")
	}
	return filepath.Join(home, ".hottub")
}

// Path returns the full path to hottub.toml.
func Path() string { return filepath.Join(Dir(), "hottub.toml") }

// EnsureDir creates the hottub home directory if missing.
func EnsureDir() error { return os.MkdirAll(Dir(), 0o755) }

// Load reads hottub.toml, applies HOTTUB_* environment overrides, and
// returns the result merged onto Defaults(). A missing file is not an
// error — the pool runs entirely on defaults and env vars, since a
// from-scratch "java" drop-in must work with zero configuration.
func Load() (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(Path())
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading %s: %w", Path(), err)
		}
	} else if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", Path(), err)
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overlays HOTTUB_POOL_SIZE / HOTTUB_RETRY_COUNT /
// HOTTUB_RETRY_DELAY_MS / HOTTUB_TAG / HOTTUB_VERBOSE onto cfg.
func applyEnv(cfg *Config) error {
	if v := os.Getenv("HOTTUB_POOL_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOTTUB_POOL_SIZE=%q: %w", v, err)
		}
		cfg.PoolSize = n
	}
	if v := os.Getenv("HOTTUB_RETRY_COUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOTTUB_RETRY_COUNT=%q: %w", v, err)
		}
		cfg.RetryCount = n
	}
	if v := os.Getenv("HOTTUB_RETRY_DELAY_MS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOTTUB_RETRY_DELAY_MS=%q: %w", v, err)
		}
		cfg.RetryDelay = time.Duration(n) * time.Millisecond
	}
	if v := os.Getenv("HOTTUB_TAG"); v != "" {
		cfg.Tag = v
	}
	if v := os.Getenv("HOTTUB_VERBOSE"); v != "" {
		cfg.Verbose = strings.EqualFold(v, "1") || strings.EqualFold(v, "true")
	}
	return nil
}

// Save writes cfg to hottub.toml.
func Save(cfg *Config) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(Path(), data, 0o644)
}

// validKeys lists the dot-separated keys javapool config get/set accepts.
var validKeys = map[string]bool{
	"pool_size":   true,
	"retry_count": true,
	"retry_delay": true,
	"tag":         true,
	"verbose":     true,
}

// Get retrieves a single config value by key, for javapool's config
// subcommand (modeled on config.Get).
func Get(key string) (string, error) {
	if !validKeys[key] {
		return "", fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return "", err
	}
	switch key {
	case "pool_size":
		return strconv.Itoa(cfg.PoolSize), nil
	case "retry_count":
		return strconv.Itoa(cfg.RetryCount), nil
	case "retry_delay":
		return cfg.RetryDelay.String(), nil
	case "tag":
		return cfg.Tag, nil
	case "verbose":
		return strconv.FormatBool(cfg.Verbose), nil
	default:
		return "", fmt.Errorf("unknown config key: %s", key)
	}
}

// Set sets a single config value by key and persists it.
func Set(key, value string) error {
	if !validKeys[key] {
		return fmt.Errorf("unknown config key: %s", key)
	}
	cfg, err := Load()
	if err != nil {
		return err
	}
	switch key {
	case "pool_size":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.PoolSize = n
	case "retry_count":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.RetryCount = n
	case "retry_delay":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.RetryDelay = d
	case "tag":
		cfg.Tag = value
	case "verbose":
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		cfg.Verbose = b
	}
	return Save(cfg)
}
