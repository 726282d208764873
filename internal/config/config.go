// Package config holds the run configuration. Values are layered from
// defaults, an optional YAML file and DEADFUNCS_* environment variables;
// command-line flags are applied on top by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"

	"deadfuncs/internal/output"
	"deadfuncs/internal/source"
	"deadfuncs/internal/toolchain"
)

// DefaultFile is read when present and no explicit file is given.
const DefaultFile = "deadfuncs.yaml"

// DefaultPrefix is the cross-toolchain prefix of the target platform.
const DefaultPrefix = "sparc-rtems-"

// ErrInvalid marks a configuration rejected by Validate.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete run configuration.
type Config struct {
	Toolchain ToolchainConfig `yaml:"toolchain"`
	CacheDir  string          `yaml:"cache_dir" env:"DEADFUNCS_CACHE_DIR"`
	Output    string          `yaml:"output" env:"DEADFUNCS_OUTPUT"`
	Report    string          `yaml:"report" env:"DEADFUNCS_REPORT"`
	Jobs      int             `yaml:"jobs" env:"DEADFUNCS_JOBS"`
	Log       LogConfig       `yaml:"log"`
}

// ToolchainConfig selects how binary dumps are produced.
type ToolchainConfig struct {
	Prefix  string `yaml:"prefix" env:"DEADFUNCS_PREFIX"`
	Objdump string `yaml:"objdump" env:"DEADFUNCS_OBJDUMP"`
	Backend string `yaml:"backend" env:"DEADFUNCS_BACKEND"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"DEADFUNCS_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"DEADFUNCS_LOG_PRETTY"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Toolchain: ToolchainConfig{
			Prefix:  DefaultPrefix,
			Backend: toolchain.BackendObjdump,
		},
		CacheDir: source.DefaultCacheDir,
		Output:   output.DefaultDeadFunctions,
		Jobs:     runtime.GOMAXPROCS(0),
		Log: LogConfig{
			Level:  "info",
			Pretty: true,
		},
	}
}

// Load returns the defaults overlaid with the YAML file at path and then
// the environment. An empty path reads DefaultFile if it exists; an
// explicit path must exist.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	case explicit || !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks the values that have no sensible fallback.
func (c *Config) Validate() error {
	switch c.Toolchain.Backend {
	case toolchain.BackendObjdump, toolchain.BackendNative:
	default:
		return fmt.Errorf("%w: backend %q (want %s or %s)", ErrInvalid,
			c.Toolchain.Backend, toolchain.BackendObjdump, toolchain.BackendNative)
	}
	if c.Jobs <= 0 {
		return fmt.Errorf("%w: jobs must be positive, got %d", ErrInvalid, c.Jobs)
	}
	if c.Output == "" {
		return fmt.Errorf("%w: output path is empty", ErrInvalid)
	}
	if c.CacheDir == "" {
		return fmt.Errorf("%w: cache directory is empty", ErrInvalid)
	}
	return nil
}
