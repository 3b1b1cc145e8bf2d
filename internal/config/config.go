package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/apex/log"
	"gopkg.in/yaml.v3"
)

const (
	// EnvPath overrides the config file location.
	EnvPath = "COUNTRIES_CONFIG"
	// FileName is looked up in the standard config directories.
	FileName = "countries.yaml"
)

type Server struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type Upstream struct {
	Timeout time.Duration `yaml:"timeout"`
}

type Warmup struct {
	Enabled    bool          `yaml:"enabled"`
	MaxElapsed time.Duration `yaml:"max_elapsed"`
}

type Log struct {
	Level string `yaml:"level"`
}

// CLI holds flag defaults for the countries command.
type CLI struct {
	Output string `yaml:"output"`
	Sort   string `yaml:"sort"`
}

// Config is the on-disk configuration shared by the server and the CLI.
type Config struct {
	Source string `yaml:"-"`

	Server   Server   `yaml:"server"`
	Upstream Upstream `yaml:"source"`
	Warmup   Warmup   `yaml:"warmup"`
	Log      Log      `yaml:"log"`
	CLI      CLI      `yaml:"cli"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: Server{
			Addr:            ":8000",
			ReadTimeout:     5 * time.Second,
			WriteTimeout:    10 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Upstream: Upstream{Timeout: 10 * time.Second},
		Warmup:   Warmup{Enabled: true, MaxElapsed: 30 * time.Second},
		Log:      Log{Level: "info"},
		CLI:      CLI{Output: "text", Sort: "name"},
	}
}

// Load reads the config file at path over the defaults. An empty path means
// "look in the standard locations"; finding nothing there is not an error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		found, ok := Path()
		if !ok {
			return cfg, nil
		}
		path = found
	}

	bytes, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	cfg.Source = path

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects configurations the server cannot run with.
func (c Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr must not be empty")
	}
	for _, d := range []struct {
		key   string
		value time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
		{"source.timeout", c.Upstream.Timeout},
	} {
		if d.value <= 0 {
			return fmt.Errorf("%s must be positive", d.key)
		}
	}
	if c.Warmup.MaxElapsed < 0 {
		return errors.New("warmup.max_elapsed must not be negative")
	}
	switch c.CLI.Output {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("cli.output must be text, json or yaml, got %q", c.CLI.Output)
	}
	switch c.CLI.Sort {
	case "name", "population":
	default:
		return fmt.Errorf("cli.sort must be name or population, got %q", c.CLI.Sort)
	}
	return nil
}

// Path resolves the config file: COUNTRIES_CONFIG first, then countries.yaml
// under XDG_CONFIG_HOME, APPDATA and HOME.
func Path() (string, bool) {
	if p := os.Getenv(EnvPath); p != "" {
		return p, true
	}

	candidates := []string{
		os.Getenv("XDG_CONFIG_HOME"),
		os.Getenv("APPDATA"),
		os.Getenv("HOME"),
	}
	for _, c := range candidates {
		if c == "" {
			continue
		}
		file := filepath.Join(c, FileName)
		if info, err := os.Stat(file); err == nil && !info.IsDir() {
			log.Debugf("using config file: %s", file)
			return file, true
		}
	}
	return "", false
}
