// Package config loads diskforge settings.
//
// Settings come from, in increasing priority: built-in defaults, a YAML file
// (by default $XDG_CONFIG_HOME/diskforge/config.yaml), a .env file in the
// working directory, and DISKFORGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/melih/diskforge/internal/core/services/build"
)

const (
	appName = "diskforge"

	DefaultListen = ":3000"
	DefaultEngine = "default"
)

// Engine is a container engine reachable through the Docker API.
type Engine struct {
	// Host is the API endpoint, e.g. unix:///run/podman/podman.sock. Empty
	// uses DOCKER_HOST or the platform default.
	Host string `yaml:"host"`
}

// Config holds every diskforge setting.
type Config struct {
	BuilderImage string            `yaml:"builder_image"`
	StoragePath  string            `yaml:"storage_path"`
	HistoryDB    string            `yaml:"history_db"`
	Listen       string            `yaml:"listen"`
	LogLevel     string            `yaml:"log_level"`
	NATSURL      string            `yaml:"nats_url"`
	NATSSubject  string            `yaml:"nats_subject"`
	Engines      map[string]Engine `yaml:"engines"`
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		BuilderImage: build.DefaultBuilderImage,
		StoragePath:  build.DefaultStoragePath,
		HistoryDB:    filepath.Join(xdg.DataHome, appName, "history.db"),
		Listen:       DefaultListen,
		LogLevel:     "info",
		Engines:      map[string]Engine{DefaultEngine: {}},
	}
}

// Load builds the configuration. An empty path searches the XDG config
// directories; a missing file there is not an error, a missing explicit
// path is.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("failed to load .env: %w", err)
	}

	if path == "" {
		if found, err := xdg.SearchConfigFile(filepath.Join(appName, "config.yaml")); err == nil {
			path = found
		}
	}
	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return Config{}, err
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config %s: %w", path, err)
	}
	// A configured engine list replaces the default engine instead of adding to it.
	defaults := c.Engines
	c.Engines = nil
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if len(c.Engines) == 0 {
		c.Engines = defaults
	}
	return nil
}

func (c *Config) applyEnv() {
	overrides := []struct {
		key string
		dst *string
	}{
		{"DISKFORGE_BUILDER_IMAGE", &c.BuilderImage},
		{"DISKFORGE_STORAGE_PATH", &c.StoragePath},
		{"DISKFORGE_HISTORY_DB", &c.HistoryDB},
		{"DISKFORGE_LISTEN", &c.Listen},
		{"DISKFORGE_LOG_LEVEL", &c.LogLevel},
		{"DISKFORGE_NATS_URL", &c.NATSURL},
		{"DISKFORGE_NATS_SUBJECT", &c.NATSSubject},
	}
	for _, o := range overrides {
		if v, ok := os.LookupEnv(o.key); ok {
			*o.dst = v
		}
	}
}

// Validate rejects configurations the service can't start with.
func (c Config) Validate() error {
	if c.BuilderImage == "" {
		return errors.New("builder_image must not be empty")
	}
	if !filepath.IsAbs(c.StoragePath) {
		return fmt.Errorf("storage_path must be absolute, got %q", c.StoragePath)
	}
	if c.HistoryDB == "" {
		return errors.New("history_db must not be empty")
	}
	if len(c.Engines) == 0 {
		return errors.New("at least one engine must be configured")
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// EngineHosts maps engine IDs to their API hosts.
func (c Config) EngineHosts() map[string]string {
	hosts := make(map[string]string, len(c.Engines))
	for id, e := range c.Engines {
		hosts[id] = e.Host
	}
	return hosts
}

// Level returns the configured log level.
func (c Config) Level() slog.Level {
	level, _ := parseLevel(c.LogLevel)
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
