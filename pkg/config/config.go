// Package config loads the optional YAML configuration shared by the events binaries. Command line flags override
// whatever the file sets.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

type ServerConfig struct {
	// Listen is the address of the REST collection endpoint.
	Listen string `yaml:"listen"`
	// Database is the sqlite file holding the store snapshots.
	Database string `yaml:"database"`
	// BackupInterval is how often the in-memory document is written to the database.
	BackupInterval time.Duration `yaml:"backup_interval"`
	// Peers are base urls of other store servers to replicate with.
	Peers        []string      `yaml:"peers"`
	SyncInterval time.Duration `yaml:"sync_interval"`
}

type UIConfig struct {
	Listen string `yaml:"listen"`
	// StoreURL is the base url of the REST collection; requests go to <StoreURL>/events.
	StoreURL       string        `yaml:"store_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// RefreshCron is an optional cron-style schedule (e.g. "*/15 * * * *") for reloading the whole collection.
	RefreshCron string `yaml:"refresh"`
}

type Config struct {
	LogLevel string       `yaml:"log_level"`
	Server   ServerConfig `yaml:"server"`
	UI       UIConfig     `yaml:"ui"`
}

func Default() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults.
func (c *Config) Normalize() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Server.Listen == "" {
		c.Server.Listen = "localhost:3000"
	}
	if c.Server.Database == "" {
		c.Server.Database = "events.sqlite3"
	}
	if c.Server.BackupInterval <= 0 {
		c.Server.BackupInterval = 5 * time.Second
	}
	if c.Server.SyncInterval <= 0 {
		c.Server.SyncInterval = time.Second
	}
	if c.UI.Listen == "" {
		c.UI.Listen = "localhost:8080"
	}
	if c.UI.StoreURL == "" {
		c.UI.StoreURL = "http://localhost:3000"
	}
	if c.UI.RequestTimeout <= 0 {
		c.UI.RequestTimeout = 10 * time.Second
	}
}

// Load reads the YAML file at path. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	c.Normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the values that Normalize cannot fix.
func (c *Config) Validate() error {
	if _, err := c.SlogLevel(); err != nil {
		return err
	}
	if c.UI.RefreshCron != "" {
		if _, err := cron.ParseStandard(c.UI.RefreshCron); err != nil {
			return fmt.Errorf("invalid refresh schedule %q: %w", c.UI.RefreshCron, err)
		}
	}
	return nil
}

func (c *Config) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.New("unknown log level: " + c.LogLevel)
}

// SetupLogging installs a text handler on stderr at the configured level.
func (c *Config) SetupLogging() error {
	level, err := c.SlogLevel()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	return nil
}
