// Package config provides configuration loading for the leadsheet tools.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FocuswithJustin/LeadSheetML/core/render"
	"github.com/FocuswithJustin/LeadSheetML/internal/logging"
)

// Config represents the complete leadsheet configuration.
type Config struct {
	Render  RenderConfig  `yaml:"render"`
	Server  ServerConfig  `yaml:"server"`
	Catalog CatalogConfig `yaml:"catalog"`
	Logging LoggingConfig `yaml:"logging"`
}

// RenderConfig configures output defaults.
type RenderConfig struct {
	// Format is the default output format ("markdown" or "html").
	Format string `yaml:"format"`
	// Layout is "rows" (one segment per row) or "pre" (one block per section).
	Layout string `yaml:"layout"`
	// MinChordWidth is the narrowest column a chord occupies.
	MinChordWidth int `yaml:"min_chord_width"`
}

// ServerConfig configures the HTTP service.
type ServerConfig struct {
	Port int `yaml:"port"`
	// AllowedOrigins lists CORS origins (empty = allow all).
	AllowedOrigins []string `yaml:"allowed_origins"`
	// CacheTTL is how long a rendered result stays cached.
	CacheTTL time.Duration `yaml:"cache_ttl"`
	// CacheEntries caps the number of cached results.
	CacheEntries int `yaml:"cache_entries"`
	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// MaxSourceBytes caps the size of a submitted song.
	MaxSourceBytes int64 `yaml:"max_source_bytes"`
}

// CatalogConfig configures the songbook catalog.
type CatalogConfig struct {
	// Path is the SQLite database file.
	Path string `yaml:"path"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Render: RenderConfig{
			Format:        "markdown",
			Layout:        "rows",
			MinChordWidth: render.DefaultMinChordWidth,
		},
		Server: ServerConfig{
			Port:           8080,
			AllowedOrigins: nil, // Allow all
			CacheTTL:       10 * time.Minute,
			CacheEntries:   512,
			ReadTimeout:    15 * time.Second,
			MaxSourceBytes: 1 << 20,
		},
		Catalog: CatalogConfig{
			Path: "leadsheet.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks that the configuration is valid.
func (c *Config) Validate() error {
	if _, err := render.BackendFor(c.Render.Format); err != nil {
		return fmt.Errorf("render.format: %w", err)
	}
	if _, err := render.ParseLayout(c.Render.Layout); err != nil {
		return fmt.Errorf("render.layout: %w", err)
	}
	if c.Render.MinChordWidth < 1 {
		return fmt.Errorf("render.min_chord_width must be at least 1")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Server.CacheTTL < 0 {
		return fmt.Errorf("server.cache_ttl must not be negative")
	}
	if c.Server.CacheEntries < 0 {
		return fmt.Errorf("server.cache_entries must not be negative")
	}
	if c.Server.MaxSourceBytes <= 0 {
		return fmt.Errorf("server.max_source_bytes must be positive")
	}
	if c.Catalog.Path == "" {
		return fmt.Errorf("catalog.path is required")
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}
	return nil
}

// RenderOptions converts the render section into renderer options.
// Call Validate first; an unknown layout falls back to rows.
func (c *Config) RenderOptions() render.Options {
	layout, _ := render.ParseLayout(c.Render.Layout)
	return render.Options{
		MinChordWidth: c.Render.MinChordWidth,
		Layout:        layout,
	}
}

// ApplyLogging initializes the global logger from the logging section.
func (c *Config) ApplyLogging() error {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		return err
	}
	format, err := logging.ParseFormat(c.Logging.Format)
	if err != nil {
		return err
	}
	logging.InitLogger(level, format)
	return nil
}

// LoadFromFile loads configuration from a YAML file. Fields the file leaves
// out keep their defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// Load returns the defaults when path is empty, otherwise the validated
// contents of path.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// SaveToFile saves configuration to a YAML file.
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
