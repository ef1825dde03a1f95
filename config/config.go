// Package config loads the service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Http     HTTPConfig     `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Models   ModelsConfig   `yaml:"models"`
	Catalog  CatalogConfig  `yaml:"catalog"`
	Cache    CacheConfig    `yaml:"cache"`
	Events   EventsConfig   `yaml:"events"`
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	Timeout        time.Duration `yaml:"timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxBodyBytes   int64         `yaml:"max_body_bytes"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type ModelsConfig struct {
	Fined       ModelConfig `yaml:"fined"`
	Paid        ModelConfig `yaml:"paid"`
	OnnxLibrary string      `yaml:"onnx_library"`
	Watch       bool        `yaml:"watch"`
}

// CatalogConfig narrows the default catalog. Empty lists keep the defaults.
type CatalogConfig struct {
	PropertyTypes []string `yaml:"property_types"`
	Years         []int    `yaml:"years"`
}

type CacheConfig struct {
	Size int `yaml:"size"`
}

// EventsConfig enables Kafka publishing of predictions when Brokers is set.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type ModelConfig struct {
	Type   string `yaml:"type"`
	Path   string `yaml:"path"`
	Schema string `yaml:"schema"`
}

// Default returns a configuration that runs with the bundled models.
func Default() *Config {
	cfg := &Config{}
	cfg.Http.Port = 8080
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Http.MaxBodyBytes = 1 << 20
	cfg.Database.Path = "./data/ll97.db"
	cfg.Log.Level = "info"
	cfg.Log.MaxSizeMB = 100
	cfg.Log.MaxBackups = 3
	cfg.Log.MaxAgeDays = 28
	cfg.Models.Fined = ModelConfig{Type: "random_forest", Path: "./models/fined_model.json"}
	cfg.Models.Paid = ModelConfig{Type: "random_forest", Path: "./models/paid_model.json"}
	cfg.Cache.Size = 1024
	cfg.Events.Topic = "ll97.predictions"
	return cfg
}

// Load reads path over the defaults and applies LL97_* environment
// overrides. A missing file is not an error; defaults and environment apply.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, err
		}
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("http.port %d out of range", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return errors.New("http.timeout must be positive")
	}
	for name, m := range map[string]ModelConfig{"fined": c.Models.Fined, "paid": c.Models.Paid} {
		if m.Path == "" {
			return fmt.Errorf("models.%s.path is required", name)
		}
		switch m.Type {
		case "decision_tree", "random_forest", "onnx":
		default:
			return fmt.Errorf("models.%s.type %q is not supported", name, m.Type)
		}
	}
	if c.Cache.Size < 0 {
		return errors.New("cache.size must not be negative")
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		return errors.New("events.topic is required when brokers are set")
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Database.Path = getenv("LL97_DB_PATH", cfg.Database.Path)
	cfg.Log.Level = getenv("LL97_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getenv("LL97_LOG_FILE", cfg.Log.File)
	cfg.Models.Fined.Path = getenv("LL97_FINED_MODEL", cfg.Models.Fined.Path)
	cfg.Models.Paid.Path = getenv("LL97_PAID_MODEL", cfg.Models.Paid.Path)
	cfg.Models.OnnxLibrary = getenv("LL97_ONNX_LIBRARY", cfg.Models.OnnxLibrary)
	if v := os.Getenv("LL97_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LL97_PORT: %w", err)
		}
		cfg.Http.Port = port
	}
	if v := os.Getenv("LL97_KAFKA_BROKERS"); v != "" {
		cfg.Events.Brokers = splitList(v)
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
