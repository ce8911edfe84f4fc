// Package config loads the YAML configuration for the feed demo and the
// components it wires together.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/IvanBrykalov/lazyfeed/cache"
	"github.com/IvanBrykalov/lazyfeed/feed"
	"github.com/IvanBrykalov/lazyfeed/loader"
)

type Config struct {
	Cache   Cache   `yaml:"cache"`
	Loader  Loader  `yaml:"loader"`
	Feed    Feed    `yaml:"feed"`
	Log     Log     `yaml:"log"`
	Metrics Metrics `yaml:"metrics"`
}

type Cache struct {
	CountLimit int   `yaml:"count_limit"`
	MaxCost    int64 `yaml:"max_cost"`
	Shards     int   `yaml:"shards"`
}

type Loader struct {
	Timeout       time.Duration `yaml:"timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	UserAgent     string        `yaml:"user_agent"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes"`
}

type Feed struct {
	Threshold int           `yaml:"threshold"`
	PageSize  int           `yaml:"page_size"`
	Latency   time.Duration `yaml:"latency"`
	MaxPages  int           `yaml:"max_pages"`
	RSSURL    string        `yaml:"rss_url"` // empty => static demo catalog
}

type Log struct {
	Level LogLevel `yaml:"level"`
}

type Metrics struct {
	Address string `yaml:"address"` // empty disables the /metrics listener
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Cache: Cache{
			CountLimit: cache.DefaultCountLimit,
			MaxCost:    cache.DefaultMaxCost,
			Shards:     1,
		},
		Loader: Loader{
			Timeout:       loader.DefaultTimeout,
			MaxConcurrent: loader.DefaultMaxConcurrent,
			UserAgent:     "lazyfeed/1",
		},
		Feed: Feed{
			Threshold: feed.DefaultThreshold,
			PageSize:  10,
			Latency:   500 * time.Millisecond,
		},
		Log:     Log{Level: LogLevelInfo},
		Metrics: Metrics{Address: ":8080"},
	}
}

// Parse decodes raw YAML over the defaults and validates the result.
func Parse(raw []byte) (Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, cfg.Validate()
}

// Load reads and parses the file at path.
func Load(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Default(), fmt.Errorf("read config: %w", err)
	}
	return Parse(raw)
}

// Validate rejects values the components would refuse or misread.
func (c Config) Validate() error {
	switch {
	case c.Cache.CountLimit < 0:
		return fmt.Errorf("cache.count_limit must be >= 0, got %d", c.Cache.CountLimit)
	case c.Cache.MaxCost < 0:
		return fmt.Errorf("cache.max_cost must be >= 0, got %d", c.Cache.MaxCost)
	case c.Loader.MaxConcurrent < 0:
		return fmt.Errorf("loader.max_concurrent must be >= 0, got %d", c.Loader.MaxConcurrent)
	case c.Feed.Threshold < 0:
		return fmt.Errorf("feed.threshold must be >= 0, got %d", c.Feed.Threshold)
	case c.Feed.PageSize < 0:
		return fmt.Errorf("feed.page_size must be >= 0, got %d", c.Feed.PageSize)
	}
	return nil
}
