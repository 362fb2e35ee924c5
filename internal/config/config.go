package config

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	intsync "github.com/matheus3301/chansync/internal/sync"
	"github.com/matheus3301/chansync/internal/window"
)

// Config represents the global ~/.chansync/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
	DefaultChannel string `toml:"default_channel"`
	Sync           Sync   `toml:"sync"`
	Daemon         Daemon `toml:"daemon"`
}

// Sync sizes the pagination engine.
type Sync struct {
	PreviousResultSize int `toml:"previous_result_size"`
	NextResultSize     int `toml:"next_result_size"`
	ChangelogPageSize  int `toml:"changelog_page_size"`
	CacheSize          int `toml:"cache_size"`
	MaxChangelogPages  int `toml:"max_changelog_pages"`
}

// Daemon holds chansyncd settings.
type Daemon struct {
	// MetricsAddr enables the Prometheus endpoint when set, e.g. "127.0.0.1:9464".
	MetricsAddr string `toml:"metrics_addr"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Sync: Sync{
			PreviousResultSize: intsync.DefaultPageSize,
			NextResultSize:     intsync.DefaultPageSize,
			ChangelogPageSize:  intsync.DefaultChangelogPageSize,
			CacheSize:          window.DefaultCacheSize,
			MaxChangelogPages:  intsync.DefaultMaxChangelogPages,
		},
	}
}

// Load reads config from the given path on top of Default. Returns nil and
// an error if the file is missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// SyncConfig converts the [sync] section for a coordinator.
func (c *Config) SyncConfig() intsync.Config {
	return intsync.Config{
		PreviousResultSize: c.Sync.PreviousResultSize,
		NextResultSize:     c.Sync.NextResultSize,
		ChangelogPageSize:  c.Sync.ChangelogPageSize,
		MaxChangelogPages:  c.Sync.MaxChangelogPages,
	}
}
