// Package config loads and saves the marksync configuration file.
//
// The file is TOML:
//
//	[sync]
//	webhook = "https://store.example.com/bookmarks"
//	mount_on = "1"
//	remote_root = "[0].children[0]"
//
//	[sync.headers]
//	Authorization = "Bearer ..."
//
//	[store]
//	path = "~/.config/marksync/bookmarks.db"
//
//	[daemon]
//	interval = "30m"
//	listen = "127.0.0.1:7777"
//	run_on_start = true
//
//	[logging]
//	file = "~/.config/marksync/marksync.log"
//
// Every key can be overridden from the environment with the MARKSYNC_ prefix,
// for example MARKSYNC_SYNC_WEBHOOK or MARKSYNC_DAEMON_INTERVAL.
package config

import (
	"fmt"
	"time"
)

// Config is the whole configuration file.
type Config struct {
	Sync    Sync    `mapstructure:"sync" toml:"sync"`
	Store   Store   `mapstructure:"store" toml:"store"`
	Daemon  Daemon  `mapstructure:"daemon" toml:"daemon"`
	Logging Logging `mapstructure:"logging" toml:"logging"`
}

// Sync holds what a sync run needs.
type Sync struct {
	// WebHook is the base URL of the remote store.
	WebHook string `mapstructure:"webhook" toml:"webhook"`

	// Headers are sent unchanged with every remote request.
	Headers map[string]string `mapstructure:"headers" toml:"headers,omitempty"`

	// MountOn is the id of the local folder to synchronize.
	MountOn string `mapstructure:"mount_on" toml:"mount_on"`

	// RemoteRoot is the address path of the matching remote folder.
	RemoteRoot string `mapstructure:"remote_root" toml:"remote_root"`
}

// Complete reports whether a sync run can proceed.
func (s Sync) Complete() bool {
	return s.MountOn != "" && s.RemoteRoot != "" && s.WebHook != ""
}

// Store configures the local bookmark database.
type Store struct {
	Path string `mapstructure:"path" toml:"path"`
}

// Daemon configures the background scheduler.
type Daemon struct {
	// Interval between scheduled downloads, as a Go duration string.
	Interval string `mapstructure:"interval" toml:"interval"`

	// Listen is the dashboard and trigger endpoint address.
	Listen string `mapstructure:"listen" toml:"listen"`

	// RunOnStart downloads once when the daemon starts.
	RunOnStart bool `mapstructure:"run_on_start" toml:"run_on_start"`
}

// IntervalDuration parses Interval.
func (d Daemon) IntervalDuration() (time.Duration, error) {
	dur, err := time.ParseDuration(d.Interval)
	if err != nil {
		return 0, fmt.Errorf("invalid daemon.interval %q: %w", d.Interval, err)
	}
	if dur <= 0 {
		return 0, fmt.Errorf("daemon.interval must be positive (got %s)", d.Interval)
	}
	return dur, nil
}

// Logging configures the optional rotating log file.
type Logging struct {
	File       string `mapstructure:"file" toml:"file,omitempty"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days" toml:"max_age_days"`
}

// Validate checks the fields that must be well-formed even when sync is not
// configured yet.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if _, err := c.Daemon.IntervalDuration(); err != nil {
		return err
	}
	if c.Logging.MaxSizeMB < 0 || c.Logging.MaxBackups < 0 || c.Logging.MaxAgeDays < 0 {
		return fmt.Errorf("logging limits must not be negative")
	}
	return nil
}
