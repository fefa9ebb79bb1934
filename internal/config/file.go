package config

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

const (
	// EnvPrefix prefixes environment overrides.
	EnvPrefix = "MARKSYNC"

	// DefaultInterval matches the half-hour download cadence.
	DefaultInterval = "30m"

	// DefaultListen is the dashboard and trigger endpoint address.
	DefaultListen = "127.0.0.1:7777"
)

// DefaultDir returns ~/.config/marksync.
func DefaultDir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".config", "marksync"), nil
}

// DefaultPath returns the default configuration file location.
func DefaultPath() (string, error) {
	dir, err := DefaultDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Store: Store{Path: "~/.config/marksync/bookmarks.db"},
		Daemon: Daemon{
			Interval:   DefaultInterval,
			Listen:     DefaultListen,
			RunOnStart: true,
		},
		Logging: Logging{
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// keyDelim separates viper key segments. Header names may contain dots, so
// the default "." cannot be used.
const keyDelim = "::"

func key(section, name string) string {
	return section + keyDelim + name
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault(key("sync", "webhook"), "")
	v.SetDefault(key("sync", "mount_on"), "")
	v.SetDefault(key("sync", "remote_root"), "")
	v.SetDefault(key("store", "path"), d.Store.Path)
	v.SetDefault(key("daemon", "interval"), d.Daemon.Interval)
	v.SetDefault(key("daemon", "listen"), d.Daemon.Listen)
	v.SetDefault(key("daemon", "run_on_start"), d.Daemon.RunOnStart)
	v.SetDefault(key("logging", "file"), "")
	v.SetDefault(key("logging", "max_size_mb"), d.Logging.MaxSizeMB)
	v.SetDefault(key("logging", "max_backups"), d.Logging.MaxBackups)
	v.SetDefault(key("logging", "max_age_days"), d.Logging.MaxAgeDays)
}

// rawHeaders decodes [sync.headers] as written. Viper folds key case, so the
// names are taken from here instead.
type rawHeaders struct {
	Sync struct {
		Headers map[string]string `toml:"headers"`
	} `toml:"sync"`
}

// File is a configuration file on a filesystem.
//
// Load re-reads the file on every call, so edits made by `marksync configure`
// or by hand are picked up by the next sync run.
type File struct {
	fs   afero.Fs
	path string
}

// NewFile returns the configuration file at path on the OS filesystem.
func NewFile(path string) *File {
	return NewFileFs(afero.NewOsFs(), path)
}

// NewFileFs returns the configuration file at path on fs.
func NewFileFs(fs afero.Fs, path string) *File {
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return &File{fs: fs, path: path}
}

// Path returns the file location.
func (f *File) Path() string {
	return f.path
}

// Load reads the file, applies environment overrides and defaults, and
// validates the result. A missing file yields the defaults.
//
// Environment overrides use MARKSYNC_<SECTION>_<KEY>, e.g.
// MARKSYNC_SYNC_WEBHOOK. Header names are returned exactly as written.
func (f *File) Load() (*Config, error) {
	v := viper.NewWithOptions(viper.KeyDelimiter(keyDelim))
	v.SetConfigType("toml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(keyDelim, "_"))
	v.AutomaticEnv()

	exists, err := afero.Exists(f.fs, f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", f.path, err)
	}

	var headers rawHeaders
	if exists {
		data, err := afero.ReadFile(f.fs, f.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", f.path, err)
		}
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", f.path, err)
		}
		if _, err := toml.Decode(string(data), &headers); err != nil {
			return nil, fmt.Errorf("failed to read headers from %s: %w", f.path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", f.path, err)
	}
	cfg.Sync.Headers = headers.Sync.Headers

	cfg.Store.Path = expand(cfg.Store.Path)
	cfg.Logging.File = expand(cfg.Logging.File)
	cfg.Sync.WebHook = strings.TrimRight(cfg.Sync.WebHook, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Save writes cfg to the file, replacing it atomically.
func (f *File) Save(cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := f.fs.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := afero.WriteFile(f.fs, tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := f.fs.Rename(tmp, f.path); err != nil {
		_ = f.fs.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	return nil
}

func expand(path string) string {
	if path == "" {
		return ""
	}
	if expanded, err := homedir.Expand(path); err == nil {
		return expanded
	}
	return path
}
