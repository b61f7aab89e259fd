package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"classgrid/internal/model"
)

const (
	DefaultListen      = "127.0.0.1:8080"
	DefaultStoreDriver = "sqlite"
	DefaultStoreDSN    = "./var/classgrid.db"
	DefaultCacheDir    = "./var/source-cache"
	DefaultSnapshot    = "./var/preview.png"
	DefaultImportCron  = "0 6 * * *"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"

	termLayout = "2006-01-02"
)

// StoreConfig selects the schedule database.
type StoreConfig struct {
	// Driver is "sqlite" or "postgres".
	Driver string `yaml:"driver" json:"driver"`
	// DSN is a file path for sqlite (":memory:" for a throwaway store) or a
	// connection URL for postgres.
	DSN string `yaml:"dsn" json:"dsn"`
}

type IngestConfig struct {
	// Strict aborts an upload on the first row that fails processing instead
	// of skipping it.
	Strict bool `yaml:"strict" json:"strict"`
}

// ImportConfig describes the optional scheduled download of the schedule
// spreadsheet. An empty URL disables it.
type ImportConfig struct {
	URL      string `yaml:"url" json:"url"`
	Cron     string `yaml:"cron" json:"cron"`
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
}

// SnapshotConfig controls the dashboard PNG. An empty Cron disables the
// periodic capture; POST /api/admin/snapshot still works.
type SnapshotConfig struct {
	Path       string `yaml:"path" json:"path"`
	Cron       string `yaml:"cron" json:"cron"`
	Width      int    `yaml:"width" json:"width"`
	Height     int    `yaml:"height" json:"height"`
	Chromium   string `yaml:"chromium,omitempty" json:"chromium,omitempty"`
	TimeoutSec int    `yaml:"timeout_sec" json:"timeout_sec"`
}

// TermConfig bounds the recurring events of the ICS feed. Dates use
// YYYY-MM-DD in the reference zone; empty values fall back to a window
// around the request time.
type TermConfig struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// BasicAuthConfig holds the credential for the admin endpoints.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the reference zone every stored time is read in.
	Timezone string `yaml:"timezone" json:"timezone"`

	Store    StoreConfig    `yaml:"store" json:"store"`
	Ingest   IngestConfig   `yaml:"ingest" json:"ingest"`
	Import   ImportConfig   `yaml:"import" json:"import"`
	Snapshot SnapshotConfig `yaml:"snapshot" json:"snapshot"`
	Term     TermConfig     `yaml:"term" json:"term"`
	Log      LogConfig      `yaml:"log" json:"log"`

	// BasicAuth, if non-nil, enables the admin endpoints.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	c := &Config{}
	c.Normalize()
	return c
}

// Normalize fills zero values with defaults so partially written files
// still work.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = DefaultListen
	}
	if c.Timezone == "" {
		c.Timezone = model.DefaultReferenceZone
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DefaultStoreDriver
	}
	if c.Store.DSN == "" && c.Store.Driver == DefaultStoreDriver {
		c.Store.DSN = DefaultStoreDSN
	}
	if c.Import.Cron == "" {
		c.Import.Cron = DefaultImportCron
	}
	if c.Import.CacheDir == "" {
		c.Import.CacheDir = DefaultCacheDir
	}
	if c.Snapshot.Path == "" {
		c.Snapshot.Path = DefaultSnapshot
	}
	if c.Snapshot.TimeoutSec <= 0 {
		c.Snapshot.TimeoutSec = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		c.Log.Format = DefaultLogFormat
	}
}

// Validate reports settings that Normalize cannot repair.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("config: store dsn is empty")
	}
	if c.Snapshot.Width < 0 || c.Snapshot.Height < 0 {
		return errors.New("config: snapshot size must not be negative")
	}
	if c.BasicAuth != nil && (c.BasicAuth.Username == "" || c.BasicAuth.Password == "") {
		return errors.New("config: basic_auth needs both username and password")
	}
	loc, _ := c.Location()
	if _, _, _, err := c.Term.Range(loc); err != nil {
		return err
	}
	return nil
}

// Location loads the configured reference zone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("config: timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Range parses the term bounds in loc. ok is false when either bound is
// unset.
func (t TermConfig) Range(loc *time.Location) (start, end time.Time, ok bool, err error) {
	if t.Start == "" || t.End == "" {
		return time.Time{}, time.Time{}, false, nil
	}
	if start, err = time.ParseInLocation(termLayout, t.Start, loc); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("config: term start: %w", err)
	}
	if end, err = time.ParseInLocation(termLayout, t.End, loc); err != nil {
		return time.Time{}, time.Time{}, false, fmt.Errorf("config: term end: %w", err)
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, false, errors.New("config: term end is before term start")
	}
	return start, end, true, nil
}

// Load reads the YAML file at path. A missing file is created with the
// defaults and 0600 permissions.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.Normalize()
	return &cfg, nil
}

// Save writes cfg to path through a temp file and rename, leaving the file
// with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".classgrid-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}

func (c *Config) Save(path string) error {
	return Save(path, c)
}
