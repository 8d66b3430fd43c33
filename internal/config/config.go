package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"

	"farmstay/internal/model"
)

// Environment overrides. The feed URL usually lives in the environment so
// the private iCal secret stays out of the config file.
const (
	EnvFeedURL  = "AIRBNB_ICAL_URL"
	EnvLogLevel = "FARMSTAY_LOG_LEVEL"
)

const (
	defaultListen         = "127.0.0.1:8080"
	defaultTimezone       = model.DefaultTimezone
	defaultRefresh        = "*/15 * * * *"
	defaultMaxAge         = "15m"
	defaultHorizonDays    = 365
	defaultTimeoutSeconds = 15
	maxTimeoutSeconds     = 60
	defaultGuests         = 2
	defaultMaxGuests      = 6
)

// FeedConfig describes the calendar subscription.
type FeedConfig struct {
	// URL is the private iCal export of the listing. May be empty in the
	// file and supplied through AIRBNB_ICAL_URL.
	URL string `yaml:"url" json:"url"`
	// TimeoutSeconds bounds one fetch (1..60, default 15).
	TimeoutSeconds int `yaml:"timeout_seconds" json:"timeout_seconds"`
}

// ListingConfig describes the external listing that takes the booking.
type ListingConfig struct {
	ID            string `yaml:"id" json:"id"`
	BaseURL       string `yaml:"base_url" json:"base_url"`
	NightlyRate   int    `yaml:"nightly_rate" json:"nightly_rate"`
	DefaultGuests int    `yaml:"default_guests" json:"default_guests"`
	MaxGuests     int    `yaml:"max_guests" json:"max_guests"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone of the property; "today" is computed there.
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "sunday" (default) or "monday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is a standard 5-field cron expression for background sync.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// MaxAge is how long a snapshot is served before a request triggers a
	// new sync (Go duration string).
	MaxAge string `yaml:"max_age" json:"max_age"`

	// HorizonDays bounds the expansion of recurring blocks.
	HorizonDays int `yaml:"horizon_days" json:"horizon_days"`

	// KeepLastGood serves the previous ranges (marked stale) when a sync
	// fails instead of showing every date as free.
	KeepLastGood bool `yaml:"keep_last_good" json:"keep_last_good"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Feed    FeedConfig    `yaml:"feed" json:"feed"`
	Listing ListingConfig `yaml:"listing" json:"listing"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      defaultListen,
		Timezone:    defaultTimezone,
		WeekStart:   "sunday",
		RefreshCron: defaultRefresh,
		MaxAge:      defaultMaxAge,
		HorizonDays: defaultHorizonDays,
		LogLevel:    "info",
		Feed: FeedConfig{
			TimeoutSeconds: defaultTimeoutSeconds,
		},
		Listing: ListingConfig{
			BaseURL:       "https://www.airbnb.com/rooms/",
			DefaultGuests: defaultGuests,
			MaxGuests:     defaultMaxGuests,
		},
	}
}

// Normalize fills in missing or invalid values so that partially-filled
// configs still behave.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = "sunday"
	}

	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefresh
	}
	if _, err := cron.ParseStandard(c.RefreshCron); err != nil {
		c.RefreshCron = defaultRefresh
	}
	if d, err := time.ParseDuration(c.MaxAge); err != nil || d <= 0 {
		c.MaxAge = defaultMaxAge
	}
	if c.HorizonDays <= 0 {
		c.HorizonDays = defaultHorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	c.Feed.URL = strings.TrimSpace(c.Feed.URL)
	switch {
	case c.Feed.TimeoutSeconds <= 0:
		c.Feed.TimeoutSeconds = defaultTimeoutSeconds
	case c.Feed.TimeoutSeconds > maxTimeoutSeconds:
		c.Feed.TimeoutSeconds = maxTimeoutSeconds
	}

	if c.Listing.BaseURL == "" {
		c.Listing.BaseURL = "https://www.airbnb.com/rooms/"
	}
	if c.Listing.MaxGuests <= 0 {
		c.Listing.MaxGuests = defaultMaxGuests
	}
	if c.Listing.DefaultGuests <= 0 {
		c.Listing.DefaultGuests = defaultGuests
	}
	if c.Listing.DefaultGuests > c.Listing.MaxGuests {
		c.Listing.DefaultGuests = c.Listing.MaxGuests
	}
	if c.Listing.NightlyRate < 0 {
		c.Listing.NightlyRate = 0
	}
}

// ApplyEnv overrides file values with the process environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvFeedURL)); v != "" {
		c.Feed.URL = v
	}
	if v := strings.TrimSpace(getenv(EnvLogLevel)); v != "" {
		c.LogLevel = v
	}
}

// FetchTimeout is Feed.TimeoutSeconds as a duration.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}

// MaxAgeDuration is MaxAge parsed; Normalize guarantees it parses.
func (c *Config) MaxAgeDuration() time.Duration {
	d, err := time.ParseDuration(c.MaxAge)
	if err != nil {
		return 15 * time.Minute
	}
	return d
}

// Location resolves Timezone. An empty or unknown zone yields
// model.DefaultLocation (with the load error for the latter).
func (c *Config) Location() (*time.Location, error) {
	if c.Timezone == "" {
		return model.DefaultLocation(), nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return model.DefaultLocation(), err
	}
	return loc, nil
}

// Load loads configuration from the given YAML path and applies the
// environment.
//
// Behavior:
//   - If the file does not exist: write a default config with 0600 perms
//     and return it.
//   - If the file exists: unmarshal YAML and normalize defaults.
//
// A missing feed URL is not an error here; the sync reports it.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				cfg.ApplyEnv(os.Getenv)
				return cfg, err
			}
			cfg.ApplyEnv(os.Getenv)
			return cfg, nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.ApplyEnv(os.Getenv)
	cfg.Normalize()

	return cfg, nil
}

// Save writes cfg to path atomically (temp file + rename) with 0600
// permissions, creating the parent directory if needed.
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

	tmp, err := os.CreateTemp(dir, ".farmstay-config-*.tmp")
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

// Save is a convenience method on Config that delegates to the package-level
// Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
