package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"teamcal/internal/gesture"
	"teamcal/internal/model"
)

// ICSConfig describes a single ICS subscription source.
type ICSConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier; imported event ids are prefixed with it.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceID returns ID, falling back to Name and then URL.
func (c ICSConfig) SourceID() string {
	switch {
	case c.ID != "":
		return c.ID
	case c.Name != "":
		return c.Name
	default:
		return c.URL
	}
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA zone views are rendered in (e.g. "Europe/Berlin").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is "monday" (default) or "sunday".
	WeekStart string `yaml:"week_start" json:"week_start"`

	// DayStartHour / DayEndHour bound the visible hours of the time grid.
	DayStartHour int `yaml:"day_start_hour" json:"day_start_hour"`
	DayEndHour   int `yaml:"day_end_hour" json:"day_end_hour"`

	// Drag-to-create tuning.
	SnapMinutes            int     `yaml:"snap_minutes" json:"snap_minutes"`
	DefaultDurationMinutes int     `yaml:"default_duration_minutes" json:"default_duration_minutes"`
	MinDurationMinutes     int     `yaml:"min_duration_minutes" json:"min_duration_minutes"`
	DragThresholdPx        float64 `yaml:"drag_threshold_px" json:"drag_threshold_px"`

	// NowTick is the cron schedule for re-deriving the current-time line.
	NowTick string `yaml:"now_tick" json:"now_tick"`

	// RefreshCron is the cron schedule for re-importing ICS sources.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// Database is the SQLite file holding events.
	Database string `yaml:"database" json:"database"`

	// LogEnv selects the log encoder ("production" for JSON); LogLevel is
	// DEBUG, INFO or ERROR.
	LogEnv   string `yaml:"log_env" json:"log_env"`
	LogLevel string `yaml:"log_level" json:"log_level"`

	// ICS is the list of subscribed ICS sources.
	ICS []ICSConfig `yaml:"ics" json:"ics"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 "127.0.0.1:8080",
		Timezone:               "UTC",
		WeekStart:              "monday",
		DayStartHour:           6,
		DayEndHour:             22,
		SnapMinutes:            15,
		DefaultDurationMinutes: 60,
		MinDurationMinutes:     15,
		DragThresholdPx:        5,
		NowTick:                "@every 1m",
		RefreshCron:            "*/15 * * * *",
		Database:               "./var/teamcal.db",
		LogEnv:                 "development",
		LogLevel:               "INFO",
		ICS:                    []ICSConfig{},
		BasicAuth:              nil,
	}
}

// Normalize fills in missing/invalid values with defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	switch strings.ToLower(c.WeekStart) {
	case "monday", "sunday":
		c.WeekStart = strings.ToLower(c.WeekStart)
	default:
		// Unknown value; fall back to monday to avoid surprising layouts.
		c.WeekStart = def.WeekStart
	}

	// A zero-valued pair means the field was omitted.
	if c.DayStartHour == 0 && c.DayEndHour == 0 {
		c.DayStartHour, c.DayEndHour = def.DayStartHour, def.DayEndHour
	}
	if !(model.HourRange{Start: c.DayStartHour, End: c.DayEndHour}).Valid() {
		c.DayStartHour, c.DayEndHour = 0, 24
	}

	if c.SnapMinutes <= 0 {
		c.SnapMinutes = def.SnapMinutes
	}
	if c.DefaultDurationMinutes <= 0 {
		c.DefaultDurationMinutes = def.DefaultDurationMinutes
	}
	if c.MinDurationMinutes <= 0 {
		c.MinDurationMinutes = def.MinDurationMinutes
	}
	if c.DragThresholdPx <= 0 {
		c.DragThresholdPx = def.DragThresholdPx
	}
	if c.NowTick == "" {
		c.NowTick = def.NowTick
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.Database == "" {
		c.Database = def.Database
	}
	if c.LogEnv == "" {
		c.LogEnv = def.LogEnv
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.ICS == nil {
		c.ICS = []ICSConfig{}
	}
}

// Location loads Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", model.ErrInvalidTimeZone, c.Timezone, err)
	}
	return loc, nil
}

// Hours returns the visible hour range of the time grid.
func (c *Config) Hours() model.HourRange {
	return model.HourRange{Start: c.DayStartHour, End: c.DayEndHour}.Normalize()
}

// GestureOptions maps the drag-to-create settings onto gesture machine
// options.
func (c *Config) GestureOptions() []gesture.Option {
	return []gesture.Option{
		gesture.WithSnap(time.Duration(c.SnapMinutes) * time.Minute),
		gesture.WithDefaultDuration(time.Duration(c.DefaultDurationMinutes) * time.Minute),
		gesture.WithMinDuration(time.Duration(c.MinDurationMinutes) * time.Minute),
		gesture.WithDragThreshold(c.DragThresholdPx),
	}
}

// WeekStartDay maps WeekStart onto a weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "sunday" {
		return time.Sunday
	}
	return time.Monday
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
}

// Save writes the configuration atomically (temp file + rename) with 0600
// permissions, creating the parent directory (0700) if needed.
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

	tmp, err := os.CreateTemp(dir, ".teamcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
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
