// Package schedule decides when the background runner performs a daily check.
package schedule

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/TheMichaelB/rosmirror/internal/events"
)

// ErrInvalidSchedule is returned by Update for unusable settings.
var ErrInvalidSchedule = errors.New("invalid schedule")

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Config is the persisted schedule.
type Config struct {
	Enabled       bool     `json:"enabled"`
	Paused        bool     `json:"paused"`
	Days          []string `json:"days"`           // mon..sun, empty means every day
	Time          string   `json:"time"`           // HH:MM in Timezone
	Timezone      string   `json:"timezone"`       // IANA name
	WindowMinutes int      `json:"window_minutes"` // how long after Time a run may start
	LastRun       string   `json:"last_run,omitempty"`
}

// DefaultConfig runs every day at 03:00 UTC.
func DefaultConfig() Config {
	return Config{
		Enabled:       true,
		Time:          "03:00",
		Timezone:      "UTC",
		WindowMinutes: 5,
	}
}

// Validate checks the configuration and normalizes day names.
func (c *Config) Validate() error {
	if _, err := time.Parse("15:04", c.Time); err != nil {
		return fmt.Errorf("%w: time %q must be HH:MM", ErrInvalidSchedule, c.Time)
	}
	if c.Timezone == "" {
		c.Timezone = "UTC"
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q", ErrInvalidSchedule, c.Timezone)
	}
	if c.WindowMinutes <= 0 || c.WindowMinutes > 24*60 {
		return fmt.Errorf("%w: window_minutes must be between 1 and 1440", ErrInvalidSchedule)
	}

	days := make([]string, 0, len(c.Days))
	for _, d := range c.Days {
		d = strings.ToLower(strings.TrimSpace(d))
		if len(d) > 3 {
			d = d[:3]
		}
		if _, ok := weekdays[d]; !ok {
			return fmt.Errorf("%w: day %q", ErrInvalidSchedule, d)
		}
		days = append(days, d)
	}
	c.Days = days
	return nil
}

// Schedule is the persisted, mutex-guarded schedule provider.
type Schedule struct {
	mu     sync.Mutex
	path   string
	cfg    Config
	logger *events.Logger
}

// Load reads the schedule file, falling back to defaults.
func Load(path string, logger *events.Logger) *Schedule {
	s := &Schedule{
		path:   path,
		cfg:    DefaultConfig(),
		logger: logger.WithField("component", "schedule"),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.WithError(err).Warn("Reading schedule failed, using defaults")
		}
		return s
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		s.logger.WithError(err).Warn("Schedule file is corrupt, using defaults")
		return s
	}
	if err := cfg.Validate(); err != nil {
		s.logger.WithError(err).Warn("Schedule file is invalid, using defaults")
		return s
	}
	s.cfg = cfg
	return s
}

// Config returns a copy of the current configuration.
func (s *Schedule) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg := s.cfg
	cfg.Days = append([]string(nil), s.cfg.Days...)
	return cfg
}

// ShouldRunNow reports true once per qualifying day while now is inside the window.
func (s *Schedule) ShouldRunNow(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.cfg.Enabled || s.cfg.Paused {
		return false
	}

	loc, err := time.LoadLocation(s.cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	local := now.In(loc)

	at, err := time.Parse("15:04", s.cfg.Time)
	if err != nil {
		return false
	}

	start, ok := s.openWindow(local, at, loc)
	if !ok {
		return false
	}

	// A window that crosses midnight belongs to the day it started on.
	day := start.Format("2006-01-02")
	if s.cfg.LastRun == day {
		return false
	}

	s.cfg.LastRun = day
	if err := s.persist(); err != nil {
		s.logger.WithError(err).Warn("Persisting last run failed")
	}
	return true
}

// openWindow returns the start of the window containing local. Windows that
// started yesterday are still open until they end.
func (s *Schedule) openWindow(local, at time.Time, loc *time.Location) (time.Time, bool) {
	window := time.Duration(s.cfg.WindowMinutes) * time.Minute
	for _, offset := range []int{0, -1} {
		day := local.AddDate(0, 0, offset)
		start := time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), 0, 0, loc)
		if local.Before(start) || !local.Before(start.Add(window)) {
			continue
		}
		if !s.dayAllowed(start.Weekday()) {
			continue
		}
		return start, true
	}
	return time.Time{}, false
}

// Pause suspends scheduled runs.
func (s *Schedule) Pause() error {
	return s.mutate(func(c *Config) { c.Paused = true })
}

// Resume re-enables scheduled runs.
func (s *Schedule) Resume() error {
	return s.mutate(func(c *Config) { c.Paused = false })
}

// Update replaces the schedule. LastRun is kept.
func (s *Schedule) Update(cfg Config) (Config, error) {
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cfg.LastRun = s.cfg.LastRun
	prev := s.cfg
	s.cfg = cfg
	if err := s.persist(); err != nil {
		s.cfg = prev
		return Config{}, err
	}

	s.logger.WithFields(map[string]interface{}{
		"time":     cfg.Time,
		"timezone": cfg.Timezone,
		"days":     strings.Join(cfg.Days, ","),
	}).Info("Schedule updated")
	return cfg, nil
}

// NextRun returns the next window start after now, or zero when disabled.
func (s *Schedule) NextRun(now time.Time) time.Time {
	cfg := s.Config()
	if !cfg.Enabled || cfg.Paused {
		return time.Time{}
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		loc = time.UTC
	}
	at, err := time.Parse("15:04", cfg.Time)
	if err != nil {
		return time.Time{}
	}

	local := now.In(loc)
	for i := 0; i <= 7; i++ {
		day := local.AddDate(0, 0, i)
		start := time.Date(day.Year(), day.Month(), day.Day(), at.Hour(), at.Minute(), 0, 0, loc)
		if !start.After(local) || !s.dayAllowedIn(cfg, start.Weekday()) {
			continue
		}
		return start
	}
	return time.Time{}
}

func (s *Schedule) mutate(fn func(*Config)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.cfg
	fn(&s.cfg)
	if err := s.persist(); err != nil {
		s.cfg = prev
		return err
	}
	s.logger.WithField("paused", s.cfg.Paused).Info("Schedule state changed")
	return nil
}

func (s *Schedule) dayAllowed(d time.Weekday) bool {
	return s.dayAllowedIn(s.cfg, d)
}

func (s *Schedule) dayAllowedIn(cfg Config, d time.Weekday) bool {
	if len(cfg.Days) == 0 {
		return true
	}
	for _, name := range cfg.Days {
		if weekdays[name] == d {
			return true
		}
	}
	return false
}

// persist writes the config; callers hold mu.
func (s *Schedule) persist() error {
	data, err := json.MarshalIndent(s.cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schedule: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("create schedule directory: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write schedule: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename schedule: %w", err)
	}
	return nil
}
