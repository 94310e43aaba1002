package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Vendor upgrade server
	Upstream UpstreamConfig `json:"upstream" mapstructure:"upstream"`

	// On-disk layout
	Storage StorageConfig `json:"storage" mapstructure:"storage"`

	// Check behavior
	Sync SyncConfig `json:"sync" mapstructure:"sync"`

	// Admin and device-facing HTTP server
	Server ServerConfig `json:"server" mapstructure:"server"`

	// Logging
	Log LogConfig `json:"log" mapstructure:"log"`
}

// UpstreamConfig for vendor server communication.
type UpstreamConfig struct {
	BaseURL      string        `json:"base_url" mapstructure:"base_url"`
	ProbeURL     string        `json:"probe_url" mapstructure:"probe_url"`
	V6Pointer    string        `json:"v6_pointer" mapstructure:"v6_pointer"`
	V7Pointer    string        `json:"v7_pointer" mapstructure:"v7_pointer"`
	Timeout      time.Duration `json:"timeout" mapstructure:"timeout"`
	ProbeTimeout time.Duration `json:"probe_timeout" mapstructure:"probe_timeout"`
	UserAgent    string        `json:"user_agent" mapstructure:"user_agent"`
}

// PointerURL returns the absolute URL of a pointer file.
func (u UpstreamConfig) PointerURL(name string) string {
	return u.BaseURL + "/" + name
}

// FileURL returns the absolute URL of a file inside a version directory.
func (u UpstreamConfig) FileURL(version, name string) string {
	return u.BaseURL + "/" + version + "/" + name
}

// StorageConfig for local file paths.
type StorageConfig struct {
	DataDir        string `json:"data_dir" mapstructure:"data_dir"`               // Holds settings files and the mirror root
	HistoryBackend string `json:"history_backend" mapstructure:"history_backend"` // json or sqlite
}

// MirrorRoot is the directory served to devices.
func (s StorageConfig) MirrorRoot() string {
	return filepath.Join(s.DataDir, "routeros")
}

// ArchesFile is the allowed architectures list.
func (s StorageConfig) ArchesFile() string {
	return filepath.Join(s.DataDir, "allowed_arches.json")
}

// DeletePrefixesFile lists bundle entries to strip.
func (s StorageConfig) DeletePrefixesFile() string {
	return filepath.Join(s.DataDir, "delete_prefixes.json")
}

// ScheduleFile stores the schedule configuration.
func (s StorageConfig) ScheduleFile() string {
	return filepath.Join(s.DataDir, "schedule.json")
}

// SyncConfig for check behavior.
type SyncConfig struct {
	FixedV7Version string        `json:"fixed_v7_version" mapstructure:"fixed_v7_version"`
	KeepVersions   int           `json:"keep_versions" mapstructure:"keep_versions"`
	PollInterval   time.Duration `json:"poll_interval" mapstructure:"poll_interval"`
	CheckTimeout   time.Duration `json:"check_timeout" mapstructure:"check_timeout"`
	RunOnStart     bool          `json:"run_on_start" mapstructure:"run_on_start"`
}

// ServerConfig for the HTTP layer.
type ServerConfig struct {
	Listen        string `json:"listen" mapstructure:"listen"`
	MountPath     string `json:"mount_path" mapstructure:"mount_path"`
	EnableMetrics bool   `json:"enable_metrics" mapstructure:"enable_metrics"`
}

// LogConfig for logging behavior.
type LogConfig struct {
	Level       string `json:"level" mapstructure:"level"`               // debug, info, warn, error
	Format      string `json:"format" mapstructure:"format"`             // text, json
	File        string `json:"file" mapstructure:"file"`                 // Log file path (empty = stdout)
	BufferLines int    `json:"buffer_lines" mapstructure:"buffer_lines"` // Lines kept for the log viewer
}

// DefaultConfig returns config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Upstream: UpstreamConfig{
			BaseURL:      "https://upgrade.mikrotik.com/routeros",
			ProbeURL:     "https://upgrade.mikrotik.com/routeros/NEWESTa7.stable",
			V6Pointer:    "NEWEST6.stable",
			V7Pointer:    "NEWESTa7.stable",
			Timeout:      10 * time.Minute,
			ProbeTimeout: 5 * time.Second,
			UserAgent:    "rosmirror/1.0",
		},
		Storage: StorageConfig{
			DataDir:        "data",
			HistoryBackend: "json",
		},
		Sync: SyncConfig{
			FixedV7Version: "7.12.1",
			KeepVersions:   3,
			PollInterval:   time.Minute,
			CheckTimeout:   30 * time.Minute,
			RunOnStart:     false,
		},
		Server: ServerConfig{
			Listen:        ":8080",
			MountPath:     "/routeros",
			EnableMetrics: true,
		},
		Log: LogConfig{
			Level:       "info",
			Format:      "text",
			BufferLines: 1000,
		},
	}
}

// Validate checks configuration validity.
func (c *Config) Validate() error {
	if c.Upstream.BaseURL == "" {
		return errors.New("upstream.base_url is required")
	}

	if c.Upstream.Timeout <= 0 {
		return errors.New("upstream.timeout must be positive")
	}

	if c.Upstream.ProbeTimeout <= 0 {
		return errors.New("upstream.probe_timeout must be positive")
	}

	if c.Storage.DataDir == "" {
		return errors.New("storage.data_dir is required")
	}

	if c.Storage.HistoryBackend != "json" && c.Storage.HistoryBackend != "sqlite" {
		return fmt.Errorf("invalid history backend: %s", c.Storage.HistoryBackend)
	}

	if c.Sync.FixedV7Version == "" {
		return errors.New("sync.fixed_v7_version is required")
	}

	if c.Sync.KeepVersions < 0 {
		return errors.New("sync.keep_versions cannot be negative")
	}

	if c.Sync.PollInterval <= 0 {
		return errors.New("sync.poll_interval must be positive")
	}

	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("invalid log level: %s", c.Log.Level)
	}

	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// EnsureDirectories creates required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Storage.DataDir,
		c.Storage.MirrorRoot(),
	}

	if c.Log.File != "" {
		dirs = append(dirs, filepath.Dir(c.Log.File))
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}
