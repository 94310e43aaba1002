package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. ROSMIRROR_LOG_LEVEL.
const EnvPrefix = "ROSMIRROR"

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envFile    string
	v          *viper.Viper
}

// NewLoader creates a config loader. An empty path searches the default locations.
func NewLoader(configPath string) *Loader {
	return &Loader{
		configPath: configPath,
		envFile:    ".env",
		v:          viper.New(),
	}
}

// SetEnvFile overrides the dotenv file read before environment overrides.
func (l *Loader) SetEnvFile(path string) {
	l.envFile = path
}

// ConfigFile returns the file that was loaded, if any.
func (l *Loader) ConfigFile() string {
	return l.v.ConfigFileUsed()
}

// Load reads configuration from defaults, file, .env and environment.
func (l *Loader) Load() (*Config, error) {
	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load env file: %w", err)
		}
	}

	l.setDefaults(DefaultConfig())

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()

	if l.configPath != "" {
		l.v.SetConfigFile(l.configPath)
		if err := l.v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	} else {
		l.v.SetConfigName("rosmirror")
		for _, dir := range l.defaultPaths() {
			l.v.AddConfigPath(dir)
		}
		if err := l.v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("load config file %s: %w", l.v.ConfigFileUsed(), err)
			}
		}
	}

	cfg := &Config{}
	if err := l.v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)
	cfg.Upstream.BaseURL = strings.TrimRight(cfg.Upstream.BaseURL, "/")

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// defaultPaths returns default config directories.
func (l *Loader) defaultPaths() []string {
	paths := []string{"."}

	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "rosmirror"))
	}

	return append(paths, "/etc/rosmirror")
}

// setDefaults registers every key so AutomaticEnv can override it.
func (l *Loader) setDefaults(cfg *Config) {
	defaults := map[string]interface{}{
		"upstream.base_url":       cfg.Upstream.BaseURL,
		"upstream.probe_url":      cfg.Upstream.ProbeURL,
		"upstream.v6_pointer":     cfg.Upstream.V6Pointer,
		"upstream.v7_pointer":     cfg.Upstream.V7Pointer,
		"upstream.timeout":        cfg.Upstream.Timeout,
		"upstream.probe_timeout":  cfg.Upstream.ProbeTimeout,
		"upstream.user_agent":     cfg.Upstream.UserAgent,
		"storage.data_dir":        cfg.Storage.DataDir,
		"storage.history_backend": cfg.Storage.HistoryBackend,
		"sync.fixed_v7_version":   cfg.Sync.FixedV7Version,
		"sync.keep_versions":      cfg.Sync.KeepVersions,
		"sync.poll_interval":      cfg.Sync.PollInterval,
		"sync.check_timeout":      cfg.Sync.CheckTimeout,
		"sync.run_on_start":       cfg.Sync.RunOnStart,
		"server.listen":           cfg.Server.Listen,
		"server.mount_path":       cfg.Server.MountPath,
		"server.enable_metrics":   cfg.Server.EnableMetrics,
		"log.level":               cfg.Log.Level,
		"log.format":              cfg.Log.Format,
		"log.file":                cfg.Log.File,
		"log.buffer_lines":        cfg.Log.BufferLines,
	}

	for key, value := range defaults {
		l.v.SetDefault(key, value)
	}
}

// SaveExample writes an example config file.
func SaveExample(path string) error {
	v := viper.New()
	l := &Loader{v: v}
	l.setDefaults(DefaultConfig())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write file: %w", err)
	}

	return nil
}
