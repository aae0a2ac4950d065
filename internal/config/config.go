package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const appDir = "eventcal"

// Default values for keys missing from the record.
const (
	DefaultRangeOffset = "+08:00"
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "json"
)

// LogConfig holds logging preferences.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the durable configuration record.
type Config struct {
	// StoragePath is the directory holding the storage file.
	StoragePath string `mapstructure:"storage_path" yaml:"storage_path"`

	// RangeOffset is the UTC offset date-only range bounds are resolved in.
	RangeOffset string `mapstructure:"range_offset" yaml:"range_offset"`

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/eventcal/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", appDir, "config.yaml")
}

// DefaultStoragePath returns the per-user data directory: $XDG_DATA_HOME
// when set, ~/.local/share on Linux, and the user config directory on
// other platforms.
func DefaultStoragePath() string {
	if dir := os.Getenv("XDG_DATA_HOME"); dir != "" {
		return filepath.Join(dir, appDir)
	}
	if runtime.GOOS == "linux" {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, ".local", "share", appDir)
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, appDir)
	}
	return filepath.Join(".", appDir)
}

// Default returns the record written on first run.
func Default() *Config {
	return &Config{
		StoragePath: DefaultStoragePath(),
		RangeOffset: DefaultRangeOffset,
		Log: LogConfig{
			Level:  DefaultLogLevel,
			Format: DefaultLogFormat,
		},
	}
}

// Store reads and writes the configuration record at a fixed path.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store for the record at path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the location of the record.
func (s *Store) Path() string {
	return s.path
}

// Read returns the configuration record. If none exists yet, a default
// record is written and returned.
func (s *Store) Read() (*Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); errors.Is(err, fs.ErrNotExist) {
		cfg := Default()
		if err := s.write(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(s.path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("range_offset", DefaultRangeOffset)
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config %s: %w", s.path, err)
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", s.path, err)
	}
	if strings.TrimSpace(cfg.StoragePath) == "" {
		cfg.StoragePath = DefaultStoragePath()
	}

	return cfg, nil
}

// Write persists cfg. The record is written to a temporary file in the same
// directory and renamed over the old one, so readers never observe a
// partial file.
func (s *Store) Write(cfg *Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(cfg)
}

func (s *Store) write(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	if strings.TrimSpace(cfg.StoragePath) == "" {
		return errors.New("config storage_path is empty")
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".eventcal-config-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp config: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp config: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing temp config: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp config: %w", err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("setting config permissions: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("writing config to %s: %w", s.path, err)
	}

	return nil
}
