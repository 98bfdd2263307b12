package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds the defaults the smallbin command applies when a flag
// does not override them.
type Config struct {
	DatabasePath string      `toml:"database_path"`
	Checksum     string      `toml:"checksum"`
	Compression  bool        `toml:"compression"`
	AutoSave     bool        `toml:"auto_save"`
	Cache        CacheConfig `toml:"cache"`
	Log          LogConfig   `toml:"log"`
}

// CacheConfig tunes the plaintext read cache.
type CacheConfig struct {
	Disabled bool   `toml:"disabled"`
	MaxBytes int64  `toml:"max_bytes"`
	TTL      string `toml:"ttl"` // Go duration string, e.g. "5m"
}

// LogConfig selects how chatty the command is.
type LogConfig struct {
	Verbose bool `toml:"verbose"`
}

// NewConfig creates a Config with the documented defaults for the
// given database path.
func NewConfig(databasePath string) *Config {
	return &Config{
		DatabasePath: databasePath,
		Checksum:     "sha256",
		Compression:  true,
		Cache: CacheConfig{
			MaxBytes: 32 * 1024 * 1024,
			TTL:      "5m",
		},
	}
}

// CacheTTL parses the configured cache TTL. An empty string means the
// library default.
func (c *Config) CacheTTL() (time.Duration, error) {
	if c.Cache.TTL == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Cache.TTL)
	if err != nil {
		return 0, fmt.Errorf("invalid cache ttl %q: %w", c.Cache.TTL, err)
	}
	return d, nil
}

// DefaultPath returns the per-user location of the config file.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locating config directory: %w", err)
	}
	return filepath.Join(dir, "smallbin", "config.toml"), nil
}

// DefaultDatabasePath returns the per-user location of the database
// file.
func DefaultDatabasePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locating home directory: %w", err)
	}
	return filepath.Join(home, ".smallbin", "files.sdb"), nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to the specified file path.
func writeToFile(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the
// provided Config. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
