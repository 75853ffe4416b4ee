package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"
)

const (
	Version             = "0.1.0"
	DefaultTimeout      = 6 * time.Second
	DefaultMaxRedirects = 10
)

// Config holds the httpc defaults stored in ~/.config/httpc/config.json
type Config struct {
	Version         string    `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UserAgent       string    `json:"user_agent,omitempty"`
	Timeout         Duration  `json:"timeout"`
	MaxRedirects    int       `json:"max_redirects"`
	FollowRedirects *bool     `json:"follow_redirects,omitempty"`
	Proxy           string    `json:"proxy,omitempty"`
	TLSVersion      string    `json:"tls_version,omitempty"`
	HTTPVersion     string    `json:"http_version,omitempty"`
}

// Duration is a time.Duration stored as a Go duration string ("6s", "1m30s").
type Duration time.Duration

func (d Duration) String() string {
	return time.Duration(d).String()
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// DefaultConfig returns a new Config with default values
func DefaultConfig(version string) *Config {
	follow := true
	return &Config{
		Version:         version,
		CreatedAt:       time.Now().UTC(),
		Timeout:         Duration(DefaultTimeout),
		MaxRedirects:    DefaultMaxRedirects,
		FollowRedirects: &follow,
	}
}

// DefaultPath returns the config location under the user config directory.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "httpc", "config.json"), nil
}

// Load reads and parses config from the given path.
// If the file doesn't exist, returns os.ErrNotExist.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	return &cfg, nil
}

// LoadOrDefault loads path, falling back to defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(Version), nil
	}
	return cfg, err
}

// Save writes the config to the given path atomically.
func (c *Config) Save(path string) error {
	if c == nil {
		return errors.New("config is nil")
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	// Write atomically by writing to temp file then renaming
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return err
	}

	return os.Rename(tmpPath, path)
}

// Follow reports whether redirects are followed by default.
func (c *Config) Follow() bool {
	return c.FollowRedirects == nil || *c.FollowRedirects
}

// applyDefaults fills in zero values with defaults
func (c *Config) applyDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = Duration(DefaultTimeout)
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = DefaultMaxRedirects
	}
}
