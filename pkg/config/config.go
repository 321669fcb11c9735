package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Backend  BackendConfig  `yaml:"backend"`
	Auth     AuthConfig     `yaml:"auth"`
	Poller   PollerConfig   `yaml:"poller"`
	Playback PlaybackConfig `yaml:"playback"`
	Request  RequestConfig  `yaml:"request"`
	Log      LogConfig      `yaml:"log"`
	DB       DBConfig       `yaml:"db"`
}

// ServerConfig holds local HTTP server settings.
type ServerConfig struct {
	Address string `yaml:"address"`
}

// BackendConfig holds settings for the remote generation backend.
type BackendConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// AuthConfig holds authentication settings.
type AuthConfig struct {
	// Token is a pre-issued bearer token. Usually left empty and provided
	// via the PODCASTLE_TOKEN environment variable or a stored session.
	Token string `yaml:"token"`
}

// PollerConfig holds job polling settings.
type PollerConfig struct {
	Interval  Duration `yaml:"interval"`   // tick interval for status polls
	MarkerTTL Duration `yaml:"marker_ttl"` // lifetime of "just completed" markers
}

// PlaybackConfig holds playback session settings.
type PlaybackConfig struct {
	Volume int `yaml:"volume"` // initial volume, 0-100
}

// RequestConfig holds HTTP request settings.
type RequestConfig struct {
	Retries int           `yaml:"retries"`
	Timeout Duration      `yaml:"timeout"`
	Backoff BackoffConfig `yaml:"backoff"`
}

// BackoffConfig holds exponential backoff settings.
type BackoffConfig struct {
	BaseDelay Duration `yaml:"base_delay"`
	MaxDelay  Duration `yaml:"max_delay"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Server   LogSettings `yaml:"server"`
	Requests LogSettings `yaml:"requests"`
}

// LogSettings holds settings for a specific logger.
type LogSettings struct {
	Path  string `yaml:"path"`
	Level string `yaml:"level"`
}

// DBConfig holds database settings.
type DBConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "localhost:1930",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:8000/api/v1",
			Timeout: Duration(30 * time.Second),
		},
		Auth: AuthConfig{
			Token: "",
		},
		Poller: PollerConfig{
			Interval:  Duration(5 * time.Second),
			MarkerTTL: Duration(10 * time.Second),
		},
		Playback: PlaybackConfig{
			Volume: 80,
		},
		Request: RequestConfig{
			Retries: 3,
			Timeout: Duration(30 * time.Second),
			Backoff: BackoffConfig{
				BaseDelay: Duration(500 * time.Millisecond),
				MaxDelay:  Duration(30 * time.Second),
			},
		},
		Log: LogConfig{
			Server: LogSettings{
				Path:  "./logs/server.log",
				Level: "INFO",
			},
			Requests: LogSettings{
				Path:  "./logs/requests.log",
				Level: "INFO",
			},
		},
		DB: DBConfig{
			Path: "./data/podcastle.db",
		},
	}
}

// Load loads the configuration from the given path.
// If the file does not exist, it creates it with default values.
// If the file exists, it merges defaults with existing values but does NOT
// save back to disk (to preserve user formatting and comments).
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create config directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}

		// Env fallbacks for secrets; never written back to disk.
		if cfg.Auth.Token == "" {
			if tok := os.Getenv("PODCASTLE_TOKEN"); tok != "" {
				cfg.Auth.Token = tok
			}
		}
		if base := os.Getenv("PODCASTLE_BACKEND_URL"); base != "" {
			cfg.Backend.BaseURL = base
		}

		return cfg, nil
	}

	// If file does not exist, save defaults.
	if err := Save(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to save config file: %w", err)
	}

	if tok := os.Getenv("PODCASTLE_TOKEN"); tok != "" {
		cfg.Auth.Token = tok
	}

	return cfg, nil
}

// Save writes the configuration to the path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Podcastle Configuration
# ----------------------
# Supported Duration units: ns, us (or µs), ms, s, m, h, d (day), w (week)

`)
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// GenerateDefault creates a default config file at the given path.
// Returns nil if the file already exists.
func GenerateDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return nil // File exists, do nothing
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	return Save(path, DefaultConfig())
}
