package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported result store backends
const (
	StoreMemory = "memory"
	StoreSQLite = "sqlite"
)

// Config holds the service configuration
type Config struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
	DataDir string `yaml:"data_dir"`
	// Origins allowed by CORS, "*" for any
	AllowedOrigins []string `yaml:"allowed_origins"`

	Backend   BackendConfig   `yaml:"backend"`
	Store     StoreConfig     `yaml:"store"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BackendConfig selects how analysis requests reach the analysis engine.
// When Script is set the engine is run as a local process instead of
// being called over HTTP.
type BackendConfig struct {
	URL     string `yaml:"url"`
	Script  string `yaml:"script"`
	Timeout string `yaml:"timeout"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"` // memory, sqlite
	Path   string `yaml:"path"`
	TTL    string `yaml:"ttl"`
	// Maximum number of sessions the memory store keeps
	MaxEntries int `yaml:"max_entries"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             float64 `yaml:"burst"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the configuration used when nothing is set
func DefaultConfig() *Config {
	return &Config{
		Port:           "8082",
		GinMode:        "release",
		DataDir:        "data",
		AllowedOrigins: []string{"*"},
		Backend: BackendConfig{
			URL:     "http://localhost:8000",
			Timeout: "60s",
		},
		Store: StoreConfig{
			Driver:     StoreMemory,
			Path:       "data/results.db",
			TTL:        "24h",
			MaxEntries: 1000,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			Burst:             5,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadEnv loads .env.development, falling back to .env. Missing files are
// not an error; variables already set in the environment win.
func LoadEnv() error {
	if err := godotenv.Load(".env.development"); err == nil {
		return nil
	}
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

// Load builds the configuration from defaults, the optional YAML file at
// path, and environment overrides, in that order.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// defaults only
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("BACKEND_SERVICE_URL"); v != "" {
		c.Backend.URL = v
	}
	if v := os.Getenv("ANALYZER_SCRIPT"); v != "" {
		c.Backend.Script = v
	}
	if v := os.Getenv("BACKEND_TIMEOUT"); v != "" {
		c.Backend.Timeout = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Port = v
	}
	if v := os.Getenv("GIN_MODE"); v != "" {
		c.GinMode = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("RESULT_STORE"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("RESULT_STORE_PATH"); v != "" {
		c.Store.Path = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.AllowedOrigins = nil
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, origin)
			}
		}
	}

	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_RPS %q: %w", v, err)
		}
		c.RateLimit.RequestsPerSecond = rps
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		burst, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid RATE_LIMIT_BURST %q: %w", v, err)
		}
		c.RateLimit.Burst = burst
	}
	return nil
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("port must be set")
	}
	if c.Backend.URL == "" && c.Backend.Script == "" {
		return fmt.Errorf("either backend url or analyzer script must be set")
	}
	if _, err := parseDuration(c.Backend.Timeout); err != nil {
		return fmt.Errorf("invalid backend timeout: %w", err)
	}
	if _, err := parseDuration(c.Store.TTL); err != nil {
		return fmt.Errorf("invalid store ttl: %w", err)
	}
	switch c.Store.Driver {
	case StoreMemory:
	case StoreSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("sqlite store requires a path")
		}
	default:
		return fmt.Errorf("unknown result store %q", c.Store.Driver)
	}
	if c.RateLimit.RequestsPerSecond <= 0 || c.RateLimit.Burst < 1 {
		return fmt.Errorf("rate limit must allow at least one request")
	}
	return nil
}

// BackendTimeout is the deadline for a single analysis call
func (c *Config) BackendTimeout() time.Duration {
	d, _ := parseDuration(c.Backend.Timeout)
	return d
}

// StoreTTL is how long a stored analysis stays retrievable
func (c *Config) StoreTTL() time.Duration {
	d, _ := parseDuration(c.Store.TTL)
	return d
}

func parseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration must be positive, got %s", s)
	}
	return d, nil
}
