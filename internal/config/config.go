package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr        string
	StoreDriver     string
	StoreDSN        string
	PublicDir       string
	StaticCacheTTL  time.Duration
	RedisURL        string
	EventsChannel   string
	ShutdownTimeout time.Duration
	Tracing         bool
	Debug           bool
	LogFormat       string
}

func Default() Config {
	return Config{
		HTTPAddr:        ":3000",
		StoreDriver:     "sqlite3",
		StoreDSN:        "data/tasks.db",
		PublicDir:       "public",
		EventsChannel:   "task-events",
		ShutdownTimeout: 10 * time.Second,
		LogFormat:       "text",
	}
}

// Load reads the configuration from the environment on top of Default.
func Load() (Config, error) {
	cfg := Default()

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid PORT %q", v)
		}
		cfg.HTTPAddr = ":" + v
	}
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTPAddr = v
	}
	if v := os.Getenv("STORE_DRIVER"); v != "" {
		cfg.StoreDriver = strings.ToLower(v)
	}
	if v := os.Getenv("STORE_DSN"); v != "" {
		cfg.StoreDSN = v
	}
	if v := os.Getenv("PUBLIC_DIR"); v != "" {
		cfg.PublicDir = v
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		cfg.RedisURL = v
	}
	if v := os.Getenv("EVENTS_CHANNEL"); v != "" {
		cfg.EventsChannel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.LogFormat = strings.ToLower(v)
	}

	var err error
	if cfg.StaticCacheTTL, err = envDuration("STATIC_CACHE_TTL", cfg.StaticCacheTTL); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Tracing, err = envBool("TRACING", cfg.Tracing); err != nil {
		return Config{}, err
	}
	if cfg.Debug, err = envBool("DEBUG", cfg.Debug); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.StoreDriver {
	case "sqlite3", "mysql":
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want sqlite3 or mysql", c.StoreDriver)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid LOG_FORMAT %q: want text or json", c.LogFormat)
	}
	if c.StoreDSN == "" {
		return fmt.Errorf("STORE_DSN must not be empty")
	}
	if c.StaticCacheTTL < 0 {
		return fmt.Errorf("STATIC_CACHE_TTL must not be negative")
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be greater than zero")
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
