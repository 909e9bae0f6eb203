package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"PriceTracker/utils"
)

// ScraperConfig holds the scrape cycle settings.
type ScraperConfig struct {
	ScrapeInterval time.Duration `yaml:"scrape_interval"`
	PageTimeout    time.Duration `yaml:"page_timeout"`
	MaxRetries     int           `yaml:"max_retries"`
	RetryDelay     time.Duration `yaml:"retry_delay"`
	// Workers is either a positive number or "auto".
	Workers        string        `yaml:"max_concurrent"`
	MaxConcurrent  int           `yaml:"-"`
	CycleDelay     time.Duration `yaml:"cycle_delay"`
	ErrorBackoff   time.Duration `yaml:"error_backoff"`
	SellerCacheTTL time.Duration `yaml:"seller_cache_ttl"`
}

// BrowserConfig holds headless browser settings.
type BrowserConfig struct {
	Headless        bool          `yaml:"headless"`
	Bin             string        `yaml:"bin"`
	ContextLifetime time.Duration `yaml:"context_lifetime"`
}

// DatabaseConfig selects the price store.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// RedisConfig configures price-change events. An empty Addr disables them.
type RedisConfig struct {
	Addr   string `yaml:"addr"`
	DB     int    `yaml:"db"`
	Stream string `yaml:"stream"`
	MaxLen int64  `yaml:"max_len"`
}

// Config is the complete structure for the config.yml file.
type Config struct {
	Scraper  ScraperConfig  `yaml:"scraper"`
	Browser  BrowserConfig  `yaml:"browser"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Metrics  struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	cfg := &Config{
		Scraper: ScraperConfig{
			ScrapeInterval: 600000 * time.Millisecond,
			PageTimeout:    60000 * time.Millisecond,
			MaxRetries:     3,
			RetryDelay:     5000 * time.Millisecond,
			Workers:        "5",
			CycleDelay:     1000 * time.Millisecond,
			ErrorBackoff:   5000 * time.Millisecond,
			SellerCacheTTL: 5 * time.Minute,
		},
		Browser: BrowserConfig{
			Headless:        true,
			ContextLifetime: 7200000 * time.Millisecond,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "prices.db",
		},
		Redis: RedisConfig{
			Stream: "price-changes",
			MaxLen: 10000,
		},
	}
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	return cfg
}

// Load builds the configuration: defaults, then the optional YAML file at
// path, then a .env file if present, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("unmarshal config YAML: %w", err)
			}
		}
	}

	// A missing .env is normal outside development.
	_ = godotenv.Load()

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.Scraper.MaxConcurrent = utils.OptimalWorkerCount(cfg.Scraper.Workers, 5)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	var errs []error
	durMs := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = time.Duration(ms) * time.Millisecond
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	durMs("SCRAPE_INTERVAL_MS", &c.Scraper.ScrapeInterval)
	durMs("PAGE_TIMEOUT_MS", &c.Scraper.PageTimeout)
	integer("MAX_RETRIES", &c.Scraper.MaxRetries)
	durMs("RETRY_DELAY_MS", &c.Scraper.RetryDelay)
	str("MAX_CONCURRENT_SCRAPES", &c.Scraper.Workers)
	durMs("CYCLE_DELAY_MS", &c.Scraper.CycleDelay)
	durMs("ERROR_BACKOFF_MS", &c.Scraper.ErrorBackoff)
	durMs("SELLER_CACHE_TTL_MS", &c.Scraper.SellerCacheTTL)
	durMs("CONTEXT_LIFETIME_MS", &c.Browser.ContextLifetime)
	str("BROWSER_BIN", &c.Browser.Bin)
	str("DB_DRIVER", &c.Database.Driver)
	str("DB_DSN", &c.Database.DSN)
	str("REDIS_ADDR", &c.Redis.Addr)
	integer("REDIS_DB", &c.Redis.DB)
	str("REDIS_STREAM", &c.Redis.Stream)
	str("METRICS_ADDR", &c.Metrics.Addr)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("BROWSER_HEADLESS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("BROWSER_HEADLESS: %w", err))
		} else {
			c.Browser.Headless = b
		}
	}
	if v, ok := lookup("REDIS_STREAM_MAX_LEN"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("REDIS_STREAM_MAX_LEN: %w", err))
		} else {
			c.Redis.MaxLen = n
		}
	}

	return errors.Join(errs...)
}

// Validate rejects settings the scraper cannot run with.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, d time.Duration) {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, d))
		}
	}
	positive("scrape interval", c.Scraper.ScrapeInterval)
	positive("page timeout", c.Scraper.PageTimeout)
	positive("cycle delay", c.Scraper.CycleDelay)
	positive("error backoff", c.Scraper.ErrorBackoff)
	positive("context lifetime", c.Browser.ContextLifetime)
	if c.Scraper.RetryDelay < 0 {
		errs = append(errs, fmt.Errorf("retry delay must not be negative, got %s", c.Scraper.RetryDelay))
	}
	if c.Scraper.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("max retries must not be negative, got %d", c.Scraper.MaxRetries))
	}
	if c.Scraper.MaxConcurrent < 1 {
		errs = append(errs, fmt.Errorf("max concurrent scrapes must be at least 1, got %d", c.Scraper.MaxConcurrent))
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, fmt.Errorf("unknown database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database dsn is required"))
	}
	return errors.Join(errs...)
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}
