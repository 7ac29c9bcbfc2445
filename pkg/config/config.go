package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Provider describes one market data source endpoint.
type Provider struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url"`
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	Addr          string        `yaml:"addr"`
	Password      string        `yaml:"password"`
	DB            int           `yaml:"db"`
	Timeout       time.Duration `yaml:"timeout"`
	RetryAttempts int           `yaml:"retry_attempts"`
	StreamQuotes  bool          `yaml:"stream_quotes"`
}

type Config struct {
	Environment string `yaml:"environment"`
	Server      struct {
		Port            int           `yaml:"port"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
		Output string `yaml:"output"`
	} `yaml:"logging"`
	MarketData struct {
		Providers        map[string]Provider `yaml:"providers"`
		Order            []string            `yaml:"order"`
		Symbols          []string            `yaml:"symbols"`
		QuoteTTL         time.Duration       `yaml:"quote_ttl"`
		BarsTTL          time.Duration       `yaml:"bars_ttl"`
		VixTTL           time.Duration       `yaml:"vix_ttl"`
		DemotionCooldown time.Duration       `yaml:"demotion_cooldown"`
		BarCount         int                 `yaml:"bar_count"`
		BarInterval      string              `yaml:"bar_interval"`
	} `yaml:"marketdata"`
	Prediction struct {
		MinWinProbability float64       `yaml:"min_win_probability"`
		CacheTTL          time.Duration `yaml:"cache_ttl"`
		CacheMaxEntries   int           `yaml:"cache_max_entries"`
		BatchBudget       time.Duration `yaml:"batch_budget"`
		SkipOnError       *bool         `yaml:"skip_on_error"`
		RateLimitPerSec   float64       `yaml:"rate_limit_per_sec"`
		RateLimitBurst    float64       `yaml:"rate_limit_burst"`
	} `yaml:"prediction"`
	Models struct {
		Dir         string `yaml:"dir"`
		SchemaPath  string `yaml:"schema_path"`
		DefaultName string `yaml:"default_name"`
	} `yaml:"models"`
	Journal struct {
		Enabled      bool          `yaml:"enabled"`
		Host         string        `yaml:"host"`
		Port         int           `yaml:"port"`
		Database     string        `yaml:"database"`
		Table        string        `yaml:"table"`
		User         string        `yaml:"user"`
		Password     string        `yaml:"password"`
		UseHTTP      bool          `yaml:"use_http"`
		AsyncInsert  bool          `yaml:"async_insert"`
		WaitForAsync bool          `yaml:"wait_for_async_insert"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"journal"`
	Events struct {
		Enabled      bool          `yaml:"enabled"`
		Brokers      []string      `yaml:"brokers"`
		Topic        string        `yaml:"topic"`
		Compression  string        `yaml:"compression"`
		RequiredAcks int           `yaml:"required_acks"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		Async        bool          `yaml:"async"`
	} `yaml:"events"`
}

// Load reads and parses a YAML configuration file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &c, nil
}

// LoadWithEnv loads config from YAML and overrides with environment variables.
func LoadWithEnv(path string) (*Config, error) {
	c, err := Load(path)
	if err != nil {
		return nil, err
	}

	if v := os.Getenv("SYMBOLS"); v != "" {
		c.MarketData.Symbols = strings.Split(v, ",")
	}
	if v := os.Getenv("MODELS_DIR"); v != "" {
		c.Models.Dir = v
	}
	if v := os.Getenv("FEATURE_SCHEMA"); v != "" {
		c.Models.SchemaPath = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		c.Events.Brokers = strings.Split(v, ",")
	}

	return c, nil
}

func (c *Config) applyDefaults() {
	if c.MarketData.QuoteTTL <= 0 {
		c.MarketData.QuoteTTL = 30 * time.Second
	}
	if c.MarketData.BarsTTL <= 0 {
		c.MarketData.BarsTTL = 5 * time.Minute
	}
	if c.MarketData.VixTTL <= 0 {
		c.MarketData.VixTTL = 30 * time.Second
	}
	if c.MarketData.DemotionCooldown <= 0 {
		c.MarketData.DemotionCooldown = 5 * time.Minute
	}
	if c.MarketData.BarCount <= 0 {
		c.MarketData.BarCount = 50
	}
	if c.MarketData.BarInterval == "" {
		c.MarketData.BarInterval = "5m"
	}
	if c.Prediction.MinWinProbability <= 0 {
		c.Prediction.MinWinProbability = 0.55
	}
	if c.Prediction.CacheTTL <= 0 {
		c.Prediction.CacheTTL = 300 * time.Second
	}
	if c.Prediction.CacheMaxEntries <= 0 {
		c.Prediction.CacheMaxEntries = 2048
	}
	if c.Prediction.BatchBudget <= 0 {
		c.Prediction.BatchBudget = 10 * time.Second
	}
	if c.Prediction.SkipOnError == nil {
		v := true
		c.Prediction.SkipOnError = &v
	}
	if c.Models.DefaultName == "" {
		c.Models.DefaultName = "default"
	}
	if c.Journal.Table == "" {
		c.Journal.Table = "predictions"
	}
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Environment == "" {
		return fmt.Errorf("environment is required")
	}
	if c.Models.SchemaPath == "" {
		return fmt.Errorf("models.schema_path is required")
	}
	if c.Models.Dir == "" {
		return fmt.Errorf("models.dir is required")
	}
	if len(c.MarketData.Symbols) == 0 {
		return fmt.Errorf("marketdata.symbols cannot be empty")
	}
	for _, name := range c.MarketData.Order {
		p, ok := c.MarketData.Providers[name]
		if !ok {
			return fmt.Errorf("marketdata.order references unknown provider '%s'", name)
		}
		switch name {
		case "companion":
			if p.Enabled && p.BaseURL == "" {
				return fmt.Errorf("provider companion requires base_url")
			}
		case "ibkr":
			if p.Enabled && p.BaseURL == "" && p.Host == "" {
				return fmt.Errorf("provider ibkr requires base_url or host")
			}
		case "redis":
			if p.Enabled && p.Addr == "" {
				return fmt.Errorf("provider redis requires addr")
			}
		case "mock":
			// always valid
		default:
			return fmt.Errorf("unknown provider '%s'", name)
		}
	}
	if c.Events.Enabled && len(c.Events.Brokers) == 0 {
		return fmt.Errorf("events.brokers cannot be empty when events are enabled")
	}
	if c.Journal.Enabled && c.Journal.Host == "" {
		return fmt.Errorf("journal.host is required when journal is enabled")
	}
	return nil
}
