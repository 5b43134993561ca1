package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds every setting of the server and the CLI commands.
type Config struct {
	Addr        string  `mapstructure:"addr"`
	StoreDriver string  `mapstructure:"store_driver"`
	DatabaseURL string  `mapstructure:"database_url"`
	SQLitePath  string  `mapstructure:"sqlite_path"`
	JWTSecret   string  `mapstructure:"jwt_secret"`
	DeliveryFee float64 `mapstructure:"delivery_fee"`

	EventBuffer        int    `mapstructure:"event_buffer"`
	RedisAddr          string `mapstructure:"redis_addr"`
	RedisPassword      string `mapstructure:"redis_password"`
	RedisDB            int    `mapstructure:"redis_db"`
	RedisChannelPrefix string `mapstructure:"redis_channel_prefix"`
	KafkaBrokers       string `mapstructure:"kafka_brokers"`
	KafkaTopicPrefix   string `mapstructure:"kafka_topic_prefix"`

	ForecastMode             string        `mapstructure:"forecast_mode"`
	ForecastCommand          string        `mapstructure:"forecast_command"`
	ForecastArgs             []string      `mapstructure:"forecast_args"`
	ForecastTimeout          time.Duration `mapstructure:"forecast_timeout"`
	ForecastMinPoints        int           `mapstructure:"forecast_min_points"`
	ForecastHorizon          int           `mapstructure:"forecast_horizon"`
	ForecastMaxHorizon       int           `mapstructure:"forecast_max_horizon"`
	ForecastCacheTTL         time.Duration `mapstructure:"forecast_cache_ttl"`
	ForecastMaxConcurrent    int           `mapstructure:"forecast_max_concurrent"`
	ForecastBreakerThreshold int           `mapstructure:"forecast_breaker_threshold"`
	ForecastBreakerReset     time.Duration `mapstructure:"forecast_breaker_reset"`

	AnalyticsMaxRangeDays     int           `mapstructure:"analytics_max_range_days"`
	AnalyticsDefaultRangeDays int           `mapstructure:"analytics_default_range_days"`
	RefreshMinInterval        time.Duration `mapstructure:"refresh_min_interval"`
	PollInterval              time.Duration `mapstructure:"poll_interval"`

	ArchiveS3Bucket string `mapstructure:"archive_s3_bucket"`
	ArchiveS3Prefix string `mapstructure:"archive_s3_prefix"`
	AWSRegion       string `mapstructure:"aws_region"`
}

// AppConfig holds the settings the auth middleware reads process-wide.
var AppConfig Config

var defaults = map[string]any{
	"addr":                         ":3000",
	"store_driver":                 "postgres",
	"database_url":                 "",
	"sqlite_path":                  "orderdesk.db",
	"jwt_secret":                   "",
	"delivery_fee":                 2.0,
	"event_buffer":                 64,
	"redis_addr":                   "",
	"redis_password":               "",
	"redis_db":                     0,
	"redis_channel_prefix":         "orderdesk:",
	"kafka_brokers":                "",
	"kafka_topic_prefix":           "orderdesk.",
	"forecast_mode":                "process",
	"forecast_command":             "",
	"forecast_args":                []string{},
	"forecast_timeout":             10 * time.Second,
	"forecast_min_points":          7,
	"forecast_horizon":             7,
	"forecast_max_horizon":         90,
	"forecast_cache_ttl":           30 * time.Second,
	"forecast_max_concurrent":      4,
	"forecast_breaker_threshold":   5,
	"forecast_breaker_reset":       30 * time.Second,
	"analytics_max_range_days":     365,
	"analytics_default_range_days": 90,
	"refresh_min_interval":         2 * time.Second,
	"poll_interval":                30 * time.Second,
	"archive_s3_bucket":            "",
	"archive_s3_prefix":            "orderdesk",
	"aws_region":                   "us-east-1",
}

// Default returns the configuration with every default applied.
func Default() *Config {
	cfg, err := decode(newViper())
	if err != nil {
		panic(err)
	}
	return cfg
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

// Load reads .env (if present), then the optional config file, then the
// environment. Later sources win.
func Load(cfgFile string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("[CONFIG] .env not loaded: %v", err)
	}

	v := newViper()
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Printf("[CONFIG] using config file %s", v.ConfigFileUsed())
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	opt := viper.DecoderConfigOption(func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	})
	if err := v.Unmarshal(&cfg, opt); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %w", err)
	}
	return &cfg, nil
}

// Validate checks settings that do not depend on the command being run.
func (c *Config) Validate() error {
	switch c.StoreDriver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("store_driver must be postgres, sqlite or memory, got %q", c.StoreDriver)
	}
	switch c.ForecastMode {
	case "process", "inprocess":
	default:
		return fmt.Errorf("forecast_mode must be process or inprocess, got %q", c.ForecastMode)
	}
	if c.DeliveryFee < 0 {
		return errors.New("delivery_fee must not be negative")
	}
	if c.ForecastMinPoints < 2 {
		return errors.New("forecast_min_points must be at least 2")
	}
	if c.ForecastTimeout <= 0 {
		return errors.New("forecast_timeout must be positive")
	}
	return nil
}

// ServeReady reports what the HTTP server additionally needs.
func (c *Config) ServeReady() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return errors.New("JWT_SECRET is not set")
	}
	if c.StoreDriver == "postgres" && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}
	return nil
}
