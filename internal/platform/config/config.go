// Package config loads service configuration from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/spf13/viper"

	liststr "onboarding/pkg/platform/strings"
)

// Config is the full service configuration.
type Config struct {
	Addr      string `mapstructure:"ONBOARDING_ADDR"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	SessionIdleTTL     time.Duration `mapstructure:"SESSION_IDLE_TTL"`
	SweepSchedule      string        `mapstructure:"SWEEP_SCHEDULE"`
	MaxImageBytes      int64         `mapstructure:"MAX_IMAGE_BYTES"`
	PrefilledAddress   string        `mapstructure:"PREFILLED_ADDRESS"`
	ExpectedHolderName string        `mapstructure:"EXPECTED_HOLDER_NAME"`

	NotifierBackend  string   `mapstructure:"NOTIFIER_BACKEND"`
	RabbitMQURL      string   `mapstructure:"RABBITMQ_URL"`
	RabbitMQExchange string   `mapstructure:"RABBITMQ_EXCHANGE"`
	KafkaBrokers     []string `mapstructure:"KAFKA_BROKERS"`
	KafkaTopic       string   `mapstructure:"KAFKA_TOPIC"`

	CORSAllowedOrigins []string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	Redis     RedisConfig     `mapstructure:",squash"`
	RateLimit RateLimitConfig `mapstructure:",squash"`
}

// RedisConfig configures the optional Redis connection. An empty URL
// disables Redis and the rate limiter runs in memory.
type RedisConfig struct {
	URL          string        `mapstructure:"REDIS_URL"`
	PoolSize     int           `mapstructure:"REDIS_POOL_SIZE"`
	MinIdleConns int           `mapstructure:"REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `mapstructure:"REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `mapstructure:"REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `mapstructure:"REDIS_WRITE_TIMEOUT"`
}

// RateLimitConfig bounds how many sessions one client IP may start per window.
type RateLimitConfig struct {
	SessionsPerWindow int           `mapstructure:"RATE_LIMIT_SESSIONS"`
	Window            time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`
}

var keys = []string{
	"ONBOARDING_ADDR", "LOG_LEVEL", "LOG_FORMAT",
	"SESSION_IDLE_TTL", "SWEEP_SCHEDULE", "MAX_IMAGE_BYTES", "PREFILLED_ADDRESS", "EXPECTED_HOLDER_NAME",
	"NOTIFIER_BACKEND", "RABBITMQ_URL", "RABBITMQ_EXCHANGE", "KAFKA_BROKERS", "KAFKA_TOPIC",
	"CORS_ALLOWED_ORIGINS",
	"REDIS_URL", "REDIS_POOL_SIZE", "REDIS_MIN_IDLE_CONNS", "REDIS_DIAL_TIMEOUT", "REDIS_READ_TIMEOUT", "REDIS_WRITE_TIMEOUT",
	"RATE_LIMIT_SESSIONS", "RATE_LIMIT_WINDOW",
}

func setDefaults() {
	viper.SetDefault("ONBOARDING_ADDR", ":8080")
	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("LOG_FORMAT", "json")
	viper.SetDefault("SESSION_IDLE_TTL", "30m")
	viper.SetDefault("SWEEP_SCHEDULE", "@every 1m")
	viper.SetDefault("MAX_IMAGE_BYTES", 5<<20)
	viper.SetDefault("PREFILLED_ADDRESS", "تهران، خیابان آزادی، پلاک ۱۲")
	viper.SetDefault("EXPECTED_HOLDER_NAME", "علی علوی")
	viper.SetDefault("NOTIFIER_BACKEND", "log")
	viper.SetDefault("RABBITMQ_EXCHANGE", "onboarding.events")
	viper.SetDefault("KAFKA_TOPIC", "onboarding.registration")
	viper.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	viper.SetDefault("REDIS_POOL_SIZE", 10)
	viper.SetDefault("REDIS_MIN_IDLE_CONNS", 2)
	viper.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	viper.SetDefault("REDIS_READ_TIMEOUT", "3s")
	viper.SetDefault("REDIS_WRITE_TIMEOUT", "3s")
	viper.SetDefault("RATE_LIMIT_SESSIONS", 10)
	viper.SetDefault("RATE_LIMIT_WINDOW", "1m")
}

// Load reads an optional .env file, then the environment. Variables already
// set in the environment win over the file.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !isNotExist(err) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	setDefaults()
	viper.AutomaticEnv()
	for _, k := range keys {
		_ = viper.BindEnv(k)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.KafkaBrokers = liststr.SplitList(cfg.KafkaBrokers)
	cfg.CORSAllowedOrigins = liststr.SplitList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints. Errors name the offending key.
func (c *Config) Validate() error {
	var errs []error
	if c.SessionIdleTTL <= 0 {
		errs = append(errs, errors.New("SESSION_IDLE_TTL must be positive"))
	}
	if _, err := cron.ParseStandard(c.SweepSchedule); err != nil {
		errs = append(errs, fmt.Errorf("SWEEP_SCHEDULE is invalid: %w", err))
	}
	if c.MaxImageBytes <= 0 {
		errs = append(errs, errors.New("MAX_IMAGE_BYTES must be positive"))
	}
	if strings.TrimSpace(c.ExpectedHolderName) == "" {
		errs = append(errs, errors.New("EXPECTED_HOLDER_NAME is required"))
	}
	switch c.NotifierBackend {
	case "log":
	case "rabbitmq":
		if c.RabbitMQURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required when NOTIFIER_BACKEND=rabbitmq"))
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when NOTIFIER_BACKEND=kafka"))
		}
	default:
		errs = append(errs, fmt.Errorf("NOTIFIER_BACKEND %q is not one of log, rabbitmq, kafka", c.NotifierBackend))
	}
	if c.RateLimit.SessionsPerWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_SESSIONS must be positive"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be positive"))
	}
	return errors.Join(errs...)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
