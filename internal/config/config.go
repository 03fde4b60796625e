// Package config loads and validates the homeguard backend configuration.
//
// Configuration is layered: defaults, base.yaml, <environment>.yaml,
// local.yaml (development only) and finally environment variables. The
// result is validated once and then treated as immutable; components take
// the values they need at construction.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Environment is the deployment environment.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the complete application configuration.
type Config struct {
	Environment Environment `yaml:"environment" validate:"required,oneof=development staging production"`
	Server      Server      `yaml:"server"`
	Cache       Cache       `yaml:"cache"`
	Database    Database    `yaml:"database"`
	Events      Events      `yaml:"events"`
	Logging     Logging     `yaml:"logging"`
	Metrics     Metrics     `yaml:"metrics"`
	Tracing     Tracing     `yaml:"tracing"`
	CORS        CORS        `yaml:"cors"`

	// LoadedFrom lists the sources that contributed, lowest priority first.
	LoadedFrom []string `yaml:"-"`
}

type Server struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout     time.Duration `yaml:"idle_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" validate:"gt=0"`
}

// Cache configures the caching layer. Durations are read once when the
// cache components are built.
type Cache struct {
	Provider  string `yaml:"provider" validate:"oneof=redis memory"`
	KeyPrefix string `yaml:"key_prefix" validate:"required"`

	DefaultTTL time.Duration `yaml:"default_ttl" validate:"gt=0"`
	ShortTTL   time.Duration `yaml:"short_ttl" validate:"gt=0"`
	LongTTL    time.Duration `yaml:"long_ttl" validate:"gt=0"`

	// Stale-while-revalidate.
	StaleTTL           time.Duration `yaml:"stale_ttl" validate:"gt=0"`
	RefreshLockTimeout time.Duration `yaml:"refresh_lock_timeout" validate:"gt=0"`

	// Read-through.
	StampedeProtection bool          `yaml:"stampede_protection"`
	LoadLockTimeout    time.Duration `yaml:"load_lock_timeout" validate:"gt=0"`
	LoadPollInterval   time.Duration `yaml:"load_poll_interval" validate:"gt=0"`
	LoadMaxWait        time.Duration `yaml:"load_max_wait" validate:"gt=0"`

	// Memory provider limits.
	MaxItems  int   `yaml:"max_items" validate:"min=0"`
	MaxMemory int64 `yaml:"max_memory" validate:"min=0"`

	Redis   RedisConfig   `yaml:"redis"`
	Breaker BreakerConfig `yaml:"breaker"`
	Warming WarmingConfig `yaml:"warming"`
}

type RedisConfig struct {
	Addr         string        `yaml:"addr"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db" validate:"min=0"`
	PoolSize     int           `yaml:"pool_size" validate:"min=0"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type BreakerConfig struct {
	Enabled             bool          `yaml:"enabled"`
	ConsecutiveFailures uint32        `yaml:"consecutive_failures"`
	MaxRequests         uint32        `yaml:"max_requests"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
}

type WarmingConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Strategy       string        `yaml:"strategy" validate:"oneof=parallel sequential"`
	Timeout        time.Duration `yaml:"timeout" validate:"gt=0"`
	MaxConcurrency int           `yaml:"max_concurrency" validate:"min=0"`
}

type Database struct {
	TableName string        `yaml:"table_name" validate:"required"`
	Region    string        `yaml:"region" validate:"required"`
	Endpoint  string        `yaml:"endpoint"`
	Timeout   time.Duration `yaml:"timeout" validate:"gt=0"`
}

type Events struct {
	Enabled      bool   `yaml:"enabled"`
	EventBusName string `yaml:"event_bus_name" validate:"required_if=Enabled true"`
	Source       string `yaml:"source" validate:"required"`
	BatchSize    int    `yaml:"batch_size" validate:"min=1,max=10"`
}

type Logging struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=json console"`
}

type Metrics struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace" validate:"required"`
	Path      string `yaml:"path" validate:"startswith=/"`
}

type Tracing struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name" validate:"required"`
	Endpoint    string  `yaml:"endpoint" validate:"required_if=Enabled true"`
	SampleRate  float64 `yaml:"sample_rate" validate:"min=0,max=1"`
}

type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	MaxAge         int      `yaml:"max_age" validate:"min=0"`
}

// Default returns the configuration used before any file or variable is
// applied.
func Default(env Environment) *Config {
	return &Config{
		Environment: env,
		Server: Server{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Cache: Cache{
			Provider:           "redis",
			KeyPrefix:          "homeguard",
			DefaultTTL:         5 * time.Minute,
			ShortTTL:           30 * time.Second,
			LongTTL:            time.Hour,
			StaleTTL:           5 * time.Minute,
			RefreshLockTimeout: 30 * time.Second,
			StampedeProtection: true,
			LoadLockTimeout:    10 * time.Second,
			LoadPollInterval:   50 * time.Millisecond,
			LoadMaxWait:        5 * time.Second,
			MaxItems:           10000,
			MaxMemory:          64 << 20,
			Redis: RedisConfig{
				Addr:         "localhost:6379",
				PoolSize:     20,
				DialTimeout:  2 * time.Second,
				ReadTimeout:  500 * time.Millisecond,
				WriteTimeout: 500 * time.Millisecond,
			},
			Breaker: BreakerConfig{
				Enabled:             true,
				ConsecutiveFailures: 5,
				MaxRequests:         1,
				Interval:            time.Minute,
				Timeout:             15 * time.Second,
			},
			Warming: WarmingConfig{
				Enabled:        true,
				Strategy:       "parallel",
				Timeout:        30 * time.Second,
				MaxConcurrency: 4,
			},
		},
		Database: Database{
			TableName: "homeguard-" + strings.ToLower(string(env)),
			Region:    "us-east-1",
			Timeout:   5 * time.Second,
		},
		Events: Events{
			EventBusName: "homeguard-" + strings.ToLower(string(env)),
			Source:       "homeguard.backend",
			BatchSize:    10,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Metrics: Metrics{
			Enabled:   true,
			Namespace: "homeguard",
			Path:      "/metrics",
		},
		Tracing: Tracing{
			ServiceName: "homeguard-backend",
			SampleRate:  0.1,
		},
		CORS: CORS{
			AllowedOrigins: []string{"*"},
			MaxAge:         300,
		},
	}
}

var validate = validator.New()

// Validate checks struct tags and the rules that span several fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return formatValidationError(err)
	}

	var errs []error
	if c.Cache.ShortTTL > c.Cache.DefaultTTL {
		errs = append(errs, fmt.Errorf("cache.short_ttl (%s) must not exceed cache.default_ttl (%s)", c.Cache.ShortTTL, c.Cache.DefaultTTL))
	}
	if c.Cache.DefaultTTL > c.Cache.LongTTL {
		errs = append(errs, fmt.Errorf("cache.default_ttl (%s) must not exceed cache.long_ttl (%s)", c.Cache.DefaultTTL, c.Cache.LongTTL))
	}
	if c.Cache.LoadPollInterval >= c.Cache.LoadMaxWait {
		errs = append(errs, errors.New("cache.load_poll_interval must be shorter than cache.load_max_wait"))
	}
	if c.Cache.Provider == "redis" && c.Cache.Redis.Addr == "" {
		errs = append(errs, errors.New("cache.redis.addr is required for the redis provider"))
	}
	if c.Environment == Production && c.Cache.Provider == "memory" {
		errs = append(errs, errors.New("cache.provider memory is not allowed in production"))
	}
	return errors.Join(errs...)
}

func (c *Config) IsDevelopment() bool { return c.Environment == Development }

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		msgs = append(msgs, formatFieldError(e))
	}
	return errors.New(strings.Join(msgs, "; "))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.TrimPrefix(e.Namespace(), "Config.")
	switch e.Tag() {
	case "required", "required_if":
		return fmt.Sprintf("%s is required", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, e.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, e.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
