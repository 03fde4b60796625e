package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader reads configuration from a directory of YAML files and the
// process environment. Later sources override earlier ones:
//
//  1. defaults
//  2. base.yaml
//  3. <environment>.yaml
//  4. local.yaml (development only)
//  5. environment variables
type Loader struct {
	basePath    string
	environment Environment
	lookupEnv   func(string) (string, bool)
}

// NewLoader creates a loader for the files under basePath.
func NewLoader(basePath string, env Environment) *Loader {
	if basePath == "" {
		basePath = "config"
	}
	return &Loader{
		basePath:    basePath,
		environment: env,
		lookupEnv:   os.LookupEnv,
	}
}

// BasePath returns the directory the loader reads from.
func (l *Loader) BasePath() string { return l.basePath }

// Load builds and validates a fresh Config.
func (l *Loader) Load() (*Config, error) {
	cfg := Default(l.environment)
	sources := []string{"defaults"}

	layers := []string{"base", strings.ToLower(string(l.environment))}
	if l.environment == Development {
		layers = append(layers, "local")
	}
	for _, name := range layers {
		path, err := l.loadFile(name, cfg)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load %s config: %w", name, err)
		}
		sources = append(sources, path)
	}

	if err := l.applyEnvironment(cfg); err != nil {
		return nil, err
	}
	sources = append(sources, "environment")

	// A file may not change which environment is being loaded.
	cfg.Environment = l.environment
	cfg.LoadedFrom = sources

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// loadFile decodes <name>.yaml or <name>.yml over cfg.
func (l *Loader) loadFile(name string, cfg *Config) (string, error) {
	for _, ext := range []string{"yaml", "yml"} {
		path := filepath.Join(l.basePath, name+"."+ext)
		f, err := os.Open(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		return path, nil
	}
	return "", fs.ErrNotExist
}

// applyEnvironment overlays environment variables. Malformed values are
// reported rather than silently ignored.
func (l *Loader) applyEnvironment(cfg *Config) error {
	var errs []error
	str := func(name string, dst *string) {
		if v, ok := l.lookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	integer := func(name string, dst *int) {
		if v, ok := l.lookupEnv(name); ok && v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = n
		}
	}
	boolean := func(name string, dst *bool) {
		if v, ok := l.lookupEnv(name); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = b
		}
	}
	duration := func(name string, dst *time.Duration) {
		if v, ok := l.lookupEnv(name); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", name, err))
				return
			}
			*dst = d
		}
	}

	str("SERVER_HOST", &cfg.Server.Host)
	integer("SERVER_PORT", &cfg.Server.Port)

	str("CACHE_PROVIDER", &cfg.Cache.Provider)
	str("REDIS_KEY_PREFIX", &cfg.Cache.KeyPrefix)
	str("REDIS_ADDR", &cfg.Cache.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Cache.Redis.Password)
	integer("REDIS_DB", &cfg.Cache.Redis.DB)
	duration("CACHE_DEFAULT_TTL", &cfg.Cache.DefaultTTL)
	duration("CACHE_SHORT_TTL", &cfg.Cache.ShortTTL)
	duration("CACHE_LONG_TTL", &cfg.Cache.LongTTL)
	duration("CACHE_STALE_TTL", &cfg.Cache.StaleTTL)
	boolean("CACHE_STAMPEDE_PROTECTION", &cfg.Cache.StampedeProtection)
	boolean("CACHE_WARMING_ENABLED", &cfg.Cache.Warming.Enabled)
	str("CACHE_WARMING_STRATEGY", &cfg.Cache.Warming.Strategy)
	duration("CACHE_WARMING_TIMEOUT", &cfg.Cache.Warming.Timeout)

	str("TABLE_NAME", &cfg.Database.TableName)
	str("DYNAMODB_ENDPOINT", &cfg.Database.Endpoint)
	if v, ok := l.lookupEnv("AWS_REGION"); ok && v != "" {
		cfg.Database.Region = v
	}

	boolean("EVENTS_ENABLED", &cfg.Events.Enabled)
	str("EVENT_BUS_NAME", &cfg.Events.EventBusName)

	str("LOG_LEVEL", &cfg.Logging.Level)
	str("LOG_FORMAT", &cfg.Logging.Format)

	boolean("ENABLE_METRICS", &cfg.Metrics.Enabled)

	boolean("TRACING_ENABLED", &cfg.Tracing.Enabled)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &cfg.Tracing.Endpoint)
	str("OTEL_SERVICE_NAME", &cfg.Tracing.ServiceName)

	if v, ok := l.lookupEnv("CORS_ALLOWED_ORIGINS"); ok && v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment variables: %w", errors.Join(errs...))
	}
	return nil
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnvironmentFromEnv reads ENVIRONMENT, defaulting to development.
func EnvironmentFromEnv() Environment {
	switch strings.ToLower(os.Getenv("ENVIRONMENT")) {
	case "production", "prod":
		return Production
	case "staging", "stage":
		return Staging
	default:
		return Development
	}
}

// LoadFromEnv loads configuration from CONFIG_DIR (default "config") for
// the environment named by ENVIRONMENT.
func LoadFromEnv() (*Config, error) {
	dir := os.Getenv("CONFIG_DIR")
	return NewLoader(dir, EnvironmentFromEnv()).Load()
}
