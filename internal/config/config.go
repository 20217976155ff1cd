package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds runtime configuration shared by the API server and the classroom CLI.
type Config struct {
	AppName          string
	AppEnv           string
	AppPort          string
	DatabaseDriver   string
	DatabaseURL      string
	RedisURL         string
	SessionNamespace string
	JWTSecret        string
	APIBaseURL       string
	APITimeout       time.Duration
	ListPageSize     int
	NATSURL          string
	NATSSubject      string
	SeedEnabled      bool
	SeedToken        string
	RateLimitMax     int
	RateLimitWindow  time.Duration
	ProfileCacheTTL  time.Duration
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// ValidateServer checks the settings the API server cannot run without.
func (c Config) ValidateServer() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	switch c.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("database url must be provided")
	}
	return nil
}

// Load reads configuration values from CLASSROOM_* environment variables and an optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("CLASSROOM")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("app.name", "GEMA Classroom")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("session.namespace", "classroom")
	v.SetDefault("api.base_url", "http://localhost:8080/api")
	v.SetDefault("api.timeout", "0s")
	v.SetDefault("list.page_size", 10)
	v.SetDefault("nats.subject", "classroom.assignment.changed")
	v.SetDefault("seed.enabled", false)
	v.SetDefault("rate_limit.max", 30)
	v.SetDefault("rate_limit.window", "1m")
	v.SetDefault("profile.cache_ttl", "5m")

	timeout, err := parseDuration(v.GetString("api.timeout"), 0)
	if err != nil {
		return Config{}, fmt.Errorf("invalid api timeout: %w", err)
	}

	window, err := parseDuration(v.GetString("rate_limit.window"), time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid rate limit window: %w", err)
	}

	profileTTL, err := parseDuration(v.GetString("profile.cache_ttl"), 5*time.Minute)
	if err != nil {
		return Config{}, fmt.Errorf("invalid profile cache ttl: %w", err)
	}

	cfg := Config{
		AppName:          v.GetString("app.name"),
		AppEnv:           v.GetString("app.env"),
		AppPort:          v.GetString("app.port"),
		DatabaseDriver:   strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseURL:      v.GetString("database.url"),
		RedisURL:         v.GetString("redis.url"),
		SessionNamespace: v.GetString("session.namespace"),
		JWTSecret:        v.GetString("jwt.secret"),
		APIBaseURL:       v.GetString("api.base_url"),
		APITimeout:       timeout,
		ListPageSize:     v.GetInt("list.page_size"),
		NATSURL:          v.GetString("nats.url"),
		NATSSubject:      v.GetString("nats.subject"),
		SeedEnabled:      v.GetBool("seed.enabled"),
		SeedToken:        v.GetString("seed.token"),
		RateLimitMax:     v.GetInt("rate_limit.max"),
		RateLimitWindow:  window,
		ProfileCacheTTL:  profileTTL,
	}

	if cfg.ListPageSize <= 0 {
		cfg.ListPageSize = 10
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 30
	}

	return cfg, nil
}

func parseDuration(value string, fallback time.Duration) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return fallback, nil
	}
	return time.ParseDuration(value)
}
