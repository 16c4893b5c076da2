// Package config loads rdfetch settings from .env, an optional TOML file and
// the environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

// Duration is a time.Duration that decodes from strings such as "30s".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := parseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the full service configuration.
type Config struct {
	ServerPort  int    `toml:"server_port"`
	Host        string `toml:"host"`
	DatabaseURL string `toml:"database_url"`

	RealDebridAPIKey   string `toml:"real_debrid_api_key"`
	RealDebridClientID string `toml:"real_debrid_client_id"`
	RealDebridBaseURL  string `toml:"real_debrid_base_url"`
	RealDebridAuthURL  string `toml:"real_debrid_auth_url"`
	CredentialSecret   string `toml:"credential_secret"`

	HTTPTimeout          Duration `toml:"http_timeout"`
	CleanupTimeout       Duration `toml:"cleanup_timeout"`
	RateLimitRPS         float64  `toml:"rate_limit_rps"`
	RateLimitBurst       int      `toml:"rate_limit_burst"`
	PollInterval         Duration `toml:"poll_interval"`
	TokenRefreshInterval Duration `toml:"token_refresh_interval"`

	RedisURL                   string   `toml:"redis_url"`
	AvailabilityCacheTTL       Duration `toml:"availability_cache_ttl"`
	AvailabilityRescanInterval Duration `toml:"availability_rescan_interval"`

	EnableNotifications bool   `toml:"enable_notifications"`
	DiscordWebhookURL   string `toml:"discord_webhook_url"`

	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	Debug     bool   `toml:"debug"`

	OTLPEndpoint string `toml:"otel_exporter_otlp_endpoint"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		ServerPort:                 8080,
		Host:                       "0.0.0.0",
		DatabaseURL:                "rdfetch.db",
		RealDebridBaseURL:          "https://api.real-debrid.com/rest/1.0",
		RealDebridAuthURL:          "https://api.real-debrid.com/oauth/v2",
		HTTPTimeout:                Duration(30 * time.Second),
		CleanupTimeout:             Duration(15 * time.Second),
		RateLimitRPS:               4,
		RateLimitBurst:             8,
		TokenRefreshInterval:       Duration(30 * time.Minute),
		AvailabilityCacheTTL:       Duration(15 * time.Minute),
		AvailabilityRescanInterval: Duration(10 * time.Minute),
		LogLevel:                   "info",
		LogFormat:                  "auto",
	}
}

// Load reads .env (if present), CONFIG_FILE (if set) and the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if cfg.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(key string) (string, bool)

func (c *Config) applyEnv(lookup lookupFunc) error {
	var errs []error
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	integer := func(key string, dst *int) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid integer %q", key, v))
				return
			}
			*dst = n
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid number %q", key, v))
				return
			}
			*dst = f
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: invalid boolean %q", key, v))
				return
			}
			*dst = b
		}
	}
	duration := func(key string, dst *Duration) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			d, err := parseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = Duration(d)
		}
	}

	integer("SERVER_PORT", &c.ServerPort)
	str("HOST", &c.Host)
	str("DATABASE_URL", &c.DatabaseURL)
	str("REAL_DEBRID_API_KEY", &c.RealDebridAPIKey)
	str("REAL_DEBRID_CLIENT_ID", &c.RealDebridClientID)
	str("REAL_DEBRID_BASE_URL", &c.RealDebridBaseURL)
	str("REAL_DEBRID_AUTH_URL", &c.RealDebridAuthURL)
	str("CREDENTIAL_SECRET", &c.CredentialSecret)
	duration("HTTP_TIMEOUT", &c.HTTPTimeout)
	duration("CLEANUP_TIMEOUT", &c.CleanupTimeout)
	float("RATE_LIMIT_RPS", &c.RateLimitRPS)
	integer("RATE_LIMIT_BURST", &c.RateLimitBurst)
	duration("POLL_INTERVAL", &c.PollInterval)
	duration("TOKEN_REFRESH_INTERVAL", &c.TokenRefreshInterval)
	str("REDIS_URL", &c.RedisURL)
	duration("AVAILABILITY_CACHE_TTL", &c.AvailabilityCacheTTL)
	duration("AVAILABILITY_RESCAN_INTERVAL", &c.AvailabilityRescanInterval)
	boolean("ENABLE_NOTIFICATIONS", &c.EnableNotifications)
	str("DISCORD_WEBHOOK_URL", &c.DiscordWebhookURL)
	str("LOG_LEVEL", &c.LogLevel)
	str("LOG_FORMAT", &c.LogFormat)
	boolean("DEBUG", &c.Debug)
	str("OTEL_EXPORTER_OTLP_ENDPOINT", &c.OTLPEndpoint)

	return errors.Join(errs...)
}

// parseDuration accepts Go durations and bare integers meaning seconds.
func parseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", value)
	}
	return d, nil
}

// Addr is the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.ServerPort)
}

// Validate reports the first unusable setting.
func (c Config) Validate() error {
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port must be between 1 and 65535, got %d", c.ServerPort)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("database_url must be set")
	}
	if c.RealDebridAPIKey == "" && strings.TrimSpace(c.CredentialSecret) == "" {
		return errors.New("credential_secret is required to store device credentials. Set CREDENTIAL_SECRET or REAL_DEBRID_API_KEY")
	}
	if c.HTTPTimeout <= 0 {
		return errors.New("http_timeout must be positive")
	}
	if c.CleanupTimeout <= 0 {
		return errors.New("cleanup_timeout must be positive")
	}
	if c.RateLimitRPS < 0 {
		return errors.New("rate_limit_rps must not be negative")
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return errors.New("rate_limit_burst must be positive when rate limiting is enabled")
	}
	if c.PollInterval < 0 {
		return errors.New("poll_interval must not be negative")
	}
	if c.AvailabilityCacheTTL < 0 {
		return errors.New("availability_cache_ttl must not be negative")
	}
	if c.AvailabilityRescanInterval < 0 {
		return errors.New("availability_rescan_interval must not be negative")
	}
	if c.EnableNotifications && strings.TrimSpace(c.DiscordWebhookURL) == "" {
		return errors.New("discord_webhook_url is required when notifications are enabled")
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "auto", "text", "json":
	default:
		return fmt.Errorf("log_format: unsupported value %q", c.LogFormat)
	}
	return nil
}
