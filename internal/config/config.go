package config

import (
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// minSessionSecretLen is the shortest HMAC secret accepted for the session
// cookie outside development.
const minSessionSecretLen = 32

// devSessionSecret signs development sessions when SESSION_SECRET is unset.
const devSessionSecret = "development-only-session-secret-change-me"

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	APIBaseURL          string        `mapstructure:"API_BASE_URL"`
	SessionSecret       string        `mapstructure:"SESSION_SECRET"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	SessionCookieSecure bool          `mapstructure:"SESSION_COOKIE_SECURE"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	UpstreamTimeout     time.Duration `mapstructure:"UPSTREAM_TIMEOUT"`
	RequestTimeout      time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	URLDebounce         time.Duration `mapstructure:"URL_DEBOUNCE"`
	PathologyInfoAPIKey string        `mapstructure:"PATHOLOGY_INFO_API_KEY"`
	ActivePathologies   bool          `mapstructure:"ACTIVE_PATHOLOGIES_ONLY"`
	RateLimitRPS        float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst      int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("DB_MAX_CONNS", 5)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("UPSTREAM_TIMEOUT", "15s")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("URL_DEBOUNCE", "300ms")
	v.SetDefault("ACTIVE_PATHOLOGIES_ONLY", true)
	v.SetDefault("RATE_LIMIT_RPS", 1)
	v.SetDefault("RATE_LIMIT_BURST", 10)

	for _, key := range []string{
		"PORT", "ENV", "API_BASE_URL", "SESSION_SECRET", "SESSION_TTL",
		"SESSION_COOKIE_SECURE", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"UPSTREAM_TIMEOUT", "REQUEST_TIMEOUT", "URL_DEBOUNCE",
		"PATHOLOGY_INFO_API_KEY", "ACTIVE_PATHOLOGIES_ONLY",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.APIBaseURL == "" {
		return nil, fmt.Errorf("API_BASE_URL is required")
	}

	if !v.IsSet("SESSION_COOKIE_SECURE") {
		cfg.SessionCookieSecure = cfg.IsProduction()
	}

	if cfg.SessionSecret == "" && cfg.IsDev() {
		log.Println("WARNING: SESSION_SECRET is unset; using the built-in development secret.")
		cfg.SessionSecret = devSessionSecret
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the portal is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. Outside development
// the session secret must be long enough for HS256, and the upstream base URL
// must be an absolute http(s) URL.
func (c *Config) Validate() error {
	u, err := url.Parse(c.APIBaseURL)
	if err != nil {
		return fmt.Errorf("API_BASE_URL is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("API_BASE_URL must be an absolute http(s) URL, got %q", c.APIBaseURL)
	}

	if !c.IsDev() {
		if len(c.SessionSecret) < minSessionSecretLen {
			return fmt.Errorf("SESSION_SECRET must be at least %d bytes outside development", minSessionSecretLen)
		}
		if c.SessionSecret == devSessionSecret {
			return fmt.Errorf("SESSION_SECRET must not use the development default")
		}
	}

	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive, got %s", c.SessionTTL)
	}
	if c.UpstreamTimeout < 0 {
		return fmt.Errorf("UPSTREAM_TIMEOUT must not be negative, got %s", c.UpstreamTimeout)
	}
	if c.URLDebounce < 0 {
		return fmt.Errorf("URL_DEBOUNCE must not be negative, got %s", c.URLDebounce)
	}
	if c.IsProduction() && !c.SessionCookieSecure {
		return fmt.Errorf("SESSION_COOKIE_SECURE must be true in production")
	}

	return nil
}
