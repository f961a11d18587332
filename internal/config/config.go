package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port           string         `mapstructure:"PORT"`
	Env            string         `mapstructure:"ENV"`
	DatabaseURL    string         `mapstructure:"DATABASE_URL"`
	DBMaxConns     int32          `mapstructure:"DB_MAX_CONNS"`
	DBMinConns     int32          `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins    []string       `mapstructure:"CORS_ORIGINS"`
	RateLimitRPS   float64        `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int            `mapstructure:"RATE_LIMIT_BURST"`
	RateLimitTTL   time.Duration  `mapstructure:"RATE_LIMIT_EXPIRY"`
	TrustedProxies []string       `mapstructure:"TRUSTED_PROXIES"`
	MaxUploadSize  string         `mapstructure:"MAX_UPLOAD_SIZE"`
	DraftTTL       time.Duration  `mapstructure:"DRAFT_TTL"`
	AdminTimeout   time.Duration  `mapstructure:"ADMIN_TIMEOUT"`
	AdminJWTSecret string         `mapstructure:"ADMIN_JWT_SECRET"`
	AdminJWTIssuer string         `mapstructure:"ADMIN_JWT_ISSUER"`
	TLSEnabled     bool           `mapstructure:"TLS_ENABLED"`
	TLSCertFile    string         `mapstructure:"TLS_CERT_FILE"`
	TLSKeyFile     string         `mapstructure:"TLS_KEY_FILE"`
	Webhook        WebhookConfig  `mapstructure:",squash"`
	Render         RenderConfig   `mapstructure:",squash"`
	Captcha        CaptchaConfig  `mapstructure:",squash"`
	Practice       PracticeConfig `mapstructure:",squash"`
}

// WebhookConfig holds the two outbound endpoints.
type WebhookConfig struct {
	DocumentURL string        `mapstructure:"DOCUMENT_WEBHOOK_URL"`
	RecordURL   string        `mapstructure:"RECORD_WEBHOOK_URL"`
	Secret      string        `mapstructure:"WEBHOOK_SECRET"`
	Timeout     time.Duration `mapstructure:"WEBHOOK_TIMEOUT"`
}

type RenderConfig struct {
	Width   int     `mapstructure:"RENDER_WIDTH"`
	Scale   float64 `mapstructure:"RENDER_SCALE"`
	Quality int     `mapstructure:"JPEG_QUALITY"`
}

type CaptchaConfig struct {
	Required bool   `mapstructure:"REQUIRE_CAPTCHA"`
	Secret   string `mapstructure:"RECAPTCHA_SECRET"`
	SiteKey  string `mapstructure:"RECAPTCHA_SITE_KEY"`
}

// PracticeConfig overrides the practice header. Empty fields keep the
// built-in branding. Address lines are separated by "|".
type PracticeConfig struct {
	Name    string `mapstructure:"PRACTICE_NAME"`
	Address string `mapstructure:"PRACTICE_ADDRESS"`
	Phone   string `mapstructure:"PRACTICE_PHONE"`
	Email   string `mapstructure:"PRACTICE_EMAIL"`
	Website string `mapstructure:"PRACTICE_WEBSITE"`
}

// AddressLines splits Address into its lines.
func (p PracticeConfig) AddressLines() []string {
	if strings.TrimSpace(p.Address) == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(p.Address, "|") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

var keys = []string{
	"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
	"CORS_ORIGINS", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_EXPIRY",
	"TRUSTED_PROXIES", "MAX_UPLOAD_SIZE",
	"DRAFT_TTL", "ADMIN_TIMEOUT", "ADMIN_JWT_SECRET", "ADMIN_JWT_ISSUER",
	"TLS_ENABLED", "TLS_CERT_FILE", "TLS_KEY_FILE",
	"DOCUMENT_WEBHOOK_URL", "RECORD_WEBHOOK_URL", "WEBHOOK_SECRET", "WEBHOOK_TIMEOUT",
	"RENDER_WIDTH", "RENDER_SCALE", "JPEG_QUALITY",
	"REQUIRE_CAPTCHA", "RECAPTCHA_SECRET", "RECAPTCHA_SITE_KEY",
	"PRACTICE_NAME", "PRACTICE_ADDRESS", "PRACTICE_PHONE", "PRACTICE_EMAIL", "PRACTICE_WEBSITE",
}

// Load reads configuration from the environment and an optional .env file.
// A database is optional; without one receipts are kept in memory.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()

	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)
	v.SetDefault("RATE_LIMIT_EXPIRY", "3m")
	v.SetDefault("MAX_UPLOAD_SIZE", "25M")
	v.SetDefault("DRAFT_TTL", "24h")
	v.SetDefault("ADMIN_TIMEOUT", "30s")
	v.SetDefault("ADMIN_JWT_ISSUER", "referral-intake")
	v.SetDefault("WEBHOOK_TIMEOUT", "60s")
	v.SetDefault("RENDER_WIDTH", 1200)
	v.SetDefault("RENDER_SCALE", 1.2)
	v.SetDefault("JPEG_QUALITY", 90)
	v.SetDefault("REQUIRE_CAPTCHA", false)

	for _, k := range keys {
		v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.CORSOrigins = splitList(strings.Join(cfg.CORSOrigins, ","))
	cfg.TrustedProxies = splitList(strings.Join(cfg.TrustedProxies, ","))

	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// HasDatabase reports whether receipts go to PostgreSQL.
func (c *Config) HasDatabase() bool {
	return c.DatabaseURL != ""
}

// TrustedProxyNets parses TRUSTED_PROXIES. Bare addresses are taken as
// single-host ranges.
func (c *Config) TrustedProxyNets() ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(c.TrustedProxies))
	for _, raw := range c.TrustedProxies {
		if !strings.Contains(raw, "/") {
			ip := net.ParseIP(raw)
			if ip == nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: invalid address %q", raw)
			}
			bits := 8 * net.IPv6len
			if ip4 := ip.To4(); ip4 != nil {
				ip, bits = ip4, 8*net.IPv4len
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(raw)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// Validate checks that the configuration is safe to serve with. Both webhook
// URLs must be absolute http(s) URLs. Outside development the admin API
// requires ADMIN_JWT_SECRET.
func (c *Config) Validate() error {
	if err := validateURL("DOCUMENT_WEBHOOK_URL", c.Webhook.DocumentURL); err != nil {
		return err
	}
	if err := validateURL("RECORD_WEBHOOK_URL", c.Webhook.RecordURL); err != nil {
		return err
	}
	if c.Webhook.Timeout < 0 {
		return fmt.Errorf("WEBHOOK_TIMEOUT must not be negative, got %s", c.Webhook.Timeout)
	}

	if c.Render.Width <= 0 {
		return fmt.Errorf("RENDER_WIDTH must be positive, got %d", c.Render.Width)
	}
	if c.Render.Scale <= 0 {
		return fmt.Errorf("RENDER_SCALE must be positive, got %g", c.Render.Scale)
	}
	if c.Render.Quality < 1 || c.Render.Quality > 100 {
		return fmt.Errorf("JPEG_QUALITY must be between 1 and 100, got %d", c.Render.Quality)
	}

	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if _, err := c.TrustedProxyNets(); err != nil {
		return err
	}

	if !c.IsDev() && c.AdminJWTSecret == "" {
		return fmt.Errorf("ADMIN_JWT_SECRET is required when ENV=%q", c.Env)
	}

	// TLS validation: when TLS is enabled, cert and key files must be specified.
	if c.TLSEnabled {
		if c.TLSCertFile == "" {
			return fmt.Errorf("TLS_CERT_FILE is required when TLS_ENABLED is true")
		}
		if c.TLSKeyFile == "" {
			return fmt.Errorf("TLS_KEY_FILE is required when TLS_ENABLED is true")
		}
	}

	return nil
}

func validateURL(key, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", key)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid url: %w", key, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https, got %q", key, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%s must include a host", key)
	}
	return nil
}
