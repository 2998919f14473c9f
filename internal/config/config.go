package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration.
type Config struct {
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	JWTSecret        string        `mapstructure:"JWT_SECRET"`
	JWTRefreshSecret string        `mapstructure:"JWT_REFRESH_SECRET"`
	AccessTokenTTL   time.Duration `mapstructure:"ACCESS_TOKEN_TTL"`
	RefreshTokenTTL  time.Duration `mapstructure:"REFRESH_TOKEN_TTL"`
	CookieSecure     bool          `mapstructure:"COOKIE_SECURE"`

	CORSOrigins string `mapstructure:"CORS_ORIGINS"`

	StorageURL       string `mapstructure:"STORAGE_URL"`
	StoragePublicURL string `mapstructure:"STORAGE_PUBLIC_URL"`
	MaxUploadMB      int64  `mapstructure:"MAX_UPLOAD_MB"`

	ReportCacheTTL time.Duration `mapstructure:"REPORT_CACHE_TTL"`
	AuthRateLimit  int           `mapstructure:"AUTH_RATE_LIMIT"`

	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

var AppConfig *Config

// defaults are registered with viper so that keys present only in the
// environment are still picked up by Unmarshal.
var defaults = map[string]any{
	"PORT":               "8080",
	"DATABASE_URL":       "",
	"JWT_SECRET":         "",
	"JWT_REFRESH_SECRET": "",
	"ACCESS_TOKEN_TTL":   "15m",
	"REFRESH_TOKEN_TTL":  "168h",
	"COOKIE_SECURE":      false,
	"CORS_ORIGINS":       "http://localhost:3000",
	"STORAGE_URL":        "file:///tmp/gameshelf-uploads",
	"STORAGE_PUBLIC_URL": "/uploads",
	"MAX_UPLOAD_MB":      5,
	"REPORT_CACHE_TTL":   "30s",
	"AUTH_RATE_LIMIT":    10,
	"LOG_LEVEL":          "info",
	"LOG_FORMAT":         "json",
}

// Load reads configuration from a .env file in dir (if present) and from the
// process environment. Environment variables win over the file.
func Load(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read .env: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// LoadConfig loads the configuration into AppConfig.
func LoadConfig() error {
	cfg, err := Load(".")
	if err != nil {
		return err
	}
	AppConfig = cfg
	return nil
}

// Validate reports the settings the server cannot start without.
func (c *Config) Validate() error {
	var missing []string
	if c.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}
	if c.JWTRefreshSecret == "" {
		missing = append(missing, "JWT_REFRESH_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	if c.JWTSecret == c.JWTRefreshSecret {
		return errors.New("JWT_SECRET and JWT_REFRESH_SECRET must differ")
	}
	return nil
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var origins []string
	for _, o := range strings.Split(c.CORSOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// MaxUploadBytes is MAX_UPLOAD_MB in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}
