package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string `mapstructure:"PORT"`
	Env         string `mapstructure:"ENV"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32  `mapstructure:"DB_MIN_CONNS"`

	AuthSecret   string `mapstructure:"AUTH_SECRET"`
	AuthIssuer   string `mapstructure:"AUTH_ISSUER"`
	AuthAudience string `mapstructure:"AUTH_AUDIENCE"`

	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	RateLimitRPS   float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst int     `mapstructure:"RATE_LIMIT_BURST"`

	TokenDefaultDurationHours int `mapstructure:"TOKEN_DEFAULT_DURATION_HOURS"`
	TokenMaxDurationHours     int `mapstructure:"TOKEN_MAX_DURATION_HOURS"`

	SMSBaseURL  string `mapstructure:"SMS_BASE_URL"`
	SMSAPIKey   string `mapstructure:"SMS_API_KEY"`
	SMSSenderID string `mapstructure:"SMS_SENDER_ID"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_RPS", 20)
	v.SetDefault("RATE_LIMIT_BURST", 40)
	v.SetDefault("TOKEN_DEFAULT_DURATION_HOURS", 24)
	v.SetDefault("TOKEN_MAX_DURATION_HOURS", 720)
	v.SetDefault("SMS_SENDER_ID", "AFYA")

	// Bind env vars explicitly so Unmarshal picks them up
	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"AUTH_SECRET", "AUTH_ISSUER", "AUTH_AUDIENCE", "CORS_ORIGINS",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"TOKEN_DEFAULT_DURATION_HOURS", "TOKEN_MAX_DURATION_HOURS",
		"SMS_BASE_URL", "SMS_API_KEY", "SMS_SENDER_ID",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.IsDev() {
		log.Println("WARNING: server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: DevAuthMiddleware is active; unauthenticated requests get admin access.")
		log.Println("WARNING: set ENV=production and AUTH_SECRET for production.")
	}

	return cfg, nil
}

// Validate refuses configurations that are unsafe or inconsistent.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.IsProduction() && c.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required in production")
	}
	if c.TokenDefaultDurationHours <= 0 {
		return fmt.Errorf("TOKEN_DEFAULT_DURATION_HOURS must be positive")
	}
	if c.TokenMaxDurationHours < c.TokenDefaultDurationHours {
		return fmt.Errorf("TOKEN_MAX_DURATION_HOURS must be >= TOKEN_DEFAULT_DURATION_HOURS")
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
