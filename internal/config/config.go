package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	Port          string        `mapstructure:"PORT"`
	Env           string        `mapstructure:"ENV"`
	LogLevel      string        `mapstructure:"LOG_LEVEL"`
	MongoURI      string        `mapstructure:"MONGO_URI"`
	MongoDatabase string        `mapstructure:"MONGO_DATABASE"`
	StoreDriver   string        `mapstructure:"STORE_DRIVER"`
	StoreTimeout  time.Duration `mapstructure:"STORE_TIMEOUT"`
	AccessToken   string        `mapstructure:"ACCESS_TOKEN"`
	TokenTTL      time.Duration `mapstructure:"TOKEN_TTL"`
	CORSOrigins   []string      `mapstructure:"CORS_ORIGINS"`
	RedisAddr     string        `mapstructure:"REDIS_ADDR"`
	RedisPassword string        `mapstructure:"REDIS_PASSWORD"`
	LockTTL       time.Duration `mapstructure:"LOCK_TTL"`

	StripeSecretKey string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeBaseURL   string `mapstructure:"STRIPE_BASE_URL"`

	SendGridAPIKey    string `mapstructure:"SENDGRID_API_KEY"`
	SendGridFromEmail string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendGridFromName  string `mapstructure:"SENDGRID_FROM_NAME"`
}

var keys = []string{
	"PORT", "ENV", "LOG_LEVEL", "MONGO_URI", "MONGO_DATABASE", "STORE_DRIVER",
	"STORE_TIMEOUT", "ACCESS_TOKEN", "TOKEN_TTL", "CORS_ORIGINS", "REDIS_ADDR",
	"REDIS_PASSWORD", "LOCK_TTL", "STRIPE_SECRET_KEY", "STRIPE_BASE_URL",
	"SENDGRID_API_KEY", "SENDGRID_FROM_EMAIL", "SENDGRID_FROM_NAME",
}

// Load reads .env (if present) into the process environment and then builds
// the config from the environment.
func Load() (*Config, error) {
	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "5000")
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("MONGO_DATABASE", "doctorsPortal")
	v.SetDefault("STORE_DRIVER", DriverMongo)
	v.SetDefault("STORE_TIMEOUT", "5s")
	v.SetDefault("TOKEN_TTL", "24h")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("LOCK_TTL", "10s")

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("config: bind %s: %w", k, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	cfg.CORSOrigins = splitOrigins(v.GetString("CORS_ORIGINS"))
	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the keys the server cannot start without.
func (c *Config) Validate() error {
	var errs []error
	if c.AccessToken == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN is required"))
	}
	switch c.StoreDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			errs = append(errs, errors.New("MONGO_URI is required when STORE_DRIVER=mongo"))
		}
	case DriverMemory:
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", DriverMongo, DriverMemory, c.StoreDriver))
	}
	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

func splitOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}
