// internal/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Port           string
	DatabaseURL    string
	AMQPURL        string
	RedisURL       string
	JWTSecret      string
	LogLevel       string
	LogFile        string
	WorkerPoolSize int
	Gateway        GatewayConfig
	Payout         PayoutConfig
}

type GatewayConfig struct {
	BaseURL   string
	SecretKey string
	Timeout   time.Duration
	Currency  string
	// Networks maps a mobile money network name to the gateway bank code.
	Networks map[string]string
}

type PayoutConfig struct {
	MaxRetries     int
	ResumeInterval time.Duration
	ResumeGrace    time.Duration
}

var defaultNetworks = map[string]string{
	"MTN":        "MTN",
	"Vodafone":   "VOD",
	"AirtelTigo": "ATL",
}

// Load reads .env (if present), the environment and an optional CONFIG_FILE.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	v.SetDefault("PORT", "8080")
	v.SetDefault("PAYSTACK_BASE_URL", "https://api.paystack.co")
	v.SetDefault("GATEWAY_TIMEOUT", "30s")
	v.SetDefault("GATEWAY_CURRENCY", "GHS")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("WORKER_POOL_SIZE", 8)
	v.SetDefault("PAYOUT_MAX_RETRIES", 3)
	v.SetDefault("RESUME_INTERVAL", "1m")
	v.SetDefault("RESUME_GRACE", "5m")
	v.SetDefault("momo_networks", defaultNetworks)

	if file := v.GetString("CONFIG_FILE"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", file, err)
		}
	}

	cfg := &Config{
		Port:           v.GetString("PORT"),
		DatabaseURL:    databaseURL(v),
		AMQPURL:        v.GetString("AMQP_URL"),
		RedisURL:       v.GetString("REDIS_URL"),
		JWTSecret:      v.GetString("JWT_SECRET"),
		LogLevel:       v.GetString("LOG_LEVEL"),
		LogFile:        v.GetString("LOG_FILE"),
		WorkerPoolSize: v.GetInt("WORKER_POOL_SIZE"),
		Gateway: GatewayConfig{
			BaseURL:   strings.TrimRight(v.GetString("PAYSTACK_BASE_URL"), "/"),
			SecretKey: v.GetString("PAYSTACK_SECRET_KEY"),
			Timeout:   v.GetDuration("GATEWAY_TIMEOUT"),
			Currency:  v.GetString("GATEWAY_CURRENCY"),
			Networks:  v.GetStringMapString("momo_networks"),
		},
		Payout: PayoutConfig{
			MaxRetries:     v.GetInt("PAYOUT_MAX_RETRIES"),
			ResumeInterval: v.GetDuration("RESUME_INTERVAL"),
			ResumeGrace:    v.GetDuration("RESUME_GRACE"),
		},
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL or DB_* variables are required")
	}
	if c.Gateway.SecretKey == "" {
		return fmt.Errorf("PAYSTACK_SECRET_KEY is required")
	}
	if c.Gateway.Timeout <= 0 {
		return fmt.Errorf("GATEWAY_TIMEOUT must be positive")
	}
	if len(c.Gateway.Networks) == 0 {
		return fmt.Errorf("momo_networks table is empty")
	}
	return nil
}

// databaseURL prefers DATABASE_URL and falls back to the discrete DB_* variables.
func databaseURL(v *viper.Viper) string {
	if dsn := v.GetString("DATABASE_URL"); dsn != "" {
		return dsn
	}
	if v.GetString("DB_HOST") == "" {
		return ""
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		v.GetString("DB_USER"), v.GetString("DB_PASSWORD"),
		v.GetString("DB_HOST"), v.GetString("DB_PORT"), v.GetString("DB_NAME"),
	)
}
