package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                   string
	LogLevel              string
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	StoreID               string
	StoreName             string
	AuthSecret            string
	AccessTokenTTLMinutes int
	ManagerPIN            string
	ReturnWindowDays      int
	BNPLTermDays          int
	ReportCacheTTLSeconds int
	ReportRefreshSeconds  int
}

// Load reads configuration from the environment, optionally seeded by a
// .env file in the working directory. Environment variables win.
func Load() Config {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	_ = v.ReadInConfig()

	v.AutomaticEnv()
	setDefaults(v)

	return Config{
		Env:                   strings.ToLower(strings.TrimSpace(v.GetString("APP_ENV"))),
		LogLevel:              v.GetString("LOG_LEVEL"),
		Port:                  v.GetString("PORT"),
		AllowedOrigin:         v.GetString("ALLOWED_ORIGIN"),
		DatabaseURL:           strings.TrimSpace(v.GetString("DATABASE_URL")),
		RedisAddr:             strings.TrimSpace(v.GetString("REDIS_ADDR")),
		RedisPassword:         v.GetString("REDIS_PASSWORD"),
		RedisDB:               v.GetInt("REDIS_DB"),
		StoreID:               v.GetString("DEFAULT_STORE_ID"),
		StoreName:             v.GetString("STORE_NAME"),
		AuthSecret:            strings.TrimSpace(v.GetString("AUTH_SECRET")),
		AccessTokenTTLMinutes: positiveInt(v, "ACCESS_TOKEN_TTL_MINUTES", 480),
		ManagerPIN:            strings.TrimSpace(v.GetString("MANAGER_PIN")),
		ReturnWindowDays:      positiveInt(v, "RETURN_WINDOW_DAYS", 30),
		BNPLTermDays:          positiveInt(v, "BNPL_TERM_DAYS", 30),
		ReportCacheTTLSeconds: positiveInt(v, "REPORT_CACHE_TTL_SECONDS", 30),
		ReportRefreshSeconds:  nonNegativeInt(v, "REPORT_REFRESH_SECONDS", 30),
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8080")
	v.SetDefault("ALLOWED_ORIGIN", "http://127.0.0.1:3000")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("DEFAULT_STORE_ID", "main-store")
	v.SetDefault("STORE_NAME", "POS Back Office")
	v.SetDefault("ACCESS_TOKEN_TTL_MINUTES", 480)
	v.SetDefault("RETURN_WINDOW_DAYS", 30)
	v.SetDefault("BNPL_TERM_DAYS", 30)
	v.SetDefault("REPORT_CACHE_TTL_SECONDS", 30)
	v.SetDefault("REPORT_REFRESH_SECONDS", 30)
	// Secrets are intentionally left without defaults.
	v.SetDefault("AUTH_SECRET", "")
	v.SetDefault("MANAGER_PIN", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
}

func positiveInt(v *viper.Viper, key string, fallback int) int {
	n := v.GetInt(key)
	if n < 1 {
		return fallback
	}
	return n
}

func nonNegativeInt(v *viper.Viper, key string, fallback int) int {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback
	}
	n := v.GetInt(key)
	if n < 0 {
		return fallback
	}
	return n
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.AccessTokenTTLMinutes) * time.Minute
}

func (c Config) ReportCacheTTL() time.Duration {
	return time.Duration(c.ReportCacheTTLSeconds) * time.Second
}

// ReportRefreshInterval is zero when background refresh is disabled.
func (c Config) ReportRefreshInterval() time.Duration {
	return time.Duration(c.ReportRefreshSeconds) * time.Second
}
