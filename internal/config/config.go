// Package config loads the exchange core's configuration from
// environment variables (spec §6), grounded on
// 0xtitan6-polymarket-mm/internal/config's use of github.com/spf13/viper
// for config loading. That teacher config reads a YAML file with env
// overrides; since spec §6 defines every setting as an environment
// variable and nothing else, this version uses viper purely in
// AutomaticEnv mode with no config file.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full set of settings spec §6 names.
type Config struct {
	DatabaseURL              string        `mapstructure:"database_url"`
	RedisURL                 string        `mapstructure:"redis_url"`
	SigningPrivateKey        string        `mapstructure:"signing_private_key"`
	Port                     int           `mapstructure:"port"`
	Host                     string        `mapstructure:"host"`
	LogLevel                 string        `mapstructure:"log_level"`
	OracleAddress            string        `mapstructure:"oracle_address"`
	MaxAuditEntriesPerMarket int64         `mapstructure:"max_audit_entries_per_market"`
	AdmissionLockTTL         time.Duration `mapstructure:"admission_lock_ttl_ms"`
}

// Load reads configuration from environment variables. DATABASE_URL,
// REDIS_URL and SIGNING_PRIVATE_KEY are required; ORACLE_ADDRESS is
// optional and left empty when unset; everything else has a default.
func Load() (*Config, error) {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("port", 8080)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("log_level", "info")
	v.SetDefault("max_audit_entries_per_market", int64(100_000))
	v.SetDefault("admission_lock_ttl_ms", int64(5000))

	bind := func(env string) {
		_ = v.BindEnv(fieldKey(env), env)
	}
	bind("DATABASE_URL")
	bind("REDIS_URL")
	bind("SIGNING_PRIVATE_KEY")
	bind("PORT")
	bind("HOST")
	bind("LOG_LEVEL")
	bind("ORACLE_ADDRESS")
	bind("MAX_AUDIT_ENTRIES_PER_MARKET")
	bind("ADMISSION_LOCK_TTL_MS")

	cfg := Config{
		DatabaseURL:              v.GetString(fieldKey("DATABASE_URL")),
		RedisURL:                 v.GetString(fieldKey("REDIS_URL")),
		SigningPrivateKey:        v.GetString(fieldKey("SIGNING_PRIVATE_KEY")),
		Port:                     v.GetInt(fieldKey("PORT")),
		Host:                     v.GetString(fieldKey("HOST")),
		LogLevel:                 v.GetString(fieldKey("LOG_LEVEL")),
		OracleAddress:            v.GetString(fieldKey("ORACLE_ADDRESS")),
		MaxAuditEntriesPerMarket: v.GetInt64(fieldKey("MAX_AUDIT_ENTRIES_PER_MARKET")),
		AdmissionLockTTL:         time.Duration(v.GetInt64(fieldKey("ADMISSION_LOCK_TTL_MS"))) * time.Millisecond,
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("config: DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("config: REDIS_URL is required")
	}
	if cfg.SigningPrivateKey == "" {
		return nil, fmt.Errorf("config: SIGNING_PRIVATE_KEY is required")
	}

	return &cfg, nil
}

// fieldKey lowercases an env var name to the viper key it was bound
// under, since BindEnv's first argument is viper's internal key and its
// second is the literal environment variable name.
func fieldKey(env string) string {
	out := make([]byte, len(env))
	for i := 0; i < len(env); i++ {
		c := env[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out[i] = c
	}
	return string(out)
}
