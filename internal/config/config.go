// Package config loads service settings. Later sources override earlier
// ones: defaults, the YAML file, .env, then process environment. Flags are
// applied on top by main.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"possale/internal/validation"
)

type Config struct {
	Port        int    `yaml:"port"`
	DBPath      string `yaml:"db_path"`
	LogLevel    string `yaml:"log_level"`
	LogFormat   string `yaml:"log_format"`
	PhoneRegion string `yaml:"phone_region"`

	JWTSecret      string        `yaml:"jwt_secret"`
	StreamTokenTTL time.Duration `yaml:"stream_token_ttl"`

	// RedisAddr enables cross-instance batch locking when set.
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`

	UndoLimitMinutes  int `yaml:"undo_limit_minutes"`
	LowStockThreshold int `yaml:"low_stock_threshold"`

	SeedDemo      bool   `yaml:"seed_demo"`
	AdminPassword string `yaml:"admin_password"`
	// SecureCookies marks the session cookie Secure; set it behind TLS.
	SecureCookies bool `yaml:"secure_cookies"`
}

func Defaults() Config {
	return Config{
		Port:              9000,
		DBPath:            "pos.db",
		LogLevel:          "info",
		LogFormat:         "json",
		PhoneRegion:       "US",
		StreamTokenTTL:    time.Minute,
		UndoLimitMinutes:  5,
		LowStockThreshold: 2,
	}
}

// Load builds the config. path may be empty; a missing .env is ignored.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	str("POS_DB_PATH", &cfg.DBPath)
	str("POS_LOG_LEVEL", &cfg.LogLevel)
	str("POS_LOG_FORMAT", &cfg.LogFormat)
	str("POS_PHONE_REGION", &cfg.PhoneRegion)
	str("POS_JWT_SECRET", &cfg.JWTSecret)
	str("POS_ADMIN_PASSWORD", &cfg.AdminPassword)
	str("REDIS_ADDR", &cfg.RedisAddr)
	str("REDIS_PASSWORD", &cfg.RedisPassword)
	for key, dst := range map[string]*int{
		"POS_PORT":                &cfg.Port,
		"POS_UNDO_LIMIT_MINUTES":  &cfg.UndoLimitMinutes,
		"POS_LOW_STOCK_THRESHOLD": &cfg.LowStockThreshold,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	if v, ok := lookup("POS_STREAM_TOKEN_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("POS_STREAM_TOKEN_TTL: %w", err)
		}
		cfg.StreamTokenTTL = d
	}
	for key, dst := range map[string]*bool{
		"POS_SEED_DEMO":      &cfg.SeedDemo,
		"POS_SECURE_COOKIES": &cfg.SecureCookies,
	} {
		v, ok := lookup(key)
		if !ok || v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
	}
	return nil
}

// Validate checks the final config.
func (c Config) Validate() error {
	ve := &validation.ValidationErrors{}
	validation.ValidateIntRange(ve, "port", c.Port, 1, 65535)
	validation.RequireField(ve, "db_path", c.DBPath)
	validation.ValidateIntRange(ve, "undo_limit_minutes", c.UndoLimitMinutes,
		validation.MinUndoLimitMinutes, validation.MaxUndoLimitMinutes)
	if c.LowStockThreshold < 0 {
		ve.Add("low_stock_threshold", "must be non-negative")
	}
	if c.StreamTokenTTL <= 0 {
		ve.Add("stream_token_ttl", "must be positive")
	}
	if len(c.JWTSecret) < 16 {
		ve.Add("jwt_secret", "must be at least 16 characters")
	}
	return ve.Err()
}
