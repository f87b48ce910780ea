// Package config loads service configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full service configuration.
type Config struct {
	Env           string `yaml:"env"`             // development | production
	Port          string `yaml:"port"`            // HTTP listen port
	PublicBaseURL string `yaml:"public_base_url"` // used for links in responses

	DatabaseURL string `yaml:"database_url"`
	DBMaxConns  int    `yaml:"db_max_conns"`
	DBTimeout   int    `yaml:"db_timeout_seconds"`

	RedisAddr     string `yaml:"redis_addr"` // optional; empty = single-process fan-out
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`

	// ActionDeadlineSeconds bounds a session's critical section.
	ActionDeadlineSeconds int `yaml:"action_deadline_seconds"`
}

// pooledPort is the connection-pooler port production DSNs must use.
const pooledPort = "6543"

// Load reads the YAML file at path (skipped when path is empty or missing)
// and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{
		Env:                   "development",
		Port:                  "8080",
		DBMaxConns:            10,
		DBTimeout:             10,
		ActionDeadlineSeconds: 10,
	}

	if path != "" {
		f, err := os.Open(path)
		if err == nil {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("open config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.Env == "production" {
		dsn, err := hardenDSN(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.Env = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("PUBLIC_BASE_URL"); v != "" {
		cfg.PublicBaseURL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("DB_MAX_CONNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBMaxConns = n
		}
	}
	if v := os.Getenv("DB_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.DBTimeout = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RedisDB = n
		}
	}
}

// hardenDSN forces the pooled port and TLS on production database URLs.
func hardenDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse DATABASE_URL: %w", err)
	}
	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("DATABASE_URL has no host")
	}
	u.Host = host + ":" + pooledPort

	q := u.Query()
	if q.Get("sslmode") == "" || q.Get("sslmode") == "disable" {
		q.Set("sslmode", "require")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// ActionDeadline returns the critical-section deadline as a duration.
func (c *Config) ActionDeadline() time.Duration {
	return time.Duration(c.ActionDeadlineSeconds) * time.Second
}

// DBRequestTimeout returns the per-request database timeout.
func (c *Config) DBRequestTimeout() time.Duration {
	return time.Duration(c.DBTimeout) * time.Second
}
