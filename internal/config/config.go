// Package config loads the service configuration from a YAML file with
// environment overrides for deployment-specific values.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/taskforge/platform/pkg/logger"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig         `yaml:"server"`
	Database DatabaseConfig       `yaml:"database"`
	Redis    RedisConfig          `yaml:"redis"`
	Auth     AuthConfig           `yaml:"auth"`
	Judge    JudgeConfig          `yaml:"judge"`
	Sweep    SweepConfig          `yaml:"sweep"`
	Logging  logger.LoggingConfig `yaml:"logging"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Addr returns the listen address.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// DatabaseConfig controls the Postgres connection. An empty DSN selects the
// in-memory store.
type DatabaseConfig struct {
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// RedisConfig controls the rate-limit bucket store. An empty address selects
// the in-process store.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// AuthConfig carries the token secret and the static user list.
type AuthConfig struct {
	Secret string       `yaml:"secret"`
	Users  []UserConfig `yaml:"users"`
}

// UserConfig is one configured principal.
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

// JudgeConfig points at the external code-execution service.
type JudgeConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
}

// SweepConfig controls the deadline sweep.
type SweepConfig struct {
	Schedule string `yaml:"schedule"`
}

// Default returns a configuration suitable for local development.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Sweep: SweepConfig{
			Schedule: "*/5 * * * *",
		},
		Logging: logger.LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads a YAML file over the defaults, then applies environment
// overrides. A missing file is not an error; the defaults stand.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// fall through to defaults
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	applyEnv(cfg)

	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("server port %d out of range", cfg.Server.Port)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("TASKFORGE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("TASKFORGE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TASKFORGE_AUTH_SECRET"); v != "" {
		cfg.Auth.Secret = v
	}
	if v := os.Getenv("TASKFORGE_JUDGE_ENDPOINT"); v != "" {
		cfg.Judge.Endpoint = v
	}
	if v := os.Getenv("TASKFORGE_JUDGE_API_KEY"); v != "" {
		cfg.Judge.APIKey = v
	}
	if v := os.Getenv("TASKFORGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
