// Package config loads server configuration from an optional YAML file and
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/stevemurr/recordstore/backend"
	"github.com/stevemurr/recordstore/logging"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Seed    SeedConfig    `yaml:"seed"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Host           string   `yaml:"host"`
	Port           int      `yaml:"port"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type BackendConfig struct {
	Driver       string      `yaml:"driver"`
	DataDir      string      `yaml:"data_dir"`
	AtomicWrites bool        `yaml:"atomic_writes"`
	Redis        RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type SeedConfig struct {
	Path string `yaml:"path"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when no file or environment
// overrides are given.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           3000,
			AllowedOrigins: []string{"*"},
		},
		Backend: BackendConfig{
			Driver:       "redis",
			DataDir:      "./data",
			AtomicWrites: true,
			Redis:        RedisConfig{Addr: "localhost:6379"},
		},
		Seed: SeedConfig{Path: "data/tecnomega.json"},
		Log:  LogConfig{Level: "info"},
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides read through getenv, then validates the result.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("HOST", &c.Server.Host)
	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	if v := getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = strings.Split(v, ",")
	}
	str("STORE_BACKEND", &c.Backend.Driver)
	str("DATA_DIR", &c.Backend.DataDir)
	str("REDIS_ADDR", &c.Backend.Redis.Addr)
	str("REDIS_PASSWORD", &c.Backend.Redis.Password)
	if err := num("REDIS_DB", &c.Backend.Redis.DB); err != nil {
		return err
	}
	if v := getenv("ATOMIC_WRITES"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ATOMIC_WRITES: %w", err)
		}
		c.Backend.AtomicWrites = b
	}
	str("SEED_PATH", &c.Seed.Path)
	str("LOG_LEVEL", &c.Log.Level)
	return nil
}

// Validate checks the configuration for values that cannot work.
func (c Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Server.Port)
	}
	known := false
	for _, d := range backend.Drivers {
		if d == c.Backend.Driver {
			known = true
			break
		}
	}
	if !known {
		return fmt.Errorf("unknown backend driver %q: must be one of %v", c.Backend.Driver, backend.Drivers)
	}
	if c.Backend.Driver == "redis" && c.Backend.Redis.Addr == "" {
		return fmt.Errorf("backend.redis.addr is required for the redis driver")
	}
	return nil
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// BackendOptions converts the backend section for backend.New.
func (c Config) BackendOptions() backend.Options {
	return backend.Options{
		Driver:  c.Backend.Driver,
		DataDir: c.Backend.DataDir,
		Redis: backend.RedisOptions{
			Addr:     c.Backend.Redis.Addr,
			Password: c.Backend.Redis.Password,
			DB:       c.Backend.Redis.DB,
		},
	}
}

// LogOptions converts the log section for logging.New.
func (c Config) LogOptions() logging.Options {
	return logging.Options{Level: c.Log.Level, Development: c.Log.Development}
}
