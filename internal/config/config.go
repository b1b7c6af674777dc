package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the server configuration, loaded from an optional YAML file
// with environment variable overrides on top.
type Config struct {
	ListenAddr  string        `yaml:"listen_addr"`
	RedisAddr   string        `yaml:"redis_addr"`
	MaxConns    int           `yaml:"max_conns"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	RateLimit RateLimit `yaml:"rate_limit"`
}

// RateLimit bounds WebSocket upgrades and room creation per client IP.
type RateLimit struct {
	Max    int           `yaml:"max"`
	Window time.Duration `yaml:"window"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		ListenAddr: ":8080",
		RateLimit:  RateLimit{Max: 20, Window: time.Minute},
	}
}

// Load reads the YAML file at path over the defaults, then applies env
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv() {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
}
