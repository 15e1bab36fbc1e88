package config

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Port         string `yaml:"port"`
		ReadTimeout  string `yaml:"read_timeout"`
		WriteTimeout string `yaml:"write_timeout"`
	} `yaml:"server"`
	Logging struct {
		Mode string `yaml:"mode"`
	} `yaml:"logging"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTL      string `yaml:"ttl"`
		Channel  string `yaml:"channel"`
		Fanout   bool   `yaml:"fanout"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
		Issuer    string `yaml:"issuer"`
		TokenTTL  string `yaml:"token_ttl"`
	} `yaml:"auth"`
	Quiz struct {
		TTL string `yaml:"ttl"`
	} `yaml:"quiz"`
	Realtime struct {
		SendBuffer      int    `yaml:"send_buffer"`
		PongWait        string `yaml:"pong_wait"`
		RequireHostPush bool   `yaml:"require_host_push"`
	} `yaml:"realtime"`
	Sessions struct {
		PINAttempts  int `yaml:"pin_attempts"`
		JoinAttempts int `yaml:"join_attempts"`
	} `yaml:"sessions"`
}

// Load reads YAML config from path and applies environment overrides for secrets and endpoints.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, err
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := strings.TrimSpace(os.Getenv("JWT_SECRET")); v != "" {
		c.Auth.JWTSecret = v
	}
	if v := strings.TrimSpace(os.Getenv("POSTGRES_URL")); v != "" {
		c.Postgres.URL = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		c.Redis.Addr = v
	}
}

func (c *Config) applyDefaults() {
	if c.Redis.Channel == "" {
		c.Redis.Channel = "quiz:groups"
	}
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = 64
	}
	if c.Sessions.PINAttempts <= 0 {
		c.Sessions.PINAttempts = 10
	}
	if c.Sessions.JoinAttempts <= 0 {
		c.Sessions.JoinAttempts = 100
	}
	if c.Logging.Mode == "" {
		c.Logging.Mode = "development"
	}
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
