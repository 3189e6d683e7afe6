package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/MrEthical07/authflow/internal/identity"
	"gopkg.in/yaml.v3"
)

type config struct {
	HTTP struct {
		Addr            string        `yaml:"addr"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
		TrustedProxies  []string      `yaml:"trusted_proxies"`
	} `yaml:"http"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Redis struct {
		Addrs    []string `yaml:"addrs"`
		Password string   `yaml:"password"`
		DB       int      `yaml:"db"`
	} `yaml:"redis"`
	JWT struct {
		Secret    string        `yaml:"secret"`
		Issuer    string        `yaml:"issuer"`
		AccessTTL time.Duration `yaml:"access_ttl"`
		// KeyID names Secret in issued tokens. RetiredSecrets keeps older
		// secrets verifying by kid until their tokens expire.
		KeyID          string            `yaml:"key_id"`
		RetiredSecrets map[string]string `yaml:"retired_secrets"`
	} `yaml:"jwt"`
	Argon2 struct {
		Memory      uint32 `yaml:"memory_kib"`
		Time        uint32 `yaml:"time"`
		Parallelism uint8  `yaml:"parallelism"`
	} `yaml:"argon2"`
	// SMTP.Host empty logs codes instead of mailing them.
	SMTP     identity.SMTPConfig `yaml:"smtp"`
	Identity identity.Settings   `yaml:"identity"`
}

func defaultConfig() config {
	var cfg config
	cfg.HTTP.Addr = ":8080"
	cfg.HTTP.ShutdownTimeout = 10 * time.Second
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.Redis.Addrs = []string{"localhost:6379"}
	cfg.JWT.Issuer = "identityd"
	cfg.JWT.AccessTTL = 30 * time.Minute
	cfg.Argon2.Memory = 64 * 1024
	cfg.Argon2.Time = 3
	cfg.Argon2.Parallelism = 2
	cfg.Identity = identity.DefaultSettings()
	return cfg
}

// loadConfig overlays the YAML file at path, if any, on the defaults. The
// JWT secret may come from IDENTITYD_JWT_SECRET.
func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return config{}, fmt.Errorf("parse config: %w", err)
		}
	}
	if secret := os.Getenv("IDENTITYD_JWT_SECRET"); secret != "" {
		cfg.JWT.Secret = secret
	}
	return cfg, cfg.validate()
}

func (c config) validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("http.addr is required")
	}
	if c.JWT.AccessTTL <= 0 {
		return errors.New("jwt.access_ttl must be > 0")
	}
	if c.JWT.Secret != "" && len(c.JWT.Secret) < 32 {
		return errors.New("jwt.secret must be at least 32 bytes")
	}
	if len(c.JWT.RetiredSecrets) > 0 && c.JWT.KeyID == "" {
		return errors.New("jwt.retired_secrets requires jwt.key_id")
	}
	for kid, secret := range c.JWT.RetiredSecrets {
		if kid == c.JWT.KeyID {
			return fmt.Errorf("jwt.retired_secrets: %q is the current key id", kid)
		}
		if len(secret) < 32 {
			return fmt.Errorf("jwt.retired_secrets: %q must be at least 32 bytes", kid)
		}
	}
	return c.Identity.Validate()
}
