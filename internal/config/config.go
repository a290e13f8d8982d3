package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds runtime settings. Values come from an optional YAML
// file (CONFIG_FILE) overridden by environment variables.
type Config struct {
	ListenAddr    string        `yaml:"listen_addr"`
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	JWTAudience   string        `yaml:"jwt_audience"`
	JWTExpiry     time.Duration `yaml:"jwt_expiry"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// Load builds a Config from the YAML file (if any) and environment.
func Load() *Config {
	cfg := &Config{
		ListenAddr:  ":8080",
		JWTSecret:   "your-secret-key-change-in-production",
		JWTIssuer:   "nexus-inventory-api",
		JWTAudience: "nexus-inventory-api",
		JWTExpiry:   24 * time.Hour,
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			// A bad config file should not silently fall back to defaults
			fmt.Fprintf(os.Stderr, "warning: failed to load %s: %v\n", path, err)
		}
	}

	cfg.ListenAddr = getEnv("LISTEN_ADDR", cfg.ListenAddr)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.JWTIssuer = getEnv("JWT_ISS", cfg.JWTIssuer)
	cfg.JWTAudience = getEnv("JWT_AUD", cfg.JWTAudience)

	if expiryStr := os.Getenv("JWT_EXPIRY"); expiryStr != "" {
		if expiry, err := time.ParseDuration(expiryStr); err == nil {
			cfg.JWTExpiry = expiry
		}
	}
	if sweepStr := os.Getenv("SWEEP_INTERVAL"); sweepStr != "" {
		if interval, err := time.ParseDuration(sweepStr); err == nil {
			cfg.SweepInterval = interval
		}
	}

	return cfg
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Validate checks the configuration for obviously broken values.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT secret is required")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 characters")
	}
	if c.JWTIssuer == "" {
		return errors.New("JWT issuer is required")
	}
	if c.JWTAudience == "" {
		return errors.New("JWT audience is required")
	}
	if c.JWTExpiry < time.Minute {
		return errors.New("JWT expiry must be at least one minute")
	}
	if c.JWTExpiry > 7*24*time.Hour {
		return errors.New("JWT expiry must not exceed seven days")
	}
	if c.SweepInterval < 0 {
		return errors.New("sweep interval cannot be negative")
	}
	return nil
}

// LoadAndValidate loads the configuration and validates it.
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
