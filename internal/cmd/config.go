package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/openbid/auctiond/internal/auction"
)

// Config is the service configuration loaded from YAML. Secrets and
// connection settings come from the environment instead.
type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	Auction auction.Config `yaml:"auction"`

	NATS struct {
		Enabled bool   `yaml:"enabled"`
		URL     string `yaml:"url"`
	} `yaml:"nats"`

	Redis struct {
		Addr    string `yaml:"addr"`
		DB      int    `yaml:"db"`
		LockKey string `yaml:"lock_key"`
	} `yaml:"redis"`
}

func defaultConfig() *Config {
	cfg := &Config{Auction: auction.DefaultConfig()}
	cfg.Server.Port = "8080"
	cfg.NATS.URL = "nats://localhost:4222"
	cfg.Redis.Addr = "localhost:6379"
	cfg.Redis.LockKey = "auction:presentation_lock"
	return cfg
}

// loadConfig reads the YAML config file, falling back to defaults when the
// file does not exist.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}
