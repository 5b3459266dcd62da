// Package config loads process configuration from a YAML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the process configuration for the auction client.
type Config struct {
	API struct {
		BaseURL string        `yaml:"base_url"`
		Token   string        `yaml:"token"`
		Timeout time.Duration `yaml:"timeout"`
	} `yaml:"api"`

	Push struct {
		// Transport selects the push transport: "websocket" or "nats".
		Transport      string        `yaml:"transport"`
		URL            string        `yaml:"url"`
		ReconnectDelay time.Duration `yaml:"reconnect_delay"`
		MaxRetries     int           `yaml:"max_retries"`
	} `yaml:"push"`

	Resume struct {
		// Path of the durable resume-intent file; empty for the default
		// location under the user config dir.
		Path   string        `yaml:"path"`
		MaxAge time.Duration `yaml:"max_age"`
	} `yaml:"resume"`

	History struct {
		PageSize int `yaml:"page_size"`
	} `yaml:"history"`

	Log struct {
		Level  string `yaml:"level"`
		Pretty bool   `yaml:"pretty"`
	} `yaml:"log"`
}

// Load reads the YAML file at path and applies environment overrides. A
// missing file is not an error; defaults plus environment apply.
func Load(path string) (*Config, error) {
	var config Config
	config.applyDefaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &config); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	config.applyEnv()
	if config.API.BaseURL == "" {
		return nil, fmt.Errorf("api.base_url is required")
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	c.API.Timeout = 30 * time.Second
	c.Push.Transport = "websocket"
	c.Push.ReconnectDelay = 3 * time.Second
	c.Push.MaxRetries = 3
	c.Resume.MaxAge = 30 * time.Minute
	c.History.PageSize = 20
	c.Log.Level = "info"
}

func (c *Config) applyEnv() {
	c.API.BaseURL = getEnv("LIVEAUCTION_API_URL", c.API.BaseURL)
	c.API.Token = getEnv("LIVEAUCTION_API_TOKEN", c.API.Token)
	c.Push.Transport = getEnv("LIVEAUCTION_PUSH_TRANSPORT", c.Push.Transport)
	c.Push.URL = getEnv("LIVEAUCTION_PUSH_URL", c.Push.URL)
	c.Push.ReconnectDelay = getEnvAsDuration("LIVEAUCTION_PUSH_RECONNECT_DELAY", c.Push.ReconnectDelay)
	c.Push.MaxRetries = getEnvAsInt("LIVEAUCTION_PUSH_MAX_RETRIES", c.Push.MaxRetries)
	c.Resume.Path = getEnv("LIVEAUCTION_RESUME_PATH", c.Resume.Path)
	c.Resume.MaxAge = getEnvAsDuration("LIVEAUCTION_RESUME_MAX_AGE", c.Resume.MaxAge)
	c.History.PageSize = getEnvAsInt("LIVEAUCTION_HISTORY_PAGE_SIZE", c.History.PageSize)
	c.Log.Level = getEnv("LIVEAUCTION_LOG_LEVEL", c.Log.Level)
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

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
