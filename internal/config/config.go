// Package config provides environment-variable-first configuration
// loading with optional YAML file fallback for the mail worker.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// defaultMaxMessageSize is 25 MB in bytes.
const defaultMaxMessageSize = 26214400

// Config holds the complete application configuration. It is resolved
// once before the worker starts and immutable afterwards.
type Config struct {
	Queue     QueueConfig     `yaml:"queue"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Worker    WorkerConfig    `yaml:"worker"`
	Directory DirectoryConfig `yaml:"directory"`
	Admin     AdminConfig     `yaml:"admin"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// QueueConfig holds queue store settings.
type QueueConfig struct {
	Addr           string `yaml:"addr"`
	Password       string `yaml:"password"`
	DB             int    `yaml:"db"`
	Name           string `yaml:"name"`
	DLQName        string `yaml:"dlq_name"`
	DequeueTimeout int    `yaml:"dequeue_timeout_seconds"`
}

// DeliveryConfig holds downstream webhook settings.
type DeliveryConfig struct {
	WebhookURL string `yaml:"webhook_url"`
	APIKey     string `yaml:"api_key"`
	MaxRetries int    `yaml:"max_retries"`
	BaseDelay  int    `yaml:"base_delay_seconds"`
	Timeout    int    `yaml:"timeout_seconds"`
}

// WorkerConfig holds processing settings.
type WorkerConfig struct {
	MaxMessageSize    int64 `yaml:"max_message_size"`
	IncludeAttachment bool  `yaml:"include_attachment_content"`
	ForwardBounces    bool  `yaml:"forward_bounces"`
	StrictBounce      bool  `yaml:"strict_bounce"`
	ProcessTimeout    int   `yaml:"process_timeout_seconds"`
	ReportInterval    int   `yaml:"report_interval_seconds"`
}

// DirectoryConfig holds the local-domain directory settings. An empty
// URL disables the directory cache.
type DirectoryConfig struct {
	URL     string `yaml:"url"`
	Refresh int    `yaml:"refresh_seconds"`
}

// AdminConfig holds the admin HTTP server settings. An empty listen
// address disables the server.
type AdminConfig struct {
	Listen string `yaml:"listen"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// Load loads configuration from environment variables with sensible
// defaults. Environment variables always take precedence.
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnvVars()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file as the base layer,
// then overrides with environment variables.
func LoadFromFile(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.applyEnvVars()
	return cfg, nil
}

// Validate checks the settings the worker cannot run without. A failure
// here is fatal; the worker never enters its running state.
func (c *Config) Validate() error {
	if c.Delivery.WebhookURL == "" {
		return errors.New("delivery webhook URL is required (WEBHOOK_URL)")
	}
	if c.Delivery.APIKey == "" {
		return errors.New("delivery API key is required (WEBHOOK_API_KEY)")
	}
	return nil
}

// DequeueTimeout returns the blocking dequeue timeout as a duration.
func (c *Config) DequeueTimeout() time.Duration {
	return time.Duration(c.Queue.DequeueTimeout) * time.Second
}

// ProcessTimeout returns the per-message processing ceiling, zero when
// disabled.
func (c *Config) ProcessTimeout() time.Duration {
	return time.Duration(c.Worker.ProcessTimeout) * time.Second
}

// ReportInterval returns the periodic counter-report interval.
func (c *Config) ReportInterval() time.Duration {
	return time.Duration(c.Worker.ReportInterval) * time.Second
}

// applyDefaults sets sensible default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.Queue.Addr = "localhost:6379"
	c.Queue.Name = "elektrine:inbound"
	c.Queue.DLQName = "elektrine:dead_letter"
	c.Queue.DequeueTimeout = 5
	c.Delivery.MaxRetries = 3
	c.Delivery.BaseDelay = 1
	c.Delivery.Timeout = 30
	c.Worker.MaxMessageSize = defaultMaxMessageSize
	c.Worker.ProcessTimeout = 120
	c.Worker.ReportInterval = 60
	c.Directory.Refresh = 300
	c.Logging.Level = "info"
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() {
	if v := os.Getenv("QUEUE_ADDR"); v != "" {
		c.Queue.Addr = v
	}
	if v := os.Getenv("QUEUE_PASSWORD"); v != "" {
		c.Queue.Password = v
	}
	if v := os.Getenv("QUEUE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			c.Queue.DB = db
		}
	}
	if v := os.Getenv("QUEUE_NAME"); v != "" {
		c.Queue.Name = v
	}
	if v := os.Getenv("QUEUE_DLQ_NAME"); v != "" {
		c.Queue.DLQName = v
	}
	if v := os.Getenv("QUEUE_DEQUEUE_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Queue.DequeueTimeout = secs
		}
	}

	if v := os.Getenv("WEBHOOK_URL"); v != "" {
		c.Delivery.WebhookURL = v
	}
	if v := os.Getenv("WEBHOOK_API_KEY"); v != "" {
		c.Delivery.APIKey = v
	}
	if v := os.Getenv("DELIVERY_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Delivery.MaxRetries = n
		}
	}
	if v := os.Getenv("DELIVERY_BASE_DELAY"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Delivery.BaseDelay = secs
		}
	}
	if v := os.Getenv("DELIVERY_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Delivery.Timeout = secs
		}
	}

	if v := os.Getenv("MAX_MESSAGE_SIZE"); v != "" {
		if size, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Worker.MaxMessageSize = size
		}
	}
	if v := os.Getenv("INCLUDE_ATTACHMENT_CONTENT"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Worker.IncludeAttachment = b
		}
	}
	if v := os.Getenv("FORWARD_BOUNCES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Worker.ForwardBounces = b
		}
	}
	if v := os.Getenv("STRICT_BOUNCE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Worker.StrictBounce = b
		}
	}
	if v := os.Getenv("PROCESS_TIMEOUT"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Worker.ProcessTimeout = secs
		}
	}
	if v := os.Getenv("REPORT_INTERVAL"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Worker.ReportInterval = secs
		}
	}

	if v := os.Getenv("DIRECTORY_URL"); v != "" {
		c.Directory.URL = v
	}
	if v := os.Getenv("DIRECTORY_REFRESH"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil {
			c.Directory.Refresh = secs
		}
	}

	if v := os.Getenv("ADMIN_LISTEN"); v != "" {
		c.Admin.Listen = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
}
