package config

import (
	"time"

	redisclient "github.com/saracrm/courier/internal/infra/redis"
	"github.com/saracrm/courier/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Queue     QueueConfig        `yaml:"queue"`
	RateLimit RateLimitConfig    `yaml:"rate_limit"`
	Webhooks  WebhookConfig      `yaml:"webhooks"`
	Messaging MessagingConfig    `yaml:"messaging"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
	Database  postgres.Config    `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// QueueConfig holds retry queue drain settings.
type QueueConfig struct {
	DrainInterval time.Duration `yaml:"drain_interval"` // 0 = 4m
	BatchSize     int           `yaml:"batch_size"`     // 0 = 10
}

// RateLimitConfig holds the outbound send ceiling.
type RateLimitConfig struct {
	Limit  int           `yaml:"limit"`  // 0 = 75
	Window time.Duration `yaml:"window"` // 0 = 1m
}

// WebhookConfig holds dispatcher settings.
type WebhookConfig struct {
	DeliveryRetention time.Duration `yaml:"delivery_retention"` // 0 = keep forever
}

// MessagingConfig holds provider settings for the outbound sender.
type MessagingConfig struct {
	APIURL   string `yaml:"api_url"`
	APIToken string `yaml:"api_token"`
	OpsPhone string `yaml:"ops_phone"` // receives permanent-failure alerts; empty = log only
}
