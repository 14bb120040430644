package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/pr-poehali-dev/telegram-feedback-bot/core/database"
)

// TelegramConfig holds settings of the constructor bot and the Telegram API.
type TelegramConfig struct {
	// ConstructorToken is the token of the bot that drives the operator
	// through the management conversation.
	ConstructorToken string `yaml:"constructor_token" envconfig:"BOT_TOKEN"`
	// APIBaseURL overrides the Telegram Bot API host, mainly for tests.
	APIBaseURL string `yaml:"api_base_url" envconfig:"TELEGRAM_API_BASE_URL"`
}

// WebhookConfig specifies how inbound Telegram updates reach this service.
type WebhookConfig struct {
	// PublicURL is the externally reachable webhook endpoint; registered
	// bots receive it as `<public_url>?bot_token=<token>`.
	PublicURL string `yaml:"public_url" envconfig:"WEBHOOK_PUBLIC_URL"`
	// RegisterOnStart makes the service register the constructor bot's own
	// webhook during startup.
	RegisterOnStart bool `yaml:"register_on_start" envconfig:"WEBHOOK_REGISTER_ON_START"`
}

// HTTPConfig defines the listening socket of the HTTP server.
type HTTPConfig struct {
	Listen string `yaml:"listen" envconfig:"HTTP_LISTEN"`
	Port   int    `yaml:"port" envconfig:"HTTP_PORT"`
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format string `yaml:"format" envconfig:"LOG_FORMAT"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

// Config aggregates the service configuration.
type Config struct {
	Telegram TelegramConfig  `yaml:"telegram"`
	Webhook  WebhookConfig   `yaml:"webhook"`
	HTTP     HTTPConfig      `yaml:"http"`
	Logging  LoggingConfig   `yaml:"logging"`
	Database database.Config `yaml:"database"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process env: %w", err)
	}

	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	if strings.TrimSpace(cfg.Telegram.ConstructorToken) == "" {
		return fmt.Errorf("telegram.constructor_token is required")
	}
	if raw := strings.TrimSpace(cfg.Telegram.APIBaseURL); raw != "" {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("telegram.api_base_url must be an absolute URL")
		}
		cfg.Telegram.APIBaseURL = strings.TrimRight(raw, "/")
	}

	pub := strings.TrimSpace(cfg.Webhook.PublicURL)
	if pub == "" {
		return fmt.Errorf("webhook.public_url is required")
	}
	u, err := url.Parse(pub)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("webhook.public_url must be an absolute URL")
	}
	cfg.Webhook.PublicURL = pub

	if strings.TrimSpace(cfg.HTTP.Listen) == "" {
		cfg.HTTP.Listen = "0.0.0.0"
	}
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.Port < 0 {
		return fmt.Errorf("http.port must be > 0")
	}

	if cfg.Database.MaxConnections <= 0 {
		cfg.Database.MaxConnections = 10
	}
	if strings.TrimSpace(cfg.Database.SSLMode) == "" {
		cfg.Database.SSLMode = "disable"
	}

	return nil
}
