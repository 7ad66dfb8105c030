package config

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds the relay configuration.
type Config struct {
	Port             string        `mapstructure:"PORT" validate:"required,numeric"`
	LogLevel         string        `mapstructure:"LOG_LEVEL" validate:"required"`
	DatabaseDriver   string        `mapstructure:"DATABASE_DRIVER" validate:"oneof=postgres sqlite"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL" validate:"required"`
	PresenceBackend  string        `mapstructure:"PRESENCE_BACKEND" validate:"oneof=database redis"`
	Broker           string        `mapstructure:"BROKER" validate:"oneof=local redis"`
	RedisAddr        string        `mapstructure:"REDIS_ADDR" validate:"required_if=Broker redis,required_if=PresenceBackend redis"`
	RedisPassword    string        `mapstructure:"REDIS_PASSWORD"`
	RedisDB          int           `mapstructure:"REDIS_DB" validate:"gte=0"`
	RateLimit        int           `mapstructure:"RATE_LIMIT" validate:"gte=0"`
	RateWindow       time.Duration `mapstructure:"RATE_WINDOW" validate:"gt=0"`
	RateStrategy     string        `mapstructure:"RATE_STRATEGY" validate:"oneof=fixed_window token_bucket"`
	SubscriberBuffer int           `mapstructure:"SUBSCRIBER_BUFFER" validate:"gte=1"`
	ArchiveWorkers   int           `mapstructure:"ARCHIVE_WORKERS" validate:"gte=0"`
	ArchiveQueueSize int           `mapstructure:"ARCHIVE_QUEUE_SIZE" validate:"gte=1"`
}

// UsesRedis reports whether any relay component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.RedisAddr != ""
}

// RateLimited reports whether message submission is rate limited.
// Limiting needs Redis; without it the limit is ignored.
func (c *Config) RateLimited() bool {
	return c.RateLimit > 0 && c.UsesRedis()
}

// ClientConfig holds the chat client configuration.
type ClientConfig struct {
	BackendURL     string        `mapstructure:"CHAT_BACKEND_URL" validate:"required,url"`
	PubSubURL      string        `mapstructure:"CHAT_PUBSUB_URL" validate:"omitempty,url"`
	Channel        string        `mapstructure:"CHAT_CHANNEL" validate:"required"`
	SettleDelay    time.Duration `mapstructure:"CHAT_SETTLE_DELAY" validate:"gt=0"`
	RequestTimeout time.Duration `mapstructure:"CHAT_REQUEST_TIMEOUT" validate:"gte=0"`
	LogLevel       string        `mapstructure:"LOG_LEVEL" validate:"required"`
	LogFile        string        `mapstructure:"LOG_FILE" validate:"required"`
}

// PubSubBaseURL is where the client subscribes; it defaults to the relay.
func (c *ClientConfig) PubSubBaseURL() string {
	if c.PubSubURL != "" {
		return c.PubSubURL
	}
	return c.BackendURL
}

var validate = validator.New()

// Load reads the relay configuration from a .env file in dir and the environment.
func Load(dir string) (*Config, error) {
	v := newViper(dir, map[string]any{
		"PORT":               "8080",
		"LOG_LEVEL":          "INFO",
		"DATABASE_DRIVER":    "sqlite",
		"DATABASE_URL":       "chat.db",
		"PRESENCE_BACKEND":   "database",
		"BROKER":             "local",
		"REDIS_ADDR":         "",
		"REDIS_PASSWORD":     "",
		"REDIS_DB":           0,
		"RATE_LIMIT":         20,
		"RATE_WINDOW":        "10s",
		"RATE_STRATEGY":      "fixed_window",
		"SUBSCRIBER_BUFFER":  256,
		"ARCHIVE_WORKERS":    4,
		"ARCHIVE_QUEUE_SIZE": 1000,
	})

	var cfg Config
	if err := unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads the chat client configuration from a .env file in dir and the environment.
func LoadClient(dir string) (*ClientConfig, error) {
	v := newViper(dir, map[string]any{
		"CHAT_BACKEND_URL":     "http://localhost:8080",
		"CHAT_PUBSUB_URL":      "",
		"CHAT_CHANNEL":         "chat",
		"CHAT_SETTLE_DELAY":    "100ms",
		"CHAT_REQUEST_TIMEOUT": "0s",
		"LOG_LEVEL":            "INFO",
		"LOG_FILE":             "chat.log",
	})

	var cfg ClientConfig
	if err := unmarshal(v, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newViper(dir string, defaults map[string]any) *viper.Viper {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName(".env")
	v.SetConfigType("env")
	// Every key needs a default so AutomaticEnv can see it.
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			log.Println("Warning: .env file not found, loading from environment variables")
		} else {
			log.Printf("Warning: ignoring unreadable .env file: %v", err)
		}
	}
	return v
}

func unmarshal(v *viper.Viper, out any) error {
	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("unable to decode config: %w", err)
	}
	if err := validate.Struct(out); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
