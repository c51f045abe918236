// Package config provides application configuration loaded from the
// environment and an optional .env file.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string        `mapstructure:"PORT"`
	ServerReadTimeout  time.Duration `mapstructure:"SERVER_READ_TIMEOUT"`
	ServerWriteTimeout time.Duration `mapstructure:"SERVER_WRITE_TIMEOUT"`

	// Storage
	DatabasePath string `mapstructure:"DATABASE_PATH"`

	// Queue settings
	QueueDriver       string `mapstructure:"QUEUE_DRIVER"` // "nats" or "local"
	NATSURL           string `mapstructure:"NATS_URL"`
	NATSToken         string `mapstructure:"NATS_TOKEN"`
	WorkerConcurrency int    `mapstructure:"WORKER_CONCURRENCY"`

	// JWT settings
	JWTSecret string `mapstructure:"JWT_SECRET"`

	// AI settings
	AIProvider       string        `mapstructure:"AI_PROVIDER"` // "openai", "anthropic" or "mock"
	OpenAIAPIKey     string        `mapstructure:"OPENAI_API_KEY"`
	OpenAIBaseURL    string        `mapstructure:"OPENAI_BASE_URL"`
	AnthropicAPIKey  string        `mapstructure:"ANTHROPIC_API_KEY"`
	DefaultModel     string        `mapstructure:"AI_DEFAULT_MODEL"`
	Temperature      float64       `mapstructure:"AI_TEMPERATURE"`
	MaxOutputTokens  int           `mapstructure:"AI_MAX_TOKENS"`
	RequestTimeout   time.Duration `mapstructure:"AI_REQUEST_TIMEOUT"`
	HistoryWindow    int           `mapstructure:"AI_HISTORY_WINDOW"`
	PollWindow       int           `mapstructure:"AI_POLL_WINDOW"`
	CacheTTL         time.Duration `mapstructure:"AI_CACHE_TTL"`
	JobMaxAttempts   int           `mapstructure:"AI_JOB_MAX_ATTEMPTS"`
	JobRetryBackoff  time.Duration `mapstructure:"AI_JOB_RETRY_BACKOFF"`
	AIRateLimit      int           `mapstructure:"AI_RATE_LIMIT"`
	AIRateWindow     time.Duration `mapstructure:"AI_RATE_WINDOW"`
	GlobalRateLimit  int           `mapstructure:"RATE_LIMIT_REQUESTS"`
	GlobalRateWindow time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	// Logging
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Tracing
	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingEndpoint string `mapstructure:"TRACING_ENDPOINT"`
}

// Load reads configuration from environment variables, with an optional
// .env file for local development.
func Load() (*Config, error) {
	viper.SetDefault("PORT", "8080")
	viper.SetDefault("SERVER_READ_TIMEOUT", 30*time.Second)
	viper.SetDefault("SERVER_WRITE_TIMEOUT", 120*time.Second)

	viper.SetDefault("DATABASE_PATH", "chat.db")

	viper.SetDefault("QUEUE_DRIVER", "local")
	viper.SetDefault("NATS_URL", "nats://localhost:4222")
	viper.SetDefault("NATS_TOKEN", "")
	viper.SetDefault("WORKER_CONCURRENCY", 4)

	viper.SetDefault("JWT_SECRET", "development-secret-change-in-production")

	viper.SetDefault("AI_PROVIDER", "openai")
	viper.SetDefault("OPENAI_API_KEY", "")
	viper.SetDefault("OPENAI_BASE_URL", "")
	viper.SetDefault("ANTHROPIC_API_KEY", "")
	viper.SetDefault("AI_DEFAULT_MODEL", "gpt-4o-mini")
	viper.SetDefault("AI_TEMPERATURE", 0.7)
	viper.SetDefault("AI_MAX_TOKENS", 1500)
	viper.SetDefault("AI_REQUEST_TIMEOUT", 60*time.Second)
	viper.SetDefault("AI_HISTORY_WINDOW", 10)
	viper.SetDefault("AI_POLL_WINDOW", 20)
	viper.SetDefault("AI_CACHE_TTL", 24*time.Hour)
	viper.SetDefault("AI_JOB_MAX_ATTEMPTS", 3)
	viper.SetDefault("AI_JOB_RETRY_BACKOFF", 5*time.Second)
	viper.SetDefault("AI_RATE_LIMIT", 20)
	viper.SetDefault("AI_RATE_WINDOW", time.Minute)
	viper.SetDefault("RATE_LIMIT_REQUESTS", 60)
	viper.SetDefault("RATE_LIMIT_WINDOW", time.Minute)

	viper.SetDefault("LOG_LEVEL", "info")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_ENDPOINT", "localhost:4318")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
