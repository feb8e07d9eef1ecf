package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Debug       bool   `envconfig:"DEBUG" default:"false"`
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`

	DatabaseURL   string `envconfig:"DATABASE_URL" required:"true"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY_ID"`
	S3SecretKey string `envconfig:"S3_SECRET_ACCESS_KEY"`
	S3Bucket    string `envconfig:"S3_BUCKET" default:"botstudio-documents"`
	S3Region    string `envconfig:"S3_REGION" default:"us-east-1"`

	OpenAIAPIKey    string `envconfig:"OPENAI_API_KEY"`
	OpenAIChatModel string `envconfig:"OPENAI_CHAT_MODEL" default:"gpt-4o-mini"`

	SentryDSN string `envconfig:"SENTRY_DSN"`

	WidgetSessionSecret string        `envconfig:"WIDGET_SESSION_SECRET"`
	WidgetSessionTTL    time.Duration `envconfig:"WIDGET_SESSION_TTL" default:"24h"`
	PublicChatRPS       float64       `envconfig:"PUBLIC_CHAT_RPS" default:"1"`
	PublicChatBurst     int           `envconfig:"PUBLIC_CHAT_BURST" default:"5"`

	WorkerConcurrency         int `envconfig:"WORKER_CONCURRENCY" default:"10"`
	NotificationRetentionDays int `envconfig:"NOTIFICATION_RETENTION_DAYS" default:"90"`

	// Bootstrap: create an initial workspace, its owner and an API key on startup
	InitWorkspaceName string `envconfig:"INIT_WORKSPACE_NAME"`
	InitOwnerID       string `envconfig:"INIT_OWNER_ID"`
	InitAPIKey        string `envconfig:"INIT_API_KEY"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("BOTSTUDIO", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if cfg.HasWidgetSessions() && len(cfg.WidgetSessionSecret) < 32 {
		return nil, fmt.Errorf("BOTSTUDIO_WIDGET_SESSION_SECRET must be at least 32 bytes")
	}

	return &cfg, nil
}

func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func (c *Config) HasS3() bool {
	return c.S3Endpoint != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}

func (c *Config) HasOpenAI() bool {
	return c.OpenAIAPIKey != ""
}

func (c *Config) HasRedis() bool {
	return c.RedisAddr != ""
}

func (c *Config) HasWidgetSessions() bool {
	return c.WidgetSessionSecret != ""
}

// NotificationRetention is zero when retention is disabled.
func (c *Config) NotificationRetention() time.Duration {
	if c.NotificationRetentionDays <= 0 {
		return 0
	}
	return time.Duration(c.NotificationRetentionDays) * 24 * time.Hour
}
