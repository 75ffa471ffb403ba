package config

import (
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	DBDSN         string `envconfig:"DB_DSN" required:"true"`
	Environment   string `envconfig:"ENV" default:"development"`
	HTTPAddr      string `envconfig:"HTTP_ADDR" default:":8080"`
	MigrationsDir string `envconfig:"MIGRATIONS_DIR" default:"migrations"`

	// DefaultTimezone применяется к учителям без зоны в профиле
	DefaultTimezone string `envconfig:"DEFAULT_TIMEZONE" default:"UTC"`
	JWTSecret       string `envconfig:"JWT_SECRET" required:"true"`

	RedisAddr        string        `envconfig:"REDIS_ADDR"`
	RedisPassword    string        `envconfig:"REDIS_PASSWORD"`
	RedisDB          int           `envconfig:"REDIS_DB" default:"0"`
	TimezoneCacheTTL time.Duration `envconfig:"TIMEZONE_CACHE_TTL" default:"10m"`

	RabbitURL       string `envconfig:"RABBIT_URL"`
	BookingExchange string `envconfig:"BOOKING_EXCHANGE" default:"booking.events"`

	TelegramToken  string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID int64  `envconfig:"TELEGRAM_CHAT_ID"`

	CompletionCron  string `envconfig:"COMPLETION_CRON" default:"*/5 * * * *"`
	CompletionBatch int    `envconfig:"COMPLETION_BATCH" default:"100"`
}

func Load() (*Config, error) {
	// Пытаемся загрузить .env файл (игнорируем ошибку, если файла нет)
	if err := godotenv.Load(".env"); err != nil {
		log.Println("⚠️  No .env file found, using environment variables")
	} else {
		log.Println("✅ Loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	return cfg, nil
}

func (c *Config) RedisEnabled() bool    { return c.RedisAddr != "" }
func (c *Config) RabbitEnabled() bool   { return c.RabbitURL != "" }
func (c *Config) TelegramEnabled() bool { return c.TelegramToken != "" && c.TelegramChatID != 0 }
