package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
)

const (
	StoreSQLite = "sqlite"
	StoreMongo  = "mongo"
)

type Config struct {
	Env           string
	LogLevel      string
	TelegramToken string
	AdminChat     int64 // administrative channel
	StudentChat   int64 // responder pool channel
	DefaultLocale string
	NodeID        int64

	StoreDriver string
	DBPath      string
	DBKey       string
	MongoURI    string
	MongoDB     string

	RedisURL  string
	StateTTL  time.Duration
	Retention time.Duration
}

func (c Config) IsProduction() bool { return c.Env == "production" }

// Load reads configuration from the environment after loading envFile.
// A missing env file is not an error.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}

	cfg := Config{
		Env:           getEnv("APP_ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		TelegramToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DefaultLocale: getEnv("DEFAULT_LOCALE", "ru"),
		StoreDriver:   getEnv("STORE_DRIVER", StoreSQLite),
		DBPath:        getEnv("DB_PATH", "./data/helpdesk.db"),
		DBKey:         os.Getenv("DB_ENCRYPTION_KEY"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDB:       getEnv("MONGO_DATABASE", "helpdesk"),
		RedisURL:      os.Getenv("REDIS_URL"),
	}

	var err error
	if cfg.AdminChat, err = getEnvInt64("ADMIN_CHAT_ID", 0); err != nil {
		return Config{}, err
	}
	if cfg.StudentChat, err = getEnvInt64("STUDENT_CHAT_ID", 0); err != nil {
		return Config{}, err
	}
	if cfg.NodeID, err = getEnvInt64("NODE_ID", 1); err != nil {
		return Config{}, err
	}
	if cfg.StateTTL, err = getEnvDuration("STATE_TTL", 24*time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.Retention, err = getEnvDuration("RETENTION", 0); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.TelegramToken, validation.Required),
		validation.Field(&c.AdminChat, validation.Required),
		validation.Field(&c.StudentChat, validation.Required),
		validation.Field(&c.Env, validation.In("development", "production")),
		validation.Field(&c.DefaultLocale, validation.Required),
		validation.Field(&c.NodeID, validation.Min(int64(0)), validation.Max(int64(1023))),
		validation.Field(&c.StoreDriver, validation.Required, validation.In(StoreSQLite, StoreMongo)),
		validation.Field(&c.DBPath, validation.When(c.StoreDriver == StoreSQLite, validation.Required)),
		validation.Field(&c.MongoURI, validation.When(c.StoreDriver == StoreMongo, validation.Required)),
		validation.Field(&c.MongoDB, validation.When(c.StoreDriver == StoreMongo, validation.Required)),
		validation.Field(&c.StateTTL, validation.Min(time.Duration(0))),
		validation.Field(&c.Retention, validation.Min(time.Duration(0))),
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) (int64, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return n, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}
