package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/kodbank/kodbank/internal/models"
)

type Config struct {
	AppEnv   string
	LogLevel string

	ServerPort int

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	JWTSecret  []byte
	TokenTTL   time.Duration
	BcryptCost int

	KafkaBrokers []string
}

func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return &Config{
		AppEnv:   envDefault("APP_ENV", "development"),
		LogLevel: envDefault("LOG_LEVEL", "info"),

		ServerPort: envIntDefault("SERVER_PORT", 8080),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     os.Getenv("DB_PORT"),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),

		JWTSecret:  []byte(os.Getenv("JWT_SECRET")),
		TokenTTL:   time.Duration(envIntDefault("TOKEN_TTL_HOURS", 24)) * time.Hour,
		BcryptCost: envIntDefault("BCRYPT_COST", 10),

		KafkaBrokers: csv(os.Getenv("KAFKA_BROKERS")),
	}
}

func (c *Config) Production() bool { return c.AppEnv == "production" }

func MustNonEmptyBytes(value []byte, envName string) {
	if len(value) == 0 {
		log.Fatalf("missing required env %s", envName)
	}
}

// GormConfig is shared by InitDB and the test databases. TranslateError
// must stay on: the repo layer classifies constraint violations via
// gorm.ErrDuplicatedKey, which gorm only produces with translation enabled.
func GormConfig() *gorm.Config {
	return &gorm.Config{TranslateError: true}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DBUser, cfg.DBPassword, cfg.DBHost, cfg.DBPort, cfg.DBName,
	)
	db, err := gorm.Open(postgres.Open(dsn), GormConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.AutoMigrate(&models.User{}, &models.Session{}); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return db, nil
}

func csv(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
