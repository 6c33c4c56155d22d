// Package config loads runtime settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Slot backends.
const (
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
	BackendMySQL  = "mysql"
)

const devSessionSecret = "dev_secret_change_me"

type Config struct {
	ServiceName string
	Environment string // development or production
	LogLevel    string

	HTTPPort        string
	GRPCPort        string
	ShutdownTimeout time.Duration

	SlotBackend string
	SQLitePath  string
	RedisAddr   string
	MySQLDSN    string

	WorkbookDir     string
	FileSyncEnabled bool

	AuthEmailDomain string
	AuthCode        string
	ResendCooldown  time.Duration
	SessionSecret   string
	SessionTTL      time.Duration

	GeminiAPIKey string
	GeminiModel  string

	KafkaBrokers []string
	KafkaTopic   string

	QueueSize   int
	WorkerCount int
	Retention   int
}

func (c Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load reads .env when present, then the environment. Missing variables
// take defaults; malformed ones are an error.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment only.
func FromEnv() (Config, error) {
	var errs []error
	p := parser{errs: &errs}

	cfg := Config{
		ServiceName: getEnv("SERVICE_NAME", "storeflow"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		GRPCPort:        getEnv("GRPC_PORT", "50051"),
		ShutdownTimeout: p.duration("SHUTDOWN_TIMEOUT", 5*time.Second),

		SlotBackend: strings.ToLower(getEnv("SLOT_BACKEND", BackendSQLite)),
		SQLitePath:  getEnv("SQLITE_PATH", "storeflow.db"),
		RedisAddr:   getEnv("REDIS_ADDR", "localhost:6379"),
		MySQLDSN:    getEnv("MYSQL_DSN", "root:root@tcp(localhost:3306)/storeflow?parseTime=true"),

		WorkbookDir:     getEnv("WORKBOOK_DIR", "."),
		FileSyncEnabled: p.boolean("FILE_SYNC_ENABLED", true),

		AuthEmailDomain: getEnv("AUTH_EMAIL_DOMAIN", "@cavitak.com"),
		AuthCode:        getEnv("AUTH_CODE", "123456"),
		ResendCooldown:  p.duration("AUTH_RESEND_COOLDOWN", 30*time.Second),
		SessionSecret:   os.Getenv("SESSION_SECRET"),
		SessionTTL:      p.duration("SESSION_TTL", 12*time.Hour),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", os.Getenv("API_KEY")),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),

		KafkaBrokers: splitList(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "stock-movements"),

		QueueSize:   p.integer("MOVEMENT_QUEUE_SIZE", 1000),
		WorkerCount: p.integer("MOVEMENT_WORKERS", 4),
		Retention:   p.integer("TRANSACTION_RETENTION", 0),
	}

	if cfg.SessionSecret == "" && cfg.IsDevelopment() {
		cfg.SessionSecret = devSessionSecret
	}

	errs = append(errs, cfg.validate()...)
	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func (c Config) validate() []error {
	var errs []error
	switch c.Environment {
	case "development", "production":
	default:
		errs = append(errs, fmt.Errorf("ENVIRONMENT must be development or production, got %q", c.Environment))
	}
	switch c.SlotBackend {
	case BackendSQLite, BackendRedis, BackendMySQL:
	default:
		errs = append(errs, fmt.Errorf("SLOT_BACKEND must be sqlite, redis or mysql, got %q", c.SlotBackend))
	}
	if c.SessionSecret == "" {
		errs = append(errs, errors.New("SESSION_SECRET is required outside development"))
	}
	if c.AuthCode == "" {
		errs = append(errs, errors.New("AUTH_CODE must not be empty"))
	}
	if !strings.HasPrefix(c.AuthEmailDomain, "@") {
		errs = append(errs, fmt.Errorf("AUTH_EMAIL_DOMAIN must start with @, got %q", c.AuthEmailDomain))
	}
	if c.QueueSize < 0 {
		errs = append(errs, errors.New("MOVEMENT_QUEUE_SIZE must not be negative"))
	}
	if c.WorkerCount < 1 {
		errs = append(errs, errors.New("MOVEMENT_WORKERS must be at least 1"))
	}
	if c.Retention < 0 {
		errs = append(errs, errors.New("TRANSACTION_RETENTION must not be negative"))
	}
	return errs
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func splitList(v string) []string {
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// parser collects conversion errors so every bad variable is reported at once.
type parser struct {
	errs *[]error
}

func (p parser) integer(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be number: %w", key, err))
		return def
	}
	return i
}

func (p parser) boolean(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be true or false: %w", key, err))
		return def
	}
	return b
}

func (p parser) duration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*p.errs = append(*p.errs, fmt.Errorf("%s must be a duration: %w", key, err))
		return def
	}
	return d
}
