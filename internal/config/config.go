package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"

	SessionStoreDatabase = "database"
	SessionStoreRedis    = "redis"
)

type Config struct {
	AppEnv   string
	LogLevel string

	// Database
	DBDriver   string
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Presence persistence
	SessionStore        string
	RedisURL            string
	ActiveSessionWindow time.Duration
	PresenceWorkers     int
	PresenceQueueSize   int

	ServerPort      string
	ServerHost      string
	AllowedOrigin   string
	SendBufferSize  int
	CleanupInterval time.Duration
	ShutdownTimeout time.Duration

	// Observability
	TracingEnabled bool
	JaegerEndpoint string
}

func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:   getEnv("APP_ENV", "development"),
		LogLevel: getEnv("LOG_LEVEL", "info"),

		DBDriver:   getEnv("DB_DRIVER", DriverPostgres),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", "postgres"),
		DBName:     getEnv("DB_NAME", "listsync"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "listsync.db"),

		SessionStore:        getEnv("SESSION_STORE", SessionStoreDatabase),
		RedisURL:            getEnv("REDIS_URL", "redis://localhost:6379/0"),
		ActiveSessionWindow: getEnvDuration("ACTIVE_SESSION_WINDOW", 5*time.Minute),
		PresenceWorkers:     getEnvInt("PRESENCE_WORKERS", 4),
		PresenceQueueSize:   getEnvInt("PRESENCE_QUEUE_SIZE", 256),

		ServerPort:      getEnv("SERVER_PORT", "8080"),
		ServerHost:      getEnv("SERVER_HOST", "localhost"),
		AllowedOrigin:   getEnv("CORS_ALLOWED_ORIGIN", "*"),
		SendBufferSize:  getEnvInt("SEND_BUFFER_SIZE", 256),
		CleanupInterval: getEnvDuration("CLEANUP_INTERVAL", time.Hour),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		TracingEnabled: getEnvBool("TRACING_ENABLED", false),
		JaegerEndpoint: getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces"),
	}

	switch cfg.DBDriver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q (want %s or %s)", cfg.DBDriver, DriverPostgres, DriverSQLite)
	}

	switch cfg.SessionStore {
	case SessionStoreDatabase, SessionStoreRedis:
	default:
		return nil, fmt.Errorf("unsupported SESSION_STORE %q (want %s or %s)", cfg.SessionStore, SessionStoreDatabase, SessionStoreRedis)
	}

	return cfg, nil
}

// DatabaseURL returns the postgres DSN.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// ListenAddr returns host:port for the HTTP server.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%s", c.ServerHost, c.ServerPort)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil && n > 0 {
			return n
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
