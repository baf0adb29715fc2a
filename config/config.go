package config

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	Environment string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// Cache TTLs. Off-market quotes are cached at CacheTTLRealtime * 10.
	CacheTTLRealtime   time.Duration
	CacheTTLHistorical time.Duration
	CacheTTLSearch     time.Duration

	// Realtime polling
	PollInterval     time.Duration
	PollErrorBackoff time.Duration

	// Market session window, in the exchange's local time
	MarketTimezone  string
	MarketOpenHour  int
	MarketOpenMin   int
	MarketCloseHour int
	MarketCloseMin  int
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "stockapp_db"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		CacheTTLRealtime:   time.Duration(getEnvInt("CACHE_TTL_REALTIME", 30)) * time.Second,
		CacheTTLHistorical: time.Duration(getEnvInt("CACHE_TTL_HISTORICAL", 3600)) * time.Second,
		CacheTTLSearch:     time.Duration(getEnvInt("CACHE_TTL_SEARCH", 600)) * time.Second,

		PollInterval:     time.Duration(getEnvInt("POLL_INTERVAL_SEC", 5)) * time.Second,
		PollErrorBackoff: time.Duration(getEnvInt("POLL_ERROR_BACKOFF_SEC", 10)) * time.Second,

		// NSE/BSE session: 9:15 - 15:30 IST, Monday to Friday
		MarketTimezone:  getEnv("MARKET_TIMEZONE", "Asia/Kolkata"),
		MarketOpenHour:  getEnvInt("MARKET_OPEN_HOUR", 9),
		MarketOpenMin:   getEnvInt("MARKET_OPEN_MIN", 15),
		MarketCloseHour: getEnvInt("MARKET_CLOSE_HOUR", 15),
		MarketCloseMin:  getEnvInt("MARKET_CLOSE_MIN", 30),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	// Log connection info (masked for security)
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=prefer TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		log.Printf("Failed to get underlying database: %v", err)
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		log.Printf("Database ping failed: %v", err)
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// InitRedis connects the Redis client. A connection failure is not fatal:
// the caller may run without a cache, in which case every lookup is a miss.
func InitRedis(ctx context.Context) (*redis.Client, error) {
	addr := AppConfig.RedisHost + ":" + AppConfig.RedisPort
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: AppConfig.RedisPassword,
		DB:       AppConfig.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed for %s: %w", maskHost(addr), err)
	}

	log.Printf("Redis connection verified: %s", maskHost(addr))
	return client, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}
