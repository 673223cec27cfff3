package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the monitoring pipeline service
type Config struct {
	// Database configuration
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Server configuration
	Port string

	// Scheduler configuration
	SchedulerInterval time.Duration
	SoftCheckTimeout  time.Duration
	HardCheckTimeout  time.Duration

	// AI analysis configuration
	AlertThreshold     float64
	MaxImagesPerCheck  int
	AIRequestTimeout   time.Duration
	AIMaxRetries       int
	AIInitialRetryWait time.Duration
	AIMaxRetryWait     time.Duration

	// Media download configuration
	MediaBasePath    string
	MaxMediaFileSize int64
	MediaTimeout     time.Duration

	// RabbitMQ configuration
	AMQPUrl          string
	CheckQueue       string
	QueueConcurrency int

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables
func Load() *Config {
	config := &Config{
		// Database defaults
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "server"),
		DBPassword: getEnv("DB_PASSWORD", "secret_app"),
		DBName:     getEnv("DB_NAME", "casemanager"),

		// Server defaults
		Port: getEnv("PORT", "8080"),

		// Scheduler defaults: poll every minute, 5/10 minute budgets
		SchedulerInterval: getDurationEnv("SCHEDULER_INTERVAL", time.Minute),
		SoftCheckTimeout:  getDurationEnv("SOFT_CHECK_TIMEOUT", 5*time.Minute),
		HardCheckTimeout:  getDurationEnv("HARD_CHECK_TIMEOUT", 10*time.Minute),

		// AI defaults
		AlertThreshold:     getFloatEnv("ALERT_THRESHOLD", 0.6),
		MaxImagesPerCheck:  getIntEnv("MAX_IMAGES_PER_REQUEST", 4),
		AIRequestTimeout:   getDurationEnv("AI_REQUEST_TIMEOUT", 60*time.Second),
		AIMaxRetries:       getIntEnv("AI_MAX_RETRIES", 3),
		AIInitialRetryWait: getDurationEnv("AI_INITIAL_RETRY_WAIT", 5*time.Second),
		AIMaxRetryWait:     getDurationEnv("AI_MAX_RETRY_WAIT", 60*time.Second),

		// Media defaults (100MB cap)
		MediaBasePath:    getEnv("MEDIA_BASE_PATH", "data/evidence"),
		MaxMediaFileSize: getInt64Env("MAX_MEDIA_FILE_SIZE", 100*1024*1024),
		MediaTimeout:     getDurationEnv("MEDIA_TIMEOUT", 30*time.Second),

		// RabbitMQ defaults
		AMQPUrl:          getEnv("AMQP_URL", ""),
		CheckQueue:       getEnv("CHECK_QUEUE", "monitoring-checks"),
		QueueConcurrency: getIntEnv("QUEUE_CONCURRENCY", 4),

		// Logging defaults
		LogLevel: getEnv("LOG_LEVEL", "info"),
	}

	return config
}

// DSN builds the MySQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv gets a duration environment variable or returns a default value
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getIntEnv gets an integer environment variable or returns a default value
func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getInt64Env gets an int64 environment variable or returns a default value
func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getFloatEnv gets a float environment variable or returns a default value
func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
