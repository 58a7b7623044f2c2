package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	JWTSecret   string
	MongoURI    string
	DBName      string
	SkipAuth    bool
	Environment string
	AppId       string

	// Warehouse is the relational store the tabular reader queries.
	WarehouseDriver string // postgres, mysql or sqlite3
	WarehouseDSN    string

	PreviewRowLimit int
	ExportRowLimit  int
	DefaultPageSize int
	MaxPageSize     int

	SchedulerEnabled bool
	SchedulerTick    string // robfig spec, e.g. "@every 1m"
	SchedulerWorkers int
	SchedulerLease   time.Duration
	SchedulerBatch   int

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPFrom     string
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	return &Config{
		Port:        getEnv("PORT", "8080"),
		JWTSecret:   getEnv("JWT_SECRET", "secret"),
		MongoURI:    getEnv("MONGO_URI", "mongodb://localhost:27017"),
		DBName:      getEnv("DB_NAME", "go-reports"),
		SkipAuth:    getEnv("SKIP_AUTH", "false") == "true",
		Environment: getEnv("ENVIRONMENT", "development"),
		AppId:       getEnv("APP_ID", "go-reports"),

		WarehouseDriver: getEnv("WAREHOUSE_DRIVER", "postgres"),
		WarehouseDSN:    getEnv("WAREHOUSE_DSN", "host=localhost port=5432 user=reports dbname=warehouse sslmode=disable"),

		PreviewRowLimit: getEnvInt("PREVIEW_ROW_LIMIT", 50),
		ExportRowLimit:  getEnvInt("EXPORT_ROW_LIMIT", 100000),
		DefaultPageSize: getEnvInt("DEFAULT_PAGE_SIZE", 100),
		MaxPageSize:     getEnvInt("MAX_PAGE_SIZE", 1000),

		SchedulerEnabled: getEnv("SCHEDULER_ENABLED", "true") == "true",
		SchedulerTick:    getEnv("SCHEDULER_TICK", "@every 1m"),
		SchedulerWorkers: getEnvInt("SCHEDULER_WORKERS", 4),
		SchedulerLease:   getEnvDuration("SCHEDULER_LEASE", 15*time.Minute),
		SchedulerBatch:   getEnvInt("SCHEDULER_BATCH", 100),

		SMTPHost:     getEnv("SMTP_HOST", ""),
		SMTPPort:     getEnvInt("SMTP_PORT", 587),
		SMTPUser:     getEnv("SMTP_USER", ""),
		SMTPPassword: getEnv("SMTP_PASSWORD", ""),
		SMTPFrom:     getEnv("SMTP_FROM", "reports@localhost"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Invalid value %q for %s, using %d", value, key, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		log.Printf("Invalid value %q for %s, using %s", value, key, fallback)
		return fallback
	}
	return d
}
