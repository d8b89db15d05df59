package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MinPageSize = 1
	MaxPageSize = 1000

	MinConcurrency = 1
	MaxConcurrency = 20
)

type Config struct {
	HubSpotToken   string
	HubSpotBaseURL string
	DatabaseURL    string

	LogLevel  string
	LogFormat string
	LogFile   string

	Concurrency      int
	PageSize         int
	DryRun           bool
	CompanyIDsFilter []int64

	RateLimitDelay    time.Duration
	MaxRequestsPerSec float64
	MaxRetries        int
	BreakerThreshold  uint32

	ServerPort  int
	RabbitMQURL string
}

func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		HubSpotToken:      getEnv("HUBSPOT_PRIVATE_APP_TOKEN", ""),
		HubSpotBaseURL:    getEnv("HUBSPOT_BASE_URL", "https://api.hubapi.com"),
		DatabaseURL:       getEnv("DATABASE_URL", buildDatabaseURL()),
		LogLevel:          getEnv("LOG_LEVEL", "INFO"),
		LogFormat:         getEnv("LOG_FORMAT", "TEXT"),
		LogFile:           getEnv("LOG_FILE", ""),
		Concurrency:       clamp("SYNC_CONCURRENCY", getEnvInt("SYNC_CONCURRENCY", 2), MinConcurrency, MaxConcurrency),
		PageSize:          clamp("PAGE_SIZE", getEnvInt("PAGE_SIZE", 100), MinPageSize, MaxPageSize),
		DryRun:            getEnvBool("DRY_RUN", false),
		CompanyIDsFilter:  ParseIDList(getEnv("COMPANY_IDS", "")),
		RateLimitDelay:    time.Duration(max(getEnvInt("RATE_LIMIT_DELAY", 125), 0)) * time.Millisecond,
		MaxRequestsPerSec: float64(max(getEnvInt("HUBSPOT_MAX_RPS", 10), 0)),
		MaxRetries:        max(getEnvInt("HUBSPOT_MAX_RETRIES", 3), 0),
		BreakerThreshold:  uint32(max(getEnvInt("BREAKER_FAILURE_THRESHOLD", 10), 1)),
		ServerPort:        getEnvInt("PORT", 3000),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
	}
}

// ParseIDList turns "1, 2,x,3" into [1 2 3]. Blank and non-numeric entries are dropped.
func ParseIDList(raw string) []int64 {
	var ids []int64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

func buildDatabaseURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(getEnv("DB_USER", "postgres"), getEnv("DB_PASSWORD", "")),
		Host:   fmt.Sprintf("%s:%d", getEnv("DB_HOST", "127.0.0.1"), getEnvInt("DB_PORT", 5432)),
		Path:   "/" + getEnv("DB_NAME", "cscart"),
	}
	return u.String()
}

func clamp(key string, value, lo, hi int) int {
	if value > hi {
		slog.Warn("Value exceeds safety limit. Clamping to maximum", "key", key, "requested", value, "limit", hi)
		return hi
	}
	if value < lo {
		return lo
	}
	return value
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}
