package shared

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config struct {
	AppEnv      string
	HTTPAddr    string
	MetricsAddr string

	Store    string // mysql | memory
	MySQLDSN string

	RedisAddr string
	RedisDB   int
	RedisPass string

	// CRS provider
	Provider      string // mock | http
	CRSBaseURL    string
	CRSAPIKey     string
	CRSHotelID    string
	CRSTimeout    time.Duration
	CRSRPS        int
	RoomTypeCodes map[string]string
	RatePlanCodes map[string]string

	// confirmation loop
	RetryCeiling          int
	WebhookConsumesBudget bool
	SweepInterval         time.Duration
	SweepWorkers          int

	// rate limiter
	RateLimiter     string // memory | redis
	RateLimitMax    int
	RateLimitWindow time.Duration

	// pricing
	TaxThreshold float64
	TaxHighPct   float64
	TaxLowPct    float64

	OperatorToken string
}

func Load() Config {
	// Best effort; production sets real env vars.
	_ = godotenv.Load()

	c := Config{
		AppEnv:      env("APP_ENV", "prod"),
		HTTPAddr:    env("HTTP_ADDR", ":8080"),
		MetricsAddr: env("METRICS_ADDR", ":9100"),

		Store:    env("STORE", "mysql"),
		MySQLDSN: env("MYSQL_DSN", "root:root@tcp(localhost:3306)/roomsync?parseTime=true&charset=utf8mb4,utf8&loc=UTC"),

		RedisAddr: env("REDIS_ADDR", "localhost:6379"),
		RedisPass: env("REDIS_PASSWORD", ""),
		RedisDB:   atoi("REDIS_DB", 0),

		Provider:      env("CRS_PROVIDER", "mock"),
		CRSBaseURL:    env("CRS_BASE_URL", "https://crs.example.com/v1"),
		CRSAPIKey:     env("CRS_API_KEY", ""),
		CRSHotelID:    env("CRS_HOTEL_ID", ""),
		CRSTimeout:    time.Duration(atoi("CRS_TIMEOUT_SECONDS", 10)) * time.Second,
		CRSRPS:        atoi("CRS_RPS", 5),
		RoomTypeCodes: pairs("CRS_ROOM_TYPE_MAP"),
		RatePlanCodes: pairs("CRS_RATE_PLAN_MAP"),

		RetryCeiling:          atoi("RETRY_CEILING", 12),
		WebhookConsumesBudget: boolean("WEBHOOK_CONSUMES_BUDGET", false),
		SweepInterval:         time.Duration(atoi("SWEEP_INTERVAL_SECONDS", 300)) * time.Second,
		SweepWorkers:          atoi("SWEEP_WORKERS", 4),

		RateLimiter:     env("RATE_LIMITER", "memory"),
		RateLimitMax:    atoi("RATE_LIMIT_MAX", 5),
		RateLimitWindow: time.Duration(atoi("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,

		TaxThreshold: atof("TAX_THRESHOLD", 7500),
		TaxHighPct:   atof("TAX_HIGH_PCT", 18),
		TaxLowPct:    atof("TAX_LOW_PCT", 12),

		OperatorToken: env("OPERATOR_TOKEN", ""),
	}
	if c.Provider == "http" && c.CRSAPIKey == "" {
		log.Warn().Msg("CRS_API_KEY is empty")
	}
	if c.OperatorToken == "" {
		log.Warn().Msg("OPERATOR_TOKEN is empty; admin endpoints will refuse all callers")
	}
	return c
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoi(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func atof(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func boolean(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

// pairs parses "internal=external,internal2=external2" mapping tables.
func pairs(k string) map[string]string {
	out := map[string]string{}
	for _, p := range strings.Split(os.Getenv(k), ",") {
		kv := strings.SplitN(strings.TrimSpace(p), "=", 2)
		if len(kv) == 2 && kv[0] != "" && kv[1] != "" {
			out[kv[0]] = kv[1]
		}
	}
	return out
}
