package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poormans/rategate/internal/domain"
)

type Config struct {
	PublicAddr       string        // proxy bind address, e.g. ":8080"
	AdminAddr        string        // admin plane bind address, loopback by default
	AdminAllowRemote bool          // permit non-loopback peers on the admin plane
	AdminKeys        []string      // X-API-Key values accepted on the admin plane
	Routes           []domain.Route
	LogDir           string        // logs directory
	DatabaseURL      string        // empty = in-memory; postgres://... = pgx; anything else = sqlite file

	StatsFlushEvery time.Duration // analytics counter flush cadence
	SweepEvery      time.Duration // stale window / queue sweep cadence
	ConfigCacheTTL  time.Duration // system_config read-through cache

	RecheckInterval    time.Duration
	RecheckTimeout     time.Duration
	RecheckConcurrency int
	RetryAttempts      int // upstream check retries before reporting down
	RetryBackoff       time.Duration

	SlackWebhook    string
	AlertCooldown   time.Duration
	AlertOnRecovery bool
}

// Storage drivers selected from DatabaseURL.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

func (c Config) DBDriver() string {
	switch {
	case c.DatabaseURL == "":
		return DriverMemory
	case strings.HasPrefix(c.DatabaseURL, "postgres://"),
		strings.HasPrefix(c.DatabaseURL, "postgresql://"):
		return DriverPostgres
	default:
		return DriverSQLite
	}
}

func FromEnv() Config {
	return Config{
		PublicAddr:       envStr("RATEGATE_PUBLIC_ADDR", ":8080"),
		AdminAddr:        envStr("RATEGATE_ADMIN_ADDR", "127.0.0.1:9090"),
		AdminAllowRemote: envBool("RATEGATE_ADMIN_ALLOW_REMOTE", false),
		AdminKeys:        envList("RATEGATE_ADMIN_KEYS"),
		Routes:           ParseRoutes(os.Getenv("RATEGATE_ROUTES")),
		LogDir:           envStr("RATEGATE_LOG_DIR", "logs"),
		DatabaseURL:      os.Getenv("RATEGATE_DB_DSN"),

		StatsFlushEvery: envMS("RATEGATE_STATS_FLUSH_MS", 5000),
		SweepEvery:      envMS("RATEGATE_SWEEP_INTERVAL_MS", 60000),
		ConfigCacheTTL:  envMS("RATEGATE_CONFIG_CACHE_MS", 30000),

		RecheckInterval:    envMS("RATEGATE_RECHECK_INTERVAL_MS", 30000),
		RecheckTimeout:     envMS("RATEGATE_RECHECK_TIMEOUT_MS", 10000),
		RecheckConcurrency: envInt("RATEGATE_RECHECK_CONCURRENCY", 4),
		RetryAttempts:      envInt("RATEGATE_CHECK_RETRIES", 2),
		RetryBackoff:       envMS("RATEGATE_CHECK_BACKOFF_MS", 300),

		SlackWebhook:    os.Getenv("RATEGATE_SLACK_WEBHOOK"),
		AlertCooldown:   envMS("RATEGATE_ALERT_COOLDOWN_MS", 300000),
		AlertOnRecovery: envBool("RATEGATE_ALERT_ON_RECOVERY", true),
	}
}

// ParseRoutes reads "prefix=upstream" pairs separated by commas, e.g.
// "/test/=http://localhost:9000,/api/=http://localhost:9001".
// Malformed pairs are skipped.
func ParseRoutes(raw string) []domain.Route {
	var routes []domain.Route
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		prefix, upstream, ok := strings.Cut(pair, "=")
		prefix = strings.TrimSpace(prefix)
		upstream = strings.TrimSpace(upstream)
		if !ok || !strings.HasPrefix(prefix, "/") || upstream == "" {
			continue
		}
		routes = append(routes, domain.Route{Prefix: prefix, Upstream: upstream})
	}
	return routes
}

func envStr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envMS(key string, defMS int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms >= 0 {
			return time.Duration(ms) * time.Millisecond
		}
	}
	return time.Duration(defMS) * time.Millisecond
}

func envBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
