package config

import (
	"testing"
	"time"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	if cfg.PublicAddr != ":8080" {
		t.Fatalf("want public :8080, got %q", cfg.PublicAddr)
	}
	if cfg.AdminAddr != "127.0.0.1:9090" {
		t.Fatalf("want admin on loopback, got %q", cfg.AdminAddr)
	}
	if cfg.AdminAllowRemote {
		t.Fatal("remote admin must be off by default")
	}
	if cfg.StatsFlushEvery != 5*time.Second {
		t.Fatalf("want 5s flush, got %v", cfg.StatsFlushEvery)
	}
	if cfg.SweepEvery != time.Minute {
		t.Fatalf("want 60s sweep, got %v", cfg.SweepEvery)
	}
	if cfg.DBDriver() != DriverMemory {
		t.Fatalf("want memory driver without DSN, got %q", cfg.DBDriver())
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("RATEGATE_PUBLIC_ADDR", ":8888")
	t.Setenv("RATEGATE_ADMIN_ALLOW_REMOTE", "true")
	t.Setenv("RATEGATE_ADMIN_KEYS", "k1, k2,")
	t.Setenv("RATEGATE_STATS_FLUSH_MS", "250")
	t.Setenv("RATEGATE_CHECK_RETRIES", "5")

	cfg := FromEnv()
	if cfg.PublicAddr != ":8888" {
		t.Fatalf("want :8888, got %q", cfg.PublicAddr)
	}
	if !cfg.AdminAllowRemote {
		t.Fatal("want remote admin enabled")
	}
	if len(cfg.AdminKeys) != 2 || cfg.AdminKeys[0] != "k1" || cfg.AdminKeys[1] != "k2" {
		t.Fatalf("unexpected admin keys: %v", cfg.AdminKeys)
	}
	if cfg.StatsFlushEvery != 250*time.Millisecond {
		t.Fatalf("want 250ms flush, got %v", cfg.StatsFlushEvery)
	}
	if cfg.RetryAttempts != 5 {
		t.Fatalf("want 5 retries, got %d", cfg.RetryAttempts)
	}
}

func TestDBDriver_FromDSN(t *testing.T) {
	cases := []struct {
		dsn  string
		want string
	}{
		{"", DriverMemory},
		{"postgres://u:p@localhost:5432/rategate", DriverPostgres},
		{"postgresql://u:p@localhost:5432/rategate", DriverPostgres},
		{"file:rategate.db", DriverSQLite},
		{"rategate.db", DriverSQLite},
	}
	for _, c := range cases {
		cfg := Config{DatabaseURL: c.dsn}
		if got := cfg.DBDriver(); got != c.want {
			t.Fatalf("dsn %q: want %q, got %q", c.dsn, c.want, got)
		}
	}
}

func TestParseRoutes(t *testing.T) {
	routes := ParseRoutes("/test/=http://localhost:9000, /api/=http://localhost:9001")
	if len(routes) != 2 {
		t.Fatalf("want 2 routes, got %+v", routes)
	}
	if routes[0].Prefix != "/test/" || routes[0].Upstream != "http://localhost:9000" {
		t.Fatalf("unexpected first route: %+v", routes[0])
	}

	// malformed pairs are skipped
	routes = ParseRoutes("nonsense,=,/ok/=http://localhost:9002,missing-slash=http://x")
	if len(routes) != 1 || routes[0].Prefix != "/ok/" {
		t.Fatalf("want only the well-formed route, got %+v", routes)
	}

	if got := ParseRoutes(""); got != nil {
		t.Fatalf("want nil for empty spec, got %+v", got)
	}
}
