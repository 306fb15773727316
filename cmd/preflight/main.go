// cmd/preflight/main.go
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/poormans/rategate/internal/config"
)

func main() {
	fail := func(msg string) {
		fmt.Fprintln(os.Stderr, "✖", msg)
		os.Exit(1)
	}
	warn := func(msg string) { fmt.Fprintln(os.Stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Println("✔", msg) }

	cfg := config.FromEnv()

	ok("public listener " + cfg.PublicAddr)
	ok("admin listener " + cfg.AdminAddr)

	if cfg.AdminAllowRemote && len(cfg.AdminKeys) == 0 {
		fail("RATEGATE_ADMIN_ALLOW_REMOTE is set with no RATEGATE_ADMIN_KEYS; the control plane would be open to the network.")
	}
	if len(cfg.AdminKeys) == 0 {
		warn("RATEGATE_ADMIN_KEYS empty; admin auth is off (loopback only).")
	} else {
		ok(fmt.Sprintf("%d admin key(s) configured", len(cfg.AdminKeys)))
	}

	raw := strings.TrimSpace(os.Getenv("RATEGATE_ROUTES"))
	if raw == "" {
		warn("RATEGATE_ROUTES empty; the gateway will 404 every path.")
	} else {
		pairs := 0
		for _, p := range strings.Split(raw, ",") {
			if strings.TrimSpace(p) != "" {
				pairs++
			}
		}
		if skipped := pairs - len(cfg.Routes); skipped > 0 {
			warn(fmt.Sprintf("%d of %d route pair(s) malformed and skipped; want prefix=url", skipped, pairs))
		}
		if len(cfg.Routes) == 0 {
			fail("RATEGATE_ROUTES set but no usable pairs parsed.")
		}
		for _, r := range cfg.Routes {
			ok("route " + r.Prefix + " -> " + r.Upstream)
		}
	}

	switch cfg.DBDriver() {
	case config.DriverMemory:
		warn("RATEGATE_DB_DSN empty; state lives in memory and dies with the process.")
	case config.DriverPostgres:
		ok("store driver postgres")
	case config.DriverSQLite:
		ok("store driver sqlite (" + cfg.DatabaseURL + ")")
	}

	if cfg.SlackWebhook == "" {
		warn("RATEGATE_SLACK_WEBHOOK empty; upstream alerts only reach the log.")
	} else {
		ok("slack alerts configured")
	}

	ok("preflight passed")
}
