// cmd/preflight/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/hamed0406/infrawatch/internal/config"
	"github.com/hamed0406/infrawatch/internal/domain"
	"github.com/hamed0406/infrawatch/internal/inventory"
	"github.com/hamed0406/infrawatch/internal/probe"
)

func main() {
	config.LoadDotEnv()
	os.Exit(preflight(context.Background(), config.FromEnv(), net.DefaultResolver, os.Stdout, os.Stderr))
}

// preflight returns the process exit code: 1 on configuration errors. DNS
// problems only warn since hosts may be reachable from the deployment target.
func preflight(ctx context.Context, cfg config.Config, r *net.Resolver, stdout, stderr io.Writer) int {
	failed := false
	fail := func(msg string) {
		fmt.Fprintln(stderr, "✖", msg)
		failed = true
	}
	warn := func(msg string) { fmt.Fprintln(stderr, "⚠", msg) }
	ok := func(msg string) { fmt.Fprintln(stdout, "✔", msg) }

	if err := cfg.Validate(); err != nil {
		for _, e := range multierr.Errors(err) {
			fail(e.Error())
		}
	} else {
		ok("STORE_DRIVER=" + cfg.StoreDriver)
		ok("SCHEDULE=" + cfg.Schedule)
	}

	if len(cfg.AdminAPIKeys) == 0 {
		warn("ADMIN_API_KEYS is empty; admin routes are open.")
	}
	if len(cfg.PublicAPIKeys) == 0 && len(cfg.AdminAPIKeys) == 0 {
		warn("PUBLIC_API_KEYS is empty; read routes are open.")
	}
	for _, k := range append(append([]string{}, cfg.PublicAPIKeys...), cfg.AdminAPIKeys...) {
		if len(k) < 12 {
			warn("an API key is shorter than 12 characters")
			break
		}
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		warn("ALLOWED_ORIGINS is *; any browser origin may call the API.")
	} else {
		ok("ALLOWED_ORIGINS=" + strings.Join(cfg.AllowedOrigins, ","))
	}
	if cfg.SlackWebhook == "" && cfg.TelegramToken == "" {
		warn("no SLACK_WEBHOOK or TELEGRAM_TOKEN; alerts are only logged.")
	}

	if cfg.InventoryFile == "" {
		warn("INVENTORY_FILE empty; only checks already in the store will run.")
	} else if inv, err := inventory.Load(cfg.InventoryFile); err != nil {
		for _, e := range multierr.Errors(err) {
			fail(e.Error())
		}
	} else {
		ok(fmt.Sprintf("inventory: %d assets", len(inv.Assets)))
		checkHosts(ctx, r, inv, ok, warn)
	}

	if failed {
		return 1
	}
	ok("preflight passed")
	return 0
}

func checkHosts(ctx context.Context, r *net.Resolver, inv *inventory.File, ok, warn func(string)) {
	seen := map[string]bool{}
	for _, a := range inv.Assets {
		hosts := []string{a.Address}
		for _, c := range a.Checks {
			hosts = append(hosts, domain.Check{Target: c.Target}.Host(domain.Asset{Address: a.Address}))
		}
		for _, h := range hosts {
			h = probe.HostOf(h)
			if h == "" || seen[h] {
				continue
			}
			seen[h] = true
			lctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			st := probe.CheckDNS(lctx, r, h)
			cancel()
			if st.Class == probe.DNSResolves {
				ok(fmt.Sprintf("%s: %s %s", a.Name, h, st.Class))
				continue
			}
			msg := fmt.Sprintf("%s: %s %s", a.Name, h, st.Class)
			if st.ResolverError != "" {
				msg += " (" + st.ResolverError + ")"
			}
			warn(msg)
		}
	}
}
