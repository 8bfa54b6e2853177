// Command incidentwatch is a console client for the incident stream: it runs
// the pull/push reconciliation engine against an incidentd server and prints
// the live view state as it changes.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/statuspulse/incidentd/internal/logger"
	"github.com/statuspulse/incidentd/pkg/api"
	"github.com/statuspulse/incidentd/pkg/incident"
	"github.com/statuspulse/incidentd/pkg/stream"
	"github.com/statuspulse/incidentd/pkg/view"
)

// Endpoint defaults per build mode.
const (
	devAPIBase  = "http://localhost:4000"
	devWSURL    = "ws://localhost:4000/ws"
	prodAPIBase = "https://incidents.statuspulse.dev"
	prodWSURL   = "wss://incidents.statuspulse.dev/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	env := flag.String("env", "development", "Endpoint set to use (development or production)")
	apiBase := flag.String("api", "", "API base URL (overrides -env default)")
	wsURL := flag.String("ws", "", "Push channel URL (overrides -env default)")
	pageSize := flag.Int("page-size", incident.DefaultPageLimit, "Incidents per page")
	severity := flag.String("severity", incident.FilterAll, "Severity filter")
	status := flag.String("status", incident.FilterAll, "Status filter")
	service := flag.String("service", incident.FilterAll, "Service filter")
	search := flag.String("search", "", "Free-text search over title, description and service")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	base, ws := devAPIBase, devWSURL
	if *env == "production" {
		base, ws = prodAPIBase, prodWSURL
	}
	if *apiBase != "" {
		base = *apiBase
	}
	if *wsURL != "" {
		ws = *wsURL
	}

	log := logger.New("incidentwatch", *debug)

	client, err := api.New(base)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("server unreachable at %s: %w", base, err)
	}

	reconciler := view.New(client,
		view.WithPageSize(*pageSize),
		view.WithLogger(log),
		view.WithOnChange(printState),
	)

	sc := stream.NewClient(stream.Config{URL: ws, Logger: log})
	unbind := reconciler.Bind(sc)
	defer unbind()

	sc.Connect()
	defer sc.Disconnect()

	reconciler.SetFilters(ctx, incident.Filter{
		Severity: *severity,
		Status:   *status,
		Service:  *service,
		Search:   *search,
	})

	<-ctx.Done()
	return nil
}

func printState(s view.State) {
	if s.Loading {
		return
	}
	if s.Error != "" {
		fmt.Printf("! query failed: %s (showing %d stale items)\n", s.Error, len(s.Items))
		return
	}
	conn := "offline"
	if s.Connected {
		conn = "live"
	}
	fmt.Printf("[%s] page %d/%d | %d matching (crit %d / high %d / med %d / low %d; open %d, investigating %d, resolved %d)\n",
		conn, s.Page, s.TotalPages, s.Total,
		s.CountsBySeverity.Critical, s.CountsBySeverity.High,
		s.CountsBySeverity.Medium, s.CountsBySeverity.Low,
		s.CountsByStatus.Open, s.CountsByStatus.Investigating, s.CountsByStatus.Resolved)
	for i, inc := range s.Items {
		if i >= 5 {
			fmt.Printf("  … %d more on this page\n", len(s.Items)-i)
			break
		}
		fmt.Printf("  %-8s %-13s %-16s %s\n", inc.Severity, inc.Status, inc.Service, inc.Title)
	}
}
