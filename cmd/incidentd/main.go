package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/statuspulse/incidentd/internal/app/migrate"
	"github.com/statuspulse/incidentd/internal/config"
	httpx "github.com/statuspulse/incidentd/internal/http"
	"github.com/statuspulse/incidentd/internal/logger"
	"github.com/statuspulse/incidentd/internal/repository"
	"github.com/statuspulse/incidentd/internal/repository/memory"
	"github.com/statuspulse/incidentd/internal/repository/postgres"
	"github.com/statuspulse/incidentd/internal/service/incidents"
	"github.com/statuspulse/incidentd/internal/service/simulator"
	"github.com/statuspulse/incidentd/internal/ws"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log := logger.New("incidentd", cfg.LogDebug)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var repo repository.IncidentRepository
	var dbHealth func(context.Context) error
	seed := true

	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		runner, err := migrate.New(pool, cfg.DatabaseURL, cfg.MigrationsDir, log)
		if err != nil {
			log.Error("failed to configure migrations", "error", err)
			os.Exit(1)
		}
		defer runner.Close()
		if err := runner.Ping(ctx); err != nil {
			log.Error("database ping failed", "error", err)
			os.Exit(1)
		}
		if err := runner.Ensure(ctx); err != nil {
			log.Error("migrations failed", "error", err)
			os.Exit(1)
		}
		pg := postgres.New(pool)
		repo = pg
		dbHealth = pg.Ping
		// A durable store keeps its collection across restarts; only seed an
		// empty one.
		if existing, err := pg.Snapshot(ctx); err == nil && len(existing) > 0 {
			seed = false
		}
	} else {
		repo = memory.New()
		log.Info("using in-memory incident store")
	}

	hub := ws.NewHub()
	defer hub.Close()

	svc := incidents.New(repo, hub, incidents.NewGenerator(0), log)
	if seed && cfg.SeedCount > 0 {
		if err := svc.Seed(ctx, cfg.SeedCount); err != nil {
			log.Error("seeding failed", "error", err)
			os.Exit(1)
		}
		log.Info("seeded incident store", "count", cfg.SeedCount)
	}

	if cfg.SimulatorEnabled {
		sim := simulator.New(svc, log, cfg.SimulatorInterval)
		go sim.Run(ctx)
	}

	limiter := httpx.NewMemoryRateLimiter()
	if addr := strings.TrimSpace(cfg.RateLimitRedisAddr); addr != "" {
		redisLimiter, err := httpx.NewRedisRateLimiter(addr, cfg.RateLimitRedisPass, cfg.RateLimitRedisDB, log)
		if err != nil {
			log.Warn("redis rate limiter unavailable", "error", err)
		} else {
			limiter = redisLimiter
		}
	}

	router := httpx.NewRouter(log, svc, hub, limiter, dbHealth)
	defer router.Close()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errorCh := make(chan error, 1)
	go func() {
		log.Info("incidentd server starting", "addr", cfg.Addr, "env", cfg.Environment)
		errorCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("graceful shutdown failed", "error", err)
		}
		log.Info("incidentd server stopped")
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}
}
