// Kitbox admin API server
//
// Usage:
//
//	server            Start the HTTP server
//	server -migrate   Run database migrations and exit
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kitbox/kitbox/internal/analytics"
	"github.com/kitbox/kitbox/internal/api"
	"github.com/kitbox/kitbox/internal/audit"
	"github.com/kitbox/kitbox/internal/auth"
	"github.com/kitbox/kitbox/internal/config"
	"github.com/kitbox/kitbox/internal/credentials"
	"github.com/kitbox/kitbox/internal/db"
	"github.com/kitbox/kitbox/internal/gate"
	"github.com/kitbox/kitbox/internal/metrics"
	"github.com/kitbox/kitbox/internal/ratelimit"
)

func main() {
	migrateOnly := flag.Bool("migrate", false, "Run migrations and exit")
	migrationsDir := flag.String("migrations-dir", "migrations", "Path to migrations directory")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.FromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	database, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	// Run migrations
	if err := database.RunMigrations(ctx, *migrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations complete")

	if *migrateOnly {
		log.Println("Migration-only mode, exiting")
		return
	}

	// Resolve the signing credential. Without it no privileged request can
	// be served, so a terminal failure here is fatal.
	resolver := credentials.NewResolver(credentials.WithDevReload(cfg.DevCredentialReload))
	bundle, err := resolver.Resolve()
	if err != nil {
		log.Fatalf("Failed to resolve signing credentials: %v", err)
	}

	// Operator settings: gate password hashes and feature flags
	settings, err := config.LoadSettings(cfg.SettingsFile)
	if err != nil {
		log.Fatalf("Failed to load settings: %v", err)
	}
	if len(settings.GateHashes()) == 0 {
		log.Println("No gate tiers configured, secondary gates disabled")
	}

	// Metrics registry and collector
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// Wire the service layers
	verifier := auth.NewVerifier(bundle)
	trust := auth.NewEvaluator(cfg.AdminAllowlist, cfg.HeadAdminAllowlist)
	gateSvc := gate.New(database, settings.GateHashes())
	limiter := ratelimit.NewStoreLimiter(database)
	aggregator := analytics.NewAggregator(database)
	merger := analytics.NewMerger(database)
	auditSvc := audit.NewLogger(database)

	apiServer := api.NewServer(api.Deps{
		Store:      database,
		Verifier:   verifier,
		Trust:      trust,
		Gate:       gateSvc,
		Limiter:    limiter,
		Summary:    aggregator,
		Feed:       merger,
		Audit:      auditSvc,
		Metrics:    collector,
		Features:   settings.Features,
		Scrape:     metrics.Handler(registry),
		RatePerMin: cfg.RateLimitPerMin,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      apiServer.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		log.Printf("Kitbox admin API server starting on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
