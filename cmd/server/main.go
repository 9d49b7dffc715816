/*
main.go - Application entry point

STARTUP SEQUENCE:
  1. Load environment configuration (.env supported)
  2. Initialize the selected store (sqlite, postgres, or memory)
  3. Wire the provider feed and the engine components
  4. Configure the HTTP router and the background scheduler
  5. Start the server with graceful shutdown

ENVIRONMENT:
  PORT               HTTP port (default 8080)
  DB_BACKEND         sqlite | postgres | memory (default sqlite)
  DB_PATH            SQLite path (default bookkeeper.db, ":memory:" ok)
  DB_SOURCE          PostgreSQL connection string
  PROVIDER_BASE_URL  Invoicing provider API base URL
  PROVIDER_TOKEN     Bearer token for the provider
  SYNC_INTERVAL      e.g. "15m"; empty/0 disables scheduled sync
  TICK_INTERVAL      recurring generator interval (default 24h)
  SETTLEMENT_MODE    preserve-local | provider

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop the scheduler, drain active requests (30s),
  close the store.
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/bookkeeper/api"
	"github.com/warp/bookkeeper/config"
	"github.com/warp/bookkeeper/ledger"
	memstore "github.com/warp/bookkeeper/ledger/store"
	"github.com/warp/bookkeeper/provider"
	"github.com/warp/bookkeeper/recon"
	"github.com/warp/bookkeeper/store/postgres"
	"github.com/warp/bookkeeper/store/sqlite"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	store, rules, closeStore, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}
	defer closeStore()

	feed := openFeed(cfg)
	clock := ledger.SystemClock{}

	reconciler := recon.NewReconciler(store, feed, clock)
	if cfg.SettlementMode == "provider" {
		reconciler.Settlement = recon.ProviderAuthoritative
	}
	generator := recon.NewGenerator(store, rules, clock)

	handler := api.NewHandler(store, rules, reconciler, generator)
	router := api.NewRouter(handler)

	scheduler := api.NewScheduler(reconciler, generator, cfg.SyncInterval, cfg.TickInterval)
	scheduler.Start()

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Bookkeeper listening on http://localhost:%s (db=%s)", cfg.Port, cfg.DBBackend)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down...")
	scheduler.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}

func openStore(cfg *config.Config) (ledger.Store, ledger.RuleStore, func(), error) {
	switch cfg.DBBackend {
	case "postgres":
		s, err := postgres.New(context.Background(), cfg.DBSource)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, s.Close, nil
	case "memory":
		m := memstore.NewMemory(ledger.SystemClock{})
		return m, m, func() {}, nil
	default:
		s, err := sqlite.New(cfg.DBPath)
		if err != nil {
			return nil, nil, nil, err
		}
		return s, s, func() { _ = s.Close() }, nil
	}
}

func openFeed(cfg *config.Config) provider.Feed {
	if cfg.ProviderBaseURL == "" {
		log.Println("Warning: no PROVIDER_BASE_URL configured; sync requests will fail fast")
		return &provider.StaticFeed{
			Err: fmt.Errorf("%w: no provider configured", ledger.ErrProviderFetch),
		}
	}
	return provider.NewHTTPFeed(cfg.ProviderBaseURL, cfg.ProviderToken)
}
