package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/warden/warden/internal/api"
	"github.com/warden/warden/internal/auth"
	"github.com/warden/warden/internal/config"
	"github.com/warden/warden/internal/firewall"
	"github.com/warden/warden/internal/process"
	"github.com/warden/warden/internal/service"
	"github.com/warden/warden/internal/storage"
	"github.com/warden/warden/internal/supervisor"
	"github.com/warden/warden/internal/updater"
	"github.com/warden/warden/internal/websocket"
)

// @title Warden API
// @version 1.0
// @description Service provisioning and supervision agent API
// @host localhost:8000
// @BasePath /api/v1
func main() {
	log.Println("Starting Warden...")

	// Check for root/admin privileges (skip with WARDEN_NO_ROOT=1 for development)
	if os.Getenv("WARDEN_NO_ROOT") != "1" {
		if err := auth.RequireRoot(); err != nil {
			log.Fatalf("ERROR: %v", err)
		}
		log.Println("Running with elevated privileges")
	} else {
		log.Println("WARNING: Running without root check (development mode)")
	}

	configPath := "config.yaml"
	if envPath := os.Getenv("WARDEN_CONFIG"); envPath != "" {
		configPath = envPath
	}

	// Initialize storage first (needed for config overrides)
	dbPath := "warden.db"
	if envPath := os.Getenv("WARDEN_DB"); envPath != "" {
		dbPath = envPath
	}
	store, err := storage.New(dbPath)
	if err != nil {
		log.Printf("Warning: Failed to initialize storage: %v", err)
		// Continue without storage
	}
	if store != nil {
		defer store.Close()
	}

	// Load configuration
	cfg, err := config.NewManager(configPath, store)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	appConfig := cfg.Get()
	log.Printf("Configuration loaded from %s", configPath)

	// Prune old provisioning journal entries
	if store != nil && appConfig.Storage.JournalRetention > 0 {
		if err := store.DeleteOlderThan(storage.BucketJournal, appConfig.Storage.JournalRetention); err != nil {
			log.Printf("Warning: Failed to prune journal: %v", err)
		}
		if n, err := store.Count(storage.BucketJournal); err == nil {
			log.Printf("Provision journal holds %d entries", n)
		}
	}

	cfg.OnReload(func(c *config.Config) {
		log.Printf("Configuration reloaded, server address %s", c.Address())
	})

	// Initialize service manager
	serviceManager, err := service.NewManager()
	if err != nil {
		log.Fatalf("Service manager not available: %v", err)
	}

	// Initialize firewall manager
	firewallManager, err := firewall.NewManager()
	if err != nil {
		log.Printf("Warning: Firewall manager not available: %v", err)
	}

	// Initialize process inspector
	inspector := process.NewInspector()

	// Initialize WebSocket hub early so provisioning steps are broadcast
	hub := websocket.NewHub()
	go hub.Run()

	// Initialize supervisor
	sup := supervisor.New(serviceManager, firewallManager, store, inspector, hub)

	// Provision the configured service: register it, set the restart
	// policy, open the firewall port and start it. Any failed step
	// aborts startup with a non-zero exit.
	plan := supervisor.Plan{
		Definition:   appConfig.Definition(),
		OpenFirewall: appConfig.Firewall.Enabled && firewallManager != nil,
		Rule:         appConfig.Rule(),
	}
	if appConfig.Firewall.Enabled && firewallManager == nil {
		log.Println("Warning: Skipping firewall step, no manager available")
	}
	if err := sup.Provision(plan); err != nil {
		log.Fatalf("Provisioning failed: %v", err)
	}
	log.Printf("Service %s provisioned and started", plan.Definition.Name)

	// Initialize updater
	upd := updater.NewUpdater(appConfig.Updater.GithubRepo, appConfig.Updater.Enabled)

	// Create router
	router := api.NewRouter(cfg, store, sup, firewallManager, upd, hub)

	// Create HTTP server
	server := &http.Server{
		Addr:         appConfig.Address(),
		Handler:      router.Engine(),
		ReadTimeout:  appConfig.Server.ReadTimeout,
		WriteTimeout: appConfig.Server.WriteTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://%s", appConfig.Address())
		log.Printf("Swagger UI: http://%s/swagger/index.html", appConfig.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal. SIGHUP reloads the configuration, any
	// number of times; SIGINT and SIGTERM shut down.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range quit {
		log.Printf("Received signal: %v", sig)
		if sig != syscall.SIGHUP {
			break
		}
		log.Println("Reloading configuration...")
		if err := cfg.Reload(); err != nil {
			log.Printf("Failed to reload config: %v", err)
		}
	}

	// Graceful shutdown
	log.Println("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), appConfig.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Warden stopped")
}
