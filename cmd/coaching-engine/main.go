package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/terra-clan/coaching-engine/internal/api"
	"github.com/terra-clan/coaching-engine/internal/catalog"
	"github.com/terra-clan/coaching-engine/internal/cleanup"
	"github.com/terra-clan/coaching-engine/internal/config"
	"github.com/terra-clan/coaching-engine/internal/leads"
	"github.com/terra-clan/coaching-engine/internal/pacing"
	"github.com/terra-clan/coaching-engine/internal/session"
)

func main() {
	// Setup structured logging
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.Log.Level)

	slog.Info("starting coaching-engine",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"session_store", cfg.Session.Store,
	)

	// Create context for initialization
	initCtx, initCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer initCancel()

	// Load catalog
	catalogs := catalog.NewLoader()
	if err := loadCatalog(catalogs, cfg.Catalog.Dir); err != nil {
		slog.Error("failed to load catalog", "error", err)
		os.Exit(1)
	}

	// Initialize session store
	var store session.Store
	switch cfg.Session.Store {
	case config.StoreRedis:
		store, err = session.NewRedisStore(initCtx, session.RedisConfig{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			slog.Error("failed to connect session store", "error", err)
			os.Exit(1)
		}
		slog.Info("redis session store connected", "address", cfg.Redis.Address)
	default:
		store = session.NewMemoryStore()
	}

	// Lead form and session manager
	submitter := leads.NewSubmitter(leads.Options{
		Delay:           pacing.Fixed(cfg.Pacing.LeadDelay),
		DuplicateWindow: cfg.Leads.DuplicateWindow,
		Notifier:        leads.LogNotifier{},
	})

	manager := session.NewManager(store, catalogs, session.Options{
		TTL:       cfg.Session.TTL,
		QuizDelay: pacing.Fixed(cfg.Pacing.QuizDelay),
		Leads:     submitter,
	})

	// Initialize cleanup worker
	cleaner := cleanup.NewCleaner(manager, cfg.Cleanup.Interval)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start cleanup worker
	cleaner.Start(ctx)

	// Setup HTTP server
	server := api.NewServer(cfg.Server, cfg.Metrics, catalogs, manager, submitter)
	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		slog.Info("HTTP server starting", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal; SIGHUP reloads the catalog
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range quit {
		if sig != syscall.SIGHUP {
			break
		}
		if err := loadCatalog(catalogs, cfg.Catalog.Dir); err != nil {
			slog.Error("catalog reload failed, keeping previous catalog", "error", err)
		}
	}

	slog.Info("shutting down gracefully...")

	// Cancel context to stop background workers
	cancel()

	// Shutdown HTTP server with timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	// Close manager (releases the session store)
	if err := manager.Close(); err != nil {
		slog.Error("manager close error", "error", err)
	}

	slog.Info("coaching-engine stopped")
}

// loadCatalog loads the catalog directory, or the embedded catalog when dir is empty
func loadCatalog(loader *catalog.Loader, dir string) error {
	if dir == "" {
		return loader.LoadDefaults()
	}
	return loader.LoadFromDir(dir)
}
