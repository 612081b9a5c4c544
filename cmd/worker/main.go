package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	syncengine "syncline/internal/engine/sync"
	"syncline/internal/pkg/logger"
	"syncline/internal/platform/config"
	"syncline/internal/platform/database"
	"syncline/internal/platform/repositories"
	"syncline/internal/workers"
)

func main() {
	cfg, err := config.Load("configs/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	configRepo := repositories.NewIntegrationConfigRepository(db)
	ledger := syncengine.NewSQLLedger(db)
	registry := syncengine.NewDefaultRegistry(cfg.Providers, cfg.Sync.ProviderTimeout)
	queue := syncengine.NewHTTPQueue(cfg.Queue.URL, cfg.Queue.Secret, cfg.Queue.Timeout)

	engine := syncengine.NewEngine(ledger, configRepo, registry, queue, syncengine.Options{
		Retry: syncengine.Policy{
			Attempts:   cfg.Retry.Attempts,
			BaseDelay:  cfg.Retry.BaseDelay,
			MaxElapsed: cfg.Retry.MaxElapsed,
		},
		MaxPages:        cfg.Sync.MaxPages,
		ProviderTimeout: cfg.Sync.ProviderTimeout,
		Clock:           syncengine.NewClock(),
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	scheduler := workers.NewScheduler(configRepo, engine, cfg.Scheduler.Interval)
	reconciler := workers.NewReconciler(ledger, cfg.Scheduler.ReconcileAfter)

	log.Println("Starting sync workers...")
	go reconciler.Run(ctx, cfg.Scheduler.Interval)
	scheduler.Run(ctx)
}
