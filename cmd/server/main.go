package main

import (
	"fmt"
	"log"
	"net/http"

	"syncline/internal/api"
	"syncline/internal/api/handlers"
	"syncline/internal/api/middleware"
	"syncline/internal/engine/deadletter"
	"syncline/internal/engine/slo"
	syncengine "syncline/internal/engine/sync"
	"syncline/internal/pkg/logger"
	"syncline/internal/platform/auth"
	"syncline/internal/platform/config"
	"syncline/internal/platform/database"
	"syncline/internal/platform/repositories"
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

	if err := database.Migrate(db); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Repositories
	configRepo := repositories.NewIntegrationConfigRepository(db)
	apiKeyRepo := repositories.NewAPIKeyRepository(db)
	ledger := syncengine.NewSQLLedger(db)

	// Services
	tokenSvc := auth.NewTokenService(cfg.JWT)
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

	deadLetterSvc := deadletter.NewService(ledger, configRepo, engine)
	monitor := slo.NewService(ledger, configRepo, queue, registry, cfg.SLO)

	// Handlers
	integrationHandler := handlers.NewIntegrationHandler(configRepo, engine)
	opsHandler := handlers.NewOpsHandler(deadLetterSvc)
	sloHandler := handlers.NewSLOHandler(monitor)
	healthHandler := handlers.NewHealthHandler(monitor)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(tokenSvc, apiKeyRepo)
	rateLimiter := middleware.NewRateLimiter()

	router := api.NewRouter(&api.Dependencies{
		IntegrationHandler: integrationHandler,
		OpsHandler:         opsHandler,
		SLOHandler:         sloHandler,
		HealthHandler:      healthHandler,
		AuthMiddleware:     authMiddleware,
		RateLimiter:        rateLimiter,
		OpsReadPerMinute:   cfg.RateLimit.OpsReadPerMinute,
		OpsWritePerMinute:  cfg.RateLimit.OpsWritePerMinute,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	log.Printf("Server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
