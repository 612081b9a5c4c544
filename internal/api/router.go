package api

import (
	"context"
	"net/http"

	"github.com/julienschmidt/httprouter"
	apiContext "syncline/internal/api/context"
	"syncline/internal/api/handlers"
	"syncline/internal/api/middleware"
	"syncline/internal/pkg/errors"
	"syncline/internal/platform/auth"
)

type Dependencies struct {
	IntegrationHandler *handlers.IntegrationHandler
	OpsHandler         *handlers.OpsHandler
	SLOHandler         *handlers.SLOHandler
	HealthHandler      *handlers.HealthHandler
	AuthMiddleware     *middleware.AuthMiddleware
	RateLimiter        *middleware.RateLimiter
	OpsReadPerMinute   int
	OpsWritePerMinute  int
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()

	// Unauthenticated synthetic health probe
	router.GET("/health", wrap(deps.HealthHandler.Check))

	// Middleware references
	authMid := deps.AuthMiddleware
	readLimit := deps.RateLimiter.Limit("ops-read", deps.OpsReadPerMinute)
	writeLimit := deps.RateLimiter.Limit("ops-write", deps.OpsWritePerMinute)

	// Integration config management
	router.POST("/api/v1/integrations",
		chain(deps.IntegrationHandler.Create, authMid.Handle, writeLimit, requireRole("admin", "operator")))
	router.GET("/api/v1/integrations",
		chain(deps.IntegrationHandler.List, authMid.Handle, readLimit))
	router.GET("/api/v1/integrations/:config_id",
		chain(deps.IntegrationHandler.Get, authMid.Handle, readLimit))
	router.PATCH("/api/v1/integrations/:config_id",
		chain(deps.IntegrationHandler.Update, authMid.Handle, writeLimit, requireRole("admin", "operator")))
	router.DELETE("/api/v1/integrations/:config_id",
		chain(deps.IntegrationHandler.Disable, authMid.Handle, writeLimit, requireRole("admin", "operator")))

	// Manual sync trigger
	router.POST("/api/v1/integrations/:config_id/sync",
		chain(deps.IntegrationHandler.TriggerSync, authMid.Handle, writeLimit))

	// Dead-letter management
	router.GET("/api/v1/ops/dead-letters",
		chain(deps.OpsHandler.ListDeadLetters, authMid.Handle, readLimit))
	router.POST("/api/v1/ops/dead-letters/:run_id/replay",
		chain(deps.OpsHandler.Replay, authMid.Handle, writeLimit, requireRole("admin", "operator")))

	// Backfills
	router.GET("/api/v1/ops/backfills",
		chain(deps.OpsHandler.ListBackfills, authMid.Handle, readLimit))
	router.POST("/api/v1/ops/backfills",
		chain(deps.OpsHandler.TriggerBackfill, authMid.Handle, writeLimit, requireRole("admin", "operator")))

	// Monitoring
	router.GET("/api/v1/ops/slo",
		chain(deps.SLOHandler.QueueSLO, authMid.Handle, readLimit))
	router.GET("/api/v1/ops/pipeline",
		chain(deps.SLOHandler.PipelineStatus, authMid.Handle, readLimit))

	return router
}

// Helper function to chain middlewares
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

// Convert http.HandlerFunc to httprouter.Handle
func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		// Inject params into context
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

func requireRole(roles ...string) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			claims := r.Context().Value(apiContext.Claims).(*auth.Claims)

			allowed := false
			for _, role := range roles {
				if claims.Role == role {
					allowed = true
					break
				}
			}

			if !allowed {
				errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
				return
			}

			next(w, r)
		}
	}
}
