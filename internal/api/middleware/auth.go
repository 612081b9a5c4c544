package middleware

import (
	"context"
	"net/http"
	"strings"

	apiContext "syncline/internal/api/context"
	"syncline/internal/pkg/errors"
	"syncline/internal/platform/auth"
	"syncline/internal/platform/repositories"
)

type AuthMiddleware struct {
	tokenSvc *auth.TokenService
	apiKeys  *repositories.APIKeyRepository
}

func NewAuthMiddleware(tokenSvc *auth.TokenService, apiKeys *repositories.APIKeyRepository) *AuthMiddleware {
	return &AuthMiddleware{tokenSvc: tokenSvc, apiKeys: apiKeys}
}

// Handle accepts either an operator JWT (Authorization: Bearer) or a CLI
// API key (X-API-Key). Both resolve to Claims in the request context.
func (m *AuthMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if rawKey := r.Header.Get("X-API-Key"); rawKey != "" {
			claims, err := m.authenticateAPIKey(rawKey)
			if err != nil {
				errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid API key", nil)
				return
			}
			ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
			next(w, r.WithContext(ctx))
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Missing authorization header", nil)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid authorization header format", nil)
			return
		}

		claims, err := m.tokenSvc.ValidateToken(parts[1])
		if err != nil {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid or expired token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Claims, claims)
		next(w, r.WithContext(ctx))
	}
}

func (m *AuthMiddleware) authenticateAPIKey(raw string) (*auth.Claims, error) {
	if len(raw) < 12 {
		return nil, auth.ErrInvalidAPIKey
	}

	key, err := m.apiKeys.GetByPrefix(raw[:12])
	if err != nil {
		return nil, err
	}
	if key == nil || key.RevokedAt != nil {
		return nil, auth.ErrInvalidAPIKey
	}
	if err := auth.VerifyAPIKey(key.KeyHash, raw); err != nil {
		return nil, err
	}

	return &auth.Claims{UserID: "key:" + key.ID, Role: key.Role}, nil
}
