package middleware

import (
	"net/http"
	"sync"
	"time"

	apiContext "syncline/internal/api/context"
	"syncline/internal/pkg/errors"
	"syncline/internal/platform/auth"
)

type RateLimiter struct {
	store *sync.Map // map[string]*bucket
}

type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
	mu         sync.Mutex
}

func NewRateLimiter() *RateLimiter {
	rl := &RateLimiter{store: &sync.Map{}}
	go rl.cleanupLoop()
	return rl
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		now := time.Now()
		rl.store.Range(func(key, value interface{}) bool {
			b := value.(*bucket)
			b.mu.Lock()
			if now.Sub(b.lastAccess) > 10*time.Minute {
				rl.store.Delete(key)
			}
			b.mu.Unlock()
			return true
		})
	}
}

func (rl *RateLimiter) Allow(key string, limit int) bool {
	now := time.Now()

	val, _ := rl.store.LoadOrStore(key, &bucket{
		tokens:     float64(limit),
		lastRefill: now,
		lastAccess: now,
	})

	b := val.(*bucket)
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastAccess = now

	// Refill at limit/minute.
	elapsed := now.Sub(b.lastRefill)
	b.tokens += elapsed.Seconds() * float64(limit) / 60.0
	if b.tokens > float64(limit) {
		b.tokens = float64(limit)
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}

// Limit buckets per caller identity, falling back to remote address for
// unauthenticated routes.
func (rl *RateLimiter) Limit(class string, perMinute int) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			id := r.RemoteAddr
			if claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims); ok {
				id = claims.UserID
			}

			if !rl.Allow(class+":"+id, perMinute) {
				errors.WriteError(w, http.StatusTooManyRequests, errors.ErrCodeRateLimitExceeded, "Rate limit exceeded", nil)
				return
			}
			next(w, r)
		}
	}
}
