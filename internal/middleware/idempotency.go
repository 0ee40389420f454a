package middleware

import (
	"bytes"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/servicehub/backend/internal/services"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	inFlight = "in-flight"
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

// IdempotencyCache replays the stored response of a POST that carried the
// same Idempotency-Key for the same caller and path. Server errors are not
// cached. A nil Redis client disables the cache.
type IdempotencyCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewIdempotencyCache(client *redis.Client, ttl time.Duration) *IdempotencyCache {
	return &IdempotencyCache{redis: client, ttl: ttl}
}

func (c *IdempotencyCache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyHeader)
		if c.redis == nil || r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}

		id, ok := IdentityFromContext(r.Context())
		if !ok {
			services.SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
			return
		}

		ctx := r.Context()
		cacheKey := "idempotency:" + id.ID + ":" + r.URL.Path + ":" + key

		stored, err := c.redis.Get(ctx, cacheKey).Result()
		switch {
		case err == nil && stored == inFlight:
			services.SendErrorResponse(w, "A request with this Idempotency-Key is still in progress", http.StatusConflict, nil)
			return
		case err == nil:
			var resp cachedResponse
			if err := json.Unmarshal([]byte(stored), &resp); err == nil {
				w.Header().Set("Content-Type", resp.ContentType)
				w.Header().Set(ReplayedHeader, "true")
				w.WriteHeader(resp.Status)
				w.Write([]byte(resp.Body))
				return
			}
			log.Printf("[IDEMPOTENCY] Dropping unreadable entry %s", cacheKey)
		case !errors.Is(err, redis.Nil):
			log.Printf("[IDEMPOTENCY] Cache unavailable, serving uncached: %v", err)
			next.ServeHTTP(w, r)
			return
		}

		claimed, err := c.redis.SetNX(ctx, cacheKey, inFlight, c.ttl).Result()
		if err != nil {
			log.Printf("[IDEMPOTENCY] Cache unavailable, serving uncached: %v", err)
			next.ServeHTTP(w, r)
			return
		}
		if !claimed {
			services.SendErrorResponse(w, "A request with this Idempotency-Key is still in progress", http.StatusConflict, nil)
			return
		}

		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		if rec.status >= http.StatusInternalServerError {
			c.redis.Del(ctx, cacheKey)
			return
		}

		payload, _ := json.Marshal(cachedResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.String(),
		})
		if err := c.redis.Set(ctx, cacheKey, string(payload), c.ttl).Err(); err != nil {
			log.Printf("[IDEMPOTENCY] Failed to store response for %s: %v", cacheKey, err)
		}
	})
}

type responseRecorder struct {
	http.ResponseWriter
	status      int
	body        bytes.Buffer
	wroteHeader bool
}

func (r *responseRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status, r.wroteHeader = status, true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}
