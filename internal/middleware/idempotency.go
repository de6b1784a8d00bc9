package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader = "Idempotency-Key"
	IdempotencyHitHeader = "X-Idempotency-Hit"

	inFlightMarker = "in-flight"
	maxKeyLength   = 128
)

type cachedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"contentType"`
	Body        []byte `json:"body"`
}

// Idempotency replays the first response recorded for an Idempotency-Key.
// Conflict and server-error responses are discarded so the same key can be
// retried, and so is the reservation of a handler that panicked or whose
// response could not be stored. Requests without the header, or without
// Redis, pass through.
func Idempotency(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" || rdb == nil {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxKeyLength {
				writeJSONError(w, "Idempotency-Key is too long", http.StatusBadRequest)
				return
			}

			userID, ok := UserIDFromContext(r.Context())
			if !ok {
				userID = "anonymous"
			}
			cacheKey := fmt.Sprintf("idempotency:%s:%s:%s", userID, r.URL.Path, key)
			ctx := r.Context()

			data, err := rdb.Get(ctx, cacheKey).Bytes()
			switch {
			case err == nil:
				replay(w, data)
				return
			case err != redis.Nil:
				logger.Warn("Idempotency lookup failed, serving request uncached", zap.String("key", cacheKey), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			reserved, err := rdb.SetNX(ctx, cacheKey, inFlightMarker, ttl).Result()
			if err != nil {
				logger.Warn("Idempotency reservation failed, serving request uncached", zap.String("key", cacheKey), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}
			if !reserved {
				writeInFlight(w)
				return
			}

			// The client may hang up before the handler finishes; the
			// outcome still has to be recorded or released.
			storeCtx := context.WithoutCancel(ctx)
			recorded := false
			defer func() {
				if recorded {
					return
				}
				if err := rdb.Del(storeCtx, cacheKey).Err(); err != nil {
					logger.Warn("Failed to release idempotency key", zap.String("key", cacheKey), zap.Error(err))
				}
			}()

			var body bytes.Buffer
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			ww.Tee(&body)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			if status == http.StatusConflict || status >= http.StatusInternalServerError {
				return
			}

			payload, err := json.Marshal(cachedResponse{
				Status:      status,
				ContentType: ww.Header().Get("Content-Type"),
				Body:        body.Bytes(),
			})
			if err != nil {
				logger.Error("Failed to encode idempotent response", zap.Error(err))
				return
			}
			if err := rdb.Set(storeCtx, cacheKey, string(payload), ttl).Err(); err != nil {
				logger.Warn("Failed to store idempotent response", zap.String("key", cacheKey), zap.Error(err))
				return
			}
			recorded = true
		})
	}
}

func replay(w http.ResponseWriter, data []byte) {
	if string(data) == inFlightMarker {
		writeInFlight(w)
		return
	}

	var cached cachedResponse
	if err := json.Unmarshal(data, &cached); err != nil {
		writeJSONError(w, "Stored response is unreadable", http.StatusInternalServerError)
		return
	}

	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(IdempotencyHitHeader, "true")
	w.WriteHeader(cached.Status)
	w.Write(cached.Body)
}

func writeInFlight(w http.ResponseWriter) {
	w.Header().Set("Retry-After", strconv.Itoa(1))
	writeJSONError(w, "A request with this Idempotency-Key is still in progress", http.StatusConflict)
}

func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
