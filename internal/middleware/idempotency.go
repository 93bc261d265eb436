package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/ruralpay/ledger/internal/services"
	"go.uber.org/zap"
)

const (
	IdempotencyHeader = "Idempotency-Key"
	ReplayedHeader    = "Idempotent-Replayed"

	idempotencyPending = "PENDING"

	idempotencyWriteTimeout = 2 * time.Second
)

// storedResponse is what is kept in Redis for a completed request.
type storedResponse struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        string `json:"body"`
}

type recordingWriter struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency makes POST submissions carrying an Idempotency-Key header
// replay-safe. The first request reserves the key with SETNX; repeats get the
// stored response, or 409 while the first is still running. Server errors
// release the key so the client may retry. Without Redis it is a pass-through.
func Idempotency(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyHeader)
			if rdb == nil || key == "" || r.Method != http.MethodPost {
				next.ServeHTTP(w, r)
				return
			}

			caller := "anonymous"
			if p, ok := PrincipalFromContext(r.Context()); ok {
				caller = p.UserID
			}
			redisKey := "idempotency:" + caller + ":" + r.URL.Path + ":" + key
			ctx := r.Context()

			reserved, err := rdb.SetNX(ctx, redisKey, idempotencyPending, ttl).Result()
			if err != nil {
				logger.Warn("idempotency reservation failed, continuing without it",
					zap.String("key", redisKey), zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			if !reserved {
				replay(w, rdb, r, redisKey, logger)
				return
			}

			rec := &recordingWriter{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// The request context may be cancelled by now; the reservation still
			// has to be released or filled.
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), idempotencyWriteTimeout)
			defer cancel()

			if rec.status >= http.StatusInternalServerError || rec.status == 0 {
				if err := rdb.Del(ctx, redisKey).Err(); err != nil {
					logger.Warn("idempotency release failed", zap.String("key", redisKey), zap.Error(err))
				}
				return
			}

			data, err := json.Marshal(storedResponse{
				Status:      rec.status,
				ContentType: rec.Header().Get("Content-Type"),
				Body:        rec.body.String(),
			})
			if err != nil {
				logger.Error("idempotency encode failed", zap.Error(err))
				return
			}
			if err := rdb.Set(ctx, redisKey, string(data), ttl).Err(); err != nil {
				logger.Warn("idempotency store failed", zap.String("key", redisKey), zap.Error(err))
			}
		})
	}
}

func replay(w http.ResponseWriter, rdb *redis.Client, r *http.Request, redisKey string, logger *zap.Logger) {
	value, err := rdb.Get(r.Context(), redisKey).Result()
	if err != nil {
		logger.Warn("idempotency lookup failed", zap.String("key", redisKey), zap.Error(err))
		services.SendErrorResponse(w, "Request with this idempotency key is being processed", "IDEMPOTENCY_IN_PROGRESS", http.StatusConflict, nil)
		return
	}
	if value == idempotencyPending {
		services.SendErrorResponse(w, "Request with this idempotency key is being processed", "IDEMPOTENCY_IN_PROGRESS", http.StatusConflict, nil)
		return
	}

	var stored storedResponse
	if err := json.Unmarshal([]byte(value), &stored); err != nil {
		logger.Error("idempotency record corrupt", zap.String("key", redisKey), zap.Error(err))
		services.SendErrorResponse(w, "Internal server error", "INTERNAL_ERROR", http.StatusInternalServerError, nil)
		return
	}

	if stored.ContentType != "" {
		w.Header().Set("Content-Type", stored.ContentType)
	}
	w.Header().Set(ReplayedHeader, "true")
	w.WriteHeader(stored.Status)
	w.Write([]byte(stored.Body))
}
