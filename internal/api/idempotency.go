package api

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/punchamoorthee/paycore/internal/models"
)

const (
	idempotencyHeader    = "Idempotency-Key"
	idempotencyKeyPrefix = "paycore:idempotency:"

	statusInProgress = "in_progress"
	statusCompleted  = "completed"
)

// IdempotencyStore remembers the outcome of keyed POST requests.
type IdempotencyStore interface {
	// Reserve claims key for a request with the given body hash. It returns
	// the existing record when the key was already claimed, nil otherwise.
	Reserve(ctx context.Context, key, requestHash string) (*models.IdempotencyRecord, error)
	Complete(ctx context.Context, key string, record models.IdempotencyRecord) error
	Release(ctx context.Context, key string) error
}

// RedisIdempotency keeps idempotency records in Redis with a TTL.
type RedisIdempotency struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisIdempotency(client redis.UniversalClient, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl}
}

func (s *RedisIdempotency) Reserve(ctx context.Context, key, requestHash string) (*models.IdempotencyRecord, error) {
	val, err := json.Marshal(models.IdempotencyRecord{Status: statusInProgress, RequestHash: requestHash})
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, idempotencyKeyPrefix+key, val, s.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx: %w", err)
	}
	if ok {
		return nil, nil
	}

	raw, err := s.client.Get(ctx, idempotencyKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		return s.Reserve(ctx, key, requestHash)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var existing models.IdempotencyRecord
	if err := json.Unmarshal(raw, &existing); err != nil {
		return nil, fmt.Errorf("decode idempotency record: %w", err)
	}
	return &existing, nil
}

func (s *RedisIdempotency) Complete(ctx context.Context, key string, record models.IdempotencyRecord) error {
	record.Status = statusCompleted
	val, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, idempotencyKeyPrefix+key, val, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (s *RedisIdempotency) Release(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

// idempotent replays the stored response of a completed key, rejects a key
// still in progress (409) or reused with another body (422). Server errors
// release the key so the client may retry.
func (h *Handler) idempotent(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(idempotencyHeader)
		if h.idempotency == nil || key == "" {
			next(w, r)
			return
		}

		bodyBytes, err := io.ReadAll(r.Body)
		if err != nil {
			respondWithError(w, http.StatusInternalServerError, "Stream read error")
			return
		}
		r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		// Scope the hash to the route so one key cannot replay across endpoints.
		hash := sha256.Sum256(append([]byte(r.Method+" "+r.URL.Path+"\n"), bodyBytes...))
		reqHash := hex.EncodeToString(hash[:])

		existing, err := h.idempotency.Reserve(r.Context(), key, reqHash)
		if err != nil {
			h.logger.Error("idempotency reserve failed", zap.String("key", key), zap.Error(err))
			respondWithError(w, http.StatusServiceUnavailable, "Idempotency store unavailable")
			return
		}

		if existing != nil {
			switch {
			case existing.RequestHash != reqHash:
				respondWithError(w, http.StatusUnprocessableEntity, "Key reuse with mismatched payload")
			case existing.Status != statusCompleted:
				respondWithError(w, http.StatusConflict, "Request processing in progress")
			default:
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Idempotent-Replayed", "true")
				w.WriteHeader(existing.ResponseStatus)
				w.Write(existing.ResponseBody)
			}
			return
		}

		rec := &statusRecorder{ResponseWriter: w, buffer: &bytes.Buffer{}}
		next(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}

		// The request context may already be canceled once the response is out.
		ctx := context.WithoutCancel(r.Context())
		if rec.status >= http.StatusInternalServerError {
			if err := h.idempotency.Release(ctx, key); err != nil {
				h.logger.Warn("idempotency release failed", zap.String("key", key), zap.Error(err))
			}
			return
		}

		err = h.idempotency.Complete(ctx, key, models.IdempotencyRecord{
			RequestHash:    reqHash,
			ResponseStatus: rec.status,
			ResponseBody:   json.RawMessage(bytes.TrimSpace(rec.buffer.Bytes())),
		})
		if err != nil {
			h.logger.Warn("idempotency complete failed", zap.String("key", key), zap.Error(err))
		}
	}
}
