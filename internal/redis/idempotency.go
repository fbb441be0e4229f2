package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// idempotencyTTL is how long a recorded result is replayed for.
	idempotencyTTL = 24 * time.Hour
)

// ErrIdempotencyInProgress indicates another request with the same key is
// still being processed.
var ErrIdempotencyInProgress = errors.New("request with this idempotency key is in progress")

// IdempotencyResult is the stored outcome of a completed mutating request.
type IdempotencyResult struct {
	CampaignID uuid.UUID `json:"campaign_id"`
	StatusCode int       `json:"status_code"`
	CreatedAt  time.Time `json:"created_at"`
}

// IdempotencyService provides replay protection for mutating operator
// requests. Starting a campaign twice with the same key must not enqueue
// recipients twice.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

// NewIdempotencyService creates a new idempotency service.
func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func buildKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// Check looks up an idempotency key. It returns the stored result if the
// request already completed, ErrIdempotencyInProgress if a request with the
// same key is still running, and (nil, nil) if the key is unknown.
func (s *IdempotencyService) Check(ctx context.Context, scope, key string) (*IdempotencyResult, error) {
	val, err := s.client.rdb.Get(ctx, buildKey(scope, key)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get failed: %w", err)
	}

	if val == "pending" {
		return nil, ErrIdempotencyInProgress
	}

	var result IdempotencyResult
	if err := json.Unmarshal([]byte(val), &result); err != nil {
		return nil, fmt.Errorf("unmarshal idempotency result: %w", err)
	}

	s.logger.Debug("idempotent request replayed",
		zap.String("scope", scope),
		zap.String("key", key),
		zap.String("campaign_id", result.CampaignID.String()),
	)
	return &result, nil
}

// Reserve atomically marks an idempotency key as in-progress. It returns
// false if the key was already reserved or completed.
func (s *IdempotencyService) Reserve(ctx context.Context, scope, key string) (bool, error) {
	ok, err := s.client.rdb.SetNX(ctx, buildKey(scope, key), "pending", idempotencyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

// Store records the final result for an idempotency key.
func (s *IdempotencyService) Store(ctx context.Context, scope, key string, result IdempotencyResult) error {
	if result.CreatedAt.IsZero() {
		result.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal idempotency result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, buildKey(scope, key), data, idempotencyTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release removes a reservation, typically after the guarded operation
// failed and should be retryable.
func (s *IdempotencyService) Release(ctx context.Context, scope, key string) error {
	if err := s.client.rdb.Del(ctx, buildKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
