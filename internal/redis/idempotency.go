package redis

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// ReplayTTL matches Slack's signature window: a redelivery older than this
// fails verification anyway.
const ReplayTTL = 5 * time.Minute

const claimedMarker = "claimed"

// IdempotencyService claims keys with SET NX so at-least-once deliveries
// are processed once.
type IdempotencyService struct {
	client *Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewIdempotencyService(client *Client, ttl time.Duration, logger *zap.Logger) *IdempotencyService {
	if ttl <= 0 {
		ttl = ReplayTTL
	}
	return &IdempotencyService{client: client, ttl: ttl, logger: logger}
}

func (s *IdempotencyService) buildKey(scope, key string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, key)
}

// Reserve claims key within scope. It returns true for the first caller
// and false while an earlier claim is still live.
func (s *IdempotencyService) Reserve(ctx context.Context, scope, key string) (bool, error) {
	set, err := s.client.rdb.SetNX(ctx, s.buildKey(scope, key), claimedMarker, s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}

	if !set {
		s.logger.Debug("idempotency key already claimed",
			zap.String("scope", scope),
			zap.String("key", key),
		)
	}

	return set, nil
}

// Release drops a claim so the next delivery is processed again.
func (s *IdempotencyService) Release(ctx context.Context, scope, key string) error {
	if err := s.client.rdb.Del(ctx, s.buildKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("redis del failed: %w", err)
	}
	return nil
}
