package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func setupTestRedis(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
	})

	return &Client{rdb: rdb, logger: zap.NewNop()}, mr
}

func TestIdempotencyService_FirstClaimWins(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, ReplayTTL, zap.NewNop())
	ctx := context.Background()

	first, err := svc.Reserve(ctx, "slack_callback", "D1:1700000000.000001:done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !first {
		t.Fatal("expected first reserve to succeed")
	}

	again, err := svc.Reserve(ctx, "slack_callback", "D1:1700000000.000001:done")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again {
		t.Fatal("expected duplicate reserve to fail")
	}
}

func TestIdempotencyService_ScopeIsolation(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, ReplayTTL, zap.NewNop())
	ctx := context.Background()

	if ok, _ := svc.Reserve(ctx, "scope-a", "same-key"); !ok {
		t.Fatal("scope-a should reserve")
	}
	if ok, _ := svc.Reserve(ctx, "scope-b", "same-key"); !ok {
		t.Fatal("scope-b should reserve the same key independently")
	}
}

func TestIdempotencyService_ExpiresAfterTTL(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, time.Minute, zap.NewNop())
	ctx := context.Background()

	svc.Reserve(ctx, "slack_callback", "k")
	mr.FastForward(61 * time.Second)

	if ok, _ := svc.Reserve(ctx, "slack_callback", "k"); !ok {
		t.Fatal("expected key to be claimable after TTL")
	}
}

func TestIdempotencyService_Release(t *testing.T) {
	client, _ := setupTestRedis(t)
	svc := NewIdempotencyService(client, 0, zap.NewNop())
	ctx := context.Background()

	svc.Reserve(ctx, "slack_callback", "k")
	if err := svc.Release(ctx, "slack_callback", "k"); err != nil {
		t.Fatalf("release failed: %v", err)
	}
	if ok, _ := svc.Reserve(ctx, "slack_callback", "k"); !ok {
		t.Fatal("expected key to be claimable after release")
	}
}

func TestIdempotencyService_RedisDown(t *testing.T) {
	client, mr := setupTestRedis(t)
	svc := NewIdempotencyService(client, ReplayTTL, zap.NewNop())
	mr.Close()

	if _, err := svc.Reserve(context.Background(), "slack_callback", "k"); err == nil {
		t.Fatal("expected an error when redis is unreachable")
	}
}
