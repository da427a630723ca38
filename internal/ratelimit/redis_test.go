package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiterForTest(t *testing.T, clock Clock) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()
	server := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: server.Addr()})
	limiter := NewRedisLimiterWithClient(client, "test:ratelimit", clock)
	t.Cleanup(func() { _ = limiter.Close() })
	return limiter, server
}

func TestRedisLimiterCountsPerWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter, _ := newRedisLimiterForTest(t, clock)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, _, err := limiter.Allow(ctx, "user:1", 2)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	allowed, retryAfter, err := limiter.Allow(ctx, "user:1", 2)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatalf("third request should be rejected")
	}
	if retryAfter <= 0 || retryAfter > Window {
		t.Fatalf("unexpected retry-after %v", retryAfter)
	}

	// 新窗口使用新的键
	clock.advance(Window)
	if allowed, _, _ := limiter.Allow(ctx, "user:1", 2); !allowed {
		t.Fatalf("request should pass in the next window")
	}
}

func TestRedisLimiterSetsExpiry(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter, server := newRedisLimiterForTest(t, clock)

	if _, _, err := limiter.Allow(context.Background(), "user:7", 10); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	keys := server.Keys()
	if len(keys) != 1 {
		t.Fatalf("expected one counter key, got %v", keys)
	}
	if ttl := server.TTL(keys[0]); ttl <= 0 {
		t.Fatalf("counter key must expire, ttl=%v", ttl)
	}
}
