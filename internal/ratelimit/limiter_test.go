package ratelimit

import (
	"context"
	"strconv"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestMemoryLimiterWindow(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowed, _, err := limiter.Allow(ctx, "user:1", 3)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !allowed {
			t.Fatalf("request %d should pass", i+1)
		}
	}
	allowed, retryAfter, err := limiter.Allow(ctx, "user:1", 3)
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if allowed {
		t.Fatalf("fourth request should be rejected")
	}
	if retryAfter <= 0 || retryAfter > Window {
		t.Fatalf("unexpected retry-after %v", retryAfter)
	}

	// 其他调用方不受影响
	if allowed, _, _ := limiter.Allow(ctx, "user:2", 3); !allowed {
		t.Fatalf("independent key should pass")
	}

	// 窗口重置后恢复配额
	clock.advance(Window)
	if allowed, _, _ := limiter.Allow(ctx, "user:1", 3); !allowed {
		t.Fatalf("request should pass after window reset")
	}
}

func TestMemoryLimiterEvictsStaleWindows(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(clock)
	ctx := context.Background()

	// 大量一次性调用方各计数一次
	for i := 0; i < 100; i++ {
		if allowed, _, _ := limiter.Allow(ctx, "anon:"+strconv.Itoa(i), 10); !allowed {
			t.Fatalf("request %d should pass", i)
		}
	}

	clock.advance(Window + time.Second)
	if allowed, _, _ := limiter.Allow(ctx, "user:1", 10); !allowed {
		t.Fatalf("fresh key should pass")
	}

	limiter.mu.Lock()
	remaining := len(limiter.windows)
	limiter.mu.Unlock()
	if remaining != 1 {
		t.Fatalf("stale windows should be evicted, %d left", remaining)
	}
}

func TestMemoryLimiterUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter(nil)
	for i := 0; i < 1000; i++ {
		allowed, _, err := limiter.Allow(context.Background(), "user:1", 0)
		if err != nil || !allowed {
			t.Fatalf("zero limit must mean unlimited, got allowed=%v err=%v", allowed, err)
		}
	}
}
