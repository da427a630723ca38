// Package ratelimit 按调用方维度对 API 请求做固定窗口限流。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Window 是限流计数的固定窗口长度。
const Window = time.Minute

// Clock abstracts time for tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Limiter 判断给定调用方本窗口内是否还有配额。
type Limiter interface {
	// Allow 对 key 计数一次。拒绝时返回距窗口重置的剩余时间。
	Allow(ctx context.Context, key string, limit int) (bool, time.Duration, error)
	Close() error
}

// MemoryLimiter 以进程内存保存计数，适合单副本部署与测试。
// 过期窗口在 Allow 中惰性清理，防止一次性调用方把计数表撑大。
type MemoryLimiter struct {
	mu        sync.Mutex
	windows   map[string]*window
	clock     Clock
	lastSweep time.Time
}

type window struct {
	start time.Time
	count int
}

// NewMemoryLimiter 创建内存限流器。clock 为 nil 时使用系统时钟。
func NewMemoryLimiter(clock Clock) *MemoryLimiter {
	if clock == nil {
		clock = realClock{}
	}
	return &MemoryLimiter{
		windows: make(map[string]*window),
		clock:   clock,
	}
}

// Allow 实现 Limiter 接口。limit 不为正数时不限流。
func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep(now)
	w := l.windows[key]
	if w == nil {
		w = &window{start: now}
		l.windows[key] = w
	}
	if now.Sub(w.start) >= Window {
		w.start = now
		w.count = 0
	}
	w.count++
	if w.count > limit {
		return false, Window - now.Sub(w.start), nil
	}
	return true, 0, nil
}

// sweep 删除已过期的计数窗口，每个窗口周期最多执行一次。
// 调用方必须持有 l.mu。
func (l *MemoryLimiter) sweep(now time.Time) {
	if now.Sub(l.lastSweep) < Window {
		return
	}
	l.lastSweep = now
	for key, w := range l.windows {
		if now.Sub(w.start) >= Window {
			delete(l.windows, key)
		}
	}
}

// Close 对内存限流器无需操作。
func (l *MemoryLimiter) Close() error {
	return nil
}

var _ Limiter = (*MemoryLimiter)(nil)
