package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig 描述 Redis 限流后端的连接参数。
type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

// RedisLimiter 使用 Redis 计数器实现跨副本共享的固定窗口限流。
type RedisLimiter struct {
	client *redis.Client
	prefix string
	clock  Clock
}

// NewRedisLimiter 创建 Redis 限流器实例。
func NewRedisLimiter(cfg RedisConfig) (*RedisLimiter, error) {
	if cfg.Address == "" {
		return nil, errors.New("Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "bothub:ratelimit"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("连接 Redis 失败: %w", err)
	}
	return &RedisLimiter{client: client, prefix: prefix, clock: realClock{}}, nil
}

// NewRedisLimiterWithClient 以现有客户端构造限流器，用于测试。
func NewRedisLimiterWithClient(client *redis.Client, prefix string, clock Clock) *RedisLimiter {
	if prefix == "" {
		prefix = "bothub:ratelimit"
	}
	if clock == nil {
		clock = realClock{}
	}
	return &RedisLimiter{client: client, prefix: prefix, clock: clock}
}

// Allow 实现 Limiter 接口。每个窗口使用独立的键，INCR 后在首次计数时设置过期。
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) (bool, time.Duration, error) {
	if limit <= 0 {
		return true, 0, nil
	}
	now := l.clock.Now()
	bucket := now.Unix() / int64(Window.Seconds())
	redisKey := l.prefix + ":" + key + ":" + strconv.FormatInt(bucket, 10)

	count, err := l.client.Incr(ctx, redisKey).Result()
	if err != nil {
		return false, 0, fmt.Errorf("Redis 限流计数失败: %w", err)
	}
	if count == 1 {
		// 窗口键只在首次出现时设置过期，略长于窗口避免竞争下提前消失。
		if err := l.client.Expire(ctx, redisKey, Window+10*time.Second).Err(); err != nil {
			return false, 0, fmt.Errorf("Redis 设置过期失败: %w", err)
		}
	}
	if count > int64(limit) {
		reset := time.Duration((bucket+1)*int64(Window.Seconds())-now.Unix()) * time.Second
		return false, reset, nil
	}
	return true, 0, nil
}

// Close 关闭 Redis 连接。
func (l *RedisLimiter) Close() error {
	if l == nil || l.client == nil {
		return nil
	}
	return l.client.Close()
}

var _ Limiter = (*RedisLimiter)(nil)
