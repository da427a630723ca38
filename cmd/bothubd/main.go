package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bothub/internal/api"
	"bothub/internal/auth"
	"bothub/internal/config"
	"bothub/internal/graphql"
	"bothub/internal/hub"
	"bothub/internal/observability/metrics"
	"bothub/internal/ratelimit"
	"bothub/internal/storage/mysql"
	"bothub/internal/webhook"
	"bothub/pkg/logger"
)

// main 是 bothubd 守护进程的入口。
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		log.Fatalf("bothubd 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("BOTHUB_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "bothub.yaml")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: cfg.Logging.Outputs,
		Audit: logger.AuditConfig{
			Enabled:    cfg.Logging.Audit.Enabled,
			Path:       cfg.Logging.Audit.Path,
			MaxSizeMB:  cfg.Logging.Audit.MaxSizeMB,
			MaxBackups: cfg.Logging.Audit.MaxBackups,
			MaxAgeDays: cfg.Logging.Audit.MaxAgeDays,
		},
	}); err != nil {
		return err
	}
	defer func() {
		_ = logger.Sync()
	}()

	// 初始化存储后端。同一个存储实例同时服务业务数据与账号目录。
	var (
		hubStore  hub.Store
		authStore auth.Store
	)
	switch cfg.Storage.Driver {
	case "", "memory":
		store := hub.NewMemoryStore()
		hubStore, authStore = store, store
	case "mysql":
		store, err := mysql.NewStore(ctx, mysql.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.MaxIdleConns,
			ConnMaxLifetime: time.Duration(cfg.Storage.ConnMaxLifetimeSeconds) * time.Second,
			ConnMaxIdleTime: time.Duration(cfg.Storage.ConnMaxIdleTimeSeconds) * time.Second,
		})
		if err != nil {
			return err
		}
		defer store.Close()
		hubStore, authStore = store, store
	default:
		return fmt.Errorf("未知的存储驱动: %s", cfg.Storage.Driver)
	}

	// 初始化身份认证服务并写入种子账号。
	authCfg := auth.Config{
		Mode: auth.Mode(cfg.Auth.Mode),
		JWT: auth.JWTOptions{
			Secret:     cfg.Auth.JWT.Secret,
			Issuer:     cfg.Auth.JWT.Issuer,
			Audience:   cfg.Auth.JWT.Audience,
			AccessTTL:  cfg.Auth.JWT.AccessTTLSeconds,
			RefreshTTL: cfg.Auth.JWT.RefreshTTLSeconds,
		},
	}
	for _, seed := range cfg.Auth.Seeds {
		authCfg.Seeds = append(authCfg.Seeds, auth.Seed{
			Username:    seed.Username,
			Password:    seed.Password,
			Kind:        auth.ParseKind(seed.Kind),
			DisplayName: seed.DisplayName,
			Superuser:   seed.Superuser,
			Disabled:    seed.Disabled,
		})
	}
	authSvc, err := auth.NewService(ctx, authCfg, authStore)
	if err != nil {
		return err
	}

	// 初始化事件队列与 webhook 投递器。
	var queue webhook.Queue
	switch cfg.Webhooks.Driver {
	case "", "memory":
		queue = webhook.NewMemoryQueue(1024)
	case "rabbitmq":
		q, err := webhook.NewRabbitMQQueue(webhook.RabbitMQConfig{
			URL:        cfg.Webhooks.RabbitMQ.URL,
			Queue:      cfg.Webhooks.RabbitMQ.Queue,
			Prefetch:   cfg.Webhooks.RabbitMQ.Prefetch,
			Durable:    cfg.Webhooks.RabbitMQ.Durable,
			AutoDelete: cfg.Webhooks.RabbitMQ.AutoDelete,
		})
		if err != nil {
			return err
		}
		queue = q
	default:
		return fmt.Errorf("未知的队列驱动: %s", cfg.Webhooks.Driver)
	}
	defer func() {
		if err := queue.Close(); err != nil {
			logger.L().Error("关闭事件队列失败", slog.Any("error", err))
		}
	}()

	// 注册配置声明的 webhook 订阅，按名称幂等。
	var subscriptions []webhook.Subscription
	for _, sub := range cfg.Webhooks.Subscriptions {
		subscriptions = append(subscriptions, webhook.Subscription{
			Name:   sub.Name,
			URL:    sub.URL,
			Secret: sub.Secret,
			Events: sub.Events,
		})
	}
	if err := webhook.EnsureSubscriptions(ctx, hubStore, subscriptions); err != nil {
		return err
	}

	dispatcher := webhook.NewDispatcher(queue, hubStore, webhook.Config{
		Timeout: time.Duration(cfg.Webhooks.TimeoutSeconds) * time.Second,
		Workers: cfg.Webhooks.Workers,
	})

	dispatchCtx, dispatchCancel := context.WithCancel(ctx)
	defer dispatchCancel()
	go func() {
		if err := dispatcher.Run(dispatchCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("webhook 投递器异常退出", slog.Any("error", err))
		}
	}()

	// 组装业务服务。认证关闭时允许匿名访问，仅用于本地开发。
	hubOpts := []hub.Option{hub.WithEventSink(dispatcher)}
	if authSvc.Mode() == auth.ModeDisabled {
		hubOpts = append(hubOpts, hub.WithAnonymousAccess())
	}
	hubSvc := hub.NewService(hubStore, hubOpts...)

	// 初始化限流器。
	var limiter ratelimit.Limiter
	switch cfg.RateLimit.Driver {
	case "", "memory":
		limiter = ratelimit.NewMemoryLimiter(nil)
	case "redis":
		l, err := ratelimit.NewRedisLimiter(ratelimit.RedisConfig{
			Address:   cfg.RateLimit.Redis.Address,
			Password:  cfg.RateLimit.Redis.Password,
			DB:        cfg.RateLimit.Redis.DB,
			KeyPrefix: cfg.RateLimit.Redis.KeyPrefix,
		})
		if err != nil {
			return err
		}
		limiter = l
	default:
		return fmt.Errorf("未知的限流驱动: %s", cfg.RateLimit.Driver)
	}
	defer func() {
		if err := limiter.Close(); err != nil {
			logger.L().Error("关闭限流器失败", slog.Any("error", err))
		}
	}()

	if cfg.Server.MetricsAddress != "" {
		go func() {
			if err := metrics.StartServer(ctx, cfg.Server.MetricsAddress); err != nil && !errors.Is(err, context.Canceled) {
				logger.L().Error("指标服务异常退出", slog.Any("error", err))
			}
		}()
	}

	gqlHandler, err := graphql.NewHandler(hubSvc)
	if err != nil {
		return err
	}

	server := api.NewServer(cfg.Server.Address, hubSvc, authSvc,
		api.WithRateLimit(limiter, ratelimit.Limits{
			HumanPerMinute: cfg.RateLimit.HumanPerMinute,
			AgentPerMinute: cfg.RateLimit.AgentPerMinute,
		}),
		api.WithGraphQL(gqlHandler),
	)

	logger.L().Info("bothubd 启动",
		slog.String("address", cfg.Server.Address),
		slog.String("storage", cfg.Storage.Driver),
		slog.String("auth_mode", string(authSvc.Mode())),
	)

	if err := server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
