package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bothub/internal/hub"
	"bothub/pkg/logger"
)

// Registry 负责订阅的持久化，由存储层实现。
type Registry interface {
	ListWebhooks(ctx context.Context, activeOnly bool) ([]*hub.Webhook, error)
	CreateWebhook(ctx context.Context, webhook *hub.Webhook) error
}

// Subscription 描述配置文件中声明的一条订阅。
type Subscription struct {
	Name   string
	URL    string
	Secret string
	Events []string
}

// EnsureSubscriptions 把配置声明的订阅写入存储。按名称幂等，
// 重启时已存在的订阅保持原样不被覆盖。
func EnsureSubscriptions(ctx context.Context, registry Registry, subs []Subscription) error {
	if len(subs) == 0 {
		return nil
	}
	existing, err := registry.ListWebhooks(ctx, false)
	if err != nil {
		return fmt.Errorf("读取已有 webhook 订阅失败: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, hook := range existing {
		known[hook.Name] = true
	}
	for _, sub := range subs {
		name := strings.TrimSpace(sub.Name)
		if name == "" || strings.TrimSpace(sub.URL) == "" {
			return fmt.Errorf("webhook 订阅缺少 name 或 url: %+v", sub)
		}
		if known[name] {
			continue
		}
		if err := registry.CreateWebhook(ctx, &hub.Webhook{
			Name:   name,
			URL:    sub.URL,
			Secret: sub.Secret,
			Events: sub.Events,
			Active: true,
		}); err != nil {
			return fmt.Errorf("注册 webhook 订阅 %s 失败: %w", name, err)
		}
		logger.L().Info("webhook 订阅已注册",
			slog.String("name", name),
			slog.String("url", sub.URL),
		)
	}
	return nil
}
