package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"bothub/internal/hub"
	"bothub/pkg/logger"
)

// SignatureHeader 携带投递内容的 HMAC-SHA256 签名。
const SignatureHeader = "X-BotHub-Signature"

// DeliveryHeader 携带本次投递的唯一 ID，订阅方可以据此去重。
const DeliveryHeader = "X-BotHub-Delivery"

// Directory 提供投递所需的订阅与用户信息，由存储层实现。
type Directory interface {
	ListWebhooks(ctx context.Context, activeOnly bool) ([]*hub.Webhook, error)
	GetUser(ctx context.Context, id int64) (*hub.User, error)
}

// Payload 是推送给订阅方的事件格式。
type Payload struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Actor     *PayloadActor  `json:"actor,omitempty"`
	Target    *PayloadTarget `json:"target,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt int64          `json:"created_at"`
}

// PayloadActor 描述触发事件的账号。
type PayloadActor struct {
	ID       int64  `json:"id"`
	Username string `json:"username,omitempty"`
}

// PayloadTarget 描述事件作用的资源。
type PayloadTarget struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id"`
}

// Dispatcher 消费事件队列并把事件推送给所有匹配的订阅方。
// 同时实现 hub.EventSink，供业务服务直接投递。
type Dispatcher struct {
	queue     Queue
	directory Directory
	client    *http.Client
	workers   int
}

// Config 配置投递行为。
type Config struct {
	Timeout time.Duration
	Workers int
}

// NewDispatcher 构造投递器。
func NewDispatcher(queue Queue, directory Directory, cfg Config) *Dispatcher {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	return &Dispatcher{
		queue:     queue,
		directory: directory,
		client:    &http.Client{Timeout: timeout},
		workers:   workers,
	}
}

// Publish 实现 hub.EventSink，将事件序列化后入队。
func (d *Dispatcher) Publish(ctx context.Context, event *hub.AuditEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失败: %w", err)
	}
	return d.queue.Publish(ctx, payload)
}

// Run 启动消费协程，阻塞直到上下文取消。
func (d *Dispatcher) Run(ctx context.Context) error {
	return d.queue.Consume(ctx, d.workers, d.handle)
}

// handle 反序列化事件并推送给订阅方。
func (d *Dispatcher) handle(ctx context.Context, payload []byte) error {
	var event hub.AuditEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		logger.L().Error("事件载荷损坏", slog.Any("error", err))
		return nil
	}
	return d.Deliver(ctx, &event)
}

// Deliver 将事件推送给所有匹配的活跃订阅。单个订阅失败不影响其他订阅。
func (d *Dispatcher) Deliver(ctx context.Context, event *hub.AuditEvent) error {
	webhooks, err := d.directory.ListWebhooks(ctx, true)
	if err != nil {
		return fmt.Errorf("读取 webhook 订阅失败: %w", err)
	}
	if len(webhooks) == 0 {
		return nil
	}
	body, err := json.Marshal(d.buildPayload(ctx, event))
	if err != nil {
		return fmt.Errorf("序列化推送载荷失败: %w", err)
	}
	for _, hook := range webhooks {
		if !subscribed(hook, event.Verb) {
			continue
		}
		if err := d.post(ctx, hook, body); err != nil {
			logger.L().Error("webhook 投递失败",
				slog.Any("error", err),
				slog.String("webhook", hook.Name),
				slog.String("event", event.Verb),
			)
			continue
		}
		logger.Audit().Info("webhook_delivered",
			slog.String("webhook", hook.Name),
			slog.String("event", event.Verb),
			slog.Int64("target_id", event.TargetID),
		)
	}
	return nil
}

// buildPayload 组装推送载荷，作者信息缺失时省略。
func (d *Dispatcher) buildPayload(ctx context.Context, event *hub.AuditEvent) Payload {
	payload := Payload{
		ID:        event.ID,
		Event:     event.Verb,
		Metadata:  event.Metadata,
		CreatedAt: event.CreatedAt,
	}
	if event.ActorID != 0 {
		actor := &PayloadActor{ID: event.ActorID}
		if user, err := d.directory.GetUser(ctx, event.ActorID); err == nil {
			actor.Username = user.Username
		}
		payload.Actor = actor
	}
	if event.TargetKind != "" {
		payload.Target = &PayloadTarget{Kind: event.TargetKind, ID: event.TargetID}
	}
	return payload
}

// post 发送一次签名后的 HTTP 推送。
func (d *Dispatcher) post(ctx context.Context, hook *hub.Webhook, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(DeliveryHeader, uuid.NewString())
	if hook.Secret != "" {
		req.Header.Set(SignatureHeader, Sign(hook.Secret, body))
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("订阅方返回 %s", resp.Status)
	}
	return nil
}

// Sign 计算推送内容的 HMAC-SHA256 签名，十六进制小写编码。
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// subscribed 判断订阅是否关注该事件。空过滤表示订阅全部。
func subscribed(hook *hub.Webhook, verb string) bool {
	if len(hook.Events) == 0 {
		return true
	}
	for _, event := range hook.Events {
		if event == verb {
			return true
		}
	}
	return false
}

var _ hub.EventSink = (*Dispatcher)(nil)
