package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bothub/internal/hub"
)

// ---- 审计 ----

// AppendAuditEvent 实现 hub.Store 接口。
func (s *Store) AppendAuditEvent(ctx context.Context, event *hub.AuditEvent) error {
	metadata, err := encodeJSON(event.Metadata)
	if err != nil {
		return err
	}
	if event.CreatedAt == 0 {
		event.CreatedAt = time.Now().Unix()
	}
	const stmt = `INSERT INTO audit_events (actor_id, verb, target_kind, target_id, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt,
		nullID(event.ActorID), event.Verb, event.TargetKind,
		nullID(event.TargetID), metadata, event.CreatedAt)
	if err != nil {
		return translateError(fmt.Errorf("写入审计记录失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取审计记录 ID 失败: %w", err)
	}
	event.ID = id
	return nil
}

// GetAuditEvent 返回审计记录。
func (s *Store) GetAuditEvent(ctx context.Context, id int64) (*hub.AuditEvent, error) {
	const query = `SELECT id, actor_id, verb, target_kind, target_id, metadata, created_at
FROM audit_events WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	event, err := scanAuditEvent(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	return event, nil
}

// ListAuditEvents 按时间倒序返回审计记录。
func (s *Store) ListAuditEvents(ctx context.Context, opts ...hub.ListOption) ([]*hub.AuditEvent, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, actor_id, verb, target_kind, target_id, metadata, created_at
FROM audit_events`
	var args []any
	if options.Verb != "" {
		query += ` WHERE verb = ?`
		args = append(args, options.Verb)
	}
	query += ` ORDER BY created_at DESC, id DESC`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询审计列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.AuditEvent, 0)
	for rows.Next() {
		event, err := scanAuditEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("解析审计记录失败: %w", err)
		}
		results = append(results, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历审计列表失败: %w", err)
	}
	return results, nil
}

func scanAuditEvent(row rowScanner) (*hub.AuditEvent, error) {
	var event hub.AuditEvent
	var actorID, targetID sql.NullInt64
	var metadata sql.NullString
	if err := row.Scan(&event.ID, &actorID, &event.Verb, &event.TargetKind,
		&targetID, &metadata, &event.CreatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	event.ActorID = actorID.Int64
	event.TargetID = targetID.Int64
	event.Metadata = decoded
	return &event, nil
}

// ---- Webhook ----

// CreateWebhook 实现 hub.Store 接口。
func (s *Store) CreateWebhook(ctx context.Context, webhook *hub.Webhook) error {
	events, err := encodeJSON(webhook.Events)
	if err != nil {
		return err
	}
	if webhook.CreatedAt == 0 {
		webhook.CreatedAt = time.Now().Unix()
	}
	const stmt = `INSERT INTO webhooks (name, url, secret, events, is_active, created_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt,
		webhook.Name, webhook.URL, webhook.Secret, events,
		boolToInt(webhook.Active), webhook.CreatedAt)
	if err != nil {
		return translateError(fmt.Errorf("写入 webhook 失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取 webhook ID 失败: %w", err)
	}
	webhook.ID = id
	return nil
}

// ListWebhooks 按 id 升序返回 Webhook 订阅。
func (s *Store) ListWebhooks(ctx context.Context, activeOnly bool) ([]*hub.Webhook, error) {
	query := `SELECT id, name, url, secret, events, is_active, created_at FROM webhooks`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("查询 webhook 列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Webhook, 0)
	for rows.Next() {
		var webhook hub.Webhook
		var active int
		var events sql.NullString
		if err := rows.Scan(&webhook.ID, &webhook.Name, &webhook.URL, &webhook.Secret,
			&events, &active, &webhook.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析 webhook 失败: %w", err)
		}
		decoded, err := decodeEvents(events)
		if err != nil {
			return nil, err
		}
		webhook.Events = decoded
		webhook.Active = active == 1
		results = append(results, &webhook)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历 webhook 列表失败: %w", err)
	}
	return results, nil
}

var _ hub.Store = (*Store)(nil)
