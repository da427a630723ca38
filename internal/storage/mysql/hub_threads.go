package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"bothub/internal/hub"
)

// ---- 讨论串 ----

// CreateThread 实现 hub.Store 接口，挂载点约束由数据库 CHECK 兜底。
func (s *Store) CreateThread(ctx context.Context, thread *hub.Thread) error {
	now := time.Now().Unix()
	const stmt = `INSERT INTO threads (title, kind, project_id, task_id, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt,
		thread.Title, string(thread.Kind), nullIntPtr(thread.ProjectID),
		nullIntPtr(thread.TaskID), nullID(thread.CreatedBy), now, now)
	if err != nil {
		return translateError(fmt.Errorf("写入讨论串失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取讨论串 ID 失败: %w", err)
	}
	thread.ID = id
	thread.CreatedAt = now
	thread.UpdatedAt = now
	return nil
}

// GetThread 返回讨论串。
func (s *Store) GetThread(ctx context.Context, id int64) (*hub.Thread, error) {
	const query = `SELECT id, title, kind, project_id, task_id, created_by, created_at, updated_at
FROM threads WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	thread, err := scanThread(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询讨论串失败: %w", err)
	}
	return thread, nil
}

// UpdateThread 更新讨论串标题与类型，挂载点不可变。
func (s *Store) UpdateThread(ctx context.Context, thread *hub.Thread) error {
	const stmt = `UPDATE threads SET title = ?, kind = ?, updated_at = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, stmt,
		thread.Title, string(thread.Kind), time.Now().Unix(), thread.ID); err != nil {
		return translateError(fmt.Errorf("更新讨论串失败: %w", err))
	}
	refreshed, err := s.GetThread(ctx, thread.ID)
	if err != nil {
		return err
	}
	*thread = *refreshed
	return nil
}

// DeleteThread 删除讨论串，消息由外键级联清理。
func (s *Store) DeleteThread(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM threads WHERE id = ?`, id, "删除讨论串失败")
}

// ListThreads 按 id 升序返回讨论串。
func (s *Store) ListThreads(ctx context.Context, opts ...hub.ListOption) ([]*hub.Thread, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, title, kind, project_id, task_id, created_by, created_at, updated_at
FROM threads WHERE 1 = 1`
	var args []any
	if options.ProjectID != 0 {
		query += ` AND project_id = ?`
		args = append(args, options.ProjectID)
	}
	if options.TaskID != 0 {
		query += ` AND task_id = ?`
		args = append(args, options.TaskID)
	}
	query += ` ORDER BY id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询讨论串列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Thread, 0)
	for rows.Next() {
		thread, err := scanThread(rows)
		if err != nil {
			return nil, fmt.Errorf("解析讨论串失败: %w", err)
		}
		results = append(results, thread)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历讨论串列表失败: %w", err)
	}
	return results, nil
}

func scanThread(row rowScanner) (*hub.Thread, error) {
	var thread hub.Thread
	var kind string
	var projectID, taskID, createdBy sql.NullInt64
	if err := row.Scan(&thread.ID, &thread.Title, &kind, &projectID, &taskID,
		&createdBy, &thread.CreatedAt, &thread.UpdatedAt); err != nil {
		return nil, err
	}
	thread.Kind = hub.ThreadKind(kind)
	thread.ProjectID = int64Ptr(projectID)
	thread.TaskID = int64Ptr(taskID)
	thread.CreatedBy = createdBy.Int64
	return &thread, nil
}

// ---- 消息 ----

// CreateMessage 实现 hub.Store 接口，同时推进所属讨论串的活跃时间。
func (s *Store) CreateMessage(ctx context.Context, message *hub.Message) error {
	metadata, err := encodeJSON(message.Metadata)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启消息事务失败: %w", err)
	}

	const stmt = `INSERT INTO messages (thread_id, created_by, author_role, author_label, body, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, stmt,
		message.ThreadID, nullID(message.CreatedBy), string(message.AuthorRole),
		message.AuthorLabel, message.Body, metadata, now)
	if err != nil {
		tx.Rollback()
		return translateError(fmt.Errorf("写入消息失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("获取消息 ID 失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE threads SET updated_at = ? WHERE id = ?`, now, message.ThreadID); err != nil {
		tx.Rollback()
		return fmt.Errorf("更新讨论串活跃时间失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交消息事务失败: %w", err)
	}
	message.ID = id
	message.CreatedAt = now
	return nil
}

// GetMessage 返回消息。
func (s *Store) GetMessage(ctx context.Context, id int64) (*hub.Message, error) {
	const query = `SELECT id, thread_id, created_by, author_role, author_label, body, metadata, created_at
FROM messages WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	message, err := scanMessage(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询消息失败: %w", err)
	}
	return message, nil
}

// ListMessages 按 created_at,id 升序返回消息。
func (s *Store) ListMessages(ctx context.Context, opts ...hub.ListOption) ([]*hub.Message, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, thread_id, created_by, author_role, author_label, body, metadata, created_at
FROM messages`
	var args []any
	if options.ThreadID != 0 {
		query += ` WHERE thread_id = ?`
		args = append(args, options.ThreadID)
	}
	query += ` ORDER BY created_at, id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询消息列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("解析消息失败: %w", err)
		}
		results = append(results, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历消息列表失败: %w", err)
	}
	return results, nil
}

func scanMessage(row rowScanner) (*hub.Message, error) {
	var message hub.Message
	var role string
	var createdBy sql.NullInt64
	var metadata sql.NullString
	if err := row.Scan(&message.ID, &message.ThreadID, &createdBy, &role,
		&message.AuthorLabel, &message.Body, &metadata, &message.CreatedAt); err != nil {
		return nil, err
	}
	decoded, err := decodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	message.AuthorRole = hub.AuthorRole(role)
	message.CreatedBy = createdBy.Int64
	message.Metadata = decoded
	return &message, nil
}
