package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bothub/internal/hub"
)

// ---- 任务 ----

// CreateTask 实现 hub.Store 接口，任务与标签关联在同一事务内写入。
func (s *Store) CreateTask(ctx context.Context, task *hub.Task) error {
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启任务事务失败: %w", err)
	}

	const stmt = `INSERT INTO tasks
(project_id, parent_id, title, description, status, priority, position, due_at, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, stmt,
		task.ProjectID, nullIntPtr(task.ParentID), task.Title, task.Description,
		string(task.Status), task.Priority, task.Position, nullIntPtr(task.DueAt),
		nullID(task.CreatedBy), now, now)
	if err != nil {
		tx.Rollback()
		return translateError(fmt.Errorf("写入任务失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("获取任务 ID 失败: %w", err)
	}
	if err := replaceTaskTags(ctx, tx, id, task.TagIDs); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交任务事务失败: %w", err)
	}
	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}

// GetTask 返回任务及其标签。
func (s *Store) GetTask(ctx context.Context, id int64) (*hub.Task, error) {
	const query = `SELECT id, project_id, parent_id, title, COALESCE(description, ''), status, priority, position, due_at, created_by, created_at, updated_at
FROM tasks WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	task, err := scanTask(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询任务失败: %w", err)
	}
	tags, err := s.loadTaskTags(ctx, []int64{task.ID})
	if err != nil {
		return nil, err
	}
	task.TagIDs = tags[task.ID]
	return task, nil
}

// UpdateTask 覆盖任务的可变字段并重建标签关联。
func (s *Store) UpdateTask(ctx context.Context, task *hub.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启任务事务失败: %w", err)
	}

	const stmt = `UPDATE tasks
SET title = ?, description = ?, status = ?, priority = ?, position = ?, parent_id = ?, due_at = ?, updated_at = ?
WHERE id = ?`
	if _, err := tx.ExecContext(ctx, stmt,
		task.Title, task.Description, string(task.Status), task.Priority, task.Position,
		nullIntPtr(task.ParentID), nullIntPtr(task.DueAt), time.Now().Unix(), task.ID); err != nil {
		tx.Rollback()
		return translateError(fmt.Errorf("更新任务失败: %w", err))
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM task_tags WHERE task_id = ?`, task.ID); err != nil {
		tx.Rollback()
		return fmt.Errorf("清理任务标签失败: %w", err)
	}
	if err := replaceTaskTags(ctx, tx, task.ID, task.TagIDs); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交任务事务失败: %w", err)
	}

	refreshed, err := s.GetTask(ctx, task.ID)
	if err != nil {
		return err
	}
	*task = *refreshed
	return nil
}

// DeleteTask 删除任务，子任务、指派与讨论由外键级联清理。
func (s *Store) DeleteTask(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM tasks WHERE id = ?`, id, "删除任务失败")
}

// ListTasks 按 position,id 升序返回任务。
func (s *Store) ListTasks(ctx context.Context, opts ...hub.ListOption) ([]*hub.Task, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, project_id, parent_id, title, COALESCE(description, ''), status, priority, position, due_at, created_by, created_at, updated_at
FROM tasks WHERE 1 = 1`
	var args []any
	if options.ProjectID != 0 {
		query += ` AND project_id = ?`
		args = append(args, options.ProjectID)
	}
	if options.ParentID != nil {
		if *options.ParentID == 0 {
			query += ` AND parent_id IS NULL`
		} else {
			query += ` AND parent_id = ?`
			args = append(args, *options.ParentID)
		}
	}
	if len(options.Statuses) > 0 {
		placeholders := make([]string, len(options.Statuses))
		for i, status := range options.Statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` AND status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	if options.Query != "" {
		query += ` AND LOWER(title) LIKE ?`
		args = append(args, "%"+strings.ToLower(options.Query)+"%")
	}
	query += ` ORDER BY position, id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询任务列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Task, 0)
	ids := make([]int64, 0)
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("解析任务失败: %w", err)
		}
		results = append(results, task)
		ids = append(ids, task.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历任务列表失败: %w", err)
	}

	tags, err := s.loadTaskTags(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, task := range results {
		task.TagIDs = tags[task.ID]
	}
	return results, nil
}

func scanTask(row rowScanner) (*hub.Task, error) {
	var task hub.Task
	var status string
	var parentID, dueAt, createdBy sql.NullInt64
	if err := row.Scan(&task.ID, &task.ProjectID, &parentID, &task.Title, &task.Description,
		&status, &task.Priority, &task.Position, &dueAt, &createdBy,
		&task.CreatedAt, &task.UpdatedAt); err != nil {
		return nil, err
	}
	task.Status = hub.TaskStatus(status)
	task.ParentID = int64Ptr(parentID)
	task.DueAt = int64Ptr(dueAt)
	task.CreatedBy = createdBy.Int64
	return &task, nil
}

func replaceTaskTags(ctx context.Context, tx *sql.Tx, taskID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT IGNORE INTO task_tags (task_id, tag_id) VALUES (?, ?)`, taskID, tagID); err != nil {
			return translateError(fmt.Errorf("写入任务标签失败: %w", err))
		}
	}
	return nil
}

// loadTaskTags 一次性加载一批任务的标签 ID，避免逐条查询。
func (s *Store) loadTaskTags(ctx context.Context, taskIDs []int64) (map[int64][]int64, error) {
	result := make(map[int64][]int64)
	if len(taskIDs) == 0 {
		return result, nil
	}
	placeholders := make([]string, len(taskIDs))
	args := make([]any, len(taskIDs))
	for i, id := range taskIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT task_id, tag_id FROM task_tags WHERE task_id IN (` +
		strings.Join(placeholders, ", ") + `) ORDER BY task_id, tag_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询任务标签失败: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var taskID, tagID int64
		if err := rows.Scan(&taskID, &tagID); err != nil {
			return nil, fmt.Errorf("解析任务标签失败: %w", err)
		}
		result[taskID] = append(result[taskID], tagID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历任务标签失败: %w", err)
	}
	return result, nil
}

// ---- 任务指派 ----

// CreateAssignment 实现 hub.Store 接口，(task,assignee,role) 冲突时返回 ErrConflict。
func (s *Store) CreateAssignment(ctx context.Context, assignment *hub.Assignment) error {
	now := time.Now().Unix()
	const stmt = `INSERT INTO task_assignments (task_id, assignee_id, role, added_by, created_at)
VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt,
		assignment.TaskID, assignment.AssigneeID, string(assignment.Role),
		nullID(assignment.AddedBy), now)
	if err != nil {
		return translateError(fmt.Errorf("写入任务指派失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取指派 ID 失败: %w", err)
	}
	assignment.ID = id
	assignment.CreatedAt = now
	return nil
}

// GetAssignment 返回任务指派。
func (s *Store) GetAssignment(ctx context.Context, id int64) (*hub.Assignment, error) {
	const query = `SELECT id, task_id, assignee_id, role, added_by, created_at
FROM task_assignments WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	assignment, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询任务指派失败: %w", err)
	}
	return assignment, nil
}

// DeleteAssignment 删除任务指派。
func (s *Store) DeleteAssignment(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM task_assignments WHERE id = ?`, id, "删除任务指派失败")
}

// ListAssignments 按 id 升序返回任务指派。
func (s *Store) ListAssignments(ctx context.Context, opts ...hub.ListOption) ([]*hub.Assignment, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, task_id, assignee_id, role, added_by, created_at FROM task_assignments`
	var args []any
	if options.TaskID != 0 {
		query += ` WHERE task_id = ?`
		args = append(args, options.TaskID)
	}
	query += ` ORDER BY id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询指派列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Assignment, 0)
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, fmt.Errorf("解析任务指派失败: %w", err)
		}
		results = append(results, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历指派列表失败: %w", err)
	}
	return results, nil
}

func scanAssignment(row rowScanner) (*hub.Assignment, error) {
	var assignment hub.Assignment
	var role string
	var addedBy sql.NullInt64
	if err := row.Scan(&assignment.ID, &assignment.TaskID, &assignment.AssigneeID,
		&role, &addedBy, &assignment.CreatedAt); err != nil {
		return nil, err
	}
	assignment.Role = hub.AssignmentRole(role)
	assignment.AddedBy = addedBy.Int64
	return &assignment, nil
}
