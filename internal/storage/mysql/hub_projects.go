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

// ---- 项目 ----

// CreateProject 实现 hub.Store 接口。
func (s *Store) CreateProject(ctx context.Context, project *hub.Project) error {
	now := time.Now().Unix()
	const stmt = `INSERT INTO projects (name, description, is_archived, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt,
		project.Name, project.Description, boolToInt(project.Archived),
		nullID(project.CreatedBy), now, now)
	if err != nil {
		return translateError(fmt.Errorf("写入项目失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取项目 ID 失败: %w", err)
	}
	project.ID = id
	project.CreatedAt = now
	project.UpdatedAt = now
	return nil
}

// GetProject 返回项目。
func (s *Store) GetProject(ctx context.Context, id int64) (*hub.Project, error) {
	const query = `SELECT id, name, COALESCE(description, ''), is_archived, created_by, created_at, updated_at
FROM projects WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	project, err := scanProject(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询项目失败: %w", err)
	}
	return project, nil
}

// UpdateProject 覆盖项目的可变字段。
func (s *Store) UpdateProject(ctx context.Context, project *hub.Project) error {
	const stmt = `UPDATE projects SET name = ?, description = ?, is_archived = ?, updated_at = ?
WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, stmt,
		project.Name, project.Description, boolToInt(project.Archived),
		time.Now().Unix(), project.ID); err != nil {
		return translateError(fmt.Errorf("更新项目失败: %w", err))
	}
	refreshed, err := s.GetProject(ctx, project.ID)
	if err != nil {
		return err
	}
	*project = *refreshed
	return nil
}

// DeleteProject 删除项目，成员、任务与讨论由外键级联清理。
func (s *Store) DeleteProject(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM projects WHERE id = ?`, id, "删除项目失败")
}

// ListProjects 按 name,id 升序返回项目。
func (s *Store) ListProjects(ctx context.Context, opts ...hub.ListOption) ([]*hub.Project, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, name, COALESCE(description, ''), is_archived, created_by, created_at, updated_at
FROM projects WHERE 1 = 1`
	var args []any
	if !options.IncludeArchived {
		query += ` AND is_archived = 0`
	}
	if options.Query != "" {
		query += ` AND LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(options.Query)+"%")
	}
	query += ` ORDER BY name, id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询项目列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("解析项目失败: %w", err)
		}
		results = append(results, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历项目列表失败: %w", err)
	}
	return results, nil
}

func scanProject(row rowScanner) (*hub.Project, error) {
	var project hub.Project
	var archived int
	var createdBy sql.NullInt64
	if err := row.Scan(&project.ID, &project.Name, &project.Description, &archived,
		&createdBy, &project.CreatedAt, &project.UpdatedAt); err != nil {
		return nil, err
	}
	project.Archived = archived == 1
	project.CreatedBy = createdBy.Int64
	return &project, nil
}

// ---- 成员关系 ----

// CreateMembership 实现 hub.Store 接口，(project,user) 冲突时返回 ErrConflict。
func (s *Store) CreateMembership(ctx context.Context, membership *hub.Membership) error {
	now := time.Now().Unix()
	const stmt = `INSERT INTO project_memberships (project_id, user_id, role, invited_by, created_at)
VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt,
		membership.ProjectID, membership.UserID, string(membership.Role),
		nullID(membership.InvitedBy), now)
	if err != nil {
		return translateError(fmt.Errorf("写入成员关系失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取成员关系 ID 失败: %w", err)
	}
	membership.ID = id
	membership.CreatedAt = now
	return nil
}

// GetMembership 返回成员关系。
func (s *Store) GetMembership(ctx context.Context, id int64) (*hub.Membership, error) {
	const query = `SELECT id, project_id, user_id, role, invited_by, created_at
FROM project_memberships WHERE id = ?`
	return s.queryMembership(ctx, query, id)
}

// FindMembership 按 (project,user) 返回成员关系。
func (s *Store) FindMembership(ctx context.Context, projectID, userID int64) (*hub.Membership, error) {
	const query = `SELECT id, project_id, user_id, role, invited_by, created_at
FROM project_memberships WHERE project_id = ? AND user_id = ?`
	return s.queryMembership(ctx, query, projectID, userID)
}

func (s *Store) queryMembership(ctx context.Context, query string, args ...any) (*hub.Membership, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	membership, err := scanMembership(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询成员关系失败: %w", err)
	}
	return membership, nil
}

// UpdateMembership 更新成员角色。
func (s *Store) UpdateMembership(ctx context.Context, membership *hub.Membership) error {
	const stmt = `UPDATE project_memberships SET role = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, stmt, string(membership.Role), membership.ID); err != nil {
		return translateError(fmt.Errorf("更新成员关系失败: %w", err))
	}
	refreshed, err := s.GetMembership(ctx, membership.ID)
	if err != nil {
		return err
	}
	*membership = *refreshed
	return nil
}

// DeleteMembership 删除成员关系。
func (s *Store) DeleteMembership(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM project_memberships WHERE id = ?`, id, "删除成员关系失败")
}

// ListMemberships 按 id 升序返回成员关系。
func (s *Store) ListMemberships(ctx context.Context, opts ...hub.ListOption) ([]*hub.Membership, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, project_id, user_id, role, invited_by, created_at
FROM project_memberships`
	var args []any
	if options.ProjectID != 0 {
		query += ` WHERE project_id = ?`
		args = append(args, options.ProjectID)
	}
	query += ` ORDER BY id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询成员列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Membership, 0)
	for rows.Next() {
		membership, err := scanMembership(rows)
		if err != nil {
			return nil, fmt.Errorf("解析成员关系失败: %w", err)
		}
		results = append(results, membership)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历成员列表失败: %w", err)
	}
	return results, nil
}

func scanMembership(row rowScanner) (*hub.Membership, error) {
	var membership hub.Membership
	var role string
	var invitedBy sql.NullInt64
	if err := row.Scan(&membership.ID, &membership.ProjectID, &membership.UserID,
		&role, &invitedBy, &membership.CreatedAt); err != nil {
		return nil, err
	}
	membership.Role = hub.Role(role)
	membership.InvitedBy = invitedBy.Int64
	return &membership, nil
}

// ---- 标签 ----

// CreateTag 实现 hub.Store 接口，名称或 slug 冲突时返回 ErrConflict。
func (s *Store) CreateTag(ctx context.Context, tag *hub.Tag) error {
	now := time.Now().Unix()
	const stmt = `INSERT INTO tags (name, slug, color, description, created_at)
VALUES (?, ?, ?, ?, ?)`
	res, err := s.db.ExecContext(ctx, stmt, tag.Name, tag.Slug, tag.Color, tag.Description, now)
	if err != nil {
		return translateError(fmt.Errorf("写入标签失败: %w", err))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("获取标签 ID 失败: %w", err)
	}
	tag.ID = id
	tag.CreatedAt = now
	return nil
}

// GetTag 返回标签。
func (s *Store) GetTag(ctx context.Context, id int64) (*hub.Tag, error) {
	const query = `SELECT id, name, slug, color, COALESCE(description, ''), created_at
FROM tags WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	var tag hub.Tag
	if err := row.Scan(&tag.ID, &tag.Name, &tag.Slug, &tag.Color, &tag.Description, &tag.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询标签失败: %w", err)
	}
	return &tag, nil
}

// UpdateTag 更新标签字段，唯一键冲突时返回 ErrConflict。
func (s *Store) UpdateTag(ctx context.Context, tag *hub.Tag) error {
	const stmt = `UPDATE tags SET name = ?, slug = ?, color = ?, description = ? WHERE id = ?`
	if _, err := s.db.ExecContext(ctx, stmt, tag.Name, tag.Slug, tag.Color, tag.Description, tag.ID); err != nil {
		return translateError(fmt.Errorf("更新标签失败: %w", err))
	}
	refreshed, err := s.GetTag(ctx, tag.ID)
	if err != nil {
		return err
	}
	*tag = *refreshed
	return nil
}

// DeleteTag 删除标签，任务关联由外键级联清理。
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, `DELETE FROM tags WHERE id = ?`, id, "删除标签失败")
}

// ListTags 按名称升序返回标签。
func (s *Store) ListTags(ctx context.Context, opts ...hub.ListOption) ([]*hub.Tag, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, name, slug, color, COALESCE(description, ''), created_at FROM tags`
	var args []any
	if options.Query != "" {
		query += ` WHERE LOWER(name) LIKE ?`
		args = append(args, "%"+strings.ToLower(options.Query)+"%")
	}
	query += ` ORDER BY name, id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询标签列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.Tag, 0)
	for rows.Next() {
		var tag hub.Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Slug, &tag.Color, &tag.Description, &tag.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析标签失败: %w", err)
		}
		results = append(results, &tag)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历标签列表失败: %w", err)
	}
	return results, nil
}

// deleteByID 执行按主键删除，未命中时返回 ErrNotFound。
func (s *Store) deleteByID(ctx context.Context, stmt string, id int64, failMsg string) error {
	res, err := s.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return translateError(fmt.Errorf("%s: %w", failMsg, err))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", failMsg, err)
	}
	if affected == 0 {
		return hub.ErrNotFound
	}
	return nil
}
