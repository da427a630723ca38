package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"bothub/internal/hub"
)

// GetUser 返回协作视角下的用户信息。
func (s *Store) GetUser(ctx context.Context, id int64) (*hub.User, error) {
	const query = `SELECT id, username, email, is_superuser, disabled, created_at, updated_at
FROM auth_users WHERE id = ?`
	row := s.db.QueryRowContext(ctx, query, id)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return user, nil
}

// ListUsers 按用户名升序返回用户。
func (s *Store) ListUsers(ctx context.Context, opts ...hub.ListOption) ([]*hub.User, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT id, username, email, is_superuser, disabled, created_at, updated_at
FROM auth_users`
	var args []any
	if options.Query != "" {
		query += ` WHERE LOWER(username) LIKE ?`
		args = append(args, "%"+strings.ToLower(options.Query)+"%")
	}
	query += ` ORDER BY username, id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("解析用户失败: %w", err)
		}
		results = append(results, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历用户列表失败: %w", err)
	}
	return results, nil
}

// GetProfile 返回用户档案。
func (s *Store) GetProfile(ctx context.Context, userID int64) (*hub.UserProfile, error) {
	const query = `SELECT user_id, kind, display_name, COALESCE(notes, ''), created_at
FROM user_profiles WHERE user_id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)
	var profile hub.UserProfile
	var kind string
	if err := row.Scan(&profile.UserID, &kind, &profile.DisplayName, &profile.Notes, &profile.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, hub.ErrNotFound
		}
		return nil, fmt.Errorf("查询用户档案失败: %w", err)
	}
	profile.Kind = hub.ProfileKind(kind)
	return &profile, nil
}

// ListProfiles 按 user_id 升序返回档案。
func (s *Store) ListProfiles(ctx context.Context, opts ...hub.ListOption) ([]*hub.UserProfile, error) {
	options := hub.BuildListOptions(opts...)
	query := `SELECT user_id, kind, display_name, COALESCE(notes, ''), created_at
FROM user_profiles`
	var args []any
	if options.ProfileKind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(options.ProfileKind))
	}
	query += ` ORDER BY user_id`
	query, args = appendPaging(query, args, options)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("查询档案列表失败: %w", err)
	}
	defer rows.Close()

	results := make([]*hub.UserProfile, 0)
	for rows.Next() {
		var profile hub.UserProfile
		var kind string
		if err := rows.Scan(&profile.UserID, &kind, &profile.DisplayName, &profile.Notes, &profile.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析档案失败: %w", err)
		}
		profile.Kind = hub.ProfileKind(kind)
		results = append(results, &profile)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历档案列表失败: %w", err)
	}
	return results, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*hub.User, error) {
	var user hub.User
	var superuser, disabled int
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &superuser, &disabled, &user.CreatedAt, &user.UpdatedAt); err != nil {
		return nil, err
	}
	user.Superuser = superuser == 1
	user.Disabled = disabled == 1
	return &user, nil
}
