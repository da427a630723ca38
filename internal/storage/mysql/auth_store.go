package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"bothub/internal/auth"
)

// FindUserByUsername 实现 auth.Store。
func (s *Store) FindUserByUsername(ctx context.Context, username string) (*auth.User, error) {
	const query = `SELECT id, username, email, password_hash, is_superuser, disabled
FROM auth_users WHERE username = ?`
	row := s.db.QueryRowContext(ctx, query, strings.TrimSpace(username))
	var user auth.User
	var superuser, disabled int
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &superuser, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	user.Superuser = superuser == 1
	user.Disabled = disabled == 1
	return &user, nil
}

// LoadSubject 加载调用方身份，档案缺失时按 human 处理。
func (s *Store) LoadSubject(ctx context.Context, userID int64) (*auth.Subject, error) {
	const query = `SELECT u.id, u.username, COALESCE(p.kind, 'human'), u.is_superuser, u.disabled
FROM auth_users u
LEFT JOIN user_profiles p ON p.user_id = u.id
WHERE u.id = ?`
	row := s.db.QueryRowContext(ctx, query, userID)
	var subject auth.Subject
	var kind string
	var superuser, disabled int
	if err := row.Scan(&subject.ID, &subject.Username, &kind, &superuser, &disabled); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("查询用户信息失败: %w", err)
	}
	subject.Kind = auth.ParseKind(kind)
	subject.Superuser = superuser == 1
	subject.Disabled = disabled == 1
	return &subject, nil
}

// ApplySeed 以 upsert 方式写入启动账号及其档案。
func (s *Store) ApplySeed(ctx context.Context, seed auth.Seed) error {
	username := strings.TrimSpace(seed.Username)
	if username == "" {
		return errors.New("seed username cannot be empty")
	}
	passwordHash, err := auth.HashPassword(seed.Password)
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	const upsertUser = `INSERT INTO auth_users (username, email, password_hash, is_superuser, disabled, created_at, updated_at)
VALUES (?, '', ?, ?, ?, ?, ?)
ON DUPLICATE KEY UPDATE password_hash = VALUES(password_hash), is_superuser = VALUES(is_superuser),
disabled = VALUES(disabled), updated_at = VALUES(updated_at), id = LAST_INSERT_ID(id)`
	res, execErr := tx.ExecContext(ctx, upsertUser, username, passwordHash,
		boolToInt(seed.Superuser), boolToInt(seed.Disabled), now, now)
	if execErr != nil {
		err = fmt.Errorf("保存用户失败: %w", execErr)
		return err
	}
	userID, execErr := res.LastInsertId()
	if execErr != nil {
		err = fmt.Errorf("获取用户ID失败: %w", execErr)
		return err
	}

	const upsertProfile = `INSERT INTO user_profiles (user_id, kind, display_name, created_at)
VALUES (?, ?, ?, ?)
ON DUPLICATE KEY UPDATE kind = VALUES(kind), display_name = VALUES(display_name)`
	if _, execErr = tx.ExecContext(ctx, upsertProfile, userID,
		string(auth.ParseKind(string(seed.Kind))), seed.DisplayName, now); execErr != nil {
		err = fmt.Errorf("保存用户档案失败: %w", execErr)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("提交种子数据失败: %w", err)
	}
	return nil
}

var (
	_ auth.Store      = (*Store)(nil)
	_ auth.SeedWriter = (*Store)(nil)
)
