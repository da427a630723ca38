package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	mysqldrv "github.com/go-sql-driver/mysql"

	"bothub/internal/hub"
)

// MySQL 服务端错误码。
const (
	errDuplicateEntry  = 1062
	errForeignKeyFails = 1452
	errCheckViolated   = 3819
)

// Store 基于 MySQL 同时实现协作数据与账号数据的持久化。
type Store struct {
	db *sql.DB
}

// NewStore 建立连接池并执行未应用的迁移。
func NewStore(ctx context.Context, cfg Config) (*Store, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close 释放底层数据库连接。
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// translateError 将 MySQL 错误码映射为业务错误。
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return hub.ErrNotFound
	}
	var mysqlErr *mysqldrv.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case errDuplicateEntry:
			return hub.ErrConflict
		case errForeignKeyFails:
			return hub.ErrNotFound
		case errCheckViolated:
			return hub.ErrValidation
		}
	}
	return err
}

// nullID 把约定为"0 表示缺省"的 ID 转换为可空列。
func nullID(id int64) sql.NullInt64 {
	if id == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}

func nullIntPtr(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	value := v.Int64
	return &value
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeJSON 将元数据序列化为可空的 TEXT 列，空值落库为 NULL。
func encodeJSON(v any) (sql.NullString, error) {
	switch value := v.(type) {
	case map[string]any:
		if len(value) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(value) == 0 {
			return sql.NullString{}, nil
		}
	case nil:
		return sql.NullString{}, nil
	}
	encoded, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("序列化 JSON 字段失败: %w", err)
	}
	return sql.NullString{String: string(encoded), Valid: true}, nil
}

func decodeMetadata(raw sql.NullString) (map[string]any, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var metadata map[string]any
	if err := json.Unmarshal([]byte(raw.String), &metadata); err != nil {
		return nil, fmt.Errorf("解析元数据失败: %w", err)
	}
	return metadata, nil
}

func decodeEvents(raw sql.NullString) ([]string, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var events []string
	if err := json.Unmarshal([]byte(raw.String), &events); err != nil {
		return nil, fmt.Errorf("解析事件列表失败: %w", err)
	}
	return events, nil
}

// appendPaging 追加 LIMIT/OFFSET 子句。MySQL 的 OFFSET 必须伴随 LIMIT，
// 不限量时按官方文档的写法给一个足够大的上限。
func appendPaging(query string, args []any, opts hub.ListOptions) (string, []any) {
	if opts.Unbounded() {
		if opts.Offset > 0 {
			query += " LIMIT 18446744073709551615 OFFSET ?"
			args = append(args, opts.Offset)
		}
		return query, args
	}
	query += " LIMIT ? OFFSET ?"
	args = append(args, opts.Limit, opts.Offset)
	return query, args
}
