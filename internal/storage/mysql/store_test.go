package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	mysqldrv "github.com/go-sql-driver/mysql"

	"bothub/internal/hub"
)

func TestCreateProjectAssignsID(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(`INSERT INTO projects (name, description, is_archived, created_by, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`, mockResult{lastInsertID: 42, rowsAffected: 1}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &Store{db: db}
	project := &hub.Project{Name: "apollo", CreatedBy: 7}
	if err := store.CreateProject(context.Background(), project); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if project.ID != 42 {
		t.Fatalf("expected id 42, got %d", project.ID)
	}
	if project.CreatedAt == 0 || project.UpdatedAt == 0 {
		t.Fatalf("timestamps not set: %+v", project)
	}
}

func TestGetProjectNotFound(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		queryOp(`SELECT id, name, COALESCE(description, ''), is_archived, created_by, created_at, updated_at
FROM projects WHERE id = ?`, mockRowsData{
			columns: []string{"id", "name", "description", "is_archived", "created_by", "created_at", "updated_at"},
		}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &Store{db: db}
	if _, err := store.GetProject(context.Background(), 99); !errors.Is(err, hub.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCreateMembershipDuplicateMapsToConflict(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execErrOp(`INSERT INTO project_memberships (project_id, user_id, role, invited_by, created_at)
VALUES (?, ?, ?, ?, ?)`, &mysqldrv.MySQLError{Number: errDuplicateEntry, Message: "duplicate"}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &Store{db: db}
	membership := &hub.Membership{ProjectID: 1, UserID: 2, Role: hub.RoleMember}
	if err := store.CreateMembership(context.Background(), membership); !errors.Is(err, hub.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestDeleteTaskMissingReturnsNotFound(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		execOp(`DELETE FROM tasks WHERE id = ?`, mockResult{rowsAffected: 0}),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &Store{db: db}
	if err := store.DeleteTask(context.Background(), 5); !errors.Is(err, hub.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListTasksBuildsFilters(t *testing.T) {
	t.Parallel()

	taskRows := mockRowsData{
		columns: []string{"id", "project_id", "parent_id", "title", "description", "status", "priority", "position", "due_at", "created_by", "created_at", "updated_at"},
		values: [][]driver.Value{
			{int64(3), int64(1), nil, "triage", "", "todo", int64(2), int64(0), nil, int64(7), int64(10), int64(10)},
		},
	}
	tagRows := mockRowsData{
		columns: []string{"task_id", "tag_id"},
		values:  [][]driver.Value{{int64(3), int64(9)}},
	}

	db, drv := newMockDB(t, []mockOperation{
		queryOp(`SELECT id, project_id, parent_id, title, COALESCE(description, ''), status, priority, position, due_at, created_by, created_at, updated_at
FROM tasks WHERE 1 = 1 AND project_id = ? AND parent_id IS NULL AND status IN (?) ORDER BY position, id LIMIT ? OFFSET ?`, taskRows),
		queryOp(`SELECT task_id, tag_id FROM task_tags WHERE task_id IN (?) ORDER BY task_id, tag_id`, tagRows),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &Store{db: db}
	tasks, err := store.ListTasks(context.Background(),
		hub.WithProject(1), hub.WithParent(0), hub.WithStatuses(hub.TaskStatusTodo))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != 3 {
		t.Fatalf("unexpected tasks: %+v", tasks)
	}
	if len(tasks[0].TagIDs) != 1 || tasks[0].TagIDs[0] != 9 {
		t.Fatalf("tags not loaded: %+v", tasks[0].TagIDs)
	}
	if tasks[0].ParentID != nil {
		t.Fatalf("expected nil parent, got %v", *tasks[0].ParentID)
	}
}

func TestCreateMessageTouchesThread(t *testing.T) {
	t.Parallel()

	db, drv := newMockDB(t, []mockOperation{
		beginOp(),
		execOp(`INSERT INTO messages (thread_id, created_by, author_role, author_label, body, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?)`, mockResult{lastInsertID: 8, rowsAffected: 1}),
		execOp(`UPDATE threads SET updated_at = ? WHERE id = ?`, mockResult{rowsAffected: 1}),
		commitOp(),
	})
	defer drv.assertConsumed(t)
	defer db.Close()

	store := &Store{db: db}
	message := &hub.Message{ThreadID: 4, CreatedBy: 7, AuthorRole: hub.AuthorRoleHuman, Body: "hello"}
	if err := store.CreateMessage(context.Background(), message); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if message.ID != 8 {
		t.Fatalf("expected id 8, got %d", message.ID)
	}
}

func TestRunMigrationsAppliesEmbedded(t *testing.T) {
	t.Parallel()

	content, err := embeddedMigrations.ReadFile("0001_init.sql")
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	statements := splitSQLStatements(string(content))
	if len(statements) == 0 {
		t.Fatalf("migration has no statements")
	}

	ops := []mockOperation{
		execOp(`CREATE TABLE IF NOT EXISTS schema_migrations (
        version VARCHAR(32) NOT NULL PRIMARY KEY,
        applied_at BIGINT NOT NULL
)`, mockResult{}),
		queryOp(`SELECT version FROM schema_migrations`, mockRowsData{columns: []string{"version"}}),
		beginOp(),
	}
	for _, stmt := range statements {
		ops = append(ops, execOp(stmt, mockResult{}))
	}
	ops = append(ops,
		execOp(`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`, mockResult{rowsAffected: 1}),
		commitOp(),
	)

	db, drv := newMockDB(t, ops)
	defer drv.assertConsumed(t)
	defer db.Close()

	if err := runMigrations(context.Background(), db); err != nil {
		t.Fatalf("run migrations failed: %v", err)
	}
}

func TestTranslateError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		in   error
		want error
	}{
		{"duplicate", &mysqldrv.MySQLError{Number: errDuplicateEntry}, hub.ErrConflict},
		{"foreign key", &mysqldrv.MySQLError{Number: errForeignKeyFails}, hub.ErrNotFound},
		{"check", &mysqldrv.MySQLError{Number: errCheckViolated}, hub.ErrValidation},
		{"no rows", sql.ErrNoRows, hub.ErrNotFound},
	}
	for _, tc := range cases {
		if got := translateError(fmt.Errorf("wrapped: %w", tc.in)); !errors.Is(got, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
	plain := errors.New("boom")
	if got := translateError(plain); !errors.Is(got, plain) {
		t.Fatalf("unknown errors must pass through, got %v", got)
	}
}

func TestParseMigrationVersion(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"0001_init.sql": "0001",
		"0002.sql":      "0002",
		"plain":         "plain",
	}
	for name, want := range cases {
		if got := parseMigrationVersion(name); got != want {
			t.Fatalf("%s: expected %q, got %q", name, want, got)
		}
	}
}

// ---- scripted driver mock ----

type operationType int

const (
	opExec operationType = iota
	opQuery
	opBegin
	opCommit
	opRollback
)

type mockOperation struct {
	typ    operationType
	query  string
	result mockResult
	rows   mockRowsData
	err    error
}

type mockResult struct {
	lastInsertID int64
	rowsAffected int64
}

func (r mockResult) LastInsertId() (int64, error) { return r.lastInsertID, nil }
func (r mockResult) RowsAffected() (int64, error) { return r.rowsAffected, nil }

type mockRowsData struct {
	columns []string
	values  [][]driver.Value
}

type queueDriver struct {
	ops []mockOperation
	idx int32
}

var driverSeq atomic.Int32

func newMockDB(t *testing.T, ops []mockOperation) (*sql.DB, *queueDriver) {
	t.Helper()

	drv := &queueDriver{ops: ops}
	name := fmt.Sprintf("mock-mysql-%d", driverSeq.Add(1))
	sql.Register(name, drv)

	db, err := sql.Open(name, "")
	if err != nil {
		t.Fatalf("open mock db failed: %v", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return db, drv
}

func execOp(query string, result mockResult) mockOperation {
	return mockOperation{typ: opExec, query: query, result: result}
}

func execErrOp(query string, err error) mockOperation {
	return mockOperation{typ: opExec, query: query, err: err}
}

func queryOp(query string, rows mockRowsData) mockOperation {
	return mockOperation{typ: opQuery, query: query, rows: rows}
}

func beginOp() mockOperation { return mockOperation{typ: opBegin} }

func commitOp() mockOperation { return mockOperation{typ: opCommit} }

func (d *queueDriver) assertConsumed(t *testing.T) {
	t.Helper()

	if int(atomic.LoadInt32(&d.idx)) != len(d.ops) {
		t.Fatalf("not all operations consumed: %d/%d", atomic.LoadInt32(&d.idx), len(d.ops))
	}
}

func (d *queueDriver) Open(name string) (driver.Conn, error) {
	return &mockConn{driver: d}, nil
}

type mockConn struct {
	driver *queueDriver
}

func (c *mockConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("prepare not supported: %s", query)
}

func (c *mockConn) Close() error { return nil }

func (c *mockConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

func (c *mockConn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	op, err := c.next(opBegin, "")
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockTx{driver: c.driver}, nil
}

func (c *mockConn) Exec(query string, args []driver.Value) (driver.Result, error) {
	return c.ExecContext(context.Background(), query, named(args))
}

func (c *mockConn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	op, err := c.next(opExec, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return op.result, nil
}

func (c *mockConn) Query(query string, args []driver.Value) (driver.Rows, error) {
	return c.QueryContext(context.Background(), query, named(args))
}

func (c *mockConn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	op, err := c.next(opQuery, query)
	if err != nil {
		return nil, err
	}
	if op.err != nil {
		return nil, op.err
	}
	return &mockRows{columns: op.rows.columns, values: op.rows.values}, nil
}

func (c *mockConn) Ping(ctx context.Context) error { return nil }

func (c *mockConn) next(expected operationType, query string) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&c.driver.idx))
	if idx >= len(c.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &c.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&c.driver.idx, 1)
	if op.query != "" {
		expectedSQL := normalizeSQL(op.query)
		actualSQL := normalizeSQL(query)
		if expectedSQL != actualSQL {
			return nil, fmt.Errorf("unexpected query. want %q got %q", expectedSQL, actualSQL)
		}
	}
	return op, nil
}

type mockTx struct {
	driver *queueDriver
}

func (t *mockTx) Commit() error {
	op, err := t.next(opCommit)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) Rollback() error {
	op, err := t.next(opRollback)
	if err != nil {
		return err
	}
	return op.err
}

func (t *mockTx) next(expected operationType) (*mockOperation, error) {
	idx := int(atomic.LoadInt32(&t.driver.idx))
	if idx >= len(t.driver.ops) {
		return nil, fmt.Errorf("unexpected operation: %v", expected)
	}
	op := &t.driver.ops[idx]
	if op.typ != expected {
		return nil, fmt.Errorf("expected operation %v, got %v", expected, op.typ)
	}
	atomic.AddInt32(&t.driver.idx, 1)
	return op, nil
}

type mockRows struct {
	columns []string
	values  [][]driver.Value
	idx     int
}

func (r *mockRows) Columns() []string { return r.columns }
func (r *mockRows) Close() error      { return nil }

func (r *mockRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.values) {
		return io.EOF
	}
	copy(dest, r.values[r.idx])
	r.idx++
	return nil
}

func named(args []driver.Value) []driver.NamedValue {
	namedArgs := make([]driver.NamedValue, len(args))
	for i, arg := range args {
		namedArgs[i] = driver.NamedValue{Ordinal: i + 1, Value: arg}
	}
	return namedArgs
}

func normalizeSQL(query string) string {
	fields := strings.Fields(query)
	return strings.Join(fields, " ")
}
