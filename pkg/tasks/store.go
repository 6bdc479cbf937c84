package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/aretw0/folio/pkg/core"
)

// Store persists tasks and their audit trails.
type Store interface {
	Create(ctx context.Context, t *Task) error
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, limit int) ([]*Task, error)

	// ClaimNext atomically moves the oldest queued task to in_progress and
	// returns it, or returns nil when the queue is empty.
	ClaimNext(ctx context.Context) (*Task, error)
	// Finish moves an in_progress task to a terminal status.
	Finish(ctx context.Context, id string, status Status, detail string) (bool, error)
	// CancelQueued moves a queued task straight to cancelled.
	CancelQueued(ctx context.Context, id string) (bool, error)
	// RequestCancel flags an in_progress task for cooperative cancellation.
	RequestCancel(ctx context.Context, id string) (bool, error)
	CancelRequested(ctx context.Context, id string) (bool, error)

	SetProgress(ctx context.Context, id string, progress float64) error
	AppendLog(ctx context.Context, id, line string) error
	AddAudit(ctx context.Context, taskID, action, detail string) error
	Audit(ctx context.Context, taskID string) ([]AuditEntry, error)

	Close() error
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

// SQLStore implements Store on database/sql for SQLite and Postgres.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to dsn. "postgres://…" and "postgresql://…" select
// Postgres; "sqlite://path" or a bare path selects SQLite.
func Open(dsn string) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("tasks: empty DSN")
	}

	var (
		db  *sql.DB
		d   dialect
		err error
	)
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		d = dialectPostgres
		db, err = openDB("postgres", dsn)
	default:
		path := strings.TrimPrefix(dsn, "sqlite://")
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create task store dir: %w", err)
		}
		d = dialectSQLite
		db, err = openDB("sqlite", sqliteDSN(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open task store: %w", err)
	}

	s := &SQLStore{db: db, dialect: d, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate task store: %w", err)
	}
	return s, nil
}

// sqliteDSN applies the pragmas on every pooled connection.
func sqliteDSN(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
}

func (s *SQLStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id               TEXT PRIMARY KEY,
			type             TEXT NOT NULL,
			payload          TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL,
			progress         DOUBLE PRECISION NOT NULL DEFAULT 0,
			detail           TEXT NOT NULL DEFAULT '',
			cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
			logs             TEXT NOT NULL DEFAULT '',
			created_at       TEXT NOT NULL,
			updated_at       TEXT NOT NULL,
			started_at       TEXT,
			finished_at      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS tasks_status_id ON tasks (status, id)`,
		`CREATE TABLE IF NOT EXISTS task_audit (
			id      TEXT PRIMARY KEY,
			task_id TEXT NOT NULL,
			action  TEXT NOT NULL,
			detail  TEXT NOT NULL DEFAULT '',
			at      TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS task_audit_task_id ON task_audit (task_id, id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders to $N for Postgres.
func (s *SQLStore) rebind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

func (s *SQLStore) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *SQLStore) stamp() string {
	return formatTime(s.now())
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func (s *SQLStore) Create(ctx context.Context, t *Task) error {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.UpdatedAt = t.CreatedAt
	_, err := s.exec(ctx,
		`INSERT INTO tasks (id, type, payload, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		t.ID, t.Type, string(t.Payload), string(t.Status), formatTime(t.CreatedAt), formatTime(t.UpdatedAt))
	if err != nil {
		return core.Storage("create task", t.ID, err)
	}
	return nil
}

const taskColumns = `id, type, payload, status, progress, detail, cancel_requested, logs,
	created_at, updated_at, started_at, finished_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTask(row scanner) (*Task, error) {
	var (
		t                 Task
		payload, status   string
		logs              string
		created, updated  string
		started, finished sql.NullString
	)
	if err := row.Scan(&t.ID, &t.Type, &payload, &status, &t.Progress, &t.Detail, &t.CancelRequested, &logs,
		&created, &updated, &started, &finished); err != nil {
		return nil, err
	}
	t.Payload = []byte(payload)
	t.Status = Status(status)
	if logs != "" {
		t.Logs = strings.Split(strings.TrimSuffix(logs, "\n"), "\n")
	}
	t.CreatedAt = parseTime(created)
	t.UpdatedAt = parseTime(updated)
	if started.Valid {
		ts := parseTime(started.String)
		t.StartedAt = &ts
	}
	if finished.Valid {
		ts := parseTime(finished.String)
		t.FinishedAt = &ts
	}
	return &t, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`), id)
	t, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFound("task", id)
	}
	if err != nil {
		return nil, core.Storage("task", id, err)
	}
	return t, nil
}

// List returns the most recent tasks first.
func (s *SQLStore) List(ctx context.Context, limit int) ([]*Task, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT `+taskColumns+` FROM tasks ORDER BY id DESC LIMIT ?`), limit)
	if err != nil {
		return nil, core.Storage("list tasks", "", err)
	}
	defer rows.Close()

	var out []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, core.Storage("list tasks", "", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLStore) ClaimNext(ctx context.Context) (*Task, error) {
	pick := `SELECT id FROM tasks WHERE status = 'queued' ORDER BY id LIMIT 1`
	if s.dialect == dialectPostgres {
		pick += ` FOR UPDATE SKIP LOCKED`
	}
	now := s.stamp()
	var id string
	err := s.db.QueryRowContext(ctx, s.rebind(`
		UPDATE tasks SET status = 'in_progress', started_at = ?, updated_at = ?
		WHERE id = (`+pick+`) AND status = 'queued'
		RETURNING id`), now, now).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, core.Storage("claim task", "", err)
	}
	return s.Get(ctx, id)
}

func (s *SQLStore) Finish(ctx context.Context, id string, status Status, detail string) (bool, error) {
	if !status.Terminal() {
		return false, fmt.Errorf("tasks: %s is not a terminal status", status)
	}
	now := s.stamp()
	progress := `progress`
	if status == StatusSuccess || status == StatusCompletedWithErrors {
		progress = `1`
	}
	n, err := s.exec(ctx, `
		UPDATE tasks SET status = ?, detail = ?, progress = `+progress+`, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'in_progress'`,
		string(status), detail, now, now, id)
	if err != nil {
		return false, core.Storage("finish task", id, err)
	}
	return n == 1, nil
}

func (s *SQLStore) CancelQueued(ctx context.Context, id string) (bool, error) {
	now := s.stamp()
	n, err := s.exec(ctx, `
		UPDATE tasks SET status = 'cancelled', detail = 'cancelled before start', finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'queued'`, now, now, id)
	if err != nil {
		return false, core.Storage("cancel task", id, err)
	}
	return n == 1, nil
}

func (s *SQLStore) RequestCancel(ctx context.Context, id string) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE tasks SET cancel_requested = TRUE, updated_at = ?
		WHERE id = ? AND status = 'in_progress'`, s.stamp(), id)
	if err != nil {
		return false, core.Storage("cancel task", id, err)
	}
	return n == 1, nil
}

func (s *SQLStore) CancelRequested(ctx context.Context, id string) (bool, error) {
	var flag bool
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT cancel_requested FROM tasks WHERE id = ?`), id).Scan(&flag)
	if errors.Is(err, sql.ErrNoRows) {
		return false, core.NotFound("task", id)
	}
	if err != nil {
		return false, core.Storage("task", id, err)
	}
	return flag, nil
}

func (s *SQLStore) SetProgress(ctx context.Context, id string, progress float64) error {
	_, err := s.exec(ctx, `
		UPDATE tasks SET progress = ?, updated_at = ?
		WHERE id = ? AND status = 'in_progress'`, progress, s.stamp(), id)
	if err != nil {
		return core.Storage("task progress", id, err)
	}
	return nil
}

func (s *SQLStore) AppendLog(ctx context.Context, id, line string) error {
	_, err := s.exec(ctx, `UPDATE tasks SET logs = logs || ?, updated_at = ? WHERE id = ?`,
		strings.ReplaceAll(line, "\n", " ")+"\n", s.stamp(), id)
	if err != nil {
		return core.Storage("task log", id, err)
	}
	return nil
}

func (s *SQLStore) AddAudit(ctx context.Context, taskID, action, detail string) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, `INSERT INTO task_audit (id, task_id, action, detail, at) VALUES (?, ?, ?, ?, ?)`,
		id.String(), taskID, action, detail, s.stamp())
	if err != nil {
		return core.Storage("task audit", taskID, err)
	}
	return nil
}

func (s *SQLStore) Audit(ctx context.Context, taskID string) ([]AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT id, task_id, action, detail, at FROM task_audit WHERE task_id = ? ORDER BY id`), taskID)
	if err != nil {
		return nil, core.Storage("task audit", taskID, err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var at string
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Action, &e.Detail, &at); err != nil {
			return nil, core.Storage("task audit", taskID, err)
		}
		e.At = parseTime(at)
		out = append(out, e)
	}
	return out, rows.Err()
}

var _ Store = (*SQLStore)(nil)
