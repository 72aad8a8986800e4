package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"pushflow/internal/domain"
)

var ErrNotFound = errors.New("task not found")

// EnsureSchema creates tables if they don't exist.
func EnsureSchema(db *sql.DB) error {
	schema := `
PRAGMA journal_mode=WAL;
CREATE TABLE IF NOT EXISTS tasks (
  id TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  content TEXT NOT NULL DEFAULT '',
  channel TEXT NOT NULL,
  channel_config TEXT NOT NULL DEFAULT '{}',
  status INTEGER NOT NULL DEFAULT 1,
  type TEXT NOT NULL CHECK(type IN ('single','cycle')) DEFAULT 'single',
  cycle_config TEXT NOT NULL DEFAULT '{}',
  execute_time DATETIME NOT NULL,
  execute_count INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_tasks_due ON tasks(status, execute_time);
CREATE TABLE IF NOT EXISTS task_logs (
  id TEXT PRIMARY KEY,
  task_id TEXT NOT NULL,
  channel TEXT NOT NULL,
  execute_time DATETIME NOT NULL,
  status TEXT NOT NULL CHECK(status IN ('success','fail')),
  message TEXT NOT NULL DEFAULT '',
  duration_ms INTEGER NOT NULL DEFAULT 0,
  created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(task_id) REFERENCES tasks(id)
);
CREATE INDEX IF NOT EXISTS idx_task_logs_task ON task_logs(task_id, created_at);
CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	return err
}

type Repository interface {
	Insert(ctx context.Context, t domain.Task) (string, error)
	Get(ctx context.Context, id string) (domain.Task, error)
	Update(ctx context.Context, t domain.Task) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]domain.Task, error)
	QueryDue(ctx context.Context, now time.Time) ([]domain.Task, error)

	AppendLog(ctx context.Context, rec domain.LogRecord) (string, error)
	ListLogs(ctx context.Context, taskID string, limit int) ([]domain.LogRecord, error)
}

type sqliteRepo struct{ db *sql.DB }

func NewSQLiteRepo(db *sql.DB) Repository { return &sqliteRepo{db: db} }

const taskCols = "id,name,content,channel,channel_config,status,type,cycle_config,execute_time,execute_count,created_at,updated_at"

func (r *sqliteRepo) Insert(ctx context.Context, t domain.Task) (string, error) {
	id := t.ID
	if id == "" {
		id = "tsk_" + uuid.NewString()
	}
	if t.Type == "" {
		t.Type = domain.TypeSingle
	}
	if t.ExecuteTime.IsZero() {
		t.ExecuteTime = time.Now()
	}

	chCfg, err := json.Marshal(t.ChannelConfig)
	if err != nil {
		return "", fmt.Errorf("encode channel_config: %w", err)
	}
	cyCfg, err := json.Marshal(t.CycleConfig)
	if err != nil {
		return "", fmt.Errorf("encode cycle_config: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO tasks (id,name,content,channel,channel_config,status,type,cycle_config,execute_time,execute_count,created_at,updated_at)
VALUES (?,?,?,?,?,?,?,?,?,0,CURRENT_TIMESTAMP,CURRENT_TIMESTAMP)
`, id, t.Name, t.Content, t.Channel, string(chCfg), t.Status, t.Type, string(cyCfg), t.ExecuteTime.UTC())
	return id, err
}

func (r *sqliteRepo) Get(ctx context.Context, id string) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return domain.Task{}, ErrNotFound
	}
	return t, err
}

func (r *sqliteRepo) Update(ctx context.Context, t domain.Task) error {
	chCfg, err := json.Marshal(t.ChannelConfig)
	if err != nil {
		return fmt.Errorf("encode channel_config: %w", err)
	}
	cyCfg, err := json.Marshal(t.CycleConfig)
	if err != nil {
		return fmt.Errorf("encode cycle_config: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE tasks SET name=?,content=?,channel=?,channel_config=?,status=?,type=?,cycle_config=?,execute_time=?,execute_count=?,updated_at=CURRENT_TIMESTAMP
WHERE id=?`, t.Name, t.Content, t.Channel, string(chCfg), t.Status, t.Type, string(cyCfg), t.ExecuteTime.UTC(), t.ExecuteCount, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM tasks WHERE id=?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqliteRepo) List(ctx context.Context) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

// QueryDue returns active tasks whose execute_time has passed, oldest
// first. Ties fall back to storage order.
func (r *sqliteRepo) QueryDue(ctx context.Context, now time.Time) ([]domain.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT `+taskCols+` FROM tasks WHERE status=1 AND execute_time <= ? ORDER BY execute_time ASC`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectTasks(rows)
}

func (r *sqliteRepo) AppendLog(ctx context.Context, rec domain.LogRecord) (string, error) {
	id := rec.ID
	if id == "" {
		id = "log_" + uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO task_logs (id,task_id,channel,execute_time,status,message,duration_ms,created_at)
VALUES (?,?,?,?,?,?,?,CURRENT_TIMESTAMP)
`, id, rec.TaskID, rec.Channel, rec.ExecuteTime.UTC(), rec.Status, rec.Message, rec.DurationMS)
	return id, err
}

func (r *sqliteRepo) ListLogs(ctx context.Context, taskID string, limit int) ([]domain.LogRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id,task_id,channel,execute_time,status,message,duration_ms,created_at
FROM task_logs WHERE task_id=? ORDER BY created_at DESC LIMIT ?`, taskID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []domain.LogRecord
	for rows.Next() {
		var rec domain.LogRecord
		if err := rows.Scan(&rec.ID, &rec.TaskID, &rec.Channel, &rec.ExecuteTime, &rec.Status, &rec.Message, &rec.DurationMS, &rec.CreatedAt); err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (domain.Task, error) {
	var t domain.Task
	var chCfg, cyCfg string
	if err := row.Scan(&t.ID, &t.Name, &t.Content, &t.Channel, &chCfg, &t.Status, &t.Type, &cyCfg, &t.ExecuteTime, &t.ExecuteCount, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return domain.Task{}, err
	}
	if err := json.Unmarshal([]byte(chCfg), &t.ChannelConfig); err != nil {
		return domain.Task{}, fmt.Errorf("decode channel_config for %s: %w", t.ID, err)
	}
	if err := json.Unmarshal([]byte(cyCfg), &t.CycleConfig); err != nil {
		return domain.Task{}, fmt.Errorf("decode cycle_config for %s: %w", t.ID, err)
	}
	return t, nil
}

func collectTasks(rows *sql.Rows) ([]domain.Task, error) {
	var tasks []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}
