package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/marcboeker/go-duckdb"

	"pdf2md/internal/core/domain"
	"pdf2md/internal/core/ports"
)

// Repository is the DuckDB-backed cache/task registry. Two tables: tasks
// (keyed by id) and cache (keyed by key+format). Every operation is a single
// auto-committing statement.
type Repository struct {
	db *sql.DB
}

var _ ports.Registry = (*Repository)(nil)

func NewRepository(path string) (*Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open duckdb at %s: %w", path, err)
	}

	r := &Repository{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return r, nil
}

func (r *Repository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			status TEXT NOT NULL DEFAULT 'pending',
			format TEXT NOT NULL,
			title TEXT,
			output_path TEXT,
			error_message TEXT,
			created_at TIMESTAMP NOT NULL,
			completed_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS cache (
			key TEXT NOT NULL,
			format TEXT NOT NULL,
			task_id TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (key, format)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to run migration: %w", err)
		}
	}
	return nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}

// ============== Task Operations ==============

func (r *Repository) CreateTask(ctx context.Context, id domain.TaskID, format string) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tasks (id, status, format, created_at) VALUES (?, ?, ?, ?)`,
		string(id), string(domain.TaskStatusPending), format, time.Now().UTC(),
	)
	if err != nil {
		// Task ids are random UUIDs; a constraint violation here means the
		// id was inserted before. Surface the invariant violation as such.
		if _, getErr := r.GetTask(ctx, id); getErr == nil {
			return fmt.Errorf("task %s: %w", id, domain.ErrDuplicateTask)
		}
		return fmt.Errorf("failed to create task %s: %w", id, err)
	}
	return nil
}

func (r *Repository) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, status, format, title, output_path, error_message, created_at, completed_at
		 FROM tasks WHERE id = ?`, string(id))

	var t domain.Task
	var idStr, statusStr string
	var title, outputPath, errorMessage sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&idStr, &statusStr, &t.Format, &title, &outputPath, &errorMessage, &t.CreatedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Task{}, domain.ErrTaskNotFound
		}
		return domain.Task{}, fmt.Errorf("failed to get task %s: %w", id, err)
	}

	t.ID = domain.TaskID(idStr)
	t.Status = domain.TaskStatus(statusStr)
	t.Title = title.String
	t.OutputPath = outputPath.String
	t.ErrorMessage = errorMessage.String
	if completedAt.Valid {
		ts := completedAt.Time
		t.CompletedAt = &ts
	}
	return t, nil
}

// UpdateTaskStatus applies a state transition. Terminal statuses (done,
// error) also stamp completed_at; non-terminal updates leave it NULL so
// completed_at is set iff the task has finished.
func (r *Repository) UpdateTaskStatus(ctx context.Context, id domain.TaskID, status domain.TaskStatus, title, outputPath, errorMessage string) error {
	var res sql.Result
	var err error

	if status.IsTerminal() {
		res, err = r.db.ExecContext(ctx,
			`UPDATE tasks
			 SET status = ?, title = ?, output_path = ?, error_message = ?, completed_at = ?
			 WHERE id = ?`,
			string(status), nullable(title), nullable(outputPath), nullable(errorMessage),
			time.Now().UTC(), string(id),
		)
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE tasks SET status = ?, title = ? WHERE id = ?`,
			string(status), nullable(title), string(id),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to update task %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// PruneOlderThan deletes task rows created before the retention threshold.
// Cache rows referencing pruned tasks are left in place; lookups re-check
// artifact existence before trusting them.
func (r *Repository) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	cutoff := time.Now().UTC().AddDate(0, 0, -days)
	res, err := r.db.ExecContext(ctx, `DELETE FROM tasks WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned tasks: %w", err)
	}
	return n, nil
}

// FailInterrupted marks every non-terminal task as failed. Called once at
// startup: input bytes are not persisted, so a conversion that was in flight
// when the process died can never complete.
func (r *Repository) FailInterrupted(ctx context.Context, message string) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, error_message = ?, completed_at = ?
		 WHERE status IN (?, ?)`,
		string(domain.TaskStatusError), message, time.Now().UTC(),
		string(domain.TaskStatusPending), string(domain.TaskStatusProcessing),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to fail interrupted tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ============== Cache Operations ==============

func (r *Repository) LookupCache(ctx context.Context, key, format string) (domain.CacheEntry, bool, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT key, format, task_id, created_at FROM cache WHERE key = ? AND format = ?`,
		key, format)

	var e domain.CacheEntry
	var taskID string
	err := row.Scan(&e.Key, &e.Format, &taskID, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.CacheEntry{}, false, nil
		}
		return domain.CacheEntry{}, false, fmt.Errorf("failed to lookup cache key %q: %w", key, err)
	}
	e.TaskID = domain.TaskID(taskID)
	return e, true, nil
}

// UpsertCache inserts or replaces the mapping for (key, format).
// Last writer wins.
func (r *Repository) UpsertCache(ctx context.Context, key, format string, taskID domain.TaskID) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO cache (key, format, task_id, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (key, format) DO UPDATE SET
			task_id = excluded.task_id,
			created_at = excluded.created_at`,
		key, format, string(taskID), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache key %q: %w", key, err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
