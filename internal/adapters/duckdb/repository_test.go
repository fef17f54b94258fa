package duckdb

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2md/internal/core/domain"
)

func newTestRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := NewRepository(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })
	return repo
}

func TestRepository_TaskLifecycle(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id := domain.TaskID("task-1")
	require.NoError(t, repo.CreateTask(ctx, id, domain.FormatMarkdown))

	// Fresh task: pending, no completion stamp
	task, err := repo.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, task.ID)
	assert.Equal(t, domain.TaskStatusPending, task.Status)
	assert.Equal(t, domain.FormatMarkdown, task.Format)
	assert.Nil(t, task.CompletedAt)
	assert.False(t, task.CreatedAt.IsZero())

	// Processing does not stamp completed_at
	require.NoError(t, repo.UpdateTaskStatus(ctx, id, domain.TaskStatusProcessing, "", "", ""))
	task, err = repo.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusProcessing, task.Status)
	assert.Nil(t, task.CompletedAt)

	// Done stamps completed_at and records title/output
	require.NoError(t, repo.UpdateTaskStatus(ctx, id, domain.TaskStatusDone, "Report", "/data/task-1", ""))
	task, err = repo.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, task.Status)
	assert.Equal(t, "Report", task.Title)
	assert.Equal(t, "/data/task-1", task.OutputPath)
	assert.Empty(t, task.ErrorMessage)
	require.NotNil(t, task.CompletedAt)
}

func TestRepository_TaskError(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id := domain.TaskID("task-err")
	require.NoError(t, repo.CreateTask(ctx, id, domain.FormatMarkdown))
	require.NoError(t, repo.UpdateTaskStatus(ctx, id, domain.TaskStatusError, "", "", "engine exploded"))

	task, err := repo.GetTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusError, task.Status)
	assert.Equal(t, "engine exploded", task.ErrorMessage)
	require.NotNil(t, task.CompletedAt)
}

func TestRepository_DuplicateTask(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	id := domain.TaskID("task-dup")
	require.NoError(t, repo.CreateTask(ctx, id, domain.FormatMarkdown))

	err := repo.CreateTask(ctx, id, domain.FormatMarkdown)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrDuplicateTask)
}

func TestRepository_GetTask_NotFound(t *testing.T) {
	repo := newTestRepo(t)

	_, err := repo.GetTask(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)

	err = repo.UpdateTaskStatus(context.Background(), "missing", domain.TaskStatusDone, "", "", "")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
}

func TestRepository_CacheUpsert(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, ok, err := repo.LookupCache(ctx, "Report", domain.FormatMarkdown)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.UpsertCache(ctx, "Report", domain.FormatMarkdown, "task-a"))

	entry, ok, err := repo.LookupCache(ctx, "Report", domain.FormatMarkdown)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TaskID("task-a"), entry.TaskID)

	// Last writer wins on the same (key, format) pair
	require.NoError(t, repo.UpsertCache(ctx, "Report", domain.FormatMarkdown, "task-b"))
	entry, ok, err = repo.LookupCache(ctx, "Report", domain.FormatMarkdown)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TaskID("task-b"), entry.TaskID)

	// Fingerprint keys live in their own namespace
	key := domain.FingerprintKey("abc123")
	require.NoError(t, repo.UpsertCache(ctx, key, domain.FormatMarkdown, "task-a"))
	entry, ok, err = repo.LookupCache(ctx, key, domain.FormatMarkdown)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.TaskID("task-a"), entry.TaskID)
}

func TestRepository_PruneOlderThan(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTask(ctx, "fresh", domain.FormatMarkdown))

	// Backdate one row past the retention window
	_, err := repo.db.ExecContext(ctx,
		`INSERT INTO tasks (id, status, format, created_at)
		 VALUES ('stale', 'done', 'markdown', now()::TIMESTAMP - INTERVAL 30 DAY)`)
	require.NoError(t, err)
	require.NoError(t, repo.UpsertCache(ctx, "Stale Doc", domain.FormatMarkdown, "stale"))

	n, err := repo.PruneOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = repo.GetTask(ctx, "stale")
	assert.ErrorIs(t, err, domain.ErrTaskNotFound)
	_, err = repo.GetTask(ctx, "fresh")
	assert.NoError(t, err)

	// Pruning leaves cache rows untouched; readiness checks catch staleness.
	_, ok, err := repo.LookupCache(ctx, "Stale Doc", domain.FormatMarkdown)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRepository_FailInterrupted(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.CreateTask(ctx, "pending", domain.FormatMarkdown))
	require.NoError(t, repo.CreateTask(ctx, "running", domain.FormatMarkdown))
	require.NoError(t, repo.UpdateTaskStatus(ctx, "running", domain.TaskStatusProcessing, "", "", ""))
	require.NoError(t, repo.CreateTask(ctx, "finished", domain.FormatMarkdown))
	require.NoError(t, repo.UpdateTaskStatus(ctx, "finished", domain.TaskStatusDone, "T", "/p", ""))

	n, err := repo.FailInterrupted(ctx, "interrupted by restart")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	for _, id := range []domain.TaskID{"pending", "running"} {
		task, err := repo.GetTask(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, domain.TaskStatusError, task.Status)
		assert.Equal(t, "interrupted by restart", task.ErrorMessage)
		assert.NotNil(t, task.CompletedAt)
	}

	task, err := repo.GetTask(ctx, "finished")
	require.NoError(t, err)
	assert.Equal(t, domain.TaskStatusDone, task.Status)
}
