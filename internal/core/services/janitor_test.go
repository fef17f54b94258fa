package services

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdf2md/internal/core/domain"
)

// pruneRegistry counts PruneOlderThan calls; the task and cache operations
// are never reached by the janitor.
type pruneRegistry struct {
	calls int32
	days  int32
}

func (r *pruneRegistry) PruneOlderThan(ctx context.Context, days int) (int64, error) {
	atomic.AddInt32(&r.calls, 1)
	atomic.StoreInt32(&r.days, int32(days))
	return 1, nil
}

func (r *pruneRegistry) CreateTask(ctx context.Context, id domain.TaskID, format string) error {
	return nil
}

func (r *pruneRegistry) GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error) {
	return domain.Task{}, domain.ErrTaskNotFound
}

func (r *pruneRegistry) UpdateTaskStatus(ctx context.Context, id domain.TaskID, status domain.TaskStatus, title, outputPath, errorMessage string) error {
	return nil
}

func (r *pruneRegistry) LookupCache(ctx context.Context, key, format string) (domain.CacheEntry, bool, error) {
	return domain.CacheEntry{}, false, nil
}

func (r *pruneRegistry) UpsertCache(ctx context.Context, key, format string, taskID domain.TaskID) error {
	return nil
}

func TestJanitor_PrunesOnInterval(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := &pruneRegistry{}
	janitor := NewJanitor(logger, registry, 7, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- janitor.Run(ctx) }()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&registry.calls) >= 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(7), atomic.LoadInt32(&registry.days))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on cancellation")
	}
}

func TestJanitor_RetentionDisabled(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := &pruneRegistry{}
	janitor := NewJanitor(logger, registry, 0, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- janitor.Run(ctx) }()

	// Give a misbehaving ticker loop time to fire before cancelling.
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop on cancellation")
	}
	assert.Zero(t, atomic.LoadInt32(&registry.calls))
}
