package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_ConcurrencyLimit(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewScheduler(logger, SchedulerConfig{MaxConcurrent: 2})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var running, peak int32
	var wg sync.WaitGroup

	const total = 5
	wg.Add(total)

	scheduler.Start(ctx, func(ctx context.Context, job conversionJob) {
		current := atomic.AddInt32(&running, 1)
		for {
			max := atomic.LoadInt32(&peak)
			if current <= max || atomic.CompareAndSwapInt32(&peak, max, current) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		wg.Done()
	})

	for i := 0; i < total; i++ {
		require.NoError(t, scheduler.Submit(conversionJob{TaskID: "job"}))
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestScheduler_QueueFull(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	scheduler := NewScheduler(logger, SchedulerConfig{MaxConcurrent: 1, QueueSize: 1})

	// Not started: the queue fills and further submissions are rejected
	// instead of blocking the caller.
	require.NoError(t, scheduler.Submit(conversionJob{TaskID: "a"}))
	err := scheduler.Submit(conversionJob{TaskID: "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "queue full")
}
