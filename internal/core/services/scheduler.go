package services

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"pdf2md/internal/core/domain"
)

// conversionJob carries everything a worker needs to run one conversion.
// The document bytes live only here; they are never persisted.
type conversionJob struct {
	TaskID      domain.TaskID
	Document    []byte
	Fingerprint string
}

// SchedulerConfig bounds the conversion worker pool. Each conversion
// occupies one slot for its full duration; the engine's internal thread
// count is configured separately and process-wide.
type SchedulerConfig struct {
	MaxConcurrent int64
	QueueSize     int
}

// Scheduler is a bounded worker pool fed by an in-memory queue. Dispatch is
// best-effort and tied to the process lifetime: jobs in flight at shutdown
// are lost and re-flagged on the next boot.
type Scheduler struct {
	logger    *slog.Logger
	queue     chan conversionJob
	semaphore *semaphore.Weighted
}

func NewScheduler(logger *slog.Logger, cfg SchedulerConfig) *Scheduler {
	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = 2
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = 100
	}
	return &Scheduler{
		logger:    logger,
		queue:     make(chan conversionJob, size),
		semaphore: semaphore.NewWeighted(limit),
	}
}

// Submit enqueues a job without blocking the caller.
func (s *Scheduler) Submit(job conversionJob) error {
	select {
	case s.queue <- job:
		s.logger.Info("conversion queued", "task_id", job.TaskID)
		return nil
	default:
		return errors.New("conversion queue full")
	}
}

// Start consumes the queue until ctx is cancelled, running handler for each
// job under the concurrency limit.
func (s *Scheduler) Start(ctx context.Context, handler func(context.Context, conversionJob)) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				s.logger.Info("stopping conversion scheduler")
				return
			case job := <-s.queue:
				if err := s.semaphore.Acquire(ctx, 1); err != nil {
					return
				}
				go func(j conversionJob) {
					defer s.semaphore.Release(1)
					handler(ctx, j)
				}(job)
			}
		}
	}()
}
