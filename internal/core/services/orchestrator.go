package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"pdf2md/internal/core/domain"
	"pdf2md/internal/core/ports"
)

// SubmitResult is what a caller gets back immediately on submission: either
// a cache hit pointing at a finished task, or a freshly created pending task.
type SubmitResult struct {
	TaskID  domain.TaskID     `json:"task_id"`
	Status  domain.TaskStatus `json:"status"`
	Message string            `json:"message"`
	Cached  bool              `json:"cached"`
}

// StatusView is the externally visible task state.
type StatusView struct {
	Task          domain.Task
	MarkdownReady bool
}

// Orchestrator coordinates the conversion pipeline: cache lookup, task
// creation, asynchronous dispatch, and status/output queries. Exactly one
// dispatched conversion owns a given task id, so per-task transitions are
// strictly ordered.
type Orchestrator struct {
	logger    *slog.Logger
	registry  ports.Registry
	store     ports.ArtifactStore
	converter ports.Converter
	scheduler *Scheduler
}

func NewOrchestrator(logger *slog.Logger, registry ports.Registry, store ports.ArtifactStore, converter ports.Converter, scheduler *Scheduler) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		registry:  registry,
		store:     store,
		converter: converter,
		scheduler: scheduler,
	}
}

// Start begins consuming queued conversions until ctx is cancelled.
func (o *Orchestrator) Start(ctx context.Context) {
	o.scheduler.Start(ctx, o.process)
}

// Submit runs the lookup protocol and either reports a cache hit or creates
// a new pending task and dispatches its conversion. It never blocks on the
// conversion itself.
func (o *Orchestrator) Submit(ctx context.Context, document []byte) (SubmitResult, error) {
	if len(document) == 0 {
		return SubmitResult{}, fmt.Errorf("empty document: %w", domain.ErrInvalidDocument)
	}
	if !o.converter.Sniff(document) {
		return SubmitResult{}, fmt.Errorf("not a PDF document: %w", domain.ErrInvalidDocument)
	}

	// 1. Dedup by semantic title, when the document carries one.
	if title, ok := o.converter.Title(document); ok {
		if taskID, hit, err := o.lookupCached(ctx, title); err != nil {
			return SubmitResult{}, err
		} else if hit {
			o.logger.Info("cache hit by title", "title", title, "task_id", taskID)
			return cachedResult(taskID), nil
		}
	}

	// 2. Dedup by content fingerprint.
	digest := Fingerprint(document)
	if taskID, hit, err := o.lookupCached(ctx, domain.FingerprintKey(digest)); err != nil {
		return SubmitResult{}, err
	} else if hit {
		o.logger.Info("cache hit by fingerprint", "fingerprint", digest, "task_id", taskID)
		return cachedResult(taskID), nil
	}

	// 3. Miss: new task, conversion runs off the request path.
	taskID := domain.TaskID(uuid.New().String())
	if err := o.registry.CreateTask(ctx, taskID, domain.FormatMarkdown); err != nil {
		return SubmitResult{}, err
	}
	if err := o.scheduler.Submit(conversionJob{TaskID: taskID, Document: document, Fingerprint: digest}); err != nil {
		// Queue full: the task exists but will never run; fail it now so the
		// caller never observes a pending task that cannot complete.
		o.failTask(ctx, taskID, err.Error())
		return SubmitResult{}, fmt.Errorf("failed to dispatch conversion for %s: %w", taskID, err)
	}

	o.logger.Info("conversion task created", "task_id", taskID, "fingerprint", digest)
	return SubmitResult{
		TaskID:  taskID,
		Status:  domain.TaskStatusPending,
		Message: fmt.Sprintf("Conversion started. Check status with /api/status/%s", taskID),
	}, nil
}

// lookupCached checks the cache for key and verifies the referenced task's
// primary output still exists before trusting the hit. A stale entry (task
// pruned, files removed out of band) degrades to a miss.
func (o *Orchestrator) lookupCached(ctx context.Context, key string) (domain.TaskID, bool, error) {
	entry, ok, err := o.registry.LookupCache(ctx, key, domain.FormatMarkdown)
	if err != nil {
		return "", false, err
	}
	if !ok || !o.store.HasMarkdown(entry.TaskID) {
		return "", false, nil
	}
	return entry.TaskID, true, nil
}

func cachedResult(taskID domain.TaskID) SubmitResult {
	return SubmitResult{
		TaskID:  taskID,
		Status:  domain.TaskStatusDone,
		Message: "Found cached conversion result",
		Cached:  true,
	}
}

// process runs one conversion to completion. Failures are recorded into the
// task record; nothing is thrown back to the already-answered submitter.
func (o *Orchestrator) process(ctx context.Context, job conversionJob) {
	if err := o.transition(ctx, job.TaskID, domain.TaskStatusProcessing, "", "", ""); err != nil {
		o.logger.Error("failed to mark task processing", "task_id", job.TaskID, "error", err)
		return
	}

	result, err := o.converter.Convert(ctx, job.TaskID, job.Document)
	if err != nil {
		message := err.Error()
		var convErr *domain.ConversionError
		if errors.As(err, &convErr) {
			message = convErr.Message
		}
		o.logger.Error("conversion failed", "task_id", job.TaskID, "error", err)
		o.failTask(ctx, job.TaskID, message)
		return
	}

	if err := o.transition(ctx, job.TaskID, domain.TaskStatusDone, result.Title, result.OutputPath, ""); err != nil {
		o.logger.Error("failed to mark task done", "task_id", job.TaskID, "error", err)
		return
	}

	// Register both lookup paths so a resubmission of identical content or
	// an identically-titled document hits the cache. Never for failures.
	if err := o.registry.UpsertCache(ctx, result.Title, domain.FormatMarkdown, job.TaskID); err != nil {
		o.logger.Error("failed to cache by title", "task_id", job.TaskID, "error", err)
	}
	if err := o.registry.UpsertCache(ctx, domain.FingerprintKey(job.Fingerprint), domain.FormatMarkdown, job.TaskID); err != nil {
		o.logger.Error("failed to cache by fingerprint", "task_id", job.TaskID, "error", err)
	}

	o.logger.Info("conversion completed", "task_id", job.TaskID, "title", result.Title, "fingerprint", job.Fingerprint)
}

// transition applies a forward-only state change, refusing anything the
// state machine does not allow.
func (o *Orchestrator) transition(ctx context.Context, id domain.TaskID, next domain.TaskStatus, title, outputPath, errorMessage string) error {
	task, err := o.registry.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !task.Status.CanTransition(next) {
		return fmt.Errorf("disallowed transition for %s: %s -> %s", id, task.Status, next)
	}
	return o.registry.UpdateTaskStatus(ctx, id, next, title, outputPath, errorMessage)
}

func (o *Orchestrator) failTask(ctx context.Context, id domain.TaskID, message string) {
	if err := o.transition(ctx, id, domain.TaskStatusError, "", "", message); err != nil {
		o.logger.Error("failed to record task error", "task_id", id, "error", err)
	}
}

// Status returns the task view plus whether its markdown is ready on disk.
func (o *Orchestrator) Status(ctx context.Context, id domain.TaskID) (StatusView, error) {
	task, err := o.registry.GetTask(ctx, id)
	if err != nil {
		return StatusView{}, err
	}
	return StatusView{Task: task, MarkdownReady: o.store.HasMarkdown(id)}, nil
}

// Markdown returns the converted output for a done task. Unknown ids yield
// ErrTaskNotFound; known-but-unfinished ones yield ErrNotReady.
func (o *Orchestrator) Markdown(ctx context.Context, id domain.TaskID) (string, error) {
	task, err := o.registry.GetTask(ctx, id)
	if err != nil {
		return "", err
	}
	if task.Status != domain.TaskStatusDone {
		return "", domain.ErrNotReady
	}
	return o.store.ReadMarkdown(id)
}

// Asset resolves an asset filename to its on-disk path.
func (o *Orchestrator) Asset(id domain.TaskID, filename string) (string, error) {
	return o.store.AssetPath(id, filename)
}

// Bundle returns the portable archive for a task along with the download
// filename derived from its title.
func (o *Orchestrator) Bundle(ctx context.Context, id domain.TaskID) (io.Reader, string, error) {
	task, err := o.registry.GetTask(ctx, id)
	if err != nil {
		return nil, "", err
	}
	reader, err := o.store.Bundle(id)
	if err != nil {
		return nil, "", err
	}
	title := task.Title
	if title == "" {
		title = "document"
	}
	return reader, title + ".zip", nil
}
