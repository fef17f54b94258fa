package ports

import (
	"context"
	"io"

	"pdf2md/internal/core/domain"
)

// Registry persists task records and cache entries. All operations are
// single-statement and atomic with respect to concurrent callers.
type Registry interface {
	CreateTask(ctx context.Context, id domain.TaskID, format string) error
	GetTask(ctx context.Context, id domain.TaskID) (domain.Task, error)
	UpdateTaskStatus(ctx context.Context, id domain.TaskID, status domain.TaskStatus, title, outputPath, errorMessage string) error
	LookupCache(ctx context.Context, key, format string) (domain.CacheEntry, bool, error)
	UpsertCache(ctx context.Context, key, format string, taskID domain.TaskID) error
	PruneOlderThan(ctx context.Context, days int) (int64, error)
}

// ArtifactStore manages the directory-per-task layout of converted output
// and binary assets. It knows nothing about tasks or caching semantics.
type ArtifactStore interface {
	EnsureTaskDir(id domain.TaskID) (string, error)
	TaskDir(id domain.TaskID) string
	WriteMarkdown(id domain.TaskID, content string) error
	ReadMarkdown(id domain.TaskID) (string, error)
	HasMarkdown(id domain.TaskID) bool
	WriteAsset(id domain.TaskID, filename string, data []byte) error
	AssetPath(id domain.TaskID, filename string) (string, error)
	Bundle(id domain.TaskID) (io.Reader, error)
	DeleteTask(id domain.TaskID) (bool, error)
}

// Converter invokes the external conversion engine and persists its output
// through the ArtifactStore. It also owns the document-format knowledge the
// orchestrator needs before conversion starts.
type Converter interface {
	Convert(ctx context.Context, id domain.TaskID, document []byte) (domain.ConversionResult, error)
	Title(document []byte) (string, bool)
	Sniff(document []byte) bool
}
