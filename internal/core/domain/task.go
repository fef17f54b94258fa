package domain

import "time"

// TaskID is the unique identifier for a conversion task
type TaskID string

// TaskStatus represents the current state of a conversion task
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusError      TaskStatus = "error"
)

// IsTerminal reports whether the status is terminal (no further transitions).
func (s TaskStatus) IsTerminal() bool {
	return s == TaskStatusDone || s == TaskStatusError
}

// CanTransition reports whether a transition from s to next is allowed.
// The state machine only moves forward: pending -> processing -> done|error.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusProcessing || next == TaskStatusError
	case TaskStatusProcessing:
		return next == TaskStatusDone || next == TaskStatusError
	default:
		return false
	}
}

// FormatMarkdown is the only output format this service produces.
const FormatMarkdown = "markdown"

// DefaultTitle is used when the engine reports no document title.
const DefaultTitle = "Untitled"

// Task is one unit of submitted-document-to-converted-output work.
type Task struct {
	ID           TaskID     `json:"id"`
	Status       TaskStatus `json:"status"`
	Format       string     `json:"format"`
	Title        string     `json:"title,omitempty"`
	OutputPath   string     `json:"output_path,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// CacheEntry points a dedup key (title or fingerprint) at a completed task.
// The task owns the artifact; the entry only references it.
type CacheEntry struct {
	Key       string    `json:"key"`
	Format    string    `json:"format"`
	TaskID    TaskID    `json:"task_id"`
	CreatedAt time.Time `json:"created_at"`
}

// FingerprintKeyPrefix namespaces fingerprint cache keys away from titles.
const FingerprintKeyPrefix = "fingerprint:"

// FingerprintKey builds the cache key for a content fingerprint.
func FingerprintKey(digest string) string {
	return FingerprintKeyPrefix + digest
}

// ConversionResult is what the conversion adapter hands back on success.
type ConversionResult struct {
	Title      string
	OutputPath string
	AssetCount int
}
