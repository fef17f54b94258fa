package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatus_CanTransition(t *testing.T) {
	allowed := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusProcessing},
		{TaskStatusPending, TaskStatusError},
		{TaskStatusProcessing, TaskStatusDone},
		{TaskStatusProcessing, TaskStatusError},
	}
	for _, tr := range allowed {
		assert.True(t, tr.from.CanTransition(tr.to), "%s -> %s", tr.from, tr.to)
	}

	denied := []struct{ from, to TaskStatus }{
		{TaskStatusPending, TaskStatusDone},
		{TaskStatusProcessing, TaskStatusPending},
		{TaskStatusDone, TaskStatusProcessing},
		{TaskStatusDone, TaskStatusError},
		{TaskStatusError, TaskStatusDone},
		{TaskStatusError, TaskStatusPending},
	}
	for _, tr := range denied {
		assert.False(t, tr.from.CanTransition(tr.to), "%s -> %s", tr.from, tr.to)
	}
}

func TestTaskStatus_IsTerminal(t *testing.T) {
	assert.False(t, TaskStatusPending.IsTerminal())
	assert.False(t, TaskStatusProcessing.IsTerminal())
	assert.True(t, TaskStatusDone.IsTerminal())
	assert.True(t, TaskStatusError.IsTerminal())
}

func TestFingerprintKey(t *testing.T) {
	assert.Equal(t, "fingerprint:abc", FingerprintKey("abc"))
}
