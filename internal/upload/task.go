// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// TASK STATE
// =============================================================================

// State is the workflow state of an upload task.
type State string

const (
	// StateUploading covers session resolution and the binary transfer
	StateUploading State = "uploading"

	// StatePolling waits for the OCR result
	StatePolling State = "polling"

	// StateSucceeded means the OCR text reached the timeline
	StateSucceeded State = "succeeded"

	// StateFailed means a definitive error ended the task
	StateFailed State = "failed"

	// StateTimedOut means the polling budget ran out while the result was not ready
	StateTimedOut State = "timedOut"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition is possible.
func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateTimedOut
}

// =============================================================================
// TASK
// =============================================================================

// Task is the state of one file going through the workflow.
// A task is created per file and never reused.
type Task struct {
	// ID is a unique identifier for this task
	ID string

	// FileName, FileSize and MimeType describe the document
	FileName string
	FileSize int64
	MimeType string

	// MaxAttempts bounds OCR polling
	MaxAttempts int

	mu        sync.RWMutex
	state     State
	chatID    string
	fileID    string
	attempt   int
	err       error
	startTime time.Time
	endTime   time.Time
}

// NewTask creates a task in the uploading state.
func NewTask(f File, maxAttempts int) *Task {
	return &Task{
		ID:          uuid.NewString(),
		FileName:    f.Name,
		FileSize:    f.Size,
		MimeType:    f.MimeType,
		MaxAttempts: maxAttempts,
		state:       StateUploading,
		startTime:   time.Now(),
	}
}

// SetState moves the task to s.
// Valid transitions: uploading -> polling -> succeeded/failed/timedOut,
// and uploading -> failed.
func (t *Task) SetState(s State) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !isValidTransition(t.state, s) {
		return fmt.Errorf("invalid upload state transition from %s to %s", t.state, s)
	}
	t.state = s
	if s.IsTerminal() {
		t.endTime = time.Now()
	}
	return nil
}

func isValidTransition(from, to State) bool {
	switch from {
	case StateUploading:
		return to == StatePolling || to == StateFailed
	case StatePolling:
		return to == StateSucceeded || to == StateFailed || to == StateTimedOut
	default:
		return false
	}
}

// State returns the current state.
func (t *Task) State() State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// ChatID returns the chat the document was uploaded to.
func (t *Task) ChatID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.chatID
}

// FileID returns the backend file reference, empty before the upload completes.
func (t *Task) FileID() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.fileID
}

// Attempt returns the last OCR poll attempt (1-based, 0 before polling).
func (t *Task) Attempt() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.attempt
}

// Err returns the error that ended the task, if any.
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Duration returns how long the task has been running or took to finish.
func (t *Task) Duration() time.Duration {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.endTime.IsZero() {
		return time.Since(t.startTime)
	}
	return t.endTime.Sub(t.startTime)
}

// Summary returns a one-line summary of the task.
func (t *Task) Summary() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	summary := fmt.Sprintf("[%s] %s - %s", t.ID[:8], t.FileName, t.state)
	if t.attempt > 0 {
		summary += fmt.Sprintf(" (%d/%d polls)", t.attempt, t.MaxAttempts)
	}
	return summary
}

func (t *Task) setChatID(id string) {
	t.mu.Lock()
	t.chatID = id
	t.mu.Unlock()
}

func (t *Task) setFileID(id string) {
	t.mu.Lock()
	t.fileID = id
	t.mu.Unlock()
}

func (t *Task) setAttempt(n int) {
	t.mu.Lock()
	t.attempt = n
	t.mu.Unlock()
}

// finish records the terminal state and error.
func (t *Task) finish(s State, err error) error {
	if serr := t.SetState(s); serr != nil {
		return serr
	}
	t.mu.Lock()
	t.err = err
	t.mu.Unlock()
	return nil
}
