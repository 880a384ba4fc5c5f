package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState represents the current state of an upload task.
type TaskState string

const (
	TaskPending      TaskState = "pending"      // Created, not yet started
	TaskRunning      TaskState = "running"      // Coordination in progress
	TaskInapplicable TaskState = "inapplicable" // Folder not encrypted; plain upload applies
	TaskCompleted    TaskState = "completed"    // Ciphertext staged, metadata updated
	TaskFailed       TaskState = "failed"       // Terminal failure
	TaskCancelled    TaskState = "cancelled"    // Abandoned by the caller
)

// Task identifies one file being uploaded into an encrypted folder. It is
// created once per file by the surrounding pipeline and owned by the
// coordinator until it reports success or terminal failure.
//
// The task's context is the single source of truth for "has this task been
// abandoned": cancelling it stops any pending lock retry.
type Task struct {
	ID         string // Unique task ID
	SourcePath string // Local plaintext path
	RemotePath string // Remote logical path (slash-separated, includes filename)

	mu    sync.RWMutex
	state TaskState
	err   error

	createdAt   time.Time
	completedAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

// NewTask creates a task for uploading sourcePath to remotePath.
// The task starts in TaskPending state.
func NewTask(sourcePath, remotePath string) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		ID:         uuid.NewString(),
		SourcePath: sourcePath,
		RemotePath: remotePath,
		state:      TaskPending,
		createdAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// State returns the current state (thread-safe).
func (t *Task) State() TaskState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

func (t *Task) setState(state TaskState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = state
	if state == TaskCompleted || state == TaskFailed || state == TaskCancelled || state == TaskInapplicable {
		t.completedAt = time.Now()
	}
}

func (t *Task) fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.err = err
	t.state = TaskFailed
	t.completedAt = time.Now()
}

// Err returns the terminal error, if any (thread-safe).
func (t *Task) Err() error {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.err
}

// Cancel abandons the task. A pending lock retry observes the cancellation
// and stops without re-attempting.
func (t *Task) Cancel() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancel()
	if t.state == TaskPending || t.state == TaskRunning {
		t.state = TaskCancelled
		t.completedAt = time.Now()
	}
}

// Context returns the task's context for cancellation checking.
func (t *Task) Context() context.Context {
	return t.ctx
}

// IsTerminal returns true if the task has concluded one way or another.
func (t *Task) IsTerminal() bool {
	switch t.State() {
	case TaskInapplicable, TaskCompleted, TaskFailed, TaskCancelled:
		return true
	}
	return false
}
