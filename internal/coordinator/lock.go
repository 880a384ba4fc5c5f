package coordinator

import (
	"context"
	"sync"
	"time"

	"github.com/vaultsync/vaultsync/internal/logging"
)

// LockState is a state of the folder-lock lifecycle.
type LockState int

const (
	LockIdle LockState = iota
	LockAcquiring
	LockAwaitingRetry
	LockHeld
	LockReleasing
	LockReleased
	LockFailed
)

func (s LockState) String() string {
	switch s {
	case LockIdle:
		return "idle"
	case LockAcquiring:
		return "acquiring"
	case LockAwaitingRetry:
		return "awaiting-retry"
	case LockHeld:
		return "held"
	case LockReleasing:
		return "releasing"
	case LockReleased:
		return "released"
	case LockFailed:
		return "failed"
	default:
		return "unknown"
	}
}

/// FolderLock drives the advisory-lock lifecycle for one upload task:
//
//	Idle → Acquiring → (AwaitingRetry → Acquiring)* → Held → Releasing → Released
//
// Contention is retried on a fixed delay until a ceiling measured from the
// first attempt; a cancelled task context stops a pending retry. Once Held,
// Release must be driven on every terminal path of the owning task.
type FolderLock struct {
	remote       Remote
	log          *logging.Logger
	clock        Clock
	retryDelay   time.Duration
	retryCeiling time.Duration
	callTimeout  time.Duration

	mu           sync.Mutex
	state        LockState
	history      []LockState
	folderID     string
	token        string
	firstAttempt time.Time
}

func newFolderLock(remote Remote, log *logging.Logger, clock Clock, retryDelay, retryCeiling, callTimeout time.Duration) *FolderLock {
	return &FolderLock{
		remote:       remote,
		log:          log,
		clock:        clock,
		retryDelay:   retryDelay,
		retryCeiling: retryCeiling,
		callTimeout:  callTimeout,
		state:        LockIdle,
		history:      []LockState{LockIdle},
	}
}

// State returns the current lock state (thread-safe).
func (l *FolderLock) State() LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// Token returns the lock token while the lock is held, else "".
func (l *FolderLock) Token() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != LockHeld {
		return ""
	}
	return l.token
}

// History returns every state the lock has passed through, in order.
func (l *FolderLock) History() []LockState {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LockState, len(l.history))
	copy(out, l.history)
	return out
}

func (l *FolderLock) transition(s LockState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.state = s
	l.history = append(l.history, s)
}

// Acquire locks the folder, retrying contention every retryDelay until the
// retry ceiling elapses (measured from the first attempt) or ctx is
// cancelled. On success the lock is Held and the token is returned.
func (l *FolderLock) Acquire(ctx context.Context, folderID string) (string, error) {
	l.mu.Lock()
	l.folderID = folderID
	l.mu.Unlock()

	l.transition(LockAcquiring)
	l.mu.Lock()
	l.firstAttempt = l.clock.Now()
	l.mu.Unlock()

	for {
		token, err := l.lockOnce(ctx, folderID)
		if err == nil {
			l.mu.Lock()
			l.token = token
			l.mu.Unlock()
			l.transition(LockHeld)
			l.log.Debug().Str("folder_id", folderID).Msg("folder locked")
			return token, nil
		}

		if ctx.Err() != nil {
			l.transition(LockFailed)
			return "", &Error{Kind: LockAcquisitionAbandoned, Err: ctx.Err()}
		}

		l.log.Debug().Str("folder_id", folderID).Err(err).
			Dur("retry_in", l.retryDelay).Msg("folder lock unavailable, will retry")
		l.transition(LockAwaitingRetry)

		select {
		case <-ctx.Done():
			l.transition(LockFailed)
			return "", &Error{Kind: LockAcquisitionAbandoned, Err: ctx.Err()}
		case <-l.clock.After(l.retryDelay):
		}

		// The task may have been abandoned while the timer was pending.
		if ctx.Err() != nil {
			l.transition(LockFailed)
			return "", &Error{Kind: LockAcquisitionAbandoned, Err: ctx.Err()}
		}
		if l.clock.Now().Sub(l.firstAttempt) >= l.retryCeiling {
			l.transition(LockFailed)
			return "", &Error{Kind: LockAcquisitionTimedOut, Err: err}
		}
		l.transition(LockAcquiring)
	}
}

func (l *FolderLock) lockOnce(ctx context.Context, folderID string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()
	return l.remote.LockFolder(callCtx, folderID)
}

// Release unlocks the folder. It is a no-op unless the lock is Held, so the
// owning task can call it both explicitly and from a deferred guard. The
// lock always ends Released: an unlock failure is returned for logging but
// the server-side lock expires on its own.
func (l *FolderLock) Release(ctx context.Context) error {
	l.mu.Lock()
	if l.state != LockHeld {
		l.mu.Unlock()
		return nil
	}
	folderID, token := l.folderID, l.token
	l.mu.Unlock()

	l.transition(LockReleasing)

	callCtx, cancel := context.WithTimeout(ctx, l.callTimeout)
	defer cancel()
	err := l.remote.UnlockFolder(callCtx, folderID, token)

	l.mu.Lock()
	l.token = ""
	l.mu.Unlock()
	l.transition(LockReleased)

	if err == nil {
		l.log.Debug().Str("folder_id", folderID).Msg("folder unlocked")
	}
	return err
}
