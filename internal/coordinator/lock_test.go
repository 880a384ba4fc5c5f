package coordinator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLock(remote Remote, clock Clock) *FolderLock {
	return newFolderLock(remote, testLogger(), clock,
		5*time.Second, 5*time.Minute, 30*time.Second)
}

func TestFolderLockFirstAttemptSucceeds(t *testing.T) {
	remote := newFakeRemote()
	lock := newTestLock(remote, newFakeClock())

	token, err := lock.Acquire(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, LockHeld, lock.State())
	assert.Equal(t, "tok-1", lock.Token())

	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, LockReleased, lock.State())
	assert.Empty(t, lock.Token())

	assert.Equal(t,
		[]LockState{LockIdle, LockAcquiring, LockHeld, LockReleasing, LockReleased},
		lock.History())
}

func TestFolderLockRetriesThroughContention(t *testing.T) {
	remote := newFakeRemote()
	remote.lockErrs = []error{errContention}
	clock := newFakeClock()
	lock := newTestLock(remote, clock)

	token, err := lock.Acquire(context.Background(), "f-1")
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)

	assert.Equal(t, []time.Duration{5 * time.Second}, clock.timersScheduled())
	assert.Equal(t,
		[]LockState{LockIdle, LockAcquiring, LockAwaitingRetry, LockAcquiring, LockHeld},
		lock.History())
}

func TestFolderLockCeilingExpires(t *testing.T) {
	remote := newFakeRemote()
	remote.lockErr = errContention
	clock := newFakeClock()
	lock := newTestLock(remote, clock)

	_, err := lock.Acquire(context.Background(), "f-1")
	require.Error(t, err)
	assert.Equal(t, LockAcquisitionTimedOut, KindOf(err))
	assert.ErrorIs(t, err, errContention)
	assert.Equal(t, LockFailed, lock.State())
	assert.Len(t, clock.timersScheduled(), 60)
	assert.Empty(t, lock.Token())
}

func TestFolderLockAbandonedByCancellation(t *testing.T) {
	remote := newFakeRemote()
	remote.lockErr = errContention
	ctx, cancel := context.WithCancel(context.Background())
	remote.onLock = func() { cancel() }
	lock := newTestLock(remote, newFakeClock())

	_, err := lock.Acquire(ctx, "f-1")
	require.Error(t, err)
	assert.Equal(t, LockAcquisitionAbandoned, KindOf(err))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, LockFailed, lock.State())
	assert.Equal(t, 1, remote.countCalls("lock"))
}

func TestFolderLockReleaseIsIdempotent(t *testing.T) {
	remote := newFakeRemote()
	lock := newTestLock(remote, newFakeClock())

	// Release before acquisition is a no-op.
	require.NoError(t, lock.Release(context.Background()))
	assert.Zero(t, remote.countCalls("unlock"))

	_, err := lock.Acquire(context.Background(), "f-1")
	require.NoError(t, err)

	require.NoError(t, lock.Release(context.Background()))
	require.NoError(t, lock.Release(context.Background()))
	assert.Equal(t, 1, remote.countCalls("unlock"))
}

func TestFolderLockReleaseReportsUnlockError(t *testing.T) {
	remote := newFakeRemote()
	remote.unlockErr = errors.New("gone")
	lock := newTestLock(remote, newFakeClock())

	_, err := lock.Acquire(context.Background(), "f-1")
	require.NoError(t, err)

	err = lock.Release(context.Background())
	assert.ErrorIs(t, err, remote.unlockErr)
	// The lock is considered released locally even if the server call failed;
	// the advisory lock expires server-side.
	assert.Equal(t, LockReleased, lock.State())
}
