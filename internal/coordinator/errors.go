package coordinator

import (
	"errors"
	"fmt"
)

// ErrFolderNotEncrypted is returned when the target folder is not
// end-to-end encrypted. The caller falls back to a plain upload; it is a
// routing signal, not a failure.
var ErrFolderNotEncrypted = errors.New("folder is not end-to-end encrypted")

// Kind classifies the terminal failures of an encrypted-upload task.
type Kind int

const (
	// StatusCheckFailed: the folder encryption-status check failed.
	// Not retried: transient faults here fail the task outright.
	StatusCheckFailed Kind = iota + 1

	// FolderIDResolutionFailed: the folder listing failed or contained no
	// entry for the queried path.
	FolderIDResolutionFailed

	// LockAcquisitionTimedOut: the lock retry budget was exhausted.
	LockAcquisitionTimedOut

	// LockAcquisitionAbandoned: the task was cancelled while waiting to
	// retry the lock.
	LockAcquisitionAbandoned

	// MetadataFetchFailed: the metadata document could not be fetched.
	MetadataFetchFailed

	// MetadataParseFailed: the fetched metadata document is malformed.
	MetadataParseFailed

	// EncryptionFailed: key generation or the encryption primitive failed.
	EncryptionFailed

	// MetadataWriteFailed: the updated document was rejected or could not
	// be written back.
	MetadataWriteFailed
)

func (k Kind) String() string {
	switch k {
	case StatusCheckFailed:
		return "status check failed"
	case FolderIDResolutionFailed:
		return "folder id resolution failed"
	case LockAcquisitionTimedOut:
		return "lock acquisition timed out"
	case LockAcquisitionAbandoned:
		return "lock acquisition abandoned"
	case MetadataFetchFailed:
		return "metadata fetch failed"
	case MetadataParseFailed:
		return "metadata parse failed"
	case EncryptionFailed:
		return "encryption failed"
	case MetadataWriteFailed:
		return "metadata write failed"
	default:
		return fmt.Sprintf("unknown error kind %d", int(k))
	}
}

// Error is a terminal coordination failure. It carries the failed stage's
// Kind and wraps the underlying cause.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of a coordination error, or 0 if err is not one.
func KindOf(err error) Kind {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return 0
}
