// Package coordinator implements the client-side protocol for uploading a
// file into an end-to-end-encrypted folder.
//
// The remote service has no transactional multi-step API, so the client
// enforces the ordering itself: check the folder's encryption status,
// resolve the folder's stable id, acquire the folder's advisory lock,
// fetch and merge the folder metadata document, encrypt the file locally,
// write the updated document back under the lock token, and unlock. The
// bulk ciphertext transfer is left to the surrounding pipeline, which
// receives the staged ciphertext path, remote path, and size.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/vaultsync/vaultsync/internal/api"
	encryption "github.com/vaultsync/vaultsync/internal/crypto"
	"github.com/vaultsync/vaultsync/internal/logging"
	"github.com/vaultsync/vaultsync/internal/metadata"
)

// encryptedFilenameLength is the length of the random server-side filename
// generated for a file's first encrypted upload.
const encryptedFilenameLength = 20

// Remote is the set of server calls the coordinator drives. Implemented by
// *api.Client; tests substitute fakes.
type Remote interface {
	FolderEncryptionStatus(ctx context.Context, folderPath string) (bool, error)
	ListFolder(ctx context.Context, folderPath string) ([]api.FolderEntry, error)
	LockFolder(ctx context.Context, folderID string) (string, error)
	UnlockFolder(ctx context.Context, folderID, token string) error
	FolderMetadata(ctx context.Context, folderID string) ([]byte, int, error)
	UpdateFolderMetadata(ctx context.Context, folderID string, document []byte, token string) error
}

// Result is handed to the surrounding upload pipeline on success. The
// pipeline takes ownership of the ciphertext file at LocalCiphertextPath
// and transfers it to RemotePath.
type Result struct {
	LocalCiphertextPath string
	RemotePath          string
	Size                int64
}

// Options tunes the coordinator. Zero values fall back to defaults.
type Options struct {
	// TempDir is where ciphertext files are staged. Default: os.TempDir().
	TempDir string

	// LockRetryDelay is the fixed delay between lock attempts. Default: 5s.
	LockRetryDelay time.Duration

	// LockRetryCeiling bounds lock retrying, measured from the first
	// attempt. Default: 5m.
	LockRetryCeiling time.Duration

	// CallTimeout bounds each individual remote call. Default: 30s.
	CallTimeout time.Duration

	// Clock is substituted in tests. Default: the wall clock.
	Clock Clock
}

func (o *Options) withDefaults() {
	if o.TempDir == "" {
		o.TempDir = os.TempDir()
	}
	if o.LockRetryDelay == 0 {
		o.LockRetryDelay = 5 * time.Second
	}
	if o.LockRetryCeiling == 0 {
		o.LockRetryCeiling = 5 * time.Minute
	}
	if o.CallTimeout == 0 {
		o.CallTimeout = 30 * time.Second
	}
	if o.Clock == nil {
		o.Clock = realClock{}
	}
}

// Coordinator runs the encrypted-upload protocol for one task at a time.
// It is stateless across tasks; the surrounding pipeline may run one
// instance from multiple goroutines, one task each.
type Coordinator struct {
	remote Remote
	log    *logging.Logger
	opts   Options
}

// New creates a Coordinator.
func New(remote Remote, log *logging.Logger, opts Options) *Coordinator {
	opts.withDefaults()
	return &Coordinator{
		remote: remote,
		log:    log,
		opts:   opts,
	}
}

// Run coordinates the encrypted upload of one file. On success the task is
// TaskCompleted and the Result points at the staged ciphertext. If the
// target folder is not encrypted, Run returns ErrFolderNotEncrypted and the
// task is TaskInapplicable so the caller falls back to a plain upload. Any
// other error is terminal; the task must not be converted to a plaintext
// upload.
func (c *Coordinator) Run(task *Task) (*Result, error) {
	task.setState(TaskRunning)

	res, err := c.run(task.Context(), task)
	switch {
	case err == nil:
		task.setState(TaskCompleted)
	case errors.Is(err, ErrFolderNotEncrypted):
		task.setState(TaskInapplicable)
	default:
		task.fail(err)
	}
	return res, err
}

func (c *Coordinator) run(ctx context.Context, task *Task) (*Result, error) {
	folderPath := path.Dir(task.RemotePath)
	fileName := path.Base(task.RemotePath)

	log := c.log.With().Str("task_id", task.ID).Str("file", fileName).Logger()
	log.Debug().Str("folder", folderPath).Msg("starting encrypted upload coordination")

	// Gate: is the target folder end-to-end encrypted at all?
	var encrypted bool
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		encrypted, err = c.remote.FolderEncryptionStatus(ctx, folderPath)
		return err
	})
	if err != nil {
		return nil, &Error{Kind: StatusCheckFailed, Err: err}
	}
	if !encrypted {
		log.Debug().Msg("folder is not encrypted, falling back to plain upload")
		return nil, ErrFolderNotEncrypted
	}

	// Resolve the folder path to its stable server-side id.
	var entries []api.FolderEntry
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		entries, err = c.remote.ListFolder(ctx, folderPath)
		return err
	})
	if err != nil {
		return nil, &Error{Kind: FolderIDResolutionFailed, Err: err}
	}
	folderID := ""
	for _, entry := range entries {
		if entry.Path == folderPath {
			folderID = entry.FileID
			break
		}
	}
	if folderID == "" {
		return nil, &Error{
			Kind: FolderIDResolutionFailed,
			Err:  fmt.Errorf("listing contains no entry for %q", folderPath),
		}
	}

	// Lock the folder. Once held, release is guaranteed on every exit path.
	lock := newFolderLock(c.remote, c.log, c.opts.Clock,
		c.opts.LockRetryDelay, c.opts.LockRetryCeiling, c.opts.CallTimeout)
	token, err := lock.Acquire(ctx, folderID)
	if err != nil {
		return nil, err
	}
	defer c.releaseLock(lock, folderID)

	// Fetch the folder's metadata document under the lock.
	var raw []byte
	var status int
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		raw, status, err = c.remote.FolderMetadata(ctx, folderID)
		return err
	})
	if err != nil {
		return nil, &Error{Kind: MetadataFetchFailed, Err: err}
	}

	var doc *metadata.Document
	if status == http.StatusNotFound {
		// First encrypted file in this folder.
		doc = metadata.New()
	} else {
		doc, err = metadata.Parse(raw)
		if err != nil {
			return nil, &Error{Kind: MetadataParseFailed, Err: err}
		}
	}

	// Find-or-create the record for this file. Identity fields survive
	// re-uploads; key material never does.
	rec, found := doc.FindByOriginalName(fileName)
	if !found {
		encryptedName, err := encryption.GenerateSecureRandomString(encryptedFilenameLength)
		if err != nil {
			return nil, &Error{Kind: EncryptionFailed, Err: err}
		}
		rec = metadata.Record{
			OriginalFilename:  fileName,
			EncryptedFilename: encryptedName,
			Mimetype:          mimetypeFor(task.SourcePath),
			FileVersion:       1,
			MetadataKey:       1,
		}
	}

	key, err := encryption.GenerateKey()
	if err != nil {
		return nil, &Error{Kind: EncryptionFailed, Err: err}
	}
	iv, err := encryption.GenerateIV()
	if err != nil {
		return nil, &Error{Kind: EncryptionFailed, Err: err}
	}
	rec.EncryptionKey = key
	rec.InitializationVector = iv

	log.Debug().Str("encrypted_name", rec.EncryptedFilename).Msg("encrypting file")
	ciphertextPath := filepath.Join(c.opts.TempDir, rec.EncryptedFilename)
	tag, size, err := encryption.EncryptFile(task.SourcePath, ciphertextPath, key, iv)
	if err != nil {
		return nil, &Error{Kind: EncryptionFailed, Err: err}
	}

	// The tag is recorded before the document ever goes back to the
	// server; Marshal below enforces it as well.
	rec.AuthenticationTag = tag
	doc.Upsert(rec)

	payload, err := doc.Marshal()
	if err != nil {
		os.Remove(ciphertextPath)
		return nil, &Error{Kind: MetadataWriteFailed, Err: err}
	}

	log.Debug().Msg("writing folder metadata back")
	err = c.call(ctx, func(ctx context.Context) error {
		return c.remote.UpdateFolderMetadata(ctx, folderID, payload, token)
	})
	if err != nil {
		os.Remove(ciphertextPath)
		return nil, &Error{Kind: MetadataWriteFailed, Err: err}
	}

	// Release before reporting completion; the deferred guard then no-ops.
	c.releaseLock(lock, folderID)

	res := &Result{
		LocalCiphertextPath: ciphertextPath,
		RemotePath:          path.Join(folderPath, rec.EncryptedFilename),
		Size:                size,
	}
	log.Info().Str("remote_path", res.RemotePath).Int64("size", res.Size).
		Msg("encrypted upload prepared, handing over to transfer")
	return res, nil
}

// releaseLock drives the lock to Released. It runs on its own context so
// the unlock request still goes out when the task context is already
// cancelled; an unlock failure is logged and otherwise ignored since the
// server-side lock expires on its own.
func (c *Coordinator) releaseLock(lock *FolderLock, folderID string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.opts.CallTimeout)
	defer cancel()
	if err := lock.Release(ctx); err != nil {
		c.log.Warn().Str("folder_id", folderID).Err(err).
			Msg("failed to unlock folder, lock will expire server-side")
	}
}

func (c *Coordinator) call(ctx context.Context, fn func(context.Context) error) error {
	callCtx, cancel := context.WithTimeout(ctx, c.opts.CallTimeout)
	defer cancel()
	return fn(callCtx)
}

func mimetypeFor(sourcePath string) string {
	mt := mime.TypeByExtension(filepath.Ext(sourcePath))
	if mt == "" {
		return "application/octet-stream"
	}
	// Strip parameters such as "; charset=utf-8".
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt
}
