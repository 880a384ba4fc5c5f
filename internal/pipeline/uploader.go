// Package pipeline moves ciphertext produced by the coordinator to the
// remote storage service and cleans up the local staging file.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/vaultsync/vaultsync/internal/coordinator"
	"github.com/vaultsync/vaultsync/internal/logging"
	"github.com/vaultsync/vaultsync/internal/progress"
)

// FileStore is the subset of the API client the uploader needs.
type FileStore interface {
	PutFile(ctx context.Context, remotePath string, r io.Reader, size int64) error
}

// Uploader transfers staged ciphertext (or, for unencrypted folders, the
// plaintext source) to its remote path.
type Uploader struct {
	store    FileStore
	log      *logging.Logger
	reporter progress.Reporter
}

// NewUploader creates an uploader. A nil reporter disables progress output.
func NewUploader(store FileStore, log *logging.Logger, reporter progress.Reporter) *Uploader {
	if reporter == nil {
		reporter = progress.NewNoopReporter()
	}
	return &Uploader{store: store, log: log, reporter: reporter}
}

// UploadEncrypted sends the coordinator's ciphertext to its remote path and
// removes the local staging file afterwards. The staging file is removed
// even when the transfer fails; the coordinator regenerates it on retry.
func (u *Uploader) UploadEncrypted(ctx context.Context, res *coordinator.Result) error {
	defer func() {
		if err := os.Remove(res.LocalCiphertextPath); err != nil && !os.IsNotExist(err) {
			u.log.Warn().Str("path", res.LocalCiphertextPath).Err(err).
				Msg("failed to remove staged ciphertext")
		}
	}()

	f, err := os.Open(res.LocalCiphertextPath)
	if err != nil {
		return fmt.Errorf("failed to open staged ciphertext: %w", err)
	}
	defer f.Close()

	u.reporter.Start(res.Size, path.Base(res.RemotePath))
	defer u.reporter.Finish()

	if err := u.store.PutFile(ctx, res.RemotePath, progress.NewReader(f, u.reporter), res.Size); err != nil {
		return fmt.Errorf("failed to upload ciphertext to %s: %w", res.RemotePath, err)
	}

	u.log.Debug().Str("remote_path", res.RemotePath).Int64("size", res.Size).
		Msg("ciphertext uploaded")
	return nil
}

// UploadPlain sends a source file unmodified to its remote path. Used when
// the destination folder is not end-to-end encrypted.
func (u *Uploader) UploadPlain(ctx context.Context, sourcePath, remotePath string) error {
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", sourcePath, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", sourcePath, err)
	}

	u.reporter.Start(info.Size(), path.Base(remotePath))
	defer u.reporter.Finish()

	if err := u.store.PutFile(ctx, remotePath, progress.NewReader(f, u.reporter), info.Size()); err != nil {
		return fmt.Errorf("failed to upload %s: %w", remotePath, err)
	}

	u.log.Debug().Str("remote_path", remotePath).Int64("size", info.Size()).
		Msg("file uploaded")
	return nil
}
