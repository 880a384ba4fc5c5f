package pipeline

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vaultsync/vaultsync/internal/coordinator"
	"github.com/vaultsync/vaultsync/internal/logging"
)

type fakeStore struct {
	putPath string
	putSize int64
	putBody []byte
	putErr  error
}

func (f *fakeStore) PutFile(ctx context.Context, remotePath string, r io.Reader, size int64) error {
	f.putPath = remotePath
	f.putSize = size
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.putBody = b
	return f.putErr
}

func newTestUploader(store *fakeStore) *Uploader {
	return NewUploader(store, logging.NewLogger(io.Discard), nil)
}

func stageFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "a1b2c3d4e5f6g7h8i9j0")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o600))
	return p
}

func TestUploadEncryptedTransfersAndCleansUp(t *testing.T) {
	store := &fakeStore{}
	staged := stageFile(t, "ciphertext bytes")

	res := &coordinator.Result{
		LocalCiphertextPath: staged,
		RemotePath:          "/docs/a1b2c3d4e5f6g7h8i9j0",
		Size:                int64(len("ciphertext bytes")),
	}
	require.NoError(t, newTestUploader(store).UploadEncrypted(context.Background(), res))

	assert.Equal(t, res.RemotePath, store.putPath)
	assert.Equal(t, res.Size, store.putSize)
	assert.Equal(t, []byte("ciphertext bytes"), store.putBody)

	// Staging file is gone.
	_, err := os.Stat(staged)
	assert.True(t, os.IsNotExist(err))
}

func TestUploadEncryptedRemovesStagingOnFailure(t *testing.T) {
	store := &fakeStore{putErr: errors.New("refused")}
	staged := stageFile(t, "x")

	res := &coordinator.Result{LocalCiphertextPath: staged, RemotePath: "/docs/n", Size: 1}
	err := newTestUploader(store).UploadEncrypted(context.Background(), res)
	require.ErrorIs(t, err, store.putErr)

	_, statErr := os.Stat(staged)
	assert.True(t, os.IsNotExist(statErr))
}

func TestUploadEncryptedMissingStagingFile(t *testing.T) {
	res := &coordinator.Result{
		LocalCiphertextPath: filepath.Join(t.TempDir(), "gone"),
		RemotePath:          "/docs/n",
		Size:                1,
	}
	err := newTestUploader(&fakeStore{}).UploadEncrypted(context.Background(), res)
	assert.ErrorContains(t, err, "failed to open staged ciphertext")
}

func TestUploadPlain(t *testing.T) {
	store := &fakeStore{}
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("plain"), 0o600))

	require.NoError(t, newTestUploader(store).UploadPlain(context.Background(), src, "/docs/notes.txt"))

	assert.Equal(t, "/docs/notes.txt", store.putPath)
	assert.Equal(t, int64(5), store.putSize)
	assert.Equal(t, []byte("plain"), store.putBody)

	// The source is never deleted.
	_, err := os.Stat(src)
	assert.NoError(t, err)
}
