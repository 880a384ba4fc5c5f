package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"

	"github.com/vaultsync/vaultsync/internal/api"
	"github.com/vaultsync/vaultsync/internal/config"
	"github.com/vaultsync/vaultsync/internal/coordinator"
	"github.com/vaultsync/vaultsync/internal/pipeline"
	"github.com/vaultsync/vaultsync/internal/progress"
)

// newUploadCmd creates the 'upload' command.
func newUploadCmd() *cobra.Command {
	var (
		remoteDir string
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "upload <file> [file...]",
		Short: "Upload files into a remote folder",
		Long: `Upload one or more local files into a folder on the remote storage
service.

If the destination folder is end-to-end encrypted, each file is
encrypted locally with a fresh key before upload and the folder's
metadata document is updated under an advisory lock. Unencrypted
folders receive the files as-is.

Multiple files are uploaded concurrently; each file is an independent
task, so one failure does not stop the others.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			client, err := api.NewClient(cfg)
			if err != nil {
				return err
			}

			log := GetLogger()
			coord := coordinator.New(client, log, coordinator.Options{
				TempDir:          cfg.Upload.TempDir,
				LockRetryDelay:   cfg.LockRetryDelay(),
				LockRetryCeiling: cfg.LockRetryCeiling(),
				CallTimeout:      cfg.CallTimeout(),
			})

			// A single interactive upload gets a progress bar; concurrent
			// uploads would interleave bars, so they run quietly.
			var reporter progress.Reporter
			if !quiet && len(args) == 1 {
				reporter = progress.NewCLIReporter()
			}
			uploader := pipeline.NewUploader(client, log, reporter)

			if workers < 1 {
				workers = 1
			}
			return uploadAll(GetContext(), coord, uploader, args, remoteDir, workers)
		},
	}

	cmd.Flags().StringVarP(&remoteDir, "remote-dir", "d", "/", "Destination folder on the remote")
	cmd.Flags().IntVarP(&workers, "workers", "w", 4, "Maximum concurrent uploads")

	return cmd
}

// uploadAll runs one upload task per file through a bounded worker pool and
// reports per-file outcomes.
func uploadAll(ctx context.Context, coord *coordinator.Coordinator, uploader *pipeline.Uploader, files []string, remoteDir string, workers int) error {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		failed int
	)
	sem := make(chan struct{}, workers)

	for _, file := range files {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			remotePath := path.Join(remoteDir, filepath.Base(file))
			if err := uploadOne(ctx, coord, uploader, file, remotePath); err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", file, err)
				return
			}
			fmt.Printf("✓ %s -> %s\n", file, remotePath)
		}(file)
	}
	wg.Wait()

	if failed > 0 {
		return fmt.Errorf("%d of %d uploads failed", failed, len(files))
	}
	return nil
}

// uploadOne coordinates and transfers a single file. Cancelling ctx cancels
// the task, which abandons any pending lock retry.
func uploadOne(ctx context.Context, coord *coordinator.Coordinator, uploader *pipeline.Uploader, sourcePath, remotePath string) error {
	task := coordinator.NewTask(sourcePath, remotePath)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			task.Cancel()
		case <-done:
		}
	}()

	res, err := coord.Run(task)
	if errors.Is(err, coordinator.ErrFolderNotEncrypted) {
		// Plain folder: upload the file as-is.
		return uploader.UploadPlain(ctx, sourcePath, remotePath)
	}
	if err != nil {
		return err
	}
	return uploader.UploadEncrypted(ctx, res)
}

// loadConfig loads the configuration from --config or the default path.
func loadConfig() (*config.Config, error) {
	configPath := cfgFile
	if configPath == "" {
		var err error
		configPath, err = config.DefaultConfigPath()
		if err != nil {
			return nil, err
		}
	}
	return config.Load(configPath)
}
