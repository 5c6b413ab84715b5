package app

import (
	"context"
	"fmt"
	"sync"

	"fileferry/internal/config"
	"fileferry/internal/transport"
	"fileferry/pkg/utils"

	"github.com/sirupsen/logrus"
)

// SenderOptions configures the sender application behavior
type SenderOptions struct {
	Files    []string // Explicit file paths to send
	InputDir string   // Optional: directory walked recursively for files
}

// SenderApp sends a batch of files concurrently. Every file gets its own
// Sender, goroutine and connection.
type SenderApp struct {
	config *config.Config
	sender *transport.Sender
}

// NewSenderApp creates a new sender application
func NewSenderApp(cfg *config.Config, sender *transport.Sender) *SenderApp {
	return &SenderApp{
		config: cfg,
		sender: sender,
	}
}

// Run sends all files named by opts and reports an aggregate error if any
// transfer failed. Transfers run concurrently and independently; one
// failure does not stop the others.
func (s *SenderApp) Run(ctx context.Context, opts *SenderOptions) error {
	files, err := s.collectFiles(opts)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files to send")
	}

	logrus.WithFields(logrus.Fields{
		"count": len(files),
		"addr":  s.config.Addr(),
	}).Info("Starting transfers")

	var wg sync.WaitGroup
	errCh := make(chan error, len(files))

	for _, file := range files {
		wg.Add(1)
		go func(file string) {
			defer wg.Done()
			result, err := s.sender.Send(ctx, file, s.config.Addr())
			if err != nil {
				logrus.WithField("file", file).WithError(err).Error("Transfer failed")
				errCh <- err
				return
			}
			logrus.WithFields(logrus.Fields{
				"file":            result.FileName,
				"original_size":   utils.FormatFileSize(result.OriginalSize),
				"compressed_size": utils.FormatFileSize(result.CompressedSize),
				"duration":        result.Duration,
			}).Info("Transfer complete")
		}(file)
	}

	wg.Wait()
	close(errCh)

	var failed int
	for range errCh {
		failed++
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d transfers failed", failed, len(files))
	}

	logrus.WithField("count", len(files)).Info("All files sent")
	return nil
}

func (s *SenderApp) collectFiles(opts *SenderOptions) ([]string, error) {
	files := append([]string(nil), opts.Files...)

	if opts.InputDir != "" {
		found, err := utils.CollectFiles(opts.InputDir)
		if err != nil {
			return nil, fmt.Errorf("failed to collect files from %s: %w", opts.InputDir, err)
		}
		if len(found) == 0 {
			logrus.WithField("dir", opts.InputDir).Warn("No files found in input directory")
		}
		files = append(files, found...)
	}

	return files, nil
}
