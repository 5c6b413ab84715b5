package app

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fileferry/internal/config"
	"fileferry/internal/processor"
	"fileferry/internal/telemetry"
	"fileferry/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startReceiver(t *testing.T, outputDir string) (*config.Config, *telemetry.Telemetry, func()) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	cfg := config.NewDefaultConfig()
	cfg.Transfer.Host = "127.0.0.1"
	cfg.Transfer.Port = ln.Addr().(*net.TCPAddr).Port
	cfg.Transfer.OutputDir = outputDir

	tel := telemetry.NewNoop()
	receiver := transport.NewReceiver(cfg, processor.NewPipeline(), tel)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = receiver.Serve(ctx, ln)
	}()

	return cfg, tel, func() {
		cancel()
		<-served
	}
}

func TestSenderAppSendsDirectory(t *testing.T) {
	outputDir := t.TempDir()
	cfg, tel, stop := startReceiver(t, outputDir)
	defer stop()

	inputDir := t.TempDir()
	want := map[string][]byte{
		"one.txt": []byte("first file"),
		"two.txt": []byte("second file with more content"),
	}
	for name, content := range want {
		require.NoError(t, os.WriteFile(filepath.Join(inputDir, name), content, 0o644))
	}

	senderApp := NewSenderApp(cfg, transport.NewSender(cfg, processor.NewPipeline(), telemetry.NewNoop()))
	require.NoError(t, senderApp.Run(context.Background(), &SenderOptions{InputDir: inputDir}))

	require.Eventually(t, func() bool {
		return tel.FilesReceived() == int64(len(want))
	}, 5*time.Second, 10*time.Millisecond)

	for name, content := range want {
		got, err := os.ReadFile(filepath.Join(outputDir, name))
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}
}

func TestSenderAppNoFiles(t *testing.T) {
	cfg := config.NewDefaultConfig()
	senderApp := NewSenderApp(cfg, transport.NewSender(cfg, processor.NewPipeline(), telemetry.NewNoop()))

	err := senderApp.Run(context.Background(), &SenderOptions{})
	require.Error(t, err)
}

func TestSenderAppMissingInputDir(t *testing.T) {
	cfg := config.NewDefaultConfig()
	senderApp := NewSenderApp(cfg, transport.NewSender(cfg, processor.NewPipeline(), telemetry.NewNoop()))

	err := senderApp.Run(context.Background(), &SenderOptions{
		InputDir: filepath.Join(t.TempDir(), "missing"),
	})
	require.Error(t, err)
}

func TestSenderAppReportsPartialFailure(t *testing.T) {
	outputDir := t.TempDir()
	cfg, _, stop := startReceiver(t, outputDir)
	defer stop()

	good := filepath.Join(t.TempDir(), "good.txt")
	require.NoError(t, os.WriteFile(good, []byte("fine"), 0o644))
	missing := filepath.Join(t.TempDir(), "missing.txt")

	senderApp := NewSenderApp(cfg, transport.NewSender(cfg, processor.NewPipeline(), telemetry.NewNoop()))
	err := senderApp.Run(context.Background(), &SenderOptions{Files: []string{good, missing}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 transfers failed")
}
