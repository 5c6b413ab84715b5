package transport

import (
	"context"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"fileferry/internal/config"
	"fileferry/internal/processor"
	"fileferry/internal/telemetry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startReceiver(t *testing.T, outputDir string) (addr string, tel *telemetry.Telemetry, stop func()) {
	t.Helper()

	cfg := config.NewDefaultConfig()
	cfg.Transfer.OutputDir = outputDir

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	tel = telemetry.NewNoop()
	receiver := NewReceiver(cfg, processor.NewPipeline(), tel)

	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan struct{})
	go func() {
		defer close(served)
		_ = receiver.Serve(ctx, ln)
	}()

	stop = func() {
		cancel()
		<-served
	}
	return ln.Addr().String(), tel, stop
}

func TestSendReceiveSingleChunkFile(t *testing.T) {
	outputDir := t.TempDir()
	addr, recvTel, stop := startReceiver(t, outputDir)
	defer stop()

	content := []byte("hello-world!")
	src := filepath.Join(t.TempDir(), "hello.txt")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	sendTel := telemetry.NewNoop()
	sender := NewSender(config.NewDefaultConfig(), processor.NewPipeline(), sendTel)

	result, err := sender.Send(context.Background(), src, addr)
	require.NoError(t, err)
	assert.Equal(t, "hello.txt", result.FileName)
	assert.Equal(t, int64(len(content)), result.OriginalSize)
	assert.Len(t, result.Digest, 64)
	assert.Equal(t, int64(1), sendTel.FilesSent())

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(filepath.Join(outputDir, "hello.txt"))
		return err == nil && string(got) == string(content)
	}, 5*time.Second, 10*time.Millisecond, "received file must be byte-identical")

	require.Eventually(t, func() bool {
		return recvTel.FilesReceived() == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestSendReceiveMultiChunkFile(t *testing.T) {
	outputDir := t.TempDir()
	addr, recvTel, stop := startReceiver(t, outputDir)
	defer stop()

	// Random bytes stay large after compression, so the compressed payload
	// spans several 8192-byte chunks on the wire.
	content := make([]byte, 64*1024)
	rand.New(rand.NewSource(7)).Read(content)
	src := filepath.Join(t.TempDir(), "big.bin")
	require.NoError(t, os.WriteFile(src, content, 0o644))

	sender := NewSender(config.NewDefaultConfig(), processor.NewPipeline(), telemetry.NewNoop())

	result, err := sender.Send(context.Background(), src, addr)
	require.NoError(t, err)
	assert.Greater(t, result.CompressedSize, int64(20000))

	require.Eventually(t, func() bool {
		got, err := os.ReadFile(filepath.Join(outputDir, "big.bin"))
		return err == nil && len(got) == len(content)
	}, 5*time.Second, 10*time.Millisecond)

	got, err := os.ReadFile(filepath.Join(outputDir, "big.bin"))
	require.NoError(t, err)
	assert.Equal(t, content, got, "no truncation at chunk boundaries")
	assert.Equal(t, int64(1), recvTel.FilesReceived())
}

func TestConcurrentSenders(t *testing.T) {
	outputDir := t.TempDir()
	addr, recvTel, stop := startReceiver(t, outputDir)
	defer stop()

	srcDir := t.TempDir()
	const n = 8

	files := make(map[string][]byte, n)
	rng := rand.New(rand.NewSource(11))
	for i := 0; i < n; i++ {
		name := filepath.Join(srcDir, "f"+string(rune('a'+i))+".bin")
		content := make([]byte, 1000+rng.Intn(50000))
		rng.Read(content)
		require.NoError(t, os.WriteFile(name, content, 0o644))
		files[name] = content
	}

	errCh := make(chan error, n)
	for name := range files {
		go func(name string) {
			sender := NewSender(config.NewDefaultConfig(), processor.NewPipeline(), telemetry.NewNoop())
			_, err := sender.Send(context.Background(), name, addr)
			errCh <- err
		}(name)
	}
	for i := 0; i < n; i++ {
		require.NoError(t, <-errCh)
	}

	require.Eventually(t, func() bool {
		return recvTel.FilesReceived() == n
	}, 10*time.Second, 10*time.Millisecond)

	for name, content := range files {
		got, err := os.ReadFile(filepath.Join(outputDir, filepath.Base(name)))
		require.NoError(t, err)
		assert.Equal(t, content, got)
	}
}

func TestSendConnectFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "x.bin")
	require.NoError(t, os.WriteFile(src, []byte("data"), 0o644))

	cfg := config.NewDefaultConfig()
	cfg.Transfer.DialTimeout = 200 * time.Millisecond
	sender := NewSender(cfg, processor.NewPipeline(), telemetry.NewNoop())

	// Grab an address nobody is listening on.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	_, err = sender.Send(context.Background(), src, addr)
	require.Error(t, err)
}

func TestSendMissingFile(t *testing.T) {
	sender := NewSender(config.NewDefaultConfig(), processor.NewPipeline(), telemetry.NewNoop())

	_, err := sender.Send(context.Background(), filepath.Join(t.TempDir(), "missing.bin"), "127.0.0.1:1")
	require.Error(t, err)
}

func TestReceiverShutdown(t *testing.T) {
	_, _, stop := startReceiver(t, t.TempDir())

	done := make(chan struct{})
	go func() {
		stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("receiver did not shut down on context cancellation")
	}
}
