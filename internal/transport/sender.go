package transport

import (
	"context"
	"fmt"
	"net"
	"path/filepath"
	"time"

	"fileferry/internal/config"
	"fileferry/internal/processor"
	"fileferry/internal/protocol"
	"fileferry/internal/telemetry"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TransferResult describes one completed file send.
type TransferResult struct {
	FileName       string
	OriginalSize   int64
	CompressedSize int64
	Digest         string
	Duration       time.Duration
}

// Sender transfers exactly one file over one connection. It holds no state
// across files; concurrency across files is achieved by running independent
// Senders, each with its own socket.
type Sender struct {
	cfg      *config.Config
	pipeline *processor.Pipeline
	tel      *telemetry.Telemetry
}

// NewSender creates a new single-file sender
func NewSender(cfg *config.Config, pipeline *processor.Pipeline, tel *telemetry.Telemetry) *Sender {
	return &Sender{
		cfg:      cfg,
		pipeline: pipeline,
		tel:      tel,
	}
}

// Send compresses the file at filePath, checksums the compressed bytes,
// and streams one file record followed by the termination marker to addr.
// No bytes are written to the network before compression and checksum
// succeed.
func (s *Sender) Send(ctx context.Context, filePath, addr string) (*TransferResult, error) {
	name := filepath.Base(filePath)
	start := time.Now()

	ctx, span := s.tel.StartSpan(ctx, "sendFile", attribute.String("file.name", name))
	defer span.End()

	log := logrus.WithFields(logrus.Fields{
		"file": name,
		"addr": addr,
	})

	_, compressSpan := s.tel.StartSpan(ctx, "compress")
	compressed, originalSize, err := s.pipeline.CompressFile(filePath)
	if err != nil {
		compressSpan.SetStatus(codes.Error, "compression failed")
		compressSpan.End()
		span.SetStatus(codes.Error, "compression failed")
		return nil, fmt.Errorf("failed to compress %s: %w", filePath, err)
	}
	compressSpan.SetAttributes(
		attribute.Int64("file.original.size", originalSize),
		attribute.Int("file.compressed.size", len(compressed)),
	)
	compressSpan.End()

	_, checksumSpan := s.tel.StartSpan(ctx, "checksum")
	digest := s.pipeline.Checksum(compressed)
	checksumSpan.SetAttributes(attribute.String("file.digest", digest))
	checksumSpan.End()

	dialer := net.Dialer{Timeout: s.cfg.Transfer.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		span.SetStatus(codes.Error, "dial failed")
		return nil, fmt.Errorf("failed to connect to %s: %w", addr, err)
	}
	defer conn.Close()

	span.AddEvent("connection_established")
	log.WithFields(logrus.Fields{
		"original_size":   originalSize,
		"compressed_size": len(compressed),
	}).Info("Connected, sending file")

	_, writeSpan := s.tel.StartSpan(ctx, "writeChunks",
		attribute.Int("file.compressed.size", len(compressed)),
	)
	w := protocol.NewWriter(conn, s.cfg.Transfer.ChunkSize)
	rec := protocol.Record{
		Digest: digest,
		Name:   name,
		Size:   uint64(len(compressed)),
	}
	if err := w.WriteRecord(rec, compressed); err != nil {
		writeSpan.SetStatus(codes.Error, "write failed")
		writeSpan.End()
		span.SetStatus(codes.Error, "write failed")
		return nil, fmt.Errorf("failed to send %s: %w", name, err)
	}
	writeSpan.End()

	if err := w.WriteTermination(); err != nil {
		span.SetStatus(codes.Error, "termination write failed")
		return nil, fmt.Errorf("failed to send termination marker: %w", err)
	}

	// Half-close so the peer sees a clean end of stream after the marker.
	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.CloseWrite(); err != nil {
			log.WithError(err).Warn("Failed to close write side")
		}
	}

	elapsed := time.Since(start)
	s.tel.FileSent(ctx)
	s.tel.RecordTransferLatency(ctx, elapsed)

	log.WithField("duration", elapsed).Info("File sent")

	return &TransferResult{
		FileName:       name,
		OriginalSize:   originalSize,
		CompressedSize: int64(len(compressed)),
		Digest:         digest,
		Duration:       elapsed,
	}, nil
}
