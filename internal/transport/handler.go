package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fileferry/internal/processor"
	"fileferry/internal/protocol"
	"fileferry/internal/telemetry"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var (
	// ErrUnsafePath marks a record name whose resolved target would escape
	// the output directory. It is fatal for the whole connection: a sender
	// producing such names is broken or hostile.
	ErrUnsafePath = errors.New("unsafe path escapes output directory")
	// ErrPayloadTooLarge marks a declared payload size above the configured cap.
	ErrPayloadTooLarge = errors.New("declared payload size exceeds limit")

	// errSkipFile marks a file-local failure: the record is dropped and the
	// session continues with the next one.
	errSkipFile = errors.New("file skipped")
)

// handler owns one accepted connection end to end: it decodes record
// headers, reads payloads with read-exact semantics, verifies, decompresses,
// and persists, until the termination marker or a connection-fatal error.
type handler struct {
	conn        net.Conn
	outputDir   string
	pipeline    *processor.Pipeline
	tel         *telemetry.Telemetry
	idleTimeout time.Duration
	maxPayload  int64
	log         *logrus.Entry
}

func newHandler(conn net.Conn, cfg handlerConfig, pipeline *processor.Pipeline, tel *telemetry.Telemetry) *handler {
	return &handler{
		conn:        conn,
		outputDir:   cfg.outputDir,
		pipeline:    pipeline,
		tel:         tel,
		idleTimeout: cfg.idleTimeout,
		maxPayload:  cfg.maxPayload,
		log: logrus.WithFields(logrus.Fields{
			"session": uuid.NewString(),
			"peer":    conn.RemoteAddr().String(),
		}),
	}
}

type handlerConfig struct {
	outputDir   string
	idleTimeout time.Duration
	maxPayload  int64
}

// run drives the reception state machine until the session ends. All exits
// close the socket; no error escapes to the accept loop.
func (h *handler) run(ctx context.Context) {
	defer h.conn.Close()

	ctx, span := h.tel.StartSpan(ctx, "handleConnection",
		attribute.String("peer.address", h.conn.RemoteAddr().String()),
	)
	defer span.End()

	h.log.Info("Client connected")

	r := protocol.NewReader(h.conn)
	for {
		if h.idleTimeout > 0 {
			if err := h.conn.SetReadDeadline(time.Now().Add(h.idleTimeout)); err != nil {
				h.log.WithError(err).Error("Failed to set read deadline")
				return
			}
		}

		rec, done, err := r.ReadHeader()
		if done {
			span.AddEvent("termination_signal_received")
			h.log.Info("Client sent termination signal")
			return
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				// The peer went away without the termination marker.
				span.AddEvent("client_disconnected")
				h.log.Warn("Client disconnected without termination marker")
				return
			}
			span.SetStatus(codes.Error, "header decode failed")
			h.log.WithError(err).Error("Failed to read record header")
			return
		}

		if h.maxPayload > 0 && rec.Size > uint64(h.maxPayload) {
			span.SetStatus(codes.Error, "payload too large")
			h.log.WithFields(logrus.Fields{
				"file": rec.Name,
				"size": rec.Size,
			}).Error("Declared payload size exceeds limit, closing connection")
			return
		}

		if err := h.receiveFile(ctx, r, rec); err != nil {
			if errors.Is(err, errSkipFile) {
				continue
			}
			span.SetStatus(codes.Error, "session aborted")
			h.log.WithError(err).Error("Connection error, closing session")
			return
		}
	}
}

// receiveFile processes a single record. A returned error wrapping
// errSkipFile drops only the current file; any other error is
// connection-fatal.
func (h *handler) receiveFile(ctx context.Context, r *protocol.Reader, rec protocol.Record) error {
	ctx, span := h.tel.StartSpan(ctx, "receiveAndSaveFile",
		attribute.String("file.name", rec.Name),
		attribute.Int64("file.compressed.size", int64(rec.Size)),
	)
	defer span.End()

	log := h.log.WithField("file", rec.Name)

	target, err := securePath(h.outputDir, rec.Name)
	if err != nil {
		span.SetStatus(codes.Error, "unsafe path")
		return fmt.Errorf("blocked unsafe path %q: %w", rec.Name, err)
	}

	_, readSpan := h.tel.StartSpan(ctx, "readCompressedBytes")
	compressed, err := r.ReadPayload(rec.Size)
	if err != nil {
		readSpan.SetStatus(codes.Error, "read failed")
		readSpan.End()
		span.SetStatus(codes.Error, "read failed")
		return fmt.Errorf("failed to read payload for %q: %w", rec.Name, err)
	}
	readSpan.End()

	_, verifySpan := h.tel.StartSpan(ctx, "verifyChecksum")
	actual := h.pipeline.Checksum(compressed)
	verifySpan.SetAttributes(
		attribute.String("expected", rec.Digest),
		attribute.String("actual", actual),
	)
	if actual != rec.Digest {
		verifySpan.SetStatus(codes.Error, "checksum mismatch")
		verifySpan.End()
		log.WithFields(logrus.Fields{
			"expected": rec.Digest,
			"actual":   actual,
		}).Warn("Checksum mismatch, file not written")
		return fmt.Errorf("checksum mismatch for %q: %w", rec.Name, errSkipFile)
	}
	verifySpan.End()

	_, decompressSpan := h.tel.StartSpan(ctx, "decompress")
	original, err := h.pipeline.Decompress(compressed)
	if err != nil {
		decompressSpan.SetStatus(codes.Error, "decode failed")
		decompressSpan.End()
		log.WithError(err).Error("Failed to decompress payload, file not written")
		return fmt.Errorf("failed to decompress %q: %v: %w", rec.Name, err, errSkipFile)
	}
	decompressSpan.SetAttributes(attribute.Int("file.decompressed.size", len(original)))
	decompressSpan.End()

	_, writeSpan := h.tel.StartSpan(ctx, "writeToDisk")
	if err := writeFile(target, original); err != nil {
		writeSpan.SetStatus(codes.Error, "write failed")
		writeSpan.End()
		span.SetStatus(codes.Error, "write failed")
		return fmt.Errorf("failed to write %q: %w", target, err)
	}
	writeSpan.End()

	h.tel.FileReceived(ctx)
	log.WithField("decompressed_size", len(original)).Info("File saved")
	return nil
}

// securePath resolves name against outputDir and rejects any resolution
// that escapes it.
func securePath(outputDir, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrUnsafePath)
	}
	if filepath.IsAbs(name) || filepath.IsAbs(filepath.FromSlash(name)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}

	root := filepath.Clean(outputDir)
	target := filepath.Join(root, filepath.FromSlash(name))

	rel, err := filepath.Rel(root, target)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrUnsafePath, name)
	}
	if rel == "." {
		return "", fmt.Errorf("%w: %q resolves to the output directory itself", ErrUnsafePath, name)
	}

	return target, nil
}

func writeFile(target string, data []byte) error {
	if dir := filepath.Dir(target); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create parent directories: %w", err)
		}
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}
