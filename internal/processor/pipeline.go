package processor

import (
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCorruptPayload indicates that a compressed payload could not be decoded.
// It is distinct from a checksum mismatch: the bytes arrived intact but are
// not a valid gzip stream.
var ErrCorruptPayload = errors.New("corrupt compressed payload")

// Pipeline implements the compress/checksum/decompress stages of a transfer.
// Checksums are always computed over the compressed bytes, so the receiving
// side can verify wire integrity before spending CPU on decompression.
type Pipeline struct{}

// NewPipeline creates a new processing pipeline
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Compress drains the source and returns its gzip-compressed bytes
func (p *Pipeline) Compress(src io.Reader) ([]byte, error) {
	var buf bytes.Buffer

	gz := gzip.NewWriter(&buf)
	if _, err := io.Copy(gz, src); err != nil {
		return nil, fmt.Errorf("failed to compress data: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize compressed stream: %w", err)
	}

	return buf.Bytes(), nil
}

// CompressFile opens the file at path and returns its compressed bytes along
// with the original (uncompressed) size.
func (p *Pipeline) CompressFile(path string) ([]byte, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to get file info: %w", err)
	}

	compressed, err := p.Compress(file)
	if err != nil {
		return nil, 0, err
	}

	return compressed, stat.Size(), nil
}

// Decompress inverts Compress. A malformed stream yields ErrCorruptPayload.
func (p *Pipeline) Decompress(compressed []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}
	defer gz.Close()

	original, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPayload, err)
	}

	return original, nil
}

// Checksum returns the SHA-256 digest of data as a 64-character lowercase hex
// string.
func (p *Pipeline) Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
