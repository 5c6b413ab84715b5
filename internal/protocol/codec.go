// Package protocol implements the wire format for a file transfer session.
//
// A session is a one-directional byte stream carrying zero or more file
// records followed by a termination marker:
//
//	digest      length-prefixed UTF-8 string (SHA-256 hex of the payload)
//	name        length-prefixed UTF-8 string ("" marks end of session)
//	payloadSize 8-byte big-endian unsigned integer (absent on termination)
//	payload     payloadSize raw bytes (gzip-compressed file content)
//
// Strings are prefixed with a 2-byte big-endian length. Chunking on the
// write side is a memory-shaping convention only; chunk boundaries are
// invisible to the reader.
package protocol

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultChunkSize is the write-side chunk size for payload data.
const DefaultChunkSize = 8192

const maxStringLen = 1<<16 - 1

var (
	// ErrStringTooLong is returned when a string exceeds the 2-byte length prefix.
	ErrStringTooLong = errors.New("string exceeds maximum encodable length")
	// ErrUnexpectedEOF is returned when the stream ends mid-record.
	ErrUnexpectedEOF = errors.New("unexpected end of stream")
)

// Record is the header of one file on the wire. Size is the length of the
// compressed payload that follows it.
type Record struct {
	Digest string
	Name   string
	Size   uint64
}

// Writer encodes file records onto a byte stream, writing payloads in
// bounded chunks.
type Writer struct {
	w         *bufio.Writer
	chunkSize int
}

// NewWriter creates a record writer. A chunkSize <= 0 falls back to
// DefaultChunkSize.
func NewWriter(w io.Writer, chunkSize int) *Writer {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Writer{
		w:         bufio.NewWriter(w),
		chunkSize: chunkSize,
	}
}

// WriteRecord emits one complete file record: header followed by the full
// payload in chunks. The underlying stream is flushed once, after the last
// chunk.
func (w *Writer) WriteRecord(rec Record, payload []byte) error {
	if uint64(len(payload)) != rec.Size {
		return fmt.Errorf("payload length %d does not match declared size %d", len(payload), rec.Size)
	}

	if err := writeString(w.w, rec.Digest); err != nil {
		return fmt.Errorf("failed to write digest: %w", err)
	}
	if err := writeString(w.w, rec.Name); err != nil {
		return fmt.Errorf("failed to write name: %w", err)
	}

	var sizeBuf [8]byte
	binary.BigEndian.PutUint64(sizeBuf[:], rec.Size)
	if _, err := w.w.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("failed to write payload size: %w", err)
	}

	for off := 0; off < len(payload); off += w.chunkSize {
		end := off + w.chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.w.Write(payload[off:end]); err != nil {
			return fmt.Errorf("failed to write payload chunk: %w", err)
		}
	}

	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush record: %w", err)
	}
	return nil
}

// WriteTermination emits the end-of-session marker: a record whose name is
// the empty string. No payload size or payload follows it.
func (w *Writer) WriteTermination() error {
	if err := writeString(w.w, ""); err != nil {
		return fmt.Errorf("failed to write termination digest: %w", err)
	}
	if err := writeString(w.w, ""); err != nil {
		return fmt.Errorf("failed to write termination name: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("failed to flush termination marker: %w", err)
	}
	return nil
}

// Reader decodes file records from a byte stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader creates a record reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// ReadHeader decodes the next record header. It returns done=true when the
// termination marker is seen; the record's Size and payload are then absent
// by definition. A clean EOF at a record boundary is reported as io.EOF so
// the caller can tell an abrupt disconnect apart from normal termination.
func (r *Reader) ReadHeader() (Record, bool, error) {
	digest, err := readString(r.r)
	if err != nil {
		if errors.Is(err, io.EOF) {
			// Stream ended at a record boundary.
			return Record{}, false, io.EOF
		}
		return Record{}, false, fmt.Errorf("failed to read digest: %w", err)
	}

	name, err := readString(r.r)
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read name: %w", asUnexpectedEOF(err))
	}

	if name == "" {
		return Record{Digest: digest}, true, nil
	}

	var sizeBuf [8]byte
	if _, err := io.ReadFull(r.r, sizeBuf[:]); err != nil {
		return Record{}, false, fmt.Errorf("failed to read payload size: %w", asUnexpectedEOF(err))
	}

	return Record{
		Digest: digest,
		Name:   name,
		Size:   binary.BigEndian.Uint64(sizeBuf[:]),
	}, false, nil
}

// ReadPayload reads exactly size bytes, retrying short reads internally.
// A stream that ends before size bytes are obtained yields ErrUnexpectedEOF.
func (r *Reader) ReadPayload(size uint64) ([]byte, error) {
	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, fmt.Errorf("failed to read payload: %w", asUnexpectedEOF(err))
	}
	return payload, nil
}

func writeString(w *bufio.Writer, s string) error {
	if len(s) > maxStringLen {
		return ErrStringTooLong
	}
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.WriteString(s)
	return err
}

func readString(r *bufio.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}

	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 {
		return "", nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", asUnexpectedEOF(err)
	}
	return string(buf), nil
}

// asUnexpectedEOF folds both EOF flavors into the protocol-level sentinel:
// inside a record, any end of stream is premature.
func asUnexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrUnexpectedEOF
	}
	return err
}
