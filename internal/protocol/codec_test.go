package protocol

import (
	"bytes"
	"io"
	"math/rand"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestRecordRoundTrip(t *testing.T) {
	payload := make([]byte, 20000) // spans multiple 8192-byte chunks
	rand.New(rand.NewSource(1)).Read(payload)

	rec := Record{
		Digest: strings.Repeat("ab", 32),
		Name:   "data/file_1.bin",
		Size:   uint64(len(payload)),
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, DefaultChunkSize)
	require.NoError(t, w.WriteRecord(rec, payload))

	r := NewReader(&buf)
	got, done, err := r.ReadHeader()
	require.NoError(t, err)
	require.False(t, done)
	require.Equal(t, rec, got)

	gotPayload, err := r.ReadPayload(got.Size)
	require.NoError(t, err)
	require.Equal(t, payload, gotPayload)
}

func TestReadAcrossManySmallReads(t *testing.T) {
	payload := make([]byte, 9000)
	rand.New(rand.NewSource(2)).Read(payload)

	rec := Record{Digest: strings.Repeat("cd", 32), Name: "slow.bin", Size: uint64(len(payload))}

	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, 1024).WriteRecord(rec, payload))

	// One byte per network read; the reader must still assemble the full payload.
	r := NewReader(iotest.OneByteReader(&buf))
	got, done, err := r.ReadHeader()
	require.NoError(t, err)
	require.False(t, done)

	gotPayload, err := r.ReadPayload(got.Size)
	require.NoError(t, err)
	require.Equal(t, payload, gotPayload)
}

func TestTerminationMarker(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, 0).WriteTermination())

	r := NewReader(&buf)
	_, done, err := r.ReadHeader()
	require.NoError(t, err)
	require.True(t, done)
}

func TestReadHeaderCleanEOF(t *testing.T) {
	r := NewReader(bytes.NewReader(nil))
	_, done, err := r.ReadHeader()
	require.False(t, done)
	require.ErrorIs(t, err, io.EOF)
}

func TestReadHeaderTruncatedMidRecord(t *testing.T) {
	rec := Record{Digest: strings.Repeat("ef", 32), Name: "cut.bin", Size: 100}
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, 0).WriteRecord(rec, make([]byte, 100)))

	// Cut the stream inside the name field.
	cut := buf.Bytes()[:2+64+2+3]
	r := NewReader(bytes.NewReader(cut))
	_, _, err := r.ReadHeader()
	require.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReadPayloadTruncated(t *testing.T) {
	rec := Record{Digest: strings.Repeat("01", 32), Name: "short.bin", Size: 5000}
	var buf bytes.Buffer
	require.NoError(t, NewWriter(&buf, 0).WriteRecord(rec, make([]byte, 5000)))

	trimmed := buf.Bytes()[:buf.Len()-10]
	r := NewReader(bytes.NewReader(trimmed))
	got, done, err := r.ReadHeader()
	require.NoError(t, err)
	require.False(t, done)

	_, err = r.ReadPayload(got.Size)
	require.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestWriteRecordSizeMismatch(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)

	err := w.WriteRecord(Record{Digest: "d", Name: "n", Size: 10}, make([]byte, 5))
	require.Error(t, err)
	require.Zero(t, buf.Len(), "nothing should be flushed on a size mismatch")
}

func TestWriteStringTooLong(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 0)

	err := w.WriteRecord(Record{Digest: "d", Name: strings.Repeat("x", maxStringLen+1), Size: 0}, nil)
	require.ErrorIs(t, err, ErrStringTooLong)
}

func TestMultipleRecordsOneStream(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 100)

	first := []byte("first payload")
	second := []byte("second payload, a bit longer")
	require.NoError(t, w.WriteRecord(Record{Digest: "aa", Name: "one", Size: uint64(len(first))}, first))
	require.NoError(t, w.WriteRecord(Record{Digest: "bb", Name: "two", Size: uint64(len(second))}, second))
	require.NoError(t, w.WriteTermination())

	r := NewReader(&buf)
	for i, want := range [][]byte{first, second} {
		rec, done, err := r.ReadHeader()
		require.NoError(t, err, "record %d", i)
		require.False(t, done)
		payload, err := r.ReadPayload(rec.Size)
		require.NoError(t, err)
		require.Equal(t, want, payload)
	}

	_, done, err := r.ReadHeader()
	require.NoError(t, err)
	require.True(t, done)
}
