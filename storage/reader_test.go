package storage

import (
	"bytes"
	"testing"

	"github.com/prometheus/prometheus/tsdb/wlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderReadsFrames(t *testing.T) {
	payloads := [][]byte{
		[]byte("first\n"),
		{},
		[]byte("\n\n\n"),
		bytes.Repeat([]byte("large record "), 1000),
	}

	var buf []byte
	for _, p := range payloads {
		buf = appendFrame(buf, p)
	}

	reader := NewReader(bytes.NewReader(buf), "dir", 1)
	var read [][]byte
	var offsets []int64

	for reader.Next() {
		read = append(read, append([]byte{}, reader.Record()...))
		offsets = append(offsets, reader.Offset())
	}

	require.NoError(t, reader.Err())
	require.Len(t, read, len(payloads))

	for i, p := range payloads {
		assert.Equal(t, p, read[i], "frame %d content mismatch", i)
	}

	assert.Equal(t, int64(0), offsets[0])
	assert.Equal(t, int64(frameHeaderSize+len(payloads[0])), offsets[1])
}

func TestReaderTornTail(t *testing.T) {
	buf := appendFrame(nil, []byte("complete"))
	buf = appendFrame(buf, []byte("torn record"))
	buf = buf[:len(buf)-3]

	reader := NewReader(bytes.NewReader(buf), "dir", 7)

	require.True(t, reader.Next())
	assert.Equal(t, []byte("complete"), reader.Record())
	require.False(t, reader.Next())

	var corruption *wlog.CorruptionErr
	require.ErrorAs(t, reader.Err(), &corruption)
	assert.Equal(t, 7, corruption.Segment)
	assert.Equal(t, int64(frameHeaderSize+len("complete")), corruption.Offset)
}

func TestReaderChecksumMismatch(t *testing.T) {
	buf := appendFrame(nil, []byte("checksummed"))
	buf[frameHeaderSize] ^= 0x01

	reader := NewReader(bytes.NewReader(buf), "dir", 0)

	require.False(t, reader.Next())
	require.Error(t, reader.Err())
}

func TestReaderRejectsOversizedFrame(t *testing.T) {
	buf := []byte{0xff, 0xff, 0xff, 0xff, 0, 0, 0, 0}

	reader := NewReader(bytes.NewReader(buf), "dir", 0)

	require.False(t, reader.Next())
	require.Error(t, reader.Err())
}

func TestReaderMissingPayload(t *testing.T) {
	buf := appendFrame(nil, []byte("complete"))
	buf = appendFrame(buf, []byte("lost"))
	buf = buf[:len(buf)-len("lost")]

	reader := NewReader(bytes.NewReader(buf), "dir", 0)

	require.True(t, reader.Next())
	require.False(t, reader.Next())
	require.Error(t, reader.Err())
}
