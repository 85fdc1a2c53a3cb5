package storage

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
	"github.com/prometheus/prometheus/tsdb/wlog"
)

// Frame format:
// [ 4 bytes payload length ] [ 4 bytes crc32 castagnoli of payload ] [ payload ]
const (
	frameHeaderSize = 8
	maxPayloadSize  = 64 * 1024 * 1024
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

func appendFrame(dst []byte, payload []byte) []byte {
	var hdr [frameHeaderSize]byte

	binary.BigEndian.PutUint32(hdr[0:], uint32(len(payload)))
	binary.BigEndian.PutUint32(hdr[4:], crc32.Checksum(payload, castagnoliTable))

	dst = append(dst, hdr[:]...)
	return append(dst, payload...)
}

// Reader iterates over the frames of one segment.
type Reader struct {
	reader  io.Reader
	dir     string
	segment int
	err     error
	frame   []byte
	total   int64
	start   int64
}

func NewReader(reader io.Reader, dir string, segment int) *Reader {
	return &Reader{reader: reader, dir: dir, segment: segment}
}

func (r *Reader) Next() bool {
	err := r.next()

	if errors.Is(err, io.EOF) {
		return false
	}

	r.err = err

	return err == nil
}

func (r *Reader) next() error {
	r.start = r.total
	r.frame = r.frame[:0]

	var hdr [frameHeaderSize]byte

	n, err := io.ReadFull(r.reader, hdr[:])
	r.total += int64(n)

	if err == io.EOF {
		return err
	}

	if err != nil {
		return errors.Wrap(err, "last frame header is torn")
	}

	var (
		length = binary.BigEndian.Uint32(hdr[0:])
		crc    = binary.BigEndian.Uint32(hdr[4:])
	)

	if length > maxPayloadSize {
		return errors.Errorf("invalid payload size %d", length)
	}

	r.frame = append(r.frame, hdr[:]...)
	r.frame = append(r.frame, make([]byte, length)...)

	n, err = io.ReadFull(r.reader, r.frame[frameHeaderSize:])
	r.total += int64(n)

	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}

	if err != nil {
		return errors.Wrapf(err, "last frame payload is torn: expected %d bytes, got %d", length, n)
	}

	if c := crc32.Checksum(r.frame[frameHeaderSize:], castagnoliTable); c != crc {
		return errors.Errorf("invalid checksum: expected %d, got %d", crc, c)
	}

	return nil
}

// Record returns the payload of the current frame. It is only valid until
// the next call to Next.
func (r *Reader) Record() []byte {
	return r.frame[frameHeaderSize:]
}

// Frame returns the current frame including its header, exactly as stored.
func (r *Reader) Frame() []byte {
	return r.frame
}

func (r *Reader) Offset() int64 {
	return r.start
}

func (r *Reader) Err() error {
	if r.err == nil {
		return nil
	}

	return &wlog.CorruptionErr{
		Dir:     r.dir,
		Err:     r.err,
		Segment: r.segment,
		Offset:  r.start,
	}
}
