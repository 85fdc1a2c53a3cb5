package storage

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
)

const (
	DefaultMaxRecordsPerSegment = 10_000
	DefaultExtension            = "bin"
)

type pendingRecord struct {
	id      string
	payload []byte
}

// segmentStore owns the segment files of one directory. Callers serialise
// access; the store is not safe for concurrent use on its own.
type segmentStore struct {
	logger     log.Logger
	metrics    *storeMetrics
	dir        string
	ext        string
	maxRecords int
	syncWrites bool

	active *segment
	counts map[string]int
	next   int
	index  *recordIndex
	pool   *framePool

	closed    bool
	workQueue chan func()
	stopc     chan chan struct{}
}

func newSegmentStore(logger log.Logger, metrics *storeMetrics, opts Options, index *recordIndex) *segmentStore {
	s := &segmentStore{
		logger:     logger,
		metrics:    metrics,
		dir:        opts.Dir,
		ext:        opts.Extension,
		maxRecords: opts.MaxRecordsPerSegment,
		syncWrites: opts.SyncWrites,
		counts:     make(map[string]int),
		index:      index,
		pool:       newFramePool(),
		workQueue:  make(chan func(), 100),
		stopc:      make(chan chan struct{}),
	}

	go s.run()

	return s
}

// load scans every segment in sequence order, hands each payload to decode
// and indexes the returned id. A single undecodable or corrupt frame aborts
// the whole load.
//
// The active segment is the incomplete segment with the highest sequence
// number. Older incomplete segments stay readable and deletable but never
// receive appends again.
func (s *segmentStore) load(decode func(payload []byte) (string, error)) error {
	if err := os.MkdirAll(s.dir, 0o777); err != nil {
		return newError("load", ErrDirCreation, err)
	}

	refs, err := listSegments(s.logger, s.dir, s.ext)

	if err != nil {
		return newError("load", ErrRead, err)
	}

	var incomplete []segmentRef

	for _, ref := range refs {
		count, err := s.scan(ref, decode)

		if err != nil {
			return err
		}

		s.counts[ref.name] = count
		s.next = ref.index + 1

		if count < s.maxRecords {
			incomplete = append(incomplete, ref)
		}
	}

	if len(incomplete) == 0 {
		return nil
	}

	last := incomplete[len(incomplete)-1]

	if len(incomplete) > 1 {
		skipped := make([]string, 0, len(incomplete)-1)
		for _, ref := range incomplete[:len(incomplete)-1] {
			skipped = append(skipped, ref.name)
		}

		level.Warn(s.logger).Log("msg", "several incomplete segments found, appending to the newest", "active", last.name, "skipped", strings.Join(skipped, ","))
	}

	active, err := openSegment(s.dir, last.index, s.ext)

	if err != nil {
		return newError("load", ErrRead, err)
	}

	s.active = active

	return nil
}

func (s *segmentStore) scan(ref segmentRef, decode func(payload []byte) (string, error)) (int, error) {
	f, err := os.Open(filepath.Join(s.dir, ref.name))

	if err != nil {
		return 0, newError("load "+ref.name, ErrRead, err)
	}
	defer f.Close()

	reader := NewReader(bufio.NewReader(f), s.dir, ref.index)
	count := 0

	for reader.Next() {
		id, err := decode(reader.Record())

		if err != nil {
			return 0, wrapKind("load "+ref.name, ErrDeserialization, err)
		}

		s.index.put(id, ref.name)
		count++
	}

	if err := reader.Err(); err != nil {
		return 0, newError("load "+ref.name, ErrDeserialization, err)
	}

	return count, nil
}

// append writes records in order, filling the active segment up to its
// capacity and rotating as often as needed. It returns how many records
// reached a segment, which is less than len(records) only on error.
func (s *segmentStore) append(records []pendingRecord) (int, error) {
	written := 0

	for written < len(records) {
		if s.active == nil {
			if err := s.nextSegment(); err != nil {
				return written, err
			}
		}

		name := s.active.name()
		room := s.maxRecords - s.counts[name]

		if room <= 0 {
			if err := s.nextSegment(); err != nil {
				return written, err
			}
			continue
		}

		chunk := records[written:min(len(records), written+room)]

		if err := s.write(chunk); err != nil {
			s.metrics.writesFailed.Inc()
			return written, err
		}

		for _, r := range chunk {
			s.index.put(r.id, name)
		}

		s.counts[name] += len(chunk)
		s.metrics.recordsWritten.Add(float64(len(chunk)))
		written += len(chunk)

		if s.counts[name] >= s.maxRecords {
			if err := s.nextSegment(); err != nil {
				return written, err
			}
		}
	}

	return written, nil
}

// write appends all frames of chunk with a single write. On failure the
// segment is cut back to its previous size so no torn frame is left behind.
func (s *segmentStore) write(chunk []pendingRecord) error {
	bufp := s.pool.get()
	defer s.pool.put(bufp)

	buf := *bufp
	for _, r := range chunk {
		buf = appendFrame(buf, r.payload)
	}
	*bufp = buf

	stat, err := s.active.Stat()

	if err != nil {
		return newError("append "+s.active.name(), ErrWrite, err)
	}

	if _, err := s.active.Write(buf); err != nil {
		if terr := s.active.truncate(stat.Size()); terr != nil {
			level.Error(s.logger).Log("msg", "error truncating torn segment tail", "segment", s.active.name(), "err", terr)
		}

		return newError("append "+s.active.name(), ErrWrite, err)
	}

	if s.syncWrites {
		if err := s.fsync(s.active); err != nil {
			return newError("sync "+s.active.name(), ErrWrite, err)
		}
	}

	return nil
}

// nextSegment creates a fresh segment and makes it the active one. The
// previous segment is synced and closed in the background.
func (s *segmentStore) nextSegment() error {
	if s.closed {
		return newError("rotate", ErrClosed, nil)
	}

	next, err := createSegment(s.dir, s.next, s.ext)

	if err != nil {
		return newError("rotate", ErrWrite, err)
	}

	s.next++
	s.counts[next.name()] = 0

	prev := s.active
	s.active = next

	level.Debug(s.logger).Log("msg", "segment created", "segment", next.name())

	if prev == nil {
		return nil
	}

	s.metrics.rotations.Inc()

	s.workQueue <- func() {
		if err := s.fsync(prev); err != nil {
			level.Error(s.logger).Log("msg", "error syncing previous segment", "err", err, "segment", prev.name())
		}

		if err := prev.Close(); err != nil {
			level.Error(s.logger).Log("msg", "error closing previous segment", "err", err, "segment", prev.name())
		}
	}

	return nil
}

// remove rewrites the segment holding the oldest copy of id without its
// first matching frame. Every other frame is copied byte for byte, in order.
func (s *segmentStore) remove(id string, decode func(payload []byte) (string, error)) error {
	op := "delete " + id
	name, ok := s.index.get(id)

	if !ok {
		return newError(op, ErrNotFound, nil)
	}

	frames, pos, err := s.findFrame(name, id, decode)

	if err != nil {
		return err
	}

	if pos < 0 {
		s.index.remove(id, name)
		return newError(op, ErrNotFound, errors.Errorf("segment %s does not hold the record", name))
	}

	path := filepath.Join(s.dir, name)
	tmp := path + ".tmp"

	if err := writeFrames(tmp, frames, pos); err != nil {
		os.Remove(tmp)
		return newError(op, ErrWrite, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return newError(op, ErrWrite, err)
	}

	// The active handle still points at the replaced file.
	if s.active != nil && s.active.name() == name {
		i := s.active.i

		if err := s.active.Close(); err != nil {
			level.Warn(s.logger).Log("msg", "error closing replaced segment", "segment", name, "err", err)
		}

		s.active, err = openSegment(s.dir, i, s.ext)

		if err != nil {
			level.Error(s.logger).Log("msg", "error reopening active segment, a new one will be created", "segment", name, "err", err)
			s.active = nil
		}
	}

	s.counts[name]--
	s.index.remove(id, name)
	s.metrics.deletes.Inc()

	return nil
}

func (s *segmentStore) findFrame(name string, id string, decode func(payload []byte) (string, error)) ([][]byte, int, error) {
	i, err := strconv.Atoi(strings.TrimSuffix(name, "."+s.ext))

	if err != nil {
		return nil, -1, newError("delete "+id, ErrUnspecified, errors.Wrapf(err, "invalid segment name %s", name))
	}

	f, err := os.Open(filepath.Join(s.dir, name))

	if err != nil {
		return nil, -1, newError("delete "+id, ErrRead, err)
	}
	defer f.Close()

	var (
		reader = NewReader(bufio.NewReader(f), s.dir, i)
		frames [][]byte
		pos    = -1
	)

	for reader.Next() {
		if pos < 0 {
			recID, err := decode(reader.Record())

			if err != nil {
				return nil, -1, wrapKind("delete "+id, ErrDeserialization, err)
			}

			if recID == id {
				pos = len(frames)
			}
		}

		frames = append(frames, append([]byte(nil), reader.Frame()...))
	}

	if err := reader.Err(); err != nil {
		return nil, -1, newError("delete "+id, ErrDeserialization, err)
	}

	return frames, pos, nil
}

func writeFrames(path string, frames [][]byte, skip int) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o666)

	if err != nil {
		return err
	}

	w := bufio.NewWriter(f)

	for i, frame := range frames {
		if i == skip {
			continue
		}

		if _, err := w.Write(frame); err != nil {
			f.Close()
			return err
		}
	}

	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}

func (s *segmentStore) fsync(seg *segment) error {
	now := time.Now()
	err := seg.Sync()

	s.metrics.fsyncDuration.Observe(time.Since(now).Seconds())

	return err
}

func (s *segmentStore) run() {
Loop:
	for {
		select {
		case f := <-s.workQueue:
			f()
		case donec := <-s.stopc:
			close(s.workQueue)
			defer close(donec)
			break Loop
		}
	}

	for f := range s.workQueue {
		f()
	}
}

func (s *segmentStore) close() error {
	if s.closed {
		return nil
	}

	s.closed = true

	donec := make(chan struct{})
	s.stopc <- donec
	<-donec

	if s.active == nil {
		return nil
	}

	if err := s.fsync(s.active); err != nil {
		level.Error(s.logger).Log("msg", "error syncing active segment", "segment", s.active.name(), "err", err)
	}

	return s.active.Close()
}
