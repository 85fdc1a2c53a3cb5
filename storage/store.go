package storage

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Options struct {
	Dir       string
	Extension string
	// MaxRecordsPerSegment caps the number of records of one segment file.
	MaxRecordsPerSegment int
	// FlushThresholdKB is the estimated memtable size that triggers a
	// flush. Zero disables the memtable and every Set is written through.
	FlushThresholdKB int
	SweepInterval    time.Duration
	// Compression names the payload compressor, see NewCompressor.
	Compression string
	SyncWrites  bool
}

func DefaultOptions() Options {
	return Options{
		Dir:                  "data",
		Extension:            DefaultExtension,
		MaxRecordsPerSegment: DefaultMaxRecordsPerSegment,
		SweepInterval:        DefaultSweepInterval,
		Compression:          CompressionNone,
	}
}

func (o *Options) applyDefaults() {
	d := DefaultOptions()

	if o.Dir == "" {
		o.Dir = d.Dir
	}

	if o.Extension == "" {
		o.Extension = d.Extension
	}

	if o.MaxRecordsPerSegment <= 0 {
		o.MaxRecordsPerSegment = d.MaxRecordsPerSegment
	}

	if o.SweepInterval <= 0 {
		o.SweepInterval = d.SweepInterval
	}
}

// Store is a file backed record store. All methods are safe for concurrent
// use. Segment I/O happens while the store lock is held, so one slow write
// stalls every other caller for its duration.
type Store[T Record] struct {
	logger  log.Logger
	metrics *storeMetrics
	opts    Options
	codec   Codec[T]

	mu         sync.RWMutex
	segments   *segmentStore
	index      *recordIndex
	memtable   *memtable[T]
	world      []T
	ttl        *TTLScheduler
	ttlStarted bool
	closed     bool

	quit chan struct{}
	wg   sync.WaitGroup
}

// Open loads every segment of opts.Dir with the default gob codec,
// compressed as configured by opts.Compression.
func Open[T Record](opts Options, logger log.Logger, registerer prometheus.Registerer) (*Store[T], error) {
	compressor, err := NewCompressor(opts.Compression)

	if err != nil {
		return nil, err
	}

	return OpenWithCodec[T](opts, NewCompressingCodec[T](GobCodec[T]{}, compressor), logger, registerer)
}

func OpenWithCodec[T Record](opts Options, codec Codec[T], logger log.Logger, registerer prometheus.Registerer) (*Store[T], error) {
	opts.applyDefaults()

	if logger == nil {
		logger = log.NewNopLogger()
	}

	logger = log.With(logger, "component", "storage")
	metrics := newStoreMetrics(registerer)
	index := newRecordIndex()

	s := &Store[T]{
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
		codec:    codec,
		segments: newSegmentStore(logger, metrics, opts, index),
		index:    index,
		memtable: newMemtable[T](opts.FlushThresholdKB),
		ttl:      NewTTLScheduler(logger, opts.SweepInterval),
		quit:     make(chan struct{}),
	}

	err := s.segments.load(func(payload []byte) (string, error) {
		record, err := s.codec.Decode(payload)

		if err != nil {
			return "", err
		}

		s.world = append(s.world, record)

		return record.ID(), nil
	})

	if err != nil {
		s.segments.close()
		s.ttl.Stop()
		return nil, err
	}

	level.Info(logger).Log("msg", "store loaded", "dir", opts.Dir, "records", len(s.world), "segments", len(s.segments.counts))

	return s, nil
}

// Set stores record. With the memtable disabled the record is durable when
// Set returns, otherwise it is durable after the next flush.
func (s *Store[T]) Set(record T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newError("set", ErrClosed, nil)
	}

	id := record.ID()
	payload, err := s.encode(id, record)

	if err != nil {
		return err
	}

	pending := pendingRecord{id: id, payload: payload}

	if s.opts.FlushThresholdKB == 0 {
		written, err := s.segments.append([]pendingRecord{pending})

		// The record may be durable even when rotating afterwards failed.
		if written == 0 {
			return err
		}

		if terr := s.track(id, record); terr != nil {
			return terr
		}

		return err
	}

	full := s.memtable.add(pending)
	s.metrics.memtableRecords.Set(float64(s.memtable.len()))

	if err := s.track(id, record); err != nil {
		return err
	}

	if full {
		return s.flush()
	}

	return nil
}

// encode serializes record and rejects payloads the segment reader would
// refuse to load back.
func (s *Store[T]) encode(id string, record T) ([]byte, error) {
	payload, err := s.codec.Encode(record)

	if err != nil {
		return nil, wrapKind("set "+id, ErrSerialization, err)
	}

	if len(payload) > maxPayloadSize {
		return nil, newError("set "+id, ErrSerialization, errors.Errorf("payload of %d bytes exceeds the %d bytes frame limit", len(payload), maxPayloadSize))
	}

	return payload, nil
}

// track registers the TTL of a record that has been written or buffered.
func (s *Store[T]) track(id string, record T) error {
	ttl, ok := record.TTL()

	if !ok {
		return nil
	}

	return s.ttl.Add(id, ttl)
}

// Delete removes the record with id from its segment. Records still in the
// memtable are not visible to Delete.
func (s *Store[T]) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newError("delete "+id, ErrClosed, nil)
	}

	return s.segments.remove(id, s.decodeID)
}

func (s *Store[T]) decodeID(payload []byte) (string, error) {
	record, err := s.codec.Decode(payload)

	if err != nil {
		return "", err
	}

	return record.ID(), nil
}

// Flush writes the memtable to the active segment, rotating segments when
// it does not fit.
func (s *Store[T]) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newError("flush", ErrClosed, nil)
	}

	return s.flush()
}

// flush drops records from the memtable as soon as they reached a segment,
// so a failed flush leaves exactly the unwritten suffix behind.
func (s *Store[T]) flush() error {
	if s.memtable.len() == 0 {
		return nil
	}

	written, err := s.segments.append(s.memtable.records)

	s.memtable.drop(written)
	s.metrics.memtableRecords.Set(float64(s.memtable.len()))
	s.metrics.flushes.Inc()

	if err != nil {
		level.Error(s.logger).Log("msg", "memtable flush incomplete", "written", written, "left", s.memtable.len(), "err", err)
		return err
	}

	return nil
}

// StartTTL registers the TTL of every loaded record and starts expiring
// records in the background until ctx is done or the store is closed.
func (s *Store[T]) StartTTL(ctx context.Context) error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return newError("start ttl", ErrClosed, nil)
	}

	if s.ttlStarted {
		s.mu.Unlock()
		return nil
	}

	for _, record := range s.world {
		if ttl, ok := record.TTL(); ok {
			if err := s.ttl.Add(record.ID(), ttl); err != nil {
				s.mu.Unlock()
				return err
			}
		}
	}

	s.ttlStarted = true
	s.mu.Unlock()

	level.Info(s.logger).Log("msg", "ttl started", "entries", s.ttl.Len())

	s.ttl.Run()

	s.wg.Add(1)
	go s.expireLoop(ctx)

	return nil
}

func (s *Store[T]) expireLoop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.quit:
			return
		case id := <-s.ttl.Expired():
			if err := s.expire(id); err != nil {
				level.Warn(s.logger).Log("msg", "error removing expired record", "id", id, "err", err)
			}
		}
	}
}

func (s *Store[T]) expire(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}

	if s.memtable.contains(id) {
		if err := s.flush(); err != nil {
			return err
		}
	}

	if err := s.segments.remove(id, s.decodeID); err != nil {
		return err
	}

	s.metrics.expirations.Inc()
	level.Debug(s.logger).Log("msg", "record expired", "id", id)

	return nil
}

// World returns a copy of the records loaded by Open.
func (s *Store[T]) World() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	world := make([]T, len(s.world))
	copy(world, s.world)

	return world
}

// ClearWorld releases the loaded records. Call it once StartTTL has
// registered them.
func (s *Store[T]) ClearWorld() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.world = nil
}

// Len returns the number of records held by segments.
func (s *Store[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.index.len()
}

// Buffered returns the number of records waiting in the memtable.
func (s *Store[T]) Buffered() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.memtable.len()
}

// Close flushes the memtable, stops expiring records and closes the active
// segment.
func (s *Store[T]) Close() error {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return newError("close", ErrClosed, nil)
	}

	s.closed = true
	flushErr := s.flush()
	s.mu.Unlock()

	s.ttl.Stop()
	close(s.quit)
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.segments.close(); err != nil {
		return newError("close", ErrWrite, errors.Wrap(err, "closing active segment"))
	}

	return flushErr
}
