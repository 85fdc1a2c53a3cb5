package storage

import "reflect"

// memtable buffers encoded records that are not durable yet, in insertion
// order. Records are encoded before they enter the buffer so a flush never
// meets a record it cannot write.
type memtable[T Record] struct {
	records     []pendingRecord
	recordSize  int
	thresholdKB int
}

func newMemtable[T Record](thresholdKB int) *memtable[T] {
	return &memtable[T]{
		recordSize:  int(reflect.TypeOf((*T)(nil)).Elem().Size()),
		thresholdKB: thresholdKB,
	}
}

// add appends r and reports whether the buffer outgrew its threshold.
func (m *memtable[T]) add(r pendingRecord) bool {
	m.records = append(m.records, r)

	return m.footprint()/1000 > m.thresholdKB
}

// footprint estimates the buffer size in bytes from the in-memory size of T.
// Memory referenced by T (strings, slices) is not accounted for.
func (m *memtable[T]) footprint() int {
	return len(m.records) * m.recordSize
}

func (m *memtable[T]) len() int {
	return len(m.records)
}

func (m *memtable[T]) contains(id string) bool {
	for _, r := range m.records {
		if r.id == id {
			return true
		}
	}

	return false
}

// drop forgets the first n records once they are durable.
func (m *memtable[T]) drop(n int) {
	if n >= len(m.records) {
		clear(m.records)
		m.records = m.records[:0]
		return
	}

	rest := copy(m.records, m.records[n:])
	clear(m.records[rest:])
	m.records = m.records[:rest]
}
