// Package storage implements an embedded, file backed record store with
// time-to-live eviction.
//
// Records are appended to segment files named after a sequence number
// (00000000000000000001.bin, ...). Each segment holds at most
// Options.MaxRecordsPerSegment records, framed as
//
//	[ 4 bytes payload length ] [ 4 bytes crc32c ] [ payload ]
//
// so payload bytes never need escaping. Exactly one segment is appendable at
// a time; when it fills up a new one is created.
//
// Writes go either straight to the active segment or through a memtable that
// is flushed once its estimated size passes Options.FlushThresholdKB. An
// in-memory index maps every record id to its segment and is kept current by
// every write, rotation and delete. Deleting rewrites the owning segment
// without the record.
//
// The TTL scheduler publishes expired ids on a channel; the store consumes
// them and deletes the records, so the scheduler never holds a reference to
// the store.
package storage
