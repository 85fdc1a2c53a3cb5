package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemtableThreshold(t *testing.T) {
	m := newMemtable[sentence](1)

	assert.Equal(t, 40, m.recordSize)

	full := false
	n := 0
	for !full {
		full = m.add(pendingRecord{id: "r"})
		n++
	}

	// 50 records of 40 bytes are 2000 bytes, the first footprint above 1kb.
	assert.Equal(t, 50, n)
	assert.Equal(t, 2000, m.footprint())
}

func TestMemtableDrop(t *testing.T) {
	m := newMemtable[sentence](1)

	for _, key := range []string{"a", "b", "c", "d"} {
		m.add(pendingRecord{id: key, payload: []byte(key)})
	}

	assert.True(t, m.contains("c"))

	m.drop(2)
	assert.Equal(t, 2, m.len())
	assert.Equal(t, "c", m.records[0].id)
	assert.Equal(t, []byte("c"), m.records[0].payload)
	assert.False(t, m.contains("a"))

	m.drop(10)
	assert.Equal(t, 0, m.len())
}
