package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRecordIndexKeepsEveryCopy(t *testing.T) {
	i := newRecordIndex()

	i.put("a", "00000000000000000000.bin")
	i.put("a", "00000000000000000001.bin")
	i.put("b", "00000000000000000001.bin")
	assert.Equal(t, 3, i.len())

	segment, ok := i.get("a")
	assert.True(t, ok)
	assert.Equal(t, "00000000000000000000.bin", segment)

	i.remove("a", "00000000000000000000.bin")
	assert.Equal(t, 2, i.len())

	segment, ok = i.get("a")
	assert.True(t, ok)
	assert.Equal(t, "00000000000000000001.bin", segment)

	i.remove("a", "00000000000000000001.bin")
	_, ok = i.get("a")
	assert.False(t, ok)
	assert.Equal(t, 1, i.len())
}

func TestRecordIndexRemoveUnknownCopy(t *testing.T) {
	i := newRecordIndex()
	i.put("a", "00000000000000000000.bin")

	i.remove("a", "00000000000000000007.bin")
	i.remove("missing", "00000000000000000000.bin")

	assert.Equal(t, 1, i.len())
	_, ok := i.get("a")
	assert.True(t, ok)
}
