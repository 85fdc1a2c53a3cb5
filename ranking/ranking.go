package ranking

import (
	"sort"
	"sync"
)

type Entry struct {
	Word  string `json:"word"`
	Count int    `json:"occurence"`
}

// Map counts word occurrences. It is safe for concurrent use.
type Map struct {
	mu     sync.RWMutex
	counts map[string]int
}

func NewMap() *Map {
	return &Map{counts: make(map[string]int)}
}

func (m *Map) Add(word string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.counts[word]++
}

func (m *Map) Count(word string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.counts[word]
}

func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.counts)
}

// Rank returns the n most used words, most used first. Ties are broken
// alphabetically.
func (m *Map) Rank(n int) []Entry {
	m.mu.RLock()
	entries := make([]Entry, 0, len(m.counts))
	for word, count := range m.counts {
		entries = append(entries, Entry{Word: word, Count: count})
	}
	m.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Word < entries[j].Word
	})

	if n >= 0 && n < len(entries) {
		entries = entries[:n]
	}

	return entries
}
