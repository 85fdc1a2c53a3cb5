package storage

// recordIndex maps a record id to the segments holding a copy of it, oldest
// copy first. Storing an id twice keeps both copies reachable until each has
// been deleted. It is only touched while the store's write lock is held.
type recordIndex struct {
	segments map[string][]string
	copies   int
}

func newRecordIndex() *recordIndex {
	return &recordIndex{segments: make(map[string][]string)}
}

func (i *recordIndex) put(id string, segment string) {
	i.segments[id] = append(i.segments[id], segment)
	i.copies++
}

// get returns the segment of the oldest copy of id.
func (i *recordIndex) get(id string) (string, bool) {
	segments, ok := i.segments[id]

	if !ok {
		return "", false
	}

	return segments[0], true
}

// remove forgets one copy of id held by segment.
func (i *recordIndex) remove(id string, segment string) {
	segments := i.segments[id]

	for n, s := range segments {
		if s != segment {
			continue
		}

		segments = append(segments[:n], segments[n+1:]...)
		i.copies--

		if len(segments) == 0 {
			delete(i.segments, id)
		} else {
			i.segments[id] = segments
		}

		return
	}
}

// len returns the number of stored copies.
func (i *recordIndex) len() int {
	return i.copies
}
