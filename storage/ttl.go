package storage

import (
	"container/heap"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

const DefaultSweepInterval = time.Second

type ttlEntry struct {
	id        string
	expiresAt time.Time
	seq       uint64
}

type ttlHeap []ttlEntry

func (h ttlHeap) Len() int { return len(h) }

func (h ttlHeap) Less(i, j int) bool {
	if h[i].expiresAt.Equal(h[j].expiresAt) {
		return h[i].seq < h[j].seq
	}

	return h[i].expiresAt.Before(h[j].expiresAt)
}

func (h ttlHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *ttlHeap) Push(x any) { *h = append(*h, x.(ttlEntry)) }

func (h *ttlHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	*h = old[:n-1]
	return e
}

// TTLScheduler tracks expiry deadlines and publishes the ids of expired
// entries on Expired. It knows nothing about the store; whoever owns the
// store consumes the channel and deletes.
type TTLScheduler struct {
	logger   log.Logger
	interval time.Duration
	now      func() time.Time

	mu      sync.Mutex
	entries ttlHeap
	seq     uint64
	running bool
	closed  bool

	expired chan string
	quit    chan struct{}
	wg      sync.WaitGroup
}

func NewTTLScheduler(logger log.Logger, interval time.Duration) *TTLScheduler {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	return &TTLScheduler{
		logger:   logger,
		interval: interval,
		now:      time.Now,
		expired:  make(chan string, 1024),
		quit:     make(chan struct{}),
	}
}

// Add registers id to expire ttl from now. Adding an id twice creates two
// independent entries.
func (s *TTLScheduler) Add(id string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return newError("ttl add "+id, ErrClosed, nil)
	}

	s.seq++
	heap.Push(&s.entries, ttlEntry{id: id, expiresAt: s.now().Add(ttl), seq: s.seq})

	return nil
}

// Len returns the number of pending entries.
func (s *TTLScheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.entries)
}

func (s *TTLScheduler) Expired() <-chan string {
	return s.expired
}

// Run starts the periodic sweep. Calling it again is a no-op.
func (s *TTLScheduler) Run() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running || s.closed {
		return
	}

	s.running = true
	s.wg.Add(1)

	go s.run()
}

func (s *TTLScheduler) run() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *TTLScheduler) sweep() {
	due := s.due(s.now())

	if len(due) > 0 {
		level.Debug(s.logger).Log("msg", "ttl entries expired", "count", len(due))
	}

	for _, id := range due {
		select {
		case s.expired <- id:
		case <-s.quit:
			return
		}
	}
}

// due pops every entry whose deadline is not after now.
func (s *TTLScheduler) due(now time.Time) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string

	for len(s.entries) > 0 && !s.entries[0].expiresAt.After(now) {
		ids = append(ids, heap.Pop(&s.entries).(ttlEntry).id)
	}

	return ids
}

// Stop ends the sweep. Pending entries are dropped.
func (s *TTLScheduler) Stop() {
	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return
	}

	s.closed = true
	s.mu.Unlock()

	close(s.quit)
	s.wg.Wait()
}
