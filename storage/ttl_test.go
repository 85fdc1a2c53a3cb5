package storage

import (
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestScheduler(clock *fakeClock) *TTLScheduler {
	s := NewTTLScheduler(log.NewNopLogger(), time.Hour)
	s.now = clock.Now

	return s
}

func TestTTLSchedulerNeverExpiresEarly(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := newTestScheduler(clock)
	defer s.Stop()

	require.NoError(t, s.Add("a", 10*time.Second))

	clock.Advance(10*time.Second - time.Nanosecond)
	assert.Empty(t, s.due(clock.Now()))
	assert.Equal(t, 1, s.Len())

	clock.Advance(time.Nanosecond)
	assert.Equal(t, []string{"a"}, s.due(clock.Now()))
	assert.Equal(t, 0, s.Len())
}

func TestTTLSchedulerOrdersByDeadline(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := newTestScheduler(clock)
	defer s.Stop()

	require.NoError(t, s.Add("late", 30*time.Second))
	require.NoError(t, s.Add("early", 10*time.Second))
	require.NoError(t, s.Add("tie-1", 20*time.Second))
	require.NoError(t, s.Add("tie-2", 20*time.Second))

	clock.Advance(time.Minute)
	assert.Equal(t, []string{"early", "tie-1", "tie-2", "late"}, s.due(clock.Now()))
}

func TestTTLSchedulerDuplicateIDsAreIndependent(t *testing.T) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	s := newTestScheduler(clock)
	defer s.Stop()

	require.NoError(t, s.Add("a", time.Second))
	require.NoError(t, s.Add("a", time.Minute))

	clock.Advance(time.Second)
	assert.Equal(t, []string{"a"}, s.due(clock.Now()))
	assert.Equal(t, 1, s.Len())

	clock.Advance(time.Minute)
	assert.Equal(t, []string{"a"}, s.due(clock.Now()))
}

func TestTTLSchedulerAddAfterStop(t *testing.T) {
	s := NewTTLScheduler(log.NewNopLogger(), 0)
	s.Stop()
	s.Stop()

	err := s.Add("a", time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrClosed)
	assert.NotErrorIs(t, err, ErrWrite)
}

func TestTTLSchedulerPublishesExpired(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	s := NewTTLScheduler(log.NewNopLogger(), 5*time.Millisecond)

	require.NoError(t, s.Add("soon", 20*time.Millisecond))
	require.NoError(t, s.Add("never", time.Hour))

	s.Run()
	s.Run()

	select {
	case id := <-s.Expired():
		assert.Equal(t, "soon", id)
	case <-time.After(2 * time.Second):
		t.Fatal("expired entry was not published")
	}

	select {
	case id := <-s.Expired():
		t.Fatalf("unexpected expiry of %q", id)
	case <-time.After(50 * time.Millisecond):
	}

	s.Stop()
}
