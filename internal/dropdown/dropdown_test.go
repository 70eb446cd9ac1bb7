package dropdown_test

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/alertbell/internal/dropdown"
)

// manualScheduler fires callbacks only when the test says so.
type manualScheduler struct {
	mu         sync.Mutex
	timers     []*manualTimer
	ignoreStop bool
}

type manualTimer struct {
	s       *manualScheduler
	d       time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.s.ignoreStop || t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) dropdown.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &manualTimer{s: s, d: d, f: f}
	s.timers = append(s.timers, t)
	return t
}

// advance fires every live timer in scheduling order.
func (s *manualScheduler) advance() {
	s.mu.Lock()
	var due []*manualTimer
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			t.fired = true
			due = append(due, t)
		}
	}
	s.mu.Unlock()
	for _, t := range due {
		t.f()
	}
}

func (s *manualScheduler) pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, t := range s.timers {
		if !t.fired && !t.stopped {
			out = append(out, t.d)
		}
	}
	return out
}

func newController(t *testing.T) (*dropdown.Controller, *manualScheduler, *[]dropdown.State) {
	t.Helper()
	sched := &manualScheduler{}
	c := dropdown.New(dropdown.Options{Scheduler: sched})
	var seen []dropdown.State
	c.Subscribe(func(s dropdown.State) { seen = append(seen, s) })
	return c, sched, &seen
}

func TestOpenLifecycle(t *testing.T) {
	c, sched, seen := newController(t)
	assert.Equal(t, dropdown.Closed, c.State())

	require.True(t, c.Open())
	assert.False(t, c.Open(), "second open is a no-op")
	assert.Equal(t, dropdown.Opening, c.State())
	assert.Equal(t, []time.Duration{dropdown.DefaultOpenDelay}, sched.pending())

	sched.advance()
	assert.Equal(t, dropdown.Open, c.State())
	assert.False(t, c.Open())
	assert.Equal(t, []dropdown.State{dropdown.Opening, dropdown.Open}, *seen)
}

func TestCloseLifecycle(t *testing.T) {
	c, sched, seen := newController(t)
	c.Open()
	sched.advance()

	require.True(t, c.Close())
	assert.False(t, c.Close(), "second close is a no-op")
	assert.Equal(t, dropdown.Closing, c.State())
	assert.Equal(t, []time.Duration{dropdown.DefaultCloseDuration}, sched.pending())

	sched.advance()
	assert.Equal(t, dropdown.Closed, c.State())
	assert.False(t, c.Close())
	assert.Equal(t, []dropdown.State{dropdown.Opening, dropdown.Open, dropdown.Closing, dropdown.Closed}, *seen)
}

func TestCloseWhileOpeningCancelsOpen(t *testing.T) {
	c, sched, seen := newController(t)
	c.Open()
	require.True(t, c.Close())
	assert.Equal(t, []time.Duration{dropdown.DefaultCloseDuration}, sched.pending(), "open timer cancelled")

	sched.advance()
	assert.Equal(t, dropdown.Closed, c.State())
	assert.Equal(t, []dropdown.State{dropdown.Opening, dropdown.Closing, dropdown.Closed}, *seen)
}

func TestOpenWhileClosingSupersedesClose(t *testing.T) {
	c, sched, _ := newController(t)
	c.Open()
	sched.advance()
	c.Close()

	require.True(t, c.Open())
	assert.Equal(t, dropdown.Opening, c.State())
	sched.advance()
	assert.Equal(t, dropdown.Open, c.State())
}

func TestStaleTimerIgnored(t *testing.T) {
	sched := &manualScheduler{ignoreStop: true}
	c := dropdown.New(dropdown.Options{Scheduler: sched})

	c.Open()
	c.Close()
	// Both the superseded open timer and the close timer fire; only the
	// close may take effect.
	sched.advance()
	assert.Equal(t, dropdown.Closed, c.State())
}

func TestClickOutside(t *testing.T) {
	c, sched, _ := newController(t)
	assert.False(t, c.ClickOutside())

	c.Open()
	assert.False(t, c.ClickOutside(), "ignored until fully open")
	sched.advance()

	assert.True(t, c.ClickOutside())
	assert.Equal(t, dropdown.Closing, c.State())
}

func TestToggle(t *testing.T) {
	c, sched, _ := newController(t)
	assert.Equal(t, dropdown.Opening, c.Toggle())
	sched.advance()
	assert.Equal(t, dropdown.Closing, c.Toggle())
	assert.Equal(t, dropdown.Opening, c.Toggle())
}

func TestSetTimings(t *testing.T) {
	c, sched, _ := newController(t)
	c.SetTimings(5*time.Millisecond, 50*time.Millisecond)
	c.Open()
	assert.Equal(t, []time.Duration{5 * time.Millisecond}, sched.pending())
	sched.advance()
	c.Close()
	assert.Equal(t, []time.Duration{50 * time.Millisecond}, sched.pending())
}

func TestRealScheduler(t *testing.T) {
	c := dropdown.New(dropdown.Options{OpenDelay: time.Millisecond, CloseDuration: 5 * time.Millisecond})
	c.Open()
	assert.Eventually(t, func() bool { return c.State() == dropdown.Open }, time.Second, time.Millisecond)
	c.Close()
	assert.Eventually(t, func() bool { return c.State() == dropdown.Closed }, time.Second, time.Millisecond)
}

func TestStateText(t *testing.T) {
	b, err := dropdown.Opening.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "opening", string(b))
	assert.False(t, dropdown.Closed.Visible())
	assert.True(t, dropdown.Closing.Visible())
}
