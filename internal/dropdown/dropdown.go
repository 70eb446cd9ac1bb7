// Package dropdown is the open/close lifecycle of the notification
// dropdown. It knows nothing about alerts; it only tracks which animation
// phase the presentation layer should be in.
package dropdown

import (
	"fmt"
	"sync"
	"time"

	"github.com/gyaneshwarpardhi/alertbell/internal/metrics"
)

// State is a dropdown lifecycle phase.
type State int

const (
	Closed State = iota
	Opening
	Open
	Closing
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Opening:
		return "opening"
	case Open:
		return "open"
	case Closing:
		return "closing"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// MarshalText renders the state name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Visible reports whether the dropdown is mounted at all.
func (s State) Visible() bool {
	return s != Closed
}

const (
	DefaultOpenDelay     = 10 * time.Millisecond
	DefaultCloseDuration = 300 * time.Millisecond
)

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop() bool
}

// Scheduler runs f after d. time.AfterFunc satisfies it via RealScheduler.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
}

// RealScheduler schedules on the wall clock.
type RealScheduler struct{}

func (RealScheduler) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Options configures a Controller. Zero durations select the defaults.
type Options struct {
	OpenDelay     time.Duration
	CloseDuration time.Duration
	Scheduler     Scheduler
}

// Controller is the Closed → Opening → Open → Closing → Closed machine.
// Each scheduled transition carries a generation number; a newer
// transition bumps the generation so a superseded timer that still fires
// is ignored.
type Controller struct {
	mu            sync.Mutex
	state         State
	gen           uint64
	pending       Timer
	openDelay     time.Duration
	closeDuration time.Duration
	sched         Scheduler

	subMu   sync.Mutex
	subs    map[int]func(State)
	nextSub int
}

// New returns a Closed controller. Zero timings select the defaults.
func New(opts Options) *Controller {
	c := &Controller{
		state: Closed,
		sched: opts.Scheduler,
		subs:  make(map[int]func(State)),
	}
	if c.sched == nil {
		c.sched = RealScheduler{}
	}
	c.SetTimings(opts.OpenDelay, opts.CloseDuration)
	return c
}

// SetTimings changes the delays used by future transitions.
func (c *Controller) SetTimings(openDelay, closeDuration time.Duration) {
	if openDelay <= 0 {
		openDelay = DefaultOpenDelay
	}
	if closeDuration <= 0 {
		closeDuration = DefaultCloseDuration
	}
	c.mu.Lock()
	c.openDelay = openDelay
	c.closeDuration = closeDuration
	c.mu.Unlock()
}

// State returns the current phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open starts opening. It is a no-op while Opening or Open. Opening from
// Closing cancels the pending close. Reports whether a transition started.
func (c *Controller) Open() bool {
	c.mu.Lock()
	if c.state == Opening || c.state == Open {
		c.mu.Unlock()
		return false
	}
	c.enterLocked(Opening)
	c.scheduleLocked(c.openDelay, Open)
	c.mu.Unlock()

	c.notify(Opening)
	return true
}

// Close starts the closing animation. It is a no-op while Closing or
// Closed; while Opening it cancels the pending open.
func (c *Controller) Close() bool {
	c.mu.Lock()
	if c.state == Closing || c.state == Closed {
		c.mu.Unlock()
		return false
	}
	c.enterLocked(Closing)
	c.scheduleLocked(c.closeDuration, Closed)
	c.mu.Unlock()

	c.notify(Closing)
	return true
}

// Toggle is the bell click: open when closed or closing, close otherwise.
func (c *Controller) Toggle() State {
	switch c.State() {
	case Closed, Closing:
		c.Open()
	default:
		c.Close()
	}
	return c.State()
}

// ClickOutside closes the dropdown if it is fully open.
func (c *Controller) ClickOutside() bool {
	if c.State() != Open {
		return false
	}
	return c.Close()
}

// Subscribe registers fn for every state entered. Callbacks run outside
// the controller lock and must not block.
func (c *Controller) Subscribe(fn func(State)) (unsubscribe func()) {
	c.subMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subMu.Unlock()

	return func() {
		c.subMu.Lock()
		delete(c.subs, id)
		c.subMu.Unlock()
	}
}

// Stop cancels any pending transition, leaving the state where it is.
func (c *Controller) Stop() {
	c.mu.Lock()
	c.cancelLocked()
	c.mu.Unlock()
}

func (c *Controller) enterLocked(s State) {
	c.cancelLocked()
	c.state = s
}

func (c *Controller) cancelLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
	c.gen++
}

func (c *Controller) scheduleLocked(d time.Duration, target State) {
	gen := c.gen
	c.pending = c.sched.AfterFunc(d, func() { c.fire(gen, target) })
}

func (c *Controller) fire(gen uint64, target State) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.pending = nil
	c.state = target
	c.mu.Unlock()

	c.notify(target)
}

func (c *Controller) notify(s State) {
	metrics.DropdownTransitions.WithLabelValues(s.String()).Inc()

	c.subMu.Lock()
	fns := make([]func(State), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
}
