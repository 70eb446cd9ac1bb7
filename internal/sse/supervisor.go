package sse

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/gyaneshwarpardhi/alertbell/internal/metrics"
)

// Backoff tunes the delay between reconnect attempts.
type Backoff struct {
	Initial    time.Duration
	Max        time.Duration
	Multiplier float64
	Jitter     float64 // randomization factor in (0, 1)
}

// DefaultBackoff is 1s doubling up to 30s with ±50% jitter.
var DefaultBackoff = Backoff{
	Initial:    time.Second,
	Max:        30 * time.Second,
	Multiplier: 2,
	Jitter:     0.5,
}

func (b Backoff) policy() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = b.Initial
	bo.MaxInterval = b.Max
	bo.Multiplier = b.Multiplier
	bo.RandomizationFactor = b.Jitter
	bo.MaxElapsedTime = 0 // retry forever
	bo.Reset()
	return bo
}

// Supervisor keeps one connection open, redialling with exponential backoff
// whenever it closes.
type Supervisor struct {
	opts     Options
	clientID string
	handler  Handler
	backoff  Backoff
	log      *slog.Logger

	connected atomic.Bool
	dial      func(ctx context.Context) (*Conn, error)
}

// NewSupervisor builds a supervisor for clientID. Zero backoff fields fall
// back to DefaultBackoff.
func NewSupervisor(opts Options, clientID string, h Handler, b Backoff) *Supervisor {
	if b.Initial <= 0 {
		b.Initial = DefaultBackoff.Initial
	}
	if b.Max < b.Initial {
		b.Max = max(DefaultBackoff.Max, b.Initial)
	}
	if b.Multiplier < 1 {
		b.Multiplier = DefaultBackoff.Multiplier
	}
	if b.Jitter <= 0 || b.Jitter >= 1 {
		b.Jitter = DefaultBackoff.Jitter
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	s := &Supervisor{
		opts:     opts,
		clientID: clientID,
		handler:  h,
		backoff:  b,
		log:      log.With("component", "sse-supervisor"),
	}
	s.dial = func(ctx context.Context) (*Conn, error) {
		return Dial(ctx, s.opts, s.clientID, s.handler)
	}
	return s
}

// Connected reports whether a connection is currently open.
func (s *Supervisor) Connected() bool {
	return s.connected.Load()
}

// Run blocks until ctx is cancelled, keeping the push channel open.
// The active connection is closed before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	bo := s.backoff.policy()
	for {
		var floor time.Duration

		conn, err := s.dial(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Warn("dial failed", "err", err)
		} else {
			s.setConnected(true)
			select {
			case <-conn.Closed():
			case <-ctx.Done():
				conn.Close()
				s.setConnected(false)
				return ctx.Err()
			}
			s.setConnected(false)

			// A connection that proved healthy starts the next cycle from scratch.
			if conn.Delivered() > 0 || conn.Uptime() >= s.backoff.Max {
				bo.Reset()
			}
			floor = conn.Retry()
		}

		wait := bo.NextBackOff()
		if wait < floor {
			wait = floor
		}
		s.log.Info("reconnecting", "in", wait)
		metrics.SourceReconnects.Inc()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *Supervisor) setConnected(v bool) {
	s.connected.Store(v)
	if v {
		metrics.SourceConnected.Set(1)
	} else {
		metrics.SourceConnected.Set(0)
	}
}
