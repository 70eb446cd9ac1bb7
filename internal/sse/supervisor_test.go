package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupervisorReconnects(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := connections.Add(1)
		if n == 1 {
			// First attempt fails outright.
			http.Error(w, "warming up", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprintf(w, "data: {\"type\":\"재고\",\"message\":\"msg %d\"}\n\n", n)
		flusher.Flush()
		if n == 2 {
			return // drop the stream; the supervisor must come back
		}
		<-r.Context().Done()
	}))
	defer srv.Close()

	rec := newRecorder()
	sup := NewSupervisor(Options{URL: srv.URL}, "c", rec.handle, Backoff{
		Initial:    time.Millisecond,
		Max:        5 * time.Millisecond,
		Multiplier: 2,
		Jitter:     0.1,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sup.Run(ctx) }()

	got := rec.waitFor(t, 2)
	assert.Equal(t, "msg 2", got[0].Message)
	assert.Equal(t, "msg 3", got[1].Message)
	assert.Eventually(t, sup.Connected, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, sup.Connected())
	assert.GreaterOrEqual(t, connections.Load(), int32(3))
}

func TestSupervisorHonoursRetryFloor(t *testing.T) {
	var connections atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		connections.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "retry: 60000\n\n")
	}))
	defer srv.Close()

	sup := NewSupervisor(Options{URL: srv.URL}, "c", newRecorder().handle, Backoff{Initial: time.Millisecond, Max: 2 * time.Millisecond})
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	err := sup.Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), connections.Load(), "server retry hint delays the redial")
}

func TestNewSupervisorDefaults(t *testing.T) {
	sup := NewSupervisor(Options{URL: "http://localhost"}, "c", nil, Backoff{})
	assert.Equal(t, DefaultBackoff, sup.backoff)
}
