package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/alertbell/internal/event"
)

// recorder collects handler calls.
type recorder struct {
	mu     sync.Mutex
	events []event.Event
	notify chan struct{}
}

func newRecorder() *recorder {
	return &recorder{notify: make(chan struct{}, 64)}
}

func (r *recorder) handle(ev event.Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.notify <- struct{}{}
}

func (r *recorder) snapshot() []event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]event.Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *recorder) waitFor(t *testing.T, n int) []event.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		if got := r.snapshot(); len(got) >= n {
			return got
		}
		select {
		case <-r.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events, have %d", n, len(r.snapshot()))
		}
	}
}

// streamServer writes frames then either ends the response or holds it open
// until the client goes away.
func streamServer(t *testing.T, frames []string, hold bool, seenClient *atomic.Value) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if seenClient != nil {
			seenClient.Store(r.URL.Query().Get("clientId"))
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		flusher := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprint(w, f)
			flusher.Flush()
		}
		if hold {
			<-r.Context().Done()
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDialDeliversWellFormedEvents(t *testing.T) {
	var clientID atomic.Value
	srv := streamServer(t, []string{
		"event: connect\ndata: connected!\n\n",
		": keep-alive\n\n",
		"id: 7\ndata: {\"type\":\"결제완료\",\"message\":\"상품 A 결제\"}\n\n",
		"data: {\"type\":\"재고\"}\n\n",
		"data: {\"type\":\"재고부족\",\r\ndata: \"message\":\"양파 재고 부족\"}\r\n\r\n",
		"retry: 2500\n\n",
	}, true, &clientID)

	rec := newRecorder()
	conn, err := Dial(context.Background(), Options{URL: srv.URL + "/sse/connect"}, "admin-1", rec.handle)
	require.NoError(t, err)
	defer conn.Close()

	got := rec.waitFor(t, 2)
	require.Len(t, got, 2)
	assert.Equal(t, "결제완료", got[0].Type)
	assert.Equal(t, "7", got[0].ID)
	assert.Equal(t, "양파 재고 부족", got[1].Message)
	assert.Equal(t, "admin-1", clientID.Load())
	assert.EqualValues(t, 2, conn.Delivered())

	assert.Eventually(t, func() bool { return conn.Retry() == 2500*time.Millisecond }, 2*time.Second, 10*time.Millisecond)

	select {
	case <-conn.Closed():
		t.Fatal("malformed payloads must not end the connection")
	default:
	}
	assert.NoError(t, conn.Err())
}

func TestServerEndSignalsClosed(t *testing.T) {
	srv := streamServer(t, []string{"data: {\"type\":\"폐기\",\"message\":\"두부 폐기\"}\n\n"}, false, nil)

	rec := newRecorder()
	conn, err := Dial(context.Background(), Options{URL: srv.URL}, "c", rec.handle)
	require.NoError(t, err)

	select {
	case <-conn.Closed():
	case <-time.After(5 * time.Second):
		t.Fatal("Closed never fired")
	}
	assert.ErrorIs(t, conn.Err(), ErrStreamEnded)
	assert.Len(t, rec.snapshot(), 1)
	assert.NoError(t, conn.Close())
}

func TestCloseIsDeterministic(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"message\":\"first\"}\n\n")
		flusher.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
			return
		}
		fmt.Fprint(w, "data: {\"message\":\"after close\"}\n\n")
		flusher.Flush()
	}))
	defer srv.Close()

	rec := newRecorder()
	conn, err := Dial(context.Background(), Options{URL: srv.URL}, "c", rec.handle)
	require.NoError(t, err)
	rec.waitFor(t, 1)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
	close(release)

	assert.ErrorIs(t, conn.Err(), ErrClosed)
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, rec.snapshot(), 1, "no handler call after Close returned")
}

func TestDialRejectsErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), Options{URL: srv.URL}, "c", func(event.Event) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")

	_, err = Dial(context.Background(), Options{URL: "ftp://example.com"}, "c", func(event.Event) {})
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	u, err := streamURL("https://shop.example/sse/connect?v=2", "admin 1")
	require.NoError(t, err)
	assert.Equal(t, "https://shop.example/sse/connect?clientId=admin+1&v=2", u)
}
