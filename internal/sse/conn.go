// Package sse consumes the alert push channel: a server-sent events stream
// at <url>?clientId=<id> whose data frames are JSON alert payloads.
package sse

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gyaneshwarpardhi/alertbell/internal/event"
	"github.com/gyaneshwarpardhi/alertbell/internal/metrics"
)

var (
	// ErrClosed is reported by Err after Close was called.
	ErrClosed = errors.New("event source closed")
	// ErrStreamEnded is reported when the server ended the response.
	ErrStreamEnded = errors.New("event stream ended by server")
)

// maxFrameSize bounds a single SSE line.
const maxFrameSize = 1 << 20

// Handler receives well-formed events. It runs on the connection's reader
// goroutine and must not call Close on the same Conn.
type Handler func(event.Event)

// Options configures a connection.
type Options struct {
	URL        string       // push endpoint without the clientId parameter
	HTTPClient *http.Client // must not set a Timeout; the stream is long-lived
	Logger     *slog.Logger
}

// Conn is one open push-channel connection.
type Conn struct {
	cancel  context.CancelFunc
	body    io.ReadCloser
	handler Handler
	log     *slog.Logger

	closing   atomic.Bool
	closeOnce sync.Once
	closed    chan struct{}

	mu       sync.Mutex
	err      error
	openedAt time.Time
	closedAt time.Time

	retry     atomic.Int64 // server "retry:" hint, nanoseconds
	delivered atomic.Int64
}

// Dial opens the push channel for clientID and starts delivering events to h.
func Dial(ctx context.Context, opts Options, clientID string, h Handler) (*Conn, error) {
	target, err := streamURL(opts.URL, clientID)
	if err != nil {
		return nil, err
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "sse", "client_id", clientID)

	connCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(connCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := client.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("connect %s: %w", opts.URL, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("connect %s: HTTP %d: %s", opts.URL, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		log.Warn("unexpected content type on event stream", "content_type", ct)
	}

	c := &Conn{
		cancel:   cancel,
		body:     resp.Body,
		handler:  h,
		log:      log,
		closed:   make(chan struct{}),
		openedAt: time.Now(),
	}
	log.Info("event source connected", "url", opts.URL)
	go c.readLoop()
	return c, nil
}

func streamURL(base, clientID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse source url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("source url %q: scheme must be http or https", base)
	}
	q := u.Query()
	q.Set("clientId", clientID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Closed is closed once the connection has ended for any reason. After it
// fires no further handler calls happen.
func (c *Conn) Closed() <-chan struct{} {
	return c.closed
}

// Err reports why the connection ended; nil while it is open.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Delivered returns how many events were handed to the handler.
func (c *Conn) Delivered() int64 {
	return c.delivered.Load()
}

// Uptime is how long the connection was (or has been) open.
func (c *Conn) Uptime() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closedAt.IsZero() {
		return time.Since(c.openedAt)
	}
	return c.closedAt.Sub(c.openedAt)
}

// Retry returns the reconnect delay last requested by the server, or zero.
func (c *Conn) Retry() time.Duration {
	return time.Duration(c.retry.Load())
}

// Close tears the connection down and waits for the reader to exit.
// Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closing.Store(true)
		c.cancel()
		c.body.Close()
	})
	<-c.closed
	return nil
}

func (c *Conn) readLoop() {
	sc := bufio.NewScanner(c.body)
	sc.Buffer(make([]byte, 0, 4096), maxFrameSize)

	var (
		data    strings.Builder
		hasData bool
		lastID  string
	)
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			if hasData {
				c.dispatch(data.String(), lastID)
			}
			data.Reset()
			hasData = false
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue // comment / keep-alive
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "data":
			if hasData {
				data.WriteByte('\n')
			}
			data.WriteString(value)
			hasData = true
		case "id":
			lastID = value
		case "retry":
			if ms, err := strconv.Atoi(value); err == nil && ms >= 0 {
				c.retry.Store(int64(time.Duration(ms) * time.Millisecond))
			}
		case "event":
			// Event names are not used for routing; the payload carries the type.
		}
	}

	err := sc.Err()
	switch {
	case c.closing.Load():
		err = ErrClosed
	case err == nil:
		err = ErrStreamEnded
	}
	c.finish(err)
}

func (c *Conn) dispatch(payload, id string) {
	if c.closing.Load() {
		return
	}
	ev, err := event.Parse([]byte(payload))
	if err != nil {
		metrics.EventsMalformed.Inc()
		c.log.Debug("dropping malformed event", "err", err, "bytes", len(payload))
		return
	}
	ev.ID = id
	metrics.EventsReceived.Inc()
	c.delivered.Add(1)
	c.handler(*ev)
}

func (c *Conn) finish(err error) {
	c.body.Close()
	c.cancel()

	c.mu.Lock()
	c.err = err
	c.closedAt = time.Now()
	c.mu.Unlock()

	if errors.Is(err, ErrClosed) {
		c.log.Info("event source closed")
	} else {
		c.log.Warn("event source failed", "err", err)
	}
	close(c.closed)
}
