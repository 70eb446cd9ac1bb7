package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
	"github.com/gyaneshwarpardhi/alertbell/internal/dropdown"
	"github.com/gyaneshwarpardhi/alertbell/internal/store"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

type alertsMessage struct {
	Type   string           `json:"type"`
	Kind   store.ChangeKind `json:"kind"`
	Alert  *alert.Alert     `json:"alert,omitempty"`
	Counts alert.Counts     `json:"counts"`
}

type dropdownMessage struct {
	Type  string         `json:"type"`
	State dropdown.State `json:"state"`
}

type snapshotMessage struct {
	Type     string         `json:"type"`
	Counts   alert.Counts   `json:"counts"`
	Dropdown dropdown.State `json:"dropdown"`
}

// Hub fans store and dropdown changes out to websocket clients.
type Hub struct {
	log      *slog.Logger
	snapshot func() interface{}
	origins  []string // extra allowed Origin host patterns; same host is always allowed

	mu      sync.RWMutex
	clients map[*wsClient]struct{}
	closed  bool
}

type wsClient struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

func newHub(log *slog.Logger, snapshot func() interface{}, origins []string) *Hub {
	return &Hub{
		log:      log,
		snapshot: snapshot,
		origins:  origins,
		clients:  make(map[*wsClient]struct{}),
	}
}

// broadcast queues v for every client. Slow clients miss the message.
func (h *Hub) broadcast(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.log.Error("encode ws message", "err", err)
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- data:
		default:
			h.log.Warn("ws client too slow, message dropped")
		}
	}
}

func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) register(c *wsClient) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	return true
}

func (h *Hub) unregister(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
	c.stop()
}

func (h *Hub) close() {
	h.mu.Lock()
	h.closed = true
	clients := h.clients
	h.clients = make(map[*wsClient]struct{})
	h.mu.Unlock()
	for c := range clients {
		c.stop()
	}
}

// queueSnapshot hands c the current state without blocking. It runs after
// register so no change falls in between; broadcasts already queued ahead of
// it are older than the snapshot.
func (h *Hub) queueSnapshot(c *wsClient) bool {
	data, err := json.Marshal(h.snapshot())
	if err != nil {
		h.log.Error("encode ws snapshot", "err", err)
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		h.log.Warn("ws client backlog full; snapshot skipped")
		return false
	}
}

// serveWS upgrades the request and streams updates until either side leaves.
func (h *Hub) serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.origins,
	})
	if err != nil {
		h.log.Warn("ws accept failed", "err", err)
		return
	}

	c := &wsClient{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
	}
	if !h.register(c) {
		conn.Close(websocket.StatusGoingAway, "shutting down")
		return
	}
	defer h.unregister(c)

	h.queueSnapshot(c)

	// Inbound frames are not used; CloseRead keeps control frames flowing.
	ctx := conn.CloseRead(r.Context())
	err = c.writePump(ctx)

	select {
	case <-c.done:
		conn.Close(websocket.StatusGoingAway, "shutting down")
	default:
		if err != nil && ctx.Err() == nil {
			h.log.Debug("ws write failed", "err", err)
		}
		conn.Close(websocket.StatusNormalClosure, "bye")
	}
}

func (c *wsClient) writePump(ctx context.Context) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.done:
			return nil
		case data := <-c.send:
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				return err
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				return err
			}
		}
	}
}
