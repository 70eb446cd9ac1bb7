package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
	"github.com/gyaneshwarpardhi/alertbell/internal/dropdown"
	"github.com/gyaneshwarpardhi/alertbell/internal/engine"
	"github.com/gyaneshwarpardhi/alertbell/internal/event"
	"github.com/gyaneshwarpardhi/alertbell/internal/metrics"
	"github.com/gyaneshwarpardhi/alertbell/internal/store"
)

const maxEventBytes = 64 << 10

// AlertStore is the part of store.Store the API reads and mutates.
type AlertStore interface {
	Visible(active alert.Category, unreadOnly bool) []alert.Alert
	UnreadCounts() alert.Counts
	ToggleRead(ctx context.Context, id string) (alert.Alert, bool)
	MarkAllRead(ctx context.Context) int
	Subscribe(fn func(store.Change)) (unsubscribe func())
}

// Ingestor feeds events into the store through the engine queue.
type Ingestor interface {
	ProcessSync(ctx context.Context, ev *event.Event) (*engine.IngestResult, error)
	QueueUtilization() float64
}

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Store    AlertStore
	Engine   Ingestor
	Dropdown *dropdown.Controller
	// SourceConnected reports push-channel health; nil when no source is configured.
	SourceConnected func() bool
	// AllowedOrigins are host patterns (path.Match syntax) accepted on the
	// websocket in addition to the server's own host.
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	Deps
	hub    *Hub
	mux    *http.ServeMux
	root   http.Handler
	unsubs []func()
}

// New creates the HTTP handler and registers all routes. The returned
// Handler must be closed to release websocket clients.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	d.Logger = d.Logger.With("component", "api")
	h := &Handler{Deps: d, mux: http.NewServeMux()}
	h.hub = newHub(d.Logger, h.snapshot, d.AllowedOrigins)

	h.mux.HandleFunc("GET /v1/alerts", h.listAlerts)
	h.mux.HandleFunc("POST /v1/alerts", h.ingestAlert)
	h.mux.HandleFunc("GET /v1/alerts/unread-counts", h.unreadCounts)
	h.mux.HandleFunc("POST /v1/alerts/{id}/toggle", h.toggleRead)
	h.mux.HandleFunc("POST /v1/alerts/read-all", h.markAllRead)
	h.mux.HandleFunc("GET /v1/dropdown", h.dropdownState)
	h.mux.HandleFunc("POST /v1/dropdown/{action}", h.dropdownAction)
	h.mux.HandleFunc("GET /v1/ws", h.hub.serveWS)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())
	h.root = loggingMiddleware(d.Logger, h.mux)

	h.unsubs = append(h.unsubs,
		d.Store.Subscribe(func(c store.Change) {
			h.hub.broadcast(alertsMessage{Type: "alerts", Kind: c.Kind, Alert: c.Alert, Counts: c.Counts})
		}),
		d.Dropdown.Subscribe(func(s dropdown.State) {
			h.hub.broadcast(dropdownMessage{Type: "dropdown", State: s})
		}),
	)
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.root.ServeHTTP(w, r)
}

// Close detaches from the store and dropdown and disconnects websocket clients.
func (h *Handler) Close() {
	for _, fn := range h.unsubs {
		fn()
	}
	h.unsubs = nil
	h.hub.close()
}

// GET /v1/alerts?category=재고&unread=true: visible alerts, newest first.
func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cat, ok := alert.ParseCategory(q.Get("category"))
	if !ok {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", q.Get("category")))
		return
	}
	unreadOnly := false
	if v := q.Get("unread"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid unread flag %q", v))
			return
		}
		unreadOnly = b
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"category": cat,
		"unread":   unreadOnly,
		"alerts":   h.Store.Visible(cat, unreadOnly),
	})
}

// POST /v1/alerts: ingest one push-channel payload synchronously.
func (h *Handler) ingestAlert(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	ev, err := event.Parse(body)
	if err != nil {
		metrics.EventsMalformed.Inc()
		status := http.StatusBadRequest
		if errors.Is(err, event.ErrEmptyMessage) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}
	res, err := h.Engine.ProcessSync(r.Context(), ev)
	if err != nil {
		writeError(w, http.StatusTooManyRequests, err.Error())
		return
	}
	status := http.StatusOK
	if res.Added {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// GET /v1/alerts/unread-counts
func (h *Handler) unreadCounts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Store.UnreadCounts())
}

// POST /v1/alerts/{id}/toggle
func (h *Handler) toggleRead(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := h.Store.ToggleRead(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("alert %q not found", id))
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// POST /v1/alerts/read-all
func (h *Handler) markAllRead(w http.ResponseWriter, r *http.Request) {
	n := h.Store.MarkAllRead(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"marked": n,
		"counts": h.Store.UnreadCounts(),
	})
}

// GET /v1/dropdown
func (h *Handler) dropdownState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dropdownMessage{Type: "dropdown", State: h.Dropdown.State()})
}

// POST /v1/dropdown/{open|close|toggle|click-outside}
func (h *Handler) dropdownAction(w http.ResponseWriter, r *http.Request) {
	var changed bool
	switch action := r.PathValue("action"); action {
	case "open":
		changed = h.Dropdown.Open()
	case "close":
		changed = h.Dropdown.Close()
	case "toggle":
		h.Dropdown.Toggle()
		changed = true
	case "click-outside":
		changed = h.Dropdown.ClickOutside()
	default:
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown dropdown action %q", action))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"state":   h.Dropdown.State(),
		"changed": changed,
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the ingest queue is >80% full or the push channel is down.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.Engine.QueueUtilization()
	metrics.QueueUtilization.Set(util)
	body := map[string]interface{}{"queue_utilization": util}
	connected := true
	if h.SourceConnected != nil {
		connected = h.SourceConnected()
		body["source_connected"] = connected
	}
	if util > 0.8 || !connected {
		body["status"] = "degraded"
		writeJSON(w, http.StatusServiceUnavailable, body)
		return
	}
	body["status"] = "ready"
	writeJSON(w, http.StatusOK, body)
}

func (h *Handler) snapshot() interface{} {
	return snapshotMessage{
		Type:     "snapshot",
		Counts:   h.Store.UnreadCounts(),
		Dropdown: h.Dropdown.State(),
	}
}
