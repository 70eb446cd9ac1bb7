package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
	"github.com/gyaneshwarpardhi/alertbell/internal/config"
	"github.com/gyaneshwarpardhi/alertbell/internal/event"
	"github.com/gyaneshwarpardhi/alertbell/internal/metrics"
)

// Ingester is the store-side gate every alert passes through.
type Ingester interface {
	Ingest(ctx context.Context, ev event.Event) (alert.Alert, bool)
}

// IngestResult is the outcome of processing a single event.
type IngestResult struct {
	AlertID    string         `json:"alert_id,omitempty"`
	Category   alert.Category `json:"category,omitempty"`
	Added      bool           `json:"added"`
	DurationMs float64        `json:"duration_ms"`
}

// Engine serializes events from any number of producers (the push channel,
// the HTTP ingest route) into the store through a single worker.
type Engine struct {
	ingester Ingester
	pool     *workerPool[*ingestWork, *IngestResult]
	conf     config.EngineConf
	log      *slog.Logger
}

type ingestWork struct {
	ev      *event.Event
	resultC chan *IngestResult
}

// New creates an Engine using conf and starts its worker.
func New(ctx context.Context, ing Ingester, conf config.EngineConf, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		ingester: ing,
		conf:     conf,
		log:      log.With("component", "engine"),
	}
	e.pool = newWorkerPool[*ingestWork, *IngestResult](
		ctx,
		1,
		conf.QueueDepth,
		func(ctx context.Context, w *ingestWork) (*IngestResult, error) {
			res := e.process(ctx, w.ev)
			if w.resultC != nil {
				w.resultC <- res
			}
			return res, nil
		},
	)
	return e
}

// ProcessSync ingests an event and waits for the result.
// Returns an error if the queue is full or the timeout elapses.
func (e *Engine) ProcessSync(ctx context.Context, ev *event.Event) (*IngestResult, error) {
	resultC := make(chan *IngestResult, 1)
	w := &ingestWork{ev: ev, resultC: resultC}

	if !e.pool.Submit(w) {
		metrics.EventsDropped.Inc()
		return nil, fmt.Errorf("ingest queue full (capacity %d)", e.pool.QueueCap())
	}
	metrics.EventsEnqueued.Inc()

	timeout := time.Duration(e.conf.EventTimeoutMs) * time.Millisecond
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resultC:
		return res, nil
	case <-timer.C:
		return nil, fmt.Errorf("ingest timeout after %v", timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProcessAsync enqueues an event. Returns false if the queue is full.
func (e *Engine) ProcessAsync(ev *event.Event) bool {
	if !e.pool.Submit(&ingestWork{ev: ev}) {
		metrics.EventsDropped.Inc()
		e.log.Warn("ingest queue full; event dropped", "type", ev.Type)
		return false
	}
	metrics.EventsEnqueued.Inc()
	return true
}

// Handle adapts ProcessAsync to the push-channel callback signature.
func (e *Engine) Handle(ev event.Event) {
	e.ProcessAsync(&ev)
}

// QueueUtilization returns queue used / capacity (0–1).
func (e *Engine) QueueUtilization() float64 {
	if e.pool.QueueCap() == 0 {
		return 0
	}
	return float64(e.pool.QueueLen()) / float64(e.pool.QueueCap())
}

func (e *Engine) process(ctx context.Context, ev *event.Event) *IngestResult {
	start := time.Now()
	a, added := e.ingester.Ingest(ctx, *ev)

	res := &IngestResult{
		AlertID:  a.ID,
		Category: a.Type,
		Added:    added,
	}
	elapsed := time.Since(start)
	res.DurationMs = float64(elapsed.Microseconds()) / 1000

	metrics.IngestDuration.Observe(res.DurationMs)
	metrics.QueueUtilization.Set(e.QueueUtilization())
	if added {
		e.log.Info("alert stored", "id", a.ID, "category", a.Type, "source_type", ev.Type)
	}
	return res
}

// Shutdown drains the queue gracefully.
func (e *Engine) Shutdown() {
	e.pool.Drain()
}
