package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/alertbell/internal/alert"
	"github.com/gyaneshwarpardhi/alertbell/internal/event"
	"github.com/gyaneshwarpardhi/alertbell/internal/metrics"
)

// DefaultKey is the backend key holding the alert sequence.
const DefaultKey = "notifications"

// ChangeKind describes what mutated the sequence.
type ChangeKind string

const (
	ChangeIngested  ChangeKind = "ingested"
	ChangeToggled   ChangeKind = "toggled"
	ChangeMarkedAll ChangeKind = "marked_all"
	ChangeReplaced  ChangeKind = "replaced"
)

// Change is delivered to subscribers after a mutation has been written.
type Change struct {
	Kind   ChangeKind   `json:"kind"`
	Alert  *alert.Alert `json:"alert,omitempty"`
	Counts alert.Counts `json:"counts"`
}

// Options configures a Store. Zero values select defaults.
type Options struct {
	Key         string
	Categorizer *alert.Categorizer
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string
}

// Store owns the alert sequence and its durable copy. Every mutation runs
// under one mutex and is written to the backend before the lock is
// released, so a read-modify-write never interleaves with another.
type Store struct {
	mu      sync.Mutex
	backend Backend
	key     string
	seq     []alert.Alert // newest first

	categorizer atomic.Pointer[alert.Categorizer]
	log         *slog.Logger
	now         func() time.Time
	newID       func() string

	subMu   sync.Mutex
	subs    map[int]func(Change)
	nextSub int
}

// New builds a Store over backend and loads whatever is persisted.
func New(ctx context.Context, backend Backend, opts Options) *Store {
	s := &Store{
		backend: backend,
		key:     opts.Key,
		log:     opts.Logger,
		now:     opts.Now,
		newID:   opts.NewID,
		subs:    make(map[int]func(Change)),
	}
	if s.key == "" {
		s.key = DefaultKey
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	s.log = s.log.With("component", "store")
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	cat := opts.Categorizer
	if cat == nil {
		cat = alert.NewCategorizer(nil)
	}
	s.categorizer.Store(cat)

	s.Load(ctx)
	return s
}

// SetCategorizer swaps the source type table used by future ingests.
func (s *Store) SetCategorizer(c *alert.Categorizer) {
	if c != nil {
		s.categorizer.Store(c)
	}
}

// Load re-reads the persisted sequence and makes it current. Absent,
// unreadable or corrupt data yields an empty sequence; Load never fails.
func (s *Store) Load(ctx context.Context) []alert.Alert {
	seq := s.read(ctx)

	s.mu.Lock()
	s.seq = seq
	out := alert.Clone(seq)
	s.mu.Unlock()

	updateUnreadGauge(alert.UnreadCounts(out))
	return out
}

func (s *Store) read(ctx context.Context) []alert.Alert {
	data, err := s.backend.Get(ctx, s.key)
	if errors.Is(err, ErrNotFound) {
		return []alert.Alert{}
	}
	if err != nil {
		s.log.Warn("load failed; starting empty", "key", s.key, "err", err)
		return []alert.Alert{}
	}

	var seq []alert.Alert
	if err := json.Unmarshal(data, &seq); err != nil {
		s.log.Warn("persisted alerts are corrupt; starting empty", "key", s.key, "err", err)
		return []alert.Alert{}
	}

	return s.normalize(seq)
}

// normalize brings an externally supplied sequence in line with what Ingest
// produces: trimmed non-empty messages, valid categories, ids, and one record
// per (category, message). Earlier records win, so the newest copy survives.
func (s *Store) normalize(seq []alert.Alert) []alert.Alert {
	out := make([]alert.Alert, 0, len(seq))
	seen := make(map[alert.Key]struct{}, len(seq))
	for _, a := range seq {
		a.Message = strings.TrimSpace(a.Message)
		if a.Message == "" {
			continue
		}
		if !a.Type.Valid() {
			a.Type = alert.General
		}
		if _, dup := seen[a.Key()]; dup {
			continue
		}
		seen[a.Key()] = struct{}{}
		if a.ID == "" {
			a.ID = s.newID()
		}
		out = append(out, a)
	}
	return out
}

// Save replaces both the persisted and the in-memory sequence with seq,
// normalized the same way Load is.
func (s *Store) Save(ctx context.Context, seq []alert.Alert) error {
	next := s.normalize(seq)
	s.mu.Lock()
	prev := s.seq
	s.seq = next
	if err := s.persistLocked(ctx); err != nil {
		s.seq = prev
		s.mu.Unlock()
		return err
	}
	counts := alert.UnreadCounts(s.seq)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeReplaced, Counts: counts})
	return nil
}

func (s *Store) persistLocked(ctx context.Context) error {
	data, err := json.Marshal(s.seq)
	if err != nil {
		return fmt.Errorf("encoding alerts: %w", err)
	}
	if err := s.backend.Put(ctx, s.key, data); err != nil {
		metrics.StoreWriteErrors.Inc()
		return fmt.Errorf("saving alerts: %w", err)
	}
	return nil
}

// Ingest stores ev as a new unread alert unless an alert with the same
// category and message already exists. The returned bool reports whether
// a record was added; for duplicates the existing record is returned.
func (s *Store) Ingest(ctx context.Context, ev event.Event) (alert.Alert, bool) {
	if err := ev.Validate(); err != nil {
		s.log.Debug("dropping invalid event", "type", ev.Type, "err", err)
		return alert.Alert{}, false
	}
	key := alert.Key{
		Type:    s.categorizer.Load().Categorize(ev.Type),
		Message: strings.TrimSpace(ev.Message),
	}

	s.mu.Lock()
	for _, a := range s.seq {
		if a.Key() == key {
			s.mu.Unlock()
			metrics.AlertsDuplicate.Inc()
			return a, false
		}
	}

	a := alert.Alert{
		ID:      s.newID(),
		Type:    key.Type,
		Message: key.Message,
		Time:    s.now().UTC(),
	}
	s.seq = append([]alert.Alert{a}, s.seq...)
	if err := s.persistLocked(ctx); err != nil {
		s.log.Error("ingest not persisted", "id", a.ID, "err", err)
	}
	counts := alert.UnreadCounts(s.seq)
	s.mu.Unlock()

	metrics.AlertsIngested.WithLabelValues(string(a.Type)).Inc()
	s.publish(Change{Kind: ChangeIngested, Alert: &a, Counts: counts})
	return a, true
}

// IngestPayload parses a raw push-channel payload and ingests it.
// Malformed payloads leave the store untouched.
func (s *Store) IngestPayload(ctx context.Context, data []byte) (alert.Alert, bool) {
	ev, err := event.Parse(data)
	if err != nil {
		metrics.EventsMalformed.Inc()
		s.log.Debug("dropping malformed payload", "err", err)
		return alert.Alert{}, false
	}
	return s.Ingest(ctx, *ev)
}

// ToggleRead flips the read flag of the alert with id. Unknown ids are
// ignored and reported with false.
func (s *Store) ToggleRead(ctx context.Context, id string) (alert.Alert, bool) {
	s.mu.Lock()
	idx := -1
	for i := range s.seq {
		if s.seq[i].ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		s.mu.Unlock()
		return alert.Alert{}, false
	}
	s.seq[idx].Read = !s.seq[idx].Read
	a := s.seq[idx]
	if err := s.persistLocked(ctx); err != nil {
		s.log.Error("toggle not persisted", "id", id, "err", err)
	}
	counts := alert.UnreadCounts(s.seq)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeToggled, Alert: &a, Counts: counts})
	return a, true
}

// MarkAllRead marks every alert read and returns how many changed.
func (s *Store) MarkAllRead(ctx context.Context) int {
	s.mu.Lock()
	changed := 0
	for i := range s.seq {
		if !s.seq[i].Read {
			s.seq[i].Read = true
			changed++
		}
	}
	if changed == 0 {
		s.mu.Unlock()
		return 0
	}
	if err := s.persistLocked(ctx); err != nil {
		s.log.Error("mark-all not persisted", "changed", changed, "err", err)
	}
	counts := alert.UnreadCounts(s.seq)
	s.mu.Unlock()

	s.publish(Change{Kind: ChangeMarkedAll, Counts: counts})
	return changed
}

// UnreadCounts is recomputed from the current sequence on every call.
func (s *Store) UnreadCounts() alert.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return alert.UnreadCounts(s.seq)
}

// Visible filters the current sequence; see alert.Visible.
func (s *Store) Visible(active alert.Category, unreadOnly bool) []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return alert.Visible(s.seq, active, unreadOnly)
}

// Snapshot returns a copy of the current sequence, newest first.
func (s *Store) Snapshot() []alert.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()
	return alert.Clone(s.seq)
}

// Subscribe registers fn for change notifications. Callbacks run on the
// mutating goroutine after the write completed and must not block.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) publish(c Change) {
	updateUnreadGauge(c.Counts)

	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

func updateUnreadGauge(c alert.Counts) {
	for cat, n := range c {
		metrics.AlertsUnread.WithLabelValues(string(cat)).Set(float64(n))
	}
}
