package alert

import "time"

// Alert is one deduplicated notification as stored and displayed.
type Alert struct {
	ID      string    `json:"id"`
	Type    Category  `json:"type"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"` // ingestion time, not emission time
	Read    bool      `json:"read"`
}

// Key is the dedup identity of an alert.
type Key struct {
	Type    Category
	Message string
}

// Key is the dedup identity of a.
func (a Alert) Key() Key {
	return Key{Type: a.Type, Message: a.Message}
}

// Clone copies a sequence so callers never alias store-owned memory.
func Clone(seq []Alert) []Alert {
	out := make([]Alert, len(seq))
	copy(out, seq)
	return out
}
