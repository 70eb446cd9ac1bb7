package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrMalformed is returned for payloads that are not a JSON object.
	ErrMalformed = errors.New("malformed event payload")
	// ErrEmptyMessage is returned when the message field is missing or blank.
	ErrEmptyMessage = errors.New("event message is required")
)

// Event is a raw alert as delivered on the push channel. Only Type and
// Message drive ingestion; the remaining fields are kept for logging.
type Event struct {
	Type       string                 `json:"type"`
	Message    string                 `json:"message"`
	ID         string                 `json:"-"` // SSE "id:" field, if any
	ReceivedAt time.Time              `json:"-"`
	Extra      map[string]interface{} `json:"-"`
}

// Validate checks the fields ingestion depends on.
func (e *Event) Validate() error {
	if strings.TrimSpace(e.Message) == "" {
		return ErrEmptyMessage
	}
	return nil
}

// Parse decodes a UTF-8 JSON payload into an Event. A non-string message is
// rejected; a non-string type is treated as absent.
func Parse(data []byte) (*Event, error) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if raw == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformed)
	}

	ev := &Event{ReceivedAt: time.Now().UTC()}
	var ok bool
	// A non-string type is kept in Extra and categorizes as general.
	if t, isString := raw["type"].(string); isString {
		ev.Type = t
		delete(raw, "type")
	}
	if v, present := raw["message"]; present && v != nil {
		if ev.Message, ok = v.(string); !ok {
			return nil, fmt.Errorf("%w: message must be a string", ErrMalformed)
		}
	}
	delete(raw, "message")
	if len(raw) > 0 {
		ev.Extra = raw
	}

	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}
