package types

import (
	"encoding/json"
	"time"
)

// Translation modes, one per gateway protocol
const (
	ModeFrames  = "frames"
	ModeScanned = "scanned"
)

// Translation is the successful answer produced for one request
type Translation struct {
	// InvocationID identifies the gateway invocation (or the cached one)
	InvocationID string `json:"invocation_id"`
	// Mode is the gateway mode that produced the result
	Mode string `json:"mode"`
	// Result is the JSON value the classifier emitted, untouched
	Result json.RawMessage `json:"result"`
	// Cached is true when the result came from the result cache
	Cached bool `json:"cached"`
	// Duration is the wall time spent producing the result
	Duration time.Duration `json:"-"`
	// Frames is the number of frames sent (0 in scanned mode)
	Frames int `json:"frames,omitempty"`
}

// DurationMS returns the duration in milliseconds for JSON payloads
func (t Translation) DurationMS() float64 {
	return float64(t.Duration.Microseconds()) / 1000.0
}

// TranslationEvent is published to the event bus after a successful translation
type TranslationEvent struct {
	InvocationID string          `json:"invocation_id"`
	Mode         string          `json:"mode"`
	Frames       int             `json:"frames"`
	Cached       bool            `json:"cached"`
	Result       json.RawMessage `json:"result"`
	DurationMS   float64         `json:"duration_ms"`
	Timestamp    string          `json:"timestamp"`
}

// NewTranslationEvent builds the event for a translation
func NewTranslationEvent(t Translation, at time.Time) TranslationEvent {
	return TranslationEvent{
		InvocationID: t.InvocationID,
		Mode:         t.Mode,
		Frames:       t.Frames,
		Cached:       t.Cached,
		Result:       t.Result,
		DurationMS:   t.DurationMS(),
		Timestamp:    at.UTC().Format(time.RFC3339Nano),
	}
}

// ToJSON converts the event to JSON bytes
func (e TranslationEvent) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}
