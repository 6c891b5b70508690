package conversation

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/teslashibe/go-mantra/pkg/detection"
	"github.com/teslashibe/go-mantra/pkg/entity"
	"github.com/teslashibe/go-mantra/pkg/intent"
)

// Transcript is one result from the transcription service.
type Transcript struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// EventType discriminates events sent to the presentation layer.
type EventType string

const (
	EventPartial    EventType = "partial"
	EventUtterance  EventType = "utterance"
	EventDetections EventType = "detections"
	EventError      EventType = "error"
	EventState      EventType = "state"
)

// Partial is an interim transcript.
type Partial struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"is_final"`
}

// Utterance is the full result for a finalized transcript.
type Utterance struct {
	Transcript    string          `json:"transcript"`
	IsFinal       bool            `json:"is_final"`
	Intent        intent.Intent   `json:"intent"`
	Entities      []entity.Entity `json:"entities"`
	AgentResponse string          `json:"agent_response"`
	Mode          Mode            `json:"mode"`
	Destination   *string         `json:"destination"`
}

// Detections is the fused result for one video frame.
type Detections struct {
	Detections []detection.Detection `json:"detections"`
}

// ErrorInfo reports a terminal condition on one of the session paths.
type ErrorInfo struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// State is the conversation state.
type State struct {
	Mode        Mode    `json:"mode"`
	Destination *string `json:"destination"`
	IsListening bool    `json:"is_listening"`
}

// Event is one message to the presentation layer. Exactly one payload is set,
// matching Type; it is flattened next to the envelope fields on the wire.
type Event struct {
	Type      EventType
	SessionID string
	Timestamp time.Time

	Partial    *Partial
	Utterance  *Utterance
	Detections *Detections
	Error      *ErrorInfo
	State      *State
}

type envelope struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func (e Event) payload() any {
	switch e.Type {
	case EventPartial:
		return e.Partial
	case EventUtterance:
		return e.Utterance
	case EventDetections:
		return e.Detections
	case EventError:
		return e.Error
	case EventState:
		return e.State
	}
	return nil
}

// MarshalJSON writes {"type", "session_id", "timestamp", ...payload}.
func (e Event) MarshalJSON() ([]byte, error) {
	head, err := json.Marshal(envelope{Type: e.Type, SessionID: e.SessionID, Timestamp: e.Timestamp.UTC()})
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(e.payload())
	if err != nil {
		return nil, err
	}
	if len(body) < 2 || body[0] != '{' || bytes.Equal(body, []byte("{}")) {
		return head, nil
	}
	out := make([]byte, 0, len(head)+len(body))
	out = append(out, head[:len(head)-1]...)
	out = append(out, ',')
	return append(out, body[1:]...), nil
}

// NewDetectionsEvent wraps fused detections.
func NewDetectionsEvent(dets []detection.Detection, at time.Time) Event {
	if dets == nil {
		dets = []detection.Detection{}
	}
	return Event{Type: EventDetections, Timestamp: at, Detections: &Detections{Detections: dets}}
}

// NewErrorEvent reports a terminal failure on path ("audio" or "video").
func NewErrorEvent(path string, err error, at time.Time) Event {
	return Event{Type: EventError, Timestamp: at, Error: &ErrorInfo{Path: path, Message: err.Error()}}
}
