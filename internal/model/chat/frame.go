package chat

import "encoding/json"

// Kind discriminates the Frame variants.
type Kind string

const (
	KindChunk    Kind = "chunk"
	KindComplete Kind = "complete"
	KindError    Kind = "error"
	KindEvent    Kind = "event"
	KindPing     Kind = "ping"
	KindPong     Kind = "pong"
)

// Frame is one decoded logical message from a transport stream. Only the field
// belonging to Kind is populated.
type Frame struct {
	Kind      Kind
	Content   string
	SessionID string
	Event     *EventPayload
	Timestamp string
}

// ChunkFrame builds a Chunk frame.
func ChunkFrame(content string) Frame { return Frame{Kind: KindChunk, Content: content} }

// CompleteFrame builds a Complete frame.
func CompleteFrame(sessionID string) Frame { return Frame{Kind: KindComplete, SessionID: sessionID} }

// ErrorFrame builds an Error frame.
func ErrorFrame(content string) Frame { return Frame{Kind: KindError, Content: content} }

// EventFrame builds an Event frame.
func EventFrame(ev EventPayload) Frame { return Frame{Kind: KindEvent, Event: &ev} }

// Terminal reports whether the frame ends a chat turn.
func (f Frame) Terminal() bool {
	return f.Kind == KindComplete || f.Kind == KindError
}

// Envelope is the JSON shape shared by every transport.
type Envelope struct {
	Type      string          `json:"type"`
	Content   string          `json:"content,omitempty"`
	SessionID string          `json:"session_id,omitempty"`
	Event     json.RawMessage `json:"event,omitempty"`
	Timestamp string          `json:"timestamp,omitempty"`
}
