package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

var (
	ErrSessionClosed   = errors.New("session is not active")
	ErrSessionNotFound = errors.New("session not found")
)

// Reply is one spoken or displayed assistant message.
type Reply struct {
	Text               string
	AllowInterruptions bool
}

// Transport carries replies to the participant and owns the connection.
type Transport interface {
	SendReply(ctx context.Context, reply Reply) error
	Disconnect(ctx context.Context) error
}

// Inference produces the next assistant turn for the full turn history.
type Inference interface {
	Complete(ctx context.Context, turns []chat.Turn) (chat.Turn, error)
}

// Persister writes snapshots to durable storage and returns their location.
type Persister interface {
	Persist(snap chat.Snapshot) (string, error)
}

// Event is an inbound occurrence routed to the coordinator.
type Event interface {
	eventName() string
}

// TextEvent is a typed chat message. WithImage attaches the latest observed frame.
type TextEvent struct {
	Text      string
	WithImage bool
}

// TranscriptionEvent is a finished speech-to-text utterance.
type TranscriptionEvent struct {
	Text string
}

// FunctionResultEvent is a function call requested by the model or the client.
type FunctionResultEvent struct {
	Name      string
	Arguments json.RawMessage
}

func (TextEvent) eventName() string           { return "text" }
func (TranscriptionEvent) eventName() string  { return "transcription" }
func (FunctionResultEvent) eventName() string { return "function" }

// FunctionHandler runs a named function and returns events to process next, in order.
type FunctionHandler func(ctx context.Context, c *Coordinator, args map[string]string) ([]Event, error)
