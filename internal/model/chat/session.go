package chat

import (
	"fmt"
	"strings"
	"time"
)

// State is the lifecycle position of a conversation session.
type State int32

const (
	StateActive State = iota
	StateTerminating
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateTerminating:
		return "terminating"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// MarshalText renders the state by name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionInfo summarises a live session for listing endpoints.
type SessionInfo struct {
	ID        string    `json:"id"`
	State     State     `json:"state"`
	Turns     int       `json:"turns"`
	CreatedAt time.Time `json:"createdAt"`
}

// QuitCommand ends a conversation when spoken or typed on its own.
const QuitCommand = "quit"

// NormalizeCommand trims surrounding whitespace and case-folds text before command matching.
func NormalizeCommand(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}

// IsQuitCommand reports whether text is exactly the quit command after normalization.
func IsQuitCommand(text string) bool {
	return NormalizeCommand(text) == QuitCommand
}
