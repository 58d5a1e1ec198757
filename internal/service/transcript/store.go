package transcript

import (
	"errors"
	"sync"
	"time"

	"github.com/soulbot/soulbot/backend/internal/model/chat"
)

var ErrSystemTurnRequired = errors.New("first turn must have the system role")

// Store is the in-memory, append-only turn log of one session.
type Store struct {
	sessionID string
	now       func() time.Time

	mu    sync.Mutex
	turns []chat.Turn
}

// NewStore creates an empty store for sessionID.
func NewStore(sessionID string) *Store {
	return &Store{
		sessionID: sessionID,
		now:       func() time.Time { return time.Now().UTC() },
		turns:     make([]chat.Turn, 0, 16),
	}
}

// Append stamps the turn and adds it to the end of the log.
func (s *Store) Append(turn chat.Turn) (chat.Turn, error) {
	turn = turn.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.turns) == 0 && turn.Role != chat.RoleSystem {
		return chat.Turn{}, ErrSystemTurnRequired
	}

	turn.CreatedAt = s.now()
	s.turns = append(s.turns, turn)
	return turn.Clone(), nil
}

// Snapshot copies the log; later appends do not affect the result.
func (s *Store) Snapshot() chat.Snapshot {
	s.mu.Lock()
	copied := make([]chat.Turn, len(s.turns))
	for i, t := range s.turns {
		copied[i] = t.Clone()
	}
	s.mu.Unlock()

	return chat.Snapshot{
		SessionID: s.sessionID,
		Turns:     copied,
		TakenAt:   s.now(),
	}
}

// Len returns the number of appended turns.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.turns)
}

// SessionID returns the owning session identifier.
func (s *Store) SessionID() string {
	return s.sessionID
}
