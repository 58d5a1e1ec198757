package chat

import "time"

// Snapshot is an immutable copy of a session's turns.
type Snapshot struct {
	SessionID string
	Turns     []Turn
	TakenAt   time.Time
}

// Record is the on-disk shape of one turn.
type Record struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Records flattens the snapshot into persisted records.
func (s Snapshot) Records() []Record {
	records := make([]Record, 0, len(s.Turns))
	for _, t := range s.Turns {
		records = append(records, Record{Role: t.Role, Content: t.Display()})
	}
	return records
}

// LastByRole returns the most recent turn with the given role.
func (s Snapshot) LastByRole(role Role) (Turn, bool) {
	for i := len(s.Turns) - 1; i >= 0; i-- {
		if s.Turns[i].Role == role {
			return s.Turns[i], true
		}
	}
	return Turn{}, false
}

// Count returns how many turns have the given role.
func (s Snapshot) Count(role Role) int {
	n := 0
	for _, t := range s.Turns {
		if t.Role == role {
			n++
		}
	}
	return n
}

// Len returns the number of turns.
func (s Snapshot) Len() int {
	return len(s.Turns)
}
