package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Role tags a conversation turn.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message in the conversation history.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ErrPersist wraps snapshot write failures. Read failures are tolerated
// and degrade to an empty history instead.
var ErrPersist = errors.New("memory: persist snapshot")

// Store is a durable, size-bounded conversation log backed by a single
// JSON snapshot file. It has no concurrent-writer protection: the design
// assumes one active process per snapshot path, last writer wins.
type Store struct {
	path  string
	turns []Turn
}

// NewStore binds a store to a snapshot path. Call Load before use.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Load reads the snapshot from disk. A missing file yields an empty
// history which is immediately persisted; a corrupt or unreadable file
// also yields an empty history and is not treated as fatal.
func (s *Store) Load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		s.turns = nil
		if os.IsNotExist(err) {
			return s.Persist()
		}
		return nil
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.turns = nil
		return nil
	}
	s.turns = turns
	return nil
}

// EnsureSystem inserts a system turn at position 0 iff none exists.
func (s *Store) EnsureSystem(instruction string) {
	for _, t := range s.turns {
		if t.Role == RoleSystem {
			return
		}
	}
	s.turns = append([]Turn{{Role: RoleSystem, Content: instruction}}, s.turns...)
}

// Append adds a turn to the end of the history.
func (s *Store) Append(turn Turn) {
	s.turns = append(s.turns, turn)
}

// Truncate bounds the history to max turns, keeping the first turn plus
// the last max-1 and discarding the middle. A leading system turn
// therefore always survives truncation.
func (s *Store) Truncate(max int) {
	if max <= 0 || len(s.turns) <= max {
		return
	}
	kept := make([]Turn, 0, max)
	kept = append(kept, s.turns[0])
	kept = append(kept, s.turns[len(s.turns)-(max-1):]...)
	s.turns = kept
}

// Persist rewrites the full snapshot. Idempotent; write failures are
// terminal for the caller.
func (s *Store) Persist() error {
	turns := s.turns
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.MarshalIndent(turns, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: %v", ErrPersist, err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}

// Clear drops the history and persists. With keepSystem the leading
// system turns survive.
func (s *Store) Clear(keepSystem bool) error {
	if keepSystem {
		var kept []Turn
		for _, t := range s.turns {
			if t.Role == RoleSystem {
				kept = append(kept, t)
			}
		}
		s.turns = kept
	} else {
		s.turns = nil
	}
	return s.Persist()
}

// Turns returns a copy of the current history.
func (s *Store) Turns() []Turn {
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Len reports the number of turns currently held.
func (s *Store) Len() int { return len(s.turns) }

// Stats holds per-role turn counts.
type Stats struct {
	Total     int
	System    int
	User      int
	Assistant int
}

// Stats counts turns per role.
func (s *Store) Stats() Stats {
	st := Stats{Total: len(s.turns)}
	for _, t := range s.turns {
		switch t.Role {
		case RoleSystem:
			st.System++
		case RoleUser:
			st.User++
		case RoleAssistant:
			st.Assistant++
		}
	}
	return st
}

// Describe renders the history for display, one numbered line per turn
// with long content elided.
func (s *Store) Describe() string {
	if len(s.turns) == 0 {
		return "Memory is empty"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Memory contains %d messages:\n", len(s.turns))
	for i, t := range s.turns {
		content := t.Content
		if len(content) > 100 {
			content = content[:100] + "..."
		}
		fmt.Fprintf(&sb, "  %d. %s: %s\n", i+1, t.Role, content)
	}
	return sb.String()
}
