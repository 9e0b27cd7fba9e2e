package entities

import (
	"sync"

	"github.com/google/uuid"
)

// Session is the conversation identifier shared with the backend.
// It is generated once when absent and afterwards only replaced by an
// identifier the backend hands back.
type Session struct {
	mu sync.RWMutex
	id string
}

// NewSession creates a session, generating a fresh identifier when id is empty
func NewSession(id string) *Session {
	if id == "" {
		id = uuid.NewString()
	}
	return &Session{id: id}
}

// ID returns the current identifier
func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Ref returns a pointer suitable for the nullable session_uuid field
func (s *Session) Ref() *string {
	id := s.ID()
	if id == "" {
		return nil
	}
	return &id
}

// Adopt replaces the identifier with one issued by the backend.
// Empty or identical identifiers are ignored; the result reports a change.
func (s *Session) Adopt(id string) bool {
	if id == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.id == id {
		return false
	}
	s.id = id
	return true
}

// Short is the display form used in the chat header
func (s *Session) Short() string {
	return ShortID(s.ID())
}

// ShortID returns the first 8 characters of a session identifier
func ShortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
