package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/domain/repositories"
)

const defaultMaxPerSession = 200

// TranscriptRepository is an in-memory implementation of repositories.TranscriptRepository.
// Each session keeps at most maxPerSession exchanges, oldest dropped first.
type TranscriptRepository struct {
	mu            sync.RWMutex
	sessions      map[string][]*entities.Exchange // session_id -> exchanges in completion order
	maxPerSession int
}

var _ repositories.TranscriptRepository = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a new in-memory transcript repository
func NewTranscriptRepository(maxPerSession int) *TranscriptRepository {
	if maxPerSession <= 0 {
		maxPerSession = defaultMaxPerSession
	}
	return &TranscriptRepository{
		sessions:      make(map[string][]*entities.Exchange),
		maxPerSession: maxPerSession,
	}
}

// Append implements repositories.TranscriptRepository
func (m *TranscriptRepository) Append(ctx context.Context, exchange *entities.Exchange) error {
	if exchange == nil {
		return errors.New("exchange cannot be nil")
	}
	if err := exchange.Validate(); err != nil {
		return err
	}

	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}

	stored := *exchange
	stored.Replies = append([]string(nil), exchange.Replies...)

	m.mu.Lock()
	defer m.mu.Unlock()

	list := append(m.sessions[exchange.SessionID], &stored)
	if len(list) > m.maxPerSession {
		list = list[len(list)-m.maxPerSession:]
	}
	m.sessions[exchange.SessionID] = list

	return nil
}

// ListBySession implements repositories.TranscriptRepository
func (m *TranscriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.Exchange, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.sessions[sessionID]
	if limit > 0 && len(list) > limit {
		list = list[len(list)-limit:]
	}

	result := make([]*entities.Exchange, 0, len(list))
	for _, e := range list {
		cp := *e
		cp.Replies = append([]string(nil), e.Replies...)
		result = append(result, &cp)
	}
	return result, nil
}

// Count returns the number of stored exchanges for a session
func (m *TranscriptRepository) Count(sessionID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions[sessionID])
}
