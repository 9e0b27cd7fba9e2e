package backend

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/repositories"
)

// DefaultMockSessions bounds how many sessions the mock remembers
const DefaultMockSessions = 1024

// MockBackend answers locally with canned nutrition replies. It keeps the
// session identifier it hands out, like the real backend does. Beyond
// maxSessions the oldest session is forgotten and greeted again on its next turn.
type MockBackend struct {
	mu          sync.Mutex
	sessions    map[string]int
	order       []string
	maxSessions int
}

var _ repositories.ChatBackend = (*MockBackend)(nil)

// NewMockBackend creates a new mock chat backend
func NewMockBackend() *MockBackend {
	return NewMockBackendWithLimit(DefaultMockSessions)
}

// NewMockBackendWithLimit creates a mock that remembers at most maxSessions sessions
func NewMockBackendWithLimit(maxSessions int) *MockBackend {
	if maxSessions <= 0 {
		maxSessions = DefaultMockSessions
	}
	return &MockBackend{
		sessions:    make(map[string]int),
		maxSessions: maxSessions,
	}
}

// Chat implements repositories.ChatBackend
func (m *MockBackend) Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	sessionID := ""
	if req.SessionUUID != nil {
		sessionID = *req.SessionUUID
	}
	if _, ok := m.sessions[sessionID]; !ok || sessionID == "" {
		sessionID = uuid.NewString()
		m.rememberLocked(sessionID)
	}
	m.sessions[sessionID]++
	turn := m.sessions[sessionID]
	m.mu.Unlock()

	var text string
	switch req.Type {
	case domain.RequestTypeAudio:
		audio, err := base64.StdEncoding.DecodeString(req.AudioData)
		if err != nil {
			return nil, fmt.Errorf("invalid audio data: %w", err)
		}
		text = fmt.Sprintf("Saya menerima rekaman suara sebesar %d byte. Ada yang ingin ditanyakan tentang gizi?", len(audio))
	default:
		text = fmt.Sprintf("Terima kasih atas pertanyaannya tentang '%s'. Usahakan makan sayur dan buah setiap hari ya!", strings.TrimSpace(req.Message))
	}

	messages := []domain.RawReplyMessage{{
		Text:             text,
		FacialExpression: "smile",
		Animation:        "Talking_1",
	}}
	if turn == 1 {
		messages = append([]domain.RawReplyMessage{{
			Text:             "Halo! Saya GiziAI, ahli gizi digital kamu.",
			FacialExpression: "smile",
			Animation:        "Talking_0",
		}}, messages...)
	}

	return &domain.ChatResponse{
		SessionUUID: sessionID,
		Messages:    messages,
	}, nil
}

func (m *MockBackend) rememberLocked(sessionID string) {
	for len(m.order) >= m.maxSessions {
		delete(m.sessions, m.order[0])
		m.order = m.order[1:]
	}
	m.order = append(m.order, sessionID)
	m.sessions[sessionID] = 0
}

// Sessions returns how many sessions are remembered
func (m *MockBackend) Sessions() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
