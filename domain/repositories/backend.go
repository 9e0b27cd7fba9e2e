package repositories

import (
	"context"

	"github.com/giziai/digital-human/domain"
)

// ChatBackend abstracts the remote digital-human chat endpoint
type ChatBackend interface {
	// Chat posts one request and returns the decoded reply.
	// Transport failures and non-2xx statuses are returned as errors.
	Chat(ctx context.Context, req domain.ChatRequest) (*domain.ChatResponse, error)
}
