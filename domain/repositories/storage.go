package repositories

import (
	"context"

	"github.com/giziai/digital-human/domain/entities"
)

// TranscriptRepository stores completed exchanges per session
type TranscriptRepository interface {
	Append(ctx context.Context, exchange *entities.Exchange) error
	// ListBySession returns the newest exchanges last; limit <= 0 means all
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.Exchange, error)
}
