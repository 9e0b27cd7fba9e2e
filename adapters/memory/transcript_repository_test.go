package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/entities"
)

func newExchange(session, input string) *entities.Exchange {
	now := time.Now()
	return &entities.Exchange{
		SessionID:   session,
		Kind:        domain.RequestTypeText,
		Input:       input,
		Replies:     []string{"reply to " + input},
		StartedAt:   now,
		CompletedAt: now.Add(100 * time.Millisecond),
	}
}

func TestTranscriptRepository_AppendAndList(t *testing.T) {
	repo := NewTranscriptRepository(0)
	ctx := context.Background()

	first := newExchange("s1", "halo")
	require.NoError(t, repo.Append(ctx, first))
	assert.NotEmpty(t, first.ID, "ID should be generated")

	require.NoError(t, repo.Append(ctx, newExchange("s1", "sayur")))
	require.NoError(t, repo.Append(ctx, newExchange("s2", "buah")))

	list, err := repo.ListBySession(ctx, "s1", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "halo", list[0].Input)
	assert.Equal(t, "sayur", list[1].Input)

	limited, err := repo.ListBySession(ctx, "s1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "sayur", limited[0].Input)

	empty, err := repo.ListBySession(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestTranscriptRepository_ReturnsCopies(t *testing.T) {
	repo := NewTranscriptRepository(0)
	ctx := context.Background()

	ex := newExchange("s1", "halo")
	require.NoError(t, repo.Append(ctx, ex))
	ex.Replies[0] = "mutated"

	list, err := repo.ListBySession(ctx, "s1", 0)
	require.NoError(t, err)
	assert.Equal(t, "reply to halo", list[0].Replies[0])

	list[0].Input = "changed"
	again, _ := repo.ListBySession(ctx, "s1", 0)
	assert.Equal(t, "halo", again[0].Input)
}

func TestTranscriptRepository_Bounded(t *testing.T) {
	repo := NewTranscriptRepository(2)
	ctx := context.Background()

	for _, in := range []string{"a", "b", "c"} {
		require.NoError(t, repo.Append(ctx, newExchange("s1", in)))
	}

	assert.Equal(t, 2, repo.Count("s1"))
	list, _ := repo.ListBySession(ctx, "s1", 0)
	assert.Equal(t, "b", list[0].Input)
	assert.Equal(t, "c", list[1].Input)
}

func TestTranscriptRepository_Validation(t *testing.T) {
	repo := NewTranscriptRepository(0)
	ctx := context.Background()

	assert.Error(t, repo.Append(ctx, nil))
	assert.Error(t, repo.Append(ctx, newExchange("", "halo")))

	_, err := repo.ListBySession(ctx, "", 0)
	assert.Error(t, err)
}
