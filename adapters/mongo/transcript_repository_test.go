package mongo

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/giziai/digital-human/domain"
	"github.com/giziai/digital-human/domain/entities"
)

// TestTranscriptRepository_Integration requires a running MongoDB instance
// (skipped if MONGODB_URI is not set)
func TestTranscriptRepository_Integration(t *testing.T) {
	mongoURI := os.Getenv("MONGODB_URI")
	if mongoURI == "" {
		t.Skip("Skipping MongoDB integration test - MONGODB_URI not set")
	}

	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	client, err := NewClient(ctx, Config{URI: mongoURI, Database: "gizi_companion_test"}, logger)
	require.NoError(t, err)
	defer func() {
		_ = client.Database.Drop(ctx)
		_ = client.Close(ctx)
	}()

	repo := NewTranscriptRepository(client.Database, logger)
	require.NoError(t, repo.EnsureIndexes(ctx))

	base := time.Now().UTC().Truncate(time.Millisecond)
	for i, input := range []string{"halo", "sayur", "buah"} {
		started := base.Add(time.Duration(i) * time.Second)
		err := repo.Append(ctx, &entities.Exchange{
			SessionID:   "session-1",
			Kind:        domain.RequestTypeText,
			Input:       input,
			Replies:     []string{"ok " + input},
			StartedAt:   started,
			CompletedAt: started.Add(200 * time.Millisecond),
		})
		require.NoError(t, err)
	}

	t.Run("ListAll", func(t *testing.T) {
		list, err := repo.ListBySession(ctx, "session-1", 0)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "halo", list[0].Input)
		assert.Equal(t, "buah", list[2].Input)
		assert.Equal(t, 200*time.Millisecond, list[0].Latency())
	})

	t.Run("ListLimited", func(t *testing.T) {
		list, err := repo.ListBySession(ctx, "session-1", 2)
		require.NoError(t, err)
		require.Len(t, list, 2)
		assert.Equal(t, "sayur", list[0].Input)
		assert.Equal(t, "buah", list[1].Input)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		list, err := repo.ListBySession(ctx, "other", 0)
		require.NoError(t, err)
		assert.Empty(t, list)
	})
}

func TestConfigValidate(t *testing.T) {
	assert.Error(t, Config{}.Validate())
	assert.NoError(t, Config{URI: "mongodb://localhost:27017"}.Validate())
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://db:27017")
	t.Setenv("MONGODB_DATABASE", "gizi")

	config := NewConfigFromEnv()
	assert.Equal(t, "mongodb://db:27017", config.URI)
	assert.Equal(t, "gizi", config.Database)
}
