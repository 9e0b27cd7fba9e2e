package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/giziai/digital-human/adapters/backend"
	"github.com/giziai/digital-human/adapters/memory"
	"github.com/giziai/digital-human/internal/config"
)

func TestNewChatBackend(t *testing.T) {
	logger := zaptest.NewLogger(t)

	b, err := NewChatBackend(config.Config{BackendMode: config.BackendModeMock}, logger)
	require.NoError(t, err)
	assert.IsType(t, &backend.MockBackend{}, b)

	b, err = NewChatBackend(config.Config{
		BackendMode:    config.BackendModeHTTP,
		BackendURL:     "http://backend:5000/",
		ChatPath:       "/api/digital-human/chat",
		RequestTimeout: time.Second,
	}, logger)
	require.NoError(t, err)
	require.IsType(t, &backend.HTTPBackend{}, b)
	assert.Equal(t, "http://backend:5000/api/digital-human/chat", b.(*backend.HTTPBackend).Endpoint())

	_, err = NewChatBackend(config.Config{BackendMode: config.BackendModeHTTP, BackendURL: "ftp://x"}, logger)
	assert.Error(t, err)
}

func TestNewTranscriptsInMemory(t *testing.T) {
	repo, closeFn, err := NewTranscripts(context.Background(), config.Config{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &memory.TranscriptRepository{}, repo)
	assert.NoError(t, closeFn(context.Background()))
}
