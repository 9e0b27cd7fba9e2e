// Package app assembles the adapters selected by configuration.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/giziai/digital-human/adapters/backend"
	"github.com/giziai/digital-human/adapters/memory"
	"github.com/giziai/digital-human/adapters/mongo"
	"github.com/giziai/digital-human/domain/repositories"
	"github.com/giziai/digital-human/internal/config"
)

// NewChatBackend returns the mock backend for BACKEND_MODE=mock and the HTTP backend otherwise
func NewChatBackend(cfg config.Config, logger *zap.Logger) (repositories.ChatBackend, error) {
	if cfg.BackendMode == config.BackendModeMock {
		logger.Info("Using mock chat backend")
		return backend.NewMockBackend(), nil
	}

	b, err := backend.NewHTTPBackend(backend.HTTPConfig{
		BaseURL:  cfg.BackendURL,
		ChatPath: cfg.ChatPath,
		Timeout:  cfg.RequestTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat backend: %w", err)
	}
	logger.Info("Using HTTP chat backend", zap.String("endpoint", b.Endpoint()))
	return b, nil
}

// NewTranscripts returns the MongoDB store when MONGODB_URI is set and an
// in-memory store otherwise. The close func releases the connection.
func NewTranscripts(ctx context.Context, cfg config.Config, logger *zap.Logger) (repositories.TranscriptRepository, func(context.Context) error, error) {
	if cfg.MongoURI == "" {
		logger.Info("Using in-memory transcript store")
		return memory.NewTranscriptRepository(0), func(context.Context) error { return nil }, nil
	}

	client, err := mongo.NewClient(ctx, mongo.Config{URI: cfg.MongoURI, Database: cfg.MongoDatabase}, logger)
	if err != nil {
		return nil, nil, err
	}

	repo := mongo.NewTranscriptRepository(client.Database, logger)
	if err := repo.EnsureIndexes(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, nil, fmt.Errorf("failed to create transcript indexes: %w", err)
	}
	return repo, client.Close, nil
}
