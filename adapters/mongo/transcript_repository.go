package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/giziai/digital-human/domain/entities"
	"github.com/giziai/digital-human/domain/repositories"
)

const exchangesCollection = "exchanges"

// TranscriptRepository stores exchanges in the "exchanges" collection
type TranscriptRepository struct {
	collection *mongo.Collection
	logger     *zap.Logger
}

var _ repositories.TranscriptRepository = (*TranscriptRepository)(nil)

// NewTranscriptRepository creates a new MongoDB transcript repository
func NewTranscriptRepository(db *mongo.Database, logger *zap.Logger) *TranscriptRepository {
	return &TranscriptRepository{
		collection: db.Collection(exchangesCollection),
		logger:     logger,
	}
}

// EnsureIndexes creates the session lookup index
func (r *TranscriptRepository) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	sessionIndex := mongo.IndexModel{
		Keys: bson.D{
			{Key: "session_id", Value: 1},
			{Key: "completed_at", Value: -1},
		},
	}

	if _, err := r.collection.Indexes().CreateOne(ctx, sessionIndex); err != nil {
		return fmt.Errorf("failed to create exchange indexes: %w", err)
	}

	r.logger.Info("Exchange indexes created successfully")
	return nil
}

// Append implements repositories.TranscriptRepository
func (r *TranscriptRepository) Append(ctx context.Context, exchange *entities.Exchange) error {
	if exchange == nil {
		return errors.New("exchange cannot be nil")
	}
	if err := exchange.Validate(); err != nil {
		return err
	}

	if exchange.ID == "" {
		exchange.ID = uuid.NewString()
	}

	if _, err := r.collection.InsertOne(ctx, exchange); err != nil {
		return fmt.Errorf("failed to insert exchange: %w", err)
	}

	return nil
}

// ListBySession implements repositories.TranscriptRepository
func (r *TranscriptRepository) ListBySession(ctx context.Context, sessionID string, limit int) ([]*entities.Exchange, error) {
	if sessionID == "" {
		return nil, errors.New("session ID cannot be empty")
	}

	filter := bson.M{"session_id": sessionID}
	opts := options.Find().SetSort(bson.D{{Key: "completed_at", Value: -1}}) // Most recent first
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list exchanges for session %s: %w", sessionID, err)
	}
	defer cursor.Close(ctx)

	var exchanges []*entities.Exchange
	for cursor.Next(ctx) {
		var exchange entities.Exchange
		if err := cursor.Decode(&exchange); err != nil {
			r.logger.Error("Failed to decode exchange", zap.Error(err))
			continue
		}
		exchanges = append(exchanges, &exchange)
	}

	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	// Oldest first, matching the in-memory repository
	for i, j := 0, len(exchanges)-1; i < j; i, j = i+1, j-1 {
		exchanges[i], exchanges[j] = exchanges[j], exchanges[i]
	}

	return exchanges, nil
}
