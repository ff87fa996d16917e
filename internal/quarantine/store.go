package quarantine

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"gavel/internal/logger"
	"gavel/pkg/metrics"
)

// QuarantinedMessage is a rejected delivery archived for later review.
// The raw payload is kept so an operator can inspect what was dropped,
// since the provider only ever saw a generic acknowledgement.
type QuarantinedMessage struct {
	ID         string                 `bson:"_id" json:"id"`
	Identity   string                 `bson:"identity,omitempty" json:"identity,omitempty"`
	Reason     string                 `bson:"reason" json:"reason"`
	Errors     []string               `bson:"errors,omitempty" json:"errors,omitempty"`
	Warnings   []string               `bson:"warnings,omitempty" json:"warnings,omitempty"`
	Payload    map[string]interface{} `bson:"payload,omitempty" json:"payload,omitempty"`
	RejectedAt time.Time              `bson:"rejected_at" json:"rejected_at"`
}

type Store struct {
	collection *mongo.Collection
	logger     logger.Logger
}

func NewStore(db *mongo.Database, collectionName string, log logger.Logger) *Store {
	return &Store{
		collection: db.Collection(collectionName),
		logger:     log,
	}
}

// Archive persists one rejected message. Callers treat failure as
// best-effort: a broken archive must never affect the admission verdict.
func (s *Store) Archive(ctx context.Context, msg QuarantinedMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.RejectedAt.IsZero() {
		msg.RejectedAt = time.Now().UTC()
	}

	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		metrics.QuarantineWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to archive quarantined message: %w", err)
	}

	metrics.QuarantineWritesTotal.WithLabelValues("success").Inc()
	return nil
}

// ListRecent returns the newest quarantined messages, optionally filtered
// by rejection reason.
func (s *Store) ListRecent(ctx context.Context, reason string, limit int64) ([]QuarantinedMessage, error) {
	filter := bson.M{}
	if reason != "" {
		filter["reason"] = reason
	}

	if limit <= 0 {
		limit = 50
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "rejected_at", Value: -1}}).
		SetLimit(limit)

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query quarantined messages: %w", err)
	}
	defer cursor.Close(ctx)

	var messages []QuarantinedMessage
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, fmt.Errorf("failed to decode quarantined messages: %w", err)
	}
	return messages, nil
}
