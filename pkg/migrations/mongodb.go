package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureQuarantineCollection creates the indexes the quarantine store
// queries by. The collection itself is created on first insert.
func EnsureQuarantineCollection(ctx context.Context, db *mongo.Database, collectionName string) error {
	collection := db.Collection(collectionName)

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "rejected_at", Value: -1}},
			Options: options.Index().SetName("idx_quarantine_rejected_at"),
		},
		{
			Keys:    bson.D{{Key: "reason", Value: 1}, {Key: "rejected_at", Value: -1}},
			Options: options.Index().SetName("idx_quarantine_reason_rejected_at"),
		},
		{
			Keys:    bson.D{{Key: "identity", Value: 1}, {Key: "rejected_at", Value: -1}},
			Options: options.Index().SetName("idx_quarantine_identity_rejected_at"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		if !strings.Contains(err.Error(), "already exists") {
			return fmt.Errorf("failed to create indexes: %w", err)
		}
	}

	return nil
}
