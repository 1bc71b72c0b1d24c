package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pterolink/pterolink/domain"
)

type TelemetryRepository struct {
	coll *mongo.Collection
}

func NewTelemetryRepository(db *mongo.Database) *TelemetryRepository {
	return &TelemetryRepository{coll: db.Collection(TelemetryCollection)}
}

type telemetryDoc struct {
	ServerID string                  `bson:"_id"`
	Samples  []domain.ResourceSample `bson:"samples"`
}

// Append pushes a sample onto the server's history and truncates to the
// newest TelemetryHistoryCap entries in the same update, dropping the
// oldest first. Callers supply monotonically increasing timestamps; the
// history is append-ordered, not insertion-sorted.
func (r *TelemetryRepository) Append(ctx context.Context, serverID string, sample domain.ResourceSample) error {
	sample.ServerID = serverID
	update := bson.M{
		"$push": bson.M{
			"samples": bson.M{
				"$each":  bson.A{sample},
				"$slice": -domain.TelemetryHistoryCap,
			},
		},
	}
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": serverID}, update, options.UpdateOne().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("appending telemetry sample: %w", err)
	}
	return nil
}

// History returns the retained samples, oldest first. A server that was
// never polled has an empty history, not an error.
func (r *TelemetryRepository) History(ctx context.Context, serverID string) ([]domain.ResourceSample, error) {
	var doc telemetryDoc
	err := r.coll.FindOne(ctx, bson.M{"_id": serverID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return []domain.ResourceSample{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("fetching telemetry history: %w", err)
	}
	return doc.Samples, nil
}
