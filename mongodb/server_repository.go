package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

type ServerRepository struct {
	coll *mongo.Collection
}

func NewServerRepository(db *mongo.Database) *ServerRepository {
	return &ServerRepository{coll: db.Collection(LinkedServersCollection)}
}

// EnsureIndexes creates the unique (user_id, server_id) index. Call once at
// startup.
func (r *ServerRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "server_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("creating linked servers index: %w", err)
	}
	return nil
}

func (r *ServerRepository) Upsert(ctx context.Context, server *domain.LinkedServer) error {
	filter := bson.M{"user_id": server.UserID, "server_id": server.ServerID}
	_, err := r.coll.ReplaceOne(ctx, filter, server, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upserting linked server: %w", err)
	}
	return nil
}

func (r *ServerRepository) Remove(ctx context.Context, userID, serverID string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"user_id": userID, "server_id": serverID})
	if err != nil {
		return fmt.Errorf("removing linked server: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: linked server %s/%s", serrors.ErrNotFound, userID, serverID)
	}
	return nil
}

func (r *ServerRepository) Get(ctx context.Context, userID, serverID string) (*domain.LinkedServer, error) {
	var server domain.LinkedServer
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID, "server_id": serverID}).Decode(&server)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: linked server %s/%s", serrors.ErrNotFound, userID, serverID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching linked server: %w", err)
	}
	return &server, nil
}

func (r *ServerRepository) ListByUser(ctx context.Context, userID string) ([]*domain.LinkedServer, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("listing servers for user: %w", err)
	}
	defer cursor.Close(ctx)

	servers := []*domain.LinkedServer{}
	if err := cursor.All(ctx, &servers); err != nil {
		return nil, fmt.Errorf("decoding linked servers: %w", err)
	}
	return servers, nil
}

// ListAll returns every linked server, for the admin/report view.
func (r *ServerRepository) ListAll(ctx context.Context) ([]*domain.LinkedServer, error) {
	cursor, err := r.coll.Find(ctx, bson.M{})
	if err != nil {
		return nil, fmt.Errorf("listing all linked servers: %w", err)
	}
	defer cursor.Close(ctx)

	servers := []*domain.LinkedServer{}
	if err := cursor.All(ctx, &servers); err != nil {
		return nil, fmt.Errorf("decoding linked servers: %w", err)
	}
	return servers, nil
}

func (r *ServerRepository) TouchLastActive(ctx context.Context, userID, serverID string) error {
	filter := bson.M{"user_id": userID, "server_id": serverID}
	update := bson.M{"$set": bson.M{"last_active": time.Now().UTC()}}
	if _, err := r.coll.UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("touching last active: %w", err)
	}
	return nil
}
