package mongodb

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

// CredentialRepository stores encrypted panel credentials. Encryption is
// applied by the credential service before records reach this repository;
// plaintext keys never appear here.
type CredentialRepository struct {
	coll *mongo.Collection
}

func NewCredentialRepository(db *mongo.Database) *CredentialRepository {
	return &CredentialRepository{coll: db.Collection(CredentialsCollection)}
}

func (r *CredentialRepository) Save(ctx context.Context, cred *domain.Credential) error {
	filter := bson.M{"user_id": cred.UserID}
	_, err := r.coll.ReplaceOne(ctx, filter, cred, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}
	return nil
}

func (r *CredentialRepository) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cred)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: credential for user %s", serrors.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("fetching credential: %w", err)
	}
	return &cred, nil
}

func (r *CredentialRepository) Delete(ctx context.Context, userID string) error {
	result, err := r.coll.DeleteOne(ctx, bson.M{"user_id": userID})
	if err != nil {
		return fmt.Errorf("deleting credential: %w", err)
	}
	if result.DeletedCount == 0 {
		return fmt.Errorf("%w: credential for user %s", serrors.ErrNotFound, userID)
	}
	return nil
}
