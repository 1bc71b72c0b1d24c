package mongodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

type ChallengeRepository struct {
	coll *mongo.Collection
}

func NewChallengeRepository(db *mongo.Database) *ChallengeRepository {
	return &ChallengeRepository{coll: db.Collection(ChallengesCollection)}
}

func (r *ChallengeRepository) Issue(ctx context.Context, challenge *domain.VerificationChallenge) error {
	if challenge.ID == "" {
		challenge.ID = uuid.NewString()
	}
	if _, err := r.coll.InsertOne(ctx, challenge); err != nil {
		return fmt.Errorf("inserting challenge: %w", err)
	}
	return nil
}

// GetActive returns the most recently issued unused, unexpired challenge for
// the pair. When none qualifies the error distinguishes used, expired and
// absent so callers can report precisely.
func (r *ChallengeRepository) GetActive(ctx context.Context, userID, serverID string) (*domain.VerificationChallenge, error) {
	filter := bson.M{
		"user_id":    userID,
		"server_id":  serverID,
		"used":       false,
		"expires_at": bson.M{"$gt": time.Now().UTC()},
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "issued_at", Value: -1}})

	var challenge domain.VerificationChallenge
	err := r.coll.FindOne(ctx, filter, opts).Decode(&challenge)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.classifyMiss(ctx, bson.M{"user_id": userID, "server_id": serverID})
	}
	if err != nil {
		return nil, fmt.Errorf("fetching active challenge: %w", err)
	}
	return &challenge, nil
}

// Consume atomically transitions a challenge from unused to used. The
// conditional FindOneAndUpdate guarantees that under concurrent adjudication
// attempts exactly one caller observes the transition; all others get the
// classified miss.
func (r *ChallengeRepository) Consume(ctx context.Context, challengeID string) (*domain.VerificationChallenge, error) {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":        challengeID,
		"used":       false,
		"expires_at": bson.M{"$gt": now},
	}
	update := bson.M{"$set": bson.M{"used": true, "used_at": now}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var consumed domain.VerificationChallenge
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&consumed)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, r.classifyMiss(ctx, bson.M{"_id": challengeID})
	}
	if err != nil {
		return nil, fmt.Errorf("consuming challenge: %w", err)
	}
	return &consumed, nil
}

// classifyMiss runs after a conditional read or update matched nothing. The
// atomic decision was already made; this read only picks the right error.
func (r *ChallengeRepository) classifyMiss(ctx context.Context, filter bson.M) error {
	opts := options.FindOne().SetSort(bson.D{{Key: "issued_at", Value: -1}})

	var latest domain.VerificationChallenge
	err := r.coll.FindOne(ctx, filter, opts).Decode(&latest)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return serrors.ErrNoActiveChallenge
	case err != nil:
		return fmt.Errorf("classifying challenge miss: %w", err)
	case latest.Used:
		return serrors.ErrChallengeUsed
	case !time.Now().UTC().Before(latest.ExpiresAt):
		return serrors.ErrChallengeExpired
	default:
		// Lost a race against a concurrent consume that has not
		// committed its used flag yet, or the filter excluded it for
		// another reason. Treat as no active challenge.
		return serrors.ErrNoActiveChallenge
	}
}
