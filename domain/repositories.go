package domain

import "context"

//go:generate mockgen -source=$GOFILE -destination=../mocks/mock_$GOPACKAGE/mock_$GOFILE -package=mock_$GOPACKAGE

// ServerRepository is the durable mapping of user -> linked servers.
type ServerRepository interface {
	Upsert(ctx context.Context, server *LinkedServer) error
	Remove(ctx context.Context, userID, serverID string) error
	Get(ctx context.Context, userID, serverID string) (*LinkedServer, error)
	ListByUser(ctx context.Context, userID string) ([]*LinkedServer, error)
	ListAll(ctx context.Context) ([]*LinkedServer, error)
	TouchLastActive(ctx context.Context, userID, serverID string) error
}

// ChallengeRepository stores verification challenges. Consume is the one
// operation requiring all-or-nothing atomicity: under concurrent
// adjudication attempts exactly one caller can transition used false->true.
type ChallengeRepository interface {
	Issue(ctx context.Context, challenge *VerificationChallenge) error
	GetActive(ctx context.Context, userID, serverID string) (*VerificationChallenge, error)
	Consume(ctx context.Context, challengeID string) (*VerificationChallenge, error)
}

// TelemetryRepository keeps the bounded per-server sample history.
// Append truncates to TelemetryHistoryCap, dropping the oldest samples;
// callers supply monotonically increasing timestamps.
type TelemetryRepository interface {
	Append(ctx context.Context, serverID string, sample ResourceSample) error
	History(ctx context.Context, serverID string) ([]ResourceSample, error)
}

// CredentialRepository stores encrypted panel credentials per user.
type CredentialRepository interface {
	Save(ctx context.Context, cred *Credential) error
	Get(ctx context.Context, userID string) (*Credential, error)
	Delete(ctx context.Context, userID string) error
}
