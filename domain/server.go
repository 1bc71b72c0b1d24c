package domain

import "time"

// ServerLinkStatus represents the lifecycle state of a linked server.
type ServerLinkStatus string

const (
	ServerLinkStatusLinked   ServerLinkStatus = "linked"
	ServerLinkStatusUnlinked ServerLinkStatus = "unlinked"
)

// LinkedServer is one verified binding of a chat user to a panel server.
// A row exists only after a verification challenge has been consumed
// successfully; unverified pairs are never persisted here.
type LinkedServer struct {
	UserID        string           `bson:"user_id" json:"user_id"`
	ServerID      string           `bson:"server_id" json:"server_id"`
	ServerName    string           `bson:"server_name,omitempty" json:"server_name,omitempty"`
	OriginContext string           `bson:"origin_context,omitempty" json:"origin_context,omitempty"`
	Verified      bool             `bson:"verified" json:"verified"`
	VerifiedAt    time.Time        `bson:"verified_at" json:"verified_at"`
	LastActive    time.Time        `bson:"last_active" json:"last_active"`
	Status        ServerLinkStatus `bson:"status" json:"status"`
}
