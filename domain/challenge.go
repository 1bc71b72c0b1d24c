package domain

import "time"

// VerificationChallenge is a single-use, time-boxed proof request issued to
// confirm a user controls a server. The code is the short human-enterable
// value; the token is an independent high-entropy secret the user must emit
// on the server itself.
type VerificationChallenge struct {
	ID       string `bson:"_id" json:"id"`
	Token    string `bson:"token" json:"token"`
	Code     string `bson:"code" json:"code"`
	UserID   string `bson:"user_id" json:"user_id"`
	ServerID string `bson:"server_id" json:"server_id"`
	// OriginContext is the chat surface the link request came from; it is
	// copied onto the LinkedServer when the challenge is consumed.
	OriginContext string    `bson:"origin_context,omitempty" json:"origin_context,omitempty"`
	IssuedAt      time.Time `bson:"issued_at" json:"issued_at"`
	ExpiresAt     time.Time `bson:"expires_at" json:"expires_at"`
	Used          bool      `bson:"used" json:"used"`
	UsedAt        time.Time `bson:"used_at,omitempty" json:"used_at,omitempty"`
}

// Active reports whether the challenge can still be consumed at the given
// instant.
func (c *VerificationChallenge) Active(now time.Time) bool {
	return !c.Used && now.Before(c.ExpiresAt)
}
