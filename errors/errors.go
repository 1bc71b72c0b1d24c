// Package errors defines the closed error taxonomy shared by all services.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrPermissionDenied is returned when the caller lacks verified
	// ownership of the target server.
	ErrPermissionDenied = errors.New("user lacks verified ownership of this server")

	// ErrNotFound is returned when a server, challenge or credential is
	// absent.
	ErrNotFound = errors.New("not found")

	// ErrNoActiveChallenge is returned when no unused, unexpired
	// verification challenge exists for the (user, server) pair.
	ErrNoActiveChallenge = errors.New("no active verification challenge")

	// ErrChallengeExpired is returned when the challenge is past its
	// validity window, regardless of code correctness.
	ErrChallengeExpired = errors.New("verification challenge expired")

	// ErrChallengeUsed is returned on replay of an already consumed
	// challenge.
	ErrChallengeUsed = errors.New("verification challenge already used")

	// ErrProofMismatch is returned when the submitted code or the emitted
	// proof does not match the issued challenge.
	ErrProofMismatch = errors.New("verification proof mismatch")

	// ErrUpstreamUnavailable wraps any failed panel API call. Always
	// retryable.
	ErrUpstreamUnavailable = errors.New("panel API unavailable")

	// ErrCorruptCredential is returned when a stored credential record
	// cannot be decrypted. Callers must treat this as "credential
	// unusable, prompt re-entry", never as an empty credential.
	ErrCorruptCredential = errors.New("stored credential is corrupt")

	// ErrStorageFailure wraps store errors during verification. The
	// attempt is aborted whole: no link is recorded without a consumed
	// challenge.
	ErrStorageFailure = errors.New("storage failure")

	// ErrRateLimited is returned when the per-user request throttle
	// trips.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrInvalidAPIKey is returned when a submitted panel key fails the
	// prefix pattern or does not authenticate against the panel.
	ErrInvalidAPIKey = errors.New("invalid panel API key")
)

// PanelError carries the upstream-supplied human-readable detail of a failed
// panel API call. It unwraps to ErrUpstreamUnavailable so callers can branch
// on the taxonomy without losing the detail string.
type PanelError struct {
	StatusCode int    `json:"status_code"`
	Detail     string `json:"detail"`
}

func (e *PanelError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("panel API error (status %d)", e.StatusCode)
	}
	return fmt.Sprintf("panel API error (status %d): %s", e.StatusCode, e.Detail)
}

func (e *PanelError) Unwrap() error { return ErrUpstreamUnavailable }

// NewPanelError builds a PanelError from an upstream status and detail.
// An empty detail falls back to the generic message in Error().
func NewPanelError(statusCode int, detail string) *PanelError {
	return &PanelError{StatusCode: statusCode, Detail: detail}
}
