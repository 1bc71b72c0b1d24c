// Package services holds the business logic: ownership verification,
// credential management and rate-limited server control.
package services

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

const (
	codeLength    = 8
	codeCharset   = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	tokenBytes    = 32
	challengeTTL  = 24 * time.Hour
	proofFilePath = "/tmp/panel_verify.txt"
	proofPrefix   = "PANEL_VERIFY"
)

var codeShape = regexp.MustCompile(`^[A-Z0-9]{8}$`)

// PanelProvider resolves a ready panel client for a user from their stored
// credential. Implemented by CredentialService.
type PanelProvider interface {
	ClientFor(ctx context.Context, userID string) (domain.PanelAPI, error)
}

// ChallengeIssue is returned to the caller of IssueChallenge. The
// instructions describe the out-of-band action the user must perform on the
// server so the proof can be read back.
type ChallengeIssue struct {
	Code         string    `json:"code"`
	Token        string    `json:"token"`
	Instructions string    `json:"instructions"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// VerificationService issues single-use ownership challenges and
// adjudicates proof.
type VerificationService struct {
	challenges domain.ChallengeRepository
	servers    domain.ServerRepository
	panels     PanelProvider
	now        func() time.Time
}

// NewVerificationService wires the service. panels is used to read the
// emitted proof back from the server during adjudication.
func NewVerificationService(
	challenges domain.ChallengeRepository,
	servers domain.ServerRepository,
	panels PanelProvider,
) *VerificationService {
	return &VerificationService{
		challenges: challenges,
		servers:    servers,
		panels:     panels,
		now:        time.Now,
	}
}

// IssueChallenge creates a fresh challenge for the pair and returns the code,
// token and the out-of-band instructions. Issuing does not invalidate prior
// challenges; adjudication always consults the most recent active one.
func (s *VerificationService) IssueChallenge(ctx context.Context, userID, serverID, originContext string) (*ChallengeIssue, error) {
	code, err := generateCode(codeLength)
	if err != nil {
		return nil, fmt.Errorf("generating verification code: %w", err)
	}
	token, err := generateToken(tokenBytes)
	if err != nil {
		return nil, fmt.Errorf("generating verification token: %w", err)
	}

	now := s.now().UTC()
	challenge := &domain.VerificationChallenge{
		Token:         token,
		Code:          code,
		UserID:        userID,
		ServerID:      serverID,
		OriginContext: originContext,
		IssuedAt:      now,
		ExpiresAt:     now.Add(challengeTTL),
	}
	if err := s.challenges.Issue(ctx, challenge); err != nil {
		return nil, fmt.Errorf("%w: storing challenge: %w", serrors.ErrStorageFailure, err)
	}

	log.Info().
		Str("userID", userID).
		Str("serverID", serverID).
		Str("origin", originContext).
		Time("expiresAt", challenge.ExpiresAt).
		Msg("Verification challenge issued")

	instructions := fmt.Sprintf(
		"To link your server, run this command in your panel console:\n"+
			"echo \"%s:%s:%s\" > %s\n"+
			"Then submit the code %s before %s.",
		proofPrefix, code, token, proofFilePath,
		code, challenge.ExpiresAt.Format(time.RFC1123),
	)

	return &ChallengeIssue{
		Code:         code,
		Token:        token,
		Instructions: instructions,
		ExpiresAt:    challenge.ExpiresAt,
	}, nil
}

// Adjudicate validates the submitted code against the emitted proof and, on
// success, atomically consumes the challenge and records the verified link.
// Consumption happens only after the proof matches, so a mismatch leaves the
// challenge available for another attempt; a consumed challenge can never
// win again.
func (s *VerificationService) Adjudicate(ctx context.Context, userID, serverID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if !codeShape.MatchString(code) {
		return fmt.Errorf("%w: code must be 8 uppercase alphanumeric characters", serrors.ErrProofMismatch)
	}

	challenge, err := s.challenges.GetActive(ctx, userID, serverID)
	if err != nil {
		return err
	}
	if code != challenge.Code {
		return fmt.Errorf("%w: submitted code does not match the issued challenge", serrors.ErrProofMismatch)
	}

	if err := s.verifyEmittedProof(ctx, userID, serverID, challenge); err != nil {
		return err
	}

	if _, err := s.challenges.Consume(ctx, challenge.ID); err != nil {
		if errors.Is(err, serrors.ErrNoActiveChallenge) ||
			errors.Is(err, serrors.ErrChallengeUsed) ||
			errors.Is(err, serrors.ErrChallengeExpired) {
			return err
		}
		return fmt.Errorf("%w: consuming challenge: %w", serrors.ErrStorageFailure, err)
	}

	now := s.now().UTC()
	linked := &domain.LinkedServer{
		UserID:        userID,
		ServerID:      serverID,
		ServerName:    s.lookupServerName(ctx, userID, serverID),
		OriginContext: challenge.OriginContext,
		Verified:      true,
		VerifiedAt:    now,
		LastActive:    now,
		Status:        domain.ServerLinkStatusLinked,
	}
	if err := s.servers.Upsert(ctx, linked); err != nil {
		return fmt.Errorf("%w: recording verified link: %w", serrors.ErrStorageFailure, err)
	}

	log.Info().Str("userID", userID).Str("serverID", serverID).Msg("Server ownership verified and linked")
	return nil
}

// verifyEmittedProof reads the verification file back through the panel API
// and compares both code and token. Reading the proof from the server itself
// is what makes the challenge an ownership proof rather than a shape check.
func (s *VerificationService) verifyEmittedProof(ctx context.Context, userID, serverID string, challenge *domain.VerificationChallenge) error {
	client, err := s.panels.ClientFor(ctx, userID)
	if err != nil {
		return err
	}

	contents, err := client.GetFileContents(ctx, serverID, proofFilePath)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(contents, "\n") {
		parts := strings.SplitN(strings.TrimSpace(line), ":", 3)
		if len(parts) != 3 || parts[0] != proofPrefix {
			continue
		}
		if parts[1] == challenge.Code && parts[2] == challenge.Token {
			return nil
		}
	}
	return fmt.Errorf("%w: emitted proof does not match the issued challenge", serrors.ErrProofMismatch)
}

// lookupServerName fetches the server's display name, best effort.
func (s *VerificationService) lookupServerName(ctx context.Context, userID, serverID string) string {
	client, err := s.panels.ClientFor(ctx, userID)
	if err != nil {
		return ""
	}
	details, err := client.GetServerDetails(ctx, serverID)
	if err != nil {
		log.Debug().Err(err).Str("serverID", serverID).Msg("Could not resolve server name after verification")
		return ""
	}
	return details.Name
}

// HasServerPermission reports whether the user holds a verified link to the
// server. Absence is not an error.
func (s *VerificationService) HasServerPermission(ctx context.Context, userID, serverID string) (bool, error) {
	server, err := s.servers.Get(ctx, userID, serverID)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return server.Verified, nil
}

func generateCode(length int) (string, error) {
	max := big.NewInt(int64(len(codeCharset)))
	var sb strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		sb.WriteByte(codeCharset[n.Int64()])
	}
	return sb.String(), nil
}

func generateToken(numBytes int) (string, error) {
	raw := make([]byte, numBytes)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return hex.EncodeToString(raw), nil
}
