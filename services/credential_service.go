package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
	"github.com/pterolink/pterolink/internal/vault"
	"github.com/pterolink/pterolink/panel"
)

// APIKeyPrefix is the fixed prefix of panel client API keys. Submissions
// without it are rejected before any network call.
const APIKeyPrefix = "ptlc_"

// PanelClientFactory builds a panel client from a base URL and plaintext
// key. Swapped for a fake in tests.
type PanelClientFactory func(panelURL, apiKey string) domain.PanelAPI

func defaultPanelClientFactory(panelURL, apiKey string) domain.PanelAPI {
	return panel.NewClient(panelURL, apiKey)
}

// CredentialService owns the credential lifecycle: validation against the
// panel, encryption at rest via the vault, and construction of per-user
// panel clients. It implements PanelProvider.
type CredentialService struct {
	creds   domain.CredentialRepository
	vault   *vault.Vault
	factory PanelClientFactory
	now     func() time.Time
}

// NewCredentialService wires the service with the production client factory.
func NewCredentialService(creds domain.CredentialRepository, v *vault.Vault) *CredentialService {
	return &CredentialService{
		creds:   creds,
		vault:   v,
		factory: defaultPanelClientFactory,
		now:     time.Now,
	}
}

var _ PanelProvider = (*CredentialService)(nil)

// SetCredential accepts a panel URL and API key, proves the key works by
// listing the servers it can see, then stores it encrypted. The plaintext
// key exists only on the stack of this call.
func (s *CredentialService) SetCredential(ctx context.Context, userID, panelURL, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if !strings.HasPrefix(apiKey, APIKeyPrefix) {
		return fmt.Errorf("%w: key must start with %q", serrors.ErrInvalidAPIKey, APIKeyPrefix)
	}
	panelURL = strings.TrimRight(strings.TrimSpace(panelURL), "/")
	if panelURL == "" {
		return fmt.Errorf("%w: panel URL required", serrors.ErrInvalidAPIKey)
	}

	client := s.factory(panelURL, apiKey)
	if _, err := client.ListServers(ctx); err != nil {
		if errors.Is(err, serrors.ErrUpstreamUnavailable) {
			var panelErr *serrors.PanelError
			if errors.As(err, &panelErr) && panelErr.StatusCode >= 400 && panelErr.StatusCode < 500 {
				return fmt.Errorf("%w: panel rejected the key: %s", serrors.ErrInvalidAPIKey, panelErr.Detail)
			}
		}
		return err
	}

	encrypted, err := s.vault.Encrypt(apiKey)
	if err != nil {
		return fmt.Errorf("encrypting API key: %w", err)
	}

	cred := &domain.Credential{
		UserID:          userID,
		EncryptedAPIKey: encrypted,
		PanelURL:        panelURL,
		VerifiedAt:      s.now().UTC(),
	}
	if err := s.creds.Save(ctx, cred); err != nil {
		return fmt.Errorf("saving credential: %w", err)
	}

	log.Info().Str("userID", userID).Str("panelURL", panelURL).Msg("Panel credential stored")
	return nil
}

// ClientFor decrypts the user's stored key and returns a ready panel
// client. A corrupt record propagates ErrCorruptCredential so the caller
// can prompt re-entry instead of treating the credential as empty.
func (s *CredentialService) ClientFor(ctx context.Context, userID string) (domain.PanelAPI, error) {
	cred, err := s.creds.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	apiKey, err := s.vault.Decrypt(cred.EncryptedAPIKey)
	if err != nil {
		log.Warn().Err(err).Str("userID", userID).Msg("Stored credential failed to decrypt")
		return nil, err
	}
	return s.factory(cred.PanelURL, apiKey), nil
}

// RemoveCredential destroys the stored credential.
func (s *CredentialService) RemoveCredential(ctx context.Context, userID string) error {
	if err := s.creds.Delete(ctx, userID); err != nil {
		return err
	}
	log.Info().Str("userID", userID).Msg("Panel credential removed")
	return nil
}

// ListPanelServers lists the servers the user's credential can see,
// including ownership role. Used during linking so the user can pick a
// server ID.
func (s *CredentialService) ListPanelServers(ctx context.Context, userID string) ([]domain.PanelServer, error) {
	client, err := s.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}
	return client.ListServers(ctx)
}
