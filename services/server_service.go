package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
	"github.com/pterolink/pterolink/ratelimit"
)

// Throttled action names. Each is a separate fixed-window bucket per user.
const (
	ActionLink   = "link"
	ActionVerify = "verify"
	ActionStatus = "status"
	ActionPower  = "power"
)

// PermissionChecker adjudicates verified ownership. Implemented by
// VerificationService.
type PermissionChecker interface {
	HasServerPermission(ctx context.Context, userID, serverID string) (bool, error)
}

// ServerStatus is the combined live view returned to status callers.
type ServerStatus struct {
	Detail *domain.ServerDetails `json:"detail"`
	Usage  *domain.ResourceUsage `json:"usage"`
}

// ServerService exposes the rate-limited, permission-checked operations on
// linked servers: power control, status reads, history, listing, unlinking.
type ServerService struct {
	servers   domain.ServerRepository
	telemetry domain.TelemetryRepository
	perms     PermissionChecker
	panels    PanelProvider
	limiter   *ratelimit.Limiter
}

func NewServerService(
	servers domain.ServerRepository,
	telemetry domain.TelemetryRepository,
	perms PermissionChecker,
	panels PanelProvider,
	limiter *ratelimit.Limiter,
) *ServerService {
	return &ServerService{
		servers:   servers,
		telemetry: telemetry,
		perms:     perms,
		panels:    panels,
		limiter:   limiter,
	}
}

// guard runs the throttle and permission checks shared by every control and
// view operation.
func (s *ServerService) guard(ctx context.Context, userID, serverID, action string) error {
	if err := s.limiter.Check(ctx, userID, action); err != nil {
		return err
	}
	allowed, err := s.perms.HasServerPermission(ctx, userID, serverID)
	if err != nil {
		return err
	}
	if !allowed {
		return fmt.Errorf("%w: %s on server %s", serrors.ErrPermissionDenied, action, serverID)
	}
	return nil
}

// Power sends a power signal to the server on behalf of the user.
func (s *ServerService) Power(ctx context.Context, userID, serverID string, signal domain.PowerSignal) error {
	if !domain.ValidPowerSignal(signal) {
		return fmt.Errorf("unknown power signal %q", signal)
	}
	if err := s.guard(ctx, userID, serverID, ActionPower); err != nil {
		return err
	}

	client, err := s.panels.ClientFor(ctx, userID)
	if err != nil {
		return err
	}
	if err := client.SendPowerSignal(ctx, serverID, signal); err != nil {
		return err
	}

	if err := s.servers.TouchLastActive(ctx, userID, serverID); err != nil {
		log.Warn().Err(err).Str("serverID", serverID).Msg("Could not update last active after power action")
	}

	log.Info().
		Str("userID", userID).
		Str("serverID", serverID).
		Str("signal", string(signal)).
		Msg("Power signal sent")
	return nil
}

// Status fetches the live detail and resource usage for a linked server.
func (s *ServerService) Status(ctx context.Context, userID, serverID string) (*ServerStatus, error) {
	if err := s.guard(ctx, userID, serverID, ActionStatus); err != nil {
		return nil, err
	}

	client, err := s.panels.ClientFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	detail, err := client.GetServerDetails(ctx, serverID)
	if err != nil {
		return nil, err
	}
	usage, err := client.GetServerResources(ctx, serverID)
	if err != nil {
		return nil, err
	}

	if err := s.servers.TouchLastActive(ctx, userID, serverID); err != nil {
		log.Warn().Err(err).Str("serverID", serverID).Msg("Could not update last active after status view")
	}

	return &ServerStatus{Detail: detail, Usage: usage}, nil
}

// History returns the retained telemetry samples for a linked server.
func (s *ServerService) History(ctx context.Context, userID, serverID string) ([]domain.ResourceSample, error) {
	if err := s.guard(ctx, userID, serverID, ActionStatus); err != nil {
		return nil, err
	}
	return s.telemetry.History(ctx, serverID)
}

// ListLinked returns the user's verified servers. A user with no links gets
// an empty list.
func (s *ServerService) ListLinked(ctx context.Context, userID string) ([]*domain.LinkedServer, error) {
	return s.servers.ListByUser(ctx, userID)
}

// ListAllLinked returns every verified link, for the admin/report view.
func (s *ServerService) ListAllLinked(ctx context.Context) ([]*domain.LinkedServer, error) {
	return s.servers.ListAll(ctx)
}

// Unlink removes the user's link to a server. The stored credential and
// telemetry history are left untouched.
func (s *ServerService) Unlink(ctx context.Context, userID, serverID string) error {
	if err := s.servers.Remove(ctx, userID, serverID); err != nil {
		return err
	}
	log.Info().Str("userID", userID).Str("serverID", serverID).Msg("Server unlinked")
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, serrors.ErrNotFound)
}
