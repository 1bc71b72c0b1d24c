// Package echo exposes the linking service over HTTP. Route handlers stay
// thin: bind, delegate to a service, translate the error taxonomy to a
// status code.
package echo

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
	"github.com/pterolink/pterolink/services"
	"github.com/pterolink/pterolink/updater"
)

// LinkAPI holds the service dependencies for the HTTP surface.
type LinkAPI struct {
	verification *services.VerificationService
	credentials  *services.CredentialService
	servers      *services.ServerService
	updater      *updater.Updater
}

// NewLinkAPI initializes the linking API.
func NewLinkAPI(
	verification *services.VerificationService,
	credentials *services.CredentialService,
	servers *services.ServerService,
	upd *updater.Updater,
) *LinkAPI {
	return &LinkAPI{
		verification: verification,
		credentials:  credentials,
		servers:      servers,
		updater:      upd,
	}
}

// RegisterRoutes registers the linking routes.
func (a *LinkAPI) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/link", a.IssueChallengeHandler)
	e.POST("/api/link/verify", a.VerifyHandler)

	e.GET("/api/servers", a.ListAllServersHandler)
	e.GET("/api/users/:user_id/servers", a.ListServersHandler)
	e.DELETE("/api/users/:user_id/servers/:server_id", a.UnlinkHandler)
	e.GET("/api/users/:user_id/servers/:server_id/status", a.StatusHandler)
	e.GET("/api/users/:user_id/servers/:server_id/history", a.HistoryHandler)
	e.POST("/api/users/:user_id/servers/:server_id/power", a.PowerHandler)

	e.PUT("/api/users/:user_id/credential", a.SetCredentialHandler)
	e.DELETE("/api/users/:user_id/credential", a.RemoveCredentialHandler)
	e.GET("/api/users/:user_id/panel/servers", a.ListPanelServersHandler)

	e.POST("/api/subscriptions", a.SubscribeHandler)
	e.DELETE("/api/subscriptions/:id", a.UnsubscribeHandler)
}

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the service error taxonomy onto HTTP statuses.
func writeError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, serrors.ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, serrors.ErrPermissionDenied):
		status = http.StatusForbidden
	case errors.Is(err, serrors.ErrNotFound),
		errors.Is(err, serrors.ErrNoActiveChallenge):
		status = http.StatusNotFound
	case errors.Is(err, serrors.ErrChallengeUsed):
		status = http.StatusConflict
	case errors.Is(err, serrors.ErrChallengeExpired):
		status = http.StatusGone
	case errors.Is(err, serrors.ErrProofMismatch),
		errors.Is(err, serrors.ErrInvalidAPIKey):
		status = http.StatusBadRequest
	case errors.Is(err, serrors.ErrCorruptCredential):
		status = http.StatusConflict
	case errors.Is(err, serrors.ErrUpstreamUnavailable):
		status = http.StatusBadGateway
	}

	if status == http.StatusInternalServerError {
		log.Error().Err(err).Str("path", c.Path()).Msg("Unhandled service error")
		return c.JSON(status, errorResponse{Error: "internal error"})
	}
	return c.JSON(status, errorResponse{Error: err.Error()})
}

type issueChallengeRequest struct {
	UserID        string `json:"user_id"`
	ServerID      string `json:"server_id"`
	OriginContext string `json:"origin_context"`
}

// IssueChallengeHandler starts the ownership verification flow for a
// (user, server) pair.
func (a *LinkAPI) IssueChallengeHandler(c echo.Context) error {
	var req issueChallengeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.UserID == "" || req.ServerID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "user_id and server_id are required"})
	}

	issue, err := a.verification.IssueChallenge(c.Request().Context(), req.UserID, req.ServerID, req.OriginContext)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, issue)
}

type verifyRequest struct {
	UserID   string `json:"user_id"`
	ServerID string `json:"server_id"`
	Code     string `json:"code"`
}

// VerifyHandler adjudicates a submitted verification code.
func (a *LinkAPI) VerifyHandler(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.UserID == "" || req.ServerID == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "user_id, server_id and code are required"})
	}

	if err := a.verification.Adjudicate(c.Request().Context(), req.UserID, req.ServerID, req.Code); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"verified": true})
}

// ListServersHandler returns the user's verified links.
func (a *LinkAPI) ListServersHandler(c echo.Context) error {
	servers, err := a.servers.ListLinked(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, servers)
}

// ListAllServersHandler returns every verified link.
func (a *LinkAPI) ListAllServersHandler(c echo.Context) error {
	servers, err := a.servers.ListAllLinked(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, servers)
}

// UnlinkHandler removes a verified link.
func (a *LinkAPI) UnlinkHandler(c echo.Context) error {
	if err := a.servers.Unlink(c.Request().Context(), c.Param("user_id"), c.Param("server_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// StatusHandler returns the live detail and resource usage of a linked
// server.
func (a *LinkAPI) StatusHandler(c echo.Context) error {
	status, err := a.servers.Status(c.Request().Context(), c.Param("user_id"), c.Param("server_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// HistoryHandler returns the retained telemetry samples of a linked server.
func (a *LinkAPI) HistoryHandler(c echo.Context) error {
	samples, err := a.servers.History(c.Request().Context(), c.Param("user_id"), c.Param("server_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, samples)
}

type powerRequest struct {
	Signal string `json:"signal"`
}

// PowerHandler sends a power signal to a linked server.
func (a *LinkAPI) PowerHandler(c echo.Context) error {
	var req powerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	signal := domain.PowerSignal(req.Signal)
	if !domain.ValidPowerSignal(signal) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "signal must be one of start, stop, restart, kill"})
	}

	if err := a.servers.Power(c.Request().Context(), c.Param("user_id"), c.Param("server_id"), signal); err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"signal": req.Signal})
}

type setCredentialRequest struct {
	PanelURL string `json:"panel_url"`
	APIKey   string `json:"api_key"`
}

// SetCredentialHandler validates and stores a panel credential.
func (a *LinkAPI) SetCredentialHandler(c echo.Context) error {
	var req setCredentialRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}

	if err := a.credentials.SetCredential(c.Request().Context(), c.Param("user_id"), req.PanelURL, req.APIKey); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// RemoveCredentialHandler deletes the stored panel credential.
func (a *LinkAPI) RemoveCredentialHandler(c echo.Context) error {
	if err := a.credentials.RemoveCredential(c.Request().Context(), c.Param("user_id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ListPanelServersHandler lists the servers the user's credential can see on
// the panel, for picking a server ID during linking.
func (a *LinkAPI) ListPanelServersHandler(c echo.Context) error {
	servers, err := a.credentials.ListPanelServers(c.Request().Context(), c.Param("user_id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, servers)
}

type subscribeRequest struct {
	ID         string `json:"id"`
	ChannelRef string `json:"channel_ref"`
	ServerID   string `json:"server_id"`
	UserID     string `json:"user_id"`
}

// SubscribeHandler registers a live status subscription. Ownership is
// checked up front; revocation later is handled by the updater itself.
func (a *LinkAPI) SubscribeHandler(c echo.Context) error {
	var req subscribeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
	}
	if req.ServerID == "" || req.UserID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "server_id and user_id are required"})
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	allowed, err := a.verification.HasServerPermission(c.Request().Context(), req.UserID, req.ServerID)
	if err != nil {
		return writeError(c, err)
	}
	if !allowed {
		return writeError(c, serrors.ErrPermissionDenied)
	}

	a.updater.Register(req.ID, req.ChannelRef, req.ServerID, req.UserID)
	return c.JSON(http.StatusCreated, map[string]string{"id": req.ID})
}

// UnsubscribeHandler removes a status subscription. Idempotent.
func (a *LinkAPI) UnsubscribeHandler(c echo.Context) error {
	a.updater.Unregister(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}
