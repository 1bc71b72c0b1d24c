// Package panel implements the consumer of the remote panel's client API:
// per-server detail and live resource usage, power control, the server list
// visible to an API key, and file contents for verification read-back.
package panel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pterolink/pterolink/domain"
	serrors "github.com/pterolink/pterolink/errors"
)

const defaultTimeout = 15 * time.Second

// Client talks to one panel with one API key. It is safe for concurrent use.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

var _ domain.PanelAPI = (*Client)(nil)

// NewClient builds a client for the given panel base URL and API key.
func NewClient(panelURL, apiKey string) *Client {
	return &Client{
		baseURL: strings.TrimRight(panelURL, "/") + "/api/client",
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
}

// upstream error body: {"errors": [{"detail": "..."}]}
type errorEnvelope struct {
	Errors []struct {
		Detail string `json:"detail"`
	} `json:"errors"`
}

type attributesEnvelope[T any] struct {
	Attributes T `json:"attributes"`
}

type listEnvelope[T any] struct {
	Data []attributesEnvelope[T] `json:"data"`
}

type serverAttributes struct {
	Identifier  string `json:"identifier"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Node        string `json:"node"`
	ServerOwner bool   `json:"server_owner"`
}

type resourceAttributes struct {
	CurrentState string  `json:"current_state"`
	CPUAbsolute  float64 `json:"cpu_absolute"`
	MemoryBytes  int64   `json:"memory_bytes"`
	DiskBytes    int64   `json:"disk_bytes"`
	Uptime       int64   `json:"uptime"`
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("panel: encoding request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("panel: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "Application/vnd.pterodactyl.v1+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", serrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return c.upstreamError(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", serrors.ErrUpstreamUnavailable, err)
	}
	return nil
}

// upstreamError surfaces the upstream-supplied detail string when present,
// else the generic message.
func (c *Client) upstreamError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	var env errorEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Errors) > 0 {
		return serrors.NewPanelError(resp.StatusCode, env.Errors[0].Detail)
	}
	return serrors.NewPanelError(resp.StatusCode, "")
}

// ListServers lists the servers visible to the API key, with ownership role.
func (c *Client) ListServers(ctx context.Context) ([]domain.PanelServer, error) {
	var env listEnvelope[serverAttributes]
	if err := c.do(ctx, http.MethodGet, "", nil, &env); err != nil {
		return nil, err
	}

	servers := make([]domain.PanelServer, 0, len(env.Data))
	for _, item := range env.Data {
		role := "user"
		if item.Attributes.ServerOwner {
			role = "owner"
		}
		servers = append(servers, domain.PanelServer{
			ID:          item.Attributes.Identifier,
			UUID:        item.Attributes.UUID,
			Name:        item.Attributes.Name,
			Description: item.Attributes.Description,
			Role:        role,
		})
	}
	return servers, nil
}

// FindServerByUUID resolves a server by its full UUID, case-insensitively.
func (c *Client) FindServerByUUID(ctx context.Context, serverUUID string) (*domain.PanelServer, error) {
	servers, err := c.ListServers(ctx)
	if err != nil {
		return nil, err
	}
	for i := range servers {
		if strings.EqualFold(servers[i].UUID, serverUUID) {
			return &servers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: server with uuid %q", serrors.ErrNotFound, serverUUID)
}

// GetServerDetails fetches the per-server detail view.
func (c *Client) GetServerDetails(ctx context.Context, serverID string) (*domain.ServerDetails, error) {
	var env attributesEnvelope[serverAttributes]
	if err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(serverID), nil, &env); err != nil {
		return nil, err
	}
	return &domain.ServerDetails{
		Identifier:  env.Attributes.Identifier,
		UUID:        env.Attributes.UUID,
		Name:        env.Attributes.Name,
		Description: env.Attributes.Description,
		Node:        env.Attributes.Node,
	}, nil
}

// GetServerResources fetches the live resource snapshot.
func (c *Client) GetServerResources(ctx context.Context, serverID string) (*domain.ResourceUsage, error) {
	var env attributesEnvelope[resourceAttributes]
	if err := c.do(ctx, http.MethodGet, "/servers/"+url.PathEscape(serverID)+"/resources", nil, &env); err != nil {
		return nil, err
	}
	return &domain.ResourceUsage{
		CurrentState: env.Attributes.CurrentState,
		CPUPercent:   env.Attributes.CPUAbsolute,
		MemoryBytes:  env.Attributes.MemoryBytes,
		DiskBytes:    env.Attributes.DiskBytes,
		UptimeMS:     env.Attributes.Uptime,
	}, nil
}

// SendPowerSignal issues a start/stop/restart/kill action.
func (c *Client) SendPowerSignal(ctx context.Context, serverID string, signal domain.PowerSignal) error {
	if !domain.ValidPowerSignal(signal) {
		return fmt.Errorf("panel: unknown power signal %q", signal)
	}
	payload := map[string]string{"signal": string(signal)}
	return c.do(ctx, http.MethodPost, "/servers/"+url.PathEscape(serverID)+"/power", payload, nil)
}

// GetFileContents reads a file from the server's filesystem through the
// panel. The response is the raw file body, not a JSON envelope.
func (c *Client) GetFileContents(ctx context.Context, serverID, path string) (string, error) {
	reqURL := c.baseURL + "/servers/" + url.PathEscape(serverID) + "/files/contents?file=" + url.QueryEscape(path)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return "", fmt.Errorf("panel: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "Application/vnd.pterodactyl.v1+json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", serrors.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", c.upstreamError(resp)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: reading file contents: %v", serrors.ErrUpstreamUnavailable, err)
	}
	return string(raw), nil
}
