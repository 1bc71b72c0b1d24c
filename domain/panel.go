package domain

import "context"

// PowerSignal is a power-control action accepted by the panel API.
type PowerSignal string

const (
	PowerSignalStart   PowerSignal = "start"
	PowerSignalStop    PowerSignal = "stop"
	PowerSignalRestart PowerSignal = "restart"
	PowerSignalKill    PowerSignal = "kill"
)

// ValidPowerSignal reports whether s is one of the four accepted signals.
func ValidPowerSignal(s PowerSignal) bool {
	switch s {
	case PowerSignalStart, PowerSignalStop, PowerSignalRestart, PowerSignalKill:
		return true
	}
	return false
}

// PanelServer is one server visible to an API key, as returned by the
// panel's list endpoint.
type PanelServer struct {
	ID          string `json:"id"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Role        string `json:"role"` // "owner" or "user"
}

// ServerDetails is the panel's per-server detail view.
type ServerDetails struct {
	Identifier  string `json:"identifier"`
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Node        string `json:"node,omitempty"`
}

// ResourceUsage is the panel's live resource snapshot for a server.
type ResourceUsage struct {
	CurrentState string  `json:"current_state"`
	CPUPercent   float64 `json:"cpu_percent"`
	MemoryBytes  int64   `json:"memory_bytes"`
	DiskBytes    int64   `json:"disk_bytes"`
	UptimeMS     int64   `json:"uptime_ms"`
}

// PanelAPI is the consumed surface of the remote panel. Every call is a
// fallible network dependency; implementations wrap transport and upstream
// failures in ErrUpstreamUnavailable.
type PanelAPI interface {
	ListServers(ctx context.Context) ([]PanelServer, error)
	GetServerDetails(ctx context.Context, serverID string) (*ServerDetails, error)
	GetServerResources(ctx context.Context, serverID string) (*ResourceUsage, error)
	SendPowerSignal(ctx context.Context, serverID string, signal PowerSignal) error
	GetFileContents(ctx context.Context, serverID, path string) (string, error)
}
