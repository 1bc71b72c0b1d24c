package domain

import "time"

// ResourceSample is one polled snapshot of a server's resource usage.
// Per-server history is a bounded ordered sequence: samples are appended in
// timestamp order and the oldest entries are dropped past the cap.
type ResourceSample struct {
	ServerID    string    `bson:"server_id" json:"server_id"`
	CPUPercent  float64   `bson:"cpu_percent" json:"cpu_percent"`
	MemoryBytes int64     `bson:"memory_bytes" json:"memory_bytes"`
	DiskBytes   int64     `bson:"disk_bytes" json:"disk_bytes"`
	UptimeMS    int64     `bson:"uptime_ms" json:"uptime_ms"`
	State       string    `bson:"state" json:"state"`
	Timestamp   time.Time `bson:"timestamp" json:"timestamp"`
}

// TelemetryHistoryCap is the maximum number of samples retained per server.
const TelemetryHistoryCap = 100
