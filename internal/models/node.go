// Package models defines the core domain objects shared between the
// registry, storage, API, and agent layers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Status is the liveness state of a node.
type Status string

const (
	StatusRunning     Status = "running"
	StatusStopped     Status = "stopped"
	StatusMaintenance Status = "maintenance"
)

// Valid reports whether s is one of the three known states.
func (s Status) Valid() bool {
	switch s {
	case StatusRunning, StatusStopped, StatusMaintenance:
		return true
	}
	return false
}

// Metrics is the telemetry payload reported by an agent. The registry
// treats it as opaque: values are copied verbatim into the node record
// and never interpreted.
type Metrics struct {
	Uptime      int64   `json:"uptime"`
	NetworkIn   float64 `json:"network_in"`
	NetworkOut  float64 `json:"network_out"`
	CPU         float64 `json:"cpu"`
	Memory      float64 `json:"memory"`
	Disk        float64 `json:"disk"`
	OSType      string  `json:"os_type"`
	CPUInfo     string  `json:"cpu_info"`
	TotalMemory float64 `json:"total_memory"`
	TotalDisk   float64 `json:"total_disk"`
}

// Node is a single fleet member tracked by the registry.
//
// Pinned marks an operator-imposed maintenance hold: a node whose
// maintenance state was set explicitly by an operator stays in
// maintenance no matter what agents report. A freshly admitted node is
// also in maintenance but unpinned, so its first accepted update
// promotes it to running.
type Node struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Type      string `json:"type"`
	Location  string `json:"location"`
	IPAddress string `json:"ip_address"`
	Status    Status `json:"status"`
	Metrics
	OrderIndex int       `json:"order_index"`
	Pinned     bool      `json:"pinned"`
	FirstSeen  time.Time `json:"first_seen"`
	LastUpdate time.Time `json:"last_update"`
}

// AllowedClient is an admission-list entry. Only names on the list may
// feed updates into the registry when admission is enforced.
type AllowedClient struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// StatusChange is the fanout event emitted for every status transition
// applied to the registry, carrying a full snapshot of the record after
// the transition.
type StatusChange struct {
	NodeID    string    `json:"node_id"`
	OldStatus Status    `json:"old_status"`
	NewStatus Status    `json:"new_status"`
	Node      Node      `json:"node"`
	Time      time.Time `json:"time"`
}

// nodeNamespace seeds deterministic node IDs. Changing it would orphan
// every existing record, so it is fixed forever.
var nodeNamespace = uuid.MustParse("9f2c1050-6a4b-4d92-a5b3-0f7c3f1f8e21")

// NodeID derives the stable node ID for a display name. The same name
// always maps to the same ID, which is what keeps one record per node
// across agent restarts.
func NodeID(name string) string {
	return uuid.NewSHA1(nodeNamespace, []byte(name)).String()
}
