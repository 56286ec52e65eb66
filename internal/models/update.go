package models

// Sentinel values substituted for string fields an agent did not send.
// Agents are best-effort and uncontrolled, so partial telemetry is
// tolerated rather than rejected.
const (
	UnknownField = "Unknown"
	NAField      = "N/A"
)

// UpdateRequest is the ingestion payload. Every field except ID and
// Name is optional; absent numeric fields decode to zero and absent
// string fields are filled in by ApplyDefaults.
type UpdateRequest struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Location    string  `json:"location"`
	IPAddress   string  `json:"ip_address"`
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

// ApplyDefaults fills sentinel values into string fields the agent left
// empty.
func (r *UpdateRequest) ApplyDefaults() {
	if r.Type == "" {
		r.Type = UnknownField
	}
	if r.Location == "" {
		r.Location = NAField
	}
	if r.OSType == "" {
		r.OSType = UnknownField
	}
	if r.CPUInfo == "" {
		r.CPUInfo = NAField
	}
}

// MetricsView packs the telemetry fields of the request into a Metrics
// value for verbatim copy into the node record.
func (r *UpdateRequest) MetricsView() Metrics {
	return Metrics{
		Uptime:      r.Uptime,
		NetworkIn:   r.NetworkIn,
		NetworkOut:  r.NetworkOut,
		CPU:         r.CPU,
		Memory:      r.Memory,
		Disk:        r.Disk,
		OSType:      r.OSType,
		CPUInfo:     r.CPUInfo,
		TotalMemory: r.TotalMemory,
		TotalDisk:   r.TotalDisk,
	}
}
