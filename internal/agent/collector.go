// Package agent implements the node-side reporter: it samples local OS
// metrics and posts them to the fleet server on an interval.
package agent

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
	psnet "github.com/shirou/gopsutil/v4/net"

	"github.com/wanghui5801/fleetmon/internal/models"
)

const gib = 1024 * 1024 * 1024

// Collector samples local system metrics. Every probe is best-effort:
// a failing source yields zero or sentinel values instead of an error,
// because a partially blind agent is still worth hearing from.
type Collector struct {
	name     string
	location string
	client   *http.Client

	// probed once, stable for the process lifetime
	cachedLocation string
	cachedCPUInfo  string
	cachedType     string
}

func NewCollector(name, location string) *Collector {
	if name == "" {
		if hn, err := os.Hostname(); err == nil {
			name = hn
		} else {
			name = "unknown-node"
		}
	}
	return &Collector{
		name:     name,
		location: location,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// Name is the display name this agent reports under.
func (c *Collector) Name() string { return c.name }

// Snapshot gathers one full update payload. It blocks for about a
// second to measure CPU load and network rates over a real window.
func (c *Collector) Snapshot(ctx context.Context) models.UpdateRequest {
	req := models.UpdateRequest{
		ID:   models.NodeID(c.name),
		Name: c.name,
	}

	netBefore := c.netTotals()
	if pct, err := cpu.PercentWithContext(ctx, time.Second, false); err == nil && len(pct) > 0 {
		req.CPU = pct[0]
	}
	netAfter := c.netTotals()
	// One-second window, so deltas are already rates.
	if netAfter.in >= netBefore.in {
		req.NetworkIn = float64(netAfter.in - netBefore.in)
	}
	if netAfter.out >= netBefore.out {
		req.NetworkOut = float64(netAfter.out - netBefore.out)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		req.Memory = vm.UsedPercent
		req.TotalMemory = float64(vm.Total) / gib
	}
	req.Disk, req.TotalDisk = c.diskUsage(ctx)

	if info, err := host.InfoWithContext(ctx); err == nil {
		req.Uptime = int64(info.Uptime)
		req.OSType = osDescriptor(info)
		req.Type = nodeType(info)
	}
	req.CPUInfo = c.cpuDescriptor(ctx)
	req.Location = c.resolveLocation(ctx)
	req.IPAddress = localIP()
	req.ApplyDefaults()
	return req
}

type netTotals struct{ in, out uint64 }

func (c *Collector) netTotals() netTotals {
	counters, err := psnet.IOCounters(false)
	if err != nil || len(counters) == 0 {
		return netTotals{}
	}
	return netTotals{in: counters[0].BytesRecv, out: counters[0].BytesSent}
}

// diskUsage aggregates every accessible partition into one figure, the
// way the dashboard expects it.
func (c *Collector) diskUsage(ctx context.Context) (percent, totalGiB float64) {
	parts, err := disk.PartitionsWithContext(ctx, false)
	if err != nil {
		return 0, 0
	}
	var total, used uint64
	for _, p := range parts {
		usage, err := disk.UsageWithContext(ctx, p.Mountpoint)
		if err != nil {
			continue
		}
		total += usage.Total
		used += usage.Used
	}
	if total == 0 {
		return 0, 0
	}
	return float64(used) / float64(total) * 100, float64(total) / gib
}

func (c *Collector) cpuDescriptor(ctx context.Context) string {
	if c.cachedCPUInfo != "" {
		return c.cachedCPUInfo
	}
	threads, _ := cpu.CountsWithContext(ctx, true)
	model := "CPU"
	if infos, err := cpu.InfoWithContext(ctx); err == nil && len(infos) > 0 && infos[0].ModelName != "" {
		model = infos[0].ModelName
	}
	c.cachedCPUInfo = model
	if threads > 0 {
		c.cachedCPUInfo = model + " (" + strconv.Itoa(threads) + " threads)"
	}
	return c.cachedCPUInfo
}

// resolveLocation returns the configured location, or looks the country
// code up once from the node's public IP.
func (c *Collector) resolveLocation(ctx context.Context) string {
	if c.location != "" {
		return c.location
	}
	if c.cachedLocation != "" {
		return c.cachedLocation
	}
	c.cachedLocation = lookupCountry(ctx, c.client)
	return c.cachedLocation
}

// geoEndpoint reports the node's public country code.
var geoEndpoint = "http://ip-api.com/json/"

func lookupCountry(ctx context.Context, client *http.Client) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, geoEndpoint, nil)
	if err != nil {
		return "UN"
	}
	resp, err := client.Do(req)
	if err != nil {
		return "UN"
	}
	defer resp.Body.Close()
	var body struct {
		Status      string `json:"status"`
		CountryCode string `json:"countryCode"`
	}
	if json.NewDecoder(resp.Body).Decode(&body) != nil || body.Status != "success" || body.CountryCode == "" {
		return "UN"
	}
	return body.CountryCode
}

// localIP finds the address the node would use for outbound traffic.
// No packets are sent; UDP dial just resolves the route.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer conn.Close()
	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

func osDescriptor(info *host.InfoStat) string {
	if info.Platform != "" {
		name := strings.ToUpper(info.Platform[:1]) + info.Platform[1:]
		if info.PlatformVersion != "" {
			return name + " " + info.PlatformVersion
		}
		return name
	}
	return info.OS
}

func nodeType(info *host.InfoStat) string {
	if info.VirtualizationSystem != "" && info.VirtualizationRole == "guest" {
		return "VPS"
	}
	return "Dedicated Server"
}
