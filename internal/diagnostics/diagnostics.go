// Package diagnostics gathers host and per-port health information in the
// same {Phase, Success, Data} shape this codebase's startup diagnostics
// already use, so it can be surfaced verbatim on a status endpoint or in a
// terminal dashboard.
package diagnostics

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"openrdm/internal/port"
)

// Result is one diagnostics snapshot.
type Result struct {
	Phase     string        `json:"phase"`
	Timestamp time.Time     `json:"timestamp"`
	Success   bool          `json:"success"`
	Host      HostInfo      `json:"host"`
	Ports     []PortSummary `json:"ports"`
	Errors    []string      `json:"errors,omitempty"`
}

// HostInfo is the subset of host/CPU/memory info worth surfacing for a
// process driving USB hardware: nothing ASIC-specific, just "is this box
// keeping up".
type HostInfo struct {
	OS             string  `json:"os"`
	Platform       string  `json:"platform"`
	KernelVersion  string  `json:"kernel_version"`
	UptimeSeconds  uint64  `json:"uptime_seconds"`
	CPUPercent     float64 `json:"cpu_percent"`
	MemUsedPercent float64 `json:"mem_used_percent"`
}

// PortSummary is one port's widget state plus a frames-per-second estimate
// derived from the delta between this and the previous sample.
type PortSummary struct {
	Descriptor       string  `json:"descriptor"`
	Initialized      bool    `json:"initialized"`
	TODSize          int     `json:"tod_size"`
	LostSize         int     `json:"lost_size"`
	ProxiesSize      int     `json:"proxies_size"`
	DiscoveryRunning bool    `json:"discovery_running"`
	FramesWritten    uint64  `json:"frames_written"`
	FPSEstimate      float64 `json:"fps_estimate"`
	LastFrameAgeMS   int64   `json:"last_frame_age_ms"`
	LastDiscoveryMS  int64   `json:"last_discovery_ms"`
}

type sample struct {
	frames uint64
	at     time.Time
}

// Sampler accumulates enough history between calls to Snapshot to turn a
// running frame counter into an FPS estimate. A single Sampler should be
// reused across calls for the same set of ports.
type Sampler struct {
	mu   sync.Mutex
	prev map[string]sample
}

// NewSampler returns a ready-to-use Sampler.
func NewSampler() *Sampler {
	return &Sampler{prev: make(map[string]sample)}
}

// Snapshot gathers host info and, for each port, its widget state and an
// FPS estimate relative to the previous Snapshot call on this Sampler.
func (s *Sampler) Snapshot(ports []*port.Port) Result {
	now := time.Now()
	result := Result{
		Phase:     "runtime_status",
		Timestamp: now,
		Success:   true,
	}

	hostInfo, errs := gatherHost()
	result.Host = hostInfo
	result.Errors = append(result.Errors, errs...)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range ports {
		state := p.WidgetState()
		stats := p.WidgetStats()

		summary := PortSummary{
			Descriptor:       p.Descriptor(),
			Initialized:      state.Initialized,
			TODSize:          state.TOD.Len(),
			LostSize:         state.Lost.Len(),
			ProxiesSize:      state.Proxies.Len(),
			DiscoveryRunning: state.DiscoveryRun,
			FramesWritten:    stats.FramesWritten,
			LastDiscoveryMS:  stats.LastDiscoveryTook.Milliseconds(),
		}
		if !stats.LastFrameAt.IsZero() {
			summary.LastFrameAgeMS = now.Sub(stats.LastFrameAt).Milliseconds()
		}

		if prev, ok := s.prev[summary.Descriptor]; ok && stats.FramesWritten >= prev.frames {
			elapsed := now.Sub(prev.at).Seconds()
			if elapsed > 0 {
				summary.FPSEstimate = float64(stats.FramesWritten-prev.frames) / elapsed
			}
		}
		s.prev[summary.Descriptor] = sample{frames: stats.FramesWritten, at: now}

		result.Ports = append(result.Ports, summary)
	}

	if len(result.Errors) > 0 {
		result.Success = false
	}
	return result
}

func gatherHost() (HostInfo, []string) {
	var info HostInfo
	var errs []string

	if hi, err := host.Info(); err == nil {
		info.OS = hi.OS
		info.Platform = hi.Platform
		info.KernelVersion = hi.KernelVersion
		info.UptimeSeconds = hi.Uptime
	} else {
		errs = append(errs, "host info: "+err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if pcts, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pcts) > 0 {
		info.CPUPercent = pcts[0]
	} else if err != nil {
		errs = append(errs, "cpu percent: "+err.Error())
	}

	if vm, err := mem.VirtualMemory(); err == nil {
		info.MemUsedPercent = vm.UsedPercent
	} else {
		errs = append(errs, "mem info: "+err.Error())
	}

	return info, errs
}
