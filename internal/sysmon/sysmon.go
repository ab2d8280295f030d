// Package sysmon exposes host-level metrics behind a small interface so the
// watchdogs can be tested against fakes.
package sysmon

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is one point-in-time reading of the host.
type Snapshot struct {
	MemPercent   float64
	MemTotal     uint64
	MemAvailable uint64
	CPUPercent   float64
	BootTime     time.Time
	Hostname     string
	OS           string
}

func (s Snapshot) MemUsedGB() float64  { return float64(s.MemTotal-s.MemAvailable) / (1 << 30) }
func (s Snapshot) MemTotalGB() float64 { return float64(s.MemTotal) / (1 << 30) }

// Uptime returns hours and minutes since boot, relative to now.
func (s Snapshot) Uptime(now time.Time) (hours, minutes int) {
	if s.BootTime.IsZero() || now.Before(s.BootTime) {
		return 0, 0
	}
	secs := int(now.Sub(s.BootTime) / time.Second)
	return secs / 3600, (secs % 3600) / 60
}

// HostMetrics reads current host utilization.
type HostMetrics interface {
	Read(ctx context.Context) (Snapshot, error)
}

type gopsutilMetrics struct{}

// New returns the gopsutil-backed HostMetrics implementation.
func New() HostMetrics { return gopsutilMetrics{} }

func (gopsutilMetrics) Read(ctx context.Context) (Snapshot, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("virtual memory: %w", err)
	}
	snap := Snapshot{
		MemPercent:   vm.UsedPercent,
		MemTotal:     vm.Total,
		MemAvailable: vm.Available,
	}

	// Instantaneous reading; gopsutil returns the usage since the previous
	// call when interval is zero, which is fine for alert payloads.
	if pct, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}
	if bt, err := host.BootTimeWithContext(ctx); err == nil {
		snap.BootTime = time.Unix(int64(bt), 0)
	}
	if hn, err := os.Hostname(); err == nil {
		snap.Hostname = hn
	}
	if info, err := host.InfoWithContext(ctx); err == nil {
		snap.OS = fmt.Sprintf("%s %s (%s)", info.Platform, info.PlatformVersion, info.KernelVersion)
	} else {
		snap.OS = runtime.GOOS
	}
	return snap, nil
}
