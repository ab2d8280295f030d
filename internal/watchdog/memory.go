package watchdog

import (
	"context"
	"fmt"
	"time"

	"mailbot/internal/sysmon"
	logx "mailbot/pkg/logx"
)

// MemoryConfig configures the host memory threshold watchdog.
type MemoryConfig struct {
	Interval         time.Duration
	ThresholdPercent float64
	Cooldown         time.Duration
	Recipients       []string
}

// Memory fires an alert when host memory utilization crosses the threshold,
// at most once per cooldown window.
type Memory struct {
	cfg     MemoryConfig
	metrics sysmon.HostMetrics
	notify  Notifier
	log     logx.Logger

	lastAlert time.Time
	now       func() time.Time
}

func NewMemory(cfg MemoryConfig, metrics sysmon.HostMetrics, notify Notifier, log logx.Logger) *Memory {
	if cfg.ThresholdPercent <= 0 {
		cfg.ThresholdPercent = 80
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Memory{cfg: cfg, metrics: metrics, notify: notify, log: log, now: time.Now}
}

// Interval returns the effective polling interval.
func (w *Memory) Interval() time.Duration { return flooredInterval(w.cfg.Interval) }

// Cycle runs one evaluation. A returned error is logged by the caller and
// never stops the polling schedule.
func (w *Memory) Cycle(ctx context.Context) error {
	now := w.now()
	if cooldownActive(w.cfg.Cooldown, w.lastAlert, now) {
		return nil
	}

	snap, err := w.metrics.Read(ctx)
	if err != nil {
		return fmt.Errorf("read host metrics: %w", err)
	}
	if snap.MemPercent < w.cfg.ThresholdPercent {
		return nil
	}

	hours, minutes := snap.Uptime(now)
	alert := Alert{
		Kind: KindMemoryThreshold,
		Subject: fmt.Sprintf("[alert] server memory usage %.0f%% exceeds threshold %.0f%%",
			snap.MemPercent, w.cfg.ThresholdPercent),
		Payload: map[string]any{
			"Now":           now.Format("2006-01-02 15:04:05"),
			"Hostname":      snap.Hostname,
			"OS":            snap.OS,
			"CPUPercent":    snap.CPUPercent,
			"MemUsedGB":     snap.MemUsedGB(),
			"MemTotalGB":    snap.MemTotalGB(),
			"MemPercent":    snap.MemPercent,
			"UptimeHours":   hours,
			"UptimeMinutes": minutes,
		},
		Recipients: w.cfg.Recipients,
	}

	outcome := w.notify.Notify(ctx, alert)
	w.log.Info("memory alert dispatched",
		logx.Float64("mem_percent", snap.MemPercent),
		logx.String("outcome", outcome))

	// The cooldown anchors on the firing, not on delivery success: a failed
	// send waits out the same window before the next attempt.
	w.lastAlert = now
	return nil
}
