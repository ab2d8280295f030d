// Package watchdog holds the two polling monitors: a host memory threshold
// check and a debounced liveness state machine for the Napcat gateway. Both
// expose a single Cycle method driven by an external trigger (the scheduler)
// and throttle their own alerts with timestamp-based cooldowns.
package watchdog

import (
	"context"
	"time"
)

type AlertKind string

const (
	KindMemoryThreshold AlertKind = "memory_threshold"
	KindGatewayOffline  AlertKind = "gateway_offline"
)

// Alert is one alert-worthy event, built per firing and handed straight to
// the notifier; it is not retained.
type Alert struct {
	Kind       AlertKind
	Subject    string
	Payload    map[string]any
	Recipients []string
}

// Notifier delivers an alert and returns a human-readable outcome. The
// watchdogs treat the outcome as informational only: delivery failure never
// changes cooldown or state bookkeeping.
type Notifier interface {
	Notify(ctx context.Context, a Alert) string
}

// minInterval is the floor applied to configured polling intervals so a
// misconfigured zero or tiny value cannot hot-loop.
const minInterval = 5 * time.Second

func flooredInterval(d time.Duration) time.Duration {
	if d < minInterval {
		return minInterval
	}
	return d
}

func cooldownActive(cooldown time.Duration, lastAlert, now time.Time) bool {
	return cooldown > 0 && !lastAlert.IsZero() && now.Sub(lastAlert) < cooldown
}
