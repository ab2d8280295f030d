package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"mailbot/internal/napcat"
	logx "mailbot/pkg/logx"
)

// Status is the liveness watchdog's view of the gateway.
type Status int

const (
	StatusUnknown Status = iota
	StatusOnline
	StatusOffline
)

func (s Status) String() string {
	switch s {
	case StatusOnline:
		return "online"
	case StatusOffline:
		return "offline"
	default:
		return "unknown"
	}
}

// Gateway is the remote collaborator the watchdog polls. *napcat.Client
// implements it.
type Gateway interface {
	Login(ctx context.Context) (string, error)
	Status(ctx context.Context, credential string) (bool, error)
	ConfiguredCredential() string
	HasToken() bool
	BaseURL() string
}

// LivenessConfig configures the gateway liveness watchdog.
type LivenessConfig struct {
	Interval         time.Duration
	Cooldown         time.Duration
	FailureThreshold int
	Recipients       []string
	UIN              string
}

// Liveness polls the gateway status endpoint and maintains a debounced
// online/offline state machine. Only a verified Online→Offline edge fires an
// alert; transient failures must repeat FailureThreshold times in a row
// before the target is provisionally treated as offline.
type Liveness struct {
	cfg     LivenessConfig
	gateway Gateway
	notify  Notifier
	log     logx.Logger

	// mu guards the state fields: the polling cycle writes them, the
	// on-demand status command reads them as a consistent snapshot. The
	// lock is never held across notifier I/O.
	mu          sync.Mutex
	state       Status
	failCount   int
	lastAlert   time.Time
	lastChecked time.Time
	credential  string

	now func() time.Time
}

func NewLiveness(cfg LivenessConfig, gateway Gateway, notify Notifier, log logx.Logger) *Liveness {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 2
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Liveness{
		cfg:        cfg,
		gateway:    gateway,
		notify:     notify,
		log:        log,
		credential: gateway.ConfiguredCredential(),
		now:        time.Now,
	}
}

// Interval returns the effective polling interval.
func (w *Liveness) Interval() time.Duration { return flooredInterval(w.cfg.Interval) }

// Snapshot returns the last known status together with its check time, read
// as one consistent pair.
func (w *Liveness) Snapshot() (Status, time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.lastChecked
}

// Cycle runs one poll. Fetch, parse and login failures are absorbed into the
// failure debounce; only cancellation or a missing configuration is
// surfaced, and the schedule keeps running either way.
func (w *Liveness) Cycle(ctx context.Context) error {
	// Step 1: credential acquisition. A login failure counts into the same
	// debounce as a status failure.
	w.mu.Lock()
	cred := w.credential
	w.mu.Unlock()

	if cred == "" {
		if !w.gateway.HasToken() {
			return errors.New("liveness: neither credential nor token configured")
		}
		c, err := w.gateway.Login(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			w.log.Warn("gateway login failed", logx.Err(err))
			w.recordFailure(ctx, "login failures reached threshold")
			return nil
		}
		cred = c
		w.mu.Lock()
		w.credential = cred
		w.mu.Unlock()
	}

	// Steps 2-4: status fetch. Transport failure additionally drops the
	// cached credential so the next cycle re-authenticates; a parse failure
	// keeps it (the session itself is fine).
	online, err := w.gateway.Status(ctx, cred)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.log.Warn("gateway status fetch failed", logx.Err(err))
		if !errors.Is(err, napcat.ErrParse) {
			w.mu.Lock()
			w.credential = ""
			w.mu.Unlock()
		}
		w.recordFailure(ctx, "status failures reached threshold")
		return nil
	}

	// Step 5: successful, parseable reading. The counter resets, and only
	// the verified Online→Offline edge may alert.
	now := w.now()
	w.mu.Lock()
	w.lastChecked = now
	w.failCount = 0
	fire := w.state == StatusOnline && !online && !cooldownActive(w.cfg.Cooldown, w.lastAlert, now)
	if fire {
		w.lastAlert = now
	}
	if online {
		w.state = StatusOnline
	} else {
		w.state = StatusOffline
	}
	w.mu.Unlock()

	if fire {
		w.sendOfflineAlert(ctx, now)
	}
	return nil
}

// recordFailure increments the consecutive-failure counter and, once the
// threshold is reached, performs the candidate-offline transition: alert
// only when the prior verified state was Online and the cooldown has
// elapsed, but flip the tracked state to Offline either way. State tracking
// and alert throttling are independent.
func (w *Liveness) recordFailure(ctx context.Context, reason string) {
	now := w.now()

	w.mu.Lock()
	w.failCount++
	if w.failCount < w.cfg.FailureThreshold {
		w.mu.Unlock()
		return
	}
	w.lastChecked = now
	fire := w.state == StatusOnline && !cooldownActive(w.cfg.Cooldown, w.lastAlert, now)
	if fire {
		w.lastAlert = now
	}
	w.state = StatusOffline
	failures := w.failCount
	w.mu.Unlock()

	w.log.Warn("gateway provisionally offline",
		logx.String("reason", reason),
		logx.Int("consecutive_failures", failures))
	if fire {
		w.sendOfflineAlert(ctx, now)
	}
}

func (w *Liveness) sendOfflineAlert(ctx context.Context, now time.Time) {
	alert := Alert{
		Kind:    KindGatewayOffline,
		Subject: "[alert] Napcat gateway offline",
		Payload: map[string]any{
			"Now":     now.Format("2006-01-02 15:04:05"),
			"BaseURL": w.gateway.BaseURL(),
			"UIN":     orDash(w.cfg.UIN),
			"Status":  "offline",
		},
		Recipients: w.cfg.Recipients,
	}
	outcome := w.notify.Notify(ctx, alert)
	w.log.Info("offline alert dispatched", logx.String("outcome", outcome))
}

// QueryNow performs one inline credential+status fetch for the on-demand
// status command. It never touches the polling loop's counters, cached
// credential or state: a manual query is advisory only.
func (w *Liveness) QueryNow(ctx context.Context) (bool, error) {
	cred := w.gateway.ConfiguredCredential()
	if cred == "" {
		if !w.gateway.HasToken() {
			return false, errors.New("no credential available: configure token or credential")
		}
		c, err := w.gateway.Login(ctx)
		if err != nil {
			return false, fmt.Errorf("could not obtain credential: %w", err)
		}
		cred = c
	}
	online, err := w.gateway.Status(ctx, cred)
	if err != nil {
		return false, fmt.Errorf("could not fetch status: %w", err)
	}
	return online, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
