package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"mailbot/internal/core"
	"mailbot/internal/mail"
	"mailbot/internal/napcat"
	"mailbot/internal/sysmon"
	"mailbot/internal/watchdog"
	logx "mailbot/pkg/logx"
)

const (
	schedMemory  = "mailer:memory-watchdog"
	schedNapcat  = "mailer:napcat-watchdog"
	schedDigest  = "mailer:daily-digest"
	cycleTimeout = time.Minute
)

type Plugin struct {
	mu sync.Mutex

	log  logx.Logger
	deps core.PluginDeps
	cfg  *Config

	sender   *mail.Sender
	renderer *mail.Renderer
	sink     *alertSink
	metrics  sysmon.HostMetrics

	memory   *watchdog.Memory
	liveness *watchdog.Liveness

	started bool
}

func New() *Plugin { return &Plugin{metrics: sysmon.New()} }

func (p *Plugin) Name() string { return "mailer" }

func (p *Plugin) Init(_ context.Context, deps core.PluginDeps) error {
	cfg, err := core.DecodePluginConfig[Config](deps.Config)
	if err != nil {
		return fmt.Errorf("mailer config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.log = deps.Logger
	p.deps = deps
	return p.configureLocked(cfg)
}

// configureLocked rebuilds the sender, renderer, sink and watchdogs from
// cfg. Called at Init and again on hot-reload.
func (p *Plugin) configureLocked(cfg *Config) error {
	senderCfg, err := cfg.senderConfig()
	if err != nil {
		return err
	}
	memCfg, err := cfg.memoryConfig()
	if err != nil {
		return err
	}
	liveCfg, err := cfg.livenessConfig()
	if err != nil {
		return err
	}

	p.cfg = cfg
	p.sender = mail.NewSender(senderCfg, nil, p.log.With(logx.String("component", "sender")))
	p.renderer = mail.NewRenderer(cfg.TemplateDir)
	p.sink = &alertSink{
		sender:   p.sender,
		renderer: p.renderer,
		store:    p.deps.Store,
		adapter:  p.deps.Adapter,
		logChat:  p.deps.LogChat,
		log:      p.log.With(logx.String("component", "alerts")),
	}

	p.memory = nil
	if cfg.Memory.Enabled {
		p.memory = watchdog.NewMemory(memCfg, p.metrics, p.sink,
			p.log.With(logx.String("watchdog", "memory")))
	}
	p.liveness = nil
	if cfg.Napcat.Enabled {
		gw := napcat.NewClient(cfg.napcatConfig())
		p.liveness = watchdog.NewLiveness(liveCfg, gw, p.sink,
			p.log.With(logx.String("watchdog", "napcat")))
	}
	return nil
}

func (p *Plugin) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = true
	return p.scheduleLocked()
}

// scheduleLocked registers (or re-registers) the watchdog cycles and the
// digest with the trigger service. Add calls upsert by name, so reload is
// just calling this again; stale entries are removed explicitly.
func (p *Plugin) scheduleLocked() error {
	sched := p.deps.Services.Scheduler
	if !sched.Enabled() {
		if p.memory != nil || p.liveness != nil || p.cfg.Digest.Enabled {
			return fmt.Errorf("watchdogs configured but the scheduler is disabled")
		}
		return nil
	}

	if p.memory != nil {
		w := p.memory
		if _, err := sched.AddInterval(schedMemory, w.Interval(), cycleTimeout, w.Cycle); err != nil {
			return err
		}
	} else {
		sched.Remove(schedMemory)
	}

	if p.liveness != nil {
		w := p.liveness
		if _, err := sched.AddInterval(schedNapcat, w.Interval(), cycleTimeout, w.Cycle); err != nil {
			return err
		}
	} else {
		sched.Remove(schedNapcat)
	}

	if p.cfg.Digest.Enabled {
		var err error
		if spec := p.cfg.Digest.Schedule; spec != "" {
			_, err = sched.AddSchedule(schedDigest, spec, cycleTimeout, p.runDigest)
		} else {
			_, err = sched.AddDaily(schedDigest, "08:00", cycleTimeout, p.runDigest)
		}
		if err != nil {
			return fmt.Errorf("digest schedule: %w", err)
		}
	} else {
		sched.Remove(schedDigest)
	}
	return nil
}

func (p *Plugin) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	sched := p.deps.Services.Scheduler
	sched.Remove(schedMemory)
	sched.Remove(schedNapcat)
	sched.Remove(schedDigest)
	return nil
}

// OnConfigUpdate applies a hot-reloaded plugin config: components are
// rebuilt and the schedules re-registered in place.
func (p *Plugin) OnConfigUpdate(_ context.Context, raw json.RawMessage) error {
	cfg, err := core.DecodePluginConfig[Config](raw)
	if err != nil {
		return err
	}
	if err := cfg.validate(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.configureLocked(cfg); err != nil {
		return err
	}
	if !p.started {
		return nil
	}
	if err := p.scheduleLocked(); err != nil {
		return err
	}
	p.log.Info("mailer config applied")
	return nil
}

// snapshot returns the collaborators a command or tool handler needs,
// read consistently. Handlers must not hold p.mu across I/O.
func (p *Plugin) snapshot() (*mail.Sender, *watchdog.Liveness, *Config) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender, p.liveness, p.cfg
}
