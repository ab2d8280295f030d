package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailbot/internal/adapters/telegram"
	"mailbot/internal/config"
	"mailbot/internal/kit"
	"mailbot/internal/runtime/supervisor"
	"mailbot/internal/services/scheduler"
	"mailbot/internal/storage"
	logx "mailbot/pkg/logx"
)

const stopStepTimeout = 10 * time.Second

// App assembles the host: config manager, logging service, chat adapter,
// scheduler, storage, command dispatch and the plugin manager.
type App struct {
	cfgm   *config.Manager
	logSvc *logx.Service
	log    logx.Logger

	adapter *telegram.Adapter
	sched   *scheduler.Service
	store   storage.Store
	serv    *Services
	cmds    *CommandManager
	plugins *PluginManager

	sup     *supervisor.Supervisor
	updates chan kit.Update
	cfgSub  chan *config.Config
}

func NewApp(configPath string) (*App, error) {
	cfgm := config.NewManager(configPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	// The adapter needs a logger and the Telegram log sink needs the
	// adapter, so the service starts without a sender and gets one below.
	logSvc, log := logx.New(logConfigFrom(cfg), nil)
	cfgm.SetLogger(log)
	cfgm.SetValidator(func(_ context.Context, c *config.Config) error {
		_, err := runtimeSettingsFrom(c)
		return err
	})

	rt, err := runtimeSettingsFrom(cfg)
	if err != nil {
		return nil, err
	}

	adapter, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: rt.pollTimeout,
	}, log.With(logx.String("component", "telegram")))
	if err != nil {
		return nil, fmt.Errorf("telegram adapter: %w", err)
	}
	logSvc.SetSender(adapter)
	logSvc.Apply(logConfigFrom(cfg))
	logSvc.SetTelegramTarget(rt.logChatID)

	sched := scheduler.New(rt.scheduler, log.With(logx.String("component", "scheduler")))

	store, err := storage.Open(rt.storage, log.With(logx.String("component", "storage")))
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	serv := &Services{
		Scheduler: sched,
		Store:     store,
		Tools:     NewToolRegistry(log.With(logx.String("component", "tools"))),
	}

	app := &App{
		cfgm:    cfgm,
		logSvc:  logSvc,
		log:     log,
		adapter: adapter,
		sched:   sched,
		store:   store,
		serv:    serv,
		plugins: NewPluginManager(log.With(logx.String("component", "plugins"))),
		updates: make(chan kit.Update, 256),
	}
	app.cmds = NewCommandManager(log, adapter, cfgm, serv, cfg.Telegram.OwnerUserIDs)
	return app, nil
}

func (a *App) Register(p Plugin) error { return a.plugins.Register(p) }

func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	rt, err := runtimeSettingsFrom(cfg)
	if err != nil {
		return err
	}

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	if err := a.adapter.Start(a.sup.Context(), a.updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	if a.sched.Enabled() {
		a.sched.Start(a.sup.Context())
	}

	deps := PluginDeps{
		Logger:       a.log,
		Adapter:      a.adapter,
		Services:     a.serv,
		Store:        a.store,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		LogChat:      kit.ChatTarget{ChatID: rt.logChatID},
	}
	if err := a.plugins.StartAll(ctx, cfg, deps); err != nil {
		return err
	}
	if err := a.plugins.RegisterTools(a.serv.Tools); err != nil {
		return err
	}
	a.cmds.SetRegistry(a.plugins.Commands())

	a.cfgSub = a.cfgm.Subscribe(1)

	a.sup.Go("dispatch", func(ctx context.Context) error {
		return a.cmds.DispatchLoop(ctx, a.updates)
	})
	a.sup.Go("config-watch", a.cfgm.Watch)
	a.sup.Go0("config-apply", a.reloadLoop)

	a.log.Info("host started")
	return nil
}

func (a *App) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cfg, ok := <-a.cfgSub:
			if !ok {
				return
			}
			a.applyConfig(ctx, cfg)
		}
	}
}

func (a *App) applyConfig(ctx context.Context, cfg *config.Config) {
	rt, err := runtimeSettingsFrom(cfg)
	if err != nil {
		// The validator should have caught this before publish.
		a.log.Warn("reload skipped", logx.Err(err))
		return
	}

	a.logSvc.Apply(logConfigFrom(cfg))
	a.logSvc.SetTelegramTarget(rt.logChatID)
	a.sched.Apply(rt.scheduler)
	a.cmds.SetOwners(cfg.Telegram.OwnerUserIDs)
	a.plugins.OnConfigUpdate(ctx, cfg)
	a.log.Info("config reloaded")
}

// Stop shuts components down in dependency order. Each step gets its own
// bounded deadline so one stuck component cannot wedge the whole shutdown.
func (a *App) Stop(ctx context.Context) {
	step := func(name string, fn func(ctx context.Context) error) {
		sctx, cancel := context.WithTimeout(ctx, stopStepTimeout)
		defer cancel()
		if err := fn(sctx); err != nil {
			a.log.Warn("shutdown step failed", logx.String("step", name), logx.Err(err))
		}
	}

	step("plugins", func(ctx context.Context) error {
		a.plugins.StopAll(ctx)
		return nil
	})
	step("adapter", a.adapter.Stop)
	step("scheduler", func(ctx context.Context) error {
		a.sched.Stop(ctx)
		return nil
	})
	if a.sup != nil {
		step("supervisor", a.sup.Stop)
	}
	if a.cfgSub != nil {
		a.cfgm.Unsubscribe(a.cfgSub)
		a.cfgSub = nil
	}
	if a.store != nil {
		step("storage", func(context.Context) error { return a.store.Close() })
	}
	_ = a.logSvc.Close()
}

// Wait blocks until all supervised goroutines exit.
func (a *App) Wait(ctx context.Context) error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Wait(ctx)
}

func (a *App) Logger() logx.Logger { return a.log }

// ---- config translation ----

// runtimeSettings is the parsed form of the config fields the host itself
// consumes. Parsing is centralized here so the reload validator and the
// constructors agree on what is acceptable.
type runtimeSettings struct {
	pollTimeout time.Duration
	logChatID   int64
	scheduler   scheduler.Config
	storage     storage.Config
}

func runtimeSettingsFrom(cfg *config.Config) (runtimeSettings, error) {
	var rt runtimeSettings
	var err error

	rt.pollTimeout, err = config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return rt, err
	}

	if s := strings.TrimSpace(cfg.Telegram.GroupLog); s != "" {
		rt.logChatID, err = strconv.ParseInt(s, 10, 64)
		if err != nil {
			return rt, fmt.Errorf("telegram.group_log: invalid chat id %q", s)
		}
	}

	defTimeout, err := config.ParseDurationField("scheduler.default_timeout", cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return rt, err
	}
	rt.scheduler = scheduler.Config{
		Enabled:        cfg.Scheduler.Enabled,
		Workers:        cfg.Scheduler.Workers,
		DefaultTimeout: defTimeout,
		Timezone:       cfg.Scheduler.Timezone,
	}

	if cfg.Storage != nil {
		busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
		if err != nil {
			return rt, err
		}
		rt.storage = storage.Config{
			Driver:      cfg.Storage.Driver,
			Path:        cfg.Storage.Path,
			BusyTimeout: busy,
		}
	}
	return rt, nil
}

func logConfigFrom(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}
