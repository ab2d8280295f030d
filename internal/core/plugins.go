package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"mailbot/internal/config"
	"mailbot/internal/kit"
	"mailbot/internal/storage"
	logx "mailbot/pkg/logx"
)

// PluginDeps is everything the host hands a plugin at Init time.
type PluginDeps struct {
	Logger  logx.Logger
	Adapter kit.Adapter

	// Config is the plugin's raw config block from the config file.
	Config json.RawMessage

	Services *Services
	Store    storage.Store // nil when storage is disabled

	OwnerUserIDs []int64
	// LogChat is the chat receiving log and alert mirrors. Zero ChatID means
	// no mirror chat is configured.
	LogChat kit.ChatTarget
}

type Plugin interface {
	Name() string
	Init(ctx context.Context, deps PluginDeps) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error

	Commands() []Command
	Tools() []Tool
}

// ConfigReloader is implemented by plugins that want hot-reload. The raw
// block is the plugin's section of the freshly committed config.
type ConfigReloader interface {
	OnConfigUpdate(ctx context.Context, raw json.RawMessage) error
}

// DecodePluginConfig strictly decodes a plugin config block. Unknown fields
// are an error so typos surface at load time instead of silently defaulting.
func DecodePluginConfig[T any](raw json.RawMessage) (*T, error) {
	var out T
	if len(raw) == 0 {
		return &out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if err == nil {
			return nil, fmt.Errorf("plugin config: trailing data")
		}
		return nil, err
	}
	return &out, nil
}

type pluginEntry struct {
	plugin  Plugin
	started bool
}

type PluginManager struct {
	log     logx.Logger
	entries []pluginEntry
}

func NewPluginManager(log logx.Logger) *PluginManager {
	return &PluginManager{log: log}
}

func (pm *PluginManager) Register(p Plugin) error {
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return fmt.Errorf("plugin has no name")
	}
	for _, e := range pm.entries {
		if e.plugin.Name() == name {
			return fmt.Errorf("plugin %q already registered", name)
		}
	}
	pm.entries = append(pm.entries, pluginEntry{plugin: p})
	return nil
}

// StartAll initializes and starts every enabled plugin in registration
// order. Plugins missing from the config, or marked disabled, are skipped.
func (pm *PluginManager) StartAll(ctx context.Context, cfg *config.Config, base PluginDeps) error {
	for i := range pm.entries {
		e := &pm.entries[i]
		name := e.plugin.Name()

		raw, enabled := pluginBlock(cfg, name)
		if !enabled {
			pm.log.Info("plugin disabled", logx.String("plugin", name))
			continue
		}

		deps := base
		deps.Config = raw
		deps.Logger = base.Logger.With(logx.String("plugin", name))

		if err := e.plugin.Init(ctx, deps); err != nil {
			return fmt.Errorf("init plugin %s: %w", name, err)
		}
		if err := e.plugin.Start(ctx); err != nil {
			return fmt.Errorf("start plugin %s: %w", name, err)
		}
		e.started = true
		pm.log.Info("plugin started", logx.String("plugin", name))
	}
	return nil
}

// StopAll stops started plugins in reverse registration order. Errors are
// logged, not returned; shutdown keeps going.
func (pm *PluginManager) StopAll(ctx context.Context) {
	for i := len(pm.entries) - 1; i >= 0; i-- {
		e := &pm.entries[i]
		if !e.started {
			continue
		}
		e.started = false
		if err := e.plugin.Stop(ctx); err != nil {
			pm.log.Warn("plugin stop failed",
				logx.String("plugin", e.plugin.Name()), logx.Err(err))
		}
	}
}

// Commands aggregates commands from started plugins, stamping PluginName.
func (pm *PluginManager) Commands() []Command {
	var out []Command
	for _, e := range pm.entries {
		if !e.started {
			continue
		}
		for _, c := range e.plugin.Commands() {
			c.PluginName = e.plugin.Name()
			out = append(out, c)
		}
	}
	return out
}

// RegisterTools registers all plugin tools into the registry.
func (pm *PluginManager) RegisterTools(reg *ToolRegistry) error {
	for _, e := range pm.entries {
		if !e.started {
			continue
		}
		for _, t := range e.plugin.Tools() {
			if err := reg.Register(t); err != nil {
				return fmt.Errorf("plugin %s: %w", e.plugin.Name(), err)
			}
		}
	}
	return nil
}

// OnConfigUpdate fans a committed config out to started plugins that
// implement ConfigReloader. Enable/disable flips require a restart.
func (pm *PluginManager) OnConfigUpdate(ctx context.Context, cfg *config.Config) {
	for _, e := range pm.entries {
		if !e.started {
			continue
		}
		r, ok := e.plugin.(ConfigReloader)
		if !ok {
			continue
		}
		raw, enabled := pluginBlock(cfg, e.plugin.Name())
		if !enabled {
			pm.log.Warn("plugin disabled in new config; restart required to unload",
				logx.String("plugin", e.plugin.Name()))
			continue
		}
		if err := r.OnConfigUpdate(ctx, raw); err != nil {
			pm.log.Warn("plugin config update rejected",
				logx.String("plugin", e.plugin.Name()), logx.Err(err))
		}
	}
}

func pluginBlock(cfg *config.Config, name string) (json.RawMessage, bool) {
	if cfg == nil {
		return nil, false
	}
	pc, ok := cfg.Plugins[name]
	if !ok {
		return nil, false
	}
	return pc.Config, pc.Enabled
}
