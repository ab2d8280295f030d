// Package core is the plugin host: it wires configuration, logging, the
// chat adapter, the scheduler and storage together, dispatches message
// commands, and exposes an LLM tool registry to plugins.
package core

import (
	"context"
	"time"

	"mailbot/internal/config"
	"mailbot/internal/kit"
	"mailbot/internal/services/scheduler"
	"mailbot/internal/storage"
	logx "mailbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type HandlerFunc func(ctx context.Context, req *Request) error

type Command struct {
	// Route is a space-separated command path, e.g. "napcat" or
	// "mail history".
	Route       string
	Aliases     []string // single-token shortcuts, matched case-insensitively
	Description string
	Usage       string
	Access      Access

	PluginName string
	Timeout    time.Duration // optional per-command override
	Handle     HandlerFunc
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string

	Adapter      kit.Adapter
	Config       *config.Config
	Logger       logx.Logger
	Services     *Services
	OwnerUserIDs []int64
}

// Services groups the host facilities handed to plugins and command
// handlers.
type Services struct {
	Scheduler SchedulerPort
	Store     storage.Store // nil when storage is disabled
	Tools     *ToolRegistry
}

// SchedulerPort is the slice of the scheduler plugins may use.
type SchedulerPort interface {
	Enabled() bool
	Status() scheduler.Snapshot

	AddSchedule(name, schedule string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddCron(name, spec string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddInterval(name string, every time.Duration, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	AddDaily(name string, atHHMM string, timeout time.Duration, job func(ctx context.Context) error) (string, error)
	Remove(name string) bool
}
