package core

import (
	"context"
	"runtime"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"mailbot/internal/config"
	"mailbot/internal/kit"
	logx "mailbot/pkg/logx"
)

const defaultCommandTimeout = 30 * time.Second

// CommandManager holds a flat command registry and dispatches incoming
// updates through a bounded worker pool.
type CommandManager struct {
	mu sync.RWMutex
	// cmds is ordered longest-route-first so "mail history" wins over a
	// hypothetical "mail" command.
	cmds  []Command
	alias map[string]*Command // lower(alias) -> command

	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	cfgm    *config.Manager
	serv    *Services

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, cfgm *config.Manager, serv *Services, owners []int64) *CommandManager {
	return &CommandManager{
		alias:   map[string]*Command{},
		log:     log,
		adapter: adapter,
		cfgm:    cfgm,
		serv:    serv,
		owners:  append([]int64(nil), owners...),
		jobs:    make(chan func(), 256),
	}
}

// SetOwners updates the owner list used for AccessOwnerOnly checks. Safe to
// call during hot-reload.
func (m *CommandManager) SetOwners(owners []int64) {
	cp := append([]int64(nil), owners...)
	m.mu.Lock()
	m.owners = cp
	m.mu.Unlock()
}

func (m *CommandManager) ownersSnapshot() []int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]int64(nil), m.owners...)
}

// SetRegistry replaces the command registry. A help command is always
// injected.
func (m *CommandManager) SetRegistry(cmds []Command) {
	help := Command{
		Route:       "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.Adapter.SendText(ctx, req.Chat, m.helpText(), &kit.SendOptions{DisablePreview: true})
			return err
		},
	}
	all := append(append([]Command(nil), cmds...), help)

	// longest route first
	for i := range all {
		all[i].Route = strings.TrimSpace(all[i].Route)
	}
	sortByRouteLen(all)

	alias := map[string]*Command{}
	for i := range all {
		c := &all[i]
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, exists := alias[a]; !exists {
				alias[a] = c
			}
		}
	}

	m.mu.Lock()
	m.cmds = all
	m.alias = alias
	m.mu.Unlock()
}

func sortByRouteLen(cmds []Command) {
	// insertion sort; registries are tiny
	for i := 1; i < len(cmds); i++ {
		for j := i; j > 0 && routeLen(cmds[j].Route) > routeLen(cmds[j-1].Route); j-- {
			cmds[j], cmds[j-1] = cmds[j-1], cmds[j]
		}
	}
}

func routeLen(route string) int { return len(strings.Fields(route)) }

func (m *CommandManager) helpText() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var b strings.Builder
	b.WriteString("commands:\n")
	for i := len(m.cmds) - 1; i >= 0; i-- {
		c := m.cmds[i]
		b.WriteString("/")
		b.WriteString(c.Route)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// DispatchLoop consumes updates until ctx is canceled or the channel
// closes. Handlers run on a bounded worker pool so a slow command cannot
// stall routing.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}
	m.log.Info("command dispatcher started", logx.Int("workers", workers))

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job, ok := <-m.jobs:
					if !ok {
						return
					}
					job()
				}
			}
		}()
	}
	defer func() {
		wg.Wait()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.routeMessage(ctx, up)
		}
	}
}

func (m *CommandManager) routeMessage(root context.Context, up kit.Update) {
	if up.Message == nil {
		return
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}

	slashed := strings.HasPrefix(text, "/")
	tokens := strings.Fields(strings.TrimPrefix(text, "/"))
	if len(tokens) == 0 {
		return
	}
	head := strings.ToLower(tokens[0])
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}

	m.mu.RLock()
	cmds := m.cmds
	aliasMap := m.alias
	m.mu.RUnlock()

	// Aliases match with or without a leading slash, so localized shortcuts
	// work as bare messages.
	if c, ok := aliasMap[head]; ok {
		m.enqueue(root, up, *c, tokens[1:])
		return
	}
	if !slashed {
		return
	}

	lowered := make([]string, len(tokens))
	lowered[0] = head
	for i := 1; i < len(tokens); i++ {
		lowered[i] = strings.ToLower(tokens[i])
	}
	for i := range cmds {
		route := strings.Fields(strings.ToLower(cmds[i].Route))
		if len(route) == 0 || len(route) > len(lowered) {
			continue
		}
		match := true
		for j := range route {
			if route[j] != lowered[j] {
				match = false
				break
			}
		}
		if match {
			m.enqueue(root, up, cmds[i], tokens[len(route):])
			return
		}
	}

	_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID}, "unknown command. try /help", nil)
}

func (m *CommandManager) enqueue(root context.Context, up kit.Update, cmd Command, args []string) {
	msg := up.Message
	owners := m.ownersSnapshot()
	if cmd.Access == AccessOwnerOnly && !isOwner(msg.FromID, owners) {
		_, _ = m.adapter.SendText(root, kit.ChatTarget{ChatID: msg.ChatID}, "unauthorized", nil)
		return
	}

	req := &Request{
		Update:       up,
		Chat:         kit.ChatTarget{ChatID: msg.ChatID},
		FromID:       msg.FromID,
		Command:      cmd.Route,
		Args:         args,
		Adapter:      m.adapter,
		Config:       m.cfgm.Get(),
		Logger:       m.log.With(logx.String("cmd", cmd.Route), logx.Int64("from_id", msg.FromID)),
		Services:     m.serv,
		OwnerUserIDs: owners,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	job := func() {
		defer func() {
			if r := recover(); r != nil {
				m.log.Error("panic in command handler",
					logx.String("cmd", cmd.Route),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())))
			}
		}()
		ctx, cancel := context.WithTimeout(root, timeout)
		defer cancel()
		if err := cmd.Handle(ctx, req); err != nil {
			req.Logger.Warn("command failed", logx.Err(err))
		}
	}

	select {
	case m.jobs <- job:
	default:
		_, _ = m.adapter.SendText(root, req.Chat, "busy, try again", nil)
	}
}

func isOwner(id int64, owners []int64) bool {
	for _, o := range owners {
		if o == id {
			return true
		}
	}
	return false
}
