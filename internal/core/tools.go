package core

import (
	"context"
	"fmt"
	"runtime/debug"
	"sort"
	"strings"
	"sync"

	logx "mailbot/pkg/logx"
)

// Tool is one operation exposed to the LLM tool dispatcher. Invoke always
// returns a human-readable outcome string; the dispatcher never sees an
// error or a panic.
type Tool struct {
	Name        string
	Description string
	Invoke      func(ctx context.Context, args map[string]any) string
}

type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	log   logx.Logger
}

func NewToolRegistry(log logx.Logger) *ToolRegistry {
	return &ToolRegistry{tools: map[string]Tool{}, log: log}
}

func (r *ToolRegistry) Register(t Tool) error {
	name := strings.TrimSpace(t.Name)
	if name == "" || t.Invoke == nil {
		return fmt.Errorf("tool requires a name and an invoke function")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %q already registered", name)
	}
	r.tools[name] = t
	return nil
}

// List returns registered tools sorted by name.
func (r *ToolRegistry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Invoke runs the named tool. Unknown names and panics become outcome
// strings.
func (r *ToolRegistry) Invoke(ctx context.Context, name string, args map[string]any) (outcome string) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Sprintf("unknown tool: %s", name)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("panic in tool",
				logx.String("tool", name),
				logx.Any("panic", rec),
				logx.String("stack", string(debug.Stack())))
			outcome = fmt.Sprintf("tool %s failed unexpectedly", name)
		}
	}()
	return t.Invoke(ctx, args)
}
