package core

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"mailbot/internal/config"
	"mailbot/internal/kit"
	logx "mailbot/pkg/logx"
)

type fakeAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeAdapter) Start(context.Context, chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                     { return nil }

func (f *fakeAdapter) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	f.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (f *fakeAdapter) lastSent() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func textUpdate(fromID int64, text string) kit.Update {
	return kit.Update{Message: &kit.Message{ChatID: 42, FromID: fromID, Text: text}}
}

type dispatchHarness struct {
	adapter *fakeAdapter
	mgr     *CommandManager
	updates chan kit.Update
	cancel  context.CancelFunc
	done    chan struct{}
}

func newDispatchHarness(t *testing.T, cmds []Command, owners []int64) *dispatchHarness {
	t.Helper()
	adapter := &fakeAdapter{}
	mgr := NewCommandManager(logx.Nop(), adapter, config.NewManager("unused"), &Services{}, owners)
	mgr.SetRegistry(cmds)

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = mgr.DispatchLoop(ctx, updates)
	}()
	h := &dispatchHarness{adapter: adapter, mgr: mgr, updates: updates, cancel: cancel, done: done}
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return h
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestRoutingLongestRouteWins(t *testing.T) {
	t.Parallel()
	var gotRoute string
	var gotArgs []string
	var mu sync.Mutex
	handler := func(route string) HandlerFunc {
		return func(_ context.Context, req *Request) error {
			mu.Lock()
			gotRoute = route
			gotArgs = req.Args
			mu.Unlock()
			return nil
		}
	}
	h := newDispatchHarness(t, []Command{
		{Route: "mail", Handle: handler("mail")},
		{Route: "mail history", Handle: handler("mail history")},
	}, nil)

	h.updates <- textUpdate(1, "/mail history 5")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return gotRoute != ""
	})
	mu.Lock()
	defer mu.Unlock()
	if gotRoute != "mail history" {
		t.Fatalf("route = %q, want %q", gotRoute, "mail history")
	}
	if len(gotArgs) != 1 || gotArgs[0] != "5" {
		t.Fatalf("args = %v, want [5]", gotArgs)
	}
}

func TestAliasMatchesWithoutSlash(t *testing.T) {
	t.Parallel()
	var hit int32
	var mu sync.Mutex
	h := newDispatchHarness(t, []Command{
		{
			Route:   "napcat",
			Aliases: []string{"猫猫查询"},
			Handle: func(context.Context, *Request) error {
				mu.Lock()
				hit++
				mu.Unlock()
				return nil
			},
		},
	}, nil)

	h.updates <- textUpdate(1, "猫猫查询")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hit == 1
	})
}

func TestBareRouteWithoutSlashIsIgnored(t *testing.T) {
	t.Parallel()
	h := newDispatchHarness(t, []Command{
		{Route: "napcat", Handle: func(context.Context, *Request) error {
			t.Error("handler should not run for a bare non-alias message")
			return nil
		}},
	}, nil)

	h.updates <- textUpdate(1, "napcat")
	// Non-command chatter must be silently ignored, not answered.
	time.Sleep(50 * time.Millisecond)
	if got := h.adapter.lastSent(); got != "" {
		t.Fatalf("unexpected reply %q", got)
	}
}

func TestUnknownSlashCommandReplies(t *testing.T) {
	t.Parallel()
	h := newDispatchHarness(t, nil, nil)

	h.updates <- textUpdate(1, "/definitely-not-a-command")
	waitFor(t, func() bool { return h.adapter.lastSent() != "" })
	if got := h.adapter.lastSent(); got != "unknown command. try /help" {
		t.Fatalf("reply = %q", got)
	}
}

func TestOwnerOnlyCommandRejectsOthers(t *testing.T) {
	t.Parallel()
	var hit int32
	var mu sync.Mutex
	h := newDispatchHarness(t, []Command{
		{
			Route:  "sendmail",
			Access: AccessOwnerOnly,
			Handle: func(context.Context, *Request) error {
				mu.Lock()
				hit++
				mu.Unlock()
				return nil
			},
		},
	}, []int64{7})

	h.updates <- textUpdate(99, "/sendmail a@b.c")
	waitFor(t, func() bool { return h.adapter.lastSent() == "unauthorized" })
	mu.Lock()
	if hit != 0 {
		mu.Unlock()
		t.Fatal("handler ran for non-owner")
	}
	mu.Unlock()

	h.updates <- textUpdate(7, "/sendmail a@b.c")
	waitFor(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return hit == 1
	})
}

func TestHelpListsCommands(t *testing.T) {
	t.Parallel()
	h := newDispatchHarness(t, []Command{
		{Route: "napcat", Description: "gateway status", Handle: func(context.Context, *Request) error { return nil }},
	}, nil)

	h.updates <- textUpdate(1, "/help")
	waitFor(t, func() bool { return h.adapter.lastSent() != "" })
	got := h.adapter.lastSent()
	for _, want := range []string{"/help", "/napcat", "gateway status"} {
		if !strings.Contains(got, want) {
			t.Fatalf("help %q missing %q", got, want)
		}
	}
}
