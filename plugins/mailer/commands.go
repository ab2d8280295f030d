package mailer

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"mailbot/internal/core"
	"mailbot/internal/kit"
	"mailbot/internal/mail"
	"mailbot/internal/watchdog"
)

func (p *Plugin) Commands() []core.Command {
	return []core.Command{
		{
			Route:       "napcat",
			Aliases:     []string{"gateway", "napcat_status", "猫猫查询"},
			Description: "show Napcat gateway status",
			Usage:       "/napcat",
			Handle:      p.cmdNapcatStatus,
		},
		{
			Route:       "sendmail",
			Description: "send a test email (owner only)",
			Usage:       "/sendmail <address> [subject...]",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdSendMail,
		},
		{
			Route:       "mail history",
			Description: "show recent alert history (owner only)",
			Usage:       "/mail history [n]",
			Access:      core.AccessOwnerOnly,
			Handle:      p.cmdMailHistory,
		},
	}
}

func reply(ctx context.Context, req *core.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// cmdNapcatStatus reports the watchdog's last observation; if the loop has
// never completed a check it falls back to one inline query.
func (p *Plugin) cmdNapcatStatus(ctx context.Context, req *core.Request) error {
	_, liveness, cfg := p.snapshot()
	if liveness == nil {
		return reply(ctx, req, "Napcat watchdog is not enabled.")
	}

	state, checked := liveness.Snapshot()
	var b strings.Builder
	if checked.IsZero() {
		online, err := liveness.QueryNow(ctx)
		if err != nil {
			return reply(ctx, req, fmt.Sprintf("Napcat status: query failed (%v)", err))
		}
		if online {
			state = watchdog.StatusOnline
		} else {
			state = watchdog.StatusOffline
		}
		b.WriteString("Napcat status: " + state.String() + " (queried now)\n")
	} else {
		b.WriteString("Napcat status: " + state.String() + "\n")
		b.WriteString("Last checked: " + checked.Format("2006-01-02 15:04:05") + "\n")
	}
	b.WriteString("Address: " + cfg.Napcat.BaseURL + "\n")
	uin := cfg.Napcat.UIN
	if uin == "" {
		uin = "-"
	}
	b.WriteString("Account: " + uin)
	return reply(ctx, req, b.String())
}

func (p *Plugin) cmdSendMail(ctx context.Context, req *core.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "usage: /sendmail <address> [subject...]")
	}
	to := mail.NormalizeAddresses(req.Args[0])
	subject := strings.Join(req.Args[1:], " ")
	if subject == "" {
		subject = "mailbot test message"
	}

	sender, _, _ := p.snapshot()
	outcome := sender.Send(ctx, mail.Message{
		Subject: subject,
		HTML: fmt.Sprintf("<p>Test message sent at %s.</p>",
			time.Now().Format("2006-01-02 15:04:05")),
		To: to,
	}, true)
	return reply(ctx, req, outcome)
}

func (p *Plugin) cmdMailHistory(ctx context.Context, req *core.Request) error {
	store := req.Services.Store
	if store == nil {
		return reply(ctx, req, "alert history is disabled (no storage configured)")
	}

	limit := 10
	if len(req.Args) > 0 {
		if n, err := parsePositive(req.Args[0]); err == nil {
			limit = n
		}
	}
	if limit > 50 {
		limit = 50
	}

	recs, err := store.RecentAlerts(ctx, time.Time{}, limit)
	if err != nil {
		return reply(ctx, req, fmt.Sprintf("history query failed: %v", err))
	}
	if len(recs) == 0 {
		return reply(ctx, req, "no alerts recorded")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "last %d alerts (newest first):\n", len(recs))
	for _, r := range recs {
		status := "ok"
		if !r.OK {
			status = "failed"
		}
		fmt.Fprintf(&b, "%s [%s] %s (%s)\n",
			r.At.Format("01-02 15:04"), r.Kind, r.Subject, status)
	}
	return reply(ctx, req, strings.TrimRight(b.String(), "\n"))
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("not positive")
	}
	return n, nil
}
