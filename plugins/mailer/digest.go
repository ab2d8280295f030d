package mailer

import (
	"context"
	"fmt"
	"time"

	"mailbot/internal/mail"
	"mailbot/internal/storage"
	logx "mailbot/pkg/logx"
)

// runDigest sends the scheduled host health summary: current metrics plus
// the alerts recorded over the last 24 hours.
func (p *Plugin) runDigest(ctx context.Context) error {
	p.mu.Lock()
	sender := p.sender
	renderer := p.renderer
	store := p.deps.Store
	cfg := p.cfg
	p.mu.Unlock()

	if !cfg.Digest.Enabled {
		return nil
	}

	now := time.Now()
	snap, err := p.metrics.Read(ctx)
	if err != nil {
		return fmt.Errorf("read host metrics: %w", err)
	}

	var alerts []storage.AlertRecord
	if store != nil {
		alerts, err = store.RecentAlerts(ctx, now.Add(-24*time.Hour), 50)
		if err != nil {
			p.log.Warn("digest history query failed", logx.Err(err))
		}
	}

	hours, minutes := snap.Uptime(now)
	html, err := renderer.Render("daily_digest.html", map[string]any{
		"Now":           now.Format("2006-01-02 15:04:05"),
		"Hostname":      snap.Hostname,
		"OS":            snap.OS,
		"CPUPercent":    snap.CPUPercent,
		"MemUsedGB":     snap.MemUsedGB(),
		"MemTotalGB":    snap.MemTotalGB(),
		"MemPercent":    snap.MemPercent,
		"UptimeHours":   hours,
		"UptimeMinutes": minutes,
		"Alerts":        alerts,
		"AlertCount":    len(alerts),
	})
	if err != nil {
		return err
	}

	outcome := sender.Send(ctx, mail.Message{
		Subject: fmt.Sprintf("[digest] %s daily report %s", snap.Hostname, now.Format("2006-01-02")),
		HTML:    html,
		To:      cfg.Digest.Recipients,
	}, false)
	p.log.Info("digest dispatched", logx.String("outcome", outcome))
	return nil
}
