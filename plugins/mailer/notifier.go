package mailer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"mailbot/internal/kit"
	"mailbot/internal/mail"
	"mailbot/internal/storage"
	"mailbot/internal/watchdog"
	logx "mailbot/pkg/logx"
)

// alertSink turns a watchdog alert into an email, an optional history
// record and an optional Telegram mirror. It is the plugin's single
// implementation of watchdog.Notifier.
type alertSink struct {
	sender   *mail.Sender
	renderer *mail.Renderer
	store    storage.Store // nil when storage is disabled
	adapter  kit.Adapter
	logChat  kit.ChatTarget // zero ChatID means no mirror
	log      logx.Logger
}

func templateFor(kind watchdog.AlertKind) string {
	switch kind {
	case watchdog.KindMemoryThreshold:
		return "memory_alert.html"
	case watchdog.KindGatewayOffline:
		return "napcat_offline.html"
	default:
		return ""
	}
}

func (s *alertSink) Notify(ctx context.Context, a watchdog.Alert) string {
	tmpl := templateFor(a.Kind)
	if tmpl == "" {
		return fmt.Sprintf("no template for alert kind %q", a.Kind)
	}
	html, err := s.renderer.Render(tmpl, a.Payload)
	if err != nil {
		s.log.Error("alert template render failed",
			logx.String("kind", string(a.Kind)), logx.Err(err))
		return fmt.Sprintf("render failed: %v", err)
	}

	// Watchdogs own their cooldowns; the global send throttle is for the
	// interactive tool only.
	outcome := s.sender.Send(ctx, mail.Message{
		Subject: a.Subject,
		HTML:    html,
		To:      a.Recipients,
	}, false)

	s.record(ctx, a, outcome)
	s.mirror(ctx, a, outcome)
	return outcome
}

func (s *alertSink) record(ctx context.Context, a watchdog.Alert, outcome string) {
	if s.store == nil {
		return
	}
	rec := storage.AlertRecord{
		At:         time.Now(),
		Kind:       string(a.Kind),
		Subject:    a.Subject,
		Recipients: a.Recipients,
		Outcome:    outcome,
		OK:         outcomeOK(outcome),
	}
	if err := s.store.AppendAlert(ctx, rec); err != nil {
		s.log.Warn("alert history append failed", logx.Err(err))
	}
}

func (s *alertSink) mirror(ctx context.Context, a watchdog.Alert, outcome string) {
	if s.adapter == nil || s.logChat.ChatID == 0 {
		return
	}
	text := fmt.Sprintf("%s\nmail: %s", a.Subject, outcome)
	if _, err := s.adapter.SendText(ctx, s.logChat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		s.log.Warn("alert mirror failed", logx.Err(err))
	}
}

// outcomeOK classifies a sender outcome string. Dry-run and partial
// delivery both count as delivered for history purposes.
func outcomeOK(outcome string) bool {
	return strings.HasPrefix(outcome, "sent:") ||
		strings.HasPrefix(outcome, "submitted,") ||
		strings.HasPrefix(outcome, "dry-run:")
}
