// Package mail implements recipient normalization, message building and a
// throttled SMTP notifier. Send outcomes are user-facing strings, never
// errors: callers (the LLM tool dispatcher, watchdogs) relay them verbatim.
package mail

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	logx "mailbot/pkg/logx"
)

// SenderConfig configures the notifier on top of the raw transport settings.
type SenderConfig struct {
	Transport    TransportConfig
	From         string
	FromName     string
	AllowDomains []string
	DryRun       bool
	// SendInterval is the process-wide minimum gap between rate-limited
	// sends, anchored on the last successful delivery. Zero disables it.
	SendInterval time.Duration
}

// Sender sends rendered messages through a Transport, applying config
// validation, domain allow-listing, dry-run and a min-interval throttle.
type Sender struct {
	cfg       SenderConfig
	transport Transport
	log       logx.Logger

	mu       sync.Mutex
	lastSent time.Time

	now func() time.Time
}

// NewSender builds a Sender. A nil transport gets the default SMTP
// implementation.
func NewSender(cfg SenderConfig, transport Transport, log logx.Logger) *Sender {
	if log.IsZero() {
		log = logx.Nop()
	}
	if transport == nil {
		transport = NewSMTPTransport(cfg.Transport, log)
	}
	return &Sender{cfg: cfg, transport: transport, log: log, now: time.Now}
}

// Send delivers msg and returns a human-readable outcome. When
// respectRateLimit is true the min-interval throttle applies; watchdogs pass
// false so their per-kind cooldowns are the sole throttle.
func (s *Sender) Send(ctx context.Context, msg Message, respectRateLimit bool) string {
	now := s.now()

	if respectRateLimit && s.cfg.SendInterval > 0 {
		s.mu.Lock()
		last := s.lastSent
		s.mu.Unlock()
		if !last.IsZero() {
			if elapsed := now.Sub(last); elapsed < s.cfg.SendInterval {
				remain := int((s.cfg.SendInterval - elapsed).Round(time.Second) / time.Second)
				return fmt.Sprintf("too frequent: retry in %d seconds (minimum interval %d seconds)",
					remain, int(s.cfg.SendInterval/time.Second))
			}
		}
	}

	if outcome := s.validate(msg); outcome != "" {
		return outcome
	}

	if s.cfg.DryRun {
		s.log.Info("dry-run: simulated send",
			logx.Any("to", msg.To),
			logx.Any("cc", msg.CC),
			logx.Any("bcc", msg.BCC),
			logx.String("subject", msg.Subject))
		return "dry-run: send simulated, nothing delivered"
	}

	raw := buildMIME(msg, s.cfg.From, s.cfg.FromName, now)
	rcpts := msg.Recipients()

	// Delivery is long-running protocol I/O; run it off the caller's
	// goroutine so cancellation still unblocks the caller.
	type result struct {
		rejected map[string]string
		err      error
	}
	ch := make(chan result, 1)
	go func() {
		rej, err := s.transport.Deliver(ctx, s.cfg.From, rcpts, raw)
		ch <- result{rejected: rej, err: err}
	}()

	var res result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return fmt.Sprintf("send failed: %v", ctx.Err())
	}

	if res.err != nil {
		s.log.Warn("send failed", logx.Err(res.err), logx.Int("recipients", len(rcpts)))
		return fmt.Sprintf("send failed: %v", res.err)
	}

	// Partial delivery still counts for throttling purposes.
	s.mu.Lock()
	s.lastSent = s.now()
	s.mu.Unlock()

	if len(res.rejected) > 0 {
		addrs := make([]string, 0, len(res.rejected))
		for a := range res.rejected {
			addrs = append(addrs, a)
		}
		sort.Strings(addrs)
		pairs := make([]string, 0, len(addrs))
		for _, a := range addrs {
			pairs = append(pairs, a+": "+res.rejected[a])
		}
		s.log.Warn("partial delivery", logx.Int("rejected", len(addrs)))
		return "submitted, but these recipients were refused: " + strings.Join(pairs, "; ")
	}

	s.log.Info("mail sent", logx.Int("recipients", len(rcpts)), logx.String("subject", msg.Subject))
	return fmt.Sprintf("sent: %d recipients in total", len(rcpts))
}

// validate returns a non-empty outcome string on the first configuration or
// recipient problem.
func (s *Sender) validate(msg Message) string {
	if strings.TrimSpace(s.cfg.Transport.Host) == "" || s.cfg.Transport.Port <= 0 {
		return "smtp configuration incomplete: set smtp host and port"
	}
	if from := strings.TrimSpace(s.cfg.From); from == "" || !strings.Contains(from, "@") {
		return "sender address is missing or invalid"
	}
	if s.cfg.Transport.UseSSL && s.cfg.Transport.UseSTARTTLS {
		return "configuration conflict: use_ssl and use_starttls cannot both be enabled"
	}
	if len(msg.To) == 0 {
		return "no recipients: provide at least one address"
	}
	for _, addr := range msg.Recipients() {
		if !DomainAllowed(addr, s.cfg.AllowDomains) {
			return fmt.Sprintf("recipient domain not in allow-list: %s", addr)
		}
	}
	return ""
}
