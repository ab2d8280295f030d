package mail

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	logx "mailbot/pkg/logx"
)

// Transport delivers a rendered message to a set of envelope recipients.
// Per-recipient refusals are reported separately from transport-level
// failure: a non-nil rejected map with a nil error means partial delivery.
type Transport interface {
	Deliver(ctx context.Context, from string, rcpts []string, raw []byte) (rejected map[string]string, err error)
}

// TransportConfig holds the SMTP endpoint settings.
type TransportConfig struct {
	Host        string
	Port        int
	Username    string
	Password    string
	UseSSL      bool // implicit TLS on connect
	UseSTARTTLS bool // plaintext connect, STARTTLS upgrade
	Debug       bool // log protocol milestones
	Timeout     time.Duration
}

type smtpTransport struct {
	cfg TransportConfig
	log logx.Logger
}

// NewSMTPTransport returns a Transport speaking SMTP with optional implicit
// TLS or STARTTLS, optional AUTH, and per-RCPT refusal collection.
func NewSMTPTransport(cfg TransportConfig, log logx.Logger) Transport {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &smtpTransport{cfg: cfg, log: log}
}

func (t *smtpTransport) Deliver(ctx context.Context, from string, rcpts []string, raw []byte) (map[string]string, error) {
	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	dialer := &net.Dialer{Timeout: t.cfg.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if t.cfg.UseSSL {
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, &tls.Config{ServerName: t.cfg.Host})
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", addr, err)
	}
	_ = conn.SetDeadline(time.Now().Add(t.cfg.Timeout))

	c, err := smtp.NewClient(conn, t.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("smtp handshake: %w", err)
	}
	defer c.Close()
	t.debugf("connected", logx.String("addr", addr), logx.Bool("ssl", t.cfg.UseSSL))

	if t.cfg.UseSTARTTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return nil, fmt.Errorf("server %s does not support STARTTLS", t.cfg.Host)
		}
		if err := c.StartTLS(&tls.Config{ServerName: t.cfg.Host}); err != nil {
			return nil, fmt.Errorf("starttls: %w", err)
		}
		t.debugf("starttls negotiated")
	}

	if t.cfg.Username != "" {
		auth := smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
		if ok, _ := c.Extension("AUTH"); !ok {
			return nil, fmt.Errorf("server %s does not advertise AUTH", t.cfg.Host)
		}
		if err := c.Auth(auth); err != nil {
			return nil, fmt.Errorf("auth: %w", err)
		}
		t.debugf("authenticated", logx.String("user", t.cfg.Username))
	}

	if err := c.Mail(from); err != nil {
		return nil, fmt.Errorf("mail from %s: %w", from, err)
	}

	// Collect per-recipient refusals instead of aborting on the first one,
	// matching sendmail-style partial delivery.
	rejected := map[string]string{}
	accepted := 0
	for _, r := range rcpts {
		if err := c.Rcpt(r); err != nil {
			rejected[r] = err.Error()
			continue
		}
		accepted++
	}
	if accepted == 0 {
		return rejected, fmt.Errorf("all %d recipients refused", len(rcpts))
	}

	w, err := c.Data()
	if err != nil {
		return rejected, fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(raw); err != nil {
		_ = w.Close()
		return rejected, fmt.Errorf("write body: %w", err)
	}
	if err := w.Close(); err != nil {
		return rejected, fmt.Errorf("finish body: %w", err)
	}
	_ = c.Quit()
	t.debugf("message accepted", logx.Int("recipients", accepted), logx.Int("rejected", len(rejected)))

	if len(rejected) == 0 {
		return nil, nil
	}
	return rejected, nil
}

func (t *smtpTransport) debugf(msg string, fields ...logx.Field) {
	if t.cfg.Debug {
		t.log.Debug("smtp: "+msg, fields...)
	}
}
