package mailer

import (
	"context"
	"encoding/json"
	"testing"

	"mailbot/internal/core"
	"mailbot/internal/watchdog"
	logx "mailbot/pkg/logx"
)

func testConfigJSON(t *testing.T, v map[string]any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func TestDecodeConfigRejectsUnknownFields(t *testing.T) {
	t.Parallel()
	raw := testConfigJSON(t, map[string]any{
		"smtp":        map[string]any{"host": "smtp.test", "port": 25},
		"smtp_legacy": true,
	})
	if _, err := core.DecodePluginConfig[Config](raw); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidateRequiresRecipients(t *testing.T) {
	t.Parallel()
	cfg := &Config{}
	cfg.Memory.Enabled = true
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error: memory alerts without recipients")
	}
	cfg.Memory.Recipients = []string{"ops@example.com"}
	if err := cfg.validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	cfg.Napcat.Enabled = true
	cfg.Napcat.Recipients = []string{"ops@example.com"}
	if err := cfg.validate(); err == nil {
		t.Fatal("expected error: napcat enabled without base_url")
	}
}

func initTestPlugin(t *testing.T, raw json.RawMessage) *Plugin {
	t.Helper()
	p := New()
	deps := core.PluginDeps{
		Logger: logx.Nop(),
		Config: raw,
	}
	if err := p.Init(context.Background(), deps); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p
}

func TestSendEmailToolDryRun(t *testing.T) {
	t.Parallel()
	p := initTestPlugin(t, testConfigJSON(t, map[string]any{
		"smtp": map[string]any{
			"host":         "smtp.test",
			"port":         465,
			"from_address": "bot@test.example",
			"dry_run":      true,
		},
	}))

	got := p.invokeSendEmail(context.Background(), map[string]any{
		"to":        "a@test.example; b@test.example",
		"subject":   "hello",
		"html_body": "<p>hi</p>",
	})
	if got != "dry-run: send simulated, nothing delivered" {
		t.Fatalf("outcome = %q", got)
	}
}

func TestSendEmailToolMissingArguments(t *testing.T) {
	t.Parallel()
	p := initTestPlugin(t, testConfigJSON(t, map[string]any{
		"smtp": map[string]any{"host": "smtp.test", "port": 25, "from_address": "bot@test.example"},
	}))

	cases := []struct {
		name string
		args map[string]any
		want string
	}{
		{"no subject", map[string]any{"to": "a@b.c", "html_body": "<p/>"}, "missing argument: subject"},
		{"no body", map[string]any{"to": "a@b.c", "subject": "s"}, "missing argument: html_body"},
		{"no recipients", map[string]any{"subject": "s", "html_body": "<p/>"}, "no recipients: provide at least one address"},
	}
	for _, tc := range cases {
		if got := p.invokeSendEmail(context.Background(), tc.args); got != tc.want {
			t.Errorf("%s: outcome = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestTemplateSelection(t *testing.T) {
	t.Parallel()
	if got := templateFor(watchdog.KindMemoryThreshold); got != "memory_alert.html" {
		t.Fatalf("memory template = %q", got)
	}
	if got := templateFor(watchdog.KindGatewayOffline); got != "napcat_offline.html" {
		t.Fatalf("offline template = %q", got)
	}
	if got := templateFor(watchdog.AlertKind("bogus")); got != "" {
		t.Fatalf("bogus template = %q", got)
	}
}

func TestOutcomeClassification(t *testing.T) {
	t.Parallel()
	cases := []struct {
		outcome string
		ok      bool
	}{
		{"sent: 2 recipients in total", true},
		{"dry-run: send simulated, nothing delivered", true},
		{"submitted, but these recipients were refused: a@b.c: 550", true},
		{"send failed: connection refused", false},
		{"no recipients: provide at least one address", false},
	}
	for _, tc := range cases {
		if got := outcomeOK(tc.outcome); got != tc.ok {
			t.Errorf("outcomeOK(%q) = %v, want %v", tc.outcome, got, tc.ok)
		}
	}
}

func TestHotReloadRejectsBrokenConfig(t *testing.T) {
	t.Parallel()
	p := initTestPlugin(t, testConfigJSON(t, map[string]any{
		"smtp": map[string]any{"host": "smtp.test", "port": 25, "from_address": "bot@test.example"},
	}))

	bad := testConfigJSON(t, map[string]any{
		"smtp": map[string]any{"host": "smtp.test", "port": 25, "send_interval": "not-a-duration"},
	})
	if err := p.OnConfigUpdate(context.Background(), bad); err == nil {
		t.Fatal("expected reload rejection")
	}
	// The previous working config must survive a rejected reload.
	if p.cfg.SMTP.FromAddress != "bot@test.example" {
		t.Fatalf("config replaced despite rejection: %+v", p.cfg.SMTP)
	}
}
