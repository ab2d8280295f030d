package mailer

import (
	"context"
	"strings"

	"mailbot/internal/core"
	"mailbot/internal/mail"
)

// Tools exposes the email sender to the LLM tool dispatcher.
func (p *Plugin) Tools() []core.Tool {
	return []core.Tool{
		{
			Name: "send_html_email",
			Description: "Send an HTML email. Arguments: to (address string or list, " +
				"separators , ; whitespace), subject, html_body; optional cc, bcc.",
			Invoke: p.invokeSendEmail,
		},
	}
}

func (p *Plugin) invokeSendEmail(ctx context.Context, args map[string]any) string {
	subject, _ := args["subject"].(string)
	if strings.TrimSpace(subject) == "" {
		return "missing argument: subject"
	}
	htmlBody, _ := args["html_body"].(string)
	if strings.TrimSpace(htmlBody) == "" {
		return "missing argument: html_body"
	}

	msg := mail.Message{
		Subject: subject,
		HTML:    htmlBody,
		To:      mail.NormalizeAddresses(args["to"]),
		CC:      mail.NormalizeAddresses(args["cc"]),
		BCC:     mail.NormalizeAddresses(args["bcc"]),
	}

	sender, _, _ := p.snapshot()
	// The interactive tool is the one caller subject to the global send
	// throttle.
	return sender.Send(ctx, msg, true)
}
