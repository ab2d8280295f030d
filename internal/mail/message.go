package mail

import (
	"fmt"
	"mime"
	"strings"
	"time"
)

// Message is one outbound email before rendering to wire format.
type Message struct {
	Subject string
	HTML    string
	To      []string
	CC      []string
	BCC     []string
}

// Recipients returns the full envelope recipient list (To + CC + BCC) in
// order.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	out = append(out, m.To...)
	out = append(out, m.CC...)
	out = append(out, m.BCC...)
	return out
}

const plainFallback = "This is an HTML email. If you see this, your client is showing the plain-text fallback."

// buildMIME renders the message as a multipart/alternative MIME document
// with a plain-text fallback part. BCC recipients are envelope-only and
// never appear in the headers.
func buildMIME(m Message, fromAddr, fromName string, now time.Time) []byte {
	var b strings.Builder
	boundary := fmt.Sprintf("=_mailbot_%d", now.UnixNano())

	writeHeader := func(k, v string) {
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(v)
		b.WriteString("\r\n")
	}

	from := fromAddr
	if fromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", fromName), fromAddr)
	}
	writeHeader("From", from)
	if len(m.To) > 0 {
		writeHeader("To", strings.Join(m.To, ", "))
	}
	if len(m.CC) > 0 {
		writeHeader("Cc", strings.Join(m.CC, ", "))
	}
	writeHeader("Subject", mime.QEncoding.Encode("utf-8", m.Subject))
	writeHeader("Date", now.Format(time.RFC1123Z))
	writeHeader("MIME-Version", "1.0")
	writeHeader("Content-Type", fmt.Sprintf("multipart/alternative; boundary=%q", boundary))
	b.WriteString("\r\n")

	part := func(contentType, body string) {
		b.WriteString("--")
		b.WriteString(boundary)
		b.WriteString("\r\n")
		b.WriteString("Content-Type: ")
		b.WriteString(contentType)
		b.WriteString("\r\nContent-Transfer-Encoding: 8bit\r\n\r\n")
		b.WriteString(body)
		b.WriteString("\r\n")
	}
	part("text/plain; charset=utf-8", plainFallback)
	part("text/html; charset=utf-8", m.HTML)

	b.WriteString("--")
	b.WriteString(boundary)
	b.WriteString("--\r\n")
	return []byte(b.String())
}
