package mailer

import (
	"context"
	"fmt"
	"net/smtp"
	"net/url"

	"council-digest/digest"
	"council-digest/directory"
	"council-digest/summarizer"
)

// Mailer renders digest payloads into multipart messages and delivers
// them over SMTP. It implements the digest runner's Sender.
type Mailer struct {
	host            string
	port            int
	username        string
	password        string
	from            string
	fromName        string
	subjectPrefix   string
	unsubscribeBase string

	// send is swappable for tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSendFunc replaces the SMTP send function (for testing).
func WithSendFunc(fn func(addr string, a smtp.Auth, from string, to []string, msg []byte) error) Option {
	return func(m *Mailer) {
		m.send = fn
	}
}

// NewMailer creates an SMTP mailer.
func NewMailer(host string, port int, username, password, from, fromName, subjectPrefix, unsubscribeBase string, opts ...Option) *Mailer {
	m := &Mailer{
		host:            host,
		port:            port,
		username:        username,
		password:        password,
		from:            from,
		fromName:        fromName,
		subjectPrefix:   subjectPrefix,
		unsubscribeBase: unsubscribeBase,
		send:            smtp.SendMail,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send renders and transmits one subscriber's digest. A nil summary
// produces a message with the item list only.
func (m *Mailer) Send(ctx context.Context, sub directory.Subscriber, payload *digest.Payload, summary *summarizer.Summary) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	subject := m.subject(payload, summary)
	unsubscribeURL := m.unsubscribeURL(sub)

	htmlBody := renderHTML(subject, payload, summary, unsubscribeURL)
	textBody := renderText(subject, payload, summary, unsubscribeURL)
	msg := m.buildMessage(sub.Email, subject, htmlBody, textBody, unsubscribeURL)

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	auth := smtp.PlainAuth("", m.username, m.password, m.host)

	if err := m.send(addr, auth, m.from, []string{sub.Email}, msg); err != nil {
		return fmt.Errorf("send to %s: %w", sub.Email, err)
	}
	return nil
}

// subject prefers the generated headline and falls back to the prefix
// plus the digest window.
func (m *Mailer) subject(payload *digest.Payload, summary *summarizer.Summary) string {
	if summary != nil && summary.Headline != "" {
		return summary.Headline
	}
	return fmt.Sprintf("%s (%s - %s)",
		m.subjectPrefix,
		payload.Window.Start.Format("2006-01-02"),
		payload.Window.End.Format("2006-01-02"),
	)
}

func (m *Mailer) unsubscribeURL(sub directory.Subscriber) string {
	if m.unsubscribeBase == "" || sub.UnsubscribeToken == "" {
		return ""
	}
	return fmt.Sprintf("%s?path=unsubscribe&token=%s",
		m.unsubscribeBase, url.QueryEscape(sub.UnsubscribeToken))
}

const messageTemplate = "From: %s\r\n" +
	"To: %s\r\n" +
	"Subject: %s\r\n" +
	"%s" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=%q\r\n" +
	"\r\n" +
	"--%s\r\n" +
	"Content-Type: text/plain; charset=\"UTF-8\"\r\n" +
	"\r\n" +
	"%s\r\n" +
	"--%s\r\n" +
	"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
	"\r\n" +
	"%s\r\n" +
	"--%s--\r\n"

func (m *Mailer) buildMessage(to, subject, htmlBody, textBody, unsubscribeURL string) []byte {
	from := m.from
	if m.fromName != "" {
		from = fmt.Sprintf("%s <%s>", m.fromName, m.from)
	}

	unsubscribeHeaders := ""
	if unsubscribeURL != "" {
		unsubscribeHeaders = fmt.Sprintf(
			"List-Unsubscribe: <%s>\r\nList-Unsubscribe-Post: List-Unsubscribe=One-Click\r\n",
			unsubscribeURL)
	}

	const boundary = "digest-boundary"
	msg := fmt.Sprintf(messageTemplate,
		from, to, subject, unsubscribeHeaders,
		boundary, boundary, textBody, boundary, htmlBody, boundary)
	return []byte(msg)
}
