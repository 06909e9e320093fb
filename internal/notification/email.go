package notification

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// EmailConfig configures SMTP delivery. The server must offer STARTTLS for
// PLAIN authentication to be used.
type EmailConfig struct {
	Server   string // e.g. smtp.gmail.com
	Port     int    // e.g. 587
	From     string // also the login username
	Password string
	To       []string
}

// EmailNotifier sends plain-text alert emails.
type EmailNotifier struct {
	cfg      EmailConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now      func() time.Time
}

// NewEmailNotifier creates an email notifier.
func NewEmailNotifier(cfg EmailConfig) *EmailNotifier {
	if len(cfg.To) == 0 {
		cfg.To = []string{cfg.From}
	}
	return &EmailNotifier{cfg: cfg, sendMail: smtp.SendMail, now: time.Now}
}

func (e *EmailNotifier) Send(ctx context.Context, alert Alert) error {
	addr := net.JoinHostPort(e.cfg.Server, strconv.Itoa(e.cfg.Port))
	auth := smtp.PlainAuth("", e.cfg.From, e.cfg.Password, e.cfg.Server)
	msg := e.compose(alert)

	// smtp.SendMail has no context; run it aside so ctx bounds the wait.
	done := make(chan error, 1)
	go func() { done <- e.sendMail(addr, auth, e.cfg.From, e.cfg.To, msg) }()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("email: send: %w", err)
		}
	case <-ctx.Done():
		return fmt.Errorf("email: send: %w", ctx.Err())
	}

	log.Printf("[email] sent alert to %s: %s", strings.Join(e.cfg.To, ","), alert.Title)
	return nil
}

// compose builds an RFC 5322 message.
func (e *EmailNotifier) compose(alert Alert) []byte {
	subject := alert.Title
	if alert.Level != AlertInfo && alert.Level != "" {
		subject = "[" + string(alert.Level) + "] " + subject
	}
	var b strings.Builder
	b.WriteString("From: " + e.cfg.From + "\r\n")
	b.WriteString("To: " + strings.Join(e.cfg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + sanitizeHeader(subject) + "\r\n")
	b.WriteString("Date: " + e.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(alert.Message, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
