package queue

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Sender delivers a reset mail.
type Sender interface {
	Send(ctx context.Context, m PasswordResetMail) error
}

// SMTPSender delivers over SMTP with PLAIN auth when a user is configured.
type SMTPSender struct {
	Host string
	Port int
	User string
	Pass string
	From string
}

func (s SMTPSender) Send(ctx context.Context, m PasswordResetMail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	var auth smtp.Auth
	if s.User != "" {
		auth = smtp.PlainAuth("", s.User, s.Pass, s.Host)
	}
	msg := strings.Join([]string{
		"From: " + s.From,
		"To: " + m.To,
		"Subject: " + m.Subject,
		"Date: " + time.Now().UTC().Format(time.RFC1123Z),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=UTF-8",
		"",
		m.Body(),
	}, "\r\n")
	if err := smtp.SendMail(addr, auth, s.From, []string{m.To}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// FileSender appends one line per mail to a log file. It stands in for SMTP
// in development.
type FileSender struct {
	Path string
}

func (s FileSender) Send(_ context.Context, m PasswordResetMail) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return fmt.Errorf("mkdir mail log: %w", err)
	}
	f, err := os.OpenFile(s.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open mail log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] Password reset | to=%s | subject=%q | url=%s\n",
		m.RequestedAt, m.To, m.Subject, m.ResetURL)
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write mail log: %w", err)
	}
	return nil
}
