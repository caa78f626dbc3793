// Package mailer sends notification e-mail over SMTP.
package mailer

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"

	mail "github.com/go-mail/mail/v2"

	"github.com/JRCMora/jms-api/pkg/config"
)

// ErrNotConfigured is returned when SMTP host or sender are missing.
var ErrNotConfigured = errors.New("smtp not configured (SMTP_HOST/SMTP_FROM)")

// Message is one outbound e-mail.
type Message struct {
	To      []string
	Subject string
	HTML    string
}

type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// SMTPMailer delivers messages with go-mail using mandatory STARTTLS.
type SMTPMailer struct {
	from   string
	dialer dialer
}

// New builds a mailer from SMTP settings.
func New(cfg config.SMTPConfig) (*SMTPMailer, error) {
	if strings.TrimSpace(cfg.Host) == "" || strings.TrimSpace(cfg.From) == "" {
		return nil, ErrNotConfigured
	}
	port := cfg.Port
	if port == 0 {
		port = 587
	}
	d := mail.NewDialer(cfg.Host, port, cfg.User, cfg.Password)
	d.StartTLSPolicy = mail.MandatoryStartTLS
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Host,
		InsecureSkipVerify: cfg.SkipTLSVerify,
	}
	return &SMTPMailer{from: cfg.From, dialer: d}, nil
}

// Send delivers msg. An empty recipient list is a no-op.
func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := m.dialer.DialAndSend(Build(m.from, msg)); err != nil {
		return fmt.Errorf("send mail %q: %w", msg.Subject, err)
	}
	return nil
}

// Build renders msg into a go-mail message.
func Build(from string, msg Message) *mail.Message {
	out := mail.NewMessage()
	out.SetHeader("From", from)
	out.SetHeader("To", msg.To...)
	out.SetHeader("Subject", msg.Subject)
	out.SetBody("text/html", msg.HTML)
	return out
}
