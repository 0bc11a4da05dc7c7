package mail

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strings"
	"time"

	"github.com/innerscope/authcore"
)

const defaultSMTPTimeout = 10 * time.Second

// SMTPConfig addresses the relay. Username empty disables authentication.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Links    Links
	// Timeout bounds the dial and the whole SMTP conversation. Zero means 10s.
	Timeout time.Duration
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPMailer delivers through an SMTP relay with STARTTLS when offered.
type SMTPMailer struct {
	cfg  SMTPConfig
	auth smtp.Auth
	send sendFunc
}

var _ authcore.Mailer = (*SMTPMailer)(nil)

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port <= 0 {
		return nil, errors.New("smtp host and port are required")
	}
	if cfg.From == "" {
		return nil, errors.New("smtp sender address is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSMTPTimeout
	}
	m := &SMTPMailer{cfg: cfg}
	m.send = m.sendMail
	if cfg.Username != "" {
		m.auth = smtp.PlainAuth("", cfg.Username, cfg.Password, cfg.Host)
	}
	return m, nil
}

func (m *SMTPMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link, err := m.cfg.Links.reset(token)
	if err != nil {
		return err
	}
	text := "A password reset was requested for your account.\r\n\r\n" +
		"Reset your password: " + link + "\r\n\r\n" +
		"If you did not ask for this, ignore this email.\r\n"
	return m.deliver(ctx, to, "Reset your password", text)
}

func (m *SMTPMailer) SendEmailVerificationEmail(ctx context.Context, to, token string) error {
	link, err := m.cfg.Links.verify(token)
	if err != nil {
		return err
	}
	text := "Confirm your email address: " + link + "\r\n"
	return m.deliver(ctx, to, "Verify your email address", text)
}

func (m *SMTPMailer) deliver(ctx context.Context, to, subject, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return errors.New("invalid recipient address")
	}
	addr := net.JoinHostPort(m.cfg.Host, fmt.Sprint(m.cfg.Port))
	if err := m.send(ctx, addr, m.auth, m.cfg.From, []string{to}, messageBody(m.cfg.From, to, subject, text)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

// sendMail runs the same conversation as smtp.SendMail on a connection whose
// deadline is the earlier of ctx and the configured timeout.
func (m *SMTPMailer) sendMail(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	dialer := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(m.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		_ = conn.Close()
		return err
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return err
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return err
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); !ok {
			return errors.New("server does not support AUTH")
		}
		if err := c.Auth(a); err != nil {
			return err
		}
	}
	if err := c.Mail(from); err != nil {
		return err
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return err
		}
	}
	w, err := c.Data()
	if err != nil {
		return err
	}
	if _, err := w.Write(msg); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return c.Quit()
}
