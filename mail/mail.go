package mail

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/innerscope/authcore"
)

// Links builds the URLs placed in outgoing mail. Each base URL receives the
// token as its "token" query parameter.
type Links struct {
	ResetURL  string
	VerifyURL string
}

func (l Links) reset(token string) (string, error)  { return withToken(l.ResetURL, token) }
func (l Links) verify(token string) (string, error) { return withToken(l.VerifyURL, token) }

func withToken(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse link base: %w", err)
	}
	q := u.Query()
	q.Set("token", token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// LogMailer writes the links it would send to a logger. Use it only where
// logs are private: the links carry live tokens.
type LogMailer struct {
	links  Links
	logger *slog.Logger
}

var _ authcore.Mailer = (*LogMailer)(nil)

func NewLogMailer(links Links, logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{links: links, logger: logger.With("module", "mail")}
}

func (m *LogMailer) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	link, err := m.links.reset(token)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "password reset email", "to", to, "link", link)
	return nil
}

func (m *LogMailer) SendEmailVerificationEmail(ctx context.Context, to, token string) error {
	link, err := m.links.verify(token)
	if err != nil {
		return err
	}
	m.logger.InfoContext(ctx, "email verification email", "to", to, "link", link)
	return nil
}

func messageBody(from, to, subject, text string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(text)
	return []byte(b.String())
}
