package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/smtp"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLinks = Links{
	ResetURL:  "https://app.example.com/reset",
	VerifyURL: "https://app.example.com/verify?src=mail",
}

func TestLogMailerLogsLinks(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(testLinks, slog.New(slog.NewTextHandler(&buf, nil)))

	require.NoError(t, m.SendPasswordResetEmail(context.Background(), "a@example.com", "tok1"))
	require.NoError(t, m.SendEmailVerificationEmail(context.Background(), "a@example.com", "tok/2"))

	out := buf.String()
	assert.Contains(t, out, "https://app.example.com/reset?token=tok1")
	assert.Contains(t, out, "src=mail&token=tok%2F2")
}

type sent struct {
	addr string
	from string
	to   []string
	msg  string
}

func newTestSMTP(t *testing.T, err error) (*SMTPMailer, *[]sent) {
	t.Helper()
	m, nerr := NewSMTPMailer(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com", Links: testLinks})
	require.NoError(t, nerr)
	var log []sent
	m.send = func(_ context.Context, addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		log = append(log, sent{addr: addr, from: from, to: to, msg: string(msg)})
		return err
	}
	return m, &log
}

func TestSMTPMailerComposesMessage(t *testing.T) {
	m, log := newTestSMTP(t, nil)

	require.NoError(t, m.SendPasswordResetEmail(context.Background(), "a@example.com", "tok1"))
	require.Len(t, *log, 1)
	got := (*log)[0]
	assert.Equal(t, "smtp.example.com:587", got.addr)
	assert.Equal(t, "noreply@example.com", got.from)
	assert.Equal(t, []string{"a@example.com"}, got.to)
	assert.True(t, strings.HasPrefix(got.msg, "From: noreply@example.com\r\nTo: a@example.com\r\nSubject: Reset your password\r\n"))
	assert.Contains(t, got.msg, "https://app.example.com/reset?token=tok1")
}

func TestSMTPMailerRejectsHeaderInjection(t *testing.T) {
	m, log := newTestSMTP(t, nil)
	err := m.SendEmailVerificationEmail(context.Background(), "a@example.com\r\nBcc: x@evil.test", "tok")
	assert.Error(t, err)
	assert.Empty(t, *log)
}

func TestSMTPMailerWrapsErrorsAndHonoursContext(t *testing.T) {
	boom := errors.New("relay refused")
	m, _ := newTestSMTP(t, boom)
	assert.ErrorIs(t, m.SendEmailVerificationEmail(context.Background(), "a@example.com", "tok"), boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.SendPasswordResetEmail(ctx, "a@example.com", "tok"), context.Canceled)
}

func TestNewSMTPMailerValidates(t *testing.T) {
	_, err := NewSMTPMailer(SMTPConfig{Port: 25, From: "a@example.com"})
	assert.Error(t, err)
	_, err = NewSMTPMailer(SMTPConfig{Host: "h", Port: 25})
	assert.Error(t, err)

	m, err := NewSMTPMailer(SMTPConfig{Host: "h", Port: 25, From: "a@example.com", Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.NotNil(t, m.auth)
}

// fakeRelay speaks just enough SMTP for one unauthenticated delivery and
// reports the DATA payload.
func fakeRelay(t *testing.T) (host string, port int, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	bodies := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		_ = tp.PrintfLine("220 relay.test ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			verb, _, _ := strings.Cut(line, " ")
			switch strings.ToUpper(verb) {
			case "EHLO", "HELO":
				_ = tp.PrintfLine("250 relay.test")
			case "MAIL", "RCPT":
				_ = tp.PrintfLine("250 ok")
			case "DATA":
				_ = tp.PrintfLine("354 go ahead")
				body, _ := io.ReadAll(tp.DotReader())
				bodies <- string(body)
				_ = tp.PrintfLine("250 queued")
			case "QUIT":
				_ = tp.PrintfLine("221 bye")
				return
			default:
				_ = tp.PrintfLine("502 unsupported")
			}
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port, bodies
}

func TestSMTPMailerDeliversOverTCP(t *testing.T) {
	host, port, got := fakeRelay(t)
	m, err := NewSMTPMailer(SMTPConfig{Host: host, Port: port, From: "noreply@example.com", Links: testLinks, Timeout: 5 * time.Second})
	require.NoError(t, err)

	require.NoError(t, m.SendEmailVerificationEmail(context.Background(), "a@example.com", "tok1"))
	select {
	case body := <-got:
		assert.Contains(t, body, "Subject: Verify your email address")
		assert.Contains(t, body, "token=tok1")
	case <-time.After(5 * time.Second):
		t.Fatal("relay never received DATA")
	}
}

func TestSMTPMailerTimesOutOnSilentRelay(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })
	held := make(chan net.Conn, 1)
	go func() {
		// accept and never greet
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		held <- conn
	}()
	t.Cleanup(func() {
		select {
		case conn := <-held:
			_ = conn.Close()
		default:
		}
	})

	addr := ln.Addr().(*net.TCPAddr)
	m, err := NewSMTPMailer(SMTPConfig{Host: addr.IP.String(), Port: addr.Port, From: "noreply@example.com", Links: testLinks, Timeout: 100 * time.Millisecond})
	require.NoError(t, err)

	start := time.Now()
	err = m.SendPasswordResetEmail(context.Background(), "a@example.com", "tok")
	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestNewSMTPMailerDefaultsTimeout(t *testing.T) {
	m, err := NewSMTPMailer(SMTPConfig{Host: "h", Port: 25, From: "a@example.com"})
	require.NoError(t, err)
	assert.Equal(t, defaultSMTPTimeout, m.cfg.Timeout)
}
