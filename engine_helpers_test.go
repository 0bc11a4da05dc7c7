package authcore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/innerscope/authcore/store/memory"
)

const testPassword = "StrongPass123!"

// countingHasher stands in for bcrypt so tests stay fast while still
// observing how many hash operations each path performs.
type countingHasher struct {
	hashes   atomic.Int64
	verifies atomic.Int64
	fail     error
	// truncate > 0 mimics bcrypt ignoring input past that many bytes.
	truncate int
}

func (h *countingHasher) input(pw string) string {
	if h.truncate > 0 && len(pw) > h.truncate {
		return pw[:h.truncate]
	}
	return pw
}

func (h *countingHasher) Hash(_ context.Context, pw string) (string, error) {
	h.hashes.Add(1)
	if h.fail != nil {
		return "", h.fail
	}
	return "fake$" + h.input(pw), nil
}

func (h *countingHasher) Verify(_ context.Context, pw, digest string) (bool, error) {
	h.verifies.Add(1)
	if h.fail != nil {
		return false, h.fail
	}
	return digest == "fake$"+h.input(pw), nil
}

func (h *countingHasher) ops() int64 {
	return h.hashes.Load() + h.verifies.Load()
}

func (h *countingHasher) reset() {
	h.hashes.Store(0)
	h.verifies.Store(0)
}

type sentMail struct {
	kind  string
	to    string
	token string
}

type recordingMailer struct {
	mu    sync.Mutex
	sent  []sentMail
	err   error
	delay time.Duration
	// flush waits for the engine's send queue; set once the engine is built.
	flush func()
}

func (m *recordingMailer) settle() {
	if m.flush != nil {
		m.flush()
	}
}

func (m *recordingMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	return m.record("reset", to, token)
}

func (m *recordingMailer) SendEmailVerificationEmail(_ context.Context, to, token string) error {
	return m.record("verify", to, token)
}

func (m *recordingMailer) record(kind, to, token string) error {
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
	return m.err
}

func (m *recordingMailer) last(kind string) (sentMail, bool) {
	m.settle()
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

func (m *recordingMailer) count(kind string) int {
	m.settle()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	engine *Engine
	store  *memory.Store
	hasher *countingHasher
	mailer *recordingMailer
	clock  *testClock
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}

	env := &testEnv{
		store:  memory.New(),
		hasher: &countingHasher{},
		mailer: &recordingMailer{},
		clock:  newTestClock(),
	}
	engine, err := New().
		WithConfig(cfg).
		WithStore(env.store).
		WithMailer(env.mailer).
		WithHasher(env.hasher).
		WithClock(env.clock.Now).
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(engine.Close)
	env.engine = engine
	env.mailer.flush = engine.mail.wait
	env.hasher.reset()
	return env
}

func (env *testEnv) register(t *testing.T, email string) *Session {
	t.Helper()
	s, err := env.engine.Register(context.Background(), RegisterInput{Email: email, Password: testPassword})
	if err != nil {
		t.Fatalf("Register(%q) failed: %v", email, err)
	}
	return s
}

func assertErrorIs(t *testing.T, err, target error) {
	t.Helper()
	if !errors.Is(err, target) {
		t.Fatalf("expected %v, got %v", target, err)
	}
}
