package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innerscope/authcore"
	"github.com/innerscope/authcore/csrf"
	"github.com/innerscope/authcore/store/memory"
)

const (
	testPassword = "StrongPass123!"
	testAdminKey = "admin-key-for-tests"
)

type plainHasher struct{}

func (plainHasher) Hash(_ context.Context, pw string) (string, error) { return "plain$" + pw, nil }
func (plainHasher) Verify(_ context.Context, pw, digest string) (bool, error) {
	return digest == "plain$"+pw, nil
}

type captureMailer struct {
	mu     sync.Mutex
	tokens map[string]string
}

func (m *captureMailer) SendPasswordResetEmail(_ context.Context, to, token string) error {
	m.put("reset:"+to, token)
	return nil
}

func (m *captureMailer) SendEmailVerificationEmail(_ context.Context, to, token string) error {
	m.put("verify:"+to, token)
	return nil
}

func (m *captureMailer) put(k, v string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tokens == nil {
		m.tokens = map[string]string{}
	}
	m.tokens[k] = v
}

func (m *captureMailer) get(k string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[k]
}

// await polls for k since delivery happens after the response is written.
func (m *captureMailer) await(t *testing.T, k string) string {
	t.Helper()
	var v string
	require.Eventually(t, func() bool {
		v = m.get(k)
		return v != ""
	}, 2*time.Second, 5*time.Millisecond, "no mail for %s", k)
	return v
}

type envelope struct {
	Status  string          `json:"status"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	router http.Handler
	mailer *captureMailer
}

func newTestServer(t *testing.T, mutate ...func(*Options)) *testServer {
	t.Helper()

	cfg := authcore.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(strings.Repeat("a", 32))
	cfg.JWT.RefreshSecret = []byte(strings.Repeat("r", 32))

	mailer := &captureMailer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine, err := authcore.New().
		WithConfig(cfg).
		WithStore(memory.New()).
		WithMailer(mailer).
		WithHasher(plainHasher{}).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	opts := Options{
		CookieSecret: []byte(strings.Repeat("c", 32)),
		AdminKey:     testAdminKey,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "authcore_login_success_total 0\n")
		}),
		Logger: logger,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h, err := NewHandler(engine, opts)
	require.NoError(t, err)
	return &testServer{router: NewRouter(h), mailer: mailer}
}

type request struct {
	method  string
	path    string
	body    any
	bearer  string
	csrf    string
	cookies []*http.Cookie
	header  map[string]string
}

func (s *testServer) do(t *testing.T, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader = http.NoBody
	if req.body != nil {
		switch b := req.body.(type) {
		case string:
			body = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			body = bytes.NewReader(raw)
		}
	}
	r := httptest.NewRequest(req.method, req.path, body)
	r.Header.Set("Content-Type", "application/json")
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	if req.csrf != "" {
		r.Header.Set(csrf.HeaderName, req.csrf)
	}
	for k, v := range req.header {
		r.Header.Set(k, v)
	}
	for _, c := range req.cookies {
		r.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, r)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return env
}

func cookie(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

type session struct {
	access  string
	csrf    string
	refresh *http.Cookie
	csrfC   *http.Cookie
}

func (s session) cookies() []*http.Cookie { return []*http.Cookie{s.refresh, s.csrfC} }

func sessionFrom(t *testing.T, rec *httptest.ResponseRecorder) session {
	t.Helper()
	var data sessionResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	refresh := cookie(rec, refreshCookieName)
	csrfC := cookie(rec, csrf.CookieName)
	require.NotNil(t, refresh)
	require.NotNil(t, csrfC)
	return session{access: data.AccessToken, csrf: data.CSRFToken, refresh: refresh, csrfC: csrfC}
}

func (s *testServer) register(t *testing.T, email string) session {
	t.Helper()
	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/register", body: registerRequest{Email: email, Password: testPassword}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return sessionFrom(t, rec)
}

func TestRegisterSetsSessionCookies(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/register", body: registerRequest{Email: "Test@Example.com", Password: testPassword, Name: "Test"}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var data sessionResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.Equal(t, "test@example.com", data.User.Email)
	assert.NotEmpty(t, data.AccessToken)
	assert.NotEmpty(t, data.CSRFToken)

	refresh := cookie(rec, refreshCookieName)
	require.NotNil(t, refresh)
	assert.True(t, refresh.HttpOnly)
	assert.Equal(t, refreshCookiePath, refresh.Path)
	assert.Equal(t, 7*24*60*60, refresh.MaxAge)

	csrfCookie := cookie(rec, csrf.CookieName)
	require.NotNil(t, csrfCookie)
	assert.False(t, csrfCookie.HttpOnly)
	assert.Equal(t, data.CSRFToken, csrfCookie.Value)

	assert.NotEmpty(t, s.mailer.await(t, "verify:test@example.com"))
}

func TestRegisterDuplicateIsConflict(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@example.com")

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/register", body: registerRequest{Email: "a@example.com", Password: testPassword}})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "CONFLICT", decode(t, rec).Code)
}

func TestRejectsMalformedBodies(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: `{"email":`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: `{"email":"a@example.com","password":"x","extra":1}`})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/register", body: registerRequest{Email: "nope", Password: testPassword}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, rec).Code)
}

func TestLoginFailuresLookIdentical(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@example.com")

	wrong := s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: loginRequest{Email: "a@example.com", Password: "WrongPass123!"}})
	unknown := s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: loginRequest{Email: "b@example.com", Password: "WrongPass123!"}})

	assert.Equal(t, http.StatusUnauthorized, wrong.Code)
	assert.Equal(t, wrong.Code, unknown.Code)
	assert.Equal(t, wrong.Body.String(), unknown.Body.String())

	ok := s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: loginRequest{Email: "a@example.com", Password: testPassword}})
	require.Equal(t, http.StatusOK, ok.Code)
	sessionFrom(t, ok)
}

func TestRefreshRotatesCookieAndRejectsReplay(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", cookies: sess.cookies()})
	assert.Equal(t, http.StatusForbidden, rec.Code, "refresh without csrf header")

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", csrf: sess.csrf, cookies: sess.cookies()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var data refreshResponse
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.NotEmpty(t, data.AccessToken)

	rotated := cookie(rec, refreshCookieName)
	require.NotNil(t, rotated)
	assert.NotEqual(t, sess.refresh.Value, rotated.Value)

	replay := s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", csrf: sess.csrf, cookies: sess.cookies()})
	assert.Equal(t, http.StatusUnauthorized, replay.Code)
	assert.Equal(t, "INVALID_TOKEN", decode(t, replay).Code)

	next := s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", csrf: sess.csrf, cookies: []*http.Cookie{rotated, sess.csrfC}})
	assert.Equal(t, http.StatusOK, next.Code)
}

func TestRefreshRejectsTamperedCookie(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	forged := &http.Cookie{Name: refreshCookieName, Value: sess.refresh.Value + "x"}
	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", csrf: sess.csrf, cookies: []*http.Cookie{forged, sess.csrfC}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMeRequiresBearer(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	rec := s.do(t, request{method: http.MethodGet, path: "/auth/v1/me"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/v1/me", bearer: sess.access})
	require.Equal(t, http.StatusOK, rec.Code)
	var user authcore.UserView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &user))
	assert.Equal(t, "a@example.com", user.Email)
	assert.False(t, user.EmailVerified)
}

func TestUpdateProfileAndDeleteAccount(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	rec := s.do(t, request{method: http.MethodPatch, path: "/auth/v1/me", bearer: sess.access, body: map[string]any{"name": "Ada"}})
	assert.Equal(t, http.StatusForbidden, rec.Code, "patch without csrf")

	rec = s.do(t, request{method: http.MethodPatch, path: "/auth/v1/me", bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies(), body: map[string]any{"name": "Ada", "birthYear": 1990}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var user authcore.UserView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &user))
	assert.Equal(t, "Ada", user.Name)
	require.NotNil(t, user.BirthYear)
	assert.Equal(t, 1990, *user.BirthYear)

	rec = s.do(t, request{method: http.MethodDelete, path: "/auth/v1/me", bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies()})
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookie(rec, refreshCookieName)
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/v1/me", bearer: sess.access})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestLogoutRevokesRefreshCookie(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/logout", bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, -1, cookie(rec, refreshCookieName).MaxAge)
	assert.Equal(t, -1, cookie(rec, csrf.CookieName).MaxAge)

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", csrf: sess.csrf, cookies: sess.cookies()})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutAllReportsCount(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")
	login := s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: loginRequest{Email: "a@example.com", Password: testPassword}})
	require.Equal(t, http.StatusOK, login.Code)

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/logout-all", bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies()})
	require.Equal(t, http.StatusOK, rec.Code)
	var data map[string]int64
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &data))
	assert.EqualValues(t, 2, data["sessionsRevoked"])
}

func TestPasswordResetFlow(t *testing.T) {
	s := newTestServer(t)
	s.register(t, "a@example.com")

	unknown := s.do(t, request{method: http.MethodPost, path: "/auth/v1/password/reset-request", body: emailRequest{Email: "ghost@example.com"}})
	known := s.do(t, request{method: http.MethodPost, path: "/auth/v1/password/reset-request", body: emailRequest{Email: "a@example.com"}})
	assert.Equal(t, http.StatusAccepted, known.Code)
	assert.Equal(t, known.Body.String(), unknown.Body.String())

	token := s.mailer.await(t, "reset:a@example.com")
	require.NotEmpty(t, token)

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/password/reset", body: passwordResetRequest{Token: token, NewPassword: "NewStrongPass456!"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/password/reset", body: passwordResetRequest{Token: token, NewPassword: "OtherStrongPass789!"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/login", body: loginRequest{Email: "a@example.com", Password: "NewStrongPass456!"}})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmailVerificationFlow(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	token := s.mailer.await(t, "verify:a@example.com")
	require.NotEmpty(t, token)

	rec := s.do(t, request{method: http.MethodPost, path: "/auth/v1/email/verify", body: tokenRequest{Token: token}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, request{method: http.MethodGet, path: "/auth/v1/me", bearer: sess.access})
	var user authcore.UserView
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &user))
	assert.True(t, user.EmailVerified)

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/email/verify-request", bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies()})
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	s := newTestServer(t)
	sess := s.register(t, "a@example.com")

	rec := s.do(t, request{
		method: http.MethodPost, path: "/auth/v1/password/change",
		bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies(),
		body: changePasswordRequest{CurrentPassword: "WrongPass123!", NewPassword: "NewStrongPass456!"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INCORRECT_PASSWORD", decode(t, rec).Code)

	rec = s.do(t, request{
		method: http.MethodPost, path: "/auth/v1/password/change",
		bearer: sess.access, csrf: sess.csrf, cookies: sess.cookies(),
		body: changePasswordRequest{CurrentPassword: testPassword, NewPassword: "NewStrongPass456!"},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(t, request{method: http.MethodPost, path: "/auth/v1/refresh", csrf: sess.csrf, cookies: sess.cookies()})
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "sessions are revoked by a password change")
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := s.do(t, request{method: http.MethodGet, path: "/healthz"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	var body healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.True(t, body.Store)
	assert.Nil(t, body.Redis)
}

func TestMetricsRequiresAdminKey(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, request{method: http.MethodGet, path: "/metrics"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: "/metrics", header: map[string]string{adminKeyHeader: "wrong"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(t, request{method: http.MethodGet, path: "/metrics", header: map[string]string{adminKeyHeader: testAdminKey}})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "authcore_login_success_total")

	unmounted := newTestServer(t, func(o *Options) { o.AdminKey = "" })
	rec = unmounted.do(t, request{method: http.MethodGet, path: "/metrics", header: map[string]string{adminKeyHeader: ""}})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNewHandlerRejectsShortCookieSecret(t *testing.T) {
	_, err := NewHandler(nil, Options{})
	assert.Error(t, err)

	_, err = newCookieSigner([]byte("short"))
	assert.Error(t, err)
}
