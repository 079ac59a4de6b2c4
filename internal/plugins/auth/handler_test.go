package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/captcha"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// --- Fixture ---

// stubOptions implements options.Service with a fixed configuration.
type stubOptions struct {
	opts options.Options
}

func (s *stubOptions) Get(ctx context.Context) (options.Options, error) { return s.opts, nil }
func (s *stubOptions) Set(ctx context.Context, partial map[string]any) error {
	return nil
}
func (s *stubOptions) SetPageID(ctx context.Context, key string, id int64) error {
	return nil
}

// stubPageRepo implements pages.Repository, resolving every mapped ID to a
// fixed slug.
type stubPageRepo struct {
	slugs map[int64]string
}

func (s *stubPageRepo) Create(ctx context.Context, page *pages.Page) error { return nil }
func (s *stubPageRepo) FindByID(ctx context.Context, id int64) (*pages.Page, error) {
	if slug, ok := s.slugs[id]; ok {
		return &pages.Page{ID: id, Slug: slug}, nil
	}
	return nil, apperror.NewNotFound("page not found")
}
func (s *stubPageRepo) FindBySlug(ctx context.Context, slug string) (*pages.Page, error) {
	return nil, apperror.NewNotFound("page not found")
}
func (s *stubPageRepo) UpdateContent(ctx context.Context, id int64, content string) error {
	return nil
}

const testClientIP = "203.0.113.9"

// testHandler bundles a Handler with the pieces tests poke at directly.
type testHandler struct {
	handler *Handler
	repo    *mockUserRepo
	redis   *miniredis.Miniredis
	opts    *stubOptions
}

func newTestHandler(t *testing.T, repo *mockUserRepo) *testHandler {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	opts := options.Defaults()
	opts.PageIDs = map[string]int64{
		pages.KeyLogin:     1,
		pages.KeyDashboard: 2,
		pages.KeyProfile:   3,
	}
	stub := &stubOptions{opts: opts}

	resolver := pages.NewResolver(stub, &stubPageRepo{slugs: map[int64]string{
		1: "login", 2: "my-pages", 3: "profile",
	}}, "https://example.com")

	h := NewHandler(
		NewService(repo, rdb, time.Hour),
		stub,
		resolver,
		NewLoginLimiter(rdb),
		NewNonceService("test-secret"),
		captcha.NewVerifier(stub),
	)
	return &testHandler{handler: h, repo: repo, redis: mr, opts: stub}
}

// formToken mints the anti-forgery token an anonymous client at the test
// IP would have received when the form was rendered.
func (th *testHandler) formToken(action string) string {
	c, _ := postForm(url.Values{})
	return th.handler.IssueToken(c, action)
}

// postForm builds an echo context for a form POST to a member page.
func postForm(values url.Values) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(values.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	req.Header.Set("X-Real-Ip", testClientIP)
	rec := httptest.NewRecorder()
	return echo.New().NewContext(req, rec), rec
}

// flashFrom reads the message a branch left behind, same-request style.
func flashFrom(t *testing.T, c echo.Context) flash.Message {
	t.Helper()
	msg, ok := flash.ReadAndClear(c)
	if !ok {
		t.Fatal("expected a flash message")
	}
	return msg
}

func loginRepo(t *testing.T) *mockUserRepo {
	t.Helper()
	hash, err := hashPassword("password123")
	if err != nil {
		t.Fatalf("hashing: %v", err)
	}
	return &mockUserRepo{
		findByUsernameFn: func(ctx context.Context, username string) (*User, error) {
			if username == "jane" {
				return &User{ID: 7, Username: "jane", Email: "jane@example.com", PasswordHash: hash}, nil
			}
			return nil, apperror.NewNotFound("user not found")
		},
	}
}

// --- Login ---

func TestLoginForm_Success(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, rec := postForm(url.Values{
		"pr_form":    {"login"},
		"user_login": {"jane"},
		"user_pass":  {"password123"},
		"pr_token":   {th.formToken(ActionLogin)},
	})

	redirected, err := th.handler.Dispatch(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !redirected {
		t.Fatal("expected a redirect on successful login")
	}
	if rec.Code != http.StatusSeeOther {
		t.Errorf("expected 303, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/my-pages" {
		t.Errorf("expected the dashboard destination, got %q", loc)
	}

	var sessionCookie *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookieName {
			sessionCookie = ck
		}
	}
	if sessionCookie == nil || sessionCookie.Value == "" {
		t.Fatal("expected a session cookie")
	}
	if !sessionCookie.HttpOnly {
		t.Error("the session cookie must be HttpOnly")
	}
}

func TestLoginForm_WrongPasswordFlashesAndStays(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, rec := postForm(url.Values{
		"pr_form":    {"login"},
		"user_login": {"jane"},
		"user_pass":  {"wrong"},
		"pr_token":   {th.formToken(ActionLogin)},
	})

	redirected, err := th.handler.Dispatch(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if redirected {
		t.Fatal("a failed login must re-render the page, not redirect")
	}
	if rec.Code == http.StatusSeeOther {
		t.Error("no redirect status expected")
	}

	msg := flashFrom(t, c)
	if msg.Kind != flash.KindError {
		t.Errorf("expected an error flash, got %q", msg.Kind)
	}
	if msg.Text != "invalid username or password" {
		t.Errorf("expected the store's message verbatim, got %q", msg.Text)
	}

	// The failure counter advanced for this client.
	counted := false
	for _, k := range th.redis.Keys() {
		if strings.HasPrefix(k, loginAttemptPrefix) {
			counted = true
		}
	}
	if !counted {
		t.Error("expected a login failure to be recorded")
	}
}

func TestLoginForm_MissingNonce(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, _ := postForm(url.Values{
		"pr_form":    {"login"},
		"user_login": {"jane"},
		"user_pass":  {"password123"},
	})

	redirected, err := th.handler.Dispatch(c)
	if err != nil || redirected {
		t.Fatalf("expected a declined request, got redirected=%v err=%v", redirected, err)
	}
	if msg := flashFrom(t, c); msg.Kind != flash.KindError {
		t.Errorf("expected an error flash, got %+v", msg)
	}
}

func TestLoginForm_BlockedAfterRepeatedFailures(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	rdb := redis.NewClient(&redis.Options{Addr: th.redis.Addr()})
	defer rdb.Close()
	limiter := NewLoginLimiter(rdb)
	for i := 0; i < 5; i++ {
		limiter.RecordFailure(context.Background(), testClientIP)
	}

	c, _ := postForm(url.Values{
		"pr_form":    {"login"},
		"user_login": {"jane"},
		"user_pass":  {"password123"},
		"pr_token":   {th.formToken(ActionLogin)},
	})

	redirected, err := th.handler.Dispatch(c)
	if err != nil || redirected {
		t.Fatalf("expected a declined request, got redirected=%v err=%v", redirected, err)
	}
	msg := flashFrom(t, c)
	if !strings.Contains(msg.Text, "too many failed attempts") {
		t.Errorf("expected the lockout message, got %q", msg.Text)
	}
}

func TestLoginForm_LegacySubmitButton(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, rec := postForm(url.Values{
		"pr_login_submit": {"Log In"},
		"log":             {"jane"},
		"pwd":             {"password123"},
		"pr_token":        {th.formToken(ActionLogin)},
	})

	redirected, err := th.handler.Dispatch(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !redirected || rec.Code != http.StatusSeeOther {
		t.Error("expected the legacy field names to log in")
	}
}

func TestLoginForm_RedirectToIsSanitized(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, rec := postForm(url.Values{
		"pr_form":     {"login"},
		"user_login":  {"jane"},
		"user_pass":   {"password123"},
		"redirect_to": {"//evil.example/phish"},
		"pr_token":    {th.formToken(ActionLogin)},
	})

	if _, err := th.handler.Dispatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc := rec.Header().Get("Location"); strings.Contains(loc, "evil.example") {
		t.Errorf("protocol-relative redirect must be discarded, got %q", loc)
	}
}

func TestLoginForm_RelativeRedirectToHonored(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, rec := postForm(url.Values{
		"pr_form":     {"login"},
		"user_login":  {"jane"},
		"user_pass":   {"password123"},
		"redirect_to": {"/some-page"},
		"pr_token":    {th.formToken(ActionLogin)},
	})

	if _, err := th.handler.Dispatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc := rec.Header().Get("Location"); loc != "/some-page" {
		t.Errorf("expected the relative redirect target, got %q", loc)
	}
}

// --- Registration ---

func registerForm(th *testHandler) url.Values {
	return url.Values{
		"pr_form":    {"register"},
		"user_login": {"newbie"},
		"user_email": {"newbie@example.com"},
		"pass1":      {"password123"},
		"pass2":      {"password123"},
		"pr_token":   {th.formToken(ActionRegister)},
	}
}

func TestRegisterForm_ClosedFlashesWithoutRedirect(t *testing.T) {
	th := newTestHandler(t, &mockUserRepo{})
	th.opts.opts.RegistrationOpen = false

	c, _ := postForm(registerForm(th))

	redirected, err := th.handler.Dispatch(c)
	if err != nil || redirected {
		t.Fatalf("expected a declined request, got redirected=%v err=%v", redirected, err)
	}
	msg := flashFrom(t, c)
	if !strings.Contains(msg.Text, "registration is currently closed") {
		t.Errorf("unexpected message %q", msg.Text)
	}
}

func TestRegisterForm_AutoLoginRedirectsToDashboard(t *testing.T) {
	th := newTestHandler(t, &mockUserRepo{})
	th.opts.opts.RegistrationOpen = true
	th.opts.opts.RegisterAutoLogin = true

	c, rec := postForm(registerForm(th))

	redirected, err := th.handler.Dispatch(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !redirected {
		t.Fatal("expected a redirect")
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/my-pages" {
		t.Errorf("expected the dashboard, got %q", loc)
	}

	// Auto-login leaves a session cookie behind.
	found := false
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookieName && ck.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("expected the new member to be authenticated")
	}
}

func TestRegisterForm_WithoutAutoLoginGoesToLoginPage(t *testing.T) {
	th := newTestHandler(t, &mockUserRepo{})
	th.opts.opts.RegistrationOpen = true
	th.opts.opts.RegisterAutoLogin = false

	c, rec := postForm(registerForm(th))

	if _, err := th.handler.Dispatch(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/login" {
		t.Errorf("expected the login page, got %q", loc)
	}
	if msg := flashFrom(t, c); msg.Kind != flash.KindSuccess {
		t.Errorf("expected a success flash, got %+v", msg)
	}
}

func TestRegisterForm_PasswordMismatch(t *testing.T) {
	th := newTestHandler(t, &mockUserRepo{})
	th.opts.opts.RegistrationOpen = true

	values := registerForm(th)
	values.Set("pass2", "different456")
	c, _ := postForm(values)

	redirected, err := th.handler.Dispatch(c)
	if err != nil || redirected {
		t.Fatalf("expected a declined request, got redirected=%v err=%v", redirected, err)
	}
	if msg := flashFrom(t, c); !strings.Contains(msg.Text, "passwords do not match") {
		t.Errorf("unexpected message %q", msg.Text)
	}
}

// --- Profile ---

func TestProfileForm_RequiresSession(t *testing.T) {
	th := newTestHandler(t, &mockUserRepo{})

	c, rec := postForm(url.Values{
		"pr_form":    {"profile_update"},
		"user_email": {"jane@example.com"},
	})

	redirected, err := th.handler.Dispatch(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !redirected {
		t.Fatal("an anonymous profile edit must redirect to the login page")
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/login" {
		t.Errorf("expected the login page, got %q", loc)
	}
}

func TestProfileForm_UpdateRedirectsBackToProfile(t *testing.T) {
	var saved *User
	repo := &mockUserRepo{
		findByIDFn: func(ctx context.Context, id int64) (*User, error) {
			return &User{ID: 7, Username: "jane", Email: "jane@example.com"}, nil
		},
		updateProfileFn: func(ctx context.Context, user *User) error {
			saved = user
			return nil
		},
	}
	th := newTestHandler(t, repo)

	c, rec := postForm(url.Values{
		"pr_form":      {"profile_update"},
		"display_name": {"Jane D"},
		"user_email":   {"jane@example.com"},
		"pr_token":     {th.formToken(ActionProfile)},
	})
	c.Set(contextKeySession, &Session{UserID: 7, Username: "jane"})

	redirected, err := th.handler.Dispatch(c)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !redirected {
		t.Fatal("expected a redirect after a saved profile")
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/profile" {
		t.Errorf("expected the profile page, got %q", loc)
	}
	if saved == nil || saved.DisplayName != "Jane D" {
		t.Errorf("expected the display name to be saved, got %+v", saved)
	}
}

// --- Logout ---

func TestLogout_DestroysSessionAndRedirectsHome(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	// Establish a session first.
	c, rec := postForm(url.Values{
		"pr_form":    {"login"},
		"user_login": {"jane"},
		"user_pass":  {"password123"},
		"pr_token":   {th.formToken(ActionLogin)},
	})
	if _, err := th.handler.Dispatch(c); err != nil {
		t.Fatalf("login: %v", err)
	}
	var session *http.Cookie
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookieName {
			session = ck
		}
	}
	if session == nil {
		t.Fatal("expected a session cookie")
	}

	// With a session cookie present the logout token binds to it.
	token := NewNonceService("test-secret").Issue(ActionLogout, session.Value)
	req := httptest.NewRequest(http.MethodGet, "/?pr_action=logout&pr_token="+token, nil)
	req.AddCookie(session)
	rec2 := httptest.NewRecorder()
	c2 := echo.New().NewContext(req, rec2)

	if err := th.handler.Logout(c2); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if rec2.Code != http.StatusSeeOther {
		t.Errorf("expected 303, got %d", rec2.Code)
	}
	if loc := rec2.Header().Get("Location"); loc != "https://example.com/" {
		t.Errorf("expected the home page, got %q", loc)
	}
	if n := len(th.redis.Keys()); n != 0 {
		t.Errorf("expected the session to be destroyed, %d keys remain", n)
	}
}

func TestLogout_RejectsBadToken(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	req := httptest.NewRequest(http.MethodGet, "/?pr_action=logout&pr_token=forged", nil)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)

	if err := th.handler.Logout(c); err != nil {
		t.Fatalf("logout: %v", err)
	}
	msg := flashFrom(t, c)
	if msg.Kind != flash.KindError {
		t.Errorf("expected an error flash for a forged logout link, got %+v", msg)
	}
}

// --- Flash cookie plumbing ---

// decodeFlashCookie parses the flash payload out of the response cookies.
func decodeFlashCookie(t *testing.T, rec *httptest.ResponseRecorder) *flash.Message {
	t.Helper()
	for _, ck := range rec.Result().Cookies() {
		if ck.Name != flash.CookieName || ck.Value == "" {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(ck.Value)
		if err != nil {
			t.Fatalf("decoding flash cookie: %v", err)
		}
		var msg flash.Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			t.Fatalf("unmarshaling flash cookie: %v", err)
		}
		return &msg
	}
	return nil
}

func TestLoginForm_FailureFlashWritesCookie(t *testing.T) {
	th := newTestHandler(t, loginRepo(t))

	c, rec := postForm(url.Values{
		"pr_form":    {"login"},
		"user_login": {"jane"},
		"user_pass":  {"wrong"},
		"pr_token":   {th.formToken(ActionLogin)},
	})
	th.handler.Dispatch(c)

	if msg := decodeFlashCookie(t, rec); msg == nil || msg.Kind != flash.KindError {
		t.Errorf("expected the flash cookie on the response, got %+v", msg)
	}
}
