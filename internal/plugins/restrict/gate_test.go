package restrict

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// --- Fixture ---

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

// gateConfig is the default test configuration: everything on, all pages
// mapped.
func gateConfig() options.Options {
	opts := options.Defaults()
	opts.PageIDs = map[string]int64{
		pages.KeyLogin:     1,
		pages.KeyRegister:  2,
		pages.KeyDashboard: 3,
	}
	return opts
}

// request runs a GET through the gate and reports what happened.
func request(t *testing.T, opts options.Options, target string, session *auth.Session) (passed bool, rec *httptest.ResponseRecorder) {
	t.Helper()

	resolver := pages.NewResolver(&stubOptions{opts: opts}, &stubPageRepo{slugs: map[int64]string{
		1: "login", 2: "register", 3: "my-pages",
	}}, "https://example.com")

	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec = httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if session != nil {
		c.Set("auth_session", session)
	}

	handler := Gate(&stubOptions{opts: opts}, resolver)(func(c echo.Context) error {
		passed = true
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("gate returned error: %v", err)
	}
	return passed, rec
}

// --- Login surface ---

func TestGate_DisabledPassesEverything(t *testing.T) {
	opts := gateConfig()
	opts.Enabled = false

	passed, _ := request(t, opts, "/admin/login", nil)
	if !passed {
		t.Error("a disabled gate must not intercept anything")
	}
}

func TestGate_LoginRedirectsToMemberPage(t *testing.T) {
	passed, rec := request(t, gateConfig(), "/admin/login", nil)
	if passed {
		t.Fatal("expected the login screen to be intercepted")
	}
	if rec.Code != http.StatusFound {
		t.Errorf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/login" {
		t.Errorf("expected the member login page, got %q", loc)
	}
}

func TestGate_LoginRedirectPreservesDestination(t *testing.T) {
	_, rec := request(t, gateConfig(), "/admin/login?redirect_to=%2Fadmin%2Fedit", nil)

	loc := rec.Header().Get("Location")
	if loc != "https://example.com/login?redirect_to=%2Fadmin%2Fedit" {
		t.Errorf("expected redirect_to to survive the hop, got %q", loc)
	}
}

func TestGate_LoginSkipActionsPassThrough(t *testing.T) {
	for _, action := range []string{"logout", "lostpassword", "rp", "postpass", "interim-login"} {
		passed, _ := request(t, gateConfig(), "/admin/login?action="+action, nil)
		if !passed {
			t.Errorf("action %q must reach the native login screen", action)
		}
	}
}

func TestGate_RegisterActionGoesToRegisterPage(t *testing.T) {
	_, rec := request(t, gateConfig(), "/admin/login?action=register", nil)

	if loc := rec.Header().Get("Location"); loc != "https://example.com/register" {
		t.Errorf("expected the member register page, got %q", loc)
	}
}

func TestGate_AuthenticatedVisitorSkipsLoginScreen(t *testing.T) {
	session := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}

	_, rec := request(t, gateConfig(), "/admin/login", session)
	if loc := rec.Header().Get("Location"); loc != "https://example.com/my-pages" {
		t.Errorf("expected the post-login destination, got %q", loc)
	}
}

func TestGate_UnmappedLoginPageLeavesNativeScreen(t *testing.T) {
	opts := gateConfig()
	opts.PageIDs = nil

	passed, _ := request(t, opts, "/admin/login", nil)
	if !passed {
		t.Error("without a mapped login page the native screen must keep working")
	}
}

func TestGate_RedirectDisabledLeavesNativeScreen(t *testing.T) {
	opts := gateConfig()
	opts.RedirectAdminLogin = false

	passed, _ := request(t, opts, "/admin/login", nil)
	if !passed {
		t.Error("redirect_admin_login off must leave the native screen alone")
	}
}

// --- Admin area ---

func TestGate_BlockedRoleBouncedToDashboard(t *testing.T) {
	session := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}

	passed, rec := request(t, gateConfig(), "/admin/settings", session)
	if passed {
		t.Fatal("expected the blocked role to be bounced")
	}
	if loc := rec.Header().Get("Location"); loc != "https://example.com/my-pages" {
		t.Errorf("expected the member dashboard, got %q", loc)
	}
}

func TestGate_BlockedRoleFallsBackToHome(t *testing.T) {
	opts := gateConfig()
	delete(opts.PageIDs, pages.KeyDashboard)
	session := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}

	_, rec := request(t, opts, "/admin/settings", session)
	if loc := rec.Header().Get("Location"); loc != "https://example.com/" {
		t.Errorf("expected the home page, got %q", loc)
	}
}

func TestGate_UnblockedRolePasses(t *testing.T) {
	session := &auth.Session{UserID: 7, Roles: []string{"editor"}}

	passed, _ := request(t, gateConfig(), "/admin/settings", session)
	if !passed {
		t.Error("an unblocked role must reach the admin area")
	}
}

func TestGate_AllowListedEndpointsPass(t *testing.T) {
	session := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}

	for _, path := range []string{
		"/admin/admin-post",
		"/admin/admin-ajax",
		"/admin/async-upload",
		"/admin/post/new",
		"/admin/edit",
		"/admin/upload/media",
	} {
		passed, _ := request(t, gateConfig(), path, session)
		if !passed {
			t.Errorf("path %q must stay reachable for content creation", path)
		}
	}
}

func TestGate_BlockAdminDisabledPasses(t *testing.T) {
	opts := gateConfig()
	opts.BlockAdmin = false
	session := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}

	passed, _ := request(t, opts, "/admin/settings", session)
	if !passed {
		t.Error("block_admin off must leave the admin area open")
	}
}

func TestGate_AnonymousAdminHitPassesToLoginSurface(t *testing.T) {
	passed, _ := request(t, gateConfig(), "/admin/settings", nil)
	if !passed {
		t.Error("anonymous admin hits are the login surface's problem, not the blocker's")
	}
}

func TestGate_FrontendPathsUntouched(t *testing.T) {
	passed, _ := request(t, gateConfig(), "/some-page", nil)
	if !passed {
		t.Error("front-end paths must pass the gate untouched")
	}
}

// --- Admin bar ---

func TestAdminBarVisible(t *testing.T) {
	conf := gateConfig()
	blocked := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}
	editor := &auth.Session{UserID: 8, Roles: []string{"editor"}}

	if AdminBarVisible(conf, nil) {
		t.Error("anonymous visitors never see the admin bar")
	}
	if AdminBarVisible(conf, blocked) {
		t.Error("blocked roles lose the admin bar when hiding is on")
	}
	if !AdminBarVisible(conf, editor) {
		t.Error("unblocked roles keep the admin bar")
	}

	conf.HideAdminBar = false
	if !AdminBarVisible(conf, blocked) {
		t.Error("with hiding off every member keeps the admin bar")
	}
}

// --- Capabilities ---

func TestCapabilities(t *testing.T) {
	conf := gateConfig()
	owner := &auth.Session{UserID: 7, Roles: []string{"subscriber"}}
	editor := &auth.Session{UserID: 8, Roles: []string{"editor"}}
	admin := &auth.Session{UserID: 9, Roles: []string{"administrator"}}

	if CanEditPost(conf, nil, 7) {
		t.Error("anonymous visitors may not edit posts")
	}
	if !CanEditPost(conf, owner, 7) {
		t.Error("authors may edit their own posts")
	}
	if CanEditPost(conf, owner, 99) {
		t.Error("blocked roles are pinned to their own posts")
	}
	if !CanEditPost(conf, editor, 99) {
		t.Error("editors may edit any post")
	}
	if !CanDeletePost(conf, admin, 99) {
		t.Error("administrators may delete any post")
	}
	if !CanReadPost(conf, owner, 7) {
		t.Error("authors may read their own posts")
	}
	if CanReadPost(conf, owner, 99) {
		t.Error("blocked roles may not read others' private posts")
	}
}
