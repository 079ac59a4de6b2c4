// Package shortcodes renders the member-page fragments. Each content page
// carries a tag like [pr_login] in its body; the renderer expands the tag
// into the matching HTML fragment at request time. When the master toggle
// is off every tag expands to the empty string, so disabling the feature
// leaves only blank pages behind, never errors.
package shortcodes

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/captcha"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
	"github.com/solhem/memberpages/internal/plugins/posts"
	"github.com/solhem/memberpages/internal/plugins/privacy"
	"github.com/solhem/memberpages/internal/plugins/restrict"
	"github.com/solhem/memberpages/internal/plugins/social"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Tags recognized in page content.
const (
	TagLogin     = "[pr_login]"
	TagRegister  = "[pr_register]"
	TagDashboard = "[pr_dashboard]"
	TagProfile   = "[pr_profile]"
	TagLogout    = "[pr_logout]"
	TagPostEdit  = "[pr_post_edit]"
)

// RequestHistory lists a member's past privacy requests for the profile
// page. Satisfied by the privacy service.
type RequestHistory interface {
	History(ctx context.Context, session *auth.Session) ([]privacy.Request, error)
}

// Renderer expands member-page tags into HTML fragments.
type Renderer struct {
	opts     options.Service
	resolver *pages.Resolver
	accounts auth.Service
	forms    *auth.Handler
	socials  *social.Handler
	posts    posts.Service
	requests RequestHistory
	tmpl     *template.Template
}

// NewRenderer parses the embedded templates and wires the fragment
// dependencies.
func NewRenderer(opts options.Service, resolver *pages.Resolver, accounts auth.Service,
	forms *auth.Handler, socials *social.Handler, postSvc posts.Service,
	requests RequestHistory) (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("parsing fragment templates: %w", err)
	}
	return &Renderer{
		opts:     opts,
		resolver: resolver,
		accounts: accounts,
		forms:    forms,
		socials:  socials,
		posts:    postSvc,
		requests: requests,
		tmpl:     tmpl,
	}, nil
}

// Layout renders the full page shell around a fragment body. The admin
// toolbar renders only for visitors the restriction rules allow it for.
func (r *Renderer) Layout(c echo.Context, title string, flashMsg any, body template.HTML) (template.HTML, error) {
	conf, err := r.opts.Get(c.Request().Context())
	if err != nil {
		return "", err
	}
	return r.execute("layout", map[string]any{
		"Title":    title,
		"Flash":    flashMsg,
		"Body":     body,
		"AdminBar": restrict.AdminBarVisible(conf, auth.GetSession(c)),
	})
}

// Render expands one tag. Unknown tags pass through untouched so ordinary
// page prose survives. A disabled feature renders every tag empty.
func (r *Renderer) Render(c echo.Context, tag string) (template.HTML, error) {
	conf, err := r.opts.Get(c.Request().Context())
	if err != nil || !conf.Enabled {
		return "", nil
	}

	switch tag {
	case TagLogin:
		return r.renderLogin(c, conf)
	case TagRegister:
		return r.renderRegister(c, conf)
	case TagDashboard:
		return r.renderDashboard(c, conf)
	case TagProfile:
		return r.renderProfile(c, conf)
	case TagLogout:
		return r.renderLogout(c)
	case TagPostEdit:
		return r.renderPostEdit(c, conf)
	}
	return template.HTML(template.HTMLEscapeString(tag)), nil
}

// captchaData feeds the shared captcha partial.
type captchaData struct {
	Provider  string
	SiteKey   string
	Timestamp string
}

func newCaptchaData(conf options.Options) captchaData {
	return captchaData{
		Provider:  conf.Captcha.Provider,
		SiteKey:   conf.Captcha.SiteKey,
		Timestamp: captcha.Timestamp(),
	}
}

func (r *Renderer) renderLogin(c echo.Context, conf options.Options) (template.HTML, error) {
	ctx := c.Request().Context()
	return r.execute("login", map[string]any{
		"LoggedIn":     auth.GetSession(c) != nil,
		"Token":        r.forms.IssueToken(c, auth.ActionLogin),
		"RedirectTo":   c.QueryParam("redirect_to"),
		"Captcha":      newCaptchaData(conf),
		"GoogleURL":    r.socials.AuthorizationURL(c, social.ProviderGoogle),
		"WordPressURL": r.socials.AuthorizationURL(c, social.ProviderWordPress),
		"RegisterURL":  r.registerURL(c, conf),
		"DashboardURL": r.resolver.RedirectAfterLogin(ctx),
	})
}

func (r *Renderer) renderRegister(c echo.Context, conf options.Options) (template.HTML, error) {
	return r.execute("register", map[string]any{
		"LoggedIn":         auth.GetSession(c) != nil,
		"RegistrationOpen": conf.RegistrationOpen,
		"Token":            r.forms.IssueToken(c, auth.ActionRegister),
		"Captcha":          newCaptchaData(conf),
		"LoginURL":         r.resolver.URLFor(c.Request().Context(), pages.KeyLogin),
		"DashboardURL":     r.resolver.RedirectAfterLogin(c.Request().Context()),
	})
}

func (r *Renderer) renderProfile(c echo.Context, conf options.Options) (template.HTML, error) {
	session := auth.GetSession(c)
	if session == nil {
		return r.loginPrompt(c)
	}

	user, err := r.accounts.FindByID(c.Request().Context(), session.UserID)
	if err != nil {
		return "", err
	}

	history, err := r.requests.History(c.Request().Context(), session)
	if err != nil {
		return "", err
	}

	return r.execute("profile", map[string]any{
		"User":         user,
		"Token":        r.forms.IssueToken(c, auth.ActionProfile),
		"PrivacyToken": r.forms.IssueToken(c, auth.ActionPrivacy),
		"AllowExport":  conf.Privacy.AllowExport,
		"AllowErase":   conf.Privacy.AllowErase,
		"Requests":     history,
	})
}

func (r *Renderer) renderDashboard(c echo.Context, conf options.Options) (template.HTML, error) {
	session := auth.GetSession(c)
	if session == nil {
		return r.loginPrompt(c)
	}

	page, _ := strconv.Atoi(c.QueryParam("paged"))
	result, err := r.posts.Dashboard(c.Request().Context(), session, page)
	if err != nil {
		return "", err
	}

	editURL := r.resolver.URLFor(c.Request().Context(), pages.KeyPostEdit)
	createURL := ""
	if conf.AllowFrontendCreate && editURL != "" {
		createURL = editURL
	}

	return r.execute("dashboard", map[string]any{
		"Result":         result,
		"ShowReviewMeta": conf.Dashboard.ShowReviewMeta,
		"EditURL":        editURL,
		"CreateURL":      createURL,
		"PrevPage":       result.Page - 1,
		"NextPage":       result.Page + 1,
	})
}

func (r *Renderer) renderPostEdit(c echo.Context, conf options.Options) (template.HTML, error) {
	session := auth.GetSession(c)
	if session == nil {
		return r.loginPrompt(c)
	}

	post := &posts.Post{Status: posts.StatusDraft}
	if len(conf.Dashboard.PostTypes) > 0 {
		post.Type = conf.Dashboard.PostTypes[0]
	}

	if idParam := c.QueryParam("post_id"); idParam != "" {
		id, err := strconv.ParseInt(idParam, 10, 64)
		if err == nil && id > 0 {
			loaded, err := r.posts.FindForEdit(c.Request().Context(), session, id)
			if err != nil {
				return "", err
			}
			post = loaded
		}
	}

	return r.execute("post_edit", map[string]any{
		"Post":         post,
		"Token":        r.forms.IssueToken(c, auth.ActionPost),
		"CanPublish":   session.IsAdmin() || session.HasAnyRole([]string{"editor", "author"}),
		"DashboardURL": r.resolver.URLFor(c.Request().Context(), pages.KeyDashboard),
	})
}

func (r *Renderer) renderLogout(c echo.Context) (template.HTML, error) {
	return r.execute("logout", map[string]any{
		"LoggedIn": auth.GetSession(c) != nil,
		"Token":    r.forms.IssueToken(c, auth.ActionLogout),
		"LoginURL": r.resolver.URLFor(c.Request().Context(), pages.KeyLogin),
	})
}

// loginPrompt is what members-only fragments show anonymous visitors.
func (r *Renderer) loginPrompt(c echo.Context) (template.HTML, error) {
	url := r.resolver.URLFor(c.Request().Context(), pages.KeyLogin)
	if url == "" {
		return "<p>Please log in to view this page.</p>", nil
	}
	return template.HTML(fmt.Sprintf(
		`<p>Please <a href="%s">log in</a> to view this page.</p>`,
		template.HTMLEscapeString(url))), nil
}

// registerURL hides the register link when registration is closed or the
// page is unmapped.
func (r *Renderer) registerURL(c echo.Context, conf options.Options) string {
	if !conf.RegistrationOpen {
		return ""
	}
	return r.resolver.URLFor(c.Request().Context(), pages.KeyRegister)
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s fragment: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
