// Package restrict is the access gate in front of the native admin
// surface. It redirects visitors of the admin login screen to the
// front-end member pages, keeps blocked-role members out of the admin
// area (with a fixed allow-list so content creation keeps working), and
// narrows post capabilities for blocked roles to their own posts.
//
// When the master toggle is off the gate performs no redirects at all.
package restrict

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// Admin surface paths.
const (
	adminPrefix    = "/admin"
	adminLoginPath = "/admin/login"
)

// loginSkipActions are login-screen actions the gate never intercepts.
// They cover flows the front-end pages do not replace: password recovery,
// post passwords, logout confirmation, and embedded login frames.
var loginSkipActions = map[string]bool{
	"logout":           true,
	"lostpassword":     true,
	"retrievepassword": true,
	"resetpass":        true,
	"rp":               true,
	"postpass":         true,
	"confirmaction":    true,
	"checkemail":       true,
	"interim-login":    true,
}

// adminAllowPaths are admin endpoints blocked-role members may always
// reach: the generic form-post handler, the ajax handler, and the async
// uploader.
var adminAllowPaths = map[string]bool{
	"/admin/admin-post":   true,
	"/admin/admin-ajax":   true,
	"/admin/async-upload": true,
}

// adminAllowPrefixes are admin screens blocked-role members keep: the
// post editor, the post list, and the media library, so front-end
// content creation still works.
var adminAllowPrefixes = []string{
	"/admin/post",
	"/admin/edit",
	"/admin/upload",
}

// Gate returns the access-restriction middleware. It assumes
// auth.LoadSession ran earlier in the chain.
func Gate(opts options.Service, resolver *pages.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			conf, err := opts.Get(c.Request().Context())
			if err != nil || !conf.Enabled {
				return next(c)
			}

			path := c.Request().URL.Path

			if path == adminLoginPath {
				if dest := loginRedirect(c, conf, resolver); dest != "" {
					return c.Redirect(http.StatusFound, dest)
				}
				return next(c)
			}

			if strings.HasPrefix(path, adminPrefix) {
				if dest := adminRedirect(c, conf, resolver, path); dest != "" {
					return c.Redirect(http.StatusFound, dest)
				}
			}

			return next(c)
		}
	}
}

// loginRedirect decides whether a hit on the native login screen should
// bounce to a front-end page. Returns "" to let the request through.
func loginRedirect(c echo.Context, conf options.Options, resolver *pages.Resolver) string {
	if !conf.RedirectAdminLogin {
		return ""
	}

	action := c.QueryParam("action")
	if loginSkipActions[action] {
		return ""
	}

	ctx := c.Request().Context()

	// Registration hits go to the front-end register page when mapped.
	if action == "register" {
		if dest := resolver.URLFor(ctx, pages.KeyRegister); dest != "" {
			return dest
		}
	}

	// Already authenticated: skip the login screen entirely.
	if auth.GetSession(c) != nil {
		return resolver.RedirectAfterLogin(ctx)
	}

	dest := resolver.URLFor(ctx, pages.KeyLogin)
	if dest == "" {
		// No mapped login page, leave the native screen alone.
		return ""
	}

	// Preserve the post-login destination across the hop.
	if redirectTo := c.QueryParam("redirect_to"); redirectTo != "" {
		dest += "?redirect_to=" + url.QueryEscape(redirectTo)
	}
	return dest
}

// adminRedirect decides whether an admin-area hit by a blocked-role
// member should bounce to the member dashboard. Returns "" to let the
// request through.
func adminRedirect(c echo.Context, conf options.Options, resolver *pages.Resolver, path string) string {
	if !conf.BlockAdmin {
		return ""
	}

	if adminAllowPaths[path] {
		return ""
	}
	for _, prefix := range adminAllowPrefixes {
		if strings.HasPrefix(path, prefix) {
			return ""
		}
	}

	session := auth.GetSession(c)
	if session == nil {
		// Anonymous visitors fall through to the login surface rule.
		return ""
	}
	if !session.HasAnyRole(conf.BlockedRoles) {
		return ""
	}

	if dest := resolver.URLFor(c.Request().Context(), pages.KeyDashboard); dest != "" {
		return dest
	}
	return resolver.HomeURL()
}

// AdminBarVisible reports whether the admin toolbar should render for
// the current visitor. Blocked-role members lose it when hide_admin_bar
// is set; anonymous visitors never see it.
func AdminBarVisible(conf options.Options, session *auth.Session) bool {
	if session == nil {
		return false
	}
	if !conf.Enabled || !conf.HideAdminBar {
		return true
	}
	return !session.HasAnyRole(conf.BlockedRoles)
}
