package app

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/restrict"
	"github.com/solhem/memberpages/internal/plugins/shortcodes"
	"github.com/solhem/memberpages/internal/plugins/social"
)

// RegisterRoutes sets up all application routes. This is the single place
// where routes are aggregated; plugins with their own sub-surfaces hang
// off groups created here.
func (a *App) RegisterRoutes() {
	e := a.Echo

	// Health check endpoint for container orchestration.
	e.GET("/healthz", a.healthz)

	// OAuth provider callback. Also reachable through the legacy
	// pr_social_login query parameter via the action interceptor below.
	e.GET(social.CallbackPath, a.Social.Callback)

	// --- Native admin surface, behind the access gate ---

	gate := restrict.Gate(a.Options, a.Resolver)

	admin := e.Group("/admin", gate)
	admin.GET("/login", a.nativeLogin)
	admin.POST("/login", a.nativeLogin)

	// Settings API, administrators only.
	api := admin.Group("/api", auth.RequireAdmin())
	options.RegisterRoutes(api, a.Settings)

	// --- Member content pages ---

	// The action interceptor handles the request-init actions carried in
	// query parameters: logout links and provider-tagged OAuth callbacks.
	e.GET("/", a.home, gate, a.actionInterceptor)
	e.GET("/:slug", a.Pages.Show, gate, a.actionInterceptor)
	e.POST("/:slug", a.Pages.Submit, gate)
}

// actionInterceptor dispatches the query-parameter actions that can ride
// on any page URL before the page itself renders.
func (a *App) actionInterceptor(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if c.QueryParam("pr_action") == "logout" {
			return a.AuthHandler.Logout(c)
		}
		if c.QueryParam("pr_social_login") != "" && c.QueryParam("code") != "" {
			return a.Social.Callback(c)
		}
		return next(c)
	}
}

// home is a minimal landing page pointing at the member pages.
func (a *App) home(c echo.Context) error {
	ctx := c.Request().Context()
	body := `<p>Welcome.</p>`
	if url := a.Resolver.URLFor(ctx, "login"); url != "" {
		body += `<p><a href="` + url + `">Log in</a></p>`
	}
	return c.HTML(http.StatusOK,
		"<!DOCTYPE html><html><body><main>"+body+"</main></body></html>")
}

// nativeLogin is the admin login surface. When the gate's login redirect
// is enabled visitors never reach it; when it is off (or the login page
// is unmapped) it serves the same login fragment the front-end page does.
func (a *App) nativeLogin(c echo.Context) error {
	if c.Request().Method == http.MethodPost {
		redirected, err := a.AuthHandler.Dispatch(c)
		if err != nil {
			return err
		}
		if redirected {
			return nil
		}
	}
	return a.renderFragmentPage(c, "Log In", shortcodes.TagLogin)
}

// renderFragmentPage renders a standalone fragment outside the content
// pages, with the same layout and flash handling.
func (a *App) renderFragmentPage(c echo.Context, title, tag string) error {
	body, err := a.Renderer.Render(c, tag)
	if err != nil {
		return err
	}

	var flashData any
	if msg, ok := flash.ReadAndClear(c); ok {
		flashData = msg
	}

	html, err := a.Renderer.Layout(c, title, flashData, body)
	if err != nil {
		return err
	}
	return c.HTML(http.StatusOK, string(html))
}

// healthz verifies DB and Redis connectivity.
func (a *App) healthz(c echo.Context) error {
	ctx := c.Request().Context()

	if err := a.DB.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "database": err.Error(),
		})
	}
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{
			"status": "degraded", "redis": err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}
