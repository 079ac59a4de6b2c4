// Package app is the application bootstrap and dependency injection root.
// It creates and holds all shared infrastructure (DB pool, Redis client,
// Echo instance) and wires together the member-page plugins.
package app

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/config"
	"github.com/solhem/memberpages/internal/middleware"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/captcha"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
	"github.com/solhem/memberpages/internal/plugins/posts"
	"github.com/solhem/memberpages/internal/plugins/privacy"
	"github.com/solhem/memberpages/internal/plugins/shortcodes"
	"github.com/solhem/memberpages/internal/plugins/social"
)

// App holds all shared dependencies and the Echo HTTP server instance.
// Created once at startup in main.go and used to register all routes.
type App struct {
	Config *config.Config
	DB     *sql.DB
	Redis  *redis.Client
	Echo   *echo.Echo

	// Plugin roots, wired in New and consumed by RegisterRoutes.
	Options     options.Service
	Resolver    *pages.Resolver
	Accounts    auth.Service
	AuthHandler *auth.Handler
	Social      *social.Handler
	Renderer    *shortcodes.Renderer
	Pages       *shortcodes.Handler
	Settings    *options.Handler
}

// New creates the App, configures the Echo server with global middleware
// and error handling, and wires every plugin together.
func New(cfg *config.Config, db *sql.DB, rdb *redis.Client) (*App, error) {
	e := echo.New()

	// Disable Echo's default banner and startup message -- we log our own.
	e.HideBanner = true
	e.HidePort = true

	// Configure trusted reverse proxy IPs so c.RealIP() returns the actual
	// client IP instead of the proxy's IP. The login failure counter and
	// the form nonces both key on it.
	middleware.TrustedProxies(e, []string{
		"127.0.0.0/8",    // Localhost
		"10.0.0.0/8",     // Docker default bridge
		"172.16.0.0/12",  // Docker bridge (alternate range)
		"192.168.0.0/16", // Common LAN
		"fd00::/8",       // IPv6 private
	})

	app := &App{
		Config: cfg,
		DB:     db,
		Redis:  rdb,
		Echo:   e,
	}

	if err := app.wirePlugins(); err != nil {
		return nil, err
	}

	app.setupMiddleware()
	e.HTTPErrorHandler = app.errorHandler

	return app, nil
}

// wirePlugins builds every plugin bottom-up: repositories, services,
// handlers.
func (a *App) wirePlugins() error {
	// Options first -- nearly everything reads the configuration.
	a.Options = options.NewService(options.NewRepository(a.DB))
	a.Settings = options.NewHandler(a.Options)

	// Pages and the URL resolver.
	pageRepo := pages.NewRepository(a.DB)
	a.Resolver = pages.NewResolver(a.Options, pageRepo, a.Config.BaseURL)

	// Accounts, sessions, and the form pipeline.
	a.Accounts = auth.NewService(auth.NewUserRepository(a.DB), a.Redis, a.Config.SessionTTL)
	limiter := auth.NewLoginLimiter(a.Redis)
	nonces := auth.NewNonceService(a.Config.SecretKey)
	verifier := captcha.NewVerifier(a.Options)
	a.AuthHandler = auth.NewHandler(a.Accounts, a.Options, a.Resolver, limiter, nonces, verifier)

	// Privacy requests plug into the form pipeline through the auth handler.
	privacySvc := privacy.NewService(privacy.NewRepository(a.DB), a.Options)
	a.AuthHandler.SetPrivacyDispatch(privacy.Dispatch(privacySvc, a.Resolver))

	// Social login.
	a.Social = social.NewHandler(a.Accounts, a.Options, a.Resolver, a.Config.SecretKey, a.Config.BaseURL)

	// Posts and the dashboard.
	postSvc := posts.NewService(posts.NewRepository(a.DB), a.Options)
	postHandler := posts.NewHandler(postSvc, a.Resolver, nonces)

	// The fragment renderer and the page pipeline.
	renderer, err := shortcodes.NewRenderer(a.Options, a.Resolver, a.Accounts, a.AuthHandler, a.Social, postSvc, privacySvc)
	if err != nil {
		return fmt.Errorf("building fragment renderer: %w", err)
	}
	a.Renderer = renderer
	a.Pages = shortcodes.NewHandler(pageRepo, renderer, a.Resolver, a.AuthHandler.Dispatch, postHandler.Dispatch)

	return nil
}

// setupMiddleware registers global middleware on the Echo instance.
// Order matters: outermost (recovery) runs first.
func (a *App) setupMiddleware() {
	// Panic recovery -- must be outermost to catch panics everywhere.
	a.Echo.Use(middleware.Recovery())

	// Request logging -- method, path, status, latency per request.
	a.Echo.Use(middleware.RequestLogger())

	// Security headers -- CSP, X-Frame-Options, X-Content-Type-Options, etc.
	a.Echo.Use(middleware.SecurityHeaders())

	// Blunt per-IP request throttle in front of everything. The login
	// failure counter inside the auth plugin is separate and stricter.
	a.Echo.Use(middleware.RateLimit(120, time.Minute))

	// Session loading -- resolves the member cookie on every request so
	// the gate, the forms, and the renderer all see the same session.
	a.Echo.Use(auth.LoadSession(a.Accounts))
}

// errorHandler is the custom Echo error handler. It maps domain errors
// (AppError) to HTTP responses: JSON for the API surface, plain pages
// for everything else.
func (a *App) errorHandler(err error, c echo.Context) {
	// Don't double-write if response is already committed.
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	message := "An unexpected error occurred"

	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		code = appErr.Code
		message = appErr.Message

		if appErr.Internal != nil {
			slog.Error("internal error",
				slog.String("type", appErr.Type),
				slog.String("message", appErr.Message),
				slog.Any("internal", appErr.Internal),
				slog.String("path", c.Request().URL.Path),
				slog.Int64("user_id", auth.GetUserID(c)),
			)
		}
	} else {
		var echoErr *echo.HTTPError
		if errors.As(err, &echoErr) {
			code = echoErr.Code
			if msg, ok := echoErr.Message.(string); ok {
				message = msg
			}
		} else {
			slog.Error("unhandled error",
				slog.Any("error", err),
				slog.String("path", c.Request().URL.Path),
				slog.Int64("user_id", auth.GetUserID(c)),
			)
		}
	}

	if isAPIRequest(c) {
		c.JSON(code, map[string]string{
			"error":   http.StatusText(code),
			"message": message,
		})
		return
	}

	c.HTML(code, fmt.Sprintf(
		"<!DOCTYPE html><html><body><h1>%d %s</h1><p>%s</p></body></html>",
		code, http.StatusText(code), message))
}

// isAPIRequest reports whether the request targets the JSON API.
func isAPIRequest(c echo.Context) bool {
	path := c.Request().URL.Path
	return len(path) >= 4 && path[:4] == "/api" ||
		len(path) >= 10 && path[:10] == "/admin/api"
}

// Start begins listening for HTTP requests on the configured port.
func (a *App) Start() error {
	addr := fmt.Sprintf(":%d", a.Config.Port)
	slog.Info("starting member pages server",
		slog.String("addr", addr),
		slog.String("env", a.Config.Env),
	)
	return a.Echo.Start(addr)
}
