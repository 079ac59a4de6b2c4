package auth

import (
	"net/http"
	"net/mail"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/captcha"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// SessionCookieName is the HTTP cookie carrying the member session token.
const SessionCookieName = "pr_session"

// formField identifies which member form was submitted.
const formField = "pr_form"

// Legacy submit-button names. Older themes post these instead of pr_form;
// dispatch falls back to them so existing markup keeps working.
const (
	legacyLoginSubmit    = "pr_login_submit"
	legacyRegisterSubmit = "pr_register_submit"
	legacyProfileSubmit  = "pr_profile_submit"
	legacyPrivacySubmit  = "pr_privacy_submit"
)

// PrivacyDispatch handles the privacy_request form branch. The privacy
// plugin supplies it at wiring time; this indirection keeps auth from
// importing privacy.
type PrivacyDispatch func(c echo.Context, session *Session) (redirected bool, err error)

// Handler processes the member form submissions: login, registration,
// profile editing, privacy requests, and logout. Handlers are thin where
// they can be -- validation messages and terminal outcomes all funnel
// through the flash messenger, and only terminal outcomes redirect. A
// validation failure sets an error flash and declines the request without
// redirecting, so the originating page re-renders with the message.
type Handler struct {
	service  Service
	opts     options.Service
	resolver *pages.Resolver
	limiter  *LoginLimiter
	nonces   *NonceService
	verifier *captcha.Verifier
	privacy  PrivacyDispatch
}

// NewHandler creates the form handler with its collaborators.
func NewHandler(service Service, opts options.Service, resolver *pages.Resolver,
	limiter *LoginLimiter, nonces *NonceService, verifier *captcha.Verifier) *Handler {
	return &Handler{
		service:  service,
		opts:     opts,
		resolver: resolver,
		limiter:  limiter,
		nonces:   nonces,
		verifier: verifier,
	}
}

// SetPrivacyDispatch wires in the privacy_request branch.
func (h *Handler) SetPrivacyDispatch(fn PrivacyDispatch) {
	h.privacy = fn
}

// Nonces exposes the nonce service so the renderer can embed form tokens.
func (h *Handler) Nonces() *NonceService {
	return h.nonces
}

// Dispatch routes a member-page POST to the matching form branch. It
// returns redirected=true when the response has been written (a redirect
// was issued); redirected=false means the caller should re-render the
// page, with any flash message the branch left behind.
func (h *Handler) Dispatch(c echo.Context) (redirected bool, err error) {
	switch h.formID(c) {
	case "login":
		return h.handleLogin(c)
	case "register":
		return h.handleRegister(c)
	case "profile_update":
		return h.handleProfile(c)
	case "privacy_request":
		return h.handlePrivacy(c)
	default:
		return false, nil
	}
}

// formID reads the form identifier, falling back to the legacy submit
// button names.
func (h *Handler) formID(c echo.Context) string {
	if id := c.FormValue(formField); id != "" {
		return id
	}
	switch {
	case c.FormValue(legacyLoginSubmit) != "":
		return "login"
	case c.FormValue(legacyRegisterSubmit) != "":
		return "register"
	case c.FormValue(legacyProfileSubmit) != "":
		return "profile_update"
	case c.FormValue(legacyPrivacySubmit) != "":
		return "privacy_request"
	}
	return ""
}

// handleLogin processes the login form.
func (h *Handler) handleLogin(c echo.Context) (bool, error) {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		flash.Set(c, flash.KindError, "invalid request")
		return false, nil
	}

	if !h.nonces.Verify(req.Token, ActionLogin, h.binder(c)) {
		flash.Set(c, flash.KindError, "your session expired, please try again")
		return false, nil
	}

	opts, err := h.opts.Get(c.Request().Context())
	if err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	ip := c.RealIP()
	if opts.RateLimit.Enabled && h.limiter.Blocked(c.Request().Context(), ip, opts.RateLimit.AttemptLimit()) {
		flash.Set(c, flash.KindError, "too many failed attempts, please try again later")
		return false, nil
	}

	if err := h.verifier.Verify(c); err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	if req.Identifier() == "" || req.Pass() == "" {
		flash.Set(c, flash.KindError, "username and password are required")
		return false, nil
	}

	input := LoginInput{
		Identifier: req.Identifier(),
		Password:   req.Pass(),
		Remember:   req.Remember != "",
	}

	token, _, err := h.service.Login(c.Request().Context(), input)
	if err != nil {
		if opts.RateLimit.Enabled {
			_ = h.limiter.RecordFailure(c.Request().Context(), ip)
		}
		// Relay the store's message verbatim.
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	if opts.RateLimit.Enabled {
		_ = h.limiter.Reset(c.Request().Context(), ip)
	}

	SetSessionCookie(c, token, input.Remember)

	dest := safeRedirect(req.RedirectTo)
	if dest == "" {
		dest = h.resolver.RedirectAfterLogin(c.Request().Context())
	}
	return true, c.Redirect(http.StatusSeeOther, dest)
}

// handleRegister processes the registration form.
func (h *Handler) handleRegister(c echo.Context) (bool, error) {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		flash.Set(c, flash.KindError, "invalid request")
		return false, nil
	}

	if !h.nonces.Verify(req.Token, ActionRegister, h.binder(c)) {
		flash.Set(c, flash.KindError, "your session expired, please try again")
		return false, nil
	}

	opts, err := h.opts.Get(c.Request().Context())
	if err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	if !opts.RegistrationOpen {
		flash.Set(c, flash.KindError, "registration is currently closed")
		return false, nil
	}

	if err := h.verifier.Verify(c); err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	if msg := validateRegister(&req); msg != "" {
		flash.Set(c, flash.KindError, msg)
		return false, nil
	}

	user, err := h.service.Register(c.Request().Context(), RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	if opts.RegisterAutoLogin {
		token, err := h.service.LoginUser(c.Request().Context(), user, false)
		if err != nil {
			// Account exists but the session store hiccuped -- send them
			// to the login page rather than failing the registration.
			flash.Set(c, flash.KindSuccess, "account created, please log in")
			return true, c.Redirect(http.StatusSeeOther, h.loginURL(c))
		}
		SetSessionCookie(c, token, false)
		flash.Set(c, flash.KindSuccess, "welcome! your account has been created")
		return true, c.Redirect(http.StatusSeeOther, h.resolver.RedirectAfterLogin(c.Request().Context()))
	}

	flash.Set(c, flash.KindSuccess, "account created, you can now log in")
	return true, c.Redirect(http.StatusSeeOther, h.loginURL(c))
}

// handleProfile processes the profile-update form. Requires a session.
func (h *Handler) handleProfile(c echo.Context) (bool, error) {
	session := GetSession(c)
	if session == nil {
		flash.Set(c, flash.KindError, "please log in to edit your profile")
		return true, c.Redirect(http.StatusSeeOther, h.loginURL(c))
	}

	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		flash.Set(c, flash.KindError, "invalid request")
		return false, nil
	}

	if !h.nonces.Verify(req.Token, ActionProfile, h.binder(c)) {
		flash.Set(c, flash.KindError, "your session expired, please try again")
		return false, nil
	}

	if msg := validateProfile(&req); msg != "" {
		flash.Set(c, flash.KindError, msg)
		return false, nil
	}

	_, passwordChanged, err := h.service.UpdateProfile(c.Request().Context(), session.UserID, ProfileInput{
		DisplayName: req.DisplayName,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		Email:       req.Email,
		Website:     req.Website,
		Bio:         req.Bio,
		Password:    req.Password,
		Meta: AuthorMeta{
			Title:           req.Title,
			Location:        req.Location,
			Tagline:         req.Tagline,
			FavoriteWorks:   req.FavoriteWorks,
			LongBio:         req.LongBio,
			Twitter:         req.Twitter,
			Twitch:          req.Twitch,
			YouTube:         req.YouTube,
			Discord:         req.Discord,
			BackgroundImage: req.BackgroundImage,
		},
	})
	if err != nil {
		flash.Set(c, flash.KindError, apperror.SafeMessage(err))
		return false, nil
	}

	// A password change rotates the session credential.
	if passwordChanged {
		if user, err := h.service.FindByEmail(c.Request().Context(), req.Email); err == nil {
			if token, err := h.service.LoginUser(c.Request().Context(), user, false); err == nil {
				_ = h.service.DestroySession(c.Request().Context(), GetSessionToken(c))
				SetSessionCookie(c, token, false)
			}
		}
	}

	flash.Set(c, flash.KindSuccess, "profile updated")

	dest := h.resolver.URLFor(c.Request().Context(), pages.KeyProfile)
	if dest == "" {
		dest = h.resolver.HomeURL()
	}
	return true, c.Redirect(http.StatusSeeOther, dest)
}

// handlePrivacy forwards to the privacy plugin's branch.
func (h *Handler) handlePrivacy(c echo.Context) (bool, error) {
	session := GetSession(c)
	if session == nil {
		flash.Set(c, flash.KindError, "please log in to submit a privacy request")
		return true, c.Redirect(http.StatusSeeOther, h.loginURL(c))
	}

	if !h.nonces.Verify(c.FormValue("pr_token"), ActionPrivacy, h.binder(c)) {
		flash.Set(c, flash.KindError, "your session expired, please try again")
		return false, nil
	}

	if h.privacy == nil {
		flash.Set(c, flash.KindError, "privacy requests are not available")
		return false, nil
	}
	return h.privacy(c, session)
}

// Logout destroys the session and clears the cookie. Triggered by the
// pr_action=logout query parameter on any member page.
func (h *Handler) Logout(c echo.Context) error {
	if !h.nonces.Verify(c.QueryParam("pr_token"), ActionLogout, h.binder(c)) {
		flash.Set(c, flash.KindError, "invalid logout link")
		return c.Redirect(http.StatusSeeOther, h.resolver.HomeURL())
	}

	if token := GetSessionToken(c); token != "" {
		// Clear the cookie regardless of what Redis says.
		_ = h.service.DestroySession(c.Request().Context(), token)
	}
	ClearSessionCookie(c)

	flash.Set(c, flash.KindSuccess, "you have been logged out")
	return c.Redirect(http.StatusSeeOther, h.resolver.HomeURL())
}

// IssueToken mints the anti-forgery token for one of the form actions,
// bound to the current client. The renderer embeds it as pr_token.
func (h *Handler) IssueToken(c echo.Context, action string) string {
	return h.nonces.Issue(action, h.binder(c))
}

// binder returns the per-client value nonces are bound to: the session
// cookie when present, the client IP otherwise. It must be stable between
// form render and form submit.
func (h *Handler) binder(c echo.Context) string {
	if token := GetSessionToken(c); token != "" {
		return token
	}
	return c.RealIP()
}

// loginURL resolves the front-end login page, falling back to the root.
func (h *Handler) loginURL(c echo.Context) string {
	if url := h.resolver.URLFor(c.Request().Context(), pages.KeyLogin); url != "" {
		return url
	}
	return h.resolver.HomeURL()
}

// --- Cookie helpers ---

// GetSessionToken reads the session token from the request cookie.
func GetSessionToken(c echo.Context) string {
	cookie, err := c.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return cookie.Value
}

// SetSessionCookie sets the session cookie on the response. The cookie is
// HttpOnly (JS can't read it), Secure if behind TLS, and SameSite=Lax.
// Without remember the cookie is session-scoped and dies with the browser.
func SetSessionCookie(c echo.Context, token string, remember bool) {
	req := c.Request()
	cookie := &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https",
		SameSite: http.SameSiteLaxMode,
	}
	if remember {
		cookie.MaxAge = int(rememberTTL.Seconds())
	}
	c.SetCookie(cookie)
}

// ClearSessionCookie removes the session cookie by setting MaxAge to -1.
func ClearSessionCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		MaxAge:   -1,
	})
}

// --- Validation helpers ---

// validateRegister performs server-side validation on the registration
// form. Returns an error message or empty string.
func validateRegister(req *RegisterRequest) string {
	if strings.TrimSpace(req.Username) == "" {
		return "username is required"
	}
	if len(req.Username) > 60 {
		return "username must be at most 60 characters"
	}
	if req.Email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "please enter a valid email address"
	}
	if req.Password == "" {
		return "password is required"
	}
	if len(req.Password) < 8 {
		return "password must be at least 8 characters"
	}
	if len(req.Password) > 128 {
		return "password must be at most 128 characters"
	}
	if req.Confirm != req.Password {
		return "passwords do not match"
	}
	return ""
}

// validateProfile performs server-side validation on the profile form.
func validateProfile(req *ProfileRequest) string {
	if req.Email == "" {
		return "email is required"
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return "please enter a valid email address"
	}
	if len(req.DisplayName) > 100 {
		return "display name must be at most 100 characters"
	}
	if req.Password != "" || req.Confirm != "" {
		if req.Password != req.Confirm {
			return "passwords do not match"
		}
		if len(req.Password) < 8 {
			return "password must be at least 8 characters"
		}
		if len(req.Password) > 128 {
			return "password must be at most 128 characters"
		}
	}
	return ""
}

// safeRedirect accepts only same-site relative paths from redirect_to.
// Anything absolute or protocol-relative is discarded.
func safeRedirect(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") {
		return ""
	}
	return raw
}
