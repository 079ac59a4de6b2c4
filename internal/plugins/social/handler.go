package social

import (
	"crypto/rand"
	"encoding/base64"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/auth"
	"github.com/solhem/memberpages/internal/plugins/flash"
	"github.com/solhem/memberpages/internal/plugins/options"
	"github.com/solhem/memberpages/internal/plugins/pages"
)

// CallbackPath is where providers redirect after authorization.
const CallbackPath = "/oauth/callback"

// Handler brokers the OAuth2 dance and hands resolved identities to the
// auth plugin.
type Handler struct {
	accounts auth.Service
	opts     options.Service
	resolver *pages.Resolver
	secret   []byte
	baseURL  string
	client   *http.Client

	// Endpoint overrides for tests. Empty means the provider registry.
	TokenURLOverride    string
	UserinfoURLOverride string
}

// NewHandler creates the social login handler.
func NewHandler(accounts auth.Service, opts options.Service, resolver *pages.Resolver, secret, baseURL string) *Handler {
	return &Handler{
		accounts: accounts,
		opts:     opts,
		resolver: resolver,
		secret:   []byte(secret),
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: callbackTimeout},
	}
}

// AuthorizationURL builds the provider redirect for the login page's
// social buttons. Returns "" when the provider has no client ID
// configured -- the renderer then simply omits the button.
func (h *Handler) AuthorizationURL(c echo.Context, providerName string) string {
	p, ok := providers[providerName]
	if !ok {
		return ""
	}

	opts, err := h.opts.Get(c.Request().Context())
	if err != nil {
		return ""
	}
	client := h.clientFor(opts, providerName)
	if client.ClientID == "" {
		return ""
	}

	state, err := signState(h.secret, providerName)
	if err != nil {
		slog.Error("failed to sign oauth state", slog.Any("error", err))
		return ""
	}

	q := url.Values{
		"response_type": {"code"},
		"client_id":     {client.ClientID},
		"redirect_uri":  {h.redirectURI()},
		"scope":         {p.scopes},
		"state":         {state},
	}
	return p.authorizeURL + "?" + q.Encode()
}

// Callback handles the provider redirect (GET /oauth/callback). It
// verifies the state, exchanges the code, fetches the identity, and logs
// in -- creating the account first if the email is unknown and
// registration is open. Every failure lands on the login page with an
// error flash; the callback never errors out to the visitor.
func (h *Handler) Callback(c echo.Context) error {
	code := c.QueryParam("code")
	state := c.QueryParam("state")
	if code == "" || state == "" {
		return h.fail(c, "social login was cancelled or incomplete", nil)
	}

	providerName, err := verifyState(h.secret, state)
	if err != nil {
		return h.fail(c, "social login could not be verified, please try again", err)
	}
	p := providers[providerName]

	ctx := c.Request().Context()
	opts, err := h.opts.Get(ctx)
	if err != nil {
		return h.fail(c, "social login is unavailable right now", err)
	}
	client := h.clientFor(opts, providerName)
	if client.ClientID == "" || client.ClientSecret == "" {
		return h.fail(c, "this social login provider is not configured", nil)
	}

	if h.TokenURLOverride != "" {
		p.tokenURL = h.TokenURLOverride
	}
	if h.UserinfoURLOverride != "" {
		p.userinfoURL = h.UserinfoURLOverride
	}

	accessToken, err := p.exchangeCode(ctx, h.client, client.ClientID, client.ClientSecret, code, h.redirectURI())
	if err != nil {
		return h.fail(c, "social login failed, please try again", err)
	}

	identity, err := p.fetchIdentity(ctx, h.client, accessToken)
	if err != nil {
		return h.fail(c, "social login failed, please try again", err)
	}
	if identity.Email == "" {
		return h.fail(c, "your account did not share an email address", nil)
	}

	user, err := h.accounts.FindByEmail(ctx, identity.Email)
	switch {
	case err == nil:
		// Known account, proceed to login.
	case apperror.SafeCode(err) == http.StatusNotFound:
		if !opts.RegistrationOpen {
			return h.fail(c, "no account matches this email and registration is closed", nil)
		}
		user, err = h.register(c, identity)
		if err != nil {
			return h.fail(c, apperror.SafeMessage(err), err)
		}
	default:
		return h.fail(c, "social login is unavailable right now", err)
	}

	token, err := h.accounts.LoginUser(ctx, user, false)
	if err != nil {
		return h.fail(c, "social login failed, please try again", err)
	}
	auth.SetSessionCookie(c, token, false)

	slog.Info("social login completed",
		slog.String("provider", providerName),
		slog.Int64("user_id", user.ID),
	)

	return c.Redirect(http.StatusSeeOther, h.resolver.RedirectAfterLogin(ctx))
}

// register creates an account for a first-time social identity: a unique
// username from the email's local part, a random password, and whatever
// name fields the provider shared.
func (h *Handler) register(c echo.Context, identity Identity) (*auth.User, error) {
	ctx := c.Request().Context()

	local := identity.Email
	if at := strings.Index(local, "@"); at > 0 {
		local = local[:at]
	}
	username, err := h.accounts.UniqueUsername(ctx, local)
	if err != nil {
		return nil, err
	}

	password, err := randomPassword()
	if err != nil {
		return nil, err
	}

	return h.accounts.Register(ctx, auth.RegisterInput{
		Username:    username,
		Email:       identity.Email,
		Password:    password,
		DisplayName: identity.Display,
		FirstName:   identity.FirstName,
		LastName:    identity.LastName,
	})
}

// fail flashes an error and sends the visitor back to the login page.
func (h *Handler) fail(c echo.Context, message string, err error) error {
	if err != nil {
		slog.Warn("social login aborted",
			slog.String("reason", message),
			slog.Any("error", err),
		)
	}
	flash.Set(c, flash.KindError, message)

	dest := h.resolver.URLFor(c.Request().Context(), pages.KeyLogin)
	if dest == "" {
		dest = h.resolver.HomeURL()
	}
	return c.Redirect(http.StatusSeeOther, dest)
}

// clientFor picks the provider's configured credentials.
func (h *Handler) clientFor(opts options.Options, providerName string) options.OAuthClient {
	switch providerName {
	case ProviderGoogle:
		return opts.Social.Google
	case ProviderWordPress:
		return opts.Social.WordPress
	}
	return options.OAuthClient{}
}

// redirectURI is the absolute callback URL registered with the providers.
func (h *Handler) redirectURI() string {
	return h.baseURL + CallbackPath
}

// randomPassword generates an unguessable placeholder password for
// social-created accounts. Members set a real one via the profile form.
func randomPassword() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
