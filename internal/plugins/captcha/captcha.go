// Package captcha provides the bot-protection layer applied to the public
// login and registration forms. The provider is chosen in the configuration:
// none at all, the built-in honeypot+timing check, Cloudflare Turnstile, or
// Google reCAPTCHA. Third-party verification fails CLOSED on network or
// decode errors -- an unreachable verifier must not turn into an open door.
// A configured provider with an empty secret passes OPEN, so a half-finished
// settings form cannot lock every visitor out.
package captcha

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/apperror"
	"github.com/solhem/memberpages/internal/plugins/options"
)

// Form field names for the built-in provider.
const (
	// HoneypotField must be submitted empty; bots that fill every input
	// reveal themselves.
	HoneypotField = "pr_hp"

	// TimestampField carries the unix time the form was rendered.
	TimestampField = "pr_ts"
)

// Third-party response field names.
const (
	turnstileResponseField = "cf-turnstile-response"
	recaptchaResponseField = "g-recaptcha-response"
)

// minFillTime is the minimum believable delay between form render and
// submit. Humans take longer than a second to type credentials.
const minFillTime = 1 * time.Second

// verifyTimeout bounds the server-to-server verification call.
const verifyTimeout = 5 * time.Second

// Verifier checks form submissions against the configured provider.
type Verifier struct {
	opts   options.Service
	client *http.Client

	// Endpoint overrides for tests. Empty means the real provider.
	TurnstileURL string
	RecaptchaURL string
}

// NewVerifier creates a verifier reading provider settings from opts.
func NewVerifier(opts options.Service) *Verifier {
	return &Verifier{
		opts:         opts,
		client:       &http.Client{Timeout: verifyTimeout},
		TurnstileURL: "https://challenges.cloudflare.com/turnstile/v0/siteverify",
		RecaptchaURL: "https://www.google.com/recaptcha/api/siteverify",
	}
}

// Timestamp returns the value the form renderer embeds in TimestampField.
func Timestamp() string {
	return strconv.FormatInt(time.Now().Unix(), 10)
}

// Verify checks the submission in c against the configured provider.
// A nil return means the submission passed. Failures come back as
// validation errors whose message is safe to flash at the visitor.
func (v *Verifier) Verify(c echo.Context) error {
	opts, err := v.opts.Get(c.Request().Context())
	if err != nil {
		// Without configuration there is nothing to enforce.
		return nil
	}

	switch opts.Captcha.Provider {
	case "", "none":
		return nil
	case "native":
		return v.verifyNative(c)
	case "turnstile":
		return v.verifyRemote(c, v.TurnstileURL, turnstileResponseField, opts.Captcha.SecretKey)
	case "recaptcha":
		return v.verifyRemote(c, v.RecaptchaURL, recaptchaResponseField, opts.Captcha.SecretKey)
	default:
		slog.Warn("unknown captcha provider, skipping verification",
			slog.String("provider", opts.Captcha.Provider))
		return nil
	}
}

// verifyNative applies the honeypot and timing checks.
func (v *Verifier) verifyNative(c echo.Context) error {
	if c.FormValue(HoneypotField) != "" {
		return apperror.NewValidation("submission rejected, please try again")
	}

	ts, err := strconv.ParseInt(c.FormValue(TimestampField), 10, 64)
	if err != nil {
		return apperror.NewValidation("submission rejected, please try again")
	}

	elapsed := time.Since(time.Unix(ts, 0))
	if elapsed < minFillTime {
		return apperror.NewValidation("form submitted too quickly, please try again")
	}

	return nil
}

// siteverifyResponse is the common shape of the Turnstile and reCAPTCHA
// verification responses.
type siteverifyResponse struct {
	Success    bool     `json:"success"`
	ErrorCodes []string `json:"error-codes"`
}

// verifyRemote posts the challenge response to the provider's siteverify
// endpoint. An empty secret passes open; any transport or decode failure
// fails closed.
func (v *Verifier) verifyRemote(c echo.Context, endpoint, responseField, secret string) error {
	if secret == "" {
		return nil
	}

	response := c.FormValue(responseField)
	if response == "" {
		return apperror.NewValidation("please complete the verification challenge")
	}

	form := url.Values{
		"secret":   {secret},
		"response": {response},
		"remoteip": {c.RealIP()},
	}

	resp, err := v.client.PostForm(endpoint, form)
	if err != nil {
		slog.Warn("captcha verification request failed",
			slog.String("endpoint", endpoint),
			slog.Any("error", err),
		)
		return apperror.NewValidation("verification failed, please try again")
	}
	defer resp.Body.Close()

	var result siteverifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		slog.Warn("captcha verification returned malformed response",
			slog.String("endpoint", endpoint),
			slog.Any("error", err),
		)
		return apperror.NewValidation("verification failed, please try again")
	}

	if !result.Success {
		slog.Info("captcha verification rejected submission",
			slog.String("endpoint", endpoint),
			slog.String("error_codes", fmt.Sprint(result.ErrorCodes)),
		)
		return apperror.NewValidation("verification failed, please try again")
	}

	return nil
}
