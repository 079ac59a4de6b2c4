// Package flash implements the one-shot message pipe that carries a
// success or error notice across a redirect. The message rides in a
// short-lived cookie: written by a form handler, read and cleared by the
// next page render. This is a pipe, not a queue -- a second Set before the
// page is read overwrites the first, and at most one message is pending.
package flash

import (
	"encoding/base64"
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/solhem/memberpages/internal/sanitize"
)

// CookieName is the flash cookie. The payload is JSON {"t":kind,"m":text}.
const CookieName = "pr_flash"

// cookieTTL is deliberately short: the message only needs to survive one
// redirect hop.
const cookieTTL = 60 // seconds

// Kind classifies a flash message.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
)

// Message is one pending flash notice.
type Message struct {
	Kind Kind   `json:"t"`
	Text string `json:"m"`
}

// contextKey stashes a just-set message in the echo context so a render in
// the same request sees it without a cookie round-trip. Validation
// failures depend on this: they Set and then re-render immediately.
const contextKey = "flash_pending"

// Set serializes the message into the flash cookie on the response. The
// text is stripped of markup before it is stored.
func Set(c echo.Context, kind Kind, text string) {
	msg := Message{Kind: normalizeKind(string(kind)), Text: sanitize.Text(text)}

	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    encode(payload),
		Path:     "/",
		MaxAge:   cookieTTL,
		HttpOnly: true,
		Secure:   isTLS(c),
		SameSite: http.SameSiteLaxMode,
	})

	c.Set(contextKey, msg)
}

// ReadAndClear returns the pending message and deletes it. If no cookie is
// present or the payload is malformed, ok is false. The clearing header is
// issued before returning, so the next render never sees a stale message.
func ReadAndClear(c echo.Context) (Message, bool) {
	// Same-request fast path: a handler already set a message during this
	// request cycle.
	if pending, ok := c.Get(contextKey).(Message); ok {
		c.Set(contextKey, nil)
		clearCookie(c)
		return pending, true
	}

	cookie, err := c.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return Message{}, false
	}

	clearCookie(c)

	payload, err := decode(cookie.Value)
	if err != nil {
		return Message{}, false
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, false
	}
	if msg.Text == "" {
		return Message{}, false
	}

	msg.Kind = normalizeKind(string(msg.Kind))
	msg.Text = sanitize.Text(msg.Text)
	return msg, true
}

// clearCookie expires the flash cookie on the response.
func clearCookie(c echo.Context) {
	c.SetCookie(&http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   isTLS(c),
		SameSite: http.SameSiteLaxMode,
	})
}

// encode wraps the JSON payload in base64url; cookie values cannot carry
// quotes or commas raw.
func encode(payload []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload)
}

// decode reverses encode.
func decode(value string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(value)
}

// normalizeKind constrains the kind to the two known values. Anything
// unrecognized is coerced to Error so a tampered cookie can't invent a
// styled message class.
func normalizeKind(kind string) Kind {
	if kind == string(KindSuccess) {
		return KindSuccess
	}
	return KindError
}

// isTLS reports whether the request arrived over TLS, directly or via a
// terminating reverse proxy.
func isTLS(c echo.Context) bool {
	req := c.Request()
	return req.TLS != nil || req.Header.Get("X-Forwarded-Proto") == "https"
}
