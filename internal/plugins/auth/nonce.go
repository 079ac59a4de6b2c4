package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// nonceLifetime is the width of one validity bucket. A token is accepted
// for the bucket it was minted in plus the previous one, so effective
// lifetime ranges from 12 to 24 hours.
const nonceLifetime = 12 * time.Hour

// NonceService issues and verifies the per-form anti-forgery tokens
// embedded in every member form. Tokens are HMAC-SHA256 over the form
// action, a coarse time bucket, and a per-client binder (session token
// when authenticated, client IP otherwise), so they are stateless --
// nothing is persisted server-side.
type NonceService struct {
	secret []byte
}

// NewNonceService creates a nonce service keyed by the application secret.
func NewNonceService(secret string) *NonceService {
	return &NonceService{secret: []byte(secret)}
}

// Form action identifiers used as the nonce scope.
const (
	ActionLogin    = "pr_login"
	ActionRegister = "pr_register"
	ActionProfile  = "pr_profile"
	ActionLogout   = "pr_logout"
	ActionPrivacy  = "pr_privacy"
	ActionPost     = "pr_post"
)

// Issue mints a token for the given action and client binder.
func (n *NonceService) Issue(action, binder string) string {
	return n.tokenAt(action, binder, time.Now())
}

// Verify checks a token against the current and the previous validity
// bucket in constant time.
func (n *NonceService) Verify(token, action, binder string) bool {
	if token == "" {
		return false
	}

	now := time.Now()
	current := n.tokenAt(action, binder, now)
	previous := n.tokenAt(action, binder, now.Add(-nonceLifetime))

	return hmac.Equal([]byte(token), []byte(current)) ||
		hmac.Equal([]byte(token), []byte(previous))
}

// tokenAt computes the token for the bucket containing t.
func (n *NonceService) tokenAt(action, binder string, t time.Time) string {
	bucket := t.Unix() / int64(nonceLifetime.Seconds())

	mac := hmac.New(sha256.New, n.secret)
	fmt.Fprintf(mac, "%s|%d|%s", action, bucket, binder)

	// 10 bytes of MAC is plenty for a CSRF token and keeps forms small.
	return hex.EncodeToString(mac.Sum(nil)[:10])
}
