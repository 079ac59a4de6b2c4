package social

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// stateTTL is how long an authorization round-trip may take. The state
// token is minted at redirect time and verified on the callback.
const stateTTL = 10 * time.Minute

// stateClaims is the payload of the signed OAuth state parameter. Signing
// the provider into the state lets a single callback endpoint serve every
// provider without trusting a client-supplied name.
type stateClaims struct {
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// signState mints a signed state token for the given provider.
func signState(secret []byte, providerName string) (string, error) {
	now := time.Now()
	claims := stateClaims{
		Provider: providerName,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(stateTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}
	return signed, nil
}

// verifyState validates a callback state token and returns the provider
// name it was minted for.
func verifyState(secret []byte, state string) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return "", fmt.Errorf("verifying state: %w", err)
	}

	if _, ok := providers[claims.Provider]; !ok {
		return "", fmt.Errorf("state names unknown provider %q", claims.Provider)
	}
	return claims.Provider, nil
}
