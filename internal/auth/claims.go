package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

const bearerPrefix = "Bearer "

// ErrDecodeToken means a bearer token was present but its payload could not
// be decoded.
var ErrDecodeToken = errors.New("decode bearer token")

// Claims is the decoded, unverified payload of an AT Protocol access token.
type Claims struct {
	jwt.RegisteredClaims

	// Scope is the token scope, e.g. "com.atproto.access".
	Scope string `json:"scope,omitempty"`
}

var parser = jwt.NewParser(jwt.WithPaddingAllowed())

// FromRequest extracts claims from the request's Authorization header.
func FromRequest(r *http.Request) (*Claims, error) {
	return Extract(r.Header.Get("Authorization"))
}

// Extract decodes the payload of a "Bearer <jwt>" header value. It returns
// nil claims and no error when the header is absent or not a bearer
// credential.
func Extract(header string) (*Claims, error) {
	if !strings.HasPrefix(header, bearerPrefix) {
		return nil, nil
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])

	claims := &Claims{}
	// ErrTokenUnverifiable only reports an unknown alg (PDS tokens are often
	// ES256K); the claims have been decoded by then.
	if _, _, err := parser.ParseUnverified(token, claims); err != nil && !errors.Is(err, jwt.ErrTokenUnverifiable) {
		return nil, fmt.Errorf("%w: %w", ErrDecodeToken, err)
	}
	return claims, nil
}
