package providers

import (
	"errors"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// ErrNoEmailClaim is returned when an identity token carries no usable email.
var ErrNoEmailClaim = errors.New("no email claim in id_token")

// EmailFromIDToken decodes the claims segment of an identity token WITHOUT
// verifying its signature and returns the first of email, preferred_username
// or upn that looks like an address.
//
// The result is for display only. Never base an authorization decision on it.
func EmailFromIDToken(idToken string) (string, error) {
	parser := jwt.NewParser(jwt.WithPaddingAllowed())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(idToken, claims); err != nil {
		return "", err
	}

	if email, ok := claims["email"].(string); ok && email != "" {
		return email, nil
	}
	for _, key := range []string{"preferred_username", "upn"} {
		if v, ok := claims[key].(string); ok && strings.Contains(v, "@") {
			return v, nil
		}
	}
	return "", ErrNoEmailClaim
}

// EmailDomain returns the part of an address after the last '@'.
func EmailDomain(email string) string {
	if i := strings.LastIndex(email, "@"); i >= 0 {
		return email[i+1:]
	}
	return ""
}
