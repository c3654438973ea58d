package requester

import (
	"net/http"

	"github.com/brizzai/oauth-proxy/internal/auth/constants"
)

// AuthManager handles request authentication
type AuthManager interface {
	ApplyAuth(req *http.Request) error
}

// BackendTokenAuth authenticates to the profile backend with the identity
// token obtained from the provider.
type BackendTokenAuth struct {
	IDToken      string
	ReferralCode string
}

// ApplyAuth sets x-auth-token and, when present, x-referral-code.
func (a BackendTokenAuth) ApplyAuth(req *http.Request) error {
	req.Header.Set(constants.AuthTokenHeader, a.IDToken)
	if a.ReferralCode != "" {
		req.Header.Set(constants.BackendReferralHeader, a.ReferralCode)
	}
	return nil
}
