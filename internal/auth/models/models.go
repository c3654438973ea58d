package models

import "encoding/json"

// ExchangeRequest is the body a browser client posts to the token route.
type ExchangeRequest struct {
	Code         string `json:"code"`
	RedirectURI  string `json:"redirect_uri"`
	CodeVerifier string `json:"code_verifier,omitempty"`
	Provider     string `json:"provider"`
}

// MissingField returns the first required field that is empty, or "".
func (r *ExchangeRequest) MissingField() string {
	switch {
	case r.Code == "":
		return "code"
	case r.RedirectURI == "":
		return "redirect_uri"
	case r.Provider == "":
		return "provider"
	}
	return ""
}

// UserProfile is the backend's user record. Its shape is opaque here.
type UserProfile = json.RawMessage

// TokenResponse is the payload returned to the client: provider tokens plus
// the backend profile.
type TokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type,omitempty"`
	ExpiresIn    int64       `json:"expires_in,omitempty"`
	Scope        string      `json:"scope,omitempty"`
	RefreshToken string      `json:"refresh_token,omitempty"`
	IDToken      string      `json:"id_token,omitempty"`
	UserInfo     UserProfile `json:"user_info,omitempty"`
}
