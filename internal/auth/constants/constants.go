package constants

// MaxRequestBodyBytes caps the JSON body accepted on the token route
const MaxRequestBodyBytes = 64 << 10

// Routes, matched after any configured path prefix is stripped
const (
	HealthPath = "/health"
	TokenPath  = "/oauth/token"
)

// Headers
const (
	OriginHeader       = "Origin"
	ReferralCodeHeader = "X-Referral-Code"

	// Backend headers
	AuthTokenHeader       = "x-auth-token"
	BackendReferralHeader = "x-referral-code"
)

// CORS response values
const (
	AllowMethods = "GET, POST, OPTIONS"
	AllowHeaders = "Content-Type, X-Referral-Code"
	MaxAge       = "86400"
)

// Client-visible error messages
const (
	MsgInvalidJSON         = "Invalid JSON body"
	MsgInvalidRedirectURI  = "invalid redirect_uri"
	MsgTokenExchangeFailed = "Token exchange failed"
	MsgUserInfoFailed      = "Failed to retrieve user information"
	MsgNotFound            = "Not found"
	MsgTooManyRequests     = "Too many requests"
	MsgMissingFieldFmt     = "Missing required field: %s"
	MsgUnsupportedProvider = "Unsupported OAuth provider: %s"
)
