package providers

import "golang.org/x/oauth2/google"

// GoogleConfig describes Google's OAuth 2.0 token endpoint.
func GoogleConfig() ProviderConfig {
	return ProviderConfig{
		Name:            "google",
		DisplayName:     "Google",
		TokenURL:        google.Endpoint.TokenURL,
		ClientIDKey:     "providers.google.client_id",
		ClientSecretKey: "providers.google.client_secret",
	}
}
