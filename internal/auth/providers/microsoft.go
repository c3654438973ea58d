package providers

import "golang.org/x/oauth2/microsoft"

// MicrosoftConfig describes the Microsoft identity platform (v2.0) token
// endpoint for the multi-tenant "common" authority. Outlook sign-ins use the
// same app registration.
func MicrosoftConfig() ProviderConfig {
	return ProviderConfig{
		Name:            "microsoft",
		DisplayName:     "Microsoft",
		TokenURL:        microsoft.AzureADEndpoint("common").TokenURL,
		ClientIDKey:     "providers.microsoft.client_id",
		ClientSecretKey: "providers.microsoft.client_secret",
		Aliases:         []string{"outlook"},
	}
}
