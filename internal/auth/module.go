package auth

import (
	"github.com/brizzai/oauth-proxy/internal/auth/handlers"
	"github.com/brizzai/oauth-proxy/internal/auth/providers"
	"go.uber.org/fx"
)

// Module provides the token-exchange service and its collaborators
var Module = fx.Module("auth",
	fx.Provide(
		NewValidator,
		providers.DefaultRegistry,
		fx.Annotate(
			NewExchanger,
			fx.As(new(handlers.TokenExchanger)),
		),
		NewUserInfoFetcher,
		NewService,
	),
)
