package auth

import (
	"net/http"

	"github.com/brizzai/oauth-proxy/internal/auth/constants"
	"github.com/brizzai/oauth-proxy/internal/auth/handlers"
	"github.com/brizzai/oauth-proxy/internal/auth/matcher"
	"github.com/brizzai/oauth-proxy/internal/auth/middleware"
	"github.com/brizzai/oauth-proxy/internal/auth/providers"
	"github.com/brizzai/oauth-proxy/internal/auth/validator"
	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"github.com/brizzai/oauth-proxy/internal/requester"
	"go.uber.org/zap"
)

// Service wires the token-exchange routes and their middleware.
type Service struct {
	config      *config.Config
	validator   *validator.Validator
	handler     *handlers.Handler
	rateLimiter *middleware.RateLimiter
}

// NewService creates the OAuth exchange service. Provider credentials are
// resolved from cfg on every exchange.
func NewService(cfg *config.Config, v *validator.Validator, registry *providers.Registry, exchanger handlers.TokenExchanger, userInfo handlers.UserInfoFetcher) *Service {
	warnMissingCredentials(cfg, registry)

	return &Service{
		config:    cfg,
		validator: v,
		handler: handlers.NewHandler(handlers.Options{
			Validator:   v,
			Allowlist:   cfg.AllowedRedirectURIs,
			Registry:    registry,
			Exchanger:   exchanger,
			UserInfo:    userInfo,
			Environment: cfg.Environment,
		}),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst),
	}
}

// warnMissingCredentials reports providers that will fail every exchange.
func warnMissingCredentials(cfg *config.Config, registry *providers.Registry) {
	for _, tag := range registry.Tags() {
		pc, err := registry.Lookup(tag)
		if err != nil || pc.Name != tag {
			continue
		}
		if cfg.Credential(pc.ClientIDKey) == "" || cfg.Credential(pc.ClientSecretKey) == "" {
			logger.Warn("Provider credentials not configured", zap.String("provider", pc.Name))
		}
	}
}

// NewValidator creates the process-wide validator and its matcher cache.
func NewValidator() *validator.Validator {
	return validator.New(matcher.NewCache())
}

// NewExchanger binds the shared exchange routine to the outbound client and
// the configured credentials.
func NewExchanger(client *http.Client, cfg *config.Config) *providers.Exchanger {
	return providers.NewExchanger(client, cfg)
}

// NewUserInfoFetcher exposes the backend client through the handler's
// interface.
func NewUserInfoFetcher(c *requester.UserInfoClient) handlers.UserInfoFetcher {
	return c
}

// Routes dispatches on the exact request path. ServeMux is not used: it
// answers unclean paths with its own non-JSON redirects.
func (s *Service) Routes() http.Handler {
	token := middleware.RateLimit(s.rateLimiter)(http.HandlerFunc(s.handler.HandleToken))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case constants.HealthPath:
			s.handler.HandleHealth(w, r)
		case constants.TokenPath:
			token.ServeHTTP(w, r)
		default:
			s.handler.HandleNotFound(w, r)
		}
	})
}

// WrapWithMiddleware applies path-prefix stripping, origin-gated CORS and
// panic recovery around handler.
func (s *Service) WrapWithMiddleware(handler http.Handler) http.Handler {
	allowlist := s.config.AllowedRedirectURIs
	allowed := func(origin string) bool {
		return s.validator.IsAllowedOrigin(origin, allowlist)
	}

	handler = middleware.StripPrefixes(s.config.Server.PathPrefixes)(handler)
	handler = middleware.CORS(allowed)(handler)
	return middleware.Recover(handler)
}

// Handler returns the fully wrapped HTTP handler.
func (s *Service) Handler() http.Handler {
	return s.WrapWithMiddleware(s.Routes())
}
