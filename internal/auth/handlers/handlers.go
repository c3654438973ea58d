package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/brizzai/oauth-proxy/internal/auth/constants"
	"github.com/brizzai/oauth-proxy/internal/auth/models"
	"github.com/brizzai/oauth-proxy/internal/auth/providers"
	"github.com/brizzai/oauth-proxy/internal/auth/validator"
	"github.com/brizzai/oauth-proxy/internal/instrumentation"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"github.com/brizzai/oauth-proxy/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TokenExchanger trades an authorization code for provider tokens.
type TokenExchanger interface {
	Exchange(ctx context.Context, req *models.ExchangeRequest, cfg providers.ProviderConfig) (*models.TokenResponse, error)
}

// UserInfoFetcher resolves an identity token to a backend profile.
type UserInfoFetcher interface {
	FetchUserInfo(ctx context.Context, idToken, referralCode string) (models.UserProfile, error)
}

// Options configures a Handler.
type Options struct {
	Validator   *validator.Validator
	Allowlist   string
	Registry    *providers.Registry
	Exchanger   TokenExchanger
	UserInfo    UserInfoFetcher
	Environment string
}

// Handler serves the proxy's HTTP routes.
type Handler struct {
	validator   *validator.Validator
	allowlist   string
	registry    *providers.Registry
	exchanger   TokenExchanger
	userInfo    UserInfoFetcher
	environment string
}

// NewHandler creates a new Handler instance
func NewHandler(opts Options) *Handler {
	return &Handler{
		validator:   opts.Validator,
		allowlist:   opts.Allowlist,
		registry:    opts.Registry,
		exchanger:   opts.Exchanger,
		userInfo:    opts.UserInfo,
		environment: opts.Environment,
	}
}

var errTrailingData = errors.New("unexpected data after JSON body")

// requestError is a failure already mapped to its client-facing form.
type requestError struct {
	status  int
	message string
	cause   error
}

func (e *requestError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

func badRequest(message string, cause error) *requestError {
	return &requestError{status: http.StatusBadRequest, message: message, cause: cause}
}

// HandleHealth handles GET /health
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.HandleNotFound(w, r)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{
		"status":      "ok",
		"environment": h.environment,
	})
}

// HandleNotFound answers every unknown route or method
func (h *Handler) HandleNotFound(w http.ResponseWriter, r *http.Request) {
	utils.WriteError(w, constants.MsgNotFound, http.StatusNotFound)
}

// HandleToken handles POST /oauth/token: validate, exchange, enrich.
// A response is only successful when it carries both tokens and the
// profile; any failure discards everything obtained so far.
func (h *Handler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.HandleNotFound(w, r)
		return
	}

	defer func() {
		if rec := recover(); rec != nil {
			logger.Error("Token exchange panicked", zap.Any("panic", rec))
			utils.WriteError(w, constants.MsgTokenExchangeFailed, http.StatusBadRequest)
		}
	}()

	ctx, span := instrumentation.StartSpan(r.Context(), "oauth.token")
	defer span.End()
	r = r.WithContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	tokens, err := h.exchange(r)
	if err != nil {
		var reqErr *requestError
		if !errors.As(err, &reqErr) {
			logger.Error("Token exchange failed unexpectedly", zap.Error(err))
			reqErr = badRequest(constants.MsgTokenExchangeFailed, err)
		}
		instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrHTTPStatusCode, reqErr.status))
		instrumentation.RecordError(span, errors.New(reqErr.message))
		utils.WriteError(w, reqErr.message, reqErr.status)
		return
	}

	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrHTTPStatusCode, http.StatusOK))
	instrumentation.SetSpanSuccess(span)
	utils.WriteJSON(w, http.StatusOK, tokens)
}

// decodeBody decodes exactly one JSON value; anything after it other than
// whitespace is an error.
func decodeBody(body io.Reader, v any) error {
	dec := json.NewDecoder(body)
	if err := dec.Decode(v); err != nil {
		return err
	}
	if _, err := dec.Token(); err != io.EOF {
		if err == nil {
			return errTrailingData
		}
		return err
	}
	return nil
}

func (h *Handler) exchange(r *http.Request) (*models.TokenResponse, error) {
	var req models.ExchangeRequest
	if err := decodeBody(r.Body, &req); err != nil {
		logger.Info("Rejected malformed token request", zap.Error(err))
		return nil, badRequest(constants.MsgInvalidJSON, err)
	}

	if field := req.MissingField(); field != "" {
		return nil, badRequest(fmt.Sprintf(constants.MsgMissingFieldFmt, field), nil)
	}

	redirectValid := h.validator.ValidateRedirectURI(req.RedirectURI, h.allowlist)
	instrumentation.SetSpanAttributes(trace.SpanFromContext(r.Context()),
		attribute.Bool(instrumentation.AttrRedirectURIValid, redirectValid),
	)
	if !redirectValid {
		logger.Warn("Rejected redirect_uri",
			zap.String("redirect_uri", req.RedirectURI),
			zap.String("provider", req.Provider),
		)
		return nil, badRequest(constants.MsgInvalidRedirectURI, nil)
	}

	tag := strings.ToLower(req.Provider)
	providerCfg, err := h.registry.Lookup(tag)
	if err != nil {
		logger.Info("Rejected unsupported provider", zap.String("provider", req.Provider))
		return nil, badRequest(fmt.Sprintf(constants.MsgUnsupportedProvider, req.Provider), err)
	}

	tokens, err := h.exchanger.Exchange(r.Context(), &req, providerCfg)
	if err != nil {
		fields := []zap.Field{zap.String("provider", providerCfg.Name), zap.Error(err)}
		var exErr *providers.ExchangeError
		if errors.As(err, &exErr) {
			fields = append(fields, zap.String("kind", string(exErr.Kind)), zap.Int("status", exErr.Status))
		}
		logger.Error("Provider token exchange failed", fields...)
		return nil, badRequest(constants.MsgTokenExchangeFailed, err)
	}
	if tokens == nil || tokens.AccessToken == "" || tokens.IDToken == "" {
		logger.Error("Provider response missing tokens", zap.String("provider", providerCfg.Name))
		return nil, badRequest(constants.MsgTokenExchangeFailed, nil)
	}

	if email, err := providers.EmailFromIDToken(tokens.IDToken); err == nil {
		logger.Debug("Exchanged authorization code",
			zap.String("provider", providerCfg.Name),
			zap.String("email_domain", providers.EmailDomain(email)),
		)
	}

	profile, err := h.userInfo.FetchUserInfo(r.Context(), tokens.IDToken, r.Header.Get(constants.ReferralCodeHeader))
	if err != nil {
		logger.Error("User info lookup failed", zap.String("provider", providerCfg.Name), zap.Error(err))
		return nil, &requestError{status: http.StatusInternalServerError, message: constants.MsgUserInfoFailed, cause: err}
	}

	tokens.UserInfo = profile
	return tokens, nil
}
