package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/brizzai/oauth-proxy/internal/auth/models"
	"github.com/brizzai/oauth-proxy/internal/instrumentation"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
)

// ErrMissingCredentials indicates the provider's client id or secret is not
// configured.
var ErrMissingCredentials = errors.New("provider credentials not configured")

// ExchangeErrorKind classifies why a code exchange failed.
type ExchangeErrorKind string

const (
	KindConfiguration   ExchangeErrorKind = "configuration"
	KindTransport       ExchangeErrorKind = "transport"
	KindProviderStatus  ExchangeErrorKind = "provider_status"
	KindInvalidResponse ExchangeErrorKind = "invalid_response"
	KindMissingToken    ExchangeErrorKind = "missing_token"
)

// ExchangeError describes a failed code exchange. It is logged, never sent
// to the client.
type ExchangeError struct {
	Provider    string
	Kind        ExchangeErrorKind
	Status      int
	Code        string
	Description string
	// Body is the raw provider body, kept only for non-2xx responses.
	Body string
	Err  error
}

func (e *ExchangeError) Error() string {
	switch e.Kind {
	case KindProviderStatus:
		if e.Code != "" {
			if e.Description != "" {
				return fmt.Sprintf("%s token endpoint returned %d: %s: %s", e.Provider, e.Status, e.Code, e.Description)
			}
			return fmt.Sprintf("%s token endpoint returned %d: %s", e.Provider, e.Status, e.Code)
		}
		return fmt.Sprintf("%s token endpoint returned %d: %s", e.Provider, e.Status, e.Body)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s token exchange failed (%s): %v", e.Provider, e.Kind, e.Err)
		}
		return fmt.Sprintf("%s token exchange failed (%s)", e.Provider, e.Kind)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// Exchange trades an authorization code for tokens at cfg's token endpoint.
// Every provider goes through this routine; cfg only selects the endpoint
// and the credential pair.
//
// The request is a single form-encoded POST carrying client_id,
// client_secret, code, redirect_uri, grant_type and, when present,
// code_verifier. It is never retried: authorization codes are single use.
// A nil client uses http.DefaultClient.
func Exchange(ctx context.Context, client *http.Client, req *models.ExchangeRequest, creds CredentialsLookup, cfg ProviderConfig) (tokens *models.TokenResponse, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "provider.exchange",
		attribute.String(instrumentation.AttrProviderName, cfg.Name),
		attribute.Bool(instrumentation.AttrPKCE, req.CodeVerifier != ""),
	)
	defer func() {
		if err != nil {
			instrumentation.RecordError(span, err)
			var exErr *ExchangeError
			if errors.As(err, &exErr) {
				instrumentation.SetSpanAttributes(span,
					attribute.String(instrumentation.AttrErrorKind, string(exErr.Kind)),
					attribute.Int(instrumentation.AttrProviderStatus, exErr.Status),
				)
			}
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
	}()

	clientID := creds.Credential(cfg.ClientIDKey)
	clientSecret := creds.Credential(cfg.ClientSecretKey)
	if clientID == "" || clientSecret == "" {
		return nil, &ExchangeError{Provider: cfg.DisplayName, Kind: KindConfiguration, Err: ErrMissingCredentials}
	}

	oauthCfg := &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  req.RedirectURI,
		Endpoint: oauth2.Endpoint{
			TokenURL:  cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}

	opts := []oauth2.AuthCodeOption{}
	if req.CodeVerifier != "" {
		opts = append(opts, oauth2.VerifierOption(req.CodeVerifier))
	}

	if client == nil {
		client = http.DefaultClient
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, client)

	tok, err := oauthCfg.Exchange(ctx, req.Code, opts...)
	if err != nil {
		return nil, classifyExchangeError(cfg, err)
	}

	idToken, _ := tok.Extra("id_token").(string)
	if idToken == "" {
		return nil, &ExchangeError{
			Provider: cfg.DisplayName,
			Kind:     KindMissingToken,
			Err:      errors.New("response missing id_token"),
		}
	}

	scope, _ := tok.Extra("scope").(string)
	return &models.TokenResponse{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		ExpiresIn:    expiresIn(tok),
		Scope:        scope,
		RefreshToken: tok.RefreshToken,
		IDToken:      idToken,
	}, nil
}

// classifyExchangeError maps errors returned by oauth2.Config.Exchange. The
// library reads the whole body before parsing, so a non-2xx RetrieveError
// always carries the raw body alongside any parsed error fields.
func classifyExchangeError(cfg ProviderConfig, err error) *ExchangeError {
	exErr := &ExchangeError{Provider: cfg.DisplayName, Err: err}

	var retrieveErr *oauth2.RetrieveError
	var urlErr *url.Error
	switch {
	case errors.As(err, &retrieveErr):
		exErr.Kind = KindProviderStatus
		if retrieveErr.Response != nil {
			exErr.Status = retrieveErr.Response.StatusCode
		}
		exErr.Code = retrieveErr.ErrorCode
		exErr.Description = retrieveErr.ErrorDescription
		if exErr.Code == "" {
			exErr.Body = string(retrieveErr.Body)
		}
	case errors.As(err, &urlErr):
		exErr.Kind = KindTransport
	default:
		// Unparsable 2xx bodies and bodies without access_token land here.
		exErr.Kind = KindInvalidResponse
	}
	return exErr
}

func expiresIn(tok *oauth2.Token) int64 {
	switch v := tok.Extra("expires_in").(type) {
	case float64:
		return int64(v)
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(v, 10, 64)
		return n
	}
	return 0
}

// Exchanger binds Exchange to an outbound client and a credential source.
type Exchanger struct {
	client *http.Client
	creds  CredentialsLookup
}

// NewExchanger creates an Exchanger.
func NewExchanger(client *http.Client, creds CredentialsLookup) *Exchanger {
	return &Exchanger{client: client, creds: creds}
}

// Exchange runs the shared exchange routine for cfg.
func (e *Exchanger) Exchange(ctx context.Context, req *models.ExchangeRequest, cfg ProviderConfig) (*models.TokenResponse, error) {
	return Exchange(ctx, e.client, req, e.creds, cfg)
}
