package requester

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/brizzai/oauth-proxy/internal/auth/models"
	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/instrumentation"
	"go.opentelemetry.io/otel/attribute"
)

const userInfoPath = "/user/info"

// EnrichmentError describes a failed profile lookup. Status is zero when the
// backend was never reached.
type EnrichmentError struct {
	Status int
	Body   string
	Err    error
}

func (e *EnrichmentError) Error() string {
	if e.Status != 0 {
		if e.Err != nil {
			return fmt.Sprintf("user info request returned %d: %v", e.Status, e.Err)
		}
		return fmt.Sprintf("user info request returned %d: %s", e.Status, e.Body)
	}
	return fmt.Sprintf("user info request failed: %v", e.Err)
}

func (e *EnrichmentError) Unwrap() error { return e.Err }

var errInvalidJSON = errors.New("response is not valid JSON")

// UserInfoClient fetches user profiles from the internal backend.
type UserInfoClient struct {
	requester *HTTPRequester
	baseURL   string
}

// NewUserInfoClient creates a client for the backend at baseURL.
func NewUserInfoClient(requester *HTTPRequester, baseURL string) *UserInfoClient {
	return &UserInfoClient{
		requester: requester,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

// NewUserInfoClientFromConfig is the fx constructor.
func NewUserInfoClientFromConfig(requester *HTTPRequester, cfg *config.Config) *UserInfoClient {
	return NewUserInfoClient(requester, cfg.BackendURL)
}

// FetchUserInfo calls GET {base}/user/info with the identity token as a
// bearer credential. The token is passed through untouched.
func (c *UserInfoClient) FetchUserInfo(ctx context.Context, idToken, referralCode string) (profile models.UserProfile, err error) {
	ctx, span := instrumentation.StartSpan(ctx, "backend.user_info",
		attribute.Bool(instrumentation.AttrReferralPresent, referralCode != ""),
	)
	defer func() {
		if err != nil {
			instrumentation.RecordError(span, err)
		} else {
			instrumentation.SetSpanSuccess(span)
		}
		span.End()
	}()

	resp, err := c.requester.Execute(ctx, &Request{
		URL:     c.baseURL + userInfoPath,
		Method:  http.MethodGet,
		Headers: map[string]string{"Accept": "application/json"},
	}, BackendTokenAuth{IDToken: idToken, ReferralCode: referralCode})
	if err != nil {
		return nil, &EnrichmentError{Err: err}
	}
	instrumentation.SetSpanAttributes(span, attribute.Int(instrumentation.AttrBackendStatus, resp.StatusCode))

	if !resp.OK() {
		return nil, &EnrichmentError{Status: resp.StatusCode, Body: string(resp.Body)}
	}
	if !json.Valid(resp.Body) {
		return nil, &EnrichmentError{Status: resp.StatusCode, Err: errInvalidJSON}
	}
	return models.UserProfile(resp.Body), nil
}
