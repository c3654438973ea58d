package requester

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"go.uber.org/zap"
)

// HTTPRequester executes single-attempt outbound requests and reads the
// whole response body.
type HTTPRequester struct {
	client *http.Client
}

// NewHTTPClient builds the outbound client shared by the provider exchange
// and the backend lookup.
func NewHTTPClient(cfg *config.Config) *http.Client {
	return &http.Client{
		Timeout: config.Duration(cfg.HTTP.Timeout, config.DefaultHTTPTimeout),
	}
}

// NewHTTPRequester creates a requester on client. A nil client gets the
// default timeout.
func NewHTTPRequester(client *http.Client) *HTTPRequester {
	if client == nil {
		client = &http.Client{Timeout: config.DefaultHTTPTimeout}
	}
	return &HTTPRequester{client: client}
}

// SetTimeout sets the timeout for the HTTP client
func (r *HTTPRequester) SetTimeout(timeout time.Duration) {
	r.client.Timeout = timeout
}

// Execute builds req, applies auth and performs it once.
func (r *HTTPRequester) Execute(ctx context.Context, req *Request, auth AuthManager) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if auth != nil {
		if err := auth.ApplyAuth(httpReq); err != nil {
			return nil, fmt.Errorf("failed to apply auth: %w", err)
		}
	}

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("Failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Body:       body,
		Headers:    resp.Header,
	}, nil
}
