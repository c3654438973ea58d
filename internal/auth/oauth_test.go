package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/brizzai/oauth-proxy/internal/auth/providers"
	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/logger"
	"github.com/brizzai/oauth-proxy/internal/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type testEnv struct {
	service       *Service
	handler       http.Handler
	providerCalls *int32
	backendCalls  *int32
	tokenURLHits  map[string]*int32
}

// newTestEnv starts a fake provider per tag and a fake profile backend.
func newTestEnv(t *testing.T, backendStatus int) *testEnv {
	t.Helper()

	var providerCalls, backendCalls int32
	hits := map[string]*int32{"google": new(int32), "microsoft": new(int32)}

	newProvider := func(name string) *httptest.Server {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&providerCalls, 1)
			atomic.AddInt32(hits[name], 1)
			require.NoError(t, r.ParseForm())
			assert.Equal(t, name+"-id", r.PostForm.Get("client_id"))
			assert.Equal(t, name+"-secret", r.PostForm.Get("client_secret"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"access_token":"at-` + name + `","token_type":"Bearer","expires_in":3600,"id_token":"idt-` + name + `"}`))
		}))
		t.Cleanup(srv.Close)
		return srv
	}
	google := newProvider("google")
	microsoft := newProvider("microsoft")

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&backendCalls, 1)
		assert.Equal(t, "/user/info", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(backendStatus)
		if backendStatus == http.StatusOK {
			_, _ = w.Write([]byte(`{"email":"ada@example.com","token":"` + r.Header.Get("x-auth-token") + `"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":"backend down"}`))
	}))
	t.Cleanup(backend.Close)

	cfg := &config.Config{
		Environment:         "test",
		AllowedRedirectURIs: "https://app.example.com/*, https://*.example.com/callback",
		BackendURL:          backend.URL,
		Server:              config.ServerConfig{PathPrefixes: []string{"/production", "/staging"}},
		Providers: map[string]config.ProviderSecret{
			"google":    {ClientID: "google-id", ClientSecret: "google-secret"},
			"microsoft": {ClientID: "microsoft-id", ClientSecret: "microsoft-secret"},
		},
	}

	googleCfg := providers.GoogleConfig()
	googleCfg.TokenURL = google.URL
	microsoftCfg := providers.MicrosoftConfig()
	microsoftCfg.TokenURL = microsoft.URL
	registry := providers.NewRegistry(googleCfg, microsoftCfg)

	client := &http.Client{}
	userInfo := requester.NewUserInfoClientFromConfig(requester.NewHTTPRequester(client), cfg)
	svc := NewService(cfg, NewValidator(), registry, NewExchanger(client, cfg), NewUserInfoFetcher(userInfo))

	return &testEnv{
		service:       svc,
		handler:       svc.Handler(),
		providerCalls: &providerCalls,
		backendCalls:  &backendCalls,
		tokenURLHits:  hits,
	}
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func TestService_TokenExchangeEndToEnd(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodPost, "/production/oauth/token",
		`{"code":"c","redirect_uri":"https://app.example.com/cb","code_verifier":"v","provider":"google"}`,
		map[string]string{"Origin": "https://app.example.com", "Content-Type": "application/json"},
	)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "at-google", body["access_token"])
	assert.Equal(t, "idt-google", body["id_token"])
	assert.Equal(t, map[string]any{"email": "ada@example.com", "token": "idt-google"}, body["user_info"])
}

func TestService_DisallowedRedirectMakesNoProviderCall(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodPost, "/oauth/token",
		`{"code":"c","redirect_uri":"https://attacker.example/","provider":"google"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid redirect_uri"}`, rec.Body.String())
	assert.Zero(t, atomic.LoadInt32(env.providerCalls))
	assert.Zero(t, atomic.LoadInt32(env.backendCalls))
}

func TestService_TrailingDataMakesNoProviderCall(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodPost, "/oauth/token",
		`{"code":"c","redirect_uri":"https://app.example.com/cb","provider":"google"} trailing-garbage`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON body"}`, rec.Body.String())
	assert.Zero(t, atomic.LoadInt32(env.providerCalls))
	assert.Zero(t, atomic.LoadInt32(env.backendCalls))
}

func TestService_EnrichmentFailureIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t, http.StatusServiceUnavailable)

	rec := env.do(http.MethodPost, "/oauth/token",
		`{"code":"c","redirect_uri":"https://app.example.com/cb","provider":"google"}`, nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"Failed to retrieve user information"}`, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "at-google")
	assert.Equal(t, int32(1), atomic.LoadInt32(env.providerCalls))
}

func TestService_OutlookAndMicrosoftShareEndpoint(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	for _, provider := range []string{"outlook", "microsoft"} {
		rec := env.do(http.MethodPost, "/oauth/token",
			`{"code":"c","redirect_uri":"https://app.example.com/cb","provider":"`+provider+`"}`, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	assert.Equal(t, int32(2), atomic.LoadInt32(env.tokenURLHits["microsoft"]))
	assert.Zero(t, atomic.LoadInt32(env.tokenURLHits["google"]))
}

func TestService_MissingCredentialsIsExchangeFailure(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)
	env.service.config.Providers["google"] = config.ProviderSecret{ClientID: "google-id"}

	rec := env.do(http.MethodPost, "/oauth/token",
		`{"code":"c","redirect_uri":"https://app.example.com/cb","provider":"google"}`, nil)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Token exchange failed"}`, rec.Body.String())
	assert.Zero(t, atomic.LoadInt32(env.providerCalls))
}

func TestService_Routes(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   string
	}{
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantBody: `{"status":"ok","environment":"test"}`},
		{name: "health under prefix", method: http.MethodGet, path: "/staging/health", wantStatus: http.StatusOK, wantBody: `{"status":"ok","environment":"test"}`},
		{name: "unknown path", method: http.MethodGet, path: "/nope", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "wrong method on token", method: http.MethodGet, path: "/oauth/token", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "wrong method on health", method: http.MethodDelete, path: "/health", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "double slash token", method: http.MethodPost, path: "//oauth/token", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "dot segments under prefix", method: http.MethodGet, path: "/staging/../health", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
		{name: "trailing slash", method: http.MethodGet, path: "/health/", wantStatus: http.StatusNotFound, wantBody: `{"error":"Not found"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(tt.method, tt.path, "", nil)
			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

func TestService_CORS(t *testing.T) {
	env := newTestEnv(t, http.StatusOK)

	rec := env.do(http.MethodOptions, "/oauth/token", "", map[string]string{"Origin": "https://evil.example"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = env.do(http.MethodOptions, "/anything", "", map[string]string{"Origin": "https://preview.example.com"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://preview.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "86400", rec.Header().Get("Access-Control-Max-Age"))

	rec = env.do(http.MethodGet, "/health", "", map[string]string{"Origin": "http://app.example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"), "scheme mismatch")
}

func TestNewService_WarnsOnMissingCredentials(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	logger.SetLogger(zap.New(core))
	defer logger.SetLogger(zap.NewNop())

	cfg := &config.Config{
		AllowedRedirectURIs: "https://app.example.com/*",
		BackendURL:          "http://backend.invalid",
		Providers: map[string]config.ProviderSecret{
			"google": {ClientID: "id", ClientSecret: "secret"},
		},
	}
	client := &http.Client{}
	NewService(cfg, NewValidator(), providers.DefaultRegistry(), NewExchanger(client, cfg),
		NewUserInfoFetcher(requester.NewUserInfoClientFromConfig(requester.NewHTTPRequester(client), cfg)))

	entries := logs.FilterMessage("Provider credentials not configured").All()
	require.Len(t, entries, 1, "aliases must not be reported twice")
	assert.Equal(t, "microsoft", entries[0].ContextMap()["provider"])
}
