package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/brizzai/oauth-proxy/internal/auth"
	"github.com/brizzai/oauth-proxy/internal/auth/providers"
	"github.com/brizzai/oauth-proxy/internal/config"
	"github.com/brizzai/oauth-proxy/internal/instrumentation"
	"github.com/brizzai/oauth-proxy/internal/requester"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/fx"
	"go.uber.org/fx/fxtest"
)

func testConfig(backendURL string) *config.Config {
	return &config.Config{
		Environment:         "test",
		AllowedRedirectURIs: "https://app.example.com/*",
		BackendURL:          backendURL,
		Server: config.ServerConfig{
			Host:         "127.0.0.1",
			Port:         0,
			ReadTimeout:  "2s",
			WriteTimeout: "2s",
			PathPrefixes: []string{"/production"},
		},
	}
}

func TestNewServer_Timeouts(t *testing.T) {
	cfg := testConfig("http://backend.invalid")
	cfg.Server.ReadTimeout = ""
	cfg.Server.WriteTimeout = "bogus"

	client := &http.Client{}
	svc := auth.NewService(cfg, auth.NewValidator(), providers.DefaultRegistry(),
		auth.NewExchanger(client, cfg),
		auth.NewUserInfoFetcher(requester.NewUserInfoClientFromConfig(requester.NewHTTPRequester(client), cfg)))

	srv := NewServer(cfg, svc)
	assert.Equal(t, "127.0.0.1:0", srv.http.Addr)
	assert.Equal(t, config.DefaultReadTimeout, srv.http.ReadTimeout)
	assert.Equal(t, config.DefaultWriteTimeout, srv.http.WriteTimeout)
}

func TestServer_ServeAndShutdown(t *testing.T) {
	backend := httptest.NewServer(http.NotFoundHandler())
	defer backend.Close()

	var srv *Server
	app := fxtest.New(t,
		fx.Supply(testConfig(backend.URL)),
		instrumentation.Module,
		requester.Module,
		auth.Module,
		Module,
		fx.Populate(&srv),
	)
	app.RequireStart()
	defer app.RequireStop()

	addr, err := srv.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	resp, err := http.Get(fmt.Sprintf("http://%s/production/health", addr))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok","environment":"test"}`, string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestServer_ServeWithoutListen(t *testing.T) {
	srv := &Server{config: testConfig("http://backend.invalid"), http: &http.Server{}}
	assert.Error(t, srv.Serve(context.Background()))
}
