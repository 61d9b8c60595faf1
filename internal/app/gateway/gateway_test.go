package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/magabrotheeeer/endesa-gateway/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Env:     config.EnvLocal,
		Version: "test",
		MongoDB: config.MongoDB{
			URL:            "mongodb://127.0.0.1:1",
			DBName:         "endesa",
			ConnectTimeout: 100 * time.Millisecond,
			QueryTimeout:   time.Second,
		},
		HTTPServer: config.HTTPServer{Address: ":0"},
		CORS:       config.CORS{AllowedOrigins: []string{"*"}},
		RateLimit:  config.RateLimit{RPS: 100, Burst: 100},
	}
}

func TestApp_BeforeStoreConnected(t *testing.T) {
	app, err := New(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	handler := app.Handler()

	tests := []struct {
		name           string
		url            string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "запрос до подключения хранилища",
			url:            "/data/endesa?t=y",
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"Error","error":"service unavailable"}`,
		},
		{
			name:           "неверный дискриминатор проверяется раньше хранилища",
			url:            "/data/endesa?t=x",
			expectedStatus: http.StatusBadRequest,
		},
		{
			name:           "liveness",
			url:            "/health/live",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"ok"}`,
		},
		{
			name:           "readiness",
			url:            "/health/ready",
			expectedStatus: http.StatusServiceUnavailable,
			expectedBody:   `{"status":"Error","error":"store not connected"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.url, nil))

			assert.Equal(t, tt.expectedStatus, w.Code)
			if tt.expectedBody != "" {
				assert.JSONEq(t, tt.expectedBody, w.Body.String())
			}
			assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
		})
	}
}

func TestApp_MethodNotAllowed(t *testing.T) {
	app, err := New(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	w := httptest.NewRecorder()
	app.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/data/endesa?t=y", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestApp_Metrics(t *testing.T) {
	app, err := New(context.Background(), testConfig(), slog.New(slog.DiscardHandler))
	require.NoError(t, err)
	handler := app.Handler()

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/data/endesa?t=y", nil))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `endesa_gateway_queries_total{discriminator="y",outcome="unavailable"} 1`)
	assert.Contains(t, w.Body.String(), "endesa_gateway_store_connected 0")
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	cfg := testConfig()
	cfg.HTTPServer.Address = "127.0.0.1:0"

	app, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("app did not stop")
	}
}

func TestApp_RunStopsConnectorWhenServerFails(t *testing.T) {
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig()
	cfg.HTTPServer.Address = busy.Addr().String()

	app, err := New(context.Background(), cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- app.Run(context.Background()) }()

	select {
	case err := <-done:
		require.Error(t, err, "порт занят, сервер не должен стартовать")
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after listen error")
	}

	select {
	case <-app.connectDone:
	case <-time.After(5 * time.Second):
		t.Fatal("store connector kept running after Run returned")
	}
	assert.Nil(t, app.store.Get())
}
