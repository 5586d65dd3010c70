package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/assefaz/stockledger/internal/access"
	"github.com/assefaz/stockledger/internal/catalog"
	"github.com/assefaz/stockledger/internal/observability"
	"github.com/assefaz/stockledger/internal/shared"
	_ "github.com/assefaz/stockledger/testing"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("ACCESS_PASSCODE_HASH", "$2a$10$abcdefghijklmnopqrstuuJ0qY1n4v6xZbq3o5XG9dS0m5pGx8e9K")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	require.Equal(t, "clamp", cfg.StockNegativePolicy)
	require.Equal(t, 5, cfg.LowStockThreshold)
	require.Equal(t, "America/Sao_Paulo", cfg.Location().String())
	require.Equal(t, 10*time.Minute, cfg.DashboardCacheTTL)
	require.False(t, cfg.IsProduction())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STOCK_NEGATIVE_POLICY", "ignore")
	_, err := LoadConfig()
	require.ErrorContains(t, err, "STOCK_NEGATIVE_POLICY")

	t.Setenv("STOCK_NEGATIVE_POLICY", "reject")
	t.Setenv("TIMEZONE", "Mars/Olympus")
	_, err = LoadConfig()
	require.ErrorContains(t, err, "TIMEZONE")
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("ACCESS_PASSCODE_HASH", "h")
	_, err := LoadConfig()
	require.Error(t, err)
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&Config{AppEnv: "production", LogFormat: "json"}, &buf).Info("hello")
	require.Contains(t, buf.String(), `"msg":"hello"`)
	require.Contains(t, buf.String(), `"env":"production"`)
}

func newTestRouter(t *testing.T, checks map[string]HealthCheck) http.Handler {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("assefaz"), bcrypt.MinCost)
	require.NoError(t, err)
	accessService, err := access.NewService(string(hash))
	require.NoError(t, err)

	sessions := shared.NewSessionManager(client, "stockledger_session", time.Hour, false)
	csrf := shared.NewCSRFManager("secret")
	return NewRouter(RouterParams{
		Config:         &Config{AppEnv: "test"},
		SessionManager: sessions,
		CSRFManager:    csrf,
		Access:         accessService,
		AccessHandler:  access.NewHandler(nil, accessService, sessions, csrf),
		CatalogHandler: catalog.NewHandler(nil, nil),
		Metrics:        observability.NewMetrics(),
		HealthChecks:   checks,
	})
}

func TestRouterGuardsAPI(t *testing.T) {
	router := newTestRouter(t, nil)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/products", nil))
	require.Equal(t, http.StatusUnauthorized, rr.Code)
	require.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/outflows", nil))
	require.Equal(t, http.StatusForbidden, rr.Code)

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/access/session", nil))
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterHealthAndMetrics(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{
		"postgres": func(context.Context) error { return nil },
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `"postgres":"up"`)
	require.Empty(t, rr.Result().Cookies())

	rr = httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), `stockledger_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterHealthDegraded(t *testing.T) {
	router := newTestRouter(t, map[string]HealthCheck{
		"redis": func(context.Context) error { return errors.New("down") },
	})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	require.Contains(t, rr.Body.String(), `"redis":"down"`)
}
