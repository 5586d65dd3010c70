package access_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/assefaz/stockledger/internal/access"
	"github.com/assefaz/stockledger/internal/platform/httpx"
	"github.com/assefaz/stockledger/internal/shared"
	_ "github.com/assefaz/stockledger/testing"
)

type client struct {
	t       *testing.T
	handler http.Handler
	cookies []*http.Cookie
	token   string
}

func (c *client) do(method, path, body string) *httptest.ResponseRecorder {
	c.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for _, cookie := range c.cookies {
		req.AddCookie(cookie)
	}
	if c.token != "" {
		req.Header.Set(shared.CSRFHeader, c.token)
	}
	rec := httptest.NewRecorder()
	c.handler.ServeHTTP(rec, req)
	if set := rec.Result().Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return rec
}

func newClient(t *testing.T) *client {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions := shared.NewSessionManager(redisClient, "test_session", time.Hour, false)
	csrf := shared.NewCSRFManager("csrfsecret")

	hash, err := bcrypt.GenerateFromPassword([]byte("assefaz"), bcrypt.MinCost)
	require.NoError(t, err)
	service, err := access.NewService(string(hash))
	require.NoError(t, err)

	r := chi.NewRouter()
	r.Use(shared.SessionMiddleware(sessions, nil))
	r.Use(shared.CSRFMiddleware(csrf, nil))
	access.NewHandler(nil, service, sessions, csrf).MountRoutes(r)
	r.With(access.RequireCapability(service)).Get("/whoami", func(w http.ResponseWriter, r *http.Request) {
		capability, _ := shared.CapabilityFromContext(r.Context())
		httpx.JSON(w, http.StatusOK, capability)
	})
	return &client{t: t, handler: r}
}

func decodeSession(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestCapabilityFlow(t *testing.T) {
	c := newClient(t)

	rec := c.do(http.MethodGet, "/whoami", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodGet, "/access/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeSession(t, rec)
	require.Equal(t, false, body["authorized"])
	c.token = body["csrf_token"].(string)
	require.NotEmpty(t, c.token)
	anonymousCookie := c.cookies[0].Value

	rec = c.do(http.MethodPost, "/access/session", `{"passcode":"assefaz","location":"SEDE"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	body = decodeSession(t, rec)
	require.Equal(t, true, body["authorized"])
	require.NotEqual(t, anonymousCookie, c.cookies[0].Value)
	c.token = body["csrf_token"].(string)

	rec = c.do(http.MethodGet, "/whoami", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"location":"sede"`)

	rec = c.do(http.MethodPut, "/access/location", `{"location":"506"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = c.do(http.MethodGet, "/whoami", "")
	require.Contains(t, rec.Body.String(), `"location":"506"`)

	rec = c.do(http.MethodDelete, "/access/session", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	rec = c.do(http.MethodGet, "/whoami", "")
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGrantRejections(t *testing.T) {
	c := newClient(t)

	rec := c.do(http.MethodPost, "/access/session", `{"passcode":"assefaz","location":"sede"}`)
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = c.do(http.MethodGet, "/access/session", "")
	c.token = decodeSession(t, rec)["csrf_token"].(string)

	rec = c.do(http.MethodPost, "/access/session", `{"passcode":"nope","location":"sede"}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = c.do(http.MethodPost, "/access/session", `{"passcode":"assefaz","location":"filial"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGrantIsRateLimited(t *testing.T) {
	c := newClient(t)
	rec := c.do(http.MethodGet, "/access/session", "")
	c.token = decodeSession(t, rec)["csrf_token"].(string)

	for i := 0; i < access.LoginAttemptsPerMinute; i++ {
		rec = c.do(http.MethodPost, "/access/session", `{"passcode":"nope","location":"sede"}`)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec = c.do(http.MethodPost, "/access/session", `{"passcode":"assefaz","location":"sede"}`)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
