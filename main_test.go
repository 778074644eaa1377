package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pliu/smartaid/internal/config"
	"github.com/pliu/smartaid/internal/storage"
	"github.com/pliu/smartaid/internal/store/sqlstore"
	"github.com/pliu/smartaid/internal/ws"
)

func testRouter(t *testing.T, cfg config.Config) http.Handler {
	t.Helper()
	st, err := sqlstore.New("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	objects, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return newRouter(cfg, st, nil, objects, ws.NewHub(st, ws.NewLocalBroker()))
}

func serve(h http.Handler, method, target, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRouterSessionFlow(t *testing.T) {
	router := testRouter(t, config.Default())

	rr := serve(router, "POST", "/signup", `{"username":"student","email":"s@example.com","password":"password123"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(router, "POST", "/login", `{"username":"student","password":"password123"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	cookies := rr.Result().Cookies()
	require.NotEmpty(t, cookies)

	rr = serve(router, "POST", "/api/planner/tasks/", `{"title":"Read chapter 3","priority":"HIGH"}`, cookies...)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(router, "GET", "/api/planner/tasks/", "", cookies...)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "Read chapter 3")

	rr = serve(router, "GET", "/library/", "", cookies...)
	assert.Equal(t, http.StatusOK, rr.Code)

	rr = serve(router, "GET", "/peer-connect/peer_connect/", "", cookies...)
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestRouterRequiresSession(t *testing.T) {
	router := testRouter(t, config.Default())

	for _, tc := range []struct{ method, target string }{
		{"GET", "/api/planner/tasks/"},
		{"GET", "/api/ai/mood/save/"},
		{"POST", "/api/ai/ai/plan/"},
		{"GET", "/library/"},
		{"GET", "/peer-connect/peer_connect/"},
		{"GET", "/ws/chat/calculus/"},
	} {
		rr := serve(router, tc.method, tc.target, "")
		assert.Equal(t, http.StatusUnauthorized, rr.Code, tc.target)
	}
}

func TestRouterAnonymousMoodSave(t *testing.T) {
	router := testRouter(t, config.Default())

	rr := serve(router, "POST", "/api/ai/mood/save/", `{"mood":"calm"}`)
	assert.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
}

func TestRouterRateLimitsAIRoutes(t *testing.T) {
	cfg := config.Default()
	cfg.AIRateLimit = 2
	router := testRouter(t, cfg)

	for i := 0; i < cfg.AIRateLimit; i++ {
		rr := serve(router, "POST", "/api/ai/mood/save/", `{"mood":"calm"}`)
		require.Equal(t, http.StatusOK, rr.Code)
	}
	rr := serve(router, "POST", "/api/ai/mood/save/", `{"mood":"calm"}`)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.JSONEq(t, `{"error":"Request was throttled."}`, rr.Body.String())
}

func TestRouterOperationalEndpoints(t *testing.T) {
	router := testRouter(t, config.Default())

	rr := serve(router, "GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())

	rr = serve(router, "GET", "/metrics", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
