package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/arenahq/orgcore/internal/access"
	"github.com/arenahq/orgcore/internal/audit"
	"github.com/arenahq/orgcore/internal/auth"
	"github.com/arenahq/orgcore/internal/config"
	"github.com/arenahq/orgcore/internal/directory"
	"github.com/arenahq/orgcore/internal/orgs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

const testSecret = "router-test-secret"

type testEnv struct {
	t       *testing.T
	handler http.Handler
	log     *audit.MemoryLog
}

func newTestEnv(t *testing.T, cfg *config.Config, ready func(context.Context) error) *testEnv {
	t.Helper()

	store := orgs.NewMemoryStore()
	auditLog := audit.NewMemoryLog()
	svc := Services{
		Manager:   orgs.NewManager(store, access.MustNewEngine(access.DefaultPolicy()), orgs.WithNotifier(auditLog)),
		Users:     store,
		Directory: directory.NewService(store),
		Audit:     auditLog,
		Ready:     ready,
	}
	if cfg == nil {
		cfg = testConfig()
	}
	return &testEnv{t: t, handler: NewRouter(svc, cfg), log: auditLog}
}

func testConfig() *config.Config {
	return &config.Config{
		Env:                "dev",
		JWTSecret:          testSecret,
		RateLimitRPM:       1000,
		SearchRateLimitRPM: 1000,
		CORSOrigins:        []string{"http://localhost:8080"},
	}
}

func (e *testEnv) token(username string) (uuid.UUID, string) {
	e.t.Helper()
	id := uuid.New()
	token, err := auth.CreateToken(auth.Identity{UserID: id, Username: username, DisplayName: username}, testSecret, time.Hour)
	require.NoError(e.t, err)
	return id, token
}

func (e *testEnv) do(method, path, token string, body any) (int, map[string]any) {
	e.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(e.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(e.t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	require.True(t, ok, "response has no data envelope: %v", body)
	return d
}

func TestHealthAndReadiness(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	code, _ := env.do(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusOK, code)

	down := newTestEnv(t, nil, func(context.Context) error { return errors.New("db down") })
	code, _ = down.do(http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, code)
}

func TestAPI_RequiresBearerToken(t *testing.T) {
	env := newTestEnv(t, nil, nil)

	code, _ := env.do(http.MethodPost, "/api/v1/orgs", "", map[string]string{"name": "Nova"})
	require.Equal(t, http.StatusUnauthorized, code)

	code, _ = env.do(http.MethodGet, "/api/v1/directory/candidates", "not-a-jwt", nil)
	require.Equal(t, http.StatusUnauthorized, code)
}

func TestAPI_InvitationFlow(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	ownerID, ownerToken := env.token("captain")
	playerID, playerToken := env.token("rookie")

	code, body := env.do(http.MethodPost, "/api/v1/orgs", ownerToken, map[string]string{"name": "Nova Esports"})
	require.Equal(t, http.StatusCreated, code)
	org := data(t, body)["org"].(map[string]any)
	orgID := org["id"].(string)
	require.Equal(t, ownerID.String(), org["owner_id"])

	// The player becomes known to the directory on their first request.
	code, body = env.do(http.MethodGet, "/api/v1/directory/candidates?term=rook", playerToken, nil)
	require.Equal(t, http.StatusOK, code)
	candidates := data(t, body)["candidates"].([]any)
	require.Len(t, candidates, 1)
	require.Equal(t, false, candidates[0].(map[string]any)["has_org"])

	code, body = env.do(http.MethodPost, "/api/v1/orgs/"+orgID+"/invitations", ownerToken, map[string]string{
		"user_id": playerID.String(),
		"role":    "player",
	})
	require.Equal(t, http.StatusCreated, code)
	invID := data(t, body)["invitation"].(map[string]any)["id"].(string)

	code, _ = env.do(http.MethodPost, "/api/v1/invitations/"+invID+"/accept", ownerToken, nil)
	require.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(http.MethodPost, "/api/v1/invitations/"+invID+"/accept", playerToken, nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(http.MethodPost, "/api/v1/invitations/"+invID+"/accept", playerToken, nil)
	require.Equal(t, http.StatusConflict, code)

	code, body = env.do(http.MethodGet, "/api/v1/orgs/"+orgID+"/members", playerToken, nil)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, data(t, body)["members"].([]any), 2)

	code, body = env.do(http.MethodGet, "/api/v1/orgs/"+orgID+"/audit", ownerToken, nil)
	require.Equal(t, http.StatusOK, code)
	require.NotEmpty(t, data(t, body)["events"])

	code, _ = env.do(http.MethodGet, "/api/v1/orgs/"+orgID+"/audit", playerToken, nil)
	require.Equal(t, http.StatusForbidden, code)
}

func TestAPI_OwnerCannotLeave(t *testing.T) {
	env := newTestEnv(t, nil, nil)
	_, ownerToken := env.token("captain")

	code, body := env.do(http.MethodPost, "/api/v1/orgs", ownerToken, map[string]string{"name": "Nova"})
	require.Equal(t, http.StatusCreated, code)
	orgID := data(t, body)["org"].(map[string]any)["id"].(string)

	code, body = env.do(http.MethodPost, "/api/v1/orgs/"+orgID+"/leave", ownerToken, nil)
	require.Equal(t, http.StatusUnprocessableEntity, code)
	require.Equal(t, "invalid_target", body["error"].(map[string]any)["code"])
}

func TestAPI_SearchRateLimitedPerUser(t *testing.T) {
	cfg := testConfig()
	cfg.SearchRateLimitRPM = 1
	env := newTestEnv(t, cfg, nil)
	_, first := env.token("alpha")
	_, second := env.token("bravo")

	code, _ := env.do(http.MethodGet, "/api/v1/directory/candidates", first, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(http.MethodGet, "/api/v1/directory/candidates", first, nil)
	require.Equal(t, http.StatusTooManyRequests, code)

	code, _ = env.do(http.MethodGet, "/api/v1/directory/candidates", second, nil)
	require.Equal(t, http.StatusOK, code)
}
