package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/volunteermatching/volops/pkg/auth"
	"github.com/volunteermatching/volops/pkg/types"
)

func localConfig() types.AppConfig {
	return types.AppConfig{
		Mode: types.ModeLocal,
		Auth: types.AuthConfig{Secret: "secret", Issuer: "volops", AdminToken: "admin-token"},
		Index: types.IndexConfig{
			Backend: types.IndexBackendSQLite,
			SQLite:  types.SQLiteIndexConfig{Path: ":memory:"},
		},
		Sync: types.SyncConfig{Outbox: true},
		Seed: types.SeedConfig{
			Partners:    []types.PartnerSeed{{Name: "Ocean Corp", Tags: []string{"ocean"}}},
			Frequencies: []string{"One-time", "Weekly", "Monthly"},
		},
		Gateway: types.GatewayConfig{ShutdownTimeout: time.Second},
	}
}

func TestGateway_LocalMode(t *testing.T) {
	gw, err := NewGateway(localConfig())
	require.NoError(t, err)
	defer gw.Close()

	assert.Nil(t, gw.RedisClient)
	assert.Nil(t, gw.Outbox, "outbox needs redis")
	require.NoError(t, gw.Prepare())

	// Seeding is idempotent
	require.NoError(t, gw.Prepare())
	frequencies, err := gw.BackendRepo.ListFrequencies(context.Background())
	require.NoError(t, err)
	assert.Len(t, frequencies, 3)

	handler := gw.Handler()

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health/", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	token, err := auth.NewJWTManager("secret", "volops", time.Hour).Create("tester")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/opportunities", strings.NewReader(`{"name": "Beach Cleanup", "partner_name": "Ocean Corp"}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "/api/opportunities/1", rec.Header().Get("Location"))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/opportunities?search=beach", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"total_items":1`)

	stats, err := gw.Rebuilder().Rebuild(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Indexed)

	_, err = gw.DrainOutbox(context.Background())
	assert.Error(t, err)
}

func TestGateway_RemoteModeRequiresPostgres(t *testing.T) {
	config := localConfig()
	config.Mode = types.ModeRemote

	_, err := NewGateway(config)
	assert.Error(t, err)
}

func TestGateway_UnknownRouteUsesErrorBody(t *testing.T) {
	gw, err := NewGateway(localConfig())
	require.NoError(t, err)
	defer gw.Close()

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/partners", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error": "Not Found", "message": "Not Found"}`, rec.Body.String())
}
