package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rustyeddy/riskgov/internal/store"
	"github.com/rustyeddy/riskgov/policy"
	"github.com/rustyeddy/riskgov/risk"
)

func newTestServer(t *testing.T) (*Server, string) {
	t.Helper()
	dir := t.TempDir()

	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "riskgov_test_gauge", Help: "test"})
	g.Set(7)
	reg.MustRegister(g)

	return New(Config{Port: 0, Log: zerolog.Nop(), StateDir: dir, Gatherer: reg}), dir
}

func get(t *testing.T, s *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthWithoutState(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/healthz")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"no_state"`)
}

func TestHealthReportsMode(t *testing.T) {
	s, dir := newTestServer(t)
	require.NoError(t, store.WriteJSON(filepath.Join(dir, store.GlobalStateFile), map[string]any{
		"mode":         "de_risk",
		"generated_at": "2025-03-01T12:00:00Z",
	}))

	rec := get(t, s, "/healthz")
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "de_risk", body["mode"])
}

func TestMetrics(t *testing.T) {
	s, _ := newTestServer(t)
	rec := get(t, s, "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "riskgov_test_gauge 7")
}

func TestPolicyEndpoints(t *testing.T) {
	s, dir := newTestServer(t)

	rec := get(t, s, "/v1/policy")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	doc := policy.Document{
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		GlobalMode:  risk.ModeNormal,
		Symbols: map[string]policy.Policy{
			"BTC": {Symbol: "BTC", State: policy.StateActive, AllowCore: true},
		},
	}
	require.NoError(t, store.WriteJSON(filepath.Join(dir, store.SymbolPolicyFile), doc))

	rec = get(t, s, "/v1/policy")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Body.String(), `"global_mode": "normal"`)

	rec = get(t, s, "/v1/policy/btc")
	require.Equal(t, http.StatusOK, rec.Code)
	var p policy.Policy
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	assert.True(t, p.AllowCore)

	rec = get(t, s, "/v1/policy/DOGE")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSymbolPolicyKeepsStoredCase(t *testing.T) {
	s, dir := newTestServer(t)

	doc := policy.Document{
		GlobalMode: risk.ModeNormal,
		Symbols: map[string]policy.Policy{
			"BTC-usd": {Symbol: "BTC-usd", State: policy.StateActive, AllowCore: true},
			"eth":     {Symbol: "eth", State: policy.StateBlocked},
		},
	}
	require.NoError(t, store.WriteJSON(filepath.Join(dir, store.SymbolPolicyFile), doc))

	for path, want := range map[string]string{
		"/v1/policy/BTC-usd": "BTC-usd",
		"/v1/policy/eth":     "eth",
		"/v1/policy/ETH":     "eth",
	} {
		rec := get(t, s, path)
		require.Equal(t, http.StatusOK, rec.Code, path)
		var p policy.Policy
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
		assert.Equal(t, want, p.Symbol, path)
	}
}

func TestStateEndpoint(t *testing.T) {
	s, dir := newTestServer(t)
	require.NoError(t, store.WriteJSON(filepath.Join(dir, store.QuarantineStateFile), map[string]any{"enabled": true}))

	rec := get(t, s, "/v1/state/quarantine")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled": true`)

	rec = get(t, s, "/v1/state/recovery")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = get(t, s, "/v1/state/passwords")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
