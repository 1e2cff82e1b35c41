package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FlightPool/internal/core"
	"FlightPool/internal/observability"
	"FlightPool/internal/oracle"
	"FlightPool/internal/registry"
	"FlightPool/internal/server"
)

const (
	premiumWei = int64(10_000_000_000_000_000)
	payoutWei  = int64(50_000_000_000_000_000)
	fundingWei = int64(1_000_000_000_000_000_000)
)

func newTestServer(t *testing.T) *server.Server {
	t.Helper()

	reg := registry.NewRegistry()
	persist := make(chan core.Output, 4096)
	eng := core.NewEngine(core.Config{
		Registry:    reg,
		PersistChan: persist,
		Logger:      zerolog.Nop(),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go eng.Run(ctx)

	health := observability.NewHealthChecker()
	health.SetLive(true)
	health.SetReady(true)

	return server.NewServer(server.Config{
		Engine:   eng,
		Oracle:   oracle.NewFlightOracle(zerolog.Nop()),
		Registry: reg,
		Health:   health,
		Logger:   zerolog.Nop(),
	})
}

func doJSON(t *testing.T, srv *server.Server, method, path string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	var parsed map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &parsed))
	}
	return rec, parsed
}

func createPool(t *testing.T, srv *server.Server) string {
	t.Helper()
	rec, body := doJSON(t, srv, http.MethodPost, "/v1/pools", map[string]interface{}{
		"premium_amount": premiumWei,
		"payout_amount":  payoutWei,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	poolID, ok := body["pool_id"].(string)
	require.True(t, ok, "pool_id missing from %v", body)
	return poolID
}

func fundPool(t *testing.T, srv *server.Server, poolID string, amount int64) {
	t.Helper()
	rec, _ := doJSON(t, srv, http.MethodPost, "/v1/pools/"+poolID+"/funds",
		map[string]interface{}{"amount": amount})
	require.Equal(t, http.StatusOK, rec.Code)
}

func buyPolicy(t *testing.T, srv *server.Server, poolID string, payment int64) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return doJSON(t, srv, http.MethodPost, "/v1/pools/"+poolID+"/policies", map[string]interface{}{
		"policyholder":      "3b5f9a92-7c41-4be2-8b60-000000000001",
		"flight_number":     "AA123",
		"departure_time_us": 1700000000000000,
		"payment":           payment,
	})
}

func processClaim(t *testing.T, srv *server.Server, poolID string, policyID int64, delayed bool) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	return doJSON(t, srv, http.MethodPost, "/v1/pools/"+poolID+"/claims", map[string]interface{}{
		"policy_id":  policyID,
		"is_delayed": delayed,
	})
}

func TestCreateAndListPools(t *testing.T) {
	srv := newTestServer(t)

	first := createPool(t, srv)
	second := createPool(t, srv)

	rec, body := doJSON(t, srv, http.MethodGet, "/v1/pools", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	pools, ok := body["pools"].([]interface{})
	require.True(t, ok)
	require.Len(t, pools, 2)
	assert.Equal(t, first, pools[0].(map[string]interface{})["pool_id"])
	assert.Equal(t, second, pools[1].(map[string]interface{})["pool_id"])
}

func TestCreatePoolValidation(t *testing.T) {
	srv := newTestServer(t)

	rec, _ := doJSON(t, srv, http.MethodPost, "/v1/pools",
		map[string]interface{}{"premium_amount": premiumWei})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost, "/v1/pools",
		map[string]interface{}{"premium_amount": -1, "payout_amount": payoutWei})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAddFunds(t *testing.T) {
	srv := newTestServer(t)
	poolID := createPool(t, srv)

	rec, body := doJSON(t, srv, http.MethodPost, "/v1/pools/"+poolID+"/funds",
		map[string]interface{}{"amount": fundingWei})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(fundingWei), body["amount"])

	rec, _ = doJSON(t, srv, http.MethodPost, "/v1/pools/"+poolID+"/funds",
		map[string]interface{}{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost,
		"/v1/pools/3b5f9a92-7c41-4be2-8b60-0000000000ff/funds",
		map[string]interface{}{"amount": fundingWei})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = doJSON(t, srv, http.MethodPost, "/v1/pools/not-a-uuid/funds",
		map[string]interface{}{"amount": fundingWei})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPurchasePolicy(t *testing.T) {
	srv := newTestServer(t)
	poolID := createPool(t, srv)

	rec, body := buyPolicy(t, srv, poolID, premiumWei)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(0), body["policy_id"])

	rec, body = buyPolicy(t, srv, poolID, premiumWei)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, float64(1), body["policy_id"])

	for _, payment := range []int64{premiumWei - 1, premiumWei + 1} {
		rec, _ = buyPolicy(t, srv, poolID, payment)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code,
			fmt.Sprintf("payment %d", payment))
	}
}

func TestClaimLifecycleOverHTTP(t *testing.T) {
	srv := newTestServer(t)
	poolID := createPool(t, srv)
	fundPool(t, srv, poolID, fundingWei)
	buyPolicy(t, srv, poolID, premiumWei)

	// Not delayed: processed, no payout, still claimable.
	rec, body := processClaim(t, srv, poolID, 0, false)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["eligible"])

	rec, body = processClaim(t, srv, poolID, 0, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["eligible"])

	rec, _ = processClaim(t, srv, poolID, 0, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, _ = processClaim(t, srv, poolID, 42, true)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClaimInsufficientFunds(t *testing.T) {
	srv := newTestServer(t)
	poolID := createPool(t, srv)
	buyPolicy(t, srv, poolID, premiumWei)

	rec, _ := processClaim(t, srv, poolID, 0, true)
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Funding the pool makes the same policy claimable.
	fundPool(t, srv, poolID, payoutWei)
	rec, body := processClaim(t, srv, poolID, 0, true)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["eligible"])
}

func TestOracleEndpoints(t *testing.T) {
	srv := newTestServer(t)

	rec, body := doJSON(t, srv, http.MethodGet, "/v1/oracle/flights/AA123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_delayed"])

	rec, _ = doJSON(t, srv, http.MethodPut, "/v1/oracle/flights/AA123",
		map[string]interface{}{"is_delayed": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = doJSON(t, srv, http.MethodGet, "/v1/oracle/flights/AA123", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["is_delayed"])

	rec, _ = doJSON(t, srv, http.MethodPut, "/v1/oracle/flights/AA123", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoints(t *testing.T) {
	srv := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		srv.Router().ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
}
