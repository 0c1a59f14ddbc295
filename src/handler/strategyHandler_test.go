package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yieldlooper/src/model"
)

const stableAnalyzeBody = `{
	"archetype": "stable_lending",
	"leg_1a": {"token":"USDC","venue":"aave-v3","timestamp":1700000000,"lend_apr_base":0.05,"price":1,"collateral_ratio":0.8,"liq_threshold":0.85}
}`

func TestAnalyzeStrategiesHandler_SingleArchetype(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/strategies/analyze", strings.NewReader(stableAnalyzeBody))
	rr := httptest.NewRecorder()

	AnalyzeStrategiesHandler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var results []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	require.Len(t, results, 1)

	result := results[0]
	assert.Equal(t, string(model.ArchetypeStableLending), result["archetype"])
	assert.Equal(t, true, result["valid"])
	assert.InDelta(t, 0.05, result["gross_apr"].(float64), 1e-9)

	// Pure lending has no borrow pair: the liquidation distance is unbounded
	// and must serialize as null, not break the encoder.
	assert.Nil(t, result["liquidation_distance"])
}

func TestAnalyzeStrategiesHandler_AllArchetypes(t *testing.T) {
	body := `{"leg_1a": {"token":"USDC","venue":"aave-v3","lend_apr_base":0.05,"price":1}}`
	req := httptest.NewRequest(http.MethodPost, "/strategies/analyze", strings.NewReader(body))
	rr := httptest.NewRecorder()

	AnalyzeStrategiesHandler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var results []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &results))
	assert.Len(t, results, 6)

	// Variants that need missing legs come back invalid, never as errors.
	valid := 0
	for _, result := range results {
		if result["valid"] == true {
			valid++
		}
	}
	assert.Equal(t, 1, valid)
}

func TestAnalyzeStrategiesHandler_BadPayload(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/strategies/analyze", strings.NewReader(`{"nope":`))
	rr := httptest.NewRecorder()

	AnalyzeStrategiesHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestAnalyzeStrategiesHandler_UnknownArchetype(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/strategies/analyze",
		strings.NewReader(`{"archetype":"martingale"}`))
	rr := httptest.NewRecorder()

	AnalyzeStrategiesHandler().ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestListArchetypesHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/strategies/archetypes", nil)
	rr := httptest.NewRecorder()

	ListArchetypesHandler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)

	var tags []string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &tags))
	assert.Len(t, tags, 6)
	assert.Contains(t, tags, string(model.ArchetypeRecursiveLending))
}
