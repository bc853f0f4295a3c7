package scoring

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	httperr "github.com/beaconhq/beacon-collector/internal/core/errors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func setupScoringRouter(store Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewAPI(store).RegisterRoutes(r)
	return r
}

func TestUpsertRuleHandler(t *testing.T) {
	store := newFakeStore()
	r := setupScoringRouter(store)

	body, _ := json.Marshal(map[string]interface{}{
		"eventName":  "purchase",
		"scoreValue": 25,
	})
	req := httptest.NewRequest(http.MethodPut, "/v1/sites/site-1/scoring/rules", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Rule Rule `json:"rule"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, "site-1", result.Rule.SiteID)
	require.Equal(t, "purchase", result.Rule.EventName)
	require.Equal(t, 25, result.Rule.ScoreValue)
	// Active defaults to true when omitted.
	require.True(t, result.Rule.Active)
}

func TestUpsertRuleHandler_MissingEventName(t *testing.T) {
	r := setupScoringRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodPut, "/v1/sites/site-1/scoring/rules",
		bytes.NewReader([]byte(`{"scoreValue": 25}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusBadRequest, resp.Code)

	var errResp httperr.ErrorResponse
	json.Unmarshal(resp.Body.Bytes(), &errResp)
	require.Equal(t, httperr.HttpInvalidJsonError, errResp.ErrorType)
}

func TestDeleteRuleHandler_NotFound(t *testing.T) {
	r := setupScoringRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodDelete, "/v1/sites/site-1/scoring/rules/missing", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)

	var errResp httperr.ErrorResponse
	json.Unmarshal(resp.Body.Bytes(), &errResp)
	require.Equal(t, httperr.HttpNotFoundError, errResp.ErrorType)
}

func TestDeleteRuleHandler_Success(t *testing.T) {
	store := newFakeStore()
	store.rules["site-1/purchase"] = &Rule{ID: "rule-1", SiteID: "site-1", EventName: "purchase", ScoreValue: 25, Active: true}
	r := setupScoringRouter(store)

	req := httptest.NewRequest(http.MethodDelete, "/v1/sites/site-1/scoring/rules/rule-1", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	require.Empty(t, store.rules)
}

func TestVisitorScoreHandler_NotFound(t *testing.T) {
	r := setupScoringRouter(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/v1/sites/site-1/scoring/visitors/nobody/score", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusNotFound, resp.Code)
}

func TestVisitorScoreHandler_Success(t *testing.T) {
	store := newFakeStore()
	store.scores["site-1/client-1"] = &VisitorScore{
		ID:         "vs-1",
		SiteID:     "site-1",
		ClientID:   "client-1",
		TotalScore: 35,
		Breakdown:  map[string]int{"page_view": 1, "purchase": 1},
	}
	r := setupScoringRouter(store)

	req := httptest.NewRequest(http.MethodGet, "/v1/sites/site-1/scoring/visitors/client-1/score", nil)
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var result struct {
		Score VisitorScore `json:"score"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	require.Equal(t, 35, result.Score.TotalScore)
	require.Equal(t, 1, result.Score.Breakdown["purchase"])
}

func TestQueryLimit(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		query string
		want  int
	}{
		{"", defaultListLimit},
		{"limit=10", 10},
		{"limit=0", defaultListLimit},
		{"limit=-5", defaultListLimit},
		{"limit=9999", defaultListLimit},
		{"limit=abc", defaultListLimit},
	}

	for _, tc := range tests {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())
		c.Request = httptest.NewRequest(http.MethodGet, "/?"+tc.query, nil)
		require.Equal(t, tc.want, queryLimit(c), "query %q", tc.query)
	}
}
