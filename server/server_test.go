package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadralab/quadra"
	"github.com/quadralab/quadra/models"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(model quadra.Model) *Server {
	return New(model, Config{
		WorkspaceRoot: "testdata-does-not-exist",
		Policy:        quadra.DefaultLimitPolicy(),
		Rates:         quadra.DefaultRateTable(),
	}, nil)
}

func postAnalyze(t *testing.T, s *Server, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/analyze",
		strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(models.NewScripted())
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestAnalyzeSuccess(t *testing.T) {
	scripted := models.NewScripted(
		models.FinalStep("No discrepancy found.", quadra.Usage{
			InputTokens: 100, OutputTokens: 50,
		}),
	)
	s := newTestServer(scripted)

	rec := postAnalyze(t, s, `{"task":"check etl_vendite"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome quadra.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.True(t, outcome.Success)
	assert.Equal(t, quadra.TerminationSuccess, outcome.Reason)
	assert.Equal(t, "No discrepancy found.", outcome.FinalText)
	assert.NotEmpty(t, outcome.RunID)
	assert.Equal(t, 1, outcome.Stats.ModelCalls)
}

func TestAnalyzeMissingTask(t *testing.T) {
	s := newTestServer(models.NewScripted())

	rec := postAnalyze(t, s, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "error")
}

func TestAnalyzeMalformedBody(t *testing.T) {
	s := newTestServer(models.NewScripted())

	rec := postAnalyze(t, s, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeLimitOverride(t *testing.T) {
	// Baseline allows many iterations; the request forbids any. The run
	// stops on the override and still answers 200.
	scripted := models.NewScripted(
		models.FinalStep("never reached", quadra.Usage{}),
	)
	s := newTestServer(scripted)

	rec := postAnalyze(t, s, `{"task":"check","max_iterations":0}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome quadra.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.False(t, outcome.Success)
	assert.Equal(t, quadra.TerminationLimitExceeded, outcome.Reason)
	require.NotNil(t, outcome.Violation)
	assert.Equal(t, quadra.LimitIterations, outcome.Violation.Kind)
	assert.Equal(t, 0, scripted.Calls())
}

func TestAnalyzeLimitStoppedRunIsStill200(t *testing.T) {
	// An exhausted script surfaces as an internal error outcome, not an
	// HTTP failure.
	s := newTestServer(models.NewScripted())

	rec := postAnalyze(t, s, `{"task":"check"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var outcome quadra.RunOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &outcome))
	assert.False(t, outcome.Success)
	assert.Equal(t, quadra.TerminationInternalError, outcome.Reason)
}

func TestOverriddenPolicy(t *testing.T) {
	s := newTestServer(models.NewScripted())

	iters, calls, cost, secs := 3, 7, 0.5, 60
	policy := s.overriddenPolicy(&AnalyzeRequest{
		Task:              "x",
		MaxIterations:     &iters,
		MaxModelCalls:     &calls,
		MaxTotalCost:      &cost,
		MaxElapsedSeconds: &secs,
	})

	assert.Equal(t, 3, policy.MaxIterations)
	assert.Equal(t, 7, policy.MaxModelCalls)
	assert.Equal(t, 0.5, policy.MaxTotalCost)
	assert.Equal(t, "1m0s", policy.MaxElapsed.String())

	// Absent overrides keep the baseline.
	base := s.overriddenPolicy(&AnalyzeRequest{Task: "x"})
	assert.Equal(t, s.cfg.Policy, base)
}
