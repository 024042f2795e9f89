// Package server is the thin HTTP wrapper around the agent loop. Each
// request gets a fully isolated run: its own limit policy, stats,
// conversation and tool cache. The server shares only the model client
// and static configuration across requests.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/quadralab/quadra"
	"github.com/quadralab/quadra/tools"
)

// Config holds the static, read-only settings shared by all runs.
type Config struct {
	// WorkspaceRoot is the investigation material directory.
	WorkspaceRoot string

	// Runner executes model-written code; nil disables that tool.
	Runner tools.Runner

	// Policy is the baseline limit policy; per-request overrides are
	// applied on top of a copy.
	Policy quadra.LimitPolicy

	// Rates is the cost model.
	Rates quadra.RateTable
}

// Server wires the model and configuration into HTTP handlers.
type Server struct {
	model  quadra.Model
	cfg    Config
	logger *slog.Logger
}

// New creates a Server.
func New(model quadra.Model, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Server{model: model, cfg: cfg, logger: logger}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", s.Health)
	router.POST("/api/analyze", s.Analyze)
	return router
}

// AnalyzeRequest is the request body for POST /api/analyze. Limit
// overrides are optional; absent fields keep the server's baseline
// policy.
type AnalyzeRequest struct {
	Task              string   `json:"task" binding:"required"`
	MaxIterations     *int     `json:"max_iterations"`
	MaxModelCalls     *int     `json:"max_model_calls"`
	MaxTotalCost      *float64 `json:"max_total_cost"`
	MaxElapsedSeconds *int     `json:"max_elapsed_seconds"`
}

// Health reports liveness.
func (s *Server) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// Analyze runs one bounded investigation and returns its outcome. The
// outcome always has the same shape; a limit-stopped run is a 200 with
// success=false, not an HTTP error.
func (s *Server) Analyze(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy := s.overriddenPolicy(&req)
	registry := tools.NewToolset(tools.Config{
		WorkspaceRoot: s.cfg.WorkspaceRoot,
		Runner:        s.cfg.Runner,
		SQLMaxRows:    policy.SQLMaxRows,
	})

	agent := quadra.NewAgent(s.model, registry).
		WithLimitPolicy(policy).
		WithRateTable(s.cfg.Rates).
		WithLogger(s.logger)

	outcome := agent.Run(c.Request.Context(), req.Task)
	s.logger.Info("analyze request finished",
		"run_id", outcome.RunID,
		"reason", outcome.Reason,
		"iterations", outcome.Stats.Iterations,
		"cost", outcome.Stats.TotalCost,
	)
	c.JSON(http.StatusOK, outcome)
}

// overriddenPolicy applies the request's optional overrides onto a copy
// of the baseline policy.
func (s *Server) overriddenPolicy(req *AnalyzeRequest) quadra.LimitPolicy {
	policy := s.cfg.Policy
	if req.MaxIterations != nil {
		policy.MaxIterations = *req.MaxIterations
	}
	if req.MaxModelCalls != nil {
		policy.MaxModelCalls = *req.MaxModelCalls
	}
	if req.MaxTotalCost != nil {
		policy.MaxTotalCost = *req.MaxTotalCost
	}
	if req.MaxElapsedSeconds != nil {
		policy.MaxElapsed = time.Duration(*req.MaxElapsedSeconds) * time.Second
	}
	return policy
}
