package quadra

import (
	"sync"
	"time"
)

// RunStats tracks the counters for a single run. Counts only increase,
// cost accumulates at full float64 precision (rounding is a display
// concern), and the struct is owned by exactly one run.
//
// All methods are safe for concurrent use, although the orchestration
// loop itself is strictly sequential.
type RunStats struct {
	mu         sync.Mutex
	clock      Clock
	start      time.Time
	iterations int
	modelCalls int
	totalCost  float64
	toolCalls  map[string]int
}

// NewRunStats creates RunStats with the start timestamp taken from clock.
func NewRunStats(clock Clock) *RunStats {
	if clock == nil {
		clock = SystemClock()
	}
	return &RunStats{
		clock:     clock,
		start:     clock.Now(),
		toolCalls: make(map[string]int),
	}
}

// StartIteration increments the iteration counter and returns the new
// value (1-indexed).
func (s *RunStats) StartIteration() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.iterations++
	return s.iterations
}

// RecordModelCall counts one model call and adds its estimated cost.
// Negative costs are ignored.
func (s *RunStats) RecordModelCall(cost float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.modelCalls++
	if cost > 0 {
		s.totalCost += cost
	}
}

// RecordToolCall counts one invocation of the named tool.
func (s *RunStats) RecordToolCall(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toolCalls[name]++
}

// Snapshot returns an immutable copy of the counters with Elapsed
// computed against the run's clock.
func (s *RunStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	calls := make(map[string]int, len(s.toolCalls))
	for name, n := range s.toolCalls {
		calls[name] = n
	}
	return StatsSnapshot{
		Iterations: s.iterations,
		ModelCalls: s.modelCalls,
		TotalCost:  s.totalCost,
		ToolCalls:  calls,
		StartedAt:  s.start,
		Elapsed:    s.clock.Now().Sub(s.start),
	}
}

// StatsSnapshot is a point-in-time copy of [RunStats], suitable for the
// pure limit checks and for inclusion in a [RunOutcome].
type StatsSnapshot struct {
	Iterations int            `json:"iterations"`
	ModelCalls int            `json:"model_calls"`
	TotalCost  float64        `json:"total_cost"`
	ToolCalls  map[string]int `json:"tool_calls"`
	StartedAt  time.Time      `json:"started_at"`
	Elapsed    time.Duration  `json:"elapsed"`
}

// ToolCallCount returns how many times the named tool has run.
func (s StatsSnapshot) ToolCallCount(name string) int {
	return s.ToolCalls[name]
}

// TotalToolCalls returns the count across all tools.
func (s StatsSnapshot) TotalToolCalls() int {
	total := 0
	for _, n := range s.ToolCalls {
		total += n
	}
	return total
}
