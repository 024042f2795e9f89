package quadra

import (
	"github.com/tmc/langchaingo/llms"
)

// TerminationReason classifies how a run ended.
type TerminationReason string

const (
	// TerminationSuccess: the model produced a final answer.
	TerminationSuccess TerminationReason = "success"

	// TerminationLimitExceeded: a safety limit stopped the run. The
	// outcome carries the Violation.
	TerminationLimitExceeded TerminationReason = "limit_exceeded"

	// TerminationUnexpectedSignal: the model stopped for a reason the
	// loop does not handle (max tokens, content filter, ...).
	TerminationUnexpectedSignal TerminationReason = "unexpected_signal"

	// TerminationInternalError: a transport failure or recovered panic.
	TerminationInternalError TerminationReason = "internal_error"

	// TerminationCancelled: the caller's context was cancelled.
	TerminationCancelled TerminationReason = "cancelled"
)

// RunOutcome is the single result shape for every termination path.
// Callers never receive a fault from [Agent.Run]: limit violations,
// cancellation and internal errors all arrive here with Success=false,
// an explanatory FinalText and whatever partial stats and conversation
// exist.
type RunOutcome struct {
	// RunID uniquely identifies this run.
	RunID string `json:"run_id"`

	// Success is true only when the model produced a final answer.
	Success bool `json:"success"`

	// FinalText is the model's answer on success, or a human-readable
	// explanation of why the run stopped otherwise.
	FinalText string `json:"final_text"`

	// Reason classifies the termination path.
	Reason TerminationReason `json:"reason"`

	// Violation is set when Reason is TerminationLimitExceeded.
	Violation *Violation `json:"violation,omitempty"`

	// Err carries detail when Reason is TerminationInternalError or
	// TerminationCancelled.
	Err string `json:"error,omitempty"`

	// Stats is the final counters snapshot.
	Stats StatsSnapshot `json:"stats"`

	// Conversation is the full turn sequence at termination, including
	// partial state for aborted runs.
	Conversation []llms.MessageContent `json:"-"`
}
