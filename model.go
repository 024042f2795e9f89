package quadra

import (
	"context"

	"github.com/tmc/langchaingo/llms"
)

// StopReason is the normalized stop signal from a model response.
// Providers report different raw strings ("end_turn", "stop",
// "tool_use", "tool_calls"); adapters in the models subpackage map them
// onto these three values.
type StopReason string

const (
	// StopFinal means the model produced a final textual answer.
	StopFinal StopReason = "final"

	// StopToolUse means the model requests one or more tool invocations.
	StopToolUse StopReason = "tool_use"

	// StopOther covers every unexpected signal (max tokens, content
	// filters, provider quirks). The loop aborts on it.
	StopOther StopReason = "other"
)

// ModelResponse is one model turn, normalized across providers.
type ModelResponse struct {
	// Stop is the normalized stop signal.
	Stop StopReason

	// RawStopReason is the provider's original stop string, kept for
	// diagnostics.
	RawStopReason string

	// Text is the textual content of the turn. May accompany tool
	// calls (a "thinking out loud" preamble) or carry the final answer.
	Text string

	// ToolCalls lists the requested tool invocations, in the order the
	// model requested them.
	ToolCalls []llms.ToolCall

	// Usage reports token consumption for this single call.
	Usage Usage
}

// Model is the boundary to the LLM backend. It is treated as an opaque
// request/response service: no retry or backoff lives behind this
// interface, and a transport error aborts the run as an internal error.
type Model interface {
	// Generate sends the system instructions, the full conversation and
	// the tool definitions, and blocks for the model's reply.
	Generate(
		ctx context.Context,
		messages []llms.MessageContent,
		tools []llms.Tool,
	) (*ModelResponse, error)
}
