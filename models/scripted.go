package models

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"

	"github.com/quadralab/quadra"
)

// ScriptedStep is one pre-recorded model turn. Exactly one of Response
// or Err should be set.
type ScriptedStep struct {
	Response *quadra.ModelResponse
	Err      error
}

// Scripted replays a fixed sequence of model turns. Use it to drive the
// loop deterministically in tests and in the offline demo mode.
type Scripted struct {
	mu       sync.Mutex
	steps    []ScriptedStep
	next     int
	requests [][]llms.MessageContent
}

// NewScripted creates a Scripted model from the given steps.
func NewScripted(steps ...ScriptedStep) *Scripted {
	return &Scripted{steps: steps}
}

// FinalStep builds a step where the model answers with final text.
func FinalStep(text string, usage quadra.Usage) ScriptedStep {
	return ScriptedStep{Response: &quadra.ModelResponse{
		Stop:          quadra.StopFinal,
		RawStopReason: "end_turn",
		Text:          text,
		Usage:         usage,
	}}
}

// ToolUseStep builds a step where the model requests tool invocations.
func ToolUseStep(usage quadra.Usage, calls ...llms.ToolCall) ScriptedStep {
	return ScriptedStep{Response: &quadra.ModelResponse{
		Stop:          quadra.StopToolUse,
		RawStopReason: "tool_use",
		ToolCalls:     calls,
		Usage:         usage,
	}}
}

// Call builds a tool call with JSON-encoded arguments.
func Call(id, name, jsonArgs string) llms.ToolCall {
	return llms.ToolCall{
		ID:   id,
		Type: "function",
		FunctionCall: &llms.FunctionCall{
			Name:      name,
			Arguments: jsonArgs,
		},
	}
}

// Generate implements quadra.Model by replaying the next step. Running
// past the script is an error: the test scenario is exhausted.
func (s *Scripted) Generate(
	_ context.Context,
	messages []llms.MessageContent,
	_ []llms.Tool,
) (*quadra.ModelResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]llms.MessageContent, len(messages))
	copy(copied, messages)
	s.requests = append(s.requests, copied)

	if s.next >= len(s.steps) {
		return nil, fmt.Errorf("scripted model exhausted after %d steps", len(s.steps))
	}
	step := s.steps[s.next]
	s.next++
	if step.Err != nil {
		return nil, step.Err
	}
	return step.Response, nil
}

// Calls returns how many times Generate was invoked.
func (s *Scripted) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// Requests returns the recorded message sequences, one per call.
func (s *Scripted) Requests() [][]llms.MessageContent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]llms.MessageContent, len(s.requests))
	copy(out, s.requests)
	return out
}
