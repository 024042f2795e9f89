// Package models adapts concrete LLM backends to the quadra.Model
// boundary. The production path wraps a LangChainGo llms.Model and
// normalizes stop reasons and token usage across providers; the scripted
// model drives tests and offline demos.
package models

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"

	"github.com/quadralab/quadra"
)

// DefaultMaxTokens caps the model's output per call.
const DefaultMaxTokens = 4096

// LCGModel wraps a LangChainGo llms.Model and implements quadra.Model.
type LCGModel struct {
	model     llms.Model
	maxTokens int
}

// NewLCG wraps an existing llms.Model.
func NewLCG(model llms.Model) *LCGModel {
	return &LCGModel{model: model, maxTokens: DefaultMaxTokens}
}

// NewAnthropic builds an LCGModel talking to the Anthropic API.
func NewAnthropic(apiKey, model string) (*LCGModel, error) {
	llm, err := anthropic.New(
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	)
	if err != nil {
		return nil, fmt.Errorf("create anthropic client: %w", err)
	}
	return NewLCG(llm), nil
}

// WithMaxTokens sets the per-call output token cap.
func (m *LCGModel) WithMaxTokens(n int) *LCGModel {
	m.maxTokens = n
	return m
}

// Unwrap returns the underlying llms.Model.
func (m *LCGModel) Unwrap() llms.Model {
	return m.model
}

// Generate implements quadra.Model.
func (m *LCGModel) Generate(
	ctx context.Context,
	messages []llms.MessageContent,
	tools []llms.Tool,
) (*quadra.ModelResponse, error) {
	opts := []llms.CallOption{llms.WithMaxTokens(m.maxTokens)}
	if len(tools) > 0 {
		opts = append(opts, llms.WithTools(tools))
	}

	resp, err := m.model.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("model returned no choices")
	}

	choice := resp.Choices[0]
	return &quadra.ModelResponse{
		Stop:          normalizeStop(choice.StopReason, len(choice.ToolCalls)),
		RawStopReason: choice.StopReason,
		Text:          choice.Content,
		ToolCalls:     choice.ToolCalls,
		Usage: quadra.Usage{
			InputTokens:  extractInputTokens(choice.GenerationInfo),
			OutputTokens: extractOutputTokens(choice.GenerationInfo),
		},
	}, nil
}

// normalizeStop maps provider stop strings onto the three signals the
// loop branches on. A response carrying tool calls is a tool-use turn
// even when the provider reports a generic stop string.
func normalizeStop(raw string, toolCalls int) quadra.StopReason {
	switch strings.ToLower(raw) {
	case "tool_use", "tool_calls", "function_call":
		return quadra.StopToolUse
	case "end_turn", "stop", "stop_sequence", "endturn":
		if toolCalls > 0 {
			return quadra.StopToolUse
		}
		return quadra.StopFinal
	default:
		if toolCalls > 0 {
			return quadra.StopToolUse
		}
		return quadra.StopOther
	}
}

// extractInputTokens reads the input/prompt token count from the raw
// GenerationInfo map. Providers disagree on the key name.
func extractInputTokens(info map[string]any) int {
	for _, key := range []string{"InputTokens", "PromptTokens", "input_tokens", "prompt_tokens"} {
		if v := getInt(info, key); v > 0 {
			return v
		}
	}
	return 0
}

// extractOutputTokens reads the output/completion token count.
func extractOutputTokens(info map[string]any) int {
	for _, key := range []string{"OutputTokens", "CompletionTokens", "output_tokens", "completion_tokens"} {
		if v := getInt(info, key); v > 0 {
			return v
		}
	}
	return 0
}

func getInt(info map[string]any, key string) int {
	if info == nil {
		return 0
	}
	switch v := info[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return 0
	}
}
