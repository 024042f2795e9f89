package quadra

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/llms"
)

// DefaultSystemPrompt instructs the model to investigate ETL pipeline
// problems efficiently, using the fewest tools that resolve the report.
const DefaultSystemPrompt = `You are an expert SQL code analyst specialized in ETL (Extract, Transform, Load) pipelines.

You receive reports of problems on ETL pipelines and must investigate and resolve them.

INVESTIGATIVE APPROACH:
- Use ONLY the tools needed to resolve the specific problem
- Do not run a full analysis unless asked for one
- Start from the information most relevant to the problem
- If the fix is clear after a few steps, propose it immediately
- Be efficient: as fast and cheap as possible

STRATEGY:
1. Read the report to understand the kind of problem
2. Identify which information you REALLY need
3. Use the minimum set of tools
4. Propose a concrete fix

EXAMPLES:
- "amount differences" -> read the quadratura -> find the pattern -> propose a fix (do NOT read all the code unless needed)
- "missing records" -> read the quadratura to see how many -> if clear, propose a fix (do NOT analyze the whole BRB)
- "slow performance" -> the code may be needed, the requirements are not

PRIORITY:
- CRITICAL: data loss, wrong calculations, pipeline blocked
- HIGH: requirement violations, degraded performance
- MEDIUM: code quality, standardization
- LOW: minor optimizations

IMPORTANT: Do not waste tokens or time. Go straight to the problem.`

// Agent is the orchestration loop. Construct one with [NewAgent], adjust
// it with the With* methods, then call [Agent.Run]. All per-run state
// (stats, conversation, outcome) is built inside Run, so a single Agent
// value may serve many sequential or concurrent runs.
type Agent struct {
	model        Model
	registry     *Registry
	policy       LimitPolicy
	rates        RateTable
	systemPrompt string
	sqlTool      string
	clock        Clock
	logger       *slog.Logger
}

// NewAgent creates an Agent with the default limit policy, rate table and
// system prompt. The SQL-guarded tool defaults to "execute_sql_query".
func NewAgent(model Model, registry *Registry) *Agent {
	return &Agent{
		model:        model,
		registry:     registry,
		policy:       DefaultLimitPolicy(),
		rates:        DefaultRateTable(),
		systemPrompt: DefaultSystemPrompt,
		sqlTool:      "execute_sql_query",
		clock:        SystemClock(),
		logger:       slog.New(slog.DiscardHandler),
	}
}

// WithLimitPolicy sets the safety limits for subsequent runs.
func (a *Agent) WithLimitPolicy(policy LimitPolicy) *Agent {
	a.policy = policy
	return a
}

// WithRateTable sets the per-token cost rates.
func (a *Agent) WithRateTable(rates RateTable) *Agent {
	a.rates = rates
	return a
}

// WithSystemPrompt replaces the default system instructions.
func (a *Agent) WithSystemPrompt(prompt string) *Agent {
	a.systemPrompt = prompt
	return a
}

// WithSQLGuardedTool names the tool whose "query" argument passes through
// [LimitPolicy.ValidateSQL] before dispatch. Set to "" to disable the
// loop-level SQL guard.
func (a *Agent) WithSQLGuardedTool(name string) *Agent {
	a.sqlTool = name
	return a
}

// WithClock injects a time source. Use [NewMockClock] in tests.
func (a *Agent) WithClock(clock Clock) *Agent {
	a.clock = clock
	return a
}

// WithLogger sets the structured logger for run progress.
func (a *Agent) WithLogger(logger *slog.Logger) *Agent {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	a.logger = logger
	return a
}

// Policy returns the agent's limit policy.
func (a *Agent) Policy() LimitPolicy { return a.policy }

// Run executes one bounded investigation for the given task and always
// returns a [RunOutcome]; it never panics and never returns an error.
//
// Each iteration: check global limits, call the model, then either accept
// a final answer, execute the requested tools (quota and SQL checks
// first, in request order), or abort on an unexpected stop signal.
// Cancellation of ctx is converted into a cancelled outcome carrying the
// partial conversation and stats.
func (a *Agent) Run(ctx context.Context, task string) (outcome *RunOutcome) {
	runID := uuid.NewString()
	stats := NewRunStats(a.clock)
	conversation := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeHuman, task),
	}
	log := a.logger.With("run_id", runID)

	finish := func(o *RunOutcome) *RunOutcome {
		o.RunID = runID
		o.Stats = stats.Snapshot()
		o.Conversation = conversation
		return o
	}

	// Truly unexpected faults become an internal_error outcome instead of
	// escaping to the caller.
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("run panicked", "panic", rec)
			outcome = finish(&RunOutcome{
				Reason:    TerminationInternalError,
				Err:       fmt.Sprintf("panic: %v", rec),
				FinalText: fmt.Sprintf("Run failed with an internal error: %v", rec),
			})
		}
	}()

	log.Info("run started",
		"task_chars", len(task),
		"max_iterations", a.policy.MaxIterations,
		"max_cost", a.policy.MaxTotalCost,
	)

	tools := a.registry.Definitions()

	for {
		if err := ctx.Err(); err != nil {
			log.Warn("run cancelled", "error", err)
			return finish(&RunOutcome{
				Reason:    TerminationCancelled,
				Err:       err.Error(),
				FinalText: "Run cancelled before completion.",
			})
		}

		iteration := stats.StartIteration()
		if v := a.policy.CheckGlobal(stats.Snapshot()); v != nil {
			log.Warn("global limit exceeded", "kind", v.Kind, "detail", v.Message)
			return finish(a.limitOutcome(v))
		}
		log.Debug("iteration", "n", iteration)

		messages := make([]llms.MessageContent, 0, len(conversation)+1)
		messages = append(messages,
			llms.TextParts(llms.ChatMessageTypeSystem, a.systemPrompt))
		messages = append(messages, conversation...)

		resp, err := a.model.Generate(ctx, messages, tools)
		if err != nil {
			if ctx.Err() != nil {
				log.Warn("run cancelled during model call", "error", err)
				return finish(&RunOutcome{
					Reason:    TerminationCancelled,
					Err:       err.Error(),
					FinalText: "Run cancelled during a model call.",
				})
			}
			log.Error("model call failed", "error", err)
			return finish(&RunOutcome{
				Reason:    TerminationInternalError,
				Err:       err.Error(),
				FinalText: fmt.Sprintf("Model call failed: %v", err),
			})
		}

		cost := EstimateCost(resp.Usage, a.rates)
		stats.RecordModelCall(cost)
		log.Debug("model call",
			"stop", resp.Stop,
			"input_tokens", resp.Usage.InputTokens,
			"output_tokens", resp.Usage.OutputTokens,
			"cost", cost,
		)

		switch resp.Stop {
		case StopFinal:
			conversation = append(conversation,
				llms.TextParts(llms.ChatMessageTypeAI, resp.Text))
			log.Info("run completed",
				"iterations", iteration,
				"total_cost", stats.Snapshot().TotalCost,
			)
			return finish(&RunOutcome{
				Success:   true,
				Reason:    TerminationSuccess,
				FinalText: resp.Text,
			})

		case StopToolUse:
			// One assistant turn carries every requested call; the
			// matching tool turn carries the results in the same order.
			conversation = append(conversation, assistantTurn(resp))

			results := make([]llms.ContentPart, 0, len(resp.ToolCalls))
			abort := func(v *Violation) *RunOutcome {
				if len(results) > 0 {
					conversation = append(conversation, llms.MessageContent{
						Role:  llms.ChatMessageTypeTool,
						Parts: results,
					})
				}
				log.Warn("limit exceeded during tool turn",
					"kind", v.Kind, "detail", v.Message)
				return finish(a.limitOutcome(v))
			}

			for _, call := range resp.ToolCalls {
				if call.FunctionCall == nil {
					results = append(results, llms.ToolCallResponse{
						ToolCallID: call.ID,
						Content: DispatchResult{
							OK:  false,
							Err: "tool call without a function payload",
						}.Content(),
					})
					continue
				}
				name := call.FunctionCall.Name

				if v := a.policy.CheckTool(name, stats.Snapshot()); v != nil {
					return abort(v)
				}

				args, argErr := decodeArgs(call.FunctionCall.Arguments)
				if argErr == nil && name == a.sqlTool && a.sqlTool != "" {
					if query, ok := args["query"].(string); ok {
						if v := a.policy.ValidateSQL(query); v != nil {
							return abort(v)
						}
					}
				}

				var result DispatchResult
				if argErr != nil {
					result = DispatchResult{
						OK:  false,
						Err: fmt.Sprintf("malformed arguments: %v", argErr),
					}
				} else {
					result = a.registry.Dispatch(ctx, name, args)
				}
				stats.RecordToolCall(name)
				log.Debug("tool call", "tool", name, "ok", result.OK)

				results = append(results, llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       name,
					Content:    result.Content(),
				})
			}

			conversation = append(conversation, llms.MessageContent{
				Role:  llms.ChatMessageTypeTool,
				Parts: results,
			})

		default:
			log.Warn("unexpected stop signal", "stop_reason", resp.RawStopReason)
			return finish(&RunOutcome{
				Reason: TerminationUnexpectedSignal,
				FinalText: fmt.Sprintf(
					"Model stopped with unexpected signal %q.", resp.RawStopReason,
				),
			})
		}
	}
}

// limitOutcome converts a Violation into the terminal, successful-shaped
// outcome: the run stops cleanly with an explanation, not a fault.
func (a *Agent) limitOutcome(v *Violation) *RunOutcome {
	return &RunOutcome{
		Reason:    TerminationLimitExceeded,
		Violation: v,
		FinalText: fmt.Sprintf("Agent stopped: %s.", v.Message),
	}
}

// assistantTurn builds the assistant message for a tool-use response,
// preserving any preamble text before the tool call parts.
func assistantTurn(resp *ModelResponse) llms.MessageContent {
	parts := make([]llms.ContentPart, 0, len(resp.ToolCalls)+1)
	if resp.Text != "" {
		parts = append(parts, llms.TextContent{Text: resp.Text})
	}
	for _, call := range resp.ToolCalls {
		parts = append(parts, call)
	}
	return llms.MessageContent{Role: llms.ChatMessageTypeAI, Parts: parts}
}

// decodeArgs parses the model-provided JSON argument string. An empty
// string decodes to an empty map (tools without parameters).
func decodeArgs(raw string) (map[string]any, error) {
	if raw == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
