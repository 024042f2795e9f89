package quadra

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"

	"github.com/quadralab/quadra/schema"
)

// Tool is a named, schema-declared capability the model may request.
//
// Handlers receive the model-provided arguments as a decoded JSON map
// (already validated against ParameterSchema) and return a
// JSON-serializable result or an error. Handlers may cache expensive
// reads keyed by their own arguments; caching is invisible to the
// dispatcher.
type Tool interface {
	// Name returns the unique identifier used in tool calls.
	Name() string

	// Description tells the model when to use the tool.
	Description() string

	// ParameterSchema declares the tool's input. May be nil for tools
	// without parameters.
	ParameterSchema() *schema.Schema

	// Call executes the tool. An error here does not abort the run;
	// the dispatcher converts it into an error result for the model.
	Call(ctx context.Context, args map[string]any) (any, error)
}

// ToolFunc adapts a plain function into a [Tool].
type ToolFunc struct {
	name        string
	description string
	schema      *schema.Schema
	fn          func(ctx context.Context, args map[string]any) (any, error)
}

// NewToolFunc creates a ToolFunc. The schema may be nil.
func NewToolFunc(
	name, description string,
	s *schema.Schema,
	fn func(ctx context.Context, args map[string]any) (any, error),
) *ToolFunc {
	return &ToolFunc{
		name:        name,
		description: description,
		schema:      s,
		fn:          fn,
	}
}

// Name returns the tool's identifier.
func (t *ToolFunc) Name() string { return t.name }

// Description returns the tool's description for the model.
func (t *ToolFunc) Description() string { return t.description }

// ParameterSchema returns the declared input schema.
func (t *ToolFunc) ParameterSchema() *schema.Schema { return t.schema }

// Call invokes the wrapped function.
func (t *ToolFunc) Call(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// DispatchResult is the uniform envelope for one tool execution. It is
// always data, never a raised failure: unknown tools, schema rejections,
// handler errors and recovered panics all land in Err so the loop can
// forward them to the model as a tool result instead of aborting.
type DispatchResult struct {
	OK     bool   `json:"success"`
	Result any    `json:"result,omitempty"`
	Err    string `json:"error,omitempty"`
}

// Content renders the envelope as the JSON string fed back to the model.
func (r DispatchResult) Content() string {
	b, err := json.Marshal(r)
	if err != nil {
		// Result was not JSON-serializable; degrade to the error shape.
		b, _ = json.Marshal(DispatchResult{
			OK:  false,
			Err: fmt.Sprintf("tool result not serializable: %v", err),
		})
	}
	return string(b)
}

// Registry holds the fixed, ordered set of tools for a run. Build it once
// at startup; it is read-only afterwards and safe to share across runs.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Panics on nil tools or duplicate names: the tool
// set is static configuration, and a bad set is a programming error.
// Returns the registry for chaining.
func (r *Registry) Register(t Tool) *Registry {
	if t == nil {
		panic("quadra: Register called with nil tool")
	}
	name := t.Name()
	if name == "" {
		panic("quadra: Register called with empty tool name")
	}
	if _, exists := r.tools[name]; exists {
		panic(fmt.Sprintf("quadra: tool %q already registered", name))
	}
	r.order = append(r.order, name)
	r.tools[name] = t
	return r
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// Definitions returns the tool definitions in registration order, in the
// shape the model request expects. The sequence is stable across a run.
func (r *Registry) Definitions() []llms.Tool {
	defs := make([]llms.Tool, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		var params any
		if s := t.ParameterSchema(); s != nil {
			params = s.Raw()
		} else {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs = append(defs, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        name,
				Description: t.Description(),
				Parameters:  params,
			},
		})
	}
	return defs
}

// Dispatch looks up and executes a tool, wrapping the outcome in a
// [DispatchResult]. It never panics: handler panics are recovered and
// reported as errors in the envelope.
func (r *Registry) Dispatch(
	ctx context.Context,
	name string,
	args map[string]any,
) (result DispatchResult) {
	defer func() {
		if rec := recover(); rec != nil {
			result = DispatchResult{
				OK:  false,
				Err: fmt.Sprintf("tool %q panicked: %v", name, rec),
			}
		}
	}()

	t, ok := r.tools[name]
	if !ok {
		return DispatchResult{
			OK:  false,
			Err: fmt.Sprintf("unknown tool %q", name),
		}
	}

	if s := t.ParameterSchema(); s != nil {
		if args == nil {
			args = map[string]any{}
		}
		if err := s.Validate(args); err != nil {
			return DispatchResult{
				OK:  false,
				Err: fmt.Sprintf("invalid arguments for %q: %v", name, err),
			}
		}
	}

	out, err := t.Call(ctx, args)
	if err != nil {
		return DispatchResult{OK: false, Err: err.Error()}
	}
	return DispatchResult{OK: true, Result: out}
}
