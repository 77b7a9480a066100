// Package llm defines the completion-provider contract: chat messages, tool
// (function-calling) specifications, and the Completer interface.
package llm

import (
	"context"
	"encoding/json"
)

// Message roles follow the chat-completions convention.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one entry of a conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// ToolCalls echoes an assistant turn that requested tools.
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	// ToolCallID and Name are set on RoleTool messages carrying a result.
	ToolCallID string `json:"tool_call_id,omitempty"`
	Name       string `json:"name,omitempty"`
}

// ToolCall is a structured request from the model to run a registered tool.
type ToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"`
	Function FunctionCall `json:"function"`
}

// FunctionCall carries the tool name and its raw argument payload.
type FunctionCall struct {
	Name string `json:"name"`
	// Arguments is either a JSON object or a string-encoded JSON object,
	// depending on the provider. Decode with Args.
	Arguments json.RawMessage `json:"arguments"`
}

// Args decodes the argument payload. Providers send either a structured
// object or a string-encoded one; anything that decodes as neither degrades
// to an empty argument set rather than failing the request.
func (t ToolCall) Args() map[string]any {
	raw := t.Function.Arguments
	if len(raw) == 0 {
		return map[string]any{}
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil && obj != nil {
		return obj
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &obj); err == nil && obj != nil {
			return obj
		}
	}
	return map[string]any{}
}

// ToolSpec is the declarative schema for one callable capability, shaped for
// the provider's function-calling interface.
type ToolSpec struct {
	Type     string       `json:"type"`
	Function FunctionSpec `json:"function"`
}

// FunctionSpec describes a function tool: name, description, and a JSON
// Schema for its parameters.
type FunctionSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Completion is the provider's reply to one completion request.
type Completion struct {
	Content   string
	ToolCalls []ToolCall
}

// Options holds optional completion parameters.
type Options struct {
	Temperature float64
	MaxTokens   int
	Model       string
	Tools       []ToolSpec
}

// Option configures a single completion request.
type Option func(*Options)

// WithTemperature sets the sampling temperature.
func WithTemperature(temp float64) Option {
	return func(o *Options) { o.Temperature = temp }
}

// WithMaxTokens caps the reply length.
func WithMaxTokens(n int) Option {
	return func(o *Options) { o.MaxTokens = n }
}

// WithModel overrides the default model for this request.
func WithModel(model string) Option {
	return func(o *Options) { o.Model = model }
}

// WithTools offers tools to the model, tool choice left to its discretion.
func WithTools(tools ...ToolSpec) Option {
	return func(o *Options) { o.Tools = tools }
}

// BuildOptions applies opts over defaults.
func BuildOptions(opts ...Option) Options {
	var o Options
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Completer sends a conversation to the model and returns its reply.
type Completer interface {
	Complete(ctx context.Context, messages []Message, opts ...Option) (*Completion, error)
}
