package chat

import (
	"context"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
)

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
	RoleDeveloper Role = "developer"
)

// TagRequiresConfirmation marks a tool whose invocation needs explicit
// user approval in the latest user message.
const TagRequiresConfirmation = "requires_confirmation"

type Role string

func (r Role) String() string {
	return string(r)
}

// Message is one entry of a conversation. A tool message references the
// tool_call_id of a tool call requested by an earlier assistant message.
type Message struct {
	Role       Role              `json:"role"`
	Content    string            `json:"content,omitempty"`
	ToolCallID string            `json:"tool_call_id,omitempty"`
	ToolCalls  []ToolCallRequest `json:"tool_calls,omitempty"`
}

// ToolCallRequest is a model-requested tool invocation. Arguments holds
// the raw JSON text exactly as the model produced it; it may be malformed
// and is only parsed at the invoker boundary.
type ToolCallRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ToolCallResult is the externally reported outcome of one tool call.
// Response is always a JSON-serializable string, empty on no content.
type ToolCallResult struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
	Response  string         `json:"response"`
}

// ToolDescriptor describes one callable tool of the tool-serving
// collaborator. Tags carry capability markers ("calendar", "gmail", ...)
// and the TagRequiresConfirmation sentinel.
type ToolDescriptor struct {
	Name        string             `json:"name"`
	Description string             `json:"description,omitempty"`
	InputSchema *jsonschema.Schema `json:"input_schema,omitempty"`
	Tags        []string           `json:"tags,omitempty"`
}

// HasTag reports whether the descriptor carries the given tag.
func (d ToolDescriptor) HasTag(tag string) bool {
	return slices.Contains(d.Tags, tag)
}

// ToolServer is the external tool-serving collaborator. Implementations
// must be safe for concurrent use across sessions.
type ToolServer interface {
	ListTools(ctx context.Context) ([]ToolDescriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// CompletionRequest is one LLM round: the full conversation so far plus
// the tools offered for this turn.
type CompletionRequest struct {
	Messages   []Message
	Tools      []ToolDescriptor
	ToolChoice string // "auto" or "none"
}

// Completer is the chat-completion collaborator. Implementations must be
// safe for concurrent use across sessions.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (*Message, error)
	CompleteStream(ctx context.Context, req CompletionRequest) (Stream, error)
}

// Chunk is one increment of a streamed completion: a text fragment, or a
// fully assembled tool call committed once the round's deltas completed.
type Chunk struct {
	Text     string
	ToolCall *ToolCallRequest
}

type turnContextKey struct{}

// TurnContext carries per-request ambient values (resolved timezone,
// upstream access credential) that must be threaded explicitly to every
// collaborator call instead of living in shared mutable state.
type TurnContext struct {
	Timezone    string
	AccessToken string
}

// WithTurnContext attaches tc to ctx for downstream collaborator calls.
func WithTurnContext(ctx context.Context, tc TurnContext) context.Context {
	return context.WithValue(ctx, turnContextKey{}, tc)
}

// TurnContextFrom returns the TurnContext attached to ctx, zero if none.
func TurnContextFrom(ctx context.Context) TurnContext {
	tc, _ := ctx.Value(turnContextKey{}).(TurnContext)
	return tc
}
