// Package tools provides the in-process tool registry serving the
// orchestrator, plus the builtin tools it ships with. External tool
// collections (calendar, mail) plug into the same chat.ToolServer
// interface.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/parlo-ai/parlo/pkg/chat"
)

// Handler executes one tool call. The returned value may be a structured
// value, plain text, or nil; the invoker serializes it.
type Handler func(ctx context.Context, args map[string]any) (any, error)

// Tool is one registered tool: its public descriptor plus the handler.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Tags        []string
	Handler     Handler
}

// Registry is an in-process chat.ToolServer. Registration order is
// preserved in listings. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names are unique; Handler is required.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("tools: register: empty name")
	}
	if t.Handler == nil {
		return fmt.Errorf("tools: register %s: nil handler", t.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tools[t.Name]; ok {
		return fmt.Errorf("tools: register %s: already registered", t.Name)
	}
	r.order = append(r.order, t.Name)
	r.tools[t.Name] = t
	return nil
}

// MustRegister is Register for static setup code.
func (r *Registry) MustRegister(t Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

func (r *Registry) ListTools(ctx context.Context) ([]chat.ToolDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]chat.ToolDescriptor, 0, len(r.order))
	for _, name := range r.order {
		t := r.tools[name]
		out = append(out, chat.ToolDescriptor{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			Tags:        t.Tags,
		})
	}
	return out, nil
}

func (r *Registry) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	r.mu.RLock()
	t, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tools: unknown tool %q", name)
	}
	if args == nil {
		args = map[string]any{}
	}
	return t.Handler(ctx, args)
}
