package chat

import (
	"context"
	"fmt"
	"slices"
)

// Catalog queries the tool-serving collaborator for the current tool list
// and narrows it by name and tag policy. Listing never caches: tool
// availability can change between turns of the same session.
type Catalog struct {
	Server ToolServer
}

// ListTools fetches the full catalog. Transport failures propagate.
func (c *Catalog) ListTools(ctx context.Context) ([]ToolDescriptor, error) {
	tools, err := c.Server.ListTools(ctx)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return tools, nil
}

// FilterOptions selects tools along three independent axes. For each
// slice, nil means "no restriction on that axis"; a non-nil empty
// AllowedNames admits no tool by name, and a non-nil empty AllowedTags is
// a kill switch that disables tool use entirely.
type FilterOptions struct {
	// AllowedNames admits only tools whose name is in the set.
	AllowedNames []string
	// AllowedTags admits tools sharing at least one tag with the set.
	AllowedTags []string
	// RequiredTags admits only tools carrying every listed tag.
	RequiredTags []string
}

// Filter applies opts to tools, preserving order.
func Filter(tools []ToolDescriptor, opts FilterOptions) []ToolDescriptor {
	if opts.AllowedTags != nil && len(opts.AllowedTags) == 0 {
		return []ToolDescriptor{}
	}
	out := make([]ToolDescriptor, 0, len(tools))
	for _, tool := range tools {
		if opts.AllowedNames != nil && !slices.Contains(opts.AllowedNames, tool.Name) {
			continue
		}
		if opts.AllowedTags != nil && !sharesTag(tool, opts.AllowedTags) {
			continue
		}
		if !hasAllTags(tool, opts.RequiredTags) {
			continue
		}
		out = append(out, tool)
	}
	return out
}

func sharesTag(tool ToolDescriptor, tags []string) bool {
	for _, t := range tags {
		if tool.HasTag(t) {
			return true
		}
	}
	return false
}

func hasAllTags(tool ToolDescriptor, tags []string) bool {
	for _, t := range tags {
		if !tool.HasTag(t) {
			return false
		}
	}
	return true
}
