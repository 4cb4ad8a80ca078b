package chat

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultTimezone is the fallback when a request carries no timezone or
// an invalid one.
const DefaultTimezone = "America/Chicago"

const timePolicyClause = "Do not mention the current date or time unless it is directly relevant to the user's request."

// ConversationBuilder assembles the ordered message sequence sent to the
// model for one turn: system preamble, tool-availability notice, optional
// caller-supplied context prefix, session history, and the new user
// message last.
type ConversationBuilder struct {
	// Instructions is the configured agent persona/system prompt.
	Instructions string

	// Now returns the current time; tests override it. Defaults to
	// time.Now.
	Now func() time.Time
}

// BuildParams is the per-turn input to Build.
type BuildParams struct {
	Timezone      string
	AllTools      []ToolDescriptor // full unfiltered catalog
	EnabledTools  []ToolDescriptor // catalog after filtering
	ContextPrefix []Message
	History       []Message
	UserMessage   string
}

// Build produces the complete conversation for one turn.
func (b *ConversationBuilder) Build(p BuildParams) []Message {
	msgs := make([]Message, 0, len(p.ContextPrefix)+len(p.History)+3)
	msgs = append(msgs, Message{Role: RoleSystem, Content: b.systemPreamble(p.Timezone)})
	msgs = append(msgs, Message{Role: RoleDeveloper, Content: availabilityNotice(p.AllTools, p.EnabledTools)})
	msgs = append(msgs, p.ContextPrefix...)
	msgs = append(msgs, p.History...)
	msgs = append(msgs, Message{Role: RoleUser, Content: p.UserMessage})
	return msgs
}

func (b *ConversationBuilder) systemPreamble(timezone string) string {
	loc, name := resolveTimezone(timezone)
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	local := now().In(loc)

	var sb strings.Builder
	if b.Instructions != "" {
		sb.WriteString(strings.TrimSpace(b.Instructions))
		sb.WriteString("\n\n")
	}
	sb.WriteString(timePolicyClause)
	fmt.Fprintf(&sb, "\nUser timezone: %s.", name)
	fmt.Fprintf(&sb, "\nCurrent local time: %s.", local.Format("Monday, January 2, 2006 at 3:04 PM"))
	return sb.String()
}

// resolveTimezone loads the named timezone, falling back to
// DefaultTimezone on empty or invalid names, and to UTC if even the
// default is unavailable on the host.
func resolveTimezone(name string) (*time.Location, string) {
	if name != "" {
		if loc, err := time.LoadLocation(name); err == nil {
			return loc, name
		}
	}
	if loc, err := time.LoadLocation(DefaultTimezone); err == nil {
		return loc, DefaultTimezone
	}
	return time.UTC, "UTC"
}

// availabilityNotice describes which tool categories and tools the model
// may use this turn. It is recomputed every turn because availability can
// change between turns, and it explicitly forbids inferring access from
// older conversation turns.
func availabilityNotice(all, enabled []ToolDescriptor) string {
	enabledTags := categoryTags(enabled)
	disabledTags := make([]string, 0)
	for _, tag := range categoryTags(all) {
		if !stringsContain(enabledTags, tag) {
			disabledTags = append(disabledTags, tag)
		}
	}
	names := make([]string, 0, len(enabled))
	for _, t := range enabled {
		names = append(names, t.Name)
	}

	var sb strings.Builder
	sb.WriteString("Tool availability for this turn.\n")
	if len(enabledTags) > 0 {
		fmt.Fprintf(&sb, "Enabled categories: %s.\n", strings.Join(enabledTags, ", "))
	} else {
		sb.WriteString("Enabled categories: none.\n")
	}
	if len(disabledTags) > 0 {
		fmt.Fprintf(&sb, "Disabled categories: %s.\n", strings.Join(disabledTags, ", "))
	}
	if len(names) > 0 {
		fmt.Fprintf(&sb, "Enabled tools: %s.\n", strings.Join(names, ", "))
	} else {
		sb.WriteString("Enabled tools: none.\n")
	}
	sb.WriteString("Treat disabled categories as unavailable right now, even if earlier turns in this conversation used them. Do not claim or imply access to tools that are not enabled this turn.")
	return sb.String()
}

// categoryTags returns the sorted capability tags of tools, excluding the
// confirmation sentinel, which is policy rather than a category.
func categoryTags(tools []ToolDescriptor) []string {
	seen := map[string]bool{}
	for _, tool := range tools {
		for _, tag := range tool.Tags {
			if tag == TagRequiresConfirmation {
				continue
			}
			seen[tag] = true
		}
	}
	tags := make([]string, 0, len(seen))
	for tag := range seen {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func stringsContain(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
