package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// confirmationPhrases is the fixed vocabulary treated as explicit user
// approval for a sensitive tool. Matched case-insensitively as whole
// words/phrases against the most recent user message.
var confirmationPhrases = []string{
	"yes",
	"yeah",
	"confirm",
	"approve",
	"ok",
	"go ahead",
	"send it",
	"do it",
}

var confirmationRe = func() *regexp.Regexp {
	alts := make([]string, len(confirmationPhrases))
	for i, p := range confirmationPhrases {
		alts[i] = strings.ReplaceAll(regexp.QuoteMeta(p), " ", `\s+`)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(alts, "|") + `)\b`)
}()

// Invoker executes a single tool call against the tool-serving
// collaborator. A failed, rejected, or unconfirmed call is data for the
// model, never an error for the caller.
type Invoker struct {
	Server ToolServer
}

// Invoke runs one tool call. conv is the conversation so far, scanned
// backward for the latest user message when the tool requires
// confirmation. The returned result's Response is always a JSON string
// payload (possibly an error payload), empty only on empty tool output.
func (inv *Invoker) Invoke(ctx context.Context, tool ToolDescriptor, call ToolCallRequest, conv []Message) ToolCallResult {
	args := parseArguments(call.Arguments)
	res := ToolCallResult{Name: call.Name, Arguments: args}

	if tool.HasTag(TagRequiresConfirmation) && !confirmedByUser(conv) {
		slog.Info("chat: tool call held for confirmation", "tool", call.Name)
		res.Response = errorPayload(call.Name,
			"User confirmation required before running this tool. Ask the user to explicitly confirm and try again.")
		return res
	}

	out, err := inv.callTool(ctx, call.Name, args)
	if err != nil {
		slog.Warn("chat: tool call failed", "tool", call.Name, "error", err)
		res.Response = errorPayload(call.Name, err.Error())
		return res
	}
	res.Response = stringifyResult(out)
	return res
}

// callTool shields the loop from panicking tool implementations.
func (inv *Invoker) callTool(ctx context.Context, name string, args map[string]any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("tool panic: %v", r)
		}
	}()
	return inv.Server.CallTool(ctx, name, args)
}

// confirmedByUser scans backward for the latest user message and checks
// it against the confirmation vocabulary.
func confirmedByUser(conv []Message) bool {
	for i := len(conv) - 1; i >= 0; i-- {
		if conv[i].Role != RoleUser {
			continue
		}
		return confirmationRe.MatchString(conv[i].Content)
	}
	return false
}

func errorPayload(tool, message string) string {
	b, _ := json.Marshal(map[string]string{
		"status":  "error",
		"message": message,
		"tool":    tool,
	})
	return string(b)
}

// stringifyResult resolves the tool's duck-typed payload (structured
// value, plain text, or nothing) into one canonical string form.
func stringifyResult(out any) string {
	switch v := out.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case json.RawMessage:
		return string(v)
	}
	b, err := json.Marshal(out)
	if err != nil {
		return fmt.Sprintf("%v", out)
	}
	return string(b)
}

// Succeeded reports whether the tool's response payload declared success:
// a JSON object with a status field equal to "success", case-insensitive.
func (r ToolCallResult) Succeeded() bool {
	var payload struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal([]byte(r.Response), &payload); err != nil {
		return false
	}
	return strings.EqualFold(payload.Status, "success")
}
