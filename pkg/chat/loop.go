package chat

import (
	"context"
	"log/slog"
	"slices"
	"strings"
)

// DefaultMaxRounds caps the LLM/tool rounds per turn.
const DefaultMaxRounds = 15

// CappedMessage is the assistant reply synthesized when a turn hits the
// round cap.
const CappedMessage = "I reached the tool-call limit for this request, so I stopped before finishing. Please try again, or break the request into smaller steps."

const (
	nudgeSuccess = "A tool in this round returned a structured result with status success. Use that result directly to answer the user; do not claim you lack access to the data."
	nudgeFailure = "No tool in this round reported success. Explain what went wrong to the user using the tool output; do not invent results."
)

// CommitFunc receives the messages of one completed round for session
// persistence. An interrupted round is never committed.
type CommitFunc func(msgs []Message)

// Loop drives the multi-round LLM/tool exchange for one turn. A Loop
// value holds only shared, reusable collaborators and is safe to use
// across concurrent turns; the per-turn conversation is owned by each
// Run/Stream invocation.
type Loop struct {
	Completer Completer
	Invoker   *Invoker

	// MaxRounds overrides DefaultMaxRounds when positive.
	MaxRounds int
}

// TurnResult is the buffered-mode outcome of a turn.
type TurnResult struct {
	Text      string
	ToolCalls []ToolCallResult

	// NewMessages are the assistant and tool messages appended during the
	// turn (system nudges are conversation-local and excluded).
	NewMessages []Message

	// Capped reports that the turn ended at the round cap.
	Capped bool
}

func (l *Loop) maxRounds() int {
	if l.MaxRounds > 0 {
		return l.MaxRounds
	}
	return DefaultMaxRounds
}

func toolChoice(tools []ToolDescriptor) string {
	if len(tools) > 0 {
		return "auto"
	}
	return "none"
}

// Run executes one turn in buffered mode: a single completion per round,
// no partial output surfaced.
func (l *Loop) Run(ctx context.Context, conv []Message, tools []ToolDescriptor) (*TurnResult, error) {
	conv = slices.Clone(conv)
	choice := toolChoice(tools)
	res := &TurnResult{}

	for round := 0; round < l.maxRounds(); round++ {
		msg, err := l.Completer.Complete(ctx, CompletionRequest{
			Messages:   conv,
			Tools:      tools,
			ToolChoice: choice,
		})
		if err != nil {
			return nil, err
		}
		// Appended verbatim, before any tool executes, even when content
		// is empty.
		conv = append(conv, *msg)
		res.NewMessages = append(res.NewMessages, *msg)

		if len(msg.ToolCalls) == 0 {
			res.Text = msg.Content
			return res, nil
		}

		anySuccess := false
		for _, tc := range msg.ToolCalls {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			slog.Debug("chat: invoking tool", "round", round, "tool", tc.Name)
			r := l.Invoker.Invoke(ctx, descriptorFor(tools, tc.Name), tc, conv)
			if r.Succeeded() {
				anySuccess = true
			}
			tm := Message{Role: RoleTool, Content: r.Response, ToolCallID: tc.ID}
			conv = append(conv, tm)
			res.NewMessages = append(res.NewMessages, tm)
			res.ToolCalls = append(res.ToolCalls, r)
		}
		conv = append(conv, Message{Role: RoleSystem, Content: roundNudge(anySuccess)})
	}

	capped := Message{Role: RoleAssistant, Content: CappedMessage}
	res.NewMessages = append(res.NewMessages, capped)
	res.Text = CappedMessage
	res.Capped = true
	return res, nil
}

// Stream executes one turn in streaming mode, surfacing incremental
// events. commit (optional) receives each completed round's messages;
// a round interrupted by cancellation is never committed. The returned
// stream terminates with EventDone followed by a done State, or with the
// transport error that aborted the turn.
func (l *Loop) Stream(ctx context.Context, conv []Message, tools []ToolDescriptor, commit CommitFunc) EventStream {
	if commit == nil {
		commit = func([]Message) {}
	}
	es := newEventStreamBuilder(32)
	go func() {
		es.finish(l.streamTurn(ctx, slices.Clone(conv), tools, commit, es))
	}()
	return es.stream()
}

func (l *Loop) streamTurn(ctx context.Context, conv []Message, tools []ToolDescriptor, commit CommitFunc, es *eventStreamBuilder) error {
	choice := toolChoice(tools)
	var fullText strings.Builder
	var summaries []ToolCallResult

	for round := 0; round < l.maxRounds(); round++ {
		cs, err := l.Completer.CompleteStream(ctx, CompletionRequest{
			Messages:   conv,
			Tools:      tools,
			ToolChoice: choice,
		})
		if err != nil {
			return err
		}

		var text strings.Builder
		var calls []ToolCallRequest
		for {
			chunk, err := cs.Next()
			if err != nil {
				if IsDone(err) {
					break
				}
				return err
			}
			if chunk.Text != "" {
				text.WriteString(chunk.Text)
				fullText.WriteString(chunk.Text)
				if err := es.add(&Event{Type: EventTextDelta, Text: chunk.Text}); err != nil {
					cs.Close()
					return err
				}
			}
			if chunk.ToolCall != nil {
				// Tool-call deltas were already assembled per index by the
				// Completer; a call only reaches here complete.
				calls = append(calls, *chunk.ToolCall)
			}
		}

		asst := Message{Role: RoleAssistant, Content: text.String(), ToolCalls: calls}
		conv = append(conv, asst)
		roundMsgs := []Message{asst}

		if len(calls) == 0 {
			commit(roundMsgs)
			return es.add(&Event{
				Type:      EventDone,
				FullText:  fullText.String(),
				ToolCalls: summaries,
			})
		}

		anySuccess := false
		for _, tc := range calls {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := es.add(&Event{Type: EventToolCall, Name: tc.Name, Arguments: parseArguments(tc.Arguments)}); err != nil {
				return err
			}
			slog.Debug("chat: invoking tool", "round", round, "tool", tc.Name)
			r := l.Invoker.Invoke(ctx, descriptorFor(tools, tc.Name), tc, conv)
			if r.Succeeded() {
				anySuccess = true
			}
			summaries = append(summaries, r)
			tm := Message{Role: RoleTool, Content: r.Response, ToolCallID: tc.ID}
			conv = append(conv, tm)
			roundMsgs = append(roundMsgs, tm)
			if err := es.add(&Event{Type: EventToolResult, Name: tc.Name, Result: &r}); err != nil {
				return err
			}
		}
		commit(roundMsgs)
		conv = append(conv, Message{Role: RoleSystem, Content: roundNudge(anySuccess)})
	}

	slog.Info("chat: turn hit round cap", "rounds", l.maxRounds())
	if err := es.add(&Event{Type: EventTextDelta, Text: CappedMessage}); err != nil {
		return err
	}
	if fullText.Len() > 0 {
		fullText.WriteString("\n\n")
	}
	fullText.WriteString(CappedMessage)
	commit([]Message{{Role: RoleAssistant, Content: CappedMessage}})
	return es.add(&Event{
		Type:      EventDone,
		FullText:  fullText.String(),
		ToolCalls: summaries,
		Capped:    true,
	})
}

func roundNudge(anySuccess bool) string {
	if anySuccess {
		return nudgeSuccess
	}
	return nudgeFailure
}

func descriptorFor(tools []ToolDescriptor, name string) ToolDescriptor {
	for _, t := range tools {
		if t.Name == name {
			return t
		}
	}
	// Unknown name: the tool server will reject the call and the
	// rejection flows back to the model as an error payload.
	return ToolDescriptor{Name: name}
}
