package chat

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/packages/ssestream"
)

var _ Completer = (*OpenAICompleter)(nil)

const (
	oaiFinishReasonStop          = "stop"
	oaiFinishReasonToolCalls     = "tool_calls"
	oaiFinishReasonLength        = "length"
	oaiFinishReasonFunctionCall  = "function_call"
	oaiFinishReasonContentFilter = "content_filter"
)

// OpenAICompleter implements Completer on the OpenAI chat-completions
// API. The client handle carries no per-session state and is reusable
// across concurrent turns.
type OpenAICompleter struct {
	Client *openai.Client
	Model  string

	// Temperature applies when > 0.
	Temperature float64
}

func (g *OpenAICompleter) Complete(ctx context.Context, req CompletionRequest) (*Message, error) {
	params, err := g.chatCompletion(req)
	if err != nil {
		return nil, err
	}
	resp, err := g.Client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices")
	}
	choice := resp.Choices[0]
	if choice.Message.Refusal != "" {
		return nil, Blocked(oaiConvUsage(&resp.Usage), choice.Message.Refusal)
	}
	msg := &Message{Role: RoleAssistant, Content: choice.Message.Content}
	for _, tc := range choice.Message.ToolCalls {
		msg.ToolCalls = append(msg.ToolCalls, ToolCallRequest{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return msg, nil
}

func (g *OpenAICompleter) CompleteStream(ctx context.Context, req CompletionRequest) (Stream, error) {
	params, err := g.chatCompletion(req)
	if err != nil {
		return nil, err
	}
	sb := NewStreamBuilder(32)
	go func() {
		if err := (&oaiPuller{}).pull(sb, g.Client.Chat.Completions.NewStreaming(ctx, params)); err != nil {
			sb.Abort(err)
		}
	}()
	return sb.Stream(), nil
}

func (g *OpenAICompleter) chatCompletion(req CompletionRequest) (openai.ChatCompletionNewParams, error) {
	msgs, err := convMessages(req.Messages)
	if err != nil {
		return openai.ChatCompletionNewParams{}, err
	}
	params := openai.ChatCompletionNewParams{
		Messages: msgs,
		Model:    g.Model,
	}
	if g.Temperature > 0 {
		params.Temperature = param.NewOpt(g.Temperature)
	}
	for _, tool := range req.Tools {
		params.Tools = append(params.Tools, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: param.NewOpt(tool.Description),
				Parameters:  convToolSchema(tool),
			},
		})
	}
	if req.ToolChoice != "" {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: param.NewOpt(req.ToolChoice),
		}
	}
	return params, nil
}

func convMessages(msgs []Message) ([]openai.ChatCompletionMessageParamUnion, error) {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for i := range msgs {
		mp, err := convMessage(&msgs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, mp)
	}
	return out, nil
}

func convMessage(msg *Message) (openai.ChatCompletionMessageParamUnion, error) {
	switch msg.Role {
	case RoleSystem:
		return openai.SystemMessage(msg.Content), nil
	case RoleDeveloper:
		return openai.ChatCompletionMessageParamUnion{
			OfDeveloper: &openai.ChatCompletionDeveloperMessageParam{
				Content: openai.ChatCompletionDeveloperMessageParamContentUnion{
					OfString: param.NewOpt(msg.Content),
				},
			},
		}, nil
	case RoleUser:
		return openai.UserMessage(msg.Content), nil
	case RoleAssistant:
		if len(msg.ToolCalls) == 0 {
			return openai.AssistantMessage(msg.Content), nil
		}
		mp := &openai.ChatCompletionAssistantMessageParam{}
		if msg.Content != "" {
			mp.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
				OfString: param.NewOpt(msg.Content),
			}
		}
		for _, tc := range msg.ToolCalls {
			mp.ToolCalls = append(mp.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: tc.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		return openai.ChatCompletionMessageParamUnion{OfAssistant: mp}, nil
	case RoleTool:
		return openai.ToolMessage(msg.Content, msg.ToolCallID), nil
	default:
		return openai.ChatCompletionMessageParamUnion{}, fmt.Errorf("unexpected message role: %s", msg.Role)
	}
}

// convToolSchema converts the descriptor's input schema into OpenAI
// function parameters, defaulting to an empty-object schema when absent.
func convToolSchema(tool ToolDescriptor) openai.FunctionParameters {
	if tool.InputSchema == nil {
		return openai.FunctionParameters{
			"type":                 "object",
			"properties":           map[string]any{},
			"additionalProperties": false,
		}
	}
	b, err := json.Marshal(tool.InputSchema)
	if err != nil {
		return nil
	}
	var m openai.FunctionParameters
	if err := json.Unmarshal(b, &m); err != nil {
		return nil
	}
	return m
}

// oaiPuller drains one SSE completion stream into a StreamBuilder.
// Tool-call deltas arrive in fragments keyed by index, each carrying a
// partial function name and partial JSON-arguments text; they accumulate
// per index and commit only when the round finishes, so a tool call is
// never surfaced half-assembled.
type oaiPuller struct {
	pending map[int64]*ToolCallRequest
	order   []int64
}

func (p *oaiPuller) accumulate(t *openai.ChatCompletionChunkChoiceDeltaToolCall) {
	if p.pending == nil {
		p.pending = make(map[int64]*ToolCallRequest)
	}
	tc, ok := p.pending[t.Index]
	if !ok {
		tc = &ToolCallRequest{}
		p.pending[t.Index] = tc
		p.order = append(p.order, t.Index)
	}
	if t.ID != "" {
		tc.ID = t.ID
	}
	tc.Name += t.Function.Name
	tc.Arguments += t.Function.Arguments
}

func (p *oaiPuller) commit(sb *StreamBuilder) error {
	for _, idx := range p.order {
		if err := sb.Add(&Chunk{ToolCall: p.pending[idx]}); err != nil {
			return err
		}
	}
	p.pending = nil
	p.order = nil
	return nil
}

func (p *oaiPuller) pull(sb *StreamBuilder, stream *ssestream.Stream[openai.ChatCompletionChunk]) error {
	defer stream.Close()

	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		sel := &chunk.Choices[0]
		if s := sel.Delta.Content; s != "" {
			if err := sb.Add(&Chunk{Text: s}); err != nil {
				return err
			}
		}
		for i := range sel.Delta.ToolCalls {
			p.accumulate(&sel.Delta.ToolCalls[i])
		}
		switch sel.FinishReason {
		case oaiFinishReasonToolCalls, oaiFinishReasonFunctionCall:
			if err := p.commit(sb); err != nil {
				return err
			}
			return sb.Done(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonStop:
			return sb.Done(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonLength:
			return sb.Truncated(oaiConvUsage(&chunk.Usage))
		case oaiFinishReasonContentFilter:
			return sb.Blocked(oaiConvUsage(&chunk.Usage), sel.Delta.Refusal)
		}
		if s := sel.Delta.Refusal; s != "" {
			return sb.Blocked(oaiConvUsage(&chunk.Usage), s)
		}
	}
	if err := stream.Err(); err != nil {
		return err
	}
	// Stream ended without a finish reason; treat as done.
	return sb.Done(Usage{})
}

func oaiConvUsage(usage *openai.CompletionUsage) Usage {
	return Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	}
}
