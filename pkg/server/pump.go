package server

import (
	"context"
	"encoding/base64"
	"log/slog"

	"github.com/parlo-ai/parlo/pkg/chat"
	"github.com/parlo-ai/parlo/pkg/speech"
)

// Wire-level event payloads of the streaming surface.
type (
	textDeltaEvent struct {
		Text string `json:"text"`
	}
	toolCallEvent struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	toolResultEvent struct {
		Name   string `json:"name"`
		Result string `json:"result"`
	}
	audioEvent struct {
		Audio  string `json:"audio"`
		Format string `json:"format"`
	}
	errorEvent struct {
		Message string `json:"message"`
	}
	doneEvent struct {
		FullText  string                `json:"full_text"`
		ToolCalls []chat.ToolCallResult `json:"tool_calls"`
		Capped    bool                  `json:"capped,omitempty"`
	}
)

// Pump drains one turn's orchestration events onto a transport, feeding
// assistant text through the segmenter and synthesizing each segment in
// order. Synthesis is sequential on purpose: audio for segment N must
// reach the client before audio for segment N+1.
type Pump struct {
	// Synth is optional; without it the stream carries no audio events.
	Synth speech.Synthesizer

	// Format names the audio container of Synth's output.
	Format string

	Normalize speech.NormalizeOptions
}

// Run consumes events until the turn's terminal event. A transport error
// from the model ends the turn with one error event and is returned; a
// write error to the client is returned as-is (nothing left to notify).
// The event stream is always closed before returning.
func (p *Pump) Run(ctx context.Context, events chat.EventStream, w EventWriter) error {
	defer events.Close()
	var seg speech.Segmenter

	for {
		evt, err := events.Next()
		if err != nil {
			if chat.IsDone(err) {
				return nil
			}
			slog.Error("server: turn aborted", "error", err)
			if werr := w.Send("error", errorEvent{Message: err.Error()}); werr != nil {
				return werr
			}
			return err
		}

		switch evt.Type {
		case chat.EventTextDelta:
			if err := w.Send("text_delta", textDeltaEvent{Text: evt.Text}); err != nil {
				return err
			}
			if err := p.speak(ctx, w, seg.Push(evt.Text)); err != nil {
				return err
			}

		case chat.EventToolCall:
			// The user hears the lead-in before tool latency sets in.
			if err := p.speak(ctx, w, seg.Flush()); err != nil {
				return err
			}
			if err := w.Send("tool_call", toolCallEvent{Name: evt.Name, Arguments: evt.Arguments}); err != nil {
				return err
			}

		case chat.EventToolResult:
			if err := w.Send("tool_result", toolResultEvent{Name: evt.Name, Result: evt.Result.Response}); err != nil {
				return err
			}

		case chat.EventDone:
			if err := p.speak(ctx, w, seg.Flush()); err != nil {
				return err
			}
			return w.Send("done", doneEvent{
				FullText:  evt.FullText,
				ToolCalls: evt.ToolCalls,
				Capped:    evt.Capped,
			})
		}
	}
}

// speak synthesizes segments in order. A synthesis failure skips that
// segment and logs; remaining segments still play.
func (p *Pump) speak(ctx context.Context, w EventWriter, segments []string) error {
	if p.Synth == nil {
		return nil
	}
	for _, s := range segments {
		spoken := speech.Normalize(s, p.Normalize)
		if spoken == "" {
			continue
		}
		audio, err := p.Synth.Synthesize(ctx, spoken)
		if err != nil {
			slog.Warn("server: segment synthesis failed", "error", err)
			continue
		}
		evt := audioEvent{
			Audio:  base64.StdEncoding.EncodeToString(audio),
			Format: p.Format,
		}
		if err := w.Send("audio", evt); err != nil {
			return err
		}
	}
	return nil
}
