package chat

import (
	"github.com/parlo-ai/parlo/pkg/buffer"
)

type EventType int

const (
	// EventTextDelta carries one incremental text fragment of the
	// assistant's reply.
	EventTextDelta EventType = iota
	// EventToolCall announces a fully assembled tool call just before it
	// executes. Transports must flush buffered speech first so the user
	// hears the lead-in before tool latency.
	EventToolCall
	// EventToolResult carries the normalized outcome of a tool call.
	EventToolResult
	// EventDone terminates the turn with the full reply text and the
	// tool-call summaries of all rounds.
	EventDone
)

// Event is one ordered orchestration event of a streaming turn. Within a
// round events are strictly text deltas, then tool call/result pairs; the
// last event of a turn is always EventDone.
type Event struct {
	Type EventType

	Text string // EventTextDelta

	Name      string          // EventToolCall, EventToolResult
	Arguments map[string]any  // EventToolCall
	Result    *ToolCallResult // EventToolResult

	FullText  string           // EventDone
	ToolCalls []ToolCallResult // EventDone
	Capped    bool             // EventDone: turn ended at the round cap
}

// EventStream yields orchestration Events. Next returns a *State error
// after EventDone, or the transport error that aborted the turn.
type EventStream interface {
	Next() (*Event, error)
	Close() error
	CloseWithError(error) error
}

type eventStreamBuilder struct {
	rb *buffer.BlockBuffer[*Event]
}

func newEventStreamBuilder(size int) *eventStreamBuilder {
	return &eventStreamBuilder{rb: buffer.BlockN[*Event](size)}
}

func (b *eventStreamBuilder) add(evt *Event) error {
	return b.rb.Add(evt)
}

// finish terminates the stream: normal completion when err is nil,
// abnormal teardown otherwise.
func (b *eventStreamBuilder) finish(err error) {
	if err != nil {
		b.rb.CloseWithError(err)
		return
	}
	b.rb.CloseWrite()
}

func (b *eventStreamBuilder) stream() EventStream {
	return (*eventStreamImpl)(b)
}

type eventStreamImpl eventStreamBuilder

func (s *eventStreamImpl) Next() (*Event, error) {
	evt, err := s.rb.Next()
	if err == buffer.ErrIteratorDone {
		return nil, Done(Usage{})
	}
	if err != nil {
		return nil, err
	}
	return evt, nil
}

func (s *eventStreamImpl) Close() error {
	return s.rb.Close()
}

func (s *eventStreamImpl) CloseWithError(err error) error {
	return s.rb.CloseWithError(err)
}
