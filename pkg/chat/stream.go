package chat

import (
	"fmt"

	"github.com/parlo-ai/parlo/pkg/buffer"
)

// Stream yields completion Chunks. Next returns a *State error when the
// completion finishes; Close tears down the producer.
type Stream interface {
	Next() (*Chunk, error)
	Close() error
	CloseWithError(error) error
}

type streamEvent struct {
	chunk   *Chunk
	status  Status
	usage   Usage
	refusal string
	err     error
}

// StreamBuilder is the producer side of a Stream. A puller goroutine of a
// Completer implementation Adds chunks and finishes with exactly one of
// Done, Truncated, Blocked, or Abort.
type StreamBuilder struct {
	rb *buffer.BlockBuffer[*streamEvent]
}

func NewStreamBuilder(size int) *StreamBuilder {
	return &StreamBuilder{rb: buffer.BlockN[*streamEvent](size)}
}

func (sb *StreamBuilder) Add(chunks ...*Chunk) error {
	for _, c := range chunks {
		if err := sb.rb.Add(&streamEvent{chunk: c}); err != nil {
			return err
		}
	}
	return nil
}

func (sb *StreamBuilder) Done(usage Usage) error {
	if err := sb.rb.Add(&streamEvent{status: StatusDone, usage: usage}); err != nil {
		return err
	}
	return sb.rb.CloseWrite()
}

func (sb *StreamBuilder) Truncated(usage Usage) error {
	if err := sb.rb.Add(&streamEvent{status: StatusTruncated, usage: usage}); err != nil {
		return err
	}
	return sb.rb.CloseWrite()
}

func (sb *StreamBuilder) Blocked(usage Usage, refusal string) error {
	if err := sb.rb.Add(&streamEvent{status: StatusBlocked, usage: usage, refusal: refusal}); err != nil {
		return err
	}
	return sb.rb.CloseWrite()
}

func (sb *StreamBuilder) Abort(err error) error {
	return sb.rb.CloseWithError(err)
}

func (sb *StreamBuilder) Stream() Stream {
	return (*streamImpl)(sb)
}

type streamImpl StreamBuilder

func (s *streamImpl) Next() (*Chunk, error) {
	evt, err := s.rb.Next()
	if err != nil {
		return nil, err
	}
	switch evt.status {
	case StatusOK:
		return evt.chunk, nil
	case StatusDone:
		err = Done(evt.usage)
	case StatusTruncated:
		err = Truncated(evt.usage)
	case StatusBlocked:
		err = Blocked(evt.usage, evt.refusal)
	case StatusError:
		err = Error(evt.usage, evt.err)
	default:
		err = fmt.Errorf("chat: unexpected stream status: %v", evt.status)
	}
	s.rb.CloseWithError(err)
	return nil, err
}

func (s *streamImpl) Close() error {
	return s.rb.Close()
}

func (s *streamImpl) CloseWithError(err error) error {
	return s.rb.CloseWithError(err)
}
