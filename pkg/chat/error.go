package chat

import (
	"errors"
	"fmt"
)

// ErrDone is the sentinel wrapped by a State with StatusDone.
var ErrDone = errors.New("chat: done")

type Status int

const (
	StatusOK Status = iota
	StatusDone
	StatusTruncated
	StatusBlocked
	StatusError
)

// Usage reports token accounting for one completion round.
type Usage struct {
	PromptTokens     int64
	CompletionTokens int64
}

// State is the terminal error of a Stream or EventStream.
type State struct {
	usage  Usage
	status Status
	err    error
}

func Done(usage Usage) *State {
	return &State{
		usage:  usage,
		status: StatusDone,
		err:    ErrDone,
	}
}

func Truncated(usage Usage) *State {
	return &State{
		usage:  usage,
		status: StatusTruncated,
		err:    errors.New("chat: generate truncated"),
	}
}

func Blocked(usage Usage, refusal string) *State {
	return &State{
		usage:  usage,
		status: StatusBlocked,
		err:    fmt.Errorf("chat: generate blocked: %s", refusal),
	}
}

func Error(usage Usage, err error) *State {
	return &State{
		usage:  usage,
		status: StatusError,
		err:    fmt.Errorf("chat: generate error: %w", err),
	}
}

func (ss *State) Usage() Usage {
	return ss.usage
}

func (ss *State) Status() Status {
	return ss.status
}

func (ss *State) Unwrap() error {
	return ss.err
}

func (ss *State) Error() string {
	switch ss.status {
	case StatusDone:
		return "chat: generate done"
	case StatusTruncated, StatusBlocked, StatusError:
		return ss.err.Error()
	default:
		return fmt.Sprintf("chat: unexpected stream status: %v", ss.status)
	}
}

// IsDone reports whether err is a stream's normal completion state.
func IsDone(err error) bool {
	var state *State
	return errors.As(err, &state) && state.Status() == StatusDone
}
