// Package buffer provides a thread-safe blocking circular buffer used as
// the spine of the event and chunk streams in this repository.
//
// A BlockBuffer blocks writers when full and readers when empty, which
// gives every stream in the system predictable memory usage and natural
// backpressure. Producers close the write side with CloseWrite for a
// graceful end of stream, or tear the whole buffer down with
// CloseWithError.
package buffer

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// ErrIteratorDone is returned by Next when the write side is closed and
// all buffered elements have been consumed.
var ErrIteratorDone = errors.New("buffer: iterator done")

// BlockBuffer is a fixed-size circular buffer of T with blocking Add and
// Next operations. It is safe for concurrent use by one or more producers
// and consumers.
type BlockBuffer[T any] struct {
	cond *sync.Cond

	mu         sync.Mutex
	buf        []T
	head, tail int64
	closeWrite bool
	closeErr   error
}

// BlockN creates a BlockBuffer with capacity for size elements.
func BlockN[T any](size int) *BlockBuffer[T] {
	v := &BlockBuffer[T]{
		buf: make([]T, size),
	}
	v.cond = sync.NewCond(&v.mu)
	return v
}

// Add appends one element, blocking while the buffer is full.
// It fails once the write side is closed.
func (bb *BlockBuffer[T]) Add(t T) error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeErr != nil {
		return fmt.Errorf("buffer: write to closed buffer: %w", bb.closeErr)
	}
	if bb.closeWrite {
		return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
	}
	bufsz := int64(len(bb.buf))
	for bb.tail-bb.head == bufsz {
		bb.cond.Wait()
		if bb.closeErr != nil {
			return fmt.Errorf("buffer: write to closed buffer: %w", bb.closeErr)
		}
		if bb.closeWrite {
			return fmt.Errorf("buffer: write to closed buffer: %w", io.ErrClosedPipe)
		}
	}
	bb.buf[bb.tail%bufsz] = t
	bb.tail++
	bb.cond.Signal()
	return nil
}

// Next removes and returns the next element, blocking while the buffer is
// empty. Returns ErrIteratorDone after CloseWrite once the buffer drains.
func (bb *BlockBuffer[T]) Next() (t T, err error) {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeErr != nil {
		err = fmt.Errorf("buffer: read from closed buffer: %w", bb.closeErr)
		return
	}
	for bb.head == bb.tail {
		if bb.closeWrite {
			err = ErrIteratorDone
			return
		}
		bb.cond.Wait()
		if bb.closeErr != nil {
			err = fmt.Errorf("buffer: read from closed buffer: %w", bb.closeErr)
			return
		}
	}
	t = bb.buf[bb.head%int64(len(bb.buf))]
	bb.head++
	bb.cond.Signal()
	return t, nil
}

// Len reports the number of buffered elements.
func (bb *BlockBuffer[T]) Len() int {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return int(bb.tail - bb.head)
}

// CloseWrite closes the write side. Buffered elements remain readable;
// Next returns ErrIteratorDone once they are consumed.
func (bb *BlockBuffer[T]) CloseWrite() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeWrite {
		return nil
	}
	bb.closeWrite = true
	bb.cond.Broadcast()
	return nil
}

// CloseWithError tears the buffer down. All pending and future operations
// fail with err (io.ErrClosedPipe when err is nil). The first close wins.
func (bb *BlockBuffer[T]) CloseWithError(err error) error {
	if err == nil {
		err = io.ErrClosedPipe
	}
	bb.mu.Lock()
	defer bb.mu.Unlock()
	if bb.closeErr != nil {
		return nil
	}
	bb.closeErr = err
	bb.closeWrite = true
	bb.cond.Broadcast()
	return nil
}

// Error returns the error the buffer was closed with, if any.
func (bb *BlockBuffer[T]) Error() error {
	bb.mu.Lock()
	defer bb.mu.Unlock()
	return bb.closeErr
}

// Close closes the buffer with io.ErrClosedPipe.
func (bb *BlockBuffer[T]) Close() error {
	return bb.CloseWithError(io.ErrClosedPipe)
}
