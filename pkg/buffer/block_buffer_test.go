package buffer

import (
	"errors"
	"io"
	"sync"
	"testing"
	"time"
)

func TestBlockBuffer_AddNext(t *testing.T) {
	bb := BlockN[int](4)
	for i := 0; i < 4; i++ {
		if err := bb.Add(i); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	if got := bb.Len(); got != 4 {
		t.Fatalf("Len = %d, want 4", got)
	}
	for i := 0; i < 4; i++ {
		v, err := bb.Next()
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if v != i {
			t.Errorf("Next = %d, want %d", v, i)
		}
	}
}

func TestBlockBuffer_NextAfterCloseWrite(t *testing.T) {
	bb := BlockN[string](2)
	bb.Add("a")
	bb.CloseWrite()

	v, err := bb.Next()
	if err != nil || v != "a" {
		t.Fatalf("Next = (%q, %v), want (a, nil)", v, err)
	}
	if _, err := bb.Next(); err != ErrIteratorDone {
		t.Fatalf("Next after drain = %v, want ErrIteratorDone", err)
	}
	if err := bb.Add("b"); err == nil {
		t.Fatal("Add after CloseWrite should fail")
	}
}

func TestBlockBuffer_AddBlocksWhenFull(t *testing.T) {
	bb := BlockN[int](1)
	bb.Add(1)

	done := make(chan struct{})
	go func() {
		bb.Add(2)
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Add returned while buffer was full")
	case <-time.After(20 * time.Millisecond):
	}

	if _, err := bb.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Add did not unblock after Next")
	}
}

func TestBlockBuffer_CloseWithError(t *testing.T) {
	bb := BlockN[int](2)
	want := errors.New("upstream failed")

	var wg sync.WaitGroup
	wg.Add(1)
	var readErr error
	go func() {
		defer wg.Done()
		_, readErr = bb.Next()
	}()

	time.Sleep(10 * time.Millisecond)
	bb.CloseWithError(want)
	wg.Wait()

	if !errors.Is(readErr, want) {
		t.Fatalf("Next err = %v, want wrapped %v", readErr, want)
	}
	if !errors.Is(bb.Error(), want) {
		t.Fatalf("Error() = %v, want %v", bb.Error(), want)
	}
}

func TestBlockBuffer_CloseDefaultsToClosedPipe(t *testing.T) {
	bb := BlockN[int](1)
	bb.Close()
	if !errors.Is(bb.Error(), io.ErrClosedPipe) {
		t.Fatalf("Error() = %v, want io.ErrClosedPipe", bb.Error())
	}
}
