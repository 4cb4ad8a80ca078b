package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// EventWriter is the transport-side sink the pump writes to. Both the
// SSE and websocket surfaces implement it.
type EventWriter interface {
	Send(event string, data any) error
}

// sseWriter serializes Server-Sent Events onto one response. Sends are
// mutex-ordered; lastEvent feeds the keep-alive ticker so pings only go
// out during real quiet.
type sseWriter struct {
	w         http.ResponseWriter
	flusher   http.Flusher
	mu        sync.Mutex
	lastEvent atomic.Int64
}

func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support flushing")
	}
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	sw := &sseWriter{w: w, flusher: f}
	sw.lastEvent.Store(time.Now().UnixNano())
	return sw, nil
}

func (sw *sseWriter) Send(event string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return err
	}

	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, err := fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", event, b); err != nil {
		return err
	}
	sw.flusher.Flush()
	sw.lastEvent.Store(time.Now().UnixNano())
	return nil
}

// SendComment writes an SSE comment line. Comments flush proxy buffers
// and keep idle connections alive without reaching client event handlers.
func (sw *sseWriter) SendComment(comment string) error {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if _, err := fmt.Fprintf(sw.w, ": %s\n\n", comment); err != nil {
		return err
	}
	sw.flusher.Flush()
	return nil
}

func (sw *sseWriter) idleSince() time.Time {
	return time.Unix(0, sw.lastEvent.Load())
}
