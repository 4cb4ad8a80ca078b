package server

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/parlo-ai/parlo/pkg/chat"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// wsFrame mirrors the SSE wire format: one named event per frame.
type wsFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type wsWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *wsWriter) Send(event string, data any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteJSON(wsFrame{Event: event, Data: data})
}

func (w *wsWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
}

// handleChatWS runs one streamed turn per websocket message: the client
// sends a ChatRequest frame, the server answers with the event frames of
// the streaming surface ending in done, then waits for the next request.
func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	ww := &wsWriter{conn: conn}

	for {
		var req ChatRequest
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Debug("server: websocket closed", "error", err)
			}
			return
		}
		s.streamTurnWS(r.Context(), &req, ww)
	}
}

func (s *Server) streamTurnWS(ctx context.Context, req *ChatRequest, ww *wsWriter) {
	ctx, cancel := context.WithCancel(turnContext(ctx, req))
	defer cancel()

	t, _, err := s.prepareTurn(ctx, req)
	if err != nil {
		ww.Send("error", errorEvent{Message: err.Error()})
		return
	}
	defer t.sess.EndTurn()

	// Joined before returning so a late ping cannot interleave with the
	// next turn's frames.
	pings := make(chan struct{})
	go func() {
		defer close(pings)
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := ww.ping(); err != nil {
					cancel()
					return
				}
			}
		}
	}()
	defer func() {
		cancel()
		<-pings
	}()

	t.sess.Append(t.userMsg)
	es := s.Loop.Stream(ctx, t.conv, t.enabled, func(msgs []chat.Message) {
		t.sess.Append(msgs...)
	})
	pump := &Pump{Synth: s.synthFor(req.Voice), Format: s.Format, Normalize: s.Normalize}
	if err := pump.Run(ctx, es, ww); err != nil {
		slog.Info("server: websocket turn ended early", "session", t.sess.ID, "error", err)
	}
}
