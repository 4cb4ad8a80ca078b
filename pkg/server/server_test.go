package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/parlo-ai/parlo/pkg/chat"
	"github.com/parlo-ai/parlo/pkg/session"
	"github.com/parlo-ai/parlo/pkg/tools"
)

// stubCompleter answers a scripted message sequence, repeating the last
// entry when the script runs out.
type stubCompleter struct {
	mu      sync.Mutex
	script  []chat.Message
	lastReq chat.CompletionRequest
}

func (c *stubCompleter) next(req chat.CompletionRequest) (*chat.Message, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastReq = req
	if len(c.script) == 0 {
		return nil, errors.New("script exhausted")
	}
	msg := c.script[0]
	if len(c.script) > 1 {
		c.script = c.script[1:]
	}
	return &msg, nil
}

func (c *stubCompleter) Complete(ctx context.Context, req chat.CompletionRequest) (*chat.Message, error) {
	return c.next(req)
}

func (c *stubCompleter) CompleteStream(ctx context.Context, req chat.CompletionRequest) (chat.Stream, error) {
	msg, err := c.next(req)
	if err != nil {
		return nil, err
	}
	sb := chat.NewStreamBuilder(16)
	if msg.Content != "" {
		sb.Add(&chat.Chunk{Text: msg.Content})
	}
	for i := range msg.ToolCalls {
		sb.Add(&chat.Chunk{ToolCall: &msg.ToolCalls[i]})
	}
	sb.Done(chat.Usage{})
	return sb.Stream(), nil
}

func newTestServer(t *testing.T, script ...chat.Message) (*Server, *stubCompleter) {
	t.Helper()
	reg := tools.NewRegistry()
	reg.MustRegister(tools.Tool{
		Name:        "list_google_calendar_events",
		Description: "List calendar events.",
		Tags:        []string{"calendar"},
		Handler: func(ctx context.Context, args map[string]any) (any, error) {
			return map[string]any{"status": "success", "events": []string{"standup 10 AM"}}, nil
		},
	})

	comp := &stubCompleter{script: script}
	srv := &Server{
		Store:   session.NewStore(0),
		Catalog: &chat.Catalog{Server: reg},
		Builder: &chat.ConversationBuilder{Instructions: "You are a helpful voice assistant."},
		Loop:    &chat.Loop{Completer: comp, Invoker: &chat.Invoker{Server: reg}},
		Format:  "mp3",
	}
	return srv, comp
}

func postJSON(t *testing.T, h http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	b, err := json.Marshal(body)
	if err != nil {
		t.Fatal(err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(b))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := httptest.NewRecorder()
	srv.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestChatBuffered(t *testing.T) {
	srv, comp := newTestServer(t, chat.Message{Role: chat.RoleAssistant, Content: "Hello!"})
	router := srv.Router()

	rr := postJSON(t, router, "/api/chat", ChatRequest{SessionID: "s1", Message: "hi"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body)
	}
	var resp ChatResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Text != "Hello!" || resp.SessionID != "s1" {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Audio != "" {
		t.Error("audio present without a synthesizer")
	}

	// Second turn carries the first turn's history.
	postJSON(t, router, "/api/chat", ChatRequest{SessionID: "s1", Message: "and again"})
	var users int
	for _, m := range comp.lastReq.Messages {
		if m.Role == chat.RoleUser {
			users++
		}
	}
	if users != 2 {
		t.Errorf("second turn saw %d user messages, want 2", users)
	}
}

func TestChatMissingMessage(t *testing.T) {
	srv, _ := newTestServer(t, chat.Message{Role: chat.RoleAssistant, Content: "Hello!"})
	rr := postJSON(t, srv.Router(), "/api/chat", ChatRequest{SessionID: "s1"})
	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

// parseSSE extracts the event names of an SSE body, skipping comments.
func parseSSE(body string) []string {
	var names []string
	for _, line := range strings.Split(body, "\n") {
		if strings.HasPrefix(line, "event: ") {
			names = append(names, strings.TrimPrefix(line, "event: "))
		}
	}
	return names
}

func TestChatStream(t *testing.T) {
	srv, _ := newTestServer(t,
		chat.Message{
			Role:    chat.RoleAssistant,
			Content: "Checking your calendar.",
			ToolCalls: []chat.ToolCallRequest{{
				ID:        "call_1",
				Name:      "list_google_calendar_events",
				Arguments: `{"day":"tomorrow"}`,
			}},
		},
		chat.Message{Role: chat.RoleAssistant, Content: "You have one meeting tomorrow."},
	)

	rr := postJSON(t, srv.Router(), "/api/chat/stream", ChatRequest{SessionID: "s1", Message: "what's on tomorrow?"})
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Fatalf("Content-Type = %q", ct)
	}

	names := parseSSE(rr.Body.String())
	joined := strings.Join(names, ",")
	for _, want := range []string{"text_delta", "tool_call", "tool_result", "done"} {
		if !strings.Contains(joined, want) {
			t.Errorf("stream missing %q event: %v", want, names)
		}
	}
	if names[len(names)-1] != "done" {
		t.Errorf("last event = %q, want done", names[len(names)-1])
	}
	if !strings.HasPrefix(rr.Body.String(), ": stream open") {
		t.Errorf("stream did not open with a comment: %q", rr.Body.String()[:40])
	}

	// Both rounds persisted: user, assistant+tool, final assistant.
	hist := srv.Store.GetOrCreate("s1", "").History()
	wantRoles := []chat.Role{chat.RoleUser, chat.RoleAssistant, chat.RoleTool, chat.RoleAssistant}
	if len(hist) != len(wantRoles) {
		t.Fatalf("history = %+v", hist)
	}
	for i, r := range wantRoles {
		if hist[i].Role != r {
			t.Errorf("history[%d].Role = %q, want %q", i, hist[i].Role, r)
		}
	}
}

func TestChatStreamTransportError(t *testing.T) {
	srv, _ := newTestServer(t) // empty script: first completion fails
	rr := postJSON(t, srv.Router(), "/api/chat/stream", ChatRequest{SessionID: "s1", Message: "hi"})
	names := parseSSE(rr.Body.String())
	if len(names) == 0 || names[len(names)-1] != "error" {
		t.Errorf("events = %v, want terminal error event", names)
	}
}

func TestSessionReset(t *testing.T) {
	srv, _ := newTestServer(t, chat.Message{Role: chat.RoleAssistant, Content: "Hello!"})
	router := srv.Router()
	postJSON(t, router, "/api/chat", ChatRequest{SessionID: "s1", Message: "hi"})

	rr := postJSON(t, router, "/api/sessions/s1/reset", struct{}{})
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["reset"] != true {
		t.Errorf("body = %v", body)
	}
	if got := srv.Store.GetOrCreate("s1", "").History(); len(got) != 0 {
		t.Errorf("history survived reset: %+v", got)
	}
}

func TestTranscribeUnconfigured(t *testing.T) {
	srv, _ := newTestServer(t)
	rr := postJSON(t, srv.Router(), "/api/transcribe", struct{}{})
	if rr.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rr.Code)
	}
}

// raceWriter fails the test if anything writes to it after close.
type raceWriter struct {
	t      *testing.T
	mu     sync.Mutex
	closed bool
	header http.Header
}

func (w *raceWriter) Header() http.Header { return w.header }
func (w *raceWriter) WriteHeader(int)     {}
func (w *raceWriter) Flush()              {}

func (w *raceWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.t.Error("write after the stream handler returned")
	}
	return len(p), nil
}

func (w *raceWriter) close() {
	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()
}

func TestChatStreamKeepAliveStopsWithHandler(t *testing.T) {
	srv, _ := newTestServer(t, chat.Message{Role: chat.RoleAssistant, Content: "Hello!"})
	srv.pingEvery = time.Millisecond

	body, err := json.Marshal(ChatRequest{Message: "hi"})
	if err != nil {
		t.Fatal(err)
	}
	w := &raceWriter{t: t, header: http.Header{}}
	srv.handleChatStream(w, httptest.NewRequest(http.MethodPost, "/api/chat/stream", bytes.NewReader(body)))

	w.close()
	time.Sleep(20 * time.Millisecond)
}
