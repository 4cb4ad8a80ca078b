// Package server exposes the voice-assistant backend over HTTP: a
// buffered chat endpoint, a Server-Sent-Events streaming endpoint, a
// websocket variant, audio transcription, and session management.
package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/parlo-ai/parlo/pkg/chat"
	"github.com/parlo-ai/parlo/pkg/session"
	"github.com/parlo-ai/parlo/pkg/speech"
)

// keepAliveInterval is how long an SSE connection may stay quiet before
// a comment ping goes out.
const keepAliveInterval = 10 * time.Second

var errMissingMessage = errors.New("message is required")

// Server wires the orchestrator's collaborators to the HTTP surface.
type Server struct {
	Store   *session.Store
	Catalog *chat.Catalog
	Builder *chat.ConversationBuilder
	Loop    *chat.Loop

	// Synth and Format configure speech output; nil Synth disables audio.
	Synth  speech.Synthesizer
	Format string

	// SynthFor overrides Synth for a request naming a voice.
	SynthFor func(voice string) speech.Synthesizer

	// Transcriber is optional; without it /api/transcribe returns 501.
	Transcriber speech.Transcriber

	Normalize speech.NormalizeOptions

	// pingEvery overrides the keep-alive interval; zero means the default.
	pingEvery time.Duration
}

// Router builds the HTTP route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/chat", s.handleChat).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/stream", s.handleChatStream).Methods(http.MethodPost)
	r.HandleFunc("/api/chat/ws", s.handleChatWS).Methods(http.MethodGet)
	r.HandleFunc("/api/transcribe", s.handleTranscribe).Methods(http.MethodPost)
	r.HandleFunc("/api/sessions/{id}/reset", s.handleReset).Methods(http.MethodPost)
	return r
}

// ChatRequest is the transport request of both chat surfaces. Absent
// allowed_tool_names/allowed_tool_tags mean "unrestricted"; explicit
// empty lists restrict to nothing.
type ChatRequest struct {
	SessionID         string   `json:"session_id"`
	Message           string   `json:"message"`
	UserID            string   `json:"user_id,omitempty"`
	AllowedToolNames  []string `json:"allowed_tool_names,omitempty"`
	AllowedToolTags   []string `json:"allowed_tool_tags,omitempty"`
	Timezone          string   `json:"timezone,omitempty"`
	Voice             string   `json:"voice,omitempty"`
	GoogleAccessToken string   `json:"google_access_token,omitempty"`
}

// ChatResponse is the buffered surface's reply.
type ChatResponse struct {
	SessionID   string                `json:"session_id"`
	Text        string                `json:"text"`
	ToolCalls   []chat.ToolCallResult `json:"tool_calls"`
	Audio       string                `json:"audio,omitempty"`
	AudioFormat string                `json:"audio_format,omitempty"`
	Capped      bool                  `json:"capped,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, errorResponse{Error: msg})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": s.Store.Len(),
	})
}

// turn is the per-request state shared by the chat handlers.
type turn struct {
	sess    *session.Session
	conv    []chat.Message
	enabled []chat.ToolDescriptor
	userMsg chat.Message
}

// prepareTurn validates the request, acquires the session's turn slot,
// lists and filters the catalog, and builds the conversation. The caller
// must call sess.EndTurn when done.
func (s *Server) prepareTurn(ctx context.Context, req *ChatRequest) (*turn, int, error) {
	if req.Message == "" {
		return nil, http.StatusBadRequest, errMissingMessage
	}
	sess := s.Store.GetOrCreate(req.SessionID, req.UserID)
	if err := sess.BeginTurn(ctx); err != nil {
		return nil, http.StatusRequestTimeout, err
	}

	all, err := s.Catalog.ListTools(ctx)
	if err != nil {
		sess.EndTurn()
		return nil, http.StatusBadGateway, err
	}
	enabled := chat.Filter(all, chat.FilterOptions{
		AllowedNames: req.AllowedToolNames,
		AllowedTags:  req.AllowedToolTags,
	})

	conv := s.Builder.Build(chat.BuildParams{
		Timezone:     req.Timezone,
		AllTools:     all,
		EnabledTools: enabled,
		History:      sess.History(),
		UserMessage:  req.Message,
	})
	return &turn{
		sess:    sess,
		conv:    conv,
		enabled: enabled,
		userMsg: chat.Message{Role: chat.RoleUser, Content: req.Message},
	}, 0, nil
}

// turnContext attaches the per-request ambient values. Never stored on
// the server: two concurrent requests must not see each other's
// credential.
func turnContext(ctx context.Context, req *ChatRequest) context.Context {
	return chat.WithTurnContext(ctx, chat.TurnContext{
		Timezone:    req.Timezone,
		AccessToken: req.GoogleAccessToken,
	})
}

func (s *Server) synthFor(voice string) speech.Synthesizer {
	if voice != "" && s.SynthFor != nil {
		return s.SynthFor(voice)
	}
	return s.Synth
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	ctx := turnContext(r.Context(), &req)

	t, code, err := s.prepareTurn(ctx, &req)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	defer t.sess.EndTurn()

	res, err := s.Loop.Run(ctx, t.conv, t.enabled)
	if err != nil {
		slog.Error("server: buffered turn failed", "session", t.sess.ID, "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	t.sess.Append(t.userMsg)
	t.sess.Append(res.NewMessages...)

	resp := ChatResponse{
		SessionID: t.sess.ID,
		Text:      res.Text,
		ToolCalls: res.ToolCalls,
		Capped:    res.Capped,
	}
	if synth := s.synthFor(req.Voice); synth != nil {
		spoken := speech.Normalize(res.Text, s.Normalize)
		if spoken != "" {
			if audio, err := synth.Synthesize(ctx, spoken); err != nil {
				slog.Warn("server: reply synthesis failed", "session", t.sess.ID, "error", err)
			} else {
				resp.Audio = base64.StdEncoding.EncodeToString(audio)
				resp.AudioFormat = s.Format
			}
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithCancel(turnContext(r.Context(), &req))
	defer cancel()

	t, code, err := s.prepareTurn(ctx, &req)
	if err != nil {
		writeError(w, code, err.Error())
		return
	}
	defer t.sess.EndTurn()

	sw, err := newSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Open comment flushes headers through buffering proxies right away.
	sw.SendComment("stream open")

	// The pinger must be gone before ServeHTTP returns: a late tick would
	// write to a dead ResponseWriter.
	pings := make(chan struct{})
	go func() {
		defer close(pings)
		s.keepAlive(ctx, sw)
	}()
	defer func() {
		cancel()
		<-pings
	}()

	// The user message persists first; each completed round follows. An
	// interrupted round never reaches the session.
	t.sess.Append(t.userMsg)
	es := s.Loop.Stream(ctx, t.conv, t.enabled, func(msgs []chat.Message) {
		t.sess.Append(msgs...)
	})

	pump := &Pump{Synth: s.synthFor(req.Voice), Format: s.Format, Normalize: s.Normalize}
	if err := pump.Run(ctx, es, sw); err != nil {
		slog.Info("server: stream ended early", "session", t.sess.ID, "error", err)
	}
}

func (s *Server) keepAlive(ctx context.Context, sw *sseWriter) {
	every := s.pingEvery
	if every <= 0 {
		every = keepAliveInterval
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Sub(sw.idleSince()) < every {
				continue
			}
			if err := sw.SendComment("keep-alive"); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	if s.Transcriber == nil {
		writeError(w, http.StatusNotImplemented, "transcription is not configured")
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing audio file: "+err.Error())
		return
	}
	defer file.Close()

	text, err := s.Transcriber.Transcribe(r.Context(), file, header.Filename)
	if err != nil {
		slog.Error("server: transcription failed", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	existed := s.Store.Reset(id)
	writeJSON(w, http.StatusOK, map[string]any{"session_id": id, "reset": existed})
}
