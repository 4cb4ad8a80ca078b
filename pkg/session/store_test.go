package session

import (
	"context"
	"testing"
	"time"

	"github.com/parlo-ai/parlo/pkg/chat"
)

func TestGetOrCreate(t *testing.T) {
	store := NewStore(0)

	a := store.GetOrCreate("sess-1", "ada")
	b := store.GetOrCreate("sess-1", "ada")
	if a != b {
		t.Error("same id returned distinct sessions")
	}
	if a.UserID != "ada" {
		t.Errorf("UserID = %q", a.UserID)
	}

	anon := store.GetOrCreate("", "")
	if anon.ID == "" {
		t.Error("empty id did not get a generated one")
	}
	if store.Len() != 2 {
		t.Errorf("Len = %d, want 2", store.Len())
	}
}

func TestReset(t *testing.T) {
	store := NewStore(0)
	sess := store.GetOrCreate("sess-1", "")
	sess.Append(chat.Message{Role: chat.RoleUser, Content: "hi"})

	if !store.Reset("sess-1") {
		t.Error("Reset of existing session reported false")
	}
	if store.Reset("sess-1") {
		t.Error("Reset of absent session reported true")
	}
	if got := store.GetOrCreate("sess-1", "").History(); len(got) != 0 {
		t.Errorf("history survived reset: %+v", got)
	}
}

func TestAppendTrims(t *testing.T) {
	store := NewStore(4)
	sess := store.GetOrCreate("sess-1", "")
	for i := 0; i < 6; i++ {
		sess.Append(chat.Message{Role: chat.RoleUser, Content: "m"})
	}
	if got := len(sess.History()); got != 4 {
		t.Errorf("history length = %d, want 4", got)
	}
}

func TestTrimNeverStrandsToolMessage(t *testing.T) {
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "turn 1"},
		{Role: chat.RoleAssistant, ToolCalls: []chat.ToolCallRequest{{ID: "call_1", Name: "get_weather"}}},
		{Role: chat.RoleTool, ToolCallID: "call_1", Content: `{"status":"success"}`},
		{Role: chat.RoleTool, ToolCallID: "call_2", Content: `{"status":"success"}`},
		{Role: chat.RoleAssistant, Content: "Sunny."},
		{Role: chat.RoleUser, Content: "turn 2"},
	}

	// A cap of 4 lands the cut inside the round's tool results; the cut
	// must advance past them instead of stranding one in front.
	got := trimHistory(history, 4)
	if len(got) == 0 || got[0].Role == chat.RoleTool {
		t.Fatalf("trim left a stranded tool message: %+v", got)
	}
	if got[0].Role != chat.RoleAssistant || got[0].Content != "Sunny." {
		t.Errorf("trim cut at %+v, want the post-round assistant message", got[0])
	}
	if got[len(got)-1].Content != "turn 2" {
		t.Errorf("newest message lost: %+v", got[len(got)-1])
	}

	// A cap of 5 cuts at the assistant that owns the calls: that keeps
	// the whole round, so nothing advances.
	got = trimHistory(history, 5)
	if len(got) != 5 || len(got[0].ToolCalls) == 0 {
		t.Errorf("cut at the requesting assistant changed the round: %+v", got)
	}
}

func TestTrimUnderCapUntouched(t *testing.T) {
	history := []chat.Message{
		{Role: chat.RoleUser, Content: "hi"},
		{Role: chat.RoleAssistant, Content: "Hello!"},
	}
	if got := trimHistory(history, 10); len(got) != 2 {
		t.Errorf("trim under cap changed history: %+v", got)
	}
}

func TestBeginTurnSerializes(t *testing.T) {
	sess := NewStore(0).GetOrCreate("sess-1", "")
	if err := sess.BeginTurn(context.Background()); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := sess.BeginTurn(ctx); err == nil {
		t.Fatal("second concurrent turn acquired the session")
	}

	sess.EndTurn()
	if err := sess.BeginTurn(context.Background()); err != nil {
		t.Fatalf("turn slot not released: %v", err)
	}
	sess.EndTurn()
}
