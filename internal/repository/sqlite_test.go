package store

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/xiaot623/dalia/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}

func TestSQLiteStoreSessionAndMessages(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	session := &domain.Session{
		SessionID: "s1",
		UserID:    "u1",
		CreatedAt: time.Now(),
		Metadata:  json.RawMessage(`{"source":"web"}`),
	}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	gotSession, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if gotSession == nil || gotSession.UserID != "u1" {
		t.Fatalf("unexpected session: %+v", gotSession)
	}
	if string(gotSession.Metadata) != `{"source":"web"}` {
		t.Fatalf("unexpected metadata: %s", gotSession.Metadata)
	}

	msg := &domain.Message{
		MessageID: "m1",
		SessionID: "s1",
		RunID:     "r1",
		Role:      domain.RoleUser,
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	if err := store.CreateMessage(ctx, msg); err != nil {
		t.Fatalf("CreateMessage failed: %v", err)
	}

	messages, err := store.GetMessages(ctx, "s1", 10, "")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(messages))
	}
	if messages[0].Role != domain.RoleUser || messages[0].RunID != "r1" {
		t.Fatalf("unexpected message: %+v", messages[0])
	}
}

func TestSQLiteStoreGetSessionMissing(t *testing.T) {
	store := newTestStore(t)
	defer store.Close()

	got, err := store.GetSession(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil session, got %+v", got)
	}
}

func TestSQLiteStoreGetOrCreateSessionIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	first, err := store.GetOrCreateSession(ctx, "s1", "anonymous")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	second, err := store.GetOrCreateSession(ctx, "s1", "someone-else")
	if err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if first.SessionID != second.SessionID || second.UserID != "anonymous" {
		t.Fatalf("expected existing session, got %+v", second)
	}
}

func TestSQLiteStoreRecentMessagesOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	base := time.Now()
	for i := 0; i < 5; i++ {
		msg := &domain.Message{
			MessageID: fmt.Sprintf("m%d", i),
			SessionID: "s1",
			Role:      domain.RoleUser,
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	recent, err := store.GetRecentMessages(ctx, "s1", 3)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(recent))
	}
	for i, want := range []string{"m2", "m3", "m4"} {
		if recent[i].MessageID != want {
			t.Fatalf("recent[%d] = %s, want %s", i, recent[i].MessageID, want)
		}
	}

	all, err := store.GetRecentMessages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("GetRecentMessages failed: %v", err)
	}
	if len(all) != 5 || all[0].MessageID != "m0" {
		t.Fatalf("unexpected full transcript: %+v", all)
	}

	before, err := store.GetMessages(ctx, "s1", 0, "m2")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(before) != 2 || before[1].MessageID != "m1" {
		t.Fatalf("unexpected messages before m2: %+v", before)
	}
}

func TestSQLiteStoreRunAndEvents(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	session := &domain.Session{SessionID: "s1", UserID: "u1", CreatedAt: time.Now()}
	if err := store.CreateSession(ctx, session); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	run := &domain.Run{
		RunID:     "r1",
		SessionID: "s1",
		AgentID:   "dalia",
		Status:    domain.RunStatusRunning,
		StartedAt: time.Now(),
	}
	if err := store.CreateRun(ctx, run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	if err := store.UpdateRunCompleted(ctx, "r1", domain.RunStatusFailed, []byte(`{"code":"LLM_ERROR"}`)); err != nil {
		t.Fatalf("UpdateRunCompleted failed: %v", err)
	}

	gotRun, err := store.GetRun(ctx, "r1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if gotRun.Status != domain.RunStatusFailed || gotRun.EndedAt == nil {
		t.Fatalf("unexpected run: %+v", gotRun)
	}
	if string(gotRun.Error) != `{"code":"LLM_ERROR"}` {
		t.Fatalf("unexpected run error: %s", gotRun.Error)
	}

	now := time.Now().UnixMilli()
	events := []domain.Event{
		{EventID: "e1", RunID: "r1", Ts: now, Type: domain.EventTypeRunStarted, Payload: json.RawMessage(`{}`)},
		{EventID: "e2", RunID: "r1", Ts: now + 1, Type: domain.EventTypeLLMCallStarted},
		{EventID: "e3", RunID: "r1", Ts: now + 2, Type: domain.EventTypeRunFailed},
	}
	for i := range events {
		if err := store.CreateEvent(ctx, &events[i]); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, "r1", 0, nil, 0)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 3 || got[0].EventID != "e1" {
		t.Fatalf("unexpected events: %+v", got)
	}

	filtered, err := store.GetEvents(ctx, "r1", now, []string{string(domain.EventTypeRunFailed)}, 10)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(filtered) != 1 || filtered[0].EventID != "e3" {
		t.Fatalf("unexpected filtered events: %+v", filtered)
	}
}

func TestSQLiteStoreToolCalls(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if err := store.CreateSession(ctx, &domain.Session{SessionID: "s1", UserID: "u1", CreatedAt: time.Now()}); err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}
	if err := store.CreateRun(ctx, &domain.Run{RunID: "r1", SessionID: "s1", AgentID: "dalia", Status: domain.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	tc := &domain.ToolCall{
		ToolCallID: "tc1",
		RunID:      "r1",
		ToolName:   "alphavantage_get_global_quote",
		Status:     domain.ToolCallStatusRunning,
		Args:       json.RawMessage(`{"symbol":"IBM"}`),
		CreatedAt:  time.Now(),
	}
	if err := store.CreateToolCall(ctx, tc); err != nil {
		t.Fatalf("CreateToolCall failed: %v", err)
	}

	updated, err := store.UpdateToolCallResult(ctx, "tc1", domain.ToolCallStatusSucceeded, []byte(`{"price":"1"}`), nil)
	if err != nil {
		t.Fatalf("UpdateToolCallResult failed: %v", err)
	}
	if !updated {
		t.Fatalf("expected first update to apply")
	}

	updated, err = store.UpdateToolCallResult(ctx, "tc1", domain.ToolCallStatusFailed, nil, []byte(`"late"`))
	if err != nil {
		t.Fatalf("UpdateToolCallResult failed: %v", err)
	}
	if updated {
		t.Fatalf("expected second update to be ignored")
	}

	got, err := store.GetToolCall(ctx, "tc1")
	if err != nil {
		t.Fatalf("GetToolCall failed: %v", err)
	}
	if got.Status != domain.ToolCallStatusSucceeded || got.CompletedAt == nil {
		t.Fatalf("unexpected tool call: %+v", got)
	}
	if string(got.Result) != `{"price":"1"}` {
		t.Fatalf("unexpected result: %s", got.Result)
	}
}

func TestSQLiteStoreEventsSameMillisecondKeepInsertOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	if err := store.CreateRun(ctx, &domain.Run{RunID: "r1", SessionID: "s1", AgentID: "dalia", Status: domain.RunStatusRunning, StartedAt: time.Now()}); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	ts := time.Now().UnixMilli()
	ids := []string{"evt_c", "evt_a", "evt_b"}
	for _, id := range ids {
		if err := store.CreateEvent(ctx, &domain.Event{EventID: id, RunID: "r1", Ts: ts, Type: domain.EventTypeToolResult}); err != nil {
			t.Fatalf("CreateEvent failed: %v", err)
		}
	}

	got, err := store.GetEvents(ctx, "r1", 0, nil, 2)
	if err != nil {
		t.Fatalf("GetEvents failed: %v", err)
	}
	if len(got) != 2 || got[0].EventID != "evt_c" || got[1].EventID != "evt_a" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestSQLiteStoreMessagesBefore(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	defer store.Close()

	if _, err := store.GetOrCreateSession(ctx, "s1", "u1"); err != nil {
		t.Fatalf("GetOrCreateSession failed: %v", err)
	}
	base := time.Now()
	for i := 0; i < 4; i++ {
		msg := &domain.Message{
			MessageID: fmt.Sprintf("m%d", i),
			SessionID: "s1",
			Role:      domain.RoleUser,
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Millisecond),
		}
		if err := store.CreateMessage(ctx, msg); err != nil {
			t.Fatalf("CreateMessage failed: %v", err)
		}
	}

	got, err := store.GetMessages(ctx, "s1", 0, "m2")
	if err != nil {
		t.Fatalf("GetMessages failed: %v", err)
	}
	if len(got) != 2 || got[0].MessageID != "m0" || got[1].MessageID != "m1" {
		t.Fatalf("unexpected messages: %+v", got)
	}
	if got[0].RunID != "" {
		t.Fatalf("expected empty run id, got %q", got[0].RunID)
	}
}
