package storage

import (
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"llamsh/internal/agent"
	"llamsh/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	gdb, err := db.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close(gdb) })
	st, err := NewStore(gdb)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return st
}

func TestStore_SaveLoadRoundTrip(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSession("local-model")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	messages := []agent.Message{
		{Role: "system", Content: "you are a test"},
		{Role: "user", Content: "list files"},
		{Role: "assistant", Content: "Listing now.", ToolCalls: []agent.ToolCall{
			{ID: "call_0", Type: "function", Function: agent.ToolFunction{
				Name:      "list_files",
				Arguments: `{"pattern":"*.go"}`,
			}},
		}},
		{Role: "tool", ToolCallID: "call_0", Content: "main.go"},
		{Role: "assistant", Content: "There is one Go file: main.go"},
	}
	if err := st.SaveMessages(id, messages, 0); err != nil {
		t.Fatalf("save messages: %v", err)
	}

	loaded, err := st.LoadSession(id)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if !reflect.DeepEqual(messages, loaded) {
		t.Fatalf("round trip mismatch:\nsaved:  %#v\nloaded: %#v", messages, loaded)
	}
}

func TestStore_IncrementalSavePreservesOrder(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSession("m")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	messages := []agent.Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "first"},
		{Role: "assistant", Content: "one"},
	}
	if err := st.SaveMessages(id, messages, 0); err != nil {
		t.Fatalf("save 1: %v", err)
	}
	messages = append(messages,
		agent.Message{Role: "user", Content: "second"},
		agent.Message{Role: "assistant", Content: "two"},
	)
	if err := st.SaveMessages(id, messages, 3); err != nil {
		t.Fatalf("save 2: %v", err)
	}

	loaded, err := st.LoadSession(id)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(messages, loaded) {
		t.Fatalf("incremental round trip mismatch:\nsaved:  %#v\nloaded: %#v", messages, loaded)
	}
}

func TestStore_TitleFromFirstUserMessage(t *testing.T) {
	st := newTestStore(t)
	id, err := st.CreateSession("m")
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	messages := []agent.Message{
		{Role: "system", Content: "s"},
		{Role: "user", Content: "what is a PTY?"},
		{Role: "assistant", Content: "a pseudo-terminal"},
		{Role: "user", Content: "second question"},
	}
	if err := st.SaveMessages(id, messages, 0); err != nil {
		t.Fatalf("save: %v", err)
	}

	sessions, err := st.ListSessions(10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}
	if sessions[0].Title != "what is a PTY?" {
		t.Fatalf("title should come from first user message, got %q", sessions[0].Title)
	}
	if sessions[0].MessageCount != 3 {
		t.Fatalf("system messages must not count, got %d", sessions[0].MessageCount)
	}
}

func TestStore_LatestSessionID(t *testing.T) {
	st := newTestStore(t)
	latest, err := st.LatestSessionID()
	if err != nil {
		t.Fatalf("latest on empty: %v", err)
	}
	if latest != "" {
		t.Fatalf("expected empty id, got %q", latest)
	}

	base := time.Unix(1_700_000_000, 0)
	st.now = func() time.Time { return base }
	first, err := st.CreateSession("m")
	if err != nil {
		t.Fatalf("create 1: %v", err)
	}
	st.now = func() time.Time { return base.Add(time.Hour) }
	second, err := st.CreateSession("m")
	if err != nil {
		t.Fatalf("create 2: %v", err)
	}

	latest, err = st.LatestSessionID()
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest != second {
		t.Fatalf("expected %q as latest, got %q", second, latest)
	}

	// Saving to the older session bumps it to the front.
	st.now = func() time.Time { return base.Add(2 * time.Hour) }
	err = st.SaveMessages(first, []agent.Message{{Role: "user", Content: "hi"}}, 0)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	latest, err = st.LatestSessionID()
	if err != nil {
		t.Fatalf("latest after save: %v", err)
	}
	if latest != first {
		t.Fatalf("expected %q as latest after save, got %q", first, latest)
	}
}
