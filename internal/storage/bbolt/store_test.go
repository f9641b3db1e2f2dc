package bbolt

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/selune/engine/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "engine.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func testSession(id string) storage.Session {
	return storage.Session{
		ID:              id,
		WorldID:         "moonfall",
		ActiveCompanion: "Elara",
		CreatedAt:       time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("empty path accepted")
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	if err := store.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	got, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.WorldID != "moonfall" {
		t.Fatalf("session = %+v", got)
	}

	if _, err := store.GetSession(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("GetSession missing err = %v, want ErrNotFound", err)
	}

	later := testSession("s2")
	later.CreatedAt = later.CreatedAt.Add(time.Hour)
	later.UpdatedAt = later.CreatedAt
	if err := store.CreateSession(ctx, later); err != nil {
		t.Fatalf("CreateSession s2: %v", err)
	}

	sessions, err := store.ListSessions(ctx)
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if len(sessions) != 2 || sessions[0].ID != "s2" {
		t.Fatalf("sessions = %+v, want s2 first", sessions)
	}

	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestCommitTurnRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	snapshot := storage.TurnSnapshot{
		Session: storage.Session{ID: "s1", ActiveCompanion: "Mira", Turn: 2, State: `{"turn":2}`},
		Messages: []storage.Message{
			{Role: "user", Content: "hello", Turn: 2},
			{Role: "assistant", Content: "hi", Turn: 2, Tags: []string{"smile"}},
		},
		Facts:         []storage.Fact{{ID: "f1", Kind: "fact", Content: "a fact", Turn: 2, Importance: 6}},
		Quests:        []storage.Quest{{QuestID: "fix_reactor", Status: "active", StageID: "start"}},
		Personalities: []storage.Personality{{Companion: "Mira", State: "{}"}},
		Events:        []storage.Event{{Turn: 2, Kind: "turn_processed"}},
	}
	if err := store.CommitTurn(ctx, snapshot); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	session, err := store.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if session.Turn != 2 || session.ActiveCompanion != "Mira" {
		t.Fatalf("session = %+v", session)
	}
	if session.CreatedAt.IsZero() {
		t.Fatal("created_at lost on turn commit")
	}

	messages, err := store.ListMessages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(messages) != 2 || messages[0].Content != "hello" {
		t.Fatalf("messages = %+v", messages)
	}

	facts, err := store.ListFacts(ctx, "s1")
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) != 1 || facts[0].Importance != 6 {
		t.Fatalf("facts = %+v", facts)
	}

	quests, err := store.ListQuests(ctx, "s1")
	if err != nil {
		t.Fatalf("ListQuests: %v", err)
	}
	if len(quests) != 1 || quests[0].QuestID != "fix_reactor" {
		t.Fatalf("quests = %+v", quests)
	}

	personalities, err := store.ListPersonalities(ctx, "s1")
	if err != nil {
		t.Fatalf("ListPersonalities: %v", err)
	}
	if len(personalities) != 1 || personalities[0].Companion != "Mira" {
		t.Fatalf("personalities = %+v", personalities)
	}

	events, err := store.ListEvents(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("events = %+v", events)
	}
}

func TestCommitTurnUnknownSession(t *testing.T) {
	store := openTestStore(t)
	err := store.CommitTurn(context.Background(), storage.TurnSnapshot{
		Session: storage.Session{ID: "ghost"},
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestCommitTurnPrunesMessages(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	var msgs []storage.Message
	for i := 1; i <= 6; i++ {
		msgs = append(msgs, storage.Message{Role: "user", Content: fmt.Sprintf("m%d", i), Turn: i})
	}
	snapshot := storage.TurnSnapshot{
		Session:      storage.Session{ID: "s1", Turn: 6},
		Messages:     msgs,
		KeepMessages: 2,
	}
	if err := store.CommitTurn(ctx, snapshot); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	kept, err := store.ListMessages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(kept) != 2 || kept[0].Content != "m5" || kept[1].Content != "m6" {
		t.Fatalf("kept = %+v", kept)
	}
}

func TestListMessagesLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	snapshot := storage.TurnSnapshot{
		Session: storage.Session{ID: "s1", Turn: 1},
		Messages: []storage.Message{
			{Role: "user", Content: "one", Turn: 1},
			{Role: "assistant", Content: "two", Turn: 1},
			{Role: "user", Content: "three", Turn: 1},
		},
	}
	if err := store.CommitTurn(ctx, snapshot); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}

	got, err := store.ListMessages(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(got) != 2 || got[0].Content != "two" || got[1].Content != "three" {
		t.Fatalf("limited = %+v", got)
	}
}

func TestEventsNewestFirst(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		err := store.AppendEvent(ctx, storage.Event{SessionID: "s1", Turn: i, Kind: "turn_processed"})
		if err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	events, err := store.ListEvents(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 2 || events[0].Turn != 3 || events[1].Turn != 2 {
		t.Fatalf("events = %+v", events)
	}
}

func TestDeleteSessionClearsChildren(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	if err := store.CreateSession(ctx, testSession("s1")); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	snapshot := storage.TurnSnapshot{
		Session:  storage.Session{ID: "s1", Turn: 1},
		Messages: []storage.Message{{Role: "user", Content: "hello", Turn: 1}},
	}
	if err := store.CommitTurn(ctx, snapshot); err != nil {
		t.Fatalf("CommitTurn: %v", err)
	}
	if err := store.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}

	messages, err := store.ListMessages(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("ListMessages after delete: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("messages after delete = %+v", messages)
	}
}
