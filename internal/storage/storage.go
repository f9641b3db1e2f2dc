package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New("record not found")

// Session stores one play session. State and Director hold the
// engine's serialized world state and beat progress as JSON.
type Session struct {
	ID              string
	WorldID         string
	ActiveCompanion string
	Turn            int
	State           string
	Director        string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Message stores one line of conversation history.
type Message struct {
	SessionID string
	Role      string
	Content   string
	Turn      int
	Visual    string
	Tags      []string
	CreatedAt time.Time
}

// Fact stores one long-term memory entry. Kind is "fact" or "summary".
type Fact struct {
	ID         string
	SessionID  string
	Kind       string
	Content    string
	Turn       int
	Importance int
	CreatedAt  time.Time
}

// Quest stores the progress of one quest instance.
type Quest struct {
	SessionID     string
	QuestID       string
	Status        string
	StageID       string
	StartedTurn   int
	CompletedTurn int
}

// Personality stores one companion's serialized personality state as
// JSON.
type Personality struct {
	SessionID string
	Companion string
	State     string
}

// Event stores one telemetry event.
type Event struct {
	SessionID string
	Turn      int
	Kind      string
	Payload   string
	CreatedAt time.Time
}

// TurnSnapshot carries everything one processed turn changed, so a
// whole turn persists atomically.
type TurnSnapshot struct {
	Session       Session
	Messages      []Message
	Facts         []Fact
	Quests        []Quest
	Personalities []Personality
	Events        []Event
	// KeepMessages > 0 prunes the session's stored history down to
	// the newest N messages after the insert.
	KeepMessages int
}

// SessionStore persists session records.
type SessionStore interface {
	CreateSession(ctx context.Context, session Session) error
	GetSession(ctx context.Context, id string) (Session, error)
	ListSessions(ctx context.Context) ([]Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// TurnStore persists per-turn mutations and loads them back on resume.
type TurnStore interface {
	CommitTurn(ctx context.Context, snapshot TurnSnapshot) error
	ListMessages(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListFacts(ctx context.Context, sessionID string) ([]Fact, error)
	ListQuests(ctx context.Context, sessionID string) ([]Quest, error)
	ListPersonalities(ctx context.Context, sessionID string) ([]Personality, error)
}

// TelemetryStore persists engine telemetry events.
type TelemetryStore interface {
	AppendEvent(ctx context.Context, event Event) error
	ListEvents(ctx context.Context, sessionID string, limit int) ([]Event, error)
}

// Store is the full persistence surface the engine needs.
type Store interface {
	SessionStore
	TurnStore
	TelemetryStore
	Close() error
}
