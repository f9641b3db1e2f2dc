// Package sqlite provides a SQLite-backed engine storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/selune/engine/internal/platform/storage/sqlitemigrate"
	"github.com/selune/engine/internal/storage"
	"github.com/selune/engine/internal/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store persists engine state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

func encodeTags(tags []string) (string, error) {
	if len(tags) == 0 {
		return "[]", nil
	}
	encoded, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("marshal tags: %w", err)
	}
	return string(encoded), nil
}

func decodeTags(value string) ([]string, error) {
	value = strings.TrimSpace(value)
	if value == "" || value == "[]" {
		return nil, nil
	}
	var tags []string
	if err := json.Unmarshal([]byte(value), &tags); err != nil {
		return nil, fmt.Errorf("unmarshal tags: %w", err)
	}
	return tags, nil
}

// Open opens a SQLite engine store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// CreateSession inserts one session record.
func (s *Store) CreateSession(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(session.WorldID) == "" {
		return fmt.Errorf("world id is required")
	}
	createdAt := session.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := session.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (
		   id, world_id, active_companion, turn, state, director, created_at, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		session.WorldID,
		session.ActiveCompanion,
		session.Turn,
		session.State,
		session.Director,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession fetches a session record by ID.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	if s == nil || s.sqlDB == nil {
		return storage.Session{}, fmt.Errorf("storage is not configured")
	}

	row := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, world_id, active_companion, turn, state, director, created_at, updated_at
		 FROM sessions WHERE id = ?`,
		strings.TrimSpace(id),
	)
	return scanSession(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (storage.Session, error) {
	var session storage.Session
	var createdAt, updatedAt int64
	err := row.Scan(
		&session.ID,
		&session.WorldID,
		&session.ActiveCompanion,
		&session.Turn,
		&session.State,
		&session.Director,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Session{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.Session{}, fmt.Errorf("scan session: %w", err)
	}
	session.CreatedAt = fromMillis(createdAt)
	session.UpdatedAt = fromMillis(updatedAt)
	return session, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, world_id, active_companion, turn, state, director, created_at, updated_at
		 FROM sessions ORDER BY updated_at DESC, id ASC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []storage.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a session and all dependent records.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	result, err := s.sqlDB.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete session rows: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}
	// Events reference sessions loosely, clear them too.
	if _, err := s.sqlDB.ExecContext(ctx, `DELETE FROM events WHERE session_id = ?`, strings.TrimSpace(id)); err != nil {
		return fmt.Errorf("delete session events: %w", err)
	}
	return nil
}

// CommitTurn persists one processed turn in a single transaction.
func (s *Store) CommitTurn(ctx context.Context, snapshot storage.TurnSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	sessionID := strings.TrimSpace(snapshot.Session.ID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin turn tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	updatedAt := snapshot.Session.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = now
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE sessions
		 SET active_companion = ?, turn = ?, state = ?, director = ?, updated_at = ?
		 WHERE id = ?`,
		snapshot.Session.ActiveCompanion,
		snapshot.Session.Turn,
		snapshot.Session.State,
		snapshot.Session.Director,
		toMillis(updatedAt),
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if affected, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("update session rows: %w", err)
	} else if affected == 0 {
		return storage.ErrNotFound
	}

	for _, msg := range snapshot.Messages {
		tags, err := encodeTags(msg.Tags)
		if err != nil {
			return err
		}
		createdAt := msg.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO messages (session_id, role, content, turn, visual, tags, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sessionID, msg.Role, msg.Content, msg.Turn, msg.Visual, tags, toMillis(createdAt),
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}

	for _, fact := range snapshot.Facts {
		createdAt := fact.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO facts (id, session_id, kind, content, turn, importance, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			fact.ID, sessionID, fact.Kind, fact.Content, fact.Turn, fact.Importance, toMillis(createdAt),
		); err != nil {
			return fmt.Errorf("insert fact: %w", err)
		}
	}

	for _, quest := range snapshot.Quests {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO quests (session_id, quest_id, status, stage_id, started_turn, completed_turn)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT (session_id, quest_id) DO UPDATE SET
			   status = excluded.status,
			   stage_id = excluded.stage_id,
			   started_turn = excluded.started_turn,
			   completed_turn = excluded.completed_turn`,
			sessionID, quest.QuestID, quest.Status, quest.StageID, quest.StartedTurn, quest.CompletedTurn,
		); err != nil {
			return fmt.Errorf("upsert quest: %w", err)
		}
	}

	for _, personality := range snapshot.Personalities {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO personalities (session_id, companion, state)
			 VALUES (?, ?, ?)
			 ON CONFLICT (session_id, companion) DO UPDATE SET state = excluded.state`,
			sessionID, personality.Companion, personality.State,
		); err != nil {
			return fmt.Errorf("upsert personality: %w", err)
		}
	}

	for _, event := range snapshot.Events {
		createdAt := event.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO events (session_id, turn, kind, payload, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			sessionID, event.Turn, event.Kind, event.Payload, toMillis(createdAt),
		); err != nil {
			return fmt.Errorf("insert event: %w", err)
		}
	}

	if snapshot.KeepMessages > 0 {
		if _, err := tx.ExecContext(
			ctx,
			`DELETE FROM messages
			 WHERE session_id = ?
			   AND id NOT IN (
			     SELECT id FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
			   )`,
			sessionID, sessionID, snapshot.KeepMessages,
		); err != nil {
			return fmt.Errorf("prune messages: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit turn tx: %w", err)
	}
	return nil
}

// ListMessages returns the newest messages for a session in
// chronological order. limit <= 0 returns all.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT role, content, turn, visual, tags, created_at FROM (
		   SELECT id, role, content, turn, visual, tags, created_at
		   FROM messages WHERE session_id = ? ORDER BY id DESC LIMIT ?
		 ) ORDER BY id ASC`,
		strings.TrimSpace(sessionID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var messages []storage.Message
	for rows.Next() {
		msg := storage.Message{SessionID: sessionID}
		var tags string
		var createdAt int64
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.Turn, &msg.Visual, &tags, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if msg.Tags, err = decodeTags(tags); err != nil {
			return nil, err
		}
		msg.CreatedAt = fromMillis(createdAt)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// ListFacts returns all memory entries for a session, oldest first.
func (s *Store) ListFacts(ctx context.Context, sessionID string) ([]storage.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, kind, content, turn, importance, created_at
		 FROM facts WHERE session_id = ? ORDER BY created_at ASC, id ASC`,
		strings.TrimSpace(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("query facts: %w", err)
	}
	defer rows.Close()

	var facts []storage.Fact
	for rows.Next() {
		fact := storage.Fact{SessionID: sessionID}
		var createdAt int64
		if err := rows.Scan(&fact.ID, &fact.Kind, &fact.Content, &fact.Turn, &fact.Importance, &createdAt); err != nil {
			return nil, fmt.Errorf("scan fact: %w", err)
		}
		fact.CreatedAt = fromMillis(createdAt)
		facts = append(facts, fact)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate facts: %w", err)
	}
	return facts, nil
}

// ListQuests returns quest progress for a session.
func (s *Store) ListQuests(ctx context.Context, sessionID string) ([]storage.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT quest_id, status, stage_id, started_turn, completed_turn
		 FROM quests WHERE session_id = ? ORDER BY quest_id ASC`,
		strings.TrimSpace(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("query quests: %w", err)
	}
	defer rows.Close()

	var quests []storage.Quest
	for rows.Next() {
		quest := storage.Quest{SessionID: sessionID}
		if err := rows.Scan(&quest.QuestID, &quest.Status, &quest.StageID, &quest.StartedTurn, &quest.CompletedTurn); err != nil {
			return nil, fmt.Errorf("scan quest: %w", err)
		}
		quests = append(quests, quest)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quests: %w", err)
	}
	return quests, nil
}

// ListPersonalities returns serialized personality state per companion.
func (s *Store) ListPersonalities(ctx context.Context, sessionID string) ([]storage.Personality, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT companion, state FROM personalities
		 WHERE session_id = ? ORDER BY companion ASC`,
		strings.TrimSpace(sessionID),
	)
	if err != nil {
		return nil, fmt.Errorf("query personalities: %w", err)
	}
	defer rows.Close()

	var personalities []storage.Personality
	for rows.Next() {
		personality := storage.Personality{SessionID: sessionID}
		if err := rows.Scan(&personality.Companion, &personality.State); err != nil {
			return nil, fmt.Errorf("scan personality: %w", err)
		}
		personalities = append(personalities, personality)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate personalities: %w", err)
	}
	return personalities, nil
}

// AppendEvent inserts one telemetry event outside a turn transaction.
func (s *Store) AppendEvent(ctx context.Context, event storage.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	createdAt := event.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO events (session_id, turn, kind, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		strings.TrimSpace(event.SessionID), event.Turn, event.Kind, event.Payload, toMillis(createdAt),
	)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// ListEvents returns the newest events for a session, newest first.
func (s *Store) ListEvents(ctx context.Context, sessionID string, limit int) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT turn, kind, payload, created_at
		 FROM events WHERE session_id = ? ORDER BY id DESC LIMIT ?`,
		strings.TrimSpace(sessionID), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []storage.Event
	for rows.Next() {
		event := storage.Event{SessionID: sessionID}
		var createdAt int64
		if err := rows.Scan(&event.Turn, &event.Kind, &event.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		event.CreatedAt = fromMillis(createdAt)
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
