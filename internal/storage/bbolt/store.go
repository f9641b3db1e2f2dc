// Package bbolt provides a BoltDB-backed engine storage
// implementation, used for single-file installs where SQLite is not
// wanted.
package bbolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/selune/engine/internal/storage"
	"go.etcd.io/bbolt"
)

const (
	sessionBucket     = "session"
	messageBucket     = "message"
	factBucket        = "fact"
	questBucket       = "quest"
	personalityBucket = "personality"
	eventBucket       = "event"
)

var buckets = []string{
	sessionBucket,
	messageBucket,
	factBucket,
	questBucket,
	personalityBucket,
	eventBucket,
}

// Store provides a BoltDB-backed engine store.
type Store struct {
	db *bbolt.DB
}

// Open opens a BoltDB-backed store at the provided path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	db, err := bbolt.Open(cleanPath, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open storage db: %w", err)
	}

	store := &Store{db: db}
	if err := store.ensureBuckets(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying BoltDB database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) ensureBuckets() error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range buckets {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return fmt.Errorf("create %s bucket: %w", name, err)
			}
		}
		return nil
	})
}

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return fmt.Errorf("storage is not configured")
	}
	return nil
}

// sessionBucketOf returns the per-session child bucket under parent,
// creating it when create is set.
func sessionBucketOf(tx *bbolt.Tx, parent, sessionID string, create bool) (*bbolt.Bucket, error) {
	root := tx.Bucket([]byte(parent))
	if root == nil {
		return nil, fmt.Errorf("%s bucket is missing", parent)
	}
	key := []byte(sessionID)
	if create {
		child, err := root.CreateBucketIfNotExists(key)
		if err != nil {
			return nil, fmt.Errorf("create %s/%s bucket: %w", parent, sessionID, err)
		}
		return child, nil
	}
	return root.Bucket(key), nil
}

func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}

// CreateSession persists a new session record.
func (s *Store) CreateSession(ctx context.Context, session storage.Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return fmt.Errorf("session id is required")
	}
	if strings.TrimSpace(session.WorldID) == "" {
		return fmt.Errorf("world id is required")
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.UpdatedAt.IsZero() {
		session.UpdatedAt = session.CreatedAt
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		return bucket.Put([]byte(id), payload)
	})
}

// GetSession fetches a session record by ID.
func (s *Store) GetSession(ctx context.Context, id string) (storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return storage.Session{}, err
	}
	if err := s.ready(); err != nil {
		return storage.Session{}, err
	}
	if strings.TrimSpace(id) == "" {
		return storage.Session{}, fmt.Errorf("session id is required")
	}

	var session storage.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		payload := bucket.Get([]byte(strings.TrimSpace(id)))
		if payload == nil {
			return storage.ErrNotFound
		}
		if err := json.Unmarshal(payload, &session); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		return nil
	})
	if err != nil {
		return storage.Session{}, err
	}
	return session, nil
}

// ListSessions returns all sessions, most recently updated first.
func (s *Store) ListSessions(ctx context.Context) ([]storage.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var sessions []storage.Session
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var session storage.Session
			if err := json.Unmarshal(payload, &session); err != nil {
				return fmt.Errorf("unmarshal session: %w", err)
			}
			sessions = append(sessions, session)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].UpdatedAt.After(sessions[j].UpdatedAt)
	})
	return sessions, nil
}

// DeleteSession removes a session and all dependent records.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	key := []byte(strings.TrimSpace(id))

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(sessionBucket))
		if bucket == nil {
			return fmt.Errorf("session bucket is missing")
		}
		if bucket.Get(key) == nil {
			return storage.ErrNotFound
		}
		if err := bucket.Delete(key); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		for _, parent := range []string{messageBucket, factBucket, questBucket, personalityBucket, eventBucket} {
			root := tx.Bucket([]byte(parent))
			if root == nil || root.Bucket(key) == nil {
				continue
			}
			if err := root.DeleteBucket(key); err != nil {
				return fmt.Errorf("delete %s/%s bucket: %w", parent, id, err)
			}
		}
		return nil
	})
}

// CommitTurn persists one processed turn in a single update.
func (s *Store) CommitTurn(ctx context.Context, snapshot storage.TurnSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	sessionID := strings.TrimSpace(snapshot.Session.ID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}

	now := time.Now().UTC()
	return s.db.Update(func(tx *bbolt.Tx) error {
		sessions := tx.Bucket([]byte(sessionBucket))
		if sessions == nil {
			return fmt.Errorf("session bucket is missing")
		}
		existing := sessions.Get([]byte(sessionID))
		if existing == nil {
			return storage.ErrNotFound
		}
		var session storage.Session
		if err := json.Unmarshal(existing, &session); err != nil {
			return fmt.Errorf("unmarshal session: %w", err)
		}
		session.ActiveCompanion = snapshot.Session.ActiveCompanion
		session.Turn = snapshot.Session.Turn
		session.State = snapshot.Session.State
		session.Director = snapshot.Session.Director
		session.UpdatedAt = snapshot.Session.UpdatedAt
		if session.UpdatedAt.IsZero() {
			session.UpdatedAt = now
		}
		payload, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("marshal session: %w", err)
		}
		if err := sessions.Put([]byte(sessionID), payload); err != nil {
			return fmt.Errorf("put session: %w", err)
		}

		messages, err := sessionBucketOf(tx, messageBucket, sessionID, true)
		if err != nil {
			return err
		}
		for _, msg := range snapshot.Messages {
			msg.SessionID = sessionID
			if msg.CreatedAt.IsZero() {
				msg.CreatedAt = now
			}
			seq, err := messages.NextSequence()
			if err != nil {
				return fmt.Errorf("message sequence: %w", err)
			}
			encoded, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("marshal message: %w", err)
			}
			if err := messages.Put(seqKey(seq), encoded); err != nil {
				return fmt.Errorf("put message: %w", err)
			}
		}

		facts, err := sessionBucketOf(tx, factBucket, sessionID, true)
		if err != nil {
			return err
		}
		for _, fact := range snapshot.Facts {
			fact.SessionID = sessionID
			if fact.CreatedAt.IsZero() {
				fact.CreatedAt = now
			}
			seq, err := facts.NextSequence()
			if err != nil {
				return fmt.Errorf("fact sequence: %w", err)
			}
			encoded, err := json.Marshal(fact)
			if err != nil {
				return fmt.Errorf("marshal fact: %w", err)
			}
			if err := facts.Put(seqKey(seq), encoded); err != nil {
				return fmt.Errorf("put fact: %w", err)
			}
		}

		quests, err := sessionBucketOf(tx, questBucket, sessionID, true)
		if err != nil {
			return err
		}
		for _, quest := range snapshot.Quests {
			quest.SessionID = sessionID
			encoded, err := json.Marshal(quest)
			if err != nil {
				return fmt.Errorf("marshal quest: %w", err)
			}
			if err := quests.Put([]byte(quest.QuestID), encoded); err != nil {
				return fmt.Errorf("put quest: %w", err)
			}
		}

		personalities, err := sessionBucketOf(tx, personalityBucket, sessionID, true)
		if err != nil {
			return err
		}
		for _, personality := range snapshot.Personalities {
			personality.SessionID = sessionID
			encoded, err := json.Marshal(personality)
			if err != nil {
				return fmt.Errorf("marshal personality: %w", err)
			}
			if err := personalities.Put([]byte(personality.Companion), encoded); err != nil {
				return fmt.Errorf("put personality: %w", err)
			}
		}

		events, err := sessionBucketOf(tx, eventBucket, sessionID, true)
		if err != nil {
			return err
		}
		for _, event := range snapshot.Events {
			event.SessionID = sessionID
			if event.CreatedAt.IsZero() {
				event.CreatedAt = now
			}
			seq, err := events.NextSequence()
			if err != nil {
				return fmt.Errorf("event sequence: %w", err)
			}
			encoded, err := json.Marshal(event)
			if err != nil {
				return fmt.Errorf("marshal event: %w", err)
			}
			if err := events.Put(seqKey(seq), encoded); err != nil {
				return fmt.Errorf("put event: %w", err)
			}
		}

		if snapshot.KeepMessages > 0 {
			if err := pruneOldest(messages, snapshot.KeepMessages); err != nil {
				return err
			}
		}
		return nil
	})
}

// pruneOldest deletes all but the newest keep entries from a
// sequence-keyed bucket.
func pruneOldest(bucket *bbolt.Bucket, keep int) error {
	var keys [][]byte
	cursor := bucket.Cursor()
	for key, _ := cursor.First(); key != nil; key, _ = cursor.Next() {
		keys = append(keys, append([]byte(nil), key...))
	}
	excess := len(keys) - keep
	for i := 0; i < excess; i++ {
		if err := bucket.Delete(keys[i]); err != nil {
			return fmt.Errorf("prune entry: %w", err)
		}
	}
	return nil
}

// ListMessages returns the newest messages for a session in
// chronological order. limit <= 0 returns all.
func (s *Store) ListMessages(ctx context.Context, sessionID string, limit int) ([]storage.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var messages []storage.Message
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucketOf(tx, messageBucket, strings.TrimSpace(sessionID), false)
		if err != nil || bucket == nil {
			return err
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Last(); key != nil; key, payload = cursor.Prev() {
			var msg storage.Message
			if err := json.Unmarshal(payload, &msg); err != nil {
				return fmt.Errorf("unmarshal message: %w", err)
			}
			messages = append(messages, msg)
			if limit > 0 && len(messages) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// ListFacts returns all memory entries for a session, oldest first.
func (s *Store) ListFacts(ctx context.Context, sessionID string) ([]storage.Fact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var facts []storage.Fact
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucketOf(tx, factBucket, strings.TrimSpace(sessionID), false)
		if err != nil || bucket == nil {
			return err
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var fact storage.Fact
			if err := json.Unmarshal(payload, &fact); err != nil {
				return fmt.Errorf("unmarshal fact: %w", err)
			}
			facts = append(facts, fact)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return facts, nil
}

// ListQuests returns quest progress for a session, keyed order.
func (s *Store) ListQuests(ctx context.Context, sessionID string) ([]storage.Quest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var quests []storage.Quest
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucketOf(tx, questBucket, strings.TrimSpace(sessionID), false)
		if err != nil || bucket == nil {
			return err
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var quest storage.Quest
			if err := json.Unmarshal(payload, &quest); err != nil {
				return fmt.Errorf("unmarshal quest: %w", err)
			}
			quests = append(quests, quest)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return quests, nil
}

// ListPersonalities returns serialized personality state per companion.
func (s *Store) ListPersonalities(ctx context.Context, sessionID string) ([]storage.Personality, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var personalities []storage.Personality
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucketOf(tx, personalityBucket, strings.TrimSpace(sessionID), false)
		if err != nil || bucket == nil {
			return err
		}
		return bucket.ForEach(func(_, payload []byte) error {
			var personality storage.Personality
			if err := json.Unmarshal(payload, &personality); err != nil {
				return fmt.Errorf("unmarshal personality: %w", err)
			}
			personalities = append(personalities, personality)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return personalities, nil
}

// AppendEvent inserts one telemetry event outside a turn update.
func (s *Store) AppendEvent(ctx context.Context, event storage.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.ready(); err != nil {
		return err
	}
	sessionID := strings.TrimSpace(event.SessionID)
	if sessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucketOf(tx, eventBucket, sessionID, true)
		if err != nil {
			return err
		}
		seq, err := bucket.NextSequence()
		if err != nil {
			return fmt.Errorf("event sequence: %w", err)
		}
		encoded, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		return bucket.Put(seqKey(seq), encoded)
	})
}

// ListEvents returns the newest events for a session, newest first.
func (s *Store) ListEvents(ctx context.Context, sessionID string, limit int) ([]storage.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	var events []storage.Event
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket, err := sessionBucketOf(tx, eventBucket, strings.TrimSpace(sessionID), false)
		if err != nil || bucket == nil {
			return err
		}
		cursor := bucket.Cursor()
		for key, payload := cursor.Last(); key != nil; key, payload = cursor.Prev() {
			var event storage.Event
			if err := json.Unmarshal(payload, &event); err != nil {
				return fmt.Errorf("unmarshal event: %w", err)
			}
			events = append(events, event)
			if limit > 0 && len(events) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}
