// Package memory keeps the long-term narrative memory of a play
// session: the rolling conversation history, important facts distilled
// from play, and the retrieval used to surface both back into prompts.
package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/selune/engine/internal/platform/id"
)

const (
	defaultHistoryLimit = 50
	compressBatch       = 10
	summaryImportance   = 3
	topicSampleSize     = 5
	searchFallbackFacts = 20
)

// Message is one turn of conversation history.
type Message struct {
	Role    string
	Content string
	Turn    int
	Visual  string
	Tags    []string
}

// Fact is a durable memory entry. Kind is "fact" for retrievable
// memories and "summary" for compressed history.
type Fact struct {
	ID         string
	Kind       string
	Content    string
	Turn       int
	Importance int
}

// SearchResult pairs a fact with its retrieval score. MatchType names
// the strategy that surfaced it: keyword, semantic, hybrid, or
// importance.
type SearchResult struct {
	Fact      Fact
	Score     float64
	MatchType string
}

// ChangeSet holds everything accumulated since the last Flush, so the
// caller can persist a whole turn in a single transaction.
type ChangeSet struct {
	Messages []Message
	Facts    []Fact
	// PrunedMessages is how many of the oldest stored messages were
	// compressed away and should be deleted.
	PrunedMessages int
}

// Empty reports whether the change set carries nothing to persist.
func (c ChangeSet) Empty() bool {
	return len(c.Messages) == 0 && len(c.Facts) == 0 && c.PrunedMessages == 0
}

// Store holds session memory in process. It is not safe for concurrent
// use; the orchestrator serializes access per session.
type Store struct {
	historyLimit int

	messages  []Message
	facts     []Fact
	summaries []Fact

	index   *VectorIndex
	pending ChangeSet
}

// NewStore returns an empty store. historyLimit <= 0 selects the
// default of 50 messages.
func NewStore(historyLimit int) *Store {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &Store{historyLimit: historyLimit}
}

// EnableSemantic attaches an embedding index. Facts already loaded are
// indexed immediately; indexing failures disable nothing, the store
// just falls back to keyword search for the missing entries.
func (s *Store) EnableSemantic(ctx context.Context, embedder Embedder) {
	s.index = NewVectorIndex(embedder)
	for _, f := range s.facts {
		if err := s.index.Add(ctx, f.ID, f.Content); err != nil {
			log.Printf("memory index seed failed id=%s err=%v", f.ID, err)
		}
	}
}

// SemanticEnabled reports whether an embedding index is attached.
func (s *Store) SemanticEnabled() bool { return s.index != nil }

// LoadMessages replaces the in-process history, keeping at most the
// newest historyLimit entries.
func (s *Store) LoadMessages(msgs []Message) {
	if len(msgs) > s.historyLimit {
		msgs = msgs[len(msgs)-s.historyLimit:]
	}
	s.messages = append([]Message(nil), msgs...)
}

// LoadFacts replaces the in-process fact cache.
func (s *Store) LoadFacts(facts []Fact) {
	s.facts = s.facts[:0]
	s.summaries = s.summaries[:0]
	for _, f := range facts {
		if f.Kind == "summary" {
			s.summaries = append(s.summaries, f)
		} else {
			f.Kind = "fact"
			s.facts = append(s.facts, f)
		}
	}
}

// Append records one conversation message and compresses old history
// once the buffer outgrows its limit.
func (s *Store) Append(role, content string, turn int, visual string, tags []string) {
	msg := Message{Role: role, Content: content, Turn: turn, Visual: visual, Tags: tags}
	s.messages = append(s.messages, msg)
	s.pending.Messages = append(s.pending.Messages, msg)

	if len(s.messages) > s.historyLimit {
		s.compress()
	}
}

// AddFact stores an important fact. Importance is clamped to [1, 10].
func (s *Store) AddFact(ctx context.Context, content string, turn, importance int) Fact {
	if importance < 1 {
		importance = 1
	} else if importance > 10 {
		importance = 10
	}
	fact := Fact{
		ID:         id.NewID(),
		Kind:       "fact",
		Content:    content,
		Turn:       turn,
		Importance: importance,
	}
	s.facts = append(s.facts, fact)
	s.pending.Facts = append(s.pending.Facts, fact)

	if s.index != nil {
		if err := s.index.Add(ctx, fact.ID, fact.Content); err != nil {
			log.Printf("memory index add failed id=%s err=%v", fact.ID, err)
		}
	}
	return fact
}

// Recent returns the newest messages, up to limit (0 means the full
// history buffer).
func (s *Store) Recent(limit int) []Message {
	if limit <= 0 || limit > s.historyLimit {
		limit = s.historyLimit
	}
	if len(s.messages) <= limit {
		return append([]Message(nil), s.messages...)
	}
	return append([]Message(nil), s.messages[len(s.messages)-limit:]...)
}

// ImportantFacts returns up to limit facts with importance at or above
// minImportance, most important first.
func (s *Store) ImportantFacts(minImportance, limit int) []Fact {
	filtered := make([]Fact, 0, len(s.facts))
	for _, f := range s.facts {
		if f.Importance >= minImportance {
			filtered = append(filtered, f)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Importance > filtered[j].Importance
	})
	if len(filtered) > limit {
		filtered = filtered[:limit]
	}
	return filtered
}

// Search retrieves the k facts most relevant to query. Keyword scoring
// always runs; when an embedding index is attached the scores are
// merged, taking max(keyword, semantic*0.9)+0.1 for facts both
// strategies surface. If fewer than k facts match, high-importance
// facts are backfilled with a small importance-derived score.
func (s *Store) Search(ctx context.Context, query string, k, minImportance int) []SearchResult {
	if len(s.facts) == 0 {
		return nil
	}

	queryKeywords := extractKeywords(query)
	scores := make(map[string]SearchResult)

	for _, f := range s.facts {
		if f.Importance < minImportance {
			continue
		}
		sim := keywordSimilarity(query, f.Content)
		overlap := 0
		for w := range extractKeywords(f.Content) {
			if _, ok := queryKeywords[w]; ok {
				overlap++
			}
		}
		sim += float64(overlap) * 0.1
		if sim > 0 {
			scores[f.ID] = SearchResult{Fact: f, Score: sim, MatchType: "keyword"}
		}
	}

	if s.index != nil {
		hits, err := s.index.Search(ctx, query, k*2)
		if err != nil {
			log.Printf("memory semantic search failed err=%v", err)
		}
		for _, hit := range hits {
			fact, ok := s.factByID(hit.ID)
			if !ok || fact.Importance < minImportance {
				continue
			}
			if existing, ok := scores[hit.ID]; ok {
				combined := existing.Score
				if scaled := hit.Score * 0.9; scaled > combined {
					combined = scaled
				}
				scores[hit.ID] = SearchResult{Fact: fact, Score: combined + 0.1, MatchType: "hybrid"}
			} else {
				scores[hit.ID] = SearchResult{Fact: fact, Score: hit.Score, MatchType: "semantic"}
			}
		}
	}

	if len(scores) < k {
		for _, f := range s.facts {
			if _, ok := scores[f.ID]; ok {
				continue
			}
			if f.Importance >= minImportance+3 {
				boost := float64(f.Importance-5) / 100
				scores[f.ID] = SearchResult{Fact: f, Score: boost, MatchType: "importance"}
			}
		}
	}

	results := make([]SearchResult, 0, len(scores))
	for _, r := range scores {
		results = append(results, r)
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Fact.ID < results[j].Fact.ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Context formats the memories most relevant to query as a prompt
// block. Search is used when a query is given and either semantic
// retrieval is enabled or the fact pool is large; otherwise the most
// important facts are listed.
func (s *Store) Context(ctx context.Context, query string, maxFacts, minImportance int) string {
	var picked []Fact
	if query != "" && (s.index != nil || len(s.facts) > searchFallbackFacts) {
		for _, r := range s.Search(ctx, query, maxFacts, minImportance) {
			picked = append(picked, r.Fact)
		}
	} else {
		picked = s.ImportantFacts(minImportance, maxFacts)
	}

	var b strings.Builder
	b.WriteString("=== IMPORTANT MEMORY ===\n")
	if len(picked) == 0 {
		b.WriteString("(No significant memories yet)\n")
	}
	for _, f := range picked {
		prefix := ""
		if f.Importance >= 8 {
			prefix = "[IMPORTANT] "
		}
		fmt.Fprintf(&b, "• %s%s\n", prefix, f.Content)
	}
	b.WriteString("=== END MEMORY ===")
	return b.String()
}

// FactsAbout returns facts whose content mentions name.
func (s *Store) FactsAbout(name string) []Fact {
	lower := strings.ToLower(name)
	var out []Fact
	for _, f := range s.facts {
		if strings.Contains(strings.ToLower(f.Content), lower) {
			out = append(out, f)
		}
	}
	return out
}

// Flush returns everything accumulated since the previous call and
// resets the pending set. The caller persists the change set in one
// transaction.
func (s *Store) Flush() ChangeSet {
	out := s.pending
	s.pending = ChangeSet{}
	return out
}

// compress folds the oldest batch of messages into a single summary
// fact. It only runs when the buffer exceeds the limit by a full
// batch, so a summary always covers ten messages.
func (s *Store) compress() {
	if len(s.messages) < s.historyLimit+compressBatch {
		return
	}

	batch := s.messages[:compressBatch]
	startTurn := batch[0].Turn
	endTurn := batch[len(batch)-1].Turn

	var all strings.Builder
	for _, m := range batch {
		all.WriteString(m.Content)
		all.WriteString(" ")
	}
	topics := sortedKeywords(extractKeywords(all.String()))
	if len(topics) > topicSampleSize {
		topics = topics[:topicSampleSize]
	}
	keyTopics := "general conversation"
	if len(topics) > 0 {
		keyTopics = strings.Join(topics, ", ")
	}

	summary := Fact{
		ID:   id.NewID(),
		Kind: "summary",
		Content: fmt.Sprintf("Summary of turns %d-%d: Discussed topics: %s. (%d messages)",
			startTurn, endTurn, keyTopics, len(batch)),
		Turn:       endTurn,
		Importance: summaryImportance,
	}
	s.summaries = append(s.summaries, summary)
	s.pending.Facts = append(s.pending.Facts, summary)

	s.messages = append([]Message(nil), s.messages[compressBatch:]...)
	s.pending.PrunedMessages += compressBatch

	log.Printf("memory compressed turns=%d-%d topics=%q", startTurn, endTurn, keyTopics)
}

// Summaries returns the compressed-history entries, oldest first.
func (s *Store) Summaries() []Fact {
	return append([]Fact(nil), s.summaries...)
}

// Stats reports buffer sizes for logging.
func (s *Store) Stats() (messages, facts, highImportance int) {
	for _, f := range s.facts {
		if f.Importance >= 7 {
			highImportance++
		}
	}
	return len(s.messages), len(s.facts), highImportance
}

func (s *Store) factByID(id string) (Fact, bool) {
	for _, f := range s.facts {
		if f.ID == id {
			return f, true
		}
	}
	return Fact{}, false
}
