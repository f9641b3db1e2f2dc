package personality

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/selune/engine/internal/generation"
)

// Generator is the slice of the generation manager the deep pass needs.
type Generator interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Response, error)
}

const (
	defaultDeepInterval = 3
	deepBufferSize      = 6 // last 3 exchanges
	minConfidence       = 0.4
	maxDeepDelta        = 10
)

type deepAnalyzer struct {
	gen      Generator
	interval int
	buffer   []generation.Message
}

// EnableDeepAnalysis turns on the periodic model-based pass. interval <= 0
// uses the default of every 3 turns.
func (e *Engine) EnableDeepAnalysis(gen Generator, interval int) {
	if interval <= 0 {
		interval = defaultDeepInterval
	}
	e.deep = deepAnalyzer{gen: gen, interval: interval}
}

// AnalyzeDeep buffers the exchange and, every N turns, asks the model to
// classify the player's recent behavior. The verdict is strictly
// additive: traits below the confidence floor are dropped, impression
// deltas are clamped to [-10,10], and any failure skips the pass without
// touching state.
func (e *Engine) AnalyzeDeep(ctx context.Context, companion, input, response string, turn int, affinity int) (*Update, bool) {
	if e.deep.gen == nil {
		return nil, false
	}

	e.deep.buffer = append(e.deep.buffer,
		generation.Message{Role: generation.RoleUser, Content: input},
		generation.Message{Role: generation.RoleAssistant, Content: response},
	)
	if len(e.deep.buffer) > deepBufferSize {
		e.deep.buffer = e.deep.buffer[len(e.deep.buffer)-deepBufferSize:]
	}

	if turn%e.deep.interval != 0 {
		return nil, false
	}

	resp, err := e.deep.gen.Generate(ctx, generation.Request{
		System:   deepSystemPrompt(companion, affinity),
		Input:    formatBuffer(e.deep.buffer),
		JSONMode: true,
	})
	if err != nil {
		log.Printf("deep analysis skipped companion=%s turn=%d: %v", companion, turn, err)
		return nil, false
	}

	update, err := parseDeepVerdict(resp.Text)
	if err != nil {
		log.Printf("deep analysis unparseable companion=%s turn=%d: %v", companion, turn, err)
		return nil, false
	}

	st := e.StateOf(companion)
	for _, hit := range update.Detected {
		rec, ok := st.Behavioral[hit.Trait]
		if !ok {
			rec = &Record{}
			st.Behavioral[hit.Trait] = rec
		}
		rec.Occurrences++
		rec.LastTurn = turn
		rec.Intensity = intensityFor(rec.Occurrences)
	}
	e.applyImpression(st, update.ImpressionChanges)

	return update, true
}

func deepSystemPrompt(companion string, affinity int) string {
	return fmt.Sprintf(`=== PERSONALITY ANALYSIS SYSTEM ===

You are analyzing the player's behavior toward %s in a narrative game.
Current relationship affinity: %d/100

Classify the player's behavior in the conversation. Trait types:
aggressive, shy, romantic, dominant, submissive, curious, teasing,
protective, neutral.

Respond with valid JSON only:
{
  "traits": [{"trait": "romantic", "confidence": 0.85, "evidence": "quoted text"}],
  "impression_changes": {"trust": 5, "attraction": 8, "fear": 0, "curiosity": 3, "dominance_balance": -5},
  "archetype_hint": "optional descriptor"
}

Rules: confidence in [0,1]; only include traits with confidence >= 0.4;
impression changes in [-10,10]; be objective.`, companion, affinity)
}

func formatBuffer(buffer []generation.Message) string {
	var b strings.Builder
	b.WriteString("=== CONVERSATION TO ANALYZE ===\n\n")
	for _, msg := range buffer {
		if msg.Role == generation.RoleUser {
			fmt.Fprintf(&b, "Player: %s\n", msg.Content)
		} else {
			fmt.Fprintf(&b, "Companion: %s\n", msg.Content)
		}
	}
	b.WriteString("\n=== ANALYZE PLAYER'S BEHAVIOR ABOVE ===")
	return b.String()
}

type deepVerdict struct {
	Traits []struct {
		Trait      string  `json:"trait"`
		Confidence float64 `json:"confidence"`
	} `json:"traits"`
	ImpressionChanges map[string]int `json:"impression_changes"`
	ArchetypeHint     string         `json:"archetype_hint"`
}

func parseDeepVerdict(text string) (*Update, error) {
	var verdict deepVerdict
	if err := json.Unmarshal([]byte(generation.StripFences(text)), &verdict); err != nil {
		return nil, err
	}

	update := &Update{
		ImpressionChanges: make(map[string]int),
		ArchetypeHint:     verdict.ArchetypeHint,
	}

	for _, t := range verdict.Traits {
		if t.Confidence < minConfidence {
			continue
		}
		trait, ok := ParseTrait(strings.ToLower(t.Trait))
		if !ok || trait == Neutral {
			continue
		}
		update.Detected = append(update.Detected, TraitHit{
			Trait:     trait,
			Intensity: confidenceIntensity(t.Confidence),
		})
	}

	for _, dim := range []string{DimTrust, DimAttraction, DimFear, DimCuriosity, DimDominance} {
		delta, ok := verdict.ImpressionChanges[dim]
		if !ok {
			continue
		}
		if delta > maxDeepDelta {
			delta = maxDeepDelta
		}
		if delta < -maxDeepDelta {
			delta = -maxDeepDelta
		}
		update.ImpressionChanges[dim] = delta
	}

	return update, nil
}

func confidenceIntensity(confidence float64) Intensity {
	switch {
	case confidence >= 0.7:
		return Strong
	case confidence >= 0.5:
		return Moderate
	default:
		return Subtle
	}
}
