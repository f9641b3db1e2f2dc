// Package director controls narrative structure: it decides when
// authored story beats fire, instructs the generator to execute them,
// validates the result, and applies authored consequences. The engine
// owns the arc; the model only writes individual scenes.
package director

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/selune/engine/internal/expr"
	"github.com/selune/engine/internal/generation"
	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/world"
)

const (
	snapshotLimit      = 500
	contextHistorySize = 3
	upcomingWindow     = 3
)

// Judge runs the model-as-judge validation pass. *generation.Manager
// satisfies it.
type Judge interface {
	Generate(ctx context.Context, req generation.Request) (*generation.Response, error)
}

// Execution records one completed beat.
type Execution struct {
	BeatID   string  `json:"beat_id"`
	Turn     int     `json:"turn"`
	Quality  float64 `json:"quality"`
	Snapshot string  `json:"snapshot"`
}

// Director tracks beat progress for one session.
type Director struct {
	arc       world.NarrativeArc
	judge     Judge
	history   []Execution
	completed map[string]struct{}
}

func New(arc world.NarrativeArc) *Director {
	return &Director{arc: arc, completed: make(map[string]struct{})}
}

// SetJudge enables model-based beat validation. Without a judge,
// Validate falls back to the element check alone.
func (d *Director) SetJudge(j Judge) { d.judge = j }

// SelectBeat returns the beat that should fire this turn and the
// instruction block to inject into the prompt, or nil when no beat
// triggers. Lower priority wins; declaration order breaks ties.
// Trigger evaluation errors skip the beat.
func (d *Director) SelectBeat(ws *state.WorldState) (*world.StoryBeat, string) {
	env := triggerEnv(ws)

	var candidates []*world.StoryBeat
	for i := range d.arc.Beats {
		beat := &d.arc.Beats[i]
		if beat.Once {
			if _, done := d.completed[beat.ID]; done {
				continue
			}
		}
		ok, err := evalTrigger(beat.Trigger, env)
		if err != nil {
			log.Printf("beat trigger error beat=%s err=%v", beat.ID, err)
			continue
		}
		if ok {
			candidates = append(candidates, beat)
		}
	}
	if len(candidates) == 0 {
		return nil, ""
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Priority < candidates[j].Priority
	})
	selected := candidates[0]
	return selected, d.instruction(selected, ws)
}

func evalTrigger(e *expr.Expr, env expr.Env) (bool, error) {
	if e == nil {
		return true, nil
	}
	return e.Eval(env)
}

// triggerEnv builds the symbol table beat triggers evaluate against.
func triggerEnv(ws *state.WorldState) expr.MapEnv {
	env := expr.MapEnv{
		"turn":       ws.Turn,
		"turn_count": ws.Turn,
		"location":   ws.Location,
		"time":       string(ws.Time),
		"companion":  ws.ActiveCompanion,
	}
	for name, value := range ws.Affinity {
		lower := strings.ToLower(name)
		env[lower+"_affinity"] = value
		env["affinity_"+lower] = value
	}
	for flag, value := range ws.Flags {
		env[flag] = value
	}
	return env
}

func (d *Director) instruction(beat *world.StoryBeat, ws *state.WorldState) string {
	var b strings.Builder
	b.WriteString("=== MANDATORY STORY BEAT ===\n\n")
	b.WriteString("You must narrate EXACTLY this event:\n")
	b.WriteString(beat.Description)
	b.WriteString("\n\n")

	if beat.Tone != "" {
		fmt.Fprintf(&b, "REQUIRED TONE: %s\n\n", beat.Tone)
	}
	if len(beat.RequiredElements) > 0 {
		b.WriteString("REQUIRED ELEMENTS (must appear in the scene):\n")
		for _, element := range beat.RequiredElements {
			fmt.Fprintf(&b, "  - %s\n", element)
		}
		b.WriteString("\n")
	}

	b.WriteString("CURRENT CONTEXT:\n")
	fmt.Fprintf(&b, "  Turn: %d\n", ws.Turn)
	fmt.Fprintf(&b, "  Location: %s\n", ws.Location)
	fmt.Fprintf(&b, "  Active companion: %s\n", ws.ActiveCompanion)
	fmt.Fprintf(&b, "  Affinity: %d\n", ws.Affinity[ws.ActiveCompanion])
	b.WriteString("\nINSTRUCTION: Write the scene including ALL required elements.\n")
	b.WriteString("============================")
	return b.String()
}

type judgeVerdict struct {
	Success bool     `json:"success"`
	Quality *float64 `json:"quality"`
	Reason  string   `json:"reason"`
}

const judgeSystemPrompt = `You are an impartial Narrative Judge for a role-playing game.
Your task is to verify whether a Narrative Objective actually happened in the generated text.

JUDGING RULES:
1. The event must have truly happened (not just mentioned or imagined).
2. If a character refused to do it, the event did NOT happen (success=false).

Respond ONLY with pure JSON:
{
  "success": true/false,
  "reason": "one-line explanation",
  "quality": 0.0 to 1.0 (rate the execution quality)
}`

// Validate checks that response actually executed beat. The baseline
// is a case-insensitive substring check over required elements; when a
// judge is attached its verdict overrides success and quality. Judge
// failures fall back to the baseline.
func (d *Director) Validate(ctx context.Context, beat *world.StoryBeat, response string) (bool, float64, []string) {
	var missing []string
	lower := strings.ToLower(response)
	for _, element := range beat.RequiredElements {
		if !strings.Contains(lower, strings.ToLower(element)) {
			missing = append(missing, element)
		}
	}

	baseQuality := 1.0
	if n := len(beat.RequiredElements); n > 0 {
		baseQuality = float64(n-len(missing)) / float64(n)
	}
	baseSuccess := len(missing) == 0

	if d.judge == nil {
		return baseSuccess, baseQuality, missing
	}

	resp, err := d.judge.Generate(ctx, generation.Request{
		System:   judgeSystemPrompt + "\n\nREQUIRED OBJECTIVE:\n" + beat.Description,
		Input:    "GENERATED TEXT:\n" + response,
		JSONMode: true,
	})
	if err != nil {
		log.Printf("beat judge failed beat=%s err=%v", beat.ID, err)
		return baseSuccess, baseQuality, missing
	}

	var verdict judgeVerdict
	if err := json.Unmarshal([]byte(generation.StripFences(resp.Text)), &verdict); err != nil {
		log.Printf("beat judge verdict unreadable beat=%s err=%v", beat.ID, err)
		return baseSuccess, baseQuality, missing
	}

	quality := baseQuality
	if verdict.Quality != nil {
		quality = *verdict.Quality
	}
	log.Printf("beat judge verdict beat=%s success=%t reason=%q", beat.ID, verdict.Success, verdict.Reason)
	return verdict.Success, quality, missing
}

// Commit records a completed beat. Once-only beats never fire again.
func (d *Director) Commit(beat *world.StoryBeat, narrative string, quality float64, turn int) {
	snapshot := narrative
	if runes := []rune(snapshot); len(runes) > snapshotLimit {
		snapshot = string(runes[:snapshotLimit])
	}
	d.history = append(d.history, Execution{
		BeatID:   beat.ID,
		Turn:     turn,
		Quality:  quality,
		Snapshot: snapshot,
	})
	if beat.Once {
		d.completed[beat.ID] = struct{}{}
	}
}

var (
	affinityConsequence = regexp.MustCompile(`([\w]+)\s*([+\-])=\s*(\d+)`)
	flagConsequence     = regexp.MustCompile(`flag:(\w+)\s*=\s*(\w+)`)
)

// ApplyConsequences executes the beat's authored consequence string
// against the store. The grammar is comma-separated clauses of either
// "<companion> += N" (affinity, clamped) or "flag:<name> = true".
// Unparseable clauses are logged and skipped.
func (d *Director) ApplyConsequences(beat *world.StoryBeat, store *state.Store) {
	if beat.Consequence == "" {
		return
	}
	for _, part := range strings.Split(beat.Consequence, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if m := flagConsequence.FindStringSubmatch(part); m != nil {
			store.SetFlag(m[1], strings.EqualFold(m[2], "true"))
			continue
		}
		if m := affinityConsequence.FindStringSubmatch(part); m != nil {
			if _, known := store.State().Affinity[m[1]]; !known {
				log.Printf("beat consequence skipped beat=%s clause=%q companion unknown", beat.ID, part)
				continue
			}
			amount, _ := strconv.Atoi(m[3])
			if m[2] == "-" {
				amount = -amount
			}
			store.ChangeAffinity(m[1], amount)
			continue
		}
		log.Printf("beat consequence unparseable beat=%s clause=%q", beat.ID, part)
	}
}

// NarrativeContext returns the arc framing injected on turns with no
// active beat. Empty when the arc has no premise.
func (d *Director) NarrativeContext() string {
	if d.arc.Premise == "" {
		return ""
	}

	var b strings.Builder
	b.WriteString("=== NARRATIVE CONTEXT ===\n")
	b.WriteString("\nPREMISE:\n")
	b.WriteString(d.arc.Premise)
	b.WriteString("\n")

	if len(d.arc.Themes) > 0 {
		b.WriteString("\nTHEMES TO EXPLORE:\n")
		for _, theme := range d.arc.Themes {
			fmt.Fprintf(&b, "  - %s\n", theme)
		}
	}
	if len(d.arc.HardLimits) > 0 {
		b.WriteString("\nABSOLUTE CONSTRAINTS (never violate):\n")
		for _, limit := range d.arc.HardLimits {
			fmt.Fprintf(&b, "  x %s\n", limit)
		}
	}
	if len(d.history) > 0 {
		b.WriteString("\nEVENTS ALREADY OCCURRED:\n")
		start := len(d.history) - contextHistorySize
		if start < 0 {
			start = 0
		}
		for _, exec := range d.history[start:] {
			fmt.Fprintf(&b, "  * %s\n", exec.BeatID)
		}
	}
	b.WriteString("\n=========================")
	return b.String()
}

var turnTrigger = regexp.MustCompile(`turn >= (\d+)`)

// UpcomingBeats lists not-yet-completed beats whose turn trigger is
// within a few turns, for progress display.
func (d *Director) UpcomingBeats(ws *state.WorldState) []world.StoryBeat {
	var upcoming []world.StoryBeat
	for _, beat := range d.arc.Beats {
		if _, done := d.completed[beat.ID]; done {
			continue
		}
		m := turnTrigger.FindStringSubmatch(beat.TriggerSource)
		if m == nil {
			continue
		}
		required, _ := strconv.Atoi(m[1])
		if ws.Turn >= required-upcomingWindow {
			upcoming = append(upcoming, beat)
		}
	}
	return upcoming
}

// History returns the beat execution log, oldest first.
func (d *Director) History() []Execution {
	return append([]Execution(nil), d.history...)
}

// CompletedBeats returns the ids of once-only beats that already
// fired, sorted.
func (d *Director) CompletedBeats() []string {
	ids := make([]string, 0, len(d.completed))
	for id := range d.completed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Restore replaces the director's progress, used when resuming a
// session.
func (d *Director) Restore(history []Execution, completed []string) {
	d.history = append([]Execution(nil), history...)
	d.completed = make(map[string]struct{}, len(completed))
	for _, id := range completed {
		d.completed[id] = struct{}{}
	}
}
