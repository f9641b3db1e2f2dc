package personality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/selune/engine/internal/world"
)

// TraitHit is one detected trait with its current intensity tier.
type TraitHit struct {
	Trait     Trait
	Intensity Intensity
}

// Update is the outcome of one analysis pass.
type Update struct {
	Detected          []TraitHit
	ImpressionChanges map[string]int
	ArchetypeHint     string
}

// Engine analyzes player input and maintains per-NPC psychological state
// for one session.
type Engine struct {
	states map[string]*State

	deep deepAnalyzer
}

// NewEngine creates an empty personality engine.
func NewEngine() *Engine {
	return &Engine{states: make(map[string]*State)}
}

// LoadStates replaces the per-NPC states with a persisted or
// snapshotted set.
func (e *Engine) LoadStates(states []*State) {
	e.states = make(map[string]*State, len(states))
	for _, st := range states {
		e.states[st.Companion] = st
	}
}

// States returns all per-NPC states for persistence, sorted by companion
// name.
func (e *Engine) States() []*State {
	out := make([]*State, 0, len(e.states))
	for _, st := range e.states {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Companion < out[j].Companion })
	return out
}

// StateOf returns the state for a companion, creating it if needed.
func (e *Engine) StateOf(companion string) *State {
	st, ok := e.states[companion]
	if !ok {
		st = newState(companion)
		e.states[companion] = st
	}
	return st
}

// InitLinks seeds a companion's relationship links from the world
// definition. Existing links are kept.
func (e *Engine) InitLinks(companion string, others []string, relations map[string]world.Relation) {
	st := e.StateOf(companion)
	for _, other := range others {
		if other == companion {
			continue
		}
		if _, ok := st.Links[other]; ok {
			continue
		}
		link := &Link{JealousySensitivity: 0.5}
		if rel, ok := relations[other]; ok {
			link.Rapport = rel.Rapport
			link.JealousySensitivity = rel.JealousySensitivity
		}
		st.Links[other] = link
	}
}

// AnalyzeAction runs the pattern pass on one player input: each trait
// category scores at most one hit per turn, the summed impact deltas are
// applied to the companion's impression, and moderate-or-stronger hits
// raise other NPCs' awareness.
func (e *Engine) AnalyzeAction(companion, input string, turn int) Update {
	st := e.StateOf(companion)

	update := Update{ImpressionChanges: make(map[string]int)}

	for _, trait := range traitOrder {
		if !matchesTrait(trait, input) {
			continue
		}
		rec, ok := st.Behavioral[trait]
		if !ok {
			rec = &Record{}
			st.Behavioral[trait] = rec
		}
		rec.Occurrences++
		rec.LastTurn = turn
		rec.Intensity = intensityFor(rec.Occurrences)

		update.Detected = append(update.Detected, TraitHit{Trait: trait, Intensity: rec.Intensity})

		for dim, delta := range impactMatrix[trait] {
			update.ImpressionChanges[dim] += delta
		}
	}

	e.applyImpression(st, update.ImpressionChanges)
	e.propagateAwareness(companion, update.Detected)
	update.ArchetypeHint = st.Archetype

	return update
}

func matchesTrait(trait Trait, input string) bool {
	for _, re := range behaviorPatterns[trait] {
		if re.MatchString(input) {
			return true
		}
	}
	return false
}

// applyImpression adds the deltas with clamping to [-100,100].
func (e *Engine) applyImpression(st *State, changes map[string]int) {
	imp := &st.Impression
	imp.Trust = clamp100(imp.Trust + changes[DimTrust])
	imp.Attraction = clamp100(imp.Attraction + changes[DimAttraction])
	imp.Fear = clamp100(imp.Fear + changes[DimFear])
	imp.Curiosity = clamp100(imp.Curiosity + changes[DimCuriosity])
	imp.DominanceBalance = clamp100(imp.DominanceBalance + changes[DimDominance])
}

func clamp100(v int) int {
	if v < -100 {
		return -100
	}
	if v > 100 {
		return 100
	}
	return v
}

// propagateAwareness raises every other NPC's awareness of the active
// companion when a moderate-or-stronger trait was detected. Affinity is
// never touched here.
func (e *Engine) propagateAwareness(active string, detected []TraitHit) {
	significant := false
	for _, hit := range detected {
		if hit.Intensity == Moderate || hit.Intensity == Strong {
			significant = true
			break
		}
	}
	if !significant {
		return
	}

	for name, st := range e.states {
		if name == active {
			continue
		}
		link, ok := st.Links[active]
		if !ok {
			continue
		}
		link.Awareness += int(5 * link.JealousySensitivity)
		if link.Awareness > 100 {
			link.Awareness = 100
		}
	}
}

// DetectArchetype returns the player archetype for a companion: the
// trait with the most occurrences, requiring at least the moderate
// threshold. The result is cached and recomputed after 5 turns.
func (e *Engine) DetectArchetype(companion string, turn int) string {
	st := e.StateOf(companion)
	if st.ArchetypeCacheTurn >= 0 && st.ArchetypeCacheTurn > turn-5 {
		return st.Archetype
	}

	var best Trait
	bestCount := 0
	for _, trait := range traitOrder {
		rec, ok := st.Behavioral[trait]
		if !ok {
			continue
		}
		if rec.Occurrences > bestCount {
			best = trait
			bestCount = rec.Occurrences
		}
	}

	st.Archetype = ""
	if bestCount >= moderateThreshold {
		st.Archetype = archetypeNames[best]
	}
	st.ArchetypeCacheTurn = turn
	return st.Archetype
}

// PowerDynamic describes who holds power in the relationship.
func (e *Engine) PowerDynamic(companion string) string {
	balance := e.StateOf(companion).Impression.DominanceBalance
	switch {
	case balance < -40:
		return "PLAYER_DOMINANT"
	case balance > 40:
		return "NPC_DOMINANT"
	default:
		return "EQUAL"
	}
}

// Context formats the companion's psychological state for the prompt
// builder.
func (e *Engine) Context(companion string) string {
	st := e.StateOf(companion)
	var b strings.Builder

	if len(st.Behavioral) > 0 {
		b.WriteString("=== BEHAVIORAL PATTERNS ===\n")
		for _, trait := range traitOrder {
			rec, ok := st.Behavioral[trait]
			if !ok {
				continue
			}
			fmt.Fprintf(&b, "- %s: %s (%d times)\n", trait, rec.Intensity, rec.Occurrences)
		}
		b.WriteString("\n")
	}

	imp := st.Impression
	b.WriteString("=== IMPRESSION OF PLAYER ===\n")
	fmt.Fprintf(&b, "Trust: %d (%s)\n", imp.Trust, describeScore(imp.Trust))
	fmt.Fprintf(&b, "Attraction: %d (%s)\n", imp.Attraction, describeScore(imp.Attraction))
	fmt.Fprintf(&b, "Fear: %d (%s)\n", imp.Fear, describeScore(imp.Fear))
	fmt.Fprintf(&b, "Curiosity: %d (%s)\n", imp.Curiosity, describeScore(imp.Curiosity))
	fmt.Fprintf(&b, "Power Balance: %d (%s)\n", imp.DominanceBalance, describeBalance(imp.DominanceBalance))

	if len(st.Links) > 0 {
		b.WriteString("\n=== RELATIONSHIPS ===\n")
		targets := make([]string, 0, len(st.Links))
		for target := range st.Links {
			targets = append(targets, target)
		}
		sort.Strings(targets)
		for _, target := range targets {
			link := st.Links[target]
			fmt.Fprintf(&b, "- %s: Rapport %d, Awareness %d%%\n", target, link.Rapport, link.Awareness)
		}
	}

	return b.String()
}

func describeScore(score int) string {
	switch {
	case score >= 50:
		return "Very High"
	case score >= 20:
		return "High"
	case score > -20:
		return "Neutral"
	case score > -50:
		return "Low"
	default:
		return "Very Low"
	}
}

func describeBalance(balance int) string {
	switch {
	case balance < -20:
		return "Player Dominant"
	case balance > 20:
		return "NPC Dominant"
	default:
		return "Equal"
	}
}
