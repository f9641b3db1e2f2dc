package session

import (
	"fmt"
	"sort"
	"strings"

	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/world"
)

// PromptBuilder assembles the per-turn system prompt from the world
// definition and the engine contexts. It holds no mutable state.
type PromptBuilder struct {
	def *world.Definition
}

func NewPromptBuilder(def *world.Definition) *PromptBuilder {
	return &PromptBuilder{def: def}
}

// Contexts are the pre-rendered blocks the engines contribute to one
// turn's prompt. Empty blocks are omitted.
type Contexts struct {
	Personality string
	Beat        string
	Narrative   string
	Quests      string
	Memory      string
}

// BuildSystem renders the full system prompt for a turn.
func (pb *PromptBuilder) BuildSystem(ws *state.WorldState, ctxs Contexts) string {
	var b strings.Builder

	fmt.Fprintf(&b, "=== %s ===\n\n", strings.ToUpper(pb.def.Name))
	fmt.Fprintf(&b, "Genre: %s\n", pb.def.Genre)
	b.WriteString("You are the narrative engine of an interactive story. You narrate scenes,\n")
	b.WriteString("voice the characters, and propose state updates. You never control the player.\n")

	if lore := pb.def.Lore; lore != "" {
		b.WriteString("\n=== WORLD ===\n")
		b.WriteString(lore)
		b.WriteString("\n")
	} else if pb.def.Description != "" {
		b.WriteString("\n=== WORLD ===\n")
		b.WriteString(pb.def.Description)
		b.WriteString("\n")
	}

	if companion := pb.def.Companion(ws.ActiveCompanion); companion != nil {
		b.WriteString("\n=== ACTIVE CHARACTER ===\n")
		b.WriteString(pb.companionContext(companion, ws))
	}

	b.WriteString("\n=== CURRENT SITUATION ===\n")
	pb.writeSituation(&b, ws)

	for _, block := range []string{
		ctxs.Personality,
		ctxs.Beat,
		ctxs.Narrative,
		ctxs.Quests,
		ctxs.Memory,
	} {
		if block == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(block)
		b.WriteString("\n")
	}

	b.WriteString("\n=== GAMEPLAY RULES ===\n")
	b.WriteString(gameplayRules)
	b.WriteString("\n=== OUTPUT FORMAT (JSON, STRICT) ===\n")
	b.WriteString(outputContract)
	b.WriteString("\n=== END INSTRUCTIONS ===")
	return b.String()
}

func (pb *PromptBuilder) writeSituation(b *strings.Builder, ws *state.WorldState) {
	locationName := ws.Location
	if loc, ok := pb.def.ResolveLocation(ws.Location); ok {
		locationName = loc.Name
		fmt.Fprintf(b, "Location: %s — %s\n", loc.Name, loc.Description)
		if loc.Lighting != "" {
			fmt.Fprintf(b, "Lighting: %s\n", loc.Lighting)
		}
	} else {
		fmt.Fprintf(b, "Location: %s\n", locationName)
	}
	fmt.Fprintf(b, "Time: %s\n", ws.Time)
	fmt.Fprintf(b, "Turn: %d\n", ws.Turn)

	outfit := ws.Outfits[ws.ActiveCompanion]
	if outfit.Style != "" {
		fmt.Fprintf(b, "Current outfit: %s", outfit.Style)
		if outfit.Description != "" {
			fmt.Fprintf(b, " (%s)", outfit.Description)
		}
		b.WriteString("\n")
	}
	if emotion := ws.Emotions[ws.ActiveCompanion]; emotion != "" {
		fmt.Fprintf(b, "Emotional state: %s\n", emotion)
	}
}

func (pb *PromptBuilder) companionContext(c *world.Companion, ws *state.WorldState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", c.Name)
	if c.Role != "" {
		fmt.Fprintf(&b, "Role: %s\n", c.Role)
	}
	if c.BasePersonality != "" {
		fmt.Fprintf(&b, "Personality: %s\n", c.BasePersonality)
	}
	fmt.Fprintf(&b, "Current affinity: %d/100\n", ws.Affinity[c.Name])

	if c.BasePrompt != "" {
		b.WriteString("\nVISUAL IDENTITY (use verbatim as the base of every visual description):\n")
		b.WriteString(c.BasePrompt)
		b.WriteString("\n")
	}
	if len(c.Wardrobe) > 0 {
		styles := make([]string, 0, len(c.Wardrobe))
		for style := range c.Wardrobe {
			styles = append(styles, style)
		}
		sort.Strings(styles)
		fmt.Fprintf(&b, "Available outfits: %s\n", strings.Join(styles, ", "))
	}
	if tone := toneForAffinity(c, ws.Affinity[c.Name]); tone != "" {
		fmt.Fprintf(&b, "Dialogue tone: %s\n", tone)
	}
	return b.String()
}

// toneForAffinity picks the highest tier whose threshold the current
// affinity reaches. Tier keys are numeric strings; unparseable keys are
// ignored.
func toneForAffinity(c *world.Companion, affinity int) string {
	type tier struct {
		threshold int
		tone      string
	}
	tiers := make([]tier, 0, len(c.AffinityTiers))
	for key, tone := range c.AffinityTiers {
		var threshold int
		if _, err := fmt.Sscanf(key, "%d", &threshold); err != nil {
			continue
		}
		tiers = append(tiers, tier{threshold, tone})
	}
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].threshold < tiers[j].threshold })

	tone := ""
	for _, t := range tiers {
		if affinity >= t.threshold {
			tone = t.tone
		}
	}
	return tone
}

const gameplayRules = `1. Narrate in second person: the player is "you".
2. The active character MUST speak every turn (2-3 lines of dialogue).
3. Keep descriptions short: three sentences of narration at most.
4. The outfit persists between turns; change it only through the updates block.
5. Affinity moves slowly: between -5 and +2 per turn, earned by what the player does.
6. Never decide the player's actions, feelings or words.
7. Stay inside the current location unless the updates block moves the scene.
`

const outputContract = `Respond with valid JSON only. No markdown, no extra text.

{
  "text": "Narration plus dialogue. Max 3 sentences of narration, the character must speak.",
  "visual_description": "Concrete visual description of the scene in English: pose, framing, light. Describe what is visible, not moods.",
  "tags": ["medium_shot", "window_light", "smile"],
  "body_focus": "face",
  "approach_used": "standard",
  "composition": "medium_shot",
  "updates": {
    "affinity_change": {"CharacterName": 1},
    "current_outfit": "outfit_key_if_changed",
    "location": "location_id_if_moved",
    "time_of_day": "morning|afternoon|evening|night",
    "set_flags": {"flag_name": true},
    "npc_emotion": "one-word emotional state",
    "new_fact": "one durable fact worth remembering, if something important happened"
  }
}

Every field under "updates" is optional: omit what did not change.`

// BuildIntro renders the system prompt for the opening scene.
func (pb *PromptBuilder) BuildIntro(ws *state.WorldState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== %s — OPENING SCENE ===\n\n", strings.ToUpper(pb.def.Name))
	fmt.Fprintf(&b, "Genre: %s\n", pb.def.Genre)
	b.WriteString("You are writing the opening scene of an interactive story.\n")
	b.WriteString("This is the first thing the player reads. Set the mood.\n")

	if lore := pb.def.Lore; lore != "" {
		b.WriteString("\n=== SETTING ===\n")
		b.WriteString(lore)
		b.WriteString("\n")
	}
	if companion := pb.def.Companion(ws.ActiveCompanion); companion != nil {
		b.WriteString("\n=== MAIN CHARACTER ===\n")
		b.WriteString(pb.companionContext(companion, ws))
	}
	b.WriteString("\n=== STARTING POINT ===\n")
	pb.writeSituation(&b, ws)

	b.WriteString("\n=== YOUR TASK ===\n")
	b.WriteString("Write an engaging opening where the player first meets the character.\n")
	b.WriteString("Introduce the setting and the character naturally, with sensory detail.\n")
	b.WriteString("\n=== OUTPUT FORMAT (JSON, STRICT) ===\n")
	b.WriteString(outputContract)
	b.WriteString("\n=== END INSTRUCTIONS ===")
	return b.String()
}
