// Package world loads and validates declarative world content: companions,
// locations, quests, and the narrative arc. Definitions are immutable once
// loaded; the engines read them but never write them.
package world

import (
	"regexp"

	"github.com/selune/engine/internal/expr"
)

// TimeOfDay is a discrete time slot. The day advances cyclically
// morning -> afternoon -> evening -> night.
type TimeOfDay string

const (
	Morning   TimeOfDay = "morning"
	Afternoon TimeOfDay = "afternoon"
	Evening   TimeOfDay = "evening"
	Night     TimeOfDay = "night"
)

// ParseTimeOfDay reports whether s names a valid time slot.
func ParseTimeOfDay(s string) (TimeOfDay, bool) {
	switch TimeOfDay(s) {
	case Morning, Afternoon, Evening, Night:
		return TimeOfDay(s), true
	}
	return "", false
}

// Next returns the slot that follows t.
func (t TimeOfDay) Next() TimeOfDay {
	switch t {
	case Morning:
		return Afternoon
	case Afternoon:
		return Evening
	case Evening:
		return Night
	default:
		return Morning
	}
}

// Definition is a complete world: metadata, cast, geography, quests and
// the authored narrative arc.
type Definition struct {
	ID          string `yaml:"-"`
	Name        string `yaml:"-"`
	Genre       string `yaml:"-"`
	Description string `yaml:"-"`
	Lore        string `yaml:"-"`

	Companions map[string]*Companion `yaml:"-"`
	Locations  map[string]*Location  `yaml:"-"`
	Quests     map[string]*Quest     `yaml:"-"`
	Arc        NarrativeArc          `yaml:"-"`
}

// Companion returns the companion by name, nil when unknown.
func (d *Definition) Companion(name string) *Companion {
	return d.Companions[name]
}

// ResolveLocation finds a location by id, name or alias (case-insensitive
// matching is the loader's responsibility: aliases are normalized at load).
func (d *Definition) ResolveLocation(ref string) (*Location, bool) {
	if loc, ok := d.Locations[ref]; ok {
		return loc, true
	}
	for _, loc := range d.Locations {
		if loc.Name == ref {
			return loc, true
		}
		for _, alias := range loc.Aliases {
			if alias == ref {
				return loc, true
			}
		}
	}
	return nil, false
}

// Companion is one member of the cast.
type Companion struct {
	Name            string              `yaml:"name"`
	Role            string              `yaml:"role"`
	BasePersonality string              `yaml:"base_personality"`
	BasePrompt      string              `yaml:"base_prompt"`
	DefaultOutfit   string              `yaml:"default_outfit"`
	Wardrobe        map[string]string   `yaml:"wardrobe"`
	Relations       map[string]Relation `yaml:"relations"`
	EmotionalStates map[string]string   `yaml:"emotional_states"`
	AffinityTiers   map[string]string   `yaml:"affinity_tiers"`
}

// HasOutfit reports whether style is in the companion's wardrobe. A
// companion with an empty wardrobe accepts any style.
func (c *Companion) HasOutfit(style string) bool {
	if len(c.Wardrobe) == 0 {
		return true
	}
	_, ok := c.Wardrobe[style]
	return ok
}

// Relation describes how a companion relates to another NPC. Rapport is
// [-100,100]; JealousySensitivity scales awareness propagation in [0,1].
type Relation struct {
	Rapport             int     `yaml:"rapport"`
	JealousySensitivity float64 `yaml:"jealousy_sensitivity"`
}

// Location is one place in the world.
type Location struct {
	ID          string      `yaml:"-"`
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	VisualStyle string      `yaml:"visual_style"`
	Lighting    string      `yaml:"lighting"`
	Aliases     []string    `yaml:"aliases"`
	ConnectedTo []string    `yaml:"connected_to"`
	Available   []TimeOfDay `yaml:"-"`
}

// NarrativeArc holds the authored story structure.
type NarrativeArc struct {
	Premise        string       `yaml:"premise"`
	Themes         []string     `yaml:"themes"`
	HardLimits     []string     `yaml:"hard_limits"`
	SoftGuidelines []string     `yaml:"soft_guidelines"`
	Beats          []StoryBeat  `yaml:"-"`
}

// StoryBeat is one mandatory narrative moment. Trigger is compiled at load
// time; Priority orders candidates (lower wins, declaration order ties).
type StoryBeat struct {
	ID               string
	Description      string
	Tone             string
	TriggerSource    string
	Trigger          *expr.Expr
	Priority         int
	RequiredElements []string
	Once             bool
	Consequence      string
}

// Quest condition types.
const (
	CondAffinity  = "affinity"
	CondLocation  = "location"
	CondTime      = "time"
	CondFlag      = "flag"
	CondTurnCount = "turn_count"
	CondInventory = "inventory"
	CondAction    = "action"
	CondCompanion = "companion"
)

// Quest action types.
const (
	ActionSetFlag        = "set_flag"
	ActionChangeAffinity = "change_affinity"
	ActionSetLocation    = "set_location"
	ActionSetOutfit      = "set_outfit"
	ActionSetEmotion     = "set_emotional_state"
	ActionStartQuest     = "start_quest"
	ActionCompleteQuest  = "complete_quest"
	ActionFailQuest      = "fail_quest"
)

// Virtual stage ids that terminate a quest.
const (
	StageComplete = "_complete"
	StageFail     = "_fail"
)

// Quest is a declarative quest state machine.
type Quest struct {
	ID                   string
	Title                string
	Description          string
	Character            string
	Hidden               bool
	ActivationType       string // "auto", "trigger" or "manual"
	ActivationConditions []Condition
	TriggerEvent         string
	Requires             []string
	StartStage           string
	Stages               map[string]*Stage
	Rewards              Rewards
}

// Stage is one node of the quest state machine.
type Stage struct {
	Title           string
	Description     string
	NarrativePrompt string
	OnEnter         []Action
	ExitConditions  []Condition
	Transitions     []Transition
	MaxTurns        int
}

// Condition gates a quest activation or stage exit.
type Condition struct {
	Type     string `yaml:"type"`
	Target   string `yaml:"target"`
	Operator string `yaml:"operator"`
	Value    any    `yaml:"value"`
	Pattern  string `yaml:"pattern"`

	compiled *regexp.Regexp
}

// MatchInput applies an action condition's pattern to the player input.
func (c *Condition) MatchInput(input string) bool {
	if c.compiled == nil {
		return false
	}
	return c.compiled.MatchString(input)
}

// Action is a state mutation performed by a quest stage or reward.
type Action struct {
	Action    string `yaml:"action"`
	Key       string `yaml:"key"`
	Value     any    `yaml:"value"`
	Character string `yaml:"character"`
	Target    string `yaml:"target"`
	Outfit    string `yaml:"outfit"`
	QuestID   string `yaml:"quest_id"`
}

// Transition maps a satisfied exit condition (by label "condition_<i>" or
// "default") to a target stage.
type Transition struct {
	Condition string `yaml:"condition"`
	Target    string `yaml:"target"`
}

// Rewards are granted when a quest completes.
type Rewards struct {
	Affinity     map[string]int  `yaml:"affinity"`
	Flags        map[string]bool `yaml:"flags"`
	UnlockQuests []string        `yaml:"unlock_quests"`
}
