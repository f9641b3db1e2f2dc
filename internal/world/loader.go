package world

import (
	"fmt"
	"os"
	"regexp"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/selune/engine/internal/expr"
	perrors "github.com/selune/engine/internal/platform/errors"
)

// raw YAML shapes; processed into the immutable definition types below.

type rawWorld struct {
	Meta struct {
		ID          string `yaml:"id"`
		Name        string `yaml:"name"`
		Genre       string `yaml:"genre"`
		Description string `yaml:"description"`
		Lore        string `yaml:"lore"`
	} `yaml:"meta"`
	Companions   map[string]rawCompanion `yaml:"companions"`
	Locations    map[string]rawLocation  `yaml:"locations"`
	Quests       map[string]rawQuest     `yaml:"quests"`
	NarrativeArc rawArc                  `yaml:"narrative_arc"`
}

type rawCompanion struct {
	Role              string              `yaml:"role"`
	BasePersonality   string              `yaml:"base_personality"`
	BasePrompt        string              `yaml:"base_prompt"`
	DefaultOutfit     string              `yaml:"default_outfit"`
	Wardrobe          map[string]string   `yaml:"wardrobe"`
	Relations         map[string]Relation `yaml:"relations"`
	PersonalitySystem struct {
		EmotionalStates map[string]string `yaml:"emotional_states"`
		AffinityTiers   map[string]string `yaml:"affinity_tiers"`
	} `yaml:"personality_system"`
}

type rawLocation struct {
	Name           string   `yaml:"name"`
	Description    string   `yaml:"description"`
	VisualStyle    string   `yaml:"visual_style"`
	Lighting       string   `yaml:"lighting"`
	Aliases        []string `yaml:"aliases"`
	ConnectedTo    []string `yaml:"connected_to"`
	AvailableTimes []string `yaml:"available_times"`
}

type rawArc struct {
	Premise        string    `yaml:"premise"`
	Themes         []string  `yaml:"themes"`
	HardLimits     []string  `yaml:"hard_limits"`
	SoftGuidelines []string  `yaml:"soft_guidelines"`
	Beats          []rawBeat `yaml:"beats"`
}

type rawBeat struct {
	ID               string   `yaml:"id"`
	Description      string   `yaml:"description"`
	Tone             string   `yaml:"tone"`
	Trigger          string   `yaml:"trigger"`
	Priority         int      `yaml:"priority"`
	RequiredElements []string `yaml:"required_elements"`
	Once             bool     `yaml:"once"`
	Consequence      string   `yaml:"consequence"`
}

type rawQuest struct {
	Meta struct {
		Title       string `yaml:"title"`
		Description string `yaml:"description"`
		Character   string `yaml:"character"`
		Hidden      bool   `yaml:"hidden"`
	} `yaml:"meta"`
	Activation struct {
		Type         string      `yaml:"type"`
		Conditions   []Condition `yaml:"conditions"`
		TriggerEvent string      `yaml:"trigger_event"`
	} `yaml:"activation"`
	Requires []string            `yaml:"requires"`
	Stages   map[string]rawStage `yaml:"stages"`
	Rewards  Rewards             `yaml:"rewards"`
}

type rawStage struct {
	Title           string       `yaml:"title"`
	Description     string       `yaml:"description"`
	NarrativePrompt string       `yaml:"narrative_prompt"`
	OnEnter         []Action     `yaml:"on_enter"`
	ExitConditions  []Condition  `yaml:"exit_conditions"`
	Transitions     []rawTransit `yaml:"transitions"`
	MaxTurns        int          `yaml:"max_turns"`
}

type rawTransit struct {
	Condition   string `yaml:"condition"`
	Target      string `yaml:"target"`
	TargetStage string `yaml:"target_stage"`
}

// Load reads a world definition from a YAML file.
func Load(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.CodeWorldNotFound, "read world file", err)
	}
	def, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a world definition.
func Parse(data []byte) (*Definition, error) {
	var raw rawWorld
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, perrors.Wrap(perrors.CodeWorldInvalid, "decode world yaml", err)
	}

	if raw.Meta.ID == "" || raw.Meta.Name == "" {
		return nil, perrors.New(perrors.CodeWorldInvalid, "meta.id and meta.name are required")
	}
	if len(raw.Companions) == 0 {
		return nil, perrors.New(perrors.CodeWorldInvalid, "world has no companions")
	}

	def := &Definition{
		ID:          raw.Meta.ID,
		Name:        raw.Meta.Name,
		Genre:       raw.Meta.Genre,
		Description: raw.Meta.Description,
		Lore:        raw.Meta.Lore,
		Companions:  make(map[string]*Companion, len(raw.Companions)),
		Locations:   make(map[string]*Location, len(raw.Locations)),
		Quests:      make(map[string]*Quest, len(raw.Quests)),
	}

	for name, rc := range raw.Companions {
		if rc.BasePrompt == "" {
			return nil, perrors.New(perrors.CodeWorldInvalid, fmt.Sprintf("companion %s missing base_prompt", name))
		}
		comp := &Companion{
			Name:            name,
			Role:            rc.Role,
			BasePersonality: rc.BasePersonality,
			BasePrompt:      rc.BasePrompt,
			DefaultOutfit:   rc.DefaultOutfit,
			Wardrobe:        rc.Wardrobe,
			Relations:       rc.Relations,
			EmotionalStates: rc.PersonalitySystem.EmotionalStates,
			AffinityTiers:   rc.PersonalitySystem.AffinityTiers,
		}
		if comp.DefaultOutfit == "" {
			comp.DefaultOutfit = "default"
		}
		def.Companions[name] = comp
	}

	for id, rl := range raw.Locations {
		loc := &Location{
			ID:          id,
			Name:        rl.Name,
			Description: rl.Description,
			VisualStyle: rl.VisualStyle,
			Lighting:    rl.Lighting,
			Aliases:     rl.Aliases,
			ConnectedTo: rl.ConnectedTo,
		}
		if loc.Name == "" {
			loc.Name = id
		}
		for _, ts := range rl.AvailableTimes {
			slot, ok := ParseTimeOfDay(ts)
			if !ok {
				return nil, perrors.New(perrors.CodeWorldInvalid, fmt.Sprintf("location %s: invalid time %q", id, ts))
			}
			loc.Available = append(loc.Available, slot)
		}
		def.Locations[id] = loc
	}

	def.Arc = NarrativeArc{
		Premise:        raw.NarrativeArc.Premise,
		Themes:         raw.NarrativeArc.Themes,
		HardLimits:     raw.NarrativeArc.HardLimits,
		SoftGuidelines: raw.NarrativeArc.SoftGuidelines,
	}
	for _, rb := range raw.NarrativeArc.Beats {
		beat, err := processBeat(rb)
		if err != nil {
			return nil, err
		}
		def.Arc.Beats = append(def.Arc.Beats, beat)
	}

	// Quests are processed in sorted id order so validation messages are
	// deterministic; map iteration order in the definitions never matters
	// to the engines.
	questIDs := make([]string, 0, len(raw.Quests))
	for id := range raw.Quests {
		questIDs = append(questIDs, id)
	}
	sort.Strings(questIDs)
	for _, id := range questIDs {
		quest, err := processQuest(id, raw.Quests[id])
		if err != nil {
			return nil, err
		}
		def.Quests[id] = quest
	}

	for id, quest := range def.Quests {
		for _, req := range quest.Requires {
			if _, ok := def.Quests[req]; !ok {
				return nil, perrors.New(perrors.CodeWorldInvalid, fmt.Sprintf("quest %s requires unknown quest %s", id, req))
			}
		}
	}

	return def, nil
}

func processBeat(rb rawBeat) (StoryBeat, error) {
	if rb.ID == "" {
		return StoryBeat{}, perrors.New(perrors.CodeWorldInvalid, "story beat missing id")
	}
	trigger, err := expr.Compile(rb.Trigger)
	if err != nil {
		return StoryBeat{}, perrors.Wrap(perrors.CodeBeatInvalidTrigger, fmt.Sprintf("beat %s", rb.ID), err)
	}
	return StoryBeat{
		ID:               rb.ID,
		Description:      rb.Description,
		Tone:             rb.Tone,
		TriggerSource:    rb.Trigger,
		Trigger:          trigger,
		Priority:         rb.Priority,
		RequiredElements: rb.RequiredElements,
		Once:             rb.Once,
		Consequence:      rb.Consequence,
	}, nil
}

func processQuest(id string, rq rawQuest) (*Quest, error) {
	if len(rq.Stages) == 0 {
		return nil, perrors.New(perrors.CodeWorldInvalid, fmt.Sprintf("quest %s has no stages", id))
	}

	quest := &Quest{
		ID:             id,
		Title:          rq.Meta.Title,
		Description:    rq.Meta.Description,
		Character:      rq.Meta.Character,
		Hidden:         rq.Meta.Hidden,
		ActivationType: rq.Activation.Type,
		TriggerEvent:   rq.Activation.TriggerEvent,
		Requires:       rq.Requires,
		Stages:         make(map[string]*Stage, len(rq.Stages)),
		Rewards:        rq.Rewards,
	}
	if quest.Title == "" {
		quest.Title = id
	}
	if quest.ActivationType == "" {
		quest.ActivationType = "auto"
	}

	conds, err := processConditions(id, "activation", rq.Activation.Conditions)
	if err != nil {
		return nil, err
	}
	quest.ActivationConditions = conds

	stageIDs := make([]string, 0, len(rq.Stages))
	for sid := range rq.Stages {
		stageIDs = append(stageIDs, sid)
	}
	sort.Strings(stageIDs)

	for _, sid := range stageIDs {
		rs := rq.Stages[sid]
		stage := &Stage{
			Title:           rs.Title,
			Description:     rs.Description,
			NarrativePrompt: rs.NarrativePrompt,
			OnEnter:         rs.OnEnter,
			MaxTurns:        rs.MaxTurns,
		}
		stage.ExitConditions, err = processConditions(id, sid, rs.ExitConditions)
		if err != nil {
			return nil, err
		}
		for _, rt := range rs.Transitions {
			target := rt.Target
			if target == "" {
				target = rt.TargetStage
			}
			if target != StageComplete && target != StageFail {
				if _, ok := rq.Stages[target]; !ok {
					return nil, perrors.New(perrors.CodeQuestUnknownStage,
						fmt.Sprintf("quest %s stage %s: transition to unknown stage %q", id, sid, target))
				}
			}
			stage.Transitions = append(stage.Transitions, Transition{Condition: rt.Condition, Target: target})
		}
		quest.Stages[sid] = stage
	}

	quest.StartStage = "start"
	if _, ok := quest.Stages["start"]; !ok {
		quest.StartStage = stageIDs[0]
	}

	return quest, nil
}

func processConditions(questID, where string, conds []Condition) ([]Condition, error) {
	out := make([]Condition, 0, len(conds))
	for i, c := range conds {
		switch c.Type {
		case CondAffinity, CondLocation, CondTime, CondFlag, CondTurnCount, CondInventory, CondAction, CondCompanion:
		default:
			return nil, perrors.New(perrors.CodeQuestInvalidCondition,
				fmt.Sprintf("quest %s %s condition %d: unknown type %q", questID, where, i, c.Type))
		}
		if c.Operator == "" {
			c.Operator = "eq"
		}
		if c.Type == CondAction {
			if c.Pattern == "" {
				return nil, perrors.New(perrors.CodeQuestInvalidCondition,
					fmt.Sprintf("quest %s %s condition %d: action condition missing pattern", questID, where, i))
			}
			re, err := regexp.Compile("(?i)" + c.Pattern)
			if err != nil {
				return nil, perrors.Wrap(perrors.CodeQuestInvalidCondition,
					fmt.Sprintf("quest %s %s condition %d", questID, where, i), err)
			}
			c.compiled = re
		}
		out = append(out, c)
	}
	return out, nil
}
