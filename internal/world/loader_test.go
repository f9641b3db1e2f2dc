package world

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	perrors "github.com/selune/engine/internal/platform/errors"
)

const testWorldYAML = `
meta:
  id: moonfall
  name: Moonfall Station
  genre: Sci-fi drama
  description: A derelict station on the edge of settled space.

companions:
  Elara:
    role: Station engineer
    base_personality: Pragmatic, guarded, dry wit.
    base_prompt: You are Elara, the station's last engineer.
    default_outfit: jumpsuit
    wardrobe:
      jumpsuit: Worn orange maintenance jumpsuit
      formal: Fitted grey dress uniform
    relations:
      Mira:
        rapport: 20
        jealousy_sensitivity: 0.6
  Mira:
    role: Salvage pilot
    base_prompt: You are Mira, a salvage pilot stranded on the station.
    relations:
      Elara:
        rapport: 20
        jealousy_sensitivity: 0.3

locations:
  docking_bay:
    name: Docking Bay
    description: Cavernous bay, half the lights dead.
    aliases: [bay, hangar]
    connected_to: [observatory]
  observatory:
    name: Observatory
    description: Cracked dome over the planet below.
    available_times: [evening, night]

narrative_arc:
  premise: The station is failing and someone sabotaged it.
  themes:
    - isolation
    - trust
  hard_limits:
    - no deus ex machina rescues
  beats:
    - id: first_blackout
      description: The main reactor browns out for the first time.
      trigger: "turn >= 3"
      priority: 10
      required_elements: [darkness, alarm]
      once: true
      consequence: "elara += 2, flag:blackout_seen = true"

quests:
  fix_reactor:
    meta:
      title: Heart of the Station
      description: Restore main power.
    activation:
      type: auto
      conditions:
        - type: flag
          target: blackout_seen
          value: true
    stages:
      start:
        narrative_prompt: Elara asks for help reaching the reactor core.
        exit_conditions:
          - type: location
            operator: eq
            value: docking_bay
        transitions:
          - condition: condition_0
            target: reach_core
      reach_core:
        narrative_prompt: The core room is flooded with coolant vapor.
        exit_conditions:
          - type: action
            pattern: "(repair|fix|patch)"
        transitions:
          - condition: condition_0
            target: _complete
    rewards:
      affinity:
        Elara: 10
      flags:
        reactor_fixed: true
`

func parseTestWorld(t *testing.T) *Definition {
	t.Helper()
	def, err := Parse([]byte(testWorldYAML))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	return def
}

func TestParseWorld(t *testing.T) {
	def := parseTestWorld(t)

	if def.ID != "moonfall" {
		t.Errorf("ID = %q, want moonfall", def.ID)
	}
	if len(def.Companions) != 2 {
		t.Fatalf("companions = %d, want 2", len(def.Companions))
	}

	elara := def.Companion("Elara")
	if elara == nil {
		t.Fatal("Companion(Elara) = nil")
	}
	if !elara.HasOutfit("formal") {
		t.Error("HasOutfit(formal) = false, want true")
	}
	if elara.HasOutfit("swimsuit") {
		t.Error("HasOutfit(swimsuit) = true, want false")
	}
	if elara.Relations["Mira"].JealousySensitivity != 0.6 {
		t.Errorf("jealousy = %v, want 0.6", elara.Relations["Mira"].JealousySensitivity)
	}

	// Empty wardrobe accepts anything.
	if !def.Companion("Mira").HasOutfit("anything") {
		t.Error("empty wardrobe HasOutfit = false, want true")
	}
}

func TestParseBeatsCompileTriggers(t *testing.T) {
	def := parseTestWorld(t)

	if len(def.Arc.Beats) != 1 {
		t.Fatalf("beats = %d, want 1", len(def.Arc.Beats))
	}
	beat := def.Arc.Beats[0]
	if beat.ID != "first_blackout" {
		t.Errorf("beat id = %q", beat.ID)
	}
	if !beat.Once {
		t.Error("beat.Once = false, want true")
	}
	if beat.Trigger == nil {
		t.Fatal("beat.Trigger = nil, want compiled expression")
	}
}

func TestParseQuestStages(t *testing.T) {
	def := parseTestWorld(t)

	quest := def.Quests["fix_reactor"]
	if quest == nil {
		t.Fatal("quest fix_reactor missing")
	}
	if quest.StartStage != "start" {
		t.Errorf("StartStage = %q, want start", quest.StartStage)
	}
	if quest.ActivationType != "auto" {
		t.Errorf("ActivationType = %q, want auto", quest.ActivationType)
	}

	stage := quest.Stages["reach_core"]
	if stage == nil {
		t.Fatal("stage reach_core missing")
	}
	if len(stage.ExitConditions) != 1 {
		t.Fatalf("exit conditions = %d, want 1", len(stage.ExitConditions))
	}
	cond := stage.ExitConditions[0]
	if !cond.MatchInput("I try to REPAIR the coolant line") {
		t.Error("MatchInput(repair) = false, want true")
	}
	if cond.MatchInput("I walk away") {
		t.Error("MatchInput(walk away) = true, want false")
	}
}

func TestResolveLocation(t *testing.T) {
	def := parseTestWorld(t)

	cases := []struct {
		ref  string
		want string
	}{
		{"docking_bay", "docking_bay"},
		{"Docking Bay", "docking_bay"},
		{"hangar", "docking_bay"},
		{"Observatory", "observatory"},
	}
	for _, tc := range cases {
		loc, ok := def.ResolveLocation(tc.ref)
		if !ok {
			t.Errorf("ResolveLocation(%q) not found", tc.ref)
			continue
		}
		if loc.ID != tc.want {
			t.Errorf("ResolveLocation(%q) = %s, want %s", tc.ref, loc.ID, tc.want)
		}
	}

	if _, ok := def.ResolveLocation("nowhere"); ok {
		t.Error("ResolveLocation(nowhere) found, want miss")
	}
}

func TestParseRejectsInvalidWorlds(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		code perrors.Code
	}{
		{
			name: "missing meta",
			yaml: "companions:\n  A:\n    base_prompt: x\n",
			code: perrors.CodeWorldInvalid,
		},
		{
			name: "no companions",
			yaml: "meta:\n  id: w\n  name: W\n",
			code: perrors.CodeWorldInvalid,
		},
		{
			name: "companion without base_prompt",
			yaml: "meta:\n  id: w\n  name: W\ncompanions:\n  A:\n    role: x\n",
			code: perrors.CodeWorldInvalid,
		},
		{
			name: "transition to unknown stage",
			yaml: `meta: {id: w, name: W}
companions:
  A: {base_prompt: x}
quests:
  q:
    stages:
      start:
        transitions:
          - {condition: default, target: nowhere}
`,
			code: perrors.CodeQuestUnknownStage,
		},
		{
			name: "bad beat trigger",
			yaml: `meta: {id: w, name: W}
companions:
  A: {base_prompt: x}
narrative_arc:
  beats:
    - {id: b, trigger: "turn >="}
`,
			code: perrors.CodeBeatInvalidTrigger,
		},
		{
			name: "unknown condition type",
			yaml: `meta: {id: w, name: W}
companions:
  A: {base_prompt: x}
quests:
  q:
    activation:
      conditions:
        - {type: karma, value: 3}
    stages:
      start: {}
`,
			code: perrors.CodeQuestInvalidCondition,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("Parse() error = nil, want validation failure")
			}
			if !errors.Is(err, perrors.New(tc.code, "")) {
				t.Fatalf("Parse() error = %v, want code %s", err, tc.code)
			}
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moonfall.yaml")
	if err := os.WriteFile(path, []byte(testWorldYAML), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	def, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if def.Name != "Moonfall Station" {
		t.Errorf("Name = %q", def.Name)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("Load(missing) error = nil, want not-found")
	}
}
