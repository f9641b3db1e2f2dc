package quest

import (
	"testing"

	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/world"
)

const questWorldYAML = `
meta: {id: w, name: W}
companions:
  Elara:
    base_prompt: engineer
  Mira:
    base_prompt: pilot
locations:
  atrium: {name: Atrium}
  reactor: {name: Reactor Room}
quests:
  patience:
    meta: {title: A Waiting Game}
    activation:
      type: auto
      conditions:
        - {type: turn_count, operator: gte, value: 1}
    stages:
      start:
        narrative_prompt: Wait for the right moment.
        exit_conditions:
          - {type: turn_count, operator: gte, value: 5}
        transitions:
          - {condition: condition_0, target: ready}
      ready:
        narrative_prompt: The moment has come.
        exit_conditions:
          - {type: action, pattern: "act now"}
        transitions:
          - {condition: condition_0, target: _complete}
    rewards:
      affinity: {Elara: 10}
      flags: {patience_rewarded: true}
  followup:
    meta: {title: Afterglow}
    activation: {type: manual}
    requires: [patience]
    stages:
      start: {narrative_prompt: It begins.}
  sabotage:
    meta: {title: Sabotage}
    activation:
      type: trigger
      trigger_event: blackout
    stages:
      start:
        narrative_prompt: Find the saboteur.
        exit_conditions:
          - {type: location, value: reactor}
          - {type: affinity, target: Mira, operator: gte, value: 40}
        transitions:
          - {condition: condition_1, target: _fail}
          - {condition: default, target: start}
`

func questFixture(t *testing.T) (*Engine, *state.Store) {
	t.Helper()
	def, err := world.Parse([]byte(questWorldYAML))
	if err != nil {
		t.Fatalf("parse world: %v", err)
	}
	ws := state.NewWorldState("s1", def, "Elara")
	st := state.NewStore(ws)
	return NewEngine(def, st), st
}

func TestCheckActivationsAuto(t *testing.T) {
	eng, st := questFixture(t)

	if got := eng.CheckActivations(""); len(got) != 0 {
		t.Fatalf("activations at turn 0 = %v, want none", got)
	}

	st.AdvanceTurn()
	got := eng.CheckActivations("")
	if len(got) != 1 || got[0] != "patience" {
		t.Fatalf("activations = %v, want [patience]", got)
	}
}

func TestCheckActivationsTrigger(t *testing.T) {
	eng, st := questFixture(t)

	if got := eng.CheckActivations(""); len(got) != 0 {
		t.Fatalf("activations = %v, want none", got)
	}

	st.SetFlag("trigger_blackout", true)
	got := eng.CheckActivations("")
	found := false
	for _, id := range got {
		if id == "sabotage" {
			found = true
		}
	}
	if !found {
		t.Fatalf("activations = %v, want sabotage included", got)
	}
}

func TestActivateRespectsPrerequisites(t *testing.T) {
	eng, _ := questFixture(t)

	if _, ok := eng.Activate("followup"); ok {
		t.Fatal("Activate(followup) = true before prerequisite completed")
	}
}

func TestStageTransitionOnTurnThreshold(t *testing.T) {
	eng, st := questFixture(t)

	st.AdvanceTurn()
	res, ok := eng.Activate("patience")
	if !ok {
		t.Fatal("Activate(patience) = false")
	}
	if res.NarrativePrompt != "Wait for the right moment." {
		t.Errorf("prompt = %q", res.NarrativePrompt)
	}

	// Turns 2..4: threshold not reached, no transition at all.
	for turn := 2; turn <= 4; turn++ {
		st.AdvanceTurn()
		if _, changed := eng.Advance("patience", "anything"); changed {
			t.Fatalf("Advance at turn %d changed stage, want no-op", turn)
		}
	}

	st.AdvanceTurn() // turn 5
	upd, changed := eng.Advance("patience", "anything")
	if !changed {
		t.Fatal("Advance at turn 5 did not transition")
	}
	if upd.OldStage != "start" || upd.NewStage != "ready" {
		t.Fatalf("transition = %s -> %s, want start -> ready", upd.OldStage, upd.NewStage)
	}
	if !st.HasFlag("event_quest_patience_stage_ready") {
		t.Error("stage event flag not set")
	}
}

func TestCompletionRunsRewards(t *testing.T) {
	eng, st := questFixture(t)

	st.AdvanceTurn()
	eng.Activate("patience")
	for turn := 2; turn <= 5; turn++ {
		st.AdvanceTurn()
	}
	eng.Advance("patience", "waiting")

	upd, changed := eng.Advance("patience", "I act now, decisively")
	if !changed || !upd.Completed {
		t.Fatalf("Advance = (%+v, %v), want completion", upd, changed)
	}

	if got := st.Affinity("Elara"); got != 10 {
		t.Errorf("Elara affinity = %d, want 10 from rewards", got)
	}
	if !st.HasFlag("patience_rewarded") {
		t.Error("reward flag not set")
	}
	if !st.HasFlag("event_quest_patience_completed") {
		t.Error("completion event flag not set")
	}
	if st.State().QuestStatusOf("patience") != state.QuestCompleted {
		t.Errorf("status = %s, want completed", st.State().QuestStatusOf("patience"))
	}

	inst, _ := eng.Instance("patience")
	if inst.Status != state.QuestCompleted {
		t.Errorf("instance status = %s", inst.Status)
	}

	// Prerequisite now satisfied.
	if _, ok := eng.Activate("followup"); !ok {
		t.Fatal("Activate(followup) = false after prerequisite completed")
	}

	// Terminal instances never advance again.
	if _, changed := eng.Advance("patience", "act now"); changed {
		t.Fatal("Advance on completed quest transitioned")
	}
}

func TestFirstSatisfiedConditionWins(t *testing.T) {
	eng, st := questFixture(t)

	st.SetFlag("trigger_blackout", true)
	if _, ok := eng.Activate("sabotage"); !ok {
		t.Fatal("Activate(sabotage) = false")
	}

	// Both conditions could hold; index 0 (location) must win, and since
	// no transition is labeled condition_0, nothing happens.
	st.SetLocation("reactor")
	st.ChangeAffinity("Mira", 50)
	if _, changed := eng.Advance("sabotage", ""); changed {
		t.Fatal("Advance transitioned on condition_0, which has no transition")
	}

	// Only the affinity condition (index 1) holds now: quest fails.
	st.SetLocation("atrium")
	upd, changed := eng.Advance("sabotage", "")
	if !changed || !upd.Failed {
		t.Fatalf("Advance = (%+v, %v), want failure via condition_1", upd, changed)
	}
	if st.State().QuestStatusOf("sabotage") != state.QuestFailed {
		t.Errorf("status = %s, want failed", st.State().QuestStatusOf("sabotage"))
	}
}

func TestContextSkipsHiddenAndInactive(t *testing.T) {
	eng, st := questFixture(t)

	if got := eng.Context(); got != "" {
		t.Fatalf("Context() = %q, want empty", got)
	}

	st.AdvanceTurn()
	eng.Activate("patience")
	got := eng.Context()
	if got != `Quest "A Waiting Game": Wait for the right moment.` {
		t.Errorf("Context() = %q", got)
	}
}
