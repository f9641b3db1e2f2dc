package state

import (
	"testing"

	"github.com/selune/engine/internal/world"
)

func testStore() *Store {
	ws := &WorldState{
		SessionID:       "s1",
		WorldID:         "w1",
		Time:            world.Morning,
		Location:        "atrium",
		ActiveCompanion: "Elara",
		Affinity:        map[string]int{"Elara": 50, "Mira": 10},
		Flags:           map[string]any{},
		Outfits:         map[string]OutfitState{"Elara": {Style: "casual"}},
		Emotions:        map[string]string{},
	}
	return NewStore(ws)
}

func TestChangeAffinityClamps(t *testing.T) {
	st := testStore()

	cases := []struct {
		delta int
		want  int
	}{
		{30, 80},
		{50, 100},
		{-250, 0},
		{7, 7},
	}
	for _, tc := range cases {
		got := st.ChangeAffinity("Elara", tc.delta)
		if got != tc.want {
			t.Errorf("ChangeAffinity(%d) = %d, want %d", tc.delta, got, tc.want)
		}
	}
}

func TestQuestStatusIsExclusive(t *testing.T) {
	st := testStore()

	if !st.StartQuest("q1") {
		t.Fatal("StartQuest(q1) = false, want true")
	}
	if st.StartQuest("q1") {
		t.Fatal("second StartQuest(q1) = true, want false")
	}
	if got := st.State().QuestStatusOf("q1"); got != QuestActive {
		t.Fatalf("status = %s, want active", got)
	}

	if !st.CompleteQuest("q1") {
		t.Fatal("CompleteQuest(q1) = false, want true")
	}
	if got := st.State().QuestStatusOf("q1"); got != QuestCompleted {
		t.Fatalf("status = %s, want completed", got)
	}

	// Terminal states are final.
	if st.StartQuest("q1") {
		t.Fatal("StartQuest on completed quest = true, want false")
	}
	if st.FailQuest("q1") {
		t.Fatal("FailQuest on completed quest = true, want false")
	}

	if st.CompleteQuest("never_started") {
		t.Fatal("CompleteQuest on inactive quest = true, want false")
	}
}

func TestSnapshotRestore(t *testing.T) {
	st := testStore()
	snap := st.Snapshot()

	st.ChangeAffinity("Elara", 20)
	st.SetFlag("met_rival", true)
	st.StartQuest("q1")
	st.AdvanceTurn()
	st.SetOutfitStyle("Elara", "formal")

	st.Restore(snap)

	ws := st.State()
	if ws.Affinity["Elara"] != 50 {
		t.Errorf("affinity after restore = %d, want 50", ws.Affinity["Elara"])
	}
	if st.HasFlag("met_rival") {
		t.Error("flag survived restore")
	}
	if ws.QuestStatusOf("q1") != QuestInactive {
		t.Error("quest survived restore")
	}
	if ws.Turn != 0 {
		t.Errorf("turn after restore = %d, want 0", ws.Turn)
	}
	if ws.Outfits["Elara"].Style != "casual" {
		t.Errorf("outfit = %q, want casual", ws.Outfits["Elara"].Style)
	}
}

func TestSnapshotIsIndependent(t *testing.T) {
	st := testStore()
	snap := st.Snapshot()

	st.ChangeAffinity("Mira", 40)
	if snap.Affinity["Mira"] != 10 {
		t.Errorf("snapshot affinity mutated to %d", snap.Affinity["Mira"])
	}
}

func TestAdvanceTimeCycles(t *testing.T) {
	st := testStore()

	want := []world.TimeOfDay{world.Afternoon, world.Evening, world.Night, world.Morning}
	for _, w := range want {
		if got := st.AdvanceTime(); got != w {
			t.Fatalf("AdvanceTime() = %s, want %s", got, w)
		}
	}
}

func TestSwitchCompanion(t *testing.T) {
	st := testStore()

	if st.SwitchCompanion("Nobody") {
		t.Fatal("SwitchCompanion(Nobody) = true, want false")
	}
	if !st.SwitchCompanion("Mira") {
		t.Fatal("SwitchCompanion(Mira) = false, want true")
	}
	if st.State().ActiveCompanion != "Mira" {
		t.Errorf("ActiveCompanion = %q", st.State().ActiveCompanion)
	}
}

func TestHasFlagTruthiness(t *testing.T) {
	st := testStore()
	st.SetFlag("b", true)
	st.SetFlag("bf", false)
	st.SetFlag("s", "yes")
	st.SetFlag("se", "")
	st.SetFlag("n", 3)

	cases := []struct {
		key  string
		want bool
	}{
		{"b", true}, {"bf", false}, {"s", true}, {"se", false}, {"n", true}, {"missing", false},
	}
	for _, tc := range cases {
		if got := st.HasFlag(tc.key); got != tc.want {
			t.Errorf("HasFlag(%s) = %v, want %v", tc.key, got, tc.want)
		}
	}
}

func TestNewWorldStateInitializesCast(t *testing.T) {
	def, err := world.Parse([]byte(`
meta: {id: w, name: W}
companions:
  A:
    base_prompt: x
    default_outfit: robe
  B:
    base_prompt: y
locations:
  atrium: {name: Atrium}
`))
	if err != nil {
		t.Fatalf("parse world: %v", err)
	}

	ws := NewWorldState("s1", def, "A")
	if ws.Affinity["A"] != 0 || ws.Affinity["B"] != 0 {
		t.Errorf("affinity = %v, want zeros", ws.Affinity)
	}
	if ws.Outfits["A"].Style != "robe" {
		t.Errorf("outfit A = %q, want robe", ws.Outfits["A"].Style)
	}
	if ws.Outfits["B"].Style != "default" {
		t.Errorf("outfit B = %q, want default", ws.Outfits["B"].Style)
	}
	if ws.Location != "atrium" {
		t.Errorf("location = %q, want atrium", ws.Location)
	}
	if ws.Turn != 0 {
		t.Errorf("turn = %d, want 0", ws.Turn)
	}
}
