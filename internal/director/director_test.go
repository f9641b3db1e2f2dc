package director

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/selune/engine/internal/expr"
	"github.com/selune/engine/internal/generation"
	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/world"
)

func mustExpr(t *testing.T, source string) *expr.Expr {
	t.Helper()
	e, err := expr.Compile(source)
	if err != nil {
		t.Fatalf("Compile(%q): %v", source, err)
	}
	return e
}

func testDefinition() *world.Definition {
	return &world.Definition{
		ID:   "moonfall",
		Name: "Moonfall Station",
		Companions: map[string]*world.Companion{
			"Elara": {Name: "Elara", BasePrompt: "engineer"},
			"Mira":  {Name: "Mira", BasePrompt: "botanist"},
		},
		Locations: map[string]*world.Location{
			"docking_bay": {ID: "docking_bay", Name: "Docking Bay"},
		},
	}
}

func testStore(t *testing.T, turn int) *state.Store {
	t.Helper()
	ws := state.NewWorldState("s1", testDefinition(), "Elara")
	ws.Turn = turn
	return state.NewStore(ws)
}

func beat(t *testing.T, id, trigger string, priority int, once bool) world.StoryBeat {
	t.Helper()
	return world.StoryBeat{
		ID:            id,
		Description:   "Something happens at " + id,
		TriggerSource: trigger,
		Trigger:       mustExpr(t, trigger),
		Priority:      priority,
		Once:          once,
	}
}

func TestSelectBeatTriggerAndPriority(t *testing.T) {
	arc := world.NarrativeArc{Beats: []world.StoryBeat{
		beat(t, "late", "turn >= 10", 5, true),
		beat(t, "urgent", "turn >= 5", 1, true),
		beat(t, "ambient", "turn >= 5", 1, true),
	}}
	d := New(arc)

	if got, _ := d.SelectBeat(testStore(t, 3).State()); got != nil {
		t.Fatalf("beat at turn 3 = %q, want none", got.ID)
	}

	got, instruction := d.SelectBeat(testStore(t, 6).State())
	if got == nil || got.ID != "urgent" {
		t.Fatalf("beat at turn 6 = %v, want urgent", got)
	}
	if instruction == "" {
		t.Fatal("empty instruction for selected beat")
	}

	// Equal priority falls back to declaration order.
	d2 := New(world.NarrativeArc{Beats: []world.StoryBeat{
		beat(t, "first", "turn >= 1", 2, true),
		beat(t, "second", "turn >= 1", 2, true),
	}})
	if got, _ := d2.SelectBeat(testStore(t, 1).State()); got.ID != "first" {
		t.Fatalf("tie-break pick = %q, want first", got.ID)
	}
}

func TestSelectBeatOnceSemantics(t *testing.T) {
	once := beat(t, "reveal", "turn >= 1", 1, true)
	repeat := beat(t, "patrol", "turn >= 1", 9, false)
	d := New(world.NarrativeArc{Beats: []world.StoryBeat{once, repeat}})
	ws := testStore(t, 2).State()

	got, _ := d.SelectBeat(ws)
	if got.ID != "reveal" {
		t.Fatalf("first pick = %q, want reveal", got.ID)
	}
	d.Commit(got, "the reveal scene", 1.0, 2)

	got, _ = d.SelectBeat(ws)
	if got == nil || got.ID != "patrol" {
		t.Fatalf("second pick = %v, want patrol", got)
	}
	d.Commit(got, "a patrol scene", 1.0, 3)

	// Repeatable beats keep firing.
	if got, _ = d.SelectBeat(ws); got == nil || got.ID != "patrol" {
		t.Fatalf("third pick = %v, want patrol", got)
	}
}

func TestSelectBeatSkipsTriggerErrors(t *testing.T) {
	arc := world.NarrativeArc{Beats: []world.StoryBeat{
		beat(t, "broken", "location > 3", 1, true),
		beat(t, "fallback", "turn >= 1", 5, true),
	}}
	d := New(arc)
	got, _ := d.SelectBeat(testStore(t, 1).State())
	if got == nil || got.ID != "fallback" {
		t.Fatalf("pick = %v, want fallback", got)
	}
}

func TestSelectBeatAffinityEnv(t *testing.T) {
	arc := world.NarrativeArc{Beats: []world.StoryBeat{
		beat(t, "warm", "elara_affinity >= 30 and location == 'docking_bay'", 1, true),
	}}
	d := New(arc)
	st := testStore(t, 1)
	if got, _ := d.SelectBeat(st.State()); got != nil {
		t.Fatalf("beat at affinity 0 = %q, want none", got.ID)
	}
	st.ChangeAffinity("Elara", 40)
	if got, _ := d.SelectBeat(st.State()); got == nil || got.ID != "warm" {
		t.Fatalf("beat at affinity 40 = %v, want warm", got)
	}
}

func TestInstructionContent(t *testing.T) {
	b := beat(t, "blackout", "turn >= 1", 1, true)
	b.Description = "The station lights fail"
	b.Tone = "tense"
	b.RequiredElements = []string{"darkness", "alarm"}
	d := New(world.NarrativeArc{Beats: []world.StoryBeat{b}})

	_, instruction := d.SelectBeat(testStore(t, 1).State())
	for _, want := range []string{
		"The station lights fail",
		"REQUIRED TONE: tense",
		"- darkness",
		"- alarm",
		"Turn: 1",
		"Active companion: Elara",
	} {
		if !strings.Contains(instruction, want) {
			t.Fatalf("instruction missing %q:\n%s", want, instruction)
		}
	}
}

func TestValidateBaseline(t *testing.T) {
	d := New(world.NarrativeArc{})
	b := beat(t, "blackout", "", 1, true)
	b.RequiredElements = []string{"Darkness", "alarm"}

	success, quality, missing := d.Validate(context.Background(), &b, "The darkness swallowed the corridor.")
	if success {
		t.Fatal("success = true with missing element")
	}
	if quality != 0.5 {
		t.Fatalf("quality = %v, want 0.5", quality)
	}
	if len(missing) != 1 || missing[0] != "alarm" {
		t.Fatalf("missing = %v, want [alarm]", missing)
	}

	success, quality, missing = d.Validate(context.Background(), &b, "Darkness fell and the ALARM howled.")
	if !success || quality != 1.0 || len(missing) != 0 {
		t.Fatalf("full match = (%t, %v, %v), want (true, 1.0, [])", success, quality, missing)
	}
}

type stubJudge struct {
	text string
	err  error
}

func (j *stubJudge) Generate(_ context.Context, req generation.Request) (*generation.Response, error) {
	if !req.JSONMode {
		return nil, errors.New("judge must request JSON")
	}
	if j.err != nil {
		return nil, j.err
	}
	return &generation.Response{Text: j.text, Provider: "stub"}, nil
}

func TestValidateJudgeOverride(t *testing.T) {
	b := beat(t, "blackout", "", 1, true)
	b.RequiredElements = []string{"alarm"}

	d := New(world.NarrativeArc{})
	d.SetJudge(&stubJudge{text: `{"success": true, "quality": 0.9, "reason": "event occurred"}`})

	success, quality, missing := d.Validate(context.Background(), &b, "the siren blared")
	if !success {
		t.Fatal("judge success not honored")
	}
	if quality != 0.9 {
		t.Fatalf("quality = %v, want 0.9", quality)
	}
	if len(missing) != 1 {
		t.Fatalf("missing = %v, want the element check preserved", missing)
	}
}

func TestValidateJudgeFailureFallsBack(t *testing.T) {
	b := beat(t, "blackout", "", 1, true)
	b.RequiredElements = []string{"alarm"}

	d := New(world.NarrativeArc{})
	d.SetJudge(&stubJudge{err: errors.New("network down")})
	success, quality, _ := d.Validate(context.Background(), &b, "nothing relevant")
	if success || quality != 0.0 {
		t.Fatalf("fallback = (%t, %v), want (false, 0.0)", success, quality)
	}

	d.SetJudge(&stubJudge{text: "not json at all"})
	success, quality, _ = d.Validate(context.Background(), &b, "the alarm rang")
	if !success || quality != 1.0 {
		t.Fatalf("unreadable verdict fallback = (%t, %v), want (true, 1.0)", success, quality)
	}
}

func TestValidateJudgeQualityDefaultsToBaseline(t *testing.T) {
	b := beat(t, "blackout", "", 1, true)
	b.RequiredElements = []string{"alarm", "darkness"}

	d := New(world.NarrativeArc{})
	d.SetJudge(&stubJudge{text: `{"success": true, "reason": "ok"}`})
	_, quality, _ := d.Validate(context.Background(), &b, "the alarm rang")
	if quality != 0.5 {
		t.Fatalf("quality = %v, want baseline 0.5", quality)
	}
}

func TestApplyConsequences(t *testing.T) {
	b := beat(t, "gift", "", 1, true)
	b.Consequence = "Elara += 10, flag:gift_given = true, Zed += 5, gibberish here"

	d := New(world.NarrativeArc{})
	st := testStore(t, 1)
	d.ApplyConsequences(&b, st)

	if got := st.Affinity("Elara"); got != 10 {
		t.Fatalf("Elara affinity = %d, want 10", got)
	}
	if !st.HasFlag("gift_given") {
		t.Fatal("gift_given flag not set")
	}
	if _, known := st.State().Affinity["Zed"]; known {
		t.Fatal("unknown companion created by consequence")
	}

	// Negative deltas clamp at zero.
	drain := beat(t, "quarrel", "", 1, true)
	drain.Consequence = "Elara -= 50"
	d.ApplyConsequences(&drain, st)
	if got := st.Affinity("Elara"); got != 0 {
		t.Fatalf("Elara affinity after drain = %d, want 0", got)
	}
}

func TestNarrativeContext(t *testing.T) {
	d := New(world.NarrativeArc{})
	if got := d.NarrativeContext(); got != "" {
		t.Fatalf("context without premise = %q, want empty", got)
	}

	arc := world.NarrativeArc{
		Premise:    "A station on the edge of collapse",
		Themes:     []string{"isolation", "trust"},
		HardLimits: []string{"no time travel"},
	}
	d = New(arc)
	for i, id := range []string{"a", "b", "c", "d"} {
		b := beat(t, id, "", 1, true)
		d.Commit(&b, "scene", 1.0, i+1)
	}

	got := d.NarrativeContext()
	for _, want := range []string{
		"A station on the edge of collapse",
		"- isolation",
		"x no time travel",
		"* b", "* c", "* d",
	} {
		if !strings.Contains(got, want) {
			t.Fatalf("context missing %q:\n%s", want, got)
		}
	}
	if strings.Contains(got, "* a") {
		t.Fatalf("context lists more than the last three beats:\n%s", got)
	}
}

func TestUpcomingBeats(t *testing.T) {
	arc := world.NarrativeArc{Beats: []world.StoryBeat{
		beat(t, "soon", "turn >= 5", 1, true),
		beat(t, "far", "turn >= 20", 1, true),
		beat(t, "done", "turn >= 5", 1, true),
	}}
	d := New(arc)
	done := arc.Beats[2]
	d.Commit(&done, "scene", 1.0, 5)

	upcoming := d.UpcomingBeats(testStore(t, 3).State())
	if len(upcoming) != 1 || upcoming[0].ID != "soon" {
		t.Fatalf("upcoming = %v, want [soon]", upcoming)
	}
}

func TestRestoreRoundTrip(t *testing.T) {
	arc := world.NarrativeArc{Beats: []world.StoryBeat{
		beat(t, "reveal", "turn >= 1", 1, true),
	}}
	d := New(arc)
	b := arc.Beats[0]
	d.Commit(&b, strings.Repeat("x", 600), 0.8, 4)

	hist := d.History()
	if len(hist) != 1 {
		t.Fatalf("len(history) = %d, want 1", len(hist))
	}
	if len(hist[0].Snapshot) != 500 {
		t.Fatalf("snapshot length = %d, want 500", len(hist[0].Snapshot))
	}

	restored := New(arc)
	restored.Restore(d.History(), d.CompletedBeats())
	if got, _ := restored.SelectBeat(testStore(t, 2).State()); got != nil {
		t.Fatalf("restored director re-fired %q", got.ID)
	}
	if got := restored.CompletedBeats(); len(got) != 1 || got[0] != "reveal" {
		t.Fatalf("restored completed = %v", got)
	}
}
