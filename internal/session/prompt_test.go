package session

import (
	"strings"
	"testing"

	"github.com/selune/engine/internal/state"
)

func TestBuildSystemSections(t *testing.T) {
	def := testDefinition(t)
	ws := state.NewWorldState("s1", def, "Elara")
	pb := NewPromptBuilder(def)

	prompt := pb.BuildSystem(ws, Contexts{
		Personality: "=== IMPRESSION OF PLAYER ===\nTrust: 0 (Neutral)",
		Quests:      "=== ACTIVE QUESTS ===\nQuest \"First Shift\": help out",
		Memory:      "=== IMPORTANT MEMORY ===\n(No significant memories yet)\n=== END MEMORY ===",
	})

	for _, want := range []string{
		"=== MOONFALL STATION ===",
		"Genre: sci-fi drama",
		"A mining station in decaying orbit",
		"Name: Elara",
		"VISUAL IDENTITY",
		"tall woman, silver hair",
		"Available outfits: formal, jumpsuit",
		"Dialogue tone: guarded",
		"Location: Docking Bay — Cavernous and cold.",
		"Time: morning",
		"Turn: 0",
		"Current outfit: jumpsuit",
		"=== IMPRESSION OF PLAYER ===",
		"=== ACTIVE QUESTS ===",
		"=== IMPORTANT MEMORY ===",
		"=== GAMEPLAY RULES ===",
		`"visual_description"`,
		"=== END INSTRUCTIONS ===",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q", want)
		}
	}

	if strings.Contains(prompt, "MANDATORY STORY BEAT") {
		t.Error("empty beat context rendered a beat block")
	}
}

func TestBuildSystemToneFollowsAffinity(t *testing.T) {
	def := testDefinition(t)
	ws := state.NewWorldState("s1", def, "Elara")
	ws.Affinity["Elara"] = 45
	pb := NewPromptBuilder(def)

	prompt := pb.BuildSystem(ws, Contexts{})
	if !strings.Contains(prompt, "Dialogue tone: warm") {
		t.Error("affinity 45 did not select the warm tier")
	}
	if !strings.Contains(prompt, "Current affinity: 45/100") {
		t.Error("affinity value missing from companion context")
	}
}

func TestToneForAffinity(t *testing.T) {
	def := testDefinition(t)
	companion := def.Companion("Elara")

	tests := []struct {
		affinity int
		want     string
	}{
		{0, "guarded"},
		{29, "guarded"},
		{30, "warm"},
		{100, "warm"},
	}
	for _, tt := range tests {
		if got := toneForAffinity(companion, tt.affinity); got != tt.want {
			t.Errorf("toneForAffinity(%d) = %q, want %q", tt.affinity, got, tt.want)
		}
	}
}

func TestBuildIntro(t *testing.T) {
	def := testDefinition(t)
	ws := state.NewWorldState("s1", def, "Elara")
	prompt := NewPromptBuilder(def).BuildIntro(ws)

	for _, want := range []string{
		"=== MOONFALL STATION — OPENING SCENE ===",
		"=== MAIN CHARACTER ===",
		"Name: Elara",
		"=== STARTING POINT ===",
		"Location: Docking Bay",
		"=== OUTPUT FORMAT (JSON, STRICT) ===",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("intro prompt missing %q", want)
		}
	}
}
