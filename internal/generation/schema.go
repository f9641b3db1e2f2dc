package generation

import "encoding/json"

// Updates is the state-delta block a provider may propose alongside the
// narrative text. Every field is a proposal; the orchestrator validates
// and clamps before anything is applied.
type Updates struct {
	AffinityChange map[string]int `json:"affinity_change,omitempty"`
	CurrentOutfit  string         `json:"current_outfit,omitempty"`
	Location       string         `json:"location,omitempty"`
	TimeOfDay      string         `json:"time_of_day,omitempty"`
	SetFlags       map[string]any `json:"set_flags,omitempty"`
	NPCEmotion     string         `json:"npc_emotion,omitempty"`
	NewFact        string         `json:"new_fact,omitempty"`
}

// Proposal is the structured turn response.
type Proposal struct {
	Text              string   `json:"text"`
	VisualDescription string   `json:"visual_description"`
	Tags              []string `json:"tags"`
	BodyFocus         string   `json:"body_focus,omitempty"`
	ApproachUsed      string   `json:"approach_used,omitempty"`
	Composition       string   `json:"composition,omitempty"`
	Updates           Updates  `json:"updates"`
}

// ParseProposal decodes a provider response into the turn schema.
// Markdown fences are stripped first. Malformed JSON is not an error:
// the raw text becomes the narrative and the updates block stays empty.
func ParseProposal(raw string) *Proposal {
	cleaned := StripFences(raw)

	var p Proposal
	if err := json.Unmarshal([]byte(cleaned), &p); err != nil || p.Text == "" {
		return &Proposal{Text: cleaned}
	}
	return &p
}
