// Package state owns the mutable per-session world state. All mutation
// goes through Store methods so clamps and quest status exclusivity hold
// everywhere.
package state

import (
	"github.com/selune/engine/internal/world"
)

// Affinity bounds.
const (
	AffinityMin = 0
	AffinityMax = 100
)

// QuestStatus is the lifecycle state of a quest instance.
type QuestStatus string

const (
	QuestInactive  QuestStatus = "inactive"
	QuestActive    QuestStatus = "active"
	QuestCompleted QuestStatus = "completed"
	QuestFailed    QuestStatus = "failed"
)

// OutfitState describes what a companion is currently wearing.
type OutfitState struct {
	Style           string            `json:"style"`
	Description     string            `json:"description"`
	Components      map[string]string `json:"components,omitempty"`
	LastUpdatedTurn int               `json:"last_updated_turn"`
	IsSpecial       bool              `json:"is_special,omitempty"`
}

// WorldState is the full mutable state of one play session.
type WorldState struct {
	SessionID       string
	WorldID         string
	Turn            int
	Time            world.TimeOfDay
	Location        string
	ActiveCompanion string

	Affinity map[string]int
	Flags    map[string]any
	Outfits  map[string]OutfitState
	Emotions map[string]string

	ActiveQuests    []string
	CompletedQuests []string
	FailedQuests    []string
}

// NewWorldState creates the turn-zero state for a fresh session. Affinity
// starts at zero for every companion in the cast.
func NewWorldState(sessionID string, def *world.Definition, companion string) *WorldState {
	affinity := make(map[string]int, len(def.Companions))
	outfits := make(map[string]OutfitState, len(def.Companions))
	for name, comp := range def.Companions {
		affinity[name] = 0
		outfits[name] = OutfitState{Style: comp.DefaultOutfit}
	}

	location := ""
	for id := range def.Locations {
		if location == "" || id < location {
			location = id
		}
	}

	return &WorldState{
		SessionID:       sessionID,
		WorldID:         def.ID,
		Turn:            0,
		Time:            world.Morning,
		Location:        location,
		ActiveCompanion: companion,
		Affinity:        affinity,
		Flags:           make(map[string]any),
		Outfits:         outfits,
		Emotions:        make(map[string]string),
	}
}

// Clone deep-copies the state. Used for per-turn snapshots.
func (s *WorldState) Clone() *WorldState {
	c := *s
	c.Affinity = make(map[string]int, len(s.Affinity))
	for k, v := range s.Affinity {
		c.Affinity[k] = v
	}
	c.Flags = make(map[string]any, len(s.Flags))
	for k, v := range s.Flags {
		c.Flags[k] = v
	}
	c.Outfits = make(map[string]OutfitState, len(s.Outfits))
	for k, v := range s.Outfits {
		if v.Components != nil {
			comps := make(map[string]string, len(v.Components))
			for ck, cv := range v.Components {
				comps[ck] = cv
			}
			v.Components = comps
		}
		c.Outfits[k] = v
	}
	c.Emotions = make(map[string]string, len(s.Emotions))
	for k, v := range s.Emotions {
		c.Emotions[k] = v
	}
	c.ActiveQuests = append([]string(nil), s.ActiveQuests...)
	c.CompletedQuests = append([]string(nil), s.CompletedQuests...)
	c.FailedQuests = append([]string(nil), s.FailedQuests...)
	return &c
}

// QuestStatusOf returns the lifecycle state of quest id.
func (s *WorldState) QuestStatusOf(id string) QuestStatus {
	for _, q := range s.ActiveQuests {
		if q == id {
			return QuestActive
		}
	}
	for _, q := range s.CompletedQuests {
		if q == id {
			return QuestCompleted
		}
	}
	for _, q := range s.FailedQuests {
		if q == id {
			return QuestFailed
		}
	}
	return QuestInactive
}
