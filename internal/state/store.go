package state

import (
	"github.com/selune/engine/internal/world"
)

// Store wraps a WorldState and is the only mutation surface the engines
// see. It is not safe for concurrent use; the orchestrator serializes
// turns per session.
type Store struct {
	state *WorldState
}

// NewStore wraps an existing state.
func NewStore(ws *WorldState) *Store {
	return &Store{state: ws}
}

// State returns the underlying state for reading.
func (st *Store) State() *WorldState { return st.state }

// Snapshot returns a deep copy of the current state.
func (st *Store) Snapshot() *WorldState { return st.state.Clone() }

// Restore replaces the current state with a previously taken snapshot.
func (st *Store) Restore(snapshot *WorldState) { st.state = snapshot }

// AdvanceTurn increments the turn counter and returns the new value.
func (st *Store) AdvanceTurn() int {
	st.state.Turn++
	return st.state.Turn
}

func (st *Store) SetTime(t world.TimeOfDay) { st.state.Time = t }

// AdvanceTime moves to the next slot in the day cycle.
func (st *Store) AdvanceTime() world.TimeOfDay {
	st.state.Time = st.state.Time.Next()
	return st.state.Time
}

func (st *Store) SetLocation(id string) { st.state.Location = id }

// SwitchCompanion changes the active companion. Unknown companions are
// rejected.
func (st *Store) SwitchCompanion(name string) bool {
	if _, ok := st.state.Affinity[name]; !ok {
		return false
	}
	st.state.ActiveCompanion = name
	return true
}

// Affinity returns the affinity with a companion, zero when unknown.
func (st *Store) Affinity(companion string) int {
	return st.state.Affinity[companion]
}

// ChangeAffinity applies delta and clamps the result to [0,100]. The new
// value is returned. Unknown companions are created at clamp(delta).
func (st *Store) ChangeAffinity(companion string, delta int) int {
	v := st.state.Affinity[companion] + delta
	if v < AffinityMin {
		v = AffinityMin
	}
	if v > AffinityMax {
		v = AffinityMax
	}
	st.state.Affinity[companion] = v
	return v
}

// SetFlag stores an arbitrary flag value.
func (st *Store) SetFlag(key string, value any) {
	st.state.Flags[key] = value
}

// Flag returns the raw flag value.
func (st *Store) Flag(key string) (any, bool) {
	v, ok := st.state.Flags[key]
	return v, ok
}

// HasFlag reports whether the flag exists and is truthy.
func (st *Store) HasFlag(key string) bool {
	v, ok := st.state.Flags[key]
	if !ok {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != ""
	case int:
		return x != 0
	case float64:
		return x != 0
	case nil:
		return false
	}
	return true
}

// SetOutfit records a full outfit state for a companion.
func (st *Store) SetOutfit(companion string, outfit OutfitState) {
	outfit.LastUpdatedTurn = st.state.Turn
	st.state.Outfits[companion] = outfit
}

// SetOutfitStyle changes only the style, keeping the rest of the outfit
// state; the description is regenerated narratively on a later turn.
func (st *Store) SetOutfitStyle(companion, style string) {
	outfit := st.state.Outfits[companion]
	outfit.Style = style
	outfit.LastUpdatedTurn = st.state.Turn
	st.state.Outfits[companion] = outfit
}

// Outfit returns the outfit state for a companion.
func (st *Store) Outfit(companion string) OutfitState {
	return st.state.Outfits[companion]
}

// SetEmotion records a companion's current emotional state.
func (st *Store) SetEmotion(companion, emotion string) {
	st.state.Emotions[companion] = emotion
}

// StartQuest marks a quest active. Quests already active or terminal are
// rejected: a quest holds exactly one status at a time and terminal
// states are final.
func (st *Store) StartQuest(id string) bool {
	if st.state.QuestStatusOf(id) != QuestInactive {
		return false
	}
	st.state.ActiveQuests = append(st.state.ActiveQuests, id)
	return true
}

// CompleteQuest moves an active quest to completed.
func (st *Store) CompleteQuest(id string) bool {
	if !removeString(&st.state.ActiveQuests, id) {
		return false
	}
	st.state.CompletedQuests = append(st.state.CompletedQuests, id)
	return true
}

// FailQuest moves an active quest to failed.
func (st *Store) FailQuest(id string) bool {
	if !removeString(&st.state.ActiveQuests, id) {
		return false
	}
	st.state.FailedQuests = append(st.state.FailedQuests, id)
	return true
}

func removeString(list *[]string, v string) bool {
	for i, s := range *list {
		if s == v {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}
