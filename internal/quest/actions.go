package quest

import (
	"log"

	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/world"
)

// executeActions runs a batch of quest actions best-effort: a failing
// action is logged and skipped, the rest of the batch still runs.
func (e *Engine) executeActions(questID string, actions []world.Action) {
	for i := range actions {
		if ok := e.executeAction(&actions[i]); !ok {
			log.Printf("quest action skipped quest=%s action=%s", questID, actions[i].Action)
		}
	}
}

func (e *Engine) executeAction(action *world.Action) bool {
	ws := e.store.State()

	switch action.Action {
	case world.ActionSetFlag:
		if action.Key == "" {
			return false
		}
		e.store.SetFlag(action.Key, action.Value)

	case world.ActionChangeAffinity:
		companion := action.Character
		if companion == "" {
			companion = ws.ActiveCompanion
		}
		delta, ok := asFloat(action.Value)
		if !ok || companion == "" {
			return false
		}
		e.store.ChangeAffinity(companion, int(delta))

	case world.ActionSetLocation:
		if action.Target == "" {
			return false
		}
		loc, ok := e.def.ResolveLocation(action.Target)
		if !ok {
			return false
		}
		e.store.SetLocation(loc.ID)

	case world.ActionSetOutfit:
		if action.Outfit == "" {
			return false
		}
		companion := action.Character
		if companion == "" {
			companion = ws.ActiveCompanion
		}
		e.store.SetOutfitStyle(companion, action.Outfit)

	case world.ActionSetEmotion:
		companion := action.Character
		if companion == "" {
			companion = ws.ActiveCompanion
		}
		emotion, ok := action.Value.(string)
		if !ok || companion == "" || emotion == "" {
			return false
		}
		e.store.SetEmotion(companion, emotion)

	case world.ActionStartQuest:
		if action.QuestID == "" {
			return false
		}
		_, ok := e.Activate(action.QuestID)
		return ok

	case world.ActionCompleteQuest:
		if action.QuestID == "" {
			return false
		}
		inst, ok := e.instances[action.QuestID]
		if !ok || inst.Status != state.QuestActive {
			return false
		}
		return e.transition(e.def.Quests[action.QuestID], inst, world.StageComplete).Completed

	case world.ActionFailQuest:
		if action.QuestID == "" {
			return false
		}
		inst, ok := e.instances[action.QuestID]
		if !ok || inst.Status != state.QuestActive {
			return false
		}
		return e.transition(e.def.Quests[action.QuestID], inst, world.StageFail).Failed

	default:
		return false
	}

	return true
}

// rewardActions converts declared quest rewards into executable actions.
func rewardActions(rewards world.Rewards) []world.Action {
	var actions []world.Action
	for companion, delta := range rewards.Affinity {
		actions = append(actions, world.Action{
			Action:    world.ActionChangeAffinity,
			Character: companion,
			Value:     delta,
		})
	}
	for key, value := range rewards.Flags {
		actions = append(actions, world.Action{
			Action: world.ActionSetFlag,
			Key:    key,
			Value:  value,
		})
	}
	for _, questID := range rewards.UnlockQuests {
		actions = append(actions, world.Action{
			Action:  world.ActionStartQuest,
			QuestID: questID,
		})
	}
	return actions
}
