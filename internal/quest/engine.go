// Package quest runs the declarative quest state machines: activation
// checks, stage transitions and best-effort action execution.
package quest

import (
	"fmt"
	"log"
	"sort"

	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/world"
)

// Instance is the runtime state of one quest in a session. Once the
// status is completed or failed the instance never changes again.
type Instance struct {
	QuestID       string
	Status        state.QuestStatus
	StageID       string
	StartedTurn   int
	CompletedTurn int
}

// ActivationResult reports a quest activation to the orchestrator.
type ActivationResult struct {
	QuestID         string
	Title           string
	NarrativePrompt string
	Hidden          bool
}

// UpdateResult reports a stage transition.
type UpdateResult struct {
	QuestID         string
	OldStage        string
	NewStage        string
	Completed       bool
	Failed          bool
	NarrativePrompt string
}

// Engine manages quest lifecycle for one session.
type Engine struct {
	def       *world.Definition
	store     *state.Store
	instances map[string]*Instance
}

// NewEngine creates a quest engine over the world definition and state
// store.
func NewEngine(def *world.Definition, store *state.Store) *Engine {
	return &Engine{
		def:       def,
		store:     store,
		instances: make(map[string]*Instance),
	}
}

// LoadInstances replaces the runtime instances with a persisted or
// snapshotted set.
func (e *Engine) LoadInstances(instances []*Instance) {
	e.instances = make(map[string]*Instance, len(instances))
	for _, inst := range instances {
		e.instances[inst.QuestID] = inst
	}
}

// Instances returns all quest instances for persistence.
func (e *Engine) Instances() []*Instance {
	out := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		out = append(out, inst)
	}
	return out
}

// Instance returns the runtime instance for a quest id.
func (e *Engine) Instance(id string) (*Instance, bool) {
	inst, ok := e.instances[id]
	return inst, ok
}

// CheckActivations returns quests that should activate this turn:
// auto quests whose activation conditions all hold, and trigger quests
// whose trigger flag is set. Prerequisites are enforced at Activate.
func (e *Engine) CheckActivations(input string) []string {
	var activated []string
	for _, id := range sortedQuestIDs(e.def.Quests) {
		quest := e.def.Quests[id]
		if inst, ok := e.instances[id]; ok && inst.Status != state.QuestInactive {
			continue
		}

		switch quest.ActivationType {
		case "auto":
			if e.allConditionsHold(quest.ActivationConditions, input) {
				activated = append(activated, id)
			}
		case "trigger":
			if quest.TriggerEvent != "" && e.store.HasFlag("trigger_"+quest.TriggerEvent) {
				activated = append(activated, id)
			}
		}
	}
	return activated
}

// Activate starts a quest at its declared start stage and runs the
// stage's on_enter actions. Activation is silently refused when a
// prerequisite quest has not completed; the check reruns next turn.
func (e *Engine) Activate(questID string) (*ActivationResult, bool) {
	quest, ok := e.def.Quests[questID]
	if !ok {
		return nil, false
	}
	for _, req := range quest.Requires {
		inst, ok := e.instances[req]
		if !ok || inst.Status != state.QuestCompleted {
			return nil, false
		}
	}

	ws := e.store.State()
	inst := &Instance{
		QuestID:     questID,
		Status:      state.QuestActive,
		StageID:     quest.StartStage,
		StartedTurn: ws.Turn,
	}
	e.instances[questID] = inst
	e.store.StartQuest(questID)

	prompt := ""
	if stage := quest.Stages[quest.StartStage]; stage != nil {
		e.executeActions(questID, stage.OnEnter)
		prompt = stage.NarrativePrompt
	}

	log.Printf("quest activated quest=%s stage=%s turn=%d", questID, inst.StageID, ws.Turn)

	return &ActivationResult{
		QuestID:         questID,
		Title:           quest.Title,
		NarrativePrompt: prompt,
		Hidden:          quest.Hidden,
	}, true
}

// Advance evaluates the active quest's current stage against the player
// input. Exit conditions are checked in declaration order; the first
// satisfied index selects the transition labeled "condition_<i>", or
// "default" when none matched. No matching transition means no mutation.
func (e *Engine) Advance(questID, input string) (*UpdateResult, bool) {
	inst, ok := e.instances[questID]
	if !ok || inst.Status != state.QuestActive {
		return nil, false
	}
	quest, ok := e.def.Quests[questID]
	if !ok {
		return nil, false
	}
	stage, ok := quest.Stages[inst.StageID]
	if !ok {
		return nil, false
	}

	matchedIdx := -1
	for i := range stage.ExitConditions {
		if e.evaluate(&stage.ExitConditions[i], input) {
			matchedIdx = i
			break
		}
	}

	label := "default"
	if matchedIdx >= 0 {
		label = fmt.Sprintf("condition_%d", matchedIdx)
	}

	target := ""
	for _, tr := range stage.Transitions {
		if tr.Condition == label {
			target = tr.Target
			break
		}
	}
	if target == "" {
		return nil, false
	}

	return e.transition(quest, inst, target), true
}

func (e *Engine) transition(quest *world.Quest, inst *Instance, target string) *UpdateResult {
	ws := e.store.State()
	result := &UpdateResult{
		QuestID:  quest.ID,
		OldStage: inst.StageID,
		NewStage: target,
	}

	switch target {
	case world.StageComplete:
		inst.Status = state.QuestCompleted
		inst.CompletedTurn = ws.Turn
		e.store.CompleteQuest(quest.ID)
		e.executeActions(quest.ID, rewardActions(quest.Rewards))
		e.store.SetFlag(fmt.Sprintf("event_quest_%s_completed", quest.ID), true)
		result.Completed = true

	case world.StageFail:
		inst.Status = state.QuestFailed
		inst.CompletedTurn = ws.Turn
		e.store.FailQuest(quest.ID)
		e.store.SetFlag(fmt.Sprintf("event_quest_%s_failed", quest.ID), true)
		result.Failed = true

	default:
		stage := quest.Stages[target]
		inst.StageID = target
		e.executeActions(quest.ID, stage.OnEnter)
		result.NarrativePrompt = stage.NarrativePrompt
		e.store.SetFlag(fmt.Sprintf("event_quest_%s_stage_%s", quest.ID, target), true)
	}

	log.Printf("quest transition quest=%s from=%s to=%s", quest.ID, result.OldStage, target)
	return result
}

// ActiveQuests returns the ids of quests currently active, in definition
// order.
func (e *Engine) ActiveQuests() []string {
	var out []string
	for _, id := range sortedQuestIDs(e.def.Quests) {
		if inst, ok := e.instances[id]; ok && inst.Status == state.QuestActive {
			out = append(out, id)
		}
	}
	return out
}

// Context returns the combined narrative prompts of all visible active
// quests, for the prompt builder.
func (e *Engine) Context() string {
	var out string
	for _, id := range e.ActiveQuests() {
		quest := e.def.Quests[id]
		if quest == nil || quest.Hidden {
			continue
		}
		inst := e.instances[id]
		stage := quest.Stages[inst.StageID]
		if stage == nil || stage.NarrativePrompt == "" {
			continue
		}
		if out != "" {
			out += "\n\n"
		}
		out += fmt.Sprintf("Quest %q: %s", quest.Title, stage.NarrativePrompt)
	}
	return out
}

func (e *Engine) allConditionsHold(conds []world.Condition, input string) bool {
	for i := range conds {
		if !e.evaluate(&conds[i], input) {
			return false
		}
	}
	return true
}

func sortedQuestIDs(quests map[string]*world.Quest) []string {
	ids := make([]string, 0, len(quests))
	for id := range quests {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
