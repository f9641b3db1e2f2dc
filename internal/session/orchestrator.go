// Package session runs the per-turn loop: it owns one play session's
// engines, serializes turns, validates what the model proposes, and
// commits each turn atomically.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/selune/engine/internal/director"
	"github.com/selune/engine/internal/generation"
	"github.com/selune/engine/internal/media"
	"github.com/selune/engine/internal/memory"
	"github.com/selune/engine/internal/personality"
	"github.com/selune/engine/internal/platform/id"
	"github.com/selune/engine/internal/platform/timeouts"
	"github.com/selune/engine/internal/quest"
	"github.com/selune/engine/internal/state"
	"github.com/selune/engine/internal/storage"
	"github.com/selune/engine/internal/telemetry"
	"github.com/selune/engine/internal/world"
)

// Config tunes the turn loop. Zero values select the defaults.
type Config struct {
	// HistoryLimit is the in-process message buffer size; storage is
	// pruned to the same bound.
	HistoryLimit int
	// HistoryWindow is how many recent messages go to the provider.
	HistoryWindow int

	MemoryMaxFacts      int
	MemoryMinImportance int

	// MaxAffinityDelta bounds a single proposed affinity change.
	MaxAffinityDelta int

	GenerateTimeout time.Duration
	JudgeTimeout    time.Duration

	// DeepInterval is how often the model-based personality pass runs.
	DeepInterval int
}

func (c Config) withDefaults() Config {
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = 50
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = 20
	}
	if c.MemoryMaxFacts <= 0 {
		c.MemoryMaxFacts = 5
	}
	if c.MemoryMinImportance <= 0 {
		c.MemoryMinImportance = 6
	}
	if c.MaxAffinityDelta <= 0 {
		c.MaxAffinityDelta = 5
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = timeouts.Generate
	}
	if c.JudgeTimeout <= 0 {
		c.JudgeTimeout = timeouts.Judge
	}
	if c.DeepInterval <= 0 {
		c.DeepInterval = 3
	}
	return c
}

// Importance assigned to facts the model proposes explicitly.
const proposedFactImportance = 7

// Options are the optional collaborators of an orchestrator.
type Options struct {
	// Storage persists sessions and turns. Nil keeps everything in
	// process.
	Storage storage.Store
	// Media renders scenes off the turn path. Nil skips media.
	Media *media.Pipeline
	// Embedder enables semantic memory retrieval.
	Embedder memory.Embedder

	Config Config
}

// TurnResult is what one processed turn hands back to the caller.
type TurnResult struct {
	Text            string
	TurnNumber      int
	Provider        string
	AffinityChanges map[string]int
	NewQuests       []string
	CompletedQuests []string
	// Media is the in-flight generation job, nil when media is off.
	Media *media.Job
}

// Orchestrator owns one session's engines and runs its turns. Turns are
// strictly sequential; the mutex rejects nothing but makes concurrent
// callers wait.
type Orchestrator struct {
	mu sync.Mutex

	def      *world.Definition
	gen      *generation.Manager
	db       storage.Store
	media    *media.Pipeline
	events   *telemetry.Emitter
	embedder memory.Embedder
	cfg      Config

	store       *state.Store
	quests      *quest.Engine
	personality *personality.Engine
	memory      *memory.Store
	director    *director.Director
	prompts     *PromptBuilder
}

// New creates an orchestrator over a world definition and generation
// manager. Start or Resume must be called before ProcessTurn.
func New(def *world.Definition, gen *generation.Manager, opts Options) *Orchestrator {
	return &Orchestrator{
		def:    def,
		gen:    gen,
		db:     opts.Storage,
		media:  opts.Media,
		events: telemetry.NewEmitter(opts.Storage),
		cfg:    opts.Config.withDefaults(),

		prompts:  NewPromptBuilder(def),
		embedder: opts.Embedder,
	}
}

// Start begins a fresh session with the given active companion.
func (o *Orchestrator) Start(ctx context.Context, companion string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.def.Companion(companion) == nil {
		return fmt.Errorf("start session: unknown companion %q", companion)
	}

	ws := state.NewWorldState(id.NewID(), o.def, companion)
	o.wireEngines(ctx, state.NewStore(ws))

	if o.db != nil {
		sess := o.sessionRecord()
		sess.CreatedAt = time.Now().UTC()
		if err := o.db.CreateSession(ctx, sess); err != nil {
			return fmt.Errorf("start session: %w", err)
		}
	}
	if err := o.events.EmitTurn(ctx, ws.SessionID, 0, telemetry.KindSessionStarted, map[string]string{
		"world":     o.def.ID,
		"companion": companion,
	}); err != nil {
		log.Printf("session start telemetry failed err=%v", err)
	}

	log.Printf("session started id=%s world=%s companion=%s", ws.SessionID, o.def.ID, companion)
	return nil
}

// Resume reloads a persisted session and all engine state.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.db == nil {
		return fmt.Errorf("resume session: no storage configured")
	}

	sess, err := o.db.GetSession(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}

	var ws state.WorldState
	if err := json.Unmarshal([]byte(sess.State), &ws); err != nil {
		return fmt.Errorf("resume session %s: decode state: %w", sessionID, err)
	}
	o.wireEngines(ctx, state.NewStore(&ws))

	if sess.Director != "" {
		var ds directorState
		if err := json.Unmarshal([]byte(sess.Director), &ds); err != nil {
			return fmt.Errorf("resume session %s: decode director: %w", sessionID, err)
		}
		o.director.Restore(ds.History, ds.Completed)
	}

	quests, err := o.db.ListQuests(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	instances := make([]*quest.Instance, 0, len(quests))
	for _, q := range quests {
		instances = append(instances, &quest.Instance{
			QuestID:       q.QuestID,
			Status:        state.QuestStatus(q.Status),
			StageID:       q.StageID,
			StartedTurn:   q.StartedTurn,
			CompletedTurn: q.CompletedTurn,
		})
	}
	o.quests.LoadInstances(instances)

	personalities, err := o.db.ListPersonalities(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	states := make([]*personality.State, 0, len(personalities))
	for _, p := range personalities {
		st := &personality.State{}
		if err := json.Unmarshal([]byte(p.State), st); err != nil {
			log.Printf("personality state unreadable session=%s companion=%s err=%v", sessionID, p.Companion, err)
			continue
		}
		states = append(states, st)
	}
	if len(states) > 0 {
		o.personality.LoadStates(states)
	}
	o.initLinks()

	msgs, err := o.db.ListMessages(ctx, sessionID, o.cfg.HistoryLimit)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	loaded := make([]memory.Message, 0, len(msgs))
	for _, m := range msgs {
		loaded = append(loaded, memory.Message{
			Role:    m.Role,
			Content: m.Content,
			Turn:    m.Turn,
			Visual:  m.Visual,
			Tags:    m.Tags,
		})
	}
	o.memory.LoadMessages(loaded)

	facts, err := o.db.ListFacts(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume session %s: %w", sessionID, err)
	}
	factsLoaded := make([]memory.Fact, 0, len(facts))
	for _, f := range facts {
		factsLoaded = append(factsLoaded, memory.Fact{
			ID:         f.ID,
			Kind:       f.Kind,
			Content:    f.Content,
			Turn:       f.Turn,
			Importance: f.Importance,
		})
	}
	o.memory.LoadFacts(factsLoaded)
	if o.embedder != nil {
		o.memory.EnableSemantic(ctx, o.embedder)
	}

	if err := o.events.EmitTurn(ctx, sessionID, ws.Turn, telemetry.KindSessionRestored, nil); err != nil {
		log.Printf("session resume telemetry failed err=%v", err)
	}

	log.Printf("session resumed id=%s turn=%d", sessionID, ws.Turn)
	return nil
}

// wireEngines builds the per-session engines around a state store.
func (o *Orchestrator) wireEngines(ctx context.Context, store *state.Store) {
	o.store = store
	o.quests = quest.NewEngine(o.def, store)
	o.personality = personality.NewEngine()
	o.memory = memory.NewStore(o.cfg.HistoryLimit)
	o.director = director.New(o.def.Arc)

	if o.gen != nil {
		o.director.SetJudge(o.gen)
		o.personality.EnableDeepAnalysis(o.gen, o.cfg.DeepInterval)
	}
	if o.embedder != nil {
		o.memory.EnableSemantic(ctx, o.embedder)
	}
	o.initLinks()
}

func (o *Orchestrator) initLinks() {
	names := make([]string, 0, len(o.def.Companions))
	for name := range o.def.Companions {
		names = append(names, name)
	}
	for name, comp := range o.def.Companions {
		o.personality.InitLinks(name, names, comp.Relations)
	}
}

// SessionID returns the running session's id, empty before Start.
func (o *Orchestrator) SessionID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store == nil {
		return ""
	}
	return o.store.State().SessionID
}

// State returns the live world state for read-only inspection.
func (o *Orchestrator) State() *state.WorldState {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store == nil {
		return nil
	}
	return o.store.State()
}

// UpcomingBeats lists authored beats approaching their turn trigger.
func (o *Orchestrator) UpcomingBeats() []world.StoryBeat {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store == nil {
		return nil
	}
	return o.director.UpcomingBeats(o.store.State())
}

// ProcessTurn runs one full turn for the player input. Generation
// exhaustion aborts the turn with no state change; everything after a
// successful generation degrades instead of failing.
func (o *Orchestrator) ProcessTurn(ctx context.Context, input string) (*TurnResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.store == nil {
		return nil, fmt.Errorf("process turn: session not started")
	}

	ws := o.store.State()
	turn := ws.Turn
	companion := ws.ActiveCompanion

	ctx, span := otel.Tracer("github.com/selune/engine/internal/session").Start(ctx, "session.ProcessTurn")
	defer span.End()
	span.SetAttributes(
		attribute.String("session.id", ws.SessionID),
		attribute.Int("session.turn", turn),
	)

	stateSnap := o.store.Snapshot()
	questSnap := snapshotQuests(o.quests.Instances())
	personalitySnap, snapErr := snapshotPersonality(o.personality.States())
	if snapErr != nil {
		return nil, fmt.Errorf("process turn: snapshot: %w", snapErr)
	}

	o.personality.AnalyzeAction(companion, input, turn)

	beat, instruction := o.director.SelectBeat(ws)
	narrativeCtx := ""
	if beat == nil {
		narrativeCtx = o.director.NarrativeContext()
	}

	var turnEvents []storage.Event
	var newQuests, completedQuests []string
	for _, id := range o.quests.CheckActivations(input) {
		res, ok := o.quests.Activate(id)
		if !ok {
			continue
		}
		if !res.Hidden {
			newQuests = append(newQuests, res.Title)
		}
		turnEvents = append(turnEvents, o.event(turn, telemetry.KindQuestActivated, map[string]string{"quest": id}))
	}
	for _, id := range o.quests.ActiveQuests() {
		res, ok := o.quests.Advance(id, input)
		if !ok {
			continue
		}
		switch {
		case res.Completed:
			completedQuests = append(completedQuests, id)
			turnEvents = append(turnEvents, o.event(turn, telemetry.KindQuestCompleted, map[string]string{"quest": id}))
		case res.Failed:
			turnEvents = append(turnEvents, o.event(turn, telemetry.KindQuestFailed, map[string]string{"quest": id}))
		}
	}

	questCtx := ""
	if qc := o.quests.Context(); qc != "" {
		questCtx = "=== ACTIVE QUESTS ===\n" + qc
	}
	memoryCtx := o.memory.Context(ctx, input, o.cfg.MemoryMaxFacts, o.cfg.MemoryMinImportance)

	system := o.prompts.BuildSystem(ws, Contexts{
		Personality: o.personality.Context(companion),
		Beat:        instruction,
		Narrative:   narrativeCtx,
		Quests:      questCtx,
		Memory:      memoryCtx,
	})

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	resp, err := o.gen.Generate(genCtx, generation.Request{
		System:   system,
		Input:    input,
		History:  o.providerHistory(),
		JSONMode: true,
	})
	cancel()
	if err != nil {
		o.store.Restore(stateSnap)
		o.quests.LoadInstances(questSnap)
		o.personality.LoadStates(personalitySnap)
		if emitErr := o.events.EmitTurn(ctx, ws.SessionID, turn, telemetry.KindProviderFailed, map[string]string{"error": err.Error()}); emitErr != nil {
			log.Printf("provider failure telemetry failed err=%v", emitErr)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation exhausted")
		return nil, fmt.Errorf("process turn %d: %w", turn, err)
	}

	proposal := generation.ParseProposal(resp.Text)

	o.memory.Append("user", input, turn, "", nil)
	o.memory.Append("assistant", proposal.Text, turn, proposal.VisualDescription, proposal.Tags)
	if proposal.Updates.NewFact != "" {
		o.memory.AddFact(ctx, proposal.Updates.NewFact, turn, proposedFactImportance)
	}

	updates := o.validateUpdates(proposal.Updates)

	if beat != nil {
		judgeCtx, cancelJudge := context.WithTimeout(ctx, o.cfg.JudgeTimeout)
		ok, quality, missing := o.director.Validate(judgeCtx, beat, proposal.Text)
		cancelJudge()
		if ok {
			o.director.Commit(beat, proposal.Text, quality, turn)
			o.director.ApplyConsequences(beat, o.store)
			turnEvents = append(turnEvents, o.event(turn, telemetry.KindBeatExecuted, map[string]any{
				"beat":    beat.ID,
				"quality": quality,
			}))
		} else {
			log.Printf("beat pending beat=%s turn=%d missing=%v", beat.ID, turn, missing)
		}
	}

	o.applyUpdates(companion, updates)
	turnNumber := o.store.AdvanceTurn()

	var job *media.Job
	if o.media != nil {
		job = o.media.Start(ctx, media.Request{
			Text:      proposal.Text,
			Visual:    proposal.VisualDescription,
			Tags:      proposal.Tags,
			Companion: companion,
			Outfit:    o.store.Outfit(companion),
		})
	}

	turnEvents = append(turnEvents, o.event(turn, telemetry.KindTurnProcessed, map[string]string{"provider": resp.Provider}))
	if err := o.persistTurn(ctx, turnEvents); err != nil {
		log.Printf("turn persistence failed session=%s turn=%d err=%v", ws.SessionID, turn, err)
	}

	if _, applied := o.personality.AnalyzeDeep(ctx, companion, input, proposal.Text, turnNumber, o.store.Affinity(companion)); applied {
		log.Printf("deep analysis applied companion=%s turn=%d", companion, turnNumber)
	}

	return &TurnResult{
		Text:            proposal.Text,
		TurnNumber:      turnNumber,
		Provider:        resp.Provider,
		AffinityChanges: updates.affinity,
		NewQuests:       newQuests,
		CompletedQuests: completedQuests,
		Media:           job,
	}, nil
}

// GenerateIntro produces the opening scene at turn zero. Generation
// failure degrades to a canned introduction instead of an error.
func (o *Orchestrator) GenerateIntro(ctx context.Context) (*TurnResult, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.store == nil {
		return nil, fmt.Errorf("generate intro: session not started")
	}

	ws := o.store.State()
	companion := ws.ActiveCompanion

	proposal := &generation.Proposal{}
	provider := "fallback"

	genCtx, cancel := context.WithTimeout(ctx, o.cfg.GenerateTimeout)
	resp, err := o.gen.Generate(genCtx, generation.Request{
		System:   o.prompts.BuildIntro(ws),
		Input:    "Write the opening scene.",
		JSONMode: true,
	})
	cancel()
	if err != nil {
		log.Printf("intro generation failed session=%s err=%v", ws.SessionID, err)
		location := ws.Location
		if loc, ok := o.def.ResolveLocation(ws.Location); ok {
			location = loc.Name
		}
		proposal.Text = fmt.Sprintf("You arrive at %s. %s is waiting for you.", location, companion)
		proposal.VisualDescription = fmt.Sprintf("%s standing, welcoming expression, %s in the background", companion, location)
		proposal.Tags = []string{"standing", "smile", "medium_shot"}
	} else {
		proposal = generation.ParseProposal(resp.Text)
		provider = resp.Provider
	}

	o.memory.Append("assistant", proposal.Text, 0, proposal.VisualDescription, proposal.Tags)

	var job *media.Job
	if o.media != nil {
		job = o.media.Start(ctx, media.Request{
			Text:      proposal.Text,
			Visual:    proposal.VisualDescription,
			Tags:      proposal.Tags,
			Companion: companion,
			Outfit:    o.store.Outfit(companion),
		})
	}

	if err := o.persistTurn(ctx, nil); err != nil {
		log.Printf("intro persistence failed session=%s err=%v", ws.SessionID, err)
	}

	return &TurnResult{
		Text:       proposal.Text,
		TurnNumber: 0,
		Provider:   provider,
		Media:      job,
	}, nil
}

// validUpdates is the subset of a proposal that survived validation.
type validUpdates struct {
	affinity  map[string]int
	outfit    string
	location  string
	timeOfDay world.TimeOfDay
	hasTime   bool
	flags     map[string]any
	emotion   string
}

// validateUpdates drops invalid proposed fields one by one and keeps
// the rest. Nothing here mutates state.
func (o *Orchestrator) validateUpdates(u generation.Updates) validUpdates {
	ws := o.store.State()
	out := validUpdates{}

	if len(u.AffinityChange) > 0 {
		out.affinity = make(map[string]int, len(u.AffinityChange))
		for name, delta := range u.AffinityChange {
			if _, known := ws.Affinity[name]; !known {
				log.Printf("update dropped field=affinity companion=%q unknown", name)
				continue
			}
			if delta > o.cfg.MaxAffinityDelta {
				delta = o.cfg.MaxAffinityDelta
			}
			if delta < -o.cfg.MaxAffinityDelta {
				delta = -o.cfg.MaxAffinityDelta
			}
			out.affinity[name] = delta
		}
	}

	if u.CurrentOutfit != "" {
		companion := o.def.Companion(ws.ActiveCompanion)
		if companion != nil && companion.HasOutfit(u.CurrentOutfit) {
			out.outfit = u.CurrentOutfit
		} else {
			log.Printf("update dropped field=outfit style=%q not in wardrobe", u.CurrentOutfit)
		}
	}

	if u.Location != "" {
		if loc, ok := o.def.ResolveLocation(u.Location); ok {
			out.location = loc.ID
		} else {
			log.Printf("update dropped field=location ref=%q unknown", u.Location)
		}
	}

	if u.TimeOfDay != "" {
		if t, ok := world.ParseTimeOfDay(strings.ToLower(u.TimeOfDay)); ok {
			out.timeOfDay = t
			out.hasTime = true
		} else {
			log.Printf("update dropped field=time value=%q invalid", u.TimeOfDay)
		}
	}

	out.flags = u.SetFlags
	out.emotion = u.NPCEmotion
	return out
}

func (o *Orchestrator) applyUpdates(companion string, u validUpdates) {
	for name, delta := range u.affinity {
		o.store.ChangeAffinity(name, delta)
	}
	if u.outfit != "" {
		o.store.SetOutfitStyle(companion, u.outfit)
	}
	if u.location != "" {
		o.store.SetLocation(u.location)
	}
	if u.hasTime {
		o.store.SetTime(u.timeOfDay)
	}
	for key, value := range u.flags {
		o.store.SetFlag(key, value)
	}
	if u.emotion != "" {
		o.store.SetEmotion(companion, u.emotion)
	}
}

func (o *Orchestrator) providerHistory() []generation.Message {
	recent := o.memory.Recent(o.cfg.HistoryWindow)
	history := make([]generation.Message, 0, len(recent))
	for _, m := range recent {
		role := generation.RoleAssistant
		if m.Role == "user" {
			role = generation.RoleUser
		}
		history = append(history, generation.Message{Role: role, Content: m.Content})
	}
	return history
}

func (o *Orchestrator) event(turn int, kind string, payload any) storage.Event {
	encoded := ""
	if payload != nil {
		if raw, err := json.Marshal(payload); err == nil {
			encoded = string(raw)
		}
	}
	return storage.Event{
		SessionID: o.store.State().SessionID,
		Turn:      turn,
		Kind:      kind,
		Payload:   encoded,
		CreatedAt: time.Now().UTC(),
	}
}

// directorState is the serialized beat progress stored on the session
// row.
type directorState struct {
	History   []director.Execution `json:"history"`
	Completed []string             `json:"completed"`
}

func (o *Orchestrator) sessionRecord() storage.Session {
	ws := o.store.State()
	stateJSON, err := json.Marshal(ws)
	if err != nil {
		log.Printf("state encode failed session=%s err=%v", ws.SessionID, err)
	}
	directorJSON, err := json.Marshal(directorState{
		History:   o.director.History(),
		Completed: o.director.CompletedBeats(),
	})
	if err != nil {
		log.Printf("director encode failed session=%s err=%v", ws.SessionID, err)
	}
	return storage.Session{
		ID:              ws.SessionID,
		WorldID:         ws.WorldID,
		ActiveCompanion: ws.ActiveCompanion,
		Turn:            ws.Turn,
		State:           string(stateJSON),
		Director:        string(directorJSON),
		UpdatedAt:       time.Now().UTC(),
	}
}

// persistTurn commits everything the turn changed in one transaction.
// The memory change set is consumed even when storage is off.
func (o *Orchestrator) persistTurn(ctx context.Context, events []storage.Event) error {
	changes := o.memory.Flush()
	if o.db == nil {
		return nil
	}

	ws := o.store.State()
	snap := storage.TurnSnapshot{
		Session: o.sessionRecord(),
		Events:  events,
	}

	now := time.Now().UTC()
	for _, m := range changes.Messages {
		snap.Messages = append(snap.Messages, storage.Message{
			SessionID: ws.SessionID,
			Role:      m.Role,
			Content:   m.Content,
			Turn:      m.Turn,
			Visual:    m.Visual,
			Tags:      m.Tags,
			CreatedAt: now,
		})
	}
	for _, f := range changes.Facts {
		snap.Facts = append(snap.Facts, storage.Fact{
			ID:         f.ID,
			SessionID:  ws.SessionID,
			Kind:       f.Kind,
			Content:    f.Content,
			Turn:       f.Turn,
			Importance: f.Importance,
			CreatedAt:  now,
		})
	}
	if changes.PrunedMessages > 0 {
		snap.KeepMessages = o.cfg.HistoryLimit
	}

	for _, inst := range o.quests.Instances() {
		snap.Quests = append(snap.Quests, storage.Quest{
			SessionID:     ws.SessionID,
			QuestID:       inst.QuestID,
			Status:        string(inst.Status),
			StageID:       inst.StageID,
			StartedTurn:   inst.StartedTurn,
			CompletedTurn: inst.CompletedTurn,
		})
	}
	for _, st := range o.personality.States() {
		encoded, err := json.Marshal(st)
		if err != nil {
			log.Printf("personality encode failed companion=%s err=%v", st.Companion, err)
			continue
		}
		snap.Personalities = append(snap.Personalities, storage.Personality{
			SessionID: ws.SessionID,
			Companion: st.Companion,
			State:     string(encoded),
		})
	}

	return o.db.CommitTurn(ctx, snap)
}

func snapshotQuests(instances []*quest.Instance) []*quest.Instance {
	out := make([]*quest.Instance, 0, len(instances))
	for _, inst := range instances {
		clone := *inst
		out = append(out, &clone)
	}
	return out
}

// snapshotPersonality deep-copies states through their JSON form.
func snapshotPersonality(states []*personality.State) ([]*personality.State, error) {
	out := make([]*personality.State, 0, len(states))
	for _, st := range states {
		raw, err := json.Marshal(st)
		if err != nil {
			return nil, err
		}
		clone := &personality.State{}
		if err := json.Unmarshal(raw, clone); err != nil {
			return nil, err
		}
		out = append(out, clone)
	}
	return out, nil
}
