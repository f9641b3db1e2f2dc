package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/selune/engine/internal/storage"
)

// Event kinds emitted by the engine.
const (
	KindTurnProcessed   = "turn_processed"
	KindBeatExecuted    = "beat_executed"
	KindQuestActivated  = "quest_activated"
	KindQuestCompleted  = "quest_completed"
	KindQuestFailed     = "quest_failed"
	KindProviderFailed  = "provider_failed"
	KindSessionStarted  = "session_started"
	KindSessionRestored = "session_restored"
)

// Emitter records operational telemetry events.
type Emitter struct {
	store storage.TelemetryStore
	clock func() time.Time
}

// NewEmitter creates a new telemetry emitter.
func NewEmitter(store storage.TelemetryStore) *Emitter {
	return &Emitter{store: store, clock: time.Now}
}

// Emit records a telemetry event. It is a no-op when the store is nil.
func (e *Emitter) Emit(ctx context.Context, evt storage.Event) error {
	if e == nil || e.store == nil {
		return nil
	}
	if evt.CreatedAt.IsZero() {
		if e.clock == nil {
			evt.CreatedAt = time.Now().UTC()
		} else {
			evt.CreatedAt = e.clock().UTC()
		}
	}
	return e.store.AppendEvent(ctx, evt)
}

// EmitTurn marshals payload and records one event for a session turn.
func (e *Emitter) EmitTurn(ctx context.Context, sessionID string, turn int, kind string, payload any) error {
	if e == nil || e.store == nil {
		return nil
	}
	encoded := ""
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal telemetry payload: %w", err)
		}
		encoded = string(raw)
	}
	return e.Emit(ctx, storage.Event{
		SessionID: sessionID,
		Turn:      turn,
		Kind:      kind,
		Payload:   encoded,
	})
}
