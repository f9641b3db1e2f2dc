package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/selune/engine/internal/storage"
)

type fakeTelemetryStore struct {
	last  storage.Event
	count int
}

func (s *fakeTelemetryStore) AppendEvent(ctx context.Context, evt storage.Event) error {
	s.last = evt
	s.count++
	return nil
}

func (s *fakeTelemetryStore) ListEvents(ctx context.Context, sessionID string, limit int) ([]storage.Event, error) {
	return nil, nil
}

func TestEmitterNoopWhenNil(t *testing.T) {
	var emitter *Emitter
	if err := emitter.Emit(context.Background(), storage.Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestEmitterNoopWhenStoreNil(t *testing.T) {
	emitter := &Emitter{}
	if err := emitter.Emit(context.Background(), storage.Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
}

func TestEmitterAddsTimestamp(t *testing.T) {
	store := &fakeTelemetryStore{}
	clockTime := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	emitter := &Emitter{store: store, clock: func() time.Time { return clockTime }}

	if err := emitter.Emit(context.Background(), storage.Event{Kind: KindTurnProcessed}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if store.count != 1 {
		t.Fatalf("expected 1 event, got %d", store.count)
	}
	if !store.last.CreatedAt.Equal(clockTime) {
		t.Fatalf("expected timestamp %v, got %v", clockTime, store.last.CreatedAt)
	}
}

func TestEmitterPreservesTimestamp(t *testing.T) {
	store := &fakeTelemetryStore{}
	clockTime := time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC)
	setTime := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	emitter := &Emitter{store: store, clock: func() time.Time { return clockTime }}

	if err := emitter.Emit(context.Background(), storage.Event{Kind: KindTurnProcessed, CreatedAt: setTime}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if !store.last.CreatedAt.Equal(setTime) {
		t.Fatalf("expected timestamp %v, got %v", setTime, store.last.CreatedAt)
	}
}

func TestEmitterUsesTimeNowWhenClockNil(t *testing.T) {
	store := &fakeTelemetryStore{}
	emitter := &Emitter{store: store, clock: nil}

	if err := emitter.Emit(context.Background(), storage.Event{Kind: KindTurnProcessed}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if store.last.CreatedAt.IsZero() {
		t.Fatal("expected timestamp to be set")
	}
}

func TestEmitTurnMarshalsPayload(t *testing.T) {
	store := &fakeTelemetryStore{}
	emitter := NewEmitter(store)

	err := emitter.EmitTurn(context.Background(), "s1", 4, KindBeatExecuted, map[string]string{"beat": "first_blackout"})
	if err != nil {
		t.Fatalf("EmitTurn: %v", err)
	}
	if store.last.SessionID != "s1" || store.last.Turn != 4 {
		t.Fatalf("event = %+v", store.last)
	}
	if store.last.Payload != `{"beat":"first_blackout"}` {
		t.Fatalf("payload = %q", store.last.Payload)
	}
}
