package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"loopin/server/logging"
)

type scriptedRulesEngine struct {
	mu             sync.Mutex
	events         []RawEvent
	updateFailures int
	updateCalls    int
	severFailures  int
	severCalls     []string
}

func (e *scriptedRulesEngine) UpdatePosition(_ context.Context, _, _ string, _, _ float64, _ []string) ([]RawEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.updateCalls++
	if e.updateCalls <= e.updateFailures {
		return nil, errors.New("rules engine unavailable")
	}
	return e.events, nil
}

func (e *scriptedRulesEngine) ApplySever(_ context.Context, _, victimID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.severCalls = append(e.severCalls, victimID)
	if len(e.severCalls) <= e.severFailures {
		return errors.New("sever failed")
	}
	return nil
}

func (e *scriptedRulesEngine) UpdateCalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updateCalls
}

func (e *scriptedRulesEngine) SeverCalls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	copied := make([]string, len(e.severCalls))
	copy(copied, e.severCalls)
	return copied
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []logging.Event
}

func (p *capturingPublisher) Publish(_ context.Context, event logging.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *capturingPublisher) byType(eventType logging.EventType) []logging.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var matched []logging.Event
	for _, event := range p.events {
		if event.Type == eventType {
			matched = append(matched, event)
		}
	}
	return matched
}

func newTestRulesClient(engine RulesEngine, publisher logging.Publisher) (*RulesEngineClient, *[]time.Duration) {
	client := NewRulesEngineClient(engine, time.Second, publisher, nil)
	sleeps := &[]time.Duration{}
	client.sleep = func(d time.Duration) { *sleeps = append(*sleeps, d) }
	return client, sleeps
}

func TestUpdatePositionStopsAfterThreeAttempts(t *testing.T) {
	engine := &scriptedRulesEngine{updateFailures: 10}
	publisher := &capturingPublisher{}
	client, _ := newTestRulesClient(engine, publisher)

	events := client.UpdatePosition(context.Background(), "game-1", "player-a", 1, 2, nil)

	if engine.UpdateCalls() != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", engine.UpdateCalls())
	}
	if len(events) != 0 {
		t.Fatalf("expected empty event sequence on exhaustion, got %d", len(events))
	}
	if gaveUp := publisher.byType(logging.EventRulesGaveUp); len(gaveUp) != 1 {
		t.Fatalf("expected one gave-up record, got %d", len(gaveUp))
	}
}

func TestUpdatePositionBackoffDoubles(t *testing.T) {
	engine := &scriptedRulesEngine{updateFailures: 10}
	client, sleeps := newTestRulesClient(engine, logging.NopPublisher())

	client.UpdatePosition(context.Background(), "game-1", "player-a", 1, 2, nil)

	want := []time.Duration{time.Second, 2 * time.Second}
	if len(*sleeps) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), *sleeps)
	}
	for i, d := range want {
		if (*sleeps)[i] != d {
			t.Fatalf("expected delay %d to be %v, got %v", i, d, (*sleeps)[i])
		}
	}
}

func TestUpdatePositionRecoversMidBudget(t *testing.T) {
	engine := &scriptedRulesEngine{
		updateFailures: 1,
		events:         []RawEvent{{EventType: rawTrailBanked, AttackerID: "player-a"}},
	}
	client, sleeps := newTestRulesClient(engine, logging.NopPublisher())

	events := client.UpdatePosition(context.Background(), "game-1", "player-a", 1, 2, nil)

	if engine.UpdateCalls() != 2 {
		t.Fatalf("expected 2 attempts, got %d", engine.UpdateCalls())
	}
	if len(events) != 1 {
		t.Fatalf("expected recovered events, got %d", len(events))
	}
	if len(*sleeps) != 1 || (*sleeps)[0] != time.Second {
		t.Fatalf("expected a single base delay, got %v", *sleeps)
	}
}

func TestApplySeverNeverPropagatesFailure(t *testing.T) {
	engine := &scriptedRulesEngine{severFailures: 10}
	publisher := &capturingPublisher{}
	client, _ := newTestRulesClient(engine, publisher)

	client.ApplySever(context.Background(), "game-1", "player-b")

	if got := len(engine.SeverCalls()); got != 3 {
		t.Fatalf("expected 3 sever attempts, got %d", got)
	}
	if failed := publisher.byType(logging.EventSeverFailed); len(failed) != 1 {
		t.Fatalf("expected one failure record, got %d", len(failed))
	}
}

func TestApplySeverRecordsSuccess(t *testing.T) {
	engine := &scriptedRulesEngine{}
	publisher := &capturingPublisher{}
	client, _ := newTestRulesClient(engine, publisher)

	client.ApplySever(context.Background(), "game-1", "player-b")

	if got := engine.SeverCalls(); len(got) != 1 || got[0] != "player-b" {
		t.Fatalf("expected single sever against player-b, got %v", got)
	}
	if applied := publisher.byType(logging.EventSeverApplied); len(applied) != 1 {
		t.Fatalf("expected one applied record, got %d", len(applied))
	}
}
