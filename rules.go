package server

import (
	"context"
	"time"

	"loopin/server/logging"
)

// RulesEngine is the remote boundary for game-mechanics evaluation. Both
// calls are idempotent and safe to retry.
type RulesEngine interface {
	UpdatePosition(ctx context.Context, gameID, playerID string, lat, lng float64, shieldedIDs []string) ([]RawEvent, error)
	ApplySever(ctx context.Context, gameID, playerID string) error
}

// RulesEngineClient wraps a RulesEngine with the bounded retry policy: each
// call gets rulesRetryAttempts attempts with a doubling delay between them.
// Exhaustion degrades rather than propagates — a failed position update is
// "no events this tick", never a dropped connection.
type RulesEngineClient struct {
	engine    RulesEngine
	baseDelay time.Duration
	sleep     func(time.Duration)
	publisher logging.Publisher
	telemetry *telemetryCounters
}

// NewRulesEngineClient builds a client around the given engine. A zero
// baseDelay falls back to the default one-second unit.
func NewRulesEngineClient(engine RulesEngine, baseDelay time.Duration, publisher logging.Publisher, telemetry *telemetryCounters) *RulesEngineClient {
	if baseDelay <= 0 {
		baseDelay = defaultRetryBaseDelay
	}
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &RulesEngineClient{
		engine:    engine,
		baseDelay: baseDelay,
		sleep:     time.Sleep,
		publisher: publisher,
		telemetry: telemetry,
	}
}

// UpdatePosition evaluates one position update. On retry exhaustion it
// returns an empty slice so the caller's tick degrades to "no events".
func (c *RulesEngineClient) UpdatePosition(ctx context.Context, gameID, playerID string, lat, lng float64, shieldedIDs []string) []RawEvent {
	var events []RawEvent
	err := c.withRetry(ctx, "update_position", playerID, func() error {
		var callErr error
		events, callErr = c.engine.UpdatePosition(ctx, gameID, playerID, lat, lng, shieldedIDs)
		return callErr
	})
	if err != nil {
		return nil
	}
	return events
}

// ApplySever applies an already-detected sever to the victim's trail. Best
// effort: exhaustion is published, never returned, since the user-visible
// flow has already moved on.
func (c *RulesEngineClient) ApplySever(ctx context.Context, gameID, victimID string) {
	err := c.withRetry(ctx, "apply_sever", victimID, func() error {
		return c.engine.ApplySever(ctx, gameID, victimID)
	})
	if err != nil {
		c.publisher.Publish(ctx, logging.Event{
			Type:     logging.EventSeverFailed,
			Severity: logging.SeverityError,
			Actor:    logging.EntityRef{ID: victimID, Kind: logging.EntityKindPlayer},
			Payload:  map[string]any{"gameId": gameID, "error": err.Error()},
		})
		return
	}
	if c.telemetry != nil {
		c.telemetry.RecordSeverApplied()
	}
	c.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventSeverApplied,
		Severity: logging.SeverityInfo,
		Actor:    logging.EntityRef{ID: victimID, Kind: logging.EntityKindPlayer},
		Payload:  map[string]any{"gameId": gameID},
	})
}

func (c *RulesEngineClient) withRetry(ctx context.Context, op, playerID string, call func() error) error {
	delay := c.baseDelay
	var err error
	for attempt := 1; attempt <= rulesRetryAttempts; attempt++ {
		if err = call(); err == nil {
			return nil
		}
		if attempt == rulesRetryAttempts {
			break
		}
		if c.telemetry != nil {
			c.telemetry.RecordRulesRetry()
		}
		c.publisher.Publish(ctx, logging.Event{
			Type:     logging.EventRulesRetry,
			Severity: logging.SeverityWarn,
			Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
			Payload:  map[string]any{"op": op, "attempt": attempt, "error": err.Error()},
		})
		c.sleep(delay)
		delay *= 2
	}
	if c.telemetry != nil {
		c.telemetry.RecordRulesFailure()
	}
	c.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventRulesGaveUp,
		Severity: logging.SeverityError,
		Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		Payload:  map[string]any{"op": op, "attempts": rulesRetryAttempts, "error": err.Error()},
	})
	return err
}
