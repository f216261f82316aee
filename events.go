package server

import (
	"context"

	"loopin/server/logging"
)

// RawEvent is one row returned by the rules-engine position-update RPC.
// Unknown event types are dropped during translation so the engine can grow
// new rows without breaking older servers.
type RawEvent struct {
	EventType  string  `json:"event_type"`
	AttackerID string  `json:"attacker_id"`
	VictimID   string  `json:"victim_id"`
	AreaAdded  float64 `json:"area_added"`
}

const (
	rawTerritoryCaptured = "territory_captured"
	rawTrailSevered      = "trail_severed"
	rawTrailBanked       = "trail_banked"
)

// DomainEvent is the translated outcome of one position update. Instances are
// transient: produced and consumed within a single update cycle.
type DomainEvent interface {
	// message returns the outbound frame for the unfiltered event broadcast.
	message() any
}

// TerritoryCaptured reports a closed loop converting into territory.
type TerritoryCaptured struct {
	PlayerID  string
	AreaAdded float64
}

func (e TerritoryCaptured) message() any {
	return TerritoryCapturedMessage{Type: rawTerritoryCaptured, PlayerID: e.PlayerID, AreaAdded: e.AreaAdded}
}

// TrailSevered reports one player's trail being cut by another.
type TrailSevered struct {
	AttackerID string
	VictimID   string
}

func (e TrailSevered) message() any {
	return TrailSeveredMessage{Type: rawTrailSevered, AttackerID: e.AttackerID, VictimID: e.VictimID}
}

// TrailBanked reports a player banking their open trail.
type TrailBanked struct {
	PlayerID string
}

func (e TrailBanked) message() any {
	return TrailBankedMessage{Type: rawTrailBanked, PlayerID: e.PlayerID}
}

// EventTranslator converts raw rules-engine rows into domain events and
// schedules the sever follow-up call that a detected sever requires.
type EventTranslator struct {
	rules     *RulesEngineClient
	publisher logging.Publisher
	// spawn launches the fire-and-forget sever application. Tests replace it
	// to run inline.
	spawn func(func())
}

// NewEventTranslator wires a translator to the retrying rules client.
func NewEventTranslator(rules *RulesEngineClient, publisher logging.Publisher) *EventTranslator {
	if publisher == nil {
		publisher = logging.NopPublisher()
	}
	return &EventTranslator{
		rules:     rules,
		publisher: publisher,
		spawn:     func(fn func()) { go fn() },
	}
}

// Translate maps raw rows to domain events. Every sever row with a victim
// schedules exactly one ApplySever call; the call never blocks translation
// and runs on a background context so a closed client connection cannot
// cancel the consistency repair.
func (t *EventTranslator) Translate(ctx context.Context, gameID string, raw []RawEvent) []DomainEvent {
	if len(raw) == 0 {
		return nil
	}
	events := make([]DomainEvent, 0, len(raw))
	for _, rec := range raw {
		switch rec.EventType {
		case rawTerritoryCaptured:
			events = append(events, TerritoryCaptured{PlayerID: rec.AttackerID, AreaAdded: rec.AreaAdded})
		case rawTrailSevered:
			events = append(events, TrailSevered{AttackerID: rec.AttackerID, VictimID: rec.VictimID})
			if rec.VictimID == "" {
				// Cannot sever nothing; the event still goes downstream.
				t.publisher.Publish(ctx, logging.Event{
					Type:     logging.EventSeverSkipped,
					Severity: logging.SeverityWarn,
					Actor:    logging.EntityRef{ID: rec.AttackerID, Kind: logging.EntityKindPlayer},
					Payload:  map[string]any{"gameId": gameID},
				})
				continue
			}
			victimID := rec.VictimID
			t.spawn(func() {
				t.rules.ApplySever(context.Background(), gameID, victimID)
			})
		case rawTrailBanked:
			events = append(events, TrailBanked{PlayerID: rec.AttackerID})
		default:
			// Forward-compatible: unknown rows are dropped silently.
		}
	}
	return events
}
