package logging

import (
	"context"
	"time"
)

type EventType string

// Gameplay events published by the synchronization layer.
const (
	EventRulesRetry       EventType = "rules.retry"
	EventRulesGaveUp      EventType = "rules.gave_up"
	EventSeverApplied     EventType = "sever.applied"
	EventSeverFailed      EventType = "sever.failed"
	EventSeverSkipped     EventType = "sever.skipped"
	EventPowerupActivated EventType = "powerup.activated"
	EventPowerupExpired   EventType = "powerup.expired"
	EventPlayerJoined     EventType = "player.joined"
	EventPlayerLeft       EventType = "player.left"
	EventMessageDropped   EventType = "message.dropped"
)

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindUnknown    EntityKind = "unknown"
	EntityKindPlayer     EntityKind = "player"
	EntityKindConnection EntityKind = "connection"
	EntityKindGame       EntityKind = "game"
	EntityKindSystem     EntityKind = "system"
)

// Event is one structured gameplay record. Payload holds event-specific
// fields and must be JSON-marshalable.
type Event struct {
	Type     EventType   `json:"type"`
	Time     time.Time   `json:"time"`
	Actor    EntityRef   `json:"actor"`
	Targets  []EntityRef `json:"targets,omitempty"`
	Severity Severity    `json:"severity"`
	Payload  any         `json:"payload,omitempty"`
}

type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher discards every event. Used by tests and as the default when
// no publisher is injected.
func NopPublisher() Publisher {
	return nopPublisher{}
}
