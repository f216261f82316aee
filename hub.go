package server

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"loopin/server/logging"
)

// clientConn is the full connection surface the hub drives: the subscriber
// write half plus the inbound read loop.
type clientConn interface {
	subscriberConn
	ReadMessage() (messageType int, p []byte, err error)
}

// HubConfig carries the tunables and ambient collaborators for a hub. Zero
// values fall back to production defaults.
type HubConfig struct {
	Publisher     logging.Publisher
	Clock         func() time.Time
	PowerupTTL    time.Duration
	SweepInterval time.Duration

	telemetry *telemetryCounters
}

// Hub runs the position-update → rules-engine → translation → broadcast
// pipeline for every live connection. One hub owns all connections of a
// process.
type Hub struct {
	registry   *Registry
	rules      *RulesEngineClient
	translator *EventTranslator
	world      WorldStateStore
	safePoints SafePointStore
	inventory  InventoryStore

	publisher     logging.Publisher
	telemetry     *telemetryCounters
	clock         func() time.Time
	powerupTTL    time.Duration
	sweepInterval time.Duration
}

// NewHub wires a hub. The rules client is shared with the translator so a
// sever follow-up reuses the same retry policy as the update path.
func NewHub(world WorldStateStore, safePoints SafePointStore, inventory InventoryStore, rules *RulesEngineClient, cfg HubConfig) *Hub {
	if cfg.Publisher == nil {
		cfg.Publisher = logging.NopPublisher()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PowerupTTL <= 0 {
		cfg.PowerupTTL = defaultPowerupTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = defaultAbilitySweep
	}
	if cfg.telemetry == nil {
		cfg.telemetry = newTelemetryCounters()
	}
	return &Hub{
		registry:      NewRegistry(cfg.Clock),
		rules:         rules,
		translator:    NewEventTranslator(rules, cfg.Publisher),
		world:         world,
		safePoints:    safePoints,
		inventory:     inventory,
		publisher:     cfg.Publisher,
		telemetry:     cfg.telemetry,
		clock:         cfg.Clock,
		powerupTTL:    cfg.PowerupTTL,
		sweepInterval: cfg.SweepInterval,
	}
}

// Registry exposes the connection table, primarily for diagnostics.
func (h *Hub) Registry() *Registry { return h.registry }

// TelemetrySnapshot returns the current counter values.
func (h *Hub) TelemetrySnapshot() telemetrySnapshot { return h.telemetry.Snapshot() }

// HandleConnection owns one accepted connection: registers it, sends the
// init payload, then pumps inbound messages until the transport closes.
// A single connection's failure never reaches any other connection.
func (h *Hub) HandleConnection(conn clientConn) {
	ctx := context.Background()
	connID := h.registry.Register(conn)
	h.sendInit(ctx, connID)

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			h.dropConnection(ctx, connID)
			return
		}
		h.handleMessage(ctx, connID, payload)
	}
}

func (h *Hub) handleMessage(ctx context.Context, connID string, payload []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		h.dropMessage(ctx, connID, "malformed payload")
		return
	}

	switch msg.Type {
	case msgJoinGame:
		if msg.GameID == "" || msg.PlayerID == "" {
			h.dropMessage(ctx, connID, "join without gameId or playerId")
			return
		}
		h.registry.BindPlayer(connID, msg.GameID, msg.PlayerID)
		h.publisher.Publish(ctx, logging.Event{
			Type:     logging.EventPlayerJoined,
			Severity: logging.SeverityInfo,
			Actor:    logging.EntityRef{ID: msg.PlayerID, Kind: logging.EntityKindPlayer},
			Payload:  map[string]any{"gameId": msg.GameID, "connId": connID},
		})
	case msgPositionUpdate:
		h.handlePositionUpdate(ctx, connID, msg)
	case msgUsePowerup:
		h.handleUsePowerup(ctx, connID, msg)
	case msgPing:
		h.sendTo(connID, PongMessage{Type: "pong"})
	default:
		// Unknown variants are ignored, forward-compatible.
	}
}

// handlePositionUpdate runs the full pipeline for one tick of one player.
// Registry contents are re-read after the rules call rather than cached
// across it: connections may come and go while the remote call is in flight.
func (h *Hub) handlePositionUpdate(ctx context.Context, connID string, msg ClientMessage) {
	if msg.PlayerID == "" || msg.Lat == nil || msg.Lng == nil {
		h.dropMessage(ctx, connID, "position update missing playerId or coordinates")
		return
	}
	gameID := msg.GameID
	if gameID == "" {
		gameID = h.registry.GameID(connID)
	}
	if gameID == "" {
		h.dropMessage(ctx, connID, "position update without a game")
		return
	}

	h.registry.BindPlayer(connID, gameID, msg.PlayerID)
	shielded := h.registry.ShieldedPlayers(gameID)

	raw := h.rules.UpdatePosition(ctx, gameID, msg.PlayerID, *msg.Lat, *msg.Lng, shielded)
	events := h.translator.Translate(ctx, gameID, raw)

	h.BroadcastState(ctx, gameID)
	h.BroadcastEvents(ctx, gameID, events)
}

func (h *Hub) handleUsePowerup(ctx context.Context, connID string, msg ClientMessage) {
	if msg.PlayerID == "" || msg.PowerupID == "" {
		h.dropMessage(ctx, connID, "use_powerup missing playerId or powerupId")
		return
	}

	ok, err := h.inventory.TryConsume(ctx, msg.PlayerID, msg.PowerupID)
	if err != nil {
		log.Printf("inventory check failed for %s: %v", msg.PlayerID, err)
		return
	}
	if !ok {
		return
	}

	h.registry.ActivateAbility(connID, msg.PowerupID, h.powerupTTL)
	h.sendTo(connID, PowerupActivatedMessage{Type: "powerup_activated", PowerupID: msg.PowerupID})
	h.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventPowerupActivated,
		Severity: logging.SeverityInfo,
		Actor:    logging.EntityRef{ID: msg.PlayerID, Kind: logging.EntityKindPlayer},
		Payload:  map[string]any{"powerupId": msg.PowerupID, "ttl": h.powerupTTL.String()},
	})

	// Stealth going up changes what everyone else may see.
	if gameID := h.registry.GameID(connID); gameID != "" {
		h.BroadcastState(ctx, gameID)
	}
}

// BroadcastState fetches one fresh snapshot and writes a personalized view
// to every connection in the game. The snapshot is fetched once per pass so
// all recipients observe the same instant, even though their visible subsets
// differ.
func (h *Hub) BroadcastState(ctx context.Context, gameID string) {
	snapshot, err := h.world.FetchSnapshot(ctx, gameID)
	if err != nil {
		log.Printf("skipping state broadcast for game %s: %v", gameID, err)
		return
	}

	abilities := h.registry.AbilitiesByPlayer(gameID)
	h.telemetry.RecordStateBroadcast()

	for _, rcpt := range h.registry.Recipients(gameID) {
		view := FilterForRecipient(snapshot, rcpt.playerID, abilities)
		data, err := json.Marshal(GameStateUpdateMessage{Type: "game_state_update", State: view})
		if err != nil {
			log.Printf("failed to marshal state update for %s: %v", rcpt.connID, err)
			continue
		}
		if err := rcpt.sub.write(data); err != nil {
			log.Printf("failed to send state update to %s: %v", rcpt.connID, err)
			h.dropConnection(ctx, rcpt.connID)
			continue
		}
		h.telemetry.RecordWrite(len(data))
	}
}

// BroadcastEvents writes each domain event, unfiltered, to every connection
// in the game. Stealth never redacts events: a capture or sever is a public
// fact even while the trail itself is hidden.
func (h *Hub) BroadcastEvents(ctx context.Context, gameID string, events []DomainEvent) {
	if len(events) == 0 {
		return
	}
	recipients := h.registry.Recipients(gameID)
	for _, event := range events {
		data, err := json.Marshal(event.message())
		if err != nil {
			log.Printf("failed to marshal event for game %s: %v", gameID, err)
			continue
		}
		h.telemetry.RecordEventBroadcast()
		for _, rcpt := range recipients {
			if err := rcpt.sub.write(data); err != nil {
				log.Printf("failed to send event to %s: %v", rcpt.connID, err)
				h.dropConnection(ctx, rcpt.connID)
				continue
			}
			h.telemetry.RecordWrite(len(data))
		}
	}
}

// RunAbilitySweeper expires abilities on a fixed cadence until stop closes.
// Each expiry triggers a state broadcast so a player coming out of stealth
// reappears promptly, not only on the next position update.
func (h *Hub) RunAbilitySweeper(stop <-chan struct{}) {
	ticker := time.NewTicker(h.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			h.sweepAbilities(context.Background())
		}
	}
}

func (h *Hub) sweepAbilities(ctx context.Context) {
	expired := h.registry.SweepExpired(h.clock())
	if len(expired) == 0 {
		return
	}
	games := make(map[string]struct{})
	for _, exp := range expired {
		h.publisher.Publish(ctx, logging.Event{
			Type:     logging.EventPowerupExpired,
			Severity: logging.SeverityInfo,
			Actor:    logging.EntityRef{ID: exp.playerID, Kind: logging.EntityKindPlayer},
			Payload:  map[string]any{"powerupId": exp.ability, "connId": exp.connID},
		})
		if exp.gameID != "" {
			games[exp.gameID] = struct{}{}
		}
	}
	for gameID := range games {
		h.BroadcastState(ctx, gameID)
	}
}

// sendInit delivers safe points and the raw world state to a fresh
// connection. Store failures degrade to empty payload sections; the
// connection stays open.
func (h *Hub) sendInit(ctx context.Context, connID string) {
	safePoints, err := h.safePoints.FetchAll(ctx)
	if err != nil {
		log.Printf("failed to fetch safe points for %s: %v", connID, err)
		safePoints = []SafePoint{}
	}
	snapshot, err := h.world.FetchSnapshot(ctx, "")
	if err != nil {
		log.Printf("failed to fetch init state for %s: %v", connID, err)
		snapshot = WorldSnapshot{}
	}
	h.sendTo(connID, InitMessage{Type: "init", SafePoints: safePoints, GameState: snapshot})
}

// sendTo writes one message to one connection, evicting it on failure.
func (h *Hub) sendTo(connID string, message any) {
	sub, ok := h.registry.lookup(connID)
	if !ok {
		return
	}
	data, err := json.Marshal(message)
	if err != nil {
		log.Printf("failed to marshal message for %s: %v", connID, err)
		return
	}
	if err := sub.write(data); err != nil {
		log.Printf("failed to send to %s: %v", connID, err)
		h.dropConnection(context.Background(), connID)
		return
	}
	h.telemetry.RecordWrite(len(data))
}

// dropConnection removes a connection exactly once and announces a bound
// player's departure to the rest of the game. Safe to hit from concurrent
// broadcast and read-loop paths.
func (h *Hub) dropConnection(ctx context.Context, connID string) {
	playerID, gameID, ok := h.registry.Unregister(connID)
	if !ok {
		return
	}
	h.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventPlayerLeft,
		Severity: logging.SeverityInfo,
		Actor:    logging.EntityRef{ID: playerID, Kind: logging.EntityKindPlayer},
		Payload:  map[string]any{"connId": connID, "gameId": gameID},
	})
	if playerID == "" || gameID == "" {
		return
	}
	data, err := json.Marshal(PlayerLeftMessage{Type: "player_left", PlayerID: playerID})
	if err != nil {
		return
	}
	for _, rcpt := range h.registry.Recipients(gameID) {
		if err := rcpt.sub.write(data); err != nil {
			h.dropConnection(ctx, rcpt.connID)
		}
	}
}

func (h *Hub) dropMessage(ctx context.Context, connID, reason string) {
	h.telemetry.RecordDroppedMessage()
	h.publisher.Publish(ctx, logging.Event{
		Type:     logging.EventMessageDropped,
		Severity: logging.SeverityWarn,
		Actor:    logging.EntityRef{ID: connID, Kind: logging.EntityKindConnection},
		Payload:  map[string]any{"reason": reason},
	})
}
