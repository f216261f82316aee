package server

// ClientMessage is the envelope for every inbound frame. Fields beyond Type
// are populated depending on the message variant; pointers distinguish
// "absent" from zero for coordinates.
type ClientMessage struct {
	Type      string   `json:"type"`
	GameID    string   `json:"gameId,omitempty"`
	PlayerID  string   `json:"playerId,omitempty"`
	PowerupID string   `json:"powerupId,omitempty"`
	Lat       *float64 `json:"lat,omitempty"`
	Lng       *float64 `json:"lng,omitempty"`
}

const (
	msgJoinGame       = "join_game_socket"
	msgPositionUpdate = "position_update"
	msgUsePowerup     = "use_powerup"
	msgPing           = "ping"
)

// InitMessage is sent once per connection, immediately after accept.
type InitMessage struct {
	Type       string        `json:"type"`
	SafePoints []SafePoint   `json:"safePoints"`
	GameState  WorldSnapshot `json:"gameState"`
}

// GameStateUpdateMessage carries the per-recipient filtered snapshot.
type GameStateUpdateMessage struct {
	Type  string        `json:"type"`
	State WorldSnapshot `json:"state"`
}

// TerritoryCapturedMessage announces a closed loop. Always unfiltered.
type TerritoryCapturedMessage struct {
	Type      string  `json:"type"`
	PlayerID  string  `json:"playerId"`
	AreaAdded float64 `json:"areaAdded"`
}

// TrailSeveredMessage announces one trail cutting another. Always unfiltered.
type TrailSeveredMessage struct {
	Type       string `json:"type"`
	AttackerID string `json:"attackerId"`
	VictimID   string `json:"victimId"`
}

// TrailBankedMessage announces a player banking their trail. Always unfiltered.
type TrailBankedMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// PowerupActivatedMessage is sent only to the activating connection.
type PowerupActivatedMessage struct {
	Type      string `json:"type"`
	PowerupID string `json:"powerupId"`
}

// PlayerLeftMessage is broadcast when a bound connection closes.
type PlayerLeftMessage struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// PongMessage answers a client ping.
type PongMessage struct {
	Type string `json:"type"`
}

// ServerMessages is the schema root reflected by cmd/schema. It exists so the
// generated document covers every outbound frame in one place.
type ServerMessages struct {
	Init              InitMessage              `json:"init"`
	GameStateUpdate   GameStateUpdateMessage   `json:"game_state_update"`
	TerritoryCaptured TerritoryCapturedMessage `json:"territory_captured"`
	TrailSevered      TrailSeveredMessage      `json:"trail_severed"`
	TrailBanked       TrailBankedMessage       `json:"trail_banked"`
	PowerupActivated  PowerupActivatedMessage  `json:"powerup_activated"`
	PlayerLeft        PlayerLeftMessage        `json:"player_left"`
	Pong              PongMessage              `json:"pong"`
}
