package server

import "context"

// LatLng is a GPS coordinate as reported by clients and stored in trails.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// PlayerInfo is the public view of a player inside a world snapshot.
// Powerups is filled in per recipient during visibility filtering; the
// authoritative store leaves it empty.
type PlayerInfo struct {
	ID          string   `json:"id"`
	DisplayName string   `json:"username"`
	WalletRef   string   `json:"walletAddress,omitempty"`
	Score       float64  `json:"score"`
	Powerups    []string `json:"powerups,omitempty"`
}

// Trail is the unclosed path a player is currently drawing. A player has at
// most one active trail.
type Trail struct {
	OwnerID string   `json:"playerId"`
	Path    []LatLng `json:"path"`
}

// Territory is a captured polygon. Territories are append-only for the
// duration of a round and are never hidden from any recipient.
type Territory struct {
	OwnerID       string   `json:"playerId"`
	Polygon       []LatLng `json:"polygon"`
	AreaMagnitude float64  `json:"area"`
}

// WorldSnapshot is a point-in-time read of the authoritative world state.
// It is fetched fresh for each broadcast pass and never mutated in place.
type WorldSnapshot struct {
	Players     []PlayerInfo `json:"players"`
	Trails      []Trail      `json:"trails"`
	Territories []Territory  `json:"territories"`
}

// SafePoint is a neutral map location sent to clients in the init payload.
type SafePoint struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location LatLng `json:"location"`
}

// WorldStateStore fetches the snapshot a broadcast pass is built from.
// An empty gameID requests the unscoped state used for the init payload.
type WorldStateStore interface {
	FetchSnapshot(ctx context.Context, gameID string) (WorldSnapshot, error)
}

// SafePointStore fetches the safe points sent once per connection.
type SafePointStore interface {
	FetchAll(ctx context.Context) ([]SafePoint, error)
}

// InventoryStore consumes one unit of a powerup if the player owns any.
type InventoryStore interface {
	TryConsume(ctx context.Context, playerID, powerupID string) (bool, error)
}
