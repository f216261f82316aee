// Package sqlite provides the SQLite-backed implementation of the world
// state, safe point, and inventory boundaries.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	server "loopin/server"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS players (
	id TEXT PRIMARY KEY,
	username TEXT NOT NULL,
	wallet_address TEXT NOT NULL DEFAULT '',
	score REAL NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS game_sessions (
	id TEXT PRIMARY KEY,
	status TEXT NOT NULL DEFAULT 'lobby',
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS player_trails (
	player_id TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	path TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS player_territories (
	id TEXT PRIMARY KEY,
	game_id TEXT NOT NULL,
	player_id TEXT NOT NULL,
	polygon TEXT NOT NULL,
	area REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS safe_points (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	lat REAL NOT NULL,
	lng REAL NOT NULL
);
CREATE TABLE IF NOT EXISTS powerup_inventory (
	player_id TEXT NOT NULL,
	powerup_id TEXT NOT NULL,
	quantity INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (player_id, powerup_id)
);
`

// Store persists game state in SQLite.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a store at path and applies the schema. Pass ":memory:" for an
// ephemeral database.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schemaSQL); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// FetchSnapshot reads the world state for one game, or the unscoped state
// when gameID is empty. Players are global; trails and territories are
// game-scoped.
func (s *Store) FetchSnapshot(ctx context.Context, gameID string) (server.WorldSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return server.WorldSnapshot{}, err
	}
	if s == nil || s.sqlDB == nil {
		return server.WorldSnapshot{}, fmt.Errorf("storage is not configured")
	}

	players, err := s.fetchPlayers(ctx)
	if err != nil {
		return server.WorldSnapshot{}, err
	}
	trails, err := s.fetchTrails(ctx, gameID)
	if err != nil {
		return server.WorldSnapshot{}, err
	}
	territories, err := s.fetchTerritories(ctx, gameID)
	if err != nil {
		return server.WorldSnapshot{}, err
	}

	return server.WorldSnapshot{Players: players, Trails: trails, Territories: territories}, nil
}

func (s *Store) fetchPlayers(ctx context.Context) ([]server.PlayerInfo, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, username, wallet_address, score FROM players`)
	if err != nil {
		return nil, fmt.Errorf("query players: %w", err)
	}
	defer rows.Close()

	players := make([]server.PlayerInfo, 0)
	for rows.Next() {
		var p server.PlayerInfo
		if err := rows.Scan(&p.ID, &p.DisplayName, &p.WalletRef, &p.Score); err != nil {
			return nil, fmt.Errorf("scan player: %w", err)
		}
		players = append(players, p)
	}
	return players, rows.Err()
}

func (s *Store) fetchTrails(ctx context.Context, gameID string) ([]server.Trail, error) {
	query := `SELECT player_id, path FROM player_trails`
	args := []any{}
	if gameID != "" {
		query += ` WHERE game_id = ?`
		args = append(args, gameID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query trails: %w", err)
	}
	defer rows.Close()

	trails := make([]server.Trail, 0)
	for rows.Next() {
		var trail server.Trail
		var rawPath string
		if err := rows.Scan(&trail.OwnerID, &rawPath); err != nil {
			return nil, fmt.Errorf("scan trail: %w", err)
		}
		if err := json.Unmarshal([]byte(rawPath), &trail.Path); err != nil {
			return nil, fmt.Errorf("decode trail path for %s: %w", trail.OwnerID, err)
		}
		trails = append(trails, trail)
	}
	return trails, rows.Err()
}

func (s *Store) fetchTerritories(ctx context.Context, gameID string) ([]server.Territory, error) {
	query := `SELECT player_id, polygon, area FROM player_territories`
	args := []any{}
	if gameID != "" {
		query += ` WHERE game_id = ?`
		args = append(args, gameID)
	}
	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query territories: %w", err)
	}
	defer rows.Close()

	territories := make([]server.Territory, 0)
	for rows.Next() {
		var territory server.Territory
		var rawPolygon string
		if err := rows.Scan(&territory.OwnerID, &rawPolygon, &territory.AreaMagnitude); err != nil {
			return nil, fmt.Errorf("scan territory: %w", err)
		}
		if err := json.Unmarshal([]byte(rawPolygon), &territory.Polygon); err != nil {
			return nil, fmt.Errorf("decode territory polygon for %s: %w", territory.OwnerID, err)
		}
		territories = append(territories, territory)
	}
	return territories, rows.Err()
}

// FetchAll returns every safe point.
func (s *Store) FetchAll(ctx context.Context) ([]server.SafePoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT id, name, lat, lng FROM safe_points`)
	if err != nil {
		return nil, fmt.Errorf("query safe points: %w", err)
	}
	defer rows.Close()

	points := make([]server.SafePoint, 0)
	for rows.Next() {
		var point server.SafePoint
		if err := rows.Scan(&point.ID, &point.Name, &point.Location.Lat, &point.Location.Lng); err != nil {
			return nil, fmt.Errorf("scan safe point: %w", err)
		}
		points = append(points, point)
	}
	return points, rows.Err()
}

// TryConsume decrements one unit of a powerup if the player owns any.
// Returns false, nil when the inventory is empty or absent.
func (s *Store) TryConsume(ctx context.Context, playerID, powerupID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	res, err := s.sqlDB.ExecContext(ctx,
		`UPDATE powerup_inventory SET quantity = quantity - 1 WHERE player_id = ? AND powerup_id = ? AND quantity > 0`,
		playerID, powerupID)
	if err != nil {
		return false, fmt.Errorf("consume powerup: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume powerup result: %w", err)
	}
	return affected > 0, nil
}

// EnsurePlayer finds a player by wallet address, creating one with a default
// display name when absent.
func (s *Store) EnsurePlayer(ctx context.Context, walletAddress string) (server.PlayerInfo, error) {
	if err := ctx.Err(); err != nil {
		return server.PlayerInfo{}, err
	}
	if s == nil || s.sqlDB == nil {
		return server.PlayerInfo{}, fmt.Errorf("storage is not configured")
	}
	walletAddress = strings.TrimSpace(walletAddress)
	if walletAddress == "" {
		return server.PlayerInfo{}, fmt.Errorf("wallet address is required")
	}

	var existing server.PlayerInfo
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT id, username, wallet_address, score FROM players WHERE wallet_address = ?`,
		walletAddress).Scan(&existing.ID, &existing.DisplayName, &existing.WalletRef, &existing.Score)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return server.PlayerInfo{}, fmt.Errorf("find player: %w", err)
	}

	name := walletAddress
	if len(name) > 6 {
		name = name[:6]
	}
	player := server.PlayerInfo{
		ID:          uuid.NewString(),
		DisplayName: "Player " + name,
		WalletRef:   walletAddress,
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO players (id, username, wallet_address, score) VALUES (?, ?, ?, 0)`,
		player.ID, player.DisplayName, player.WalletRef); err != nil {
		return server.PlayerInfo{}, fmt.Errorf("create player: %w", err)
	}
	return player, nil
}

// CreateGameSession inserts a lobby session and returns its id.
func (s *Store) CreateGameSession(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	id := uuid.NewString()
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO game_sessions (id, status, created_at) VALUES (?, 'lobby', ?)`,
		id, time.Now().UTC().UnixMilli()); err != nil {
		return "", fmt.Errorf("create game session: %w", err)
	}
	return id, nil
}

// GrantPowerup adds quantity units of a powerup to a player's inventory.
func (s *Store) GrantPowerup(ctx context.Context, playerID, powerupID string, quantity int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if quantity <= 0 {
		return fmt.Errorf("quantity must be positive")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO powerup_inventory (player_id, powerup_id, quantity) VALUES (?, ?, ?)
		 ON CONFLICT (player_id, powerup_id) DO UPDATE SET quantity = quantity + excluded.quantity`,
		playerID, powerupID, quantity); err != nil {
		return fmt.Errorf("grant powerup: %w", err)
	}
	return nil
}

// AddSafePoint inserts one safe point and returns its id.
func (s *Store) AddSafePoint(ctx context.Context, name string, location server.LatLng) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if s == nil || s.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	id := uuid.NewString()
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO safe_points (id, name, lat, lng) VALUES (?, ?, ?, ?)`,
		id, name, location.Lat, location.Lng); err != nil {
		return "", fmt.Errorf("add safe point: %w", err)
	}
	return id, nil
}

// UpsertTrail replaces a player's active trail. One unclosed trail per
// player: the primary key enforces the invariant.
func (s *Store) UpsertTrail(ctx context.Context, gameID string, trail server.Trail) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	path, err := json.Marshal(trail.Path)
	if err != nil {
		return fmt.Errorf("encode trail path: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO player_trails (player_id, game_id, path) VALUES (?, ?, ?)
		 ON CONFLICT (player_id) DO UPDATE SET game_id = excluded.game_id, path = excluded.path`,
		trail.OwnerID, gameID, string(path)); err != nil {
		return fmt.Errorf("upsert trail: %w", err)
	}
	return nil
}

// AppendTerritory records a captured polygon. Territories are append-only.
func (s *Store) AppendTerritory(ctx context.Context, gameID string, territory server.Territory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	polygon, err := json.Marshal(territory.Polygon)
	if err != nil {
		return fmt.Errorf("encode territory polygon: %w", err)
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO player_territories (id, game_id, player_id, polygon, area) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), gameID, territory.OwnerID, string(polygon), territory.AreaMagnitude); err != nil {
		return fmt.Errorf("append territory: %w", err)
	}
	return nil
}
