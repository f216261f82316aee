package server

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// subscriberConn is the slice of a websocket connection the broadcast path
// needs. *websocket.Conn satisfies it; tests substitute recorders.
type subscriberConn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// subscriber serializes writes to one connection.
type subscriber struct {
	conn subscriberConn
	mu   sync.Mutex
}

func (s *subscriber) write(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// connState is the ephemeral per-connection record. playerID and gameID stay
// empty until the client identifies itself; abilities maps ability name to
// its expiry deadline.
type connState struct {
	sub       *subscriber
	playerID  string
	gameID    string
	abilities map[string]time.Time
}

// Registry is the process-wide table of live connections. It owns the
// connection lifecycle: entries are created on accept, mutated by message
// handling and ability expiry, and removed exactly once on disconnect.
// Ability expiry is a deadline table swept against the injected clock, so
// unregistering a connection cancels its timers by deleting the entry.
type Registry struct {
	mu     sync.Mutex
	now    func() time.Time
	conns  map[string]*connState
	nextID atomic.Uint64
}

// NewRegistry creates an empty registry. A nil clock uses time.Now.
func NewRegistry(clock func() time.Time) *Registry {
	if clock == nil {
		clock = time.Now
	}
	return &Registry{now: clock, conns: make(map[string]*connState)}
}

// Register creates an entry for a freshly accepted connection and returns
// its handle. The entry is immediately visible to broadcast enumeration,
// before any identity is bound.
func (r *Registry) Register(conn subscriberConn) string {
	id := fmt.Sprintf("conn-%d", r.nextID.Add(1))
	r.mu.Lock()
	r.conns[id] = &connState{
		sub:       &subscriber{conn: conn},
		abilities: make(map[string]time.Time),
	}
	r.mu.Unlock()
	return id
}

// BindPlayer attaches a player and game to a connection. Idempotent;
// last write wins.
func (r *Registry) BindPlayer(connID, gameID, playerID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.conns[connID]
	if !ok {
		return false
	}
	if playerID != "" {
		state.playerID = playerID
	}
	if gameID != "" {
		state.gameID = gameID
	}
	return true
}

// lookup returns the subscriber for a live connection.
func (r *Registry) lookup(connID string) (*subscriber, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.conns[connID]
	if !ok {
		return nil, false
	}
	return state.sub, true
}

// GameID returns the game a connection has joined, if any.
func (r *Registry) GameID(connID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if state, ok := r.conns[connID]; ok {
		return state.gameID
	}
	return ""
}

// ActivateAbility records an ability with the given ttl. Re-activation
// extends the deadline. Returns false for an unknown connection — a stale
// activation is a no-op, never an error.
func (r *Registry) ActivateAbility(connID, ability string, ttl time.Duration) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	state, ok := r.conns[connID]
	if !ok {
		return false
	}
	state.abilities[ability] = r.now().Add(ttl)
	return true
}

// Unregister removes an entry and implicitly cancels its pending ability
// deadlines. Safe to call any number of times; only the first returns ok.
func (r *Registry) Unregister(connID string) (playerID, gameID string, ok bool) {
	r.mu.Lock()
	state, found := r.conns[connID]
	if found {
		delete(r.conns, connID)
	}
	r.mu.Unlock()
	if !found {
		return "", "", false
	}
	state.sub.conn.Close()
	return state.playerID, state.gameID, true
}

// expiredAbility identifies one ability deadline that passed during a sweep.
type expiredAbility struct {
	connID   string
	gameID   string
	playerID string
	ability  string
}

// SweepExpired drops every ability whose deadline has passed and reports the
// expirations. Deadlines belonging to since-removed connections are already
// gone with their entries.
func (r *Registry) SweepExpired(now time.Time) []expiredAbility {
	r.mu.Lock()
	defer r.mu.Unlock()
	var expired []expiredAbility
	for connID, state := range r.conns {
		for ability, deadline := range state.abilities {
			if now.Before(deadline) {
				continue
			}
			delete(state.abilities, ability)
			expired = append(expired, expiredAbility{
				connID:   connID,
				gameID:   state.gameID,
				playerID: state.playerID,
				ability:  ability,
			})
		}
	}
	return expired
}

// AbilitiesByPlayer maps bound players in a game to their currently active
// ability names. Deadlines are checked against the clock so a not-yet-swept
// expiry is still excluded.
func (r *Registry) AbilitiesByPlayer(gameID string) map[string][]string {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	byPlayer := make(map[string][]string)
	for _, state := range r.conns {
		if state.playerID == "" || state.gameID != gameID {
			continue
		}
		for ability, deadline := range state.abilities {
			if now.Before(deadline) {
				byPlayer[state.playerID] = append(byPlayer[state.playerID], ability)
			}
		}
	}
	return byPlayer
}

// ShieldedPlayers lists bound players in a game holding an active shield.
// The slice is never nil so it serializes as [] for the rules engine.
func (r *Registry) ShieldedPlayers(gameID string) []string {
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	shielded := make([]string, 0)
	for _, state := range r.conns {
		if state.playerID == "" || state.gameID != gameID {
			continue
		}
		if deadline, ok := state.abilities[AbilityShield]; ok && now.Before(deadline) {
			shielded = append(shielded, state.playerID)
		}
	}
	return shielded
}

// recipient pairs a live subscriber with the identity it is bound to, for
// per-connection personalized broadcast.
type recipient struct {
	connID   string
	playerID string
	sub      *subscriber
}

// Recipients enumerates the connections in a game at call time, plus any
// connection that has not yet joined a game: a just-accepted client is part
// of the very next fan-out, with anonymous filtering, before it identifies
// itself. Connections added or removed mid-broadcast simply appear in the
// next cycle.
func (r *Registry) Recipients(gameID string) []recipient {
	r.mu.Lock()
	defer r.mu.Unlock()
	recipients := make([]recipient, 0, len(r.conns))
	for connID, state := range r.conns {
		if state.gameID != gameID && state.gameID != "" {
			continue
		}
		recipients = append(recipients, recipient{connID: connID, playerID: state.playerID, sub: state.sub})
	}
	return recipients
}
