package server

import (
	"reflect"
	"testing"
	"time"
)

func testSnapshot() WorldSnapshot {
	return WorldSnapshot{
		Players: []PlayerInfo{
			{ID: "player-x", DisplayName: "X", Score: 10},
			{ID: "player-y", DisplayName: "Y", Score: 20},
		},
		Trails: []Trail{
			{OwnerID: "player-x", Path: []LatLng{{Lat: 1, Lng: 2}, {Lat: 1.1, Lng: 2.1}}},
			{OwnerID: "player-y", Path: []LatLng{{Lat: 3, Lng: 4}}},
		},
		Territories: []Territory{
			{OwnerID: "player-x", Polygon: []LatLng{{Lat: 1, Lng: 2}}, AreaMagnitude: 120},
		},
	}
}

func containsPlayer(players []PlayerInfo, id string) bool {
	for _, p := range players {
		if p.ID == id {
			return true
		}
	}
	return false
}

func containsTrail(trails []Trail, ownerID string) bool {
	for _, trail := range trails {
		if trail.OwnerID == ownerID {
			return true
		}
	}
	return false
}

func TestFilterHidesStealthedPlayerFromOthers(t *testing.T) {
	abilities := map[string][]string{"player-x": {AbilityStealth}}

	view := FilterForRecipient(testSnapshot(), "player-y", abilities)

	if containsPlayer(view.Players, "player-x") {
		t.Fatalf("expected stealthed player-x hidden from player-y")
	}
	if containsTrail(view.Trails, "player-x") {
		t.Fatalf("expected stealthed player-x trail hidden from player-y")
	}
	if !containsPlayer(view.Players, "player-y") {
		t.Fatalf("expected player-y to remain visible")
	}
}

func TestFilterKeepsSelfVisibleRegardlessOfStealth(t *testing.T) {
	abilities := map[string][]string{"player-x": {AbilityStealth}}

	view := FilterForRecipient(testSnapshot(), "player-x", abilities)

	if !containsPlayer(view.Players, "player-x") {
		t.Fatalf("expected recipient to see themself while stealthed")
	}
	if !containsTrail(view.Trails, "player-x") {
		t.Fatalf("expected recipient to see their own trail while stealthed")
	}
}

func TestTerritoriesAreNeverFiltered(t *testing.T) {
	abilities := map[string][]string{"player-x": {AbilityStealth}}

	view := FilterForRecipient(testSnapshot(), "player-y", abilities)

	if len(view.Territories) != 1 || view.Territories[0].OwnerID != "player-x" {
		t.Fatalf("expected territory to survive filtering, got %v", view.Territories)
	}
}

func TestAnonymousRecipientGetsFullyRedactedView(t *testing.T) {
	abilities := map[string][]string{
		"player-x": {AbilityStealth},
		"player-y": {AbilityStealth},
	}

	view := FilterForRecipient(testSnapshot(), "", abilities)

	if len(view.Players) != 0 {
		t.Fatalf("expected every stealthed player hidden from anonymous view, got %v", view.Players)
	}
	if len(view.Trails) != 0 {
		t.Fatalf("expected every stealthed trail hidden from anonymous view, got %v", view.Trails)
	}
	if len(view.Territories) != 1 {
		t.Fatalf("expected territories intact for anonymous view")
	}
}

func TestFilterIsPure(t *testing.T) {
	snapshot := testSnapshot()
	abilities := map[string][]string{"player-x": {AbilityStealth, AbilityShield}}

	first := FilterForRecipient(snapshot, "player-y", abilities)
	second := FilterForRecipient(snapshot, "player-y", abilities)

	if !reflect.DeepEqual(first, second) {
		t.Fatalf("expected identical outputs for identical inputs")
	}
	if !reflect.DeepEqual(snapshot, testSnapshot()) {
		t.Fatalf("expected input snapshot to be unmodified")
	}
}

func TestFilterAttachesActivePowerups(t *testing.T) {
	abilities := map[string][]string{"player-y": {AbilityShield}}

	view := FilterForRecipient(testSnapshot(), "player-x", abilities)

	for _, p := range view.Players {
		if p.ID == "player-y" {
			if len(p.Powerups) != 1 || p.Powerups[0] != AbilityShield {
				t.Fatalf("expected shield attached to player-y, got %v", p.Powerups)
			}
			return
		}
	}
	t.Fatalf("player-y missing from view")
}

// Stealth activated at T with a 60s ttl hides the player at T+30 for
// everyone else and for nobody at T+61.
func TestStealthExpiryScenario(t *testing.T) {
	start := time.Unix(1000, 0)
	clock := newFakeClock(start)
	registry := NewRegistry(clock.Now)
	connID := registry.Register(&recordingConn{})
	registry.BindPlayer(connID, "game-1", "player-x")
	registry.ActivateAbility(connID, AbilityStealth, 60*time.Second)

	clock.Advance(30 * time.Second)
	abilities := registry.AbilitiesByPlayer("game-1")

	forOther := FilterForRecipient(testSnapshot(), "player-y", abilities)
	if containsPlayer(forOther.Players, "player-x") {
		t.Fatalf("expected player-x hidden from player-y at T+30")
	}
	forSelf := FilterForRecipient(testSnapshot(), "player-x", abilities)
	if !containsPlayer(forSelf.Players, "player-x") {
		t.Fatalf("expected player-x visible to themself at T+30")
	}

	clock.Advance(31 * time.Second)
	abilities = registry.AbilitiesByPlayer("game-1")
	forOther = FilterForRecipient(testSnapshot(), "player-y", abilities)
	if !containsPlayer(forOther.Players, "player-x") {
		t.Fatalf("expected player-x visible to everyone at T+61")
	}
}
