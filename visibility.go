package server

import "slices"

// FilterForRecipient computes the world view one recipient is allowed to
// see. A player and their trail are omitted exactly when that player has
// stealth active and is not the recipient; the recipient always sees
// themself. Territories are never filtered — captured land is public.
//
// Pure: identical inputs produce identical output, and the input snapshot is
// not mutated. An empty recipientID is the anonymous view: it matches no
// player, so every stealthed player is redacted.
func FilterForRecipient(snapshot WorldSnapshot, recipientID string, abilitiesByPlayer map[string][]string) WorldSnapshot {
	players := make([]PlayerInfo, 0, len(snapshot.Players))
	for _, player := range snapshot.Players {
		abilities := abilitiesByPlayer[player.ID]
		if hasStealth(abilities) && player.ID != recipientID {
			continue
		}
		if len(abilities) > 0 {
			player.Powerups = slices.Clone(abilities)
		}
		players = append(players, player)
	}

	trails := make([]Trail, 0, len(snapshot.Trails))
	for _, trail := range snapshot.Trails {
		if hasStealth(abilitiesByPlayer[trail.OwnerID]) && trail.OwnerID != recipientID {
			continue
		}
		trails = append(trails, trail)
	}

	return WorldSnapshot{
		Players:     players,
		Trails:      trails,
		Territories: snapshot.Territories,
	}
}

func hasStealth(abilities []string) bool {
	return slices.Contains(abilities, AbilityStealth)
}
