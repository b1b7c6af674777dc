package office

import (
	"math"
	"time"
)

const (
	// ProximityThreshold is the distance in world units beyond which a
	// player is no longer audible.
	ProximityThreshold = 150.0

	// proximityInterval is the period of the proximity tick.
	proximityInterval = 100 * time.Millisecond
)

// Neighbor is one audible player in a PROXIMITY_UPDATE.
type Neighbor struct {
	ID       string  `json:"id"`
	Distance float64 `json:"distance"`
	Volume   float64 `json:"volume"`
}

// ProximityUpdate is the per-player payload sent on every tick.
type ProximityUpdate struct {
	NearbyPlayers      []Neighbor `json:"nearbyPlayers"`
	ProximityThreshold float64    `json:"proximityThreshold"`
}

// NearbyPlayers computes, for every player, the other players within
// ProximityThreshold together with their attenuated volume. Volume
// falls off linearly: 1.0 at distance 0, 0.0 at the threshold. The
// pairwise scan is O(n²) per call, acceptable for rooms of tens of
// players.
func NearbyPlayers(players map[string]*Player) map[string][]Neighbor {
	out := make(map[string][]Neighbor, len(players))
	for id, a := range players {
		near := []Neighbor{}
		for otherID, b := range players {
			if otherID == id {
				continue
			}
			d := math.Hypot(a.X-b.X, a.Y-b.Y)
			if d > ProximityThreshold {
				continue
			}
			near = append(near, Neighbor{
				ID:       otherID,
				Distance: d,
				Volume:   math.Max(0, 1-d/ProximityThreshold),
			})
		}
		out[id] = near
	}
	return out
}
