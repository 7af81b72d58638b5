// Package localize implements the BLE fingerprint k-NN position fix.
package localize

import (
	"encoding/json"
	"log"
	"math"
	"os"
	"sort"
)

// Position2D is a 2D point in the floor-plan local frame, in meters.
type Position2D struct {
	X, Y float64
}

// Reading is one live beacon observation from a BLE scan.
type Reading struct {
	BeaconID string
	RSSI     int
}

// Fingerprint is a surveyed reference point: a known position plus the
// signal strengths it recorded from each visible beacon.
type Fingerprint struct {
	RPID     string
	Position Position2D
	Signals  map[string]int
}

// missingRSSI is imputed for any beacon observed in one scan but not the
// other when computing fingerprint distance.
const missingRSSI = -100

// Localizer matches a live scan against a stored radio map via k-NN.
type Localizer struct {
	k   int
	log *log.Logger
	rps []Fingerprint
}

// New constructs a Localizer with neighbor count k, silently clamped up to 1.
func New(k int) *Localizer {
	if k < 1 {
		k = 1
	}
	return &Localizer{k: k, log: log.New(os.Stderr, "[ble] ", log.LstdFlags)}
}

// placeholderMap is the hardcoded three-RP hallway map shipped for smoke
// testing when no real radio map file has been loaded yet.
func placeholderMap() []Fingerprint {
	return []Fingerprint{
		{
			RPID:     "RP_HALLWAY_START",
			Position: Position2D{X: 0, Y: 0},
			Signals:  map[string]int{"BEACON_ID_1": -50, "BEACON_ID_2": -80, "BEACON_ID_3": -90},
		},
		{
			RPID:     "RP_HALLWAY_MIDDLE",
			Position: Position2D{X: 0, Y: 5},
			Signals:  map[string]int{"BEACON_ID_1": -65, "BEACON_ID_2": -65, "BEACON_ID_3": -85},
		},
		{
			RPID:     "RP_HALLWAY_END",
			Position: Position2D{X: 0, Y: 10},
			Signals:  map[string]int{"BEACON_ID_1": -90, "BEACON_ID_2": -50, "BEACON_ID_3": -80},
		},
	}
}

// UsePlaceholderMap loads the built-in three-RP hallway map, bypassing the
// file loader. Useful for smoke tests and first boot with no survey data.
func (l *Localizer) UsePlaceholderMap() {
	l.rps = placeholderMap()
}

type radioMapFile struct {
	Fingerprints []radioMapEntry `json:"fingerprints"`
}

type radioMapEntry struct {
	RPID     string         `json:"rp_id"`
	Position struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	} `json:"position"`
	Signals map[string]int `json:"signal_strengths"`
}

// LoadMap parses the radio-map JSON schema documented in the external
// interfaces section and replaces the in-memory fingerprint collection.
func (l *Localizer) LoadMap(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc radioMapFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return err
	}
	rps := make([]Fingerprint, 0, len(doc.Fingerprints))
	for _, e := range doc.Fingerprints {
		rps = append(rps, Fingerprint{
			RPID:     e.RPID,
			Position: Position2D{X: e.Position.X, Y: e.Position.Y},
			Signals:  e.Signals,
		})
	}
	l.rps = rps
	return nil
}

// neighbor pairs a stored RP's position with its fingerprint distance to
// the live scan, for sorting.
type neighbor struct {
	distance float64
	position Position2D
}

// FindClosestPosition matches scan against the stored radio map and
// returns the centroid of the top-min(k,N) closest reference points.
func (l *Localizer) FindClosestPosition(scan []Reading) Position2D {
	if len(l.rps) == 0 {
		l.log.Printf("fingerprint map is empty, was LoadMap/UsePlaceholderMap called?")
		return Position2D{}
	}

	live := make(map[string]int, len(scan))
	for _, r := range scan {
		live[r.BeaconID] = r.RSSI
	}

	neighbors := make([]neighbor, len(l.rps))
	for i, rp := range l.rps {
		neighbors[i] = neighbor{
			distance: fingerprintDistance(live, rp.Signals),
			position: rp.Position,
		}
	}
	sort.SliceStable(neighbors, func(i, j int) bool { return neighbors[i].distance < neighbors[j].distance })

	n := l.k
	if n > len(neighbors) {
		n = len(neighbors)
	}
	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += neighbors[i].position.X
		sumY += neighbors[i].position.Y
	}
	return Position2D{X: sumX / float64(n), Y: sumY / float64(n)}
}

// fingerprintDistance is the Euclidean distance between two RSSI vectors
// over the union of observed beacon ids, imputing missingRSSI for any
// beacon absent from one side.
func fingerprintDistance(a, b map[string]int) float64 {
	seen := make(map[string]struct{}, len(a)+len(b))
	for id := range a {
		seen[id] = struct{}{}
	}
	for id := range b {
		seen[id] = struct{}{}
	}

	sumSq := 0.0
	for id := range seen {
		va, ok := a[id]
		if !ok {
			va = missingRSSI
		}
		vb, ok := b[id]
		if !ok {
			vb = missingRSSI
		}
		d := float64(va - vb)
		sumSq += d * d
	}
	return math.Sqrt(sumSq)
}
