// Package announcer drives the waypoint-tracking state machine that
// emits audio guidance cues along an active path.
package announcer

import (
	"math"
	"time"

	"tire/ekf"
	"tire/navgraph"
)

const (
	// WaypointReachedRadius is how close, in meters, the user must be to
	// a target node before it counts as reached.
	WaypointReachedRadius = 1.5
	// AnnouncementCooldown bounds how often turn guidance may repeat.
	AnnouncementCooldown = 3 * time.Second
	// TurnThreshold is the heading-error magnitude, in radians (~20
	// degrees), above which a turn cue is issued instead of silence.
	TurnThreshold = 0.35

	cueDestinationReached = "destination_reached"
	cueBeepCheckpoint     = "beep_checkpoint"
	cueTurnLeft           = "turn_left"
	cueTurnRight          = "turn_right"
)

// Announcer tracks progress along an active path and decides which audio
// cue, if any, to play on each tick.
type Announcer struct {
	nextTargetIndex    int
	destinationReached bool
	lastAnnouncement   time.Time
}

// New constructs an Announcer ready to track the first path it is given.
func New() *Announcer {
	a := &Announcer{}
	a.Reset()
	return a
}

// Reset reinitializes tracking state. Call whenever a new path has been
// computed.
func (a *Announcer) Reset() {
	a.nextTargetIndex = 1
	a.destinationReached = false
	a.lastAnnouncement = time.Now()
}

// Update evaluates one tick of guidance against the current pose, active
// path, and graph, invoking play for any audio cue that should be heard
// this tick. Returns the new next-target index, or -1 if there is no
// active path, the path is missing a referenced node, or the destination
// has already been reached.
func (a *Announcer) Update(pose ekf.Pose, path []string, g *navgraph.Graph, play func(cueID string)) int {
	if len(path) == 0 || a.destinationReached {
		return -1
	}

	if a.nextTargetIndex >= len(path) {
		if !a.destinationReached {
			play(cueDestinationReached)
			a.destinationReached = true
		}
		return -1
	}

	targetID := path[a.nextTargetIndex]
	target, ok := g.Get(targetID)
	if !ok {
		return -1
	}

	dx := target.Position.X - pose.X
	dy := target.Position.Y - pose.Y
	distance := math.Hypot(dx, dy)

	if distance < WaypointReachedRadius {
		if target.AudioCue != "" {
			play(target.AudioCue)
		} else {
			play(cueBeepCheckpoint)
		}
		a.nextTargetIndex++
		a.lastAnnouncement = time.Time{} // force immediate guidance next tick
		return a.nextTargetIndex
	}

	if time.Since(a.lastAnnouncement) < AnnouncementCooldown {
		return a.nextTargetIndex
	}

	bearing := math.Atan2(dy, dx)
	headingError := wrap(bearing - pose.Theta)

	switch {
	case headingError > TurnThreshold:
		play(cueTurnLeft)
		a.lastAnnouncement = time.Now()
	case headingError < -TurnThreshold:
		play(cueTurnRight)
		a.lastAnnouncement = time.Now()
	default:
		// on track, silence
	}

	return a.nextTargetIndex
}

func wrap(theta float64) float64 {
	theta = math.Mod(theta+math.Pi, 2*math.Pi)
	if theta <= 0 {
		theta += 2 * math.Pi
	}
	return theta - math.Pi
}
