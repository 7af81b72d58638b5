// Package control wires the hardware port, positioning pipeline, and
// guidance state machine into the engine's single 50Hz control loop.
package control

import (
	"context"
	"log"
	"os"
	"time"

	"tire/announcer"
	"tire/ekf"
	"tire/hardware"
	"tire/localize"
	"tire/navgraph"
	"tire/pdr"
)

// TickInterval is the control loop's target period.
const TickInterval = 20 * time.Millisecond

// BLECorrectionInterval is how often, at minimum, a BLE scan is used to
// correct the EKF while navigating or idle.
const BLECorrectionInterval = 5 * time.Second

// DefaultDestinationID is the hardcoded destination used by
// KEY_START_NAVIGATION, matching the prototype behavior of the source
// this engine is ported from.
const DefaultDestinationID = "RP_HALLWAY_END"

const defaultStartID = "RP_HALLWAY_START"

// Session tracks the current navigation attempt, if any.
type Session struct {
	Path               []string
	DestinationID      string
	IsNavigating       bool
	NextTargetIndex    int
	DestinationReached bool
	LastAnnouncement   time.Time
}

// TelemetrySnapshot is the best-effort, non-blocking pose/session
// snapshot pushed to the telemetry hub each tick.
type TelemetrySnapshot struct {
	Pose         ekf.Pose
	IsNavigating bool
	Path         []string
	LastCue      string
}

// Loop owns every piece of mutable state needed to run the engine: the
// hardware port, the algorithmic pipeline, and the current session. No
// package-level globals are used — the source this is ported from
// tracks its loop timer and BLE correction timer as function-local
// statics; here they are fields.
type Loop struct {
	port      hardware.Port
	graph     *navgraph.Graph
	localizer *localize.Localizer
	pdr       *pdr.PDR
	ekf       *ekf.EKF
	announcer *announcer.Announcer

	session  Session
	lastTick time.Time
	bleTimer time.Duration

	telemetry func(TelemetrySnapshot)

	log *log.Logger
}

// New wires the loop's dependencies together. gyroSign is forwarded to
// the PDR to correct for IMU mounting handedness.
func New(port hardware.Port, graph *navgraph.Graph, localizer *localize.Localizer, gyroSign float64) *Loop {
	return &Loop{
		port:      port,
		graph:     graph,
		localizer: localizer,
		pdr:       pdr.New(gyroSign),
		ekf:       ekf.New(),
		announcer: announcer.New(),
		log:       log.New(os.Stderr, "[loop] ", log.LstdFlags),
	}
}

// SetTelemetrySink registers a non-blocking callback invoked once per
// tick with the current pose/session snapshot. Pass nil to disable.
func (l *Loop) SetTelemetrySink(sink func(TelemetrySnapshot)) {
	l.telemetry = sink
}

// Run drives the loop at TickInterval until the hardware power switch
// reports off or ctx is cancelled.
func (l *Loop) Run(ctx context.Context) {
	l.lastTick = time.Now()
	ticker := time.NewTicker(TickInterval)
	defer ticker.Stop()

	l.log.Println("system ready, waiting for input")

	for l.port.PowerOn() {
		select {
		case <-ctx.Done():
			l.log.Println("context cancelled, shutting down")
			return
		case now := <-ticker.C:
			l.tick(now)
		}
	}

	l.log.Println("power switch off, shutting down")
}

func (l *Loop) tick(now time.Time) {
	dt := now.Sub(l.lastTick).Seconds()
	l.lastTick = now

	imu := l.port.ReadIMU()
	key := l.port.PollKey()

	if key != hardware.KeyNone {
		l.handleKey(key)
	}

	l.pdr.ProcessIMU(pdr.Sample{
		AX: imu.AX, AY: imu.AY, AZ: imu.AZ,
		GX: imu.GX, GY: imu.GY, GZ: imu.GZ,
	}, dt)
	l.ekf.Predict(l.pdr.DrainUpdate())

	l.bleTimer += time.Duration(dt * float64(time.Second))
	if l.bleTimer > BLECorrectionInterval {
		l.applyBLECorrection()
		l.bleTimer = 0
	}

	var lastCue string
	if l.session.IsNavigating {
		play := func(cueID string) {
			lastCue = cueID
			l.port.PlayAudio(cueID)
		}
		next := l.announcer.Update(l.ekf.State(), l.session.Path, l.graph, play)
		l.session.NextTargetIndex = next
		if next == -1 {
			l.session.DestinationReached = true
		}
		if lastCue != "" {
			l.session.LastAnnouncement = now
		}
	}

	if l.telemetry != nil {
		l.telemetry(TelemetrySnapshot{
			Pose:         l.ekf.State(),
			IsNavigating: l.session.IsNavigating,
			Path:         l.session.Path,
			LastCue:      lastCue,
		})
	}
}

func (l *Loop) handleKey(key hardware.KeyPress) {
	switch key {
	case hardware.KeyWhereAmI:
		l.log.Println("input: where am I?")
		scan := l.port.ScanBLE()
		pos := l.localizer.FindClosestPosition(scanToReadings(scan))
		if err := l.ekf.Update(pos); err != nil {
			l.log.Printf("where-am-i update dropped: %v", err)
		}
		l.port.PlayAudio(hardware.CueLocationUpdate)

	case hardware.KeyStartNavigation:
		l.log.Println("input: start navigation")
		l.startNavigation(DefaultDestinationID)

	default:
		// Column key entry is reserved for a future destination picker;
		// nothing in the pipeline consumes it yet.
	}
}

func (l *Loop) startNavigation(destinationID string) {
	state := l.ekf.State()
	startID, ok := l.graph.NearestNode(localize.Position2D{X: state.X, Y: state.Y})
	if !ok {
		startID = defaultStartID
	}

	path := navgraph.FindPath(l.graph, startID, destinationID)
	if len(path) == 0 {
		l.port.PlayAudio(hardware.CueErrorNoPath)
		return
	}

	l.session = Session{
		Path:            path,
		DestinationID:   destinationID,
		IsNavigating:    true,
		NextTargetIndex: 1,
	}
	l.announcer.Reset()
	l.port.PlayAudio(hardware.CueNavigationStarted)
}

func (l *Loop) applyBLECorrection() {
	scan := l.port.ScanBLE()
	if len(scan) == 0 {
		return
	}
	pos := l.localizer.FindClosestPosition(scanToReadings(scan))
	if err := l.ekf.Update(pos); err != nil {
		l.log.Printf("BLE correction dropped: %v", err)
	}
}

func scanToReadings(scan []hardware.BLEReading) []localize.Reading {
	readings := make([]localize.Reading, len(scan))
	for i, s := range scan {
		readings[i] = localize.Reading{BeaconID: s.BeaconID, RSSI: s.RSSI}
	}
	return readings
}
