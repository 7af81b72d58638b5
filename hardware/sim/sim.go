// Package sim provides a deterministic, dependency-free hardware.Port
// backend for running the engine off real sensors: constant near-gravity
// acceleration with slow simulated gyro drift, a fixed three-beacon scan,
// and a key queue a test or CLI flag can feed.
package sim

import (
	"log"
	"os"
	"time"

	"tire/hardware"
)

// ScanDelay is how long ScanBLE simulates a physical scan taking.
const ScanDelay = 1 * time.Second

// Hardware is an in-memory stand-in for a physical device, grounded in
// the reference simulation: near-gravity acceleration on one axis plus
// small cross-axis noise, and a gyro Z that drifts by a fixed amount
// every sample to exercise heading integration without real rotation.
type Hardware struct {
	gyroDrift float64
	keys      chan hardware.KeyPress
	poweredOn bool

	log *log.Logger
}

// New constructs a simulated backend. It starts powered on; call
// Shutdown to flip PowerOn false and terminate a control loop cleanly.
func New() *Hardware {
	return &Hardware{
		poweredOn: true,
		keys:      make(chan hardware.KeyPress, 16),
		log:       log.New(os.Stderr, "[hardware/sim] ", log.LstdFlags),
	}
}

// Initialize always succeeds for the simulated backend.
func (h *Hardware) Initialize() error {
	h.log.Println("initializing simulated hardware")
	return nil
}

// ReadIMU returns a fake sample approximating a person walking forward:
// gravity on the vertical axis plus small sway, and a gyro Z that drifts
// at a constant rate to simulate gentle continuous turning.
func (h *Hardware) ReadIMU() hardware.IMUSample {
	h.gyroDrift += 0.01
	return hardware.IMUSample{
		AX: 9.81,
		AY: 0.5,
		AZ: 1.0,
		GX: 0,
		GY: 0,
		GZ: h.gyroDrift,
	}
}

// ScanBLE simulates a ~1s scan delay and returns a fixed three-beacon
// fingerprint matching the placeholder radio map.
func (h *Hardware) ScanBLE() []hardware.BLEReading {
	h.log.Println("simulating BLE scan (~1s)...")
	time.Sleep(ScanDelay)
	readings := []hardware.BLEReading{
		{BeaconID: "BEACON_ID_1", RSSI: -55},
		{BeaconID: "BEACON_ID_2", RSSI: -78},
		{BeaconID: "BEACON_ID_3", RSSI: -62},
	}
	h.log.Printf("scan complete, found %d beacons", len(readings))
	return readings
}

// PollKey returns the next queued key press, or KeyNone if none is
// pending. InjectKey lets a test or driver CLI push synthetic presses.
func (h *Hardware) PollKey() hardware.KeyPress {
	select {
	case k := <-h.keys:
		return k
	default:
		return hardware.KeyNone
	}
}

// InjectKey enqueues a synthetic key press for the next PollKey call.
func (h *Hardware) InjectKey(k hardware.KeyPress) {
	select {
	case h.keys <- k:
	default:
		h.log.Printf("key queue full, dropping %s", k)
	}
}

// PlayAudio logs the cue that would have played.
func (h *Hardware) PlayAudio(cueID string) {
	h.log.Printf("playing audio cue %q", cueID)
}

// PowerOn reports whether the simulated device is still running.
func (h *Hardware) PowerOn() bool {
	return h.poweredOn
}

// Shutdown flips PowerOn false, allowing a control loop driven by this
// backend to exit.
func (h *Hardware) Shutdown() {
	h.poweredOn = false
}
