// Package pdr implements Pedestrian Dead Reckoning: step detection, step
// length estimation, and heading integration from raw IMU samples.
package pdr

import "math"

const (
	gravity = 9.81
	twoPi   = 2 * math.Pi

	// stepThreshold is the filtered-acceleration-magnitude threshold above
	// which a step candidate begins. The source's drafts disagree between
	// "1.1" (g-units) and "1.1 * 9.81" (m/s^2); this port picks the
	// m/s^2-scaled constant because IMUSample's accelerometer channels are
	// documented as already scaled to "1 g ~= 9.81" — see DESIGN.md.
	stepThreshold = 1.1 * gravity

	// stepLengthK is the Weinberg-style step length coefficient.
	stepLengthK = 0.45

	minStepLength = 0.3
	maxStepLength = 1.0
)

// Sample mirrors the six-channel IMU reading consumed by PDR.
type Sample struct {
	AX, AY, AZ float64
	GX, GY, GZ float64
}

// Update is a destructively-read snapshot of everything accumulated since
// the last DrainUpdate call.
type Update struct {
	StepDetected bool
	StepLength   float64
	DeltaHeading float64
}

// PDR tracks step detection and heading integration state between drains.
type PDR struct {
	gyroSign float64

	prevMag        float64
	aboveThreshold bool

	heading      float64 // internal accumulator, kept in [0, 2*pi)
	deltaHeading float64 // since last drain

	stepDetected bool
	stepLength   float64
}

// New constructs a PDR. gyroSign flips the sign of gz to match IMU
// mounting handedness; pass +1 for the documented CCW-positive default.
func New(gyroSign float64) *PDR {
	p := &PDR{gyroSign: gyroSign}
	p.reset()
	return p
}

func (p *PDR) reset() {
	p.prevMag = gravity
	p.aboveThreshold = false
	p.heading = 0
	p.deltaHeading = 0
	p.stepDetected = false
	p.stepLength = 0
}

// ProcessIMU folds one IMU sample, taken dt seconds after the previous one,
// into the running heading and step-detection state.
func (p *PDR) ProcessIMU(s Sample, dt float64) {
	p.integrateHeading(s.GZ, dt)
	if p.detectStep(s) {
		p.stepDetected = true
		p.stepLength = p.estimateStepLength()
	}
}

func (p *PDR) integrateHeading(gz, dt float64) {
	deltaTheta := p.gyroSign * gz * dt
	p.deltaHeading += deltaTheta
	p.heading += deltaTheta
	if p.heading >= twoPi {
		p.heading -= twoPi
	} else if p.heading < 0 {
		p.heading += twoPi
	}
}

// detectStep applies a first-order low-pass filter to the acceleration
// magnitude and fires on the falling edge of a threshold crossing (the
// confirmed peak).
func (p *PDR) detectStep(s Sample) bool {
	mag := math.Sqrt(s.AX*s.AX + s.AY*s.AY + s.AZ*s.AZ)
	mag = 0.8*p.prevMag + 0.2*mag

	stepFound := false
	if !p.aboveThreshold {
		if mag > stepThreshold {
			p.aboveThreshold = true
		}
	} else if mag < p.prevMag {
		p.aboveThreshold = false
		stepFound = true
	}

	p.prevMag = mag
	return stepFound
}

// estimateStepLength applies the simplified stateless Weinberg formula:
// the filtered magnitude just recorded (that of the sample which
// confirmed the step, the first one after the peak) stands in for a_max,
// and gravity approximates a_min (the assumed standing-still baseline).
func (p *PDR) estimateStepLength() float64 {
	maxAccel := p.prevMag
	minAccel := gravity
	if maxAccel < minAccel {
		maxAccel = minAccel + 0.1
	}
	length := stepLengthK * math.Pow(maxAccel-minAccel, 0.25)
	return clamp(length, minStepLength, maxStepLength)
}

// DrainUpdate returns a snapshot of everything accumulated since the last
// drain and zeros the accumulators in the same indivisible operation.
func (p *PDR) DrainUpdate() Update {
	u := Update{
		StepDetected: p.stepDetected,
		StepLength:   p.stepLength,
		DeltaHeading: p.deltaHeading,
	}
	p.stepDetected = false
	p.stepLength = 0
	p.deltaHeading = 0
	return u
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
