package pdr

import (
	"math"
	"testing"
)

func TestDrainUpdate_IdempotentWhenUndrained(t *testing.T) {
	p := New(1)
	first := p.DrainUpdate()
	second := p.DrainUpdate()
	if second.StepDetected || second.StepLength != 0 || second.DeltaHeading != 0 {
		t.Fatalf("expected zeroed second drain, got %+v (first=%+v)", second, first)
	}
}

func TestIntegrateHeading_AccumulatesDeltaSinceLastDrain(t *testing.T) {
	p := New(1)
	// stationary accel so no step fires, only heading changes
	still := Sample{AX: 0, AY: 0, AZ: gravity, GZ: 0.1}
	p.ProcessIMU(still, 0.5)
	p.ProcessIMU(still, 0.5)
	u := p.DrainUpdate()
	if u.StepDetected {
		t.Fatalf("did not expect a step")
	}
	want := 0.1 * 0.5 * 2
	if math.Abs(u.DeltaHeading-want) > 1e-9 {
		t.Fatalf("expected delta heading %v, got %v", want, u.DeltaHeading)
	}
}

func TestGyroSign_Flips(t *testing.T) {
	p := New(-1)
	p.ProcessIMU(Sample{AZ: gravity, GZ: 0.2}, 1.0)
	u := p.DrainUpdate()
	if math.Abs(u.DeltaHeading+0.2) > 1e-9 {
		t.Fatalf("expected flipped delta heading -0.2, got %v", u.DeltaHeading)
	}
}

func TestDetectStep_PeakThenDeclineFiresOnce(t *testing.T) {
	p := New(1)
	dt := 0.02
	// low-pass filtered magnitude ramps above threshold, peaks, then declines
	samples := []float64{9.81, 9.81, 15.0, 15.0, 15.0, 9.81, 9.81}
	stepsFired := 0
	for _, mag := range samples {
		p.ProcessIMU(Sample{AX: 0, AY: 0, AZ: mag}, dt)
		u := p.DrainUpdate()
		if u.StepDetected {
			stepsFired++
			if u.StepLength < 0.3 || u.StepLength > 1.0 {
				t.Fatalf("step length out of clamp range: %v", u.StepLength)
			}
		}
	}
	if stepsFired != 1 {
		t.Fatalf("expected exactly 1 step, got %d", stepsFired)
	}
}

func TestMultipleStepsBetweenDrainsCollapseToOne(t *testing.T) {
	p := New(1)
	dt := 0.02
	// two full up/down cycles without draining in between; each fires at
	// least one step
	cycle := []float64{9.81, 9.81, 15.0, 15.0, 15.0, 9.81, 9.81}
	for rep := 0; rep < 2; rep++ {
		for _, mag := range cycle {
			p.ProcessIMU(Sample{AZ: mag}, dt)
		}
	}
	u := p.DrainUpdate()
	if !u.StepDetected {
		t.Fatalf("expected the step collapsed into this single drain")
	}
}
