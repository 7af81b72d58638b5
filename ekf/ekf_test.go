package ekf

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"

	"tire/localize"
	"tire/pdr"
)

func approx(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestPredict_TenStraightSteps(t *testing.T) {
	k := New()
	for i := 0; i < 10; i++ {
		k.Predict(pdr.Update{StepDetected: true, StepLength: 1.0, DeltaHeading: 0})
	}
	s := k.State()
	if !approx(s.X, 10.0, 1e-9) || !approx(s.Y, 0.0, 1e-9) || !approx(s.Theta, 0.0, 1e-9) {
		t.Fatalf("expected (10,0,0), got %+v", s)
	}
}

func TestPredict_WithHeadingTurn(t *testing.T) {
	k := New()
	k.Predict(pdr.Update{StepDetected: true, StepLength: 1.0, DeltaHeading: math.Pi / 2})
	s := k.State()
	want := math.Sqrt2 / 2
	if !approx(s.X, want, 1e-4) || !approx(s.Y, want, 1e-4) || !approx(s.Theta, math.Pi/2, 1e-9) {
		t.Fatalf("expected (~0.7071, ~0.7071, pi/2), got %+v", s)
	}
}

func TestPredict_NoStepOnlyRotatesWhenGyroMoved(t *testing.T) {
	k := New()
	before := k.Covariance()
	k.Predict(pdr.Update{StepDetected: false, DeltaHeading: 0.2})
	s := k.State()
	if !approx(s.Theta, 0.2, 1e-9) {
		t.Fatalf("expected theta 0.2, got %v", s.Theta)
	}
	if s.X != 0 || s.Y != 0 {
		t.Fatalf("expected position untouched, got %+v", s)
	}
	after := k.Covariance()
	if !mattEqual(before, after) {
		t.Fatalf("expected covariance untouched on no-step predict")
	}
}

func TestPredict_NoStepNoMotionIsNoOp(t *testing.T) {
	k := New()
	k.Predict(pdr.Update{StepDetected: false, DeltaHeading: 0})
	s := k.State()
	if s.X != 0 || s.Y != 0 || s.Theta != 0 {
		t.Fatalf("expected untouched state, got %+v", s)
	}
}

func TestUpdate_CorrectsTowardMeasurement(t *testing.T) {
	k := New()
	k.Initialize(0, 0, 0)
	err := k.Update(localize.Position2D{X: 5, Y: 5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s := k.State()
	if s.X <= 0 || s.Y <= 0 {
		t.Fatalf("expected state pulled toward measurement, got %+v", s)
	}
}

func TestCovarianceStaysSymmetric(t *testing.T) {
	k := New()
	for i := 0; i < 5; i++ {
		k.Predict(pdr.Update{StepDetected: true, StepLength: 0.7, DeltaHeading: 0.1})
		if err := k.Update(localize.Position2D{X: float64(i), Y: float64(i)}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	p := k.Covariance()
	r, c := p.Dims()
	for i := 0; i < r; i++ {
		for j := 0; j < c; j++ {
			if !approx(p.At(i, j), p.At(j, i), 1e-9) {
				t.Fatalf("covariance not symmetric at (%d,%d): %v vs %v", i, j, p.At(i, j), p.At(j, i))
			}
		}
	}
}

func TestWrap_RangeIsHalfOpen(t *testing.T) {
	cases := []float64{0, math.Pi, -math.Pi, 3 * math.Pi / 2, -3 * math.Pi}
	for _, c := range cases {
		w := wrap(c)
		if w <= -math.Pi || w > math.Pi+1e-12 {
			t.Fatalf("wrap(%v) = %v out of (-pi, pi]", c, w)
		}
	}
}

func mattEqual(a, b *mat.Dense) bool {
	ra, ca := a.Dims()
	rb, cb := b.Dims()
	if ra != rb || ca != cb {
		return false
	}
	for i := 0; i < ra; i++ {
		for j := 0; j < ca; j++ {
			if a.At(i, j) != b.At(i, j) {
				return false
			}
		}
	}
	return true
}
