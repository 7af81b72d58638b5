// Package ekf implements the Extended Kalman Filter that fuses PDR
// prediction increments with BLE position fixes into a single pose
// estimate.
package ekf

import (
	"fmt"
	"log"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"tire/localize"
	"tire/pdr"
)

// Pose is the filter's externally-visible state: a 2D position and a
// heading wrapped to (-pi, pi].
type Pose struct {
	X, Y, Theta float64
}

// defaultQDiag/defaultRDiag are the diagonals of the process and
// measurement noise covariances specified for this engine.
var (
	defaultQDiag = [3]float64{0.1, 0.1, 0.05}
	defaultRDiag = [2]float64{2.0, 2.0}
)

// EKF holds the 3-state pose estimate x = [px, py, theta]^T and its 3x3
// covariance P, plus the fixed process/measurement noise matrices.
type EKF struct {
	x *mat.Dense // 3x1
	p *mat.Dense // 3x3
	q *mat.Dense // 3x3
	r *mat.Dense // 2x2

	log *log.Logger
}

// New constructs an EKF initialized at the origin with P = I and the
// default Q/R noise matrices.
func New() *EKF {
	k := &EKF{
		q:   diag(defaultQDiag[:]),
		r:   diag(defaultRDiag[:]),
		log: log.New(os.Stderr, "[ekf] ", log.LstdFlags),
	}
	k.Initialize(0, 0, 0)
	return k
}

func diag(d []float64) *mat.Dense {
	n := len(d)
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, d[i])
	}
	return m
}

// Initialize sets the state to (x0, y0, theta0) and resets P to the
// identity.
func (k *EKF) Initialize(x0, y0, theta0 float64) {
	k.x = mat.NewDense(3, 1, []float64{x0, y0, wrap(theta0)})
	k.p = mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
}

// State returns the current pose estimate.
func (k *EKF) State() Pose {
	return Pose{X: k.x.At(0, 0), Y: k.x.At(1, 0), Theta: k.x.At(2, 0)}
}

// Predict advances the filter with one PDR update. If no step was
// detected, only theta is nudged by any accumulated gyro delta and the
// covariance is left untouched, to avoid injecting spurious positional
// uncertainty while stationary.
func (k *EKF) Predict(u pdr.Update) {
	if !u.StepDetected {
		if math.Abs(u.DeltaHeading) > 1e-3 {
			theta := wrap(k.x.At(2, 0) + u.DeltaHeading)
			k.x.Set(2, 0, theta)
		}
		return
	}

	theta := k.x.At(2, 0)
	midTheta := theta + u.DeltaHeading/2

	px := k.x.At(0, 0) + u.StepLength*math.Cos(midTheta)
	py := k.x.At(1, 0) + u.StepLength*math.Sin(midTheta)
	newTheta := wrap(theta + u.DeltaHeading)

	k.x.Set(0, 0, px)
	k.x.Set(1, 0, py)
	k.x.Set(2, 0, newTheta)

	f := mat.NewDense(3, 3, []float64{
		1, 0, -u.StepLength * math.Sin(midTheta),
		0, 1, u.StepLength * math.Cos(midTheta),
		0, 0, 1,
	})

	var fp, fpft, newP mat.Dense
	fp.Mul(f, k.p)
	fpft.Mul(&fp, f.T())
	newP.Add(&fpft, k.q)
	k.p = &newP
}

// Update corrects the filter with a BLE position fix z = (zx, zy). A
// matrix-inversion failure is treated as "drop this measurement": state
// is left unchanged and the failure is logged.
func (k *EKF) Update(z localize.Position2D) error {
	h := mat.NewDense(2, 3, []float64{1, 0, 0, 0, 1, 0})

	zv := mat.NewDense(2, 1, []float64{z.X, z.Y})
	var hx mat.Dense
	hx.Mul(h, k.x)
	var y mat.Dense
	y.Sub(zv, &hx)

	var hp, hpht, s mat.Dense
	hp.Mul(h, k.p)
	hpht.Mul(&hp, h.T())
	s.Add(&hpht, k.r)

	var sInv mat.Dense
	if err := sInv.Inverse(&s); err != nil {
		k.log.Printf("innovation covariance inversion failed, dropping measurement: %v", err)
		return fmt.Errorf("ekf: update dropped, singular innovation covariance: %w", err)
	}

	var pht, gain mat.Dense
	pht.Mul(k.p, h.T())
	gain.Mul(&pht, &sInv)

	var ky, newX mat.Dense
	ky.Mul(&gain, &y)
	newX.Add(k.x, &ky)
	newX.Set(2, 0, wrap(newX.At(2, 0)))
	k.x = &newX

	var kh, ikh, newP mat.Dense
	kh.Mul(&gain, h)
	identity := mat.NewDense(3, 3, []float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	ikh.Sub(identity, &kh)
	newP.Mul(&ikh, k.p)
	k.p = &newP

	return nil
}

// Covariance exposes the current 3x3 covariance for testing and
// telemetry — callers must not mutate the returned matrix.
func (k *EKF) Covariance() *mat.Dense {
	return k.p
}

// wrap normalizes an angle in radians to (-pi, pi].
func wrap(theta float64) float64 {
	theta = math.Mod(theta+math.Pi, 2*math.Pi)
	if theta <= 0 {
		theta += 2 * math.Pi
	}
	return theta - math.Pi
}
