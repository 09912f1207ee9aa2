package model

import (
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RangeBearing returns range and bearing of the landmark at (lx, ly) observed from pose.
// The bearing is relative to the pose heading and wrapped into (-pi, pi].
func RangeBearing(pose []float64, lx, ly float64) (float64, float64) {
	dx, dy := lx-pose[0], ly-pose[1]

	return math.Hypot(dx, dy), WrapAngle(math.Atan2(dy, dx) - pose[2])
}

// RangeBearingJacobian returns the Jacobians of RangeBearing with respect to
// the pose (2x3) and the landmark position (2x2).
// It returns ErrNumericDegeneracy if the landmark coincides with the pose.
func RangeBearingJacobian(pose []float64, lx, ly float64) (*mat.Dense, *mat.Dense, error) {
	dx, dy := lx-pose[0], ly-pose[1]
	q := dx*dx + dy*dy
	if q == 0 || math.IsNaN(q) || math.IsInf(q, 0) {
		return nil, nil, errors.Wrapf(filter.ErrNumericDegeneracy, "landmark at (%g, %g) coincides with pose", lx, ly)
	}
	r := math.Sqrt(q)

	hp := mat.NewDense(2, 3, []float64{
		-dx / r, -dy / r, 0,
		dy / q, -dx / q, -1,
	})
	hl := mat.NewDense(2, 2, []float64{
		dx / r, dy / r,
		-dy / q, dx / q,
	})

	return hp, hl, nil
}

// BackProject returns the world position of an object observed at range r and bearing b from pose.
func BackProject(pose []float64, r, b float64) (float64, float64) {
	a := pose[2] + b

	return pose[0] + r*math.Cos(a), pose[1] + r*math.Sin(a)
}
