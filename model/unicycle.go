package model

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-pose"
	"gonum.org/v1/gonum/mat"
)

// MinTurnRate is the angular velocity below which the unicycle moves along a straight line
const MinTurnRate = 1e-6

// Unicycle is a nonlinear unicycle motion model of a planar robot.
// Its state is the pose [x, y, heading].
type Unicycle struct {
	// MinTurnRate overrides the straight line threshold when positive
	MinTurnRate float64
}

func (m Unicycle) threshold() float64 {
	if m.MinTurnRate > 0 {
		return m.MinTurnRate
	}
	return MinTurnRate
}

// Move moves pose in place by applying control u for time dt.
// Turning motion uses the exact arc update; almost straight motion uses
// the straight line approximation. The heading is wrapped into (-pi, pi].
func (m Unicycle) Move(pose []float64, u filter.Control, dt float64) {
	theta := pose[2]
	dth := u.Omega * dt

	if math.Abs(u.Omega) < m.threshold() {
		pose[0] += u.V * dt * math.Cos(theta)
		pose[1] += u.V * dt * math.Sin(theta)
	} else {
		r := u.V / u.Omega
		pose[0] += r * (math.Sin(theta+dth) - math.Sin(theta))
		pose[1] += r * (math.Cos(theta) - math.Cos(theta+dth))
	}

	pose[2] = WrapAngle(theta + dth)
}

// Jacobian returns the 3x3 Jacobian of Move with respect to pose.
func (m Unicycle) Jacobian(pose []float64, u filter.Control, dt float64) *mat.Dense {
	theta := pose[2]
	g := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	})

	if math.Abs(u.Omega) < m.threshold() {
		g.Set(0, 2, -u.V*dt*math.Sin(theta))
		g.Set(1, 2, u.V*dt*math.Cos(theta))
		return g
	}

	r := u.V / u.Omega
	dth := u.Omega * dt
	g.Set(0, 2, r*(math.Cos(theta+dth)-math.Cos(theta)))
	g.Set(1, 2, r*(math.Sin(theta+dth)-math.Sin(theta)))

	return g
}

// Propagate returns the pose x moved by control u for time dt.
// wd is added to the moved pose as process noise unless it is nil.
// It returns error if x is not a pose.
func (m Unicycle) Propagate(x mat.Vector, u filter.Control, dt float64, wd mat.Vector) (*mat.VecDense, error) {
	if x.Len() != 3 {
		return nil, fmt.Errorf("invalid pose length: %d", x.Len())
	}

	pose := []float64{x.AtVec(0), x.AtVec(1), x.AtVec(2)}
	m.Move(pose, u, dt)

	if wd != nil && wd.Len() == 3 {
		for i := range pose {
			pose[i] += wd.AtVec(i)
		}
		pose[2] = WrapAngle(pose[2])
	}

	return mat.NewVecDense(3, pose), nil
}
