package model

import (
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// InitCond is the initial pose distribution of a filter
type InitCond struct {
	state *mat.VecDense
	cov   *mat.SymDense
}

// NewInitCond creates new InitCond from a copy of state and cov and returns it
func NewInitCond(state mat.Vector, cov mat.Symmetric) *InitCond {
	s := &mat.VecDense{}
	s.CloneFromVec(state)

	c := mat.NewSymDense(cov.SymmetricDim(), nil)
	c.CopySym(cov)

	return &InitCond{
		state: s,
		cov:   c,
	}
}

// NewPoseCond creates InitCond of a [x, y, heading] pose with independent
// per-component variances. The heading is wrapped into (-pi, pi].
// It returns error if pose or variances are not 3 long, if any value is not
// finite or if a variance is negative.
func NewPoseCond(pose, variances []float64) (*InitCond, error) {
	if len(pose) != 3 || len(variances) != 3 {
		return nil, errors.Wrapf(filter.ErrDimensionMismatch, "pose %d, variances %d", len(pose), len(variances))
	}

	state := mat.NewVecDense(3, nil)
	cov := mat.NewSymDense(3, nil)
	for i := range pose {
		if math.IsNaN(pose[i]) || math.IsInf(pose[i], 0) {
			return nil, errors.Wrapf(filter.ErrNumericDegeneracy, "pose component %d: %g", i, pose[i])
		}
		if v := variances[i]; v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrapf(filter.ErrNumericDegeneracy, "variance %d: %g", i, v)
		}
		state.SetVec(i, pose[i])
		cov.SetSym(i, i, variances[i])
	}
	state.SetVec(2, WrapAngle(pose[2]))

	return &InitCond{state: state, cov: cov}, nil
}

// State returns a copy of initial state
func (c *InitCond) State() mat.Vector {
	state := mat.NewVecDense(c.state.Len(), nil)
	state.CopyVec(c.state)

	return state
}

// Cov returns a copy of initial covariance
func (c *InitCond) Cov() mat.Symmetric {
	cov := mat.NewSymDense(c.cov.SymmetricDim(), nil)
	cov.CopySym(c.cov)

	return cov
}
