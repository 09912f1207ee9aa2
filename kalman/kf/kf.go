package kf

import (
	"fmt"
	"math"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/estimate"
	"github.com/milosgajdos/go-pose/matrix"
	"github.com/milosgajdos/go-pose/model"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// KF is Kalman Filter
type KF struct {
	// m is KF system model
	m *model.Discrete
	// q is state noise a.k.a. process noise
	q filter.Noise
	// r is output noise a.k.a. measurement noise
	r filter.Noise
	// x is KF state
	x *mat.VecDense
	// p is KF state covariance matrix
	p *mat.SymDense
	// inn is innovation vector
	inn *mat.VecDense
	// k is Kalman gain
	k *mat.Dense
}

// New creates new KF and returns it.
// It accepts the following parameters:
//   - m:      linear discrete-time system model
//   - init:   initial condition of the filter
//   - q:      state noise a.k.a. process noise
//   - r:      output noise a.k.a. measurement noise
//
// It returns error if either of the following conditions is met:
//   - invalid model is given: model dimensions must be positive integers
//   - invalid initial condition is given: it must match the model state dimension
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
func New(m *model.Discrete, init filter.InitCond, q, r filter.Noise) (*KF, error) {
	if m == nil || init == nil {
		return nil, fmt.Errorf("invalid model or initial condition")
	}

	// size of the state and output vectors
	nx, _, ny := m.SystemDims()
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: [%d x %d]", nx, ny)
	}

	if init.State().Len() != nx || init.Cov().SymmetricDim() != nx {
		return nil, fmt.Errorf("invalid initial condition dimensions: [%d x %d]", init.State().Len(), init.Cov().SymmetricDim())
	}

	if q != nil {
		if q.Cov().SymmetricDim() != nx {
			return nil, fmt.Errorf("invalid state noise dimension: %d != %d", q.Cov().SymmetricDim(), nx)
		}
	} else {
		q, _ = noise.NewZero(nx)
	}

	if r != nil {
		if r.Cov().SymmetricDim() != ny {
			return nil, fmt.Errorf("invalid output noise dimension: %d != %d", r.Cov().SymmetricDim(), ny)
		}
	} else {
		r, _ = noise.NewZero(ny)
	}

	x := mat.NewVecDense(nx, nil)
	x.CopyVec(init.State())

	// initialize covariance matrix to initial condition covariance
	p := mat.NewSymDense(nx, nil)
	p.CopySym(init.Cov())
	if err := matrix.CheckCov(p); err != nil {
		return nil, fmt.Errorf("invalid initial covariance: %v", err)
	}

	return &KF{
		m:   m,
		q:   q,
		r:   r,
		x:   x,
		p:   p,
		inn: mat.NewVecDense(ny, nil),
		k:   mat.NewDense(nx, ny, nil),
	}, nil
}

// Predict propagates KF state and its covariance to the next step given control u applied for time dt.
// It returns error if the propagated state or covariance is not finite;
// the filter state is left unchanged in that case.
func (k *KF) Predict(u filter.Control, dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "invalid time step: %g", dt)
	}

	// propagate state mean to the next step
	xNext, err := k.m.Propagate(k.x, u, dt, nil)
	if err != nil {
		return errors.Wrapf(filter.ErrDimensionMismatch, "system state propagation failed: %v", err)
	}

	// A*P*A' + Q
	cov := &mat.Dense{}
	cov.Mul(k.m.SystemMatrix(), k.p)
	cov.Mul(cov, k.m.SystemMatrix().T())
	cov.Add(cov, k.q.Cov())

	pNext := mat.NewSymDense(k.p.SymmetricDim(), nil)
	matrix.Symmetrize(pNext, cov)

	if !matrix.Finite(xNext) {
		return errors.Wrap(filter.ErrNumericDegeneracy, "non-finite predicted state")
	}
	if err := matrix.CheckCov(pNext); err != nil {
		return errors.Wrap(err, "predicted covariance")
	}

	k.x.CopyVec(xNext)
	k.p.CopySym(pNext)

	return nil
}

// Update corrects KF state using the position fix carried in measurement z.
// It returns ErrDimensionMismatch if the measurement does not match the model output
// and ErrNumericDegeneracy if the innovation covariance is singular or the corrected
// estimate is not finite; the filter state is left unchanged in both cases.
func (k *KF) Update(z *filter.Measurement) error {
	nx, _, ny := k.m.SystemDims()

	if z == nil || z.Position == nil || z.Position.Len() != ny {
		return errors.Wrapf(filter.ErrDimensionMismatch, "invalid measurement supplied: %v", z)
	}

	// observe system output
	y, err := k.m.Observe(k.x, nil)
	if err != nil {
		return errors.Wrapf(filter.ErrDimensionMismatch, "failed to observe system output: %v", err)
	}

	H := k.m.OutputMatrix()

	// P*H'
	pxy := mat.NewDense(nx, ny, nil)
	pxy.Mul(k.p, H.T())

	// H*P*H' + R
	hph := mat.NewDense(ny, ny, nil)
	hph.Mul(H, pxy)
	hph.Add(hph, k.r.Cov())
	pyy := mat.NewSymDense(ny, nil)
	matrix.Symmetrize(pyy, hph)

	// Kalman gain: K = P*H'*S^-1 is computed by solving S*K' = H*P
	gainT := &mat.Dense{}
	if err := matrix.SolveSym(gainT, pyy, pxy.T()); err != nil {
		return errors.Wrap(err, "innovation covariance")
	}
	gain := mat.DenseCopyOf(gainT.T())

	// innovation vector
	inn := mat.NewVecDense(ny, nil)
	inn.SubVec(z.Position, y)

	// correct state
	corr := mat.NewVecDense(nx, nil)
	corr.MulVec(gain, inn)
	xNext := mat.NewVecDense(nx, nil)
	xNext.AddVec(k.x, corr)

	// Joseph form update
	a := &mat.Dense{}
	// K*H
	a.Mul(gain, H)
	// eye - K*H
	a.Sub(matrix.Eye(nx), a)

	// K*R*K'
	kr := &mat.Dense{}
	kr.Mul(gain, k.r.Cov())
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	apa := &mat.Dense{}
	apa.Mul(a, k.p)
	apa.Mul(apa, a.T())
	apa.Add(apa, krk)

	pNext := mat.NewSymDense(nx, nil)
	matrix.Symmetrize(pNext, apa)

	if !matrix.Finite(xNext) {
		return errors.Wrap(filter.ErrNumericDegeneracy, "non-finite corrected state")
	}
	if err := matrix.CheckCov(pNext); err != nil {
		return errors.Wrap(err, "corrected covariance")
	}

	k.x.CopyVec(xNext)
	k.p.CopySym(pNext)
	k.inn.CopyVec(inn)
	k.k.Copy(gain)

	return nil
}

// Run runs one step of KF for given control u, time step dt and measurement z.
// It returns error if it either fails to propagate or correct the state.
func (k *KF) Run(u filter.Control, dt float64, z *filter.Measurement) (filter.Estimate, error) {
	if err := k.Predict(u, dt); err != nil {
		return nil, err
	}

	if err := k.Update(z); err != nil {
		return nil, err
	}

	return k.Estimate(), nil
}

// Estimate returns KF state estimate and its covariance
func (k *KF) Estimate() filter.Estimate {
	est, _ := estimate.NewBaseWithCov(k.x, k.p)
	return est
}

// Model returns KF model
func (k *KF) Model() *model.Discrete {
	return k.m
}

// StateNoise retruns state noise
func (k *KF) StateNoise() filter.Noise {
	return k.q
}

// OutputNoise retruns output noise
func (k *KF) OutputNoise() filter.Noise {
	return k.r
}

// Cov returns KF covariance
func (k *KF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// SetCov sets KF covariance matrix to cov.
// It returns error if either cov is nil or its dimensions are not the same as KF covariance dimensions.
func (k *KF) SetCov(cov mat.Symmetric) error {
	if cov == nil {
		return fmt.Errorf("invalid covariance matrix: %v", cov)
	}

	if cov.SymmetricDim() != k.p.SymmetricDim() {
		return errors.Wrapf(filter.ErrDimensionMismatch, "invalid covariance matrix dims: [%d x %d]", cov.SymmetricDim(), cov.SymmetricDim())
	}

	k.p.CopySym(cov)

	return nil
}

// Innovation returns the innovation vector of the last update
func (k *KF) Innovation() mat.Vector {
	inn := mat.NewVecDense(k.inn.Len(), nil)
	inn.CopyVec(k.inn)

	return inn
}

// Gain returns Kalman gain
func (k *KF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	gain.CloneFrom(k.k)

	return gain
}
