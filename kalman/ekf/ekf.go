package ekf

import (
	"fmt"
	"math"
	"sort"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/estimate"
	"github.com/milosgajdos/go-pose/matrix"
	"github.com/milosgajdos/go-pose/model"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const (
	// poseDim is the length of the robot pose block of the state
	poseDim = 3
	// landmarkDim is the length of a single landmark block of the state
	landmarkDim = 2
	// DefaultLandmarkVar is the default variance of a newly allocated landmark position
	DefaultLandmarkVar = 1e6
)

// Config is EKF SLAM configuration
type Config struct {
	// MaxLandmarks is the landmark registry capacity; zero means unbounded
	MaxLandmarks int
	// LandmarkVar is the variance of a newly allocated landmark position
	LandmarkVar float64
	// MinTurnRate is the turn rate below which the robot moves along a straight line
	MinTurnRate float64
}

// EKF is Extended Kalman Filter SLAM with known landmark correspondence.
// Its state is the robot pose [x, y, heading] followed by the positions
// [x, y] of landmarks in the order they were first observed.
type EKF struct {
	// motion is robot motion model
	motion model.Unicycle
	// q is pose process noise
	q filter.Noise
	// r is range-bearing observation noise
	r filter.Noise
	// x is the joint pose and landmark state
	x *mat.VecDense
	// p is the joint state covariance
	p *mat.SymDense
	// index maps landmark ids to their offsets in x
	index map[int]int
	// max is landmark registry capacity
	max int
	// lmVar is the variance of a newly allocated landmark
	lmVar float64
	// inn is the innovation vector of the last correction
	inn *mat.VecDense
	// k is Kalman gain of the last correction
	k *mat.Dense
}

// New creates new EKF SLAM and returns it.
// It accepts the following parameters:
//   - init:   initial pose and its covariance
//   - q:      pose process noise; its covariance must be 3x3
//   - r:      range-bearing observation noise; its covariance must be 2x2
//   - c:      EKF configuration
//
// It returns error if either of the following conditions is met:
//   - initial condition is not a pose
//   - invalid state or output noise is given: noise covariance must either be nil or match the model dimensions
//   - negative landmark capacity or variance is given
func New(init filter.InitCond, q, r filter.Noise, c Config) (*EKF, error) {
	if init == nil {
		return nil, fmt.Errorf("invalid initial condition")
	}

	if init.State().Len() != poseDim || init.Cov().SymmetricDim() != poseDim {
		return nil, fmt.Errorf("invalid initial condition dimensions: [%d x %d]", init.State().Len(), init.Cov().SymmetricDim())
	}

	if q != nil {
		if q.Cov().SymmetricDim() != poseDim {
			return nil, fmt.Errorf("invalid state noise dimension: %d", q.Cov().SymmetricDim())
		}
	} else {
		q, _ = noise.NewZero(poseDim)
	}

	if r != nil {
		if r.Cov().SymmetricDim() != landmarkDim {
			return nil, fmt.Errorf("invalid output noise dimension: %d", r.Cov().SymmetricDim())
		}
	} else {
		r, _ = noise.NewZero(landmarkDim)
	}

	if c.MaxLandmarks < 0 {
		return nil, fmt.Errorf("invalid landmark capacity: %d", c.MaxLandmarks)
	}

	lmVar := c.LandmarkVar
	if lmVar < 0 || math.IsNaN(lmVar) || math.IsInf(lmVar, 0) {
		return nil, fmt.Errorf("invalid landmark variance: %g", lmVar)
	}
	if lmVar == 0 {
		lmVar = DefaultLandmarkVar
	}

	x := mat.NewVecDense(poseDim, nil)
	x.CopyVec(init.State())
	x.SetVec(2, model.WrapAngle(x.AtVec(2)))

	p := mat.NewSymDense(poseDim, nil)
	p.CopySym(init.Cov())
	if err := matrix.CheckCov(p); err != nil {
		return nil, fmt.Errorf("invalid initial covariance: %v", err)
	}

	return &EKF{
		motion: model.Unicycle{MinTurnRate: c.MinTurnRate},
		q:      q,
		r:      r,
		x:      x,
		p:      p,
		index:  make(map[int]int),
		max:    c.MaxLandmarks,
		lmVar:  lmVar,
		inn:    mat.NewVecDense(landmarkDim, nil),
		k:      &mat.Dense{},
	}, nil
}

// Predict moves the robot pose with unicycle motion model given control u applied for time dt
// and propagates the joint covariance. Process noise is added to the pose block only; landmarks
// are static. It returns error if the predicted estimate is not finite; the filter state is left
// unchanged in that case.
func (k *EKF) Predict(u filter.Control, dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || math.IsNaN(u.V) || math.IsNaN(u.Omega) {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "invalid control %v for time step %g", u, dt)
	}

	n := k.x.Len()
	pose := []float64{k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2)}

	// motion Jacobian with respect to the full state
	f := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		f.Set(i, i, 1.0)
	}
	f.Slice(0, poseDim, 0, poseDim).(*mat.Dense).Copy(k.motion.Jacobian(pose, u, dt))

	k.motion.Move(pose, u, dt)

	// F*P*F' + Q
	cov := &mat.Dense{}
	cov.Mul(f, k.p)
	cov.Mul(cov, f.T())
	q := k.q.Cov()
	for i := 0; i < poseDim; i++ {
		for j := 0; j < poseDim; j++ {
			cov.Set(i, j, cov.At(i, j)+q.At(i, j))
		}
	}

	pNext := mat.NewSymDense(n, nil)
	matrix.Symmetrize(pNext, cov)

	if !matrix.Finite(mat.NewVecDense(poseDim, pose)) {
		return errors.Wrap(filter.ErrNumericDegeneracy, "non-finite predicted pose")
	}
	if err := matrix.CheckCov(pNext); err != nil {
		return errors.Wrap(err, "predicted covariance")
	}

	for i := range pose {
		k.x.SetVec(i, pose[i])
	}
	k.p.CopySym(pNext)

	return nil
}

// Update corrects the joint state using the range-bearing observations in measurement z.
// Observations are processed in order. The first observation of a landmark allocates a new
// state slot initialized by back-projecting the observation from the current pose; the following
// observations of the same landmark correct the state.
// Rejected observations do not stop the batch: their errors are collected and returned as
// filter.Errors, each classified by one of the filter error kinds. A rejected observation leaves
// the state as it was before that observation.
func (k *EKF) Update(z *filter.Measurement) error {
	if z == nil {
		return errors.Wrap(filter.ErrDimensionMismatch, "nil measurement")
	}

	var errs filter.Errors
	for _, obs := range z.Observations {
		if err := k.observe(obs); err != nil {
			errs = append(errs, err)
		}
	}

	return errs.Err()
}

func (k *EKF) observe(obs filter.Observation) error {
	if obs.ID == filter.NoID {
		return errors.Wrap(filter.ErrDimensionMismatch, "observation without landmark identity")
	}

	if obs.Range < 0 || math.IsNaN(obs.Range) || math.IsInf(obs.Range, 0) ||
		math.IsNaN(obs.Bearing) || math.IsInf(obs.Bearing, 0) {
		return errors.Wrapf(filter.ErrDimensionMismatch, "invalid observation of landmark %d: %v", obs.ID, obs)
	}

	j, ok := k.index[obs.ID]
	if !ok {
		return k.allocate(obs)
	}

	if j+landmarkDim > k.x.Len() {
		return errors.Wrapf(filter.ErrDimensionMismatch, "landmark %d offset %d outside state of length %d", obs.ID, j, k.x.Len())
	}

	return k.correct(obs, j)
}

// allocate appends a new landmark slot to the state
func (k *EKF) allocate(obs filter.Observation) error {
	if k.max > 0 && len(k.index) >= k.max {
		return errors.Wrapf(filter.ErrLandmarkOverflow, "dropping landmark %d: capacity %d", obs.ID, k.max)
	}

	pose := []float64{k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2)}
	lx, ly := model.BackProject(pose, obs.Range, model.WrapAngle(obs.Bearing))

	n := k.x.Len()
	x := mat.NewVecDense(n+landmarkDim, nil)
	x.SliceVec(0, n).(*mat.VecDense).CopyVec(k.x)
	x.SetVec(n, lx)
	x.SetVec(n+1, ly)

	p := mat.NewSymDense(n+landmarkDim, nil)
	for i := 0; i < n; i++ {
		for l := i; l < n; l++ {
			p.SetSym(i, l, k.p.At(i, l))
		}
	}
	p.SetSym(n, n, k.lmVar)
	p.SetSym(n+1, n+1, k.lmVar)

	k.x = x
	k.p = p
	k.index[obs.ID] = n

	return nil
}

// correct applies EKF correction using observation of the landmark stored at offset j
func (k *EKF) correct(obs filter.Observation, j int) error {
	n := k.x.Len()
	pose := []float64{k.x.AtVec(0), k.x.AtVec(1), k.x.AtVec(2)}
	lx, ly := k.x.AtVec(j), k.x.AtVec(j+1)

	hp, hl, err := model.RangeBearingJacobian(pose, lx, ly)
	if err != nil {
		return errors.Wrapf(err, "landmark %d", obs.ID)
	}

	// observation Jacobian with respect to the full state:
	// non-zero only in the pose and the observed landmark columns
	h := mat.NewDense(landmarkDim, n, nil)
	h.Slice(0, landmarkDim, 0, poseDim).(*mat.Dense).Copy(hp)
	h.Slice(0, landmarkDim, j, j+landmarkDim).(*mat.Dense).Copy(hl)

	// P*H'
	pxy := mat.NewDense(n, landmarkDim, nil)
	pxy.Mul(k.p, h.T())

	// H*P*H' + R
	hph := mat.NewDense(landmarkDim, landmarkDim, nil)
	hph.Mul(h, pxy)
	hph.Add(hph, k.r.Cov())
	pyy := mat.NewSymDense(landmarkDim, nil)
	matrix.Symmetrize(pyy, hph)

	gainT := &mat.Dense{}
	if err := matrix.SolveSym(gainT, pyy, pxy.T()); err != nil {
		return errors.Wrapf(err, "innovation covariance of landmark %d", obs.ID)
	}
	gain := mat.DenseCopyOf(gainT.T())

	// innovation: bearing component is wrapped into (-pi, pi]
	r, b := model.RangeBearing(pose, lx, ly)
	inn := mat.NewVecDense(landmarkDim, []float64{
		obs.Range - r,
		model.WrapAngle(obs.Bearing - b),
	})

	corr := mat.NewVecDense(n, nil)
	corr.MulVec(gain, inn)
	xNext := mat.NewVecDense(n, nil)
	xNext.AddVec(k.x, corr)
	xNext.SetVec(2, model.WrapAngle(xNext.AtVec(2)))

	// Joseph form update
	a := &mat.Dense{}
	a.Mul(gain, h)
	a.Sub(matrix.Eye(n), a)

	kr := &mat.Dense{}
	kr.Mul(gain, k.r.Cov())
	krk := &mat.Dense{}
	krk.Mul(kr, gain.T())

	apa := &mat.Dense{}
	apa.Mul(a, k.p)
	apa.Mul(apa, a.T())
	apa.Add(apa, krk)

	pNext := mat.NewSymDense(n, nil)
	matrix.Symmetrize(pNext, apa)

	if !matrix.Finite(xNext) {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "non-finite state after landmark %d", obs.ID)
	}
	if err := matrix.CheckCov(pNext); err != nil {
		return errors.Wrapf(err, "covariance after landmark %d", obs.ID)
	}

	k.x.CopyVec(xNext)
	k.p.CopySym(pNext)
	k.inn.CopyVec(inn)
	k.k = gain

	return nil
}

// Run runs one step of EKF SLAM for given control u, time step dt and measurement z.
// It returns the estimate after the step together with any error of the update.
// It returns nil estimate if the prediction fails.
func (k *EKF) Run(u filter.Control, dt float64, z *filter.Measurement) (filter.Estimate, error) {
	if err := k.Predict(u, dt); err != nil {
		return nil, err
	}

	err := k.Update(z)

	return k.Estimate(), err
}

// Estimate returns the joint state estimate together with the landmark map
func (k *EKF) Estimate() filter.Estimate {
	est, _ := estimate.NewMap(k.x, k.p, k.Landmarks())
	return est
}

// Landmarks returns estimated landmark positions keyed by landmark id
func (k *EKF) Landmarks() map[int][2]float64 {
	lm := make(map[int][2]float64, len(k.index))
	for id, j := range k.index {
		lm[id] = [2]float64{k.x.AtVec(j), k.x.AtVec(j + 1)}
	}

	return lm
}

// IDs returns landmark ids in the order they were registered
func (k *EKF) IDs() []int {
	ids := make([]int, 0, len(k.index))
	for id := range k.index {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return k.index[ids[a]] < k.index[ids[b]] })

	return ids
}

// Index returns the state offset of landmark id and true if the landmark is registered
func (k *EKF) Index(id int) (int, bool) {
	j, ok := k.index[id]
	return j, ok
}

// Len returns the number of registered landmarks
func (k *EKF) Len() int {
	return len(k.index)
}

// StateNoise retruns state noise
func (k *EKF) StateNoise() filter.Noise {
	return k.q
}

// OutputNoise retruns output noise
func (k *EKF) OutputNoise() filter.Noise {
	return k.r
}

// Cov returns EKF covariance
func (k *EKF) Cov() mat.Symmetric {
	cov := mat.NewSymDense(k.p.SymmetricDim(), nil)
	cov.CopySym(k.p)

	return cov
}

// Innovation returns the innovation vector of the last correction
func (k *EKF) Innovation() mat.Vector {
	inn := mat.NewVecDense(k.inn.Len(), nil)
	inn.CopyVec(k.inn)

	return inn
}

// Gain returns Kalman gain of the last correction.
// It returns empty matrix if no correction has been made yet.
func (k *EKF) Gain() mat.Matrix {
	gain := &mat.Dense{}
	if !k.k.IsEmpty() {
		gain.CloneFrom(k.k)
	}

	return gain
}
