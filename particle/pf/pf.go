package pf

import (
	"fmt"
	"math"
	"time"

	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/estimate"
	"github.com/milosgajdos/go-pose/model"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/milosgajdos/go-pose/rnd"
	gomatrix "github.com/milosgajdos/matrix"
	"github.com/pkg/errors"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"
)

const (
	// poseDim is particle state length
	poseDim = 3
	// controlDim is length of control noise
	controlDim = 2
	// obsDim is length of position and range-bearing residuals
	obsDim = 2
)

// Strategy is resampling strategy
type Strategy string

const (
	// Systematic draws particles with systematic (low variance) resampling
	Systematic Strategy = "systematic"
	// Roulette draws particles with multinomial (roulette wheel) resampling
	Roulette Strategy = "roulette"
)

// Config is particle filter configuration
type Config struct {
	// Particles is the number of particles
	Particles int
	// Seed seeds the random source of the filter; zero seeds from clock
	Seed uint64
	// Strategy is resampling strategy; systematic if empty
	Strategy Strategy
	// Regularize enables gaussian kernel jitter after resampling
	Regularize bool
	// Alpha scales the regularization jitter; optimal gaussian alpha if non-positive
	Alpha float64
	// Landmarks is a known landmark map used to weigh range-bearing observations
	Landmarks map[int][2]float64
	// MinTurnRate is the turn rate below which particles move along a straight line
	MinTurnRate float64
}

// PF is a particle filter over robot pose a.k.a. SIR filter.
// Particles are moved with unicycle motion model driven by noisy control
// and weighted by the likelihood of position fixes and range-bearing
// observations of known landmarks.
type PF struct {
	// motion is particle motion model
	motion model.Unicycle
	// w stores particle weights
	w []float64
	// x stores filter particles as column vectors
	x *mat.Dense
	// q is control noise over [v, omega]
	q filter.Noise
	// r is observation noise
	r filter.Noise
	// errPDF is PDF of observation residuals
	errPDF distmv.LogProber
	// src is random source of resampling
	src rand.Source
	// landmarks is known landmark map
	landmarks map[int][2]float64
	// strategy is resampling strategy
	strategy Strategy
	// regularize enables resampling jitter
	regularize bool
	// alpha scales resampling jitter
	alpha float64
}

// New creates new particle filter with the following parameters and returns it:
//   - ic:  initial pose distribution of the particles
//   - q:   control noise; its covariance must be 2x2 (v, omega)
//   - r:   observation noise; its covariance must be 2x2 and positive definite
//   - c:   filter configuration
//
// New returns error if non-positive number of particles is given, if the noise
// dimensions are invalid or if the particles fail to be generated.
func New(ic filter.InitCond, q, r filter.Noise, c Config) (*PF, error) {
	// must have at least one particle; can't be negative
	if c.Particles <= 0 {
		return nil, fmt.Errorf("invalid particle count: %d", c.Particles)
	}

	if ic == nil || ic.State().Len() != poseDim || ic.Cov().SymmetricDim() != poseDim {
		return nil, fmt.Errorf("invalid initial condition")
	}

	if q != nil {
		if q.Cov().SymmetricDim() != controlDim {
			return nil, fmt.Errorf("invalid state noise dimension: %d", q.Cov().SymmetricDim())
		}
	} else {
		q, _ = noise.NewZero(controlDim)
	}

	if r == nil || r.Cov().SymmetricDim() != obsDim {
		return nil, fmt.Errorf("invalid output noise")
	}

	errPDF, ok := distmv.NewNormal(make([]float64, obsDim), r.Cov(), nil)
	if !ok {
		return nil, fmt.Errorf("output noise covariance is not positive definite")
	}

	switch c.Strategy {
	case "":
		c.Strategy = Systematic
	case Systematic, Roulette:
	default:
		return nil, fmt.Errorf("invalid resampling strategy: %q", c.Strategy)
	}

	seed := c.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	src := rand.NewSource(seed)

	// Initialize particle weights to equal probabilities:
	// particle weights must sum up to 1 to represent probability
	w := make([]float64, c.Particles)
	for i := range w {
		w[i] = 1 / float64(c.Particles)
	}

	// draw particles from distribution with covariance InitCond.Cov()
	x, err := rnd.WithCovN(ic.Cov(), c.Particles, src)
	if err != nil {
		return nil, fmt.Errorf("failed to generate filter particles: %v", err)
	}

	// center particles around initial state condition
	state := ic.State()
	for col := 0; col < c.Particles; col++ {
		for row := 0; row < poseDim; row++ {
			x.Set(row, col, x.At(row, col)+state.AtVec(row))
		}
		x.Set(2, col, model.WrapAngle(x.At(2, col)))
	}

	landmarks := make(map[int][2]float64, len(c.Landmarks))
	for id, lm := range c.Landmarks {
		landmarks[id] = lm
	}

	return &PF{
		motion:     model.Unicycle{MinTurnRate: c.MinTurnRate},
		w:          w,
		x:          x,
		q:          q,
		r:          r,
		errPDF:     errPDF,
		src:        src,
		landmarks:  landmarks,
		strategy:   c.Strategy,
		regularize: c.Regularize,
		alpha:      c.Alpha,
	}, nil
}

// Predict moves every particle with unicycle motion model given control u applied for time dt.
// Each particle is driven by the control perturbed by an independent sample of control noise.
// It returns error if the control or any of the moved particles are not finite; the particles
// are left unchanged in that case.
func (b *PF) Predict(u filter.Control, dt float64) error {
	if math.IsNaN(dt) || math.IsInf(dt, 0) || math.IsNaN(u.V) || math.IsNaN(u.Omega) {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "invalid control %v for time step %g", u, dt)
	}

	xPred := mat.NewDense(poseDim, len(b.w), nil)
	pose := make([]float64, poseDim)

	for c := range b.w {
		mat.Col(pose, c, b.x)
		n := b.q.Sample()
		b.motion.Move(pose, filter.Control{V: u.V + n.AtVec(0), Omega: u.Omega + n.AtVec(1)}, dt)

		for r, v := range pose {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return errors.Wrapf(filter.ErrNumericDegeneracy, "non-finite particle %d", c)
			}
			xPred.Set(r, c, v)
		}
	}

	b.x.Copy(xPred)

	return nil
}

// Update reweights the particles by the likelihood of measurement z and renormalizes the weights.
// A position fix in z must have length 2 or 3; only its x and y components are used.
// Range-bearing observations are weighed against the known landmark map; observations of
// landmarks missing from the map are rejected and returned as filter.Errors while the rest
// of the measurement is still applied.
// Weights are combined in log domain, so a distant but finite fix still discriminates the particles.
// If no particle has a positive finite weight left, the weights are reset to uniform and
// ErrResampleStarvation is returned.
func (b *PF) Update(z *filter.Measurement) error {
	if z == nil {
		return errors.Wrap(filter.ErrDimensionMismatch, "nil measurement")
	}

	var errs filter.Errors

	var fix []float64
	if z.Position != nil {
		if l := z.Position.Len(); l != obsDim && l != poseDim {
			return errors.Wrapf(filter.ErrDimensionMismatch, "invalid position fix size: %d", l)
		}
		fix = []float64{z.Position.AtVec(0), z.Position.AtVec(1)}
		if floats.HasNaN(fix) || math.IsInf(fix[0], 0) || math.IsInf(fix[1], 0) {
			errs = append(errs, errors.Wrapf(filter.ErrDimensionMismatch, "non-finite position fix: %v", fix))
			fix = nil
		}
	}

	obs := make([]filter.Observation, 0, len(z.Observations))
	for _, o := range z.Observations {
		if _, ok := b.landmarks[o.ID]; !ok {
			errs = append(errs, errors.Wrapf(filter.ErrDimensionMismatch, "landmark %d not in map", o.ID))
			continue
		}
		if o.Range < 0 || math.IsNaN(o.Range) || math.IsInf(o.Range, 0) || math.IsNaN(o.Bearing) || math.IsInf(o.Bearing, 0) {
			errs = append(errs, errors.Wrapf(filter.ErrDimensionMismatch, "invalid observation of landmark %d: %v", o.ID, o))
			continue
		}
		obs = append(obs, o)
	}

	if fix == nil && len(obs) == 0 {
		return errs.Err()
	}

	lw := make([]float64, len(b.w))
	inn := make([]float64, obsDim)
	pose := make([]float64, poseDim)

	for c := range b.w {
		mat.Col(pose, c, b.x)

		logp := 0.0
		if fix != nil {
			inn[0], inn[1] = fix[0]-pose[0], fix[1]-pose[1]
			logp += b.errPDF.LogProb(inn)
		}
		for _, o := range obs {
			lm := b.landmarks[o.ID]
			rng, bearing := model.RangeBearing(pose, lm[0], lm[1])
			inn[0], inn[1] = o.Range-rng, model.WrapAngle(o.Bearing-bearing)
			logp += b.errPDF.LogProb(inn)
		}

		// zero weight or non-finite likelihood drops the particle
		lw[c] = math.Log(b.w[c]) + logp
		if math.IsNaN(lw[c]) {
			lw[c] = math.Inf(-1)
		}
	}

	top := floats.Max(lw)
	if math.IsInf(top, 0) {
		b.resetWeights()
		errs = append(errs, errors.Wrapf(filter.ErrResampleStarvation, "max log weight %g", top))
		return errs.Err()
	}

	// shift by the max log weight so the best particle has weight 1 before normalization
	for c := range lw {
		lw[c] = math.Exp(lw[c] - top)
	}
	floats.Scale(1/floats.Sum(lw), lw)
	copy(b.w, lw)

	return errs.Err()
}

// Run runs one step of particle filter for given control u, time step dt and measurement z.
// It returns the estimate after the step together with any error of the update.
// It returns nil estimate if the prediction fails.
func (b *PF) Run(u filter.Control, dt float64, z *filter.Measurement) (filter.Estimate, error) {
	if err := b.Predict(u, dt); err != nil {
		return nil, err
	}

	err := b.Update(z)

	return b.Estimate(), err
}

// Estimate returns the weighted mean pose of the particles and their weighted covariance.
// The mean heading is the weighted circular mean; heading residuals are wrapped into (-pi, pi].
func (b *PF) Estimate() filter.Estimate {
	mean := make([]float64, poseDim)
	var sin, cos float64
	for c, w := range b.w {
		mean[0] += w * b.x.At(0, c)
		mean[1] += w * b.x.At(1, c)
		sin += w * math.Sin(b.x.At(2, c))
		cos += w * math.Cos(b.x.At(2, c))
	}
	mean[2] = math.Atan2(sin, cos)

	cov := mat.NewSymDense(poseDim, nil)
	d := mat.NewVecDense(poseDim, nil)
	for c, w := range b.w {
		d.SetVec(0, b.x.At(0, c)-mean[0])
		d.SetVec(1, b.x.At(1, c)-mean[1])
		d.SetVec(2, model.WrapAngle(b.x.At(2, c)-mean[2]))
		cov.SymRankOne(cov, w, d)
	}

	est, _ := estimate.NewBaseWithCov(mat.NewVecDense(poseDim, mean), cov)

	return est
}

// EffectiveSampleSize returns effective sample size of the particles: 1/sum(w^2)
func (b *PF) EffectiveSampleSize() float64 {
	return 1 / floats.Dot(b.w, b.w)
}

// Resample draws a new set of particles proportionally to their weights and resets the weights
// to uniform. If regularization is enabled the new particles are perturbed by gaussian jitter
// with the covariance of the resampled set scaled by alpha.
// It returns the indices of the particles the new set was drawn from.
func (b *PF) Resample() ([]int, error) {
	var indices []int
	var err error

	// randomly pick new particles based on their weights
	switch b.strategy {
	case Roulette:
		indices, err = rnd.RouletteDrawN(b.w, len(b.w), b.src)
	default:
		indices, err = rnd.SystematicDrawN(b.w, len(b.w), b.src)
	}
	if err != nil {
		b.resetWeights()
		return nil, errors.Wrapf(filter.ErrResampleStarvation, "failed to sample filter particles: %v", err)
	}

	x := mat.NewDense(poseDim, len(indices), nil)
	for c, i := range indices {
		x.Slice(0, poseDim, c, c+1).(*mat.Dense).Copy(b.x.ColView(i))
	}

	if b.regularize && len(indices) > 1 {
		if err := b.jitter(x); err != nil {
			return nil, err
		}
	}

	b.x.Copy(x)
	b.resetWeights()

	return indices, nil
}

// jitter perturbs particles in x with gaussian kernel
func (b *PF) jitter(x *mat.Dense) error {
	rows, cols := x.Dims()

	// We need to calculate covariance matrix of particles
	cov, err := gomatrix.Cov(x, "cols")
	if err != nil {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "failed to calculate covariance matrix: %v", err)
	}
	for i := 0; i < rows; i++ {
		if v := cov.At(i, i); math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(filter.ErrNumericDegeneracy, "non-finite particle covariance: %g", v)
		}
	}

	// randomly draw values with given particle covariance
	m, err := rnd.WithCovN(cov, cols, b.src)
	if err != nil {
		return errors.Wrapf(filter.ErrNumericDegeneracy, "failed to draw random particle perturbations: %v", err)
	}

	// if invalid alpha is given, use the optimal value for Gaussian
	alpha := b.alpha
	if alpha <= 0 {
		alpha = AlphaGauss(rows, cols)
	}

	m.Scale(alpha, m)
	x.Add(x, m)

	for c := 0; c < cols; c++ {
		x.Set(2, c, model.WrapAngle(x.At(2, c)))
	}

	return nil
}

func (b *PF) resetWeights() {
	for i := range b.w {
		b.w[i] = 1 / float64(len(b.w))
	}
}

// Count returns the number of particles
func (b *PF) Count() int {
	return len(b.w)
}

// Particles returns PF particles
func (b *PF) Particles() mat.Matrix {
	p := &mat.Dense{}
	p.CloneFrom(b.x)

	return p
}

// Weights returns a vector containing PF particle weights
func (b *PF) Weights() mat.Vector {
	data := make([]float64, len(b.w))
	copy(data, b.w)

	return mat.NewVecDense(len(data), data)
}

// StateNoise returns control noise
func (b *PF) StateNoise() filter.Noise {
	return b.q
}

// OutputNoise returns observation noise
func (b *PF) OutputNoise() filter.Noise {
	return b.r
}

// AlphaGauss computes optimal regulariation parameter for Gaussian kernel and returns it.
func AlphaGauss(r, c int) float64 {
	return math.Pow(4.0/(float64(c)*(float64(r)+2.0)), 1/(float64(r)+4.0))
}
