package pf

import (
	"math"
	"os"
	"testing"

	"github.com/google/go-cmp/cmp"
	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/model"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/milosgajdos/go-pose/particle"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ic     *model.InitCond
	origin *model.InitCond
	r      filter.Noise
	c      Config
)

func setup() {
	initState := mat.NewVecDense(3, []float64{0, 0, 0})
	initCov := mat.NewSymDense(3, []float64{0.25, 0, 0, 0, 0.25, 0, 0, 0, 0.01})
	ic = model.NewInitCond(initState, initCov)
	origin = model.NewInitCond(initState, mat.NewSymDense(3, nil))

	r, _ = noise.NewGaussian([]float64{0, 0}, mat.NewSymDense(2, []float64{0.01, 0, 0, 0.01}))

	c = Config{Particles: 100, Seed: 42}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, nil, r, c)
	assert.NotNil(f)
	assert.NoError(err)
	assert.Equal(c.Particles, f.Count())

	var _ particle.Particle = f

	// invalid particle count
	f, err = New(ic, nil, r, Config{Particles: -10})
	assert.Nil(f)
	assert.Error(err)

	// invalid initial condition
	f, err = New(model.NewInitCond(mat.NewVecDense(2, nil), mat.NewSymDense(2, nil)), nil, r, c)
	assert.Nil(f)
	assert.Error(err)

	// invalid control noise
	q, _ := noise.NewZero(3)
	f, err = New(ic, q, r, c)
	assert.Nil(f)
	assert.Error(err)

	// observation noise must be positive definite
	f, err = New(ic, nil, nil, c)
	assert.Nil(f)
	assert.Error(err)

	_r, _ := noise.NewZero(2)
	f, err = New(ic, nil, _r, c)
	assert.Nil(f)
	assert.Error(err)

	// invalid strategy
	f, err = New(ic, nil, r, Config{Particles: 10, Strategy: "stratified"})
	assert.Nil(f)
	assert.Error(err)
}

func TestPredict(t *testing.T) {
	assert := assert.New(t)

	f, err := New(origin, nil, r, c)
	require.NoError(t, err)

	assert.NoError(f.Predict(filter.Control{V: 1, Omega: 0}, 1))

	est := f.Estimate().Val()
	assert.InDelta(1.0, est.AtVec(0), 1e-12)
	assert.InDelta(0.0, est.AtVec(1), 1e-12)
	assert.InDelta(0.0, est.AtVec(2), 1e-12)

	// no weights are changed by prediction
	for i := 0; i < f.Count(); i++ {
		assert.Equal(1/float64(c.Particles), f.Weights().AtVec(i))
	}

	assert.True(errors.Is(f.Predict(filter.Control{V: 1}, math.NaN()), filter.ErrNumericDegeneracy))
	assert.InDelta(1.0, f.Estimate().Val().AtVec(0), 1e-12)
}

func TestPredictNoise(t *testing.T) {
	assert := assert.New(t)

	q, err := noise.NewDiagonal([]float64{0.1, 0.05}, 7)
	require.NoError(t, err)

	f, err := New(origin, q, r, c)
	require.NoError(t, err)

	assert.NoError(f.Predict(filter.Control{V: 1, Omega: 0.5}, 1))

	// independent control noise spreads the particles
	p := f.Particles()
	xs := mat.Row(nil, 0, p)
	assert.True(floats.Max(xs)-floats.Min(xs) > 1e-3)

	cov := f.Estimate().Cov()
	assert.True(cov.At(0, 0) > 0)
	assert.True(cov.At(2, 2) > 0)
}

func TestUpdate(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, nil, r, c)
	require.NoError(t, err)

	before := f.Estimate().Val()
	fix := mat.NewVecDense(2, []float64{0.5, 0})
	assert.NoError(f.Update(&filter.Measurement{Position: fix}))

	w := mat.Col(nil, 0, f.Weights())
	assert.InDelta(1.0, floats.Sum(w), 1e-9)
	for _, v := range w {
		assert.True(v >= 0)
	}

	// estimate moves towards the fix
	after := f.Estimate().Val()
	assert.True(math.Abs(after.AtVec(0)-0.5) < math.Abs(before.AtVec(0)-0.5))
	assert.True(f.EffectiveSampleSize() < float64(c.Particles))

	// three element fix ignores heading
	assert.NoError(f.Update(&filter.Measurement{Position: mat.NewVecDense(3, []float64{0.5, 0, 3})}))

	// invalid fix size leaves weights intact
	w = mat.Col(nil, 0, f.Weights())
	err = f.Update(&filter.Measurement{Position: mat.NewVecDense(4, nil)})
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))
	assert.Equal(w, mat.Col(nil, 0, f.Weights()))

	assert.True(errors.Is(f.Update(nil), filter.ErrDimensionMismatch))

	// empty measurement
	assert.NoError(f.Update(&filter.Measurement{}))
	assert.Equal(w, mat.Col(nil, 0, f.Weights()))
}

func TestUpdateLandmarks(t *testing.T) {
	assert := assert.New(t)

	_c := c
	_c.Landmarks = map[int][2]float64{1: {5, 0}, 2: {0, 5}}
	f, err := New(ic, nil, r, _c)
	require.NoError(t, err)

	// observations consistent with a robot at the origin
	truth := []float64{0, 0, 0}
	var obs []filter.Observation
	for _, id := range []int{1, 2} {
		lm := _c.Landmarks[id]
		rng, b := model.RangeBearing(truth, lm[0], lm[1])
		obs = append(obs, filter.Observation{Range: rng, Bearing: b, ID: id})
	}
	obs = append(obs, filter.Observation{Range: 1, Bearing: 0, ID: 9})

	err = f.Update(&filter.Measurement{Observations: obs})
	assert.True(errors.Is(err, filter.ErrDimensionMismatch))
	var batch filter.Errors
	assert.True(errors.As(err, &batch))
	assert.Len(batch, 1)

	// the known landmarks were still applied
	w := mat.Col(nil, 0, f.Weights())
	assert.InDelta(1.0, floats.Sum(w), 1e-9)
	assert.True(f.EffectiveSampleSize() < float64(c.Particles))

	est := f.Estimate().Val()
	assert.InDelta(0.0, est.AtVec(0), 0.25)
	assert.InDelta(0.0, est.AtVec(1), 0.25)
}

func TestUpdateDistantFix(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, nil, r, c)
	require.NoError(t, err)

	before := f.Estimate().Val()

	// every linear likelihood underflows this far from the particle cloud
	for i, fix := range [][]float64{{6, 0}, {1000, 1000}} {
		assert.NoError(f.Update(&filter.Measurement{Position: mat.NewVecDense(2, fix)}))

		w := mat.Col(nil, 0, f.Weights())
		assert.InDelta(1.0, floats.Sum(w), 1e-9)
		assert.False(floats.HasNaN(w))
		assert.True(f.EffectiveSampleSize() < float64(c.Particles))

		if i == 0 {
			// estimate moved towards the fix
			after := f.Estimate().Val()
			assert.True(after.AtVec(0) > before.AtVec(0))
		}
	}
}

func TestUpdateStarvation(t *testing.T) {
	assert := assert.New(t)

	f, err := New(ic, nil, r, c)
	require.NoError(t, err)

	// residuals overflow so no particle keeps a finite likelihood
	err = f.Update(&filter.Measurement{Position: mat.NewVecDense(2, []float64{1e200, 1e200})})
	assert.Error(err)
	assert.True(errors.Is(err, filter.ErrResampleStarvation))

	// weights fall back to uniform
	for i := 0; i < f.Count(); i++ {
		assert.Equal(1/float64(c.Particles), f.Weights().AtVec(i))
	}

	// filter keeps working
	assert.NoError(f.Predict(filter.Control{V: 1}, 0.1))
	assert.NoError(f.Update(&filter.Measurement{Position: mat.NewVecDense(2, []float64{0.1, 0})}))
}

func TestResample(t *testing.T) {
	assert := assert.New(t)

	for _, strategy := range []Strategy{Systematic, Roulette} {
		_c := c
		_c.Strategy = strategy
		f, err := New(ic, nil, r, _c)
		require.NoError(t, err)

		require.NoError(t, f.Update(&filter.Measurement{Position: mat.NewVecDense(2, []float64{0.3, -0.2})}))

		indices, err := f.Resample()
		assert.NoError(err)
		assert.Len(indices, c.Particles)

		for i := 0; i < f.Count(); i++ {
			assert.Equal(1/float64(c.Particles), f.Weights().AtVec(i))
		}
		assert.InDelta(float64(c.Particles), f.EffectiveSampleSize(), 1e-9)

		// resampled particles are copies of the selected ones
		_, cols := f.Particles().Dims()
		assert.Equal(c.Particles, cols)
	}
}

func TestResampleDeterministic(t *testing.T) {
	assert := assert.New(t)

	run := func() ([]int, mat.Matrix) {
		q, err := noise.NewDiagonal([]float64{0.1, 0.05}, 11)
		require.NoError(t, err)

		f, err := New(ic, q, r, Config{Particles: 50, Seed: 2024})
		require.NoError(t, err)

		require.NoError(t, f.Predict(filter.Control{V: 1, Omega: 0.2}, 0.5))
		require.NoError(t, f.Update(&filter.Measurement{Position: mat.NewVecDense(2, []float64{0.5, 0.1})}))

		indices, err := f.Resample()
		require.NoError(t, err)

		return indices, f.Particles()
	}

	i1, p1 := run()
	i2, p2 := run()

	assert.Empty(cmp.Diff(i1, i2))
	assert.True(mat.Equal(p1, p2))

	// systematic resampling returns ascending indices
	for i := 1; i < len(i1); i++ {
		assert.True(i1[i-1] <= i1[i])
	}
}

func TestResampleRegularize(t *testing.T) {
	assert := assert.New(t)

	_c := c
	_c.Regularize = true
	f, err := New(ic, nil, r, _c)
	require.NoError(t, err)

	require.NoError(t, f.Update(&filter.Measurement{Position: mat.NewVecDense(2, []float64{0.2, 0.2})}))
	indices, err := f.Resample()
	require.NoError(t, err)

	// duplicated particles are separated by the jitter
	dup := -1
	for i := 1; i < len(indices); i++ {
		if indices[i] == indices[i-1] {
			dup = i
			break
		}
	}
	require.True(t, dup > 0)

	p := f.Particles()
	assert.NotEqual(p.At(0, dup), p.At(0, dup-1))

	for i := 0; i < f.Count(); i++ {
		h := p.At(2, i)
		assert.True(h > -math.Pi && h <= math.Pi)
	}

	assert.True(AlphaGauss(3, 100) > 0)
	assert.True(AlphaGauss(3, 100) < 1)
}

func TestJitterDegenerate(t *testing.T) {
	assert := assert.New(t)

	_c := c
	_c.Regularize = true
	f, err := New(ic, nil, r, _c)
	require.NoError(t, err)

	x := mat.NewDense(3, 2, []float64{1e300, -1e300, 1e300, -1e300, 0, 0})
	err = f.jitter(x)
	assert.True(errors.Is(err, filter.ErrNumericDegeneracy))
}

func TestEstimateHeadingWrap(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(3, []float64{1, 2, math.Pi})
	cov := mat.NewSymDense(3, []float64{0, 0, 0, 0, 0, 0, 0, 0, 0.0001})
	f, err := New(model.NewInitCond(state, cov), nil, r, c)
	require.NoError(t, err)

	// particles straddle the -pi/pi cut
	est := f.Estimate()
	assert.InDelta(math.Pi, math.Abs(est.Val().AtVec(2)), 0.05)
	assert.InDelta(1.0, est.Val().AtVec(0), 1e-12)
	assert.True(est.Cov().At(2, 2) < 0.01)
	assert.True(est.Cov().At(2, 2) > 0)
}
