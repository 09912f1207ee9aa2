package sim

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/milosgajdos/go-pose/noise"
	"github.com/milosgajdos/go-pose/sense"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

func TestProfiles(t *testing.T) {
	assert := assert.New(t)

	u := Wobble(0)
	assert.InDelta(1.5, u.V, 1e-12)
	assert.InDelta(1.8, u.Omega, 1e-12)

	u = Wobble(1.25)
	assert.InDelta(1.0, u.V, 1e-12)
	assert.InDelta(-0.2, u.Omega, 1e-12)

	u = Spiral(0.5, 10)(3)
	assert.Equal(0.5, u.V)
	assert.Equal(0.05, u.Omega)
}

func TestPlaceLandmarks(t *testing.T) {
	assert := assert.New(t)

	ls := PlaceLandmarks(8, 20, rand.NewSource(1))
	assert.Len(ls, 8)
	for i, l := range ls {
		assert.Equal(i, l.ID)
		assert.True(l.X >= -20 && l.X < 20)
		assert.True(l.Y >= -20 && l.Y < 20)
	}

	assert.Empty(cmp.Diff(ls, PlaceLandmarks(8, 20, rand.NewSource(1))))
}

func TestNewSource(t *testing.T) {
	assert := assert.New(t)

	assert.Empty(cmp.Diff(PlaceLandmarks(4, 10, rand.NewSource(7)), PlaceLandmarks(4, 10, NewSource(7))))

	defer func(clock func() time.Time) { now = clock }(now)
	now = func() time.Time { return time.Unix(0, 12345) }

	// zero seed draws from clock
	ls := PlaceLandmarks(4, 10, NewSource(0))
	assert.Empty(cmp.Diff(PlaceLandmarks(4, 10, rand.NewSource(12345)), ls))
	assert.NotEmpty(cmp.Diff(PlaceLandmarks(4, 10, rand.NewSource(0)), ls))
}

func TestWorld(t *testing.T) {
	assert := assert.New(t)

	w, err := NewWorld([]float64{0, -4, math.Pi / 2}, nil, nil)
	require.NoError(t, err)

	w.Step(Spiral(1, 1e9)(0), 1)
	assert.InDeltaSlice([]float64{0, -3, math.Pi / 2}, w.Pose(), 1e-6)
	assert.Equal(1.0, w.Time())

	// noiseless odometry is the ground truth
	assert.InDeltaSlice(w.Pose(), w.Odometry().RawVector().Data, 1e-12)

	odom, err := noise.NewDiagonal([]float64{0.1, 0.1, 0.01}, 3)
	require.NoError(t, err)
	w, err = NewWorld([]float64{0, 0, 0}, nil, odom)
	require.NoError(t, err)
	fix := w.Odometry()
	assert.NotEqual(0.0, fix.AtVec(0))
	assert.Equal([]float64{0, 0, 0}, w.Pose())

	_, err = NewWorld([]float64{0, 0}, nil, nil)
	assert.Error(err)

	bad, _ := noise.NewZero(2)
	_, err = NewWorld([]float64{0, 0, 0}, nil, bad)
	assert.Error(err)
}

func TestWorldScan(t *testing.T) {
	assert := assert.New(t)

	ls := []sense.Landmark{{ID: 0, X: 5, Y: 0}, {ID: 1, X: -3, Y: 0}, {ID: 2, X: 0, Y: 50}}
	w, err := NewWorld([]float64{0, 0, 0}, ls, nil)
	require.NoError(t, err)

	s := w.Scan(360, 0.5, 10)
	require.Len(t, s.Ranges, 360)

	// landmark straight ahead
	assert.InDelta(4.5, s.Ranges[0], 1e-12)
	// landmark behind
	assert.InDelta(2.5, s.Ranges[180], 1e-12)
	// landmark out of range
	assert.True(math.IsInf(s.Ranges[90], 1))

	obs := sense.Arc{HalfAngle: sense.DefaultArcHalfAngle}.Observations(s)
	assert.NotEmpty(obs)
	for _, o := range obs {
		assert.True(math.Abs(o.Bearing) < 0.2)
		assert.True(o.Range >= 4.5 && o.Range < 5)
	}
	assert.Equal(w.Landmarks(), ls)
}
