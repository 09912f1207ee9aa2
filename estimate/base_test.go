package estimate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
)

func TestNewBase(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 1.0})
	cov := mat.NewSymDense(2, []float64{1.0, 0.0, 0.0, 1.0})

	b, err := NewBase(state)
	assert.NotNil(b)
	assert.NoError(err)
	assert.True(mat.Equal(mat.NewSymDense(2, nil), b.Cov()))

	b, err = NewBase(nil)
	assert.Nil(b)
	assert.Error(err)

	b, err = NewBaseWithCov(state, cov)
	assert.NotNil(b)
	assert.NoError(err)

	b, err = NewBaseWithCov(state, mat.NewSymDense(1, []float64{1.0}))
	assert.Nil(b)
	assert.Error(err)
}

func TestValCov(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(2, []float64{1.0, 2.0})
	cov := mat.NewSymDense(2, []float64{1.0, 2.0, 2.0, 4.0})

	b, err := NewBaseWithCov(state, cov)
	assert.NotNil(b)
	assert.NoError(err)

	assert.True(mat.Equal(state, b.Val()))
	assert.True(mat.Equal(cov, b.Cov()))

	// estimate does not alias its inputs or outputs
	state.SetVec(0, 100)
	assert.Equal(1.0, b.Val().AtVec(0))
	b.Val().(*mat.VecDense).SetVec(1, 100)
	assert.Equal(2.0, b.Val().AtVec(1))
}

func TestMap(t *testing.T) {
	assert := assert.New(t)

	state := mat.NewVecDense(5, []float64{1, 2, 0.5, 4, 5})
	cov := mat.NewSymDense(5, nil)
	lm := map[int][2]float64{7: {4, 5}}

	m, err := NewMap(state, cov, lm)
	assert.NoError(err)
	assert.Equal(lm, m.Landmarks())
	assert.InDeltaSlice([]float64{1, 2, 0.5}, m.Pose().(*mat.VecDense).RawVector().Data, 1e-12)

	lm[8] = [2]float64{0, 0}
	assert.Len(m.Landmarks(), 1)

	m, err = NewMap(state, mat.NewSymDense(3, nil), lm)
	assert.Nil(m)
	assert.Error(err)
}
