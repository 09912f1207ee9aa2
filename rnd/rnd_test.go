package rnd

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	data := []float64{1.0, 0.0, 0.0, 1.0}
	covTest := mat.NewSymDense(2, data)
	covR, _ := covTest.Dims()

	// n must be bigger than 1
	nTest := -3
	res, err := WithCovN(covTest, nTest, nil)
	assert.Error(err)
	assert.Nil(res)

	nTest = 1
	res, err = WithCovN(covTest, nTest, nil)
	assert.NoError(err)
	assert.NotNil(res)

	// 2 samples
	nTest = 2
	res, err = WithCovN(covTest, nTest, rand.NewSource(1))
	assert.NoError(err)
	assert.NotNil(res)
	r, c := res.Dims()
	assert.Equal(r, covR)
	assert.Equal(c, nTest)

	// zero covariance draws zeros
	res, err = WithCovN(mat.NewSymDense(3, nil), 5, rand.NewSource(1))
	assert.NoError(err)
	assert.True(mat.Equal(mat.NewDense(3, 5, nil), res))
}

func TestRouletteDrawN(t *testing.T) {
	assert := assert.New(t)

	// p can't be nil or empty
	indices, err := RouletteDrawN(nil, 10, nil)
	assert.Error(err)
	assert.Nil(indices)

	indices, err = RouletteDrawN([]float64{0, 0}, 10, nil)
	assert.Error(err)
	assert.Nil(indices)

	p := []float64{0.1, 0.7, 0.3, 0.4}
	n := 10
	indices, err = RouletteDrawN(p, n, rand.NewSource(3))
	assert.NoError(err)
	assert.NotNil(indices)
	assert.Equal(n, len(indices))
	for _, i := range indices {
		assert.True(i >= 0 && i < len(p))
	}
}

func TestSystematicDrawN(t *testing.T) {
	assert := assert.New(t)

	for _, test := range []struct {
		p    []float64
		n    int
		fail bool
	}{
		{p: nil, n: 4, fail: true},
		{p: []float64{0, 0, 0}, n: 4, fail: true},
		{p: []float64{0.5, -0.5}, n: 4, fail: true},
		{p: []float64{0.5, 0.5}, n: 0, fail: true},
		{p: []float64{0.25, 0.25, 0.25, 0.25}, n: 4},
		{p: []float64{0.1, 0.2, 0.3, 0.4}, n: 4},
		{p: []float64{0, 1, 0}, n: 3},
	} {
		indices, err := SystematicDrawN(test.p, test.n, rand.NewSource(11))
		if test.fail {
			assert.Error(err)
			assert.Nil(indices)
			continue
		}
		assert.NoError(err)
		assert.Len(indices, test.n)
		for i := 1; i < len(indices); i++ {
			assert.True(indices[i-1] <= indices[i])
		}
		for _, i := range indices {
			assert.True(test.p[i] > 0)
		}
	}

	// uniform weights select every particle exactly once
	indices, err := SystematicDrawN([]float64{1, 1, 1, 1, 1}, 5, rand.NewSource(5))
	assert.NoError(err)
	assert.Equal([]int{0, 1, 2, 3, 4}, indices)

	// a single dominant weight takes every slot
	indices, err = SystematicDrawN([]float64{0, 0, 1, 0}, 4, rand.NewSource(5))
	assert.NoError(err)
	assert.Equal([]int{2, 2, 2, 2}, indices)

	// each particle is selected floor(n*w) or ceil(n*w) times
	p := []float64{0.05, 0.45, 0.2, 0.3}
	indices, err = SystematicDrawN(p, 20, rand.NewSource(9))
	assert.NoError(err)
	counts := make([]int, len(p))
	for _, i := range indices {
		counts[i]++
	}
	for i, c := range counts {
		expected := p[i] * 20
		assert.InDelta(expected, float64(c), 1.0)
	}
}

func TestSystematicDrawNDeterministic(t *testing.T) {
	assert := assert.New(t)

	p := []float64{0.02, 0.3, 0.08, 0.15, 0.2, 0.25}
	first, err := SystematicDrawN(p, 50, rand.NewSource(2024))
	assert.NoError(err)

	for i := 0; i < 5; i++ {
		again, err := SystematicDrawN(p, 50, rand.NewSource(2024))
		assert.NoError(err)
		if diff := cmp.Diff(first, again); diff != "" {
			t.Errorf("systematic draw mismatch (-first +again):\n%s", diff)
		}
	}
}
