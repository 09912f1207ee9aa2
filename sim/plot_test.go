package sim

import (
	"path/filepath"
	"testing"

	"github.com/milosgajdos/go-pose/sense"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestTrace(t *testing.T) {
	assert := assert.New(t)

	var tr Trace
	assert.Nil(tr.Dense())

	tr.Add(1, 2)
	tr.Add(3, 4)
	assert.Equal(2, tr.Len())

	d := tr.Dense()
	assert.True(mat.Equal(mat.NewDense(2, 2, []float64{1, 2, 3, 4}), d))

	// Dense returns a copy
	d.Set(0, 0, 10)
	assert.Equal(1.0, tr.Dense().At(0, 0))
}

func TestNew2DPlot(t *testing.T) {
	assert := assert.New(t)

	truth := mat.NewDense(3, 2, []float64{0, 0, 1, 1, 2, 2})
	measure := mat.NewDense(3, 2, nil)
	filter := mat.NewDense(3, 2, nil)

	plt, err := New2DPlot(truth, measure, filter, nil)
	assert.NotNil(plt)
	assert.NoError(err)

	plt, err = New2DPlot(truth, measure, filter, []sense.Landmark{{ID: 0, X: 1, Y: -1}})
	require.NotNil(t, plt)
	assert.NoError(err)
	assert.NoError(Save(plt, 10, filepath.Join(t.TempDir(), "plot.png")))

	plt, err = New2DPlot(nil, nil, nil, nil)
	assert.Nil(plt)
	assert.Error(err)

	plt, err = New2DPlot(truth, mat.NewDense(3, 1, nil), filter, nil)
	assert.Nil(plt)
	assert.Error(err)
}
