package report

import (
	"bytes"
	"encoding/csv"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	filter "github.com/milosgajdos/go-pose"
	"github.com/milosgajdos/go-pose/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func TestWriter(t *testing.T) {
	assert := assert.New(t)

	run := uuid.MustParse("2b1c7f2e-8d6a-4c1e-9a4f-3f0d5f8b9e21")
	recs := []engine.Record{
		{
			Run:  run,
			Step: 1,
			Kind: filter.Particle,
			Pose: [3]float64{1, -0.5, 0.25},
			Cov:  mat.NewSymDense(3, []float64{0.1, 0, 0, 0, 0.2, 0, 0, 0, 0.3}),
			ESS:  42.5,
		},
		{
			Run:       run,
			Step:      2,
			Kind:      filter.SLAM,
			Pose:      [3]float64{2, 0, -1},
			Landmarks: map[int][2]float64{3: {1, 1}},
			Resampled: true,
		},
	}

	var buf bytes.Buffer
	w := NewWriter(&buf)
	for _, rec := range recs {
		require.NoError(t, w.Write(rec))
	}
	require.NoError(t, w.Flush())

	r := csv.NewReader(strings.NewReader(buf.String()))
	r.Comma = Comma
	rows, err := r.ReadAll()
	require.NoError(t, err)

	want := [][]string{
		Header,
		{run.String(), "1", "particle", "1", "-0.5", "0.25", "0.1", "0.2", "0.3", "42.5", "false", "0"},
		{run.String(), "2", "slam", "2", "0", "-1", "0", "0", "0", "0", "true", "1"},
	}
	assert.Empty(cmp.Diff(want, rows))
}

func TestWriteLandmarks(t *testing.T) {
	assert := assert.New(t)

	var buf bytes.Buffer
	require.NoError(t, WriteLandmarks(&buf, map[int][2]float64{7: {1.5, -2}, 2: {0, 3}}))

	assert.Equal("id;x;y\n2;0;3\n7;1.5;-2\n", buf.String())
}
