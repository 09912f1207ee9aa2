package estimate

import (
	"gonum.org/v1/gonum/mat"
)

// Map is an estimate of the robot pose together with a landmark map
type Map struct {
	*Base
	// landmarks stores landmark positions keyed by landmark id
	landmarks map[int][2]float64
}

// NewMap returns a map estimate given the full state val, its covariance cov
// and landmark positions keyed by landmark id.
// It returns error if the dimensions of val and cov differ.
func NewMap(val mat.Vector, cov mat.Symmetric, landmarks map[int][2]float64) (*Map, error) {
	b, err := NewBaseWithCov(val, cov)
	if err != nil {
		return nil, err
	}

	lm := make(map[int][2]float64, len(landmarks))
	for id, pos := range landmarks {
		lm[id] = pos
	}

	return &Map{
		Base:      b,
		landmarks: lm,
	}, nil
}

// Pose returns the pose part of the estimated state
func (m *Map) Pose() mat.Vector {
	v := mat.NewVecDense(3, nil)
	v.CopyVec(m.val.SliceVec(0, 3))

	return v
}

// Landmarks returns estimated landmark positions keyed by landmark id
func (m *Map) Landmarks() map[int][2]float64 {
	lm := make(map[int][2]float64, len(m.landmarks))
	for id, pos := range m.landmarks {
		lm[id] = pos
	}

	return lm
}
