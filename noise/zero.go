package noise

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Zero is zero noise of a fixed dimension
type Zero struct {
	// size is noise dimension
	size int
}

// NewZero creates new zero noise i.e. zero mean and zero covariance.
// It returns error if size is not positive.
func NewZero(size int) (*Zero, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", size)
	}

	return &Zero{size: size}, nil
}

// Sample returns a vector of zeros.
func (e *Zero) Sample() mat.Vector {
	return mat.NewVecDense(e.size, nil)
}

// Cov returns zero covariance matrix.
func (e *Zero) Cov() mat.Symmetric {
	return mat.NewSymDense(e.size, nil)
}

// Mean returns Zero mean.
func (e *Zero) Mean() []float64 {
	return make([]float64, e.size)
}

// Reset does nothing: there is no randomness to reset.
func (e *Zero) Reset() {}

// String implements the Stringer interface.
func (e *Zero) String() string {
	return fmt.Sprintf("Zero{\nMean=%v\nCov=%v\n}", e.Mean(), mat.Formatted(e.Cov(), mat.Prefix("    "), mat.Squeeze()))
}
