package noise

import (
	"fmt"
	"math"
	"time"

	"golang.org/x/exp/rand"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Diagonal is zero mean gaussian noise with independent components.
// Unlike Gaussian, its standard deviations can be zero.
type Diagonal struct {
	// std stores component standard deviations
	std []float64
	// dist stores univariate normal distributions sharing one source
	dist []distuv.Normal
	// seed is the random source seed; zero seeds from clock
	seed uint64
}

// NewDiagonal creates new Diagonal noise with standard deviations std.
// Zero seed seeds the random source from the clock.
// It returns error if std is empty or any of its values is negative or not finite.
func NewDiagonal(std []float64, seed uint64) (*Diagonal, error) {
	if len(std) == 0 {
		return nil, fmt.Errorf("invalid noise dimension: %d", len(std))
	}

	s := make([]float64, len(std))
	for i, v := range std {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("invalid standard deviation %d: %g", i, v)
		}
		s[i] = v
	}

	d := &Diagonal{std: s, seed: seed}
	d.Reset()

	return d, nil
}

// Sample generates a sample from Diagonal noise and returns it.
func (d *Diagonal) Sample() mat.Vector {
	return mat.NewVecDense(len(d.dist), d.SampleTo(nil))
}

// SampleTo stores a sample in dst and returns it.
// A new slice is allocated if dst is shorter than the noise dimension.
func (d *Diagonal) SampleTo(dst []float64) []float64 {
	if len(dst) < len(d.dist) {
		dst = make([]float64, len(d.dist))
	}
	for i := range d.dist {
		dst[i] = d.dist[i].Rand()
	}

	return dst[:len(d.dist)]
}

// Cov returns diagonal covariance matrix of the noise.
func (d *Diagonal) Cov() mat.Symmetric {
	cov := mat.NewSymDense(len(d.std), nil)
	for i, s := range d.std {
		cov.SetSym(i, i, s*s)
	}

	return cov
}

// Mean returns Diagonal noise mean: zero vector.
func (d *Diagonal) Mean() []float64 {
	return make([]float64, len(d.std))
}

// Reset resets the random source of the noise.
func (d *Diagonal) Reset() {
	seed := d.seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}

	src := rand.NewSource(seed)
	d.dist = make([]distuv.Normal, len(d.std))
	for i, s := range d.std {
		d.dist[i] = distuv.Normal{Mu: 0, Sigma: s, Src: src}
	}
}

// String implements the Stringer interface.
func (d *Diagonal) String() string {
	return fmt.Sprintf("Diagonal{\nStd=%v\n}", d.std)
}
